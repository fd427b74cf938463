// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/ashureev/carenav/internal/domain"
)

// Repository persists the retrieval audit log. It never stores conversation
// content.
type Repository interface {
	// RecordRetrieval appends one search or fetch event.
	RecordRetrieval(ctx context.Context, ev domain.RetrievalEvent) error

	// OutcomeCounts summarizes events created at or after since, grouped by
	// kind and outcome.
	OutcomeCounts(ctx context.Context, since time.Time) ([]domain.OutcomeCount, error)

	// RecentHosts returns the most recent distinct hosts fetched successfully.
	RecentHosts(ctx context.Context, limit int) ([]string, error)

	// PurgeBefore deletes events created before cutoff.
	PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
