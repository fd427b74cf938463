package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/ashureev/carenav/internal/domain"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "nested", "audit.db"))
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRecordAndSummarize(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	events := []domain.RetrievalEvent{
		{ID: "1", Kind: domain.RetrievalSearch, Host: "api.bing.microsoft.com", Outcome: domain.OutcomeOK, CreatedAt: now.Add(-time.Minute)},
		{ID: "2", Kind: domain.RetrievalFetch, Host: "www.who.int", Outcome: domain.OutcomeOK, CreatedAt: now.Add(-50 * time.Second)},
		{ID: "3", Kind: domain.RetrievalFetch, Host: "www.cdc.gov", Outcome: "unsupported_content_type", CreatedAt: now.Add(-40 * time.Second)},
		{ID: "4", Kind: domain.RetrievalFetch, Host: "www.nhs.uk", Outcome: domain.OutcomeOK, CreatedAt: now.Add(-30 * time.Second)},
		{ID: "5", Kind: domain.RetrievalFetch, Host: "www.who.int", Outcome: domain.OutcomeOK, CreatedAt: now.Add(-20 * time.Second)},
		{ID: "6", Kind: domain.RetrievalFetch, Host: "old.example", Outcome: domain.OutcomeOK, CreatedAt: now.Add(-48 * time.Hour)},
	}
	for _, ev := range events {
		if err := s.RecordRetrieval(ctx, ev); err != nil {
			t.Fatalf("RecordRetrieval failed: %v", err)
		}
	}

	counts, err := s.OutcomeCounts(ctx, now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("OutcomeCounts failed: %v", err)
	}
	want := []domain.OutcomeCount{
		{Kind: domain.RetrievalFetch, Outcome: domain.OutcomeOK, Count: 3},
		{Kind: domain.RetrievalFetch, Outcome: "unsupported_content_type", Count: 1},
		{Kind: domain.RetrievalSearch, Outcome: domain.OutcomeOK, Count: 1},
	}
	if len(counts) != len(want) {
		t.Fatalf("got %+v, want %+v", counts, want)
	}
	for i := range want {
		if counts[i] != want[i] {
			t.Errorf("row %d = %+v, want %+v", i, counts[i], want[i])
		}
	}

	hosts, err := s.RecentHosts(ctx, 2)
	if err != nil {
		t.Fatalf("RecentHosts failed: %v", err)
	}
	if len(hosts) != 2 || hosts[0] != "www.who.int" || hosts[1] != "www.nhs.uk" {
		t.Errorf("unexpected recent hosts %v", hosts)
	}
}

func TestPurgeBefore(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	for i, age := range []time.Duration{time.Minute, 25 * time.Hour, 72 * time.Hour} {
		ev := domain.RetrievalEvent{
			ID:        string(rune('a' + i)),
			Kind:      domain.RetrievalFetch,
			Host:      "www.who.int",
			Outcome:   domain.OutcomeOK,
			CreatedAt: now.Add(-age),
		}
		if err := s.RecordRetrieval(ctx, ev); err != nil {
			t.Fatalf("RecordRetrieval failed: %v", err)
		}
	}

	deleted, err := purgeWithRetry(ctx, s, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("purge failed: %v", err)
	}
	if deleted != 2 {
		t.Errorf("deleted = %d, want 2", deleted)
	}

	counts, err := s.OutcomeCounts(ctx, time.Time{})
	if err != nil {
		t.Fatalf("OutcomeCounts failed: %v", err)
	}
	if len(counts) != 1 || counts[0].Count != 1 {
		t.Errorf("unexpected remaining counts %+v", counts)
	}
}

type busyRepo struct {
	Repository
	failures int
	calls    int
}

func (b *busyRepo) PurgeBefore(context.Context, time.Time) (int64, error) {
	b.calls++
	if b.calls <= b.failures {
		return 0, errors.New("database is locked (5) (SQLITE_BUSY)")
	}
	return 7, nil
}

func TestPurgeWithRetry(t *testing.T) {
	repo := &busyRepo{failures: 2}
	deleted, err := purgeWithRetry(context.Background(), repo, time.Now())
	if err != nil || deleted != 7 {
		t.Fatalf("got %d, %v; want 7, nil", deleted, err)
	}
	if repo.calls != 3 {
		t.Errorf("calls = %d, want 3", repo.calls)
	}

	repo = &busyRepo{failures: 5}
	if _, err := purgeWithRetry(context.Background(), repo, time.Now()); err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if repo.calls != 3 {
		t.Errorf("calls = %d, want 3", repo.calls)
	}
}
