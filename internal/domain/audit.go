package domain

import "time"

// RetrievalKind names the gateway operation being audited.
type RetrievalKind string

const (
	RetrievalSearch RetrievalKind = "search"
	RetrievalFetch  RetrievalKind = "fetch"
)

// OutcomeOK marks a successful retrieval. Failures use the gateway error kind.
const OutcomeOK = "ok"

// RetrievalEvent is one audited search or fetch. It carries no conversation
// content, only where the gateway went and how it ended.
type RetrievalEvent struct {
	ID         string        `json:"id"`
	Kind       RetrievalKind `json:"kind"`
	Host       string        `json:"host"`
	Outcome    string        `json:"outcome"`
	DurationMS int64         `json:"durationMs"`
	CreatedAt  time.Time     `json:"createdAt"`
}

// OutcomeCount is one row of the retrieval audit summary.
type OutcomeCount struct {
	Kind    RetrievalKind `json:"kind"`
	Outcome string        `json:"outcome"`
	Count   int64         `json:"count"`
}
