// Package memory persists tool results and other conversation artifacts
// beyond the lifetime of a single session. The orchestration loop never
// blocks on it; callers store and recall out-of-band.
package memory

import (
	"context"
	"time"
)

// Entry is one remembered fact: the text to keep, plus metadata used to find
// it again.
type Entry struct {
	Result   string   `json:"result"`
	Metadata Metadata `json:"metadata"`
}

type Metadata struct {
	Timestamp time.Time `json:"timestamp"`
	Tags      []string  `json:"tags,omitempty"`
	Source    string    `json:"source,omitempty"`
}

// Query selects entries. Exactly one of the three variants is used per call.
type Query interface {
	isQuery()
}

// SemanticQuery finds the Limit entries closest in meaning to Description.
type SemanticQuery struct {
	Description string
	Limit       int
}

// TimeRangeQuery selects entries whose timestamp falls within [Start, End],
// both ends inclusive.
type TimeRangeQuery struct {
	Start time.Time
	End   time.Time
}

// TagsQuery selects entries carrying at least one of the given tags.
type TagsQuery struct {
	Tags []string
}

func (SemanticQuery) isQuery()  {}
func (TimeRangeQuery) isQuery() {}
func (TagsQuery) isQuery()      {}

// LongTermMemory stores, retrieves, and deletes entries. Forget with a
// semantic query is a no-op: similarity gives no stable identity to delete
// by, only time ranges and tags do.
type LongTermMemory interface {
	Store(ctx context.Context, entry Entry) error
	Recall(ctx context.Context, query Query) ([]Entry, error)
	Forget(ctx context.Context, query Query) error
}
