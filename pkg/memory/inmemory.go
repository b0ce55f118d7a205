package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// InMemoryStore keeps entries in a slice, guarded by a mutex. Semantic
// recall ranks by keyword overlap with the description, an approximation
// that works well enough for tests and small local setups. Use the weaviate
// store for real similarity search.
type InMemoryStore struct {
	mu      sync.RWMutex
	entries []Entry
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

var _ LongTermMemory = (*InMemoryStore)(nil)

func (s *InMemoryStore) Store(ctx context.Context, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

func (s *InMemoryStore) Recall(ctx context.Context, query Query) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	switch q := query.(type) {
	case SemanticQuery:
		type scored struct {
			score float64
			entry Entry
		}
		results := []scored{}
		for _, entry := range s.entries {
			score := keywordSimilarity(q.Description, entry.Result)
			if score > 0 {
				results = append(results, scored{score: score, entry: entry})
			}
		}
		sort.SliceStable(results, func(i, j int) bool {
			return results[i].score > results[j].score
		})
		if q.Limit > 0 && len(results) > q.Limit {
			results = results[:q.Limit]
		}
		ret := make([]Entry, 0, len(results))
		for _, r := range results {
			ret = append(ret, r.entry)
		}
		return ret, nil

	case TimeRangeQuery:
		ret := []Entry{}
		for _, entry := range s.entries {
			ts := entry.Metadata.Timestamp
			if !ts.Before(q.Start) && !ts.After(q.End) {
				ret = append(ret, entry)
			}
		}
		return ret, nil

	case TagsQuery:
		ret := []Entry{}
		for _, entry := range s.entries {
			if hasAnyTag(entry.Metadata.Tags, q.Tags) {
				ret = append(ret, entry)
			}
		}
		return ret, nil

	default:
		return nil, errors.Errorf("unsupported query type %T", query)
	}
}

func (s *InMemoryStore) Forget(ctx context.Context, query Query) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch q := query.(type) {
	case TimeRangeQuery:
		kept := s.entries[:0]
		for _, entry := range s.entries {
			ts := entry.Metadata.Timestamp
			if ts.Before(q.Start) || ts.After(q.End) {
				kept = append(kept, entry)
			}
		}
		s.entries = kept
		return nil

	case TagsQuery:
		kept := s.entries[:0]
		for _, entry := range s.entries {
			if !hasAnyTag(entry.Metadata.Tags, q.Tags) {
				kept = append(kept, entry)
			}
		}
		s.entries = kept
		return nil

	case SemanticQuery:
		return nil

	default:
		return errors.Errorf("unsupported query type %T", query)
	}
}

// Len reports how many entries are stored.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// keywordSimilarity scores content by the fraction of query words it
// contains, case-insensitively.
func keywordSimilarity(query string, content string) float64 {
	words := strings.Fields(strings.ToLower(query))
	if len(words) == 0 {
		return 0
	}
	content = strings.ToLower(content)
	matched := 0
	for _, word := range words {
		if strings.Contains(content, word) {
			matched++
		}
	}
	return float64(matched) / float64(len(words))
}

func hasAnyTag(entryTags []string, queryTags []string) bool {
	for _, queryTag := range queryTags {
		for _, entryTag := range entryTags {
			if entryTag == queryTag {
				return true
			}
		}
	}
	return false
}
