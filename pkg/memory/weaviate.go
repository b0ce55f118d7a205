package memory

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/weaviate/weaviate-go-client/v4/weaviate"
	"github.com/weaviate/weaviate-go-client/v4/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v4/weaviate/graphql"
)

const defaultClassName = "MemoryEntry"

// WeaviateStore keeps entries in a weaviate instance, using its vectorizer
// for semantic recall. The class schema is created on first insert through
// weaviate's auto-schema; timestamps are stored as RFC3339 date properties.
type WeaviateStore struct {
	client    *weaviate.Client
	className string
}

type WeaviateOption func(*WeaviateStore)

func WithClassName(className string) WeaviateOption {
	return func(s *WeaviateStore) {
		s.className = className
	}
}

func NewWeaviateStore(client *weaviate.Client, options ...WeaviateOption) *WeaviateStore {
	ret := &WeaviateStore{
		client:    client,
		className: defaultClassName,
	}
	for _, option := range options {
		option(ret)
	}
	return ret
}

// NewWeaviateStoreFromHost connects to scheme://host, e.g. ("http",
// "localhost:8080").
func NewWeaviateStoreFromHost(scheme string, host string, options ...WeaviateOption) *WeaviateStore {
	client := weaviate.New(weaviate.Config{
		Scheme: scheme,
		Host:   host,
	})
	return NewWeaviateStore(client, options...)
}

var _ LongTermMemory = (*WeaviateStore)(nil)

func (s *WeaviateStore) Store(ctx context.Context, entry Entry) error {
	properties := map[string]interface{}{
		"result":    entry.Result,
		"timestamp": entry.Metadata.Timestamp.Format(time.RFC3339),
		"source":    entry.Metadata.Source,
	}
	if len(entry.Metadata.Tags) > 0 {
		properties["tags"] = entry.Metadata.Tags
	}

	_, err := s.client.Data().Creator().
		WithClassName(s.className).
		WithProperties(properties).
		Do(ctx)
	return errors.Wrap(err, "could not store memory entry")
}

func (s *WeaviateStore) Recall(ctx context.Context, query Query) ([]Entry, error) {
	fields := []graphql.Field{
		{Name: "result"},
		{Name: "timestamp"},
		{Name: "tags"},
		{Name: "source"},
	}
	builder := s.client.GraphQL().Get().
		WithClassName(s.className).
		WithFields(fields...)

	switch q := query.(type) {
	case SemanticQuery:
		nearText := s.client.GraphQL().NearTextArgBuilder().
			WithConcepts([]string{q.Description})
		builder = builder.WithNearText(nearText)
		if q.Limit > 0 {
			builder = builder.WithLimit(q.Limit)
		}

	case TimeRangeQuery:
		builder = builder.WithWhere(timeRangeFilter(q))

	case TagsQuery:
		builder = builder.WithWhere(tagsFilter(q))

	default:
		return nil, errors.Errorf("unsupported query type %T", query)
	}

	resp, err := builder.Do(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "weaviate query failed")
	}
	if len(resp.Errors) > 0 {
		messages := make([]string, 0, len(resp.Errors))
		for _, respErr := range resp.Errors {
			messages = append(messages, respErr.Message)
		}
		return nil, errors.Errorf("weaviate query failed: %s", strings.Join(messages, "; "))
	}

	return s.parseEntries(resp.Data["Get"]), nil
}

func (s *WeaviateStore) Forget(ctx context.Context, query Query) error {
	var where *filters.WhereBuilder

	switch q := query.(type) {
	case TimeRangeQuery:
		where = timeRangeFilter(q)
	case TagsQuery:
		where = tagsFilter(q)
	case SemanticQuery:
		// Similarity gives no stable identity to delete by.
		return nil
	default:
		return errors.Errorf("unsupported query type %T", query)
	}

	resp, err := s.client.Batch().ObjectsBatchDeleter().
		WithClassName(s.className).
		WithWhere(where).
		Do(ctx)
	if err != nil {
		return errors.Wrap(err, "could not forget memory entries")
	}
	if resp != nil && resp.Results != nil {
		log.Debug().Int64("matches", resp.Results.Matches).Str("class", s.className).
			Msg("forgot memory entries")
	}
	return nil
}

func timeRangeFilter(q TimeRangeQuery) *filters.WhereBuilder {
	return filters.Where().
		WithOperator(filters.And).
		WithOperands([]*filters.WhereBuilder{
			filters.Where().
				WithPath([]string{"timestamp"}).
				WithOperator(filters.GreaterThanEqual).
				WithValueDate(q.Start),
			filters.Where().
				WithPath([]string{"timestamp"}).
				WithOperator(filters.LessThanEqual).
				WithValueDate(q.End),
		})
}

func tagsFilter(q TagsQuery) *filters.WhereBuilder {
	return filters.Where().
		WithPath([]string{"tags"}).
		WithOperator(filters.ContainsAny).
		WithValueText(q.Tags...)
}

func (s *WeaviateStore) parseEntries(data interface{}) []Entry {
	get, ok := data.(map[string]interface{})
	if !ok {
		return nil
	}
	rawEntries, ok := get[s.className].([]interface{})
	if !ok {
		return nil
	}

	entries := make([]Entry, 0, len(rawEntries))
	for _, raw := range rawEntries {
		props, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		entry := Entry{}
		if result, ok := props["result"].(string); ok {
			entry.Result = result
		}
		if source, ok := props["source"].(string); ok {
			entry.Metadata.Source = source
		}
		if ts, ok := props["timestamp"].(string); ok {
			if parsed, err := time.Parse(time.RFC3339, ts); err == nil {
				entry.Metadata.Timestamp = parsed
			}
		}
		if tags, ok := props["tags"].([]interface{}); ok {
			for _, tag := range tags {
				if tagStr, ok := tag.(string); ok {
					entry.Metadata.Tags = append(entry.Metadata.Tags, tagStr)
				}
			}
		}
		entries = append(entries, entry)
	}
	return entries
}
