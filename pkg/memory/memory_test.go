package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entryAt(result string, ts time.Time, tags ...string) Entry {
	return Entry{
		Result: result,
		Metadata: Metadata{
			Timestamp: ts,
			Tags:      tags,
			Source:    "test",
		},
	}
}

func TestInMemorySemanticRecallRanksByOverlap(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	now := time.Now()

	require.NoError(t, store.Store(ctx, entryAt("the weather in zurich is sunny", now)))
	require.NoError(t, store.Store(ctx, entryAt("zurich has a lake", now)))
	require.NoError(t, store.Store(ctx, entryAt("completely unrelated fact", now)))

	results, err := store.Recall(ctx, SemanticQuery{Description: "weather zurich", Limit: 5})
	require.NoError(t, err)

	require.Len(t, results, 2)
	assert.Equal(t, "the weather in zurich is sunny", results[0].Result)
	assert.Equal(t, "zurich has a lake", results[1].Result)
}

func TestInMemorySemanticRecallHonorsLimit(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	now := time.Now()

	for _, text := range []string{"cat one", "cat two", "cat three"} {
		require.NoError(t, store.Store(ctx, entryAt(text, now)))
	}

	results, err := store.Recall(ctx, SemanticQuery{Description: "cat", Limit: 2})
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestInMemoryTimeRangeRecallIsInclusive(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.Store(ctx, entryAt("before", base.Add(-time.Hour))))
	require.NoError(t, store.Store(ctx, entryAt("start", base)))
	require.NoError(t, store.Store(ctx, entryAt("end", base.Add(time.Hour))))
	require.NoError(t, store.Store(ctx, entryAt("after", base.Add(2*time.Hour))))

	results, err := store.Recall(ctx, TimeRangeQuery{Start: base, End: base.Add(time.Hour)})
	require.NoError(t, err)

	require.Len(t, results, 2)
	assert.Equal(t, "start", results[0].Result)
	assert.Equal(t, "end", results[1].Result)
}

func TestInMemoryTagsRecallMatchesAnyTag(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	now := time.Now()

	require.NoError(t, store.Store(ctx, entryAt("a", now, "greeting")))
	require.NoError(t, store.Store(ctx, entryAt("b", now, "farewell")))
	require.NoError(t, store.Store(ctx, entryAt("c", now, "greeting", "smalltalk")))

	results, err := store.Recall(ctx, TagsQuery{Tags: []string{"greeting"}})
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestInMemoryForgetByTags(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	now := time.Now()

	require.NoError(t, store.Store(ctx, entryAt("a", now, "keep")))
	require.NoError(t, store.Store(ctx, entryAt("b", now, "drop")))

	require.NoError(t, store.Forget(ctx, TagsQuery{Tags: []string{"drop"}}))

	assert.Equal(t, 1, store.Len())
	results, err := store.Recall(ctx, TagsQuery{Tags: []string{"keep"}})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].Result)
}

func TestInMemoryForgetByTimeRange(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.Store(ctx, entryAt("old", base)))
	require.NoError(t, store.Store(ctx, entryAt("new", base.Add(2*time.Hour))))

	require.NoError(t, store.Forget(ctx, TimeRangeQuery{Start: base.Add(-time.Minute), End: base.Add(time.Minute)}))

	assert.Equal(t, 1, store.Len())
}

func TestInMemoryForgetSemanticIsNoop(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()

	require.NoError(t, store.Store(ctx, entryAt("something", time.Now())))
	require.NoError(t, store.Forget(ctx, SemanticQuery{Description: "something", Limit: 1}))

	assert.Equal(t, 1, store.Len())
}

type bogusQuery struct{}

func (bogusQuery) isQuery() {}

func TestInMemoryRejectsUnknownQuery(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()

	_, err := store.Recall(ctx, bogusQuery{})
	assert.Error(t, err)
	assert.Error(t, store.Forget(ctx, bogusQuery{}))
}
