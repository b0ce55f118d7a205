package memory

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newWeaviateTestStore(t *testing.T, handler http.HandlerFunc) (*WeaviateStore, func()) {
	t.Helper()
	server := httptest.NewServer(handler)
	host := strings.TrimPrefix(server.URL, "http://")
	return NewWeaviateStoreFromHost("http", host), server.Close
}

func TestWeaviateStoreCreatesObject(t *testing.T) {
	var captured map[string]interface{}
	store, closeServer := newWeaviateTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/objects", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &captured))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"class":"MemoryEntry","id":"20000000-0000-0000-0000-000000000000","properties":{}}`))
	})
	defer closeServer()

	err := store.Store(context.Background(), Entry{
		Result: "result: 3.00",
		Metadata: Metadata{
			Timestamp: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
			Tags:      []string{"calculation"},
			Source:    "calculator",
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "MemoryEntry", captured["class"])
	properties := captured["properties"].(map[string]interface{})
	assert.Equal(t, "result: 3.00", properties["result"])
	assert.Equal(t, "2024-03-01T12:00:00Z", properties["timestamp"])
	assert.Equal(t, "calculator", properties["source"])
}

func TestWeaviateStoreSemanticRecall(t *testing.T) {
	var query string
	store, closeServer := newWeaviateTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/graphql", r.URL.Path)
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		var payload map[string]interface{}
		require.NoError(t, json.Unmarshal(body, &payload))
		query = payload["query"].(string)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"Get":{"MemoryEntry":[{"result":"the answer","timestamp":"2024-03-01T12:00:00Z","tags":["calculation"],"source":"calculator"}]}}}`))
	})
	defer closeServer()

	entries, err := store.Recall(context.Background(), SemanticQuery{Description: "previous calculations", Limit: 2})
	require.NoError(t, err)

	require.Len(t, entries, 1)
	assert.Equal(t, "the answer", entries[0].Result)
	assert.Equal(t, []string{"calculation"}, entries[0].Metadata.Tags)
	assert.Equal(t, "calculator", entries[0].Metadata.Source)
	assert.Equal(t, time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC), entries[0].Metadata.Timestamp)

	assert.Contains(t, query, "MemoryEntry")
	assert.Contains(t, query, "nearText")
	assert.Contains(t, query, "previous calculations")
}

func TestWeaviateStoreRecallSurfacesGraphQLErrors(t *testing.T) {
	store, closeServer := newWeaviateTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":null,"errors":[{"message":"no vectorizer configured"}]}`))
	})
	defer closeServer()

	_, err := store.Recall(context.Background(), SemanticQuery{Description: "anything", Limit: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no vectorizer configured")
}

func TestWeaviateStoreForgetByTags(t *testing.T) {
	var method, path string
	store, closeServer := newWeaviateTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		path = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"match":{"class":"MemoryEntry"},"results":{"matches":1,"successful":1,"failed":0}}`))
	})
	defer closeServer()

	err := store.Forget(context.Background(), TagsQuery{Tags: []string{"calculation"}})
	require.NoError(t, err)
	assert.Equal(t, http.MethodDelete, method)
	assert.Equal(t, "/v1/batch/objects", path)
}

func TestWeaviateStoreForgetSemanticIsNoop(t *testing.T) {
	store, closeServer := newWeaviateTestStore(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request should be sent")
	})
	defer closeServer()

	require.NoError(t, store.Forget(context.Background(), SemanticQuery{Description: "anything", Limit: 1}))
}
