package goopenai

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ForSeason/chimerai/pkg/conversation"
	"github.com/ForSeason/chimerai/pkg/llm"
)

func TestCompleteReturnsText(t *testing.T) {
	var raw map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &raw))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"hi back"}}]}`))
	}))
	defer server.Close()

	client := NewClient("test-key", "test-model", WithBaseURL(server.URL))
	decision, err := client.Complete(context.Background(), conversation.Conversation{
		conversation.NewSystemMessage("You are a helpful AI assistant."),
		conversation.NewUserMessage("hi"),
	}, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, "hi back", decision.Text)
	assert.False(t, decision.RequestsTools())
	assert.Equal(t, "test-model", raw["model"])
	assert.Len(t, raw["messages"], 2)
	assert.NotContains(t, raw, "tools")
}

func TestCompleteParsesToolCalls(t *testing.T) {
	var raw map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &raw))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"","tool_calls":[{"id":"call_1","type":"function","function":{"name":"calculator","arguments":"{\"op\":\"add\"}"}}]}}]}`))
	}))
	defer server.Close()

	client := NewClient("test-key", "test-model", WithBaseURL(server.URL))
	decision, err := client.Complete(context.Background(), conversation.Conversation{
		conversation.NewUserMessage("1+2?"),
	}, []llm.ToolSpec{{Name: "calculator", Description: "Does arithmetic."}}, nil)
	require.NoError(t, err)

	require.True(t, decision.RequestsTools())
	assert.Equal(t, "calculator", decision.Calls["call_1"].Name)
	assert.JSONEq(t, `{"op":"add"}`, string(decision.Calls["call_1"].Args))

	assert.Equal(t, "auto", raw["tool_choice"])
	tools, ok := raw["tools"].([]interface{})
	require.True(t, ok)
	require.Len(t, tools, 1)
}

func sseHandler(frames ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, frame := range frames {
			_, _ = fmt.Fprintf(w, "data: %s\n\n", frame)
		}
	}
}

func drainStream(t *testing.T, stream llm.DecisionStream) (string, conversation.ToolCalls) {
	t.Helper()
	var text strings.Builder
	var calls conversation.ToolCalls
	for {
		decision, err := stream.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		text.WriteString(decision.Text)
		if decision.RequestsTools() {
			calls = decision.Calls
		}
	}
	return text.String(), calls
}

func TestCompleteStreamAccumulatesText(t *testing.T) {
	server := httptest.NewServer(sseHandler(
		`{"choices":[{"delta":{"role":"assistant"}}]}`,
		`{"choices":[{"delta":{"content":"str"}}]}`,
		`{"choices":[{"delta":{"content":"eamed"}}]}`,
		`{"choices":[{"delta":{},"finish_reason":"stop"}]}`,
		`[DONE]`,
	))
	defer server.Close()

	client := NewClient("test-key", "test-model", WithBaseURL(server.URL))
	stream, err := client.CompleteStream(context.Background(), conversation.Conversation{
		conversation.NewUserMessage("hi"),
	}, nil, nil)
	require.NoError(t, err)
	defer func() {
		_ = stream.Close()
	}()

	text, calls := drainStream(t, stream)
	assert.Equal(t, "streamed", text)
	assert.Nil(t, calls)
}

func TestCompleteStreamReassemblesToolCalls(t *testing.T) {
	server := httptest.NewServer(sseHandler(
		`{"choices":[{"delta":{"tool_calls":[{"index":0,"id":"call_1","type":"function","function":{"name":"calculator","arguments":""}}]}}]}`,
		`{"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"{\"op\":"}}]}}]}`,
		`{"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"\"add\"}"}}]}}]}`,
		`{"choices":[{"delta":{},"finish_reason":"tool_calls"}]}`,
		`[DONE]`,
	))
	defer server.Close()

	client := NewClient("test-key", "test-model", WithBaseURL(server.URL))
	stream, err := client.CompleteStream(context.Background(), conversation.Conversation{
		conversation.NewUserMessage("1+2?"),
	}, []llm.ToolSpec{{Name: "calculator"}}, nil)
	require.NoError(t, err)
	defer func() {
		_ = stream.Close()
	}()

	_, calls := drainStream(t, stream)
	require.Len(t, calls, 1)
	assert.Equal(t, "calculator", calls["call_1"].Name)
	assert.JSONEq(t, `{"op":"add"}`, string(calls["call_1"].Args))
}
