package llm

import (
	"context"

	"github.com/ForSeason/chimerai/pkg/conversation"
)

// Client turns a conversation view into a decision by asking a model
// provider. maxTokens caps the completion length when non-nil; it is passed
// through to the provider untouched.
type Client interface {
	// Complete sends one request and parses one response.
	Complete(ctx context.Context, messages conversation.Conversation, tools []ToolSpec, maxTokens *int) (Decision, error)

	// CompleteStream issues the same request in streaming mode. The returned
	// stream is lazy and forward-only; callers must drain or close it.
	CompleteStream(ctx context.Context, messages conversation.Conversation, tools []ToolSpec, maxTokens *int) (DecisionStream, error)
}

// DecisionStream yields decision fragments as the provider streams them.
//
// Next returns io.EOF once the stream is exhausted. Any other error applies
// to a single fragment: the caller may keep calling Next, and later frames
// may still parse (best-effort streaming). Fragments carrying tool calls
// expose the merged call map as reconciled so far, so the last tool-call
// fragment of a stream holds the complete set.
type DecisionStream interface {
	Next() (Decision, error)
	Close() error
}
