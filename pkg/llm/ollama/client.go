// Package ollama drives a local ollama server. The chat endpoint has no tool
// calling, so this backend only produces text decisions; tool specs handed to
// it are dropped with a warning instead of failing the conversation.
package ollama

import (
	"context"
	"io"
	"strings"
	"sync"

	"github.com/jmorganca/ollama/api"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/ForSeason/chimerai/pkg/conversation"
	"github.com/ForSeason/chimerai/pkg/llm"
)

type Client struct {
	client      *api.Client
	model       string
	temperature float64

	warnTools sync.Once
}

type Option func(*Client)

func WithTemperature(temperature float64) Option {
	return func(c *Client) {
		c.temperature = temperature
	}
}

func NewClient(client *api.Client, model string, options ...Option) *Client {
	ret := &Client{
		client:      client,
		model:       model,
		temperature: 0.7,
	}
	for _, option := range options {
		option(ret)
	}
	return ret
}

// NewClientFromEnvironment connects to the server named by OLLAMA_HOST,
// falling back to the default local address.
func NewClientFromEnvironment(model string, options ...Option) (*Client, error) {
	apiClient, err := api.ClientFromEnvironment()
	if err != nil {
		return nil, errors.Wrap(err, "could not create ollama client")
	}
	return NewClient(apiClient, model, options...), nil
}

var _ llm.Client = (*Client)(nil)

func (c *Client) Complete(
	ctx context.Context,
	messages conversation.Conversation,
	tools []llm.ToolSpec,
	maxTokens *int,
) (llm.Decision, error) {
	req := c.buildRequest(messages, tools, maxTokens, false)

	var content strings.Builder
	err := c.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		content.WriteString(resp.Message.Content)
		return nil
	})
	if err != nil {
		return llm.Decision{}, errors.Wrap(err, "ollama chat failed")
	}

	return llm.Respond(content.String()), nil
}

func (c *Client) CompleteStream(
	ctx context.Context,
	messages conversation.Conversation,
	tools []llm.ToolSpec,
	maxTokens *int,
) (llm.DecisionStream, error) {
	req := c.buildRequest(messages, tools, maxTokens, true)

	cancellableCtx, cancel := context.WithCancel(ctx)
	fragments := make(chan fragment)

	go func() {
		defer close(fragments)

		err := c.client.Chat(cancellableCtx, req, func(resp api.ChatResponse) error {
			// The done frame repeats no content; empty chunks carry nothing.
			if resp.Message.Content == "" {
				return nil
			}
			select {
			case fragments <- fragment{decision: llm.Respond(resp.Message.Content)}:
				return nil
			case <-cancellableCtx.Done():
				return cancellableCtx.Err()
			}
		})
		if err != nil && cancellableCtx.Err() == nil {
			select {
			case fragments <- fragment{err: errors.Wrap(err, "ollama chat failed")}:
			case <-cancellableCtx.Done():
			}
		}
	}()

	return &decisionStream{
		fragments: fragments,
		cancel:    cancel,
	}, nil
}

func (c *Client) buildRequest(
	messages conversation.Conversation,
	tools []llm.ToolSpec,
	maxTokens *int,
	stream bool,
) *api.ChatRequest {
	if len(tools) > 0 {
		c.warnTools.Do(func() {
			log.Warn().
				Str("model", c.model).
				Int("tools", len(tools)).
				Msg("ollama chat API does not support tool calling, dropping tool specs")
		})
	}

	options := map[string]interface{}{
		"temperature": c.temperature,
	}
	if maxTokens != nil {
		options["num_predict"] = *maxTokens
	}

	return &api.ChatRequest{
		Model:    c.model,
		Messages: wireMessages(messages),
		Stream:   &stream,
		Options:  options,
	}
}

type fragment struct {
	decision llm.Decision
	err      error
}

type decisionStream struct {
	fragments chan fragment
	cancel    context.CancelFunc
}

var _ llm.DecisionStream = (*decisionStream)(nil)

func (s *decisionStream) Next() (llm.Decision, error) {
	f, ok := <-s.fragments
	if !ok {
		return llm.Decision{}, io.EOF
	}
	if f.err != nil {
		return llm.Decision{}, f.err
	}
	return f.decision, nil
}

func (s *decisionStream) Close() error {
	s.cancel()
	for range s.fragments {
		// drain until the producer notices cancellation
	}
	return nil
}

func wireMessages(messages conversation.Conversation) []api.Message {
	ret := make([]api.Message, 0, len(messages))
	for _, message := range messages {
		var role string
		switch message.Role {
		case conversation.RoleDeveloper, conversation.RoleSystem:
			role = "system"
		case conversation.RoleUser:
			role = "user"
		case conversation.RoleAssistant:
			role = "assistant"
		case conversation.RoleTool:
			// Tool transcripts have no upstream representation. Fold them
			// into user turns so the model still sees the outcome.
			ret = append(ret, api.Message{
				Role:    "user",
				Content: "Tool result: " + message.Content,
			})
			continue
		default:
			continue
		}
		ret = append(ret, api.Message{
			Role:    role,
			Content: message.Content,
		})
	}
	return ret
}
