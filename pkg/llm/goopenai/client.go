// Package goopenai adapts the go-openai SDK to the decision protocol. Prefer
// it when talking to OpenAI itself; the sibling openai package speaks the
// bare wire contract for compatible endpoints.
package goopenai

import (
	"context"
	"encoding/json"
	"io"
	"sort"

	"github.com/pkg/errors"
	go_openai "github.com/sashabaranov/go-openai"

	"github.com/ForSeason/chimerai/pkg/conversation"
	"github.com/ForSeason/chimerai/pkg/llm"
)

type Client struct {
	client      *go_openai.Client
	model       string
	baseURL     string
	temperature float32
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

func WithTemperature(temperature float64) Option {
	return func(c *Client) {
		c.temperature = float32(temperature)
	}
}

func NewClient(apiKey string, model string, options ...Option) *Client {
	ret := &Client{
		model:       model,
		temperature: 0.7,
	}
	for _, option := range options {
		option(ret)
	}

	config := go_openai.DefaultConfig(apiKey)
	if ret.baseURL != "" {
		config.BaseURL = ret.baseURL
	}
	ret.client = go_openai.NewClientWithConfig(config)

	return ret
}

var _ llm.Client = (*Client)(nil)

func (c *Client) Complete(
	ctx context.Context,
	messages conversation.Conversation,
	tools []llm.ToolSpec,
	maxTokens *int,
) (llm.Decision, error) {
	resp, err := c.client.CreateChatCompletion(ctx, c.buildRequest(messages, tools, maxTokens, false))
	if err != nil {
		return llm.Decision{}, errors.Wrap(err, "chat completion failed")
	}

	if len(resp.Choices) == 0 {
		return llm.Respond(""), nil
	}

	message := resp.Choices[0].Message
	calls := make(conversation.ToolCalls)
	for _, call := range message.ToolCalls {
		if call.ID == "" || call.Function.Name == "" {
			continue
		}
		args := json.RawMessage(call.Function.Arguments)
		if !json.Valid(args) {
			args = json.RawMessage("{}")
		}
		typ := string(call.Type)
		if typ == "" {
			typ = "function"
		}
		calls[call.ID] = conversation.ToolCallArgs{
			Type: typ,
			Name: call.Function.Name,
			Args: args,
		}
	}

	if len(calls) == 0 {
		return llm.Respond(message.Content), nil
	}
	return llm.ExecuteTool(message.Content, calls), nil
}

func (c *Client) CompleteStream(
	ctx context.Context,
	messages conversation.Conversation,
	tools []llm.ToolSpec,
	maxTokens *int,
) (llm.DecisionStream, error) {
	stream, err := c.client.CreateChatCompletionStream(ctx, c.buildRequest(messages, tools, maxTokens, true))
	if err != nil {
		return nil, errors.Wrap(err, "could not open completion stream")
	}

	return &decisionStream{
		stream: stream,
		merger: llm.NewToolCallMerger(),
	}, nil
}

func (c *Client) buildRequest(
	messages conversation.Conversation,
	tools []llm.ToolSpec,
	maxTokens *int,
	stream bool,
) go_openai.ChatCompletionRequest {
	req := go_openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    wireMessages(messages),
		Temperature: c.temperature,
		Stream:      stream,
	}
	if len(tools) > 0 {
		req.Tools = wireTools(tools)
		req.ToolChoice = "auto"
	}
	if maxTokens != nil {
		req.MaxTokens = *maxTokens
	}
	return req
}

type decisionStream struct {
	stream *go_openai.ChatCompletionStream
	merger *llm.ToolCallMerger
}

var _ llm.DecisionStream = (*decisionStream)(nil)

func (s *decisionStream) Next() (llm.Decision, error) {
	for {
		response, err := s.stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return llm.Decision{}, io.EOF
			}
			return llm.Decision{}, errors.Wrap(err, "stream receive failed")
		}

		// Choice-less frames and empty deltas carry nothing; keep scanning.
		if len(response.Choices) == 0 {
			continue
		}

		delta := response.Choices[0].Delta
		if len(delta.ToolCalls) > 0 {
			deltas := make([]llm.ToolCallDelta, 0, len(delta.ToolCalls))
			for _, call := range delta.ToolCalls {
				deltas = append(deltas, llm.ToolCallDelta{
					Index:     call.Index,
					ID:        call.ID,
					Type:      string(call.Type),
					Name:      call.Function.Name,
					Arguments: call.Function.Arguments,
				})
			}
			s.merger.AddDeltas(deltas...)
			return llm.ExecuteTool(delta.Content, s.merger.Calls()), nil
		}
		if delta.Content == "" {
			continue
		}

		return llm.Respond(delta.Content), nil
	}
}

func (s *decisionStream) Close() error {
	s.stream.Close()
	return nil
}

func wireMessages(messages conversation.Conversation) []go_openai.ChatCompletionMessage {
	ret := make([]go_openai.ChatCompletionMessage, 0, len(messages))
	for _, message := range messages {
		wire := go_openai.ChatCompletionMessage{Content: message.Content}
		switch message.Role {
		case conversation.RoleDeveloper, conversation.RoleSystem:
			wire.Role = go_openai.ChatMessageRoleSystem
		case conversation.RoleUser:
			wire.Role = go_openai.ChatMessageRoleUser
		case conversation.RoleAssistant:
			wire.Role = go_openai.ChatMessageRoleAssistant
			wire.ToolCalls = wireToolCalls(message.ToolCalls)
		case conversation.RoleTool:
			wire.Role = go_openai.ChatMessageRoleTool
			wire.ToolCallID = message.ToolCallID
		default:
			continue
		}
		ret = append(ret, wire)
	}
	return ret
}

func wireToolCalls(calls conversation.ToolCalls) []go_openai.ToolCall {
	if len(calls) == 0 {
		return nil
	}
	ids := make([]string, 0, len(calls))
	for id := range calls {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	ret := make([]go_openai.ToolCall, 0, len(ids))
	for _, id := range ids {
		call := calls[id]
		ret = append(ret, go_openai.ToolCall{
			ID:   id,
			Type: go_openai.ToolType(call.Type),
			Function: go_openai.FunctionCall{
				Name:      call.Name,
				Arguments: string(call.Args),
			},
		})
	}
	return ret
}

func wireTools(tools []llm.ToolSpec) []go_openai.Tool {
	ret := make([]go_openai.Tool, 0, len(tools))
	for _, tool := range tools {
		ret = append(ret, go_openai.Tool{
			Type: go_openai.ToolTypeFunction,
			Function: go_openai.FunctionDefinition{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  tool.Parameters,
			},
		})
	}
	return ret
}
