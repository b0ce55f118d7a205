// Package openai speaks the OpenAI chat-completions wire protocol over plain
// net/http. It works against any endpoint implementing the same contract,
// which is how local inference servers and most hosted providers expose
// themselves.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/ForSeason/chimerai/pkg/conversation"
	"github.com/ForSeason/chimerai/pkg/llm"
)

const (
	defaultBaseURL  = "https://api.openai.com/v1"
	completionsPath = "/chat/completions"
	doneSentinel    = "[DONE]"
)

type Client struct {
	apiKey      string
	model       string
	baseURL     string
	temperature float64
	httpClient  *http.Client
}

type Option func(*Client)

// WithBaseURL points the client at a compatible endpoint, e.g. a local
// server or a proxy. The path is appended to it.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

func WithTemperature(temperature float64) Option {
	return func(c *Client) {
		c.temperature = temperature
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func NewClient(apiKey string, model string, options ...Option) *Client {
	ret := &Client{
		apiKey:      apiKey,
		model:       model,
		baseURL:     defaultBaseURL,
		temperature: 0.7,
		httpClient:  &http.Client{Timeout: 10 * time.Minute},
	}
	for _, option := range options {
		option(ret)
	}
	return ret
}

var _ llm.Client = (*Client)(nil)

// Complete sends one non-streaming request and parses the single response.
func (c *Client) Complete(
	ctx context.Context,
	messages conversation.Conversation,
	tools []llm.ToolSpec,
	maxTokens *int,
) (llm.Decision, error) {
	resp, err := c.send(ctx, c.buildRequest(messages, tools, maxTokens, false), false)
	if err != nil {
		return llm.Decision{}, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return llm.Decision{}, errors.Wrap(err, "could not decode completion response")
	}

	if parsed.Usage != nil {
		log.Debug().
			Int("prompt_tokens", parsed.Usage.PromptTokens).
			Int("completion_tokens", parsed.Usage.CompletionTokens).
			Int("total_tokens", parsed.Usage.TotalTokens).
			Msg("completion token usage")
	}

	return decisionFromResponse(parsed), nil
}

// CompleteStream issues the request in streaming mode and returns a lazy
// stream of decision fragments, one per event frame.
func (c *Client) CompleteStream(
	ctx context.Context,
	messages conversation.Conversation,
	tools []llm.ToolSpec,
	maxTokens *int,
) (llm.DecisionStream, error) {
	resp, err := c.send(ctx, c.buildRequest(messages, tools, maxTokens, true), true)
	if err != nil {
		return nil, err
	}

	return &decisionStream{
		body:    resp.Body,
		scanner: NewSSEScanner(resp.Body),
		merger:  llm.NewToolCallMerger(),
	}, nil
}

func (c *Client) buildRequest(
	messages conversation.Conversation,
	tools []llm.ToolSpec,
	maxTokens *int,
	stream bool,
) chatRequest {
	return chatRequest{
		Model:       c.model,
		Messages:    wireMessages(messages),
		Tools:       wireTools(tools),
		ToolChoice:  "auto",
		Temperature: c.temperature,
		Stream:      stream,
		MaxTokens:   maxTokens,
	}
}

func (c *Client) send(ctx context.Context, request chatRequest, stream bool) (*http.Response, error) {
	body, err := json.Marshal(request)
	if err != nil {
		return nil, errors.Wrap(err, "could not marshal request")
	}

	log.Trace().
		Str("model", request.Model).
		Int("messages", len(request.Messages)).
		Int("tools", len(request.Tools)).
		Bool("stream", stream).
		RawJSON("request", body).
		Msg("sending chat completion request")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+completionsPath, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "could not build request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if stream {
		req.Header.Set("Accept", "text/event-stream")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "chat completion request failed")
	}

	if resp.StatusCode != http.StatusOK {
		defer func() {
			_ = resp.Body.Close()
		}()
		transportErr := readTransportError(resp)
		log.Debug().Int("status", resp.StatusCode).Str("message", transportErr.Message).
			Msg("chat completion request rejected")
		return nil, transportErr
	}

	return resp, nil
}

// readTransportError extracts the provider's error payload from a
// non-success response, falling back to the raw body or the HTTP status.
func readTransportError(resp *http.Response) *llm.TransportError {
	ret := &llm.TransportError{StatusCode: resp.StatusCode, Message: resp.Status}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil || len(body) == 0 {
		return ret
	}

	var parsed struct {
		Error chatError `json:"error"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil || parsed.Error.Message == "" {
		if trimmed := strings.TrimSpace(string(body)); trimmed != "" {
			ret.Message = trimmed
		}
		return ret
	}

	ret.Type = parsed.Error.Type
	ret.Message = parsed.Error.Message
	return ret
}

func decisionFromResponse(resp chatResponse) llm.Decision {
	// An empty choices list degrades to an empty reply so the round loop can
	// keep moving instead of failing hard on a non-fatal payload.
	if len(resp.Choices) == 0 {
		return llm.Respond("")
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
		typ := call.Type
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
		return llm.Respond(message.Content)
	}
	return llm.ExecuteTool(message.Content, calls)
}

type decisionStream struct {
	body    io.ReadCloser
	scanner *SSEScanner
	merger  *llm.ToolCallMerger
}

var _ llm.DecisionStream = (*decisionStream)(nil)

// Next parses the next event frame into a decision fragment. Tool-call
// fragments carry the merged call map as reconciled so far; the final one of
// a stream therefore holds the complete set.
func (s *decisionStream) Next() (llm.Decision, error) {
	for s.scanner.Next() {
		data := strings.TrimSpace(s.scanner.Event().Data)
		if data == "" {
			continue
		}
		// The sentinel marks the end of the stream, it is not a frame.
		if data == doneSentinel {
			continue
		}

		var chunk streamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return llm.Decision{}, errors.Wrapf(llm.ErrMalformedFrame, "%s", err.Error())
		}

		// Providers report mid-stream failures as a bare error object in
		// place of a completion chunk.
		if chunk.Error != nil && len(chunk.Choices) == 0 {
			return llm.Decision{}, &llm.TransportError{
				Type:    chunk.Error.Type,
				Message: chunk.Error.Message,
			}
		}
		// Choice-less frames (trailing usage reports) and role-only or
		// empty deltas carry no decision content; keep scanning.
		if len(chunk.Choices) == 0 {
			continue
		}

		choice := chunk.Choices[0]
		if len(choice.Delta.ToolCalls) > 0 {
			deltas := make([]llm.ToolCallDelta, 0, len(choice.Delta.ToolCalls))
			for _, call := range choice.Delta.ToolCalls {
				delta := llm.ToolCallDelta{Index: call.Index, ID: call.ID, Type: call.Type}
				if call.Function != nil {
					delta.Name = call.Function.Name
					delta.Arguments = call.Function.Arguments
				}
				deltas = append(deltas, delta)
			}
			s.merger.AddDeltas(deltas...)
			return llm.ExecuteTool(choice.Delta.Content, s.merger.Calls()), nil
		}
		if choice.Delta.Content == "" {
			continue
		}

		return llm.Respond(choice.Delta.Content), nil
	}

	if err := s.scanner.Err(); err != nil {
		return llm.Decision{}, &llm.TransportError{Message: err.Error(), Cause: err}
	}
	return llm.Decision{}, io.EOF
}

func (s *decisionStream) Close() error {
	return s.body.Close()
}

// wireMessages converts history messages into their wire form. Developer
// messages ride along as system messages, which is what compatible endpoints
// accept.
func wireMessages(messages conversation.Conversation) []chatMessage {
	ret := make([]chatMessage, 0, len(messages))
	for _, message := range messages {
		wire := chatMessage{Content: message.Content}
		switch message.Role {
		case conversation.RoleDeveloper, conversation.RoleSystem:
			wire.Role = "system"
		case conversation.RoleUser:
			wire.Role = "user"
		case conversation.RoleAssistant:
			wire.Role = "assistant"
			wire.ToolCalls = wireToolCalls(message.ToolCalls)
		case conversation.RoleTool:
			wire.Role = "tool"
			wire.ToolCallID = message.ToolCallID
		default:
			continue
		}
		ret = append(ret, wire)
	}
	return ret
}

func wireToolCalls(calls conversation.ToolCalls) []chatToolCall {
	if len(calls) == 0 {
		return nil
	}
	ids := make([]string, 0, len(calls))
	for id := range calls {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	ret := make([]chatToolCall, 0, len(ids))
	for _, id := range ids {
		call := calls[id]
		ret = append(ret, chatToolCall{
			ID:   id,
			Type: call.Type,
			Function: chatToolFunction{
				Name:      call.Name,
				Arguments: string(call.Args),
			},
		})
	}
	return ret
}

func wireTools(tools []llm.ToolSpec) []chatTool {
	ret := make([]chatTool, 0, len(tools))
	for _, tool := range tools {
		ret = append(ret, chatTool{
			Type: "function",
			Function: chatToolDefinition{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  tool.Parameters,
			},
		})
	}
	return ret
}
