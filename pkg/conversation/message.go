package conversation

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleDeveloper Role = "developer"
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCallArgs describes one requested tool invocation as decided by the
// model: the call kind (currently always "function"), the registered tool
// name, and the structured arguments. Arguments are schema-less at this
// layer; the executor validates them against the tool's schema if asked to.
type ToolCallArgs struct {
	Type string          `json:"tool_type"`
	Name string          `json:"tool_name"`
	Args json.RawMessage `json:"args"`
}

// ToolCalls maps a provider-assigned call-id to the requested call. The
// call-id correlates an assistant's request with the Tool message answering
// it.
type ToolCalls map[string]ToolCallArgs

// Clone returns a deep copy. Args bytes are copied so callers can hold on to
// a snapshot while a stream keeps merging fragments.
func (tc ToolCalls) Clone() ToolCalls {
	if tc == nil {
		return nil
	}
	ret := make(ToolCalls, len(tc))
	for id, call := range tc {
		args := make(json.RawMessage, len(call.Args))
		copy(args, call.Args)
		ret[id] = ToolCallArgs{Type: call.Type, Name: call.Name, Args: args}
	}
	return ret
}

// Message is a single entry in a conversation history. Exactly one role per
// message; ToolCalls is only set on assistant messages that request tools,
// ToolCallID only on tool messages.
type Message struct {
	ID   uuid.UUID `json:"id"`
	Time time.Time `json:"time"`

	Role       Role      `json:"role"`
	Content    string    `json:"content"`
	ToolCalls  ToolCalls `json:"tool_calls,omitempty"`
	ToolCallID string    `json:"tool_call_id,omitempty"`
}

type MessageOption func(*Message)

func WithID(id uuid.UUID) MessageOption {
	return func(message *Message) {
		message.ID = id
	}
}

func WithTime(t time.Time) MessageOption {
	return func(message *Message) {
		message.Time = t
	}
}

func NewMessage(role Role, content string, options ...MessageOption) *Message {
	ret := &Message{
		ID:      uuid.New(),
		Time:    time.Now(),
		Role:    role,
		Content: content,
	}

	for _, option := range options {
		option(ret)
	}

	return ret
}

func NewDeveloperMessage(content string, options ...MessageOption) *Message {
	return NewMessage(RoleDeveloper, content, options...)
}

func NewSystemMessage(content string, options ...MessageOption) *Message {
	return NewMessage(RoleSystem, content, options...)
}

func NewUserMessage(content string, options ...MessageOption) *Message {
	return NewMessage(RoleUser, content, options...)
}

// NewAssistantMessage carries the model's text and, when the model requested
// tools, the call map. calls may be nil for a plain reply.
func NewAssistantMessage(content string, calls ToolCalls, options ...MessageOption) *Message {
	msg := NewMessage(RoleAssistant, content, options...)
	msg.ToolCalls = calls
	return msg
}

// NewToolMessage answers the assistant tool call identified by toolCallID.
func NewToolMessage(toolCallID string, content string, options ...MessageOption) *Message {
	msg := NewMessage(RoleTool, content, options...)
	msg.ToolCallID = toolCallID
	return msg
}

func (m *Message) View() string {
	switch m.Role {
	case RoleAssistant:
		if len(m.ToolCalls) > 0 {
			names := make([]string, 0, len(m.ToolCalls))
			for _, call := range m.ToolCalls {
				names = append(names, call.Name)
			}
			return fmt.Sprintf("[%s] (calls: %s): %s", m.Role, strings.Join(names, ", "), strings.TrimRight(m.Content, "\n"))
		}
	case RoleTool:
		return fmt.Sprintf("[%s] (%s): %s", m.Role, m.ToolCallID, strings.TrimRight(m.Content, "\n"))
	case RoleDeveloper, RoleSystem, RoleUser:
	}
	return fmt.Sprintf("[%s]: %s", m.Role, strings.TrimRight(m.Content, "\n"))
}

// Conversation is an ordered list of messages, oldest first.
type Conversation []*Message

// GetSinglePrompt concatenates the content of all messages. Useful for
// completion-only providers and for debugging.
func (c Conversation) GetSinglePrompt() string {
	if len(c) == 0 {
		return ""
	}

	if len(c) == 1 {
		return c[0].Content
	}

	prompt := ""
	for _, message := range c {
		prompt += message.Content + "\n"
	}

	return prompt
}

// LastMessage returns the newest message, or nil for an empty conversation.
func (c Conversation) LastMessage() *Message {
	if len(c) == 0 {
		return nil
	}
	return c[len(c)-1]
}
