package llm

import (
	"encoding/json"
	"sort"

	"github.com/ForSeason/chimerai/pkg/conversation"
	"github.com/lithammer/shortuuid/v3"
)

// ToolCallDelta is one streamed fragment of a tool call. Providers interleave
// fragments of concurrent calls within a stream; Index identifies which call
// a fragment belongs to, the call id and name arrive on the first fragment,
// and Arguments accumulates across fragments.
type ToolCallDelta struct {
	Index     *int
	ID        string
	Type      string
	Name      string
	Arguments string
}

type mergedToolCall struct {
	id        string
	typ       string
	name      string
	arguments string
}

// ToolCallMerger reconciles streamed tool-call fragments, keyed by stream
// index, into complete calls. Not safe for concurrent use; a stream is
// consumed by a single goroutine.
type ToolCallMerger struct {
	toolCalls map[int]mergedToolCall
}

func NewToolCallMerger() *ToolCallMerger {
	return &ToolCallMerger{
		toolCalls: make(map[int]mergedToolCall),
	}
}

// AddDeltas merges fragments into the accumulated calls. A fragment without
// an index belongs to index 0. A call whose first fragment carries no id is
// assigned a synthetic one, since no later fragment will name it.
func (tcm *ToolCallMerger) AddDeltas(deltas ...ToolCallDelta) {
	for _, delta := range deltas {
		index := 0
		if delta.Index != nil {
			index = *delta.Index
		}
		if existing, found := tcm.toolCalls[index]; found {
			existing.name += delta.Name
			existing.arguments += delta.Arguments
			tcm.toolCalls[index] = existing
			continue
		}
		id := delta.ID
		if id == "" {
			id = "call_" + shortuuid.New()
		}
		typ := delta.Type
		if typ == "" {
			typ = "function"
		}
		tcm.toolCalls[index] = mergedToolCall{
			id:        id,
			typ:       typ,
			name:      delta.Name,
			arguments: delta.Arguments,
		}
	}
}

// Calls returns a snapshot of the calls merged so far, keyed by call id.
// Arguments that do not parse as JSON yet, which is the normal state while a
// call is still streaming, fall back to an empty object. Two indexes carrying
// the same call id collapse to one entry, the highest index winning.
func (tcm *ToolCallMerger) Calls() conversation.ToolCalls {
	indexes := make([]int, 0, len(tcm.toolCalls))
	for index := range tcm.toolCalls {
		indexes = append(indexes, index)
	}
	sort.Ints(indexes)

	ret := make(conversation.ToolCalls, len(tcm.toolCalls))
	for _, index := range indexes {
		call := tcm.toolCalls[index]
		args := json.RawMessage(call.arguments)
		if !json.Valid(args) {
			args = json.RawMessage("{}")
		}
		ret[call.id] = conversation.ToolCallArgs{
			Type: call.typ,
			Name: call.name,
			Args: args,
		}
	}
	return ret
}

// Len reports how many distinct calls have been seen.
func (tcm *ToolCallMerger) Len() int {
	return len(tcm.toolCalls)
}
