package llm

import (
	"github.com/ForSeason/chimerai/pkg/conversation"
	"github.com/invopop/jsonschema"
)

// Decision is the structured outcome of one model round: either a direct
// reply, or a request to execute named tools alongside whatever text the
// model produced so far. A decision is built fresh per round and never
// outlives it.
type Decision struct {
	Text  string
	Calls conversation.ToolCalls
}

// Respond builds a plain-text decision.
func Respond(text string) Decision {
	return Decision{Text: text}
}

// ExecuteTool builds a decision requesting the given calls. text carries the
// partial assistant content that accompanied the request, often empty.
func ExecuteTool(text string, calls conversation.ToolCalls) Decision {
	return Decision{Text: text, Calls: calls}
}

// RequestsTools reports whether the decision asks for tool execution.
func (d Decision) RequestsTools() bool {
	return len(d.Calls) > 0
}

// ToolSpec is the provider-facing description of a callable tool. Parameters
// follows JSON schema; nil means the tool takes no arguments.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  *jsonschema.Schema
}
