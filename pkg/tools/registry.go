package tools

import (
	"sync"

	"github.com/pkg/errors"
)

// Registry manages available tools with thread-safe operations.
type Registry interface {
	RegisterTool(name string, tool Tool) error
	GetTool(name string) (Tool, error)
	ListTools() []Tool
	UnregisterTool(name string) error

	Clone() Registry
	Merge(other Registry) Registry
}

// InMemoryRegistry is a thread-safe in-memory implementation of Registry.
type InMemoryRegistry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

func NewInMemoryRegistry() *InMemoryRegistry {
	return &InMemoryRegistry{
		tools: make(map[string]Tool),
	}
}

// RegisterTool registers a tool under name, replacing any previous tool
// registered under the same name.
func (r *InMemoryRegistry) RegisterTool(name string, tool Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if name == "" {
		return errors.New("tool name cannot be empty")
	}
	if tool == nil {
		return errors.New("tool cannot be nil")
	}
	if tool.Name() != "" && tool.Name() != name {
		return errors.Errorf("tool name (%s) does not match registry name (%s)", tool.Name(), name)
	}

	r.tools[name] = tool
	return nil
}

func (r *InMemoryRegistry) GetTool(name string) (Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tool, exists := r.tools[name]
	if !exists {
		return nil, errors.Errorf("tool not found: %s", name)
	}

	return tool, nil
}

func (r *InMemoryRegistry) ListTools() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tools := make([]Tool, 0, len(r.tools))
	for _, tool := range r.tools {
		tools = append(tools, tool)
	}

	return tools
}

func (r *InMemoryRegistry) UnregisterTool(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[name]; !exists {
		return errors.Errorf("tool not found: %s", name)
	}

	delete(r.tools, name)
	return nil
}

func (r *InMemoryRegistry) Clone() Registry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cloned := NewInMemoryRegistry()
	for name, tool := range r.tools {
		cloned.tools[name] = tool
	}

	return cloned
}

// Merge creates a new registry containing tools from both registries. On
// conflicts, tools from the other registry take precedence.
func (r *InMemoryRegistry) Merge(other Registry) Registry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	merged := NewInMemoryRegistry()

	for name, tool := range r.tools {
		merged.tools[name] = tool
	}

	for _, tool := range other.ListTools() {
		merged.tools[tool.Name()] = tool
	}

	return merged
}

func (r *InMemoryRegistry) HasTool(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.tools[name]
	return exists
}

func (r *InMemoryRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.tools)
}

var _ Registry = (*InMemoryRegistry)(nil)
