package tools

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/invopop/jsonschema"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// echoTool returns the provided text and fails when it is missing.
type echoTool struct{}

func (echoTool) Name() string {
	return "echo"
}

func (echoTool) Description() string {
	return "Echoes back the provided text"
}

func (echoTool) Schema() *jsonschema.Schema {
	return nil
}

func (echoTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	var payload struct {
		Text *string `json:"text"`
	}
	if len(args) > 0 {
		if err := json.Unmarshal(args, &payload); err != nil {
			return "", err
		}
	}
	if payload.Text == nil {
		return "", errors.New("Missing 'text' argument")
	}
	return *payload.Text, nil
}

type addArgs struct {
	Num1 float64 `json:"num1"`
	Num2 float64 `json:"num2"`
}

func newAddTool(t *testing.T) *FuncTool {
	t.Helper()
	tool, err := NewToolFromFunc("add", "Adds two numbers", func(args addArgs) (string, error) {
		return jsonFloat(args.Num1 + args.Num2), nil
	})
	require.NoError(t, err)
	return tool
}

func jsonFloat(f float64) string {
	b, _ := json.Marshal(f)
	return string(b)
}

func TestNewToolFromFuncReflectsSchema(t *testing.T) {
	tool := newAddTool(t)

	assert.Equal(t, "add", tool.Name())
	assert.Equal(t, "Adds two numbers", tool.Description())

	schema := tool.Schema()
	require.NotNil(t, schema)
	assert.Equal(t, "object", schema.Type)

	b, err := json.Marshal(schema)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"num1"`)
	assert.Contains(t, string(b), `"num2"`)
	assert.NotContains(t, string(b), `$schema`)
}

func TestNewToolFromFuncExecute(t *testing.T) {
	tool := newAddTool(t)

	out, err := tool.Execute(context.Background(), json.RawMessage(`{"num1": 1, "num2": 2}`))
	require.NoError(t, err)
	assert.Equal(t, "3", out)
}

func TestNewToolFromFuncWithContext(t *testing.T) {
	type key struct{}
	tool, err := NewToolFromFunc("probe", "Reads a context value", func(ctx context.Context, args struct{}) (string, error) {
		v, _ := ctx.Value(key{}).(string)
		return v, nil
	})
	require.NoError(t, err)

	ctx := context.WithValue(context.Background(), key{}, "hello")
	out, err := tool.Execute(ctx, json.RawMessage(`{}`))
	require.NoError(t, err)
	assert.Equal(t, "hello", out)
}

func TestNewToolFromFuncMarshalsNonStringResults(t *testing.T) {
	tool, err := NewToolFromFunc("pair", "Returns a pair", func() (map[string]int, error) {
		return map[string]int{"a": 1}, nil
	})
	require.NoError(t, err)

	out, err := tool.Execute(context.Background(), nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a": 1}`, out)
}

func TestNewToolFromFuncRejectsBadSignatures(t *testing.T) {
	_, err := NewToolFromFunc("bad", "", 42)
	require.Error(t, err)

	_, err = NewToolFromFunc("bad", "", func() string { return "" })
	require.Error(t, err)

	_, err = NewToolFromFunc("bad", "", func(a, b string) (string, error) { return "", nil })
	require.Error(t, err)
}

func TestNewToolFromFuncPropagatesErrors(t *testing.T) {
	tool, err := NewToolFromFunc("fail", "Always fails", func() (string, error) {
		return "", errors.New("boom")
	})
	require.NoError(t, err)

	_, err = tool.Execute(context.Background(), nil)
	require.EqualError(t, err, "boom")
}

func TestRegistryRegisterAndGet(t *testing.T) {
	registry := NewInMemoryRegistry()

	require.NoError(t, registry.RegisterTool("echo", echoTool{}))
	assert.True(t, registry.HasTool("echo"))
	assert.Equal(t, 1, registry.Count())

	tool, err := registry.GetTool("echo")
	require.NoError(t, err)
	assert.Equal(t, "echo", tool.Name())

	_, err = registry.GetTool("missing")
	require.Error(t, err)
}

func TestRegistryRejectsInvalidRegistrations(t *testing.T) {
	registry := NewInMemoryRegistry()

	require.Error(t, registry.RegisterTool("", echoTool{}))
	require.Error(t, registry.RegisterTool("echo", nil))
	require.Error(t, registry.RegisterTool("other-name", echoTool{}))
}

func TestRegistryUnregister(t *testing.T) {
	registry := NewInMemoryRegistry()
	require.NoError(t, registry.RegisterTool("echo", echoTool{}))

	require.NoError(t, registry.UnregisterTool("echo"))
	assert.False(t, registry.HasTool("echo"))
	require.Error(t, registry.UnregisterTool("echo"))
}

func TestRegistryCloneIsIndependent(t *testing.T) {
	registry := NewInMemoryRegistry()
	require.NoError(t, registry.RegisterTool("echo", echoTool{}))

	cloned := registry.Clone()
	require.NoError(t, registry.UnregisterTool("echo"))

	_, err := cloned.GetTool("echo")
	require.NoError(t, err)
}

func TestRegistryMerge(t *testing.T) {
	registry := NewInMemoryRegistry()
	require.NoError(t, registry.RegisterTool("echo", echoTool{}))

	other := NewInMemoryRegistry()
	require.NoError(t, other.RegisterTool("add", newAddTool(t)))

	merged := registry.Merge(other)
	assert.Len(t, merged.ListTools(), 2)
}
