package tools

import (
	"context"
	"encoding/json"
	"reflect"

	"github.com/invopop/jsonschema"
	"github.com/pkg/errors"
)

// Tool is something the model can call by name. Execute receives the raw JSON
// argument payload the model produced and returns a textual result that is fed
// back to the model as a tool message.
type Tool interface {
	Name() string
	Description() string
	// Schema describes the tool's argument object. A nil schema means the
	// tool takes arbitrary (or no) arguments.
	Schema() *jsonschema.Schema
	Execute(ctx context.Context, args json.RawMessage) (string, error)
}

// FuncTool wraps a plain Go function as a Tool. The argument schema is
// reflected from the function's input struct.
type FuncTool struct {
	name        string
	description string
	schema      *jsonschema.Schema
	call        func(ctx context.Context, args json.RawMessage) (string, error)
}

var (
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
)

// NewToolFromFunc creates a Tool from a Go function. Supported signatures:
//
//	func(Input) (Result, error)
//	func(context.Context, Input) (Result, error)
//	func() (Result, error)
//	func(context.Context) (Result, error)
//
// Input must be a struct that can be unmarshaled from the model's JSON
// arguments. A string Result is used verbatim, any other Result is marshaled
// to JSON.
func NewToolFromFunc(name string, description string, fn interface{}) (*FuncTool, error) {
	funcType := reflect.TypeOf(fn)
	if funcType == nil || funcType.Kind() != reflect.Func {
		return nil, errors.New("provided value is not a function")
	}

	if funcType.NumOut() != 2 || !funcType.Out(1).Implements(errorType) {
		return nil, errors.New("function must return (result, error)")
	}

	inputType, err := funcInputType(funcType)
	if err != nil {
		return nil, err
	}

	var schema *jsonschema.Schema
	if inputType != nil {
		schema = reflectSchema(inputType)
	}

	funcValue := reflect.ValueOf(fn)
	call := func(ctx context.Context, args json.RawMessage) (string, error) {
		in := []reflect.Value{}
		if funcType.NumIn() > 0 && funcType.In(0) == contextType {
			in = append(in, reflect.ValueOf(ctx))
		}
		if inputType != nil {
			input := reflect.New(inputType)
			if len(args) > 0 {
				if err := json.Unmarshal(args, input.Interface()); err != nil {
					return "", errors.Wrap(err, "failed to unmarshal arguments")
				}
			}
			in = append(in, input.Elem())
		}

		results := funcValue.Call(in)
		if errValue := results[1].Interface(); errValue != nil {
			return "", errValue.(error)
		}
		return stringifyResult(results[0].Interface())
	}

	return &FuncTool{
		name:        name,
		description: description,
		schema:      schema,
		call:        call,
	}, nil
}

func (t *FuncTool) Name() string {
	return t.name
}

func (t *FuncTool) Description() string {
	return t.description
}

func (t *FuncTool) Schema() *jsonschema.Schema {
	return t.schema
}

func (t *FuncTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	return t.call(ctx, args)
}

var _ Tool = (*FuncTool)(nil)

func funcInputType(funcType reflect.Type) (reflect.Type, error) {
	switch funcType.NumIn() {
	case 0:
		return nil, nil
	case 1:
		if funcType.In(0) == contextType {
			return nil, nil
		}
		return funcType.In(0), nil
	case 2:
		if funcType.In(0) != contextType {
			return nil, errors.New("two-arg tool function must be (context.Context, Input)")
		}
		return funcType.In(1), nil
	default:
		return nil, errors.New("function must take at most (context.Context, Input)")
	}
}

func reflectSchema(inputType reflect.Type) *jsonschema.Schema {
	inputInstance := reflect.New(inputType).Elem().Interface()

	reflector := jsonschema.Reflector{
		// Expand definitions inline instead of using $refs
		DoNotReference: true,
	}
	schema := reflector.Reflect(inputInstance)

	// Providers expect a bare parameter object, not a full schema document
	schema.Version = ""
	schema.ID = ""

	// Providers require the root schema to be an object
	if schema.Type == "" && schema.Ref == "" {
		schema.Type = "object"
	}

	return schema
}

func stringifyResult(result interface{}) (string, error) {
	if s, ok := result.(string); ok {
		return s, nil
	}
	b, err := json.Marshal(result)
	if err != nil {
		return "", errors.Wrap(err, "failed to marshal tool result")
	}
	return string(b), nil
}
