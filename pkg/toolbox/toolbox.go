// Package toolbox turns Go functions into chat completion tools: it derives
// the parameter schema from the argument struct, validates the arguments the
// model produced against it, and calls the function.
package toolbox

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/pkg/errors"
	go_openai "github.com/sashabaranov/go-openai"
	"github.com/xeipuuv/gojsonschema"
)

var (
	ErrUnknownTool = errors.New("unknown tool")

	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
)

// ArgumentError is returned by Execute when the arguments do not match the
// tool's schema.
type ArgumentError struct {
	Tool     string
	Problems []string
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("invalid arguments for tool %s: %s", e.Tool, strings.Join(e.Problems, "; "))
}

type tool struct {
	name        string
	description string
	fn          reflect.Value
	argType     reflect.Type
	withContext bool
	withError   bool
	parameters  json.RawMessage
	validator   *gojsonschema.Schema
}

// Toolbox is a set of named tools. Register tools before handing the toolbox
// to concurrent callers, Execute itself is safe for concurrent use.
type Toolbox struct {
	tools     map[string]*tool
	order     []string
	reflector *jsonschema.Reflector
}

func New() *Toolbox {
	return &Toolbox{
		tools: map[string]*tool{},
		reflector: &jsonschema.Reflector{
			DoNotReference: true,
			ExpandedStruct: true,
			Anonymous:      true,
		},
	}
}

// Register adds fn under name. fn takes a struct argument, optionally
// preceded by a context.Context, and returns a result, optionally followed by
// an error:
//
//	func(ctx context.Context, args WeatherArgs) (Weather, error)
//
// The description defaults to the one found in the argument schema.
// Registering a name again replaces the earlier tool.
func (tb *Toolbox) Register(name string, description string, fn interface{}) error {
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func {
		return errors.Errorf("tool %s is not a function", name)
	}
	t := &tool{name: name, description: description, fn: v}

	ft := v.Type()
	switch {
	case ft.NumIn() == 1:
		t.argType = ft.In(0)
	case ft.NumIn() == 2 && ft.In(0) == contextType:
		t.withContext = true
		t.argType = ft.In(1)
	default:
		return errors.Errorf("tool %s must take one argument struct, optionally after a context", name)
	}
	if t.argType.Kind() != reflect.Struct {
		return errors.Errorf("tool %s argument must be a struct, got %s", name, t.argType)
	}

	switch {
	case ft.NumOut() == 1 && ft.Out(0) != errorType:
	case ft.NumOut() == 2 && ft.Out(1) == errorType:
		t.withError = true
	default:
		return errors.Errorf("tool %s must return a result, optionally followed by an error", name)
	}

	schema := tb.reflector.Reflect(reflect.New(t.argType).Elem().Interface())
	schema.Version = ""
	if t.description == "" {
		t.description = schema.Description
	}
	raw, err := json.Marshal(schema)
	if err != nil {
		return errors.Wrapf(err, "failed to marshal schema for tool %s", name)
	}
	t.parameters = raw

	t.validator, err = gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return errors.Wrapf(err, "failed to compile schema for tool %s", name)
	}

	if _, exists := tb.tools[name]; !exists {
		tb.order = append(tb.order, name)
	}
	tb.tools[name] = t
	return nil
}

func (tb *Toolbox) Has(name string) bool {
	_, ok := tb.tools[name]
	return ok
}

// Names returns the tool names in registration order.
func (tb *Toolbox) Names() []string {
	return append([]string(nil), tb.order...)
}

// Tools returns the definitions to send as the request's tools.
func (tb *Toolbox) Tools() []go_openai.Tool {
	ret := make([]go_openai.Tool, 0, len(tb.order))
	for _, name := range tb.order {
		t := tb.tools[name]
		ret = append(ret, go_openai.Tool{
			Type: go_openai.ToolTypeFunction,
			Function: &go_openai.FunctionDefinition{
				Name:        t.name,
				Description: t.description,
				Parameters:  t.parameters,
			},
		})
	}
	return ret
}

// Execute runs the tool named by call and returns its result as message
// content: strings as they are, anything else JSON encoded.
func (tb *Toolbox) Execute(ctx context.Context, call go_openai.ToolCall) (string, error) {
	t, ok := tb.tools[call.Function.Name]
	if !ok {
		return "", errors.Wrapf(ErrUnknownTool, "%q", call.Function.Name)
	}

	args := strings.TrimSpace(call.Function.Arguments)
	if args == "" {
		args = "{}"
	}

	result, err := t.validator.Validate(gojsonschema.NewStringLoader(args))
	if err != nil {
		return "", errors.Wrapf(err, "could not parse arguments for tool %s", t.name)
	}
	if !result.Valid() {
		argErr := &ArgumentError{Tool: t.name}
		for _, desc := range result.Errors() {
			argErr.Problems = append(argErr.Problems, desc.String())
		}
		return "", argErr
	}

	argPtr := reflect.New(t.argType)
	if err := json.Unmarshal([]byte(args), argPtr.Interface()); err != nil {
		return "", errors.Wrapf(err, "could not decode arguments for tool %s", t.name)
	}

	in := make([]reflect.Value, 0, 2)
	if t.withContext {
		in = append(in, reflect.ValueOf(ctx))
	}
	in = append(in, argPtr.Elem())

	out := t.fn.Call(in)
	if t.withError && !out[1].IsNil() {
		return "", out[1].Interface().(error)
	}

	switch v := out[0].Interface().(type) {
	case string:
		return v, nil
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return "", errors.Wrapf(err, "could not encode result of tool %s", t.name)
		}
		return string(b), nil
	}
}
