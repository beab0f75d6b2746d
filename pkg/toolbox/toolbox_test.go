package toolbox

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/pkg/errors"
	go_openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type WeatherArgs struct {
	City string `json:"city" jsonschema:"description=The city name"`
	Unit string `json:"unit,omitempty" jsonschema:"enum=celsius,enum=fahrenheit"`
}

type Weather struct {
	City        string  `json:"city"`
	Temperature float64 `json:"temperature"`
}

func getWeather(args WeatherArgs) Weather {
	return Weather{City: args.City, Temperature: 22.5}
}

type GreetArgs struct {
	Name string `json:"name"`
}

func greet(ctx context.Context, args GreetArgs) (string, error) {
	if args.Name == "nobody" {
		return "", errors.New("nobody to greet")
	}
	return "Hello, " + args.Name + "!", nil
}

func call(name string, args string) go_openai.ToolCall {
	return go_openai.ToolCall{
		ID:       "call_1",
		Type:     go_openai.ToolTypeFunction,
		Function: go_openai.FunctionCall{Name: name, Arguments: args},
	}
}

func newTestToolbox(t *testing.T) *Toolbox {
	tb := New()
	require.NoError(t, tb.Register("get_weather", "Get the weather for a city", getWeather))
	require.NoError(t, tb.Register("greet", "", greet))
	return tb
}

func TestRegisterRejectsBadSignatures(t *testing.T) {
	tests := []struct {
		name string
		fn   interface{}
	}{
		{name: "not a function", fn: 42},
		{name: "no arguments", fn: func() string { return "" }},
		{name: "scalar argument", fn: func(s string) string { return s }},
		{name: "two arguments", fn: func(a, b GreetArgs) string { return "" }},
		{name: "no result", fn: func(GreetArgs) {}},
		{name: "only an error", fn: func(GreetArgs) error { return nil }},
		{name: "second result not an error", fn: func(GreetArgs) (string, string) { return "", "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, New().Register("bad", "", tt.fn))
		})
	}
}

func TestToolsDefinitions(t *testing.T) {
	tb := newTestToolbox(t)

	assert.Equal(t, []string{"get_weather", "greet"}, tb.Names())
	assert.True(t, tb.Has("greet"))
	assert.False(t, tb.Has("missing"))

	tools := tb.Tools()
	require.Len(t, tools, 2)
	assert.Equal(t, go_openai.ToolTypeFunction, tools[0].Type)
	assert.Equal(t, "get_weather", tools[0].Function.Name)
	assert.Equal(t, "Get the weather for a city", tools[0].Function.Description)

	raw, ok := tools[0].Function.Parameters.(json.RawMessage)
	require.True(t, ok)
	var schema map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &schema))
	assert.Equal(t, "object", schema["type"])
	assert.NotContains(t, schema, "$schema")
	props := schema["properties"].(map[string]interface{})
	assert.Contains(t, props, "city")
	assert.Contains(t, props, "unit")
	assert.Equal(t, []interface{}{"city"}, schema["required"])
}

func TestRegisterReplaces(t *testing.T) {
	tb := newTestToolbox(t)
	require.NoError(t, tb.Register("greet", "Say hi", greet))

	assert.Equal(t, []string{"get_weather", "greet"}, tb.Names())
	assert.Equal(t, "Say hi", tb.Tools()[1].Function.Description)
}

func TestExecute(t *testing.T) {
	tb := newTestToolbox(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		call    go_openai.ToolCall
		want    string
		wantErr func(t *testing.T, err error)
	}{
		{
			name: "struct result is json encoded",
			call: call("get_weather", `{"city":"Boston"}`),
			want: `{"city":"Boston","temperature":22.5}`,
		},
		{
			name: "string result is returned as is",
			call: call("greet", `{"name":"Ada"}`),
			want: "Hello, Ada!",
		},
		{
			name: "tool error",
			call: call("greet", `{"name":"nobody"}`),
			wantErr: func(t *testing.T, err error) {
				assert.EqualError(t, err, "nobody to greet")
			},
		},
		{
			name: "unknown tool",
			call: call("launch", `{}`),
			wantErr: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, ErrUnknownTool)
			},
		},
		{
			name: "missing required argument",
			call: call("get_weather", ``),
			wantErr: func(t *testing.T, err error) {
				var argErr *ArgumentError
				require.ErrorAs(t, err, &argErr)
				assert.Equal(t, "get_weather", argErr.Tool)
				assert.NotEmpty(t, argErr.Problems)
			},
		},
		{
			name: "enum violation",
			call: call("get_weather", `{"city":"Paris","unit":"kelvin"}`),
			wantErr: func(t *testing.T, err error) {
				var argErr *ArgumentError
				assert.ErrorAs(t, err, &argErr)
			},
		},
		{
			name: "arguments are not json",
			call: call("get_weather", `{"city":`),
			wantErr: func(t *testing.T, err error) {
				assert.Error(t, err)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tb.Execute(ctx, tt.call)
			if tt.wantErr != nil {
				require.Error(t, err)
				tt.wantErr(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
