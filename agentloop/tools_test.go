package agentloop

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToolRegistryKeepsRegistrationOrder(t *testing.T) {
	reg := NewToolRegistry()
	reg.Register(staticTool("get_weather", ""))
	reg.Register(staticTool("calculate", ""))
	reg.Register(staticTool("read_file", ""))
	reg.Register(staticTool("calculate", "replaced"))

	assert.Equal(t, []string{"get_weather", "calculate", "read_file"}, reg.Names())
	assert.Equal(t, 3, reg.Count())

	out, err := reg.Get("calculate").Executor(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "replaced", out)

	defs := reg.ToUnifiedLLMToolDefs()
	require.Len(t, defs, 3)
	assert.Equal(t, "get_weather", defs[0].Name)
	assert.Equal(t, "object", defs[0].Parameters["type"])

	reg.Unregister("calculate")
	assert.Nil(t, reg.Get("calculate"))
	assert.Equal(t, []string{"get_weather", "read_file"}, reg.Names())
}

func TestParseToolArguments(t *testing.T) {
	args, err := ParseToolArguments(json.RawMessage(`{"location":"Paris","days":3,"tags":["a","b"]}`))
	require.NoError(t, err)

	loc, ok := GetStringArg(args, "location")
	assert.True(t, ok)
	assert.Equal(t, "Paris", loc)

	days, ok := GetIntArg(args, "days")
	assert.True(t, ok)
	assert.Equal(t, 3, days)

	tags, ok := GetStringSliceArg(args, "tags")
	assert.True(t, ok)
	assert.Equal(t, []string{"a", "b"}, tags)

	_, ok = GetStringArg(args, "days")
	assert.False(t, ok)

	empty, err := ParseToolArguments(nil)
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = ParseToolArguments(json.RawMessage(`not json`))
	assert.Error(t, err)
}

func TestGetStringSliceArgAcceptsSingleString(t *testing.T) {
	list, ok := GetStringSliceArg(map[string]interface{}{"to": "a@example.com"}, "to")
	assert.True(t, ok)
	assert.Equal(t, []string{"a@example.com"}, list)

	_, ok = GetStringSliceArg(map[string]interface{}{"to": []interface{}{1}}, "to")
	assert.False(t, ok)
}
