package tools

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/martinemde/chatagent/agentloop"
	"github.com/martinemde/chatagent/store"
)

var fixedNow = time.Date(2026, time.March, 18, 10, 30, 0, 0, time.UTC) // a Wednesday

func testDeps(t *testing.T) Deps {
	t.Helper()
	env := agentloop.NewLocalExecutionEnvironment(t.TempDir())
	require.NoError(t, env.Initialize())

	db, err := store.Open(store.MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	db.SetClock(func() time.Time { return fixedNow })

	return Deps{
		Env:    env,
		DB:     db,
		Now:    func() time.Time { return fixedNow },
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func newTestRegistry(t *testing.T, d Deps) *agentloop.ToolRegistry {
	t.Helper()
	reg := agentloop.NewToolRegistry()
	RegisterAll(reg, d)
	return reg
}

func callTool(t *testing.T, reg *agentloop.ToolRegistry, name string, args map[string]interface{}) (string, error) {
	t.Helper()
	tool := reg.Get(name)
	require.NotNil(t, tool, "tool %s not registered", name)
	raw, err := json.Marshal(args)
	require.NoError(t, err)
	return tool.Executor(context.Background(), raw)
}

func mustCall(t *testing.T, reg *agentloop.ToolRegistry, name string, args map[string]interface{}) string {
	t.Helper()
	out, err := callTool(t, reg, name, args)
	require.NoError(t, err)
	return out
}

func TestRegisterAllOrder(t *testing.T) {
	reg := newTestRegistry(t, testDeps(t))
	assert.Equal(t, []string{
		"get_weather", "web_search", "calculate",
		"read_file", "write_file", "list_files", "execute_python",
		"send_email", "read_emails", "search_emails",
		"create_event", "view_events", "check_availability",
	}, reg.Names())

	for _, def := range reg.Definitions() {
		assert.NotEmpty(t, def.Description, def.Name)
		assert.Equal(t, "object", def.Parameters["type"], def.Name)
		assert.NotNil(t, def.Parameters["required"], def.Name)
	}
}

func TestRegisterAllWithoutDatabase(t *testing.T) {
	d := testDeps(t)
	d.DB = nil
	reg := newTestRegistry(t, d)
	assert.Equal(t, 7, reg.Count())
	assert.Nil(t, reg.Get("send_email"))
	assert.Nil(t, reg.Get("create_event"))
}

func TestMissingRequiredArgumentsReturnError(t *testing.T) {
	reg := newTestRegistry(t, testDeps(t))
	for _, name := range []string{"get_weather", "web_search", "calculate", "read_file", "write_file", "execute_python", "send_email", "search_emails", "create_event", "check_availability"} {
		t.Run(name, func(t *testing.T) {
			_, err := callTool(t, reg, name, map[string]interface{}{})
			assert.ErrorContains(t, err, "is required")
		})
	}
}

func TestMalformedArguments(t *testing.T) {
	reg := newTestRegistry(t, testDeps(t))
	_, err := reg.Get("calculate").Executor(context.Background(), json.RawMessage(`{not json`))
	assert.ErrorContains(t, err, "invalid tool arguments")
}

func TestIntArgClamping(t *testing.T) {
	args := map[string]interface{}{"n": float64(50), "neg": float64(-3)}
	assert.Equal(t, 10, intArg(args, "n", 5, 1, 10))
	assert.Equal(t, 1, intArg(args, "neg", 5, 1, 10))
	assert.Equal(t, 5, intArg(args, "missing", 5, 1, 10))
	assert.Equal(t, 50, intArg(args, "n", 5, 1, 0))
}
