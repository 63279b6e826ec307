package transport

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConsoleRun(t *testing.T) {
	agent := &fakeAgent{}
	in := strings.NewReader("hello\n\n/stats\nexit\nnever read\n")
	var out bytes.Buffer

	c := NewConsole(agent, nil, "local", "Ana", in, &out)
	require.NoError(t, c.Run(context.Background()))

	text := out.String()
	assert.True(t, strings.HasPrefix(text, "👋 Hello Ana!"))
	assert.Contains(t, text, "\necho: hello\n")
	assert.Contains(t, text, "🤖 Model: claude-test")
	assert.Equal(t, []string{"local:hello"}, agent.messages())
}

func TestConsoleStopsAtEOF(t *testing.T) {
	agent := &fakeAgent{}
	var out bytes.Buffer
	c := NewConsole(agent, nil, "local", "", strings.NewReader("one"), &out)
	require.NoError(t, c.Run(context.Background()))
	assert.Equal(t, []string{"local:one"}, agent.messages())
}
