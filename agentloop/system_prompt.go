package agentloop

import (
	"fmt"
	"strings"
	"time"
)

// DefaultSystemPrompt describes the assistant and its tools to the model.
const DefaultSystemPrompt = `You are a helpful AI assistant with access to various tools.

Your capabilities:
- Get weather information for any location
- Search the web for current information
- Perform mathematical calculations
- Read and write files (in a sandbox)
- Execute Python code (in a restricted environment)
- List files in the sandbox directory
- Send, read and search email
- Create calendar events, view upcoming events and check availability

When a user asks you to do something:
1. Think about which tool(s) you need to use
2. Use the tools to gather information or perform actions
3. Provide a clear, helpful response based on the results

Be conversational and friendly. If a tool fails, explain what went wrong and suggest alternatives.

Important:
- Files are stored in a sandbox directory (isolated environment)
- Code execution is restricted for security
- Web search may fall back to a simpler search engine when no API key is configured`

// BuildEnvironmentContext generates the environment block appended to the
// system prompt.
func BuildEnvironmentContext(env ExecutionEnvironment, model string, now time.Time) string {
	var sb strings.Builder
	sb.WriteString("<environment>\n")
	if env != nil {
		fmt.Fprintf(&sb, "Sandbox directory: %s\n", env.WorkingDirectory())
		fmt.Fprintf(&sb, "Platform: %s\n", env.Platform())
	}
	fmt.Fprintf(&sb, "Current date and time: %s\n", now.Format("Monday, 2006-01-02 15:04 MST"))
	if model != "" {
		fmt.Fprintf(&sb, "Model: %s\n", model)
	}
	sb.WriteString("</environment>")
	return sb.String()
}

// BuildSystemPrompt joins base (DefaultSystemPrompt when empty), the
// environment block and any operator instructions.
func BuildSystemPrompt(base string, env ExecutionEnvironment, model string, instructions string, now time.Time) string {
	if base == "" {
		base = DefaultSystemPrompt
	}
	parts := []string{base, BuildEnvironmentContext(env, model, now)}
	if strings.TrimSpace(instructions) != "" {
		parts = append(parts, "# Operator Instructions\n\n"+strings.TrimSpace(instructions))
	}
	return strings.Join(parts, "\n\n")
}
