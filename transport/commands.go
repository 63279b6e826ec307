// Package transport connects users to the orchestrator: an HTTP gateway, a
// Telegram long-polling bot and a console chat. All of them share the chat
// commands and message chunking defined here.
package transport

import (
	"context"
	"fmt"
	"strings"

	"github.com/martinemde/chatagent/agentloop"
)

// Replies shared by every transport.
const (
	ClearedReply    = "✅ Conversation history cleared!"
	FailureReply    = "❌ Sorry, I encountered an error processing your message. Please try again."
	RateLimitReply  = "⏳ You're sending messages too quickly. Please wait a moment and try again."
	DisplayNameKey  = "display_name"
	defaultUserName = "there"
)

// Agent is the orchestrator surface the transports use.
// *agentloop.Orchestrator implements it.
type Agent interface {
	ProcessMessage(ctx context.Context, userID, text string) string
	ClearConversation(userID string)
	Stats() agentloop.Stats
}

// MetadataStore records per-user values. *memory.Store implements it.
type MetadataStore interface {
	SetMetadata(userID, key string, value any)
}

// Commands implements /start, /clear and /stats.
type Commands struct {
	agent    Agent
	metadata MetadataStore
}

// NewCommands creates Commands. metadata may be nil.
func NewCommands(agent Agent, metadata MetadataStore) *Commands {
	return &Commands{agent: agent, metadata: metadata}
}

// ParseCommand reports whether text is a slash command and returns its
// lower-cased name without the slash or a "@botname" suffix.
func ParseCommand(text string) (string, bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", false
	}
	name := strings.Fields(text[1:])
	if len(name) == 0 {
		return "", false
	}
	cmd, _, _ := strings.Cut(name[0], "@")
	return strings.ToLower(cmd), cmd != ""
}

// Handle runs the command in text for userID. ok is false when text is not
// a known command and should be treated as a normal message.
func (c *Commands) Handle(userID, displayName, text string) (reply string, ok bool) {
	cmd, isCommand := ParseCommand(text)
	if !isCommand {
		return "", false
	}
	switch cmd {
	case "start":
		return c.Start(userID, displayName), true
	case "clear":
		return c.Clear(userID), true
	case "stats":
		return c.Stats(), true
	default:
		return "", false
	}
}

// Start greets the user and lists capabilities and commands.
func (c *Commands) Start(userID, displayName string) string {
	name := strings.TrimSpace(displayName)
	if name == "" {
		name = defaultUserName
	} else if c.metadata != nil {
		c.metadata.SetMetadata(userID, DisplayNameKey, name)
	}
	return fmt.Sprintf(`👋 Hello %s!

I'm an AI agent powered by Claude. I can help you with:

🌤️ **Weather** - "What's the weather in Tokyo?"
🔍 **Web Search** - "Search for latest AI news"
🧮 **Calculations** - "Calculate 15%% tip on $87.50"
📁 **Files** - "Write a Python script to hello.py"
💻 **Code** - "Execute: print('Hello World')"
📧 **Email** - "Show my latest emails"
📅 **Calendar** - "Am I free tomorrow at 2pm?"

Just send me a message and I'll do my best to help!

Available commands:
/start - Show this message
/clear - Clear conversation history
/stats - Show bot statistics
`, name)
}

// Clear forgets the user's conversation history.
func (c *Commands) Clear(userID string) string {
	c.agent.ClearConversation(userID)
	return ClearedReply
}

// Stats summarizes the model and conversation counts.
func (c *Commands) Stats() string {
	stats := c.agent.Stats()
	return fmt.Sprintf("📊 **Bot Statistics**\n\n🤖 Model: %s\n👥 Total users: %d\n💬 Total messages: %d\n",
		stats.Model, stats.TotalUsers, stats.TotalMessages)
}
