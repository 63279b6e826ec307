package agentloop

import (
	"github.com/martinemde/chatagent/memory"
	"github.com/martinemde/chatagent/unifiedllm"
)

// ConvertHistoryToMessages turns the persisted model view into request
// messages. Persisted history only ever holds plain text.
func ConvertHistoryToMessages(history []memory.ModelMessage) []unifiedllm.Message {
	messages := make([]unifiedllm.Message, 0, len(history))
	for _, m := range history {
		switch m.Role {
		case memory.RoleAssistant:
			messages = append(messages, unifiedllm.AssistantMessage(m.Content))
		default:
			messages = append(messages, unifiedllm.UserMessage(m.Content))
		}
	}
	return messages
}
