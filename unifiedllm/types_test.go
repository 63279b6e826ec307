package unifiedllm

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageConstructors(t *testing.T) {
	assert.Equal(t, RoleSystem, SystemMessage("be nice").Role)
	assert.Equal(t, "be nice", SystemMessage("be nice").TextContent())
	assert.Equal(t, RoleUser, UserMessage("hi").Role)
	assert.Equal(t, RoleAssistant, AssistantMessage("hello").Role)
}

func TestToolResultsMessage(t *testing.T) {
	msg := ToolResultsMessage([]ToolResult{
		{ToolCallID: "call_1", Content: "Result: 4"},
		{ToolCallID: "call_2", Content: "Error: Unknown tool 'x'", IsError: true},
	})

	assert.Equal(t, RoleUser, msg.Role)
	require.Len(t, msg.Content, 2)
	assert.Equal(t, ContentToolResult, msg.Content[0].Kind)
	assert.Equal(t, "call_1", msg.Content[0].ToolResult.ToolCallID)
	assert.Equal(t, "call_2", msg.Content[1].ToolResult.ToolCallID)
	assert.True(t, msg.Content[1].ToolResult.IsError)
}

func TestMessageTextContent(t *testing.T) {
	msg := Message{Role: RoleAssistant, Content: []ContentPart{
		TextPart("Hello "),
		ToolCallPart("c1", "calculate", json.RawMessage(`{"expression":"1+1"}`)),
		TextPart("world"),
	}}
	assert.Equal(t, "Hello world", msg.TextContent())
}

func TestMessageFirstText(t *testing.T) {
	msg := Message{Content: []ContentPart{
		ToolCallPart("c1", "calculate", nil),
		TextPart("first"),
		TextPart("second"),
	}}
	text, ok := msg.FirstText()
	assert.True(t, ok)
	assert.Equal(t, "first", text)

	_, ok = Message{Content: []ContentPart{ToolCallPart("c1", "x", nil)}}.FirstText()
	assert.False(t, ok)
}

func TestMessageToolCallsPreserveOrder(t *testing.T) {
	msg := Message{Content: []ContentPart{
		ToolCallPart("a", "get_weather", json.RawMessage(`{"location":"Paris"}`)),
		TextPart("thinking"),
		ToolCallPart("b", "calculate", json.RawMessage(`{"expression":"2+2"}`)),
	}}

	calls := msg.ToolCalls()
	require.Len(t, calls, 2)
	assert.Equal(t, "a", calls[0].ID)
	assert.Equal(t, "get_weather", calls[0].Name)
	assert.Equal(t, "b", calls[1].ID)
	assert.JSONEq(t, `{"expression":"2+2"}`, string(calls[1].Arguments))
}

func TestUsageAdd(t *testing.T) {
	a := Usage{InputTokens: 10, OutputTokens: 20, TotalTokens: 30}
	b := Usage{InputTokens: 1, OutputTokens: 2, TotalTokens: 3}
	assert.Equal(t, Usage{InputTokens: 11, OutputTokens: 22, TotalTokens: 33}, a.Add(b))
}

func TestResponseAccessors(t *testing.T) {
	resp := Response{Message: Message{Role: RoleAssistant, Content: []ContentPart{
		TextPart("Let me check."),
		ToolCallPart("c1", "get_weather", json.RawMessage(`{}`)),
	}}}
	assert.Equal(t, "Let me check.", resp.Text())
	assert.Len(t, resp.ToolCalls(), 1)
}

func TestEstimateMessageTokens(t *testing.T) {
	messages := []Message{
		UserMessage("12345678"),
		ToolResultsMessage([]ToolResult{{ToolCallID: "x", Content: "1234"}}),
	}
	assert.Equal(t, 4, EstimateMessageTokens("1234", messages))
	assert.Equal(t, 2, EstimateTokens("12345678"))
}

func TestPointerHelpers(t *testing.T) {
	assert.Equal(t, 0.5, *Float64(0.5))
	assert.Equal(t, 7, *Int(7))
}
