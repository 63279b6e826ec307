package unifiedllm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicAdapter implements ProviderAdapter on the official Anthropic SDK.
type AnthropicAdapter struct {
	client    anthropic.Client
	model     string
	maxTokens int
}

// AnthropicOption configures an AnthropicAdapter.
type AnthropicOption func(*anthropicConfig)

type anthropicConfig struct {
	baseURL    string
	model      string
	maxTokens  int
	httpClient *http.Client
}

// WithAnthropicBaseURL points the adapter at a different API endpoint.
func WithAnthropicBaseURL(url string) AnthropicOption {
	return func(c *anthropicConfig) {
		c.baseURL = url
	}
}

// WithAnthropicModel sets the model used when a request names none.
func WithAnthropicModel(model string) AnthropicOption {
	return func(c *anthropicConfig) {
		c.model = model
	}
}

// WithAnthropicMaxTokens sets the default output token limit.
func WithAnthropicMaxTokens(n int) AnthropicOption {
	return func(c *anthropicConfig) {
		c.maxTokens = n
	}
}

// WithAnthropicHTTPClient overrides the HTTP client.
func WithAnthropicHTTPClient(hc *http.Client) AnthropicOption {
	return func(c *anthropicConfig) {
		c.httpClient = hc
	}
}

// NewAnthropicAdapter creates an adapter authenticated with apiKey.
func NewAnthropicAdapter(apiKey string, opts ...AnthropicOption) (*AnthropicAdapter, error) {
	if apiKey == "" {
		return nil, &ConfigurationError{SDKError: SDKError{Message: "Anthropic API key is required"}}
	}
	cfg := &anthropicConfig{
		model:     DefaultModel,
		maxTokens: 4096,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	clientOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0), // Client owns the retry policy.
	}
	if cfg.baseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.httpClient != nil {
		clientOpts = append(clientOpts, option.WithHTTPClient(cfg.httpClient))
	}

	return &AnthropicAdapter{
		client:    anthropic.NewClient(clientOpts...),
		model:     cfg.model,
		maxTokens: cfg.maxTokens,
	}, nil
}

// Name returns the provider identifier.
func (a *AnthropicAdapter) Name() string {
	return "anthropic"
}

// Complete performs a single Messages API call.
func (a *AnthropicAdapter) Complete(ctx context.Context, req Request) (*Response, error) {
	params := a.buildParams(req)

	msg, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return nil, a.translateError(ctx, err)
	}
	return a.buildResponse(msg), nil
}

func (a *AnthropicAdapter) buildParams(req Request) anthropic.MessageNewParams {
	model := req.Model
	if model == "" {
		model = a.model
	}
	maxTokens := a.maxTokens
	if req.MaxTokens != nil {
		maxTokens = *req.MaxTokens
	}

	messages, system := translateAnthropicMessages(req.Messages)
	if req.System != "" {
		system = append([]anthropic.TextBlockParam{{Text: req.System}}, system...)
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(ResolveModelID(model)),
		MaxTokens: int64(maxTokens),
		Messages:  messages,
	}
	if len(system) > 0 {
		params.System = system
	}
	if req.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Temperature)
	}
	if len(req.ToolDefs) > 0 {
		params.Tools = translateAnthropicTools(req.ToolDefs)
	}
	return params
}

// translateAnthropicMessages converts the context into Messages API params.
// System messages move to the system parameter, empty blocks are dropped,
// consecutive messages of the same role are merged and leading assistant
// messages are skipped, since the API requires alternating turns that start
// with the user.
func translateAnthropicMessages(messages []Message) ([]anthropic.MessageParam, []anthropic.TextBlockParam) {
	var system []anthropic.TextBlockParam
	var out []anthropic.MessageParam
	var lastRole Role

	for _, msg := range messages {
		if msg.Role == RoleSystem {
			if text := msg.TextContent(); text != "" {
				system = append(system, anthropic.TextBlockParam{Text: text})
			}
			continue
		}

		blocks := make([]anthropic.ContentBlockParamUnion, 0, len(msg.Content))
		for _, part := range msg.Content {
			switch part.Kind {
			case ContentText:
				if strings.TrimSpace(part.Text) != "" {
					blocks = append(blocks, anthropic.NewTextBlock(part.Text))
				}
			case ContentToolCall:
				if part.ToolCall != nil {
					args := part.ToolCall.Arguments
					if len(args) == 0 {
						args = json.RawMessage("{}")
					}
					blocks = append(blocks, anthropic.NewToolUseBlock(part.ToolCall.ID, args, part.ToolCall.Name))
				}
			case ContentToolResult:
				if part.ToolResult != nil {
					blocks = append(blocks, anthropic.NewToolResultBlock(
						part.ToolResult.ToolCallID, part.ToolResult.Content, part.ToolResult.IsError))
				}
			}
		}
		if len(blocks) == 0 {
			continue
		}
		if len(out) == 0 && msg.Role != RoleUser {
			continue
		}

		if len(out) > 0 && msg.Role == lastRole {
			out[len(out)-1].Content = append(out[len(out)-1].Content, blocks...)
			continue
		}
		if msg.Role == RoleAssistant {
			out = append(out, anthropic.NewAssistantMessage(blocks...))
		} else {
			out = append(out, anthropic.NewUserMessage(blocks...))
		}
		lastRole = msg.Role
	}
	return out, system
}

func translateAnthropicTools(defs []ToolDefinition) []anthropic.ToolUnionParam {
	tools := make([]anthropic.ToolUnionParam, len(defs))
	for i, def := range defs {
		schema := anthropic.ToolInputSchemaParam{
			Properties: def.Parameters["properties"],
		}
		switch required := def.Parameters["required"].(type) {
		case []string:
			schema.Required = required
		case []interface{}:
			for _, r := range required {
				if s, ok := r.(string); ok {
					schema.Required = append(schema.Required, s)
				}
			}
		}
		tools[i] = anthropic.ToolUnionParamOfTool(schema, def.Name)
		if def.Description != "" {
			tools[i].OfTool.Description = anthropic.String(def.Description)
		}
	}
	return tools
}

func (a *AnthropicAdapter) buildResponse(msg *anthropic.Message) *Response {
	parts := make([]ContentPart, 0, len(msg.Content))
	for _, block := range msg.Content {
		switch variant := block.AsAny().(type) {
		case anthropic.TextBlock:
			parts = append(parts, TextPart(variant.Text))
		case anthropic.ToolUseBlock:
			parts = append(parts, ToolCallPart(variant.ID, variant.Name, variant.Input))
		}
	}

	input := int(msg.Usage.InputTokens)
	output := int(msg.Usage.OutputTokens)
	return &Response{
		ID:       msg.ID,
		Model:    string(msg.Model),
		Provider: a.Name(),
		Message: Message{
			Role:    RoleAssistant,
			Content: parts,
		},
		FinishReason: anthropicFinishReason(string(msg.StopReason)),
		Usage: Usage{
			InputTokens:  input,
			OutputTokens: output,
			TotalTokens:  input + output,
		},
	}
}

func anthropicFinishReason(raw string) FinishReason {
	switch raw {
	case "end_turn":
		return FinishReason{Reason: FinishStop, Raw: raw}
	case "tool_use":
		return FinishReason{Reason: FinishToolCalls, Raw: raw}
	case "max_tokens":
		return FinishReason{Reason: FinishLength, Raw: raw}
	default:
		return FinishReason{Reason: FinishOther, Raw: raw}
	}
}

// translateError converts an SDK error into the unified error hierarchy.
func (a *AnthropicAdapter) translateError(ctx context.Context, err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		var retryAfter *float64
		if apiErr.Response != nil {
			if v, perr := strconv.ParseFloat(apiErr.Response.Header.Get("retry-after"), 64); perr == nil {
				retryAfter = &v
			}
		}
		message := fmt.Sprintf("anthropic request failed: %s", http.StatusText(apiErr.StatusCode))
		return ErrorFromStatusCode(apiErr.StatusCode, message, a.Name(), "", retryAfter)
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		if ctx.Err() == nil || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return &RequestTimeoutError{SDKError: SDKError{Message: "anthropic request timed out", Cause: err}}
		}
	case errors.Is(err, context.Canceled):
		return &AbortError{SDKError: SDKError{Message: "anthropic request cancelled", Cause: err}}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return &NetworkError{SDKError: SDKError{Message: "anthropic request failed", Cause: err}}
	}
	return &SDKError{Message: "anthropic request failed", Cause: err}
}
