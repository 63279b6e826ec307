package agentloop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/martinemde/chatagent/memory"
	"github.com/martinemde/chatagent/unifiedllm"
)

// Fixed replies returned by ProcessMessage.
const (
	NoResponseReply     = "I processed your request but have no response."
	TooLongReply        = "Response was too long. Please ask a more specific question."
	UnexpectedReply     = "Unexpected response from AI. Please try again."
	IterationLimitReply = "I apologize, but I couldn't complete your request within the allowed steps. Please try a simpler request."
	ErrorReplyPrefix    = "I encountered an error: "
)

// Outcome labels how a ProcessMessage call ended.
type Outcome string

const (
	OutcomeCompleted      Outcome = "completed"
	OutcomeLength         Outcome = "length"
	OutcomeUnexpected     Outcome = "unexpected"
	OutcomeIterationLimit Outcome = "iteration_limit"
	OutcomeError          Outcome = "error"
)

// Completer performs one model completion. *unifiedllm.Client implements it.
type Completer interface {
	Complete(ctx context.Context, req unifiedllm.Request) (*unifiedllm.Response, error)
}

// ConversationStore is the persisted conversation state the orchestrator
// reads and writes. *memory.Store implements it.
type ConversationStore interface {
	Append(userID string, role memory.Role, content string)
	ModelView(userID string, lastN int) []memory.ModelMessage
	Clear(userID string)
	Stats() memory.Stats
}

// Config holds orchestrator settings.
type Config struct {
	Model               string         `json:"model"`
	Provider            string         `json:"provider,omitempty"`
	SystemPrompt        string         `json:"system_prompt,omitempty"` // DefaultSystemPrompt when empty
	Instructions        string         `json:"instructions,omitempty"`  // appended last to the system prompt
	MaxTokens           int            `json:"max_tokens"`
	Temperature         float64        `json:"temperature"`
	MaxIterations       int            `json:"max_iterations"`
	ContextMessages     int            `json:"context_messages"` // stored messages sent per call
	ParallelTools       bool           `json:"parallel_tools"`
	ContextWarningRatio float64        `json:"context_warning_ratio"`
	ToolOutputLimits    map[string]int `json:"tool_output_limits,omitempty"`
	ToolLineLimits      map[string]int `json:"tool_line_limits,omitempty"`
}

// DefaultConfig returns the default orchestrator settings.
func DefaultConfig() Config {
	return Config{
		Model:               unifiedllm.DefaultModel,
		MaxTokens:           4096,
		Temperature:         0.7,
		MaxIterations:       10,
		ContextMessages:     20,
		ContextWarningRatio: 0.8,
	}
}

// Stats reports the model settings alongside conversation statistics.
type Stats struct {
	Model           string   `json:"model"`
	Provider        string   `json:"provider,omitempty"`
	MaxIterations   int      `json:"max_iterations"`
	ContextMessages int      `json:"context_messages"`
	Tools           []string `json:"tools"`
	memory.Stats
}

// Orchestrator runs the bounded model/tool loop for each incoming message.
// Calls for the same user are serialized; different users run concurrently.
type Orchestrator struct {
	client    Completer
	store     ConversationStore
	registry  *ToolRegistry
	env       ExecutionEnvironment
	config    Config
	emitter   *EventEmitter
	logger    *slog.Logger
	userLocks sync.Map // user ID -> chan struct{} (capacity 1)
	now       func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithConfig replaces the default configuration. Zero limits fall back to
// their defaults.
func WithConfig(cfg Config) Option {
	return func(o *Orchestrator) {
		o.config = cfg
	}
}

// WithEnvironment describes the tool sandbox in the system prompt.
func WithEnvironment(env ExecutionEnvironment) Option {
	return func(o *Orchestrator) {
		o.env = env
	}
}

// WithEventEmitter shares an emitter with subscribers such as metrics.
func WithEventEmitter(emitter *EventEmitter) Option {
	return func(o *Orchestrator) {
		o.emitter = emitter
	}
}

// WithLogger sets the orchestrator's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// New creates an Orchestrator. The registry must not change while messages
// are being processed.
func New(client Completer, store ConversationStore, registry *ToolRegistry, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		client:   client,
		store:    store,
		registry: registry,
		config:   DefaultConfig(),
		emitter:  NewEventEmitter(),
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}

	defaults := DefaultConfig()
	if o.config.Model == "" {
		o.config.Model = defaults.Model
	}
	if o.config.MaxIterations <= 0 {
		o.config.MaxIterations = defaults.MaxIterations
	}
	if o.config.ContextMessages <= 0 {
		o.config.ContextMessages = defaults.ContextMessages
	}
	if o.config.MaxTokens <= 0 {
		o.config.MaxTokens = defaults.MaxTokens
	}
	if o.config.ContextWarningRatio <= 0 {
		o.config.ContextWarningRatio = defaults.ContextWarningRatio
	}
	if o.registry == nil {
		o.registry = NewToolRegistry()
	}
	return o
}

// Events returns the emitter so callers can subscribe.
func (o *Orchestrator) Events() *EventEmitter {
	return o.emitter
}

// Config returns the effective configuration.
func (o *Orchestrator) Config() Config {
	return o.config
}

// lockUser blocks until the caller holds userID's slot or ctx is done, and
// returns the release function.
func (o *Orchestrator) lockUser(ctx context.Context, userID string) (func(), error) {
	v, _ := o.userLocks.LoadOrStore(userID, make(chan struct{}, 1))
	sem := v.(chan struct{})
	select {
	case sem <- struct{}{}:
		return func() { <-sem }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ProcessMessage answers one user message. It never fails: model errors,
// tool failures and internal faults all become a natural-language reply.
// The user message and exactly one assistant reply are persisted per call;
// intermediate tool traffic is not. A call whose ctx ends while it waits
// behind the same user's previous message persists nothing.
func (o *Orchestrator) ProcessMessage(ctx context.Context, userID, text string) string {
	unlock, err := o.lockUser(ctx, userID)
	if err != nil {
		o.logger.Warn("message abandoned while waiting for the previous one", "user_id", userID, "error", err)
		o.emitter.Emit(EventResponse, userID, map[string]interface{}{
			"outcome": string(OutcomeError),
			"error":   err.Error(),
		})
		return ErrorReplyPrefix + describeError(err)
	}
	defer unlock()

	start := o.now()
	o.logger.Info("processing message", "user_id", userID, "preview", Preview(text, 50))
	o.emitter.Emit(EventMessageReceived, userID, map[string]interface{}{
		"length": len(text),
	})

	o.store.Append(userID, memory.RoleUser, text)
	reply, outcome := o.run(ctx, userID)
	o.store.Append(userID, memory.RoleAssistant, reply)

	o.logger.Info("agent response", "user_id", userID, "outcome", outcome, "preview", Preview(reply, 100))
	o.emitter.Emit(EventResponse, userID, map[string]interface{}{
		"outcome":  string(outcome),
		"length":   len(reply),
		"duration": o.now().Sub(start),
	})
	return reply
}

// run is the iteration loop. It never touches the store.
func (o *Orchestrator) run(ctx context.Context, userID string) (reply string, outcome Outcome) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("panic while processing message",
				"user_id", userID, "panic", r, "stack", string(debug.Stack()))
			o.emitter.Emit(EventError, userID, map[string]interface{}{
				"error": fmt.Sprint(r),
			})
			reply = ErrorReplyPrefix + "an internal error occurred while handling your request."
			outcome = OutcomeError
		}
	}()

	messages := ConvertHistoryToMessages(o.store.ModelView(userID, o.config.ContextMessages))
	system := BuildSystemPrompt(o.config.SystemPrompt, o.env, o.config.Model, o.config.Instructions, o.now())
	toolDefs := o.registry.ToUnifiedLLMToolDefs()

	for iteration := 1; iteration <= o.config.MaxIterations; iteration++ {
		o.logger.Debug("agent iteration", "user_id", userID, "iteration", iteration, "max", o.config.MaxIterations)
		o.checkContextUsage(userID, system, messages)

		req := unifiedllm.Request{
			Model:       o.config.Model,
			Provider:    o.config.Provider,
			System:      system,
			Messages:    messages,
			ToolDefs:    toolDefs,
			Temperature: unifiedllm.Float64(o.config.Temperature),
			MaxTokens:   unifiedllm.Int(o.config.MaxTokens),
		}

		callStart := o.now()
		resp, err := o.client.Complete(ctx, req)
		if err != nil {
			o.emitter.Emit(EventModelCall, userID, map[string]interface{}{
				"iteration": iteration,
				"duration":  o.now().Sub(callStart),
				"error":     err.Error(),
			})
			o.logger.Error("model call failed", "user_id", userID, "iteration", iteration, "error", err)
			o.emitter.Emit(EventError, userID, map[string]interface{}{
				"error": err.Error(),
			})
			return ErrorReplyPrefix + describeError(err), OutcomeError
		}
		o.emitter.Emit(EventModelCall, userID, map[string]interface{}{
			"iteration":     iteration,
			"duration":      o.now().Sub(callStart),
			"finish_reason": resp.FinishReason.Reason,
			"input_tokens":  resp.Usage.InputTokens,
			"output_tokens": resp.Usage.OutputTokens,
		})

		switch resp.FinishReason.Reason {
		case unifiedllm.FinishStop:
			text, ok := resp.Message.FirstText()
			if !ok || strings.TrimSpace(text) == "" {
				return NoResponseReply, OutcomeCompleted
			}
			return text, OutcomeCompleted

		case unifiedllm.FinishToolCalls:
			calls := resp.ToolCalls()
			if len(calls) == 0 {
				o.logger.Warn("tool use requested without tool calls", "user_id", userID)
				return UnexpectedReply, OutcomeUnexpected
			}
			assistant := resp.Message
			assistant.Role = unifiedllm.RoleAssistant
			messages = append(messages, assistant)
			results := o.executeTools(ctx, userID, calls)
			messages = append(messages, unifiedllm.ToolResultsMessage(results))

		case unifiedllm.FinishLength:
			return TooLongReply, OutcomeLength

		default:
			o.logger.Warn("unexpected stop reason", "user_id", userID, "reason", resp.FinishReason.Raw)
			return UnexpectedReply, OutcomeUnexpected
		}
	}

	o.logger.Warn("iteration limit reached", "user_id", userID, "max", o.config.MaxIterations)
	o.emitter.Emit(EventIterationLimit, userID, map[string]interface{}{
		"max_iterations": o.config.MaxIterations,
	})
	return IterationLimitReply, OutcomeIterationLimit
}

// ExecuteTools runs every call and returns one result per call, in call
// order. Unknown tools and failing tools produce diagnostic results.
func (o *Orchestrator) ExecuteTools(ctx context.Context, calls []unifiedllm.ToolCall) []unifiedllm.ToolResult {
	return o.executeTools(ctx, "", calls)
}

func (o *Orchestrator) executeTools(ctx context.Context, userID string, calls []unifiedllm.ToolCall) []unifiedllm.ToolResult {
	results := make([]unifiedllm.ToolResult, len(calls))
	if !o.config.ParallelTools || len(calls) < 2 {
		for i, call := range calls {
			results[i] = o.executeSingleTool(ctx, userID, call)
		}
		return results
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, call := range calls {
		g.Go(func() error {
			results[i] = o.executeSingleTool(gctx, userID, call)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// executeSingleTool handles lookup -> execute -> truncate -> emit.
func (o *Orchestrator) executeSingleTool(ctx context.Context, userID string, call unifiedllm.ToolCall) unifiedllm.ToolResult {
	start := o.now()
	o.emitter.Emit(EventToolCallStart, userID, map[string]interface{}{
		"tool_name": call.Name,
		"call_id":   call.ID,
	})
	o.logger.Info("executing tool", "user_id", userID, "tool", call.Name, "arguments", Preview(string(call.Arguments), 200))

	result := unifiedllm.ToolResult{ToolCallID: call.ID}

	registered := o.registry.Get(call.Name)
	if registered == nil {
		o.logger.Error("unknown tool requested", "user_id", userID, "tool", call.Name)
		result.Content = fmt.Sprintf("Error: Unknown tool '%s'", call.Name)
		result.IsError = true
	} else if output, err := invokeTool(ctx, registered, call); err != nil {
		o.logger.Error("tool execution error", "user_id", userID, "tool", call.Name, "error", err)
		result.Content = fmt.Sprintf("Error executing %s: %v", call.Name, err)
		result.IsError = true
	} else {
		result.Content = TruncateToolOutput(output, call.Name, o.config.ToolOutputLimits, o.config.ToolLineLimits)
		o.logger.Debug("tool result", "user_id", userID, "tool", call.Name, "preview", Preview(output, 100))
	}

	o.emitter.Emit(EventToolCallEnd, userID, map[string]interface{}{
		"tool_name": call.Name,
		"call_id":   call.ID,
		"is_error":  result.IsError,
		"duration":  o.now().Sub(start),
	})
	return result
}

func invokeTool(ctx context.Context, tool *RegisteredTool, call unifiedllm.ToolCall) (output string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return tool.Executor(ctx, call.Arguments)
}

// checkContextUsage warns when the estimated context exceeds the configured
// share of the model's context window.
func (o *Orchestrator) checkContextUsage(userID, system string, messages []unifiedllm.Message) {
	info := unifiedllm.GetModelInfo(o.config.Model)
	if info == nil || info.ContextWindow <= 0 {
		return
	}
	approxTokens := unifiedllm.EstimateMessageTokens(system, messages)
	threshold := int(float64(info.ContextWindow) * o.config.ContextWarningRatio)
	if approxTokens <= threshold {
		return
	}
	pct := approxTokens * 100 / info.ContextWindow
	o.logger.Warn("context usage high", "user_id", userID, "approx_tokens", approxTokens, "percent", pct)
	o.emitter.Emit(EventContextWarning, userID, map[string]interface{}{
		"message":       fmt.Sprintf("Context usage at ~%d%% of context window", pct),
		"approx_tokens": approxTokens,
	})
}

// ClearConversation forgets userID's stored history.
func (o *Orchestrator) ClearConversation(userID string) {
	unlock, _ := o.lockUser(context.Background(), userID)
	defer unlock()
	o.store.Clear(userID)
	o.logger.Info("conversation cleared", "user_id", userID)
}

// Stats returns model settings and conversation statistics.
func (o *Orchestrator) Stats() Stats {
	return Stats{
		Model:           o.config.Model,
		Provider:        o.config.Provider,
		MaxIterations:   o.config.MaxIterations,
		ContextMessages: o.config.ContextMessages,
		Tools:           o.registry.Names(),
		Stats:           o.store.Stats(),
	}
}

// describeError renders err for the end user without status codes, raw
// provider payloads or stack traces.
func describeError(err error) string {
	var (
		exhausted *unifiedllm.RetriesExhaustedError
		abort     *unifiedllm.AbortError
		timeout   *unifiedllm.RequestTimeoutError
		auth      *unifiedllm.AuthenticationError
		denied    *unifiedllm.AccessDeniedError
		rateLimit *unifiedllm.RateLimitError
		tooLong   *unifiedllm.ContextLengthError
		quota     *unifiedllm.QuotaExceededError
		cfgErr    *unifiedllm.ConfigurationError
	)
	switch {
	case errors.As(err, &exhausted):
		return "the AI service is temporarily unavailable. Please try again in a moment."
	case errors.As(err, &abort), errors.Is(err, context.Canceled):
		return "the request was cancelled before it could finish."
	case errors.As(err, &timeout), errors.Is(err, context.DeadlineExceeded):
		return "the AI service took too long to respond."
	case errors.As(err, &auth), errors.As(err, &denied):
		return "the AI service rejected the configured credentials."
	case errors.As(err, &rateLimit):
		return "the AI service is receiving too many requests. Please try again shortly."
	case errors.As(err, &tooLong):
		return "the conversation is too long for the AI model. Use /clear to start over."
	case errors.As(err, &quota):
		return "the AI service quota has been exhausted."
	case errors.As(err, &cfgErr):
		return "the AI service is not configured correctly."
	default:
		return "the AI service could not process the request."
	}
}

// Preview shortens s to at most n runes for logging.
func Preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
