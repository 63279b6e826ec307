// Package unifiedllm is the model client used by the agent. It presents one
// request/response shape over several provider backends and owns the retry
// policy for transient failures.
//
// # Layers
//
//   - Provider adapters: AnthropicAdapter (official SDK) and GollmAdapter
//     (OpenAI, Ollama and the rest of gollm's providers) each perform exactly
//     one remote call per Complete.
//   - Errors: adapters translate provider failures into a typed hierarchy.
//     IsRetryable selects rate-limit and transient errors only.
//   - Client: routes a Request to an adapter, applies middleware, bounds each
//     attempt with a timeout and retries with exponential backoff. When every
//     attempt fails the caller gets a *RetriesExhaustedError.
//
// # Usage
//
//	adapter, err := unifiedllm.NewAnthropicAdapter(os.Getenv("ANTHROPIC_API_KEY"))
//	if err != nil {
//	    return err
//	}
//	client := unifiedllm.NewClient(unifiedllm.WithProvider("anthropic", adapter))
//
//	resp, err := client.Complete(ctx, unifiedllm.Request{
//	    Model:    "sonnet",
//	    System:   "You are a helpful assistant.",
//	    Messages: []unifiedllm.Message{unifiedllm.UserMessage("Hello")},
//	})
//	var exhausted *unifiedllm.RetriesExhaustedError
//	if errors.As(err, &exhausted) {
//	    // the service stayed unavailable for every attempt
//	}
//
// # Model Catalog
//
// GetModelInfo resolves aliases such as "sonnet" and reports each model's
// context window, which the agent uses for its context-usage warning.
package unifiedllm
