package unifiedllm

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockAdapter is a test double for ProviderAdapter.
type mockAdapter struct {
	name     string
	response *Response
	err      error

	mu       sync.Mutex
	requests []Request
}

func (m *mockAdapter) Name() string { return m.name }

func (m *mockAdapter) Complete(ctx context.Context, req Request) (*Response, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return m.response, nil
}

func (m *mockAdapter) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

func newMockAdapter(name, text string) *mockAdapter {
	return &mockAdapter{
		name: name,
		response: &Response{
			ID:       "test_resp",
			Model:    "test-model",
			Provider: name,
			Message: Message{
				Role:    RoleAssistant,
				Content: []ContentPart{TextPart(text)},
			},
			FinishReason: FinishReason{Reason: FinishStop, Raw: "end_turn"},
			Usage:        Usage{InputTokens: 10, OutputTokens: 20, TotalTokens: 30},
		},
	}
}

func testRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseDelay: 0.001, MaxDelay: 0.01, BackoffMultiplier: 2}
}

func TestClientComplete(t *testing.T) {
	mock := newMockAdapter("test-provider", "Hello!")
	client := NewClient(WithProvider("test-provider", mock))

	resp, err := client.Complete(context.Background(), Request{
		Model:    "test-model",
		Messages: []Message{UserMessage("Hi")},
	})
	require.NoError(t, err)
	assert.Equal(t, "Hello!", resp.Text())
	assert.Equal(t, "test-provider", resp.Provider)
	require.Len(t, mock.requests, 1)
	assert.Equal(t, "test-provider", mock.requests[0].Provider)
}

func TestClientProviderRouting(t *testing.T) {
	openai := newMockAdapter("openai", "OpenAI response")
	anthropic := newMockAdapter("anthropic", "Anthropic response")
	client := NewClient(
		WithProvider("openai", openai),
		WithProvider("anthropic", anthropic),
		WithDefaultProvider("openai"),
	)

	resp, err := client.Complete(context.Background(), Request{Messages: []Message{UserMessage("Hi")}})
	require.NoError(t, err)
	assert.Equal(t, "OpenAI response", resp.Text())

	resp, err = client.Complete(context.Background(), Request{Provider: "anthropic", Messages: []Message{UserMessage("Hi")}})
	require.NoError(t, err)
	assert.Equal(t, "Anthropic response", resp.Text())
}

func TestClientNoProvider(t *testing.T) {
	client := NewClient()
	_, err := client.Complete(context.Background(), Request{Messages: []Message{UserMessage("Hi")}})

	var cfgErr *ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestClientUnknownProvider(t *testing.T) {
	client := NewClient(WithProvider("openai", newMockAdapter("openai", "x")))
	_, err := client.Complete(context.Background(), Request{Provider: "mistral"})

	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, err.Error(), "mistral")
}

func TestClientMiddlewareOrder(t *testing.T) {
	var order []string
	record := func(name string) Middleware {
		return func(ctx context.Context, req Request, next func(context.Context, Request) (*Response, error)) (*Response, error) {
			order = append(order, name+":before")
			resp, err := next(ctx, req)
			order = append(order, name+":after")
			return resp, err
		}
	}

	client := NewClient(
		WithProvider("test", newMockAdapter("test", "ok")),
		WithMiddleware(record("first"), record("second")),
	)
	_, err := client.Complete(context.Background(), Request{})
	require.NoError(t, err)
	assert.Equal(t, []string{"first:before", "second:before", "second:after", "first:after"}, order)
}

func TestClientRetriesTransientErrors(t *testing.T) {
	mock := newMockAdapter("test", "")
	mock.err = &ServerError{ProviderError: ProviderError{SDKError: SDKError{Message: "overloaded"}, StatusCode: 529, Retryable: true}}

	var retries []int
	policy := testRetryPolicy()
	policy.OnRetry = func(err error, attempt int, delay time.Duration) {
		retries = append(retries, attempt)
	}
	client := NewClient(WithProvider("test", mock), WithRetryPolicy(policy))

	_, err := client.Complete(context.Background(), Request{})

	var exhausted *RetriesExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 3, mock.calls())
	assert.Equal(t, []int{1, 2}, retries)
}

func TestClientDoesNotRetryPermanentErrors(t *testing.T) {
	mock := newMockAdapter("test", "")
	mock.err = &InvalidRequestError{ProviderError: ProviderError{SDKError: SDKError{Message: "bad"}, StatusCode: 400}}
	client := NewClient(WithProvider("test", mock), WithRetryPolicy(testRetryPolicy()))

	_, err := client.Complete(context.Background(), Request{})

	var invalid *InvalidRequestError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, 1, mock.calls())
}

type slowAdapter struct{}

func (slowAdapter) Name() string { return "slow" }

func (slowAdapter) Complete(ctx context.Context, req Request) (*Response, error) {
	<-ctx.Done()
	return nil, &RequestTimeoutError{SDKError: SDKError{Message: "timed out", Cause: ctx.Err()}}
}

func TestClientRequestTimeout(t *testing.T) {
	client := NewClient(
		WithProvider("slow", slowAdapter{}),
		WithRequestTimeout(5*time.Millisecond),
		WithRetryPolicy(RetryPolicy{MaxAttempts: 2, BaseDelay: 0.001, BackoffMultiplier: 2}),
	)

	start := time.Now()
	_, err := client.Complete(context.Background(), Request{})

	var exhausted *RetriesExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestClientRegisterProvider(t *testing.T) {
	client := NewClient()
	client.RegisterProvider("late", newMockAdapter("late", "registered"))

	resp, err := client.Complete(context.Background(), Request{})
	require.NoError(t, err)
	assert.Equal(t, "registered", resp.Text())
}

func TestClientResolvesProviderFromCatalog(t *testing.T) {
	anthropic := newMockAdapter("anthropic", "from catalog")
	client := NewClient(
		WithProvider("anthropic", anthropic),
		WithProvider("openai", newMockAdapter("openai", "wrong")),
	)

	resp, err := client.Complete(context.Background(), Request{Model: "sonnet"})
	require.NoError(t, err)
	assert.Equal(t, "from catalog", resp.Text())
}

type closingAdapter struct {
	mockAdapter
	closed bool
}

func (c *closingAdapter) Close() error {
	c.closed = true
	return nil
}

func TestClientClose(t *testing.T) {
	adapter := &closingAdapter{mockAdapter: mockAdapter{name: "closer"}}
	client := NewClient(WithProvider("closer", adapter))

	require.NoError(t, client.Close())
	assert.True(t, adapter.closed)
}
