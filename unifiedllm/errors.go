package unifiedllm

import (
	"errors"
	"fmt"
)

// SDKError is the base error type for all model client errors.
type SDKError struct {
	Message string
	Cause   error
}

func (e *SDKError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *SDKError) Unwrap() error {
	return e.Cause
}

// ProviderError represents an error returned by an LLM provider.
type ProviderError struct {
	SDKError
	Provider   string
	StatusCode int
	ErrorCode  string
	Retryable  bool
	RetryAfter *float64 // seconds, from the provider's Retry-After header
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("[%s] %s (status=%d, retryable=%v)", e.Provider, e.Message, e.StatusCode, e.Retryable)
}

// Concrete provider error types.

type AuthenticationError struct{ ProviderError }
type AccessDeniedError struct{ ProviderError }
type NotFoundError struct{ ProviderError }
type InvalidRequestError struct{ ProviderError }
type RateLimitError struct{ ProviderError }
type ServerError struct{ ProviderError }
type ContentFilterError struct{ ProviderError }
type ContextLengthError struct{ ProviderError }
type QuotaExceededError struct{ ProviderError }

// Non-provider errors.

type RequestTimeoutError struct{ SDKError }
type AbortError struct{ SDKError }
type NetworkError struct{ SDKError }
type ConfigurationError struct{ SDKError }

// RetriesExhaustedError is returned once every attempt allowed by the retry
// policy failed with a retryable error. Unwrap yields the last attempt's error.
type RetriesExhaustedError struct {
	SDKError
	Attempts int
}

func (e *RetriesExhaustedError) Error() string {
	return fmt.Sprintf("max retries exceeded after %d attempts: %v", e.Attempts, e.Cause)
}

// ErrorFromStatusCode maps an HTTP status code to the appropriate error type.
func ErrorFromStatusCode(statusCode int, message, provider, errorCode string, retryAfter *float64) error {
	pe := ProviderError{
		SDKError:   SDKError{Message: message},
		Provider:   provider,
		StatusCode: statusCode,
		ErrorCode:  errorCode,
		RetryAfter: retryAfter,
	}

	switch {
	case statusCode == 400 || statusCode == 422:
		return &InvalidRequestError{ProviderError: pe}
	case statusCode == 401:
		return &AuthenticationError{ProviderError: pe}
	case statusCode == 402:
		return &QuotaExceededError{ProviderError: pe}
	case statusCode == 403:
		return &AccessDeniedError{ProviderError: pe}
	case statusCode == 404:
		return &NotFoundError{ProviderError: pe}
	case statusCode == 408:
		return &RequestTimeoutError{SDKError: SDKError{Message: message}}
	case statusCode == 413:
		return &ContextLengthError{ProviderError: pe}
	case statusCode == 429:
		pe.Retryable = true
		return &RateLimitError{ProviderError: pe}
	case statusCode >= 500:
		// 529 is Anthropic's "overloaded".
		pe.Retryable = true
		return &ServerError{ProviderError: pe}
	default:
		return &pe
	}
}

// IsRetryable reports whether err is a rate-limit or transient failure that
// is safe to retry. Anything unrecognised is treated as permanent.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	switch e := err.(type) {
	case *ProviderError:
		return e.Retryable
	case *RateLimitError, *ServerError, *NetworkError, *RequestTimeoutError:
		return true
	case *AuthenticationError, *AccessDeniedError, *NotFoundError,
		*InvalidRequestError, *ContextLengthError, *QuotaExceededError,
		*ContentFilterError, *ConfigurationError, *AbortError,
		*RetriesExhaustedError:
		return false
	}
	if inner := errors.Unwrap(err); inner != nil {
		return IsRetryable(inner)
	}
	return false
}
