package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/cenkalti/backoff/v4"
	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/capitalize-ai/lead-qualifier/pkg/logger"
	"github.com/capitalize-ai/lead-qualifier/pkg/metrics"
)

// RetryPolicy bounds model calls.
type RetryPolicy struct {
	// Timeout applies to each attempt.
	Timeout time.Duration
	// Retries is the number of additional attempts after the first.
	Retries         int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryPolicy is used for zero fields.
var DefaultRetryPolicy = RetryPolicy{
	Timeout:         30 * time.Second,
	Retries:         3,
	InitialInterval: 500 * time.Millisecond,
	MaxInterval:     5 * time.Second,
}

// RetryClient wraps a Client with per-attempt timeouts and exponential
// backoff. When every attempt fails the error wraps ErrUnavailable.
type RetryClient struct {
	next   Client
	policy RetryPolicy
	log    *logger.Logger
}

// NewRetryClient wraps next.
func NewRetryClient(next Client, policy RetryPolicy, log *logger.Logger) *RetryClient {
	if policy.Timeout <= 0 {
		policy.Timeout = DefaultRetryPolicy.Timeout
	}
	if policy.Retries < 0 {
		policy.Retries = 0
	}
	if policy.InitialInterval <= 0 {
		policy.InitialInterval = DefaultRetryPolicy.InitialInterval
	}
	if policy.MaxInterval <= 0 {
		policy.MaxInterval = DefaultRetryPolicy.MaxInterval
	}
	return &RetryClient{next: next, policy: policy, log: log.Named("llm")}
}

// Name returns the wrapped provider name.
func (c *RetryClient) Name() string { return c.next.Name() }

// Models returns the wrapped provider's models.
func (c *RetryClient) Models() []string { return c.next.Models() }

// Complete retries transient failures of the wrapped client.
func (c *RetryClient) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	return c.do(ctx, req.Model, func(attemptCtx context.Context) (*CompletionResponse, error) {
		return c.next.Complete(attemptCtx, req)
	})
}

// CompleteStream retries only while no token has reached the callback;
// a stream that fails midway is returned as is.
func (c *RetryClient) CompleteStream(ctx context.Context, req *CompletionRequest, callback StreamCallback) (*CompletionResponse, error) {
	emitted := 0
	return c.do(ctx, req.Model, func(attemptCtx context.Context) (*CompletionResponse, error) {
		resp, err := c.next.CompleteStream(attemptCtx, req, func(token string, index int) error {
			emitted++
			return callback(token, index)
		})
		if err != nil && emitted > 0 {
			return nil, backoff.Permanent(err)
		}
		return resp, err
	})
}

func (c *RetryClient) do(ctx context.Context, modelName string, call func(context.Context) (*CompletionResponse, error)) (*CompletionResponse, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.policy.InitialInterval
	b.MaxInterval = c.policy.MaxInterval
	b.MaxElapsedTime = 0

	attempts := 0
	operation := func() (*CompletionResponse, error) {
		attempts++
		attemptCtx, cancel := context.WithTimeout(ctx, c.policy.Timeout)
		defer cancel()

		resp, err := call(attemptCtx)
		if err == nil {
			return resp, nil
		}
		if ctx.Err() != nil || !Retryable(err) {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}
	notify := func(err error, wait time.Duration) {
		metrics.LLMRetriesTotal.WithLabelValues(modelName).Inc()
		c.log.Warn("llm call failed, retrying",
			zap.String("provider", c.next.Name()),
			zap.Int("attempt", attempts),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.policy.Retries)), ctx)
	resp, err := backoff.RetryNotifyWithData(operation, policy, notify)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w after %d attempts: %v", ErrUnavailable, attempts, err)
	}
	return resp, nil
}

// Retryable reports whether a provider error is worth another attempt.
// Timeouts, rate limits and server errors are; other client errors are not.
func Retryable(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return retryableStatus(apiErr.HTTPStatusCode)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return retryableStatus(reqErr.HTTPStatusCode)
	}
	var anthErr *anthropic.Error
	if errors.As(err, &anthErr) {
		return retryableStatus(anthErr.StatusCode)
	}
	return true
}

func retryableStatus(code int) bool {
	switch {
	case code == 0:
		return true
	case code == http.StatusRequestTimeout, code == http.StatusConflict, code == http.StatusTooManyRequests:
		return true
	case code >= 500:
		return true
	}
	return false
}
