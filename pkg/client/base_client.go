package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// ErrCircuitOpen is returned without touching the network while the breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker open")

type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

type BaseClient struct {
	client         HTTPClient
	logger         *zap.Logger
	circuitBreaker *gobreaker.CircuitBreaker
	maxRetries     int
	retryDelay     time.Duration
	multiplier     float64
}

type ClientConfig struct {
	Timeout        time.Duration
	MaxRetries     int
	RetryDelay     time.Duration
	Multiplier     float64
	Threshold      int
	BreakerTimeout time.Duration

	// HTTPClient overrides the default net/http client, mostly for tests.
	HTTPClient HTTPClient
}

// RawResponse is a fully read upstream reply.
type RawResponse struct {
	StatusCode int
	Body       []byte
}

// serverStatusError marks a 5xx reply as a breaker failure while still
// handing the reply back to the caller.
type serverStatusError struct {
	code int
}

func (e *serverStatusError) Error() string {
	return fmt.Sprintf("HTTP %d", e.code)
}

func NewBaseClient(name string, config ClientConfig, logger *zap.Logger) *BaseClient {
	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: config.Timeout,
		}
	}

	maxRetries := config.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}

	threshold := uint32(0)
	if config.Threshold > 0 {
		threshold = uint32(config.Threshold)
	}

	// Circuit breaker settings
	breakerSettings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    0,
		Timeout:     config.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return threshold > 0 && counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Info("Circuit breaker state changed",
				zap.String("client", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	}

	return &BaseClient{
		client:         httpClient,
		logger:         logger,
		circuitBreaker: gobreaker.NewCircuitBreaker(breakerSettings),
		maxRetries:     maxRetries,
		retryDelay:     config.RetryDelay,
		multiplier:     config.Multiplier,
	}
}

// Get performs a GET through the circuit breaker. Any HTTP status is returned
// as a response; only transport faults and an open breaker produce an error.
func (c *BaseClient) Get(ctx context.Context, url string) (*RawResponse, error) {
	result, err := c.circuitBreaker.Execute(func() (interface{}, error) {
		resp, err := c.doGetWithRetry(ctx, url)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			return resp, &serverStatusError{code: resp.StatusCode}
		}
		return resp, nil
	})

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %s", ErrCircuitOpen, c.circuitBreaker.Name())
	}

	var statusErr *serverStatusError
	if err != nil && !errors.As(err, &statusErr) {
		return nil, err
	}

	return result.(*RawResponse), nil
}

// State exposes the breaker state for diagnostics.
func (c *BaseClient) State() string {
	return c.circuitBreaker.State().String()
}

func (c *BaseClient) doGetWithRetry(ctx context.Context, url string) (*RawResponse, error) {
	var lastResp *RawResponse
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			// Calculate exponential backoff delay
			delay := time.Duration(float64(c.retryDelay) * math.Pow(c.multiplier, float64(attempt-1)))
			c.logger.Debug("Retrying request",
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay))

			select {
			case <-ctx.Done():
				if lastResp != nil {
					return lastResp, nil
				}
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("creating request failed: %w", err)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			lastResp, lastErr = nil, fmt.Errorf("request failed: %w", err)
			c.logger.Warn("HTTP request failed",
				zap.String("host", req.URL.Host),
				zap.Int("attempt", attempt),
				zap.Error(err))
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastResp, lastErr = nil, fmt.Errorf("reading response failed: %w", err)
			continue
		}

		c.logger.Debug("Request completed",
			zap.String("host", req.URL.Host),
			zap.Int("status", resp.StatusCode),
			zap.Int("body_size", len(body)))

		lastResp, lastErr = &RawResponse{StatusCode: resp.StatusCode, Body: body}, nil

		// Only server errors are worth another attempt; 4xx is final.
		if resp.StatusCode < http.StatusInternalServerError {
			break
		}
	}

	if lastErr != nil {
		return nil, lastErr
	}
	return lastResp, nil
}
