package tutor

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/felixgeelhaar/fortify/bulkhead"
	"github.com/felixgeelhaar/fortify/circuitbreaker"
	"github.com/felixgeelhaar/fortify/ratelimit"
	"github.com/felixgeelhaar/fortify/retry"
)

// ResilientGateway wraps a gateway with resilience patterns from fortify.
// Hint calls get the full stack; streams are stateful, so they only pass
// through the rate limiter.
type ResilientGateway struct {
	gateway        Gateway
	circuitBreaker circuitbreaker.CircuitBreaker[string]
	retrier        retry.Retry[string]
	bulkhead       bulkhead.Bulkhead[string]
	rateLimit      ratelimit.RateLimiter
	logger         *slog.Logger
}

// ResilientConfig holds configuration for the resilient gateway wrapper
type ResilientConfig struct {
	EnableCircuitBreaker bool
	EnableRetry          bool
	EnableBulkhead       bool
	EnableRateLimit      bool

	// MaxConcurrent for bulkhead (default: 5)
	MaxConcurrent int

	// RatePerSecond for rate limiting (default: 2)
	RatePerSecond int

	// Logger for resilience events
	Logger *slog.Logger
}

// DefaultResilientConfig returns sensible defaults for gateway resilience
func DefaultResilientConfig() ResilientConfig {
	return ResilientConfig{
		EnableCircuitBreaker: true,
		EnableRetry:          true,
		EnableBulkhead:       true,
		EnableRateLimit:      true,
		MaxConcurrent:        5,
		RatePerSecond:        2,
	}
}

// NewResilientGateway wraps a gateway with resilience patterns using fortify
func NewResilientGateway(gateway Gateway, cfg ResilientConfig) *ResilientGateway {
	rg := &ResilientGateway{
		gateway: gateway,
		logger:  cfg.Logger,
	}

	if cfg.EnableCircuitBreaker {
		rg.circuitBreaker = circuitbreaker.New[string](circuitbreaker.Config{
			MaxRequests: 2,
			Interval:    10 * time.Second,
			Timeout:     60 * time.Second,
			ReadyToTrip: func(counts circuitbreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
			OnStateChange: func(from, to circuitbreaker.State) {
				if rg.logger != nil {
					rg.logger.Warn("gateway circuit breaker state change",
						"from", from.String(),
						"to", to.String())
				}
			},
		})
	}

	if cfg.EnableRetry {
		rg.retrier = retry.New[string](retry.Config{
			MaxAttempts:   3,
			InitialDelay:  2 * time.Second,
			MaxDelay:      30 * time.Second,
			Multiplier:    2.0,
			BackoffPolicy: retry.BackoffExponential,
			Jitter:        true,
			IsRetryable: func(err error) bool {
				return isRetryableHTTPError(err)
			},
		})
	}

	if cfg.EnableBulkhead {
		maxConcurrent := cfg.MaxConcurrent
		if maxConcurrent <= 0 {
			maxConcurrent = 5
		}
		rg.bulkhead = bulkhead.New[string](bulkhead.Config{
			MaxConcurrent: maxConcurrent,
			MaxQueue:      maxConcurrent * 2,
			QueueTimeout:  30 * time.Second,
		})
	}

	if cfg.EnableRateLimit {
		rate := cfg.RatePerSecond
		if rate <= 0 {
			rate = 2
		}
		rg.rateLimit = ratelimit.New(&ratelimit.Config{
			Rate:     rate,
			Burst:    rate * 3,
			Interval: time.Second,
		})
	}

	return rg
}

func (g *ResilientGateway) Stream(ctx context.Context, req *StreamRequest) (*Stream, error) {
	if g.rateLimit != nil {
		if !g.rateLimit.Allow(ctx, "stream") {
			return nil, fmt.Errorf("gateway rate limit exceeded")
		}
	}

	// No retry or bulkhead for streams: they are long-running and stateful.
	return g.gateway.Stream(ctx, req)
}

func (g *ResilientGateway) Hint(ctx context.Context, req *HintRequest) (string, error) {
	if g.rateLimit != nil {
		if !g.rateLimit.Allow(ctx, "hint") {
			return "", fmt.Errorf("gateway rate limit exceeded")
		}
	}

	operation := func(ctx context.Context) (string, error) {
		return g.gateway.Hint(ctx, req)
	}

	if g.bulkhead != nil {
		operation = func(ctx context.Context) (string, error) {
			return g.bulkhead.Execute(ctx, func(ctx context.Context) (string, error) {
				return g.gateway.Hint(ctx, req)
			})
		}
	}

	if g.circuitBreaker != nil && g.retrier != nil {
		return g.circuitBreaker.Execute(ctx, func(ctx context.Context) (string, error) {
			return g.retrier.Do(ctx, operation)
		})
	}

	if g.circuitBreaker != nil {
		return g.circuitBreaker.Execute(ctx, operation)
	}

	if g.retrier != nil {
		return g.retrier.Do(ctx, operation)
	}

	return operation(ctx)
}

// Close releases resources held by the resilient gateway
func (g *ResilientGateway) Close() error {
	if g.rateLimit != nil {
		return g.rateLimit.Close()
	}
	return nil
}

// isRetryableHTTPError checks if an error is retryable based on HTTP semantics
func isRetryableHTTPError(err error) bool {
	if err == nil {
		return false
	}

	errStr := err.Error()
	retryable := map[string]int{
		"status 429": http.StatusTooManyRequests,
		"status 500": http.StatusInternalServerError,
		"status 502": http.StatusBadGateway,
		"status 503": http.StatusServiceUnavailable,
		"status 504": http.StatusGatewayTimeout,
	}

	for pattern := range retryable {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}

var _ Gateway = (*ResilientGateway)(nil)
