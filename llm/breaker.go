package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

const (
	defaultBreakerFailures uint32        = 5
	defaultBreakerTimeout  time.Duration = 30 * time.Second
	defaultBreakerInterval time.Duration = 60 * time.Second
)

// BreakerConfig configures CircuitBreakerMiddleware.
type BreakerConfig struct {
	// MaxFailures is the number of consecutive failures before the circuit opens.
	MaxFailures uint32
	// Timeout is how long the circuit stays open before a half-open probe.
	Timeout time.Duration
	// Interval clears failure counts while closed. Zero never clears.
	Interval time.Duration
	Logger   *zap.Logger
}

// CircuitBreakerMiddleware fails fast with a *CircuitOpenError once the
// downstream provider has failed MaxFailures times in a row. Only errors the
// retry policy considers retryable count as failures; a rejected request or
// bad key says nothing about provider health.
func CircuitBreakerMiddleware(name string, cfg BreakerConfig) Middleware {
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = defaultBreakerFailures
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultBreakerTimeout
	}
	if cfg.Interval == 0 {
		cfg.Interval = defaultBreakerInterval
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	cb := gobreaker.NewCircuitBreaker[*Response](gobreaker.Settings{
		Name:        "llm:" + name,
		MaxRequests: 1,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !IsRetryable(err)
		},
	})

	return func(ctx context.Context, req Request, next Handler) (*Response, error) {
		resp, err := cb.Execute(func() (*Response, error) {
			return next(ctx, req)
		})
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, &CircuitOpenError{SDKError: SDKError{
				Message: fmt.Sprintf("provider %q circuit open", name),
				Cause:   err,
			}}
		}
		return resp, err
	}
}
