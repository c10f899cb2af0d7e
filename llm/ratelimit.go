package llm

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimitMiddleware spaces provider calls to at most perSecond requests per
// second with the given burst. A non-positive rate disables limiting.
func RateLimitMiddleware(perSecond float64, burst int) Middleware {
	if perSecond <= 0 {
		return func(ctx context.Context, req Request, next Handler) (*Response, error) {
			return next(ctx, req)
		}
	}
	if burst < 1 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Limit(perSecond), burst)

	return func(ctx context.Context, req Request, next Handler) (*Response, error) {
		if err := limiter.Wait(ctx); err != nil {
			return nil, &RateLimitedError{SDKError: SDKError{Message: "rate limiter wait failed", Cause: err}}
		}
		return next(ctx, req)
	}
}
