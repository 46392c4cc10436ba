package transport

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	sdkerrors "github.com/wehubfusion/Ariadne/pkg/errors"
	"go.uber.org/zap"
)

// HandlerFunc serves one request payload and returns the reply value.
type HandlerFunc func(ctx context.Context, req *Request) (interface{}, error)

// Middleware wraps a handler to add additional functionality
type Middleware func(HandlerFunc) HandlerFunc

// Chain applies middlewares so the first one is outermost.
func Chain(middlewares ...Middleware) Middleware {
	return func(h HandlerFunc) HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			h = middlewares[i](h)
		}
		return h
	}
}

// RecoveryMiddleware turns handler panics into errors.
func RecoveryMiddleware(logger *zap.Logger) Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) (reply interface{}, err error) {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("Handler panicked",
						zap.String("subject", req.Subject),
						zap.String("request_id", req.ID),
						zap.Any("panic", r),
						zap.ByteString("stack", debug.Stack()))
					reply = nil
					err = fmt.Errorf("panic recovered: %v", r)
				}
			}()
			return next(ctx, req)
		}
	}
}

// LoggingMiddleware logs each request with its outcome and duration.
func LoggingMiddleware(logger *zap.Logger) Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) (interface{}, error) {
			start := time.Now()
			fields := []zap.Field{
				zap.String("subject", req.Subject),
				zap.String("request_id", req.ID),
			}

			logger.Debug("Processing request", fields...)
			reply, err := next(ctx, req)
			fields = append(fields, zap.Duration("duration", time.Since(start)))
			if err != nil {
				code := sdkerrors.Code(err)
				fields = append(fields, zap.String("code", code), zap.Error(err))
				if code == "INTERNAL" {
					logger.Error("Request failed", fields...)
				} else {
					logger.Info("Request rejected", fields...)
				}
				return nil, err
			}
			logger.Debug("Request completed", fields...)
			return reply, nil
		}
	}
}

// TimeoutMiddleware bounds each request with timeout.
func TimeoutMiddleware(timeout time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		if timeout <= 0 {
			return next
		}
		return func(ctx context.Context, req *Request) (interface{}, error) {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			return next(ctx, req)
		}
	}
}
