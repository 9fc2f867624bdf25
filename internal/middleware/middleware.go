// Package middleware provides HTTP middleware for the room lifecycle API.
package middleware

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/devrev/tempvoice/internal/config"
	apperrors "github.com/devrev/tempvoice/internal/errors"
	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ContextKey is a type for context keys.
type ContextKey string

const (
	RequestIDKey ContextKey = "request_id"
	MemberIDKey  ContextKey = "member_id"
)

// Header names read and written by the middleware.
const (
	HeaderRequestID = "X-Request-ID"
	HeaderMemberID  = "X-Member-ID"
)

// RequestID tags each request with the caller's X-Request-ID or a fresh UUID.
// The ID is echoed on the response and kept on the request header so error
// writers further down can report it.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(HeaderRequestID)
		if requestID == "" {
			requestID = uuid.NewString()
			r.Header.Set(HeaderRequestID, requestID)
		}
		w.Header().Set(HeaderRequestID, requestID)

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), RequestIDKey, requestID)))
	})
}

// MemberID stores the X-Member-ID header in the request context.
func MemberID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if memberID := r.Header.Get(HeaderMemberID); memberID != "" {
			r = r.WithContext(context.WithValue(r.Context(), MemberIDKey, memberID))
		}
		next.ServeHTTP(w, r)
	})
}

func MemberIDFrom(ctx context.Context) string {
	memberID, _ := ctx.Value(MemberIDKey).(string)
	return memberID
}

func RequestIDFrom(ctx context.Context) string {
	requestID, _ := ctx.Value(RequestIDKey).(string)
	return requestID
}

// Logging writes one line per request once the handler returns.
func Logging(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)

			level := zap.DebugLevel
			if sw.status >= http.StatusInternalServerError {
				level = zap.WarnLevel
			} else if r.Method != http.MethodGet {
				level = zap.InfoLevel
			}
			logger.Log(level, "Request served",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", sw.status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", RequestIDFrom(r.Context())),
				zap.String("member_id", MemberIDFrom(r.Context())))
		})
	}
}

// Recovery turns a handler panic into a 500 error envelope.
func Recovery(errorHandler *apperrors.Handler, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("Handler panicked",
						zap.Any("panic", rec),
						zap.String("path", r.URL.Path),
						zap.String("request_id", r.Header.Get(HeaderRequestID)),
						zap.Stack("stack"))
					errorHandler.WriteInternalError(w, "internal server error", r.Header.Get(HeaderRequestID))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

const (
	maxTrackedCallers = 10000
	callerIdleTTL     = 10 * time.Minute
)

// RateLimiter throttles each caller separately. Callers are keyed by member ID,
// or by remote host for anonymous traffic such as platform event pushes.
type RateLimiter struct {
	limit        rate.Limit
	burst        int
	errorHandler *apperrors.Handler
	logger       *zap.Logger

	mu      sync.Mutex
	callers *expirable.LRU[string, *rate.Limiter]
}

func NewRateLimiter(cfg config.RateLimiterConfig, errorHandler *apperrors.Handler, logger *zap.Logger) *RateLimiter {
	return &RateLimiter{
		limit:        rate.Limit(cfg.RequestsPerSecond),
		burst:        cfg.BurstSize,
		errorHandler: errorHandler,
		logger:       logger,
		callers:      expirable.NewLRU[string, *rate.Limiter](maxTrackedCallers, nil, callerIdleTTL),
	}
}

func (rl *RateLimiter) limiterFor(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if l, ok := rl.callers.Get(key); ok {
		return l
	}
	l := rate.NewLimiter(rl.limit, rl.burst)
	rl.callers.Add(key, l)
	return l
}

// Limit rejects a caller's request with 429 once its bucket is empty.
func (rl *RateLimiter) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := callerKey(r)
		if !rl.limiterFor(key).Allow() {
			rl.logger.Warn("Caller rate limited",
				zap.String("caller", key),
				zap.String("path", r.URL.Path))
			w.Header().Set("Retry-After", "1")
			rl.errorHandler.WriteRateLimitedError(w, r.Header.Get(HeaderRequestID))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func callerKey(r *http.Request) string {
	if memberID := MemberIDFrom(r.Context()); memberID != "" {
		return "member:" + memberID
	}
	if memberID := r.Header.Get(HeaderMemberID); memberID != "" {
		return "member:" + memberID
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "addr:" + host
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (sw *statusWriter) WriteHeader(code int) {
	sw.status = code
	sw.ResponseWriter.WriteHeader(code)
}

// Chain composes middleware so the first argument runs outermost.
func Chain(middlewares ...func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(final http.Handler) http.Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			final = middlewares[i](final)
		}
		return final
	}
}
