// Package ratelimit throttles chat turns per client.
package ratelimit

import (
	"context"
	"net/http"
	"strings"
)

// Limiter decides whether a request identified by key may proceed.
// Implementations must be safe for concurrent use. An error means the
// limiter itself failed; callers let the request through.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
	Close() error
}

// NoopLimiter permits every request.
type NoopLimiter struct{}

func (NoopLimiter) Allow(context.Context, string) (bool, error) { return true, nil }
func (NoopLimiter) Close() error                                { return nil }

// New returns a MemoryLimiter when enabled and a NoopLimiter otherwise.
func New(enabled bool, rps float64, burst int) Limiter {
	if !enabled {
		return NoopLimiter{}
	}
	return NewMemoryLimiter(rps, burst)
}

// IPKey keys requests by RemoteAddr host. Forwarded headers are ignored.
func IPKey(r *http.Request) string {
	addr := r.RemoteAddr
	if idx := strings.LastIndex(addr, ":"); idx != -1 {
		return addr[:idx]
	}
	return addr
}
