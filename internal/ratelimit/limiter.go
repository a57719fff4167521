// Package ratelimit bounds how many calls an agent makes per fixed window.
package ratelimit

import (
	"context"
	"math"
	"time"

	"github.com/soyeahso/mercora/internal/domain"
	"github.com/soyeahso/mercora/internal/logging"
	"github.com/soyeahso/mercora/internal/mcp"
	"github.com/soyeahso/mercora/internal/metrics"
	"github.com/soyeahso/mercora/internal/store"
)

// Counters is the storage the limiter counts against.
type Counters interface {
	Increment(ctx context.Context, agentID string, g domain.Granularity, limit int) (store.Window, error)
	Current(ctx context.Context, agentID string, g domain.Granularity) (int, error)
	Release(ctx context.Context, agentID string, g domain.Granularity, start time.Time) error
}

// Limiter checks and counts agent calls in minute and hour windows.
type Limiter struct {
	counters Counters
	log      *logging.Logger
	metrics  *metrics.Metrics
}

// New creates a limiter. m may be nil.
func New(counters Counters, log *logging.Logger, m *metrics.Metrics) *Limiter {
	return &Limiter{counters: counters, log: log.Sub("ratelimit"), metrics: m}
}

// CheckAndIncrement counts one call against the agent's current window for
// g. It returns RATE_LIMIT_EXCEEDED with the seconds left in the window when
// the agent's limit is already reached, and RATE_LIMIT_CHECK_FAILED when
// the counter could not be consulted. A failed check never lets the call
// through.
func (l *Limiter) CheckAndIncrement(ctx context.Context, agent *domain.Agent, g domain.Granularity) error {
	_, err := l.take(ctx, agent, g)
	return err
}

// Reserve counts one call like CheckAndIncrement and returns a func that
// gives the slot back. Callers release when the counted operation fails
// after the check, so the agent is not charged for it.
func (l *Limiter) Reserve(ctx context.Context, agent *domain.Agent, g domain.Granularity) (release func(context.Context), err error) {
	w, err := l.take(ctx, agent, g)
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context) {
		if err := l.counters.Release(ctx, agent.ID, g, w.Start); err != nil {
			l.log.Warn().Err(err).Str("agent", agent.ID).Str("window", string(g)).Msg("releasing rate limit slot failed")
		}
	}, nil
}

func (l *Limiter) take(ctx context.Context, agent *domain.Agent, g domain.Granularity) (store.Window, error) {
	limit := agent.Limit(g)
	w, err := l.counters.Increment(ctx, agent.ID, g, limit)
	if err != nil {
		l.log.Error().Err(err).Str("agent", agent.ID).Str("window", string(g)).Msg("rate limit check failed")
		return w, mcp.Errorf(mcp.CodeRateLimitCheckFailed, "could not check the %s rate limit", g).WithCause(err)
	}
	if w.Allowed {
		return w, nil
	}

	retry := retryAfterSeconds(w.RetryAfter)
	l.log.Warn().
		Str("agent", agent.ID).
		Str("window", string(g)).
		Int("limit", limit).
		Int("retry_after", retry).
		Msg("rate limit exceeded")
	l.metrics.RateLimited(string(g))
	return w, mcp.RateLimited(string(g), limit, retry)
}

// Usage returns the agent's counts in its current minute and hour windows.
func (l *Limiter) Usage(ctx context.Context, agentID string) (minute, hour int, err error) {
	minute, err = l.counters.Current(ctx, agentID, domain.WindowMinute)
	if err != nil {
		return 0, 0, mcp.Database("reading minute usage", err)
	}
	hour, err = l.counters.Current(ctx, agentID, domain.WindowHour)
	if err != nil {
		return 0, 0, mcp.Database("reading hour usage", err)
	}
	return minute, hour, nil
}

// retryAfterSeconds rounds up so a client that waits exactly this long
// lands in the next window.
func retryAfterSeconds(d time.Duration) int {
	s := int(math.Ceil(d.Seconds()))
	if s < 1 {
		return 1
	}
	return s
}
