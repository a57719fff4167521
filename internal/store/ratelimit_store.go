package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/soyeahso/mercora/internal/domain"
)

// RateLimitStore holds per-agent fixed-window request counters. Rows for
// past windows are kept; a new window always starts a new row.
type RateLimitStore struct {
	db *DB
}

// NewRateLimitStore creates a counter store.
func NewRateLimitStore(db *DB) *RateLimitStore {
	return &RateLimitStore{db: db}
}

// Window is the outcome of an increment attempt.
type Window struct {
	Granularity domain.Granularity
	Start       time.Time
	Count       int
	Limit       int
	Allowed     bool
	RetryAfter  time.Duration // set when the request was rejected
}

// ResetsIn returns the time left until the window rolls over.
func (w Window) ResetsIn(now time.Time) time.Duration {
	d := w.Start.Add(w.Granularity.Duration()).Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// Increment counts one request against the agent's current window unless
// the window has already reached limit. The check and the increment are one
// statement, so concurrent callers cannot both take the last slot.
func (s *RateLimitStore) Increment(ctx context.Context, agentID string, g domain.Granularity, limit int) (Window, error) {
	now := s.db.Now()
	w := Window{Granularity: g, Start: g.WindowStart(now), Limit: limit}

	if limit <= 0 {
		count, err := s.Current(ctx, agentID, g)
		w.Count = count
		w.RetryAfter = w.ResetsIn(now)
		return w, err
	}

	var count int
	err := s.db.sql.QueryRowContext(ctx,
		`INSERT INTO rate_limits (agent_id, granularity, window_start, count)
		 VALUES (?, ?, ?, 1)
		 ON CONFLICT (agent_id, granularity, window_start)
		 DO UPDATE SET count = rate_limits.count + 1 WHERE rate_limits.count < ?
		 RETURNING count`,
		agentID, string(g), formatTime(w.Start), limit,
	).Scan(&count)

	if errors.Is(err, sql.ErrNoRows) {
		w.Count = limit
		w.RetryAfter = w.ResetsIn(now)
		return w, nil
	}
	if err != nil {
		return w, err
	}
	w.Count = count
	w.Allowed = true
	return w, nil
}

// Release gives back one request counted in the window starting at start.
// Counts never drop below zero.
func (s *RateLimitStore) Release(ctx context.Context, agentID string, g domain.Granularity, start time.Time) error {
	_, err := s.db.sql.ExecContext(ctx,
		`UPDATE rate_limits SET count = count - 1
		 WHERE agent_id = ? AND granularity = ? AND window_start = ? AND count > 0`,
		agentID, string(g), formatTime(start),
	)
	return err
}

// Current returns the count recorded in the agent's current window.
func (s *RateLimitStore) Current(ctx context.Context, agentID string, g domain.Granularity) (int, error) {
	var count int
	err := s.db.sql.QueryRowContext(ctx,
		`SELECT count FROM rate_limits WHERE agent_id = ? AND granularity = ? AND window_start = ?`,
		agentID, string(g), formatTime(g.WindowStart(s.db.Now())),
	).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return count, err
}
