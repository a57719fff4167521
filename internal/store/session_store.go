package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/soyeahso/mercora/internal/domain"
	"github.com/soyeahso/mercora/internal/mcp"
)

// DefaultSessionTTL is how long a session lives after creation.
const DefaultSessionTTL = 24 * time.Hour

// SessionStore persists agent shopping sessions. It does not check
// ownership; callers compare Session.AgentID with the calling agent.
type SessionStore struct {
	db  *DB
	ttl time.Duration
}

// NewSessionStore creates a session store. A non-positive ttl uses
// DefaultSessionTTL.
func NewSessionStore(db *DB, ttl time.Duration) *SessionStore {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionStore{db: db, ttl: ttl}
}

// TTL returns the fixed session lifetime.
func (s *SessionStore) TTL() time.Duration { return s.ttl }

// CreateSession starts a session for agentID with an empty cart.
func (s *SessionStore) CreateSession(ctx context.Context, agentID string, uc domain.UserContext) (*domain.Session, error) {
	now := s.db.Now()
	sess := &domain.Session{
		ID:           newSessionID(agentID, now),
		AgentID:      agentID,
		UserContext:  uc,
		Cart:         []domain.CartItem{},
		CreatedAt:    now,
		ExpiresAt:    now.Add(s.ttl),
		LastActivity: now,
	}

	ucJSON, err := json.Marshal(sess.UserContext)
	if err != nil {
		return nil, mcp.NewError(mcp.CodeInternal, "encoding user context").WithCause(err)
	}

	_, err = s.db.sql.ExecContext(ctx,
		`INSERT INTO agent_sessions (id, agent_id, user_context, cart, created_at, expires_at, last_activity)
		 VALUES (?, ?, ?, '[]', ?, ?, ?)`,
		sess.ID, agentID, string(ucJSON),
		formatTime(sess.CreatedAt), formatTime(sess.ExpiresAt), formatTime(sess.LastActivity),
	)
	if err != nil {
		return nil, mcp.Database("creating session", err)
	}

	s.db.log.Debug().Str("session", sess.ID).Str("agent", agentID).Msg("session created")
	return sess, nil
}

const sessionColumns = `id, agent_id, user_context, cart, created_at, expires_at, last_activity`

// GetSession returns a live session or nil, nil. A session read at or past
// its expiry is deleted and reported absent.
func (s *SessionStore) GetSession(ctx context.Context, id string) (*domain.Session, error) {
	row := s.db.sql.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM agent_sessions WHERE id = ?`, id)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, mcp.Database("loading session", err)
	}

	if sess.Expired(s.db.Now()) {
		if _, err := s.db.sql.ExecContext(ctx, `DELETE FROM agent_sessions WHERE id = ?`, id); err != nil {
			s.db.log.Warn().Err(err).Str("session", id).Msg("failed to purge expired session")
		} else {
			s.db.log.Debug().Str("session", id).Msg("expired session purged on read")
		}
		return nil, nil
	}
	return sess, nil
}

// UpdateSession merges user context and replaces the cart when given. The
// last activity marker always moves; the expiry never does. Returns false
// when the session is absent or expired.
func (s *SessionStore) UpdateSession(ctx context.Context, id string, upd domain.SessionUpdate) (bool, error) {
	updated := false
	err := s.db.withTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM agent_sessions WHERE id = ?`, id)
		sess, err := scanSession(row)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return mcp.Database("loading session", err)
		}

		now := s.db.Now()
		if sess.Expired(now) {
			_, err := tx.ExecContext(ctx, `DELETE FROM agent_sessions WHERE id = ?`, id)
			if err != nil {
				return mcp.Database("purging session", err)
			}
			return nil
		}

		if upd.UserContext != nil {
			sess.UserContext = sess.UserContext.Merge(*upd.UserContext)
		}
		if upd.Cart != nil {
			sess.Cart = append([]domain.CartItem{}, (*upd.Cart)...)
		}

		ucJSON, err := json.Marshal(sess.UserContext)
		if err != nil {
			return mcp.NewError(mcp.CodeInternal, "encoding user context").WithCause(err)
		}
		cartJSON, err := json.Marshal(sess.Cart)
		if err != nil {
			return mcp.NewError(mcp.CodeInternal, "encoding cart").WithCause(err)
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE agent_sessions SET user_context = ?, cart = ?, last_activity = ? WHERE id = ?`,
			string(ucJSON), string(cartJSON), formatTime(now), id,
		)
		if err != nil {
			return mcp.Database("updating session", err)
		}
		updated = true
		return nil
	})
	return updated, err
}

// DeleteSession removes a session. Returns false when nothing was deleted.
func (s *SessionStore) DeleteSession(ctx context.Context, id string) (bool, error) {
	res, err := s.db.sql.ExecContext(ctx, `DELETE FROM agent_sessions WHERE id = ?`, id)
	if err != nil {
		return false, mcp.Database("deleting session", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// CleanupExpiredSessions deletes every session at or past its expiry.
func (s *SessionStore) CleanupExpiredSessions(ctx context.Context) (int64, error) {
	res, err := s.db.sql.ExecContext(ctx,
		`DELETE FROM agent_sessions WHERE expires_at <= ?`, formatTime(s.db.Now()))
	if err != nil {
		return 0, mcp.Database("sweeping sessions", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		s.db.log.Info().Int64("removed", n).Msg("expired sessions swept")
	}
	return n, nil
}

// GetActiveSessionsForAgent lists the agent's unexpired sessions, newest first.
func (s *SessionStore) GetActiveSessionsForAgent(ctx context.Context, agentID string) ([]domain.Session, error) {
	rows, err := s.db.sql.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM agent_sessions
		 WHERE agent_id = ? AND expires_at > ?
		 ORDER BY created_at DESC, id`,
		agentID, formatTime(s.db.Now()),
	)
	if err != nil {
		return nil, mcp.Database("listing sessions", err)
	}
	defer rows.Close()

	out := []domain.Session{}
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, mcp.Database("scanning session", err)
		}
		out = append(out, *sess)
	}
	if err := rows.Err(); err != nil {
		return nil, mcp.Database("listing sessions", err)
	}
	return out, nil
}

// CountActive returns the number of unexpired sessions across all agents.
func (s *SessionStore) CountActive(ctx context.Context) (int, error) {
	var n int
	err := s.db.sql.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM agent_sessions WHERE expires_at > ?`, formatTime(s.db.Now()),
	).Scan(&n)
	if err != nil {
		return 0, mcp.Database("counting sessions", err)
	}
	return n, nil
}

func scanSession(row rowScanner) (*domain.Session, error) {
	var (
		sess                       domain.Session
		ucJSON, cartJSON           string
		created, expires, activity string
	)
	if err := row.Scan(&sess.ID, &sess.AgentID, &ucJSON, &cartJSON, &created, &expires, &activity); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(ucJSON), &sess.UserContext); err != nil {
		return nil, fmt.Errorf("decoding user context: %w", err)
	}
	if err := json.Unmarshal([]byte(cartJSON), &sess.Cart); err != nil {
		return nil, fmt.Errorf("decoding cart: %w", err)
	}
	if sess.Cart == nil {
		sess.Cart = []domain.CartItem{}
	}
	sess.CreatedAt = parseTime(created)
	sess.ExpiresAt = parseTime(expires)
	sess.LastActivity = parseTime(activity)
	return &sess, nil
}

// newSessionID joins the agent id, the creation time and a random suffix.
func newSessionID(agentID string, now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%s_%d_%s", agentID, now.UnixMilli(), suffix)
}
