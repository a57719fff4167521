package store

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/soyeahso/mercora/internal/domain"
	"github.com/soyeahso/mercora/internal/mcp"
)

const (
	apiKeyPrefix     = "mcp_"
	minAgentIDLength = 3
	minNameLength    = 3
	maxAgentIDLength = 64
)

// AgentLimits are the rate limits applied when a new agent specifies none.
type AgentLimits struct {
	RequestsPerMinute int
	OperationsPerHour int
}

// DefaultAgentLimits matches the limits documented for agent creation.
var DefaultAgentLimits = AgentLimits{RequestsPerMinute: 100, OperationsPerHour: 10}

// NewAgent describes an agent to register.
type NewAgent struct {
	ID                string   `json:"agent_id"`
	Name              string   `json:"name"`
	Description       string   `json:"description,omitempty"`
	Permissions       []string `json:"permissions,omitempty"`
	RequestsPerMinute int      `json:"requests_per_minute,omitempty"`
	OperationsPerHour int      `json:"operations_per_hour,omitempty"`
}

// AgentStore is the registry of agent credentials and configuration.
type AgentStore struct {
	db       *DB
	defaults AgentLimits
}

// NewAgentStore creates an agent registry. Zero limits fall back to
// DefaultAgentLimits.
func NewAgentStore(db *DB, defaults AgentLimits) *AgentStore {
	if defaults.RequestsPerMinute <= 0 {
		defaults.RequestsPerMinute = DefaultAgentLimits.RequestsPerMinute
	}
	if defaults.OperationsPerHour <= 0 {
		defaults.OperationsPerHour = DefaultAgentLimits.OperationsPerHour
	}
	return &AgentStore{db: db, defaults: defaults}
}

// Create registers a new active agent and returns its API key. The key is
// only ever returned here; the registry keeps a hash.
func (s *AgentStore) Create(ctx context.Context, in NewAgent) (string, error) {
	in.ID = strings.TrimSpace(in.ID)
	in.Name = strings.TrimSpace(in.Name)

	if len(in.ID) < minAgentIDLength {
		return "", mcp.Validation("agent_id", fmt.Sprintf("must be at least %d characters", minAgentIDLength))
	}
	if len(in.ID) > maxAgentIDLength {
		return "", mcp.Validation("agent_id", fmt.Sprintf("must be at most %d characters", maxAgentIDLength))
	}
	if strings.ContainsAny(in.ID, " /?#") {
		return "", mcp.Validation("agent_id", "must not contain spaces, '/', '?' or '#'")
	}
	if len(in.Name) < minNameLength {
		return "", mcp.Validation("name", fmt.Sprintf("must be at least %d characters", minNameLength))
	}
	if in.RequestsPerMinute < 0 {
		return "", mcp.Validation("requests_per_minute", "must not be negative")
	}
	if in.OperationsPerHour < 0 {
		return "", mcp.Validation("operations_per_hour", "must not be negative")
	}
	if in.RequestsPerMinute == 0 {
		in.RequestsPerMinute = s.defaults.RequestsPerMinute
	}
	if in.OperationsPerHour == 0 {
		in.OperationsPerHour = s.defaults.OperationsPerHour
	}
	if len(in.Permissions) == 0 {
		in.Permissions = domain.DefaultPermissions
	}

	apiKey, err := generateAPIKey()
	if err != nil {
		return "", mcp.NewError(mcp.CodeInternal, "generating api key").WithCause(err)
	}

	perms, err := json.Marshal(in.Permissions)
	if err != nil {
		return "", mcp.NewError(mcp.CodeInternal, "encoding permissions").WithCause(err)
	}

	err = s.db.withTx(ctx, func(tx *sql.Tx) error {
		var exists int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM agents WHERE id = ?`, in.ID).Scan(&exists); err != nil {
			return mcp.Database("checking agent id", err)
		}
		if exists > 0 {
			return mcp.Validation("agent_id", "already exists")
		}

		_, err := tx.ExecContext(ctx,
			`INSERT INTO agents (id, name, description, api_key_hash, api_key_prefix, permissions,
			                     requests_per_minute, operations_per_hour, is_active, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1, ?)`,
			in.ID, in.Name, in.Description, hashAPIKey(apiKey), apiKey[:len(apiKeyPrefix)+6], string(perms),
			in.RequestsPerMinute, in.OperationsPerHour, formatTime(s.db.Now()),
		)
		if err != nil {
			return mcp.Database("inserting agent", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	s.db.log.Info().Str("agent", in.ID).Int("rpm", in.RequestsPerMinute).Msg("agent created")
	return apiKey, nil
}

const agentColumns = `id, name, description, permissions, requests_per_minute, operations_per_hour,
	is_active, created_at, last_used_at`

// GetByAPIKey resolves an API key to an active agent. Returns nil, nil when
// no active agent holds the key.
func (s *AgentStore) GetByAPIKey(ctx context.Context, apiKey string) (*domain.Agent, error) {
	if apiKey == "" {
		return nil, nil
	}
	row := s.db.sql.QueryRowContext(ctx,
		`SELECT `+agentColumns+` FROM agents WHERE api_key_hash = ? AND is_active = 1`,
		hashAPIKey(apiKey),
	)
	a, err := scanAgent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, mcp.Database("looking up api key", err)
	}
	return a, nil
}

// Get returns an agent by id regardless of its active flag, or nil, nil.
func (s *AgentStore) Get(ctx context.Context, id string) (*domain.Agent, error) {
	row := s.db.sql.QueryRowContext(ctx, `SELECT `+agentColumns+` FROM agents WHERE id = ?`, id)
	a, err := scanAgent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, mcp.Database("loading agent", err)
	}
	return a, nil
}

// List returns one page of agents, newest first, with their current usage.
// Bounds on page and limit are the caller's responsibility.
func (s *AgentStore) List(ctx context.Context, page, limit int) ([]domain.AgentWithUsage, int, error) {
	var total int
	if err := s.db.sql.QueryRowContext(ctx, `SELECT COUNT(*) FROM agents`).Scan(&total); err != nil {
		return nil, 0, mcp.Database("counting agents", err)
	}

	now := s.db.Now()
	rows, err := s.db.sql.QueryContext(ctx,
		`SELECT `+agentColumns+`,
		        COALESCE((SELECT count FROM rate_limits r
		                  WHERE r.agent_id = agents.id AND r.granularity = 'minute' AND r.window_start = ?), 0),
		        COALESCE((SELECT count FROM rate_limits r
		                  WHERE r.agent_id = agents.id AND r.granularity = 'hour' AND r.window_start = ?), 0),
		        (SELECT COUNT(*) FROM agent_sessions s
		         WHERE s.agent_id = agents.id AND s.expires_at > ?)
		 FROM agents
		 ORDER BY created_at DESC, id
		 LIMIT ? OFFSET ?`,
		formatTime(domain.WindowMinute.WindowStart(now)),
		formatTime(domain.WindowHour.WindowStart(now)),
		formatTime(now),
		limit, (page-1)*limit,
	)
	if err != nil {
		return nil, 0, mcp.Database("listing agents", err)
	}
	defer rows.Close()

	out := []domain.AgentWithUsage{}
	for rows.Next() {
		var (
			a        domain.Agent
			perms    string
			active   int
			created  string
			lastUsed sql.NullString
			usage    domain.AgentUsage
		)
		if err := rows.Scan(&a.ID, &a.Name, &a.Description, &perms, &a.RequestsPerMinute,
			&a.OperationsPerHour, &active, &created, &lastUsed,
			&usage.RequestsThisMinute, &usage.OperationsThisHour, &usage.ActiveSessions); err != nil {
			return nil, 0, mcp.Database("scanning agent", err)
		}
		if err := fillAgent(&a, perms, active, created, lastUsed); err != nil {
			return nil, 0, mcp.Database("loading agent", err)
		}
		out = append(out, domain.AgentWithUsage{Agent: a, Usage: usage})
	}
	if err := rows.Err(); err != nil {
		return nil, 0, mcp.Database("listing agents", err)
	}
	return out, total, nil
}

// SetActive changes an agent's active flag and returns the previous value.
func (s *AgentStore) SetActive(ctx context.Context, id string, active bool) (bool, error) {
	var previous bool
	err := s.db.withTx(ctx, func(tx *sql.Tx) error {
		var cur int
		err := tx.QueryRowContext(ctx, `SELECT is_active FROM agents WHERE id = ?`, id).Scan(&cur)
		if errors.Is(err, sql.ErrNoRows) {
			return mcp.NotFound("agent", id)
		}
		if err != nil {
			return mcp.Database("loading agent", err)
		}
		previous = cur == 1

		if _, err := tx.ExecContext(ctx, `UPDATE agents SET is_active = ? WHERE id = ?`, boolInt(active), id); err != nil {
			return mcp.Database("updating agent status", err)
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	s.db.log.Info().Str("agent", id).Bool("active", active).Bool("previous", previous).Msg("agent status changed")
	return previous, nil
}

// TouchLastUsed records that the agent just made an authenticated call.
func (s *AgentStore) TouchLastUsed(ctx context.Context, id string) error {
	_, err := s.db.sql.ExecContext(ctx,
		`UPDATE agents SET last_used_at = ? WHERE id = ?`, formatTime(s.db.Now()), id)
	if err != nil {
		return mcp.Database("touching agent", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAgent(row rowScanner) (*domain.Agent, error) {
	var (
		a        domain.Agent
		perms    string
		active   int
		created  string
		lastUsed sql.NullString
	)
	if err := row.Scan(&a.ID, &a.Name, &a.Description, &perms, &a.RequestsPerMinute,
		&a.OperationsPerHour, &active, &created, &lastUsed); err != nil {
		return nil, err
	}
	if err := fillAgent(&a, perms, active, created, lastUsed); err != nil {
		return nil, err
	}
	return &a, nil
}

func fillAgent(a *domain.Agent, perms string, active int, created string, lastUsed sql.NullString) error {
	if err := json.Unmarshal([]byte(perms), &a.Permissions); err != nil {
		return fmt.Errorf("decoding permissions of agent %s: %w", a.ID, err)
	}
	a.Active = active == 1
	a.CreatedAt = parseTime(created)
	if lastUsed.Valid {
		t := parseTime(lastUsed.String)
		a.LastUsedAt = &t
	}
	return nil
}

func generateAPIKey() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return apiKeyPrefix + hex.EncodeToString(b), nil
}

func hashAPIKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
