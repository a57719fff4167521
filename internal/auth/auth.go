// Package auth turns an inbound request into a verified agent or a
// classified rejection. It is the only gate in front of the tool handlers.
package auth

import (
	"context"
	"net/http"

	"github.com/soyeahso/mercora/internal/domain"
	"github.com/soyeahso/mercora/internal/logging"
	"github.com/soyeahso/mercora/internal/mcp"
	"github.com/soyeahso/mercora/internal/metrics"
)

// AgentLookup resolves API keys and records use.
type AgentLookup interface {
	GetByAPIKey(ctx context.Context, apiKey string) (*domain.Agent, error)
	TouchLastUsed(ctx context.Context, agentID string) error
}

// RateChecker counts a call against an agent window.
type RateChecker interface {
	CheckAndIncrement(ctx context.Context, agent *domain.Agent, g domain.Granularity) error
}

// Authenticator verifies credentials and applies the per-minute limit.
type Authenticator struct {
	agents   AgentLookup
	limiter  RateChecker
	failures *FailureLimiter
	log      *logging.Logger
	metrics  *metrics.Metrics
}

// New creates an authenticator. failures and m may be nil.
func New(agents AgentLookup, limiter RateChecker, failures *FailureLimiter, log *logging.Logger, m *metrics.Metrics) *Authenticator {
	return &Authenticator{
		agents:   agents,
		limiter:  limiter,
		failures: failures,
		log:      log.Sub("auth"),
		metrics:  m,
	}
}

// Authenticate resolves r's credential to an active agent, counts the call
// against the agent's minute window and stamps its last use. Every failure
// is an *mcp.Error.
func (a *Authenticator) Authenticate(ctx context.Context, r *http.Request) (*domain.Agent, error) {
	if a.failures != nil {
		if ok, wait := a.failures.Allow(r.RemoteAddr); !ok {
			a.log.Warn().Str("remote", r.RemoteAddr).Msg("rate limited, too many failed auth attempts")
			e := mcp.NewError(mcp.CodeRateLimitExceeded, "too many failed authentication attempts")
			e.RetryAfter = retryAfterSeconds(wait)
			a.metrics.AuthFailure(string(e.Code))
			return nil, e
		}
	}

	key, source := ExtractCredential(r)
	if key == "" {
		a.metrics.AuthFailure(string(mcp.CodeMissingAPIKey))
		return nil, mcp.NewError(mcp.CodeMissingAPIKey, "API key required")
	}

	agent, err := a.agents.GetByAPIKey(ctx, key)
	if err != nil {
		a.log.Error().Err(err).Msg("api key lookup failed")
		return nil, mcp.AsError(err)
	}
	if agent == nil {
		if a.failures != nil {
			a.failures.RecordFailure(r.RemoteAddr)
		}
		a.log.Debug().Str("remote", r.RemoteAddr).Str("source", source).Msg("invalid api key")
		a.metrics.AuthFailure(string(mcp.CodeInvalidAPIKey))
		return nil, mcp.NewError(mcp.CodeInvalidAPIKey, "invalid or inactive API key")
	}

	if err := a.limiter.CheckAndIncrement(ctx, agent, domain.WindowMinute); err != nil {
		return nil, err
	}

	if err := a.agents.TouchLastUsed(ctx, agent.ID); err != nil {
		a.log.Warn().Err(err).Str("agent", agent.ID).Msg("failed to record last use")
	}

	return agent, nil
}

// RequirePermission returns PERMISSION_DENIED unless agent holds permission.
func RequirePermission(agent *domain.Agent, permission string) error {
	if agent.Can(permission) {
		return nil
	}
	e := mcp.Errorf(mcp.CodePermissionDenied, "agent lacks the %q permission", permission)
	e.Field = "permissions"
	return e
}
