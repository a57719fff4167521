package gateway

import (
	"time"

	"github.com/soyeahso/mercora/internal/agentctx"
	"github.com/soyeahso/mercora/internal/auth"
	"github.com/soyeahso/mercora/internal/commerce"
	"github.com/soyeahso/mercora/internal/config"
	"github.com/soyeahso/mercora/internal/logging"
	"github.com/soyeahso/mercora/internal/metrics"
	"github.com/soyeahso/mercora/internal/ratelimit"
	"github.com/soyeahso/mercora/internal/store"
)

// Deps are the stores and services the tool handlers call.
type Deps struct {
	DB       *store.DB
	Agents   *store.AgentStore
	Sessions *store.SessionStore
	Products *store.ProductStore
	Orders   *store.OrderStore
	Limiter  *ratelimit.Limiter
	Auth     *auth.Authenticator
	Failures *auth.FailureLimiter
	Context  *agentctx.Parser
	Pricing  commerce.Pricing
}

// NewDeps wires every store and service over db from cfg. m may be nil.
func NewDeps(cfg config.Config, db *store.DB, log *logging.Logger, m *metrics.Metrics) Deps {
	agents := store.NewAgentStore(db, store.AgentLimits{
		RequestsPerMinute: cfg.RateLimit.DefaultRequestsPerMinute,
		OperationsPerHour: cfg.RateLimit.DefaultOperationsPerHour,
	})
	limiter := ratelimit.New(store.NewRateLimitStore(db), log, m)
	failures := auth.NewFailureLimiter()

	return Deps{
		DB:       db,
		Agents:   agents,
		Sessions: store.NewSessionStore(db, time.Duration(cfg.Session.TTLHours)*time.Hour),
		Products: store.NewProductStore(db),
		Orders:   store.NewOrderStore(db),
		Limiter:  limiter,
		Auth:     auth.New(agents, limiter, failures, log, m),
		Failures: failures,
		Context:  agentctx.NewParser(cfg.Context.MaxBytes, log),
		Pricing: commerce.NewPricing(
			cfg.Commerce.Currency,
			cfg.Commerce.TaxRatePercent,
			cfg.Commerce.FreeShippingThreshold,
		),
	}
}
