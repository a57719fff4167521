package domain

import (
	"slices"
	"time"
)

// Permission names checked by the tool handlers.
const (
	PermissionAll       = "*"
	PermissionSearch    = "search"
	PermissionRecommend = "recommend"
	PermissionAssess    = "assess"
	PermissionCart      = "cart"
	PermissionOrder     = "order"
	PermissionPayment   = "payment"
	PermissionShipping  = "shipping"
	PermissionAdmin     = "admin"
)

// DefaultPermissions is granted to agents created without an explicit list.
var DefaultPermissions = []string{
	PermissionSearch,
	PermissionRecommend,
	PermissionAssess,
	PermissionCart,
	PermissionOrder,
	PermissionPayment,
	PermissionShipping,
}

// Agent is a machine client with its own credential and rate limits.
type Agent struct {
	ID                string     `json:"agent_id"`
	Name              string     `json:"name"`
	Description       string     `json:"description,omitempty"`
	APIKey            string     `json:"-"`
	Permissions       []string   `json:"permissions"`
	RequestsPerMinute int        `json:"requests_per_minute"`
	OperationsPerHour int        `json:"operations_per_hour"`
	Active            bool       `json:"is_active"`
	CreatedAt         time.Time  `json:"created_at"`
	LastUsedAt        *time.Time `json:"last_used_at,omitempty"`
}

// Can reports whether the agent holds the permission, directly or via "*".
func (a *Agent) Can(permission string) bool {
	return slices.Contains(a.Permissions, PermissionAll) || slices.Contains(a.Permissions, permission)
}

// Limit returns the configured request ceiling for a window granularity.
func (a *Agent) Limit(g Granularity) int {
	switch g {
	case WindowMinute:
		return a.RequestsPerMinute
	case WindowHour:
		return a.OperationsPerHour
	default:
		return 0
	}
}

// AgentUsage is a snapshot of an agent's current-window counters.
type AgentUsage struct {
	RequestsThisMinute int `json:"requests_this_minute"`
	OperationsThisHour int `json:"operations_this_hour"`
	ActiveSessions     int `json:"active_sessions"`
}

// AgentWithUsage pairs an agent with its usage for admin listings.
type AgentWithUsage struct {
	Agent
	Usage AgentUsage `json:"usage"`
}
