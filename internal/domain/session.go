package domain

import (
	"encoding/json"
	"time"
)

// LegacyTempSessionID is the placeholder older clients send when they have
// no session. It is treated the same as an omitted session id.
const LegacyTempSessionID = "temp"

// Preferences is the shopper preference bag carried by a session.
type Preferences struct {
	Budget          *float64 `json:"budget,omitempty"`
	Brands          []string `json:"brands,omitempty"`
	Activities      []string `json:"activities,omitempty"`
	Location        string   `json:"location,omitempty"`
	ExperienceLevel string   `json:"experience_level,omitempty"`
}

// UserContext describes the human an agent is shopping for.
type UserContext struct {
	UserID         string       `json:"user_id,omitempty"`
	Preferences    *Preferences `json:"preferences,omitempty"`
	SessionContext string       `json:"session_context,omitempty"`
}

// IsZero reports whether no field is set.
func (u UserContext) IsZero() bool {
	return u.UserID == "" && u.Preferences == nil && u.SessionContext == ""
}

// Merge overlays the non-empty fields of other onto u. Preference fields
// are merged individually.
func (u UserContext) Merge(other UserContext) UserContext {
	out := u
	if other.UserID != "" {
		out.UserID = other.UserID
	}
	if other.SessionContext != "" {
		out.SessionContext = other.SessionContext
	}
	if other.Preferences != nil {
		var p Preferences
		if u.Preferences != nil {
			p = *u.Preferences
		}
		o := other.Preferences
		if o.Budget != nil {
			b := *o.Budget
			p.Budget = &b
		}
		if o.Brands != nil {
			p.Brands = append([]string(nil), o.Brands...)
		}
		if o.Activities != nil {
			p.Activities = append([]string(nil), o.Activities...)
		}
		if o.Location != "" {
			p.Location = o.Location
		}
		if o.ExperienceLevel != "" {
			p.ExperienceLevel = o.ExperienceLevel
		}
		out.Preferences = &p
	}
	return out
}

// CartItem is one line of a session cart.
type CartItem struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// UnmarshalJSON accepts both product_id and the camelCase productId that
// browser-side tooling emits.
func (c *CartItem) UnmarshalJSON(data []byte) error {
	var raw struct {
		ProductID      string `json:"product_id"`
		ProductIDCamel string `json:"productId"`
		Quantity       int    `json:"quantity"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	c.ProductID = raw.ProductID
	if c.ProductID == "" {
		c.ProductID = raw.ProductIDCamel
	}
	c.Quantity = raw.Quantity
	return nil
}

// Session is ephemeral, TTL-bound shopping state owned by one agent.
type Session struct {
	ID           string      `json:"session_id"`
	AgentID      string      `json:"agent_id"`
	UserContext  UserContext `json:"user_context"`
	Cart         []CartItem  `json:"cart"`
	CreatedAt    time.Time   `json:"created_at"`
	ExpiresAt    time.Time   `json:"expires_at"`
	LastActivity time.Time   `json:"last_activity"`
}

// Expired reports whether the session is past its expiry at now.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// OwnedBy reports whether agentID created the session.
func (s *Session) OwnedBy(agentID string) bool {
	return s.AgentID == agentID
}

// SessionUpdate is a partial update; nil fields are left unchanged.
type SessionUpdate struct {
	UserContext *UserContext `json:"user_context,omitempty"`
	Cart        *[]CartItem  `json:"cart,omitempty"`
}

// SessionRef names the session a tool call operates on: either a stored
// session or the ephemeral, request-scoped one.
type SessionRef struct {
	id string
}

// EphemeralSession is the reference used when a caller supplies no session.
var EphemeralSession = SessionRef{}

// NamedSession references a stored session by id.
func NamedSession(id string) SessionRef {
	return SessionRef{id: id}
}

// ParseSessionRef maps a raw session_id body field to a reference. Empty
// and the legacy "temp" placeholder both resolve to the ephemeral session.
func ParseSessionRef(raw string) SessionRef {
	if raw == "" || raw == LegacyTempSessionID {
		return EphemeralSession
	}
	return NamedSession(raw)
}

// Ephemeral reports whether the reference has no stored session.
func (r SessionRef) Ephemeral() bool { return r.id == "" }

// ID returns the stored session id, or "" for the ephemeral session.
func (r SessionRef) ID() string { return r.id }
