package mcp

import "time"

// CallContext identifies who made a call and how long it took.
type CallContext struct {
	SessionID        string `json:"session_id"`
	AgentID          string `json:"agent_id"`
	ProcessingTimeMs int64  `json:"processing_time_ms"`
}

// Metadata carries fulfillment hints for autonomous callers.
type Metadata struct {
	CanFulfillPercentage  float64  `json:"can_fulfill_percentage"`
	EstimatedSatisfaction float64  `json:"estimated_satisfaction"`
	NextActions           []string `json:"next_actions"`
}

// Envelope is the body of every tool response.
type Envelope struct {
	Success         bool        `json:"success"`
	Data            any         `json:"data"`
	Context         CallContext `json:"context"`
	Error           *Error      `json:"error,omitempty"`
	Recommendations any         `json:"recommendations,omitempty"`
	Metadata        Metadata    `json:"metadata"`
}

// Result is what a tool's business logic produces on success.
type Result struct {
	Data            any
	Recommendations any
	CanFulfill      float64 // percentage, 0-100
	Satisfaction    float64 // 0-1
	NextActions     []string
}

// defaultNextActions is used when a successful tool offers no hints.
var defaultNextActions = []string{"Continue shopping"}

// Call measures one tool invocation and renders its envelope.
type Call struct {
	start     time.Time
	agentID   string
	sessionID string
	now       func() time.Time
}

// Begin starts timing a call.
func Begin() *Call {
	return BeginAt(time.Now)
}

// BeginAt starts timing a call against the given clock.
func BeginAt(now func() time.Time) *Call {
	return &Call{start: now(), now: now}
}

// Agent records the authenticated agent.
func (c *Call) Agent(id string) *Call {
	c.agentID = id
	return c
}

// Session records the session the call operated on. Ephemeral calls leave
// it empty.
func (c *Call) Session(id string) *Call {
	c.sessionID = id
	return c
}

// AgentID returns the recorded agent.
func (c *Call) AgentID() string { return c.agentID }

// SessionID returns the recorded session.
func (c *Call) SessionID() string { return c.sessionID }

func (c *Call) context() CallContext {
	return CallContext{
		SessionID:        c.sessionID,
		AgentID:          c.agentID,
		ProcessingTimeMs: c.now().Sub(c.start).Milliseconds(),
	}
}

// OK renders a successful envelope.
func (c *Call) OK(r Result) Envelope {
	next := r.NextActions
	if len(next) == 0 {
		next = defaultNextActions
	}
	return Envelope{
		Success:         true,
		Data:            r.Data,
		Context:         c.context(),
		Recommendations: r.Recommendations,
		Metadata: Metadata{
			CanFulfillPercentage:  clamp(r.CanFulfill, 0, 100),
			EstimatedSatisfaction: clamp(r.Satisfaction, 0, 1),
			NextActions:           next,
		},
	}
}

// Fail renders a failed envelope for err.
func (c *Call) Fail(err error) Envelope {
	me := AsError(err)
	return Envelope{
		Success: false,
		Context: c.context(),
		Error:   me,
		Metadata: Metadata{
			NextActions: me.NextActions(),
		},
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
