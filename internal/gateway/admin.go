package gateway

import (
	"context"
	"net/http"
	"strings"

	"github.com/soyeahso/mercora/internal/domain"
	"github.com/soyeahso/mercora/internal/hooks"
	"github.com/soyeahso/mercora/internal/mcp"
	"github.com/soyeahso/mercora/internal/store"
)

const (
	defaultAgentPageSize = 20
	maxAgentPageSize     = 100
)

type createAgentRequest struct {
	AgentID           string   `json:"agent_id"`
	Name              string   `json:"name"`
	Description       string   `json:"description"`
	Permissions       []string `json:"permissions"`
	RequestsPerMinute int      `json:"requests_per_minute"`
	OperationsPerHour int      `json:"operations_per_hour"`
}

// createAgentTool registers an agent. The API key appears in this response
// and nowhere else.
func (s *Server) createAgentTool(ctx context.Context, tr *toolRequest) (mcp.Result, error) {
	var req createAgentRequest
	if err := tr.bind(&req); err != nil {
		return mcp.Result{}, err
	}
	req.AgentID = strings.TrimSpace(req.AgentID)

	key, err := s.deps.Agents.Create(ctx, store.NewAgent{
		ID:                req.AgentID,
		Name:              req.Name,
		Description:       req.Description,
		Permissions:       req.Permissions,
		RequestsPerMinute: req.RequestsPerMinute,
		OperationsPerHour: req.OperationsPerHour,
	})
	if err != nil {
		return mcp.Result{}, err
	}
	agent, err := s.deps.Agents.Get(ctx, req.AgentID)
	if err != nil {
		return mcp.Result{}, err
	}
	if agent == nil {
		return mcp.Result{}, mcp.NotFound("agent", req.AgentID)
	}

	s.log.Info().Str("agent", agent.ID).Str("by", tr.agent.ID).Msg("agent created")
	s.emit(ctx, hooks.EventAgentCreated, map[string]any{
		"agent_id":   agent.ID,
		"name":       agent.Name,
		"created_by": tr.agent.ID,
	})

	tr.status = http.StatusCreated
	return mcp.Result{
		Data:        map[string]any{"agent": agent, "api_key": key},
		CanFulfill:  100,
		NextActions: []string{"Store the API key securely", "List agents"},
	}, nil
}

// listAgentsTool pages through agents, newest first, with their usage.
func (s *Server) listAgentsTool(ctx context.Context, tr *toolRequest) (mcp.Result, error) {
	page, err := tr.queryInt("page", 1)
	if err != nil {
		return mcp.Result{}, err
	}
	limit, err := tr.queryInt("limit", defaultAgentPageSize)
	if err != nil {
		return mcp.Result{}, err
	}
	if page < 1 {
		return mcp.Result{}, mcp.Validation("page", "must be at least 1")
	}
	if limit < 1 || limit > maxAgentPageSize {
		return mcp.Result{}, mcp.Validation("limit", "must be between 1 and 100")
	}

	agents, total, err := s.deps.Agents.List(ctx, page, limit)
	if err != nil {
		return mcp.Result{}, err
	}
	pages := (total + limit - 1) / limit
	return mcp.Result{
		Data: map[string]any{
			"agents": agents,
			"pagination": map[string]int{
				"page":  page,
				"limit": limit,
				"total": total,
				"pages": pages,
			},
		},
		CanFulfill:  100,
		NextActions: []string{"Inspect an agent", "Create an agent"},
	}, nil
}

// agentDetail is an agent with its live usage.
type agentDetail struct {
	*domain.Agent
	Usage domain.AgentUsage `json:"usage"`
}

func (s *Server) agentDetail(ctx context.Context, id string) (*agentDetail, error) {
	agent, err := s.deps.Agents.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if agent == nil {
		return nil, mcp.NotFound("agent", id)
	}
	minute, hour, err := s.deps.Limiter.Usage(ctx, id)
	if err != nil {
		return nil, err
	}
	sessions, err := s.deps.Sessions.GetActiveSessionsForAgent(ctx, id)
	if err != nil {
		return nil, err
	}
	return &agentDetail{
		Agent: agent,
		Usage: domain.AgentUsage{
			RequestsThisMinute: minute,
			OperationsThisHour: hour,
			ActiveSessions:     len(sessions),
		},
	}, nil
}

func (s *Server) getAgentTool(ctx context.Context, tr *toolRequest) (mcp.Result, error) {
	d, err := s.agentDetail(ctx, tr.r.PathValue("id"))
	if err != nil {
		return mcp.Result{}, err
	}
	return mcp.Result{
		Data:        d,
		CanFulfill:  100,
		NextActions: []string{"Activate or deactivate the agent", "List agents"},
	}, nil
}

type updateAgentRequest struct {
	IsActive *bool `json:"is_active"`
}

// updateAgentTool activates or deactivates an agent.
func (s *Server) updateAgentTool(ctx context.Context, tr *toolRequest) (mcp.Result, error) {
	var req updateAgentRequest
	if err := tr.bind(&req); err != nil {
		return mcp.Result{}, err
	}
	if req.IsActive == nil {
		return mcp.Result{}, mcp.Validation("is_active", "is required")
	}

	id := tr.r.PathValue("id")
	previous, err := s.deps.Agents.SetActive(ctx, id, *req.IsActive)
	if err != nil {
		return mcp.Result{}, err
	}
	s.log.Info().
		Str("agent", id).
		Bool("active", *req.IsActive).
		Bool("previous", previous).
		Str("by", tr.agent.ID).
		Msg("agent status changed")

	return mcp.Result{
		Data: map[string]any{
			"agent_id":           id,
			"is_active":          *req.IsActive,
			"previous_is_active": previous,
		},
		CanFulfill:  100,
		NextActions: []string{"Inspect the agent", "List agents"},
	}, nil
}
