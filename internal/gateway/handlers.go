package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/soyeahso/mercora/internal/agentctx"
	"github.com/soyeahso/mercora/internal/auth"
	"github.com/soyeahso/mercora/internal/domain"
	"github.com/soyeahso/mercora/internal/mcp"
	"github.com/soyeahso/mercora/internal/version"
)

// maxBodyBytes bounds a tool request body.
const maxBodyBytes = 1 << 20

// HealthResponse is returned by the health endpoint.
type HealthResponse struct {
	Status   string         `json:"status"`
	Build    *version.Build `json:"build,omitempty"`
	Database string         `json:"database,omitempty"`
}

// handleHealth reports liveness and whether the database answers.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	build := version.Current()
	resp := HealthResponse{Status: "ok", Build: &build, Database: "ok"}
	status := http.StatusOK

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.deps.DB.Ping(ctx); err != nil {
		s.log.Warn().Err(err).Msg("health check: database unreachable")
		resp.Status = "degraded"
		resp.Database = "unreachable"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

// handleNotFound returns a 404 for unknown routes.
func handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, map[string]string{
		"error": "not found",
		"path":  r.URL.Path,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// statusError pins a failure to an HTTP status other than the one its
// code implies.
type statusError struct {
	status int
	err    error
}

func (e *statusError) Error() string { return e.err.Error() }
func (e *statusError) Unwrap() error { return e.err }

func withStatus(status int, err error) error {
	if err == nil {
		return nil
	}
	return &statusError{status: status, err: err}
}

func httpStatus(err error) int {
	var se *statusError
	if errors.As(err, &se) {
		return se.status
	}
	return mcp.AsError(err).HTTPStatus()
}

// toolRequest is one authenticated tool call in flight.
type toolRequest struct {
	w      http.ResponseWriter
	r      *http.Request
	name   string
	start  time.Time
	agent  *domain.Agent
	header *agentctx.Context // nil when absent, invalid or claimed by another agent
	call   *mcp.Call
	status int // success status, 200 unless set
}

// toolFunc is a tool's business logic.
type toolFunc func(ctx context.Context, tr *toolRequest) (mcp.Result, error)

// tool adapts fn into a handler that authenticates, checks permission and
// renders the envelope. An empty permission admits any authenticated agent.
func (s *Server) tool(name, permission string, fn toolFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tr, ok := s.begin(w, r, name, permission)
		if !ok {
			return
		}
		res, err := fn(r.Context(), tr)
		if err != nil {
			s.fail(tr, err)
			return
		}
		s.ok(tr, res)
	}
}

// begin authenticates and authorizes a call. On failure the error envelope
// has already been written.
func (s *Server) begin(w http.ResponseWriter, r *http.Request, name, permission string) (*toolRequest, bool) {
	tr := &toolRequest{w: w, r: r, name: name, start: time.Now(), call: mcp.Begin(), status: http.StatusOK}

	agent, err := s.deps.Auth.Authenticate(r.Context(), r)
	if err != nil {
		s.fail(tr, err)
		return nil, false
	}
	tr.agent = agent
	tr.call.Agent(agent.ID)

	if permission != "" {
		if err := auth.RequirePermission(agent, permission); err != nil {
			s.fail(tr, err)
			return nil, false
		}
	}

	tr.header = s.agentContext(r, agent)
	return tr, true
}

// agentContext parses the context header. A header naming a different
// agent than the authenticated one is discarded.
func (s *Server) agentContext(r *http.Request, agent *domain.Agent) *agentctx.Context {
	c := s.deps.Context.FromRequest(r)
	if c == nil {
		return nil
	}
	if c.AgentID != agent.ID {
		s.log.Warn().
			Str("agent", agent.ID).
			Str("claimed", c.AgentID).
			Msg("agent context names another agent, ignoring")
		return nil
	}
	return c
}

func (s *Server) ok(tr *toolRequest, res mcp.Result) {
	s.metrics.ToolCall(tr.name, "ok", time.Since(tr.start))
	writeJSON(tr.w, tr.status, tr.call.OK(res))
}

func (s *Server) fail(tr *toolRequest, err error) {
	env := tr.call.Fail(err)
	me := env.Error
	status := httpStatus(err)

	switch me.Code {
	case mcp.CodeDatabase, mcp.CodeInternal, mcp.CodeUnknown, mcp.CodeRateLimitCheckFailed:
		s.log.Error().Err(err).AnErr("cause", errors.Unwrap(me)).Str("tool", tr.name).Str("agent", tr.call.AgentID()).Msg("tool call failed")
	default:
		s.log.Debug().Err(err).Str("tool", tr.name).Str("agent", tr.call.AgentID()).Msg("tool call rejected")
	}

	if me.RetryAfter > 0 {
		tr.w.Header().Set("Retry-After", strconv.Itoa(me.RetryAfter))
	}
	s.metrics.ToolCall(tr.name, string(me.Code), time.Since(tr.start))
	writeJSON(tr.w, status, env)
}

// bind decodes the JSON body into v. An empty body leaves v untouched; a
// malformed one is a 400.
func (tr *toolRequest) bind(v any) error {
	if tr.r.Body == nil || tr.r.Body == http.NoBody {
		return nil
	}
	dec := json.NewDecoder(http.MaxBytesReader(tr.w, tr.r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		e := mcp.Validation("body", "must be a JSON object")
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			e = mcp.Validation("body", "exceeds "+strconv.FormatInt(mbe.Limit, 10)+" bytes")
		}
		return withStatus(http.StatusBadRequest, e.WithCause(err))
	}
	return nil
}

// query returns a query parameter, falling back to fallback when absent.
func (tr *toolRequest) query(key, fallback string) string {
	if v := tr.r.URL.Query().Get(key); v != "" {
		return v
	}
	return fallback
}

// queryInt parses an integer query parameter.
func (tr *toolRequest) queryInt(key string, fallback int) (int, error) {
	raw := tr.r.URL.Query().Get(key)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, mcp.Validation(key, "must be an integer")
	}
	return n, nil
}

// userContext is the session's stored user context overlaid with the
// request's context header.
func (tr *toolRequest) userContext(sess *domain.Session) domain.UserContext {
	var uc domain.UserContext
	if sess != nil {
		uc = sess.UserContext
	}
	if tr.header != nil {
		uc = uc.Merge(tr.header.UserContext)
	}
	return uc
}

// headerContext returns the context header's user context, or nil.
func (tr *toolRequest) headerContext() *domain.UserContext {
	if tr.header == nil || tr.header.UserContext.IsZero() {
		return nil
	}
	uc := tr.header.UserContext
	return &uc
}
