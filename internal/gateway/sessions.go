package gateway

import (
	"context"
	"net/http"

	"github.com/soyeahso/mercora/internal/domain"
	"github.com/soyeahso/mercora/internal/hooks"
	"github.com/soyeahso/mercora/internal/mcp"
)

// sessionNotFound reports a missing or expired session.
func sessionNotFound(id string) *mcp.Error {
	e := mcp.Errorf(mcp.CodeSessionNotFound, "session %q not found or expired", id)
	e.Field = "session_id"
	return e
}

// loadSession fetches a named session owned by the caller. The ephemeral
// reference yields nil.
func (s *Server) loadSession(ctx context.Context, tr *toolRequest, ref domain.SessionRef) (*domain.Session, error) {
	if ref.Ephemeral() {
		return nil, nil
	}
	sess, err := s.deps.Sessions.GetSession(ctx, ref.ID())
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, sessionNotFound(ref.ID())
	}
	if !sess.OwnedBy(tr.agent.ID) {
		s.log.Warn().Str("agent", tr.agent.ID).Str("session", sess.ID).Msg("session access denied")
		e := mcp.NewError(mcp.CodeSessionAccessDenied, "session belongs to another agent")
		e.Field = "session_id"
		return nil, e
	}
	tr.call.Session(sess.ID)
	return sess, nil
}

// requireSession is loadSession for tools that cannot run without a stored
// session.
func (s *Server) requireSession(ctx context.Context, tr *toolRequest, ref domain.SessionRef) (*domain.Session, error) {
	if ref.Ephemeral() {
		return nil, mcp.Validation("session_id", "is required")
	}
	return s.loadSession(ctx, tr, ref)
}

// cartSession loads the referenced session, creating a fresh one for the
// ephemeral reference.
func (s *Server) cartSession(ctx context.Context, tr *toolRequest, ref domain.SessionRef) (*domain.Session, error) {
	if !ref.Ephemeral() {
		return s.loadSession(ctx, tr, ref)
	}
	return s.createSession(ctx, tr, tr.userContext(nil))
}

func (s *Server) createSession(ctx context.Context, tr *toolRequest, uc domain.UserContext) (*domain.Session, error) {
	sess, err := s.deps.Sessions.CreateSession(ctx, tr.agent.ID, uc)
	if err != nil {
		return nil, err
	}
	tr.call.Session(sess.ID)
	s.metrics.SessionCreated()
	s.emit(ctx, hooks.EventSessionCreated, map[string]any{
		"session_id": sess.ID,
		"agent_id":   sess.AgentID,
		"expires_at": sess.ExpiresAt,
	})
	return sess, nil
}

// saveCart stores cart on the session and merges the request's context
// header into the session's user context.
func (s *Server) saveCart(ctx context.Context, tr *toolRequest, sess *domain.Session, cart []domain.CartItem) error {
	upd := domain.SessionUpdate{Cart: &cart, UserContext: tr.headerContext()}
	ok, err := s.deps.Sessions.UpdateSession(ctx, sess.ID, upd)
	if err != nil {
		return err
	}
	if !ok {
		return sessionNotFound(sess.ID)
	}
	sess.Cart = cart
	if upd.UserContext != nil {
		sess.UserContext = sess.UserContext.Merge(*upd.UserContext)
	}
	return nil
}

type createSessionRequest struct {
	UserContext *domain.UserContext `json:"user_context"`
}

// createSessionTool starts a session from the body's user context,
// overlaid on the context header.
func (s *Server) createSessionTool(ctx context.Context, tr *toolRequest) (mcp.Result, error) {
	var req createSessionRequest
	if err := tr.bind(&req); err != nil {
		return mcp.Result{}, err
	}
	uc := tr.userContext(nil)
	if req.UserContext != nil {
		uc = uc.Merge(*req.UserContext)
	}

	sess, err := s.createSession(ctx, tr, uc)
	if err != nil {
		return mcp.Result{}, err
	}
	tr.status = http.StatusCreated
	return mcp.Result{
		Data:         sess,
		CanFulfill:   100,
		Satisfaction: 0.5,
		NextActions:  []string{"Search for products", "Add items to cart"},
	}, nil
}

// listSessionsTool sweeps expired sessions and lists the caller's live ones.
func (s *Server) listSessionsTool(ctx context.Context, tr *toolRequest) (mcp.Result, error) {
	s.SweepOnce(ctx)
	sessions, err := s.deps.Sessions.GetActiveSessionsForAgent(ctx, tr.agent.ID)
	if err != nil {
		return mcp.Result{}, err
	}
	next := []string{"Create a new session"}
	if len(sessions) > 0 {
		next = []string{"Resume a session", "Create a new session"}
	}
	return mcp.Result{
		Data:        map[string]any{"sessions": sessions, "count": len(sessions)},
		CanFulfill:  100,
		NextActions: next,
	}, nil
}

// pathSession loads the session named in the path. Absent is a 404 on
// these routes.
func (s *Server) pathSession(ctx context.Context, tr *toolRequest) (*domain.Session, error) {
	id := tr.r.PathValue("id")
	sess, err := s.loadSession(ctx, tr, domain.NamedSession(id))
	if mcp.IsCode(err, mcp.CodeSessionNotFound) {
		return nil, withStatus(http.StatusNotFound, err)
	}
	return sess, err
}

func (s *Server) getSessionTool(ctx context.Context, tr *toolRequest) (mcp.Result, error) {
	sess, err := s.pathSession(ctx, tr)
	if err != nil {
		return mcp.Result{}, err
	}
	return mcp.Result{
		Data:        sess,
		CanFulfill:  100,
		NextActions: []string{"Add items to cart", "Estimate cart total"},
	}, nil
}

// updateSessionTool merges user context and replaces the cart.
func (s *Server) updateSessionTool(ctx context.Context, tr *toolRequest) (mcp.Result, error) {
	var upd domain.SessionUpdate
	if err := tr.bind(&upd); err != nil {
		return mcp.Result{}, err
	}
	sess, err := s.pathSession(ctx, tr)
	if err != nil {
		return mcp.Result{}, err
	}
	if upd.Cart != nil {
		cart, err := s.normalizeCart(*upd.Cart, "cart")
		if err != nil {
			return mcp.Result{}, err
		}
		upd.Cart = &cart
	}

	ok, err := s.deps.Sessions.UpdateSession(ctx, sess.ID, upd)
	if err != nil {
		return mcp.Result{}, err
	}
	if !ok {
		return mcp.Result{}, withStatus(http.StatusNotFound, sessionNotFound(sess.ID))
	}
	updated, err := s.deps.Sessions.GetSession(ctx, sess.ID)
	if err != nil {
		return mcp.Result{}, err
	}
	if updated == nil {
		return mcp.Result{}, withStatus(http.StatusNotFound, sessionNotFound(sess.ID))
	}
	return mcp.Result{
		Data:        updated,
		CanFulfill:  100,
		NextActions: []string{"Estimate cart total", "Place order"},
	}, nil
}

func (s *Server) deleteSessionTool(ctx context.Context, tr *toolRequest) (mcp.Result, error) {
	sess, err := s.pathSession(ctx, tr)
	if err != nil {
		return mcp.Result{}, err
	}
	deleted, err := s.deps.Sessions.DeleteSession(ctx, sess.ID)
	if err != nil {
		return mcp.Result{}, err
	}
	if !deleted {
		return mcp.Result{}, withStatus(http.StatusNotFound, sessionNotFound(sess.ID))
	}
	s.emit(ctx, hooks.EventSessionDeleted, map[string]any{
		"session_id": sess.ID,
		"agent_id":   sess.AgentID,
	})
	return mcp.Result{
		Data:        map[string]any{"session_id": sess.ID, "deleted": true},
		CanFulfill:  100,
		NextActions: []string{"Create a new session"},
	}, nil
}
