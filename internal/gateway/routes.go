package gateway

import (
	"net/http"
	"strings"

	"github.com/soyeahso/mercora/internal/domain"
)

// Tool names as reported in metrics and logs.
const (
	toolSessionCreate = "session.create"
	toolSessionList   = "session.list"
	toolSessionGet    = "session.get"
	toolSessionUpdate = "session.update"
	toolSessionDelete = "session.delete"
	toolSearch        = "search"
	toolRecommend     = "recommend"
	toolAssess        = "assess"
	toolCartBulkAdd   = "cart.bulk_add"
	toolCartUpdate    = "cart.update"
	toolCartEstimate  = "cart.estimate"
	toolCartClear     = "cart.clear"
	toolOrder         = "order"
	toolOrderStatus   = "order.status"
	toolOrderTrack    = "order.track"
	toolPayment       = "payment.validate"
	toolShipping      = "shipping"
	toolAgentCreate   = "agents.create"
	toolAgentList     = "agents.list"
	toolAgentGet      = "agents.get"
	toolAgentUpdate   = "agents.update"
)

// registerHTTPRoutes sets up all HTTP routes on the server mux.
func (s *Server) registerHTTPRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)
	if s.cfg.Metrics.Enabled && s.metrics != nil {
		mux.Handle("GET "+s.cfg.Metrics.Path, s.metrics.Handler())
	}

	base := s.basePath()
	route := func(pattern, name, permission string, fn toolFunc) {
		method, path, _ := strings.Cut(pattern, " ")
		mux.HandleFunc(method+" "+base+path, s.tool(name, permission, fn))
	}

	// Sessions are open to every authenticated agent; ownership is
	// checked per session.
	route("POST /sessions", toolSessionCreate, "", s.createSessionTool)
	route("GET /sessions", toolSessionList, "", s.listSessionsTool)
	route("GET /sessions/{id}", toolSessionGet, "", s.getSessionTool)
	route("PUT /sessions/{id}", toolSessionUpdate, "", s.updateSessionTool)
	route("DELETE /sessions/{id}", toolSessionDelete, "", s.deleteSessionTool)

	route("POST /tools/search", toolSearch, domain.PermissionSearch, s.searchTool)
	route("POST /tools/recommend", toolRecommend, domain.PermissionRecommend, s.recommendTool)
	route("POST /tools/assess", toolAssess, domain.PermissionAssess, s.assessTool)

	route("POST /tools/cart/bulk-add", toolCartBulkAdd, domain.PermissionCart, s.bulkAddTool)
	route("POST /tools/cart/update", toolCartUpdate, domain.PermissionCart, s.cartUpdateTool)
	route("POST /tools/cart/estimate", toolCartEstimate, domain.PermissionCart, s.estimateTool)
	route("POST /tools/cart/clear", toolCartClear, domain.PermissionCart, s.clearTool)

	route("POST /tools/order", toolOrder, domain.PermissionOrder, s.orderTool)
	route("GET /tools/order/status", toolOrderStatus, domain.PermissionOrder, s.orderStatusTool)
	route("POST /tools/order/status", toolOrderStatus, domain.PermissionOrder, s.orderStatusTool)
	route("GET /tools/order/track", toolOrderTrack, domain.PermissionOrder, s.orderTrackTool)
	route("POST /tools/order/track", toolOrderTrack, domain.PermissionOrder, s.orderTrackTool)

	route("POST /tools/payment/validate", toolPayment, domain.PermissionPayment, s.paymentTool)
	route("POST /tools/shipping", toolShipping, domain.PermissionShipping, s.shippingTool)

	route("POST /tools/agents", toolAgentCreate, domain.PermissionAdmin, s.createAgentTool)
	route("GET /tools/agents/list", toolAgentList, domain.PermissionAdmin, s.listAgentsTool)
	route("GET /tools/agents/{id}", toolAgentGet, domain.PermissionAdmin, s.getAgentTool)
	route("PATCH /tools/agents/{id}", toolAgentUpdate, domain.PermissionAdmin, s.updateAgentTool)

	mux.HandleFunc("GET "+base+"/events", s.handleEvents)

	// Catch-all for unknown routes
	mux.HandleFunc("/", handleNotFound)
}
