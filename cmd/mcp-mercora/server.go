package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/soyeahso/mercora/internal/agentctx"
	"github.com/soyeahso/mercora/internal/auth"
	"github.com/soyeahso/mercora/internal/logging"
	"github.com/soyeahso/mercora/internal/version"
)

const protocolVersion = "2024-11-05"

// JSON-RPC error codes.
const (
	codeParseError     = -32700
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
)

type JSONRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type JSONRPCResponse struct {
	JSONRPC string    `json:"jsonrpc"`
	ID      any       `json:"id"`
	Result  any       `json:"result,omitempty"`
	Error   *RPCError `json:"error,omitempty"`
}

type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

type CallToolParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

type ContentItem struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type ToolResult struct {
	Content []ContentItem `json:"content"`
	IsError bool          `json:"isError,omitempty"`
}

// Options configure the bridge.
type Options struct {
	GatewayURL   string // base of the MCP surface, e.g. http://127.0.0.1:18790/mcp
	APIKey       string
	AgentContext string // optional JSON forwarded as the agent context header
}

// Server answers MCP requests on a line-delimited JSON-RPC stream by calling
// the gateway over HTTP.
type Server struct {
	opts   Options
	client *http.Client
	log    *logging.Logger

	mu  sync.Mutex
	out io.Writer
}

func NewServer(opts Options, client *http.Client, out io.Writer, log *logging.Logger) *Server {
	opts.GatewayURL = strings.TrimRight(opts.GatewayURL, "/")
	return &Server{opts: opts, client: client, out: out, log: log.Sub("mcp")}
}

// Run reads requests from in until EOF.
func (s *Server) Run(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	s.log.Info().Str("gateway", s.opts.GatewayURL).Msg("listening for requests on stdin")
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		s.handleRequest(ctx, line)
	}
	return scanner.Err()
}

func (s *Server) handleRequest(ctx context.Context, line string) {
	var req JSONRPCRequest
	if err := json.Unmarshal([]byte(line), &req); err != nil {
		s.log.Warn().Err(err).Msg("parse error")
		s.sendError(nil, codeParseError, "Parse error", err.Error())
		return
	}

	s.log.Debug().Str("method", req.Method).Msg("request")
	switch req.Method {
	case "initialize":
		s.sendResponse(req.ID, map[string]any{
			"protocolVersion": protocolVersion,
			"capabilities":    map[string]any{"tools": map[string]any{}},
			"serverInfo":      map[string]any{"name": "mercora", "version": version.Version},
		})
	case "tools/list":
		tools := make([]Tool, len(routes))
		for i, r := range routes {
			tools[i] = r.Tool
		}
		s.sendResponse(req.ID, map[string]any{"tools": tools})
	case "tools/call":
		s.handleCallTool(ctx, req)
	case "ping":
		s.sendResponse(req.ID, map[string]any{})
	default:
		if strings.HasPrefix(req.Method, "notifications/") {
			return
		}
		s.sendError(req.ID, codeMethodNotFound, "Method not found", fmt.Sprintf("Unknown method: %s", req.Method))
	}
}

func (s *Server) handleCallTool(ctx context.Context, req JSONRPCRequest) {
	var params CallToolParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		s.sendError(req.ID, codeInvalidParams, "Invalid params", err.Error())
		return
	}
	r, ok := findRoute(params.Name)
	if !ok {
		s.sendError(req.ID, codeInvalidParams, "Unknown tool", fmt.Sprintf("Tool not found: %s", params.Name))
		return
	}

	s.log.Info().Str("tool", params.Name).Msg("calling gateway")
	s.sendResponse(req.ID, s.callGateway(ctx, r, params.Arguments))
}

// callGateway forwards one tool call. Transport failures and envelopes with
// success false come back as tool errors so the client model can react.
func (s *Server) callGateway(ctx context.Context, r route, args map[string]any) ToolResult {
	path := r.path
	body := make(map[string]any, len(args))
	for k, v := range args {
		body[k] = v
	}
	for _, name := range r.pathParams() {
		v, _ := body[name].(string)
		if v == "" {
			return toolError(fmt.Sprintf("%s is required", name))
		}
		path = strings.ReplaceAll(path, "{"+name+"}", url.PathEscape(v))
		delete(body, name)
	}

	var reader io.Reader
	if r.method != http.MethodGet {
		data, err := json.Marshal(body)
		if err != nil {
			return toolError(fmt.Sprintf("encoding arguments: %v", err))
		}
		reader = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, r.method, s.opts.GatewayURL+path, reader)
	if err != nil {
		return toolError(err.Error())
	}
	httpReq.Header.Set(auth.HeaderAPIKey, s.opts.APIKey)
	if reader != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if s.opts.AgentContext != "" {
		httpReq.Header.Set(agentctx.Header, s.opts.AgentContext)
	}

	resp, err := s.client.Do(httpReq)
	if err != nil {
		s.log.Error().Err(err).Str("tool", r.Name).Msg("gateway request failed")
		return toolError(fmt.Sprintf("gateway unreachable: %v", err))
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return toolError(fmt.Sprintf("reading gateway response: %v", err))
	}

	var envelope struct {
		Success *bool `json:"success"`
	}
	_ = json.Unmarshal(data, &envelope)

	text := string(data)
	var pretty bytes.Buffer
	if json.Indent(&pretty, data, "", "  ") == nil {
		text = pretty.String()
	}

	failed := resp.StatusCode >= http.StatusBadRequest
	if envelope.Success != nil {
		failed = !*envelope.Success
	}
	if failed && envelope.Success == nil {
		text = fmt.Sprintf("HTTP %d: %s", resp.StatusCode, text)
	}
	return ToolResult{Content: []ContentItem{{Type: "text", Text: text}}, IsError: failed}
}

func toolError(msg string) ToolResult {
	return ToolResult{Content: []ContentItem{{Type: "text", Text: msg}}, IsError: true}
}

func (s *Server) sendResponse(id any, result any) {
	s.write(JSONRPCResponse{JSONRPC: "2.0", ID: id, Result: result})
}

func (s *Server) sendError(id any, code int, message, data string) {
	s.write(JSONRPCResponse{JSONRPC: "2.0", ID: id, Error: &RPCError{Code: code, Message: message, Data: data}})
}

func (s *Server) write(resp JSONRPCResponse) {
	data, err := json.Marshal(resp)
	if err != nil {
		s.log.Error().Err(err).Msg("encoding response")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.out.Write(append(data, '\n')); err != nil {
		s.log.Error().Err(err).Msg("writing response")
	}
}
