// Package mcpserver exposes the gateway to MCP clients. The four tools
// mirror the agent-facing HTTP operations; tool results carry the same
// ok/error bodies as the HTTP API, serialized as text content.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog/log"

	"github.com/datagate-io/datagate/internal/gatewaysrv"
	"github.com/datagate-io/datagate/internal/gatewaysrv/gwcommon"
)

// MCPServer serves the gateway's MCP surface over a single HTTP endpoint.
type MCPServer struct {
	srv *server.MCPServer
	svc *gatewaysrv.Service
}

// New creates the MCP server and registers its tools.
func New(svc *gatewaysrv.Service, version string) *MCPServer {
	srv := server.NewMCPServer(
		"datagate-mcp-server",
		version,
		server.WithToolCapabilities(true),
	)
	m := &MCPServer{srv: srv, svc: svc}
	m.registerTools()
	return m
}

// HandleHTTP processes one MCP message from an authenticated HTTP request.
// The identity placed in the request context by the auth middleware is the
// identity every tool call runs as.
func (m *MCPServer) HandleHTTP(w http.ResponseWriter, r *http.Request) {
	var raw json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprintf(w, `{"error": "Invalid JSON"}`)
		return
	}
	resp := m.srv.HandleMessage(r.Context(), raw)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (m *MCPServer) registerTools() {
	m.srv.AddTool(mcp.Tool{
		Name: "get_primer",
		Description: "Fetch the capability primer for your role: subjects, views, " +
			"workflows, and usage rules. Call once per session.",
		RawInputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"subject": {"type": "string", "description": "optional subject filter"}
			}
		}`),
	}, m.getPrimer)

	m.srv.AddTool(mcp.Tool{
		Name: "suggest_intent",
		Description: "Rank registered workflows and views against a free-text " +
			"question about the data.",
		RawInputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"query": {"type": "string"}
			},
			"required": ["query"]
		}`),
	}, m.suggestIntent)

	m.srv.AddTool(mcp.Tool{
		Name: "read",
		Description: "Run a guarded SELECT against registered subject views. " +
			"Statements are capped, checked against your privileges, and audited.",
		RawInputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"sql": {"type": "string"},
				"intent": {"type": "string", "description": "what you are trying to learn"}
			},
			"required": ["sql"]
		}`),
	}, m.read)

	m.srv.AddTool(mcp.Tool{
		Name: "list_sources",
		Description: "List the subjects and views visible to your role, without " +
			"the full primer payload.",
		RawInputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"subject": {"type": "string", "description": "optional subject filter"}
			}
		}`),
	}, m.listSources)
}

func (m *MCPServer) getPrimer(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, ok := gwcommon.GetIdentity(ctx)
	if !ok {
		return errorResult("not authenticated"), nil
	}
	var args struct {
		Subject string `json:"subject"`
	}
	decodeArgs(req, &args)
	primer := m.svc.GetPrimer(ctx, id.Role, args.Subject)
	return jsonResult(primer, primer.Ok), nil
}

func (m *MCPServer) suggestIntent(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, ok := gwcommon.GetIdentity(ctx)
	if !ok {
		return errorResult("not authenticated"), nil
	}
	var args struct {
		Query string `json:"query"`
	}
	decodeArgs(req, &args)
	res := m.svc.SuggestIntent(ctx, id, args.Query)
	return jsonResult(res, res.Ok), nil
}

func (m *MCPServer) read(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, ok := gwcommon.GetIdentity(ctx)
	if !ok {
		return errorResult("not authenticated"), nil
	}
	var args struct {
		SQL    string `json:"sql"`
		Intent string `json:"intent"`
	}
	decodeArgs(req, &args)
	if args.SQL == "" {
		return errorResult("sql must not be empty"), nil
	}
	log.Ctx(ctx).Info().Str("agent", id.AgentID).Str("intent", args.Intent).Msg("mcp read")
	res := m.svc.Read(ctx, id, args.Intent, args.SQL)
	return jsonResult(res, res.Ok), nil
}

func (m *MCPServer) listSources(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, ok := gwcommon.GetIdentity(ctx)
	if !ok {
		return errorResult("not authenticated"), nil
	}
	var args struct {
		Subject string `json:"subject"`
	}
	decodeArgs(req, &args)

	primer := m.svc.GetPrimer(ctx, id.Role, args.Subject)
	type source struct {
		Subject string   `json:"subject"`
		Views   []string `json:"views"`
	}
	bySubject := make(map[string]*source)
	var order []string
	for _, s := range primer.Subjects {
		bySubject[s.Name] = &source{Subject: s.Name}
		order = append(order, s.Name)
	}
	for _, v := range primer.SubjectViews {
		if src, ok := bySubject[v.Subject]; ok {
			src.Views = append(src.Views, v.ViewName)
		}
	}
	out := struct {
		Ok      bool     `json:"ok"`
		Sources []source `json:"sources"`
	}{Ok: primer.Ok}
	for _, name := range order {
		out.Sources = append(out.Sources, *bySubject[name])
	}
	return jsonResult(out, primer.Ok), nil
}

// decodeArgs round-trips the tool arguments through JSON into a typed
// struct. Malformed arguments decode to zero values; each tool validates
// its own required fields.
func decodeArgs(req mcp.CallToolRequest, out any) {
	raw, err := json.Marshal(req.Params.Arguments)
	if err != nil {
		return
	}
	_ = json.Unmarshal(raw, out)
}

func jsonResult(v any, ok bool) *mcp.CallToolResult {
	payload, err := json.Marshal(v)
	if err != nil {
		return errorResult("failed to encode result")
	}
	return &mcp.CallToolResult{
		IsError: !ok,
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: string(payload)},
		},
	}
}

func errorResult(msg string) *mcp.CallToolResult {
	body, _ := json.Marshal(map[string]any{"ok": false, "error": msg})
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: string(body)},
		},
	}
}
