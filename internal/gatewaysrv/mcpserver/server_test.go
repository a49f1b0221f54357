package mcpserver

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/datagate-io/datagate/internal/gatewaysrv"
	"github.com/datagate-io/datagate/internal/gatewaysrv/config"
	"github.com/datagate-io/datagate/internal/gatewaysrv/engine"
	"github.com/datagate-io/datagate/internal/gatewaysrv/gwcommon"
)

func newTestMCP(t *testing.T) *MCPServer {
	t.Helper()
	config.TestInit()

	svc, err := gatewaysrv.NewService(context.Background())
	require.Nil(t, err)
	t.Cleanup(svc.Close)

	eng := svc.Engine.(*engine.Memory)
	eng.AddView("analytics.daily_sales", `{
		"contract_version": "2.0.0",
		"subject": "sales",
		"title": "Daily Sales",
		"default_view": true,
		"measures": ["revenue"]
	}`, []engine.RawColumn{
		{Name: "sale_date", Ordinal: 1, DataType: "date"},
		{Name: "revenue", Ordinal: 2, DataType: "numeric"},
	})
	eng.SetDefaultResult(&engine.ResultSet{
		Columns: []string{"revenue"},
		Rows:    []map[string]any{{"revenue": 5.0}},
	})
	eng.Grant("agent-1", "analytics.daily_sales")
	// Primer visibility is checked against the role.
	eng.Grant("analyst", "analytics.daily_sales")

	ctx := context.Background()
	require.True(t, svc.RefreshCatalog(ctx).Ok)
	require.True(t, svc.RebuildRegistry(ctx).Ok)
	require.True(t, svc.PromoteRegistry(ctx, false).Ok)

	return New(svc, gatewaysrv.Version)
}

// callTool posts one tools/call message as the given identity and returns
// the decoded text payload of the first content item.
func callTool(t *testing.T, m *MCPServer, id gwcommon.Identity, name, args string) (string, bool) {
	t.Helper()
	body := fmt.Sprintf(`{
		"jsonrpc": "2.0",
		"id": 1,
		"method": "tools/call",
		"params": {"name": %q, "arguments": %s}
	}`, name, args)

	req := httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewReader([]byte(body)))
	req = req.WithContext(gwcommon.WithIdentity(req.Context(), id))
	w := httptest.NewRecorder()
	m.HandleHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	raw := w.Body.String()
	require.False(t, gjson.Get(raw, "error").Exists(), raw)
	text := gjson.Get(raw, "result.content.0.text").String()
	isError := gjson.Get(raw, "result.isError").Bool()
	return text, isError
}

func TestToolListing(t *testing.T) {
	m := newTestMCP(t)

	req := httptest.NewRequest(http.MethodPost, "/mcp",
		bytes.NewReader([]byte(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)))
	w := httptest.NewRecorder()
	m.HandleHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var names []string
	for _, tool := range gjson.Get(w.Body.String(), "result.tools.#.name").Array() {
		names = append(names, tool.String())
	}
	assert.ElementsMatch(t, []string{"get_primer", "suggest_intent", "read", "list_sources"}, names)
}

func TestGetPrimerTool(t *testing.T) {
	m := newTestMCP(t)
	analyst := gwcommon.Identity{AgentID: "agent-1", Role: "analyst"}

	text, isError := callTool(t, m, analyst, "get_primer", `{}`)
	assert.False(t, isError)
	assert.True(t, gjson.Get(text, "ok").Bool())
	assert.Equal(t, "sales", gjson.Get(text, "subjects.0.name").String())
	assert.Equal(t, "analyst", gjson.Get(text, "role").String())
}

func TestReadTool(t *testing.T) {
	m := newTestMCP(t)
	analyst := gwcommon.Identity{AgentID: "agent-1", Role: "analyst"}

	text, isError := callTool(t, m, analyst, "read",
		`{"sql": "SELECT revenue FROM analytics.daily_sales", "intent": "daily revenue"}`)
	assert.False(t, isError)
	assert.True(t, gjson.Get(text, "ok").Bool(), text)
	assert.EqualValues(t, 1, gjson.Get(text, "row_count").Int())

	text, isError = callTool(t, m, analyst, "read", `{"sql": ""}`)
	assert.True(t, isError)
	assert.Equal(t, "sql must not be empty", gjson.Get(text, "error").String())
}

func TestReadToolRejectsUnauthenticated(t *testing.T) {
	m := newTestMCP(t)

	body := `{"jsonrpc":"2.0","id":1,"method":"tools/call",
		"params":{"name":"read","arguments":{"sql":"SELECT 1 FROM analytics.daily_sales"}}}`
	req := httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewReader([]byte(body)))
	w := httptest.NewRecorder()
	m.HandleHTTP(w, req)

	raw := w.Body.String()
	assert.True(t, gjson.Get(raw, "result.isError").Bool())
	text := gjson.Get(raw, "result.content.0.text").String()
	assert.Equal(t, "not authenticated", gjson.Get(text, "error").String())
}

func TestSuggestIntentTool(t *testing.T) {
	m := newTestMCP(t)
	analyst := gwcommon.Identity{AgentID: "agent-1", Role: "analyst"}

	text, isError := callTool(t, m, analyst, "suggest_intent", `{"query": "daily revenue"}`)
	assert.False(t, isError)
	assert.Equal(t, "analytics.daily_sales", gjson.Get(text, "suggestions.0.name").String())
}

func TestListSourcesTool(t *testing.T) {
	m := newTestMCP(t)
	analyst := gwcommon.Identity{AgentID: "agent-1", Role: "analyst"}

	text, isError := callTool(t, m, analyst, "list_sources", `{}`)
	assert.False(t, isError)
	assert.True(t, gjson.Get(text, "ok").Bool())
	assert.Equal(t, "sales", gjson.Get(text, "sources.0.subject").String())
	assert.Equal(t, "analytics.daily_sales", gjson.Get(text, "sources.0.views.0").String())
}

func TestMalformedMessage(t *testing.T) {
	m := newTestMCP(t)

	req := httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewReader([]byte("not json")))
	w := httptest.NewRecorder()
	m.HandleHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
