package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/datagate-io/datagate/internal/gatewaysrv"
	"github.com/datagate-io/datagate/internal/gatewaysrv/auth"
	"github.com/datagate-io/datagate/internal/gatewaysrv/config"
	"github.com/datagate-io/datagate/internal/gatewaysrv/engine"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	config.TestInit()
	config.Config().SingleUserMode = true

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
		Rows:    []map[string]any{{"revenue": 10.0}},
	})
	eng.Grant("agent-1", "analytics.daily_sales")
	// Primer visibility is checked against the role.
	eng.Grant("analyst", "analytics.daily_sales")

	return &Server{Svc: svc, Router: buildRouter(svc)}
}

func doJSON(t *testing.T, srv *Server, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	srv.Router.ServeHTTP(w, req)
	return w
}

func TestReadyAndVersion(t *testing.T) {
	srv := newTestServer(t)

	w := doJSON(t, srv, http.MethodGet, "/ready", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, gjson.Get(w.Body.String(), "ok").Bool())

	w = doJSON(t, srv, http.MethodGet, "/version", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, gatewaysrv.Version, gjson.Get(w.Body.String(), "version").String())
}

func TestAdminLifecycleOverHTTP(t *testing.T) {
	srv := newTestServer(t)

	// Single-user mode defaults to the admin role.
	w := doJSON(t, srv, http.MethodPost, "/v1/admin/catalog/refresh", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.True(t, gjson.Get(w.Body.String(), "ok").Bool(), w.Body.String())
	assert.EqualValues(t, 1, gjson.Get(w.Body.String(), "object_count").Int())

	w = doJSON(t, srv, http.MethodPost, "/v1/admin/registry/rebuild", nil, nil)
	require.True(t, gjson.Get(w.Body.String(), "ok").Bool(), w.Body.String())
	assert.Equal(t, "green", gjson.Get(w.Body.String(), "target").String())

	w = doJSON(t, srv, http.MethodGet, "/v1/admin/registry/diff", nil, nil)
	require.True(t, gjson.Get(w.Body.String(), "ok").Bool())
	assert.Equal(t, "blue", gjson.Get(w.Body.String(), "active").String())

	w = doJSON(t, srv, http.MethodPost, "/v1/admin/registry/promote", nil, nil)
	require.True(t, gjson.Get(w.Body.String(), "ok").Bool(), w.Body.String())
	assert.Equal(t, "green", gjson.Get(w.Body.String(), "active").String())

	w = doJSON(t, srv, http.MethodPost, "/v1/admin/compliance/run", nil, nil)
	require.True(t, gjson.Get(w.Body.String(), "ok").Bool(), w.Body.String())

	w = doJSON(t, srv, http.MethodPost, "/v1/admin/registry/rollback", nil, nil)
	require.True(t, gjson.Get(w.Body.String(), "ok").Bool())
	assert.Equal(t, "blue", gjson.Get(w.Body.String(), "active").String())
}

func TestAgentEndpoints(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()
	require.True(t, srv.Svc.RefreshCatalog(ctx).Ok)
	require.True(t, srv.Svc.RebuildRegistry(ctx).Ok)
	require.True(t, srv.Svc.PromoteRegistry(ctx, false).Ok)

	agent := map[string]string{
		"X-Datagate-Agent": "agent-1",
		"X-Datagate-Role":  "analyst",
	}

	w := doJSON(t, srv, http.MethodGet, "/v1/primer", nil, agent)
	require.Equal(t, http.StatusOK, w.Code)
	require.True(t, gjson.Get(w.Body.String(), "ok").Bool())
	assert.Equal(t, "sales", gjson.Get(w.Body.String(), "subjects.0.name").String())

	w = doJSON(t, srv, http.MethodPost, "/v1/intent/suggest",
		map[string]string{"query": "daily revenue"}, agent)
	require.True(t, gjson.Get(w.Body.String(), "ok").Bool())
	assert.Equal(t, "analytics.daily_sales", gjson.Get(w.Body.String(), "suggestions.0.name").String())

	w = doJSON(t, srv, http.MethodPost, "/v1/read", map[string]string{
		"intent": "daily revenue",
		"sql":    "SELECT revenue FROM analytics.daily_sales",
	}, agent)
	require.Equal(t, http.StatusOK, w.Code)
	require.True(t, gjson.Get(w.Body.String(), "ok").Bool(), w.Body.String())
	assert.EqualValues(t, 1, gjson.Get(w.Body.String(), "row_count").Int())

	w = doJSON(t, srv, http.MethodPost, "/v1/read", map[string]string{"sql": ""}, agent)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdminRoutesRequireElevatedRole(t *testing.T) {
	srv := newTestServer(t)

	w := doJSON(t, srv, http.MethodPost, "/v1/admin/catalog/refresh", nil,
		map[string]string{"X-Datagate-Role": "analyst"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.False(t, gjson.Get(w.Body.String(), "ok").Bool())
}

func TestBearerTokenAuth(t *testing.T) {
	srv := newTestServer(t)
	config.Config().SingleUserMode = false
	config.Config().Security.JWTSigningSecret = "test-signing-secret"
	srv.Router = buildRouter(srv.Svc)

	w := doJSON(t, srv, http.MethodGet, "/v1/primer", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	token, terr := auth.IssueToken([]byte("test-signing-secret"), "agent-1", "analyst", time.Hour)
	require.Nil(t, terr)
	w = doJSON(t, srv, http.MethodGet, "/v1/primer", nil,
		map[string]string{"Authorization": "Bearer " + token})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "analyst", gjson.Get(w.Body.String(), "role").String())
}
