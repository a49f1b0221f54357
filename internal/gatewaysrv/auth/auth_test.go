package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datagate-io/datagate/internal/gatewaysrv/gwcommon"
)

var secret = []byte("test-signing-secret")

func TestIssueAndParseToken(t *testing.T) {
	token, err := IssueToken(secret, "agent-1", "analyst", time.Hour)
	require.Nil(t, err)

	id, err := ParseToken(secret, token)
	require.Nil(t, err)
	assert.Equal(t, "agent-1", id.AgentID)
	assert.Equal(t, "analyst", id.Role)
}

func TestParseTokenRejectsBadSignature(t *testing.T) {
	token, err := IssueToken(secret, "agent-1", "analyst", time.Hour)
	require.Nil(t, err)

	_, perr := ParseToken([]byte("wrong-secret"), token)
	assert.NotNil(t, perr)
}

func TestParseTokenRejectsExpired(t *testing.T) {
	token, err := IssueToken(secret, "agent-1", "analyst", -time.Minute)
	require.Nil(t, err)

	_, perr := ParseToken(secret, token)
	assert.NotNil(t, perr)
}

func TestIssueTokenRequiresSecret(t *testing.T) {
	_, err := IssueToken(nil, "agent-1", "analyst", time.Hour)
	assert.ErrorIs(t, err, ErrMissingSecret)
}

func identityEcho(t *testing.T, captured *gwcommon.Identity) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := gwcommon.GetIdentity(r.Context())
		require.True(t, ok)
		*captured = id
		w.WriteHeader(http.StatusOK)
	})
}

func TestMiddlewareBearerToken(t *testing.T) {
	var got gwcommon.Identity
	handler := Middleware(secret, false)(identityEcho(t, &got))

	token, err := IssueToken(secret, "agent-7", "analyst", time.Hour)
	require.Nil(t, err)

	req := httptest.NewRequest(http.MethodPost, "/v1/read", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "agent-7", got.AgentID)
}

func TestMiddlewareRejectsMissingToken(t *testing.T) {
	handler := Middleware(secret, false)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not run")
	}))

	req := httptest.NewRequest(http.MethodPost, "/v1/read", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"ok":false,"error":"missing bearer token"}`, rec.Body.String())
}

func TestMiddlewareSingleUserMode(t *testing.T) {
	var got gwcommon.Identity
	handler := Middleware(nil, true)(identityEcho(t, &got))

	req := httptest.NewRequest(http.MethodPost, "/v1/read", nil)
	req.Header.Set("X-Datagate-Agent", "dev-agent")
	req.Header.Set("X-Datagate-Role", "analyst")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, "dev-agent", got.AgentID)
	assert.Equal(t, "analyst", got.Role)

	// Headers default when absent.
	req = httptest.NewRequest(http.MethodPost, "/v1/read", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, "local-agent", got.AgentID)
	assert.Equal(t, "admin", got.Role)
}

func TestRequireElevated(t *testing.T) {
	elevated := []string{"admin"}
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := RequireElevated(elevated)(inner)

	req := httptest.NewRequest(http.MethodPost, "/v1/admin/registry/promote", nil)
	req = req.WithContext(gwcommon.WithIdentity(req.Context(), gwcommon.Identity{AgentID: "a", Role: "analyst"}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/v1/admin/registry/promote", nil)
	req = req.WithContext(gwcommon.WithIdentity(req.Context(), gwcommon.Identity{AgentID: "a", Role: "admin"}))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
