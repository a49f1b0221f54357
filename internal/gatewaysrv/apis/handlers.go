// Package apis exposes the gateway operations over HTTP. Handlers return
// 200 with an ok/error body for domain outcomes; transport-level failures
// (auth, malformed JSON) use HTTP status codes.
package apis

import (
	"net/http"

	"github.com/datagate-io/datagate/internal/common/httpx"
	"github.com/datagate-io/datagate/internal/gatewaysrv"
	"github.com/datagate-io/datagate/internal/gatewaysrv/gwcommon"
)

type handler struct {
	svc *gatewaysrv.Service
}

type readRequest struct {
	Intent string `json:"intent"`
	SQL    string `json:"sql"`
}

type suggestRequest struct {
	Query string `json:"query"`
}

type promoteRequest struct {
	AllowRemovals bool `json:"allow_removals"`
}

func (h *handler) getPrimer(r *http.Request) (*httpx.Response, error) {
	id, ok := gwcommon.GetIdentity(r.Context())
	if !ok {
		return nil, httpx.ErrUnAuthorized()
	}
	primer := h.svc.GetPrimer(r.Context(), id.Role, r.URL.Query().Get("subject"))
	return &httpx.Response{StatusCode: http.StatusOK, Response: primer}, nil
}

func (h *handler) suggestIntent(r *http.Request) (*httpx.Response, error) {
	id, ok := gwcommon.GetIdentity(r.Context())
	if !ok {
		return nil, httpx.ErrUnAuthorized()
	}
	var req suggestRequest
	if err := httpx.GetRequestData(r, &req); err != nil {
		return nil, err
	}
	res := h.svc.SuggestIntent(r.Context(), id, req.Query)
	return &httpx.Response{StatusCode: http.StatusOK, Response: res}, nil
}

func (h *handler) read(r *http.Request) (*httpx.Response, error) {
	id, ok := gwcommon.GetIdentity(r.Context())
	if !ok {
		return nil, httpx.ErrUnAuthorized()
	}
	var req readRequest
	if err := httpx.GetRequestData(r, &req); err != nil {
		return nil, err
	}
	if req.SQL == "" {
		return nil, httpx.ErrInvalidRequest("sql must not be empty")
	}
	res := h.svc.Read(r.Context(), id, req.Intent, req.SQL)
	return &httpx.Response{StatusCode: http.StatusOK, Response: res}, nil
}

func (h *handler) refreshCatalog(r *http.Request) (*httpx.Response, error) {
	res := h.svc.RefreshCatalog(r.Context())
	return &httpx.Response{StatusCode: http.StatusOK, Response: res}, nil
}

func (h *handler) rebuildRegistry(r *http.Request) (*httpx.Response, error) {
	res := h.svc.RebuildRegistry(r.Context())
	return &httpx.Response{StatusCode: http.StatusOK, Response: res}, nil
}

func (h *handler) promoteRegistry(r *http.Request) (*httpx.Response, error) {
	var req promoteRequest
	if r.ContentLength > 0 {
		if err := httpx.GetRequestData(r, &req); err != nil {
			return nil, err
		}
	}
	res := h.svc.PromoteRegistry(r.Context(), req.AllowRemovals)
	return &httpx.Response{StatusCode: http.StatusOK, Response: res}, nil
}

func (h *handler) rollbackRegistry(r *http.Request) (*httpx.Response, error) {
	res := h.svc.RollbackRegistry(r.Context())
	return &httpx.Response{StatusCode: http.StatusOK, Response: res}, nil
}

func (h *handler) diffRegistry(r *http.Request) (*httpx.Response, error) {
	res := h.svc.DiffRegistry(r.Context())
	return &httpx.Response{StatusCode: http.StatusOK, Response: res}, nil
}

func (h *handler) runCompliance(r *http.Request) (*httpx.Response, error) {
	res := h.svc.RunComplianceChecks(r.Context())
	return &httpx.Response{StatusCode: http.StatusOK, Response: res}, nil
}
