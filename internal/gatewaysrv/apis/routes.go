package apis

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/datagate-io/datagate/internal/common/httpx"
	"github.com/datagate-io/datagate/internal/gatewaysrv"
	"github.com/datagate-io/datagate/internal/gatewaysrv/auth"
)

type route struct {
	Method  string
	Path    string
	Handler httpx.RequestHandler
}

// Router mounts the agent-facing and admin API routes. The caller is
// expected to have authentication middleware above this router; admin
// routes additionally require an elevated role.
func Router(svc *gatewaysrv.Service, elevatedRoles []string) chi.Router {
	h := &handler{svc: svc}

	agentRoutes := []route{
		{http.MethodGet, "/primer", h.getPrimer},
		{http.MethodPost, "/intent/suggest", h.suggestIntent},
		{http.MethodPost, "/read", h.read},
	}
	adminRoutes := []route{
		{http.MethodPost, "/catalog/refresh", h.refreshCatalog},
		{http.MethodPost, "/registry/rebuild", h.rebuildRegistry},
		{http.MethodPost, "/registry/promote", h.promoteRegistry},
		{http.MethodPost, "/registry/rollback", h.rollbackRegistry},
		{http.MethodGet, "/registry/diff", h.diffRegistry},
		{http.MethodPost, "/compliance/run", h.runCompliance},
	}

	r := chi.NewRouter()
	for _, rt := range agentRoutes {
		r.Method(rt.Method, rt.Path, httpx.WrapHttpRsp(rt.Handler))
	}
	r.Route("/admin", func(r chi.Router) {
		r.Use(auth.RequireElevated(elevatedRoles))
		for _, rt := range adminRoutes {
			r.Method(rt.Method, rt.Path, httpx.WrapHttpRsp(rt.Handler))
		}
	})
	return r
}
