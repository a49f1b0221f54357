// Package server assembles the HTTP surface: routing, middleware, health
// and metrics endpoints, and graceful shutdown.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/datagate-io/datagate/internal/common/apperrors"
	"github.com/datagate-io/datagate/internal/common/httpx"
	"github.com/datagate-io/datagate/internal/common/middleware"
	"github.com/datagate-io/datagate/internal/gatewaysrv"
	"github.com/datagate-io/datagate/internal/gatewaysrv/apis"
	"github.com/datagate-io/datagate/internal/gatewaysrv/auth"
	"github.com/datagate-io/datagate/internal/gatewaysrv/config"
	"github.com/datagate-io/datagate/internal/gatewaysrv/mcpserver"
)

// Server is the datagate HTTP server.
type Server struct {
	Router *chi.Mux
	Svc    *gatewaysrv.Service

	httpServer *http.Server
}

// New builds the service and its router from the loaded configuration.
func New(ctx context.Context) (*Server, apperrors.Error) {
	svc, err := gatewaysrv.NewService(ctx)
	if err != nil {
		return nil, err
	}
	s := &Server{Svc: svc}
	s.Router = buildRouter(svc)
	return s, nil
}

func buildRouter(svc *gatewaysrv.Service) *chi.Mux {
	cfg := config.Config()

	r := chi.NewRouter()
	r.Use(middleware.RequestLogger)
	r.Use(middleware.PanicHandler)
	if cfg.HandleCORS {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Datagate-Agent", "X-Datagate-Role"},
			MaxAge:         300,
		}))
	}

	r.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		if err := svc.Ready(r.Context()); err != nil {
			httpx.SendJsonRsp(r.Context(), w, http.StatusServiceUnavailable,
				map[string]any{"ok": false, "error": "engine unreachable"})
			return
		}
		httpx.SendJsonRsp(r.Context(), w, http.StatusOK, map[string]any{"ok": true})
	})
	r.Get("/version", func(w http.ResponseWriter, r *http.Request) {
		httpx.SendJsonRsp(r.Context(), w, http.StatusOK,
			map[string]any{"ok": true, "version": gatewaysrv.Version})
	})
	r.Handle("/metrics", promhttp.Handler())

	authMw := auth.Middleware([]byte(cfg.Security.JWTSigningSecret), cfg.SingleUserMode)
	requestTimeout := cfg.Gateway.GetStatementTimeoutOrDefault() + 15*time.Second

	r.Route("/v1", func(r chi.Router) {
		r.Use(authMw)
		r.Use(middleware.SetTimeout(requestTimeout))
		r.Mount("/", apis.Router(svc, cfg.Security.ElevatedRoles))
	})

	mcp := mcpserver.New(svc, gatewaysrv.Version)
	r.With(authMw).Post("/mcp", mcp.HandleHTTP)

	return r
}

// ListenAndServe starts the server and blocks until the context is
// canceled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	cfg := config.Config()
	addr := cfg.ServerHostName + ":" + cfg.ServerPort
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("datagate listening")
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("shutdown failed")
			return err
		}
		s.Svc.Close()
		log.Info().Msg("datagate stopped")
		return nil
	}
}
