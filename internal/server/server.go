// Package server exposes the workflow engine over HTTP: workflow CRUD,
// manual runs, schedule-trigger management, execution history, and the
// login endpoint that mints the bearer tokens every other route requires.
package server

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/rakunlabs/ada"

	mcors "github.com/rakunlabs/ada/middleware/cors"
	mlog "github.com/rakunlabs/ada/middleware/log"
	mrecover "github.com/rakunlabs/ada/middleware/recover"
	mrequestid "github.com/rakunlabs/ada/middleware/requestid"
	mserver "github.com/rakunlabs/ada/middleware/server"

	"github.com/flowloom/loom/internal/auth"
	"github.com/flowloom/loom/internal/config"
	"github.com/flowloom/loom/internal/service/workflow"
	"github.com/flowloom/loom/internal/store"
)

// Server is the HTTP API in front of the workflow store, engine, scheduler,
// and auth collaborator.
type Server struct {
	config config.Server

	server *ada.Server

	store     store.Storer
	auth      *auth.Service
	engine    *workflow.Engine
	scheduler *workflow.Scheduler
}

// New builds the HTTP API and registers every route. The telemetry
// middleware is dropped — there is no metrics/tracing backend for it to
// report to (see DESIGN.md) — the rest of the recover/server/cors/requestid/
// log middleware stack is kept as-is.
func New(cfg config.Server, st store.Storer, authSvc *auth.Service, engine *workflow.Engine, scheduler *workflow.Scheduler) (*Server, error) {
	mux := ada.New()
	mux.Use(
		mrecover.Middleware(),
		mserver.Middleware(config.Service),
		mcors.Middleware(),
		mrequestid.Middleware(),
		mlog.Middleware(),
	)

	s := &Server{
		config:    cfg,
		server:    mux,
		store:     st,
		auth:      authSvc,
		engine:    engine,
		scheduler: scheduler,
	}

	mux.GET("/healthz", s.HealthzAPI)

	apiGroup := mux.Group("/api")
	apiGroup.POST("/v1/auth/login", s.LoginAPI)

	authGroup := apiGroup.Group("")
	authGroup.Use(s.authMiddleware())

	authGroup.GET("/v1/workflows", s.ListWorkflowsAPI)
	authGroup.POST("/v1/workflows", s.CreateWorkflowAPI)
	authGroup.POST("/v1/workflows/run/*", s.RunWorkflowAPI)
	authGroup.GET("/v1/workflows/*", s.GetWorkflowAPI)
	authGroup.PUT("/v1/workflows/*", s.UpdateWorkflowAPI)
	authGroup.DELETE("/v1/workflows/*", s.DeleteWorkflowAPI)

	authGroup.GET("/v1/workflows/*/triggers", s.ListTriggersAPI)
	authGroup.POST("/v1/workflows/*/triggers", s.CreateTriggerAPI)
	authGroup.DELETE("/v1/triggers/*", s.DeleteTriggerAPI)

	authGroup.GET("/v1/runs", s.ListRunsAPI)

	return s, nil
}

// HealthzAPI handles GET /healthz, unauthenticated, for load-balancer
// liveness checks.
func (s *Server) HealthzAPI(w http.ResponseWriter, r *http.Request) {
	httpResponse(w, "ok", http.StatusOK)
}

// Start runs the HTTP server until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	return s.server.StartWithContext(ctx, net.JoinHostPort(s.config.Host, s.config.Port))
}

type contextKey int

const usernameContextKey contextKey = 0

// authMiddleware requires a valid "Authorization: Bearer <jwt>" header on
// every route it wraps, verifying the token through the auth collaborator
// rather than a static admin token — the one change from the shape of
// server.adminAuthMiddleware this is grounded on.
func (s *Server) authMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				httpResponse(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			token := strings.TrimPrefix(header, "Bearer ")
			if token == header {
				httpResponse(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			user, err := s.auth.CurrentUser(r.Context(), token)
			if err != nil {
				httpResponse(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), usernameContextKey, user.Username)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// currentUsername returns the authenticated caller's username, set by
// authMiddleware. Empty on routes that don't require authentication.
func currentUsername(r *http.Request) string {
	v, _ := r.Context().Value(usernameContextKey).(string)
	return v
}
