// Package api provides the HTTP surface for the distributed context manager.
package api

import (
	"context"
	"net"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"

	"github.com/codeready-toolchain/dcm/pkg/auth"
	"github.com/codeready-toolchain/dcm/pkg/cleanup"
	"github.com/codeready-toolchain/dcm/pkg/config"
	"github.com/codeready-toolchain/dcm/pkg/database"
	"github.com/codeready-toolchain/dcm/pkg/gateway"
	"github.com/codeready-toolchain/dcm/pkg/routing"
	"github.com/codeready-toolchain/dcm/pkg/services"
	"github.com/codeready-toolchain/dcm/pkg/wave"
)

// operationDeadline bounds every handler at the 5s limit SPEC_FULL §6.6
// imposes on all operations.
const operationDeadline = 5 * time.Second

// Server is the HTTP API server for the coordination plane.
type Server struct {
	echo       *echo.Echo
	httpServer *http.Server
	cfg        *config.Config
	dbClient   *database.Client

	projects      *services.ProjectService
	requests      *services.RequestService
	taskLists     *services.TaskListService
	subtasks      *services.SubtaskService
	actions       *services.ActionService
	messages      *services.MessageService
	blockings     *services.BlockingService
	subscriptions *services.SubscriptionService
	sessions      *services.SessionService
	capacity      *services.CapacityService
	contexts      *services.ContextService
	hierarchy     *services.HierarchyService

	waves     *wave.Controller
	routing   *routing.Engine
	cleanup   *cleanup.Service
	gw        *gateway.Manager
	issuer    *auth.Issuer
	dashboard *services.DashboardService

	tokenLimiter *rateLimiter
	writeLimiter *rateLimiter
}

// NewServer wires every domain service, the wave controller, the routing
// engine, the cleanup scheduler and the real-time gateway into an Echo v5
// router.
func NewServer(
	cfg *config.Config,
	dbClient *database.Client,
	projects *services.ProjectService,
	requests *services.RequestService,
	taskLists *services.TaskListService,
	subtasks *services.SubtaskService,
	actions *services.ActionService,
	messages *services.MessageService,
	blockings *services.BlockingService,
	subscriptions *services.SubscriptionService,
	sessions *services.SessionService,
	capacity *services.CapacityService,
	contexts *services.ContextService,
	hierarchy *services.HierarchyService,
	waves *wave.Controller,
	routingEngine *routing.Engine,
	cleanupSvc *cleanup.Service,
	gw *gateway.Manager,
	issuer *auth.Issuer,
) *Server {
	e := echo.New()

	s := &Server{
		echo:          e,
		cfg:           cfg,
		dbClient:      dbClient,
		projects:      projects,
		requests:      requests,
		taskLists:     taskLists,
		subtasks:      subtasks,
		actions:       actions,
		messages:      messages,
		blockings:     blockings,
		subscriptions: subscriptions,
		sessions:      sessions,
		capacity:      capacity,
		contexts:      contexts,
		hierarchy:     hierarchy,
		waves:         waves,
		routing:       routingEngine,
		cleanup:       cleanupSvc,
		gw:            gw,
		issuer:        issuer,
		dashboard:     services.NewDashboardService(dbClient, routingEngine),
		tokenLimiter:  newTokenEndpointLimiter(cfg.RateLimit),
		writeLimiter:  newWriteEndpointLimiter(cfg.RateLimit),
	}

	s.setupRoutes()
	return s
}

// deadline wraps a handler so its request context is cancelled after
// operationDeadline, per SPEC_FULL §6.6.
func deadline() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			ctx, cancel := context.WithTimeout(c.Request().Context(), operationDeadline)
			defer cancel()
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

// setupRoutes registers every endpoint named in SPEC_FULL §6.6.
func (s *Server) setupRoutes() {
	s.echo.Use(middleware.BodyLimit(2 * 1024 * 1024))
	s.echo.Use(securityHeaders())
	s.echo.Use(deadline())

	s.echo.GET("/health", s.healthHandler)

	v1 := s.echo.Group("/api/v1")
	writeLimited := rateLimitMiddleware(s.writeLimiter)

	// Projects
	v1.POST("/projects", s.createProjectHandler, writeLimited)
	v1.GET("/projects", s.listProjectsHandler)
	v1.GET("/projects/:id", s.getProjectHandler)

	// Requests
	v1.POST("/requests", s.createRequestHandler, writeLimited)
	v1.GET("/requests", s.listRequestsHandler)
	v1.GET("/requests/:id", s.getRequestHandler)
	v1.PATCH("/requests/:id/status", s.updateRequestStatusHandler, writeLimited)

	// Task lists
	v1.POST("/tasks", s.createTaskListHandler, writeLimited)
	v1.GET("/tasks/:id", s.getTaskListHandler)
	v1.GET("/requests/:id/tasks", s.listTaskListsByRequestHandler)

	// Subtasks
	v1.POST("/subtasks", s.createSubtaskHandler, writeLimited)
	v1.GET("/subtasks/:id", s.getSubtaskHandler)
	v1.GET("/subtasks", s.listSubtasksHandler)
	v1.PATCH("/subtasks/:id/status", s.patchSubtaskStatusHandler, writeLimited)
	v1.DELETE("/subtasks/:id", s.deleteSubtaskHandler, writeLimited)
	v1.POST("/subtasks/close-session", s.closeSessionSubtasksHandler, writeLimited)

	// Actions
	v1.POST("/actions", s.createActionHandler, writeLimited)
	v1.GET("/actions/:id", s.getActionHandler)
	v1.GET("/subtasks/:id/actions", s.listActionsBySubtaskHandler)
	v1.GET("/actions/hourly", s.hourlyActionCountsHandler)

	// Sessions
	v1.POST("/sessions", s.createSessionHandler, writeLimited)
	v1.GET("/sessions/:id", s.getSessionHandler)
	v1.GET("/sessions", s.listActiveSessionsHandler)
	v1.POST("/sessions/:id/end", s.endSessionHandler, writeLimited)
	v1.GET("/sessions/:id/stats", s.sessionStatsHandler)

	// Messages
	v1.POST("/messages", s.postMessageHandler, writeLimited)
	v1.GET("/messages", s.getMessagesHandler)
	v1.POST("/messages/:id/read", s.markMessageReadHandler, writeLimited)

	// Subscriptions
	v1.POST("/subscriptions", s.subscribeHandler, writeLimited)
	v1.DELETE("/subscriptions", s.unsubscribeHandler, writeLimited)
	v1.GET("/subscriptions", s.listSubscriptionsHandler)

	// Blockings
	v1.POST("/blockings", s.blockHandler, writeLimited)
	v1.DELETE("/blockings", s.unblockHandler, writeLimited)
	v1.GET("/blockings/:agent_id", s.checkBlockedHandler)

	// Capacity
	v1.POST("/capacity", s.recordTokenUsageHandler, writeLimited)
	v1.GET("/capacity/:agent_id", s.getCapacityHandler)
	v1.POST("/capacity/:agent_id/reset", s.resetCapacityHandler, writeLimited)

	// Routing
	v1.GET("/routing/suggest", s.routingSuggestHandler)
	v1.GET("/routing/stats", s.routingStatsHandler)
	v1.POST("/routing/feedback", s.routingFeedbackHandler, writeLimited)

	// Hierarchy
	v1.GET("/hierarchy/:project", s.getHierarchyHandler)

	// Context
	v1.GET("/context/:agent", s.getContextHandler)
	v1.POST("/context/generate", s.generateContextHandler, writeLimited)
	v1.POST("/compact/save", s.saveCompactSnapshotHandler, writeLimited)
	v1.POST("/compact/restore", s.restoreCompactSnapshotHandler, writeLimited)
	v1.GET("/compact/status/:session", s.compactStatusHandler)
	v1.GET("/compact/snapshot/:session", s.compactSnapshotHandler)

	// Waves
	v1.POST("/waves/:session/create", s.createWaveHandler, writeLimited)
	v1.POST("/waves/:session/start", s.startWaveHandler, writeLimited)
	v1.POST("/waves/:session/transition", s.transitionWaveHandler, writeLimited)
	v1.GET("/waves/:session/current", s.currentWaveHandler)
	v1.GET("/waves/:session/history", s.waveHistoryHandler)

	// Auth
	v1.POST("/auth/token", s.issueTokenHandler, rateLimitMiddleware(s.tokenLimiter))

	// Cleanup
	v1.GET("/cleanup/stats", s.cleanupStatsHandler)

	// Dashboard
	v1.GET("/dashboard/kpis", s.dashboardKPIsHandler)

	// Real-time gateway upgrade endpoint, served on the gateway's own
	// listener (see gateway.Server), not mounted here.
}

// Start starts the HTTP server on the given address and blocks until the
// server stops.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{Addr: addr, Handler: s.echo}
	return s.httpServer.ListenAndServe()
}

// StartWithListener starts the HTTP server on a pre-created listener.
// Used by test infrastructure to serve on a random OS-assigned port.
func (s *Server) StartWithListener(ln net.Listener) error {
	s.httpServer = &http.Server{Handler: s.echo}
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
