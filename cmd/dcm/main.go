// Command dcm runs the distributed context manager: the REST API, the
// real-time gateway, the Postgres LISTEN/NOTIFY event bus and the
// periodic cleanup scheduler, all against one shared store.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/codeready-toolchain/dcm/pkg/api"
	"github.com/codeready-toolchain/dcm/pkg/auth"
	"github.com/codeready-toolchain/dcm/pkg/cleanup"
	"github.com/codeready-toolchain/dcm/pkg/config"
	"github.com/codeready-toolchain/dcm/pkg/database"
	"github.com/codeready-toolchain/dcm/pkg/events"
	"github.com/codeready-toolchain/dcm/pkg/gateway"
	"github.com/codeready-toolchain/dcm/pkg/metrics"
	"github.com/codeready-toolchain/dcm/pkg/routing"
	"github.com/codeready-toolchain/dcm/pkg/services"
	"github.com/codeready-toolchain/dcm/pkg/wave"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	configDir := flag.String("config-dir", getEnv("CONFIG_DIR", "./deploy/config"), "Path to configuration directory")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Initialize(ctx, *configDir)
	if err != nil {
		slog.Error("failed to initialize configuration", "error", err)
		os.Exit(1)
	}

	dsn := cfg.Database.DSN
	dbClient, err := database.NewClient(ctx, database.Config{
		DSN:             dsn,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime.Std(),
	})
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			slog.Error("error closing database client", "error", err)
		}
	}()
	slog.Info("connected to database")

	publisher := events.NewPublisher(dbClient.DB())
	bus := events.NewBus(dsn, publisher)

	issuer := auth.NewIssuer(cfg.Auth.Secret(), cfg.Auth.TokenTTL.Std())
	verifier := auth.NewVerifier(cfg.Auth.Secret())
	subscriptionSvc := services.NewSubscriptionService(dbClient)

	gw := gateway.NewManager(cfg.Gateway, verifier, publisher, subscriptionSvc, cfg.IsProduction())
	bus.SetDispatcher(gw)

	if err := bus.Start(ctx); err != nil {
		slog.Error("failed to start event bus", "error", err)
		os.Exit(1)
	}
	defer bus.Stop(ctx)

	go gw.Run(ctx)

	waveController := wave.NewController(dbClient, publisher)
	routingEngine := routing.NewEngine(dbClient, cfg.Routing)
	cleanupSvc := cleanup.NewService(cfg.Cleanup, dbClient)
	cleanupSvc.Start(ctx)
	defer cleanupSvc.Stop()

	metricsCollector := metrics.NewCollector(dbClient, publisher)
	metricsCollector.Start(ctx)
	defer metricsCollector.Stop()

	projectSvc := services.NewProjectService(dbClient, publisher)
	requestSvc := services.NewRequestService(dbClient, publisher)
	taskListSvc := services.NewTaskListService(dbClient, publisher)
	subtaskSvc := services.NewSubtaskService(dbClient, publisher, waveController)
	actionSvc := services.NewActionService(dbClient, publisher)
	messageSvc := services.NewMessageService(dbClient, publisher)
	blockingSvc := services.NewBlockingService(dbClient, publisher)
	sessionSvc := services.NewSessionService(dbClient, publisher)
	capacitySvc := services.NewCapacityService(dbClient, publisher)
	contextSvc := services.NewContextService(dbClient)
	hierarchySvc := services.NewHierarchyService(dbClient)

	server := api.NewServer(
		cfg, dbClient,
		projectSvc, requestSvc, taskListSvc, subtaskSvc, actionSvc,
		messageSvc, blockingSvc, subscriptionSvc, sessionSvc, capacitySvc,
		contextSvc, hierarchySvc,
		waveController, routingEngine, cleanupSvc, gw, issuer,
	)

	gwServer := gateway.NewServer(gw)

	errCh := make(chan error, 2)
	go func() {
		addr := cfg.Server.Host + ":" + strconv.Itoa(cfg.Server.Port)
		slog.Info("HTTP API listening", "addr", addr)
		errCh <- server.Start(addr)
	}()
	go func() {
		addr := cfg.Gateway.Host + ":" + strconv.Itoa(cfg.Gateway.Port)
		slog.Info("real-time gateway listening", "addr", addr)
		errCh <- gwServer.Start(addr)
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			slog.Error("listener failed", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Std())
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("error shutting down HTTP server", "error", err)
	}
	if err := gwServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("error shutting down gateway server", "error", err)
	}
}
