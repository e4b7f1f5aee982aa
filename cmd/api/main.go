package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"

	"github.com/tillstock/tillstock-backend/api/middleware"
	"github.com/tillstock/tillstock-backend/api/routes"
	"github.com/tillstock/tillstock-backend/internal/drawers"
	"github.com/tillstock/tillstock-backend/internal/inventory"
	"github.com/tillstock/tillstock-backend/internal/products"
	"github.com/tillstock/tillstock-backend/internal/refunds"
	"github.com/tillstock/tillstock-backend/internal/sales"
	"github.com/tillstock/tillstock-backend/internal/warehouses"
	"github.com/tillstock/tillstock-backend/pkg/auth/session"
	"github.com/tillstock/tillstock-backend/pkg/config"
	"github.com/tillstock/tillstock-backend/pkg/db"
	"github.com/tillstock/tillstock-backend/pkg/logger"
	"github.com/tillstock/tillstock-backend/pkg/metrics"
	"github.com/tillstock/tillstock-backend/pkg/migrate"
	"github.com/tillstock/tillstock-backend/pkg/outbox"
	"github.com/tillstock/tillstock-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		logg.Error(ctx, "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap redis", err)
		os.Exit(1)
	}

	var sessions session.AccessSessionChecker
	if cfg.FeatureFlags.CheckSession {
		manager, err := session.NewManager(redisClient)
		if err != nil {
			logg.Error(ctx, "failed to create session manager", err)
			os.Exit(1)
		}
		sessions = manager
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	ledgerMetrics := metrics.NewLedgerMetrics(registry)

	conn := dbClient.DB()
	emitter := outbox.NewService(outbox.NewRepository(conn), logg)
	productRepo := products.NewRepository(conn)
	warehouseRepo := warehouses.NewRepository(conn)
	registerRepo := drawers.NewRepository(conn)

	engine, err := inventory.NewEngine(productRepo, warehouseRepo, ledgerMetrics)
	if err != nil {
		logg.Error(ctx, "failed to create movement engine", err)
		os.Exit(1)
	}
	inventoryService, err := inventory.NewService(dbClient, conn, engine, emitter, ledgerMetrics, logg)
	if err != nil {
		logg.Error(ctx, "failed to create inventory service", err)
		os.Exit(1)
	}

	salesService, err := sales.NewService(sales.Deps{
		Tx:         dbClient,
		Sales:      sales.NewRepository(conn),
		Registers:  registerRepo,
		Products:   productRepo,
		Warehouses: warehouseRepo,
		Resolvers:  sales.DefaultResolvers(warehouseRepo, middleware.ActiveWarehouseIDFromContext),
		Outbox:     emitter,
		Metrics:    ledgerMetrics,
		Logger:     logg,
	})
	if err != nil {
		logg.Error(ctx, "failed to create sales service", err)
		os.Exit(1)
	}

	drawerService, err := drawers.NewService(drawers.Deps{
		Tx:                dbClient,
		Registers:         registerRepo,
		Refunds:           refunds.NewRepository(conn),
		Outbox:            emitter,
		Metrics:           ledgerMetrics,
		Logger:            logg,
		VarianceTolerance: decimal.NewFromFloat(cfg.Drawer.VarianceTolerance),
	})
	if err != nil {
		logg.Error(ctx, "failed to create drawer service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	runCtx := logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(runCtx, "starting api server")

	server := &http.Server{
		Addr:    addr,
		Handler: routes.NewRouter(cfg, logg, dbClient, redisClient, sessions, registry, inventoryService, salesService, drawerService),
	}

	serveErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	exitCode := 0
	select {
	case err := <-serveErr:
		if err != nil {
			logg.Error(runCtx, "api server stopped unexpectedly", err)
			exitCode = 1
		}
	case <-ctx.Done():
		logg.Info(runCtx, "shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	err = multierr.Combine(
		server.Shutdown(shutdownCtx),
		redisClient.Close(),
		dbClient.Close(),
	)
	if err != nil {
		logg.Error(runCtx, "error during shutdown", err)
		exitCode = 1
	}
	os.Exit(exitCode)
}
