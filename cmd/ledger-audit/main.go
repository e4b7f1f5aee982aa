package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/tillstock/tillstock-backend/internal/ledgeraudit"
	"github.com/tillstock/tillstock-backend/pkg/config"
	"github.com/tillstock/tillstock-backend/pkg/logger"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "ledger-audit"})

	_ = godotenv.Load()

	timeout := flag.Duration("timeout", 5*time.Minute, "abort the audit after this long")
	flag.Parse()

	cfg, err := config.Load()
	requireResource(context.Background(), logg, "config", err)

	logg = logger.New(logger.Options{
		ServiceName: "ledger-audit",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})

	if cfg.DB.IsSQLite() && cfg.Audit.DSN == "" {
		requireResource(context.Background(), logg, "audit dsn", fmt.Errorf("ledger audit needs postgres; set %s", config.EnvAuditDSN))
	}
	dsn := cfg.Audit.DSN
	if dsn == "" {
		dsn = cfg.DB.DSN
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env})

	pool, err := ledgeraudit.NewPool(ctx, dsn)
	requireResource(ctx, logg, "postgres", err)
	defer pool.Close()

	auditor, err := ledgeraudit.NewAuditor(ledgeraudit.NewPGSource(pool), logg)
	requireResource(ctx, logg, "auditor", err)

	report, err := auditor.Run(ctx)
	if err != nil {
		logg.Error(ctx, "ledger audit failed", err)
		pool.Close()
		os.Exit(2)
	}
	if err := ledgeraudit.WriteReport(os.Stdout, report); err != nil {
		logg.Error(ctx, "failed to write report", err)
	}
	if !report.OK() {
		pool.Close()
		os.Exit(1)
	}
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
