package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"chantier/internal/amqp"
	"chantier/internal/attachments"
	"chantier/internal/auth"
	"chantier/internal/cli"
	apphttp "chantier/internal/http"
	applog "chantier/internal/log"
	"chantier/internal/metrics"
	"chantier/internal/services"
)

// countingPublisher counts publish failures before handing them back to the
// service, which logs and swallows them.
type countingPublisher struct {
	*amqp.Client
	metrics *metrics.Metrics
}

func (p countingPublisher) PublishLedgerChanged(ctx context.Context, msg *amqp.LedgerChangedMessage) error {
	err := p.Client.PublishLedgerChanged(ctx, msg)
	if err != nil {
		p.metrics.PublishFailures.Inc()
	}
	return err
}

func main() {
	cli.LoadEnvFile()

	logger := cli.SetupLogger(nil)
	cfg := cli.LoadAndValidateConfig(logger, cli.ValidateServer)
	logger = cli.SetupLogger(cfg)
	logger.Info("Starting chantier", applog.FieldOperation, applog.OpStartup, "env", cfg.AppEnv, "port", cfg.Port)

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)

	files, err := attachments.NewStore(cfg.UploadDir, repo)
	if err != nil {
		logger.WithComponent(applog.ComponentFiles).Error("Failed to initialize attachment store",
			applog.FieldError, err, "dir", cfg.UploadDir)
		os.Exit(1)
	}

	m := metrics.New()

	var publisher services.Publisher
	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.WithComponent(applog.ComponentAMQP).Error("Failed to initialize AMQP client", applog.FieldError, err)
			os.Exit(1)
		}
		publisher = countingPublisher{Client: client, metrics: m}
		logger.WithComponent(applog.ComponentAMQP).Info("Change events enabled", "exchange", cfg.AMQPExchange)
	} else {
		logger.WithComponent(applog.ComponentAMQP).Info("Change events disabled - no AMQP_URL provided")
	}

	ledger := services.NewLedgerService(repo, files, publisher)

	password, err := auth.NewPassword(cfg.AppPassword, cfg.AppPasswordHash)
	if err != nil {
		logger.WithComponent(applog.ComponentAuth).Error("Failed to initialize password", applog.FieldError, err)
		os.Exit(1)
	}

	srv, err := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Ledger:             ledger,
		DB:                 repo,
		Sessions:           auth.NewSessions(cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction()),
		Password:           password,
		Logger:             logger,
		Metrics:            m,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		MaxUploadBytes:     cfg.MaxUploadBytes(),
	})
	if err != nil {
		logger.Error("Failed to create HTTP server", applog.FieldError, err)
		os.Exit(1)
	}

	ctx, done := cli.GracefulShutdown(logger, 10*time.Second, func(shutdownCtx context.Context) {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", applog.FieldError, err)
		}
		if err := ledger.Close(); err != nil {
			logger.Error("Failed to close ledger", applog.FieldError, err)
		}
	})

	go func() {
		logger.Info("HTTP server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", applog.FieldError, err)
			os.Exit(1)
		}
	}()

	cli.WaitForShutdown(ctx, done)
}
