package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"chantier/internal/amqp"
	"chantier/internal/cli"
	"chantier/internal/export"
	applog "chantier/internal/log"
	"chantier/internal/metrics"
	"chantier/internal/services"
	"chantier/internal/worker"
)

func main() {
	cli.LoadEnvFile()

	logger := cli.SetupLogger(nil)
	cfg := cli.LoadAndValidateConfig(logger, cli.ValidateWorker)
	logger = cli.SetupLogger(cfg).WithComponent(applog.ComponentWorker)
	logger.Info("Starting chantier-worker", applog.FieldOperation, applog.OpStartup,
		"spreadsheet_id", cfg.GoogleSpreadsheetID, "interval", cfg.ExportInterval)

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	ledger := services.NewLedgerService(repo, nil, nil)
	defer ledger.Close()

	creds, err := export.CredentialsFromEnv()
	if err != nil {
		logger.WithComponent(applog.ComponentSheets).Error("Google credentials unavailable", applog.FieldError, err)
		os.Exit(1)
	}
	exporter, err := export.NewSheetsExporter(context.Background(), cfg.GoogleSpreadsheetID, cfg.GoogleSheetName, creds)
	if err != nil {
		logger.WithComponent(applog.ComponentSheets).Error("Failed to initialize Google Sheets exporter", applog.FieldError, err)
		os.Exit(1)
	}

	m := metrics.New()
	exportWorker := worker.NewExportWorker(ledger, exporter).OnExport(m.RecordExport)

	var consumer *amqp.Client
	if cfg.AMQPURL != "" {
		consumer, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.WithComponent(applog.ComponentAMQP).Error("Failed to initialize AMQP client", applog.FieldError, err)
			os.Exit(1)
		}
		defer consumer.Close()
	} else {
		logger.Info("AMQP disabled - exporting on the interval only")
	}

	var metricsSrv *http.Server
	if cfg.WorkerMetricsAddr != "" {
		r := chi.NewRouter()
		r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("ok")) })
		r.Method(http.MethodGet, "/metrics", m.Handler())
		metricsSrv = &http.Server{Addr: cfg.WorkerMetricsAddr, Handler: r, ReadHeaderTimeout: 5 * time.Second}
	}

	ctx, done := cli.GracefulShutdown(logger, 15*time.Second, func(shutdownCtx context.Context) {
		if metricsSrv != nil {
			_ = metricsSrv.Shutdown(shutdownCtx)
		}
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return exportWorker.RunPeriodic(gctx, cfg.ExportInterval)
	})
	if consumer != nil {
		g.Go(func() error {
			return consumer.ConsumeLedgerChanged(gctx, exportWorker.HandleLedgerChanged)
		})
	}
	if metricsSrv != nil {
		g.Go(func() error {
			logger.Info("Metrics listener started", "addr", metricsSrv.Addr)
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Worker stopped", applog.FieldError, err)
		if metricsSrv != nil {
			_ = metricsSrv.Close()
		}
		os.Exit(1)
	}
	cli.WaitForShutdown(ctx, done)
}
