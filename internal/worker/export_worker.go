package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"chantier/internal/amqp"
	"chantier/internal/export"
	"chantier/internal/services"
)

// DashboardSource recomputes the dashboard from the ledger.
type DashboardSource interface {
	Dashboard(ctx context.Context) (services.DashboardData, error)
}

// ExportWorker keeps the exported dashboard in step with the ledger. Every
// export writes the full current state, so change messages older than the
// last export start are already covered and are skipped.
type ExportWorker struct {
	source   DashboardSource
	exporter export.Exporter

	mu          sync.Mutex
	lastStarted time.Time
	now         func() time.Time
	onExport    func(error)
}

func NewExportWorker(source DashboardSource, exporter export.Exporter) *ExportWorker {
	return &ExportWorker{
		source:   source,
		exporter: exporter,
		now:      time.Now,
	}
}

// OnExport registers fn to observe the outcome of every export attempt.
func (w *ExportWorker) OnExport(fn func(error)) *ExportWorker {
	w.onExport = fn
	return w
}

// HandleLedgerChanged re-exports after a change notification.
func (w *ExportWorker) HandleLedgerChanged(ctx context.Context, msg *amqp.LedgerChangedMessage) error {
	w.mu.Lock()
	covered := !msg.Timestamp.IsZero() && msg.Timestamp.Before(w.lastStarted)
	w.mu.Unlock()
	if covered {
		slog.DebugContext(ctx, "Change already covered by a later export",
			"entity", msg.Entity, "id", msg.ID, "timestamp", msg.Timestamp)
		return nil
	}

	slog.InfoContext(ctx, "Processing ledger change", "entity", msg.Entity, "op", msg.Op, "id", msg.ID)
	return w.ExportNow(ctx)
}

// ExportNow recomputes the dashboard and writes it out. Exports never overlap.
func (w *ExportWorker) ExportNow(ctx context.Context) (err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.onExport != nil {
		defer func() { w.onExport(err) }()
	}

	started := w.now()
	data, err := w.source.Dashboard(ctx)
	if err != nil {
		return fmt.Errorf("compute dashboard: %w", err)
	}
	if err := w.exporter.ExportSummary(ctx, data); err != nil {
		return fmt.Errorf("export dashboard: %w", err)
	}
	w.lastStarted = started

	slog.InfoContext(ctx, "Dashboard exported", "duration", w.now().Sub(started))
	return nil
}

// RunPeriodic exports once immediately and then on every tick until ctx ends.
func (w *ExportWorker) RunPeriodic(ctx context.Context, interval time.Duration) error {
	if err := w.ExportNow(ctx); err != nil {
		slog.ErrorContext(ctx, "Initial export failed", "error", err)
	}
	if interval <= 0 {
		<-ctx.Done()
		return ctx.Err()
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "Stopping periodic export", "reason", ctx.Err())
			return ctx.Err()
		case <-ticker.C:
			if err := w.ExportNow(ctx); err != nil {
				slog.ErrorContext(ctx, "Periodic export failed", "error", err)
			}
		}
	}
}
