// Package export mirrors the dashboard into a Google Sheet.
package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	gsheet "google.golang.org/api/sheets/v4"

	"chantier/internal/services"
)

// Exporter writes a dashboard somewhere outside the app.
type Exporter interface {
	ExportSummary(ctx context.Context, data services.DashboardData) error
}

// SheetsExporter overwrites a fixed layout in one sheet: metrics in A:B and
// the tag table in D:F.
type SheetsExporter struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string
	now           func() time.Time
}

var _ Exporter = (*SheetsExporter)(nil)

func NewSheetsExporter(ctx context.Context, spreadsheetID, sheetName string, creds Credentials) (*SheetsExporter, error) {
	spreadsheetID = strings.TrimSpace(spreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	if sheetName = strings.TrimSpace(sheetName); sheetName == "" {
		sheetName = "Budget"
	}

	svc, err := newSheetsService(ctx, creds)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}

	return &SheetsExporter{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		sheetName:     sheetName,
		now:           time.Now,
	}, nil
}

// ExportSummary replaces both ranges with the current figures.
func (e *SheetsExporter) ExportSummary(ctx context.Context, data services.DashboardData) error {
	if e.svc == nil {
		return errors.New("sheets service not initialized")
	}

	summary := SummaryRows(data, e.now())
	tags := TagRows(data.Summary)

	// Stale tag rows from deleted tags would otherwise survive
	if _, err := e.svc.Spreadsheets.Values.Clear(e.spreadsheetID, e.rangeFor("D:F"), &gsheet.ClearValuesRequest{}).
		Context(ctx).Do(); err != nil {
		return fmt.Errorf("clear tag table in %s: %w", e.sheetName, err)
	}

	req := &gsheet.BatchUpdateValuesRequest{
		ValueInputOption: "USER_ENTERED",
		Data: []*gsheet.ValueRange{
			{Range: e.rangeFor(fmt.Sprintf("A1:B%d", len(summary))), Values: summary},
			{Range: e.rangeFor(fmt.Sprintf("D1:F%d", len(tags))), Values: tags},
		},
	}
	if _, err := e.svc.Spreadsheets.Values.BatchUpdate(e.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("update sheet %s: %w", e.sheetName, err)
	}

	slog.InfoContext(ctx, "Exported dashboard to Google Sheets",
		"sheet", e.sheetName,
		"metrics_rows", len(summary),
		"tag_rows", len(tags)-1)
	return nil
}

func (e *SheetsExporter) rangeFor(cells string) string {
	return fmt.Sprintf("'%s'!%s", strings.ReplaceAll(e.sheetName, "'", "''"), cells)
}
