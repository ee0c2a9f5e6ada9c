package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/shopspring/decimal"

	"chantier/internal/amqp"
	"chantier/internal/budget"
	"chantier/internal/core"
)

// Store is the ledger persistence the service orchestrates.
type Store interface {
	LoadSnapshot(ctx context.Context) (budget.Snapshot, error)

	ListPayers(ctx context.Context) ([]core.Payer, error)
	CreatePayer(ctx context.Context, name string) (core.Payer, error)

	ListTags(ctx context.Context) ([]core.Tag, error)
	CreateTag(ctx context.Context, name string) (core.Tag, error)
	DeleteTag(ctx context.Context, id int64) error

	GetQuote(ctx context.Context, id int64) (core.Quote, error)
	CreateQuote(ctx context.Context, in core.QuoteInput) (int64, error)
	UpdateQuote(ctx context.Context, id int64, in core.QuoteInput) error
	SetQuoteAccepted(ctx context.Context, id int64, accepted bool) error
	DeleteQuote(ctx context.Context, id int64) error
	ListQuoteFiles(ctx context.Context, quoteID int64) ([]core.QuoteFile, error)

	CreateExpense(ctx context.Context, in core.ExpenseInput) (int64, error)
	UpdateExpense(ctx context.Context, id int64, in core.ExpenseInput) error
	DeleteExpense(ctx context.Context, id int64) error

	CreateIncome(ctx context.Context, in core.IncomeInput) (int64, error)
	UpdateIncome(ctx context.Context, id int64, in core.IncomeInput) error
	DeleteIncome(ctx context.Context, id int64) error

	Close() error
}

// Files stores quote attachments.
type Files interface {
	Save(ctx context.Context, quoteID int64, name, mimeType string, r io.Reader) (core.QuoteFile, error)
	Open(ctx context.Context, storedName string) (core.QuoteFile, *os.File, error)
	Delete(ctx context.Context, id int64) error
	RemoveStored(ctx context.Context, files []core.QuoteFile)
}

// Publisher announces ledger changes to other processes.
type Publisher interface {
	PublishLedgerChanged(ctx context.Context, msg *amqp.LedgerChangedMessage) error
	Close() error
}

// DashboardData is everything the dashboard shows, computed from one snapshot.
type DashboardData struct {
	Summary        budget.Summary
	Remaining      []budget.QuoteRemaining
	TotalRemaining decimal.Decimal
	Planned        []core.Quote
	TotalPlanned   decimal.Decimal
	Slices         []budget.Slice
}

// NewDashboardData derives the dashboard from a snapshot.
func NewDashboardData(s budget.Snapshot) DashboardData {
	sum := budget.Compute(s)
	remaining := budget.RemainingByQuote(s)
	planned := budget.PlannedQuotes(s)
	return DashboardData{
		Summary:        sum,
		Remaining:      remaining,
		TotalRemaining: budget.TotalRemaining(remaining),
		Planned:        planned,
		TotalPlanned:   budget.TotalPrice(planned),
		Slices:         budget.ChartSlices(sum),
	}
}

// LedgerService orchestrates ledger writes across SQLite, the attachment
// directory and the optional change-event publisher.
type LedgerService struct {
	store     Store
	files     Files
	publisher Publisher
}

// NewLedgerService wires the service. files and publisher may be nil.
func NewLedgerService(store Store, files Files, publisher Publisher) *LedgerService {
	return &LedgerService{
		store:     store,
		files:     files,
		publisher: publisher,
	}
}

// Snapshot loads the full ledger for rendering.
func (s *LedgerService) Snapshot(ctx context.Context) (budget.Snapshot, error) {
	snap, err := s.store.LoadSnapshot(ctx)
	if err != nil {
		return budget.Snapshot{}, fmt.Errorf("load ledger: %w", err)
	}
	return snap, nil
}

// Dashboard recomputes every dashboard figure from a fresh snapshot.
func (s *LedgerService) Dashboard(ctx context.Context) (DashboardData, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return DashboardData{}, err
	}
	return NewDashboardData(snap), nil
}

func (s *LedgerService) CreatePayer(ctx context.Context, name string) (core.Payer, error) {
	p, err := s.store.CreatePayer(ctx, name)
	if err != nil {
		return core.Payer{}, err
	}
	s.publish(ctx, amqp.EntityPayer, amqp.OpCreate, p.ID)
	return p, nil
}

func (s *LedgerService) CreateTag(ctx context.Context, name string) (core.Tag, error) {
	t, err := s.store.CreateTag(ctx, name)
	if err != nil {
		return core.Tag{}, err
	}
	s.publish(ctx, amqp.EntityTag, amqp.OpCreate, t.ID)
	return t, nil
}

func (s *LedgerService) DeleteTag(ctx context.Context, id int64) error {
	if err := s.store.DeleteTag(ctx, id); err != nil {
		return err
	}
	s.publish(ctx, amqp.EntityTag, amqp.OpDelete, id)
	return nil
}

func (s *LedgerService) CreateQuote(ctx context.Context, in core.QuoteInput) (int64, error) {
	id, err := s.store.CreateQuote(ctx, in)
	if err != nil {
		return 0, err
	}
	s.publish(ctx, amqp.EntityQuote, amqp.OpCreate, id)
	return id, nil
}

func (s *LedgerService) UpdateQuote(ctx context.Context, id int64, in core.QuoteInput) error {
	if err := s.store.UpdateQuote(ctx, id, in); err != nil {
		return err
	}
	s.publish(ctx, amqp.EntityQuote, amqp.OpUpdate, id)
	return nil
}

func (s *LedgerService) SetQuoteAccepted(ctx context.Context, id int64, accepted bool) error {
	if err := s.store.SetQuoteAccepted(ctx, id, accepted); err != nil {
		return err
	}
	s.publish(ctx, amqp.EntityQuote, amqp.OpAccept, id)
	return nil
}

// DeleteQuote removes the quote and its file records, then the stored bytes.
// Disk cleanup failures are logged and ignored.
func (s *LedgerService) DeleteQuote(ctx context.Context, id int64) error {
	files, err := s.store.ListQuoteFiles(ctx, id)
	if err != nil {
		return fmt.Errorf("load quote files: %w", err)
	}
	if err := s.store.DeleteQuote(ctx, id); err != nil {
		return err
	}
	if s.files != nil && len(files) > 0 {
		s.files.RemoveStored(ctx, files)
	}
	s.publish(ctx, amqp.EntityQuote, amqp.OpDelete, id)
	return nil
}

// AttachFile stores an upload against an existing quote.
func (s *LedgerService) AttachFile(ctx context.Context, quoteID int64, name, mimeType string, r io.Reader) (core.QuoteFile, error) {
	if s.files == nil {
		return core.QuoteFile{}, errors.New("attachments not configured")
	}
	if _, err := s.store.GetQuote(ctx, quoteID); err != nil {
		return core.QuoteFile{}, err
	}
	f, err := s.files.Save(ctx, quoteID, name, mimeType, r)
	if err != nil {
		return core.QuoteFile{}, err
	}
	s.publish(ctx, amqp.EntityQuoteFile, amqp.OpCreate, f.ID)
	return f, nil
}

func (s *LedgerService) DeleteFile(ctx context.Context, id int64) error {
	if s.files == nil {
		return errors.New("attachments not configured")
	}
	if err := s.files.Delete(ctx, id); err != nil {
		return err
	}
	s.publish(ctx, amqp.EntityQuoteFile, amqp.OpDelete, id)
	return nil
}

// OpenFile returns an attachment for streaming. The caller closes the file.
func (s *LedgerService) OpenFile(ctx context.Context, storedName string) (core.QuoteFile, *os.File, error) {
	if s.files == nil {
		return core.QuoteFile{}, nil, core.ErrNotFound
	}
	return s.files.Open(ctx, storedName)
}

func (s *LedgerService) CreateExpense(ctx context.Context, in core.ExpenseInput) (int64, error) {
	id, err := s.store.CreateExpense(ctx, in)
	if err != nil {
		return 0, err
	}
	s.publish(ctx, amqp.EntityExpense, amqp.OpCreate, id)
	return id, nil
}

func (s *LedgerService) UpdateExpense(ctx context.Context, id int64, in core.ExpenseInput) error {
	if err := s.store.UpdateExpense(ctx, id, in); err != nil {
		return err
	}
	s.publish(ctx, amqp.EntityExpense, amqp.OpUpdate, id)
	return nil
}

func (s *LedgerService) DeleteExpense(ctx context.Context, id int64) error {
	if err := s.store.DeleteExpense(ctx, id); err != nil {
		return err
	}
	s.publish(ctx, amqp.EntityExpense, amqp.OpDelete, id)
	return nil
}

func (s *LedgerService) CreateIncome(ctx context.Context, in core.IncomeInput) (int64, error) {
	id, err := s.store.CreateIncome(ctx, in)
	if err != nil {
		return 0, err
	}
	s.publish(ctx, amqp.EntityIncome, amqp.OpCreate, id)
	return id, nil
}

func (s *LedgerService) UpdateIncome(ctx context.Context, id int64, in core.IncomeInput) error {
	if err := s.store.UpdateIncome(ctx, id, in); err != nil {
		return err
	}
	s.publish(ctx, amqp.EntityIncome, amqp.OpUpdate, id)
	return nil
}

func (s *LedgerService) DeleteIncome(ctx context.Context, id int64) error {
	if err := s.store.DeleteIncome(ctx, id); err != nil {
		return err
	}
	s.publish(ctx, amqp.EntityIncome, amqp.OpDelete, id)
	return nil
}

// publish announces a change. The write already succeeded locally, so a
// publish failure is only logged.
func (s *LedgerService) publish(ctx context.Context, entity, op string, id int64) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishLedgerChanged(ctx, amqp.NewLedgerChangedMessage(entity, op, id)); err != nil {
		slog.ErrorContext(ctx, "Failed to publish ledger change",
			"entity", entity, "op", op, "id", id, "error", err)
	}
}

// Close closes the store and the publisher.
func (s *LedgerService) Close() error {
	var errs []error

	if s.store != nil {
		if err := s.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}
	if s.publisher != nil {
		if err := s.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close ledger service: %w", errors.Join(errs...))
	}
	return nil
}
