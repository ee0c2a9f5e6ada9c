package core

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

// MaxTextLength bounds free-text fields (purpose, need, label, names).
const MaxTextLength = 200

type (
	Payer struct {
		ID   int64
		Name string
	}

	// Tag is a budget category ("pôle") attachable to quotes, expenses and incomes.
	Tag struct {
		ID   int64
		Name string
	}

	Quote struct {
		ID          int64
		Company     *string
		Need        string
		Price       decimal.Decimal
		IsEstimated bool // price is not firm
		IsAccepted  bool // committed spend
		Date        *time.Time
		CreatedAt   time.Time
		Tags        []Tag
		Files       []QuoteFile
	}

	// Expense is a payment. A non-nil QuoteID links it to the quote it pays down.
	Expense struct {
		ID        int64
		PayerID   int64
		PayerName string
		Amount    decimal.Decimal
		Purpose   string
		Label     *string
		Date      *time.Time
		QuoteID   *int64
		QuoteNeed string
		CreatedAt time.Time
		Tags      []Tag
	}

	Income struct {
		ID        int64
		PayerID   int64
		PayerName string
		Amount    decimal.Decimal
		Purpose   string
		Label     *string
		Date      *time.Time
		CreatedAt time.Time
		Tags      []Tag
	}

	// QuoteFile is an attachment record; StoragePath is the stored file name
	// relative to the upload directory.
	QuoteFile struct {
		ID          int64
		QuoteID     int64
		Name        string
		StoragePath string
		MimeType    string
		Size        int64
		CreatedAt   time.Time
	}
)

// Write-side inputs. TagIDs always replaces the full tag set.
type (
	QuoteInput struct {
		Company     *string
		Need        string
		Price       decimal.Decimal
		IsEstimated bool
		IsAccepted  bool
		Date        *time.Time
		TagIDs      []int64
	}

	// NewPayer, when set, names a payer to reuse or create in the same
	// transaction as the row; PayerID is then ignored.
	ExpenseInput struct {
		PayerID  int64
		NewPayer string
		Amount   decimal.Decimal
		Purpose  string
		Label    *string
		Date     *time.Time
		QuoteID  *int64
		TagIDs   []int64
	}

	IncomeInput struct {
		PayerID  int64
		NewPayer string
		Amount   decimal.Decimal
		Purpose  string
		Label    *string
		Date     *time.Time
		TagIDs   []int64
	}
)

var (
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrInvalidDate     = errors.New("invalid date")
	ErrEmptyPurpose    = errors.New("empty purpose")
	ErrEmptyNeed       = errors.New("empty need")
	ErrEmptyName       = errors.New("empty name")
	ErrMissingPayer    = errors.New("missing payer")
	ErrTextTooLong     = errors.New("text too long (max 200 characters)")
	ErrInvalidQuoteRef = errors.New("invalid quote reference")

	// ErrUnknownReference reports a payer, quote or tag id that does not exist.
	ErrUnknownReference = errors.New("unknown payer, quote or tag")

	// ErrConflict reports a uniqueness violation (payer or tag name).
	ErrConflict = errors.New("already exists")
	ErrNotFound = errors.New("not found")
)

// IsValidationError reports whether err comes from input validation.
func IsValidationError(err error) bool {
	for _, target := range []error{
		ErrInvalidAmount, ErrInvalidDate, ErrEmptyPurpose, ErrEmptyNeed,
		ErrEmptyName, ErrMissingPayer, ErrTextTooLong, ErrInvalidQuoteRef,
		ErrUnknownReference,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// ValidateName checks a payer or tag name.
func ValidateName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrEmptyName
	}
	if textLength(name) > MaxTextLength {
		return ErrTextTooLong
	}
	return nil
}

// textLength counts characters, so accented input gets the full budget.
func textLength(s string) int {
	return utf8.RuneCountInString(s)
}

func validateOptionalText(s *string) error {
	if s != nil && textLength(*s) > MaxTextLength {
		return ErrTextTooLong
	}
	return nil
}

func (in QuoteInput) Validate() error {
	if strings.TrimSpace(in.Need) == "" {
		return ErrEmptyNeed
	}
	if textLength(in.Need) > MaxTextLength {
		return ErrTextTooLong
	}
	return validateOptionalText(in.Company)
}

func validatePayer(id int64, newPayer string) error {
	if newPayer != "" {
		return ValidateName(newPayer)
	}
	if id <= 0 {
		return ErrMissingPayer
	}
	return nil
}

func (in ExpenseInput) Validate() error {
	if err := validatePayer(in.PayerID, in.NewPayer); err != nil {
		return err
	}
	if in.Amount.IsZero() {
		return ErrInvalidAmount
	}
	if strings.TrimSpace(in.Purpose) == "" {
		return ErrEmptyPurpose
	}
	if textLength(in.Purpose) > MaxTextLength {
		return ErrTextTooLong
	}
	if in.QuoteID != nil && *in.QuoteID <= 0 {
		return ErrInvalidQuoteRef
	}
	return validateOptionalText(in.Label)
}

func (in IncomeInput) Validate() error {
	if err := validatePayer(in.PayerID, in.NewPayer); err != nil {
		return err
	}
	if in.Amount.IsZero() {
		return ErrInvalidAmount
	}
	if strings.TrimSpace(in.Purpose) == "" {
		return ErrEmptyPurpose
	}
	if textLength(in.Purpose) > MaxTextLength {
		return ErrTextTooLong
	}
	return validateOptionalText(in.Label)
}

// TagNames returns the names of tags in association order.
func TagNames(tags []Tag) []string {
	names := make([]string, 0, len(tags))
	for _, t := range tags {
		names = append(names, t.Name)
	}
	return names
}

// HasTag reports whether tags contains the tag with the given id.
func HasTag(tags []Tag, id int64) bool {
	for _, t := range tags {
		if t.ID == id {
			return true
		}
	}
	return false
}

// IsLinked reports whether the expense pays down a quote.
func (e Expense) IsLinked() bool {
	return e.QuoteID != nil
}

// CompanyName returns the quote company or "" when unset.
func (q Quote) CompanyName() string {
	if q.Company == nil {
		return ""
	}
	return *q.Company
}

// LabelText returns the expense label or "".
func (e Expense) LabelText() string {
	if e.Label == nil {
		return ""
	}
	return *e.Label
}

// LabelText returns the income label or "".
func (i Income) LabelText() string {
	if i.Label == nil {
		return ""
	}
	return *i.Label
}
