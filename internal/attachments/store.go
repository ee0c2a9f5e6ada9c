// Package attachments keeps quote attachment bytes on disk and their records
// in the ledger store.
package attachments

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"chantier/internal/core"
)

// Records is the slice of the ledger store the attachment store needs.
type Records interface {
	CreateQuoteFile(ctx context.Context, f core.QuoteFile) (core.QuoteFile, error)
	GetQuoteFile(ctx context.Context, id int64) (core.QuoteFile, error)
	GetQuoteFileByStoragePath(ctx context.Context, name string) (core.QuoteFile, error)
	DeleteQuoteFile(ctx context.Context, id int64) error
}

var ErrInvalidName = errors.New("invalid file name")

type Store struct {
	dir     string
	records Records
	now     func() time.Time
}

func NewStore(dir string, records Records) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload directory: %w", err)
	}
	return &Store{dir: dir, records: records, now: time.Now}, nil
}

// Dir returns the upload directory.
func (s *Store) Dir() string { return s.dir }

// Save writes the bytes to disk then records them. When the record cannot be
// inserted the written file is removed.
func (s *Store) Save(ctx context.Context, quoteID int64, name, mimeType string, r io.Reader) (core.QuoteFile, error) {
	clean := SanitizeName(name)
	if clean == "" {
		return core.QuoteFile{}, ErrInvalidName
	}
	stored := fmt.Sprintf("%d-%s", s.now().UnixMilli(), clean)
	path := filepath.Join(s.dir, stored)

	dst, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return core.QuoteFile{}, fmt.Errorf("create attachment file: %w", err)
	}
	size, err := io.Copy(dst, r)
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(path)
		return core.QuoteFile{}, fmt.Errorf("write attachment file: %w", err)
	}

	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = ContentTypeFor(clean)
	}
	rec, err := s.records.CreateQuoteFile(ctx, core.QuoteFile{
		QuoteID:     quoteID,
		Name:        name,
		StoragePath: stored,
		MimeType:    mimeType,
		Size:        size,
	})
	if err != nil {
		if rmErr := os.Remove(path); rmErr != nil {
			slog.WarnContext(ctx, "Failed to remove orphaned attachment", "path", path, "error", rmErr)
		}
		return core.QuoteFile{}, fmt.Errorf("record attachment: %w", err)
	}

	slog.InfoContext(ctx, "Attachment saved", "quote_id", quoteID, "stored", stored, "size", size)
	return rec, nil
}

// Open returns the record and an open handle for a stored file name. The
// caller closes the file.
func (s *Store) Open(ctx context.Context, storedName string) (core.QuoteFile, *os.File, error) {
	if !validStoredName(storedName) {
		return core.QuoteFile{}, nil, ErrInvalidName
	}

	f, err := os.Open(filepath.Join(s.dir, storedName))
	if errors.Is(err, os.ErrNotExist) {
		return core.QuoteFile{}, nil, core.ErrNotFound
	}
	if err != nil {
		return core.QuoteFile{}, nil, fmt.Errorf("open attachment: %w", err)
	}

	rec, err := s.records.GetQuoteFileByStoragePath(ctx, storedName)
	switch {
	case errors.Is(err, core.ErrNotFound):
		// Bytes without a record still serve, named after the stored file.
		info, statErr := f.Stat()
		if statErr != nil {
			f.Close()
			return core.QuoteFile{}, nil, fmt.Errorf("stat attachment: %w", statErr)
		}
		rec = core.QuoteFile{
			Name:        storedName,
			StoragePath: storedName,
			MimeType:    ContentTypeFor(storedName),
			Size:        info.Size(),
		}
	case err != nil:
		f.Close()
		return core.QuoteFile{}, nil, err
	}
	return rec, f, nil
}

// Delete removes the bytes then the record. A disk failure is logged and
// does not stop the record deletion. An unknown id is a no-op.
func (s *Store) Delete(ctx context.Context, id int64) error {
	rec, err := s.records.GetQuoteFile(ctx, id)
	if errors.Is(err, core.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	s.removeFile(ctx, rec.StoragePath)
	if err := s.records.DeleteQuoteFile(ctx, id); err != nil {
		return err
	}

	slog.InfoContext(ctx, "Attachment deleted", "id", id, "quote_id", rec.QuoteID)
	return nil
}

// RemoveStored deletes the bytes of files whose records are already gone.
func (s *Store) RemoveStored(ctx context.Context, files []core.QuoteFile) {
	for _, f := range files {
		s.removeFile(ctx, f.StoragePath)
	}
}

func (s *Store) removeFile(ctx context.Context, storedName string) {
	if !validStoredName(storedName) {
		slog.WarnContext(ctx, "Refusing to remove attachment with invalid name", "stored", storedName)
		return
	}
	err := os.Remove(filepath.Join(s.dir, storedName))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.WarnContext(ctx, "Failed to remove attachment file", "stored", storedName, "error", err)
	}
}

// SanitizeName keeps the base name and replaces anything outside
// [A-Za-z0-9._-] with an underscore.
func SanitizeName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	if name == "." || name == "/" || name == ".." {
		return ""
	}
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return strings.TrimLeft(b.String(), ".")
}

func validStoredName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return !strings.ContainsAny(name, `/\`) && filepath.Base(name) == name
}

var contentTypes = map[string]string{
	".pdf":  "application/pdf",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
	".txt":  "text/plain",
}

// ContentTypeFor maps a file extension to the served content type.
func ContentTypeFor(name string) string {
	if ct, ok := contentTypes[strings.ToLower(filepath.Ext(name))]; ok {
		return ct
	}
	return "application/octet-stream"
}
