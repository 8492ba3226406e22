// Package store persists lyrics documents by name.
//
// Backends are selected by DSN in Open:
//
//	./songs, file:///srv/songs   directory of files (".xz" names are compressed)
//	sqlite:songs.db              SQLite database
//	libsql://db.example.io?authToken=...
//	redis://host:6379/0, rediss://...
//	mem:                         process memory
//
// Document names are slash-separated relative paths checked by
// validation.DocumentName, so a name is valid for every backend.
package store

import (
	"context"
	"database/sql"
	"strings"

	"github.com/FocuswithJustin/soramimi/core/errors"
	"github.com/FocuswithJustin/soramimi/core/sqlite"
	"github.com/FocuswithJustin/soramimi/internal/logging"
	"github.com/FocuswithJustin/soramimi/internal/validation"
)

// Store reads and writes raw document bytes.
type Store interface {
	// Read returns the document content or a *errors.NotFoundError.
	Read(ctx context.Context, name string) ([]byte, error)
	// Save creates or replaces a document.
	Save(ctx context.Context, name string, data []byte) error
	// List returns every document name in lexical order.
	List(ctx context.Context) ([]string, error)
	// Delete removes a document or returns a *errors.NotFoundError.
	Delete(ctx context.Context, name string) error
	// Backend names the implementation for logs.
	Backend() string
	Close() error
}

// Open selects a backend from dsn. The returned store logs every
// operation.
func Open(ctx context.Context, dsn string) (Store, error) {
	s, err := open(ctx, dsn)
	if err != nil {
		return nil, err
	}
	logging.Info("store_opened", "backend", s.Backend())
	return &logged{Store: s}, nil
}

func open(ctx context.Context, dsn string) (Store, error) {
	switch {
	case dsn == "":
		return nil, errors.NewValidation("store", "empty DSN")
	case dsn == "mem:":
		return NewMemory(), nil
	case strings.HasPrefix(dsn, "file://"):
		return NewFileStore(strings.TrimPrefix(dsn, "file://"))
	case strings.HasPrefix(dsn, "sqlite:"):
		db, err := sqlite.Open(dsn)
		if err != nil {
			return nil, errors.NewIO("open", dsn, err)
		}
		return NewSQLStore(ctx, db, "sqlite")
	case strings.HasPrefix(dsn, "libsql://"):
		db, err := sql.Open("libsql", dsn)
		if err != nil {
			return nil, errors.NewIO("open", redactDSN(dsn), err)
		}
		return NewSQLStore(ctx, db, "libsql")
	case strings.HasPrefix(dsn, "redis://"), strings.HasPrefix(dsn, "rediss://"):
		return OpenRedis(ctx, dsn)
	case strings.Contains(dsn, "://"):
		return nil, errors.NewUnsupported("store", "unknown DSN scheme in "+redactDSN(dsn))
	}
	return NewFileStore(dsn)
}

// redactDSN drops the query string, which may carry credentials.
func redactDSN(dsn string) string {
	if i := strings.IndexByte(dsn, '?'); i >= 0 {
		return dsn[:i]
	}
	return dsn
}

// documentName validates name for all backends.
func documentName(name string) (string, error) {
	clean, err := validation.DocumentName(name)
	if err != nil {
		return "", &errors.ValidationError{Field: "name", Value: name, Message: err.Error(), Err: errors.ErrInvalidInput}
	}
	return clean, nil
}

// logged reports each operation through the logging package.
type logged struct {
	Store
}

func (l *logged) Read(ctx context.Context, name string) ([]byte, error) {
	data, err := l.Store.Read(ctx, name)
	l.report("read", name, err, "bytes", len(data))
	return data, err
}

func (l *logged) Save(ctx context.Context, name string, data []byte) error {
	err := l.Store.Save(ctx, name, data)
	l.report("save", name, err, "bytes", len(data))
	return err
}

func (l *logged) List(ctx context.Context) ([]string, error) {
	names, err := l.Store.List(ctx)
	l.report("list", "", err, "count", len(names))
	return names, err
}

func (l *logged) Delete(ctx context.Context, name string) error {
	err := l.Store.Delete(ctx, name)
	l.report("delete", name, err)
	return err
}

func (l *logged) report(op, name string, err error, args ...any) {
	if err == nil {
		logging.StoreEvent(l.Backend(), op, name, args...)
		return
	}
	if errors.Is(err, errors.ErrNotFound) {
		logging.StoreEvent(l.Backend(), op, name, "found", false)
		return
	}
	logging.StoreError(l.Backend(), op, name, err)
}
