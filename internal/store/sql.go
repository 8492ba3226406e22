package store

import (
	"context"
	"database/sql"
	stderrors "errors"
	"time"

	"github.com/google/uuid"
	_ "github.com/tursodatabase/libsql-client-go/libsql" // registers "libsql"

	"github.com/FocuswithJustin/soramimi/core/cas"
	"github.com/FocuswithJustin/soramimi/core/errors"
)

const schema = `CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL UNIQUE,
	content BLOB NOT NULL,
	revision TEXT NOT NULL,
	updated_at INTEGER NOT NULL
)`

// newRowID is replaceable in tests.
var newRowID = uuid.NewString

// SQLStore keeps documents in a "documents" table. It works with any
// SQLite dialect driver: the local sqlite package or a libsql server.
type SQLStore struct {
	db      *sql.DB
	backend string
}

// NewSQLStore creates the schema if needed and takes ownership of db.
func NewSQLStore(ctx context.Context, db *sql.DB, backend string) (*SQLStore, error) {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, errors.NewIO("migrate", backend, err)
	}
	return &SQLStore{db: db, backend: backend}, nil
}

func (s *SQLStore) Backend() string { return s.backend }

func (s *SQLStore) Read(ctx context.Context, name string) ([]byte, error) {
	name, err := documentName(name)
	if err != nil {
		return nil, err
	}
	var data []byte
	err = s.db.QueryRowContext(ctx, `SELECT content FROM documents WHERE name = ?`, name).Scan(&data)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFound("document", name)
	}
	if err != nil {
		return nil, errors.NewIO("read", name, err)
	}
	return data, nil
}

// Revision returns the stored blake3 revision of name without loading
// its content.
func (s *SQLStore) Revision(ctx context.Context, name string) (string, error) {
	name, err := documentName(name)
	if err != nil {
		return "", err
	}
	var rev string
	err = s.db.QueryRowContext(ctx, `SELECT revision FROM documents WHERE name = ?`, name).Scan(&rev)
	if stderrors.Is(err, sql.ErrNoRows) {
		return "", errors.NewNotFound("document", name)
	}
	if err != nil {
		return "", errors.NewIO("read", name, err)
	}
	return rev, nil
}

func (s *SQLStore) Save(ctx context.Context, name string, data []byte) error {
	name, err := documentName(name)
	if err != nil {
		return err
	}
	if data == nil {
		data = []byte{}
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO documents (id, name, content, revision, updated_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET content = excluded.content, revision = excluded.revision, updated_at = excluded.updated_at`,
		newRowID(), name, data, cas.Revision(data), time.Now().Unix())
	if err != nil {
		return errors.NewIO("save", name, err)
	}
	return nil
}

func (s *SQLStore) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM documents ORDER BY name`)
	if err != nil {
		return nil, errors.NewIO("list", s.backend, err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, errors.NewIO("list", s.backend, err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewIO("list", s.backend, err)
	}
	return names, nil
}

func (s *SQLStore) Delete(ctx context.Context, name string) error {
	name, err := documentName(name)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE name = ?`, name)
	if err != nil {
		return errors.NewIO("delete", name, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.NewNotFound("document", name)
	}
	return nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}
