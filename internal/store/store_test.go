package store

import (
	"bytes"
	"context"
	stderrors "errors"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/FocuswithJustin/soramimi/core/cas"
	"github.com/FocuswithJustin/soramimi/core/errors"
)

const lyrics = "[00:00:00]Hel[00:00:50]lo[00:01:00] world\r\n[00:02:00]夜[00:02:50]"

// backends returns one fresh instance of every backend that needs no
// external server.
func backends(t *testing.T) map[string]Store {
	t.Helper()
	ctx := context.Background()
	fs, err := NewFileStore(filepath.Join(t.TempDir(), "songs"))
	if err != nil {
		t.Fatal(err)
	}
	sqlStore, err := Open(ctx, "sqlite:"+filepath.Join(t.TempDir(), "songs.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { sqlStore.Close() })
	return map[string]Store{
		"memory": NewMemory(),
		"file":   fs,
		"sqlite": sqlStore,
	}
}

func TestStoreContract(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := s.Read(ctx, "missing.txt"); !errors.Is(err, errors.ErrNotFound) {
				t.Errorf("Read(missing) error = %v, want ErrNotFound", err)
			}

			if err := s.Save(ctx, "b.txt", []byte(lyrics)); err != nil {
				t.Fatalf("Save() = %v", err)
			}
			if err := s.Save(ctx, "artist/a.txt", []byte("first")); err != nil {
				t.Fatalf("Save() = %v", err)
			}
			if err := s.Save(ctx, "artist/a.txt", []byte("second")); err != nil {
				t.Fatalf("Save(overwrite) = %v", err)
			}
			if err := s.Save(ctx, "empty.txt", nil); err != nil {
				t.Fatalf("Save(empty) = %v", err)
			}

			got, err := s.Read(ctx, "b.txt")
			if err != nil || string(got) != lyrics {
				t.Errorf("Read(b.txt) = %q, %v", got, err)
			}
			got, _ = s.Read(ctx, "artist/./a.txt")
			if string(got) != "second" {
				t.Errorf("Read(artist/a.txt) = %q, want second", got)
			}
			got, err = s.Read(ctx, "empty.txt")
			if err != nil || len(got) != 0 {
				t.Errorf("Read(empty.txt) = %q, %v", got, err)
			}

			names, err := s.List(ctx)
			if err != nil {
				t.Fatalf("List() = %v", err)
			}
			want := []string{"artist/a.txt", "b.txt", "empty.txt"}
			if !reflect.DeepEqual(names, want) {
				t.Errorf("List() = %v, want %v", names, want)
			}

			if err := s.Delete(ctx, "b.txt"); err != nil {
				t.Errorf("Delete() = %v", err)
			}
			if err := s.Delete(ctx, "b.txt"); !errors.Is(err, errors.ErrNotFound) {
				t.Errorf("Delete(again) error = %v, want ErrNotFound", err)
			}

			for _, bad := range []string{"", "../escape.txt", "/abs.txt", "a\\b"} {
				if err := s.Save(ctx, bad, []byte("x")); !errors.Is(err, errors.ErrInvalidInput) {
					t.Errorf("Save(%q) error = %v, want ErrInvalidInput", bad, err)
				}
			}
		})
	}
}

func TestFileStoreCompressed(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	fs, err := NewFileStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	content := bytes.Repeat([]byte(lyrics+"\r\n"), 50)
	if err := fs.Save(ctx, "big.txt.xz", content); err != nil {
		t.Fatalf("Save() = %v", err)
	}

	raw, err := os.ReadFile(filepath.Join(dir, "big.txt.xz"))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(raw, []byte{0xfd, '7', 'z', 'X', 'Z', 0}) {
		t.Errorf("file is not xz compressed: % x", raw[:6])
	}
	if len(raw) >= len(content) {
		t.Errorf("compressed size %d >= %d", len(raw), len(content))
	}

	got, err := fs.Read(ctx, "big.txt.xz")
	if err != nil || !bytes.Equal(got, content) {
		t.Errorf("Read() mismatch, err = %v", err)
	}

	if err := os.WriteFile(filepath.Join(dir, "broken.xz"), []byte("not xz"), 0o644); err != nil {
		t.Fatal(err)
	}
	var ioErr *errors.IOError
	if _, err := fs.Read(ctx, "broken.xz"); !errors.As(err, &ioErr) {
		t.Errorf("Read(broken.xz) error = %v, want *IOError", err)
	}
}

func TestFileStoreSkipsHiddenFiles(t *testing.T) {
	dir := t.TempDir()
	fs, _ := NewFileStore(dir)
	os.WriteFile(filepath.Join(dir, ".DS_Store"), []byte{0}, 0o644)
	os.WriteFile(filepath.Join(dir, "song.txt"), []byte("x"), 0o644)
	names, err := fs.List(context.Background())
	if err != nil || !reflect.DeepEqual(names, []string{"song.txt"}) {
		t.Errorf("List() = %v, %v", names, err)
	}
}

func TestFileStoreWriteFailure(t *testing.T) {
	orig := atomicWriteFile
	atomicWriteFile = func(string, io.Reader) error { return stderrors.New("disk full") }
	defer func() { atomicWriteFile = orig }()

	fs, _ := NewFileStore(t.TempDir())
	err := fs.Save(context.Background(), "a.txt", []byte("x"))
	var ioErr *errors.IOError
	if !errors.As(err, &ioErr) || ioErr.Operation != "save" {
		t.Errorf("Save() error = %v, want save *IOError", err)
	}
}

func TestSQLStoreRevision(t *testing.T) {
	ctx := context.Background()
	s, err := open(ctx, "sqlite:"+filepath.Join(t.TempDir(), "rev.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	sqlStore := s.(*SQLStore)

	ids := []string{"row-1", "row-2"}
	orig := newRowID
	newRowID = func() string { id := ids[0]; ids = ids[1:]; return id }
	defer func() { newRowID = orig }()

	if err := sqlStore.Save(ctx, "a.txt", []byte(lyrics)); err != nil {
		t.Fatal(err)
	}
	if err := sqlStore.Save(ctx, "a.txt", []byte("changed")); err != nil {
		t.Fatal(err)
	}
	rev, err := sqlStore.Revision(ctx, "a.txt")
	if err != nil {
		t.Fatal(err)
	}
	if rev != cas.Revision([]byte("changed")) {
		t.Errorf("Revision() = %q", rev)
	}
	if _, err := sqlStore.Revision(ctx, "none.txt"); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("Revision(none) error = %v", err)
	}

	var id string
	if err := sqlStore.db.QueryRowContext(ctx, `SELECT id FROM documents WHERE name = ?`, "a.txt").Scan(&id); err != nil {
		t.Fatal(err)
	}
	if id != "row-1" {
		t.Errorf("row id = %q, upsert should keep the first id", id)
	}
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	tests := []struct {
		dsn     string
		backend string
		wantErr error
	}{
		{"mem:", "memory", nil},
		{filepath.Join(dir, "plain"), "file", nil},
		{"file://" + filepath.Join(dir, "url"), "file", nil},
		{"sqlite:" + filepath.Join(dir, "x.db"), "sqlite", nil},
		{"", "", errors.ErrInvalidInput},
		{"ftp://example.com/songs", "", errors.ErrUnsupported},
		{"redis://:bad:url:", "", errors.ErrInvalidInput},
	}
	for _, tt := range tests {
		s, err := Open(ctx, tt.dsn)
		if tt.wantErr != nil {
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Open(%q) error = %v, want %v", tt.dsn, err, tt.wantErr)
			}
			continue
		}
		if err != nil {
			t.Errorf("Open(%q) = %v", tt.dsn, err)
			continue
		}
		if s.Backend() != tt.backend {
			t.Errorf("Open(%q).Backend() = %q, want %q", tt.dsn, s.Backend(), tt.backend)
		}
		s.Close()
	}
}

func TestOpenRedisUnreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := OpenRedis(ctx, "redis://127.0.0.1:1/0")
	var ioErr *errors.IOError
	if !errors.As(err, &ioErr) {
		t.Errorf("OpenRedis() error = %v, want *IOError", err)
	}
}

func TestRedactDSN(t *testing.T) {
	if got := redactDSN("libsql://db.turso.io?authToken=secret"); got != "libsql://db.turso.io" {
		t.Errorf("redactDSN() = %q", got)
	}
}

// failingStore fails every operation.
type failingStore struct{ Memory }

func (*failingStore) Read(context.Context, string) ([]byte, error) {
	return nil, errors.NewIO("read", "x", stderrors.New("offline"))
}

func (*failingStore) Save(context.Context, string, []byte) error {
	return errors.NewIO("save", "x", stderrors.New("offline"))
}

func TestBoundaryHelpers(t *testing.T) {
	ctx := context.Background()
	mem := NewMemory()

	if got := ReadLyricsFile(ctx, mem, "none.txt"); got != nil {
		t.Errorf("ReadLyricsFile(missing) = %q, want nil", got)
	}
	if !SaveLyricsFile(ctx, mem, "a.txt", []byte(lyrics)) {
		t.Fatal("SaveLyricsFile() = false")
	}
	if got := ReadLyricsFile(ctx, mem, "a.txt"); string(got) != lyrics {
		t.Errorf("ReadLyricsFile() = %q", got)
	}

	bad := &failingStore{}
	if got := ReadLyricsFile(ctx, bad, "a.txt"); got != nil {
		t.Errorf("ReadLyricsFile(failing) = %q, want nil", got)
	}
	if SaveLyricsFile(ctx, bad, "a.txt", nil) {
		t.Error("SaveLyricsFile(failing) = true")
	}
}
