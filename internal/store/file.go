package store

import (
	"bytes"
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/natefinch/atomic"
	"github.com/ulikunitz/xz"

	"github.com/FocuswithJustin/soramimi/core/errors"
	"github.com/FocuswithJustin/soramimi/internal/validation"
)

// Injectable functions for testing.
var (
	xzNewWriter     = xz.NewWriter
	xzNewReader     = xz.NewReader
	atomicWriteFile = atomic.WriteFile
)

// CompressedSuffix marks documents stored xz-compressed.
const CompressedSuffix = ".xz"

const (
	dirPerms  = 0o755
	filePerms = 0o644
)

// FileStore keeps one file per document under a root directory.
type FileStore struct {
	root string
}

// NewFileStore returns a store rooted at dir, creating it if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, errors.NewValidation("store", "empty directory")
	}
	if err := os.MkdirAll(dir, dirPerms); err != nil {
		return nil, errors.NewIO("create", dir, err)
	}
	return &FileStore{root: dir}, nil
}

func (f *FileStore) Backend() string { return "file" }

// Root returns the store directory.
func (f *FileStore) Root() string { return f.root }

func (f *FileStore) path(name string) (string, string, error) {
	name, err := documentName(name)
	if err != nil {
		return "", "", err
	}
	rel, err := validation.SanitizePath(f.root, filepath.FromSlash(name))
	if err != nil {
		return "", "", &errors.ValidationError{Field: "name", Value: name, Message: err.Error(), Err: errors.ErrInvalidInput}
	}
	return name, filepath.Join(f.root, rel), nil
}

func (f *FileStore) Read(_ context.Context, name string) ([]byte, error) {
	name, p, err := f.path(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if os.IsNotExist(err) {
		return nil, errors.NewNotFound("document", name)
	}
	if err != nil {
		return nil, errors.NewIO("read", name, err)
	}
	if !strings.HasSuffix(name, CompressedSuffix) {
		return data, nil
	}
	r, err := xzNewReader(bytes.NewReader(data))
	if err != nil {
		return nil, errors.NewIO("decompress", name, err)
	}
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.NewIO("decompress", name, err)
	}
	return out, nil
}

func (f *FileStore) Save(_ context.Context, name string, data []byte) error {
	name, p, err := f.path(name)
	if err != nil {
		return err
	}
	if strings.HasSuffix(name, CompressedSuffix) {
		var buf bytes.Buffer
		w, err := xzNewWriter(&buf)
		if err != nil {
			return errors.NewIO("compress", name, err)
		}
		if _, err := w.Write(data); err != nil {
			return errors.NewIO("compress", name, err)
		}
		if err := w.Close(); err != nil {
			return errors.NewIO("compress", name, err)
		}
		data = buf.Bytes()
	}
	if err := os.MkdirAll(filepath.Dir(p), dirPerms); err != nil {
		return errors.NewIO("save", name, err)
	}
	if err := atomicWriteFile(p, bytes.NewReader(data)); err != nil {
		return errors.NewIO("save", name, err)
	}
	// atomic.WriteFile doesn't set permissions for new files
	if err := os.Chmod(p, filePerms); err != nil {
		return errors.NewIO("save", name, err)
	}
	return nil
}

func (f *FileStore) List(context.Context) ([]string, error) {
	var names []string
	err := filepath.WalkDir(f.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		rel, err := filepath.Rel(f.root, p)
		if err != nil {
			return err
		}
		names = append(names, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, errors.NewIO("list", f.root, err)
	}
	sort.Strings(names)
	return names, nil
}

func (f *FileStore) Delete(_ context.Context, name string) error {
	name, p, err := f.path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil {
		if os.IsNotExist(err) {
			return errors.NewNotFound("document", name)
		}
		return errors.NewIO("delete", name, err)
	}
	return nil
}

func (f *FileStore) Close() error { return nil }
