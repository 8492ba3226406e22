package store

import (
	"context"

	"github.com/FocuswithJustin/soramimi/core/errors"
	"github.com/FocuswithJustin/soramimi/internal/logging"
)

// ReadLyricsFile returns the content of name, or nil when it cannot be
// read. Failures are logged; a missing document is not a failure.
func ReadLyricsFile(ctx context.Context, s Store, name string) []byte {
	data, err := s.Read(ctx, name)
	if err != nil {
		if !errors.Is(err, errors.ErrNotFound) {
			logging.WarnContext(ctx, "read lyrics failed", "document", name, "error", err)
		}
		return nil
	}
	return data
}

// SaveLyricsFile writes content to name and reports whether it succeeded.
// Failures are logged.
func SaveLyricsFile(ctx context.Context, s Store, name string, content []byte) bool {
	if err := s.Save(ctx, name, content); err != nil {
		logging.WarnContext(ctx, "save lyrics failed", "document", name, "error", err)
		return false
	}
	return true
}
