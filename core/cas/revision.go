// Package cas fingerprints document content with BLAKE3. Sessions use the
// fingerprint as a revision so clients can detect concurrent changes and
// stores can skip writes of unchanged content.
package cas

import (
	"encoding/hex"
	"errors"
	"regexp"
	"strings"

	"github.com/zeebo/blake3"
)

// Prefix tags a revision string with its hash algorithm.
const Prefix = "b3:"

// ErrInvalidRevision is returned when a revision string is malformed.
var ErrInvalidRevision = errors.New("invalid revision format")

var revisionPattern = regexp.MustCompile(`^b3:[a-f0-9]{64}$`)

// Revision returns the BLAKE3 revision of data.
func Revision(data []byte) string {
	h := blake3.Sum256(data)
	return Prefix + hex.EncodeToString(h[:])
}

// RevisionString is Revision for text.
func RevisionString(text string) string {
	return Revision([]byte(text))
}

// Valid reports whether rev is a well-formed revision.
func Valid(rev string) bool {
	return revisionPattern.MatchString(rev)
}

// Match reports whether rev is the revision of text. A malformed rev
// returns ErrInvalidRevision.
func Match(text, rev string) (bool, error) {
	rev = strings.ToLower(strings.TrimSpace(rev))
	if !Valid(rev) {
		return false, ErrInvalidRevision
	}
	return RevisionString(text) == rev, nil
}

// Short returns the first n hex digits of rev for display.
func Short(rev string, n int) string {
	digits := strings.TrimPrefix(rev, Prefix)
	if n <= 0 || n >= len(digits) {
		return digits
	}
	return digits[:n]
}
