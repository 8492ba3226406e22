// Package validation provides input validation and sanitization for
// document names and uploaded lyrics content, guarding against path
// traversal and resource exhaustion.
package validation

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Security limits to prevent DoS attacks (CWE-400).
const (
	// MaxDocumentSize is the maximum accepted lyrics document size (16 MB).
	MaxDocumentSize = 16 << 20
	// MaxFilenameLength is the maximum allowed length of one name segment.
	MaxFilenameLength = 255
	// MaxPathLength is the maximum allowed document name length.
	MaxPathLength = 4096
)

// Common validation errors.
var (
	ErrPathTraversal    = errors.New("path traversal detected")
	ErrInvalidFilename  = errors.New("invalid filename")
	ErrPathTooLong      = errors.New("path too long")
	ErrFilenameTooLong  = errors.New("filename too long")
	ErrInvalidCharacter = errors.New("invalid character in path")
	ErrEmptyPath        = errors.New("path cannot be empty")
	ErrTooLarge         = errors.New("document too large")
	ErrBinaryContent    = errors.New("content is not a lyrics document")
)

// SanitizePath validates a user-supplied path and ensures it does not
// escape baseDir. It returns the cleaned path relative to baseDir.
func SanitizePath(baseDir, userPath string) (string, error) {
	if userPath == "" {
		return "", ErrEmptyPath
	}
	if len(userPath) > MaxPathLength {
		return "", ErrPathTooLong
	}

	cleanPath := filepath.Clean(userPath)
	if cleanPath == ".." || strings.HasPrefix(cleanPath, ".."+string(filepath.Separator)) {
		return "", ErrPathTraversal
	}
	if filepath.IsAbs(cleanPath) {
		return "", fmt.Errorf("%w: absolute path not allowed", ErrPathTraversal)
	}

	absBase, err := filepath.Abs(baseDir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve base directory: %w", err)
	}
	absPath, err := filepath.Abs(filepath.Join(baseDir, cleanPath))
	if err != nil {
		return "", fmt.Errorf("failed to resolve path: %w", err)
	}
	relPath, err := filepath.Rel(absBase, absPath)
	if err != nil || relPath == ".." || strings.HasPrefix(relPath, ".."+string(filepath.Separator)) {
		return "", ErrPathTraversal
	}

	return cleanPath, nil
}

// ValidateFilename checks a single name segment.
func ValidateFilename(filename string) error {
	if filename == "" {
		return ErrInvalidFilename
	}
	if len(filename) > MaxFilenameLength {
		return ErrFilenameTooLong
	}
	if filename == "." || filename == ".." {
		return fmt.Errorf("%w: reserved name", ErrInvalidFilename)
	}
	if strings.ContainsAny(filename, "/\\") {
		return fmt.Errorf("%w: path separator not allowed", ErrInvalidFilename)
	}
	for _, r := range filename {
		if unicode.IsControl(r) {
			return fmt.Errorf("%w: control character not allowed", ErrInvalidFilename)
		}
	}
	if strings.HasPrefix(filename, "-") {
		return fmt.Errorf("%w: filename cannot start with hyphen", ErrInvalidFilename)
	}
	return nil
}

// DocumentName validates a store key such as "artist/song.txt" and
// returns it in canonical slash-separated form. Every backend uses the
// same rules so a document can move between stores unchanged.
func DocumentName(name string) (string, error) {
	if name == "" {
		return "", ErrEmptyPath
	}
	if len(name) > MaxPathLength {
		return "", ErrPathTooLong
	}
	if strings.Contains(name, "\\") {
		return "", fmt.Errorf("%w: backslash not allowed", ErrInvalidCharacter)
	}
	if strings.HasPrefix(name, "/") {
		return "", fmt.Errorf("%w: absolute path not allowed", ErrPathTraversal)
	}
	clean := path.Clean(name)
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return "", ErrPathTraversal
	}
	for _, seg := range strings.Split(clean, "/") {
		if err := ValidateFilename(seg); err != nil {
			return "", err
		}
	}
	return clean, nil
}

// SanitizeFilename turns free text, such as a song title, into a usable
// name segment.
func SanitizeFilename(filename string) (string, error) {
	filename = strings.TrimSpace(filename)
	filename = strings.NewReplacer("/", "_", "\\", "_").Replace(filename)

	var cleaned strings.Builder
	for _, r := range filename {
		if !unicode.IsControl(r) {
			cleaned.WriteRune(r)
		}
	}
	filename = strings.TrimLeft(cleaned.String(), "-")

	if err := ValidateFilename(filename); err != nil {
		return "", err
	}
	return filename, nil
}

// ContentType classifies uploaded bytes.
type ContentType string

const (
	ContentText    ContentType = "text"
	ContentXML     ContentType = "xml"
	ContentXZ      ContentType = "xz"
	ContentBinary  ContentType = "binary"
	ContentUnknown ContentType = "unknown"
)

// magicBytes defines signatures of formats that are never lyrics.
var magicBytes = []struct {
	magic []byte
	kind  ContentType
}{
	{[]byte{0xfd, 0x37, 0x7a, 0x58, 0x5a, 0x00}, ContentXZ},
	{[]byte{0x1f, 0x8b}, ContentBinary},
	{[]byte{0x50, 0x4b, 0x03, 0x04}, ContentBinary},
	{[]byte("SQLite format 3"), ContentBinary},
	{[]byte("ID3"), ContentBinary},
	{[]byte("OggS"), ContentBinary},
	{[]byte("RIFF"), ContentBinary},
}

// DetectContent classifies buf by magic bytes and a text heuristic.
func DetectContent(buf []byte) ContentType {
	if len(buf) == 0 {
		return ContentText
	}
	for _, sig := range magicBytes {
		if bytes.HasPrefix(buf, sig.magic) {
			return sig.kind
		}
	}
	if !isLikelyText(buf) {
		return ContentBinary
	}
	trimmed := bytes.TrimLeft(bytes.TrimPrefix(buf, []byte("\xef\xbb\xbf")), " \t\r\n")
	if bytes.HasPrefix(trimmed, []byte("<")) {
		return ContentXML
	}
	return ContentText
}

// ReadDocument reads at most MaxDocumentSize bytes from r and rejects
// content that cannot be a lyrics document.
func ReadDocument(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxDocumentSize+1))
	if err != nil {
		return nil, err
	}
	if len(data) > MaxDocumentSize {
		return nil, ErrTooLarge
	}
	switch DetectContent(data) {
	case ContentText, ContentXML:
		return data, nil
	}
	return nil, ErrBinaryContent
}

// isLikelyText reports whether buf looks like text. Invalid UTF-8 is
// tolerated since legacy documents are Windows-1252.
func isLikelyText(buf []byte) bool {
	if bytes.IndexByte(buf, 0) != -1 {
		return false
	}
	if len(buf) > 512 {
		buf = buf[:512]
	}
	printable, control := 0, 0
	for len(buf) > 0 {
		r, size := utf8.DecodeRune(buf)
		buf = buf[size:]
		switch {
		case r == '\t' || r == '\n' || r == '\r':
			printable++
		case r < 0x20 || r == 0x7f:
			control++
		default:
			printable++
		}
	}
	return printable > 0 && float64(printable)/float64(printable+control) > 0.95
}
