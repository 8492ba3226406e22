// Package encoding decodes and encodes timing text files.
//
// Files are read as UTF-8 when they are valid UTF-8 and as Windows-1252
// otherwise, unless a charset is named explicitly. Line endings are
// normalized to "\n" on read and written as "\r\n" by default.
package encoding

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/transform"
)

// Charset names a supported text encoding.
type Charset string

const (
	UTF8        Charset = "utf-8"
	Windows1252 Charset = "windows-1252"
	ShiftJIS    Charset = "shift_jis"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Text is a decoded file together with the details needed to write it back
// the way it was read.
type Text struct {
	Content string
	Charset Charset
	BOM     bool
	CRLF    bool
}

// ParseCharset maps a user supplied name to a Charset. The empty string
// selects automatic detection.
func ParseCharset(name string) (Charset, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "auto":
		return "", nil
	case "utf-8", "utf8":
		return UTF8, nil
	case "windows-1252", "cp1252", "latin1", "iso-8859-1":
		return Windows1252, nil
	case "shift_jis", "shift-jis", "sjis", "cp932":
		return ShiftJIS, nil
	}
	return "", fmt.Errorf("unknown charset %q", name)
}

func (c Charset) codec() encoding.Encoding {
	switch c {
	case Windows1252:
		return charmap.Windows1252
	case ShiftJIS:
		return japanese.ShiftJIS
	}
	return nil
}

// Decode reads data as text. A UTF-8 BOM is stripped and recorded. When
// charset is empty, invalid UTF-8 falls back to Windows-1252.
func Decode(data []byte, charset Charset) (Text, error) {
	var t Text
	if bytes.HasPrefix(data, utf8BOM) {
		data = data[len(utf8BOM):]
		t.BOM = true
		if charset == "" {
			charset = UTF8
		}
	}
	if charset == "" {
		charset = UTF8
		if !utf8.Valid(data) {
			charset = Windows1252
		}
	}
	t.Charset = charset

	var content string
	switch codec := charset.codec(); {
	case charset == UTF8:
		content = string(data)
	case codec != nil:
		out, err := io.ReadAll(transform.NewReader(bytes.NewReader(data), codec.NewDecoder()))
		if err != nil {
			return Text{}, fmt.Errorf("decoding %s: %w", charset, err)
		}
		content = string(out)
	default:
		return Text{}, fmt.Errorf("unknown charset %q", charset)
	}

	t.CRLF = strings.Contains(content, "\r\n")
	t.Content = strings.ReplaceAll(content, "\r\n", "\n")
	return t, nil
}

// Encode renders t.Content with t's charset, BOM and line endings.
func Encode(t Text) ([]byte, error) {
	content := t.Content
	if t.CRLF {
		content = strings.ReplaceAll(strings.ReplaceAll(content, "\r\n", "\n"), "\n", "\r\n")
	}

	var buf bytes.Buffer
	if t.BOM && (t.Charset == UTF8 || t.Charset == "") {
		buf.Write(utf8BOM)
	}
	switch codec := t.Charset.codec(); {
	case t.Charset == UTF8 || t.Charset == "":
		buf.WriteString(content)
	case codec != nil:
		out, _, err := transform.String(codec.NewEncoder(), content)
		if err != nil {
			return nil, fmt.Errorf("encoding %s: %w", t.Charset, err)
		}
		buf.WriteString(out)
	default:
		return nil, fmt.Errorf("unknown charset %q", t.Charset)
	}
	return buf.Bytes(), nil
}

// ForSave returns the default file form of content: UTF-8 with CRLF line
// endings and no BOM.
func ForSave(content string) Text {
	return Text{Content: content, Charset: UTF8, CRLF: true}
}
