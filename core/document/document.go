// Package document selects the song format of a file and loads it.
package document

import (
	"github.com/FocuswithJustin/soramimi/core/encoding"
	"github.com/FocuswithJustin/soramimi/core/errors"
	"github.com/FocuswithJustin/soramimi/core/lyrics"
	"github.com/FocuswithJustin/soramimi/core/soramimi"
	"github.com/FocuswithJustin/soramimi/core/vsqx"
)

// Kind is the closed set of supported formats.
type Kind int

const (
	KindSoramimi Kind = iota
	KindVSQX
)

func (k Kind) String() string {
	switch k {
	case KindSoramimi:
		return soramimi.FormatName
	case KindVSQX:
		return vsqx.FormatName
	}
	return "unknown"
}

// Document is a loaded song and the details needed to save it again.
type Document struct {
	Kind Kind
	Song lyrics.Song
	// Text records how an editable document was decoded. It is zero for
	// read-only formats.
	Text encoding.Text
}

// Options controls Load.
type Options struct {
	// Charset forces a text encoding. Empty means UTF-8 with a
	// Windows-1252 fallback.
	Charset encoding.Charset
}

// Load tries the read-only VSQX reader first and falls back to editable
// timing text.
func Load(data []byte, opts Options) (*Document, error) {
	if song, err := vsqx.Parse(data); err == nil {
		return &Document{Kind: KindVSQX, Song: song}, nil
	}
	text, err := encoding.Decode(data, opts.Charset)
	if err != nil {
		return nil, &errors.ParseError{Format: soramimi.FormatName, Message: "decode text", Err: err}
	}
	return &Document{
		Kind: KindSoramimi,
		Song: soramimi.Parse(text.Content),
		Text: text,
	}, nil
}

// New returns an empty editable document.
func New() *Document {
	return &Document{
		Kind: KindSoramimi,
		Song: soramimi.NewSong(),
		Text: encoding.ForSave(""),
	}
}

// Editable returns the editable song, or a *errors.NotEditableError.
func (d *Document) Editable() (*soramimi.Song, error) {
	if s, ok := d.Song.(*soramimi.Song); ok {
		return s, nil
	}
	return nil, errors.NewNotEditable("Editable", d.Kind.String())
}

// ToEditable returns an editable copy of d. Editable documents are returned
// as they are.
func ToEditable(d *Document) *Document {
	if d.Kind == KindSoramimi {
		return d
	}
	return &Document{
		Kind: KindSoramimi,
		Song: soramimi.Parse(d.Song.Raw()),
		Text: encoding.ForSave(""),
	}
}

// Bytes renders the document as timing text. Editable documents keep the
// charset and BOM they were read with; line endings are always CRLF.
func (d *Document) Bytes() ([]byte, error) {
	text := d.Text
	if text.Charset == "" {
		text = encoding.ForSave("")
	}
	text.Content = d.Song.Raw()
	text.CRLF = true
	return encoding.Encode(text)
}
