package soramimi

import (
	"github.com/FocuswithJustin/soramimi/core/timecode"
)

// Syllable is a timed span of text owned by a Line. Its fields change only
// through the owning Line or Song so the line's raw text stays authoritative.
type Syllable struct {
	text  string
	start timecode.Timecode
	end   timecode.Timecode
}

// NewSyllable builds a detached syllable, typically to pass to NewLine or
// Song.AddLine.
func NewSyllable(text string, start, end timecode.Timecode) *Syllable {
	return &Syllable{text: text, start: start, end: end}
}

// Text returns the syllable text.
func (s *Syllable) Text() string { return s.text }

// Start returns the start time, possibly timecode.Placeholder.
func (s *Syllable) Start() timecode.Timecode { return s.start }

// End returns the end time, possibly timecode.Placeholder.
func (s *Syllable) End() timecode.Timecode { return s.end }

// Field names the part of a syllable a mutation touched.
type Field int

const (
	FieldText Field = iota
	FieldStart
	FieldEnd
)

func (f Field) String() string {
	switch f {
	case FieldText:
		return "text"
	case FieldStart:
		return "start"
	case FieldEnd:
		return "end"
	}
	return "unknown"
}

// SyllableDelta records one syllable mutation. The owning Line folds deltas
// into a single re-serialization.
type SyllableDelta struct {
	Index   int
	Field   Field
	Changed bool
}

func (s *Syllable) setText(index int, text string) SyllableDelta {
	d := SyllableDelta{Index: index, Field: FieldText, Changed: s.text != text}
	s.text = text
	return d
}

func (s *Syllable) setStart(index int, t timecode.Timecode) SyllableDelta {
	t = t.Clamp()
	d := SyllableDelta{Index: index, Field: FieldStart, Changed: s.start != t}
	s.start = t
	return d
}

func (s *Syllable) setEnd(index int, t timecode.Timecode) SyllableDelta {
	t = t.Clamp()
	d := SyllableDelta{Index: index, Field: FieldEnd, Changed: s.end != t}
	s.end = t
	return d
}
