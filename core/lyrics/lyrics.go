// Package lyrics defines the capability interfaces shared by every song
// format: a Song is an ordered sequence of Lines, a Line is a prefix plus an
// ordered sequence of timed Syllables, and every Line has one authoritative
// raw-text form.
//
// Two formats implement these interfaces. core/soramimi is the editable
// timecoded-text format; core/vsqx is a read-only vocal-synth project import
// whose mutating methods always fail with errors.ErrNotEditable.
//
// The model is single-threaded. Mutating calls return a LinesChanged value
// describing what changed; there is no callback graph. Lines and syllables
// returned from accessors are borrowed and must not be retained past the
// next mutating call on their Song.
package lyrics

import (
	"github.com/FocuswithJustin/soramimi/core/timecode"
)

// Separator is the line separator of a song's joined raw text.
const Separator = "\n"

// Syllable is a timed span of text.
type Syllable interface {
	Text() string
	Start() timecode.Timecode
	End() timecode.Timecode
}

// Line is a prefix plus an ordered sequence of syllables.
type Line interface {
	// Prefix is the text before the first timecode.
	Prefix() string
	// Raw is the authoritative text of the line, without a separator.
	Raw() string
	Syllables() []Syllable
	// Start is the earliest set syllable time, or timecode.Max.
	Start() timecode.Timecode
	// End is the latest set syllable time, or timecode.Min.
	End() timecode.Timecode
	// PositionFromRaw maps a byte offset in Raw to an offset in the
	// structured text (prefix followed by syllable texts).
	PositionFromRaw(rawPos int) int
	// PositionToRaw is the inverse of PositionFromRaw.
	PositionToRaw(pos int) int
}

// Song is an ordered sequence of lines.
type Song interface {
	Format() string
	Editable() bool

	// Raw joins every line's raw text with Separator.
	Raw() string
	Lines() []Line
	LineCount() int
	Line(i int) (Line, bool)

	// RawToLine maps a document byte offset to (line, byte column).
	RawToLine(pos int) (line, col int)
	// LineToRaw maps (line, byte column) to a document byte offset.
	LineToRaw(line, col int) int
	// RawToStructured maps a document byte offset to (line, structured offset).
	RawToStructured(pos int) (line, offset int)
	// StructuredToRaw maps (line, structured offset) to a document byte offset.
	StructuredToRaw(line, offset int) int

	// UpdateRawText replaces [pos, pos+remove) of Raw with replace.
	UpdateRawText(pos, remove int, replace string) (LinesChanged, error)
	AddLine(syllables []Syllable, prefix string) (LinesChanged, error)
	ReplaceLines(first, count int, lines []Line) (LinesChanged, error)
	RemoveAllLines() (LinesChanged, error)
	SetSyllableText(line, syllable int, text string) (LinesChanged, error)
	SetSyllableStart(line, syllable int, t timecode.Timecode) (LinesChanged, error)
	SetSyllableEnd(line, syllable int, t timecode.Timecode) (LinesChanged, error)
}

// LinesChanged describes one top-level mutation of a Song. Lines
// [FirstLine, FirstLine+LinesRemoved) of the old document were replaced by
// lines [FirstLine, FirstLine+LinesInserted) of the new one, and the joined
// raw text changed from OldRawLength to NewRawLength bytes at RawOffset.
type LinesChanged struct {
	FirstLine     int `json:"first_line"`
	LinesRemoved  int `json:"lines_removed"`
	LinesInserted int `json:"lines_inserted"`
	RawOffset     int `json:"raw_offset"`
	OldRawLength  int `json:"old_raw_length"`
	NewRawLength  int `json:"new_raw_length"`
}

// IsZero reports whether the change touched nothing.
func (c LinesChanged) IsZero() bool {
	return c == LinesChanged{}
}

// Delta is the change in total raw length.
func (c LinesChanged) Delta() int {
	return c.NewRawLength - c.OldRawLength
}

// Bounds returns the min/max over the set (non-placeholder) start and end
// times of syllables. With no set times it returns (timecode.Max,
// timecode.Min).
func Bounds(syllables []Syllable) (start, end timecode.Timecode) {
	start, end = timecode.Max, timecode.Min
	for _, s := range syllables {
		for _, t := range [2]timecode.Timecode{s.Start(), s.End()} {
			if t.IsPlaceholder() {
				continue
			}
			if t < start {
				start = t
			}
			if t > end {
				end = t
			}
		}
	}
	return start, end
}

// StructuredText returns the prefix followed by every syllable's text, the
// coordinate space of Line.PositionFromRaw.
func StructuredText(l Line) string {
	n := len(l.Prefix())
	syllables := l.Syllables()
	for _, s := range syllables {
		n += len(s.Text())
	}
	buf := make([]byte, 0, n)
	buf = append(buf, l.Prefix()...)
	for _, s := range syllables {
		buf = append(buf, s.Text()...)
	}
	return string(buf)
}
