// Package soramimi implements the editable karaoke timing format: plain
// text lines in which syllables are delimited by "[MM:SS:CC]" timecodes.
//
// A line's raw text is authoritative. Editing raw text reparses only the
// touched lines; editing a syllable re-serializes its line. Every mutation of
// a Song returns one lyrics.LinesChanged describing the edit.
//
// Song is not safe for concurrent use. A caller reacting to a LinesChanged
// must finish before issuing the next mutation.
package soramimi

import (
	"strconv"
	"strings"

	"github.com/FocuswithJustin/soramimi/core/errors"
	"github.com/FocuswithJustin/soramimi/core/lyrics"
	"github.com/FocuswithJustin/soramimi/core/timecode"
)

// FormatName identifies the format in lyrics.Song.Format.
const FormatName = "soramimi"

// Song is an editable sequence of lines.
type Song struct {
	lines  []*Line
	nextID uint64
}

var _ lyrics.Song = (*Song)(nil)

// LineHandle names a line across edits that insert or remove other lines.
// It goes stale when its line is removed or replaced.
type LineHandle struct {
	index int
	id    uint64
}

// IsZero reports whether h was never issued.
func (h LineHandle) IsZero() bool { return h.id == 0 }

// NewSong returns an empty song.
func NewSong() *Song {
	return &Song{}
}

// Parse builds a song from timing text. Lines are separated by
// lyrics.Separator alone, so empty text is one empty line. Callers reading
// files normalize CRLF first.
func Parse(text string) *Song {
	s := NewSong()
	for _, raw := range splitLines(text) {
		s.lines = append(s.lines, s.adopt(ParseLine(raw)))
	}
	return s
}

func splitLines(text string) []string {
	return strings.Split(text, lyrics.Separator)
}

func (s *Song) adopt(l *Line) *Line {
	s.nextID++
	l.id = s.nextID
	return l
}

// Format returns FormatName.
func (s *Song) Format() string { return FormatName }

// Editable reports true.
func (s *Song) Editable() bool { return true }

// Raw joins the raw text of every line with lyrics.Separator.
func (s *Song) Raw() string {
	var b strings.Builder
	b.Grow(s.rawLen())
	for i, l := range s.lines {
		if i > 0 {
			b.WriteString(lyrics.Separator)
		}
		b.WriteString(l.raw)
	}
	return b.String()
}

func (s *Song) rawLen() int {
	if len(s.lines) == 0 {
		return 0
	}
	n := len(s.lines) - 1
	for _, l := range s.lines {
		n += len(l.raw)
	}
	return n
}

// Lines returns every line as a lyrics.Line.
func (s *Song) Lines() []lyrics.Line {
	out := make([]lyrics.Line, len(s.lines))
	for i, l := range s.lines {
		out[i] = l
	}
	return out
}

// LineCount returns the number of lines.
func (s *Song) LineCount() int { return len(s.lines) }

// Line returns line i.
func (s *Song) Line(i int) (lyrics.Line, bool) {
	l, ok := s.At(i)
	if !ok {
		return nil, false
	}
	return l, true
}

// At returns line i with its concrete type.
func (s *Song) At(i int) (*Line, bool) {
	if i < 0 || i >= len(s.lines) {
		return nil, false
	}
	return s.lines[i], true
}

// Handle returns a handle for line i.
func (s *Song) Handle(i int) (LineHandle, error) {
	l, ok := s.At(i)
	if !ok {
		return LineHandle{}, errors.NewNotFound("line", strconv.Itoa(i))
	}
	return LineHandle{index: i, id: l.id}, nil
}

// Resolve returns the current index and line named by h. It fails with
// errors.ErrStaleHandle when the line no longer exists.
func (s *Song) Resolve(h LineHandle) (int, *Line, error) {
	if h.id == 0 {
		return 0, nil, errors.ErrStaleHandle
	}
	if h.index >= 0 && h.index < len(s.lines) && s.lines[h.index].id == h.id {
		return h.index, s.lines[h.index], nil
	}
	for i, l := range s.lines {
		if l.id == h.id {
			return i, l, nil
		}
	}
	return 0, nil, errors.ErrStaleHandle
}

// lineStart returns the offset in Raw of line i's first byte. i may equal
// the line count, in which case it is the offset just past a virtual
// separator after the last line.
func (s *Song) lineStart(i int) int {
	off := 0
	for j := 0; j < i && j < len(s.lines); j++ {
		off += len(s.lines[j].raw) + len(lyrics.Separator)
	}
	return off
}

// locate maps an offset in Raw to (line, column). pos must be within
// [0, rawLen] and the song must have at least one line.
func (s *Song) locate(pos int) (int, int) {
	for i, l := range s.lines {
		if pos <= len(l.raw) {
			return i, pos
		}
		pos -= len(l.raw) + len(lyrics.Separator)
	}
	last := len(s.lines) - 1
	return last, len(s.lines[last].raw)
}

// RawToLine maps an offset in Raw to (line, byte column), clamping to the
// document.
func (s *Song) RawToLine(pos int) (int, int) {
	if len(s.lines) == 0 {
		return 0, 0
	}
	return s.locate(clamp(pos, 0, s.rawLen()))
}

// LineToRaw maps (line, byte column) to an offset in Raw, clamping both.
func (s *Song) LineToRaw(line, col int) int {
	if len(s.lines) == 0 {
		return 0
	}
	line = clamp(line, 0, len(s.lines)-1)
	return s.lineStart(line) + clamp(col, 0, len(s.lines[line].raw))
}

// RawToStructured maps an offset in Raw to (line, structured offset).
func (s *Song) RawToStructured(pos int) (int, int) {
	line, col := s.RawToLine(pos)
	if len(s.lines) == 0 {
		return 0, 0
	}
	return line, s.lines[line].PositionFromRaw(col)
}

// StructuredToRaw maps (line, structured offset) to an offset in Raw.
func (s *Song) StructuredToRaw(line, offset int) int {
	if len(s.lines) == 0 {
		return 0
	}
	line = clamp(line, 0, len(s.lines)-1)
	return s.lineStart(line) + s.lines[line].PositionToRaw(offset)
}

// UpdateRawText replaces remove bytes of Raw at pos with replace. Only the
// lines the edit touches are reparsed; lines are inserted or erased at the
// end of the touched span. pos and remove are clamped to the document, and
// an empty song first gains one empty line.
func (s *Song) UpdateRawText(pos, remove int, replace string) (lyrics.LinesChanged, error) {
	total := s.rawLen()
	pos = clamp(pos, 0, total)
	remove = clamp(remove, 0, total-pos)
	if remove == 0 && replace == "" {
		return lyrics.LinesChanged{}, nil
	}
	grown := 0
	if len(s.lines) == 0 {
		s.lines = append(s.lines, s.adopt(ParseLine("")))
		grown = 1
	}

	first, startCol := s.locate(pos)
	last, endCol := s.locate(pos + remove)
	before := s.lines[first].raw[:startCol]
	after := s.lines[last].raw[endCol:]

	segments := strings.Split(replace, lyrics.Separator)
	span := last - first + 1
	n := len(segments)

	switch {
	case n > span:
		fresh := make([]*Line, n-span)
		for i := range fresh {
			fresh[i] = s.adopt(ParseLine(""))
		}
		s.lines = insertLines(s.lines, last+1, fresh)
	case n < span:
		s.lines = append(s.lines[:first+n], s.lines[last+1:]...)
	}

	if n == 1 {
		s.lines[first].SetRaw(before + replace + after)
	} else {
		s.lines[first].SetRaw(before + segments[0])
		for j := 1; j < n-1; j++ {
			s.lines[first+j].SetRaw(segments[j])
		}
		s.lines[first+n-1].SetRaw(segments[n-1] + after)
	}

	return lyrics.LinesChanged{
		FirstLine:     first,
		LinesRemoved:  span - grown,
		LinesInserted: n,
		RawOffset:     pos,
		OldRawLength:  remove,
		NewRawLength:  len(replace),
	}, nil
}

func insertLines(lines []*Line, at int, add []*Line) []*Line {
	out := make([]*Line, 0, len(lines)+len(add))
	out = append(out, lines[:at]...)
	out = append(out, add...)
	return append(out, lines[at:]...)
}

// AddLine appends a line built from syllables and prefix.
func (s *Song) AddLine(syllables []lyrics.Syllable, prefix string) (lyrics.LinesChanged, error) {
	l := s.adopt(NewLine(syllables, prefix))
	ch := lyrics.LinesChanged{
		FirstLine:     len(s.lines),
		LinesInserted: 1,
		RawOffset:     s.rawLen(),
		NewRawLength:  len(l.raw),
	}
	if len(s.lines) > 0 {
		ch.NewRawLength += len(lyrics.Separator)
	}
	s.lines = append(s.lines, l)
	return ch, nil
}

// ReplaceLines replaces count lines starting at first with copies of lines,
// each rebuilt from its prefix and syllables. first and count are clamped.
func (s *Song) ReplaceLines(first, count int, lines []lyrics.Line) (lyrics.LinesChanged, error) {
	first = clamp(first, 0, len(s.lines))
	count = clamp(count, 0, len(s.lines)-first)
	if count == 0 && len(lines) == 0 {
		return lyrics.LinesChanged{}, nil
	}

	fresh := make([]*Line, len(lines))
	for i, src := range lines {
		fresh[i] = s.adopt(NewLine(src.Syllables(), src.Prefix()))
	}

	sep := len(lyrics.Separator)
	ch := lyrics.LinesChanged{
		FirstLine:     first,
		LinesRemoved:  count,
		LinesInserted: len(fresh),
		RawOffset:     s.lineStart(first),
		OldRawLength:  joinedLen(s.lines[first : first+count]),
		NewRawLength:  joinedLen(fresh),
	}
	before := len(s.lines)
	switch {
	case count == 0 && first < before:
		ch.NewRawLength += sep
	case count == 0 && before > 0:
		ch.RawOffset -= sep
		ch.NewRawLength += sep
	case len(fresh) == 0 && first+count < before:
		ch.OldRawLength += sep
	case len(fresh) == 0 && first > 0:
		ch.RawOffset -= sep
		ch.OldRawLength += sep
	}

	tail := append([]*Line(nil), s.lines[first+count:]...)
	s.lines = append(append(s.lines[:first], fresh...), tail...)
	return ch, nil
}

func joinedLen(lines []*Line) int {
	if len(lines) == 0 {
		return 0
	}
	n := (len(lines) - 1) * len(lyrics.Separator)
	for _, l := range lines {
		n += len(l.raw)
	}
	return n
}

// RemoveAllLines empties the song.
func (s *Song) RemoveAllLines() (lyrics.LinesChanged, error) {
	if len(s.lines) == 0 {
		return lyrics.LinesChanged{}, nil
	}
	ch := lyrics.LinesChanged{
		LinesRemoved: len(s.lines),
		OldRawLength: s.rawLen(),
	}
	s.lines = nil
	return ch, nil
}

// SetSyllableText sets the text of a syllable.
func (s *Song) SetSyllableText(line, syllable int, text string) (lyrics.LinesChanged, error) {
	return s.editLine(line, func(l *Line) (LineChange, error) {
		return l.SetSyllableText(syllable, text)
	})
}

// SetSyllableStart sets the start time of a syllable.
func (s *Song) SetSyllableStart(line, syllable int, t timecode.Timecode) (lyrics.LinesChanged, error) {
	return s.editLine(line, func(l *Line) (LineChange, error) {
		return l.SetSyllableStart(syllable, t)
	})
}

// SetSyllableEnd sets the end time of a syllable.
func (s *Song) SetSyllableEnd(line, syllable int, t timecode.Timecode) (lyrics.LinesChanged, error) {
	return s.editLine(line, func(l *Line) (LineChange, error) {
		return l.SetSyllableEnd(syllable, t)
	})
}

func (s *Song) editLine(i int, fn func(*Line) (LineChange, error)) (lyrics.LinesChanged, error) {
	l, ok := s.At(i)
	if !ok {
		return lyrics.LinesChanged{}, errors.NewNotFound("line", strconv.Itoa(i))
	}
	lc, err := fn(l)
	if err != nil || !lc.Changed {
		return lyrics.LinesChanged{}, err
	}
	return lyrics.LinesChanged{
		FirstLine:     i,
		LinesRemoved:  1,
		LinesInserted: 1,
		RawOffset:     s.lineStart(i),
		OldRawLength:  lc.OldRawLength,
		NewRawLength:  lc.NewRawLength,
	}, nil
}

// Shift moves every set timecode by delta, clamping at zero.
func (s *Song) Shift(delta timecode.Timecode) lyrics.LinesChanged {
	return s.eachLine(func(l *Line) LineChange {
		return l.Retime(func(t timecode.Timecode) timecode.Timecode { return t + delta })
	})
}

// Normalize re-serializes every line into canonical form.
func (s *Song) Normalize() lyrics.LinesChanged {
	return s.eachLine((*Line).Normalize)
}

// eachLine applies fn to every line and reports the whole document as
// changed when any line changed.
func (s *Song) eachLine(fn func(*Line) LineChange) lyrics.LinesChanged {
	old := s.rawLen()
	changed := false
	for _, l := range s.lines {
		if fn(l).Changed {
			changed = true
		}
	}
	if !changed {
		return lyrics.LinesChanged{}
	}
	return lyrics.LinesChanged{
		LinesRemoved:  len(s.lines),
		LinesInserted: len(s.lines),
		OldRawLength:  old,
		NewRawLength:  s.rawLen(),
	}
}
