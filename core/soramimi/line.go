package soramimi

import (
	"strconv"
	"strings"

	"github.com/FocuswithJustin/soramimi/core/errors"
	"github.com/FocuswithJustin/soramimi/core/lyrics"
	"github.com/FocuswithJustin/soramimi/core/timecode"
)

// Line is one line of a Soramimi song. Raw is authoritative: the prefix,
// syllables and offsets are always the result of parsing it.
type Line struct {
	id uint64

	raw       string
	prefix    string
	syllables []*Syllable
	offsets   []int
	start     timecode.Timecode
	end       timecode.Timecode
}

// LineChange reports how a line's raw text changed.
type LineChange struct {
	OldRawLength int
	NewRawLength int
	Changed      bool
}

// ParseLine parses one line of timing text. raw must not contain a line
// separator.
func ParseLine(raw string) *Line {
	l := &Line{}
	l.deserialize(raw)
	return l
}

// NewLine builds a line from a prefix and syllable list. The list is
// serialized and parsed back, so adjacent whitespace-only syllables are
// merged and shared boundaries are elided.
func NewLine(syllables []lyrics.Syllable, prefix string) *Line {
	return ParseLine(Serialize(prefix, syllables))
}

// Serialize renders a prefix and syllable list as one line of timing text.
// A syllable's start is written only when it differs from the previous
// end, and a trailing placeholder end is dropped. Times are clamped to
// [0, timecode.Latest] so every token parses back. Line separators inside
// the prefix or texts are replaced by spaces.
func Serialize(prefix string, syllables []lyrics.Syllable) string {
	var b strings.Builder
	b.WriteString(flatten(prefix))
	prev := timecode.Placeholder
	for i, s := range syllables {
		start, end := s.Start().Clamp(), s.End().Clamp()
		if i == 0 || start != prev {
			b.WriteString(timecode.Serialize(start))
		}
		b.WriteString(flatten(s.Text()))
		b.WriteString(timecode.Serialize(end))
		prev = end
	}
	out := b.String()
	if n := len(syllables); n > 0 && syllables[n-1].End().IsPlaceholder() {
		out = out[:len(out)-timecode.Width]
	}
	return out
}

var lineBreaks = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ")

func flatten(s string) string {
	if !strings.ContainsAny(s, "\r\n") {
		return s
	}
	return lineBreaks.Replace(s)
}

func blank(s string) bool {
	return strings.TrimSpace(s) == ""
}

func (l *Line) deserialize(raw string) {
	l.raw = raw
	l.prefix = raw
	l.syllables = nil
	l.offsets = nil

	seen := false
	textStart := 0
	var prev timecode.Timecode
	for pos := 0; pos+timecode.Width <= len(raw); {
		t, ok := timecode.Deserialize(raw, pos)
		if !ok {
			pos++
			continue
		}
		if !seen {
			l.prefix = raw[:pos]
			seen = true
		} else {
			l.addCandidate(raw[textStart:pos], textStart, prev, t)
		}
		prev = t
		pos += timecode.Width
		textStart = pos
	}
	if seen && textStart < len(raw) {
		l.addCandidate(raw[textStart:], textStart, prev, timecode.Placeholder)
	}
	l.start, l.end = lyrics.Bounds(l.Syllables())
}

func (l *Line) addCandidate(text string, offset int, start, end timecode.Timecode) {
	if blank(text) {
		if n := len(l.syllables); n > 0 {
			l.syllables[n-1].text += text
		}
		return
	}
	l.syllables = append(l.syllables, &Syllable{text: text, start: start, end: end})
	l.offsets = append(l.offsets, offset)
}

// SetRaw replaces the line text and reparses it. raw must not contain a
// line separator. Lines owned by a Song should be edited through the Song so
// the change is reported.
func (l *Line) SetRaw(raw string) LineChange {
	old := len(l.raw)
	changed := raw != l.raw
	if changed {
		l.deserialize(raw)
	}
	return LineChange{OldRawLength: old, NewRawLength: len(raw), Changed: changed}
}

// Raw returns the authoritative line text.
func (l *Line) Raw() string { return l.raw }

// Prefix returns the text before the first timecode.
func (l *Line) Prefix() string { return l.prefix }

// Start returns the earliest set time, or timecode.Max.
func (l *Line) Start() timecode.Timecode { return l.start }

// End returns the latest set time, or timecode.Min.
func (l *Line) End() timecode.Timecode { return l.end }

// Syllables returns the line's syllables. The slice is freshly allocated but
// the syllables are shared with the line.
func (l *Line) Syllables() []lyrics.Syllable {
	out := make([]lyrics.Syllable, len(l.syllables))
	for i, s := range l.syllables {
		out[i] = s
	}
	return out
}

// SyllableCount returns the number of syllables.
func (l *Line) SyllableCount() int { return len(l.syllables) }

// Syllable returns syllable i.
func (l *Line) Syllable(i int) (*Syllable, bool) {
	if i < 0 || i >= len(l.syllables) {
		return nil, false
	}
	return l.syllables[i], true
}

// RawOffset returns the byte offset in Raw of syllable i's first text byte.
func (l *Line) RawOffset(i int) (int, bool) {
	if i < 0 || i >= len(l.offsets) {
		return 0, false
	}
	return l.offsets[i], true
}

func (l *Line) structuredLen() int {
	n := len(l.prefix)
	for _, s := range l.syllables {
		n += len(s.text)
	}
	return n
}

// PositionFromRaw maps a byte offset in Raw to an offset in the structured
// text. Offsets inside a timecode map to the start of the following
// syllable text.
func (l *Line) PositionFromRaw(rawPos int) int {
	rawPos = clamp(rawPos, 0, len(l.raw))
	if rawPos <= len(l.prefix) {
		return rawPos
	}
	pos := len(l.prefix)
	for i, s := range l.syllables {
		off := l.offsets[i]
		if off+len(s.text) >= rawPos {
			return pos + max(0, rawPos-off)
		}
		pos += len(s.text)
	}
	return pos
}

// PositionToRaw maps a structured offset back to a byte offset in Raw.
func (l *Line) PositionToRaw(pos int) int {
	pos = clamp(pos, 0, l.structuredLen())
	if pos <= len(l.prefix) {
		return pos
	}
	acc := len(l.prefix)
	for i, s := range l.syllables {
		if pos <= acc+len(s.text) {
			return l.offsets[i] + pos - acc
		}
		acc += len(s.text)
	}
	return len(l.raw)
}

// SetSyllableText replaces the text of syllable i and re-serializes the line.
func (l *Line) SetSyllableText(i int, text string) (LineChange, error) {
	s, err := l.syllableAt(i)
	if err != nil {
		return LineChange{}, err
	}
	return l.fold(s.setText(i, text)), nil
}

// SetSyllableStart sets the start of syllable i and re-serializes the line.
// Times are clamped to the serializable range.
func (l *Line) SetSyllableStart(i int, t timecode.Timecode) (LineChange, error) {
	s, err := l.syllableAt(i)
	if err != nil {
		return LineChange{}, err
	}
	return l.fold(s.setStart(i, t)), nil
}

// SetSyllableEnd sets the end of syllable i and re-serializes the line.
func (l *Line) SetSyllableEnd(i int, t timecode.Timecode) (LineChange, error) {
	s, err := l.syllableAt(i)
	if err != nil {
		return LineChange{}, err
	}
	return l.fold(s.setEnd(i, t)), nil
}

// Retime applies fn to every set start and end time and re-serializes the
// line once.
func (l *Line) Retime(fn func(timecode.Timecode) timecode.Timecode) LineChange {
	deltas := make([]SyllableDelta, 0, 2*len(l.syllables))
	for i, s := range l.syllables {
		if !s.start.IsPlaceholder() {
			deltas = append(deltas, s.setStart(i, fn(s.start)))
		}
		if !s.end.IsPlaceholder() {
			deltas = append(deltas, s.setEnd(i, fn(s.end)))
		}
	}
	return l.fold(deltas...)
}

// Normalize re-serializes the line from its structured form.
func (l *Line) Normalize() LineChange {
	return l.SetRaw(Serialize(l.prefix, l.Syllables()))
}

func (l *Line) syllableAt(i int) (*Syllable, error) {
	s, ok := l.Syllable(i)
	if !ok {
		return nil, errors.NewNotFound("syllable", strconv.Itoa(i))
	}
	return s, nil
}

func (l *Line) fold(deltas ...SyllableDelta) LineChange {
	for _, d := range deltas {
		if d.Changed {
			return l.Normalize()
		}
	}
	return LineChange{OldRawLength: len(l.raw), NewRawLength: len(l.raw)}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
