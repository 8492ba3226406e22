// Package timecode implements the bracketed centisecond timestamps embedded in
// karaoke timing text.
//
// A timecode is written as exactly ten bytes, "[MM:SS:CC]". The literal
// "[__:__:__]" stands for a time that has not been set yet.
package timecode

import (
	"fmt"
	"math"
	"time"
)

// Timecode is a signed count of centiseconds.
type Timecode int64

const (
	// Placeholder marks a time that has not been set yet.
	Placeholder Timecode = math.MinInt64
	// Min is the smallest real timecode. It is used as the end of a line
	// that has no timed syllables.
	Min Timecode = math.MinInt64 + 1
	// Max is the largest timecode. It is used as the start of a line that
	// has no timed syllables.
	Max Timecode = math.MaxInt64
)

// Latest is the largest time that still serializes to a two-digit minutes
// field and therefore parses back.
const Latest Timecode = 99*6000 + 59*100 + 99

// Width is the length in bytes of a serialized timecode token.
const Width = 10

// PlaceholderText is the canonical text form of Placeholder.
const PlaceholderText = "[__:__:__]"

// Centisecond is the duration of one timecode unit.
const Centisecond = 10 * time.Millisecond

// New builds a timecode from minutes, seconds and centiseconds. Fields are
// not range checked; seconds >= 60 roll over into minutes.
func New(minutes, seconds, centis int64) Timecode {
	return Timecode(minutes*6000 + seconds*100 + centis)
}

// FromDuration converts d to a timecode, truncating toward zero.
func FromDuration(d time.Duration) Timecode {
	return Timecode(d / Centisecond)
}

// Duration returns the timecode as a time.Duration. Placeholder maps to 0.
func (t Timecode) Duration() time.Duration {
	if t == Placeholder {
		return 0
	}
	return time.Duration(t) * Centisecond
}

// IsPlaceholder reports whether t is the unset sentinel.
func (t Timecode) IsPlaceholder() bool {
	return t == Placeholder
}

// Clamp limits t to [0, Latest]. Placeholder is returned unchanged.
func (t Timecode) Clamp() Timecode {
	switch {
	case t == Placeholder:
		return t
	case t < 0:
		return 0
	case t > Latest:
		return Latest
	}
	return t
}

// String returns the serialized form of t.
func (t Timecode) String() string {
	return Serialize(t)
}

// Serialize renders t as "[MM:SS:CC]". Minutes widen beyond two digits for
// large values. Placeholder renders as PlaceholderText.
func Serialize(t Timecode) string {
	if t == Placeholder {
		return PlaceholderText
	}
	v := int64(t)
	minutes := v / 6000
	seconds := (v % 6000) / 100
	centis := v % 100
	return fmt.Sprintf("[%02d:%02d:%02d]", minutes, seconds, centis)
}

// Deserialize tries to read a timecode token starting at text[pos]. It
// reports false when the bytes at pos are not a timecode; that is not an
// error, the bytes are ordinary text.
func Deserialize(text string, pos int) (Timecode, bool) {
	if pos < 0 || pos+Width > len(text) {
		return 0, false
	}
	window := text[pos : pos+Width]
	if window == PlaceholderText {
		return Placeholder, true
	}
	if window[0] != '[' || window[3] != ':' || window[6] != ':' || window[9] != ']' {
		return 0, false
	}
	minutes, ok := twoDigits(window[1], window[2])
	if !ok {
		return 0, false
	}
	seconds, ok := twoDigits(window[4], window[5])
	if !ok {
		return 0, false
	}
	centis, ok := twoDigits(window[7], window[8])
	if !ok {
		return 0, false
	}
	return New(minutes, seconds, centis), true
}

// Match reports whether a timecode token (or the placeholder literal)
// starts at text[pos].
func Match(text string, pos int) bool {
	_, ok := Deserialize(text, pos)
	return ok
}

func twoDigits(hi, lo byte) (int64, bool) {
	if hi < '0' || hi > '9' || lo < '0' || lo > '9' {
		return 0, false
	}
	return int64(hi-'0')*10 + int64(lo-'0'), true
}
