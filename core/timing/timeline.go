// Package timing maps playback time to the syllable being sung.
//
// A Timeline is built from a song once and then kept current by applying
// the lyrics.LinesChanged values the song's mutations return, so only the
// edited lines are re-derived.
package timing

import (
	"sort"

	"github.com/FocuswithJustin/soramimi/core/lyrics"
	"github.com/FocuswithJustin/soramimi/core/timecode"
)

// Window is the time span during which a syllable is sung. End is
// timecode.Max when the syllable has no end and nothing follows it.
type Window struct {
	Line     int
	Syllable int
	Start    timecode.Timecode
	End      timecode.Timecode
}

// Contains reports whether t falls inside w.
func (w Window) Contains(t timecode.Timecode) bool {
	return t >= w.Start && t < w.End
}

// Timeline indexes the syllable windows of a song.
type Timeline struct {
	lines [][]Window
	flat  []Window
	dirty bool
}

// New builds a timeline for song.
func New(song lyrics.Song) *Timeline {
	tl := &Timeline{}
	tl.Rebuild(song)
	return tl
}

// Rebuild re-derives every line.
func (tl *Timeline) Rebuild(song lyrics.Song) {
	lines := song.Lines()
	tl.lines = make([][]Window, len(lines))
	for i, l := range lines {
		tl.lines[i] = windows(l)
	}
	tl.dirty = true
}

// Apply updates the timeline after a mutation of song described by ch.
func (tl *Timeline) Apply(song lyrics.Song, ch lyrics.LinesChanged) {
	if ch.IsZero() {
		return
	}
	first, removed, inserted := ch.FirstLine, ch.LinesRemoved, ch.LinesInserted
	if first < 0 || first+removed > len(tl.lines) || first+inserted > song.LineCount() {
		tl.Rebuild(song)
		return
	}
	fresh := make([][]Window, inserted)
	for i := range fresh {
		l, _ := song.Line(first + i)
		fresh[i] = windows(l)
	}
	tail := append([][]Window(nil), tl.lines[first+removed:]...)
	tl.lines = append(append(tl.lines[:first], fresh...), tail...)
	tl.dirty = true
}

// windows derives the windows of one line. Syllables without a start are
// skipped; a missing end is taken from the next set start.
func windows(l lyrics.Line) []Window {
	syllables := l.Syllables()
	var out []Window
	for i, s := range syllables {
		if s.Start().IsPlaceholder() {
			continue
		}
		end := s.End()
		if end.IsPlaceholder() {
			end = timecode.Max
			for _, next := range syllables[i+1:] {
				if !next.Start().IsPlaceholder() {
					end = next.Start()
					break
				}
			}
		}
		out = append(out, Window{Syllable: i, Start: s.Start(), End: end})
	}
	return out
}

func (tl *Timeline) index() []Window {
	if !tl.dirty {
		return tl.flat
	}
	tl.flat = tl.flat[:0]
	for line, ws := range tl.lines {
		for _, w := range ws {
			w.Line = line
			tl.flat = append(tl.flat, w)
		}
	}
	sort.SliceStable(tl.flat, func(i, j int) bool {
		return tl.flat[i].Start < tl.flat[j].Start
	})
	tl.dirty = false
	return tl.flat
}

// Len returns the number of timed syllables.
func (tl *Timeline) Len() int {
	return len(tl.index())
}

// At returns the syllable that most recently started at or before t, and
// whether t is still inside it. It reports ok=false before the first
// syllable.
func (tl *Timeline) At(t timecode.Timecode) (w Window, active bool, ok bool) {
	flat := tl.index()
	i := sort.Search(len(flat), func(i int) bool { return flat[i].Start > t })
	if i == 0 {
		return Window{}, false, false
	}
	w = flat[i-1]
	return w, w.Contains(t), true
}

// Line returns the windows of line i.
func (tl *Timeline) Line(i int) []Window {
	if i < 0 || i >= len(tl.lines) {
		return nil
	}
	out := make([]Window, len(tl.lines[i]))
	for j, w := range tl.lines[i] {
		w.Line = i
		out[j] = w
	}
	return out
}
