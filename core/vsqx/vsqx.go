// Package vsqx imports VOCALOID3 project files (.vsqx, schema vsq3) as
// read-only songs.
//
// Every musical part becomes one line and every note with a lyric becomes
// one syllable timed by the project tempo. Mutating methods fail with
// *errors.NotEditableError; convert with soramimi.Parse(song.Raw()) to edit.
package vsqx

import (
	"strings"

	"github.com/FocuswithJustin/soramimi/core/errors"
	"github.com/FocuswithJustin/soramimi/core/lyrics"
	"github.com/FocuswithJustin/soramimi/core/soramimi"
	"github.com/FocuswithJustin/soramimi/core/timecode"
	"github.com/FocuswithJustin/soramimi/core/xml"
)

// FormatName identifies the format in lyrics.Song.Format.
const FormatName = "vsqx"

// Song is a read-only song imported from a vsq3 project.
type Song struct {
	title string
	song  *soramimi.Song
}

var _ lyrics.Song = (*Song)(nil)

// Tempo is the timing base of a project.
type Tempo struct {
	Resolution int64 // ticks per quarter note
	BPM        int64 // beats per minute, in hundredths
}

// Centis converts a tick position to centiseconds, truncating.
//
// One tick lasts 6,000,000 / (BPM * Resolution) milliseconds.
func (t Tempo) Centis(tick int64) timecode.Timecode {
	return timecode.Timecode(tick * 600000 / (t.BPM * t.Resolution)).Clamp()
}

// Parse reads a vsq3 project. It returns a *errors.ParseError when data is
// not a vsq3 document or contains no lyrics.
func Parse(data []byte) (*Song, error) {
	if !xml.Looks(data) {
		return nil, errors.NewParse(FormatName, "", "not XML")
	}
	doc, err := xml.Parse(data)
	if err != nil {
		return nil, &errors.ParseError{Format: FormatName, Message: "malformed XML", Err: err}
	}
	root := doc.Root()
	if root.Name() != "vsq3" {
		return nil, errors.NewParse(FormatName, "", "missing vsq3 root")
	}

	tempo, err := readTempo(doc)
	if err != nil {
		return nil, err
	}

	parts, err := doc.XPath(xml.Path("vsq3", "vsTrack", "musicalPart"))
	if err != nil {
		return nil, &errors.ParseError{Format: FormatName, Message: "query parts", Err: err}
	}

	var raws []string
	for _, part := range parts {
		syllables, err := readPart(part, tempo)
		if err != nil {
			return nil, err
		}
		if len(syllables) == 0 {
			continue
		}
		raws = append(raws, soramimi.Serialize("", syllables))
	}
	if len(raws) == 0 {
		return nil, errors.NewParse(FormatName, "", "no lyrics")
	}

	var title string
	if n, _ := doc.XPathFirst(xml.Path("vsq3", "masterTrack", "seqName")); n != nil {
		title = strings.TrimSpace(n.Text())
	}
	return &Song{
		title: title,
		song:  soramimi.Parse(strings.Join(raws, lyrics.Separator)),
	}, nil
}

func readTempo(doc *xml.Document) (Tempo, error) {
	master, err := doc.XPathFirst(xml.Path("vsq3", "masterTrack"))
	if err != nil || master == nil {
		return Tempo{}, errors.NewParse(FormatName, "", "missing masterTrack")
	}
	res, err := master.ChildInt("resolution")
	if err != nil {
		return Tempo{}, &errors.ParseError{Format: FormatName, Message: "resolution", Err: err}
	}
	tempo := master.Child("tempo")
	if tempo == nil {
		return Tempo{}, errors.NewParse(FormatName, "", "missing tempo")
	}
	bpm, err := tempo.ChildInt("bpm")
	if err != nil {
		return Tempo{}, &errors.ParseError{Format: FormatName, Message: "bpm", Err: err}
	}
	if res <= 0 || bpm <= 0 {
		return Tempo{}, errors.NewParse(FormatName, "", "tempo must be positive")
	}
	return Tempo{Resolution: res, BPM: bpm}, nil
}

func readPart(part *xml.Node, tempo Tempo) ([]lyrics.Syllable, error) {
	base, err := part.ChildInt("posTick")
	if err != nil {
		base = 0
	}
	notes, err := part.XPath(xml.Relative("note"))
	if err != nil {
		return nil, &errors.ParseError{Format: FormatName, Message: "query notes", Err: err}
	}

	var out []lyrics.Syllable
	for _, note := range notes {
		lyric := note.ChildText("lyric")
		if lyric == "" {
			continue
		}
		pos, err := note.ChildInt("posTick")
		if err != nil {
			return nil, &errors.ParseError{Format: FormatName, Message: "note posTick", Err: err}
		}
		dur, err := note.ChildInt("durTick")
		if err != nil {
			return nil, &errors.ParseError{Format: FormatName, Message: "note durTick", Err: err}
		}
		text, joined := syllableText(lyric)
		if !joined {
			text += " "
		}
		out = append(out, soramimi.NewSyllable(text,
			tempo.Centis(base+pos),
			tempo.Centis(base+pos+dur)))
	}
	if n := len(out); n > 0 {
		last := out[n-1].(*soramimi.Syllable)
		out[n-1] = soramimi.NewSyllable(strings.TrimRight(last.Text(), " "), last.Start(), last.End())
	}
	return out, nil
}

// syllableText maps a note lyric to syllable text. A lyric ending in "-"
// continues into the next note, and a lone "-" is a held note written "/".
// Both join the next syllable without a space.
func syllableText(lyric string) (string, bool) {
	switch {
	case lyric == "-":
		return "/", true
	case strings.HasSuffix(lyric, "-"):
		return strings.TrimSuffix(lyric, "-"), true
	}
	return lyric, false
}

// Title returns the project sequence name.
func (s *Song) Title() string { return s.title }

// Format returns FormatName.
func (s *Song) Format() string { return FormatName }

// Editable reports false.
func (s *Song) Editable() bool { return false }

// Raw returns the timing text equivalent of the project.
func (s *Song) Raw() string { return s.song.Raw() }

// Lines returns read-only views of every line.
func (s *Song) Lines() []lyrics.Line {
	lines := s.song.Lines()
	for i, l := range lines {
		lines[i] = readOnly{l}
	}
	return lines
}

// LineCount returns the number of lines.
func (s *Song) LineCount() int { return s.song.LineCount() }

// Line returns a read-only view of line i.
func (s *Song) Line(i int) (lyrics.Line, bool) {
	l, ok := s.song.Line(i)
	if !ok {
		return nil, false
	}
	return readOnly{l}, true
}

func (s *Song) RawToLine(pos int) (int, int)         { return s.song.RawToLine(pos) }
func (s *Song) LineToRaw(line, col int) int          { return s.song.LineToRaw(line, col) }
func (s *Song) RawToStructured(pos int) (int, int)   { return s.song.RawToStructured(pos) }
func (s *Song) StructuredToRaw(line, offset int) int { return s.song.StructuredToRaw(line, offset) }

func notEditable(op string) (lyrics.LinesChanged, error) {
	return lyrics.LinesChanged{}, errors.NewNotEditable(op, FormatName)
}

func (s *Song) UpdateRawText(int, int, string) (lyrics.LinesChanged, error) {
	return notEditable("UpdateRawText")
}

func (s *Song) AddLine([]lyrics.Syllable, string) (lyrics.LinesChanged, error) {
	return notEditable("AddLine")
}

func (s *Song) ReplaceLines(int, int, []lyrics.Line) (lyrics.LinesChanged, error) {
	return notEditable("ReplaceLines")
}

func (s *Song) RemoveAllLines() (lyrics.LinesChanged, error) {
	return notEditable("RemoveAllLines")
}

func (s *Song) SetSyllableText(int, int, string) (lyrics.LinesChanged, error) {
	return notEditable("SetSyllableText")
}

func (s *Song) SetSyllableStart(int, int, timecode.Timecode) (lyrics.LinesChanged, error) {
	return notEditable("SetSyllableStart")
}

func (s *Song) SetSyllableEnd(int, int, timecode.Timecode) (lyrics.LinesChanged, error) {
	return notEditable("SetSyllableEnd")
}

// readOnly hides the concrete line type so callers cannot reach its setters.
type readOnly struct {
	lyrics.Line
}
