package session

import (
	"fmt"
	"strings"

	"github.com/FocuswithJustin/soramimi/core/errors"
	"github.com/FocuswithJustin/soramimi/core/lyrics"
	"github.com/FocuswithJustin/soramimi/core/soramimi"
	"github.com/FocuswithJustin/soramimi/core/timecode"
)

// Op names an edit operation.
type Op string

const (
	OpUpdate       Op = "update"
	OpSetText      Op = "set_text"
	OpSetStart     Op = "set_start"
	OpSetEnd       Op = "set_end"
	OpAddLine      Op = "add_line"
	OpReplaceLines Op = "replace_lines"
	OpRemoveAll    Op = "remove_all"
	OpShift        Op = "shift"
	OpNormalize    Op = "normalize"
)

// Edit is one mutation request as sent by clients. Which fields are read
// depends on Op:
//
//	update         Pos, Remove, Replace
//	set_text       Line, Syllable, Text
//	set_start/end  Line, Syllable, Time ("[__:__:__]" clears)
//	add_line       Text (raw line)
//	replace_lines  Line, Count, Lines (raw lines)
//	shift          Time (signed offset)
//
// BaseRevision, when set, must match the session revision or the edit is
// rejected with ErrConflict.
type Edit struct {
	Op           Op       `json:"op"`
	Pos          int      `json:"pos,omitempty"`
	Remove       int      `json:"remove,omitempty"`
	Replace      string   `json:"replace,omitempty"`
	Line         int      `json:"line,omitempty"`
	Syllable     int      `json:"syllable,omitempty"`
	Count        int      `json:"count,omitempty"`
	Text         string   `json:"text,omitempty"`
	Time         string   `json:"time,omitempty"`
	Lines        []string `json:"lines,omitempty"`
	BaseRevision string   `json:"base_revision,omitempty"`
}

// ParseTime reads a timecode field. The placeholder literal yields
// timecode.Placeholder; anything else goes through timecode.ParseOffset.
func ParseTime(s string) (timecode.Timecode, error) {
	if strings.TrimSpace(s) == timecode.PlaceholderText {
		return timecode.Placeholder, nil
	}
	t, err := timecode.ParseOffset(s)
	if err != nil {
		return 0, &errors.ValidationError{Field: "time", Value: s, Message: err.Error(), Err: errors.ErrInvalidInput}
	}
	return t, nil
}

// Apply performs e on song.
func (e Edit) Apply(song lyrics.Song) (lyrics.LinesChanged, error) {
	switch e.Op {
	case OpUpdate:
		return song.UpdateRawText(e.Pos, e.Remove, strings.ReplaceAll(e.Replace, "\r\n", lyrics.Separator))
	case OpSetText:
		return song.SetSyllableText(e.Line, e.Syllable, e.Text)
	case OpSetStart, OpSetEnd:
		t, err := ParseTime(e.Time)
		if err != nil {
			return lyrics.LinesChanged{}, err
		}
		if e.Op == OpSetStart {
			return song.SetSyllableStart(e.Line, e.Syllable, t)
		}
		return song.SetSyllableEnd(e.Line, e.Syllable, t)
	case OpAddLine:
		l := soramimi.ParseLine(e.Text)
		return song.AddLine(l.Syllables(), l.Prefix())
	case OpReplaceLines:
		lines := make([]lyrics.Line, len(e.Lines))
		for i, raw := range e.Lines {
			lines[i] = soramimi.ParseLine(raw)
		}
		return song.ReplaceLines(e.Line, e.Count, lines)
	case OpRemoveAll:
		return song.RemoveAllLines()
	case OpShift, OpNormalize:
		s, ok := song.(*soramimi.Song)
		if !ok {
			return lyrics.LinesChanged{}, errors.NewNotEditable(string(e.Op), song.Format())
		}
		if e.Op == OpNormalize {
			return s.Normalize(), nil
		}
		delta, err := ParseTime(e.Time)
		if err != nil {
			return lyrics.LinesChanged{}, err
		}
		if delta.IsPlaceholder() {
			return lyrics.LinesChanged{}, errors.NewValidation("time", "shift needs an offset")
		}
		return s.Shift(delta), nil
	}
	return lyrics.LinesChanged{}, errors.NewValidation("op", fmt.Sprintf("unknown edit operation %q", e.Op))
}
