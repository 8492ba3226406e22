package vsqx

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/FocuswithJustin/soramimi/core/errors"
	"github.com/FocuswithJustin/soramimi/core/lyrics"
	"github.com/FocuswithJustin/soramimi/core/soramimi"
	"github.com/FocuswithJustin/soramimi/core/timecode"
)

func loadSample(t *testing.T) *Song {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", "sample.vsqx"))
	if err != nil {
		t.Fatal(err)
	}
	song, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	return song
}

func TestParse(t *testing.T) {
	song := loadSample(t)

	want := "[00:00:00]ra[00:00:50]/[00:01:00]ta [00:01:50]go[00:01:75]\n[00:02:00]la[00:02:50]"
	if got := song.Raw(); got != want {
		t.Errorf("Raw() = %q, want %q", got, want)
	}
	if song.Title() != "Sample Song" {
		t.Errorf("Title() = %q", song.Title())
	}
	if song.Editable() || song.Format() != FormatName {
		t.Error("vsqx songs are read-only")
	}
	if song.LineCount() != 2 {
		t.Fatalf("LineCount() = %d, want 2", song.LineCount())
	}

	line, ok := song.Line(0)
	if !ok {
		t.Fatal("Line(0) missing")
	}
	texts := []string{"ra", "/", "ta ", "go"}
	syllables := line.Syllables()
	if len(syllables) != len(texts) {
		t.Fatalf("got %d syllables, want %d", len(syllables), len(texts))
	}
	for i, want := range texts {
		if syllables[i].Text() != want {
			t.Errorf("syllable %d = %q, want %q", i, syllables[i].Text(), want)
		}
	}
	if line.Start() != 0 || line.End() != 175 {
		t.Errorf("bounds = (%d, %d), want (0, 175)", line.Start(), line.End())
	}
	if got := lyrics.StructuredText(line); got != "ra/ta go" {
		t.Errorf("StructuredText() = %q", got)
	}
}

func TestLinesAreReadOnly(t *testing.T) {
	song := loadSample(t)
	for i, l := range song.Lines() {
		if _, ok := l.(*soramimi.Line); ok {
			t.Errorf("line %d exposes the editable type", i)
		}
	}
	if l, _ := song.Line(1); l.Raw() != "[00:02:00]la[00:02:50]" {
		t.Errorf("Line(1).Raw() = %q", l.Raw())
	}
}

func TestMutationsFail(t *testing.T) {
	song := loadSample(t)
	before := song.Raw()

	mutations := map[string]func() (lyrics.LinesChanged, error){
		"UpdateRawText":    func() (lyrics.LinesChanged, error) { return song.UpdateRawText(0, 0, "x") },
		"AddLine":          func() (lyrics.LinesChanged, error) { return song.AddLine(nil, "") },
		"ReplaceLines":     func() (lyrics.LinesChanged, error) { return song.ReplaceLines(0, 1, nil) },
		"RemoveAllLines":   func() (lyrics.LinesChanged, error) { return song.RemoveAllLines() },
		"SetSyllableText":  func() (lyrics.LinesChanged, error) { return song.SetSyllableText(0, 0, "x") },
		"SetSyllableStart": func() (lyrics.LinesChanged, error) { return song.SetSyllableStart(0, 0, 1) },
		"SetSyllableEnd":   func() (lyrics.LinesChanged, error) { return song.SetSyllableEnd(0, 0, 1) },
	}
	for name, fn := range mutations {
		t.Run(name, func(t *testing.T) {
			ch, err := fn()
			if !errors.Is(err, errors.ErrNotEditable) {
				t.Fatalf("error = %v, want ErrNotEditable", err)
			}
			var neErr *errors.NotEditableError
			if !errors.As(err, &neErr) || neErr.Operation != name || neErr.Format != FormatName {
				t.Errorf("error = %#v", err)
			}
			if !ch.IsZero() {
				t.Errorf("change = %+v, want zero", ch)
			}
		})
	}
	if song.Raw() != before {
		t.Error("read-only song changed")
	}
}

func TestMapping(t *testing.T) {
	song := loadSample(t)
	line, col := song.RawToLine(len("[00:00:00]ra[00:00:50]/[00:01:00]ta [00:01:50]go[00:01:75]") + 1)
	if line != 1 || col != 0 {
		t.Errorf("RawToLine() = (%d, %d), want (1, 0)", line, col)
	}
	if got := song.StructuredToRaw(0, 2); got != 12 {
		t.Errorf("StructuredToRaw(0, 2) = %d, want 12", got)
	}
	if line, off := song.RawToStructured(11); line != 0 || off != 1 {
		t.Errorf("RawToStructured(11) = (%d, %d)", line, off)
	}
	if got := song.LineToRaw(1, 2); got != 61 {
		t.Errorf("LineToRaw(1, 2) = %d, want 61", got)
	}
}

func TestParseRejects(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"plain text", "[00:00:00]la"},
		{"malformed", "<vsq3><masterTrack>"},
		{"other root", "<vsq4/>"},
		{"no tempo", "<vsq3><masterTrack><resolution>480</resolution></masterTrack></vsq3>"},
		{"zero bpm", "<vsq3><masterTrack><resolution>480</resolution><tempo><bpm>0</bpm></tempo></masterTrack></vsq3>"},
		{"no lyrics", "<vsq3><masterTrack><resolution>480</resolution><tempo><bpm>12000</bpm></tempo></masterTrack><vsTrack><musicalPart/></vsTrack></vsq3>"},
		{"bad note", "<vsq3><masterTrack><resolution>480</resolution><tempo><bpm>12000</bpm></tempo></masterTrack><vsTrack><musicalPart><note><lyric>a</lyric><posTick>x</posTick></note></musicalPart></vsTrack></vsq3>"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data))
			if err == nil {
				t.Fatal("Parse() should fail")
			}
			var pErr *errors.ParseError
			if !errors.As(err, &pErr) || pErr.Format != FormatName {
				t.Errorf("error = %v, want *errors.ParseError", err)
			}
		})
	}
}

func TestTempoCentis(t *testing.T) {
	tempo := Tempo{Resolution: 480, BPM: 12000}
	tests := []struct {
		tick int64
		want timecode.Timecode
	}{
		{0, 0},
		{480, 50},
		{1, 0},
		{10, 1},
		{1920, 200},
	}
	for _, tt := range tests {
		if got := tempo.Centis(tt.tick); got != tt.want {
			t.Errorf("Centis(%d) = %d, want %d", tt.tick, got, tt.want)
		}
	}
}
