package soramimi

import (
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/FocuswithJustin/soramimi/core/errors"
	"github.com/FocuswithJustin/soramimi/core/lyrics"
	"github.com/FocuswithJustin/soramimi/core/timecode"
)

// checkChange verifies that ch describes the text edit turning before into
// after.
func checkChange(t *testing.T, before, after string, ch lyrics.LinesChanged) {
	t.Helper()
	off, oldLen, newLen := ch.RawOffset, ch.OldRawLength, ch.NewRawLength
	if off < 0 || off+oldLen > len(before) || off+newLen > len(after) {
		t.Fatalf("change %+v out of range for %q -> %q", ch, before, after)
	}
	if got := before[:off] + after[off:off+newLen] + before[off+oldLen:]; got != after {
		t.Errorf("change %+v applied to %q = %q, want %q", ch, before, got, after)
	}
}

// sameStructure compares two songs line by line.
func sameStructure(t *testing.T, got, want *Song) {
	t.Helper()
	if got.LineCount() != want.LineCount() {
		t.Fatalf("LineCount() = %d, want %d", got.LineCount(), want.LineCount())
	}
	for i := 0; i < want.LineCount(); i++ {
		g, _ := got.At(i)
		w, _ := want.At(i)
		if g.Raw() != w.Raw() || g.Prefix() != w.Prefix() || g.Start() != w.Start() || g.End() != w.End() {
			t.Errorf("line %d = %q, want %q", i, g.Raw(), w.Raw())
			continue
		}
		gs, ws := g.Syllables(), w.Syllables()
		if len(gs) != len(ws) {
			t.Errorf("line %d has %d syllables, want %d", i, len(gs), len(ws))
			continue
		}
		for j := range ws {
			if gs[j].Text() != ws[j].Text() || gs[j].Start() != ws[j].Start() || gs[j].End() != ws[j].End() {
				t.Errorf("line %d syllable %d differs", i, j)
			}
		}
	}
}

func TestParse(t *testing.T) {
	s := Parse("a[00:00:00]b\n\nc")
	if s.LineCount() != 3 {
		t.Fatalf("LineCount() = %d, want 3", s.LineCount())
	}
	if got := s.Raw(); got != "a[00:00:00]b\n\nc" {
		t.Errorf("Raw() = %q", got)
	}
	if cr := Parse("a\r\nb"); cr.Raw() != "a\r\nb" || cr.LineCount() != 2 {
		t.Errorf("carriage return not kept as text: %q in %d lines", cr.Raw(), cr.LineCount())
	}
	if Parse("").LineCount() != 1 {
		t.Error("empty text should be one empty line")
	}
	if !s.Editable() || s.Format() != FormatName {
		t.Error("soramimi songs are editable")
	}
}

func TestAddLineThenEdit(t *testing.T) {
	s := NewSong()
	ch, err := s.AddLine(nil, "")
	if err != nil {
		t.Fatal(err)
	}
	if want := (lyrics.LinesChanged{FirstLine: 0, LinesInserted: 1}); ch != want {
		t.Errorf("AddLine() = %+v, want %+v", ch, want)
	}

	ch, err = s.UpdateRawText(0, 0, "[00:01:00]Hi[00:02:00]")
	if err != nil {
		t.Fatal(err)
	}
	want := lyrics.LinesChanged{FirstLine: 0, LinesRemoved: 1, LinesInserted: 1, RawOffset: 0, OldRawLength: 0, NewRawLength: 22}
	if ch != want {
		t.Errorf("UpdateRawText() = %+v, want %+v", ch, want)
	}
	l, _ := s.At(0)
	checkSyllables(t, l, []wantSyllable{{"Hi", 100, 200}})
}

func TestAddLine_Separator(t *testing.T) {
	s := Parse("abc")
	before := s.Raw()
	ch, err := s.AddLine([]lyrics.Syllable{NewSyllable("x", 0, 10)}, "")
	if err != nil {
		t.Fatal(err)
	}
	if ch.FirstLine != 1 || ch.RawOffset != 3 || ch.NewRawLength != 1+len("[00:00:00]x[00:00:10]") {
		t.Errorf("AddLine() = %+v", ch)
	}
	checkChange(t, before, s.Raw(), ch)
}

func TestUpdateRawText_MatchesReparse(t *testing.T) {
	const doc = "Intro\n[00:00:00]Hel[00:00:50]lo[00:01:00] world\n[00:02:00]sec[00:02:50]ond\nlast line"
	tests := []struct {
		name      string
		pos, rm   int
		replace   string
		wantLines int
	}{
		{"insert text", 2, 0, "XX", 4},
		{"split line", 19, 0, "\n", 5},
		{"join lines", 5, 1, "", 3},
		{"replace across three lines", 3, 50, "zz", 2},
		{"replace with more lines", 3, 50, "a\nb\nc\nd", 5},
		{"insert crlf", 0, 0, "x\r\ny\r\n", 6},
		{"append at end", len(doc), 0, "\n[00:03:00]new", 5},
		{"delete everything", 0, len(doc), "", 1},
		{"insert timecode", 6, 0, "[00:00:10]", 4},
		{"break timecode", 7, 1, "", 4},
		{"negative pos", -10, 0, "a", 4},
		{"past end", len(doc) + 40, 5, "z", 4},
		{"remove past end", len(doc) - 2, 40, "", 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Parse(doc)
			before := s.Raw()
			ch, err := s.UpdateRawText(tt.pos, tt.rm, tt.replace)
			if err != nil {
				t.Fatal(err)
			}
			after := s.Raw()
			checkChange(t, before, after, ch)
			sameStructure(t, s, Parse(after))
			if s.LineCount() != tt.wantLines {
				t.Errorf("LineCount() = %d, want %d", s.LineCount(), tt.wantLines)
			}
			if got := ch.LinesInserted - ch.LinesRemoved; got != s.LineCount()-4 {
				t.Errorf("line delta = %d, want %d", got, s.LineCount()-4)
			}
		})
	}
}

func TestUpdateRawText_CarriageReturnThenNewline(t *testing.T) {
	s := Parse("a")
	if _, err := s.UpdateRawText(1, 0, "\r"); err != nil {
		t.Fatal(err)
	}
	before := s.Raw()
	ch, err := s.UpdateRawText(2, 0, "\nb")
	if err != nil {
		t.Fatal(err)
	}
	after := s.Raw()
	if after != "a\r\nb" {
		t.Errorf("Raw() = %q, want %q", after, "a\r\nb")
	}
	checkChange(t, before, after, ch)
	sameStructure(t, s, Parse(after))
}

func TestUpdateRawText_RandomEditsMatchReparse(t *testing.T) {
	pieces := []string{"a", "空", " ", "\t", "\n", "\r", "\r\n", "[00:00:10]", "[00:01:00]", "[__:__:__]", "[00:", "]"}
	rng := rand.New(rand.NewPCG(7, 11))
	randomText := func(max int) string {
		var b strings.Builder
		for range rng.IntN(max + 1) {
			b.WriteString(pieces[rng.IntN(len(pieces))])
		}
		return b.String()
	}

	for round := range 50 {
		s := Parse(randomText(12))
		for step := range 40 {
			before := s.Raw()
			pos := rng.IntN(len(before) + 1)
			rm := rng.IntN(len(before) - pos + 1)
			replace := randomText(4)
			ch, err := s.UpdateRawText(pos, rm, replace)
			if err != nil {
				t.Fatal(err)
			}
			after := s.Raw()
			if want := before[:pos] + replace + before[pos+rm:]; after != want {
				t.Fatalf("round %d step %d: Raw() = %q, want %q", round, step, after, want)
			}
			if rm != 0 || replace != "" {
				checkChange(t, before, after, ch)
			}
			sameStructure(t, s, Parse(after))
			if t.Failed() {
				t.Fatalf("round %d step %d: UpdateRawText(%d, %d, %q) on %q", round, step, pos, rm, replace, before)
			}
		}
	}
}

func TestUpdateRawText_KeepsUntouchedLines(t *testing.T) {
	s := Parse("one\ntwo\nthree")
	l0, _ := s.At(0)
	l1, _ := s.At(1)
	l2, _ := s.At(2)

	if _, err := s.UpdateRawText(5, 1, "W"); err != nil {
		t.Fatal(err)
	}
	if s.LineCount() != 3 {
		t.Fatalf("single-line edit changed line count to %d", s.LineCount())
	}
	for i, want := range []*Line{l0, l1, l2} {
		if got, _ := s.At(i); got != want {
			t.Errorf("line %d was replaced", i)
		}
	}
	if l1.Raw() != "tWo" {
		t.Errorf("line 1 = %q, want %q", l1.Raw(), "tWo")
	}
}

func TestUpdateRawText_EmptySong(t *testing.T) {
	s := NewSong()
	ch, err := s.UpdateRawText(0, 0, "a\nb")
	if err != nil {
		t.Fatal(err)
	}
	want := lyrics.LinesChanged{FirstLine: 0, LinesRemoved: 0, LinesInserted: 2, NewRawLength: 3}
	if ch != want {
		t.Errorf("UpdateRawText() = %+v, want %+v", ch, want)
	}
	if s.Raw() != "a\nb" {
		t.Errorf("Raw() = %q", s.Raw())
	}

	if ch, _ := NewSong().UpdateRawText(0, 0, ""); !ch.IsZero() {
		t.Errorf("no-op edit = %+v, want zero", ch)
	}
}

func TestLineHandles(t *testing.T) {
	s := Parse("a\nb\nc")
	h, err := s.Handle(2)
	if err != nil {
		t.Fatal(err)
	}
	target, _ := s.At(2)

	if _, err := s.UpdateRawText(0, 0, "new\n"); err != nil {
		t.Fatal(err)
	}
	i, l, err := s.Resolve(h)
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if i != 3 || l != target {
		t.Errorf("Resolve() = %d, want 3", i)
	}

	if _, err := s.ReplaceLines(3, 1, []lyrics.Line{ParseLine("d")}); err != nil {
		t.Fatal(err)
	}
	if _, _, err := s.Resolve(h); !errors.Is(err, errors.ErrStaleHandle) {
		t.Errorf("Resolve() after replace error = %v, want ErrStaleHandle", err)
	}

	h, _ = s.Handle(0)
	if _, err := s.RemoveAllLines(); err != nil {
		t.Fatal(err)
	}
	if _, _, err := s.Resolve(h); !errors.Is(err, errors.ErrStaleHandle) {
		t.Errorf("Resolve() after RemoveAllLines error = %v, want ErrStaleHandle", err)
	}
	if _, _, err := s.Resolve(LineHandle{}); !errors.Is(err, errors.ErrStaleHandle) {
		t.Error("zero handle should be stale")
	}
	if _, err := s.Handle(0); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("Handle(0) on empty song error = %v", err)
	}
}

func TestReplaceLines(t *testing.T) {
	replacement := []lyrics.Line{ParseLine("[00:00:01]x")}
	tests := []struct {
		name         string
		first, count int
		lines        []lyrics.Line
		wantRaw      string
		want         lyrics.LinesChanged
	}{
		{
			name: "replace middle", first: 1, count: 1, lines: replacement,
			wantRaw: "aa\n[00:00:01]x\ncc",
			want:    lyrics.LinesChanged{FirstLine: 1, LinesRemoved: 1, LinesInserted: 1, RawOffset: 3, OldRawLength: 2, NewRawLength: 11},
		},
		{
			name: "remove last", first: 2, count: 1,
			wantRaw: "aa\nbb",
			want:    lyrics.LinesChanged{FirstLine: 2, LinesRemoved: 1, RawOffset: 5, OldRawLength: 3},
		},
		{
			name: "remove first", first: 0, count: 1,
			wantRaw: "bb\ncc",
			want:    lyrics.LinesChanged{FirstLine: 0, LinesRemoved: 1, RawOffset: 0, OldRawLength: 3},
		},
		{
			name: "insert before", first: 1, count: 0, lines: replacement,
			wantRaw: "aa\n[00:00:01]x\nbb\ncc",
			want:    lyrics.LinesChanged{FirstLine: 1, LinesInserted: 1, RawOffset: 3, NewRawLength: 12},
		},
		{
			name: "append", first: 3, count: 0, lines: replacement,
			wantRaw: "aa\nbb\ncc\n[00:00:01]x",
			want:    lyrics.LinesChanged{FirstLine: 3, LinesInserted: 1, RawOffset: 8, NewRawLength: 12},
		},
		{
			name: "clamped count", first: 1, count: 99, lines: replacement,
			wantRaw: "aa\n[00:00:01]x",
			want:    lyrics.LinesChanged{FirstLine: 1, LinesRemoved: 2, LinesInserted: 1, RawOffset: 3, OldRawLength: 5, NewRawLength: 11},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Parse("aa\nbb\ncc")
			before := s.Raw()
			ch, err := s.ReplaceLines(tt.first, tt.count, tt.lines)
			if err != nil {
				t.Fatal(err)
			}
			if s.Raw() != tt.wantRaw {
				t.Errorf("Raw() = %q, want %q", s.Raw(), tt.wantRaw)
			}
			if ch != tt.want {
				t.Errorf("ReplaceLines() = %+v, want %+v", ch, tt.want)
			}
			checkChange(t, before, s.Raw(), ch)
		})
	}
}

func TestRemoveAllLines(t *testing.T) {
	s := Parse("aa\nbb\ncc")
	ch, err := s.RemoveAllLines()
	if err != nil {
		t.Fatal(err)
	}
	want := lyrics.LinesChanged{LinesRemoved: 3, OldRawLength: 8}
	if ch != want {
		t.Errorf("RemoveAllLines() = %+v, want %+v", ch, want)
	}
	if s.LineCount() != 0 || s.Raw() != "" {
		t.Errorf("song not empty: %q", s.Raw())
	}
}

func TestSongSyllableMutation(t *testing.T) {
	s := Parse("intro\n[00:00:00]Hel[00:00:50]lo")
	before := s.Raw()

	ch, err := s.SetSyllableText(1, 0, "Jel")
	if err != nil {
		t.Fatal(err)
	}
	want := lyrics.LinesChanged{FirstLine: 1, LinesRemoved: 1, LinesInserted: 1, RawOffset: 6, OldRawLength: 25, NewRawLength: 25}
	if ch != want {
		t.Errorf("SetSyllableText() = %+v, want %+v", ch, want)
	}
	checkChange(t, before, s.Raw(), ch)

	before = s.Raw()
	ch, err = s.SetSyllableEnd(1, 1, 120)
	if err != nil {
		t.Fatal(err)
	}
	checkChange(t, before, s.Raw(), ch)
	if want := "intro\n[00:00:00]Jel[00:00:50]lo[00:01:20]"; s.Raw() != want {
		t.Errorf("Raw() = %q, want %q", s.Raw(), want)
	}

	before = s.Raw()
	ch, err = s.SetSyllableStart(1, 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	checkChange(t, before, s.Raw(), ch)

	if _, err := s.SetSyllableText(5, 0, "x"); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("missing line error = %v, want ErrNotFound", err)
	}
	if _, err := s.SetSyllableText(0, 0, "x"); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("missing syllable error = %v, want ErrNotFound", err)
	}
}

func TestSongMapping(t *testing.T) {
	s := Parse("ab\n[00:00:00]cd[00:00:10]")
	if line, col := s.RawToLine(4); line != 1 || col != 1 {
		t.Errorf("RawToLine(4) = (%d, %d), want (1, 1)", line, col)
	}
	if line, col := s.RawToLine(-1); line != 0 || col != 0 {
		t.Errorf("RawToLine(-1) = (%d, %d)", line, col)
	}
	if line, col := s.RawToLine(999); line != 1 || col != 22 {
		t.Errorf("RawToLine(999) = (%d, %d), want (1, 22)", line, col)
	}
	if got := s.LineToRaw(1, 1); got != 4 {
		t.Errorf("LineToRaw(1, 1) = %d, want 4", got)
	}
	if line, off := s.RawToStructured(13); line != 1 || off != 0 {
		t.Errorf("RawToStructured(13) = (%d, %d), want (1, 0)", line, off)
	}
	if got := s.StructuredToRaw(1, 1); got != 14 {
		t.Errorf("StructuredToRaw(1, 1) = %d, want 14", got)
	}
	if got := s.StructuredToRaw(0, 2); got != 2 {
		t.Errorf("StructuredToRaw(0, 2) = %d, want 2", got)
	}
}

func TestShift(t *testing.T) {
	s := Parse("[00:00:10]a[00:00:20]\n[00:00:30]b\nplain")
	before := s.Raw()
	ch := s.Shift(100)
	want := "[00:01:10]a[00:01:20]\n[00:01:30]b\nplain"
	if s.Raw() != want {
		t.Errorf("Raw() = %q, want %q", s.Raw(), want)
	}
	checkChange(t, before, s.Raw(), ch)

	s.Shift(-timecode.New(10, 0, 0))
	if want := "[00:00:00]a[00:00:00]\n[00:00:00]b\nplain"; s.Raw() != want {
		t.Errorf("Raw() = %q, want %q", s.Raw(), want)
	}

	if ch := Parse("plain").Shift(5); !ch.IsZero() {
		t.Errorf("Shift on untimed song = %+v, want zero", ch)
	}
}

func TestNormalize(t *testing.T) {
	s := Parse("x\n[00:00:00]Hel[00:00:50][00:00:50]lo")
	before := s.Raw()
	ch := s.Normalize()
	if want := "x\n[00:00:00]Hel[00:00:50]lo"; s.Raw() != want {
		t.Errorf("Raw() = %q, want %q", s.Raw(), want)
	}
	checkChange(t, before, s.Raw(), ch)
	if ch := s.Normalize(); !ch.IsZero() {
		t.Errorf("second Normalize() = %+v, want zero", ch)
	}
}
