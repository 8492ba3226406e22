package session

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/FocuswithJustin/soramimi/core/cas"
	"github.com/FocuswithJustin/soramimi/core/errors"
	"github.com/FocuswithJustin/soramimi/core/lyrics"
	"github.com/FocuswithJustin/soramimi/core/soramimi"
	"github.com/FocuswithJustin/soramimi/internal/store"
)

const (
	line0 = "[00:00:00]Hel[00:00:50]lo[00:01:00] world"
	saved = line0 + "\r\nsecond"
)

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) add(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) types() []EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []EventType
	for _, ev := range r.events {
		out = append(out, ev.Type)
	}
	return out
}

func newTestManager(t *testing.T, ttl time.Duration) (*Manager, *store.Memory, *recorder) {
	t.Helper()
	mem := store.NewMemory()
	if err := mem.Save(context.Background(), "song.txt", []byte(saved)); err != nil {
		t.Fatal(err)
	}
	m := NewManager(mem, ttl)
	rec := &recorder{}
	m.OnEvent(rec.add)
	return m, mem, rec
}

func TestOpenSharesSession(t *testing.T) {
	m, _, _ := newTestManager(t, time.Minute)
	ctx := context.Background()

	a, err := m.Open(ctx, "song.txt")
	if err != nil {
		t.Fatal(err)
	}
	b, err := m.Open(ctx, "./song.txt")
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Error("opening the same document twice created two sessions")
	}
	if got := a.Raw(); got != line0+"\nsecond" {
		t.Errorf("Raw() = %q", got)
	}
	if a.Dirty() {
		t.Error("fresh session is dirty")
	}
	if len(m.List()) != 1 {
		t.Errorf("List() = %v", m.List())
	}

	if _, err := m.Open(ctx, "../etc/passwd"); !errors.Is(err, errors.ErrInvalidInput) {
		t.Errorf("Open(traversal) error = %v", err)
	}
}

func TestOpenMissingDocumentIsEmpty(t *testing.T) {
	m, _, _ := newTestManager(t, time.Minute)
	s, err := m.Open(context.Background(), "new.txt")
	if err != nil {
		t.Fatal(err)
	}
	snap := s.Snapshot(true)
	if snap.Raw != "" || !snap.Editable || snap.Format != soramimi.FormatName {
		t.Errorf("Snapshot() = %+v", snap)
	}
	if snap.Revision != cas.RevisionString("") {
		t.Errorf("Revision = %q", snap.Revision)
	}
}

func TestApplyPublishesChange(t *testing.T) {
	m, _, rec := newTestManager(t, time.Minute)
	s, _ := m.Open(context.Background(), "song.txt")
	before := s.Revision()

	ev, err := s.Apply(Edit{Op: OpUpdate, Pos: len(line0), Replace: "!"})
	if err != nil {
		t.Fatal(err)
	}
	want := lyrics.LinesChanged{FirstLine: 0, LinesRemoved: 1, LinesInserted: 1, RawOffset: len(line0), NewRawLength: 1}
	if ev.Change == nil || *ev.Change != want {
		t.Fatalf("Change = %+v, want %+v", ev.Change, want)
	}
	if len(ev.Lines) != 1 || ev.Lines[0] != line0+"!" {
		t.Errorf("Lines = %q", ev.Lines)
	}
	if ev.Revision == before || ev.Revision != cas.RevisionString(s.Raw()) {
		t.Errorf("Revision not advanced: %q", ev.Revision)
	}
	if !s.Dirty() {
		t.Error("session should be dirty")
	}
	if got := rec.types(); len(got) != 1 || got[0] != EventChanged {
		t.Errorf("events = %v", got)
	}

	// A no-op edit publishes nothing.
	ev, err = s.Apply(Edit{Op: OpUpdate, Pos: 3})
	if err != nil || ev.Change != nil {
		t.Errorf("no-op Apply() = %+v, %v", ev, err)
	}
	if len(rec.types()) != 1 {
		t.Errorf("no-op edit was published")
	}
}

func TestApplyBaseRevision(t *testing.T) {
	m, _, _ := newTestManager(t, time.Minute)
	s, _ := m.Open(context.Background(), "song.txt")
	rev := s.Revision()

	if _, err := s.Apply(Edit{Op: OpUpdate, Pos: 0, Replace: "x", BaseRevision: rev}); err != nil {
		t.Fatalf("Apply(current base) = %v", err)
	}
	if _, err := s.Apply(Edit{Op: OpUpdate, Pos: 0, Replace: "y", BaseRevision: rev}); !errors.Is(err, ErrConflict) {
		t.Errorf("Apply(stale base) error = %v, want ErrConflict", err)
	}
	if _, err := s.Apply(Edit{Op: OpUpdate, Pos: 0, Replace: "y", BaseRevision: "nope"}); !errors.Is(err, errors.ErrInvalidInput) {
		t.Errorf("Apply(bad base) error = %v, want ErrInvalidInput", err)
	}
}

func TestSave(t *testing.T) {
	m, mem, rec := newTestManager(t, time.Minute)
	ctx := context.Background()
	s, _ := m.Open(ctx, "song.txt")
	if _, err := s.Apply(Edit{Op: OpSetText, Line: 1, Syllable: 0, Text: "ignored"}); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("SetSyllableText on untimed line error = %v", err)
	}
	if _, err := s.Apply(Edit{Op: OpUpdate, Pos: len(line0), Replace: "!"}); err != nil {
		t.Fatal(err)
	}

	ev, err := m.Save(ctx, s.ID)
	if err != nil {
		t.Fatalf("Save() = %v", err)
	}
	if ev.Type != EventSaved || ev.Revision != s.Revision() {
		t.Errorf("Save() event = %+v", ev)
	}
	if s.Dirty() {
		t.Error("session dirty after save")
	}
	data, _ := mem.Read(ctx, "song.txt")
	if string(data) != line0+"!\r\nsecond" {
		t.Errorf("stored = %q", data)
	}
	if got := rec.types(); len(got) != 2 || got[1] != EventSaved {
		t.Errorf("events = %v", got)
	}

	if _, err := m.Save(ctx, "unknown"); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("Save(unknown) error = %v", err)
	}
}

func TestReadOnlyDocument(t *testing.T) {
	data, err := os.ReadFile("../../core/vsqx/testdata/sample.vsqx")
	if err != nil {
		t.Fatal(err)
	}
	m, mem, rec := newTestManager(t, time.Minute)
	ctx := context.Background()
	mem.Save(ctx, "song.vsqx", data)

	s, err := m.Open(ctx, "song.vsqx")
	if err != nil {
		t.Fatal(err)
	}
	if snap := s.Snapshot(false); snap.Editable || snap.Format != "vsqx" {
		t.Fatalf("Snapshot() = %+v", snap)
	}
	if _, err := s.Apply(Edit{Op: OpUpdate, Replace: "x"}); !errors.Is(err, errors.ErrNotEditable) {
		t.Errorf("Apply() error = %v, want ErrNotEditable", err)
	}
	if _, err := s.Apply(Edit{Op: OpShift, Time: "1"}); !errors.Is(err, errors.ErrNotEditable) {
		t.Errorf("Apply(shift) error = %v, want ErrNotEditable", err)
	}
	if _, err := m.Save(ctx, s.ID); !errors.Is(err, errors.ErrNotEditable) {
		t.Errorf("Save() error = %v, want ErrNotEditable", err)
	}

	raw := s.Raw()
	ev, err := s.Convert()
	if err != nil {
		t.Fatal(err)
	}
	if ev.Type != EventConverted || ev.Change.LinesInserted != 2 {
		t.Errorf("Convert() = %+v", ev)
	}
	if s.Raw() != raw || !s.Dirty() {
		t.Errorf("converted Raw() = %q, dirty %v", s.Raw(), s.Dirty())
	}
	if _, err := s.Convert(); !errors.Is(err, errors.ErrInvalidInput) {
		t.Errorf("second Convert() error = %v", err)
	}
	if _, err := s.Apply(Edit{Op: OpNormalize}); err != nil {
		t.Errorf("Apply(normalize) after convert = %v", err)
	}
	if _, err := m.Save(ctx, s.ID); err != nil {
		t.Errorf("Save() after convert = %v", err)
	}
	if got := rec.types(); got[0] != EventConverted {
		t.Errorf("events = %v", got)
	}
}

func TestAt(t *testing.T) {
	m, _, _ := newTestManager(t, time.Minute)
	s, _ := m.Open(context.Background(), "song.txt")
	w, active, ok := s.At(60)
	if !ok || !active || w.Line != 0 || w.Syllable != 1 {
		t.Errorf("At(60) = %+v, %v, %v", w, active, ok)
	}
	if _, err := s.Apply(Edit{Op: OpShift, Time: "1"}); err != nil {
		t.Fatal(err)
	}
	w, _, _ = s.At(160)
	if w.Syllable != 1 {
		t.Errorf("At(160) after shift = %+v", w)
	}
}

func TestCloseAndSweep(t *testing.T) {
	m, mem, rec := newTestManager(t, 20*time.Millisecond)
	ctx := context.Background()

	a, _ := m.Open(ctx, "song.txt")
	if err := m.Close(a.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Get(a.ID); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("Get(closed) error = %v", err)
	}
	if err := m.Close(a.ID); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("Close(closed) error = %v", err)
	}

	b, _ := m.Open(ctx, "song.txt")
	if b.ID == a.ID {
		t.Error("reopened document reused a closed session")
	}
	if _, err := b.Apply(Edit{Op: OpUpdate, Pos: 0, Replace: "*"}); err != nil {
		t.Fatal(err)
	}
	time.Sleep(50 * time.Millisecond)
	if n := m.Sweep(ctx); n != 1 {
		t.Fatalf("Sweep() = %d, want 1", n)
	}
	data, _ := mem.Read(ctx, "song.txt")
	if string(data) != "*"+saved {
		t.Errorf("dirty session not saved on expiry: %q", data)
	}
	types := rec.types()
	if types[0] != EventClosed || types[len(types)-1] != EventClosed {
		t.Errorf("events = %v", types)
	}
}

func TestRunStopsWithContext(t *testing.T) {
	m, _, _ := newTestManager(t, time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx, time.Millisecond)
		close(done)
	}()
	m.Open(ctx, "song.txt")
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestShutdownSavesDirty(t *testing.T) {
	m, mem, _ := newTestManager(t, time.Minute)
	ctx := context.Background()
	s, err := m.Open(ctx, "song.txt")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.Open(ctx, "clean.txt"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Apply(Edit{Op: OpUpdate, Pos: 0, Replace: "*"}); err != nil {
		t.Fatal(err)
	}

	if n := m.Shutdown(ctx); n != 1 {
		t.Errorf("Shutdown() = %d, want 1", n)
	}
	if len(m.List()) != 0 {
		t.Errorf("List() after Shutdown = %v", m.List())
	}
	data, _ := mem.Read(ctx, "song.txt")
	if string(data) != "*"+saved {
		t.Errorf("stored = %q", data)
	}
	if _, err := mem.Read(ctx, "clean.txt"); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("clean session was saved: %v", err)
	}
}
