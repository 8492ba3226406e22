// Package session serializes edits to shared documents. Each open document
// has one Session; every edit runs under the session lock, advances the
// document revision and is published as an Event.
package session

import (
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"github.com/FocuswithJustin/soramimi/core/cas"
	"github.com/FocuswithJustin/soramimi/core/document"
	"github.com/FocuswithJustin/soramimi/core/errors"
	"github.com/FocuswithJustin/soramimi/core/lyrics"
	"github.com/FocuswithJustin/soramimi/core/timecode"
	"github.com/FocuswithJustin/soramimi/core/timing"
	"github.com/FocuswithJustin/soramimi/internal/logging"
)

// ErrConflict is returned when an edit names a base revision that is no
// longer current.
var ErrConflict = stderrors.New("revision conflict")

// ErrSaveFailed is returned when the store rejects a save. The store error
// itself is logged at the storage boundary.
var ErrSaveFailed = stderrors.New("document could not be saved")

// EventType classifies an Event.
type EventType string

const (
	EventChanged   EventType = "changed"
	EventSaved     EventType = "saved"
	EventConverted EventType = "converted"
	EventClosed    EventType = "closed"
)

// Event reports a change to a session. For EventChanged, Lines holds the
// raw text of the inserted lines so subscribers can patch their copy.
type Event struct {
	Type     EventType            `json:"type"`
	Session  string               `json:"session"`
	Document string               `json:"document"`
	Revision string               `json:"revision"`
	Op       Op                   `json:"op,omitempty"`
	Change   *lyrics.LinesChanged `json:"change,omitempty"`
	Lines    []string             `json:"lines,omitempty"`
}

// Session is one open document.
type Session struct {
	ID       string
	Name     string
	Opened   time.Time
	mu       sync.Mutex
	doc      *document.Document
	timeline *timing.Timeline
	revision string
	saved    string
	publish  func(Event)
}

func newSession(id, name string, doc *document.Document, publish func(Event)) *Session {
	rev := cas.RevisionString(doc.Song.Raw())
	return &Session{
		ID:       id,
		Name:     name,
		Opened:   time.Now().UTC(),
		doc:      doc,
		timeline: timing.New(doc.Song),
		revision: rev,
		saved:    rev,
		publish:  publish,
	}
}

// Apply runs e and publishes the resulting change. Edits that change
// nothing return a zero Change and publish nothing.
func (s *Session) Apply(e Edit) (Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e.BaseRevision != "" {
		ok, err := cas.Match(s.doc.Song.Raw(), e.BaseRevision)
		if err != nil {
			return Event{}, &errors.ValidationError{Field: "base_revision", Value: e.BaseRevision, Message: err.Error(), Err: errors.ErrInvalidInput}
		}
		if !ok {
			return Event{}, fmt.Errorf("%w: base %s, current %s", ErrConflict, cas.Short(e.BaseRevision, 12), cas.Short(s.revision, 12))
		}
	}

	ch, err := e.Apply(s.doc.Song)
	if err != nil {
		return Event{}, err
	}
	ev := Event{Type: EventChanged, Session: s.ID, Document: s.Name, Op: e.Op, Revision: s.revision}
	if ch.IsZero() {
		return ev, nil
	}

	s.timeline.Apply(s.doc.Song, ch)
	s.revision = cas.RevisionString(s.doc.Song.Raw())
	ev.Revision = s.revision
	ev.Change = &ch
	ev.Lines = s.rawLines(ch.FirstLine, ch.LinesInserted)

	logging.EditApplied(s.ID, string(e.Op), ch.FirstLine, ch.LinesRemoved, ch.LinesInserted, "revision", cas.Short(s.revision, 12))
	s.emit(ev)
	return ev, nil
}

// Convert turns a read-only document into an editable one in place.
func (s *Session) Convert() (Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.doc.Kind == document.KindSoramimi {
		return Event{}, errors.NewValidation("document", "already editable")
	}
	old := s.doc.Song.LineCount()
	s.doc = document.ToEditable(s.doc)
	s.timeline.Rebuild(s.doc.Song)
	s.revision = cas.RevisionString(s.doc.Song.Raw())
	// The editable text has never been written anywhere.
	s.saved = ""

	// The text is unchanged but every line object is new.
	n := len(s.doc.Song.Raw())
	ch := lyrics.LinesChanged{LinesRemoved: old, LinesInserted: s.doc.Song.LineCount(), OldRawLength: n, NewRawLength: n}
	ev := Event{Type: EventConverted, Session: s.ID, Document: s.Name, Revision: s.revision, Change: &ch,
		Lines: s.rawLines(0, ch.LinesInserted)}
	s.emit(ev)
	return ev, nil
}

func (s *Session) rawLines(first, n int) []string {
	out := make([]string, 0, n)
	for i := first; i < first+n; i++ {
		if l, ok := s.doc.Song.Line(i); ok {
			out = append(out, l.Raw())
		}
	}
	return out
}

// emit MUST be called with the lock held so events keep edit order.
func (s *Session) emit(ev Event) {
	if s.publish != nil {
		s.publish(ev)
	}
}

// Revision returns the current revision.
func (s *Session) Revision() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.revision
}

// Dirty reports whether the document changed since it was loaded or saved.
func (s *Session) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.revision != s.saved
}

// Raw returns the document text.
func (s *Session) Raw() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.Song.Raw()
}

// At reports the syllable being sung at t.
func (s *Session) At(t timecode.Timecode) (timing.Window, bool, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timeline.At(t)
}

// encode renders the document for storage and returns the revision it
// corresponds to.
func (s *Session) encode() ([]byte, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.doc.Song.Editable() {
		return nil, "", errors.NewNotEditable("Save", s.doc.Kind.String())
	}
	data, err := s.doc.Bytes()
	return data, s.revision, err
}

func (s *Session) markSaved(rev string) Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = rev
	ev := Event{Type: EventSaved, Session: s.ID, Document: s.Name, Revision: rev}
	s.emit(ev)
	return ev
}

// SyllableView is the JSON form of a syllable.
type SyllableView struct {
	Text  string `json:"text"`
	Start string `json:"start"`
	End   string `json:"end"`
}

// LineView is the JSON form of a line.
type LineView struct {
	Raw       string         `json:"raw"`
	Prefix    string         `json:"prefix,omitempty"`
	Syllables []SyllableView `json:"syllables"`
}

// Snapshot is a consistent copy of the session state.
type Snapshot struct {
	ID       string     `json:"id"`
	Document string     `json:"document"`
	Format   string     `json:"format"`
	Editable bool       `json:"editable"`
	Revision string     `json:"revision"`
	Dirty    bool       `json:"dirty"`
	Opened   time.Time  `json:"opened"`
	Raw      string     `json:"raw,omitempty"`
	Lines    []LineView `json:"lines,omitempty"`
}

// Snapshot copies the session state. With full unset only the summary
// fields are filled.
func (s *Session) Snapshot(full bool) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		ID:       s.ID,
		Document: s.Name,
		Format:   s.doc.Song.Format(),
		Editable: s.doc.Song.Editable(),
		Revision: s.revision,
		Dirty:    s.revision != s.saved,
		Opened:   s.Opened,
	}
	if !full {
		return snap
	}
	snap.Raw = s.doc.Song.Raw()
	for _, l := range s.doc.Song.Lines() {
		lv := LineView{Raw: l.Raw(), Prefix: l.Prefix(), Syllables: []SyllableView{}}
		for _, syl := range l.Syllables() {
			lv.Syllables = append(lv.Syllables, SyllableView{
				Text:  syl.Text(),
				Start: syl.Start().String(),
				End:   syl.End().String(),
			})
		}
		snap.Lines = append(snap.Lines, lv)
	}
	return snap
}
