package session

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/FocuswithJustin/soramimi/core/document"
	"github.com/FocuswithJustin/soramimi/core/errors"
	"github.com/FocuswithJustin/soramimi/internal/cache"
	"github.com/FocuswithJustin/soramimi/internal/logging"
	"github.com/FocuswithJustin/soramimi/internal/store"
	"github.com/FocuswithJustin/soramimi/internal/validation"
)

// newSessionID is replaceable in tests.
var newSessionID = uuid.NewString

// Manager owns the open sessions. Opening a document that already has a
// live session returns that session, so all editors of one document share
// its lock.
type Manager struct {
	store    store.Store
	sessions *cache.TTLCache[string, *Session]

	mu      sync.Mutex
	byName  map[string]string
	publish func(Event)
}

// NewManager returns a manager that loads from and saves to st. Sessions
// idle for longer than ttl are closed by Sweep; ttl <= 0 keeps them.
func NewManager(st store.Store, ttl time.Duration) *Manager {
	return &Manager{
		store:    st,
		sessions: cache.New[string, *Session](ttl),
		byName:   make(map[string]string),
	}
}

// OnEvent sets the function receiving every session event. It is called
// with the session lock held and must not call back into the session.
func (m *Manager) OnEvent(fn func(Event)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publish = fn
}

func (m *Manager) emit(ev Event) {
	m.mu.Lock()
	fn := m.publish
	m.mu.Unlock()
	if fn != nil {
		fn(ev)
	}
}

// Open returns the session for document name, loading it if needed. A
// document the store cannot provide opens empty.
func (m *Manager) Open(ctx context.Context, name string) (*Session, error) {
	name, err := validation.DocumentName(name)
	if err != nil {
		return nil, &errors.ValidationError{Field: "document", Value: name, Message: err.Error(), Err: errors.ErrInvalidInput}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if id, ok := m.byName[name]; ok {
		if s, ok := m.sessions.Get(id); ok {
			return s, nil
		}
		delete(m.byName, name)
	}

	doc := document.New()
	if data := store.ReadLyricsFile(ctx, m.store, name); data != nil {
		doc, err = document.Load(data, document.Options{})
		if err != nil {
			return nil, errors.Wrap(err, "open "+name)
		}
	}

	s := newSession(newSessionID(), name, doc, m.emit)
	m.sessions.Set(s.ID, s)
	m.byName[name] = s.ID
	logging.DocumentLoaded(name, doc.Kind.String(), doc.Song.LineCount())
	logging.SessionEvent("opened", s.ID, name)
	return s, nil
}

// Get returns a live session and refreshes its idle timer.
func (m *Manager) Get(id string) (*Session, error) {
	s, ok := m.sessions.Get(id)
	if !ok {
		return nil, errors.NewNotFound("session", id)
	}
	return s, nil
}

// Save writes the session's document back to the store.
func (m *Manager) Save(ctx context.Context, id string) (Event, error) {
	s, err := m.Get(id)
	if err != nil {
		return Event{}, err
	}
	return m.save(ctx, s)
}

func (m *Manager) save(ctx context.Context, s *Session) (Event, error) {
	data, rev, err := s.encode()
	if err != nil {
		return Event{}, err
	}
	if !store.SaveLyricsFile(ctx, m.store, s.Name, data) {
		return Event{}, errors.NewIO("save", s.Name, ErrSaveFailed)
	}
	logging.SessionEvent("saved", s.ID, s.Name, "bytes", len(data))
	return s.markSaved(rev), nil
}

// Close ends a session without saving.
func (m *Manager) Close(id string) error {
	s, ok := m.sessions.Delete(id)
	if !ok {
		return errors.NewNotFound("session", id)
	}
	m.forget(s)
	logging.SessionEvent("closed", s.ID, s.Name, "dirty", s.Dirty())
	m.emit(Event{Type: EventClosed, Session: s.ID, Document: s.Name, Revision: s.Revision()})
	return nil
}

func (m *Manager) forget(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.byName[s.Name] == s.ID {
		delete(m.byName, s.Name)
	}
}

// List returns summaries of the live sessions ordered by document name.
func (m *Manager) List() []Snapshot {
	all := m.sessions.GetAll()
	out := make([]Snapshot, 0, len(all))
	for _, s := range all {
		out = append(out, s.Snapshot(false))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Document < out[j].Document })
	return out
}

// Sweep closes idle sessions. Editable sessions with unsaved changes are
// saved first. It returns the number of sessions closed.
func (m *Manager) Sweep(ctx context.Context) int {
	expired := m.sessions.Sweep()
	for _, s := range expired {
		m.forget(s)
		if s.Dirty() && s.Snapshot(false).Editable {
			if _, err := m.save(ctx, s); err != nil {
				logging.Warn("unsaved changes discarded", "session", s.ID, "document", s.Name, "error", err)
			}
		}
		logging.SessionEvent("expired", s.ID, s.Name)
		m.emit(Event{Type: EventClosed, Session: s.ID, Document: s.Name, Revision: s.Revision()})
	}
	return len(expired)
}

// Run sweeps every interval until ctx is done.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			m.Shutdown(context.WithoutCancel(ctx))
			return
		case <-ticker.C:
			m.Sweep(ctx)
		}
	}
}

// Shutdown saves every editable session with unsaved changes and drops all
// sessions. It returns the number of sessions saved.
func (m *Manager) Shutdown(ctx context.Context) int {
	saved := 0
	for _, s := range m.sessions.GetAll() {
		if !s.Dirty() || !s.Snapshot(false).Editable {
			continue
		}
		if _, err := m.save(ctx, s); err != nil {
			logging.Warn("unsaved changes discarded", "session", s.ID, "document", s.Name, "error", err)
			continue
		}
		saved++
	}
	m.sessions.Invalidate()
	m.mu.Lock()
	m.byName = make(map[string]string)
	m.mu.Unlock()
	return saved
}
