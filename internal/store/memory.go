package store

import (
	"context"
	"sort"
	"sync"

	"github.com/FocuswithJustin/soramimi/core/errors"
)

// Memory is a Store held in process memory.
type Memory struct {
	mu   sync.RWMutex
	docs map[string][]byte
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{docs: make(map[string][]byte)}
}

func (m *Memory) Backend() string { return "memory" }

func (m *Memory) Read(_ context.Context, name string) ([]byte, error) {
	name, err := documentName(name)
	if err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.docs[name]
	if !ok {
		return nil, errors.NewNotFound("document", name)
	}
	return append([]byte(nil), data...), nil
}

func (m *Memory) Save(_ context.Context, name string, data []byte) error {
	name, err := documentName(name)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[name] = append([]byte(nil), data...)
	return nil
}

func (m *Memory) List(context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.docs))
	for name := range m.docs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (m *Memory) Delete(_ context.Context, name string) error {
	name, err := documentName(name)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[name]; !ok {
		return errors.NewNotFound("document", name)
	}
	delete(m.docs, name)
	return nil
}

func (m *Memory) Close() error { return nil }
