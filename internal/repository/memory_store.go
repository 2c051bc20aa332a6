package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/ajharbinger/dealflow-engine/internal/errors"
)

type memTable struct {
	keys []string
	rows map[string][]byte
}

// MemoryStore is an in-process Store used in development and tests
type MemoryStore struct {
	mu     sync.RWMutex
	tables map[string]*memTable
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tables: make(map[string]*memTable)}
}

func (s *MemoryStore) table(name string) *memTable {
	t, ok := s.tables[name]
	if !ok {
		t = &memTable{rows: make(map[string][]byte)}
		s.tables[name] = t
	}
	return t
}

// Save appends a record; duplicate keys are rejected
func (s *MemoryStore) Save(ctx context.Context, table, key string, record interface{}) error {
	data, err := json.Marshal(record)
	if err != nil {
		return errors.InternalError("failed to encode record", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.table(table)
	if _, exists := t.rows[key]; exists {
		return errors.Conflict(fmt.Sprintf("%s record %s already exists", table, key), nil)
	}
	t.keys = append(t.keys, key)
	t.rows[key] = data
	return nil
}

// Update writes a record, creating it when absent
func (s *MemoryStore) Update(ctx context.Context, table, key string, record interface{}) error {
	data, err := json.Marshal(record)
	if err != nil {
		return errors.InternalError("failed to encode record", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.table(table)
	if _, exists := t.rows[key]; !exists {
		t.keys = append(t.keys, key)
	}
	t.rows[key] = data
	return nil
}

// Get decodes the record under key into dest
func (s *MemoryStore) Get(ctx context.Context, table, key string, dest interface{}) error {
	s.mu.RLock()
	var data []byte
	if t, ok := s.tables[table]; ok {
		data = t.rows[key]
	}
	s.mu.RUnlock()

	if data == nil {
		return errors.NotFound(fmt.Sprintf("%s record %s not found", table, key), nil)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return errors.InternalError("failed to decode record", err)
	}
	return nil
}

// List returns copies of every record in insertion order
func (s *MemoryStore) List(ctx context.Context, table string) ([][]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tables[table]
	if !ok {
		return nil, nil
	}
	out := make([][]byte, 0, len(t.keys))
	for _, k := range t.keys {
		row := make([]byte, len(t.rows[k]))
		copy(row, t.rows[k])
		out = append(out, row)
	}
	return out, nil
}
