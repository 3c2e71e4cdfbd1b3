package store

import (
	"bytes"
	"context"
	"sync"
)

// MemoryStore is an in-process Store used by unit and integration tests; it
// implements the identical contract the Redis-backed store does, so the
// engine and its tests never depend on a running Redis instance.
type MemoryStore struct {
	mu       sync.Mutex
	relation map[string]map[string][]byte
	user     map[string]map[string][]byte
	counter  map[string]map[string]int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		relation: make(map[string]map[string][]byte),
		user:     make(map[string]map[string][]byte),
		counter:  make(map[string]map[string]int64),
	}
}

func (m *MemoryStore) familyMap(family Family) map[string]map[string][]byte {
	if family == FamilyUser {
		return m.user
	}
	return m.relation
}

func (m *MemoryStore) Insert(_ context.Context, family Family, rowKey, colName, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	fam := m.familyMap(family)
	row := string(rowKey)
	if fam[row] == nil {
		fam[row] = make(map[string][]byte)
	}
	v := make([]byte, len(value))
	copy(v, value)
	fam[row][string(colName)] = v
	return nil
}

func (m *MemoryStore) Get(_ context.Context, family Family, rowKey, colName []byte) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fam := m.familyMap(family)
	row, ok := fam[string(rowKey)]
	if !ok {
		return nil, false, nil
	}
	v, ok := row[string(colName)]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

func (m *MemoryStore) GetSlice(_ context.Context, family Family, rowKey, start, finish []byte, count int) ([]Column, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fam := m.familyMap(family)
	row, ok := fam[string(rowKey)]
	if !ok {
		return nil, nil
	}
	var out []Column
	for name, value := range row {
		if start != nil && bytes.Compare([]byte(name), start) < 0 {
			continue
		}
		if finish != nil && bytes.Compare([]byte(name), finish) > 0 {
			continue
		}
		out = append(out, Column{Name: []byte(name), Value: value})
	}
	sortColumns(out)
	if count > 0 && len(out) > count {
		out = out[:count]
	}
	return out, nil
}

func (m *MemoryStore) Add(_ context.Context, rowKey, colName []byte, delta int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row := string(rowKey)
	if m.counter[row] == nil {
		m.counter[row] = make(map[string]int64)
	}
	m.counter[row][string(colName)] += delta
	return nil
}

func (m *MemoryStore) GetCounter(_ context.Context, rowKey, colName []byte) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.counter[string(rowKey)]
	if !ok {
		return 0, false, nil
	}
	v, ok := row[string(colName)]
	return v, ok, nil
}

func (m *MemoryStore) GetCounterSlice(_ context.Context, rowKey, start, finish []byte, count int) ([]CounterColumn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.counter[string(rowKey)]
	if !ok {
		return nil, nil
	}
	var out []CounterColumn
	for name, value := range row {
		if start != nil && bytes.Compare([]byte(name), start) < 0 {
			continue
		}
		if finish != nil && bytes.Compare([]byte(name), finish) > 0 {
			continue
		}
		out = append(out, CounterColumn{Name: []byte(name), Value: value})
	}
	sortCounterColumns(out)
	if count > 0 && len(out) > count {
		out = out[:count]
	}
	return out, nil
}

func (m *MemoryStore) Remove(_ context.Context, family Family, rowKey, colName []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	fam := m.familyMap(family)
	row, ok := fam[string(rowKey)]
	if !ok {
		return nil
	}
	delete(row, string(colName))
	return nil
}

func (m *MemoryStore) RemoveCounter(_ context.Context, rowKey, colName []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.counter[string(rowKey)]
	if !ok {
		return nil
	}
	delete(row, string(colName))
	return nil
}

func (m *MemoryStore) RemoveRowsWithPrefix(_ context.Context, prefix []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for row := range m.relation {
		if bytes.HasPrefix([]byte(row), prefix) {
			delete(m.relation, row)
		}
	}
	for row := range m.counter {
		if bytes.HasPrefix([]byte(row), prefix) {
			delete(m.counter, row)
		}
	}
	return nil
}
