// Package store defines the wide-column Store adapter contract — insert,
// get, get_slice, add (counter increment), remove, remove_counter — plus
// the coalescing write buffers that collapse duplicate writes within a
// single write fan-out before they reach the transport. Two concrete
// backings exist: a Redis-based one (redis_store.go) and an in-memory one
// for tests (memory_store.go).
package store

import (
	"context"
	"sort"

	"github.com/wehriam/hiitrack/internal/apierrors"
)

// Family names the column families: user, relation, and (implicitly)
// counter. Counter increments always target the counter family implicitly
// (Add/GetCounterSlice), so Family is only needed for
// Insert/Get/GetSlice/Remove.
type Family int

const (
	FamilyRelation Family = iota
	FamilyUser
)

// Column is a relation-family (name, value) pair.
type Column struct {
	Name  []byte
	Value []byte
}

// CounterColumn is a counter-family (name, value) pair.
type CounterColumn struct {
	Name  []byte
	Value int64
}

// Store is the contract the engine uses to reach the wide-column store.
// Every method takes a context so per-call timeouts can be enforced by the
// caller or the concrete implementation.
type Store interface {
	Insert(ctx context.Context, family Family, rowKey, colName, value []byte) error
	Get(ctx context.Context, family Family, rowKey, colName []byte) ([]byte, bool, error)
	GetSlice(ctx context.Context, family Family, rowKey, start, finish []byte, count int) ([]Column, error)

	Add(ctx context.Context, rowKey, colName []byte, delta int64) error
	GetCounter(ctx context.Context, rowKey, colName []byte) (int64, bool, error)
	GetCounterSlice(ctx context.Context, rowKey, start, finish []byte, count int) ([]CounterColumn, error)

	Remove(ctx context.Context, family Family, rowKey, colName []byte) error
	RemoveCounter(ctx context.Context, rowKey, colName []byte) error

	// RemoveRowsWithPrefix deletes every relation and counter row whose
	// row-key begins with prefix; bucket destruction is a pair of these
	// sweeps.
	RemoveRowsWithPrefix(ctx context.Context, prefix []byte) error
}

// MaxSliceCount is the store contract's upper bound on a single slice read.
const MaxSliceCount = 10000

func sortColumns(cols []Column) {
	sort.Slice(cols, func(i, j int) bool {
		return string(cols[i].Name) < string(cols[j].Name)
	})
}

func sortCounterColumns(cols []CounterColumn) {
	sort.Slice(cols, func(i, j int) bool {
		return string(cols[i].Name) < string(cols[j].Name)
	})
}

// bufKey identifies a single (row-key, column-name) address for
// deduplication purposes inside one fan-out's coalescing buffer.
type bufKey struct{ row, col string }

// RelationBuffer coalesces relation-family writes within one write fan-out.
// Duplicate writes to the same address collapse to the last one — relation
// writes in this engine are idempotent descriptor/catalog writes, so the
// last write is equivalent to any other.
type RelationBuffer struct {
	family Family
	order  []bufKey
	values map[bufKey][]byte
	rows   map[bufKey][]byte
	cols   map[bufKey][]byte
}

func NewRelationBuffer(family Family) *RelationBuffer {
	return &RelationBuffer{
		family: family,
		values: make(map[bufKey][]byte),
		rows:   make(map[bufKey][]byte),
		cols:   make(map[bufKey][]byte),
	}
}

func (b *RelationBuffer) Add(rowKey, colName, value []byte) {
	k := bufKey{string(rowKey), string(colName)}
	if _, exists := b.values[k]; !exists {
		b.order = append(b.order, k)
		b.rows[k] = rowKey
		b.cols[k] = colName
	}
	b.values[k] = value
}

// Flush dispatches every buffered write and clears the buffer.
func (b *RelationBuffer) Flush(ctx context.Context, s Store) error {
	for _, k := range b.order {
		if err := s.Insert(ctx, b.family, b.rows[k], b.cols[k], b.values[k]); err != nil {
			return apierrors.TransientStore("relation buffer flush failed", err)
		}
	}
	b.order = nil
	b.values = make(map[bufKey][]byte)
	b.rows = make(map[bufKey][]byte)
	b.cols = make(map[bufKey][]byte)
	return nil
}

// CounterBuffer coalesces counter increments within one write fan-out:
// multiple logical +1s against the same (row-key, column-name) collapse
// into a single summed increment before dispatch.
type CounterBuffer struct {
	order  []bufKey
	deltas map[bufKey]int64
	rows   map[bufKey][]byte
	cols   map[bufKey][]byte
}

func NewCounterBuffer() *CounterBuffer {
	return &CounterBuffer{
		deltas: make(map[bufKey]int64),
		rows:   make(map[bufKey][]byte),
		cols:   make(map[bufKey][]byte),
	}
}

func (b *CounterBuffer) Add(rowKey, colName []byte, delta int64) {
	k := bufKey{string(rowKey), string(colName)}
	if _, exists := b.deltas[k]; !exists {
		b.order = append(b.order, k)
		b.rows[k] = rowKey
		b.cols[k] = colName
	}
	b.deltas[k] += delta
}

// Flush dispatches every buffered increment and clears the buffer.
func (b *CounterBuffer) Flush(ctx context.Context, s Store) error {
	for _, k := range b.order {
		if err := s.Add(ctx, b.rows[k], b.cols[k], b.deltas[k]); err != nil {
			return apierrors.TransientStore("counter buffer flush failed", err)
		}
	}
	b.order = nil
	b.deltas = make(map[bufKey]int64)
	b.rows = make(map[bufKey][]byte)
	b.cols = make(map[bufKey][]byte)
	return nil
}
