package store

import (
	"context"
	"time"
)

// CallTracker receives one observation per Store call; satisfied by
// observability.Metrics.
type CallTracker interface {
	TrackStoreCall(op string, latencyMs float64, err error)
}

// InstrumentedStore wraps a Store and reports every call's operation name,
// latency, and outcome to a CallTracker.
type InstrumentedStore struct {
	next    Store
	tracker CallTracker
}

func NewInstrumentedStore(next Store, tracker CallTracker) *InstrumentedStore {
	return &InstrumentedStore{next: next, tracker: tracker}
}

func (s *InstrumentedStore) track(op string, start time.Time, err error) {
	s.tracker.TrackStoreCall(op, float64(time.Since(start).Milliseconds()), err)
}

func (s *InstrumentedStore) Insert(ctx context.Context, family Family, rowKey, colName, value []byte) error {
	start := time.Now()
	err := s.next.Insert(ctx, family, rowKey, colName, value)
	s.track("insert", start, err)
	return err
}

func (s *InstrumentedStore) Get(ctx context.Context, family Family, rowKey, colName []byte) ([]byte, bool, error) {
	start := time.Now()
	v, ok, err := s.next.Get(ctx, family, rowKey, colName)
	s.track("get", start, err)
	return v, ok, err
}

func (s *InstrumentedStore) GetSlice(ctx context.Context, family Family, rowKey, start, finish []byte, count int) ([]Column, error) {
	began := time.Now()
	cols, err := s.next.GetSlice(ctx, family, rowKey, start, finish, count)
	s.track("get_slice", began, err)
	return cols, err
}

func (s *InstrumentedStore) Add(ctx context.Context, rowKey, colName []byte, delta int64) error {
	start := time.Now()
	err := s.next.Add(ctx, rowKey, colName, delta)
	s.track("add", start, err)
	return err
}

func (s *InstrumentedStore) GetCounter(ctx context.Context, rowKey, colName []byte) (int64, bool, error) {
	start := time.Now()
	v, ok, err := s.next.GetCounter(ctx, rowKey, colName)
	s.track("get_counter", start, err)
	return v, ok, err
}

func (s *InstrumentedStore) GetCounterSlice(ctx context.Context, rowKey, start, finish []byte, count int) ([]CounterColumn, error) {
	began := time.Now()
	cols, err := s.next.GetCounterSlice(ctx, rowKey, start, finish, count)
	s.track("get_counter_slice", began, err)
	return cols, err
}

func (s *InstrumentedStore) Remove(ctx context.Context, family Family, rowKey, colName []byte) error {
	start := time.Now()
	err := s.next.Remove(ctx, family, rowKey, colName)
	s.track("remove", start, err)
	return err
}

func (s *InstrumentedStore) RemoveCounter(ctx context.Context, rowKey, colName []byte) error {
	start := time.Now()
	err := s.next.RemoveCounter(ctx, rowKey, colName)
	s.track("remove_counter", start, err)
	return err
}

func (s *InstrumentedStore) RemoveRowsWithPrefix(ctx context.Context, prefix []byte) error {
	start := time.Now()
	err := s.next.RemoveRowsWithPrefix(ctx, prefix)
	s.track("remove_rows_with_prefix", start, err)
	return err
}
