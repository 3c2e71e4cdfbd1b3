package fanout

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/wehriam/hiitrack/internal/bucketindex"
	"github.com/wehriam/hiitrack/internal/hashid"
	"github.com/wehriam/hiitrack/internal/keyschema"
	"github.com/wehriam/hiitrack/internal/store"
	"github.com/wehriam/hiitrack/internal/timebucket"
	"github.com/wehriam/hiitrack/internal/visitorstate"
)

func newFanOut(s store.Store) *FanOut {
	idx := bucketindex.New(s)
	vs := visitorstate.New(s)
	return New(s, idx, vs, zerolog.New(io.Discard))
}

// After N event POSTs by M distinct visitors, total >= unique_total and
// unique_total == M.
func TestRecordEventUniquenessLaw(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	fo := newFanOut(s)
	bucketID := hashid.HashStrings("alice", "b")

	v1 := hashid.HashStrings("v1")
	v2 := hashid.HashStrings("v2")

	for _, v := range []hashid.ID{v1, v1, v2} {
		if err := fo.RecordEvent(ctx, bucketID, v, "A"); err != nil {
			t.Fatalf("record event: %v", err)
		}
	}

	eventID := keyschema.EventID(bucketID, "A")
	total, _, err := s.GetCounter(ctx, keyschema.EventRow(bucketID), keyschema.EventTotalColumn(eventID))
	if err != nil {
		t.Fatalf("get total: %v", err)
	}
	unique, _, err := s.GetCounter(ctx, keyschema.EventRow(bucketID), keyschema.EventUniqueTotalColumn(eventID))
	if err != nil {
		t.Fatalf("get unique total: %v", err)
	}
	if total != 3 {
		t.Fatalf("expected total=3, got %d", total)
	}
	if unique != 2 {
		t.Fatalf("expected unique_total=2 (distinct visitors), got %d", unique)
	}
	if unique > total {
		t.Fatalf("uniqueness law violated: unique_total %d > total %d", unique, total)
	}
}

// The same visitor posting the same event twice increments total but never
// the unique total a second time.
func TestRecordEventSameVisitorTwiceDoesNotDoubleCountUnique(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	fo := newFanOut(s)
	bucketID := hashid.HashStrings("alice", "b")
	v1 := hashid.HashStrings("v1")

	if err := fo.RecordEvent(ctx, bucketID, v1, "A"); err != nil {
		t.Fatalf("record event: %v", err)
	}
	if err := fo.RecordEvent(ctx, bucketID, v1, "A"); err != nil {
		t.Fatalf("record event: %v", err)
	}

	eventID := keyschema.EventID(bucketID, "A")
	unique, _, err := s.GetCounter(ctx, keyschema.EventRow(bucketID), keyschema.EventUniqueTotalColumn(eventID))
	if err != nil {
		t.Fatalf("get unique total: %v", err)
	}
	if unique != 1 {
		t.Fatalf("expected unique_total=1 for a single repeat visitor, got %d", unique)
	}
}

// First event for a visitor has no prior event and so writes no path edge.
func TestRecordEventFirstEventHasNoPathEdge(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	fo := newFanOut(s)
	bucketID := hashid.HashStrings("alice", "b")
	v1 := hashid.HashStrings("v1")

	if err := fo.RecordEvent(ctx, bucketID, v1, "A"); err != nil {
		t.Fatalf("record event: %v", err)
	}

	eventID := keyschema.EventID(bucketID, "A")
	high := append(append([]byte{}, eventID.Bytes()...), hashid.HighID[:]...)
	cols, err := s.GetCounterSlice(ctx, keyschema.EventRow(bucketID), eventID.Bytes(), high, store.MaxSliceCount)
	if err != nil {
		t.Fatalf("slice: %v", err)
	}
	// The slice also holds the event's total (16-byte) and unique-total
	// (17-byte) columns; path and unique-path columns are 32 and 33 bytes.
	paths := 0
	for _, c := range cols {
		if len(c.Name) == 32 || len(c.Name) == 33 {
			paths++
		}
	}
	if paths != 0 {
		t.Fatalf("expected no path columns for a visitor's first event, got %d", paths)
	}
}

// A second event from the same visitor writes a path edge back to the prior
// event.
func TestRecordEventSecondEventWritesPathEdge(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	fo := newFanOut(s)
	bucketID := hashid.HashStrings("alice", "b")
	v1 := hashid.HashStrings("v1")

	if err := fo.RecordEvent(ctx, bucketID, v1, "A"); err != nil {
		t.Fatalf("record event A: %v", err)
	}
	if err := fo.RecordEvent(ctx, bucketID, v1, "B"); err != nil {
		t.Fatalf("record event B: %v", err)
	}

	eventA := keyschema.EventID(bucketID, "A")
	eventB := keyschema.EventID(bucketID, "B")
	col := keyschema.EventPathColumn(eventB, eventA)
	count, ok, err := s.GetCounter(ctx, keyschema.EventRow(bucketID), col)
	if err != nil {
		t.Fatalf("get path counter: %v", err)
	}
	if !ok || count != 1 {
		t.Fatalf("expected path[A]=1 for B's prior event, got count=%d ok=%v", count, ok)
	}
}

// Property values set before an event are reflected as per-property counters
// keyed by that event.
func TestRecordPropertyThenEventWritesPerPropertyCounter(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	fo := newFanOut(s)
	bucketID := hashid.HashStrings("alice", "b")
	v1 := hashid.HashStrings("v1")

	if err := fo.RecordProperty(ctx, bucketID, v1, "color", []byte(`"red"`)); err != nil {
		t.Fatalf("record property: %v", err)
	}
	if err := fo.RecordEvent(ctx, bucketID, v1, "A"); err != nil {
		t.Fatalf("record event: %v", err)
	}

	propertyID := keyschema.PropertyID(bucketID, "color")
	valueID := keyschema.ValueID(bucketID, "color", []byte(`"red"`))
	eventID := keyschema.EventID(bucketID, "A")

	count, ok, err := s.GetCounter(ctx, keyschema.PropertyCountersRow(bucketID, propertyID), keyschema.EventValueTotalColumn(eventID, valueID))
	if err != nil {
		t.Fatalf("get property counter: %v", err)
	}
	if !ok || count != 1 {
		t.Fatalf("expected totals[red]=1, got count=%d ok=%v", count, ok)
	}
}

// Events are also written into the configured timed granularities.
func TestRecordEventWritesTimedCounters(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	fo := newFanOut(s).WithClock(func() time.Time {
		return time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	})
	bucketID := hashid.HashStrings("alice", "b")
	v1 := hashid.HashStrings("v1")

	if err := fo.RecordEvent(ctx, bucketID, v1, "A"); err != nil {
		t.Fatalf("record event: %v", err)
	}

	eventID := keyschema.EventID(bucketID, "A")
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC).Unix()
	for _, g := range timebucket.All {
		bucket := timebucket.Bucket(g, now)
		count, ok, err := s.GetCounter(ctx, keyschema.TimedRow(bucketID, g), keyschema.TimedColumn(eventID, bucket))
		if err != nil {
			t.Fatalf("get timed counter: %v", err)
		}
		if !ok || count != 1 {
			t.Fatalf("expected a timed counter of 1 for granularity %v, got count=%d ok=%v", g, count, ok)
		}
	}
}
