// Package fanout implements the write fan-out: on property and event
// submission it computes and emits the full set of counter increments and
// index writes needed to answer every supported query without scan-time
// joins. This is the engine's hot path.
package fanout

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/wehriam/hiitrack/internal/apierrors"
	"github.com/wehriam/hiitrack/internal/bucketindex"
	"github.com/wehriam/hiitrack/internal/hashid"
	"github.com/wehriam/hiitrack/internal/keyschema"
	"github.com/wehriam/hiitrack/internal/store"
	"github.com/wehriam/hiitrack/internal/timebucket"
	"github.com/wehriam/hiitrack/internal/visitorstate"
)

// Clock lets tests supply a fixed "now" instead of time.Now.
type Clock func() time.Time

// FanOut wires the Store adapter, the bucket index, and visitor state
// together to implement the property and event submission paths.
type FanOut struct {
	store   store.Store
	index   *bucketindex.Index
	visitor *visitorstate.State
	clock   Clock
	log     zerolog.Logger
}

func New(s store.Store, idx *bucketindex.Index, vs *visitorstate.State, log zerolog.Logger) *FanOut {
	return &FanOut{store: s, index: idx, visitor: vs, clock: time.Now, log: log}
}

// WithClock overrides the clock used to stamp descriptors and time-buckets;
// intended for tests.
func (f *FanOut) WithClock(c Clock) *FanOut {
	f.clock = c
	return f
}

// RecordProperty derives the property and value ids, writes the value
// catalog and property descriptor idempotently, and sets the visitor's
// current value for that property. No counters are touched here — counters
// are event-driven.
func (f *FanOut) RecordProperty(ctx context.Context, bucketID, visitorID hashid.ID, propertyName string, rawValue []byte) error {
	propertyID := keyschema.PropertyID(bucketID, propertyName)
	valueID := keyschema.ValueID(bucketID, propertyName, rawValue)

	buf := store.NewRelationBuffer(store.FamilyRelation)
	now := f.clock()
	if err := f.index.WritePropertyDescriptor(buf, bucketID, propertyID, propertyName, now); err != nil {
		return err
	}
	f.index.WriteValueCatalogEntry(buf, bucketID, propertyID, valueID, rawValue)
	f.visitor.SetProperty(buf, bucketID, visitorID, propertyID, valueID)

	if err := buf.Flush(ctx, f.store); err != nil {
		return err
	}
	return nil
}

// counterWrite is one logical increment the fan-out wants applied, plus the
// address of its unique counterpart when one exists.
type counterWrite struct {
	row, col             []byte
	uniqueRow, uniqueCol []byte
	hasUnique            bool
}

// RecordEvent reads the visitor's prior state, computes the full
// cross-product of counters the event touches
// (total, timed totals, path, per-property totals and paths), apply the
// unique-marker gate for every counter that has a unique variant, and update
// the visitor's last-event column. Everything is coalesced into the buffers'
// dedup and each buffer is flushed once, one store call per distinct address.
func (f *FanOut) RecordEvent(ctx context.Context, bucketID, visitorID hashid.ID, eventName string) error {
	eventID := keyschema.EventID(bucketID, eventName)
	now := f.clock()

	relBuf := store.NewRelationBuffer(store.FamilyRelation)
	if err := f.index.WriteEventDescriptor(relBuf, bucketID, eventID, eventName, now); err != nil {
		return err
	}

	snapshot, err := f.visitor.Read(ctx, bucketID, visitorID)
	if err != nil {
		return err
	}

	counterBuf := store.NewCounterBuffer()

	var writes []counterWrite

	eventRow := keyschema.EventRow(bucketID)
	writes = append(writes, counterWrite{
		row: eventRow, col: keyschema.EventTotalColumn(eventID),
		uniqueRow: eventRow, uniqueCol: keyschema.EventUniqueTotalColumn(eventID), hasUnique: true,
	})

	for _, g := range timebucket.All {
		t := timebucket.Bucket(g, now.Unix())
		writes = append(writes, counterWrite{
			row: keyschema.TimedRow(bucketID, g), col: keyschema.TimedColumn(eventID, t),
		})
	}

	if snapshot.HasLastEvent {
		writes = append(writes, counterWrite{
			row: eventRow, col: keyschema.EventPathColumn(eventID, snapshot.LastEventID),
			uniqueRow: eventRow, uniqueCol: keyschema.EventUniquePathColumn(eventID, snapshot.LastEventID), hasUnique: true,
		})
	}

	for propID, valID := range snapshot.Properties {
		propRow := keyschema.PropertyCountersRow(bucketID, propID)
		writes = append(writes, counterWrite{
			row: propRow, col: keyschema.EventValueTotalColumn(eventID, valID),
			uniqueRow: propRow, uniqueCol: keyschema.EventValueUniqueTotalColumn(eventID, valID), hasUnique: true,
		})

		propDesc, ok, err := f.index.PropertyDescriptor(ctx, bucketID, propID)
		if err != nil {
			return err
		}
		if ok {
			f.index.WriteEventPropertyCrosslink(relBuf, bucketID, eventID, propID, propDesc.Name, eventName)
		}

		if snapshot.HasLastEvent {
			writes = append(writes, counterWrite{
				row: propRow, col: keyschema.EventValuePathColumn(eventID, snapshot.LastEventID, valID),
			})
		}
	}

	if err := f.applyUniqueGate(ctx, visitorID, writes, relBuf, counterBuf); err != nil {
		return err
	}

	f.visitor.SetLastEvent(relBuf, bucketID, visitorID, eventID)

	if err := relBuf.Flush(ctx, f.store); err != nil {
		return err
	}
	if err := counterBuf.Flush(ctx, f.store); err != nil {
		return err
	}
	return nil
}

// applyUniqueGate always dispatches the base (non-unique) increment for
// every write, then, for writes with a unique variant, checks the
// unique-markers concurrently and queues the unique increment plus the
// marker insert when the visitor has not yet been counted toward that
// counter.
func (f *FanOut) applyUniqueGate(ctx context.Context, visitorID hashid.ID, writes []counterWrite, relBuf *store.RelationBuffer, counterBuf *store.CounterBuffer) error {
	for _, w := range writes {
		counterBuf.Add(w.row, w.col, 1)
	}

	var toCheck []counterWrite
	for _, w := range writes {
		if w.hasUnique {
			toCheck = append(toCheck, w)
		}
	}
	if len(toCheck) == 0 {
		return nil
	}

	type result struct {
		w      counterWrite
		marker []byte
		row    []byte
		absent bool
		err    error
	}
	results := make([]result, len(toCheck))
	var wg sync.WaitGroup
	for i, w := range toCheck {
		wg.Add(1)
		go func(i int, w counterWrite) {
			defer wg.Done()
			markerRow := keyschema.UniqueMarkerRow(w.row)
			markerCol := keyschema.UniqueMarkerColumn(w.col, visitorID)
			_, found, err := f.store.Get(ctx, store.FamilyRelation, markerRow, markerCol)
			results[i] = result{w: w, marker: markerCol, row: markerRow, absent: !found, err: err}
		}(i, w)
	}
	wg.Wait()

	for _, r := range results {
		if r.err != nil {
			return apierrors.TransientStore("unique-marker lookup failed", r.err)
		}
		if r.absent {
			relBuf.Add(r.row, r.marker, []byte{1})
			counterBuf.Add(r.w.uniqueRow, r.w.uniqueCol, 1)
		}
	}
	return nil
}
