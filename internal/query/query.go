// Package query implements query assembly: for each read endpoint it
// issues the minimal, deterministic set of slice reads against KeySchema
// and merges them into the response object, sorting explicitly at assembly
// time rather than trusting store-returned order.
package query

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"sort"

	"github.com/wehriam/hiitrack/internal/bucketindex"
	"github.com/wehriam/hiitrack/internal/hashid"
	"github.com/wehriam/hiitrack/internal/keyschema"
	"github.com/wehriam/hiitrack/internal/store"
	"github.com/wehriam/hiitrack/internal/timebucket"
)

// Assembler answers the read endpoints against a Store and a bucket index.
type Assembler struct {
	store store.Store
	index *bucketindex.Index
}

func New(s store.Store, idx *bucketindex.Index) *Assembler {
	return &Assembler{store: s, index: idx}
}

// PathEntry is one (prior-event -> count) edge, sorted by ascending id.
type PathEntry struct {
	PriorEventID hashid.ID
	Count        int64
}

// ValueCount is one (value-id -> count) entry, sorted by ascending id.
type ValueCount struct {
	ValueID hashid.ID
	Count   int64
}

// ValuePath is one (prior-event, value -> count) entry for a
// property-conditioned path.
type ValuePath struct {
	PriorEventID hashid.ID
	ValueID      hashid.ID
	Count        int64
}

// TimePoint is one [epoch-seconds-at-bucket-start, count] series entry.
type TimePoint struct {
	EpochSeconds int64
	Count        int64
}

// PropertyRef names a property seen cross-linked with an event, or an event
// seen cross-linked with a property.
type PropertyRef struct {
	ID   hashid.ID
	Name string
}

// TimeRange bounds an optional timed-series query.
type TimeRange struct {
	Start, Finish int64
	Interval      timebucket.Interval
	Set           bool
}

// EventView is the assembled response for GET .../event/{name}.
type EventView struct {
	ID         hashid.ID
	Name       string
	Total      int64
	UniqueTotal int64
	Path       []PathEntry
	UniquePath []PathEntry
	Properties []PropertyRef

	// Populated only when a property name was supplied in the request.
	PropertyGiven        bool
	PropertyID           hashid.ID
	PropertyTotals       []ValueCount
	PropertyUniqueTotals []ValueCount
	PropertyPaths        []ValuePath
	// ValueCatalog decodes each value-id back to the raw JSON payload it was
	// recorded with, so responses can key totals by value rather than by
	// opaque id.
	ValueCatalog map[hashid.ID]json.RawMessage

	// Populated only when a time range was supplied in the request.
	TimedGiven bool
	Timed      []TimePoint
}

// Event answers GET /{user}/{bucket}/event/{name}.
func (a *Assembler) Event(ctx context.Context, bucketID hashid.ID, eventName string, propertyName string, tr TimeRange) (EventView, error) {
	eventID := keyschema.EventID(bucketID, eventName)
	view := EventView{ID: eventID, Name: eventName}

	eventRow := keyschema.EventRow(bucketID)

	total, _, err := a.store.GetCounter(ctx, eventRow, keyschema.EventTotalColumn(eventID))
	if err != nil {
		return EventView{}, err
	}
	view.Total = total

	uniqueTotal, _, err := a.store.GetCounter(ctx, eventRow, keyschema.EventUniqueTotalColumn(eventID))
	if err != nil {
		return EventView{}, err
	}
	view.UniqueTotal = uniqueTotal

	pathCols, err := a.store.GetCounterSlice(ctx, eventRow, eventID.Bytes(), concatHigh(eventID.Bytes()), store.MaxSliceCount)
	if err != nil {
		return EventView{}, err
	}
	for _, c := range pathCols {
		switch len(c.Name) {
		case 32:
			view.Path = append(view.Path, PathEntry{PriorEventID: hashid.FromBytes(c.Name[16:32]), Count: c.Value})
		case 33:
			view.UniquePath = append(view.UniquePath, PathEntry{PriorEventID: hashid.FromBytes(c.Name[16:32]), Count: c.Value})
		}
	}
	sortPathEntries(view.Path)
	sortPathEntries(view.UniquePath)

	propRefs, err := a.index.EventProperties(ctx, bucketID, eventID)
	if err != nil {
		return EventView{}, err
	}
	view.Properties = sortedRefs(propRefs)

	if propertyName != "" {
		view.PropertyGiven = true
		propertyID := keyschema.PropertyID(bucketID, propertyName)
		view.PropertyID = propertyID

		values, err := a.index.PropertyValues(ctx, bucketID, propertyID)
		if err != nil {
			return EventView{}, err
		}
		view.ValueCatalog = make(map[hashid.ID]json.RawMessage, len(values))
		for _, v := range values {
			view.ValueCatalog[v.ID] = v.Raw
		}

		propRow := keyschema.PropertyCountersRow(bucketID, propertyID)
		cols, err := a.store.GetCounterSlice(ctx, propRow, eventID.Bytes(), concatHigh(eventID.Bytes()), store.MaxSliceCount)
		if err != nil {
			return EventView{}, err
		}
		for _, c := range cols {
			switch len(c.Name) {
			case 32:
				view.PropertyTotals = append(view.PropertyTotals, ValueCount{ValueID: hashid.FromBytes(c.Name[16:32]), Count: c.Value})
			case 33:
				view.PropertyUniqueTotals = append(view.PropertyUniqueTotals, ValueCount{ValueID: hashid.FromBytes(c.Name[16:32]), Count: c.Value})
			case 48:
				view.PropertyPaths = append(view.PropertyPaths, ValuePath{
					PriorEventID: hashid.FromBytes(c.Name[16:32]),
					ValueID:      hashid.FromBytes(c.Name[32:48]),
					Count:        c.Value,
				})
			}
		}
		sortValueCounts(view.PropertyTotals)
		sortValueCounts(view.PropertyUniqueTotals)
		sort.Slice(view.PropertyPaths, func(i, j int) bool {
			if view.PropertyPaths[i].PriorEventID != view.PropertyPaths[j].PriorEventID {
				return string(view.PropertyPaths[i].PriorEventID.Bytes()) < string(view.PropertyPaths[j].PriorEventID.Bytes())
			}
			return string(view.PropertyPaths[i].ValueID.Bytes()) < string(view.PropertyPaths[j].ValueID.Bytes())
		})
	}

	if tr.Set {
		view.TimedGiven = true
		timedRow := keyschema.TimedRow(bucketID, tr.Interval)
		start := keyschema.TimedColumnStart(eventID, tr.Start, tr.Interval)
		finish := keyschema.TimedColumnFinish(eventID, tr.Finish, tr.Interval)
		cols, err := a.store.GetCounterSlice(ctx, timedRow, start, finish, store.MaxSliceCount)
		if err != nil {
			return EventView{}, err
		}
		for _, c := range cols {
			if len(c.Name) != 24 {
				continue
			}
			bucketIdx := int64(binary.BigEndian.Uint64(c.Name[16:24]))
			view.Timed = append(view.Timed, TimePoint{
				EpochSeconds: timebucket.BucketStart(tr.Interval, bucketIdx),
				Count:        c.Value,
			})
		}
		sort.Slice(view.Timed, func(i, j int) bool { return view.Timed[i].EpochSeconds < view.Timed[j].EpochSeconds })
	}

	return view, nil
}

// PropertyView is the assembled response for GET .../property/{name}.
type PropertyView struct {
	ID        hashid.ID
	Name      string
	CreatedAt int64
	Values    []PropertyValue
	Events    []PropertyRef
}

// PropertyValue is one decoded entry in a property's value catalog.
type PropertyValue struct {
	ID  hashid.ID
	Raw json.RawMessage
}

// Property answers GET /{user}/{bucket}/property/{name}. A property that
// has never been recorded yields a view with empty collections rather than
// an error — only the bucket or user itself is a 404.
func (a *Assembler) Property(ctx context.Context, bucketID hashid.ID, propertyName string) (PropertyView, error) {
	propertyID := keyschema.PropertyID(bucketID, propertyName)
	out := PropertyView{ID: propertyID, Name: propertyName}

	desc, ok, err := a.index.PropertyDescriptor(ctx, bucketID, propertyID)
	if err != nil {
		return PropertyView{}, err
	}
	if ok {
		out.Name = desc.Name
		out.CreatedAt = desc.CreatedAt
	}

	values, err := a.index.PropertyValues(ctx, bucketID, propertyID)
	if err != nil {
		return PropertyView{}, err
	}
	sort.Slice(values, func(i, j int) bool { return string(values[i].ID.Bytes()) < string(values[j].ID.Bytes()) })
	for _, v := range values {
		out.Values = append(out.Values, PropertyValue{ID: v.ID, Raw: v.Raw})
	}

	events, err := a.index.PropertyEvents(ctx, bucketID, propertyID)
	if err != nil {
		return PropertyView{}, err
	}
	out.Events = sortedRefs(events)

	return out, nil
}

// BucketSummary is the assembled response for GET /{user}/{bucket}.
type BucketSummary struct {
	Events     []bucketindex.Descriptor
	Properties []bucketindex.Descriptor
}

// Bucket answers GET /{user}/{bucket}.
func (a *Assembler) Bucket(ctx context.Context, bucketID hashid.ID) (BucketSummary, error) {
	events, err := a.index.BucketEvents(ctx, bucketID)
	if err != nil {
		return BucketSummary{}, err
	}
	sort.Slice(events, func(i, j int) bool { return string(events[i].ID.Bytes()) < string(events[j].ID.Bytes()) })

	properties, err := a.index.BucketProperties(ctx, bucketID)
	if err != nil {
		return BucketSummary{}, err
	}
	sort.Slice(properties, func(i, j int) bool { return string(properties[i].ID.Bytes()) < string(properties[j].ID.Bytes()) })

	return BucketSummary{Events: events, Properties: properties}, nil
}

func concatHigh(prefix []byte) []byte {
	out := make([]byte, 0, len(prefix)+hashid.Size)
	out = append(out, prefix...)
	out = append(out, hashid.HighID[:]...)
	return out
}

func sortPathEntries(entries []PathEntry) {
	sort.Slice(entries, func(i, j int) bool { return string(entries[i].PriorEventID.Bytes()) < string(entries[j].PriorEventID.Bytes()) })
}

func sortValueCounts(counts []ValueCount) {
	sort.Slice(counts, func(i, j int) bool { return string(counts[i].ValueID.Bytes()) < string(counts[j].ValueID.Bytes()) })
}

func sortedRefs(m map[hashid.ID]string) []PropertyRef {
	out := make([]PropertyRef, 0, len(m))
	for id, name := range m {
		out = append(out, PropertyRef{ID: id, Name: name})
	}
	sort.Slice(out, func(i, j int) bool { return string(out[i].ID.Bytes()) < string(out[j].ID.Bytes()) })
	return out
}
