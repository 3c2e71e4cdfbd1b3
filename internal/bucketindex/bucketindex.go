// Package bucketindex maintains the per-bucket catalogs: event-id -> name,
// property-id -> name, property-id -> value-id -> value, and the
// event<->property cross-links.
package bucketindex

import (
	"context"
	"encoding/json"
	"time"

	"github.com/wehriam/hiitrack/internal/apierrors"
	"github.com/wehriam/hiitrack/internal/hashid"
	"github.com/wehriam/hiitrack/internal/keyschema"
	"github.com/wehriam/hiitrack/internal/store"
)

// Descriptor is a catalog entry: an id's display name and creation time.
type Descriptor struct {
	ID        hashid.ID `json:"-"`
	Name      string    `json:"name"`
	CreatedAt int64     `json:"created_at"`
}

// Index reads and writes bucket catalogs against a Store.
type Index struct {
	store store.Store
}

func New(s store.Store) *Index { return &Index{store: s} }

// WriteEventDescriptor buffers an idempotent event descriptor write: the
// same event name always derives the same event-id, so a duplicate write is
// harmless.
func (idx *Index) WriteEventDescriptor(buf *store.RelationBuffer, bucketID, eventID hashid.ID, name string, createdAt time.Time) error {
	payload, err := json.Marshal(Descriptor{Name: name, CreatedAt: createdAt.Unix()})
	if err != nil {
		return apierrors.Internal("marshal event descriptor", err)
	}
	buf.Add(keyschema.EventRow(bucketID), keyschema.EventDescriptorColumn(eventID), payload)
	return nil
}

func (idx *Index) WritePropertyDescriptor(buf *store.RelationBuffer, bucketID, propertyID hashid.ID, name string, createdAt time.Time) error {
	payload, err := json.Marshal(Descriptor{Name: name, CreatedAt: createdAt.Unix()})
	if err != nil {
		return apierrors.Internal("marshal property descriptor", err)
	}
	buf.Add(keyschema.EventRow(bucketID), keyschema.PropertyDescriptorColumn(propertyID), payload)
	return nil
}

// WriteValueCatalogEntry buffers the property -> value-id -> raw JSON value
// mapping written on property ingestion.
func (idx *Index) WriteValueCatalogEntry(buf *store.RelationBuffer, bucketID, propertyID, valueID hashid.ID, rawValue []byte) {
	buf.Add(keyschema.EventRow(bucketID), keyschema.ValueCatalogColumn(propertyID, valueID), rawValue)
}

// WriteEventPropertyCrosslink buffers both directions of the event<->property
// link emitted whenever an event fires with a property set on the visitor.
func (idx *Index) WriteEventPropertyCrosslink(buf *store.RelationBuffer, bucketID, eventID, propertyID hashid.ID, propertyName, eventName string) {
	buf.Add(keyschema.EventRow(bucketID), keyschema.EventPropertyCrosslinkColumn(eventID, propertyID), []byte(propertyName))
	buf.Add(keyschema.EventRow(bucketID), keyschema.PropertyEventCrosslinkColumn(propertyID, eventID), []byte(eventName))
}

// EventDescriptor reads a single event's descriptor, if it exists.
func (idx *Index) EventDescriptor(ctx context.Context, bucketID, eventID hashid.ID) (Descriptor, bool, error) {
	raw, ok, err := idx.store.Get(ctx, store.FamilyRelation, keyschema.EventRow(bucketID), keyschema.EventDescriptorColumn(eventID))
	if err != nil || !ok {
		return Descriptor{}, false, err
	}
	var d Descriptor
	if err := json.Unmarshal(raw, &d); err != nil {
		return Descriptor{}, false, apierrors.Internal("unmarshal event descriptor", err)
	}
	d.ID = eventID
	return d, true, nil
}

func (idx *Index) PropertyDescriptor(ctx context.Context, bucketID, propertyID hashid.ID) (Descriptor, bool, error) {
	raw, ok, err := idx.store.Get(ctx, store.FamilyRelation, keyschema.EventRow(bucketID), keyschema.PropertyDescriptorColumn(propertyID))
	if err != nil || !ok {
		return Descriptor{}, false, err
	}
	var d Descriptor
	if err := json.Unmarshal(raw, &d); err != nil {
		return Descriptor{}, false, apierrors.Internal("unmarshal property descriptor", err)
	}
	d.ID = propertyID
	return d, true, nil
}

// BucketEvents returns every event descriptor recorded in the bucket, for
// the bucket summary view.
func (idx *Index) BucketEvents(ctx context.Context, bucketID hashid.ID) ([]Descriptor, error) {
	prefix := []byte{'e'}
	finish := append(append([]byte{}, prefix...), hashid.HighID[:]...)
	cols, err := idx.store.GetSlice(ctx, store.FamilyRelation, keyschema.EventRow(bucketID), prefix, finish, store.MaxSliceCount)
	if err != nil {
		return nil, err
	}
	out := make([]Descriptor, 0, len(cols))
	for _, c := range cols {
		if len(c.Name) != 17 {
			continue
		}
		var d Descriptor
		if err := json.Unmarshal(c.Value, &d); err != nil {
			continue
		}
		d.ID = hashid.FromBytes(c.Name[1:])
		out = append(out, d)
	}
	return out, nil
}

// BucketProperties returns every property descriptor recorded in the
// bucket, for the bucket summary view.
func (idx *Index) BucketProperties(ctx context.Context, bucketID hashid.ID) ([]Descriptor, error) {
	prefix := []byte{'q'}
	finish := append(append([]byte{}, prefix...), hashid.HighID[:]...)
	cols, err := idx.store.GetSlice(ctx, store.FamilyRelation, keyschema.EventRow(bucketID), prefix, finish, store.MaxSliceCount)
	if err != nil {
		return nil, err
	}
	out := make([]Descriptor, 0, len(cols))
	for _, c := range cols {
		if len(c.Name) != 17 {
			continue
		}
		var d Descriptor
		if err := json.Unmarshal(c.Value, &d); err != nil {
			continue
		}
		d.ID = hashid.FromBytes(c.Name[1:])
		out = append(out, d)
	}
	return out, nil
}

// Value is a single entry in a property's value catalog.
type Value struct {
	ID  hashid.ID
	Raw json.RawMessage
}

// PropertyValues returns the value catalog for a single property, for the
// property view.
func (idx *Index) PropertyValues(ctx context.Context, bucketID, propertyID hashid.ID) ([]Value, error) {
	prefix := append([]byte{'v'}, propertyID.Bytes()...)
	finish := append(append([]byte{}, prefix...), hashid.HighID[:]...)
	cols, err := idx.store.GetSlice(ctx, store.FamilyRelation, keyschema.EventRow(bucketID), prefix, finish, store.MaxSliceCount)
	if err != nil {
		return nil, err
	}
	out := make([]Value, 0, len(cols))
	for _, c := range cols {
		if len(c.Name) != 33 {
			continue
		}
		out = append(out, Value{ID: hashid.FromBytes(c.Name[17:]), Raw: json.RawMessage(c.Value)})
	}
	return out, nil
}

// PropertyEvents returns the events a property has been seen with, for the
// property view's "events" field.
func (idx *Index) PropertyEvents(ctx context.Context, bucketID, propertyID hashid.ID) (map[hashid.ID]string, error) {
	prefix := append([]byte{'P'}, propertyID.Bytes()...)
	finish := append(append([]byte{}, prefix...), hashid.HighID[:]...)
	cols, err := idx.store.GetSlice(ctx, store.FamilyRelation, keyschema.EventRow(bucketID), prefix, finish, store.MaxSliceCount)
	if err != nil {
		return nil, err
	}
	out := make(map[hashid.ID]string, len(cols))
	for _, c := range cols {
		if len(c.Name) != 33 {
			continue
		}
		out[hashid.FromBytes(c.Name[17:])] = string(c.Value)
	}
	return out, nil
}

// EventProperties returns the properties an event has been seen with, for
// the event view's "properties" field.
func (idx *Index) EventProperties(ctx context.Context, bucketID, eventID hashid.ID) (map[hashid.ID]string, error) {
	prefix := append([]byte{'p'}, eventID.Bytes()...)
	finish := append(append([]byte{}, prefix...), hashid.HighID[:]...)
	cols, err := idx.store.GetSlice(ctx, store.FamilyRelation, keyschema.EventRow(bucketID), prefix, finish, store.MaxSliceCount)
	if err != nil {
		return nil, err
	}
	out := make(map[hashid.ID]string, len(cols))
	for _, c := range cols {
		if len(c.Name) != 33 {
			continue
		}
		out[hashid.FromBytes(c.Name[17:])] = string(c.Value)
	}
	return out, nil
}
