// Package keyschema is the single source of truth for the physical layout:
// it turns a logical coordinate (bucket, event, property, value, visitor,
// time-bucket) into the (row-key, column-name) pair the Store adapter
// addresses. KeySchema itself is pure — it does no I/O.
package keyschema

import (
	"encoding/binary"

	"github.com/wehriam/hiitrack/internal/hashid"
	"github.com/wehriam/hiitrack/internal/timebucket"
)

const (
	tagValue         byte = 'v' // property -> value catalog
	tagCrosslink     byte = 'p' // event -> property cross-link, also visitor property column
	tagPropEventLink byte = 'P' // property -> event cross-link (property view's "events")
	tagUnique             = "u"
	tagEventDesc     byte = 'e' // event descriptor column prefix, and visitor "last event" column
	tagPropertyDesc  byte = 'q' // property descriptor column prefix
)

func concat(parts ...[]byte) []byte {
	n := 0
	for _, p := range parts {
		n += len(p)
	}
	out := make([]byte, 0, n)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// --- Event counters, row-keyed by bucket-id ---

// EventRow is the row-key holding an event's total, unique total, path,
// unique path, and its descriptor column.
func EventRow(bucketID hashid.ID) []byte { return bucketID.Bytes() }

func EventTotalColumn(eventID hashid.ID) []byte { return eventID.Bytes() }

func EventUniqueTotalColumn(eventID hashid.ID) []byte {
	return concat(eventID.Bytes(), []byte(tagUnique))
}

func EventPathColumn(eventID, priorEventID hashid.ID) []byte {
	return concat(eventID.Bytes(), priorEventID.Bytes())
}

func EventUniquePathColumn(eventID, priorEventID hashid.ID) []byte {
	return concat(eventID.Bytes(), priorEventID.Bytes(), []byte(tagUnique))
}

// EventDescriptorColumn is the catalog column holding an
// event's display name, under the same row as its counters.
func EventDescriptorColumn(eventID hashid.ID) []byte {
	return concat([]byte{tagEventDesc}, eventID.Bytes())
}

// --- Timed totals, row-keyed by bucket-id · interval-tag ---

func TimedRow(bucketID hashid.ID, interval timebucket.Interval) []byte {
	return concat(bucketID.Bytes(), []byte(interval))
}

func TimedColumn(eventID hashid.ID, bucket int64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(bucket))
	return concat(eventID.Bytes(), b[:])
}

// TimedColumnStart/Finish bound a slice over [t0,t1] for a given event.
func TimedColumnStart(eventID hashid.ID, epochSeconds int64, interval timebucket.Interval) []byte {
	return TimedColumn(eventID, timebucket.Bucket(interval, epochSeconds))
}

func TimedColumnFinish(eventID hashid.ID, epochSeconds int64, interval timebucket.Interval) []byte {
	return TimedColumn(eventID, timebucket.Bucket(interval, epochSeconds))
}

// --- Event x property-value counters, row-keyed by bucket-id · property-id ---

func PropertyCountersRow(bucketID, propertyID hashid.ID) []byte {
	return concat(bucketID.Bytes(), propertyID.Bytes())
}

func EventValueTotalColumn(eventID, valueID hashid.ID) []byte {
	return concat(eventID.Bytes(), valueID.Bytes())
}

func EventValueUniqueTotalColumn(eventID, valueID hashid.ID) []byte {
	return concat(eventID.Bytes(), valueID.Bytes(), []byte(tagUnique))
}

func EventValuePathColumn(eventID, priorEventID, valueID hashid.ID) []byte {
	return concat(eventID.Bytes(), priorEventID.Bytes(), valueID.Bytes())
}

// --- Bucket-level catalogs, row-keyed by bucket-id ---

// ValueCatalogColumn addresses the property -> value-id -> raw value row.
func ValueCatalogColumn(propertyID, valueID hashid.ID) []byte {
	return concat([]byte{tagValue}, propertyID.Bytes(), valueID.Bytes())
}

// EventPropertyCrosslinkColumn addresses the event <-> property link written
// whenever an event fires with a given property set on the visitor.
func EventPropertyCrosslinkColumn(eventID, propertyID hashid.ID) []byte {
	return concat([]byte{tagCrosslink}, eventID.Bytes(), propertyID.Bytes())
}

// PropertyDescriptorColumn is the catalog column holding a
// property's display name.
func PropertyDescriptorColumn(propertyID hashid.ID) []byte {
	return concat([]byte{tagPropertyDesc}, propertyID.Bytes())
}

// PropertyEventCrosslinkColumn is the reverse of
// EventPropertyCrosslinkColumn, letting the property view answer "which
// events have I been seen with" by slicing on property-id instead of
// event-id.
func PropertyEventCrosslinkColumn(propertyID, eventID hashid.ID) []byte {
	return concat([]byte{tagPropEventLink}, propertyID.Bytes(), eventID.Bytes())
}

// --- Unique-markers, row-keyed by "u"·counter-row-key ---

// UniqueMarkerRow addresses the relation row holding the membership markers
// that gate a counter's unique variant: "u" prepended to the counter's own
// row-key.
func UniqueMarkerRow(counterRowKey []byte) []byte {
	return concat([]byte(tagUnique), counterRowKey)
}

// UniqueMarkerColumn addresses a single visitor's membership marker for one
// counter: the counter's own column-name with the visitor-id appended, so
// distinct visitors gate the same counter independently.
func UniqueMarkerColumn(counterColName []byte, visitorID hashid.ID) []byte {
	return concat(counterColName, visitorID.Bytes())
}

// --- Visitor state, row-keyed by bucket-id · visitor-id ---

func VisitorRow(bucketID, visitorID hashid.ID) []byte {
	return concat(bucketID.Bytes(), visitorID.Bytes())
}

func VisitorPropertyColumn(propertyID hashid.ID) []byte {
	return concat([]byte{tagCrosslink}, propertyID.Bytes())
}

// VisitorLastEventColumn is the single-byte "e" column (distinct from the
// 17-byte EventDescriptorColumn — different row, no collision).
func VisitorLastEventColumn() []byte { return []byte{tagEventDesc} }

// --- User / bucket catalog, row-keyed by hash(user, "bucket") ---

func UserBucketCatalogRow(user string) []byte {
	return hashid.HashStrings(user, "bucket").Bytes()
}

func UserBucketColumn(bucketID hashid.ID) []byte { return bucketID.Bytes() }

// BucketID derives a bucket's id from its owning user and name.
func BucketID(user, bucketName string) hashid.ID {
	return hashid.HashStrings(user, bucketName)
}

// BucketDescriptorColumn is the catalog column, under the
// bucket's own EventRow, holding its name/description/creation time — the
// same row the event and property descriptors live under, since all three
// are catalog entries scoped to the bucket-id.
func BucketDescriptorColumn() []byte { return []byte{'b'} }

// UserPasswordColumn is the single column of the FamilyUser row holding a
// user's hashed password.
func UserPasswordColumn() []byte { return []byte("password") }

// EventID derives an event's id within a bucket.
func EventID(bucketID hashid.ID, eventName string) hashid.ID {
	return hashid.Hash(bucketID.Bytes(), []byte(eventName))
}

// PropertyID derives a property's id within a bucket.
func PropertyID(bucketID hashid.ID, propertyName string) hashid.ID {
	return hashid.Hash(bucketID.Bytes(), []byte(propertyName))
}

// ValueID derives a property value's id within a bucket.
func ValueID(bucketID hashid.ID, propertyName string, value []byte) hashid.ID {
	return hashid.Hash(bucketID.Bytes(), []byte(propertyName), value)
}
