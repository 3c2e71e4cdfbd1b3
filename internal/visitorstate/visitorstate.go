// Package visitorstate maintains the single relation row per (bucket,
// visitor) that the write fan-out reads and updates on every event: the
// visitor's current property snapshot and last-observed event-id.
package visitorstate

import (
	"context"

	"github.com/wehriam/hiitrack/internal/hashid"
	"github.com/wehriam/hiitrack/internal/keyschema"
	"github.com/wehriam/hiitrack/internal/store"
)

// Snapshot is a visitor's state at the moment an event fires: its current
// property-value map and the last event-id it produced, if any.
type Snapshot struct {
	Properties   map[hashid.ID]hashid.ID // property-id -> value-id
	LastEventID  hashid.ID
	HasLastEvent bool
}

// State reads and writes visitor rows against a Store.
type State struct {
	store store.Store
}

func New(s store.Store) *State { return &State{store: s} }

// Read loads the whole visitor row as a single slice read.
func (st *State) Read(ctx context.Context, bucketID, visitorID hashid.ID) (Snapshot, error) {
	row := keyschema.VisitorRow(bucketID, visitorID)
	cols, err := st.store.GetSlice(ctx, store.FamilyRelation, row, nil, nil, store.MaxSliceCount)
	if err != nil {
		return Snapshot{}, err
	}
	snap := Snapshot{Properties: make(map[hashid.ID]hashid.ID)}
	lastEventCol := keyschema.VisitorLastEventColumn()
	for _, c := range cols {
		if string(c.Name) == string(lastEventCol) {
			snap.LastEventID = hashid.FromBytes(c.Value)
			snap.HasLastEvent = true
			continue
		}
		// A visitor property column is tagCrosslink('p') + 16-byte property-id;
		// the only other column on this row is the single-byte last-event tag
		// handled above, so length alone disambiguates.
		if len(c.Name) == 1+hashid.Size {
			propID := hashid.FromBytes(c.Name[1:])
			snap.Properties[propID] = hashid.FromBytes(c.Value)
		}
	}
	return snap, nil
}

// SetProperty buffers the point-insert that records a visitor's current
// value for a property.
func (st *State) SetProperty(buf *store.RelationBuffer, bucketID, visitorID, propertyID, valueID hashid.ID) {
	row := keyschema.VisitorRow(bucketID, visitorID)
	buf.Add(row, keyschema.VisitorPropertyColumn(propertyID), valueID.Bytes())
}

// SetLastEvent buffers the point-insert that records the visitor's most
// recent event-id.
func (st *State) SetLastEvent(buf *store.RelationBuffer, bucketID, visitorID, eventID hashid.ID) {
	row := keyschema.VisitorRow(bucketID, visitorID)
	buf.Add(row, keyschema.VisitorLastEventColumn(), eventID.Bytes())
}
