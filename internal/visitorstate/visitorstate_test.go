package visitorstate

import (
	"context"
	"testing"

	"github.com/wehriam/hiitrack/internal/hashid"
	"github.com/wehriam/hiitrack/internal/store"
)

func TestReadEmptyVisitorReturnsNoPropertiesOrLastEvent(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	st := New(s)

	bucketID := hashid.HashStrings("alice", "b")
	visitorID := hashid.HashStrings("visitor-1")

	snap, err := st.Read(ctx, bucketID, visitorID)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if snap.HasLastEvent {
		t.Fatal("expected no last event for an unseen visitor")
	}
	if len(snap.Properties) != 0 {
		t.Fatalf("expected no properties, got %v", snap.Properties)
	}
}

func TestSetPropertyThenReadRoundTrips(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	st := New(s)

	bucketID := hashid.HashStrings("alice", "b")
	visitorID := hashid.HashStrings("visitor-1")
	propertyID := hashid.HashStrings("alice", "b", "color")
	valueID := hashid.HashStrings(`"red"`)

	buf := store.NewRelationBuffer(store.FamilyRelation)
	st.SetProperty(buf, bucketID, visitorID, propertyID, valueID)
	if err := buf.Flush(ctx, s); err != nil {
		t.Fatalf("flush: %v", err)
	}

	snap, err := st.Read(ctx, bucketID, visitorID)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got := snap.Properties[propertyID]; got != valueID {
		t.Fatalf("expected property value %v, got %v", valueID, got)
	}
}

func TestSetLastEventThenReadRoundTrips(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	st := New(s)

	bucketID := hashid.HashStrings("alice", "b")
	visitorID := hashid.HashStrings("visitor-1")
	eventID := hashid.HashStrings("alice", "b", "signup")

	buf := store.NewRelationBuffer(store.FamilyRelation)
	st.SetLastEvent(buf, bucketID, visitorID, eventID)
	if err := buf.Flush(ctx, s); err != nil {
		t.Fatalf("flush: %v", err)
	}

	snap, err := st.Read(ctx, bucketID, visitorID)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !snap.HasLastEvent {
		t.Fatal("expected HasLastEvent after SetLastEvent")
	}
	if snap.LastEventID != eventID {
		t.Fatalf("expected last event %v, got %v", eventID, snap.LastEventID)
	}
}

func TestPropertiesAndLastEventCoexistOnTheSameRow(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	st := New(s)

	bucketID := hashid.HashStrings("alice", "b")
	visitorID := hashid.HashStrings("visitor-1")
	propertyID := hashid.HashStrings("alice", "b", "color")
	valueID := hashid.HashStrings(`"red"`)
	eventID := hashid.HashStrings("alice", "b", "signup")

	buf := store.NewRelationBuffer(store.FamilyRelation)
	st.SetProperty(buf, bucketID, visitorID, propertyID, valueID)
	st.SetLastEvent(buf, bucketID, visitorID, eventID)
	if err := buf.Flush(ctx, s); err != nil {
		t.Fatalf("flush: %v", err)
	}

	snap, err := st.Read(ctx, bucketID, visitorID)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if snap.Properties[propertyID] != valueID || !snap.HasLastEvent || snap.LastEventID != eventID {
		t.Fatalf("expected both property and last-event to survive on the shared row, got %+v", snap)
	}
}
