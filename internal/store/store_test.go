package store

import (
	"context"
	"testing"
)

func TestCounterBufferCoalescesDuplicateIncrements(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	buf := NewCounterBuffer()

	row := []byte("row")
	col := []byte("col")
	buf.Add(row, col, 1)
	buf.Add(row, col, 1)
	buf.Add(row, col, 1)

	if err := buf.Flush(ctx, s); err != nil {
		t.Fatalf("flush: %v", err)
	}

	v, ok, err := s.GetCounter(ctx, row, col)
	if err != nil {
		t.Fatalf("get counter: %v", err)
	}
	if !ok || v != 3 {
		t.Fatalf("expected one dispatched increment summing to 3, got %d (ok=%v)", v, ok)
	}
}

func TestRelationBufferLastWriteWins(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	buf := NewRelationBuffer(FamilyRelation)

	row := []byte("row")
	col := []byte("col")
	buf.Add(row, col, []byte("first"))
	buf.Add(row, col, []byte("second"))

	if err := buf.Flush(ctx, s); err != nil {
		t.Fatalf("flush: %v", err)
	}

	v, ok, err := s.Get(ctx, FamilyRelation, row, col)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !ok || string(v) != "second" {
		t.Fatalf("expected last write to win, got %q (ok=%v)", v, ok)
	}
}

func TestBufferFlushClearsState(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	buf := NewCounterBuffer()
	buf.Add([]byte("row"), []byte("col"), 1)
	if err := buf.Flush(ctx, s); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if len(buf.order) != 0 || len(buf.deltas) != 0 {
		t.Fatal("expected buffer to be empty after flush")
	}
}

func TestMemoryStoreSliceRespectsBoundsAndOrder(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	row := []byte("row")
	_ = s.Insert(ctx, FamilyRelation, row, []byte("b"), []byte("2"))
	_ = s.Insert(ctx, FamilyRelation, row, []byte("a"), []byte("1"))
	_ = s.Insert(ctx, FamilyRelation, row, []byte("c"), []byte("3"))

	cols, err := s.GetSlice(ctx, FamilyRelation, row, []byte("a"), []byte("b"), 10)
	if err != nil {
		t.Fatalf("slice: %v", err)
	}
	if len(cols) != 2 {
		t.Fatalf("expected 2 columns in [a,b], got %d", len(cols))
	}
	if string(cols[0].Name) != "a" || string(cols[1].Name) != "b" {
		t.Fatalf("expected ascending order a,b; got %s,%s", cols[0].Name, cols[1].Name)
	}
}

func TestRemoveRowsWithPrefixDeletesOnlyMatchingRows(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	bucketA := []byte("bucket-a")
	bucketB := []byte("bucket-b")
	rowA := append(append([]byte{}, bucketA...), []byte("-extra")...)
	rowB := append(append([]byte{}, bucketB...), []byte("-extra")...)

	_ = s.Insert(ctx, FamilyRelation, rowA, []byte("col"), []byte("v"))
	_ = s.Insert(ctx, FamilyRelation, rowB, []byte("col"), []byte("v"))
	_ = s.Add(ctx, rowA, []byte("col"), 1)
	_ = s.Add(ctx, rowB, []byte("col"), 1)

	if err := s.RemoveRowsWithPrefix(ctx, bucketA); err != nil {
		t.Fatalf("remove: %v", err)
	}

	if _, ok, _ := s.Get(ctx, FamilyRelation, rowA, []byte("col")); ok {
		t.Fatal("expected bucket-a relation row to be gone")
	}
	if _, ok, _ := s.Get(ctx, FamilyRelation, rowB, []byte("col")); !ok {
		t.Fatal("expected bucket-b relation row to survive")
	}
	if _, ok, _ := s.GetCounter(ctx, rowA, []byte("col")); ok {
		t.Fatal("expected bucket-a counter row to be gone")
	}
	if _, ok, _ := s.GetCounter(ctx, rowB, []byte("col")); !ok {
		t.Fatal("expected bucket-b counter row to survive")
	}
}
