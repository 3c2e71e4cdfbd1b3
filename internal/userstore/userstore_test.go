package userstore

import (
	"context"
	"testing"

	"github.com/wehriam/hiitrack/internal/apierrors"
	"github.com/wehriam/hiitrack/internal/store"
)

func TestCreateUserThenVerifyPassword(t *testing.T) {
	ctx := context.Background()
	s := New(store.NewMemoryStore())

	if err := s.CreateUser(ctx, "alice", "hunter2"); err != nil {
		t.Fatalf("create user: %v", err)
	}

	ok, err := s.VerifyPassword(ctx, "alice", "hunter2")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !ok {
		t.Fatal("expected correct password to verify")
	}

	ok, err = s.VerifyPassword(ctx, "alice", "wrong")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if ok {
		t.Fatal("expected wrong password to fail verification")
	}
}

func TestCreateUserTwiceIsBadRequest(t *testing.T) {
	ctx := context.Background()
	s := New(store.NewMemoryStore())

	if err := s.CreateUser(ctx, "alice", "hunter2"); err != nil {
		t.Fatalf("create user: %v", err)
	}
	err := s.CreateUser(ctx, "alice", "hunter2")
	if !apierrors.Is(err, apierrors.KindBadRequest) {
		t.Fatalf("expected bad-request for duplicate user, got %v", err)
	}
}

func TestCreateBucketTwiceIsBadRequest(t *testing.T) {
	ctx := context.Background()
	s := New(store.NewMemoryStore())
	_ = s.CreateUser(ctx, "alice", "hunter2")

	if _, err := s.CreateBucket(ctx, "alice", "b", "desc"); err != nil {
		t.Fatalf("create bucket: %v", err)
	}
	_, err := s.CreateBucket(ctx, "alice", "b", "desc")
	if !apierrors.Is(err, apierrors.KindBadRequest) {
		t.Fatalf("expected bad-request for duplicate bucket, got %v", err)
	}
}

func TestBucketIDIsDeterministicAcrossCalls(t *testing.T) {
	ctx := context.Background()
	s := New(store.NewMemoryStore())
	_ = s.CreateUser(ctx, "alice", "hunter2")

	id1, err := s.CreateBucket(ctx, "alice", "b", "desc")
	if err != nil {
		t.Fatalf("create bucket: %v", err)
	}

	exists, err := s.BucketExists(ctx, "alice", "b")
	if err != nil || !exists {
		t.Fatalf("expected bucket to exist, err=%v exists=%v", err, exists)
	}

	desc, found, err := s.Bucket(ctx, id1)
	if err != nil {
		t.Fatalf("read bucket: %v", err)
	}
	if !found {
		t.Fatal("expected bucket descriptor to be found by its id")
	}
	if desc.Name != "b" || desc.Description != "desc" {
		t.Fatalf("unexpected descriptor: %+v", desc)
	}
}

func TestDeleteUserCascadesToOwnedBuckets(t *testing.T) {
	ctx := context.Background()
	s := New(store.NewMemoryStore())
	_ = s.CreateUser(ctx, "alice", "hunter2")
	bucketID, err := s.CreateBucket(ctx, "alice", "b", "desc")
	if err != nil {
		t.Fatalf("create bucket: %v", err)
	}

	if err := s.DeleteUser(ctx, "alice"); err != nil {
		t.Fatalf("delete user: %v", err)
	}

	if exists, _ := s.UserExists(ctx, "alice"); exists {
		t.Fatal("expected user to no longer exist")
	}
	if exists, _ := s.BucketExists(ctx, "alice", "b"); exists {
		t.Fatal("expected owned bucket to no longer exist after cascading delete")
	}
	if _, found, _ := s.Bucket(ctx, bucketID); found {
		t.Fatal("expected bucket descriptor to be gone after cascading delete")
	}
}

func TestDeleteBucketRemovesDescriptorAndCatalogEntry(t *testing.T) {
	ctx := context.Background()
	s := New(store.NewMemoryStore())
	_ = s.CreateUser(ctx, "alice", "hunter2")
	bucketID, err := s.CreateBucket(ctx, "alice", "b", "desc")
	if err != nil {
		t.Fatalf("create bucket: %v", err)
	}

	if err := s.DeleteBucket(ctx, "alice", "b"); err != nil {
		t.Fatalf("delete bucket: %v", err)
	}

	if exists, _ := s.BucketExists(ctx, "alice", "b"); exists {
		t.Fatal("expected bucket to no longer exist")
	}
	if _, found, _ := s.Bucket(ctx, bucketID); found {
		t.Fatal("expected bucket descriptor to be gone")
	}
	if exists, _ := s.UserExists(ctx, "alice"); !exists {
		t.Fatal("expected the user itself to survive bucket deletion")
	}
}
