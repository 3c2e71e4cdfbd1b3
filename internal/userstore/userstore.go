// Package userstore implements the User and Bucket entities: user
// registration and password verification, and bucket creation/deletion
// including the cascade that removes every row keyed under a deleted
// bucket's id. Password hashing itself is delegated to internal/authn.
package userstore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/wehriam/hiitrack/internal/apierrors"
	"github.com/wehriam/hiitrack/internal/authn"
	"github.com/wehriam/hiitrack/internal/hashid"
	"github.com/wehriam/hiitrack/internal/keyschema"
	"github.com/wehriam/hiitrack/internal/store"
)

// BucketDescriptor is a bucket's catalog entry.
type BucketDescriptor struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	CreatedAt   int64  `json:"created_at"`
}

// Store reads and writes the User/Bucket entities against a Store.
type Store struct {
	store store.Store
}

func New(s store.Store) *Store { return &Store{store: s} }

func userRow(username string) []byte { return []byte(username) }

// CreateUser registers a new user with a hashed password. Returns
// BadRequest if the user already exists.
func (s *Store) CreateUser(ctx context.Context, username, password string) error {
	exists, err := s.UserExists(ctx, username)
	if err != nil {
		return err
	}
	if exists {
		return apierrors.BadRequest("user already exists")
	}
	hash, err := authn.Hash(password)
	if err != nil {
		return apierrors.Internal("hash password", err)
	}
	return s.store.Insert(ctx, store.FamilyUser, userRow(username), keyschema.UserPasswordColumn(), []byte(hash))
}

// UserExists reports whether a user has been registered.
func (s *Store) UserExists(ctx context.Context, username string) (bool, error) {
	_, ok, err := s.store.Get(ctx, store.FamilyUser, userRow(username), keyschema.UserPasswordColumn())
	return ok, err
}

// VerifyPassword checks a plaintext password against the stored hash.
func (s *Store) VerifyPassword(ctx context.Context, username, password string) (bool, error) {
	hash, ok, err := s.store.Get(ctx, store.FamilyUser, userRow(username), keyschema.UserPasswordColumn())
	if err != nil || !ok {
		return false, err
	}
	return authn.Verify(string(hash), password), nil
}

// DeleteUser removes a user and cascades deletion to every bucket it owns.
func (s *Store) DeleteUser(ctx context.Context, username string) error {
	catalogRow := keyschema.UserBucketCatalogRow(username)
	cols, err := s.store.GetSlice(ctx, store.FamilyRelation, catalogRow, nil, nil, store.MaxSliceCount)
	if err != nil {
		return err
	}
	for _, c := range cols {
		if len(c.Name) != hashid.Size {
			continue
		}
		bucketID := hashid.FromBytes(c.Name)
		if err := s.removeBucketRows(ctx, bucketID); err != nil {
			return err
		}
	}
	if err := s.store.RemoveRowsWithPrefix(ctx, catalogRow); err != nil {
		return err
	}
	return s.store.Remove(ctx, store.FamilyUser, userRow(username), keyschema.UserPasswordColumn())
}

// CreateBucket registers a new bucket for username. Returns BadRequest if
// the bucket already exists.
func (s *Store) CreateBucket(ctx context.Context, username, bucketName, description string) (hashid.ID, error) {
	bucketID := keyschema.BucketID(username, bucketName)
	exists, err := s.BucketExists(ctx, username, bucketName)
	if err != nil {
		return hashid.ID{}, err
	}
	if exists {
		return hashid.ID{}, apierrors.BadRequest("bucket already exists")
	}

	desc := BucketDescriptor{Name: bucketName, Description: description, CreatedAt: time.Now().Unix()}
	payload, err := json.Marshal(desc)
	if err != nil {
		return hashid.ID{}, apierrors.Internal("marshal bucket descriptor", err)
	}
	if err := s.store.Insert(ctx, store.FamilyRelation, keyschema.EventRow(bucketID), keyschema.BucketDescriptorColumn(), payload); err != nil {
		return hashid.ID{}, err
	}
	if err := s.store.Insert(ctx, store.FamilyRelation, keyschema.UserBucketCatalogRow(username), keyschema.UserBucketColumn(bucketID), []byte(bucketName)); err != nil {
		return hashid.ID{}, err
	}
	return bucketID, nil
}

// BucketExists reports whether username owns a bucket named bucketName.
func (s *Store) BucketExists(ctx context.Context, username, bucketName string) (bool, error) {
	bucketID := keyschema.BucketID(username, bucketName)
	_, ok, err := s.store.Get(ctx, store.FamilyRelation, keyschema.UserBucketCatalogRow(username), keyschema.UserBucketColumn(bucketID))
	return ok, err
}

// Bucket reads a bucket's descriptor.
func (s *Store) Bucket(ctx context.Context, bucketID hashid.ID) (BucketDescriptor, bool, error) {
	raw, ok, err := s.store.Get(ctx, store.FamilyRelation, keyschema.EventRow(bucketID), keyschema.BucketDescriptorColumn())
	if err != nil || !ok {
		return BucketDescriptor{}, false, err
	}
	var d BucketDescriptor
	if err := json.Unmarshal(raw, &d); err != nil {
		return BucketDescriptor{}, false, apierrors.Internal("unmarshal bucket descriptor", err)
	}
	return d, true, nil
}

// DeleteBucket removes a bucket and every row keyed under its bucket-id.
func (s *Store) DeleteBucket(ctx context.Context, username, bucketName string) error {
	bucketID := keyschema.BucketID(username, bucketName)
	if err := s.store.Remove(ctx, store.FamilyRelation, keyschema.UserBucketCatalogRow(username), keyschema.UserBucketColumn(bucketID)); err != nil {
		return err
	}
	return s.removeBucketRows(ctx, bucketID)
}

// removeBucketRows clears every row keyed under a bucket-id, including the
// unique-marker rows, whose row-keys carry a "u" prefix ahead of the
// bucket-id. Without the marker sweep, recreating a same-named bucket would
// inherit the old markers and undercount uniques.
func (s *Store) removeBucketRows(ctx context.Context, bucketID hashid.ID) error {
	if err := s.store.RemoveRowsWithPrefix(ctx, bucketID.Bytes()); err != nil {
		return err
	}
	return s.store.RemoveRowsWithPrefix(ctx, keyschema.UniqueMarkerRow(bucketID.Bytes()))
}
