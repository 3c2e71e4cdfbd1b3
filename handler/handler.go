// Package handler adapts internal/engine.Engine to HTTP: one file per
// resource (user, bucket, property, event), each a small struct holding the
// engine components it needs and a logger, methods registered directly as
// chi handlers.
package handler

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"net/http"

	"github.com/wehriam/hiitrack/internal/apierrors"
	"github.com/wehriam/hiitrack/internal/hashid"
	"github.com/wehriam/hiitrack/internal/keyschema"
	"github.com/wehriam/hiitrack/internal/userstore"
)

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeAPIError maps the internal/apierrors taxonomy to its HTTP status and
// a small JSON body. TransientStoreError carries a Retry-After hint, since
// the core itself never retries.
func writeAPIError(w http.ResponseWriter, err error) {
	if apierrors.Is(err, apierrors.KindTransientStore) {
		w.Header().Set("Retry-After", "1")
	}
	writeJSON(w, apierrors.StatusCode(err), map[string]string{"error": err.Error()})
}

// hexID renders a hashid.ID as the lowercase hex string used for every id
// in a response.
func hexID(id hashid.ID) string { return hex.EncodeToString(id.Bytes()) }

// decodeVisitorID parses the client-supplied opaque 16-byte visitor
// identifier, hex-encoded on the wire.
func decodeVisitorID(s string) (hashid.ID, error) {
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != hashid.Size {
		return hashid.ID{}, apierrors.BadRequest("visitor_id must be 16 hex-encoded bytes")
	}
	return hashid.FromBytes(b), nil
}

// decodeJSON decodes a request body into dst, returning a BadRequest
// taxonomy error on failure.
func decodeJSON(r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apierrors.BadRequest("invalid request body")
	}
	return nil
}

// resolveBucket reports whether (user, bucket) names a registered bucket,
// returning its id if so. ok is false (with nil err) when it doesn't exist.
func resolveBucket(ctx context.Context, users *userstore.Store, user, bucket string) (bucketID hashid.ID, ok bool, err error) {
	exists, err := users.BucketExists(ctx, user, bucket)
	if err != nil || !exists {
		return hashid.ID{}, false, err
	}
	return keyschema.BucketID(user, bucket), true, nil
}
