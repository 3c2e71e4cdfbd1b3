package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/wehriam/hiitrack/internal/apierrors"
	"github.com/wehriam/hiitrack/internal/query"
	"github.com/wehriam/hiitrack/internal/userstore"
)

// BucketHandler implements the bucket endpoints: create, delete, and the
// bucket summary view.
type BucketHandler struct {
	users  *userstore.Store
	query  *query.Assembler
	logger zerolog.Logger
}

func NewBucketHandler(users *userstore.Store, assembler *query.Assembler, logger zerolog.Logger) *BucketHandler {
	return &BucketHandler{users: users, query: assembler, logger: logger.With().Str("handler", "bucket").Logger()}
}

type createBucketRequest struct {
	Description string `json:"description"`
}

// Create handles POST /{user}/{bucket}.
func (h *BucketHandler) Create(w http.ResponseWriter, r *http.Request) {
	user := chi.URLParam(r, "user")
	bucket := chi.URLParam(r, "bucket")

	var req createBucketRequest
	if err := decodeJSON(r, &req); err != nil {
		writeAPIError(w, err)
		return
	}

	bucketID, err := h.users.CreateBucket(r.Context(), user, bucket, req.Description)
	if err != nil {
		writeAPIError(w, err)
		return
	}
	h.logger.Info().Str("user", user).Str("bucket", bucket).Msg("bucket created")
	writeJSON(w, http.StatusCreated, map[string]string{"bucket": bucket, "id": hexID(bucketID)})
}

// Delete handles DELETE /{user}/{bucket}: removes every row keyed under the
// bucket's id.
func (h *BucketHandler) Delete(w http.ResponseWriter, r *http.Request) {
	user := chi.URLParam(r, "user")
	bucket := chi.URLParam(r, "bucket")

	exists, err := h.users.BucketExists(r.Context(), user, bucket)
	if err != nil {
		writeAPIError(w, err)
		return
	}
	if !exists {
		writeAPIError(w, apierrors.NotFound("bucket not found"))
		return
	}

	if err := h.users.DeleteBucket(r.Context(), user, bucket); err != nil {
		writeAPIError(w, err)
		return
	}
	h.logger.Info().Str("user", user).Str("bucket", bucket).Msg("bucket deleted")
	writeJSON(w, http.StatusOK, map[string]interface{}{"bucket": bucket, "deleted": true})
}

// Summary handles GET /{user}/{bucket}: the event and property catalogs,
// keyed by display name.
func (h *BucketHandler) Summary(w http.ResponseWriter, r *http.Request) {
	user := chi.URLParam(r, "user")
	bucket := chi.URLParam(r, "bucket")

	bucketID, ok, err := resolveBucket(r.Context(), h.users, user, bucket)
	if err != nil {
		writeAPIError(w, err)
		return
	}
	if !ok {
		writeAPIError(w, apierrors.NotFound("bucket not found"))
		return
	}

	summary, err := h.query.Bucket(r.Context(), bucketID)
	if err != nil {
		writeAPIError(w, err)
		return
	}

	events := make(map[string]map[string]interface{}, len(summary.Events))
	for _, d := range summary.Events {
		events[d.Name] = map[string]interface{}{"id": hexID(d.ID), "created_at": d.CreatedAt}
	}
	properties := make(map[string]map[string]interface{}, len(summary.Properties))
	for _, d := range summary.Properties {
		properties[d.Name] = map[string]interface{}{"id": hexID(d.ID), "created_at": d.CreatedAt}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"events":     events,
		"properties": properties,
	})
}
