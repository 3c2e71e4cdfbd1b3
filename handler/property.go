package handler

import (
	"encoding/base64"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/wehriam/hiitrack/internal/apierrors"
	"github.com/wehriam/hiitrack/internal/fanout"
	"github.com/wehriam/hiitrack/internal/query"
	"github.com/wehriam/hiitrack/internal/userstore"
	"github.com/wehriam/hiitrack/observability"
)

// PropertyHandler implements the property endpoints: record a visitor's
// property value, and the property view.
type PropertyHandler struct {
	users   *userstore.Store
	fanout  *fanout.FanOut
	query   *query.Assembler
	metrics *observability.Metrics
	logger  zerolog.Logger
}

func NewPropertyHandler(users *userstore.Store, fo *fanout.FanOut, assembler *query.Assembler, metrics *observability.Metrics, logger zerolog.Logger) *PropertyHandler {
	return &PropertyHandler{users: users, fanout: fo, query: assembler, metrics: metrics, logger: logger.With().Str("handler", "property").Logger()}
}

type recordPropertyRequest struct {
	VisitorID string `json:"visitor_id"`
}

// Post handles POST /{user}/{bucket}/property/{name}?value=<b64(json)>.
func (h *PropertyHandler) Post(w http.ResponseWriter, r *http.Request) {
	user := chi.URLParam(r, "user")
	bucket := chi.URLParam(r, "bucket")
	name := chi.URLParam(r, "name")

	bucketID, ok, err := resolveBucket(r.Context(), h.users, user, bucket)
	if err != nil {
		writeAPIError(w, err)
		return
	}
	if !ok {
		writeAPIError(w, apierrors.NotFound("bucket not found"))
		return
	}

	encoded := r.URL.Query().Get("value")
	if encoded == "" {
		writeAPIError(w, apierrors.BadRequest("value query parameter is required"))
		return
	}
	rawValue, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		writeAPIError(w, apierrors.BadRequest("value must be base64"))
		return
	}
	if !json.Valid(rawValue) {
		writeAPIError(w, apierrors.BadRequest("value must decode to a JSON document"))
		return
	}

	var req recordPropertyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeAPIError(w, err)
		return
	}
	visitorID, err := decodeVisitorID(req.VisitorID)
	if err != nil {
		writeAPIError(w, err)
		return
	}

	if err := h.fanout.RecordProperty(r.Context(), bucketID, visitorID, name, rawValue); err != nil {
		writeAPIError(w, err)
		return
	}
	if h.metrics != nil {
		h.metrics.TrackPropertyRecorded(bucket)
	}
	writeJSON(w, http.StatusCreated, map[string]string{"property": name})
}

// Get handles GET /{user}/{bucket}/property/{name}.
func (h *PropertyHandler) Get(w http.ResponseWriter, r *http.Request) {
	user := chi.URLParam(r, "user")
	bucket := chi.URLParam(r, "bucket")
	name := chi.URLParam(r, "name")

	bucketID, ok, err := resolveBucket(r.Context(), h.users, user, bucket)
	if err != nil {
		writeAPIError(w, err)
		return
	}
	if !ok {
		writeAPIError(w, apierrors.NotFound("bucket not found"))
		return
	}

	view, err := h.query.Property(r.Context(), bucketID, name)
	if err != nil {
		writeAPIError(w, err)
		return
	}

	values := make([]map[string]interface{}, 0, len(view.Values))
	for _, v := range view.Values {
		values = append(values, map[string]interface{}{
			"id":    hexID(v.ID),
			"value": json.RawMessage(v.Raw),
		})
	}
	events := make([]map[string]interface{}, 0, len(view.Events))
	for _, e := range view.Events {
		events = append(events, map[string]interface{}{"id": hexID(e.ID), "name": e.Name})
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":         hexID(view.ID),
		"name":       view.Name,
		"created_at": view.CreatedAt,
		"values":     values,
		"events":     events,
	})
}
