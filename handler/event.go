package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/wehriam/hiitrack/internal/apierrors"
	"github.com/wehriam/hiitrack/internal/fanout"
	"github.com/wehriam/hiitrack/internal/hashid"
	"github.com/wehriam/hiitrack/internal/query"
	"github.com/wehriam/hiitrack/internal/timebucket"
	"github.com/wehriam/hiitrack/internal/userstore"
	"github.com/wehriam/hiitrack/observability"
)

// EventHandler implements the event endpoints: record an event for a
// visitor, and the event view (optionally conditioned on a property and/or
// a timed range).
type EventHandler struct {
	users   *userstore.Store
	fanout  *fanout.FanOut
	query   *query.Assembler
	metrics *observability.Metrics
	logger  zerolog.Logger
}

func NewEventHandler(users *userstore.Store, fo *fanout.FanOut, assembler *query.Assembler, metrics *observability.Metrics, logger zerolog.Logger) *EventHandler {
	return &EventHandler{users: users, fanout: fo, query: assembler, metrics: metrics, logger: logger.With().Str("handler", "event").Logger()}
}

type recordEventRequest struct {
	VisitorID string `json:"visitor_id"`
}

// Post handles POST /{user}/{bucket}/event/{name}.
func (h *EventHandler) Post(w http.ResponseWriter, r *http.Request) {
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

	var req recordEventRequest
	if err := decodeJSON(r, &req); err != nil {
		writeAPIError(w, err)
		return
	}
	visitorID, err := decodeVisitorID(req.VisitorID)
	if err != nil {
		writeAPIError(w, err)
		return
	}

	if err := h.fanout.RecordEvent(r.Context(), bucketID, visitorID, name); err != nil {
		writeAPIError(w, err)
		return
	}
	if h.metrics != nil {
		h.metrics.TrackEventRecorded(bucket)
	}
	writeJSON(w, http.StatusCreated, map[string]string{"event": name})
}

// Get handles GET /{user}/{bucket}/event/{name}[?property=P][&start=&finish=&interval=].
func (h *EventHandler) Get(w http.ResponseWriter, r *http.Request) {
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

	propertyName := r.URL.Query().Get("property")

	tr, err := parseTimeRange(r)
	if err != nil {
		writeAPIError(w, err)
		return
	}

	view, err := h.query.Event(r.Context(), bucketID, name, propertyName, tr)
	if err != nil {
		writeAPIError(w, err)
		return
	}

	resp := map[string]interface{}{
		"id":           hexID(view.ID),
		"name":         view.Name,
		"total":        view.Total,
		"unique_total": view.UniqueTotal,
		"path":         pathMap(view.Path),
		"unique_path":  pathMap(view.UniquePath),
		"properties":   refList(view.Properties),
	}

	if view.PropertyGiven {
		totals := make(map[string]int64, len(view.PropertyTotals))
		for _, vc := range view.PropertyTotals {
			totals[valueKey(view, vc.ValueID)] = vc.Count
		}
		uniqueTotals := make(map[string]int64, len(view.PropertyUniqueTotals))
		for _, vc := range view.PropertyUniqueTotals {
			uniqueTotals[valueKey(view, vc.ValueID)] = vc.Count
		}
		paths := make([]map[string]interface{}, 0, len(view.PropertyPaths))
		for _, vp := range view.PropertyPaths {
			paths = append(paths, map[string]interface{}{
				"prior_event": hexID(vp.PriorEventID),
				"value":       valueKey(view, vp.ValueID),
				"count":       vp.Count,
			})
		}
		resp["property"] = propertyName
		resp["totals"] = totals
		resp["unique_totals"] = uniqueTotals
		resp["property_paths"] = paths
	}

	if view.TimedGiven {
		series := make([][2]int64, 0, len(view.Timed))
		for _, tp := range view.Timed {
			series = append(series, [2]int64{tp.EpochSeconds, tp.Count})
		}
		resp["series"] = series
	}

	writeJSON(w, http.StatusOK, resp)
}

func pathMap(entries []query.PathEntry) map[string]int64 {
	out := make(map[string]int64, len(entries))
	for _, e := range entries {
		out[hexID(e.PriorEventID)] = e.Count
	}
	return out
}

func refList(refs []query.PropertyRef) []map[string]string {
	out := make([]map[string]string, 0, len(refs))
	for _, ref := range refs {
		out = append(out, map[string]string{"id": hexID(ref.ID), "name": ref.Name})
	}
	return out
}

// valueKey renders a property value's response key as its decoded JSON
// value rather than its opaque id, so totals read as {"red": 1} instead of
// hex digests. Falls back to the hex id if the value catalog lacks an entry
// for it; an entry that isn't a JSON string is rendered as its raw JSON text.
func valueKey(view query.EventView, valueID hashid.ID) string {
	raw, ok := view.ValueCatalog[valueID]
	if !ok {
		return hexID(valueID)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

func parseTimeRange(r *http.Request) (query.TimeRange, error) {
	startStr := r.URL.Query().Get("start")
	finishStr := r.URL.Query().Get("finish")
	intervalStr := r.URL.Query().Get("interval")
	if startStr == "" && finishStr == "" && intervalStr == "" {
		return query.TimeRange{}, nil
	}
	if startStr == "" || finishStr == "" || intervalStr == "" {
		return query.TimeRange{}, apierrors.BadRequest("start, finish, and interval must all be given together")
	}

	start, err := strconv.ParseInt(startStr, 10, 64)
	if err != nil {
		return query.TimeRange{}, apierrors.BadRequest("start must be an epoch-seconds integer")
	}
	finish, err := strconv.ParseInt(finishStr, 10, 64)
	if err != nil {
		return query.TimeRange{}, apierrors.BadRequest("finish must be an epoch-seconds integer")
	}
	interval, err := timebucket.ParseQueryInterval(intervalStr)
	if err != nil {
		return query.TimeRange{}, apierrors.BadRequest("interval must be one of hour, day, week, month")
	}

	return query.TimeRange{Start: start, Finish: finish, Interval: interval, Set: true}, nil
}
