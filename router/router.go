// Package router assembles the HTTP surface: the
// middleware chain (CORS, security headers, request id, recovery, request
// logging, body-size limit, rate limiting, header normalization, store
// timeout, Basic auth, and per-path ownership authorization) and the
// user/bucket/property/event routes over internal/engine.Engine.
package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/wehriam/hiitrack/config"
	"github.com/wehriam/hiitrack/handler"
	"github.com/wehriam/hiitrack/internal/apierrors"
	"github.com/wehriam/hiitrack/internal/authn"
	"github.com/wehriam/hiitrack/internal/engine"
	"github.com/wehriam/hiitrack/middleware"
	"github.com/wehriam/hiitrack/observability"
)

// NewRouter returns a configured chi Router with the full middleware chain
// and every route mounted.
func NewRouter(cfg *config.Config, appLogger zerolog.Logger, eng *engine.Engine, metrics *observability.Metrics) http.Handler {
	r := chi.NewRouter()

	// --- Middleware Chain (order matters) ---
	// 1. CORS — must be first so preflight responses succeed
	r.Use(middleware.CORSMiddleware([]string{"*"}))

	// 2. Security headers
	r.Use(middleware.SecurityHeadersMiddleware)

	// 3. Request ID injection (chi built-in)
	r.Use(chimw.RequestID)

	// 4. Panic recovery
	r.Use(chimw.Recoverer)

	// 5. Request logger (also feeds the Prometheus-style request metrics)
	r.Use(mwRequestLogger(appLogger, metrics))

	// 6. Body size limit
	r.Use(mwMaxBodySize(cfg.MaxBodyBytes))

	rateLimiter := middleware.NewRateLimiter(appLogger, metrics, cfg.RateLimitEnabled, cfg.RateLimitRPM, cfg.RateLimitBurst)
	headerNorm := middleware.NewHeaderNormalization(appLogger)
	timeoutMW := middleware.NewTimeoutMiddleware(appLogger, cfg)
	authMW := middleware.NewAuthMiddleware(appLogger, eng.Users)

	r.Use(rateLimiter.Handler)
	r.Use(headerNorm.Handler)
	r.Use(timeoutMW.Handler)

	// --- Health and metrics (no auth required) ---
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok","service":"hiitrack"}`))
	})
	if metrics != nil {
		r.Get("/metrics", metrics.Handler())
	}

	userHandler := handler.NewUserHandler(eng.Users, appLogger)
	bucketHandler := handler.NewBucketHandler(eng.Users, eng.Query, appLogger)
	propertyHandler := handler.NewPropertyHandler(eng.Users, eng.FanOut, eng.Query, metrics, appLogger)
	eventHandler := handler.NewEventHandler(eng.Users, eng.FanOut, eng.Query, metrics, appLogger)

	// --- User/bucket/property/event routes ---
	// Registering a user is the one endpoint with no prior credential to
	// check — the user doesn't exist yet.
	r.Post("/{user}", userHandler.Create)

	r.Group(func(r chi.Router) {
		r.Use(authMW.Handler)
		r.Use(requireOwner)

		r.Delete("/{user}", userHandler.Delete)

		r.Post("/{user}/{bucket}", bucketHandler.Create)
		r.Delete("/{user}/{bucket}", bucketHandler.Delete)
		r.Get("/{user}/{bucket}", bucketHandler.Summary)

		r.Post("/{user}/{bucket}/property/{name}", propertyHandler.Post)
		r.Get("/{user}/{bucket}/property/{name}", propertyHandler.Get)

		r.Post("/{user}/{bucket}/event/{name}", eventHandler.Post)
		r.Get("/{user}/{bucket}/event/{name}", eventHandler.Get)
	})

	return r
}

// requireOwner requires the authenticated user to be the user named in the
// path, for every route under this group.
func requireOwner(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pathUser := chi.URLParam(r, "user")
		if err := authn.Authorize(middleware.AuthUser(r.Context()), pathUser); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(apierrors.StatusCode(err))
			_ = writeJSONError(w, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSONError(w http.ResponseWriter, err error) error {
	_, writeErr := w.Write([]byte(`{"error":"` + err.Error() + `"}`))
	return writeErr
}

// mwMaxBodySize returns middleware that limits the request body size.
func mwMaxBodySize(maxBytes int64) func(http.Handler) http.Handler {
	if maxBytes <= 0 {
		maxBytes = 1 * 1024 * 1024 // default 1MB
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > 0 && r.ContentLength > maxBytes {
				http.Error(w, `{"error":"request_too_large","message":"request body too large"}`, http.StatusRequestEntityTooLarge)
				return
			}

			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}

func mwRequestLogger(appLogger zerolog.Logger, metrics *observability.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			if metrics != nil {
				metrics.TrackInflight(1)
				defer metrics.TrackInflight(-1)
			}
			next.ServeHTTP(rw, r)
			dur := time.Since(start)
			reqID := chimw.GetReqID(r.Context())
			appLogger.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("req_id", reqID).
				Int("status", rw.Status()).
				Dur("duration", dur).
				Msg("request completed")
			if metrics != nil {
				metrics.TrackRequest(r.Method, chiRoutePattern(r), rw.Status(), float64(dur.Milliseconds()))
			}
		})
	}
}

// chiRoutePattern prefers the matched route pattern over the raw path so
// per-path metrics don't explode with one series per bucket/event name.
func chiRoutePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
		return rctx.RoutePattern()
	}
	return r.URL.Path
}
