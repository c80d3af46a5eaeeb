// Package diag serves a read-mostly HTTP view of the send queue.
package diag

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/roach88/bizsync/internal/sendqueue"
	"github.com/roach88/bizsync/internal/store"
)

// Queue is the queue surface the router exposes.
// sendqueue.Service implements it.
type Queue interface {
	Stats(ctx context.Context) (sendqueue.Stats, error)
	GetNext(ctx context.Context) (store.QueueEntry, error)
	DrainOnce(ctx context.Context) (sendqueue.DrainReport, error)
	DeadLetters(ctx context.Context) ([]store.DeadLetter, error)
	Retry(ctx context.Context, deadLetterID int64) (store.QueueEntry, error)
}

type handler struct {
	queue  Queue
	ping   func(context.Context) error
	logger *slog.Logger
}

// Option configures the router.
type Option func(*handler)

// WithLogger sets the request logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *handler) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithPing adds a dependency check to GET /health.
func WithPing(ping func(context.Context) error) Option {
	return func(h *handler) {
		h.ping = ping
	}
}

// NewRouter returns the diagnostics routes.
func NewRouter(q Queue, opts ...Option) http.Handler {
	h := &handler{queue: q, logger: slog.Default()}
	for _, opt := range opts {
		opt(h)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(h.logRequests)

	r.Get("/health", h.health)
	r.Route("/queue", func(r chi.Router) {
		r.Get("/", h.stats)
		r.Get("/next", h.next)
		r.Post("/drain", h.drain)
	})
	r.Route("/dead-letters", func(r chi.Router) {
		r.Get("/", h.deadLetters)
		r.Post("/{id}/retry", h.retry)
	})
	return r
}

func (h *handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		h.logger.Debug("diag request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"request_id", middleware.GetReqID(r.Context()),
			"duration", time.Since(start))
	})
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	if h.ping != nil {
		if err := h.ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unavailable",
				"error":  err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.queue.Stats(r.Context())
	if err != nil {
		h.internalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *handler) next(w http.ResponseWriter, r *http.Request) {
	e, err := h.queue.GetNext(r.Context())
	if errors.Is(err, store.ErrNotFound) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err != nil {
		h.internalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newEntryView(e))
}

func (h *handler) drain(w http.ResponseWriter, r *http.Request) {
	report, err := h.queue.DrainOnce(r.Context())
	if errors.Is(err, sendqueue.ErrDrainInProgress) {
		writeJSON(w, http.StatusConflict, errorResponse(err.Error()))
		return
	}
	if err != nil {
		h.internalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *handler) deadLetters(w http.ResponseWriter, r *http.Request) {
	dls, err := h.queue.DeadLetters(r.Context())
	if err != nil {
		h.internalError(w, err)
		return
	}
	views := make([]deadLetterView, 0, len(dls))
	for _, dl := range dls {
		views = append(views, newDeadLetterView(dl))
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *handler) retry(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse("invalid dead letter id"))
		return
	}

	e, err := h.queue.Retry(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, errorResponse("dead letter not found"))
		return
	}
	if err != nil {
		h.internalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newEntryView(e))
}

func (h *handler) internalError(w http.ResponseWriter, err error) {
	h.logger.Error("diag request failed", "error", err)
	writeJSON(w, http.StatusInternalServerError, errorResponse("internal server error"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func errorResponse(msg string) map[string]string {
	return map[string]string{"error": msg}
}
