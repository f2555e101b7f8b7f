package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// ReadinessFunc reports whether backing stores are reachable.
type ReadinessFunc func(r *http.Request) error

type Handler struct {
	service SubmissionService
	ready   ReadinessFunc
}

func NewHandler(service SubmissionService, ready ReadinessFunc) *Handler {
	return &Handler{service: service, ready: ready}
}

// NewRouter mounts the submission API. live, when non-nil, serves the
// websocket feed on /ws.
func NewRouter(handler *Handler, live http.Handler, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(recoverMiddleware(logger))
	r.Use(loggingMiddleware(logger))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { writeMessage(w, http.StatusOK, "ok") })
	r.Get("/readyz", handler.readyz)

	r.Group(func(r chi.Router) {
		r.Use(handler.sessionMiddleware)
		if live != nil {
			r.Handle("/ws", live)
		}
		r.Route("/v1", func(r chi.Router) {
			r.Get("/topics", handler.listTopics)
			r.Route("/contests/{contest_id}", func(r chi.Router) {
				r.Post("/attachments", handler.uploadCode)
				r.Post("/submissions", handler.createSubmission)
			})
			r.Route("/submissions/{submission_id}", func(r chi.Router) {
				r.Get("/", handler.getSubmission)
				r.Post("/rerun", handler.rerunSubmission)
				r.Put("/answer", handler.updateAnswer)
				r.Post("/fail", handler.failSubmission)
			})
		})
	})
	return r
}

func (h *Handler) readyz(w http.ResponseWriter, r *http.Request) {
	if h.ready != nil {
		if err := h.ready(r); err != nil {
			writeError(w, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "not ready")
			return
		}
	}
	writeMessage(w, http.StatusOK, "ready")
}
