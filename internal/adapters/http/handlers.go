package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/contest-platform/M31-judge-service/internal/application"
	"github.com/viralforge/mesh/services/contest-platform/M31-judge-service/internal/session"
	"github.com/viralforge/mesh/services/contest-platform/M31-judge-service/internal/topics"
)

const maxCodeUploadBytes = 1 << 20

// SubmissionService is the part of the application layer the HTTP adapter
// drives.
type SubmissionService interface {
	AuthenticateSession(ctx context.Context, token, traceID string) (session.Context, error)
	UploadCode(ctx context.Context, sc session.Context, req application.UploadCodeRequest) (application.AttachmentView, error)
	CreateSubmission(ctx context.Context, sc session.Context, req application.CreateSubmissionRequest, idempotencyKey string) (application.SubmissionView, error)
	GetSubmission(ctx context.Context, sc session.Context, submissionID uuid.UUID) (application.SubmissionView, error)
	RerunSubmission(ctx context.Context, sc session.Context, submissionID uuid.UUID) (application.SubmissionView, error)
	UpdateAnswer(ctx context.Context, sc session.Context, submissionID uuid.UUID, req application.UpdateAnswerRequest) (application.SubmissionView, error)
	FailSubmission(ctx context.Context, sc session.Context, submissionID uuid.UUID) (application.SubmissionView, error)
	TopicRoutes() []topics.Route
}

type topicView struct {
	Pattern string `json:"pattern"`
	Handler string `json:"handler"`
}

func (h *Handler) uploadCode(w http.ResponseWriter, r *http.Request) {
	contestID, ok := uuidParam(w, r, "contest_id")
	if !ok {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxCodeUploadBytes+64*1024)
	if err := r.ParseMultipartForm(maxCodeUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid multipart payload")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "file is required")
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "unreadable file")
		return
	}

	resp, err := h.service.UploadCode(r.Context(), sessionFor(r, contestID), application.UploadCodeRequest{
		ContestID:   contestID,
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Content:     data,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeSuccess(w, http.StatusCreated, resp)
}

func (h *Handler) createSubmission(w http.ResponseWriter, r *http.Request) {
	contestID, ok := uuidParam(w, r, "contest_id")
	if !ok {
		return
	}
	var req application.CreateSubmissionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.ContestID = contestID
	resp, err := h.service.CreateSubmission(r.Context(), sessionFor(r, contestID), req, strings.TrimSpace(r.Header.Get("Idempotency-Key")))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeSuccess(w, http.StatusCreated, resp)
}

func (h *Handler) getSubmission(w http.ResponseWriter, r *http.Request) {
	submissionID, ok := uuidParam(w, r, "submission_id")
	if !ok {
		return
	}
	resp, err := h.service.GetSubmission(r.Context(), session.FromContext(r.Context()), submissionID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, resp)
}

func (h *Handler) rerunSubmission(w http.ResponseWriter, r *http.Request) {
	submissionID, ok := uuidParam(w, r, "submission_id")
	if !ok {
		return
	}
	resp, err := h.service.RerunSubmission(r.Context(), session.FromContext(r.Context()), submissionID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeSuccess(w, http.StatusAccepted, resp)
}

func (h *Handler) updateAnswer(w http.ResponseWriter, r *http.Request) {
	submissionID, ok := uuidParam(w, r, "submission_id")
	if !ok {
		return
	}
	var req application.UpdateAnswerRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	resp, err := h.service.UpdateAnswer(r.Context(), session.FromContext(r.Context()), submissionID, req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, resp)
}

func (h *Handler) failSubmission(w http.ResponseWriter, r *http.Request) {
	submissionID, ok := uuidParam(w, r, "submission_id")
	if !ok {
		return
	}
	resp, err := h.service.FailSubmission(r.Context(), session.FromContext(r.Context()), submissionID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, resp)
}

func (h *Handler) listTopics(w http.ResponseWriter, _ *http.Request) {
	routes := h.service.TopicRoutes()
	out := make([]topicView, 0, len(routes))
	for _, route := range routes {
		out = append(out, topicView{Pattern: route.Pattern, Handler: string(route.Handler)})
	}
	writeSuccess(w, http.StatusOK, out)
}

// sessionFor scopes the request session to the contest in the route.
func sessionFor(r *http.Request, contestID uuid.UUID) session.Context {
	return session.FromContext(r.Context()).WithContestID(contestID)
}

func uuidParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, out any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64*1024))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid json body")
		return false
	}
	return true
}
