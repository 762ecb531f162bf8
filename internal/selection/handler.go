package selection

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"qbank/internal/app/apireq"
	"qbank/internal/app/apiresp"
	"qbank/internal/auth"
	"qbank/internal/exam"
)

type selectionService interface {
	View(ctx context.Context, actor *auth.Actor, courseID, examID int64) (*View, error)
	Apply(ctx context.Context, actor *auth.Actor, courseID, examID int64, rawIDs []string) (*Outcome, error)
}

type Handler struct {
	svc selectionService
}

type applyRequest struct {
	QIDs []json.RawMessage `json:"qids"`
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	actor, courseID, examID, ok := pathArgs(w, r)
	if !ok {
		return
	}
	out, err := h.svc.View(r.Context(), actor, courseID, examID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, out)
}

func (h *Handler) Apply(w http.ResponseWriter, r *http.Request) {
	actor, courseID, examID, ok := pathArgs(w, r)
	if !ok {
		return
	}
	var req applyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apiresp.WriteError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	raw := make([]string, 0, len(req.QIDs))
	for _, v := range req.QIDs {
		raw = append(raw, rawScalar(v))
	}
	out, err := h.svc.Apply(r.Context(), actor, courseID, examID, raw)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, out)
}

func pathArgs(w http.ResponseWriter, r *http.Request) (*auth.Actor, int64, int64, bool) {
	actor, ok := auth.CurrentActor(r.Context())
	if !ok {
		apiresp.WriteError(w, r, http.StatusUnauthorized, "unauthorized")
		return nil, 0, 0, false
	}
	courseID, ok := apireq.PathID(r, "id")
	if !ok {
		apiresp.WriteError(w, r, http.StatusBadRequest, "invalid course id")
		return nil, 0, 0, false
	}
	examID, ok := apireq.PathID(r, "examID")
	if !ok {
		apiresp.WriteError(w, r, http.StatusBadRequest, "invalid exam id")
		return nil, 0, 0, false
	}
	return actor, courseID, examID, true
}

// rawScalar accepts numbers and numeric strings; anything else becomes an
// unparseable token that the service drops.
func rawScalar(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(raw))
}

func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrInvalidInput), errors.Is(err, exam.ErrInvalidInput):
		apiresp.WriteError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrForbidden):
		apiresp.WriteError(w, r, http.StatusForbidden, "forbidden")
	case errors.Is(err, ErrCourseNotFound), errors.Is(err, exam.ErrExamNotFound):
		apiresp.WriteError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrWindowClosed):
		apiresp.WriteError(w, r, http.StatusConflict, err.Error())
	default:
		apiresp.WriteError(w, r, http.StatusInternalServerError, "internal error")
	}
}
