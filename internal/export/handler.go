package export

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"qbank/internal/app/apireq"
	"qbank/internal/app/apiresp"
	"qbank/internal/auth"
	"qbank/internal/exam"
)

type exportService interface {
	Moodle(ctx context.Context, actor *auth.Actor, examID int64, w io.Writer) (int, error)
	Aiken(ctx context.Context, actor *auth.Actor, examID int64, w io.Writer) (int, error)
}

type Handler struct {
	svc exportService
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Moodle(w http.ResponseWriter, r *http.Request) {
	h.download(w, r, "application/xml", MoodleFilename, h.svc.Moodle)
}

func (h *Handler) Aiken(w http.ResponseWriter, r *http.Request) {
	h.download(w, r, "text/plain; charset=utf-8", AikenFilename, h.svc.Aiken)
}

type renderFunc func(ctx context.Context, actor *auth.Actor, examID int64, w io.Writer) (int, error)

// download renders into memory first so a failure still gets a JSON error
// instead of a truncated attachment.
func (h *Handler) download(w http.ResponseWriter, r *http.Request, contentType string, filename func(int64) string, render renderFunc) {
	actor, ok := auth.CurrentActor(r.Context())
	if !ok {
		apiresp.WriteError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}
	examID, ok := apireq.PathID(r, "id")
	if !ok {
		apiresp.WriteError(w, r, http.StatusBadRequest, "invalid exam id")
		return
	}

	var buf bytes.Buffer
	count, err := render(r.Context(), actor, examID, &buf)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	w.Header().Set("X-Export-Count", strconv.Itoa(count))
	apiresp.WriteAttachment(w, contentType, filename(examID), buf.Bytes())
}

func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, exam.ErrInvalidInput):
		apiresp.WriteError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrForbidden):
		apiresp.WriteError(w, r, http.StatusForbidden, "forbidden")
	case errors.Is(err, exam.ErrExamNotFound):
		apiresp.WriteError(w, r, http.StatusNotFound, err.Error())
	default:
		apiresp.WriteError(w, r, http.StatusInternalServerError, "internal error")
	}
}
