package report

import (
	"context"
	"errors"
	"net/http"

	"qbank/internal/app/apireq"
	"qbank/internal/app/apiresp"
	"qbank/internal/auth"
	"qbank/internal/exam"
)

type summaryService interface {
	SummaryByExam(ctx context.Context, actor *auth.Actor, examID int64) (*ExamSummary, error)
}

type Handler struct {
	svc summaryService
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
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
	out, err := h.svc.SummaryByExam(r.Context(), actor, examID)
	if err != nil {
		switch {
		case errors.Is(err, ErrForbidden):
			apiresp.WriteError(w, r, http.StatusForbidden, "forbidden")
		case errors.Is(err, exam.ErrExamNotFound):
			apiresp.WriteError(w, r, http.StatusNotFound, err.Error())
		case errors.Is(err, exam.ErrInvalidInput):
			apiresp.WriteError(w, r, http.StatusBadRequest, err.Error())
		default:
			apiresp.WriteError(w, r, http.StatusInternalServerError, "internal error")
		}
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, out)
}
