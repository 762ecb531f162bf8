package course

import (
	"context"
	"errors"
	"net/http"

	"qbank/internal/app/apireq"
	"qbank/internal/app/apiresp"
	"qbank/internal/auth"
)

type courseService interface {
	Get(ctx context.Context, id int64) (*Course, error)
	List(ctx context.Context, actor *auth.Actor, f ListFilter) ([]Course, error)
	Create(ctx context.Context, actor *auth.Actor, in Input) (*Course, error)
	Update(ctx context.Context, actor *auth.Actor, id int64, in Input) (*Course, error)
	Delete(ctx context.Context, actor *auth.Actor, id int64) error
}

type Handler struct {
	svc courseService
}

type apiResponse struct {
	OK    bool        `json:"ok"`
	Data  interface{} `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
}

type courseRequest struct {
	Name             string `json:"name" validate:"required,max=200"`
	LecturerID       *int64 `json:"lecturer_id" validate:"omitempty,gt=0"`
	CommitteeID      int64  `json:"committee_id" validate:"omitempty,gt=0"`
	QuestionSet      int    `json:"question_set" validate:"gte=0"`
	FinalQuestionSet int    `json:"final_question_set" validate:"gte=0"`
	EventCount       int    `json:"event_count" validate:"gte=0"`
	Multilecture     bool   `json:"multilecture"`
	Active           *bool  `json:"active"`
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (req courseRequest) input() Input {
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	return Input{
		Name:             req.Name,
		LecturerID:       req.LecturerID,
		CommitteeID:      req.CommitteeID,
		QuestionSet:      req.QuestionSet,
		FinalQuestionSet: req.FinalQuestionSet,
		EventCount:       req.EventCount,
		Multilecture:     req.Multilecture,
		Active:           active,
	}
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.CurrentActor(r.Context())
	if !ok {
		writeJSON(w, r, http.StatusUnauthorized, apiResponse{OK: false, Error: "unauthorized"})
		return
	}
	committeeID, err := apireq.QueryID(r, "committee_id")
	if err != nil {
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: err.Error()})
		return
	}
	items, err := h.svc.List(r.Context(), actor, ListFilter{
		Q:           r.URL.Query().Get("q"),
		CommitteeID: committeeID,
		Active:      apireq.QueryBool(r, "active"),
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, apiResponse{OK: true, Data: items})
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := apireq.PathID(r, "id")
	if !ok {
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: "invalid course id"})
		return
	}
	item, err := h.svc.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, apiResponse{OK: true, Data: item})
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.CurrentActor(r.Context())
	if !ok {
		writeJSON(w, r, http.StatusUnauthorized, apiResponse{OK: false, Error: "unauthorized"})
		return
	}
	var req courseRequest
	if err := apireq.Decode(r, &req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: err.Error()})
		return
	}
	item, err := h.svc.Create(r.Context(), actor, req.input())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, apiResponse{OK: true, Data: item})
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.CurrentActor(r.Context())
	if !ok {
		writeJSON(w, r, http.StatusUnauthorized, apiResponse{OK: false, Error: "unauthorized"})
		return
	}
	id, ok := apireq.PathID(r, "id")
	if !ok {
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: "invalid course id"})
		return
	}
	var req courseRequest
	if err := apireq.Decode(r, &req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: err.Error()})
		return
	}
	item, err := h.svc.Update(r.Context(), actor, id, req.input())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, apiResponse{OK: true, Data: item})
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.CurrentActor(r.Context())
	if !ok {
		writeJSON(w, r, http.StatusUnauthorized, apiResponse{OK: false, Error: "unauthorized"})
		return
	}
	id, ok := apireq.PathID(r, "id")
	if !ok {
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: "invalid course id"})
		return
	}
	if err := h.svc.Delete(r.Context(), actor, id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, apiResponse{OK: true, Data: map[string]any{"deleted": id}})
}

func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrInvalidInput):
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: err.Error()})
	case errors.Is(err, ErrForbidden):
		writeJSON(w, r, http.StatusForbidden, apiResponse{OK: false, Error: "forbidden"})
	case errors.Is(err, ErrCourseNotFound):
		writeJSON(w, r, http.StatusNotFound, apiResponse{OK: false, Error: err.Error()})
	default:
		writeJSON(w, r, http.StatusInternalServerError, apiResponse{OK: false, Error: "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, r *http.Request, code int, payload apiResponse) {
	apiresp.WriteLegacy(w, r, code, payload.OK, payload.Data, payload.Error)
}
