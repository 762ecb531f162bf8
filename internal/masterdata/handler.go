package masterdata

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"qbank/internal/app/apireq"
	"qbank/internal/app/apiresp"
	"qbank/internal/auth"
)

type masterdataService interface {
	ListCommittees(ctx context.Context, q string) ([]Committee, error)
	GetCommittee(ctx context.Context, id int64) (*Committee, error)
	CreateCommittee(ctx context.Context, actorID int64, in CreateCommitteeInput) (*Committee, error)
	UpsertFacultyProfile(ctx context.Context, actorID int64, in UpsertFacultyInput) (*FacultyProfile, error)
}

type Handler struct {
	svc masterdataService
}

type apiResponse struct {
	OK    bool        `json:"ok"`
	Data  interface{} `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
}

type createCommitteeRequest struct {
	Name      string `json:"name" validate:"required,max=100"`
	ProgramID *int64 `json:"program_id" validate:"omitempty,gt=0"`
	ChairID   int64  `json:"chair_id" validate:"required,gt=0"`
	StartDate string `json:"start_date" validate:"required"`
	EndDate   string `json:"end_date" validate:"required"`
}

type upsertFacultyRequest struct {
	UserID       int64  `json:"user_id" validate:"required,gt=0"`
	FacultyNo    *int   `json:"faculty_id" validate:"omitempty,gte=0"`
	FullName     string `json:"full_name" validate:"required,max=200"`
	DepartmentID *int64 `json:"department_id" validate:"omitempty,gt=0"`
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) ListCommittees(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.ListCommittees(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		writeJSON(w, r, http.StatusInternalServerError, apiResponse{OK: false, Error: "internal error"})
		return
	}
	writeJSON(w, r, http.StatusOK, apiResponse{OK: true, Data: items})
}

func (h *Handler) GetCommittee(w http.ResponseWriter, r *http.Request) {
	id, ok := apireq.PathID(r, "id")
	if !ok {
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: "invalid committee id"})
		return
	}
	item, err := h.svc.GetCommittee(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, apiResponse{OK: true, Data: item})
}

func (h *Handler) CreateCommittee(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.CurrentActor(r.Context())
	if !ok {
		writeJSON(w, r, http.StatusUnauthorized, apiResponse{OK: false, Error: "unauthorized"})
		return
	}

	var req createCommitteeRequest
	if err := apireq.Decode(r, &req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: err.Error()})
		return
	}
	start, err := time.Parse(time.DateOnly, strings.TrimSpace(req.StartDate))
	if err != nil {
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: "start_date must be YYYY-MM-DD"})
		return
	}
	end, err := time.Parse(time.DateOnly, strings.TrimSpace(req.EndDate))
	if err != nil {
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: "end_date must be YYYY-MM-DD"})
		return
	}

	item, err := h.svc.CreateCommittee(r.Context(), actor.UserID, CreateCommitteeInput{
		Name:      req.Name,
		ProgramID: req.ProgramID,
		ChairID:   req.ChairID,
		StartDate: start,
		EndDate:   end,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, apiResponse{OK: true, Data: item})
}

func (h *Handler) UpsertFaculty(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.CurrentActor(r.Context())
	if !ok {
		writeJSON(w, r, http.StatusUnauthorized, apiResponse{OK: false, Error: "unauthorized"})
		return
	}

	var req upsertFacultyRequest
	if err := apireq.Decode(r, &req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: err.Error()})
		return
	}
	item, err := h.svc.UpsertFacultyProfile(r.Context(), actor.UserID, UpsertFacultyInput{
		UserID:       req.UserID,
		FacultyNo:    req.FacultyNo,
		FullName:     req.FullName,
		DepartmentID: req.DepartmentID,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, apiResponse{OK: true, Data: item})
}

func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrInvalidInput):
		writeJSON(w, r, http.StatusBadRequest, apiResponse{OK: false, Error: err.Error()})
	case errors.Is(err, ErrCommitteeNotFound), errors.Is(err, ErrFacultyNotFound):
		writeJSON(w, r, http.StatusNotFound, apiResponse{OK: false, Error: err.Error()})
	default:
		writeJSON(w, r, http.StatusInternalServerError, apiResponse{OK: false, Error: "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, r *http.Request, code int, payload apiResponse) {
	apiresp.WriteLegacy(w, r, code, payload.OK, payload.Data, payload.Error)
}
