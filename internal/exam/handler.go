package exam

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"qbank/internal/app/apireq"
	"qbank/internal/app/apiresp"
	"qbank/internal/auth"
)

type Handler struct {
	svc examService
}

type examService interface {
	Get(ctx context.Context, id int64) (*Exam, error)
	List(ctx context.Context, f ListFilter) ([]Exam, error)
	Create(ctx context.Context, actor *auth.Actor, in Input) (*Exam, error)
	Update(ctx context.Context, actor *auth.Actor, id int64, in Input) (*Exam, error)
	Delete(ctx context.Context, actor *auth.Actor, id int64) error
	SetLocked(ctx context.Context, actor *auth.Actor, id int64, locked bool) (*Exam, error)
	UpdateQuotas(ctx context.Context, actor *auth.Actor, examID int64, values map[string]string) (*QuotaResult, error)
	SelectedQuestions(ctx context.Context, examID int64) ([]SelectedQuestion, error)
	View(e *Exam) View
}

type response struct {
	OK    bool        `json:"ok"`
	Data  interface{} `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
}

type examRequest struct {
	Name         string `json:"name" validate:"required,max=200"`
	Type         string `json:"type" validate:"omitempty,oneof=theoric pratic final final_pratic"`
	Date         string `json:"date"`
	Start        string `json:"start"`
	Finish       string `json:"finish"`
	QTotal       int    `json:"qtotal" validate:"gte=0"`
	ProgramID    *int64 `json:"program_id" validate:"omitempty,gt=0"`
	CommitteeID  *int64 `json:"committee_id" validate:"omitempty,gt=0"`
	ApplyPenalty *bool  `json:"apply_penalty"`
	Locked       bool   `json:"locked"`
}

type lockRequest struct {
	Locked *bool `json:"locked" validate:"required"`
}

type quotasRequest struct {
	Quotas map[string]json.RawMessage `json:"quotas" validate:"required"`
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	programID, err := apireq.QueryID(r, "program_id")
	if err != nil {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: err.Error()})
		return
	}
	committeeID, err := apireq.QueryID(r, "committee_id")
	if err != nil {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: err.Error()})
		return
	}
	items, err := h.svc.List(r.Context(), ListFilter{
		Q:           r.URL.Query().Get("q"),
		Type:        r.URL.Query().Get("type"),
		ProgramID:   programID,
		CommitteeID: committeeID,
		Locked:      apireq.QueryBool(r, "locked"),
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	views := make([]View, 0, len(items))
	for i := range items {
		views = append(views, h.svc.View(&items[i]))
	}
	writeJSON(w, r, http.StatusOK, response{OK: true, Data: views})
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := apireq.PathID(r, "id")
	if !ok {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "invalid exam id"})
		return
	}
	e, err := h.svc.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, response{OK: true, Data: h.svc.View(e)})
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.CurrentActor(r.Context())
	if !ok {
		writeJSON(w, r, http.StatusUnauthorized, response{OK: false, Error: "unauthorized"})
		return
	}
	in, err := decodeExamInput(r)
	if err != nil {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: err.Error()})
		return
	}
	e, err := h.svc.Create(r.Context(), actor, in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, response{OK: true, Data: h.svc.View(e)})
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.CurrentActor(r.Context())
	if !ok {
		writeJSON(w, r, http.StatusUnauthorized, response{OK: false, Error: "unauthorized"})
		return
	}
	id, ok := apireq.PathID(r, "id")
	if !ok {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "invalid exam id"})
		return
	}
	in, err := decodeExamInput(r)
	if err != nil {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: err.Error()})
		return
	}
	e, err := h.svc.Update(r.Context(), actor, id, in)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, response{OK: true, Data: h.svc.View(e)})
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.CurrentActor(r.Context())
	if !ok {
		writeJSON(w, r, http.StatusUnauthorized, response{OK: false, Error: "unauthorized"})
		return
	}
	id, ok := apireq.PathID(r, "id")
	if !ok {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "invalid exam id"})
		return
	}
	if err := h.svc.Delete(r.Context(), actor, id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, response{OK: true, Data: map[string]any{"deleted": id}})
}

func (h *Handler) Lock(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.CurrentActor(r.Context())
	if !ok {
		writeJSON(w, r, http.StatusUnauthorized, response{OK: false, Error: "unauthorized"})
		return
	}
	id, ok := apireq.PathID(r, "id")
	if !ok {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "invalid exam id"})
		return
	}
	var req lockRequest
	if err := apireq.Decode(r, &req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: err.Error()})
		return
	}
	e, err := h.svc.SetLocked(r.Context(), actor, id, *req.Locked)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, response{OK: true, Data: h.svc.View(e)})
}

func (h *Handler) UpdateQuotas(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.CurrentActor(r.Context())
	if !ok {
		writeJSON(w, r, http.StatusUnauthorized, response{OK: false, Error: "unauthorized"})
		return
	}
	id, ok := apireq.PathID(r, "id")
	if !ok {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "invalid exam id"})
		return
	}
	var req quotasRequest
	if err := apireq.Decode(r, &req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: err.Error()})
		return
	}
	values := make(map[string]string, len(req.Quotas))
	for k, raw := range req.Quotas {
		values[k] = rawScalar(raw)
	}
	res, err := h.svc.UpdateQuotas(r.Context(), actor, id, values)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, response{OK: true, Data: res})
}

func (h *Handler) SelectedQuestions(w http.ResponseWriter, r *http.Request) {
	id, ok := apireq.PathID(r, "id")
	if !ok {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "invalid exam id"})
		return
	}
	items, err := h.svc.SelectedQuestions(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, response{OK: true, Data: items})
}

func decodeExamInput(r *http.Request) (Input, error) {
	var req examRequest
	if err := apireq.Decode(r, &req); err != nil {
		return Input{}, err
	}
	date, start, finish, err := parseExamSchedule(req.Date, req.Start, req.Finish)
	if err != nil {
		return Input{}, err
	}
	applyPenalty := true
	if req.ApplyPenalty != nil {
		applyPenalty = *req.ApplyPenalty
	}
	return Input{
		Name:         req.Name,
		Type:         req.Type,
		Date:         date,
		Start:        start,
		Finish:       finish,
		QTotal:       req.QTotal,
		ProgramID:    req.ProgramID,
		CommitteeID:  req.CommitteeID,
		ApplyPenalty: applyPenalty,
		Locked:       req.Locked,
	}, nil
}

func parseExamSchedule(dateRaw, startRaw, finishRaw string) (*time.Time, *time.Time, *time.Time, error) {
	parseOne := func(layout, raw string) (*time.Time, error) {
		v := strings.TrimSpace(raw)
		if v == "" {
			return nil, nil
		}
		t, err := time.Parse(layout, v)
		if err != nil {
			return nil, err
		}
		return &t, nil
	}
	date, err := parseOne(time.DateOnly, dateRaw)
	if err != nil {
		return nil, nil, nil, errors.New("date must be YYYY-MM-DD")
	}
	start, err := parseOne(time.RFC3339, startRaw)
	if err != nil {
		return nil, nil, nil, errors.New("start must be RFC3339")
	}
	finish, err := parseOne(time.RFC3339, finishRaw)
	if err != nil {
		return nil, nil, nil, errors.New("finish must be RFC3339")
	}
	return date, start, finish, nil
}

// rawScalar turns a JSON string or number into its text form.
func rawScalar(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(raw))
}

func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrInvalidInput):
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: err.Error()})
	case errors.Is(err, ErrForbidden):
		writeJSON(w, r, http.StatusForbidden, response{OK: false, Error: "forbidden"})
	case errors.Is(err, ErrExamNotFound):
		writeJSON(w, r, http.StatusNotFound, response{OK: false, Error: err.Error()})
	case errors.Is(err, ErrExamLocked), errors.Is(err, ErrWindowClosed):
		writeJSON(w, r, http.StatusConflict, response{OK: false, Error: err.Error()})
	default:
		writeJSON(w, r, http.StatusInternalServerError, response{OK: false, Error: "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, r *http.Request, code int, payload response) {
	if payload.OK {
		apiresp.WriteOK(w, r, code, payload.Data)
		return
	}
	apiresp.WriteError(w, r, code, payload.Error)
}
