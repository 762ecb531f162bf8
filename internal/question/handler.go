package question

import (
	"context"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"qbank/internal/app/apireq"
	"qbank/internal/app/apiresp"
	"qbank/internal/auth"
)

type questionService interface {
	Create(ctx context.Context, actor *auth.Actor, in Question) (*Question, error)
	Update(ctx context.Context, actor *auth.Actor, id int64, in Question) (*Question, error)
	Get(ctx context.Context, id int64) (*Question, error)
	Delete(ctx context.Context, actor *auth.Actor, id int64) error
	List(ctx context.Context, actor *auth.Actor, f ListFilter) ([]Question, error)
	AttachImage(ctx context.Context, actor *auth.Actor, questionID int64, imageType, filename string, r io.Reader) (*Image, error)
	ImportExcel(ctx context.Context, actor *auth.Actor, courseID int64, r io.Reader) (*ImportReport, error)
	ExportExcel(ctx context.Context, actor *auth.Actor, f ListFilter) ([]byte, error)
}

type Handler struct {
	svc questionService
}

type questionRequest struct {
	CourseID        int64     `json:"course_id" validate:"omitempty,gt=0"`
	Name            string    `json:"name" validate:"max=255"`
	QuestionText    string    `json:"question_text" validate:"required"`
	GeneralFeedback string    `json:"general_feedback"`
	DefaultGrade    *float64  `json:"default_grade" validate:"omitempty,gte=0"`
	Penalty         float64   `json:"penalty" validate:"gte=0,lte=1"`
	Hidden          bool      `json:"hidden"`
	Single          *bool     `json:"single"`
	ShuffleAnswers  *bool     `json:"shuffle_answers"`
	AnswerNumbering string    `json:"answer_numbering" validate:"max=10"`
	AnswerA         string    `json:"answer_a"`
	AnswerB         string    `json:"answer_b"`
	AnswerC         string    `json:"answer_c"`
	AnswerD         string    `json:"answer_d"`
	AnswerE         string    `json:"answer_e"`
	Fractions       []float64 `json:"fractions" validate:"omitempty,max=5,dive,gte=-1,lte=1"`
	CorrectAnswer   string    `json:"correct_answer" validate:"required,max=1"`
	Tag1            string    `json:"tag_1" validate:"max=200"`
	Tag2            string    `json:"tag_2" validate:"max=200"`
	Type            string    `json:"type" validate:"omitempty,oneof=theoric pratic"`
	Active          *bool     `json:"active"`
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (req questionRequest) toQuestion() Question {
	q := Question{
		CourseID:        req.CourseID,
		Name:            req.Name,
		QuestionText:    req.QuestionText,
		GeneralFeedback: req.GeneralFeedback,
		DefaultGrade:    1,
		Penalty:         req.Penalty,
		Hidden:          req.Hidden,
		Single:          true,
		ShuffleAnswers:  true,
		AnswerNumbering: req.AnswerNumbering,
		CorrectAnswer:   req.CorrectAnswer,
		Tag1:            req.Tag1,
		Tag2:            req.Tag2,
		Type:            req.Type,
		Active:          true,
	}
	if req.DefaultGrade != nil {
		q.DefaultGrade = *req.DefaultGrade
	}
	if req.Single != nil {
		q.Single = *req.Single
	}
	if req.ShuffleAnswers != nil {
		q.ShuffleAnswers = *req.ShuffleAnswers
	}
	if req.Active != nil {
		q.Active = *req.Active
	}
	texts := [OptionCount]string{req.AnswerA, req.AnswerB, req.AnswerC, req.AnswerD, req.AnswerE}
	for i := range q.Options {
		q.Options[i].Text = texts[i]
		if i < len(req.Fractions) {
			q.Options[i].Fraction = req.Fractions[i]
		}
	}
	return q
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.CurrentActor(r.Context())
	if !ok {
		apiresp.WriteError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}
	courseID, err := apireq.QueryID(r, "course_id")
	if err != nil {
		apiresp.WriteError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	limit, offset := apireq.Page(r)
	items, err := h.svc.List(r.Context(), actor, ListFilter{
		Q:        r.URL.Query().Get("q"),
		CourseID: courseID,
		Type:     r.URL.Query().Get("type"),
		Active:   apireq.QueryBool(r, "active"),
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, items)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := apireq.PathID(r, "id")
	if !ok {
		apiresp.WriteError(w, r, http.StatusBadRequest, "invalid question id")
		return
	}
	item, err := h.svc.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, item)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.CurrentActor(r.Context())
	if !ok {
		apiresp.WriteError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req questionRequest
	if err := apireq.Decode(r, &req); err != nil {
		apiresp.WriteError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.CourseID <= 0 {
		apiresp.WriteError(w, r, http.StatusBadRequest, "course_id is required")
		return
	}
	item, err := h.svc.Create(r.Context(), actor, req.toQuestion())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusCreated, item)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.CurrentActor(r.Context())
	if !ok {
		apiresp.WriteError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}
	id, ok := apireq.PathID(r, "id")
	if !ok {
		apiresp.WriteError(w, r, http.StatusBadRequest, "invalid question id")
		return
	}
	var req questionRequest
	if err := apireq.Decode(r, &req); err != nil {
		apiresp.WriteError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	item, err := h.svc.Update(r.Context(), actor, id, req.toQuestion())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, item)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.CurrentActor(r.Context())
	if !ok {
		apiresp.WriteError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}
	id, ok := apireq.PathID(r, "id")
	if !ok {
		apiresp.WriteError(w, r, http.StatusBadRequest, "invalid question id")
		return
	}
	if err := h.svc.Delete(r.Context(), actor, id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, map[string]any{"deleted": id})
}

func (h *Handler) UploadImage(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.CurrentActor(r.Context())
	if !ok {
		apiresp.WriteError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}
	id, ok := apireq.PathID(r, "id")
	if !ok {
		apiresp.WriteError(w, r, http.StatusBadRequest, "invalid question id")
		return
	}
	if err := r.ParseMultipartForm(16 << 20); err != nil {
		apiresp.WriteError(w, r, http.StatusBadRequest, "invalid multipart form")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		apiresp.WriteError(w, r, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	img, err := h.svc.AttachImage(r.Context(), actor, id, r.FormValue("image_type"), header.Filename, file)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusCreated, img)
}

func (h *Handler) ImportExcel(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.CurrentActor(r.Context())
	if !ok {
		apiresp.WriteError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}
	courseID, ok := apireq.PathID(r, "id")
	if !ok {
		apiresp.WriteError(w, r, http.StatusBadRequest, "invalid course id")
		return
	}
	if err := r.ParseMultipartForm(16 << 20); err != nil {
		apiresp.WriteError(w, r, http.StatusBadRequest, "invalid multipart form")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		apiresp.WriteError(w, r, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()
	if ext := strings.ToLower(filepath.Ext(header.Filename)); ext != ".xlsx" {
		apiresp.WriteError(w, r, http.StatusBadRequest, "file must be .xlsx")
		return
	}

	report, err := h.svc.ImportExcel(r.Context(), actor, courseID, file)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, map[string]any{
		"filename": header.Filename,
		"report":   report,
	})
}

func (h *Handler) ExportExcel(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.CurrentActor(r.Context())
	if !ok {
		apiresp.WriteError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}
	courseID, err := apireq.QueryID(r, "course_id")
	if err != nil {
		apiresp.WriteError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	data, err := h.svc.ExportExcel(r.Context(), actor, ListFilter{
		Q:        r.URL.Query().Get("q"),
		CourseID: courseID,
		Type:     r.URL.Query().Get("type"),
		Active:   apireq.QueryBool(r, "active"),
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	apiresp.WriteAttachment(w, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", "questions.xlsx", data)
}

func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrInvalidInput):
		apiresp.WriteError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrForbidden):
		apiresp.WriteError(w, r, http.StatusForbidden, "forbidden")
	case errors.Is(err, ErrQuestionNotFound), errors.Is(err, ErrCourseNotFound), errors.Is(err, ErrImageNotFound):
		apiresp.WriteError(w, r, http.StatusNotFound, err.Error())
	default:
		apiresp.WriteError(w, r, http.StatusInternalServerError, "internal error")
	}
}
