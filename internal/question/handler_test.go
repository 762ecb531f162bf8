package question

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"qbank/internal/auth"

	"github.com/go-chi/chi/v5"
)

type mockQuestionService struct {
	createFn      func(ctx context.Context, actor *auth.Actor, in Question) (*Question, error)
	updateFn      func(ctx context.Context, actor *auth.Actor, id int64, in Question) (*Question, error)
	getFn         func(ctx context.Context, id int64) (*Question, error)
	deleteFn      func(ctx context.Context, actor *auth.Actor, id int64) error
	listFn        func(ctx context.Context, actor *auth.Actor, f ListFilter) ([]Question, error)
	attachImageFn func(ctx context.Context, actor *auth.Actor, questionID int64, imageType, filename string, r io.Reader) (*Image, error)
	importFn      func(ctx context.Context, actor *auth.Actor, courseID int64, r io.Reader) (*ImportReport, error)
	exportFn      func(ctx context.Context, actor *auth.Actor, f ListFilter) ([]byte, error)
}

func (m *mockQuestionService) ExportExcel(ctx context.Context, actor *auth.Actor, f ListFilter) ([]byte, error) {
	if m.exportFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.exportFn(ctx, actor, f)
}

func (m *mockQuestionService) Create(ctx context.Context, actor *auth.Actor, in Question) (*Question, error) {
	if m.createFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.createFn(ctx, actor, in)
}

func (m *mockQuestionService) Update(ctx context.Context, actor *auth.Actor, id int64, in Question) (*Question, error) {
	if m.updateFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.updateFn(ctx, actor, id, in)
}

func (m *mockQuestionService) Get(ctx context.Context, id int64) (*Question, error) {
	if m.getFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.getFn(ctx, id)
}

func (m *mockQuestionService) Delete(ctx context.Context, actor *auth.Actor, id int64) error {
	if m.deleteFn == nil {
		return errors.New("not implemented")
	}
	return m.deleteFn(ctx, actor, id)
}

func (m *mockQuestionService) List(ctx context.Context, actor *auth.Actor, f ListFilter) ([]Question, error) {
	if m.listFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.listFn(ctx, actor, f)
}

func (m *mockQuestionService) AttachImage(ctx context.Context, actor *auth.Actor, questionID int64, imageType, filename string, r io.Reader) (*Image, error) {
	if m.attachImageFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.attachImageFn(ctx, actor, questionID, imageType, filename, r)
}

func (m *mockQuestionService) ImportExcel(ctx context.Context, actor *auth.Actor, courseID int64, r io.Reader) (*ImportReport, error) {
	if m.importFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.importFn(ctx, actor, courseID, r)
}

func withParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		rctx = chi.NewRouteContext()
	}
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func withLecturer(r *http.Request) *http.Request {
	fid := int64(7)
	return r.WithContext(auth.ContextWithActor(r.Context(), &auth.Actor{UserID: 70, FacultyID: &fid}))
}

func decodeMap(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func TestCreateQuestionMapsRequest(t *testing.T) {
	h := &Handler{svc: &mockQuestionService{
		createFn: func(ctx context.Context, actor *auth.Actor, in Question) (*Question, error) {
			if actor.UserID != 70 || in.CourseID != 3 {
				t.Fatalf("unexpected input: actor=%+v in=%+v", actor, in)
			}
			if in.Options[1].Text != "Phrenic" || in.CorrectAnswer != "B" || !in.Single {
				t.Fatalf("unexpected options: %+v", in)
			}
			in.ID = 11
			return &in, nil
		},
	}}

	body := []byte(`{"course_id":3,"question_text":"Diaphragm?","answer_a":"Vagus","answer_b":"Phrenic","correct_answer":"B"}`)
	req := withLecturer(httptest.NewRequest(http.MethodPost, "/api/v1/questions", bytes.NewReader(body)))
	rr := httptest.NewRecorder()
	h.Create(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestCreateQuestionRequiresCourse(t *testing.T) {
	h := &Handler{svc: &mockQuestionService{}}
	body := []byte(`{"question_text":"x","correct_answer":"A"}`)
	rr := httptest.NewRecorder()
	h.Create(rr, withLecturer(httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body))))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestCreateQuestionUnauthorized(t *testing.T) {
	h := &Handler{svc: &mockQuestionService{}}
	rr := httptest.NewRecorder()
	h.Create(rr, httptest.NewRequest(http.MethodPost, "/", bytes.NewReader([]byte(`{}`))))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestUpdateQuestionErrorMapping(t *testing.T) {
	tests := []struct {
		err  error
		code int
	}{
		{ErrForbidden, http.StatusForbidden},
		{ErrQuestionNotFound, http.StatusNotFound},
		{ErrInvalidInput, http.StatusBadRequest},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range tests {
		h := &Handler{svc: &mockQuestionService{
			updateFn: func(ctx context.Context, actor *auth.Actor, id int64, in Question) (*Question, error) {
				return nil, tc.err
			},
		}}
		body := []byte(`{"question_text":"x","answer_a":"a","correct_answer":"A"}`)
		req := withParam(withLecturer(httptest.NewRequest(http.MethodPut, "/", bytes.NewReader(body))), "id", "5")
		rr := httptest.NewRecorder()
		h.Update(rr, req)
		if rr.Code != tc.code {
			t.Fatalf("err %v: expected %d, got %d", tc.err, tc.code, rr.Code)
		}
	}
}

func TestListQuestionsPassesFilter(t *testing.T) {
	h := &Handler{svc: &mockQuestionService{
		listFn: func(ctx context.Context, actor *auth.Actor, f ListFilter) ([]Question, error) {
			if f.CourseID != 3 || f.Type != "pratic" || f.Active == nil || !*f.Active || f.Limit != 10 {
				t.Fatalf("unexpected filter: %+v", f)
			}
			return []Question{{ID: 1}}, nil
		},
	}}
	req := withLecturer(httptest.NewRequest(http.MethodGet, "/api/v1/questions?course_id=3&type=pratic&active=1&limit=10", nil))
	rr := httptest.NewRecorder()
	h.List(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if body := decodeMap(t, rr); body["ok"] != true {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestGetQuestionInvalidID(t *testing.T) {
	h := &Handler{svc: &mockQuestionService{}}
	rr := httptest.NewRecorder()
	h.Get(rr, withParam(httptest.NewRequest(http.MethodGet, "/", nil), "id", "abc"))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func multipartBody(t *testing.T, filename string, content []byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		_ = mw.WriteField(k, v)
	}
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	_, _ = fw.Write(content)
	_ = mw.Close()
	return &buf, mw.FormDataContentType()
}

func TestUploadImage(t *testing.T) {
	h := &Handler{svc: &mockQuestionService{
		attachImageFn: func(ctx context.Context, actor *auth.Actor, questionID int64, imageType, filename string, r io.Reader) (*Image, error) {
			data, _ := io.ReadAll(r)
			if questionID != 5 || imageType != "Q" || filename != "heart.png" || string(data) != "PNGDATA" {
				t.Fatalf("unexpected upload: %d %q %q %q", questionID, imageType, filename, data)
			}
			return &Image{ID: 1, QuestionID: questionID, ImageType: imageType}, nil
		},
	}}
	body, ct := multipartBody(t, "heart.png", []byte("PNGDATA"), map[string]string{"image_type": "Q"})
	req := httptest.NewRequest(http.MethodPost, "/", body)
	req.Header.Set("Content-Type", ct)
	rr := httptest.NewRecorder()
	h.UploadImage(rr, withParam(withLecturer(req), "id", "5"))
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestImportExcelRejectsExtension(t *testing.T) {
	h := &Handler{svc: &mockQuestionService{}}
	body, ct := multipartBody(t, "questions.csv", []byte("a,b"), nil)
	req := httptest.NewRequest(http.MethodPost, "/", body)
	req.Header.Set("Content-Type", ct)
	rr := httptest.NewRecorder()
	h.ImportExcel(rr, withParam(withLecturer(req), "id", "3"))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestImportExcelReturnsReport(t *testing.T) {
	h := &Handler{svc: &mockQuestionService{
		importFn: func(ctx context.Context, actor *auth.Actor, courseID int64, r io.Reader) (*ImportReport, error) {
			return &ImportReport{TotalRows: 2, SuccessRows: 1, FailedRows: 1, Errors: []ImportRowError{{Row: 3, Error: "bad"}}}, nil
		},
	}}
	body, ct := multipartBody(t, "questions.xlsx", []byte("zip"), nil)
	req := httptest.NewRequest(http.MethodPost, "/", body)
	req.Header.Set("Content-Type", ct)
	rr := httptest.NewRecorder()
	h.ImportExcel(rr, withParam(withLecturer(req), "id", "3"))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	data := decodeMap(t, rr)["data"].(map[string]any)
	if data["filename"] != "questions.xlsx" {
		t.Fatalf("unexpected data: %v", data)
	}
}

func TestAttachImageValidatesBeforeLookup(t *testing.T) {
	svc := NewService(nil, t.TempDir())
	fid := int64(7)
	actor := &auth.Actor{UserID: 70, FacultyID: &fid}
	if _, err := svc.AttachImage(context.Background(), actor, 1, "X", "a.png", bytes.NewReader(nil)); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for type, got %v", err)
	}
	if _, err := svc.AttachImage(context.Background(), actor, 1, "Q", "a.exe", bytes.NewReader(nil)); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for extension, got %v", err)
	}
}

func TestExportExcelDownload(t *testing.T) {
	h := &Handler{svc: &mockQuestionService{
		exportFn: func(ctx context.Context, actor *auth.Actor, f ListFilter) ([]byte, error) {
			if f.CourseID != 4 {
				t.Fatalf("course filter not passed: %+v", f)
			}
			return []byte("xlsx"), nil
		},
	}}
	rr := httptest.NewRecorder()
	h.ExportExcel(rr, withLecturer(httptest.NewRequest(http.MethodGet, "/api/v1/questions/export.xlsx?course_id=4", nil)))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	if got := rr.Header().Get("Content-Disposition"); got != `attachment; filename="questions.xlsx"` {
		t.Fatalf("unexpected disposition %q", got)
	}
	if rr.Body.String() != "xlsx" {
		t.Fatalf("unexpected body %q", rr.Body.String())
	}
}
