package export

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"qbank/internal/auth"
	"qbank/internal/exam"

	"github.com/go-chi/chi/v5"
)

type mockExportService struct {
	moodleFn func(ctx context.Context, actor *auth.Actor, examID int64, w io.Writer) (int, error)
	aikenFn  func(ctx context.Context, actor *auth.Actor, examID int64, w io.Writer) (int, error)
}

func (m *mockExportService) Moodle(ctx context.Context, actor *auth.Actor, examID int64, w io.Writer) (int, error) {
	if m.moodleFn == nil {
		return 0, errors.New("not implemented")
	}
	return m.moodleFn(ctx, actor, examID, w)
}

func (m *mockExportService) Aiken(ctx context.Context, actor *auth.Actor, examID int64, w io.Writer) (int, error) {
	if m.aikenFn == nil {
		return 0, errors.New("not implemented")
	}
	return m.aikenFn(ctx, actor, examID, w)
}

func withParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func asUser(r *http.Request, actor *auth.Actor) *http.Request {
	return r.WithContext(auth.ContextWithActor(r.Context(), actor))
}

func TestMoodleDownload(t *testing.T) {
	h := &Handler{svc: &mockExportService{
		moodleFn: func(ctx context.Context, actor *auth.Actor, examID int64, w io.Writer) (int, error) {
			if examID != 42 || actor.UserID != 3 {
				t.Fatalf("unexpected args: exam=%d actor=%+v", examID, actor)
			}
			_, err := io.WriteString(w, "<quiz></quiz>\n")
			return 0, err
		},
	}}
	req := asUser(withParam(httptest.NewRequest(http.MethodGet, "/", nil), "id", "42"), &auth.Actor{UserID: 3})
	rr := httptest.NewRecorder()
	h.Moodle(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	if got := rr.Header().Get("Content-Type"); got != "application/xml" {
		t.Fatalf("unexpected content type %q", got)
	}
	if got := rr.Header().Get("Content-Disposition"); got != `attachment; filename="exam_42_moodle.xml"` {
		t.Fatalf("unexpected disposition %q", got)
	}
	if rr.Body.String() != "<quiz></quiz>\n" {
		t.Fatalf("unexpected body %q", rr.Body.String())
	}
}

func TestAikenDownload(t *testing.T) {
	h := &Handler{svc: &mockExportService{
		aikenFn: func(ctx context.Context, actor *auth.Actor, examID int64, w io.Writer) (int, error) {
			_, err := fmt.Fprint(w, "Q\nA. a\nANSWER: A\n")
			return 1, err
		},
	}}
	req := asUser(withParam(httptest.NewRequest(http.MethodGet, "/", nil), "id", "8"), &auth.Actor{UserID: 3, IsStaff: true})
	rr := httptest.NewRecorder()
	h.Aiken(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if got := rr.Header().Get("Content-Type"); got != "text/plain; charset=utf-8" {
		t.Fatalf("unexpected content type %q", got)
	}
	if got := rr.Header().Get("Content-Disposition"); !strings.Contains(got, `filename="exam_8_aiken.txt"`) {
		t.Fatalf("unexpected disposition %q", got)
	}
	if rr.Header().Get("X-Export-Count") != "1" {
		t.Fatalf("unexpected count header %q", rr.Header().Get("X-Export-Count"))
	}
}

func TestDownloadErrors(t *testing.T) {
	failing := func(err error) *Handler {
		return &Handler{svc: &mockExportService{
			aikenFn: func(ctx context.Context, actor *auth.Actor, examID int64, w io.Writer) (int, error) {
				_, _ = io.WriteString(w, "partial")
				return 0, err
			},
		}}
	}
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"not found", fmt.Errorf("load exam: %w", exam.ErrExamNotFound), http.StatusNotFound},
		{"forbidden", ErrForbidden, http.StatusForbidden},
		{"internal", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := asUser(withParam(httptest.NewRequest(http.MethodGet, "/", nil), "id", "1"), &auth.Actor{UserID: 3})
			rr := httptest.NewRecorder()
			failing(tc.err).Aiken(rr, req)
			if rr.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, rr.Code)
			}
			if strings.Contains(rr.Body.String(), "partial") {
				t.Fatalf("partial output leaked into error response")
			}
			if rr.Header().Get("Content-Disposition") != "" {
				t.Fatalf("error response must not be an attachment")
			}
		})
	}
}

func TestDownloadRequiresActorAndID(t *testing.T) {
	h := &Handler{svc: &mockExportService{}}

	rr := httptest.NewRecorder()
	h.Moodle(rr, withParam(httptest.NewRequest(http.MethodGet, "/", nil), "id", "1"))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	h.Moodle(rr, asUser(withParam(httptest.NewRequest(http.MethodGet, "/", nil), "id", "x"), &auth.Actor{UserID: 1}))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}
