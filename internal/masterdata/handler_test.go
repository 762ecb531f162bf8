package masterdata

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"qbank/internal/auth"

	"github.com/go-chi/chi/v5"
)

type mockMasterdataService struct {
	listCommitteesFn func(ctx context.Context, q string) ([]Committee, error)
	getCommitteeFn   func(ctx context.Context, id int64) (*Committee, error)
	createFn         func(ctx context.Context, actorID int64, in CreateCommitteeInput) (*Committee, error)
	upsertFacultyFn  func(ctx context.Context, actorID int64, in UpsertFacultyInput) (*FacultyProfile, error)
}

func (m *mockMasterdataService) ListCommittees(ctx context.Context, q string) ([]Committee, error) {
	if m.listCommitteesFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.listCommitteesFn(ctx, q)
}

func (m *mockMasterdataService) GetCommittee(ctx context.Context, id int64) (*Committee, error) {
	if m.getCommitteeFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.getCommitteeFn(ctx, id)
}

func (m *mockMasterdataService) CreateCommittee(ctx context.Context, actorID int64, in CreateCommitteeInput) (*Committee, error) {
	if m.createFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.createFn(ctx, actorID, in)
}

func (m *mockMasterdataService) UpsertFacultyProfile(ctx context.Context, actorID int64, in UpsertFacultyInput) (*FacultyProfile, error) {
	if m.upsertFacultyFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.upsertFacultyFn(ctx, actorID, in)
}

func withParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		rctx = chi.NewRouteContext()
	}
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func superuser(r *http.Request) *http.Request {
	return r.WithContext(auth.ContextWithActor(r.Context(), &auth.Actor{UserID: 1, IsSuperuser: true}))
}

func TestCreateCommitteeOK(t *testing.T) {
	h := &Handler{svc: &mockMasterdataService{
		createFn: func(ctx context.Context, actorID int64, in CreateCommitteeInput) (*Committee, error) {
			if actorID != 1 || in.ChairID != 5 || in.Name != "Block 3" {
				t.Fatalf("unexpected input: %+v", in)
			}
			if !in.StartDate.Equal(time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)) {
				t.Fatalf("unexpected start date: %v", in.StartDate)
			}
			return &Committee{ID: 3, Name: in.Name, ChairID: in.ChairID}, nil
		},
	}}

	payload := []byte(`{"name":"Block 3","chair_id":5,"start_date":"2026-09-01","end_date":"2026-10-30"}`)
	req := superuser(httptest.NewRequest(http.MethodPost, "/api/v1/committees", bytes.NewReader(payload)))
	w := httptest.NewRecorder()

	h.CreateCommittee(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
}

func TestCreateCommitteeRejectsBadDate(t *testing.T) {
	h := &Handler{svc: &mockMasterdataService{}}
	payload := []byte(`{"name":"Block 3","chair_id":5,"start_date":"01/09/2026","end_date":"2026-10-30"}`)
	req := superuser(httptest.NewRequest(http.MethodPost, "/api/v1/committees", bytes.NewReader(payload)))
	w := httptest.NewRecorder()

	h.CreateCommittee(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestCreateCommitteeChairNotFound(t *testing.T) {
	h := &Handler{svc: &mockMasterdataService{
		createFn: func(ctx context.Context, actorID int64, in CreateCommitteeInput) (*Committee, error) {
			return nil, ErrFacultyNotFound
		},
	}}
	payload := []byte(`{"name":"Block 3","chair_id":99,"start_date":"2026-09-01","end_date":"2026-10-30"}`)
	req := superuser(httptest.NewRequest(http.MethodPost, "/api/v1/committees", bytes.NewReader(payload)))
	w := httptest.NewRecorder()

	h.CreateCommittee(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestGetCommitteeInvalidID(t *testing.T) {
	h := &Handler{svc: &mockMasterdataService{}}
	req := withParam(httptest.NewRequest(http.MethodGet, "/api/v1/committees/x", nil), "id", "x")
	w := httptest.NewRecorder()

	h.GetCommittee(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestListCommitteesPassesQuery(t *testing.T) {
	h := &Handler{svc: &mockMasterdataService{
		listCommitteesFn: func(ctx context.Context, q string) ([]Committee, error) {
			if q != "block" {
				t.Fatalf("unexpected q %q", q)
			}
			return []Committee{{ID: 1, Name: "Block 1"}}, nil
		},
	}}
	req := httptest.NewRequest(http.MethodGet, "/api/v1/committees?q=block", nil)
	w := httptest.NewRecorder()

	h.ListCommittees(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["ok"] != true {
		t.Fatalf("expected ok=true")
	}
}

func TestUpsertFacultyValidation(t *testing.T) {
	h := &Handler{svc: &mockMasterdataService{}}
	req := superuser(httptest.NewRequest(http.MethodPut, "/api/v1/faculty", bytes.NewReader([]byte(`{"full_name":"X"}`))))
	w := httptest.NewRecorder()

	h.UpsertFaculty(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}
