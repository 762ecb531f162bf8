package exam

import (
	"context"
	"errors"
	"testing"
	"time"

	"qbank/internal/auth"
)

func TestInputValidate(t *testing.T) {
	loc := time.FixedZone("TRT", 3*3600)
	day := time.Date(2026, 11, 2, 0, 0, 0, 0, time.UTC)
	start := time.Date(2026, 11, 2, 9, 0, 0, 0, loc)
	finish := time.Date(2026, 11, 2, 11, 0, 0, 0, loc)
	nextDay := time.Date(2026, 11, 3, 9, 0, 0, 0, loc)
	// 01:30 local on the exam day is still the previous day in UTC.
	earlyLocal := time.Date(2026, 11, 2, 1, 30, 0, 0, loc)

	tests := []struct {
		name string
		in   Input
		ok   bool
	}{
		{name: "valid", in: Input{Name: "Block 1 Theory", Type: "theoric", Date: &day, Start: &start, Finish: &finish}, ok: true},
		{name: "type defaults", in: Input{Name: "Undated"}, ok: true},
		{name: "early local start on date", in: Input{Name: "Early", Date: &day, Start: &earlyLocal}, ok: true},
		{name: "missing name", in: Input{Type: "final"}},
		{name: "bad type", in: Input{Name: "x", Type: "oral"}},
		{name: "negative qtotal", in: Input{Name: "x", QTotal: -1}},
		{name: "finish before start", in: Input{Name: "x", Start: &finish, Finish: &start}},
		{name: "finish equals start", in: Input{Name: "x", Start: &start, Finish: &start}},
		{name: "start on other day", in: Input{Name: "x", Date: &day, Start: &nextDay}},
		{name: "finish on other day", in: Input{Name: "x", Date: &day, Start: &start, Finish: &nextDay}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			in := tc.in
			err := in.validate(loc)
			if tc.ok && err != nil {
				t.Fatalf("unexpected err: %v", err)
			}
			if !tc.ok && !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("expected ErrInvalidInput, got %v", err)
			}
		})
	}
}

func TestPlanQuotaChanges(t *testing.T) {
	current := map[int64]int{10: 3, 11: 5, 12: 0, 14: 1}
	values := map[string]string{
		"qs_10": "4",
		"qs_11": "5",
		"14":    " 2 ",
		"qs_99": "7",
		"qs_x":  "1",
		"qs_12": "-2",
		"qs_13": "-1",
	}

	out := &QuotaResult{}
	changes := planQuotaChanges(current, values, out)
	if out.Changed != 2 {
		t.Fatalf("expected 2 changes, got %d (%+v)", out.Changed, changes)
	}
	// qs_x has a bad key and qs_12 a negative value; qs_99 and qs_13 are outside the committee.
	if out.Errors != 2 {
		t.Fatalf("expected 2 errors, got %d", out.Errors)
	}
	if len(changes) != 2 || changes[0].courseID != 10 || changes[0].value != 4 || changes[1].courseID != 14 || changes[1].value != 2 {
		t.Fatalf("unexpected changes: %+v", changes)
	}
}

func TestPlanQuotaChangesRejectsNonInteger(t *testing.T) {
	out := &QuotaResult{}
	changes := planQuotaChanges(map[int64]int{1: 2}, map[string]string{"qs_1": "2.5"}, out)
	if len(changes) != 0 || out.Errors != 1 {
		t.Fatalf("unexpected result: %+v %+v", changes, out)
	}
}

func TestMutationsRequireSuperuser(t *testing.T) {
	svc := NewService(nil, time.UTC)
	fid := int64(3)
	chair := &auth.Actor{UserID: 30, FacultyID: &fid}
	ctx := context.Background()

	if _, err := svc.Create(ctx, chair, Input{Name: "x"}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("create: expected ErrForbidden, got %v", err)
	}
	if _, err := svc.Update(ctx, chair, 1, Input{Name: "x"}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("update: expected ErrForbidden, got %v", err)
	}
	if err := svc.Delete(ctx, nil, 1); !errors.Is(err, ErrForbidden) {
		t.Fatalf("delete: expected ErrForbidden, got %v", err)
	}
}

func TestServiceViewUsesClock(t *testing.T) {
	svc := NewService(nil, time.UTC)
	now := time.Date(2026, 10, 16, 8, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	future := now.Add(time.Hour)
	v := svc.View(&Exam{ID: 1, Start: &future})
	if v.Window != WindowScheduledFuture || !v.OpenForSelection {
		t.Fatalf("unexpected view: %+v", v)
	}
	if svc.IsOpen(&Exam{ID: 1, Start: &future, Locked: true}) {
		t.Fatal("locked exam must be closed")
	}
}
