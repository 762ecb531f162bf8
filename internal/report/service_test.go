package report

import (
	"context"
	"errors"
	"testing"

	"qbank/internal/auth"
	"qbank/internal/exam"
)

type stubExams struct {
	exam *exam.Exam
	err  error
	open bool
}

func (s stubExams) Get(ctx context.Context, id int64) (*exam.Exam, error) {
	return s.exam, s.err
}

func (s stubExams) IsOpen(e *exam.Exam) bool {
	return s.open
}

func TestSummarizeStatuses(t *testing.T) {
	out := &ExamSummary{Courses: []CourseQuota{
		{CourseID: 1, Required: 3, SelectedCount: 3},
		{CourseID: 2, Required: 5, SelectedCount: 2},
		{CourseID: 3, Required: 1, SelectedCount: 4},
	}}
	summarize(out)

	want := []struct {
		status    string
		remaining int
		over      int
	}{
		{StatusOK, 0, 0},
		{StatusLess, 3, 0},
		{StatusMore, 0, 3},
	}
	for i, w := range want {
		c := out.Courses[i]
		if c.Status != w.status || c.Remaining != w.remaining || c.Over != w.over {
			t.Fatalf("course %d: got %+v want %+v", c.CourseID, c, w)
		}
	}
	if out.SelectedTotal != 9 || out.RequiredTotal != 9 || !out.TotalMatch || out.CourseCount != 3 {
		t.Fatalf("unexpected totals: %+v", out)
	}
}

func TestSummarizeEmpty(t *testing.T) {
	out := &ExamSummary{Courses: []CourseQuota{}}
	summarize(out)
	if !out.TotalMatch || out.CourseCount != 0 {
		t.Fatalf("unexpected empty summary: %+v", out)
	}
}

func TestSummaryWithoutCommitteeSkipsQuery(t *testing.T) {
	chair := int64(5)
	svc := NewService(nil, stubExams{exam: &exam.Exam{ID: 2, Name: "Final", ChairID: &chair}, open: true})

	out, err := svc.SummaryByExam(context.Background(), &auth.Actor{UserID: 50, FacultyID: &chair}, 2)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if !out.ShowingAllCourses || !out.ExamUpcoming || !out.CanEditQSet {
		t.Fatalf("chair should see all and edit: %+v", out)
	}

	other := int64(9)
	out, err = svc.SummaryByExam(context.Background(), &auth.Actor{UserID: 90, FacultyID: &other}, 2)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if out.ShowingAllCourses || out.CanEditQSet {
		t.Fatalf("lecturer should get a scoped view: %+v", out)
	}
}

func TestSummaryErrors(t *testing.T) {
	svc := NewService(nil, stubExams{err: exam.ErrExamNotFound})
	if _, err := svc.SummaryByExam(context.Background(), nil, 1); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if _, err := svc.SummaryByExam(context.Background(), &auth.Actor{UserID: 1}, 1); !errors.Is(err, exam.ErrExamNotFound) {
		t.Fatalf("expected ErrExamNotFound, got %v", err)
	}
}
