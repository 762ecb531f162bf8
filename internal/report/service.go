package report

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"qbank/internal/auth"
	"qbank/internal/exam"
)

var ErrForbidden = errors.New("forbidden")

type examLookup interface {
	Get(ctx context.Context, id int64) (*exam.Exam, error)
	IsOpen(e *exam.Exam) bool
}

type Service struct {
	db    *sql.DB
	exams examLookup
}

// CourseQuota is one course row of the exam summary.
type CourseQuota struct {
	CourseID       int64  `json:"course_id"`
	Name           string `json:"name"`
	LecturerID     *int64 `json:"lecturer_id,omitempty"`
	LecturerName   string `json:"lecturer_name"`
	TotalQuestions int    `json:"total_questions"`
	SelectedCount  int    `json:"selected_count"`
	Required       int    `json:"required"`
	Remaining      int    `json:"remaining"`
	Over           int    `json:"over"`
	Status         string `json:"status"`
}

type ExamSummary struct {
	ExamID            int64         `json:"exam_id"`
	ExamName          string        `json:"exam_name"`
	Courses           []CourseQuota `json:"courses"`
	CourseCount       int           `json:"course_count"`
	ShowingAllCourses bool          `json:"showing_all_courses"`
	SelectedTotal     int           `json:"selected_total"`
	RequiredTotal     int           `json:"required_total"`
	TotalMatch        bool          `json:"total_match"`
	ExamUpcoming      bool          `json:"exam_upcoming"`
	CanEditQSet       bool          `json:"can_edit_qset"`
}

const (
	StatusOK   = "ok"
	StatusLess = "less"
	StatusMore = "more"
)

func NewService(db *sql.DB, exams examLookup) *Service {
	return &Service{db: db, exams: exams}
}

// SummaryByExam reports selected vs required counts per committee course.
// Chairs and superusers see every course; other faculty only their own.
func (s *Service) SummaryByExam(ctx context.Context, actor *auth.Actor, examID int64) (*ExamSummary, error) {
	if !actor.Authenticated() {
		return nil, ErrForbidden
	}
	e, err := s.exams.Get(ctx, examID)
	if err != nil {
		return nil, err
	}
	showAll := auth.CanViewAllExamCourses(actor, e.Ref())

	out := &ExamSummary{
		ExamID:            e.ID,
		ExamName:          e.Name,
		Courses:           make([]CourseQuota, 0),
		ShowingAllCourses: showAll,
		ExamUpcoming:      s.exams.IsOpen(e),
	}
	out.CanEditQSet = showAll && out.ExamUpcoming

	if e.CommitteeID != nil && (showAll || actor.FacultyID != nil) {
		rows, err := s.loadCourses(ctx, e.ID, *e.CommitteeID, showAll, actor.FacultyID)
		if err != nil {
			return nil, err
		}
		out.Courses = rows
	}
	summarize(out)
	return out, nil
}

func (s *Service) loadCourses(ctx context.Context, examID, committeeID int64, showAll bool, facultyID *int64) ([]CourseQuota, error) {
	query := `
		SELECT c.id, c.name, c.lecturer_id, COALESCE(f.full_name, ''), c.question_set,
			(SELECT COUNT(*) FROM questions q WHERE q.course_id = c.id),
			(SELECT COUNT(*) FROM selections s WHERE s.course_id = c.id AND s.exam_id = $1)
		FROM courses c
		LEFT JOIN faculty_profiles f ON f.id = c.lecturer_id
		WHERE c.committee_id = $2`
	args := []any{examID, committeeID}
	if !showAll {
		query += ` AND c.lecturer_id = $3`
		args = append(args, *facultyID)
	}
	query += ` ORDER BY c.name ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query exam courses: %w", err)
	}
	defer rows.Close()

	items := make([]CourseQuota, 0)
	for rows.Next() {
		var it CourseQuota
		var lecturerID sql.NullInt64
		if err := rows.Scan(&it.CourseID, &it.Name, &lecturerID, &it.LecturerName, &it.Required,
			&it.TotalQuestions, &it.SelectedCount); err != nil {
			return nil, fmt.Errorf("scan exam course: %w", err)
		}
		if lecturerID.Valid {
			it.LecturerID = &lecturerID.Int64
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate exam courses: %w", err)
	}
	return items, nil
}

func summarize(out *ExamSummary) {
	out.SelectedTotal, out.RequiredTotal = 0, 0
	for i := range out.Courses {
		c := &out.Courses[i]
		c.Remaining = max(c.Required-c.SelectedCount, 0)
		c.Over = max(c.SelectedCount-c.Required, 0)
		switch {
		case c.SelectedCount == c.Required:
			c.Status = StatusOK
		case c.SelectedCount < c.Required:
			c.Status = StatusLess
		default:
			c.Status = StatusMore
		}
		out.SelectedTotal += c.SelectedCount
		out.RequiredTotal += c.Required
	}
	out.CourseCount = len(out.Courses)
	out.TotalMatch = out.SelectedTotal == out.RequiredTotal
}
