package selection

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"qbank/internal/audit"
	"qbank/internal/auth"
	internaldb "qbank/internal/db"
	"qbank/internal/exam"
)

var (
	ErrInvalidInput   = errors.New("invalid input")
	ErrCourseNotFound = errors.New("course not found")
	ErrForbidden      = errors.New("forbidden")
	ErrWindowClosed   = errors.New("selection is closed for this exam (locked or past)")
)

// applyAttempts bounds retries when a concurrent apply wins a unique-key race.
const applyAttempts = 2

type examLookup interface {
	Get(ctx context.Context, id int64) (*exam.Exam, error)
	IsOpen(e *exam.Exam) bool
	View(e *exam.Exam) exam.View
}

type Service struct {
	db    *sql.DB
	exams examLookup
}

type Course struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	LecturerID  *int64 `json:"lecturer_id,omitempty"`
	CommitteeID int64  `json:"committee_id"`
	Required    int    `json:"required"`
}

type QuestionItem struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	QuestionText string `json:"question_text"`
	LecturerName string `json:"lecturer_name"`
	Type         string `json:"type"`
	Active       bool   `json:"active"`
	Selected     bool   `json:"selected"`
}

type View struct {
	Course        Course         `json:"course"`
	Exam          exam.View      `json:"exam"`
	Questions     []QuestionItem `json:"questions"`
	Required      int            `json:"required"`
	SelectedCount int            `json:"selected_count"`
	Remaining     int            `json:"remaining"`
	ExamUpcoming  bool           `json:"exam_upcoming"`
	CanManage     bool           `json:"can_manage"`
}

type Outcome struct {
	CourseID int64 `json:"course_id"`
	ExamID   int64 `json:"exam_id"`
	Required int   `json:"required"`
	Result
	Message string `json:"message"`
}

func NewService(db *sql.DB, exams examLookup) *Service {
	return &Service{db: db, exams: exams}
}

func (s *Service) authorize(ctx context.Context, actor *auth.Actor, courseID, examID int64) (*Course, *exam.Exam, error) {
	if courseID <= 0 || examID <= 0 {
		return nil, nil, ErrInvalidInput
	}
	if !actor.Authenticated() {
		return nil, nil, ErrForbidden
	}
	c, err := s.loadCourse(ctx, courseID)
	if err != nil {
		return nil, nil, err
	}
	e, err := s.exams.Get(ctx, examID)
	if err != nil {
		return nil, nil, err
	}
	if !auth.CanManageSelection(actor, auth.CourseRef{ID: c.ID, LecturerID: c.LecturerID}, e.Ref()) {
		return nil, nil, ErrForbidden
	}
	return c, e, nil
}

// View returns the course's questions with the exam selection marked.
func (s *Service) View(ctx context.Context, actor *auth.Actor, courseID, examID int64) (*View, error) {
	c, e, err := s.authorize(ctx, actor, courseID, examID)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT q.id, q.name, q.question_text, COALESCE(f.full_name, ''), q.type, q.active,
			EXISTS(SELECT 1 FROM selections s WHERE s.exam_id = $2 AND s.question_id = q.id)
		FROM questions q
		LEFT JOIN faculty_profiles f ON f.id = q.lecturer_id
		WHERE q.course_id = $1
		ORDER BY q.name ASC, q.id ASC
	`, courseID, examID)
	if err != nil {
		return nil, fmt.Errorf("query course questions: %w", err)
	}
	defer rows.Close()

	out := &View{
		Course:       *c,
		Exam:         s.exams.View(e),
		Questions:    make([]QuestionItem, 0),
		Required:     c.Required,
		ExamUpcoming: s.exams.IsOpen(e),
		CanManage:    true,
	}
	for rows.Next() {
		var it QuestionItem
		if err := rows.Scan(&it.ID, &it.Name, &it.QuestionText, &it.LecturerName, &it.Type, &it.Active, &it.Selected); err != nil {
			return nil, fmt.Errorf("scan course question: %w", err)
		}
		if it.Selected {
			out.SelectedCount++
		}
		out.Questions = append(out.Questions, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate course questions: %w", err)
	}
	out.Remaining = max(out.Required-out.SelectedCount, 0)
	return out, nil
}

// Apply replaces the course's selection for the exam with rawIDs, honouring
// the course quota. Ids that do not parse or do not belong to the course are
// dropped silently. The whole change commits or rolls back as one unit.
func (s *Service) Apply(ctx context.Context, actor *auth.Actor, courseID, examID int64, rawIDs []string) (*Outcome, error) {
	c, e, err := s.authorize(ctx, actor, courseID, examID)
	if err != nil {
		return nil, err
	}
	if !s.exams.IsOpen(e) {
		return nil, ErrWindowClosed
	}
	desired := ParseIDs(rawIDs)

	var res Result
	for attempt := 1; ; attempt++ {
		res, err = s.applyTx(ctx, actor, c, examID, desired)
		if err == nil {
			break
		}
		if !internaldb.IsUniqueViolation(err) || attempt >= applyAttempts {
			return nil, err
		}
	}
	return &Outcome{
		CourseID: c.ID,
		ExamID:   examID,
		Required: c.Required,
		Result:   res,
		Message:  res.Message(c.Required),
	}, nil
}

func (s *Service) applyTx(ctx context.Context, actor *auth.Actor, c *Course, examID int64, desired []int64) (Result, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Result{}, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	current, err := queryIDs(ctx, tx, `SELECT question_id FROM selections WHERE exam_id = $1 AND course_id = $2`, examID, c.ID)
	if err != nil {
		return Result{}, fmt.Errorf("load current selection: %w", err)
	}
	valid, err := queryIDs(ctx, tx, `SELECT id FROM questions WHERE course_id = $1`, c.ID)
	if err != nil {
		return Result{}, fmt.Errorf("load course questions: %w", err)
	}

	res := Reconcile(current, desired, c.Required, valid)

	for _, qid := range res.ToAdd {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO selections (exam_id, course_id, question_id, created_at)
			VALUES ($1, $2, $3, now())
			ON CONFLICT (exam_id, question_id) DO NOTHING
		`, examID, c.ID, qid); err != nil {
			return Result{}, fmt.Errorf("insert selection: %w", err)
		}
	}
	for _, qid := range res.ToRemove {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM selections WHERE exam_id = $1 AND course_id = $2 AND question_id = $3
		`, examID, c.ID, qid); err != nil {
			return Result{}, fmt.Errorf("delete selection: %w", err)
		}
	}

	if res.Added > 0 || res.Removed > 0 {
		if err := audit.Write(ctx, tx, actor.UserID, "selection_apply", "exam", fmt.Sprint(examID), map[string]any{
			"course_id": c.ID,
			"added":     res.ToAdd,
			"removed":   res.ToRemove,
			"blocked":   res.Blocked,
		}); err != nil {
			return Result{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return Result{}, fmt.Errorf("commit tx: %w", err)
	}
	return res, nil
}

func (s *Service) loadCourse(ctx context.Context, id int64) (*Course, error) {
	var out Course
	var lecturerID sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, lecturer_id, committee_id, question_set
		FROM courses
		WHERE id = $1
	`, id).Scan(&out.ID, &out.Name, &lecturerID, &out.CommitteeID, &out.Required)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCourseNotFound
		}
		return nil, fmt.Errorf("load course: %w", err)
	}
	if lecturerID.Valid {
		out.LecturerID = &lecturerID.Int64
	}
	return &out, nil
}

func queryIDs(ctx context.Context, tx *sql.Tx, query string, args ...any) (Set, error) {
	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(Set)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out[id] = struct{}{}
	}
	return out, rows.Err()
}
