package course

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"qbank/internal/audit"
	"qbank/internal/auth"
	"qbank/internal/question"
)

var (
	ErrInvalidInput   = errors.New("invalid input")
	ErrCourseNotFound = errors.New("course not found")
	ErrForbidden      = errors.New("forbidden")
)

type Service struct {
	db *sql.DB
}

type Course struct {
	ID               int64  `json:"id"`
	Name             string `json:"name"`
	LecturerID       *int64 `json:"lecturer_id,omitempty"`
	LecturerName     string `json:"lecturer_name"`
	CommitteeID      int64  `json:"committee_id"`
	CommitteeName    string `json:"committee_name"`
	ChairID          int64  `json:"chair_id"`
	QuestionSet      int    `json:"question_set"`
	FinalQuestionSet int    `json:"final_question_set"`
	EventCount       int    `json:"event_count"`
	Multilecture     bool   `json:"multilecture"`
	Active           bool   `json:"active"`
	DepartmentID     *int64 `json:"department_id,omitempty"`
	QuestionCount    int    `json:"question_count"`
}

type Input struct {
	Name             string
	LecturerID       *int64
	CommitteeID      int64
	QuestionSet      int
	FinalQuestionSet int
	EventCount       int
	Multilecture     bool
	Active           bool
}

type ListFilter struct {
	Q           string
	CommitteeID int64
	Active      *bool
}

func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

func (in *Input) validate() error {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if len(in.Name) > 200 {
		return fmt.Errorf("%w: name is too long", ErrInvalidInput)
	}
	if in.CommitteeID <= 0 {
		return fmt.Errorf("%w: committee_id is required", ErrInvalidInput)
	}
	if in.QuestionSet < 0 || in.FinalQuestionSet < 0 || in.EventCount < 0 {
		return fmt.Errorf("%w: question_set, final_question_set and event_count must be >= 0", ErrInvalidInput)
	}
	return nil
}

func (c *Course) ref() auth.CourseRef {
	return auth.CourseRef{ID: c.ID, LecturerID: c.LecturerID}
}

const courseSelect = `
	SELECT c.id, c.name, c.lecturer_id, COALESCE(f.full_name, ''), c.committee_id, cm.name, cm.chair_id,
		c.question_set, c.final_question_set, c.event_count, c.multilecture, c.active, c.department_id,
		(SELECT COUNT(*) FROM questions q WHERE q.course_id = c.id)
	FROM courses c
	JOIN committees cm ON cm.id = c.committee_id
	LEFT JOIN faculty_profiles f ON f.id = c.lecturer_id`

func (s *Service) Get(ctx context.Context, id int64) (*Course, error) {
	if id <= 0 {
		return nil, ErrInvalidInput
	}
	out, err := scanCourse(s.db.QueryRowContext(ctx, courseSelect+` WHERE c.id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCourseNotFound
		}
		return nil, fmt.Errorf("load course: %w", err)
	}
	return out, nil
}

// List scopes courses to the actor: superusers see everything, committee
// chairs see their committees' courses, lecturers see their own.
func (s *Service) List(ctx context.Context, actor *auth.Actor, f ListFilter) ([]Course, error) {
	if !actor.Authenticated() {
		return nil, ErrForbidden
	}
	query := courseSelect + ` WHERE 1 = 1`
	args := make([]any, 0, 4)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if !actor.IsSuperuser {
		if actor.FacultyID == nil {
			return []Course{}, nil
		}
		p := arg(*actor.FacultyID)
		query += ` AND (cm.chair_id = ` + p + ` OR c.lecturer_id = ` + p + `)`
	}
	if q := strings.TrimSpace(f.Q); q != "" {
		query += ` AND c.name ILIKE ` + arg("%"+q+"%")
	}
	if f.CommitteeID > 0 {
		query += ` AND c.committee_id = ` + arg(f.CommitteeID)
	}
	if f.Active != nil {
		query += ` AND c.active = ` + arg(*f.Active)
	}
	query += ` ORDER BY cm.name ASC, c.name ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query courses: %w", err)
	}
	defer rows.Close()

	items := make([]Course, 0)
	for rows.Next() {
		item, err := scanCourse(rows)
		if err != nil {
			return nil, fmt.Errorf("scan course: %w", err)
		}
		items = append(items, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate courses: %w", err)
	}
	return items, nil
}

func (s *Service) Create(ctx context.Context, actor *auth.Actor, in Input) (*Course, error) {
	if !actor.Authenticated() || !actor.IsSuperuser {
		return nil, ErrForbidden
	}
	if err := in.validate(); err != nil {
		return nil, err
	}

	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO courses (
			name, lecturer_id, committee_id, question_set, final_question_set,
			event_count, multilecture, active, department_id
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8,
			(SELECT department_id FROM faculty_profiles WHERE id = $2))
		RETURNING id
	`, in.Name, nullableInt64(in.LecturerID), in.CommitteeID, in.QuestionSet, in.FinalQuestionSet,
		in.EventCount, in.Multilecture, in.Active).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("insert course: %w", err)
	}
	_ = audit.Write(ctx, s.db, actor.UserID, "course_create", "course", fmt.Sprint(id), map[string]any{
		"name":         in.Name,
		"committee_id": in.CommitteeID,
	})
	return s.Get(ctx, id)
}

// Update rewrites the course and, in the same transaction, re-syncs the
// lecturer and tag columns of its questions.
func (s *Service) Update(ctx context.Context, actor *auth.Actor, id int64, in Input) (*Course, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !auth.CanEditCourse(actor, current.ref()) {
		return nil, ErrForbidden
	}
	if in.CommitteeID <= 0 {
		in.CommitteeID = current.CommitteeID
	}
	if err := in.validate(); err != nil {
		return nil, err
	}
	if !actor.IsSuperuser && (in.CommitteeID != current.CommitteeID || !sameID(in.LecturerID, current.LecturerID)) {
		return nil, ErrForbidden
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		UPDATE courses
		SET name = $1,
			lecturer_id = $2,
			committee_id = $3,
			question_set = $4,
			final_question_set = $5,
			event_count = $6,
			multilecture = $7,
			active = $8,
			department_id = COALESCE((SELECT department_id FROM faculty_profiles WHERE id = $2), department_id)
		WHERE id = $9
	`, in.Name, nullableInt64(in.LecturerID), in.CommitteeID, in.QuestionSet, in.FinalQuestionSet,
		in.EventCount, in.Multilecture, in.Active, id)
	if err != nil {
		return nil, fmt.Errorf("update course: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrCourseNotFound
	}
	synced, err := question.SyncCourseDenormalized(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if err := audit.Write(ctx, tx, actor.UserID, "course_update", "course", fmt.Sprint(id), map[string]any{
		"question_set":     in.QuestionSet,
		"synced_questions": synced,
	}); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return s.Get(ctx, id)
}

func (s *Service) Delete(ctx context.Context, actor *auth.Actor, id int64) error {
	current, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if !auth.CanEditCourse(actor, current.ref()) {
		return ErrForbidden
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM courses WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete course: %w", err)
	}
	_ = audit.Write(ctx, s.db, actor.UserID, "course_delete", "course", fmt.Sprint(id), map[string]any{
		"name": current.Name,
	})
	return nil
}

func scanCourse(scanner interface{ Scan(dest ...any) error }) (*Course, error) {
	var out Course
	var lecturerID, departmentID sql.NullInt64
	if err := scanner.Scan(
		&out.ID, &out.Name, &lecturerID, &out.LecturerName, &out.CommitteeID, &out.CommitteeName, &out.ChairID,
		&out.QuestionSet, &out.FinalQuestionSet, &out.EventCount, &out.Multilecture, &out.Active, &departmentID,
		&out.QuestionCount,
	); err != nil {
		return nil, err
	}
	if lecturerID.Valid {
		out.LecturerID = &lecturerID.Int64
	}
	if departmentID.Valid {
		out.DepartmentID = &departmentID.Int64
	}
	return &out, nil
}

func sameID(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func nullableInt64(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}
