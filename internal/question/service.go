package question

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"qbank/internal/audit"
	"qbank/internal/auth"
)

var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrQuestionNotFound = errors.New("question not found")
	ErrCourseNotFound   = errors.New("course not found")
	ErrForbidden        = errors.New("forbidden")
)

type queryable interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type Service struct {
	db         *sql.DB
	storageDir string
}

type ListFilter struct {
	Q        string
	CourseID int64
	Type     string
	Active   *bool
	Limit    int
	Offset   int
}

type courseContext struct {
	ID           int64
	Name         string
	LecturerID   *int64
	LecturerName string
	ChairID      *int64
}

func NewService(db *sql.DB, storageDir string) *Service {
	return &Service{db: db, storageDir: storageDir}
}

const questionColumns = `
	q.id, q.course_id, c.name, q.lecturer_id, q.name, q.question_text, q.general_feedback,
	q.default_grade, q.penalty, q.hidden, q.single, q.shuffle_answers, q.answer_numbering,
	q.answer_1_text, q.answer_1_fraction, q.answer_2_text, q.answer_2_fraction,
	q.answer_3_text, q.answer_3_fraction, q.answer_4_text, q.answer_4_fraction,
	q.answer_5_text, q.answer_5_fraction, q.correct_answer, q.tag_1, q.tag_2, q.type, q.active,
	EXISTS(SELECT 1 FROM question_images qi WHERE qi.question_id = q.id),
	q.created_at, q.updated_at`

func (s *Service) Create(ctx context.Context, actor *auth.Actor, in Question) (*Question, error) {
	if in.CourseID <= 0 {
		return nil, fmt.Errorf("%w: course_id is required", ErrInvalidInput)
	}
	course, err := loadCourseContext(ctx, s.db, in.CourseID)
	if err != nil {
		return nil, err
	}
	if !auth.CanAddQuestion(actor, auth.CourseRef{ID: course.ID, LecturerID: course.LecturerID}, course.ChairID) {
		return nil, ErrForbidden
	}
	in.normalize(*course)
	if err := in.Validate(); err != nil {
		return nil, err
	}

	var id int64
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO questions (
			course_id, lecturer_id, name, question_text, general_feedback, default_grade, penalty,
			hidden, single, shuffle_answers, answer_numbering,
			answer_1_text, answer_1_fraction, answer_2_text, answer_2_fraction,
			answer_3_text, answer_3_fraction, answer_4_text, answer_4_fraction,
			answer_5_text, answer_5_fraction, correct_answer, tag_1, tag_2, type, active,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11,
			$12, $13, $14, $15, $16, $17, $18, $19, $20, $21,
			$22, $23, $24, $25, $26, now(), now()
		)
		RETURNING id
	`, questionArgs(&in)...).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("insert question: %w", err)
	}
	return s.Get(ctx, id)
}

func (s *Service) Update(ctx context.Context, actor *auth.Actor, id int64, in Question) (*Question, error) {
	if id <= 0 {
		return nil, ErrInvalidInput
	}
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !auth.CanEditQuestion(actor, current.LecturerID) {
		return nil, ErrForbidden
	}
	if in.CourseID <= 0 {
		in.CourseID = current.CourseID
	}
	course, err := loadCourseContext(ctx, s.db, in.CourseID)
	if err != nil {
		return nil, err
	}
	if in.CourseID != current.CourseID && !actor.IsSuperuser && !actor.IsFaculty(course.LecturerID) {
		return nil, ErrForbidden
	}
	in.normalize(*course)
	if err := in.Validate(); err != nil {
		return nil, err
	}

	args := append(questionArgs(&in), id)
	res, err := s.db.ExecContext(ctx, `
		UPDATE questions
		SET course_id = $1, lecturer_id = $2, name = $3, question_text = $4, general_feedback = $5,
			default_grade = $6, penalty = $7, hidden = $8, single = $9, shuffle_answers = $10,
			answer_numbering = $11,
			answer_1_text = $12, answer_1_fraction = $13, answer_2_text = $14, answer_2_fraction = $15,
			answer_3_text = $16, answer_3_fraction = $17, answer_4_text = $18, answer_4_fraction = $19,
			answer_5_text = $20, answer_5_fraction = $21, correct_answer = $22,
			tag_1 = $23, tag_2 = $24, type = $25, active = $26, updated_at = now()
		WHERE id = $27
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("update question: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrQuestionNotFound
	}
	return s.Get(ctx, id)
}

func (s *Service) Get(ctx context.Context, id int64) (*Question, error) {
	if id <= 0 {
		return nil, ErrInvalidInput
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT `+questionColumns+`
		FROM questions q
		JOIN courses c ON c.id = q.course_id
		WHERE q.id = $1
	`, id)
	out, err := scanQuestion(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrQuestionNotFound
		}
		return nil, fmt.Errorf("load question: %w", err)
	}
	return out, nil
}

func (s *Service) Delete(ctx context.Context, actor *auth.Actor, id int64) error {
	current, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if !auth.CanEditQuestion(actor, current.LecturerID) {
		return ErrForbidden
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM questions WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete question: %w", err)
	}
	_ = audit.Write(ctx, s.db, actor.UserID, "question_delete", "question", fmt.Sprint(id), map[string]any{
		"course_id": current.CourseID,
	})
	return nil
}

// List returns questions visible to actor: everything for superusers, otherwise
// questions of courses the actor lectures or whose committee the actor chairs.
func (s *Service) List(ctx context.Context, actor *auth.Actor, f ListFilter) ([]Question, error) {
	if !actor.Authenticated() {
		return nil, ErrForbidden
	}
	if f.Limit <= 0 || f.Limit > 200 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	query := `
		SELECT ` + questionColumns + `
		FROM questions q
		JOIN courses c ON c.id = q.course_id
		JOIN committees cm ON cm.id = c.committee_id
		WHERE 1 = 1
	`
	args := make([]any, 0, 8)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if !actor.IsSuperuser {
		if actor.FacultyID == nil {
			return []Question{}, nil
		}
		p := arg(*actor.FacultyID)
		query += ` AND (cm.chair_id = ` + p + ` OR c.lecturer_id = ` + p + `)`
	}
	if q := strings.TrimSpace(f.Q); q != "" {
		p := arg("%" + q + "%")
		query += ` AND (q.name ILIKE ` + p + ` OR q.question_text ILIKE ` + p + ` OR q.tag_1 ILIKE ` + p + ` OR q.tag_2 ILIKE ` + p + `)`
	}
	if f.CourseID > 0 {
		query += ` AND q.course_id = ` + arg(f.CourseID)
	}
	if t := strings.TrimSpace(f.Type); t != "" {
		query += ` AND q.type = ` + arg(t)
	}
	if f.Active != nil {
		query += ` AND q.active = ` + arg(*f.Active)
	}
	query += ` ORDER BY q.updated_at DESC, q.id DESC LIMIT ` + arg(f.Limit) + ` OFFSET ` + arg(f.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query questions: %w", err)
	}
	defer rows.Close()

	items := make([]Question, 0)
	for rows.Next() {
		item, err := scanQuestion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		items = append(items, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate questions: %w", err)
	}
	return items, nil
}

// SyncCourseDenormalized copies the course's lecturer and names onto every
// question of the course. Callers that change a course's name or lecturer must
// run it inside the same transaction.
func SyncCourseDenormalized(ctx context.Context, tx execer, courseID int64) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE questions q
		SET lecturer_id = c.lecturer_id,
			tag_1 = c.name,
			tag_2 = COALESCE(f.full_name, ''),
			updated_at = now()
		FROM courses c
		LEFT JOIN faculty_profiles f ON f.id = c.lecturer_id
		WHERE c.id = $1 AND q.course_id = c.id
	`, courseID)
	if err != nil {
		return 0, fmt.Errorf("sync course questions: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func loadCourseContext(ctx context.Context, q queryable, courseID int64) (*courseContext, error) {
	var out courseContext
	var lecturerID, chairID sql.NullInt64
	var lecturerName sql.NullString
	err := q.QueryRowContext(ctx, `
		SELECT c.id, c.name, c.lecturer_id, f.full_name, cm.chair_id
		FROM courses c
		LEFT JOIN faculty_profiles f ON f.id = c.lecturer_id
		LEFT JOIN committees cm ON cm.id = c.committee_id
		WHERE c.id = $1
	`, courseID).Scan(&out.ID, &out.Name, &lecturerID, &lecturerName, &chairID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCourseNotFound
		}
		return nil, fmt.Errorf("load course: %w", err)
	}
	if lecturerID.Valid {
		out.LecturerID = &lecturerID.Int64
	}
	if chairID.Valid {
		out.ChairID = &chairID.Int64
	}
	out.LecturerName = lecturerName.String
	return &out, nil
}

func questionArgs(q *Question) []any {
	return []any{
		q.CourseID, nullableInt64(q.LecturerID), q.Name, q.QuestionText, q.GeneralFeedback,
		q.DefaultGrade, q.Penalty, q.Hidden, q.Single, q.ShuffleAnswers, q.AnswerNumbering,
		q.Options[0].Text, q.Options[0].Fraction, q.Options[1].Text, q.Options[1].Fraction,
		q.Options[2].Text, q.Options[2].Fraction, q.Options[3].Text, q.Options[3].Fraction,
		q.Options[4].Text, q.Options[4].Fraction, q.CorrectAnswer, q.Tag1, q.Tag2, q.Type, q.Active,
	}
}

func scanQuestion(scanner interface{ Scan(dest ...any) error }) (*Question, error) {
	var out Question
	var lecturerID sql.NullInt64
	if err := scanner.Scan(
		&out.ID, &out.CourseID, &out.CourseName, &lecturerID, &out.Name, &out.QuestionText, &out.GeneralFeedback,
		&out.DefaultGrade, &out.Penalty, &out.Hidden, &out.Single, &out.ShuffleAnswers, &out.AnswerNumbering,
		&out.Options[0].Text, &out.Options[0].Fraction, &out.Options[1].Text, &out.Options[1].Fraction,
		&out.Options[2].Text, &out.Options[2].Fraction, &out.Options[3].Text, &out.Options[3].Fraction,
		&out.Options[4].Text, &out.Options[4].Fraction, &out.CorrectAnswer, &out.Tag1, &out.Tag2, &out.Type, &out.Active,
		&out.HasPicture, &out.CreatedAt, &out.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if lecturerID.Valid {
		out.LecturerID = &lecturerID.Int64
	}
	for i := range out.Options {
		out.Options[i].Label = Labels[i]
	}
	out.CorrectAnswer = strings.TrimSpace(out.CorrectAnswer)
	return &out, nil
}

func nullableInt64(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}
