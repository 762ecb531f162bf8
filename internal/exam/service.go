package exam

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"qbank/internal/audit"
	"qbank/internal/auth"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrExamNotFound = errors.New("exam not found")
	ErrForbidden    = errors.New("forbidden")
	ErrExamLocked   = errors.New("exam is locked")
	ErrWindowClosed = errors.New("exam is locked or no longer upcoming")
)

var examTypes = map[string]bool{
	"theoric":      true,
	"pratic":       true,
	"final":        true,
	"final_pratic": true,
}

type Service struct {
	db  *sql.DB
	loc *time.Location
	now func() time.Time
}

type Exam struct {
	ID            int64      `json:"id"`
	Name          string     `json:"name"`
	Type          string     `json:"type"`
	Date          *time.Time `json:"date,omitempty"`
	Start         *time.Time `json:"start,omitempty"`
	Finish        *time.Time `json:"finish,omitempty"`
	QTotal        int        `json:"qtotal"`
	ProgramID     *int64     `json:"program_id,omitempty"`
	CommitteeID   *int64     `json:"committee_id,omitempty"`
	CommitteeName string     `json:"committee_name,omitempty"`
	ChairID       *int64     `json:"chair_id,omitempty"`
	ApplyPenalty  bool       `json:"apply_penalty"`
	Locked        bool       `json:"locked"`
}

// View is an exam decorated with its derived window.
type View struct {
	Exam
	Window           Window `json:"window"`
	OpenForSelection bool   `json:"open_for_selection"`
}

type Input struct {
	Name         string
	Type         string
	Date         *time.Time
	Start        *time.Time
	Finish       *time.Time
	QTotal       int
	ProgramID    *int64
	CommitteeID  *int64
	ApplyPenalty bool
	Locked       bool
}

type ListFilter struct {
	Q           string
	Type        string
	ProgramID   int64
	CommitteeID int64
	Locked      *bool
}

type QuotaResult struct {
	Changed int `json:"changed"`
	Errors  int `json:"errors"`
}

type SelectedQuestion struct {
	SelectionID  int64     `json:"selection_id"`
	CourseID     int64     `json:"course_id"`
	CourseName   string    `json:"course_name"`
	QuestionID   int64     `json:"question_id"`
	QuestionName string    `json:"question_name"`
	QuestionText string    `json:"question_text"`
	LecturerName string    `json:"lecturer_name"`
	CreatedAt    time.Time `json:"created_at"`
}

func NewService(db *sql.DB, loc *time.Location) *Service {
	if loc == nil {
		loc = time.Local
	}
	return &Service{db: db, loc: loc, now: time.Now}
}

func (s *Service) Location() *time.Location {
	return s.loc
}

// IsOpen evaluates the selection window of e against the service clock.
func (s *Service) IsOpen(e *Exam) bool {
	return IsOpenForSelection(e, s.now(), s.loc)
}

func (s *Service) View(e *Exam) View {
	w := WindowState(e, s.now(), s.loc)
	return View{Exam: *e, Window: w, OpenForSelection: w == WindowScheduledFuture}
}

// Ref returns the policy view of the exam.
func (e *Exam) Ref() auth.ExamRef {
	return auth.ExamRef{ID: e.ID, ChairID: e.ChairID}
}

func (in *Input) validate(loc *time.Location) error {
	in.Name = strings.TrimSpace(in.Name)
	in.Type = strings.TrimSpace(in.Type)
	if in.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if len(in.Name) > 200 {
		return fmt.Errorf("%w: name is too long", ErrInvalidInput)
	}
	if in.Type == "" {
		in.Type = "theoric"
	}
	if !examTypes[in.Type] {
		return fmt.Errorf("%w: type must be one of theoric, pratic, final, final_pratic", ErrInvalidInput)
	}
	if in.QTotal < 0 {
		return fmt.Errorf("%w: qtotal must be >= 0", ErrInvalidInput)
	}
	if in.Start != nil && in.Finish != nil && !in.Finish.After(*in.Start) {
		return fmt.Errorf("%w: finish must be after start", ErrInvalidInput)
	}
	if in.Date != nil {
		if in.Start != nil && !sameDay(*in.Start, *in.Date, loc) {
			return fmt.Errorf("%w: start must be on the exam date", ErrInvalidInput)
		}
		if in.Finish != nil && !sameDay(*in.Finish, *in.Date, loc) {
			return fmt.Errorf("%w: finish must be on the exam date", ErrInvalidInput)
		}
	}
	return nil
}

const examSelect = `
	SELECT e.id, e.name, e.type, e.date, e.start, e.finish, e.qtotal, e.program_id,
		e.committee_id, COALESCE(cm.name, ''), cm.chair_id, e.apply_penalty, e.locked
	FROM exams e
	LEFT JOIN committees cm ON cm.id = e.committee_id`

func (s *Service) Get(ctx context.Context, id int64) (*Exam, error) {
	if id <= 0 {
		return nil, ErrInvalidInput
	}
	out, err := scanExam(s.db.QueryRowContext(ctx, examSelect+` WHERE e.id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrExamNotFound
		}
		return nil, fmt.Errorf("load exam: %w", err)
	}
	return out, nil
}

func (s *Service) List(ctx context.Context, f ListFilter) ([]Exam, error) {
	query := examSelect + ` WHERE 1 = 1`
	args := make([]any, 0, 5)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if q := strings.TrimSpace(f.Q); q != "" {
		query += ` AND e.name ILIKE ` + arg("%"+q+"%")
	}
	if t := strings.TrimSpace(f.Type); t != "" {
		query += ` AND e.type = ` + arg(t)
	}
	if f.ProgramID > 0 {
		query += ` AND e.program_id = ` + arg(f.ProgramID)
	}
	if f.CommitteeID > 0 {
		query += ` AND e.committee_id = ` + arg(f.CommitteeID)
	}
	if f.Locked != nil {
		query += ` AND e.locked = ` + arg(*f.Locked)
	}
	query += ` ORDER BY e.date DESC NULLS LAST, e.start ASC, e.id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query exams: %w", err)
	}
	defer rows.Close()

	items := make([]Exam, 0)
	for rows.Next() {
		item, err := scanExam(rows)
		if err != nil {
			return nil, fmt.Errorf("scan exam: %w", err)
		}
		items = append(items, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate exams: %w", err)
	}
	return items, nil
}

func (s *Service) Create(ctx context.Context, actor *auth.Actor, in Input) (*Exam, error) {
	if !actor.Authenticated() || !actor.IsSuperuser {
		return nil, ErrForbidden
	}
	if err := in.validate(s.loc); err != nil {
		return nil, err
	}
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO exams (name, type, date, start, finish, qtotal, program_id, committee_id, apply_penalty, locked)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`, in.Name, in.Type, nullableDate(in.Date), nullableTime(in.Start), nullableTime(in.Finish), in.QTotal,
		nullableInt64(in.ProgramID), nullableInt64(in.CommitteeID), in.ApplyPenalty, in.Locked).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("insert exam: %w", err)
	}
	_ = audit.Write(ctx, s.db, actor.UserID, "exam_create", "exam", fmt.Sprint(id), map[string]any{"name": in.Name})
	return s.Get(ctx, id)
}

func (s *Service) Update(ctx context.Context, actor *auth.Actor, id int64, in Input) (*Exam, error) {
	if !actor.Authenticated() || !actor.IsSuperuser {
		return nil, ErrForbidden
	}
	if err := in.validate(s.loc); err != nil {
		return nil, err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE exams
		SET name = $1, type = $2, date = $3, start = $4, finish = $5, qtotal = $6,
			program_id = $7, committee_id = $8, apply_penalty = $9, locked = $10
		WHERE id = $11
	`, in.Name, in.Type, nullableDate(in.Date), nullableTime(in.Start), nullableTime(in.Finish), in.QTotal,
		nullableInt64(in.ProgramID), nullableInt64(in.CommitteeID), in.ApplyPenalty, in.Locked, id)
	if err != nil {
		return nil, fmt.Errorf("update exam: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrExamNotFound
	}
	return s.Get(ctx, id)
}

// Delete removes an unlocked exam together with its selections.
func (s *Service) Delete(ctx context.Context, actor *auth.Actor, id int64) error {
	if !actor.Authenticated() || !actor.IsSuperuser {
		return ErrForbidden
	}
	e, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if e.Locked {
		return ErrExamLocked
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM exams WHERE id = $1 AND locked = FALSE`, id); err != nil {
		return fmt.Errorf("delete exam: %w", err)
	}
	_ = audit.Write(ctx, s.db, actor.UserID, "exam_delete", "exam", fmt.Sprint(id), map[string]any{"name": e.Name})
	return nil
}

func (s *Service) SetLocked(ctx context.Context, actor *auth.Actor, id int64, locked bool) (*Exam, error) {
	e, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !auth.CanEditExamQuota(actor, e.Ref()) {
		return nil, ErrForbidden
	}
	if _, err := s.db.ExecContext(ctx, `UPDATE exams SET locked = $1 WHERE id = $2`, locked, id); err != nil {
		return nil, fmt.Errorf("update exam lock: %w", err)
	}
	_ = audit.Write(ctx, s.db, actor.UserID, "exam_lock", "exam", fmt.Sprint(id), map[string]any{"locked": locked})
	e.Locked = locked
	return e, nil
}

// UpdateQuotas is the bulk "required question count" editor of an exam. Keys
// are course ids, optionally prefixed with "qs_". Unparseable or negative
// values are counted as errors; courses outside the exam's committee are
// ignored.
func (s *Service) UpdateQuotas(ctx context.Context, actor *auth.Actor, examID int64, values map[string]string) (*QuotaResult, error) {
	e, err := s.Get(ctx, examID)
	if err != nil {
		return nil, err
	}
	if !auth.CanEditExamQuota(actor, e.Ref()) {
		return nil, ErrForbidden
	}
	if !s.IsOpen(e) {
		return nil, ErrWindowClosed
	}
	out := &QuotaResult{}
	if e.CommitteeID == nil {
		return out, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, `SELECT id, question_set FROM courses WHERE committee_id = $1`, *e.CommitteeID)
	if err != nil {
		return nil, fmt.Errorf("query committee courses: %w", err)
	}
	current := map[int64]int{}
	for rows.Next() {
		var id int64
		var qs int
		if err := rows.Scan(&id, &qs); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan committee course: %w", err)
		}
		current[id] = qs
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate committee courses: %w", err)
	}
	rows.Close()

	changes := planQuotaChanges(current, values, out)
	for _, c := range changes {
		if _, err := tx.ExecContext(ctx, `UPDATE courses SET question_set = $1 WHERE id = $2`, c.value, c.courseID); err != nil {
			return nil, fmt.Errorf("update course quota: %w", err)
		}
	}
	if len(changes) > 0 {
		if err := audit.Write(ctx, tx, actor.UserID, "exam_quota_update", "exam", fmt.Sprint(examID), map[string]any{
			"changed": out.Changed,
		}); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return out, nil
}

type quotaChange struct {
	courseID int64
	value    int
}

func planQuotaChanges(current map[int64]int, values map[string]string, out *QuotaResult) []quotaChange {
	changes := make([]quotaChange, 0)
	for key, raw := range values {
		courseID, err := strconv.ParseInt(strings.TrimPrefix(strings.TrimSpace(key), "qs_"), 10, 64)
		if err != nil {
			out.Errors++
			continue
		}
		old, ok := current[courseID]
		if !ok {
			continue
		}
		v, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil || v < 0 {
			out.Errors++
			continue
		}
		if v != old {
			changes = append(changes, quotaChange{courseID: courseID, value: v})
			out.Changed++
		}
	}
	sort.Slice(changes, func(i, j int) bool { return changes[i].courseID < changes[j].courseID })
	return changes
}

func (s *Service) SelectedQuestions(ctx context.Context, examID int64) ([]SelectedQuestion, error) {
	if _, err := s.Get(ctx, examID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, c.id, c.name, q.id, q.name, q.question_text, COALESCE(f.full_name, ''), s.created_at
		FROM selections s
		JOIN courses c ON c.id = s.course_id
		JOIN questions q ON q.id = s.question_id
		LEFT JOIN faculty_profiles f ON f.id = q.lecturer_id
		WHERE s.exam_id = $1
		ORDER BY c.name ASC, q.name ASC, q.id ASC
	`, examID)
	if err != nil {
		return nil, fmt.Errorf("query selected questions: %w", err)
	}
	defer rows.Close()

	items := make([]SelectedQuestion, 0)
	for rows.Next() {
		var it SelectedQuestion
		if err := rows.Scan(&it.SelectionID, &it.CourseID, &it.CourseName, &it.QuestionID, &it.QuestionName,
			&it.QuestionText, &it.LecturerName, &it.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan selected question: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate selected questions: %w", err)
	}
	return items, nil
}

func scanExam(scanner interface{ Scan(dest ...any) error }) (*Exam, error) {
	var out Exam
	var date, start, finish sql.NullTime
	var programID, committeeID, chairID sql.NullInt64
	if err := scanner.Scan(
		&out.ID, &out.Name, &out.Type, &date, &start, &finish, &out.QTotal, &programID,
		&committeeID, &out.CommitteeName, &chairID, &out.ApplyPenalty, &out.Locked,
	); err != nil {
		return nil, err
	}
	if date.Valid {
		out.Date = &date.Time
	}
	if start.Valid {
		out.Start = &start.Time
	}
	if finish.Valid {
		out.Finish = &finish.Time
	}
	if programID.Valid {
		out.ProgramID = &programID.Int64
	}
	if committeeID.Valid {
		out.CommitteeID = &committeeID.Int64
	}
	if chairID.Valid {
		out.ChairID = &chairID.Int64
	}
	return &out, nil
}

func nullableDate(v *time.Time) any {
	if v == nil {
		return nil
	}
	return v.Format(time.DateOnly)
}

func nullableTime(v *time.Time) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullableInt64(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}
