package masterdata

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"qbank/internal/audit"
)

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrCommitteeNotFound = errors.New("committee not found")
	ErrFacultyNotFound   = errors.New("faculty profile not found")
)

type Service struct {
	db *sql.DB
}

type FacultyProfile struct {
	ID           int64  `json:"id"`
	UserID       int64  `json:"user_id"`
	FacultyNo    *int   `json:"faculty_id,omitempty"`
	FullName     string `json:"full_name"`
	DepartmentID *int64 `json:"department_id,omitempty"`
}

type UpsertFacultyInput struct {
	UserID       int64
	FacultyNo    *int
	FullName     string
	DepartmentID *int64
}

type Committee struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	ProgramID *int64    `json:"program_id,omitempty"`
	ChairID   int64     `json:"chair_id"`
	ChairName string    `json:"chair_name"`
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
}

type CreateCommitteeInput struct {
	Name      string
	ProgramID *int64
	ChairID   int64
	StartDate time.Time
	EndDate   time.Time
}

func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

func (s *Service) GetFacultyByUser(ctx context.Context, userID int64) (*FacultyProfile, error) {
	if userID <= 0 {
		return nil, ErrInvalidInput
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, faculty_id, full_name, department_id
		FROM faculty_profiles
		WHERE user_id = $1
	`, userID)
	out, err := scanFaculty(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrFacultyNotFound
		}
		return nil, fmt.Errorf("load faculty profile: %w", err)
	}
	return out, nil
}

func (s *Service) UpsertFacultyProfile(ctx context.Context, actorID int64, in UpsertFacultyInput) (*FacultyProfile, error) {
	in.FullName = strings.TrimSpace(in.FullName)
	if in.UserID <= 0 || in.FullName == "" {
		return nil, ErrInvalidInput
	}
	if in.FacultyNo != nil && *in.FacultyNo < 0 {
		return nil, fmt.Errorf("%w: faculty_id must not be negative", ErrInvalidInput)
	}

	row := s.db.QueryRowContext(ctx, `
		INSERT INTO faculty_profiles (user_id, faculty_id, full_name, department_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE
		SET faculty_id = EXCLUDED.faculty_id,
			full_name = EXCLUDED.full_name,
			department_id = EXCLUDED.department_id
		RETURNING id, user_id, faculty_id, full_name, department_id
	`, in.UserID, nullableInt(in.FacultyNo), in.FullName, nullableInt64(in.DepartmentID))
	out, err := scanFaculty(row)
	if err != nil {
		return nil, fmt.Errorf("upsert faculty profile: %w", err)
	}

	_ = audit.Write(ctx, s.db, actorID, "faculty_upsert", "faculty_profile", fmt.Sprint(out.ID), map[string]any{
		"user_id":   out.UserID,
		"full_name": out.FullName,
	})
	return out, nil
}

func (s *Service) ListCommittees(ctx context.Context, q string) ([]Committee, error) {
	query := `
		SELECT c.id, c.name, c.program_id, c.chair_id, f.full_name, c.start_date, c.end_date
		FROM committees c
		JOIN faculty_profiles f ON f.id = c.chair_id
	`
	args := make([]any, 0, 1)
	if q = strings.TrimSpace(q); q != "" {
		query += ` WHERE c.name ILIKE $1`
		args = append(args, "%"+q+"%")
	}
	query += ` ORDER BY c.name ASC, c.id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query committees: %w", err)
	}
	defer rows.Close()

	items := make([]Committee, 0)
	for rows.Next() {
		item, err := scanCommittee(rows)
		if err != nil {
			return nil, fmt.Errorf("scan committee: %w", err)
		}
		items = append(items, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate committees: %w", err)
	}
	return items, nil
}

func (s *Service) GetCommittee(ctx context.Context, id int64) (*Committee, error) {
	if id <= 0 {
		return nil, ErrInvalidInput
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT c.id, c.name, c.program_id, c.chair_id, f.full_name, c.start_date, c.end_date
		FROM committees c
		JOIN faculty_profiles f ON f.id = c.chair_id
		WHERE c.id = $1
	`, id)
	out, err := scanCommittee(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrCommitteeNotFound
		}
		return nil, fmt.Errorf("load committee: %w", err)
	}
	return out, nil
}

func (s *Service) CreateCommittee(ctx context.Context, actorID int64, in CreateCommitteeInput) (*Committee, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	var chairName string
	if err := s.db.QueryRowContext(ctx, `SELECT full_name FROM faculty_profiles WHERE id = $1`, in.ChairID).Scan(&chairName); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrFacultyNotFound
		}
		return nil, fmt.Errorf("load chair: %w", err)
	}

	out := Committee{ChairName: chairName}
	var programID sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO committees (name, program_id, chair_id, start_date, end_date)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, name, program_id, chair_id, start_date, end_date
	`, in.Name, nullableInt64(in.ProgramID), in.ChairID, in.StartDate, in.EndDate).Scan(
		&out.ID, &out.Name, &programID, &out.ChairID, &out.StartDate, &out.EndDate,
	)
	if err != nil {
		return nil, fmt.Errorf("insert committee: %w", err)
	}
	if programID.Valid {
		out.ProgramID = &programID.Int64
	}

	_ = audit.Write(ctx, s.db, actorID, "committee_create", "committee", fmt.Sprint(out.ID), map[string]any{
		"name":     out.Name,
		"chair_id": out.ChairID,
	})
	return &out, nil
}

func (in *CreateCommitteeInput) validate() error {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" || in.ChairID <= 0 {
		return ErrInvalidInput
	}
	if len(in.Name) > 100 {
		return fmt.Errorf("%w: name is too long", ErrInvalidInput)
	}
	if in.StartDate.IsZero() || in.EndDate.IsZero() {
		return fmt.Errorf("%w: start_date and end_date are required", ErrInvalidInput)
	}
	if in.EndDate.Before(in.StartDate) {
		return fmt.Errorf("%w: end_date must not be before start_date", ErrInvalidInput)
	}
	return nil
}

func scanFaculty(scanner interface{ Scan(dest ...any) error }) (*FacultyProfile, error) {
	var out FacultyProfile
	var facultyNo, departmentID sql.NullInt64
	if err := scanner.Scan(&out.ID, &out.UserID, &facultyNo, &out.FullName, &departmentID); err != nil {
		return nil, err
	}
	if facultyNo.Valid {
		n := int(facultyNo.Int64)
		out.FacultyNo = &n
	}
	if departmentID.Valid {
		out.DepartmentID = &departmentID.Int64
	}
	return &out, nil
}

func scanCommittee(scanner interface{ Scan(dest ...any) error }) (*Committee, error) {
	var out Committee
	var programID sql.NullInt64
	if err := scanner.Scan(&out.ID, &out.Name, &programID, &out.ChairID, &out.ChairName, &out.StartDate, &out.EndDate); err != nil {
		return nil, err
	}
	if programID.Valid {
		out.ProgramID = &programID.Int64
	}
	return &out, nil
}

func nullableInt64(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullableInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}
