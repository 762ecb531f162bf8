package export

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"qbank/internal/auth"
	"qbank/internal/exam"
	"qbank/internal/logger"
	"qbank/internal/question"
)

var ErrForbidden = errors.New("forbidden")

// Labels are the option letters in export order.
var Labels = [5]string{"A", "B", "C", "D", "E"}

// Item is one selected question as the serializers see it.
type Item struct {
	QuestionID int64
	CourseName string
	Name       string
	Text       string
	Options    [5]string
	Correct    string
}

type examLookup interface {
	Get(ctx context.Context, id int64) (*exam.Exam, error)
}

type Service struct {
	db     *sql.DB
	exams  examLookup
	images ImageLoader
	log    *logger.Logger
}

func NewService(db *sql.DB, exams examLookup, images ImageLoader, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewNop()
	}
	return &Service{db: db, exams: exams, images: images, log: log}
}

func MoodleFilename(examID int64) string {
	return fmt.Sprintf("exam_%d_moodle.xml", examID)
}

func AikenFilename(examID int64) string {
	return fmt.Sprintf("exam_%d_aiken.txt", examID)
}

// Items loads the exam's selected questions visible to actor. Superusers and
// staff get the whole exam, everyone else only the questions they lecture.
func (s *Service) Items(ctx context.Context, actor *auth.Actor, examID int64) ([]Item, error) {
	if !actor.Authenticated() {
		return nil, ErrForbidden
	}
	if _, err := s.exams.Get(ctx, examID); err != nil {
		return nil, err
	}

	query := `
		SELECT q.id, c.name, q.name, q.question_text,
			q.answer_1_text, q.answer_2_text, q.answer_3_text, q.answer_4_text, q.answer_5_text,
			q.correct_answer
		FROM selections s
		JOIN questions q ON q.id = s.question_id
		JOIN courses c ON c.id = s.course_id
		LEFT JOIN faculty_profiles f ON f.id = q.lecturer_id
		WHERE s.exam_id = $1`
	args := []any{examID}
	if !auth.CanExportAll(actor) {
		query += ` AND f.user_id = $2`
		args = append(args, actor.UserID)
	}
	query += ` ORDER BY c.name ASC, s.id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query export items: %w", err)
	}
	defer rows.Close()

	items := make([]Item, 0)
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.QuestionID, &it.CourseName, &it.Name, &it.Text,
			&it.Options[0], &it.Options[1], &it.Options[2], &it.Options[3], &it.Options[4],
			&it.Correct); err != nil {
			return nil, fmt.Errorf("scan export item: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate export items: %w", err)
	}
	return items, nil
}

func (s *Service) Moodle(ctx context.Context, actor *auth.Actor, examID int64, w io.Writer) (int, error) {
	items, err := s.Items(ctx, actor, examID)
	if err != nil {
		return 0, err
	}
	return len(items), WriteMoodleXML(ctx, w, items, s.images, s.log)
}

func (s *Service) Aiken(ctx context.Context, actor *auth.Actor, examID int64, w io.Writer) (int, error) {
	items, err := s.Items(ctx, actor, examID)
	if err != nil {
		return 0, err
	}
	return len(items), WriteAiken(w, items)
}

type imageFinder interface {
	ImageFor(ctx context.Context, questionID int64, imageType string) (*question.Image, error)
}

// FileImageLoader reads question images stored under StorageDir.
type FileImageLoader struct {
	Images     imageFinder
	StorageDir string
}

func (l FileImageLoader) QuestionImage(ctx context.Context, questionID int64) (*Image, error) {
	img, err := l.Images.ImageFor(ctx, questionID, question.ImageQuestion)
	if err != nil {
		if errors.Is(err, question.ErrImageNotFound) {
			return nil, nil
		}
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(l.StorageDir, filepath.Clean(img.StoredPath)))
	if err != nil {
		return nil, fmt.Errorf("read image file: %w", err)
	}
	// The stored name is generated on upload; the original name is user input.
	return &Image{Name: filepath.Base(img.StoredPath), Data: data}, nil
}

func normalizeLabel(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return ""
	}
	return s[:1]
}

func labelIndex(label string) int {
	for i, l := range Labels {
		if l == label {
			return i
		}
	}
	return -1
}
