package question

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"qbank/internal/auth"
)

const (
	ImageQuestion = "Q"
	ImageAnswer   = "A"

	maxImageBytes = 8 << 20
)

var ErrImageNotFound = errors.New("image not found")

var allowedImageExt = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".webp": true,
	".svg":  true,
}

type Image struct {
	ID           int64     `json:"id"`
	QuestionID   int64     `json:"question_id"`
	ImageType    string    `json:"image_type"`
	OriginalName string    `json:"original_name"`
	StoredPath   string    `json:"stored_path"`
	CreatedAt    time.Time `json:"created_at"`
}

// AttachImage stores the upload under the storage dir with a random name and
// records it against the question.
func (s *Service) AttachImage(ctx context.Context, actor *auth.Actor, questionID int64, imageType, filename string, r io.Reader) (*Image, error) {
	imageType = strings.ToUpper(strings.TrimSpace(imageType))
	if imageType == "" {
		imageType = ImageQuestion
	}
	if imageType != ImageQuestion && imageType != ImageAnswer {
		return nil, fmt.Errorf("%w: image_type must be Q or A", ErrInvalidInput)
	}
	original := filepath.Base(strings.TrimSpace(filename))
	ext := strings.ToLower(filepath.Ext(original))
	if !allowedImageExt[ext] {
		return nil, fmt.Errorf("%w: unsupported image extension %q", ErrInvalidInput, ext)
	}

	current, err := s.Get(ctx, questionID)
	if err != nil {
		return nil, err
	}
	if !auth.CanEditQuestion(actor, current.LecturerID) {
		return nil, ErrForbidden
	}

	dir := filepath.Join(s.storageDir, "questions")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	rel := filepath.Join("questions", uuid.NewString()+ext)
	full := filepath.Join(s.storageDir, rel)
	f, err := os.Create(full)
	if err != nil {
		return nil, fmt.Errorf("create image file: %w", err)
	}
	n, err := io.Copy(f, io.LimitReader(r, maxImageBytes+1))
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(full)
		return nil, fmt.Errorf("write image file: %w", err)
	}
	if n > maxImageBytes {
		_ = os.Remove(full)
		return nil, fmt.Errorf("%w: image is larger than %d bytes", ErrInvalidInput, maxImageBytes)
	}

	out := Image{QuestionID: questionID, ImageType: imageType, OriginalName: original, StoredPath: rel}
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO question_images (question_id, image_type, original_name, stored_path, created_at)
		VALUES ($1, $2, $3, $4, now())
		RETURNING id, created_at
	`, questionID, imageType, original, rel).Scan(&out.ID, &out.CreatedAt)
	if err != nil {
		_ = os.Remove(full)
		return nil, fmt.Errorf("insert question image: %w", err)
	}
	return &out, nil
}

// ImageFor returns the newest image of the given role for a question.
func (s *Service) ImageFor(ctx context.Context, questionID int64, imageType string) (*Image, error) {
	var out Image
	err := s.db.QueryRowContext(ctx, `
		SELECT id, question_id, image_type, original_name, stored_path, created_at
		FROM question_images
		WHERE question_id = $1 AND image_type = $2
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`, questionID, strings.ToUpper(imageType)).Scan(
		&out.ID, &out.QuestionID, &out.ImageType, &out.OriginalName, &out.StoredPath, &out.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrImageNotFound
		}
		return nil, fmt.Errorf("load question image: %w", err)
	}
	return &out, nil
}
