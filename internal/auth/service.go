package auth

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrInvalidInput   = errors.New("invalid input")
	ErrAPIKeyNotFound = errors.New("api key not found")
)

const apiKeyScheme = "qbk"

type Service struct {
	db         *sql.DB
	verifier   *TokenVerifier
	bcryptCost int
}

type CreateAPIKeyInput struct {
	UserID      int64
	Label       string
	IsSuperuser bool
	IsStaff     bool
}

type APIKey struct {
	ID          int64      `json:"id"`
	UserID      int64      `json:"user_id"`
	Label       string     `json:"label"`
	Prefix      string     `json:"prefix"`
	IsSuperuser bool       `json:"is_superuser"`
	IsStaff     bool       `json:"is_staff"`
	CreatedAt   time.Time  `json:"created_at"`
	RevokedAt   *time.Time `json:"revoked_at,omitempty"`
}

func NewService(db *sql.DB, verifier *TokenVerifier) *Service {
	return &Service{db: db, verifier: verifier, bcryptCost: bcrypt.DefaultCost}
}

// ResolveToken verifies a provider token and attaches the caller's faculty profile.
func (s *Service) ResolveToken(ctx context.Context, raw string) (*Actor, error) {
	claims, err := s.verifier.Verify(raw)
	if err != nil {
		return nil, err
	}
	userID, err := claims.UserID()
	if err != nil {
		return nil, err
	}
	actor := &Actor{
		UserID:      userID,
		Username:    claims.Username,
		FullName:    claims.FullName,
		IsSuperuser: claims.Superuser,
		IsStaff:     claims.Staff,
		Source:      "jwt",
	}
	if err := s.attachFaculty(ctx, actor); err != nil {
		return nil, err
	}
	return actor, nil
}

// LoadActor builds an actor for a user id without a token. Used by the CLI.
func (s *Service) LoadActor(ctx context.Context, userID int64, superuser, staff bool) (*Actor, error) {
	if userID <= 0 {
		return nil, ErrInvalidInput
	}
	actor := &Actor{UserID: userID, IsSuperuser: superuser, IsStaff: staff, Source: "cli"}
	if err := s.attachFaculty(ctx, actor); err != nil {
		return nil, err
	}
	return actor, nil
}

func (s *Service) attachFaculty(ctx context.Context, actor *Actor) error {
	var facultyID int64
	var fullName string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, full_name
		FROM faculty_profiles
		WHERE user_id = $1
	`, actor.UserID).Scan(&facultyID, &fullName)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return fmt.Errorf("load faculty profile: %w", err)
	}
	actor.FacultyID = &facultyID
	if actor.FullName == "" {
		actor.FullName = fullName
	}
	return nil
}

// CreateAPIKey returns the plaintext key once; only its bcrypt hash is stored.
func (s *Service) CreateAPIKey(ctx context.Context, in CreateAPIKeyInput) (string, *APIKey, error) {
	in.Label = strings.TrimSpace(in.Label)
	if in.UserID <= 0 || in.Label == "" {
		return "", nil, ErrInvalidInput
	}

	prefix, err := randomHex(6)
	if err != nil {
		return "", nil, fmt.Errorf("generate key prefix: %w", err)
	}
	secret, err := randomHex(24)
	if err != nil {
		return "", nil, fmt.Errorf("generate key secret: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), s.bcryptCost)
	if err != nil {
		return "", nil, fmt.Errorf("hash api key: %w", err)
	}

	var out APIKey
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO api_keys (faculty_user_id, label, key_prefix, key_hash, is_superuser, is_staff, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		RETURNING id, faculty_user_id, label, key_prefix, is_superuser, is_staff, created_at
	`, in.UserID, in.Label, prefix, string(hash), in.IsSuperuser, in.IsStaff).Scan(
		&out.ID, &out.UserID, &out.Label, &out.Prefix, &out.IsSuperuser, &out.IsStaff, &out.CreatedAt,
	)
	if err != nil {
		return "", nil, fmt.Errorf("insert api key: %w", err)
	}
	return formatAPIKey(prefix, secret), &out, nil
}

func (s *Service) AuthenticateAPIKey(ctx context.Context, raw string) (*Actor, error) {
	prefix, secret, ok := parseAPIKey(raw)
	if !ok {
		return nil, ErrUnauthorized
	}

	var userID int64
	var hash string
	var superuser, staff bool
	err := s.db.QueryRowContext(ctx, `
		SELECT faculty_user_id, key_hash, is_superuser, is_staff
		FROM api_keys
		WHERE key_prefix = $1 AND revoked_at IS NULL
	`, prefix).Scan(&userID, &hash, &superuser, &staff)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUnauthorized
		}
		return nil, fmt.Errorf("load api key: %w", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) != nil {
		return nil, ErrUnauthorized
	}

	actor := &Actor{UserID: userID, IsSuperuser: superuser, IsStaff: staff, Source: "api_key"}
	if err := s.attachFaculty(ctx, actor); err != nil {
		return nil, err
	}
	return actor, nil
}

func (s *Service) RevokeAPIKey(ctx context.Context, prefix string) error {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return ErrInvalidInput
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE api_keys
		SET revoked_at = now()
		WHERE key_prefix = $1 AND revoked_at IS NULL
	`, prefix)
	if err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrAPIKeyNotFound
	}
	return nil
}

func formatAPIKey(prefix, secret string) string {
	return apiKeyScheme + "_" + prefix + "." + secret
}

func parseAPIKey(raw string) (prefix, secret string, ok bool) {
	raw = strings.TrimSpace(raw)
	rest, found := strings.CutPrefix(raw, apiKeyScheme+"_")
	if !found {
		return "", "", false
	}
	prefix, secret, found = strings.Cut(rest, ".")
	if !found || prefix == "" || secret == "" {
		return "", "", false
	}
	return prefix, secret, true
}

func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
