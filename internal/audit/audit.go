package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Write appends one audit row. Pass the transaction when the change is transactional.
func Write(ctx context.Context, db execer, userID int64, action, entityType, entityID string, payload map[string]any) error {
	if payload == nil {
		payload = map[string]any{}
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO audit_logs (user_id, action, entity_type, entity_id, payload, created_at)
		VALUES ($1, $2, $3, $4, $5::jsonb, now())
	`, userID, action, entityType, entityID, string(b))
	if err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}
