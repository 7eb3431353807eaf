package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/studiomatch/internal/model"
)

// PostgresAuditRepo はPostgreSQLを使用した監査イベントリポジトリ。
type PostgresAuditRepo struct {
	db *sql.DB
}

// NewPostgresAuditRepo はPostgresAuditRepoを生成する。
func NewPostgresAuditRepo(db *sql.DB) *PostgresAuditRepo {
	return &PostgresAuditRepo{db: db}
}

// Record は監査イベントを1件記録する。DetailはJSONBとして保存する。
func (r *PostgresAuditRepo) Record(ctx context.Context, event *model.AuditEvent) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	detail := event.Detail
	if detail == nil {
		detail = map[string]string{}
	}
	raw, err := json.Marshal(detail)
	if err != nil {
		return fmt.Errorf("監査詳細のエンコードに失敗しました: %w", err)
	}

	var userID sql.NullString
	if event.UserID != "" {
		userID = sql.NullString{String: event.UserID, Valid: true}
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO audit_events (id, user_id, action, detail, created_at) VALUES ($1, $2, $3, $4, $5)`,
		event.ID, userID, event.Action, raw, event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("監査イベントの記録に失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ AuditRepository = (*PostgresAuditRepo)(nil)
