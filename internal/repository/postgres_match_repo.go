package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/studiomatch/internal/model"
	"github.com/lib/pq"
)

// PostgresMatchRepo はPostgreSQLを使用したスワイプ記録リポジトリ。
type PostgresMatchRepo struct {
	db *sql.DB
}

// NewPostgresMatchRepo はPostgresMatchRepoを生成する。
func NewPostgresMatchRepo(db *sql.DB) *PostgresMatchRepo {
	return &PostgresMatchRepo{db: db}
}

// ListBySource はユーザーが行ったスワイプを返す。typesが空の場合は全種別を返す。
func (r *PostgresMatchRepo) ListBySource(ctx context.Context, sourceUserID string, types ...model.MatchType) ([]model.Match, error) {
	query := `SELECT id, source_user_id, target_id, match_type, status, created_at, updated_at
		FROM matches WHERE source_user_id = $1`
	args := []any{sourceUserID}
	if len(types) > 0 {
		names := make([]string, len(types))
		for i, t := range types {
			names[i] = string(t)
		}
		query += ` AND match_type = ANY($2)`
		args = append(args, pq.Array(names))
	}
	query += ` ORDER BY created_at`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("スワイプ記録の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var matches []model.Match
	for rows.Next() {
		var m model.Match
		var matchType, status string
		if err := rows.Scan(&m.ID, &m.SourceUserID, &m.TargetID, &matchType, &status, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("スワイプ行の読み取りに失敗しました: %w", err)
		}
		m.Type = model.MatchType(matchType)
		m.Status = model.MatchStatus(status)
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("スワイプ行の走査に失敗しました: %w", err)
	}
	return matches, nil
}

// Create はスワイプを記録する。
// UNIQUE(source_user_id, target_id, match_type)により同じスワイプの二重記録は無視される。
func (r *PostgresMatchRepo) Create(ctx context.Context, match *model.Match) error {
	now := time.Now().UTC()
	if match.ID == "" {
		match.ID = uuid.New().String()
	}
	if match.Status == "" {
		match.Status = model.MatchStatusPending
	}
	match.CreatedAt = now
	match.UpdatedAt = now

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO matches (id, source_user_id, target_id, match_type, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (source_user_id, target_id, match_type) DO NOTHING`,
		match.ID, match.SourceUserID, match.TargetID,
		string(match.Type), string(match.Status),
		match.CreatedAt, match.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("スワイプの記録に失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ MatchRepository = (*PostgresMatchRepo)(nil)
