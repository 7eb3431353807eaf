package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/studiomatch/internal/model"
)

// DataRequestStatusPending は処理待ちのデータ要求の状態。
const DataRequestStatusPending = "pending"

// PostgresDataRequestRepo はPostgreSQLを使用したデータ要求リポジトリ。
type PostgresDataRequestRepo struct {
	db *sql.DB
}

// NewPostgresDataRequestRepo はPostgresDataRequestRepoを生成する。
func NewPostgresDataRequestRepo(db *sql.DB) *PostgresDataRequestRepo {
	return &PostgresDataRequestRepo{db: db}
}

func scanDataRequest(s rowScanner) (model.DataRequest, error) {
	var req model.DataRequest
	var kind string
	err := s.Scan(&req.ID, &req.UserID, &kind, &req.Status, &req.RequestedAt)
	req.Kind = model.DataRequestKind(kind)
	return req, err
}

// FindPending はユーザーの処理待ち要求を種別ごとに返す。
func (r *PostgresDataRequestRepo) FindPending(ctx context.Context, userID string, kind model.DataRequestKind) (*model.DataRequest, error) {
	req, err := scanDataRequest(r.db.QueryRowContext(ctx,
		`SELECT id, user_id, kind, status, requested_at FROM data_requests
		 WHERE user_id = $1 AND kind = $2 AND status = $3
		 ORDER BY requested_at LIMIT 1`,
		userID, string(kind), DataRequestStatusPending,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("データ要求の取得に失敗しました: %w", err)
	}
	return &req, nil
}

// Create はデータ要求を作成する。
func (r *PostgresDataRequestRepo) Create(ctx context.Context, req *model.DataRequest) error {
	if req.ID == "" {
		req.ID = uuid.New().String()
	}
	if req.Status == "" {
		req.Status = DataRequestStatusPending
	}
	if req.RequestedAt.IsZero() {
		req.RequestedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO data_requests (id, user_id, kind, status, requested_at) VALUES ($1, $2, $3, $4, $5)`,
		req.ID, req.UserID, string(req.Kind), req.Status, req.RequestedAt,
	)
	if err != nil {
		return fmt.Errorf("データ要求の作成に失敗しました: %w", err)
	}
	return nil
}

// ListPending は処理待ちの要求を古い順にlimit件まで返す。
func (r *PostgresDataRequestRepo) ListPending(ctx context.Context, limit int) ([]model.DataRequest, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, kind, status, requested_at FROM data_requests
		 WHERE status = $1 ORDER BY requested_at LIMIT $2`,
		DataRequestStatusPending, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("データ要求一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var reqs []model.DataRequest
	for rows.Next() {
		req, err := scanDataRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("データ要求行の読み取りに失敗しました: %w", err)
		}
		reqs = append(reqs, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("データ要求行の走査に失敗しました: %w", err)
	}
	return reqs, nil
}

// compile-time interface check
var _ DataRequestRepository = (*PostgresDataRequestRepo)(nil)
