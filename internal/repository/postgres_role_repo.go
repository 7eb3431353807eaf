package repository

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresRoleRepo はuser_rolesテーブルを参照するロールリポジトリ。
type PostgresRoleRepo struct {
	db *sql.DB
}

// NewPostgresRoleRepo はPostgresRoleRepoを生成する。
func NewPostgresRoleRepo(db *sql.DB) *PostgresRoleRepo {
	return &PostgresRoleRepo{db: db}
}

// HasRole はユーザーが指定ロールを持つかを返す。
func (r *PostgresRoleRepo) HasRole(ctx context.Context, userID, role string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM user_roles WHERE user_id = $1 AND role = $2)`,
		userID, role,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("ロールの確認に失敗しました: %w", err)
	}
	return exists, nil
}

// compile-time interface check
var _ RoleRepository = (*PostgresRoleRepo)(nil)
