package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
)

// profileColumns はprofilesテーブルのSELECT対象カラム。scanProfileと順序を合わせる。
const profileColumns = `id, name, program, skills, bio, primary_studio, studio_preferences,
	avatar_url, portfolio_url, created_at`

// PostgresProfileRepo はPostgreSQLを使用したプロフィールリポジトリ。
type PostgresProfileRepo struct {
	db *sql.DB
}

// NewPostgresProfileRepo はPostgresProfileRepoを生成する。
func NewPostgresProfileRepo(db *sql.DB) *PostgresProfileRepo {
	return &PostgresProfileRepo{db: db}
}

// rowScanner は*sql.Rowと*sql.Rowsの共通インターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(s rowScanner) (ProfileRecord, error) {
	var rec ProfileRecord
	err := s.Scan(
		&rec.ID, &rec.Name, &rec.Program,
		pq.Array(&rec.Skills), &rec.Bio,
		&rec.PrimaryStudio, pq.Array(&rec.StudioPreferences),
		&rec.AvatarURL, &rec.PortfolioURL, &rec.CreatedAt,
	)
	return rec, err
}

// FindByID は指定IDのプロフィールを取得する。見つからない場合はnilを返す。
func (r *PostgresProfileRepo) FindByID(ctx context.Context, id string) (*ProfileRecord, error) {
	rec, err := scanProfile(r.db.QueryRowContext(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE id = $1`, id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("プロフィールの取得に失敗しました: %w", err)
	}
	return &rec, nil
}

// ListExcept は指定ユーザー以外の全プロフィールを作成日時順に返す。
func (r *PostgresProfileRepo) ListExcept(ctx context.Context, userID string) ([]ProfileRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE id <> $1 ORDER BY created_at, id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("プロフィール一覧の取得に失敗しました: %w", err)
	}
	return collectProfiles(rows)
}

// FindByIDs は複数IDのプロフィールを = ANY($1) で一括取得する。
func (r *PostgresProfileRepo) FindByIDs(ctx context.Context, ids []string) ([]ProfileRecord, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE id = ANY($1::uuid[]) ORDER BY created_at, id`,
		pq.Array(ids),
	)
	if err != nil {
		return nil, fmt.Errorf("プロフィールの一括取得に失敗しました: %w", err)
	}
	return collectProfiles(rows)
}

// UpdateAvatarURL はアバター画像のURLを更新する。
func (r *PostgresProfileRepo) UpdateAvatarURL(ctx context.Context, id, avatarURL string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE profiles SET avatar_url = $2, updated_at = now() WHERE id = $1`,
		id, avatarURL,
	)
	if err != nil {
		return fmt.Errorf("アバターURLの更新に失敗しました: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新件数の取得に失敗しました: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("profile not found: %s", id)
	}
	return nil
}

func collectProfiles(rows *sql.Rows) ([]ProfileRecord, error) {
	defer rows.Close()

	var records []ProfileRecord
	for rows.Next() {
		rec, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("プロフィール行の読み取りに失敗しました: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("プロフィール行の走査に失敗しました: %w", err)
	}
	return records, nil
}

// compile-time interface check
var _ ProfileRepository = (*PostgresProfileRepo)(nil)
