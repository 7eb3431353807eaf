package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/studiomatch/internal/model"
	"github.com/lib/pq"
)

const teamColumns = `id, name, studio, description, looking_for, target_programs, skills_needed,
	created_by, created_at`

// PostgresTeamRepo はPostgreSQLを使用したチームリポジトリ。
type PostgresTeamRepo struct {
	db *sql.DB
}

// NewPostgresTeamRepo はPostgresTeamRepoを生成する。
func NewPostgresTeamRepo(db *sql.DB) *PostgresTeamRepo {
	return &PostgresTeamRepo{db: db}
}

func scanTeam(s rowScanner) (TeamRecord, error) {
	var rec TeamRecord
	err := s.Scan(
		&rec.ID, &rec.Name, &rec.Studio,
		&rec.Description, &rec.LookingFor,
		pq.Array(&rec.TargetPrograms), pq.Array(&rec.SkillsNeeded),
		&rec.CreatedBy, &rec.CreatedAt,
	)
	return rec, err
}

func scanMember(s rowScanner) (model.TeamMember, error) {
	var m model.TeamMember
	var role, status string
	err := s.Scan(&m.TeamID, &m.UserID, &role, &status, &m.JoinedAt)
	m.Role = model.MemberRole(role)
	m.Status = model.MemberStatus(status)
	return m, err
}

// FindByID は指定IDのチームを取得する。見つからない場合はnilを返す。
func (r *PostgresTeamRepo) FindByID(ctx context.Context, id string) (*TeamRecord, error) {
	rec, err := scanTeam(r.db.QueryRowContext(ctx,
		`SELECT `+teamColumns+` FROM teams WHERE id = $1`, id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("チームの取得に失敗しました: %w", err)
	}
	return &rec, nil
}

// ListAll は全チームを作成日時順に返す。
func (r *PostgresTeamRepo) ListAll(ctx context.Context) ([]TeamRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+teamColumns+` FROM teams ORDER BY created_at, id`,
	)
	if err != nil {
		return nil, fmt.Errorf("チーム一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var teams []TeamRecord
	for rows.Next() {
		rec, err := scanTeam(rows)
		if err != nil {
			return nil, fmt.Errorf("チーム行の読み取りに失敗しました: %w", err)
		}
		teams = append(teams, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("チーム行の走査に失敗しました: %w", err)
	}
	return teams, nil
}

// FindConfirmedMembership はユーザーのconfirmedなメンバーシップを返す。
// 複数存在する場合は最も古いものを返す。
func (r *PostgresTeamRepo) FindConfirmedMembership(ctx context.Context, userID string) (*model.TeamMember, error) {
	m, err := scanMember(r.db.QueryRowContext(ctx,
		`SELECT team_id, user_id, role, status, joined_at
		 FROM team_members
		 WHERE user_id = $1 AND status = 'confirmed'
		 ORDER BY joined_at
		 LIMIT 1`,
		userID,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("メンバーシップの取得に失敗しました: %w", err)
	}
	return &m, nil
}

// ListConfirmedMembers は全チームのconfirmedなメンバーシップを返す。
func (r *PostgresTeamRepo) ListConfirmedMembers(ctx context.Context) ([]model.TeamMember, error) {
	return r.listMembers(ctx,
		`SELECT team_id, user_id, role, status, joined_at
		 FROM team_members WHERE status = 'confirmed'
		 ORDER BY team_id, joined_at`,
	)
}

// ListConfirmedMembersByTeam は指定チームのconfirmedなメンバーシップを参加順に返す。
func (r *PostgresTeamRepo) ListConfirmedMembersByTeam(ctx context.Context, teamID string) ([]model.TeamMember, error) {
	return r.listMembers(ctx,
		`SELECT team_id, user_id, role, status, joined_at
		 FROM team_members WHERE team_id = $1 AND status = 'confirmed'
		 ORDER BY joined_at`,
		teamID,
	)
}

func (r *PostgresTeamRepo) listMembers(ctx context.Context, query string, args ...any) ([]model.TeamMember, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("メンバー一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var members []model.TeamMember
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("メンバー行の読み取りに失敗しました: %w", err)
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("メンバー行の走査に失敗しました: %w", err)
	}
	return members, nil
}

// CreateWithOwner はサーバー側関数create_team_with_ownerをトランザクション内で呼び出す。
// 関数内の4つのINSERTはすべて成功するか、すべてロールバックされる。
func (r *PostgresTeamRepo) CreateWithOwner(ctx context.Context, team TeamRecord, conversationID string) (time.Time, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var createdAt time.Time
	err = tx.QueryRowContext(ctx,
		`SELECT create_team_with_owner($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		team.ID, conversationID, team.Name, team.Studio,
		team.Description.String, team.LookingFor.String,
		pq.Array(team.TargetPrograms), pq.Array(team.SkillsNeeded),
		team.CreatedBy,
	).Scan(&createdAt)
	if err != nil {
		return time.Time{}, fmt.Errorf("チームの一括作成に失敗しました: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return time.Time{}, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return createdAt, nil
}

// Create はチーム行のみを作成する。
func (r *PostgresTeamRepo) Create(ctx context.Context, team *TeamRecord) error {
	if team.CreatedAt.IsZero() {
		team.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO teams (id, name, studio, description, looking_for, target_programs, skills_needed, created_by, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		team.ID, team.Name, team.Studio,
		team.Description.String, team.LookingFor.String,
		pq.Array(team.TargetPrograms), pq.Array(team.SkillsNeeded),
		team.CreatedBy, team.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("チームの作成に失敗しました: %w", err)
	}
	return nil
}

// AddMember はメンバーシップを追加する。既に存在する場合は役割と状態を上書きする。
func (r *PostgresTeamRepo) AddMember(ctx context.Context, member model.TeamMember) error {
	if member.JoinedAt.IsZero() {
		member.JoinedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO team_members (team_id, user_id, role, status, joined_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (team_id, user_id) DO UPDATE SET
		     role = EXCLUDED.role,
		     status = EXCLUDED.status`,
		member.TeamID, member.UserID, string(member.Role), string(member.Status), member.JoinedAt,
	)
	if err != nil {
		return fmt.Errorf("メンバーの追加に失敗しました: %w", err)
	}
	return nil
}

// Delete はチームを削除する。
func (r *PostgresTeamRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM teams WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("チームの削除に失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ TeamRepository = (*PostgresTeamRepo)(nil)
