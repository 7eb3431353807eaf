package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/studiomatch/internal/model"
	"github.com/lib/pq"
)

// PostgresConversationRepo はPostgreSQLを使用した会話リポジトリ。
type PostgresConversationRepo struct {
	db *sql.DB
}

// NewPostgresConversationRepo はPostgresConversationRepoを生成する。
func NewPostgresConversationRepo(db *sql.DB) *PostgresConversationRepo {
	return &PostgresConversationRepo{db: db}
}

// Create は会話を作成する。
func (r *PostgresConversationRepo) Create(ctx context.Context, c *model.Conversation) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	var teamID sql.NullString
	if c.TeamID != "" {
		teamID = sql.NullString{String: c.TeamID, Valid: true}
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO conversations (id, type, team_id, created_at) VALUES ($1, $2, $3, $4)`,
		c.ID, string(c.Type), teamID, c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("会話の作成に失敗しました: %w", err)
	}
	return nil
}

// AddParticipant は会話に参加者を追加する。既に参加している場合は何もしない。
func (r *PostgresConversationRepo) AddParticipant(ctx context.Context, conversationID, userID string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO conversation_participants (conversation_id, user_id, joined_at)
		 VALUES ($1, $2, now())
		 ON CONFLICT (conversation_id, user_id) DO NOTHING`,
		conversationID, userID,
	)
	if err != nil {
		return fmt.Errorf("会話参加者の追加に失敗しました: %w", err)
	}
	return nil
}

// Delete は会話を削除する。参加者・メッセージ・既読情報はCASCADE削除される。
func (r *PostgresConversationRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM conversations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("会話の削除に失敗しました: %w", err)
	}
	return nil
}

// ListParticipations はユーザーが参加している会話IDを返す。
func (r *PostgresConversationRepo) ListParticipations(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT conversation_id FROM conversation_participants WHERE user_id = $1`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("参加会話の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("参加会話行の読み取りに失敗しました: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("参加会話行の走査に失敗しました: %w", err)
	}
	return ids, nil
}

// ListReadReceipts はユーザーの全会話の既読情報を返す。
func (r *PostgresConversationRepo) ListReadReceipts(ctx context.Context, userID string) ([]model.ReadReceipt, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT user_id, conversation_id, last_read_at FROM read_receipts WHERE user_id = $1`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("既読情報の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var receipts []model.ReadReceipt
	for rows.Next() {
		var rr model.ReadReceipt
		if err := rows.Scan(&rr.UserID, &rr.ConversationID, &rr.LastReadAt); err != nil {
			return nil, fmt.Errorf("既読情報行の読み取りに失敗しました: %w", err)
		}
		receipts = append(receipts, rr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("既読情報行の走査に失敗しました: %w", err)
	}
	return receipts, nil
}

// ListMessagesNotFrom は指定会話群のメッセージのうち、userID以外が送信したものを返す。
// 未読数の集計に必要なカラムのみを取得する。
func (r *PostgresConversationRepo) ListMessagesNotFrom(ctx context.Context, userID string, conversationIDs []string) ([]model.Message, error) {
	if len(conversationIDs) == 0 {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, conversation_id, sender_id, created_at
		 FROM messages
		 WHERE conversation_id = ANY($1::uuid[]) AND sender_id <> $2`,
		pq.Array(conversationIDs), userID,
	)
	if err != nil {
		return nil, fmt.Errorf("メッセージの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var messages []model.Message
	for rows.Next() {
		var m model.Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("メッセージ行の読み取りに失敗しました: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("メッセージ行の走査に失敗しました: %w", err)
	}
	return messages, nil
}

// UnreadCount はサーバー側関数get_unread_countで未読数を取得する。
func (r *PostgresConversationRepo) UnreadCount(ctx context.Context, userID string) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT get_unread_count($1)`, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("未読数の集計に失敗しました: %w", err)
	}
	return count, nil
}

// UpsertReadReceipt は既読時刻をUPSERTする。既存の時刻より古い値では上書きしない。
func (r *PostgresConversationRepo) UpsertReadReceipt(ctx context.Context, receipt model.ReadReceipt) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO read_receipts (user_id, conversation_id, last_read_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (user_id, conversation_id) DO UPDATE SET
		     last_read_at = GREATEST(read_receipts.last_read_at, EXCLUDED.last_read_at)`,
		receipt.UserID, receipt.ConversationID, receipt.LastReadAt,
	)
	if err != nil {
		return fmt.Errorf("既読情報の更新に失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ ConversationRepository = (*PostgresConversationRepo)(nil)
