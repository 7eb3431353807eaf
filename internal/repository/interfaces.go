// Package repository はデータ永続化のインターフェースを定義する。
// 各コンポーネントはグローバルなクライアントではなく、ここで定義する
// インターフェースをコンストラクタで受け取る。
package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/hitoshi/studiomatch/internal/model"
)

// ProfileRecord はprofilesテーブルの行をそのまま表す。
// NULL許容カラムはsql.Null*またはnilスライスのまま保持し、
// 既定値の補完はviewmodelパッケージが行う。
type ProfileRecord struct {
	ID                string
	Name              string
	Program           string
	Skills            []string
	Bio               sql.NullString
	PrimaryStudio     string
	StudioPreferences []string
	AvatarURL         sql.NullString
	PortfolioURL      sql.NullString
	CreatedAt         time.Time
}

// TeamRecord はteamsテーブルの行をそのまま表す。
type TeamRecord struct {
	ID             string
	Name           string
	Studio         string
	Description    sql.NullString
	LookingFor     sql.NullString
	TargetPrograms []string
	SkillsNeeded   []string
	CreatedBy      string
	CreatedAt      time.Time
}

// ProfileRepository はプロフィールの永続化インターフェース。
type ProfileRepository interface {
	// FindByID は指定IDのプロフィールを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*ProfileRecord, error)

	// ListExcept は指定ユーザー以外の全プロフィールを返す。
	ListExcept(ctx context.Context, userID string) ([]ProfileRecord, error)

	// FindByIDs は複数IDのプロフィールを1回のクエリでまとめて取得する。
	// 存在しないIDは結果に含まれない。
	FindByIDs(ctx context.Context, ids []string) ([]ProfileRecord, error)

	// UpdateAvatarURL はアバター画像のURLを更新する。
	UpdateAvatarURL(ctx context.Context, id, avatarURL string) error
}

// TeamRepository はチームとメンバーシップの永続化インターフェース。
type TeamRepository interface {
	// FindByID は指定IDのチームを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*TeamRecord, error)

	// ListAll は全チームを返す。
	ListAll(ctx context.Context) ([]TeamRecord, error)

	// FindConfirmedMembership はユーザーのconfirmedなメンバーシップを返す。
	// 所属していない場合はnilを返す。
	FindConfirmedMembership(ctx context.Context, userID string) (*model.TeamMember, error)

	// ListConfirmedMembers は全チームのconfirmedなメンバーシップを返す。
	ListConfirmedMembers(ctx context.Context) ([]model.TeamMember, error)

	// ListConfirmedMembersByTeam は指定チームのconfirmedなメンバーシップを返す。
	ListConfirmedMembersByTeam(ctx context.Context, teamID string) ([]model.TeamMember, error)

	// CreateWithOwner はチーム、オーナーのメンバーシップ、チーム会話、
	// 会話参加者を1つのトランザクションで作成し、作成時刻を返す。
	CreateWithOwner(ctx context.Context, team TeamRecord, conversationID string) (time.Time, error)

	// Create はチーム行のみを作成する。
	Create(ctx context.Context, team *TeamRecord) error

	// AddMember はメンバーシップを追加する。
	AddMember(ctx context.Context, member model.TeamMember) error

	// Delete はチームを削除する。メンバーシップとチーム会話はCASCADE削除される。
	Delete(ctx context.Context, id string) error
}

// MatchRepository はスワイプ記録の永続化インターフェース。
type MatchRepository interface {
	// ListBySource はユーザーが行ったスワイプのうち、指定種別のものを返す。
	// typesが空の場合は全種別を返す。
	ListBySource(ctx context.Context, sourceUserID string, types ...model.MatchType) ([]model.Match, error)

	// Create はスワイプを記録する。同一(source, target, type)が既に存在する場合は何もしない。
	Create(ctx context.Context, match *model.Match) error
}

// ConversationRepository は会話・メッセージ・既読情報の永続化インターフェース。
type ConversationRepository interface {
	// Create は会話を作成する。
	Create(ctx context.Context, conversation *model.Conversation) error

	// AddParticipant は会話に参加者を追加する。
	AddParticipant(ctx context.Context, conversationID, userID string) error

	// Delete は会話を削除する。
	Delete(ctx context.Context, id string) error

	// ListParticipations はユーザーが参加している会話IDを返す。
	ListParticipations(ctx context.Context, userID string) ([]string, error)

	// ListReadReceipts はユーザーの全会話の既読情報を返す。
	ListReadReceipts(ctx context.Context, userID string) ([]model.ReadReceipt, error)

	// ListMessagesNotFrom は指定会話群のメッセージのうち、userID以外が送信したものを返す。
	ListMessagesNotFrom(ctx context.Context, userID string, conversationIDs []string) ([]model.Message, error)

	// UnreadCount はサーバー側の集計関数で未読数を1回の往復で返す。
	UnreadCount(ctx context.Context, userID string) (int, error)

	// UpsertReadReceipt は(user_id, conversation_id)をキーに既読時刻をUPSERTする。
	UpsertReadReceipt(ctx context.Context, receipt model.ReadReceipt) error
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
}

// AuditRepository は監査イベントの永続化インターフェース。
type AuditRepository interface {
	Record(ctx context.Context, event *model.AuditEvent) error
}

// DataRequestRepository はデータ要求の永続化インターフェース。
type DataRequestRepository interface {
	// FindPending はユーザーの処理待ち要求を種別ごとに返す。見つからない場合はnilを返す。
	FindPending(ctx context.Context, userID string, kind model.DataRequestKind) (*model.DataRequest, error)
	// Create はデータ要求を作成する。
	Create(ctx context.Context, req *model.DataRequest) error
	// ListPending は処理待ちの要求を古い順に返す。
	ListPending(ctx context.Context, limit int) ([]model.DataRequest, error)
}

// RoleRepository はアクセスロールの確認インターフェース。
type RoleRepository interface {
	HasRole(ctx context.Context, userID, role string) (bool, error)
}
