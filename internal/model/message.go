package model

import "time"

// ConversationType は会話の種類を表す。
type ConversationType string

const (
	ConversationTypeDirect ConversationType = "direct"
	ConversationTypeTeam   ConversationType = "team"
)

// Conversation は参加者のグループを表す。チーム会話の場合はTeamIDが設定される。
type Conversation struct {
	ID        string
	Type      ConversationType
	TeamID    string
	CreatedAt time.Time
}

// Message は会話内のメッセージ。追記のみで削除されない。
type Message struct {
	ID             string
	ConversationID string
	SenderID       string
	Content        string
	CreatedAt      time.Time
}

// ReadReceipt はユーザーと会話ごとの最終既読時刻。
type ReadReceipt struct {
	UserID         string
	ConversationID string
	LastReadAt     time.Time
}

// DataRequestKind はデータ要求の種類を表す。
type DataRequestKind string

const (
	DataRequestExport   DataRequestKind = "export"
	DataRequestDeletion DataRequestKind = "deletion"
)

// DataRequest はデータのエクスポートまたは削除の要求。
// 実際の処理は管理者側のワークフローで行う。
type DataRequest struct {
	ID          string
	UserID      string
	Kind        DataRequestKind
	Status      string
	RequestedAt time.Time
}

// AuditEvent は監査ログの1件。
type AuditEvent struct {
	ID        string
	UserID    string
	Action    string
	Detail    map[string]string
	CreatedAt time.Time
}
