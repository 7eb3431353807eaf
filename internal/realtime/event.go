// Package realtime はストアの行変更イベントを購読するためのフィードを提供する。
//
// PostgreSQLのLISTEN/NOTIFYを直接購読するPostgresFeedと、
// 複数インスタンスへの配信用にRedisのpub/subを経由するRedisFeedがある。
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// 購読可能なチャネル名。トリガーのpg_notifyと一致させる。
const (
	ChannelMessages     = "messages"
	ChannelReadReceipts = "read_receipts"
)

// Event は1件の変更通知。
// Payloadが空の場合は再接続などで通知を取りこぼした可能性を表す。
type Event struct {
	Channel string
	Payload []byte
}

// Resync は通知の取りこぼしを表すイベントかを返す。
func (e Event) Resync() bool {
	return len(e.Payload) == 0
}

// MessageEvent はmessagesへのINSERT通知。
type MessageEvent struct {
	ConversationID string    `json:"conversation_id"`
	SenderID       string    `json:"sender_id"`
	CreatedAt      time.Time `json:"created_at"`
}

// ReadReceiptEvent はread_receiptsの変更通知。
type ReadReceiptEvent struct {
	ConversationID string    `json:"conversation_id"`
	UserID         string    `json:"user_id"`
	LastReadAt     time.Time `json:"last_read_at"`
}

// DecodeMessage はmessagesチャネルのペイロードを読み取る。
func DecodeMessage(e Event) (MessageEvent, error) {
	var m MessageEvent
	if e.Channel != ChannelMessages {
		return m, fmt.Errorf("unexpected channel: %s", e.Channel)
	}
	if err := json.Unmarshal(e.Payload, &m); err != nil {
		return m, fmt.Errorf("メッセージ通知の読み取りに失敗しました: %w", err)
	}
	return m, nil
}

// DecodeReadReceipt はread_receiptsチャネルのペイロードを読み取る。
func DecodeReadReceipt(e Event) (ReadReceiptEvent, error) {
	var r ReadReceiptEvent
	if e.Channel != ChannelReadReceipts {
		return r, fmt.Errorf("unexpected channel: %s", e.Channel)
	}
	if err := json.Unmarshal(e.Payload, &r); err != nil {
		return r, fmt.Errorf("既読通知の読み取りに失敗しました: %w", err)
	}
	return r, nil
}

// Feed は名前付きチャネルの変更通知を購読するインターフェース。
// ctxが終了するか、返されたSubscriptionをCloseすると購読は解除される。
type Feed interface {
	Subscribe(ctx context.Context, channel string) (*Subscription, error)
}
