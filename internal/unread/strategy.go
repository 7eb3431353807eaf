// Package unread はユーザーの未読メッセージ数を計算し、変更通知とポーリングで最新に保つ。
package unread

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/studiomatch/internal/metrics"
	"github.com/hitoshi/studiomatch/internal/model"
	"golang.org/x/sync/errgroup"
)

// Strategy は未読数の計算方法。
type Strategy interface {
	Name() string
	Count(ctx context.Context, userID string) (int, error)
}

// AggregateCounter はサーバー側の集計関数を呼び出すインターフェース。
type AggregateCounter interface {
	UnreadCount(ctx context.Context, userID string) (int, error)
}

// AggregateStrategy は集計関数1回の往復で未読数を得る。
type AggregateStrategy struct {
	store AggregateCounter
}

// NewAggregateStrategy はAggregateStrategyを生成する。
func NewAggregateStrategy(store AggregateCounter) *AggregateStrategy {
	return &AggregateStrategy{store: store}
}

func (s *AggregateStrategy) Name() string { return "aggregate" }

func (s *AggregateStrategy) Count(ctx context.Context, userID string) (int, error) {
	return s.store.UnreadCount(ctx, userID)
}

// ScanSource は未読数を自前で数えるための参照インターフェース。
type ScanSource interface {
	ListParticipations(ctx context.Context, userID string) ([]string, error)
	ListReadReceipts(ctx context.Context, userID string) ([]model.ReadReceipt, error)
	ListMessagesNotFrom(ctx context.Context, userID string, conversationIDs []string) ([]model.Message, error)
}

// ScanStrategy は参加会話と既読時刻を並行に取得し、他者のメッセージを数える。
type ScanStrategy struct {
	store ScanSource
}

// NewScanStrategy はScanStrategyを生成する。
func NewScanStrategy(store ScanSource) *ScanStrategy {
	return &ScanStrategy{store: store}
}

func (s *ScanStrategy) Name() string { return "scan" }

// Count は既読時刻より後に作成されたメッセージを数える。
// 既読情報のない会話では全メッセージを未読とする。
func (s *ScanStrategy) Count(ctx context.Context, userID string) (int, error) {
	var (
		conversations []string
		receipts      []model.ReadReceipt
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		conversations, err = s.store.ListParticipations(gctx, userID)
		return err
	})
	g.Go(func() error {
		var err error
		receipts, err = s.store.ListReadReceipts(gctx, userID)
		return err
	})
	if err := g.Wait(); err != nil {
		return 0, err
	}
	if len(conversations) == 0 {
		return 0, nil
	}

	lastRead := make(map[string]time.Time, len(receipts))
	for _, r := range receipts {
		lastRead[r.ConversationID] = r.LastReadAt
	}

	messages, err := s.store.ListMessagesNotFrom(ctx, userID, conversations)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, m := range messages {
		if m.SenderID == userID {
			continue
		}
		read, ok := lastRead[m.ConversationID]
		if !ok || m.CreatedAt.After(read) {
			count++
		}
	}
	return count, nil
}

// FallbackStrategy はPrimaryが失敗した呼び出しに限りSecondaryで計算する。
// 失敗を記憶せず、次の呼び出しでは再びPrimaryを試す。
type FallbackStrategy struct {
	Primary   Strategy
	Secondary Strategy
	Logger    *slog.Logger
	Metrics   metrics.MetricsCollector
}

func (s *FallbackStrategy) Name() string { return "fallback" }

func (s *FallbackStrategy) Count(ctx context.Context, userID string) (int, error) {
	n, err := s.Primary.Count(ctx, userID)
	if err == nil {
		return n, nil
	}
	if ctx.Err() != nil {
		return 0, ctx.Err()
	}
	if s.Logger != nil {
		s.Logger.Warn("未読数の集計に失敗したため代替方法で計算します",
			slog.String("user_id", userID),
			slog.String("strategy", s.Primary.Name()),
			slog.String("error", err.Error()),
		)
	}
	if s.Metrics != nil {
		s.Metrics.RecordUnreadFallback()
	}
	n, err2 := s.Secondary.Count(ctx, userID)
	if err2 != nil {
		return 0, fmt.Errorf("%s: %v; %s: %w", s.Primary.Name(), err, s.Secondary.Name(), err2)
	}
	return n, nil
}

// NewDefaultStrategy は集計関数を優先し、失敗時に走査へ切り替える戦略を返す。
func NewDefaultStrategy(aggregate AggregateCounter, scan ScanSource, logger *slog.Logger, mc metrics.MetricsCollector) Strategy {
	return &FallbackStrategy{
		Primary:   NewAggregateStrategy(aggregate),
		Secondary: NewScanStrategy(scan),
		Logger:    logger,
		Metrics:   mc,
	}
}
