package realtime

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/hitoshi/studiomatch/internal/metrics"
	"github.com/redis/go-redis/v9"
)

// redisChannelPrefix はRedis上のチャネル名の接頭辞。
const redisChannelPrefix = "studiomatch:realtime:"

// NewRedisClient はURLからRedisクライアントを生成し、疎通を確認する。
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("REDIS_URLの解析に失敗しました: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("Redisへの接続に失敗しました: %w", err)
	}
	return client, nil
}

// RedisFeed はRedisのpub/subで受けた通知を購読者へ配る。
// 複数のAPIインスタンスへ配信する場合、Bridgeが1本のLISTEN接続からRedisへ転送する。
type RedisFeed struct {
	client  *redis.Client
	pubsub  *redis.PubSub
	hub     *Hub
	logger  *slog.Logger
	metrics metrics.MetricsCollector

	mu        sync.Mutex
	listening map[string]bool
}

// NewRedisFeed はRedisFeedを生成する。通知の受信はRunで開始する。
func NewRedisFeed(ctx context.Context, client *redis.Client, logger *slog.Logger, mc metrics.MetricsCollector) *RedisFeed {
	if mc == nil {
		mc = metrics.Nop{}
	}
	return &RedisFeed{
		client:    client,
		pubsub:    client.Subscribe(ctx),
		hub:       NewHub(),
		logger:    logger,
		metrics:   mc,
		listening: make(map[string]bool),
	}
}

// Subscribe はRedisチャネルを購読し、購読を返す。
func (f *RedisFeed) Subscribe(ctx context.Context, channel string) (*Subscription, error) {
	f.mu.Lock()
	if !f.listening[channel] {
		if err := f.pubsub.Subscribe(ctx, redisChannelPrefix+channel); err != nil {
			f.mu.Unlock()
			return nil, fmt.Errorf("Redisチャネル %s の購読に失敗しました: %w", channel, err)
		}
		f.listening[channel] = true
	}
	f.mu.Unlock()
	return f.hub.Subscribe(ctx, channel)
}

// Publish は通知をRedisへ送る。
func (f *RedisFeed) Publish(ctx context.Context, e Event) error {
	if err := f.client.Publish(ctx, redisChannelPrefix+e.Channel, e.Payload).Err(); err != nil {
		return fmt.Errorf("Redisへの通知送信に失敗しました: %w", err)
	}
	return nil
}

// Run はctxが終了するまでRedisからの通知を配る。
func (f *RedisFeed) Run(ctx context.Context) {
	ch := f.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			channel := strings.TrimPrefix(msg.Channel, redisChannelPrefix)
			f.metrics.RecordRealtimeEvent(channel)
			f.hub.Publish(Event{Channel: channel, Payload: []byte(msg.Payload)})
		}
	}
}

// Close はRedisの購読とすべての購読者を閉じる。クライアント自体は閉じない。
func (f *RedisFeed) Close() error {
	f.hub.Close()
	return f.pubsub.Close()
}

var _ Feed = (*RedisFeed)(nil)

// Publisher はBridgeの転送先。
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Bridge はsourceの指定チャネルで受けた通知をdstへ転送する。ctxが終了するまで戻らない。
func Bridge(ctx context.Context, source Feed, dst Publisher, logger *slog.Logger, channels ...string) error {
	var wg sync.WaitGroup
	subs := make([]*Subscription, 0, len(channels))
	for _, ch := range channels {
		sub, err := source.Subscribe(ctx, ch)
		if err != nil {
			for _, s := range subs {
				s.Close()
			}
			return err
		}
		subs = append(subs, sub)
	}

	for _, sub := range subs {
		wg.Add(1)
		go func(sub *Subscription) {
			defer wg.Done()
			for e := range sub.Events() {
				if err := dst.Publish(ctx, e); err != nil {
					logger.Warn("通知の転送に失敗しました",
						slog.String("channel", e.Channel),
						slog.String("error", err.Error()),
					)
				}
			}
		}(sub)
	}

	<-ctx.Done()
	for _, s := range subs {
		s.Close()
	}
	wg.Wait()
	return nil
}
