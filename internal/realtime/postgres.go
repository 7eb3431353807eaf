package realtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/studiomatch/internal/metrics"
	"github.com/lib/pq"
)

// PostgresFeedOptions はpq.Listenerの再接続設定。
type PostgresFeedOptions struct {
	MinReconnectInterval time.Duration
	MaxReconnectInterval time.Duration
	PingInterval         time.Duration
}

// DefaultPostgresFeedOptions は既定の再接続設定を返す。
func DefaultPostgresFeedOptions() PostgresFeedOptions {
	return PostgresFeedOptions{
		MinReconnectInterval: 10 * time.Second,
		MaxReconnectInterval: time.Minute,
		PingInterval:         90 * time.Second,
	}
}

// PostgresFeed は1本のLISTEN接続で受けた通知を購読者へ配る。
type PostgresFeed struct {
	listener *pq.Listener
	hub      *Hub
	logger   *slog.Logger
	metrics  metrics.MetricsCollector
	opts     PostgresFeedOptions

	mu        sync.Mutex
	listening map[string]bool
}

// NewPostgresFeed はPostgresFeedを生成する。通知の受信はRunで開始する。
func NewPostgresFeed(databaseURL string, opts PostgresFeedOptions, logger *slog.Logger, mc metrics.MetricsCollector) *PostgresFeed {
	if mc == nil {
		mc = metrics.Nop{}
	}
	f := &PostgresFeed{
		hub:       NewHub(),
		logger:    logger,
		metrics:   mc,
		opts:      opts,
		listening: make(map[string]bool),
	}
	f.listener = pq.NewListener(databaseURL, opts.MinReconnectInterval, opts.MaxReconnectInterval, f.onListenerEvent)
	return f
}

func (f *PostgresFeed) onListenerEvent(ev pq.ListenerEventType, err error) {
	switch ev {
	case pq.ListenerEventConnected:
		f.logger.Info("LISTEN接続を確立しました")
	case pq.ListenerEventDisconnected:
		f.logger.Warn("LISTEN接続が切断されました", slog.String("error", fmt.Sprint(err)))
	case pq.ListenerEventReconnected:
		f.logger.Info("LISTEN接続を再確立しました")
	case pq.ListenerEventConnectionAttemptFailed:
		f.logger.Warn("LISTEN接続の試行に失敗しました", slog.String("error", fmt.Sprint(err)))
	}
}

// Subscribe はチャネルをLISTENし、購読を返す。
func (f *PostgresFeed) Subscribe(ctx context.Context, channel string) (*Subscription, error) {
	if err := f.listen(channel); err != nil {
		return nil, err
	}
	return f.hub.Subscribe(ctx, channel)
}

func (f *PostgresFeed) listen(channel string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listening[channel] {
		return nil
	}
	if err := f.listener.Listen(channel); err != nil && !errors.Is(err, pq.ErrChannelAlreadyOpen) {
		return fmt.Errorf("LISTEN %s に失敗しました: %w", channel, err)
	}
	f.listening[channel] = true
	return nil
}

// Run はctxが終了するまで通知を受信して配る。
// 再接続時はnil通知を受け取るため、取りこぼしを補うよう全購読者に再同期イベントを送る。
func (f *PostgresFeed) Run(ctx context.Context) {
	ticker := time.NewTicker(f.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-f.listener.Notify:
			if !ok {
				return
			}
			if n == nil {
				f.hub.Broadcast()
				continue
			}
			f.metrics.RecordRealtimeEvent(n.Channel)
			f.hub.Publish(Event{Channel: n.Channel, Payload: []byte(n.Extra)})
		case <-ticker.C:
			if err := f.listener.Ping(); err != nil {
				f.logger.Warn("LISTEN接続のPingに失敗しました", slog.String("error", err.Error()))
			}
		}
	}
}

// Close はLISTEN接続とすべての購読を閉じる。
func (f *PostgresFeed) Close() error {
	f.hub.Close()
	return f.listener.Close()
}

var _ Feed = (*PostgresFeed)(nil)
