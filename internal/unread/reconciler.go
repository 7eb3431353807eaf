package unread

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hitoshi/studiomatch/internal/metrics"
	"github.com/hitoshi/studiomatch/internal/realtime"
)

// ErrAlreadyStarted はStartが2回呼ばれた場合に返される。
var ErrAlreadyStarted = errors.New("reconciler already started")

// Options はリコンサイラのタイマー設定。
type Options struct {
	// InitialDelay は開始から最初の計算までの待ち時間。
	InitialDelay time.Duration
	// Debounce は再計算要求をまとめる期間。最後の要求からこの時間後に1回だけ計算する。
	Debounce time.Duration
	// PollInterval は通知の有無に関係なく再計算する間隔。
	PollInterval time.Duration
}

// DefaultOptions は既定のタイマー設定を返す。
func DefaultOptions() Options {
	return Options{
		InitialDelay: time.Second,
		Debounce:     500 * time.Millisecond,
		PollInterval: 30 * time.Second,
	}
}

// ConversationLister はユーザーが参加している会話IDを返す。
type ConversationLister interface {
	ListParticipations(ctx context.Context, userID string) ([]string, error)
}

// Reconciler は1ユーザーの未読数を保持し、通知・タイマーで再計算する。
// タイマーと購読はすべてReconcilerが所有し、Stopで確実に解放する。
type Reconciler struct {
	strategy Strategy
	feed     realtime.Feed
	userID   string
	opts     Options
	logger   *slog.Logger
	metrics  metrics.MetricsCollector

	// conversations が設定されている場合、参加会話以外のメッセージ通知は無視する。
	// known はrunゴルーチンのみが読み書きする。nilの間は全メッセージを対象とする
	conversations ConversationLister
	known         map[string]struct{}

	count   atomic.Int64
	updates chan int
	trigger chan struct{}

	cancel   context.CancelFunc
	wg       sync.WaitGroup
	started  atomic.Bool
	stopped  atomic.Bool
	stopOnce sync.Once
}

// New はReconcilerを生成する。feedがnilの場合はポーリングのみで動作する。
func New(strategy Strategy, feed realtime.Feed, userID string, opts Options, logger *slog.Logger, mc metrics.MetricsCollector) *Reconciler {
	if mc == nil {
		mc = metrics.Nop{}
	}
	return &Reconciler{
		strategy: strategy,
		feed:     feed,
		userID:   userID,
		opts:     opts,
		logger:   logger.With(slog.String("user_id", userID)),
		metrics:  mc,
		updates:  make(chan int, 1),
		trigger:  make(chan struct{}, 1),
	}
}

// WithConversations は参加会話によるメッセージ通知の絞り込みを有効にする。Startより前に呼ぶ。
// 参加会話の一覧は再計算のたびに更新されるため、新たに参加した会話の通知は次の再計算以降に反映される。
func (r *Reconciler) WithConversations(l ConversationLister) *Reconciler {
	r.conversations = l
	return r
}

// Start は初回計算の予約、変更通知の購読、ポーリングを開始する。
// 購読に失敗した場合はログに記録し、ポーリングのみで継続する。
func (r *Reconciler) Start(ctx context.Context) error {
	if !r.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	if r.stopped.Load() {
		close(r.updates)
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	var subs []*realtime.Subscription
	if r.feed != nil {
		for _, ch := range []string{realtime.ChannelMessages, realtime.ChannelReadReceipts} {
			sub, err := r.feed.Subscribe(ctx, ch)
			if err != nil {
				r.logger.Warn("変更通知の購読に失敗しました。ポーリングのみで更新します",
					slog.String("channel", ch),
					slog.String("error", err.Error()),
				)
				continue
			}
			subs = append(subs, sub)
		}
	}

	r.wg.Add(1)
	go r.run(ctx, subs)
	return nil
}

// Trigger は再計算を要求する。Debounce期間内の要求はまとめられる。
func (r *Reconciler) Trigger() {
	select {
	case r.trigger <- struct{}{}:
	default:
	}
}

// Count は現在の未読数を返す。
func (r *Reconciler) Count() int {
	return int(r.count.Load())
}

// Updates は未読数が変化するたびに最新値を受け取るチャネルを返す。
// 受信が遅れた場合は途中の値を飛ばして最新値だけが残る。Stop後にcloseされる。
func (r *Reconciler) Updates() <-chan int {
	return r.updates
}

// Stop はすべてのタイマーと購読を解除し、ゴルーチンの終了を待つ。
// 実行中の計算結果は反映されない。
func (r *Reconciler) Stop() {
	r.stopOnce.Do(func() {
		r.stopped.Store(true)
		if r.cancel != nil {
			r.cancel()
		}
		r.wg.Wait()
	})
}

func (r *Reconciler) run(ctx context.Context, subs []*realtime.Subscription) {
	defer r.wg.Done()
	defer close(r.updates)

	initial := time.NewTimer(r.opts.InitialDelay)
	defer initial.Stop()

	var poll <-chan time.Time
	if r.opts.PollInterval > 0 {
		ticker := time.NewTicker(r.opts.PollInterval)
		defer ticker.Stop()
		poll = ticker.C
	}

	var debounce *time.Timer
	var debounceC <-chan time.Time
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
		for _, s := range subs {
			s.Close()
		}
	}()

	schedule := func() {
		if debounce != nil {
			debounce.Stop()
		}
		debounce = time.NewTimer(r.opts.Debounce)
		debounceC = debounce.C
	}

	var messages, receipts <-chan realtime.Event
	for _, s := range subs {
		switch s.Channel() {
		case realtime.ChannelMessages:
			messages = s.Events()
		case realtime.ChannelReadReceipts:
			receipts = s.Events()
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-initial.C:
			r.recompute(ctx)
		case <-debounceC:
			debounce, debounceC = nil, nil
			r.recompute(ctx)
		case <-poll:
			r.recompute(ctx)
		case <-r.trigger:
			schedule()
		case e, ok := <-messages:
			if !ok {
				messages = nil
				continue
			}
			if r.relevant(e) {
				schedule()
			}
		case e, ok := <-receipts:
			if !ok {
				receipts = nil
				continue
			}
			if r.relevant(e) {
				schedule()
			}
		}
	}
}

// relevant は通知が未読数に影響し得るかを判定する。
// 自分が送ったメッセージ、参加していない会話のメッセージ、他人の既読更新は無視する。
// 読み取れない通知は再計算の対象とする。
func (r *Reconciler) relevant(e realtime.Event) bool {
	if e.Resync() {
		return true
	}
	switch e.Channel {
	case realtime.ChannelMessages:
		m, err := realtime.DecodeMessage(e)
		if err != nil {
			return true
		}
		if m.SenderID == r.userID {
			return false
		}
		if r.known == nil {
			return true
		}
		_, ok := r.known[m.ConversationID]
		return ok
	case realtime.ChannelReadReceipts:
		rr, err := realtime.DecodeReadReceipt(e)
		return err != nil || rr.UserID == r.userID
	}
	return true
}

// recompute は未読数を計算し、Stop前であれば反映する。
func (r *Reconciler) recompute(ctx context.Context) {
	r.refreshConversations(ctx)
	r.metrics.RecordUnreadComputation(r.strategy.Name())
	n, err := r.strategy.Count(ctx, r.userID)
	if r.stopped.Load() || ctx.Err() != nil {
		return
	}
	if err != nil {
		r.logger.Warn("未読数の計算に失敗しました", slog.String("error", err.Error()))
		return
	}
	if n < 0 {
		n = 0
	}
	if old := r.count.Swap(int64(n)); old == int64(n) {
		return
	}
	select {
	case <-r.updates:
	default:
	}
	r.updates <- n
}

// refreshConversations は参加会話の一覧を取り直す。失敗した場合は前回の一覧を使い続ける。
func (r *Reconciler) refreshConversations(ctx context.Context) {
	if r.conversations == nil {
		return
	}
	ids, err := r.conversations.ListParticipations(ctx, r.userID)
	if err != nil {
		if ctx.Err() == nil {
			r.logger.Warn("参加会話の取得に失敗しました", slog.String("error", err.Error()))
		}
		return
	}
	known := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		known[id] = struct{}{}
	}
	r.known = known
}
