// Package session はログインセッションからの初期状態の読み込みとログアウトを扱う。
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/studiomatch/internal/metrics"
	"github.com/hitoshi/studiomatch/internal/model"
	"github.com/hitoshi/studiomatch/internal/repository"
	"github.com/hitoshi/studiomatch/internal/viewmodel"
)

// DefaultTimeout は各取得処理の既定のタイムアウト。
const DefaultTimeout = 5 * time.Second

// SessionStore はセッションの取得と削除のインターフェース。
type SessionStore interface {
	FindByID(ctx context.Context, id string) (*model.Session, error)
	DeleteByID(ctx context.Context, id string) error
}

// ProfileFinder はプロフィール取得のインターフェース。
type ProfileFinder interface {
	FindByID(ctx context.Context, id string) (*repository.ProfileRecord, error)
}

// TeamResolver はユーザーの所属チームを解決するインターフェース。
type TeamResolver interface {
	Resolve(ctx context.Context, userID string) *model.Team
}

// State はセッション初期化の結果。UserIDが空の場合は未ログイン。
type State struct {
	UserID  string
	Profile *model.Profile
	Team    *model.Team
}

// Bootstrapper はセッション、プロフィール、チームを順に読み込む。
// 各取得はタイムアウトと競争させ、時間切れは「結果なし」として扱う。
type Bootstrapper struct {
	sessions SessionStore
	profiles ProfileFinder
	teams    TeamResolver
	timeout  time.Duration
	logger   *slog.Logger
	metrics  metrics.MetricsCollector

	onSignOut []func(userID string)
}

// NewBootstrapper はBootstrapperを生成する。timeoutが0以下の場合はDefaultTimeoutを使う。
func NewBootstrapper(sessions SessionStore, profiles ProfileFinder, teams TeamResolver, timeout time.Duration, logger *slog.Logger, mc metrics.MetricsCollector) *Bootstrapper {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if mc == nil {
		mc = metrics.Nop{}
	}
	return &Bootstrapper{
		sessions: sessions,
		profiles: profiles,
		teams:    teams,
		timeout:  timeout,
		logger:   logger,
		metrics:  mc,
	}
}

// race はfnをタイムアウト付きで実行する。時間切れまたはエラーの場合はfalseを返す。
// fnのゴルーチンは結果を捨てて終了できるよう、バッファ付きチャネルへ書き込む。
func race[T any](ctx context.Context, d time.Duration, fn func(context.Context) (T, error)) (T, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := fn(ctx)
		ch <- result{v, err}
	}()

	var zero T
	select {
	case res := <-ch:
		if res.err != nil {
			return zero, false, res.err
		}
		return res.v, true, nil
	case <-ctx.Done():
		return zero, false, ctx.Err()
	}
}

// Load はセッションIDから初期状態を読み込む。エラーは返さず、取得できなかった部分は空のままにする。
func (b *Bootstrapper) Load(ctx context.Context, sessionID string) State {
	start := time.Now()
	defer func() { b.metrics.RecordResolveLatency("session", time.Since(start)) }()

	if sessionID == "" {
		return State{}
	}

	sess, ok, err := race(ctx, b.timeout, func(ctx context.Context) (*model.Session, error) {
		return b.sessions.FindByID(ctx, sessionID)
	})
	if err != nil {
		b.logger.Warn("セッションの取得に失敗しました", slog.String("error", err.Error()))
		return State{}
	}
	if !ok || sess == nil {
		return State{}
	}

	state := State{UserID: sess.UserID}
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		rec, ok, err := race(ctx, b.timeout, func(ctx context.Context) (*repository.ProfileRecord, error) {
			return b.profiles.FindByID(ctx, sess.UserID)
		})
		if err != nil {
			b.logger.Warn("プロフィールの取得に失敗しました",
				slog.String("user_id", sess.UserID),
				slog.String("error", err.Error()),
			)
			return
		}
		if ok && rec != nil {
			p := viewmodel.Profile(*rec)
			state.Profile = &p
		}
	}()
	go func() {
		defer wg.Done()
		t, ok, err := race(ctx, b.timeout, func(ctx context.Context) (*model.Team, error) {
			return b.teams.Resolve(ctx, sess.UserID), nil
		})
		if err != nil {
			b.logger.Warn("所属チームの取得がタイムアウトしました",
				slog.String("user_id", sess.UserID),
				slog.String("error", err.Error()),
			)
			return
		}
		if ok {
			state.Team = t
		}
	}()
	wg.Wait()
	return state
}

// OnSignOut はサインアウト完了時に呼ばれる関数を登録する。サーバー起動前に呼ぶこと。
func (b *Bootstrapper) OnSignOut(fn func(userID string)) {
	b.onSignOut = append(b.onSignOut, fn)
}

// SignOut はセッションを削除し、登録済みの関数にユーザーIDを通知する。
// セッションの所有者が特定できない場合も削除は行う。
func (b *Bootstrapper) SignOut(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}

	var userID string
	sess, err := b.sessions.FindByID(ctx, sessionID)
	if err != nil {
		b.logger.Warn("サインアウト対象のセッション取得に失敗しました", slog.String("error", err.Error()))
	} else if sess != nil {
		userID = sess.UserID
	}

	if err := b.sessions.DeleteByID(ctx, sessionID); err != nil {
		return err
	}
	if userID != "" {
		for _, fn := range b.onSignOut {
			fn(userID)
		}
	}
	return nil
}
