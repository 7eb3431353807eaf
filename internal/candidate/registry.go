package candidate

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/studiomatch/internal/metrics"
)

// Registry はユーザーごとのResolverを保持する。
// 一定時間参照されなかったResolverはEvictIdleで破棄される。
type Registry struct {
	profiles ProfileSource
	teams    TeamSource
	swipes   SwipeSource
	logger   *slog.Logger
	metrics  metrics.MetricsCollector
	now      func() time.Time

	mu        sync.Mutex
	resolvers map[string]*Resolver
	lastUsed  map[string]time.Time
}

// NewRegistry はRegistryを生成する。
func NewRegistry(profiles ProfileSource, teams TeamSource, swipes SwipeSource, logger *slog.Logger, mc metrics.MetricsCollector) *Registry {
	return &Registry{
		profiles:  profiles,
		teams:     teams,
		swipes:    swipes,
		logger:    logger,
		metrics:   mc,
		now:       time.Now,
		resolvers: make(map[string]*Resolver),
		lastUsed:  make(map[string]time.Time),
	}
}

// For は指定ユーザーのResolverを返す。存在しない場合は生成する。
func (g *Registry) For(userID string) *Resolver {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lastUsed[userID] = g.now()
	if r, ok := g.resolvers[userID]; ok {
		return r
	}
	r := NewResolver(g.profiles, g.teams, g.swipes, g.logger.With(slog.String("user_id", userID)), g.metrics)
	g.resolvers[userID] = r
	return r
}

// Forget は指定ユーザーのResolverを閉じて破棄する。ログアウト時に呼ぶ。
func (g *Registry) Forget(userID string) {
	g.mu.Lock()
	r, ok := g.resolvers[userID]
	delete(g.resolvers, userID)
	delete(g.lastUsed, userID)
	g.mu.Unlock()
	if ok {
		r.Close()
	}
}

// EvictIdle は最後の参照からttl以上経過したResolverを閉じて破棄し、その件数を返す。
// サインアウトせずにセッションが期限切れになったユーザーの分はここで回収される。
func (g *Registry) EvictIdle(ttl time.Duration) int {
	cutoff := g.now().Add(-ttl)

	g.mu.Lock()
	var idle []*Resolver
	for userID, used := range g.lastUsed {
		if used.After(cutoff) {
			continue
		}
		if r, ok := g.resolvers[userID]; ok {
			idle = append(idle, r)
		}
		delete(g.resolvers, userID)
		delete(g.lastUsed, userID)
	}
	g.mu.Unlock()

	for _, r := range idle {
		r.Close()
	}
	return len(idle)
}

// Len は保持しているResolverの数を返す。
func (g *Registry) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.resolvers)
}

// RunEviction はintervalごとにEvictIdleを実行する。ctxが終了するまでブロックする。
// intervalが0以下の場合は破棄を行わない。
func (g *Registry) RunEviction(ctx context.Context, interval, ttl time.Duration) {
	if interval <= 0 {
		<-ctx.Done()
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if n := g.EvictIdle(ttl); n > 0 {
			g.logger.Info("未使用の候補キャッシュを破棄しました",
				slog.Int("evicted_count", n),
				slog.Int("remaining", g.Len()),
			)
		}
	}
}

// Close は保持しているすべてのResolverを閉じる。
func (g *Registry) Close() {
	g.mu.Lock()
	resolvers := g.resolvers
	g.resolvers = make(map[string]*Resolver)
	g.lastUsed = make(map[string]time.Time)
	g.mu.Unlock()
	for _, r := range resolvers {
		r.Close()
	}
}
