// Package team はユーザーが所属するチームの解決とチーム作成を提供する。
package team

import (
	"context"
	"log/slog"
	"time"

	"github.com/hitoshi/studiomatch/internal/metrics"
	"github.com/hitoshi/studiomatch/internal/model"
	"github.com/hitoshi/studiomatch/internal/repository"
	"github.com/hitoshi/studiomatch/internal/viewmodel"
	"golang.org/x/sync/errgroup"
)

// MembershipSource はチームとメンバーシップの参照インターフェース。
type MembershipSource interface {
	FindConfirmedMembership(ctx context.Context, userID string) (*model.TeamMember, error)
	FindByID(ctx context.Context, id string) (*repository.TeamRecord, error)
	ListConfirmedMembersByTeam(ctx context.Context, teamID string) ([]model.TeamMember, error)
}

// ProfileBatcher はプロフィールの一括取得インターフェース。
type ProfileBatcher interface {
	FindByIDs(ctx context.Context, ids []string) ([]repository.ProfileRecord, error)
}

// Resolver はユーザーがconfirmedとして所属するチームを解決する。
type Resolver struct {
	teams    MembershipSource
	profiles ProfileBatcher
	logger   *slog.Logger
	metrics  metrics.MetricsCollector
}

// NewResolver はResolverを生成する。
func NewResolver(teams MembershipSource, profiles ProfileBatcher, logger *slog.Logger, mc metrics.MetricsCollector) *Resolver {
	if mc == nil {
		mc = metrics.Nop{}
	}
	return &Resolver{teams: teams, profiles: profiles, logger: logger, metrics: mc}
}

// Resolve はユーザーのチームを返す。所属していない場合はnilを返す。
// ストアのエラーはログに記録し、nilとして扱う。
func (r *Resolver) Resolve(ctx context.Context, userID string) *model.Team {
	start := time.Now()
	defer func() { r.metrics.RecordResolveLatency("team", time.Since(start)) }()

	membership, err := r.teams.FindConfirmedMembership(ctx, userID)
	if err != nil {
		r.logError("メンバーシップの取得に失敗しました", userID, err)
		return nil
	}
	if membership == nil {
		return nil
	}

	var (
		rec     *repository.TeamRecord
		members []model.TeamMember
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		rec, err = r.teams.FindByID(gctx, membership.TeamID)
		return err
	})
	g.Go(func() error {
		var err error
		members, err = r.teams.ListConfirmedMembersByTeam(gctx, membership.TeamID)
		return err
	})
	if err := g.Wait(); err != nil {
		r.logError("チーム情報の取得に失敗しました", userID, err)
		return nil
	}
	if rec == nil {
		r.logger.Warn("メンバーシップが存在しないチームを参照しています",
			slog.String("user_id", userID),
			slog.String("team_id", membership.TeamID),
		)
		return nil
	}

	roster, err := hydrateMembers(ctx, r.profiles, members)
	if err != nil {
		r.logError("メンバーのプロフィール取得に失敗しました", userID, err)
		return nil
	}
	t := viewmodel.Team(*rec, roster)
	return &t
}

// hydrateMembers はメンバーのプロフィールを1回で取得し、参加順に並べる。
// プロフィールが見つからないメンバーは省略する。
func hydrateMembers(ctx context.Context, profiles ProfileBatcher, members []model.TeamMember) ([]model.Profile, error) {
	if len(members) == 0 {
		return []model.Profile{}, nil
	}
	ids := make([]string, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.UserID)
	}
	recs, err := profiles.FindByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]repository.ProfileRecord, len(recs))
	for _, rec := range recs {
		byID[rec.ID] = rec
	}
	roster := make([]model.Profile, 0, len(members))
	for _, m := range members {
		if rec, ok := byID[m.UserID]; ok {
			roster = append(roster, viewmodel.Profile(rec))
		}
	}
	return roster, nil
}

func (r *Resolver) logError(msg, userID string, err error) {
	r.logger.Error(msg,
		slog.String("user_id", userID),
		slog.String("error", err.Error()),
	)
}
