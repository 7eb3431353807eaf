// Package candidate はユーザーごとのスワイプ候補（個人・チーム）を解決する。
package candidate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hitoshi/studiomatch/internal/metrics"
	"github.com/hitoshi/studiomatch/internal/model"
	"github.com/hitoshi/studiomatch/internal/repository"
	"github.com/hitoshi/studiomatch/internal/viewmodel"
	"golang.org/x/sync/errgroup"
)

// ErrResolutionFailed は候補解決が失敗したことを表す。
// 失敗時は部分的な結果を返さず、候補は空になる。
var ErrResolutionFailed = errors.New("候補の取得に失敗しました")

// ProfileSource はプロフィール取得のインターフェース。
type ProfileSource interface {
	ListExcept(ctx context.Context, userID string) ([]repository.ProfileRecord, error)
	FindByIDs(ctx context.Context, ids []string) ([]repository.ProfileRecord, error)
}

// TeamSource はチームとメンバーシップ取得のインターフェース。
type TeamSource interface {
	ListAll(ctx context.Context) ([]repository.TeamRecord, error)
	ListConfirmedMembers(ctx context.Context) ([]model.TeamMember, error)
}

// SwipeSource はスワイプ記録取得のインターフェース。
type SwipeSource interface {
	ListBySource(ctx context.Context, sourceUserID string, types ...model.MatchType) ([]model.Match, error)
}

// RefreshStatus はRefreshの結果種別。
type RefreshStatus int

const (
	// RefreshApplied は解決結果が候補に反映されたことを表す。
	RefreshApplied RefreshStatus = iota
	// RefreshSkipped は別のリフレッシュが実行中だったため何もしなかったことを表す。
	RefreshSkipped
	// RefreshDiscarded はClose後またはコンテキスト終了後に結果を破棄したことを表す。
	RefreshDiscarded
)

// RefreshResult はRefreshの結果。
type RefreshResult struct {
	Status RefreshStatus
	People int
	Teams  int
}

// Resolver は1ユーザー分の候補集合を保持する。
// 同時に実行されるリフレッシュは1つだけで、実行中の呼び出しはRefreshSkippedを返す。
type Resolver struct {
	profiles ProfileSource
	teams    TeamSource
	swipes   SwipeSource
	logger   *slog.Logger
	metrics  metrics.MetricsCollector

	inFlight atomic.Bool
	closed   atomic.Bool

	mu         sync.Mutex
	people     []model.Profile
	teamList   []model.Team
	loaded     bool
	lastPerson *model.Profile
	lastTeam   *model.Team

	// リフレッシュ実行中に取り除かれた候補。結果の反映時に除外する。nilの場合は記録しない
	removedPeople map[string]struct{}
	removedTeams  map[string]struct{}
}

// NewResolver はResolverを生成する。
func NewResolver(profiles ProfileSource, teams TeamSource, swipes SwipeSource, logger *slog.Logger, mc metrics.MetricsCollector) *Resolver {
	if mc == nil {
		mc = metrics.Nop{}
	}
	return &Resolver{
		profiles: profiles,
		teams:    teams,
		swipes:   swipes,
		logger:   logger,
		metrics:  mc,
	}
}

// resolution は1回の解決で得た候補。
type resolution struct {
	people []model.Profile
	teams  []model.Team
}

// Refresh は候補集合を最初から解決し直す。
//
// 解決に失敗した場合は候補を空にし、ErrResolutionFailedをラップしたエラーを返す。
// Close後やctx終了後に完了した結果は反映せずに破棄する。
func (r *Resolver) Refresh(ctx context.Context, userID string) (RefreshResult, error) {
	if r.closed.Load() {
		return RefreshResult{Status: RefreshDiscarded}, nil
	}
	if !r.inFlight.CompareAndSwap(false, true) {
		r.metrics.RecordCandidateRefresh(metrics.RefreshSkipped)
		r.logger.Debug("リフレッシュ実行中のためスキップします", slog.String("user_id", userID))
		return RefreshResult{Status: RefreshSkipped}, nil
	}
	defer r.inFlight.Store(false)

	r.mu.Lock()
	r.removedPeople = make(map[string]struct{})
	r.removedTeams = make(map[string]struct{})
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.removedPeople = nil
		r.removedTeams = nil
		r.mu.Unlock()
	}()

	start := time.Now()
	res, err := r.resolve(ctx, userID)
	r.metrics.RecordResolveLatency("candidate", time.Since(start))

	if r.closed.Load() || ctx.Err() != nil {
		r.logger.Debug("候補の解決結果を破棄します", slog.String("user_id", userID))
		return RefreshResult{Status: RefreshDiscarded}, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.loaded = true
	r.lastPerson = nil
	r.lastTeam = nil

	if err != nil {
		r.metrics.RecordCandidateRefresh(metrics.RefreshFailed)
		r.logger.Error("候補の解決に失敗しました",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		r.people = nil
		r.teamList = nil
		return RefreshResult{Status: RefreshApplied}, fmt.Errorf("%w: %v", ErrResolutionFailed, err)
	}

	r.metrics.RecordCandidateRefresh(metrics.RefreshRun)
	r.people = excludeIDs(res.people, r.removedPeople, func(p model.Profile) string { return p.ID })
	r.teamList = excludeIDs(res.teams, r.removedTeams, func(t model.Team) string { return t.ID })
	return RefreshResult{Status: RefreshApplied, People: len(r.people), Teams: len(r.teamList)}, nil
}

// resolve は独立したクエリを並行に発行し、すべて完了してから結合する。
func (r *Resolver) resolve(ctx context.Context, userID string) (resolution, error) {
	var (
		profiles []repository.ProfileRecord
		members  []model.TeamMember
		swiped   []model.Match
		teams    []repository.TeamRecord
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		profiles, err = r.profiles.ListExcept(gctx, userID)
		return err
	})
	g.Go(func() error {
		var err error
		members, err = r.teams.ListConfirmedMembers(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		swiped, err = r.swipes.ListBySource(gctx, userID)
		return err
	})
	g.Go(func() error {
		var err error
		teams, err = r.teams.ListAll(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return resolution{}, err
	}

	teamed := make(map[string]struct{}, len(members))
	ownTeams := make(map[string]struct{})
	for _, m := range members {
		teamed[m.UserID] = struct{}{}
		if m.UserID == userID {
			ownTeams[m.TeamID] = struct{}{}
		}
	}

	swipedPeople := make(map[string]struct{})
	swipedTeams := make(map[string]struct{})
	for _, m := range swiped {
		if m.Type.TargetsTeam() {
			swipedTeams[m.TargetID] = struct{}{}
		} else {
			swipedPeople[m.TargetID] = struct{}{}
		}
	}

	var people []model.Profile
	for _, rec := range profiles {
		if rec.ID == userID {
			continue
		}
		if _, ok := teamed[rec.ID]; ok {
			continue
		}
		if _, ok := swipedPeople[rec.ID]; ok {
			continue
		}
		people = append(people, viewmodel.Profile(rec))
	}
	sort.SliceStable(people, func(i, j int) bool {
		return lessByCreation(people[i].CreatedAt, people[i].ID, people[j].CreatedAt, people[j].ID)
	})

	var survivors []repository.TeamRecord
	for _, t := range teams {
		if _, ok := swipedTeams[t.ID]; ok {
			continue
		}
		if _, ok := ownTeams[t.ID]; ok {
			continue
		}
		survivors = append(survivors, t)
	}
	sort.SliceStable(survivors, func(i, j int) bool {
		return lessByCreation(survivors[i].CreatedAt, survivors[i].ID, survivors[j].CreatedAt, survivors[j].ID)
	})

	rosters, err := r.assembleRosters(ctx, survivors, members)
	if err != nil {
		return resolution{}, err
	}

	out := make([]model.Team, 0, len(survivors))
	for _, t := range survivors {
		out = append(out, viewmodel.Team(t, rosters[t.ID]))
	}
	return resolution{people: people, teams: out}, nil
}

// assembleRosters は対象チームのメンバー一覧を1回のプロフィール一括取得で組み立てる。
// プロフィールが存在しないメンバーは省略する。
func (r *Resolver) assembleRosters(ctx context.Context, teams []repository.TeamRecord, members []model.TeamMember) (map[string][]model.Profile, error) {
	wanted := make(map[string]struct{}, len(teams))
	for _, t := range teams {
		wanted[t.ID] = struct{}{}
	}

	var ids []string
	seen := make(map[string]struct{})
	for _, m := range members {
		if _, ok := wanted[m.TeamID]; !ok {
			continue
		}
		if _, ok := seen[m.UserID]; ok {
			continue
		}
		seen[m.UserID] = struct{}{}
		ids = append(ids, m.UserID)
	}

	rosters := make(map[string][]model.Profile, len(teams))
	if len(ids) == 0 {
		return rosters, nil
	}

	recs, err := r.profiles.FindByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("メンバーのプロフィール取得に失敗しました: %w", err)
	}
	byID := make(map[string]model.Profile, len(recs))
	for _, rec := range recs {
		byID[rec.ID] = viewmodel.Profile(rec)
	}

	for _, m := range members {
		if _, ok := wanted[m.TeamID]; !ok {
			continue
		}
		p, ok := byID[m.UserID]
		if !ok {
			r.logger.Debug("プロフィールのないメンバーを省略します",
				slog.String("team_id", m.TeamID),
				slog.String("member_id", m.UserID),
			)
			continue
		}
		rosters[m.TeamID] = append(rosters[m.TeamID], p)
	}
	return rosters, nil
}

func lessByCreation(ai time.Time, aid string, bi time.Time, bid string) bool {
	if !ai.Equal(bi) {
		return ai.Before(bi)
	}
	return aid < bid
}

// People は個人候補のスナップショットを返す。
func (r *Resolver) People() []model.Profile {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.Profile, len(r.people))
	copy(out, r.people)
	return out
}

// Teams はチーム候補のスナップショットを返す。
func (r *Resolver) Teams() []model.Team {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.Team, len(r.teamList))
	copy(out, r.teamList)
	return out
}

// Loading はリフレッシュ実行中かを返す。
func (r *Resolver) Loading() bool {
	return r.inFlight.Load()
}

// Loaded は一度でも解決結果が反映されたかを返す。
func (r *Resolver) Loaded() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loaded
}

// RemovePerson は個人候補を取り除き、取り消し用に記憶する。残りの順序は保持する。
func (r *Resolver) RemovePerson(id string) (model.Profile, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, p := range r.people {
		if p.ID != id {
			continue
		}
		r.people = removeAt(r.people, i)
		removed := p
		r.lastPerson = &removed
		if r.removedPeople != nil {
			r.removedPeople[id] = struct{}{}
		}
		return p, true
	}
	return model.Profile{}, false
}

// RemoveTeam はチーム候補を取り除き、取り消し用に記憶する。
func (r *Resolver) RemoveTeam(id string) (model.Team, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, t := range r.teamList {
		if t.ID != id {
			continue
		}
		r.teamList = removeAt(r.teamList, i)
		removed := t
		r.lastTeam = &removed
		if r.removedTeams != nil {
			r.removedTeams[id] = struct{}{}
		}
		return t, true
	}
	return model.Team{}, false
}

// UndoPerson は最後に取り除いた個人候補を先頭に戻す。
func (r *Resolver) UndoPerson() (model.Profile, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.lastPerson == nil {
		return model.Profile{}, false
	}
	p := *r.lastPerson
	r.lastPerson = nil
	delete(r.removedPeople, p.ID)
	r.people = append([]model.Profile{p}, r.people...)
	return p, true
}

// UndoTeam は最後に取り除いたチーム候補を先頭に戻す。
func (r *Resolver) UndoTeam() (model.Team, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.lastTeam == nil {
		return model.Team{}, false
	}
	t := *r.lastTeam
	r.lastTeam = nil
	delete(r.removedTeams, t.ID)
	r.teamList = append([]model.Team{t}, r.teamList...)
	return t, true
}

// Close は所有者の終了を記録する。以降に完了したリフレッシュの結果は破棄される。
func (r *Resolver) Close() {
	r.closed.Store(true)
}

// excludeIDs はidsに含まれる要素を除いたスライスを返す。順序は保持する。
func excludeIDs[T any](items []T, ids map[string]struct{}, id func(T) string) []T {
	if len(ids) == 0 {
		return items
	}
	out := make([]T, 0, len(items))
	for _, it := range items {
		if _, ok := ids[id(it)]; !ok {
			out = append(out, it)
		}
	}
	return out
}

// removeAt はi番目を取り除く。先頭の削除は再スライスのみで済ませる。
func removeAt[T any](s []T, i int) []T {
	if i == 0 {
		return s[1:]
	}
	return append(s[:i:i], s[i+1:]...)
}
