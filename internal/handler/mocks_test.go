package handler

import (
	"context"
	"net/http"
	"sync"

	"github.com/hitoshi/studiomatch/internal/candidate"
	"github.com/hitoshi/studiomatch/internal/middleware"
	"github.com/hitoshi/studiomatch/internal/model"
	"github.com/hitoshi/studiomatch/internal/session"
	"github.com/hitoshi/studiomatch/internal/team"
)

// --- モック定義 ---

type mockSessionService struct {
	loadFn    func(ctx context.Context, sessionID string) session.State
	signOutFn func(ctx context.Context, sessionID string) error
}

func (m *mockSessionService) Load(ctx context.Context, sessionID string) session.State {
	if m.loadFn != nil {
		return m.loadFn(ctx, sessionID)
	}
	return session.State{}
}

func (m *mockSessionService) SignOut(ctx context.Context, sessionID string) error {
	if m.signOutFn != nil {
		return m.signOutFn(ctx, sessionID)
	}
	return nil
}

// mockCandidateSet はCandidateSetのインメモリ実装。
type mockCandidateSet struct {
	mu         sync.Mutex
	people     []model.Profile
	teams      []model.Team
	loaded     bool
	loading    bool
	refreshFn  func(ctx context.Context, userID string) (candidate.RefreshResult, error)
	refreshes  int
	lastPerson *model.Profile
	lastTeam   *model.Team
}

func (m *mockCandidateSet) Refresh(ctx context.Context, userID string) (candidate.RefreshResult, error) {
	m.mu.Lock()
	m.refreshes++
	m.loaded = true
	m.mu.Unlock()
	if m.refreshFn != nil {
		return m.refreshFn(ctx, userID)
	}
	return candidate.RefreshResult{Status: candidate.RefreshApplied, People: len(m.people), Teams: len(m.teams)}, nil
}

func (m *mockCandidateSet) People() []model.Profile { return m.people }
func (m *mockCandidateSet) Teams() []model.Team     { return m.teams }
func (m *mockCandidateSet) Loading() bool           { return m.loading }
func (m *mockCandidateSet) Loaded() bool            { return m.loaded }

func (m *mockCandidateSet) RemovePerson(id string) (model.Profile, bool) {
	for i, p := range m.people {
		if p.ID == id {
			m.people = append(m.people[:i:i], m.people[i+1:]...)
			m.lastPerson = &p
			return p, true
		}
	}
	return model.Profile{}, false
}

func (m *mockCandidateSet) RemoveTeam(id string) (model.Team, bool) {
	for i, t := range m.teams {
		if t.ID == id {
			m.teams = append(m.teams[:i:i], m.teams[i+1:]...)
			m.lastTeam = &t
			return t, true
		}
	}
	return model.Team{}, false
}

func (m *mockCandidateSet) UndoPerson() (model.Profile, bool) {
	if m.lastPerson == nil {
		return model.Profile{}, false
	}
	p := *m.lastPerson
	m.lastPerson = nil
	m.people = append([]model.Profile{p}, m.people...)
	return p, true
}

func (m *mockCandidateSet) UndoTeam() (model.Team, bool) {
	if m.lastTeam == nil {
		return model.Team{}, false
	}
	t := *m.lastTeam
	m.lastTeam = nil
	m.teams = append([]model.Team{t}, m.teams...)
	return t, true
}

type mockRegistry struct {
	sets map[string]*mockCandidateSet
}

func newMockRegistry() *mockRegistry {
	return &mockRegistry{sets: make(map[string]*mockCandidateSet)}
}

func (m *mockRegistry) For(userID string) CandidateSet {
	s, ok := m.sets[userID]
	if !ok {
		s = &mockCandidateSet{}
		m.sets[userID] = s
	}
	return s
}

type mockMatchRecorder struct {
	createFn func(ctx context.Context, match *model.Match) error
	created  []model.Match
}

func (m *mockMatchRecorder) Create(ctx context.Context, match *model.Match) error {
	if m.createFn != nil {
		if err := m.createFn(ctx, match); err != nil {
			return err
		}
	}
	if match.ID == "" {
		match.ID = "match-1"
	}
	m.created = append(m.created, *match)
	return nil
}

type mockTeamResolver struct {
	resolveFn func(ctx context.Context, userID string) *model.Team
}

func (m *mockTeamResolver) Resolve(ctx context.Context, userID string) *model.Team {
	if m.resolveFn != nil {
		return m.resolveFn(ctx, userID)
	}
	return nil
}

type mockTeamService struct {
	createFn func(ctx context.Context, creatorID string, in team.CreateInput) (*model.Team, error)
}

func (m *mockTeamService) Create(ctx context.Context, creatorID string, in team.CreateInput) (*model.Team, error) {
	return m.createFn(ctx, creatorID, in)
}

type mockUnreadCounter struct {
	countFn func(ctx context.Context, userID string) (int, error)
}

func (m *mockUnreadCounter) Count(ctx context.Context, userID string) (int, error) {
	return m.countFn(ctx, userID)
}

type mockAvatarService struct {
	setAvatarFn     func(ctx context.Context, userID string, body []byte, contentType string) (string, error)
	importFromURLFn func(ctx context.Context, userID, rawURL string) (string, error)
}

func (m *mockAvatarService) SetAvatar(ctx context.Context, userID string, body []byte, contentType string) (string, error) {
	return m.setAvatarFn(ctx, userID, body, contentType)
}

func (m *mockAvatarService) ImportFromURL(ctx context.Context, userID, rawURL string) (string, error) {
	return m.importFromURLFn(ctx, userID, rawURL)
}

type mockDataRequestService struct {
	requestFn     func(ctx context.Context, userID, kind string) (*model.DataRequest, bool, error)
	listPendingFn func(ctx context.Context, limit int) ([]model.DataRequest, error)
}

func (m *mockDataRequestService) Request(ctx context.Context, userID, kind string) (*model.DataRequest, bool, error) {
	return m.requestFn(ctx, userID, kind)
}

func (m *mockDataRequestService) ListPending(ctx context.Context, limit int) ([]model.DataRequest, error) {
	return m.listPendingFn(ctx, limit)
}

type mockSessionFinder struct {
	findByIDFn func(ctx context.Context, id string) (*model.Session, error)
}

func (m *mockSessionFinder) FindByID(ctx context.Context, id string) (*model.Session, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

type mockRoleChecker struct {
	hasRoleFn func(ctx context.Context, userID, role string) (bool, error)
}

func (m *mockRoleChecker) HasRole(ctx context.Context, userID, role string) (bool, error) {
	if m.hasRoleFn != nil {
		return m.hasRoleFn(ctx, userID, role)
	}
	return false, nil
}

// --- ヘルパー ---

// withUserID はセッションミドルウェア通過後と同じコンテキストを持つリクエストを返す。
type mockConversationStore struct {
	listParticipationsFn func(ctx context.Context, userID string) ([]string, error)
	upsertFn             func(ctx context.Context, receipt model.ReadReceipt) error
}

func (m *mockConversationStore) ListParticipations(ctx context.Context, userID string) ([]string, error) {
	if m.listParticipationsFn != nil {
		return m.listParticipationsFn(ctx, userID)
	}
	return nil, nil
}

func (m *mockConversationStore) UpsertReadReceipt(ctx context.Context, receipt model.ReadReceipt) error {
	if m.upsertFn != nil {
		return m.upsertFn(ctx, receipt)
	}
	return nil
}

func withUserID(r *http.Request, userID string) *http.Request {
	return r.WithContext(middleware.ContextWithUserID(r.Context(), userID))
}
