package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hitoshi/studiomatch/internal/candidate"
	"github.com/hitoshi/studiomatch/internal/model"
)

// CandidateSet は1ユーザー分の候補集合の操作インターフェース。
type CandidateSet interface {
	Refresh(ctx context.Context, userID string) (candidate.RefreshResult, error)
	People() []model.Profile
	Teams() []model.Team
	Loading() bool
	Loaded() bool
	RemovePerson(id string) (model.Profile, bool)
	RemoveTeam(id string) (model.Team, bool)
	UndoPerson() (model.Profile, bool)
	UndoTeam() (model.Team, bool)
}

// CandidateRegistry はユーザーごとの候補集合を返すインターフェース。
type CandidateRegistry interface {
	For(userID string) CandidateSet
}

// CandidateHandler は候補一覧の取得と更新を扱う。
type CandidateHandler struct {
	registry CandidateRegistry
	logger   *slog.Logger
}

// NewCandidateHandler はCandidateHandlerを生成する。
func NewCandidateHandler(registry CandidateRegistry, logger *slog.Logger) *CandidateHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &CandidateHandler{registry: registry, logger: logger}
}

type candidatesResponse struct {
	People  []profileResponse `json:"people"`
	Teams   []teamResponse    `json:"teams"`
	Loading bool              `json:"loading"`
}

type refreshResponse struct {
	Skipped bool `json:"skipped"`
	People  int  `json:"people"`
	Teams   int  `json:"teams"`
}

// List は現在の候補一覧を返す。初回アクセス時は解決してから返す。
// GET /api/candidates
func (h *CandidateHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	set := h.registry.For(userID)
	if !set.Loaded() && !set.Loading() {
		// 解決に失敗した場合は空の候補を返す
		if _, err := set.Refresh(r.Context(), userID); err != nil {
			h.logger.Warn("候補の初回解決に失敗しました",
				slog.String("user_id", userID),
				slog.String("error", err.Error()),
			)
		}
	}

	writeJSON(w, http.StatusOK, candidatesResponse{
		People:  toProfileResponses(set.People()),
		Teams:   toTeamResponses(set.Teams()),
		Loading: set.Loading(),
	})
}

// Refresh は候補集合を再解決する。別のリフレッシュが実行中の場合は202を返す。
// POST /api/candidates/refresh
func (h *CandidateHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	result, err := h.registry.For(userID).Refresh(r.Context(), userID)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	switch result.Status {
	case candidate.RefreshApplied:
		writeJSON(w, http.StatusOK, refreshResponse{People: result.People, Teams: result.Teams})
	default:
		writeJSON(w, http.StatusAccepted, refreshResponse{Skipped: true})
	}
}
