package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hitoshi/studiomatch/internal/model"
	"github.com/hitoshi/studiomatch/internal/team"
)

// TeamResolverInterface は所属チーム解決のインターフェース。
type TeamResolverInterface interface {
	Resolve(ctx context.Context, userID string) *model.Team
}

// TeamServiceInterface はチーム作成のインターフェース。
type TeamServiceInterface interface {
	Create(ctx context.Context, creatorID string, in team.CreateInput) (*model.Team, error)
}

// TeamHandler は所属チームの取得とチーム作成を扱う。
type TeamHandler struct {
	resolver TeamResolverInterface
	service  TeamServiceInterface
	logger   *slog.Logger
}

// NewTeamHandler はTeamHandlerを生成する。
func NewTeamHandler(resolver TeamResolverInterface, service TeamServiceInterface, logger *slog.Logger) *TeamHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &TeamHandler{resolver: resolver, service: service, logger: logger}
}

type myTeamResponse struct {
	Team *teamResponse `json:"team"`
}

// Mine はユーザーの所属チームを返す。未所属の場合はteamがnullになる。
// GET /api/teams/me
func (h *TeamHandler) Mine(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var resp myTeamResponse
	if t := h.resolver.Resolve(r.Context(), userID); t != nil {
		tr := toTeamResponse(*t)
		resp.Team = &tr
	}
	writeJSON(w, http.StatusOK, resp)
}

// Create はチームを作成し、作成者をオーナーとして登録する。
// POST /api/teams
func (h *TeamHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var in team.CreateInput
	if apiErr := decodeJSON(w, r, &in); apiErr != nil {
		handleServiceError(w, h.logger, apiErr)
		return
	}

	created, err := h.service.Create(r.Context(), userID, in)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTeamResponse(*created))
}
