package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/studiomatch/internal/model"
)

// MatchRecorder はスワイプ記録のインターフェース。
type MatchRecorder interface {
	Create(ctx context.Context, match *model.Match) error
}

// SwipeHandler はスワイプの記録と取り消しを扱う。
type SwipeHandler struct {
	matches  MatchRecorder
	registry CandidateRegistry
	logger   *slog.Logger
}

// NewSwipeHandler はSwipeHandlerを生成する。
func NewSwipeHandler(matches MatchRecorder, registry CandidateRegistry, logger *slog.Logger) *SwipeHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SwipeHandler{matches: matches, registry: registry, logger: logger}
}

type swipeRequest struct {
	TargetID string `json:"targetId"`
	Type     string `json:"type"`
}

type swipeResponse struct {
	MatchID string `json:"matchId"`
	Removed bool   `json:"removed"`
}

type undoRequest struct {
	Kind string `json:"kind"`
}

type undoResponse struct {
	Restored bool             `json:"restored"`
	Person   *profileResponse `json:"person,omitempty"`
	Team     *teamResponse    `json:"team,omitempty"`
}

// Swipe はスワイプを記録し、対象を候補から取り除く。
// POST /api/swipes
func (h *SwipeHandler) Swipe(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req swipeRequest
	if apiErr := decodeJSON(w, r, &req); apiErr != nil {
		handleServiceError(w, h.logger, apiErr)
		return
	}
	req.TargetID = strings.TrimSpace(req.TargetID)
	matchType := model.MatchType(req.Type)
	switch {
	case req.TargetID == "":
		handleServiceError(w, h.logger, model.NewInvalidSwipeError("targetIdは必須です"))
		return
	case !matchType.IsValid():
		handleServiceError(w, h.logger, model.NewInvalidSwipeError("未知のスワイプ種別です"))
		return
	case !matchType.TargetsTeam() && req.TargetID == userID:
		handleServiceError(w, h.logger, model.NewInvalidSwipeError("自分自身はスワイプできません"))
		return
	}

	match := &model.Match{
		SourceUserID: userID,
		TargetID:     req.TargetID,
		Type:         matchType,
	}
	if err := h.matches.Create(r.Context(), match); err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	set := h.registry.For(userID)
	var removed bool
	if matchType.TargetsTeam() {
		_, removed = set.RemoveTeam(req.TargetID)
	} else {
		_, removed = set.RemovePerson(req.TargetID)
	}

	writeJSON(w, http.StatusCreated, swipeResponse{MatchID: match.ID, Removed: removed})
}

// Undo は最後に取り除いた候補を先頭に戻す。記録済みのスワイプは削除しない。
// POST /api/swipes/undo
func (h *SwipeHandler) Undo(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req undoRequest
	if apiErr := decodeJSON(w, r, &req); apiErr != nil {
		handleServiceError(w, h.logger, apiErr)
		return
	}

	set := h.registry.For(userID)
	var resp undoResponse
	switch req.Kind {
	case "person":
		if p, ok := set.UndoPerson(); ok {
			pr := toProfileResponse(p)
			resp = undoResponse{Restored: true, Person: &pr}
		}
	case "team":
		if t, ok := set.UndoTeam(); ok {
			tr := toTeamResponse(t)
			resp = undoResponse{Restored: true, Team: &tr}
		}
	default:
		handleServiceError(w, h.logger, model.NewValidationError("kind", "person または team を指定してください"))
		return
	}

	writeJSON(w, http.StatusOK, resp)
}
