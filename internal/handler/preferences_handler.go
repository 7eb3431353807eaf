package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/studiomatch/internal/model"
	"github.com/hitoshi/studiomatch/internal/prefs"
)

// PreferenceStore はユーザーごとの表示設定のインターフェース。
type PreferenceStore interface {
	UserFilters(userID string) prefs.Filters
	SetUserFilters(userID string, f prefs.Filters)
	ActiveTab(userID string) string
	SetActiveTab(userID, tab string)
}

// PreferencesHandler は絞り込み条件と表示タブの保存を扱う。
type PreferencesHandler struct {
	store  PreferenceStore
	logger *slog.Logger
}

// NewPreferencesHandler はPreferencesHandlerを生成する。
func NewPreferencesHandler(store PreferenceStore, logger *slog.Logger) *PreferencesHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &PreferencesHandler{store: store, logger: logger}
}

type preferencesResponse struct {
	Filters   prefs.Filters `json:"filters"`
	ActiveTab string        `json:"activeTab"`
}

// フィールドが省略された場合は既存の値を保持する。
type updatePreferencesRequest struct {
	Filters   *prefs.Filters `json:"filters"`
	ActiveTab *string        `json:"activeTab"`
}

// Get は保存済みの設定を返す。
// GET /api/preferences
func (h *PreferencesHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, preferencesResponse{
		Filters:   h.store.UserFilters(userID),
		ActiveTab: h.store.ActiveTab(userID),
	})
}

// Update は設定を保存し、保存後の値を返す。
// PUT /api/preferences
func (h *PreferencesHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req updatePreferencesRequest
	if apiErr := decodeJSON(w, r, &req); apiErr != nil {
		handleServiceError(w, h.logger, apiErr)
		return
	}

	if req.ActiveTab != nil && *req.ActiveTab != prefs.TabPeople && *req.ActiveTab != prefs.TabTeams {
		handleServiceError(w, h.logger, model.NewValidationError("activeTab", "people または teams を指定してください"))
		return
	}
	var filters prefs.Filters
	if req.Filters != nil {
		filters = prefs.Filters{
			Programs: compact(req.Filters.Programs),
			Studios:  compact(req.Filters.Studios),
			Skills:   compact(req.Filters.Skills),
		}
		for _, s := range filters.Studios {
			if !model.Studio(s).IsValid() {
				handleServiceError(w, h.logger, model.NewValidationError("filters.studios", "未知のスタジオです: "+s))
				return
			}
		}
	}

	if req.Filters != nil {
		h.store.SetUserFilters(userID, filters)
	}
	if req.ActiveTab != nil {
		h.store.SetActiveTab(userID, *req.ActiveTab)
	}

	writeJSON(w, http.StatusOK, preferencesResponse{
		Filters:   h.store.UserFilters(userID),
		ActiveTab: h.store.ActiveTab(userID),
	})
}

// compact は前後の空白を除去し、空文字と重複を取り除く。
func compact(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]bool, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
