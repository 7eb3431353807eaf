package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hitoshi/studiomatch/internal/middleware"
	"github.com/hitoshi/studiomatch/internal/session"
)

// SessionServiceInterface はセッション初期化とサインアウトのインターフェース。
type SessionServiceInterface interface {
	Load(ctx context.Context, sessionID string) session.State
	SignOut(ctx context.Context, sessionID string) error
}

// CookieConfig はセッションCookieの属性。
type CookieConfig struct {
	CookieSecure bool
	CookieDomain string
}

// SessionHandler はログイン中ユーザーの初期状態とサインアウトを扱う。
type SessionHandler struct {
	service SessionServiceInterface
	config  CookieConfig
	logger  *slog.Logger
}

// NewSessionHandler はSessionHandlerを生成する。
func NewSessionHandler(service SessionServiceInterface, config CookieConfig, logger *slog.Logger) *SessionHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionHandler{service: service, config: config, logger: logger}
}

type meResponse struct {
	UserID  string           `json:"userId"`
	Profile *profileResponse `json:"profile"`
	Team    *teamResponse    `json:"team"`
}

// Me はセッション、プロフィール、所属チームをまとめて返す。
// プロフィールやチームの取得に失敗した場合はnullとして返す。
// GET /api/me
func (h *SessionHandler) Me(w http.ResponseWriter, r *http.Request) {
	state := h.service.Load(r.Context(), middleware.SessionIDFromContext(r.Context()))
	if state.UserID == "" {
		writeUnauthorized(w)
		return
	}

	resp := meResponse{UserID: state.UserID}
	if state.Profile != nil {
		p := toProfileResponse(*state.Profile)
		resp.Profile = &p
	}
	if state.Team != nil {
		t := toTeamResponse(*state.Team)
		resp.Team = &t
	}
	writeJSON(w, http.StatusOK, resp)
}

// Logout はセッションを破棄し、Cookieをクリアする。
// POST /auth/logout
func (h *SessionHandler) Logout(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(middleware.SessionCookieName)
	if err == nil && cookie.Value != "" {
		if err := h.service.SignOut(r.Context(), cookie.Value); err != nil {
			// 削除に失敗してもCookieはクリアする
			h.logger.Error("failed to sign out", slog.String("error", err.Error()))
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	w.WriteHeader(http.StatusNoContent)
}
