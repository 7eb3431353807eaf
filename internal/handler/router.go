package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/studiomatch/internal/metrics"
	"github.com/hitoshi/studiomatch/internal/middleware"
)

// AdminRole は管理者向けAPIに必要なロール名。
const AdminRole = "admin"

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger  *slog.Logger
	Metrics metrics.MetricsCollector

	// ミドルウェア依存
	SessionFinder     middleware.SessionFinder
	RoleChecker       middleware.RoleChecker
	CORSAllowedOrigin string
	Cookie            CookieConfig
	RateLimiter       *middleware.RateLimiter

	// 公開エンドポイント
	MetricsHandler http.Handler
	HealthCheck    func(ctx context.Context) error

	// セッション
	SessionService SessionServiceInterface

	// 候補とスワイプ
	Candidates CandidateRegistry
	Matches    MatchRecorder

	// チーム
	TeamResolver TeamResolverInterface
	TeamService  TeamServiceInterface

	// 未読数
	UnreadCounter     UnreadCounter
	UnreadStreams     UnreadStreamFactory
	HeartbeatInterval time.Duration

	// 会話の既読
	Conversations ConversationStore

	// プロフィール画像。nilの場合は関連ルートを登録しない
	AvatarService AvatarServiceInterface

	// 表示設定
	Preferences PreferenceStore

	// データ要求
	DataRequests DataRequestServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → SecurityHeaders → CORS → Session → RateLimit(General) → CSRF
//
// /health と /metrics はセッション不要。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewLoggingMiddleware(logger, deps.Metrics))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	csrfConfig := middleware.CSRFConfig{
		CookieSecure: deps.Cookie.CookieSecure,
		CookieDomain: deps.Cookie.CookieDomain,
	}

	sessionHandler := NewSessionHandler(deps.SessionService, deps.Cookie, logger)
	candidateHandler := NewCandidateHandler(deps.Candidates, logger)
	swipeHandler := NewSwipeHandler(deps.Matches, deps.Candidates, logger)
	teamHandler := NewTeamHandler(deps.TeamResolver, deps.TeamService, logger)
	unreadHandler := NewUnreadHandler(deps.UnreadCounter, deps.UnreadStreams, deps.HeartbeatInterval, logger)
	prefsHandler := NewPreferencesHandler(deps.Preferences, logger)
	dataRequestHandler := NewDataRequestHandler(deps.DataRequests, logger)
	conversationHandler := NewConversationHandler(deps.Conversations, logger)

	// --- 認証不要のルート ---

	r.Get("/health", healthHandler(deps.HealthCheck, logger))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}
	r.Method(http.MethodGet, "/api/csrf-token", middleware.NewCSRFTokenHandler(csrfConfig))

	r.Route("/auth", func(r chi.Router) {
		r.Use(middleware.NewCSRFMiddleware(csrfConfig))
		r.Post("/logout", sessionHandler.Logout)
	})

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Session → RateLimit(General) → CSRF
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionFinder))
		r.Use(deps.RateLimiter.GeneralMiddleware())
		r.Use(middleware.NewCSRFMiddleware(csrfConfig))

		r.Get("/api/me", sessionHandler.Me)

		r.Route("/api/candidates", func(r chi.Router) {
			r.Get("/", candidateHandler.List)
			r.Post("/refresh", candidateHandler.Refresh)
		})

		// スワイプとチーム作成は専用のレート制限を追加
		r.Route("/api/swipes", func(r chi.Router) {
			r.With(deps.RateLimiter.SwipeMiddleware()).Post("/", swipeHandler.Swipe)
			r.Post("/undo", swipeHandler.Undo)
		})

		r.Route("/api/teams", func(r chi.Router) {
			r.Get("/me", teamHandler.Mine)
			r.With(deps.RateLimiter.SwipeMiddleware()).Post("/", teamHandler.Create)
		})

		r.Route("/api/unread", func(r chi.Router) {
			r.Get("/", unreadHandler.Get)
			r.Get("/stream", unreadHandler.Stream)
		})

		r.Post("/api/conversations/{id}/read", conversationHandler.MarkRead)

		if deps.AvatarService != nil {
			avatarHandler := NewAvatarHandler(deps.AvatarService, logger)
			r.Route("/api/profile/avatar", func(r chi.Router) {
				r.Put("/", avatarHandler.Upload)
				r.Post("/import", avatarHandler.Import)
			})
		}

		r.Route("/api/preferences", func(r chi.Router) {
			r.Get("/", prefsHandler.Get)
			r.Put("/", prefsHandler.Update)
		})

		r.Post("/api/users/me/data-requests", dataRequestHandler.Create)

		// 管理者向け
		r.Route("/api/admin", func(r chi.Router) {
			r.Use(middleware.NewRequireRoleMiddleware(deps.RoleChecker, AdminRole))
			r.Get("/data-requests", dataRequestHandler.ListPending)
		})
	})

	return r
}

// healthHandler はDB疎通を確認するヘルスチェックハンドラーを返す。
// GET /health
func healthHandler(check func(ctx context.Context) error, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := check(ctx); err != nil {
				logger.Warn("health check failed", slog.String("error", err.Error()))
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
