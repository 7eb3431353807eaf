package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hitoshi/studiomatch/internal/candidate"
	"github.com/hitoshi/studiomatch/internal/config"
	"github.com/hitoshi/studiomatch/internal/database"
	"github.com/hitoshi/studiomatch/internal/datarequest"
	"github.com/hitoshi/studiomatch/internal/handler"
	"github.com/hitoshi/studiomatch/internal/logger"
	"github.com/hitoshi/studiomatch/internal/metrics"
	"github.com/hitoshi/studiomatch/internal/middleware"
	"github.com/hitoshi/studiomatch/internal/prefs"
	"github.com/hitoshi/studiomatch/internal/realtime"
	"github.com/hitoshi/studiomatch/internal/repository"
	"github.com/hitoshi/studiomatch/internal/security"
	"github.com/hitoshi/studiomatch/internal/session"
	"github.com/hitoshi/studiomatch/internal/storage"
	"github.com/hitoshi/studiomatch/internal/team"
	"github.com/hitoshi/studiomatch/internal/unread"
	"github.com/hitoshi/studiomatch/internal/worker/cleanup"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
)

const (
	dbPingTimeout   = 5 * time.Second
	shutdownTimeout = 30 * time.Second
)

// Init はアプリケーションの初期化を行う。
// .envと環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. 設定読み込み前にもログを使えるようにする
	logger.SetupDefault(w, slog.LevelInfo)

	// 2. .envは既存の環境変数を上書きしない
	if err := config.LoadDotEnv(); err != nil {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定されたログレベルで再設定する
	logger.SetupDefault(w, logger.ParseLevel(cfg.LogLevel))
	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	var migrateArgs MigrateArgs
	if cmd == CommandMigrate {
		var err error
		if migrateArgs, err = ParseMigrateArgs(args); err != nil {
			return err
		}
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
		slog.String("realtime_driver", cfg.RealtimeDriver),
	)

	ctx, stop := signalContext()
	defer stop()

	switch cmd {
	case CommandWorker:
		return runWorker(ctx, cfg)
	case CommandMigrate:
		return runMigrate(cfg, migrateArgs)
	default:
		return runServe(ctx, cfg)
	}
}

// signalContext はSIGINTまたはSIGTERMを受信すると終了するコンテキストを返す。
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case s := <-sig:
			slog.Info("signal received", slog.String("signal", s.String()))
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(sig)
		cancel()
	}
}

// openDB はDB接続を開いて疎通を確認する。
func openDB(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	db, err := database.Open(cfg.DatabaseURL, database.DefaultPoolConfig())
	if err != nil {
		return nil, err
	}
	if err := database.Ping(ctx, db, dbPingTimeout); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// liveFeed は起動と停止を持つ変更通知フィード。
type liveFeed interface {
	realtime.Feed
	Run(ctx context.Context)
	Close() error
}

// newFeed はREALTIME_DRIVERに応じた変更通知フィードを生成する。
// Redisの場合、返すクライアントは呼び出し側で閉じること。
func newFeed(ctx context.Context, cfg *config.Config, log *slog.Logger, mc metrics.MetricsCollector) (liveFeed, io.Closer, error) {
	if cfg.RealtimeDriver == config.RealtimeDriverRedis {
		client, err := realtime.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		return realtime.NewRedisFeed(ctx, client, log, mc), client, nil
	}
	return realtime.NewPostgresFeed(cfg.DatabaseURL, realtime.DefaultPostgresFeedOptions(), log, mc), nil, nil
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// ctxが終了するとグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config) error {
	log := slog.Default()

	// 1. DB接続
	db, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	log.Info("database connection established")

	// 2. メトリクス
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 3. リポジトリの初期化
	profileRepo := repository.NewPostgresProfileRepo(db)
	teamRepo := repository.NewPostgresTeamRepo(db)
	matchRepo := repository.NewPostgresMatchRepo(db)
	convRepo := repository.NewPostgresConversationRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)
	auditRepo := repository.NewPostgresAuditRepo(db)
	dataReqRepo := repository.NewPostgresDataRequestRepo(db)
	roleRepo := repository.NewPostgresRoleRepo(db)

	// 4. 変更通知フィード
	feed, redisClient, err := newFeed(ctx, cfg, log, collector)
	if err != nil {
		return fmt.Errorf("failed to start realtime feed: %w", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}
	defer feed.Close()

	// 5. 設定ストア
	prefStore, err := prefs.New(prefs.Options{
		Dir:       cfg.PrefsDir,
		Namespace: cfg.PrefsNamespace,
		Version:   cfg.PrefsVersion,
	}, log)
	if err != nil {
		return err
	}
	defer prefStore.Close()
	if err := prefStore.Watch(ctx); err != nil {
		log.Warn("preference watch disabled", slog.String("error", err.Error()))
	}

	// 6. ドメインサービスの初期化
	teamResolver := team.NewResolver(teamRepo, profileRepo, log, collector)
	teamService := team.NewService(teamRepo, convRepo, profileRepo, auditRepo, security.NewTextSanitizer(), log, collector)

	candidates := candidate.NewRegistry(profileRepo, teamRepo, matchRepo, log, collector)
	defer candidates.Close()

	bootstrapper := session.NewBootstrapper(sessionRepo, profileRepo, teamResolver, cfg.SessionInitTimeout, log, collector)
	// サインアウトしたユーザーの候補キャッシュを破棄する
	bootstrapper.OnSignOut(candidates.Forget)

	unreadStrategy := unread.NewDefaultStrategy(convRepo, convRepo, log, collector)
	unreadOpts := unread.Options{
		InitialDelay: cfg.UnreadInitialDelay,
		Debounce:     cfg.UnreadDebounce,
		PollInterval: cfg.UnreadPollInterval,
	}

	dataRequests := datarequest.NewService(dataReqRepo, auditRepo, log)

	rateLimiter := middleware.NewRateLimiter(middleware.NewRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitSwipe))
	defer rateLimiter.Stop()

	// 7. ルーターの構築
	deps := &handler.RouterDeps{
		Logger:            log,
		Metrics:           collector,
		SessionFinder:     sessionRepo,
		RoleChecker:       roleRepo,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		Cookie: handler.CookieConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		RateLimiter:    rateLimiter,
		MetricsHandler: metrics.Handler(registry),
		HealthCheck:    db.PingContext,

		SessionService: bootstrapper,
		Candidates:     handler.NewCandidateRegistryAdapter(candidates),
		Matches:        matchRepo,
		TeamResolver:   teamResolver,
		TeamService:    teamService,

		UnreadCounter: unreadStrategy,
		UnreadStreams: func(userID string) handler.UnreadStream {
			return unread.New(unreadStrategy, feed, userID, unreadOpts, log, collector).WithConversations(convRepo)
		},
		HeartbeatInterval: handler.DefaultHeartbeatInterval,
		Conversations:     convRepo,

		Preferences:  prefStore,
		DataRequests: dataRequests,
	}

	// S3バケットが未設定の場合はプロフィール画像のルートを登録しない
	if cfg.S3Bucket != "" {
		s3Client, err := storage.NewS3Client(ctx, cfg.AWSRegion)
		if err != nil {
			return err
		}
		store := storage.NewS3AvatarStore(s3Client, cfg.S3Bucket, cfg.S3PublicBaseURL)
		deps.AvatarService = storage.NewAvatarService(store, security.NewLinkGuard(cfg.LinkFetchTimeout), profileRepo, log)
	}

	router := handler.NewRouter(deps)

	// 8. HTTPサーバーの起動
	// SSEの接続を保持するためWriteTimeoutは設定しない。
	// リクエストのコンテキストはctxから派生させ、シャットダウン時にストリームを終了させる。
	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		feed.Run(gctx)
		return nil
	})
	g.Go(func() error {
		candidates.RunEviction(gctx, cfg.CandidateEvictInterval, cfg.CandidateIdleTTL)
		return nil
	})
	g.Go(func() error {
		log.Info("API server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down API server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	log.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// 期限切れセッションの定期削除を行い、Redis駆動の場合はPostgreSQLの通知をRedisへ中継する。
// ctxが終了するとシャットダウンする。
func runWorker(ctx context.Context, cfg *config.Config) error {
	log := slog.Default()

	// 1. DB接続
	db, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	log.Info("database connection established (worker)")

	collector := metrics.NewCollector(prometheus.NewRegistry())
	g, gctx := errgroup.WithContext(ctx)

	// 2. クリーンアップジョブ。起動直後に1回実行し、以降は一定間隔で実行する
	cleanupJob := cleanup.NewSessionCleanupJob(db, log)
	g.Go(func() error {
		cleanupJob.Start(gctx, cfg.SessionCleanupInterval)
		return nil
	})

	// 3. Redis駆動の場合は通知の中継を行う
	if cfg.RealtimeDriver == config.RealtimeDriverRedis {
		client, err := realtime.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer client.Close()

		source := realtime.NewPostgresFeed(cfg.DatabaseURL, realtime.DefaultPostgresFeedOptions(), log, collector)
		defer source.Close()
		dst := realtime.NewRedisFeed(ctx, client, log, collector)
		defer dst.Close()

		g.Go(func() error {
			source.Run(gctx)
			return nil
		})
		g.Go(func() error {
			return realtime.Bridge(gctx, source, dst, log, realtime.ChannelMessages, realtime.ChannelReadReceipts)
		})
	}

	log.Info("worker starting",
		slog.Duration("cleanup_interval", cfg.SessionCleanupInterval),
		slog.String("realtime_driver", cfg.RealtimeDriver),
	)

	if err := g.Wait(); err != nil {
		return fmt.Errorf("worker failed: %w", err)
	}

	log.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config, args MigrateArgs) error {
	if args.Down {
		slog.Info("rolling back database migrations",
			slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
			slog.Int("steps", args.Steps),
		)
		if err := database.RollbackMigrations(cfg.DatabaseURL, args.Steps); err != nil {
			return fmt.Errorf("migration rollback failed: %w", err)
		}
		slog.Info("database migrations rolled back successfully")
		return nil
	}

	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
