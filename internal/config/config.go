package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// 利用可能なリアルタイム通知の経路。
const (
	RealtimeDriverPostgres = "postgres"
	RealtimeDriverRedis    = "redis"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Session
	SessionMaxAge      int
	SessionInitTimeout time.Duration

	// Realtime
	RealtimeDriver string
	RedisURL       string

	// Unread
	UnreadInitialDelay time.Duration
	UnreadDebounce     time.Duration
	UnreadPollInterval time.Duration

	// Candidate
	CandidateIdleTTL       time.Duration
	CandidateEvictInterval time.Duration

	// Preferences
	PrefsDir       string
	PrefsNamespace string
	PrefsVersion   int

	// Storage
	S3Bucket         string
	S3PublicBaseURL  string
	AWSRegion        string
	LinkFetchTimeout time.Duration

	// Rate Limit（req/min/user）
	RateLimitGeneral int
	RateLimitSwipe   int

	// Worker
	SessionCleanupInterval time.Duration

	// Logging
	LogLevel string

	// Server
	ServerPort string
	BaseURL    string

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS
	CORSAllowedOrigin string
}

// LoadDotEnv はカレントディレクトリの.envを読み込む。既に設定済みの環境変数は上書きしない。
// ファイルが存在しない場合は何もしない。
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合、または値が不正な場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	var missing []string
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.RealtimeDriver = strings.ToLower(getEnvString("REALTIME_DRIVER", RealtimeDriverPostgres))
	cfg.RedisURL = os.Getenv("REDIS_URL")
	if cfg.RealtimeDriver == RealtimeDriverRedis && cfg.RedisURL == "" {
		missing = append(missing, "REDIS_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}
	if cfg.RealtimeDriver != RealtimeDriverPostgres && cfg.RealtimeDriver != RealtimeDriverRedis {
		return nil, fmt.Errorf("invalid REALTIME_DRIVER: %q", cfg.RealtimeDriver)
	}

	cfg.SessionMaxAge = getEnvInt("SESSION_MAX_AGE", 86400)
	cfg.SessionInitTimeout = getEnvDuration("SESSION_INIT_TIMEOUT", 5*time.Second)
	cfg.UnreadInitialDelay = getEnvDuration("UNREAD_INITIAL_DELAY", time.Second)
	cfg.UnreadDebounce = getEnvDuration("UNREAD_DEBOUNCE", 500*time.Millisecond)
	cfg.UnreadPollInterval = getEnvDuration("UNREAD_POLL_INTERVAL", 30*time.Second)
	cfg.CandidateIdleTTL = getEnvDuration("CANDIDATE_IDLE_TTL", 30*time.Minute)
	cfg.CandidateEvictInterval = getEnvDuration("CANDIDATE_EVICT_INTERVAL", 5*time.Minute)
	cfg.PrefsDir = getEnvString("PREFS_DIR", "./.studiomatch/prefs")
	cfg.PrefsNamespace = getEnvString("PREFS_NAMESPACE", "studiomatch:")
	cfg.PrefsVersion = getEnvInt("PREFS_VERSION", 1)
	cfg.S3Bucket = os.Getenv("S3_BUCKET")
	cfg.S3PublicBaseURL = os.Getenv("S3_PUBLIC_BASE_URL")
	cfg.AWSRegion = getEnvString("AWS_REGION", "us-east-1")
	cfg.LinkFetchTimeout = getEnvDuration("LINK_FETCH_TIMEOUT", 10*time.Second)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitSwipe = getEnvInt("RATE_LIMIT_SWIPE", 60)
	cfg.SessionCleanupInterval = getEnvDuration("SESSION_CLEANUP_INTERVAL", 24*time.Hour)
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.BaseURL = getEnvString("BASE_URL", "http://localhost:8080")
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	if cfg.S3Bucket != "" && cfg.S3PublicBaseURL == "" {
		cfg.S3PublicBaseURL = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.S3Bucket, cfg.AWSRegion)
	}

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
