package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Session
	SessionMaxAge int

	// Discord
	DiscordGuildID      string
	DiscordBotToken     string
	DiscordFetchTimeout time.Duration
	PresenceCacheTTL    time.Duration
	RedisURL            string

	// Badge
	PresenceURL          string
	PresencePollInterval time.Duration
	BadgeFormat          string

	// Rate Limit
	RateLimitLogin int

	// Worker
	SessionCleanupSchedule string

	// Server
	ServerPort string
	BaseURL    string

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS（カンマ区切りで複数指定可）
	CORSAllowedOrigin string
}

// ClientConfig はバッジクライアント（titan badge）の設定。
// サーバー側の必須環境変数がなくても読み込める。
type ClientConfig struct {
	PresenceURL  string
	PollInterval time.Duration
	Format       string // "text" または "html"
}

// LoadClient は環境変数からClientConfigを読み込む。必須項目はない。
func LoadClient() ClientConfig {
	port := getEnvString("SERVER_PORT", "8080")
	return ClientConfig{
		PresenceURL:  getEnvString("PRESENCE_URL", "http://localhost:"+port+"/api/discord-widget"),
		PollInterval: getEnvDuration("PRESENCE_POLL_INTERVAL", 15*time.Second),
		Format:       strings.ToLower(getEnvString("BADGE_FORMAT", "text")),
	}
}

// LoadDotEnv はpathの.envファイルを環境変数に読み込む。
// ロガー初期化前に呼ばれるため、ログは出力しない。ファイルが存在しない場合は何もしない。既に設定済みの環境変数は上書きしない。
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
// DISCORD_GUILD_IDは任意で、未設定時は集約リクエストごとに設定エラーとして返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.BaseURL = os.Getenv("BASE_URL")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.SessionMaxAge = getEnvInt("SESSION_MAX_AGE", 86400)
	cfg.DiscordGuildID = os.Getenv("DISCORD_GUILD_ID")
	cfg.DiscordBotToken = os.Getenv("DISCORD_BOT_TOKEN")
	cfg.DiscordFetchTimeout = getEnvDuration("DISCORD_FETCH_TIMEOUT", 5*time.Second)
	cfg.PresenceCacheTTL = getEnvDuration("PRESENCE_CACHE_TTL", 15*time.Second)
	cfg.RedisURL = os.Getenv("REDIS_URL")
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	client := LoadClient()
	cfg.PresenceURL = client.PresenceURL
	cfg.PresencePollInterval = client.PollInterval
	cfg.BadgeFormat = client.Format
	cfg.RateLimitLogin = getEnvInt("RATE_LIMIT_LOGIN", 10)
	cfg.SessionCleanupSchedule = getEnvString("SESSION_CLEANUP_SCHEDULE", "@hourly")
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

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
