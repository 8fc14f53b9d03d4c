// Package app はサブコマンドごとの依存関係の組み立てと起動を行う。
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/titan/internal/auth"
	"github.com/hitoshi/titan/internal/config"
	"github.com/hitoshi/titan/internal/database"
	"github.com/hitoshi/titan/internal/handler"
	"github.com/hitoshi/titan/internal/logger"
	"github.com/hitoshi/titan/internal/metrics"
	"github.com/hitoshi/titan/internal/middleware"
	"github.com/hitoshi/titan/internal/post"
	"github.com/hitoshi/titan/internal/presence"
	"github.com/hitoshi/titan/internal/repository"
	"github.com/hitoshi/titan/internal/security"
	"github.com/hitoshi/titan/internal/worker/cleanup"
)

// dotEnvPath は起動時に読み込む.envファイルのパス。
const dotEnvPath = ".env"

// Init はアプリケーションの初期化を行う。
// .envを読み込んだあとJSON構造化ログをセットアップし、環境変数からConfigを読み込む。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. .envの読み込み（LOG_LEVELも.envから指定できるようにロガーより先に行う）
	dotEnvErr := config.LoadDotEnv(dotEnvPath)

	// 2. ログの初期化
	logger.SetupDefault(w)
	if dotEnvErr != nil {
		return nil, dotEnvErr
	}

	// 3. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck とbadgeはDB設定を必要としないため、フル初期化をスキップする
	switch cmd {
	case CommandHealthcheck:
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	case CommandBadge:
		if err := config.LoadDotEnv(dotEnvPath); err != nil {
			return err
		}
		logger.SetupDefault(w)
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return runBadge(ctx, config.LoadClient(), os.Stdout)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	case CommandAdmin:
		if len(args) < 2 || args[1] == "" {
			return errors.New("usage: titan admin <email>")
		}
		return runAdmin(cfg, args[1])
	default:
		return runServe(cfg)
	}
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// 2. メトリクス
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(registry)

	// 3. リポジトリの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)
	postRepo := repository.NewPostgresPostRepo(db)

	// 4. ドメインサービスの初期化
	authService := auth.NewService(userRepo, sessionRepo, collector, auth.ServiceConfig{
		SessionMaxAge: cfg.SessionMaxAge,
	})
	postService := post.NewService(postRepo, userRepo, collector)

	aggregator, closeCache, err := newAggregator(cfg, collector)
	if err != nil {
		return err
	}
	defer closeCache()

	loginLimiter := middleware.NewRateLimiter(middleware.LoginRateLimiterConfig(cfg.RateLimitLogin))
	defer loginLimiter.Stop()

	// 5. ルーターの構築
	router := handler.NewRouter(&handler.RouterDeps{
		Logger:            slog.Default(),
		SessionResolver:   authService,
		StatusRecorder:    collector,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		CSRFConfig: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		LoginRateLimiter: loginLimiter,

		AuthService: authService,
		AuthConfig: handler.AuthHandlerConfig{
			CookieDomain:  cfg.CookieDomain,
			CookieSecure:  cfg.CookieSecure,
			SessionMaxAge: cfg.SessionMaxAge,
		},

		PostService: postService,
		FeedInfo: post.FeedInfo{
			Title:       "Titan Blog",
			BaseURL:     cfg.BaseURL,
			Description: "News and updates from the Titan community",
		},

		PresenceAggregator: aggregator,

		Health:         db,
		MetricsHandler: metrics.Handler(registry),
	})

	// 6. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case <-stop:
	case err := <-serveErr:
		return fmt.Errorf("server listen error: %w", err)
	}
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// newAggregator はDiscord集約器を組み立てる。
// REDIS_URLが設定されていればRedis、なければプロセス内メモリをキャッシュに使う。
// 戻り値のcloseはキャッシュの接続を閉じる。
func newAggregator(cfg *config.Config, collector *metrics.Collector) (*presence.Aggregator, func(), error) {
	closeCache := func() {}

	var cache presence.Cache = presence.NewMemoryCache()
	if cfg.RedisURL != "" {
		redisCache, err := presence.NewRedisCache(cfg.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to configure redis cache: %w", err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := redisCache.Ping(ctx); err != nil {
			redisCache.Close()
			return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		cache = redisCache
		closeCache = func() { redisCache.Close() }
		slog.Info("presence cache uses redis")
	}

	widget := presence.NewWidgetClient(security.NewSafeClient(cfg.DiscordFetchTimeout), slog.Default())

	// トークン未設定時は概算値の取得自体を行わない
	var counts presence.CountsFetcher
	if cfg.DiscordBotToken != "" {
		client, err := presence.NewCountsClient(
			cfg.DiscordBotToken,
			&http.Client{Timeout: cfg.DiscordFetchTimeout},
			slog.Default(),
		)
		if err != nil {
			closeCache()
			return nil, nil, fmt.Errorf("failed to create discord client: %w", err)
		}
		counts = client
	}

	if cfg.DiscordGuildID == "" {
		slog.Warn("DISCORD_GUILD_ID is not set; /api/discord-widget will return 500")
	}

	aggregator := presence.NewAggregator(presence.AggregatorConfig{
		GuildID:      cfg.DiscordGuildID,
		FetchTimeout: cfg.DiscordFetchTimeout,
		CacheTTL:     cfg.PresenceCacheTTL,
	}, widget, counts, cache, collector, slog.Default())

	return aggregator, closeCache, nil
}

// runWorker はワーカーモードで起動する。
// DB接続を開き、期限切れセッションのクリーンアップをスケジュール実行する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established (worker)")

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	slog.Info("worker starting",
		slog.String("session_cleanup_schedule", cfg.SessionCleanupSchedule),
	)

	// クリーンアップジョブをメインgoroutineで実行（ブロッキング）
	cleanupJob := cleanup.NewCleanupJob(repository.NewPostgresSessionRepo(db), slog.Default())
	if err := cleanupJob.Start(ctx, cfg.SessionCleanupSchedule); err != nil {
		return err
	}

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	version, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully",
		slog.Uint64("schema_version", uint64(version)),
	)
	return nil
}

// runAdmin は指定メールアドレスのユーザーに管理者フラグを付与する。
func runAdmin(cfg *config.Config, email string) error {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	authService := auth.NewService(
		repository.NewPostgresUserRepo(db),
		repository.NewPostgresSessionRepo(db),
		nil,
		auth.ServiceConfig{SessionMaxAge: cfg.SessionMaxAge},
	)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return grantAdmin(ctx, authService, email)
}

// adminGranter は管理者フラグを付与するインターフェース。
type adminGranter interface {
	GrantAdmin(ctx context.Context, email string) error
}

func grantAdmin(ctx context.Context, granter adminGranter, email string) error {
	if err := granter.GrantAdmin(ctx, email); err != nil {
		return fmt.Errorf("failed to grant admin to %s: %w", email, err)
	}
	return nil
}

// runBadge は集約エンドポイントをポーリングし、状態が変わるたびにバッジを1行ずつ出力する。
// ctxがキャンセルされると戻る。
func runBadge(ctx context.Context, cc config.ClientConfig, out io.Writer) error {
	sanitizer := security.NewBadgeSanitizer()

	render := func(state presence.State) {
		badge := presence.NewBadge(state, sanitizer)
		line := badge.Text()
		if cc.Format == "html" {
			html, err := badge.HTML()
			if err != nil {
				slog.Error("failed to render badge", slog.String("error", err.Error()))
				return
			}
			line = html
		}
		fmt.Fprintln(out, line)
	}

	slog.Info("badge polling started",
		slog.String("url", cc.PresenceURL),
		slog.Duration("interval", cc.PollInterval),
	)

	render(presence.State{})
	poller := presence.NewPoller(cc.PresenceURL, cc.PollInterval, &http.Client{Timeout: 10 * time.Second}, slog.Default(), render)
	poller.Run(ctx)

	slog.Info("badge polling stopped")
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
