package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/titan/internal/middleware"
	"github.com/hitoshi/titan/internal/model"
	"github.com/hitoshi/titan/internal/post"
)

// HealthChecker は依存先の疎通確認を行うインターフェース。
// *sql.DBが満たす。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	SessionResolver   middleware.SessionResolver
	StatusRecorder    middleware.StatusRecorder
	CORSAllowedOrigin string
	CSRFConfig        middleware.CSRFConfig
	LoginRateLimiter  *middleware.RateLimiter

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// 記事
	PostService PostServiceInterface
	FeedInfo    post.FeedInfo

	// Discord
	PresenceAggregator PresenceAggregator

	// 運用
	Health         HealthChecker
	MetricsHandler http.Handler
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → Logging → Recovery → SecurityHeaders → CORS → Session
//
// 記事の公開は管理者判定をCSRF検証より先に行い、未認可のリクエストはボディを読まずに401で拒否する。
// 旧サイトのパス（/posts, /discord-widget）はAPIパスの別名として残す。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r.Use(middleware.NewRequestIDMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger, deps.StatusRecorder))
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewSessionMiddleware(deps.SessionResolver))

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig)
	postHandler := NewPostHandler(deps.PostService, deps.FeedInfo)
	presenceHandler := NewPresenceHandler(deps.PresenceAggregator)

	csrf := middleware.NewCSRFMiddleware(deps.CSRFConfig)
	adminOnly := middleware.NewAuthorizationMiddleware(post.Authorize)
	signedIn := middleware.NewAuthorizationMiddleware(middleware.RequireIdentity)

	// --- 運用 ---
	r.Get("/health", healthHandler(deps.Health))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}
	r.Method(http.MethodGet, "/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig))

	// --- 記事 ---
	postRoutes := func(r chi.Router) {
		r.Get("/", postHandler.ListPosts)
		r.With(adminOnly, csrf).Post("/", postHandler.PublishPost)
	}
	r.Route("/api/posts", func(r chi.Router) {
		postRoutes(r)
		r.Get("/feed.xml", postHandler.Feed)
	})
	r.Route("/posts", postRoutes)

	// --- Discord ---
	r.Get("/api/discord-widget", presenceHandler.GetWidget)
	r.Get("/discord-widget", presenceHandler.GetWidget)

	// --- アカウント ---
	r.Post("/api/register", authHandler.Register)
	r.Route("/auth", func(r chi.Router) {
		login := http.HandlerFunc(authHandler.Login)
		if deps.LoginRateLimiter != nil {
			r.Method(http.MethodPost, "/login", deps.LoginRateLimiter.Middleware()(login))
		} else {
			r.Post("/login", login)
		}
		r.Post("/logout", authHandler.Logout)
		r.With(signedIn).Get("/me", authHandler.Me)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteErrorResponse(w, &model.APIError{Code: "NOT_FOUND", Message: "Not found", Status: http.StatusNotFound})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteErrorResponse(w, &model.APIError{Code: "METHOD_NOT_ALLOWED", Message: "Method not allowed", Status: http.StatusMethodNotAllowed})
	})

	return r
}

// healthHandler はDBへの疎通を確認するヘルスチェックハンドラーを返す。
func healthHandler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if checker != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := checker.PingContext(ctx); err != nil {
				slog.ErrorContext(r.Context(), "health check failed", slog.String("error", err.Error()))
				middleware.WriteErrorResponse(w, model.NewServiceUnavailableError())
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
