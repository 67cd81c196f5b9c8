package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/algohaja/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger         *slog.Logger
	HealthChecker  HealthChecker
	MetricsHandler http.Handler

	// ミドルウェア依存
	TokenVerifier  *middleware.TokenVerifier
	AllowedOrigins []string
	RateLimiter    *middleware.RateLimiter

	ProblemService ProblemServiceInterface
	UserService    UserServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → SecurityHeaders → CORS → OriginCheck → (Auth) → RateLimit
//
// /health と /metrics はCORSとレート制限の外に置く。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware(deps.Logger))
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())

	r.Get("/health", NewHealthHandler(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	problemHandler := NewProblemHandler(deps.ProblemService)
	userHandler := NewUserHandler(deps.UserService)

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.NewCORSMiddleware(deps.AllowedOrigins))
		r.Use(middleware.NewOriginCheckMiddleware(deps.AllowedOrigins))

		// 問題情報は認証不要
		r.Group(func(r chi.Router) {
			r.Use(deps.RateLimiter.Middleware())
			r.Get("/problem/{problemId}", problemHandler.GetProblem)
			r.Post("/problem/{problemId}/refresh", problemHandler.RequestRefresh)
		})

		r.Route("/user", func(r chi.Router) {
			r.Use(middleware.NewAuthMiddleware(deps.TokenVerifier))
			r.Use(deps.RateLimiter.Middleware())
			r.Get("/me", userHandler.Me)
			r.Patch("/basic", userHandler.UpdateBasic)
			r.Patch("/solved", userHandler.RefreshSolved)
			r.Patch("/git", userHandler.UpdateGit)
		})
	})

	return r
}
