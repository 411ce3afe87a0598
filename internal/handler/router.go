package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/coachhub/internal/metrics"
	"github.com/hitoshi/coachhub/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	CORSAllowedOrigin string
	AuthJWTSecret     string
	RateLimiter       *middleware.RateLimiter
	HealthChecker     HealthChecker
	MetricsGatherer   prometheus.Gatherer
	HTTPMetrics       middleware.StatusRecorder

	// サービス
	AuthService      AuthServiceInterface
	WorkspaceService WorkspaceServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	CORSMiddleware → Recovery → Logging → (AuthMiddleware → RateLimit(General))
//
// ログインルート（/auth/telegram）は認証ミドルウェアの外に置き、
// IP単位のログインレート制限のみを適用する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	// CORS ミドルウェアを最上位に適用（全ルートに効く）
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(slog.Default(), deps.HTTPMetrics))

	authHandler := NewAuthHandler(deps.AuthService)
	wsHandler := NewWorkspaceHandler(deps.WorkspaceService)

	// --- 認証不要のルート ---

	r.Get("/health", NewHealthHandler(deps.HealthChecker))

	if deps.MetricsGatherer != nil {
		r.Handle("/metrics", metrics.Handler(deps.MetricsGatherer))
	}

	// ログイン（認証前のためIP単位でレート制限）
	r.With(deps.RateLimiter.LoginMiddleware()).Post("/auth/telegram", authHandler.Login)

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Auth → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewAuthMiddleware(deps.AuthJWTSecret))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Post("/api/bootstrap", wsHandler.Bootstrap)
		r.Post("/api/invites/accept", wsHandler.AcceptInvite)

		r.Route("/api/workspaces", func(r chi.Router) {
			r.Post("/", wsHandler.CreateWorkspace)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/members", wsHandler.ListMembers)
				r.Post("/members", wsHandler.AddMemberByEmail)
				r.Post("/invites", wsHandler.CreateInvite)
			})
		})
	})

	return r
}
