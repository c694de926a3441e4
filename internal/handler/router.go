// Package handler はワーカーの運用エンドポイント（/health、/metrics）を提供する。
package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/deprenotify/internal/metrics"
	"github.com/hitoshi/deprenotify/internal/middleware"
)

// RouterDeps はNewOpsRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	HealthChecker HealthChecker
	Gatherer      prometheus.Gatherer
	Logger        *slog.Logger
}

// NewOpsRouter は運用エンドポイントのルーティングを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RecoveryMiddleware → LoggingMiddleware
func NewOpsRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware(deps.Logger))
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))

	r.Get("/health", NewHealthHandler(deps.HealthChecker).Health)
	r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.Gatherer))

	return r
}
