package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"token-issuer-service/config"
	"token-issuer-service/internal/middleware"
)

// NewRouter はルーターを生成する。metricsHandler が nil の場合 /metrics は公開しない。
func NewRouter(h *TokenHandler, cfg *config.Config, metricsHandler http.Handler) http.Handler {
	r := chi.NewRouter()

	// ミドルウェア
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)

	// ルート定義
	r.Get("/healthz", h.Health)
	if metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", metricsHandler)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Post("/setup", h.Setup)
		r.Get("/pubkey", h.GetPublicKey)
		r.Route("/tokens", func(r chi.Router) {
			r.With(middleware.CallerIdentity(cfg.IdentityHeader)).Post("/", h.IssueToken)
			r.Post("/validate", h.ValidateToken)
		})
	})

	if cfg.OtelEnabled {
		return otelhttp.NewHandler(r, cfg.OtelServiceName)
	}
	return r
}
