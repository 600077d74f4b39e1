package handlers

import (
	"github.com/go-chi/chi/v5"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	"fraudulert-backend/internal/auth"
	"fraudulert-backend/internal/cache"
	appmw "fraudulert-backend/internal/middleware"
	"fraudulert-backend/internal/scorerauth"
	"fraudulert-backend/internal/users"
)

// RegisterRoutes wires the full HTTP surface: public credential exchange
// and scorer enrollment, then the authenticated subtree with an admin
// group inside it.
func RegisterRoutes(
	r chi.Router,
	cacheClient cache.Client,
	authHandler *auth.Handler,
	userHandler *users.Handler,
	gateway *Handler,
	tokens *scorerauth.TokenHandler,
	enrollment *scorerauth.EnrollmentHandler,
) {
	r.Get("/healthz", gateway.Healthz)
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	r.Group(func(r chi.Router) {
		r.Use(appmw.RateLimitLogin(cacheClient))
		r.Post("/v1/auth/login", authHandler.Login)
	})

	r.Group(func(r chi.Router) {
		r.Use(appmw.RateLimitEnrollIP(cacheClient))
		r.Use(appmw.RateLimitEnrollToken(cacheClient))
		r.Post("/v1/scorers/enroll", enrollment.EnrollScorer)
	})

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(cacheClient))

		r.Get("/v1/auth/me", authHandler.Me)
		r.Get("/v1/accounts", gateway.ListAccounts)
		r.Get("/v1/predictions", gateway.ListPredictions)
		r.Get("/v1/dashboard/metrics", gateway.DashboardMetrics)
		r.Get("/v1/dashboard/risk-distribution", gateway.RiskDistribution)
		r.Get("/v1/dashboard/high-risk", gateway.HighRiskTransactions)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAdmin)

			r.Post("/v1/users", userHandler.Create)
			r.Get("/v1/users", userHandler.List)
			r.Delete("/v1/users/{uid}", userHandler.Delete)
			r.Patch("/v1/users/{uid}/role", userHandler.ChangeRole)

			r.Post("/v1/accounts/upload", gateway.UploadAccounts)
			r.Post("/v1/transactions/upload", gateway.UploadTransactions)
			r.Post("/v1/transactions/{id}/score", gateway.ScoreTransaction)

			r.Post("/v1/ingest-tokens", tokens.CreateToken)
			r.Get("/v1/ingest-tokens", tokens.ListTokens)
			r.Delete("/v1/ingest-tokens/{id}", tokens.RevokeToken)
			r.Post("/v1/scorers/credentials", tokens.MintCredentials)
		})
	})
}
