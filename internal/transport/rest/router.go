package rest

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/tiangangQiu/FundVal-Live/config"
)

// NewRouter assembles the API surface. Every route runs behind request-id,
// logging, body-cap and optional-session middleware.
func NewRouter(cfg *config.Config, controller *Controller, resolver SessionResolver) http.Handler {
	controller.withSessionConfig(cfg)

	r := chi.NewRouter()

	r.Use(RequestID)
	r.Use(Logging)
	r.Use(MaxBody(cfg))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: true,
	}))
	r.Use(Auth(cfg, resolver))

	r.Route("/api", func(r chi.Router) {
		r.Get("/search", controller.searchFunds)
		r.Get("/categories", controller.getCategories)

		r.Route("/fund", func(r chi.Router) {
			r.Get("/{code}", controller.getFund)
			r.Get("/{code}/history", controller.getFundHistory)
			r.Get("/{code}/intraday", controller.getFundIntraday)
			r.Post("/{code}/subscribe", controller.subscribeFund)
		})

		r.Post("/watchlist", controller.getWatchlist)

		r.Route("/subscriptions", func(r chi.Router) {
			r.Get("/", controller.getSubscriptions)
			r.Delete("/{id}", controller.deleteSubscription)
		})

		r.Route("/accounts", func(r chi.Router) {
			r.Get("/", controller.getAccounts)
			r.Post("/", controller.createAccount)
			r.Put("/{id}", controller.updateAccount)
			r.Delete("/{id}", controller.deleteAccount)
		})

		r.Route("/account", func(r chi.Router) {
			r.Get("/positions", controller.getPositions)
			r.Post("/positions", controller.upsertPosition)
			r.Delete("/positions/{code}", controller.deletePosition)
			r.Post("/positions/{code}/add", controller.addLot)
			r.Post("/positions/{code}/reduce", controller.reduceLot)
			r.Post("/positions/update-nav", controller.updateNavs)
			r.Get("/transactions", controller.getTransactions)
		})

		r.Get("/positions/aggregate", controller.getAggregatePositions)

		r.Get("/settings", controller.getSettings)
		r.Post("/settings", controller.updateSettings)
		r.Get("/preferences", controller.getPreferences)
		r.Post("/preferences", controller.updatePreferences)

		r.Route("/ai", func(r chi.Router) {
			r.Post("/analyze_fund", controller.analyzeFund)
			r.Get("/prompts", controller.getPrompts)
			r.Post("/prompts", controller.createPrompt)
			r.Put("/prompts/{id}", controller.updatePrompt)
			r.Delete("/prompts/{id}", controller.deletePrompt)
			r.Get("/analysis_history", controller.getAnalysisHistory)
			r.Delete("/analysis_history/{id}", controller.deleteAnalysisHistory)
		})

		r.Route("/data", func(r chi.Router) {
			r.Get("/export", controller.exportData)
			r.Post("/import", controller.importData)
		})

		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", controller.register)
			r.Post("/login", controller.login)
			r.Post("/logout", controller.logout)
		})
	})

	return r
}
