package entitlementengine

import (
	"log/slog"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/andrmlkv/entitlement-engine/internal/http/handlers/catalog"
	"github.com/andrmlkv/entitlement-engine/internal/http/handlers/purchase"
	"github.com/andrmlkv/entitlement-engine/internal/http/handlers/status"
	"github.com/andrmlkv/entitlement-engine/internal/http/middlewarectx"
	"github.com/andrmlkv/entitlement-engine/internal/mockbilling"
	"github.com/andrmlkv/entitlement-engine/internal/services/manager"
	"github.com/andrmlkv/entitlement-engine/internal/subscription"
)

// RegisterRoutes регистрирует все маршруты приложения.
func RegisterRoutes(r chi.Router, logger *slog.Logger, repo *subscription.Repository, mgr *manager.Manager, store *mockbilling.BillingStore) {
	// Глобальные middleware
	r.Use(
		middleware.RequestID,
		middleware.Logger,
		middleware.Recoverer,
		middleware.URLFormat,
	)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/entitlement", status.New(logger, repo).ServeHTTP)

		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.RateLimitMiddleware(logger))
			r.Post("/purchase", purchase.New(logger, mgr).ServeHTTP)
		})

		// Управление каталогом мок-провайдера
		r.Post("/products", catalog.NewAdd(logger, store).ServeHTTP)
		r.Delete("/products/{id}", catalog.NewRemove(logger, store).ServeHTTP)
	})

	r.Handle("/metrics", promhttp.Handler())
}
