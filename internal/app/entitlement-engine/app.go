// Package entitlementengine собирает приложение: хранилище, мок-провайдер,
// менеджер соединения, сервис разрешения права доступа и HTTP-сервер.
package entitlementengine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"

	"github.com/andrmlkv/entitlement-engine/internal/billing"
	"github.com/andrmlkv/entitlement-engine/internal/config"
	"github.com/andrmlkv/entitlement-engine/internal/kvstore"
	"github.com/andrmlkv/entitlement-engine/internal/mockbilling"
	"github.com/andrmlkv/entitlement-engine/internal/models"
	"github.com/andrmlkv/entitlement-engine/internal/services/entitlement"
	"github.com/andrmlkv/entitlement-engine/internal/services/manager"
	"github.com/andrmlkv/entitlement-engine/internal/subscription"
)

// App корневой объект приложения.
type App struct {
	server        *http.Server
	logger        *slog.Logger
	manager       *manager.Manager
	entitlements  *entitlement.Service
	subscriptions *subscription.Repository
}

// New строит приложение по конфигу.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	kv, err := newStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	store := mockbilling.NewStore(kv)
	repo := subscription.NewRepository()

	confirm := mockbilling.AutoAccept
	if !cfg.AutoAcceptPurchases {
		confirm = func(models.ProductDescriptor) mockbilling.Decision {
			return mockbilling.DecisionCancel
		}
	}

	factory := func(updated billing.PurchasesUpdatedFunc) billing.Provider {
		return mockbilling.NewProvider(store, updated, confirm, billing.Go, logger)
	}

	mgr := manager.New(factory, manager.Config{
		SubscriptionProductIDs: cfg.SubscriptionProductIDs,
		OneTimeProductID:       cfg.OneTimeProductID,
	}, billing.Go, logger)

	resolver := entitlement.NewResolver(mgr, cfg.SubscriptionProductIDs, logger)
	entitlements := entitlement.NewService(resolver, repo, logger)
	mgr.BindEntitlements(entitlements)

	router := chi.NewRouter()
	RegisterRoutes(router, logger, repo, mgr, store)

	srv := &http.Server{
		Addr:         cfg.AddressHTTP,
		Handler:      router,
		ReadTimeout:  cfg.TimeoutHTTP,
		WriteTimeout: cfg.TimeoutHTTP,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return &App{
		server:        srv,
		logger:        logger,
		manager:       mgr,
		entitlements:  entitlements,
		subscriptions: repo,
	}, nil
}

// Run запускает воркер разрешения, начальное подключение и HTTP-сервер;
// завершается по отмене контекста с мягкой остановкой.
func (a *App) Run(ctx context.Context) error {
	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()
	go func() {
		if err := a.entitlements.Run(workerCtx); err != nil && !errors.Is(err, context.Canceled) {
			a.logger.Error("entitlement worker stopped", slog.Any("err", err))
		}
	}()

	watch := a.subscriptions.Watch()
	go func() {
		for {
			select {
			case <-workerCtx.Done():
				return
			case subscribed := <-watch:
				a.logger.Info("entitlement state changed", slog.Bool("subscribed", subscribed))
			}
		}
	}()

	a.manager.Start()

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP server starting on", slog.String("address", a.server.Addr))
		err := a.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
		} else {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		timeoutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		a.logger.Info("shutting down HTTP server gracefully")
		err := a.server.Shutdown(timeoutCtx)
		a.manager.Shutdown()
		return err
	}
}

func newStore(ctx context.Context, cfg *config.Config) (kvstore.Store, error) {
	switch cfg.StoreBackend {
	case "", "memory":
		return kvstore.NewMemory(), nil
	case "redis":
		return kvstore.NewRedis(ctx, cfg.RedisConnection)
	case "postgres":
		return kvstore.NewPostgres(ctx, cfg.StorageConnectionString)
	default:
		return nil, fmt.Errorf("unknown store backend: %s", cfg.StoreBackend)
	}
}
