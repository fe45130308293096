package mockbilling

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/andrmlkv/entitlement-engine/internal/billing"
	"github.com/andrmlkv/entitlement-engine/internal/lib/sl"
	"github.com/andrmlkv/entitlement-engine/internal/models"
)

// Decision исход шага подтверждения в эмулированном потоке покупки.
type Decision int

const (
	// DecisionAccept пользователь подтвердил покупку.
	DecisionAccept Decision = iota
	// DecisionCancel пользователь отказался.
	DecisionCancel
	// DecisionDismiss пользователь закрыл диалог, не отвечая.
	DecisionDismiss
)

// ConfirmFunc шаг подтверждения покупки. Вызывается с дескриптором
// выбранного товара и возвращает решение пользователя.
type ConfirmFunc func(d models.ProductDescriptor) Decision

// AutoAccept ConfirmFunc, всегда подтверждающая покупку.
func AutoAccept(models.ProductDescriptor) Decision { return DecisionAccept }

// Provider мок коммерческого провайдера поверх BillingStore.
// Реализует billing.Provider.
type Provider struct {
	store   *BillingStore
	updated billing.PurchasesUpdatedFunc
	confirm ConfirmFunc
	run     billing.Runner
	log     *slog.Logger

	mu        sync.Mutex
	connected bool
}

// NewProvider создает мок-провайдера. Слушатель updated получает итог
// каждого потока покупки; confirm моделирует взаимодействие с
// пользователем; run выполняет асинхронные запросы.
func NewProvider(store *BillingStore, updated billing.PurchasesUpdatedFunc, confirm ConfirmFunc, run billing.Runner, log *slog.Logger) *Provider {
	return &Provider{
		store:   store,
		updated: updated,
		confirm: confirm,
		run:     run,
		log:     log,
	}
}

// Connect выполняет рукопожатие. Мок всегда соединяется успешно;
// onResult вызывается асинхронно, как у реального провайдера.
func (p *Provider) Connect(onResult func(code billing.ResultCode), _ func()) {
	p.run(func() {
		p.mu.Lock()
		p.connected = true
		p.mu.Unlock()
		onResult(billing.ResultOK)
	})
}

// Disconnect разрывает соединение; повторный вызов безопасен.
func (p *Provider) Disconnect() {
	p.mu.Lock()
	p.connected = false
	p.mu.Unlock()
}

func (p *Provider) isConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

// QueryProductDescriptors асинхронно возвращает дескрипторы товаров.
func (p *Provider) QueryProductDescriptors(ids []string, kind models.ProductKind, onResult func(code billing.ResultCode, descriptors []models.ProductDescriptor)) {
	p.run(func() {
		if !p.isConnected() {
			onResult(billing.ResultServiceUnavailable, nil)
			return
		}
		descriptors, err := p.store.GetProductDescriptors(context.Background(), ids, kind)
		if err != nil {
			p.log.Error("failed to query product descriptors", sl.Err(err))
			onResult(billing.ResultError, nil)
			return
		}
		onResult(billing.ResultOK, descriptors)
	})
}

// QueryOwnedPurchases синхронно возвращает закешированные покупки данного типа.
func (p *Provider) QueryOwnedPurchases(kind models.ProductKind) []models.PurchaseRecord {
	purchases, err := p.store.GetPurchases(context.Background(), kind)
	if err != nil {
		p.log.Error("failed to query owned purchases", sl.Err(err))
		return nil
	}
	return purchases
}

// QueryPurchaseHistory асинхронно возвращает историю покупок данного типа.
func (p *Provider) QueryPurchaseHistory(kind models.ProductKind, onResult func(code billing.ResultCode, purchases []models.PurchaseRecord)) {
	p.run(func() {
		if !p.isConnected() {
			onResult(billing.ResultServiceUnavailable, nil)
			return
		}
		purchases, err := p.store.GetPurchases(context.Background(), kind)
		if err != nil {
			p.log.Error("failed to query purchase history", sl.Err(err))
			onResult(billing.ResultError, nil)
			return
		}
		onResult(billing.ResultOK, purchases)
	})
}

// LaunchPurchaseFlow запускает эмулированный поток покупки. При
// подтверждении синтезируется новая запись о покупке и отдается
// постоянному слушателю обновлений; в собственные коллекции провайдера
// запись не сохраняется — это отдельное, явное действие вызывающего.
func (p *Provider) LaunchPurchaseFlow(productID string, kind models.ProductKind) {
	p.run(func() {
		if !p.isConnected() {
			p.updated(billing.ResultServiceUnavailable, nil)
			return
		}
		descriptors, err := p.store.GetProductDescriptors(context.Background(), []string{productID}, kind)
		if err != nil {
			p.log.Error("failed to look up product for purchase flow", sl.Err(err))
			p.updated(billing.ResultError, nil)
			return
		}
		if len(descriptors) == 0 {
			p.log.Warn("unknown product in purchase flow",
				slog.String("product_id", productID), slog.String("kind", string(kind)))
			p.updated(billing.ResultItemUnavailable, nil)
			return
		}

		switch p.confirm(descriptors[0]) {
		case DecisionAccept:
			record := synthesizePurchase(descriptors[0].ID, kind)
			p.log.Info("purchase flow accepted",
				slog.String("product_id", productID), slog.String("token", record.Token))
			p.updated(billing.ResultOK, []models.PurchaseRecord{record})
		default:
			p.log.Info("purchase flow canceled", slog.String("product_id", productID))
			p.updated(billing.ResultUserCanceled, nil)
		}
	})
}

func synthesizePurchase(productID string, kind models.ProductKind) models.PurchaseRecord {
	return models.PurchaseRecord{
		ProductID:      productID,
		PurchaseTime:   time.Now().UTC(),
		Token:          uuid.NewString(),
		IsAutoRenewing: true,
		Signature:      fmt.Sprintf("debug-signature-%s-%s", productID, kind),
	}
}
