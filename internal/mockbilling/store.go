// Package mockbilling реализует локальный мок коммерческого провайдера:
// персистентный каталог товаров и набор покупок поверх key-value
// хранилища плюс эмуляцию интерактивного потока покупки. Контракт
// совпадает с контрактом реального провайдера, поэтому остальное
// приложение не отличает мок от боевого подключения.
package mockbilling

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/go-playground/validator"

	"github.com/andrmlkv/entitlement-engine/internal/kvstore"
	"github.com/andrmlkv/entitlement-engine/internal/models"
)

const (
	keyProducts  = "dbx_products"
	keyPurchases = "dbx_purchases"
)

// BillingStore персистентные коллекции мок-провайдера. Каждая коллекция
// сериализуется целиком в одно значение key-value хранилища, поэтому
// каждая мутация — это цикл чтение-изменение-запись под общим мьютексом.
type BillingStore struct {
	mu       sync.Mutex
	kv       kvstore.Store
	validate *validator.Validate
}

// NewStore создает BillingStore поверх переданного key-value хранилища.
func NewStore(kv kvstore.Store) *BillingStore {
	return &BillingStore{
		kv:       kv,
		validate: validator.New(),
	}
}

// GetProductDescriptors возвращает дескрипторы с указанными идентификаторами
// и типом. Пустое хранилище — пустой результат, не ошибка.
func (s *BillingStore) GetProductDescriptors(ctx context.Context, ids []string, kind models.ProductKind) ([]models.ProductDescriptor, error) {
	const op = "mockbilling.GetProductDescriptors"
	all, err := s.loadProducts(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	wanted := make(map[string]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}

	var result []models.ProductDescriptor
	for _, d := range all {
		if wanted[d.ID] && d.Kind == kind {
			result = append(result, d)
		}
	}
	return result, nil
}

// GetPurchases возвращает все покупки, чей тег типа совпадает с kind.
func (s *BillingStore) GetPurchases(ctx context.Context, kind models.ProductKind) ([]models.PurchaseRecord, error) {
	const op = "mockbilling.GetPurchases"
	all, err := s.loadPurchases(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var result []models.PurchaseRecord
	for _, p := range all {
		if p.MatchesKind(kind) {
			result = append(result, p)
		}
	}
	return result, nil
}

// GetPurchaseByToken ищет покупку по токену; отсутствие — nil без ошибки.
func (s *BillingStore) GetPurchaseByToken(ctx context.Context, token string) (*models.PurchaseRecord, error) {
	const op = "mockbilling.GetPurchaseByToken"
	all, err := s.loadPurchases(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	for _, p := range all {
		if p.Token == token {
			return &p, nil
		}
	}
	return nil, nil
}

// AddProduct валидирует дескриптор и добавляет его в каталог.
// Периоды допустимы только у подписок.
func (s *BillingStore) AddProduct(ctx context.Context, d models.ProductDescriptor) error {
	const op = "mockbilling.AddProduct"
	if err := s.validate.Struct(d); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if d.Kind != models.KindSubscription && (d.TrialPeriod != "" || d.BillingPeriod != "") {
		return fmt.Errorf("%s: periods are only valid for subscriptions", op)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	all, err := s.loadProducts(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	all = append(all, d)
	if err := s.storeJSON(ctx, keyProducts, all); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// RemoveProduct удаляет дескриптор с данным идентификатором.
func (s *BillingStore) RemoveProduct(ctx context.Context, id string) error {
	const op = "mockbilling.RemoveProduct"

	s.mu.Lock()
	defer s.mu.Unlock()
	all, err := s.loadProducts(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	filtered := all[:0]
	for _, d := range all {
		if d.ID != id {
			filtered = append(filtered, d)
		}
	}
	if err := s.storeJSON(ctx, keyProducts, filtered); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// ClearProducts очищает каталог целиком.
func (s *BillingStore) ClearProducts(ctx context.Context) error {
	const op = "mockbilling.ClearProducts"
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.kv.Remove(ctx, keyProducts); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// AddPurchase добавляет запись о покупке.
func (s *BillingStore) AddPurchase(ctx context.Context, p models.PurchaseRecord) error {
	const op = "mockbilling.AddPurchase"

	s.mu.Lock()
	defer s.mu.Unlock()
	all, err := s.loadPurchases(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	all = append(all, p)
	if err := s.storeJSON(ctx, keyPurchases, all); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// RemovePurchase удаляет покупку по токену.
func (s *BillingStore) RemovePurchase(ctx context.Context, token string) error {
	const op = "mockbilling.RemovePurchase"

	s.mu.Lock()
	defer s.mu.Unlock()
	all, err := s.loadPurchases(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	filtered := all[:0]
	for _, p := range all {
		if p.Token != token {
			filtered = append(filtered, p)
		}
	}
	if err := s.storeJSON(ctx, keyPurchases, filtered); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// ClearPurchases очищает набор покупок целиком.
func (s *BillingStore) ClearPurchases(ctx context.Context) error {
	const op = "mockbilling.ClearPurchases"
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.kv.Remove(ctx, keyPurchases); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *BillingStore) loadProducts(ctx context.Context) ([]models.ProductDescriptor, error) {
	var list []models.ProductDescriptor
	if err := s.loadJSON(ctx, keyProducts, &list); err != nil {
		return nil, err
	}
	return list, nil
}

func (s *BillingStore) loadPurchases(ctx context.Context) ([]models.PurchaseRecord, error) {
	var list []models.PurchaseRecord
	if err := s.loadJSON(ctx, keyPurchases, &list); err != nil {
		return nil, err
	}
	return list, nil
}

func (s *BillingStore) loadJSON(ctx context.Context, key string, target any) error {
	raw, ok, err := s.kv.Get(ctx, key)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	return json.Unmarshal([]byte(raw), target)
}

func (s *BillingStore) storeJSON(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return s.kv.Put(ctx, key, string(raw))
}
