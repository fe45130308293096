// Package entitlement реализует разрешение права доступа: по набору
// записей о покупках и текущему моменту определяется, владеет ли
// пользователь действующей подпиской, триалом или разовой покупкой.
package entitlement

import (
	"context"
	"log/slog"
	"time"

	"github.com/andrmlkv/entitlement-engine/internal/billing"
	"github.com/andrmlkv/entitlement-engine/internal/lib/period"
	"github.com/andrmlkv/entitlement-engine/internal/lib/sl"
	"github.com/andrmlkv/entitlement-engine/internal/models"
)

// ProductQuerier возвращает метаданные товаров, нужные для арифметики
// периодов. Единственная точка, где разрешение "приостанавливается"
// в ожидании ответа провайдера.
type ProductQuerier interface {
	QueryProductDescriptors(ids []string, kind models.ProductKind, onResult func(code billing.ResultCode, descriptors []models.ProductDescriptor))
}

// Sink приемник итогового булева сигнала "подписан / не подписан".
type Sink interface {
	SetSubscribed(subscribed bool)
}

// Resolver детерминированная функция разрешения. Не имеет побочных
// эффектов, кроме запроса метаданных; повторный запуск на тех же входах
// дает тот же результат.
type Resolver struct {
	provider ProductQuerier
	validIDs map[string]bool
	log      *slog.Logger
	now      func() time.Time
}

// NewResolver создает Resolver для заданного набора действительных
// идентификаторов подписочных товаров.
func NewResolver(provider ProductQuerier, validProductIDs []string, log *slog.Logger) *Resolver {
	valid := make(map[string]bool, len(validProductIDs))
	for _, id := range validProductIDs {
		valid[id] = true
	}
	return &Resolver{
		provider: provider,
		validIDs: valid,
		log:      log,
		now:      time.Now,
	}
}

// Resolve находит действующую покупку среди переданных записей и отдает
// её в callback; nil означает отсутствие права доступа. Ненулевая err
// означает сбой запроса метаданных — в этом случае решение не получено
// и прежнее состояние права доступа менять нельзя.
//
// Порядок проверок фиксирован: сначала первая автопродлеваемая запись,
// затем для каждой записи в исходном порядке — триальный период, затем
// текущий платежный цикл. Запись без дескриптора каталога права доступа
// не дает.
func (r *Resolver) Resolve(purchases []models.PurchaseRecord, callback func(record *models.PurchaseRecord, err error)) {
	if len(purchases) == 0 {
		callback(nil, nil)
		return
	}

	var filtered []models.PurchaseRecord
	for _, p := range purchases {
		if r.validIDs[p.ProductID] {
			filtered = append(filtered, p)
		}
	}
	if len(filtered) == 0 {
		callback(nil, nil)
		return
	}

	// первая автопродлеваемая запись побеждает независимо от дат
	for _, p := range filtered {
		if p.IsAutoRenewing {
			record := p
			callback(&record, nil)
			return
		}
	}

	seen := make(map[string]bool)
	var distinctIDs []string
	for _, p := range filtered {
		if !seen[p.ProductID] {
			seen[p.ProductID] = true
			distinctIDs = append(distinctIDs, p.ProductID)
		}
	}

	r.provider.QueryProductDescriptors(distinctIDs, models.KindSubscription,
		func(code billing.ResultCode, descriptors []models.ProductDescriptor) {
			if code != billing.ResultOK {
				r.log.Error("product metadata query failed", slog.String("code", code.String()))
				callback(nil, &queryError{code: code})
				return
			}

			byID := make(map[string]models.ProductDescriptor, len(descriptors))
			for _, d := range descriptors {
				byID[d.ID] = d
			}

			now := r.now()
			for _, p := range filtered {
				d, ok := byID[p.ProductID]
				if !ok {
					continue
				}
				if r.withinPeriod(p, d.TrialPeriod, now) || r.withinPeriod(p, d.BillingPeriod, now) {
					record := p
					callback(&record, nil)
					return
				}
			}
			callback(nil, nil)
		})
}

// withinPeriod сообщает, попадает ли now в окно periodStr от момента покупки.
func (r *Resolver) withinPeriod(p models.PurchaseRecord, periodStr string, now time.Time) bool {
	if periodStr == "" {
		return false
	}
	parsed, err := period.Parse(periodStr)
	if err != nil {
		r.log.Warn("unparsable period in product descriptor",
			slog.String("product_id", p.ProductID), slog.String("period", periodStr), sl.Err(err))
		return false
	}
	expiration := p.PurchaseTime.Add(time.Duration(parsed.TotalDays()) * 24 * time.Hour)
	return now.Before(expiration)
}

type queryError struct {
	code billing.ResultCode
}

func (e *queryError) Error() string {
	return "product metadata query failed: " + e.code.String()
}

// Service последовательно выполняет проходы разрешения и публикует итог
// в приемник. Новый проход не начинается, пока не завершился предыдущий,
// чтобы устаревшее решение не перекрыло более свежее.
type Service struct {
	resolver *Resolver
	sink     Sink
	log      *slog.Logger
	jobs     chan []models.PurchaseRecord
}

// NewService создает Service поверх готового Resolver и приемника сигнала.
func NewService(resolver *Resolver, sink Sink, log *slog.Logger) *Service {
	return &Service{
		resolver: resolver,
		sink:     sink,
		log:      log,
		jobs:     make(chan []models.PurchaseRecord, 16),
	}
}

// Submit ставит набор покупок в очередь на разрешение. Не блокирует
// вызывающего; при переполненной очереди задание отбрасывается с
// записью в лог.
func (s *Service) Submit(purchases []models.PurchaseRecord) {
	select {
	case s.jobs <- purchases:
	default:
		s.log.Warn("resolution queue is full, dropping pass",
			slog.Int("purchases", len(purchases)))
	}
}

// Run обрабатывает очередь проходов до отмены контекста.
func (s *Service) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case purchases := <-s.jobs:
			done := make(chan struct{})
			s.resolver.Resolve(purchases, func(record *models.PurchaseRecord, err error) {
				defer close(done)
				if err != nil {
					// прежнее решение остается в силе
					s.log.Error("resolution pass failed", sl.Err(err))
					return
				}
				s.sink.SetSubscribed(record != nil)
			})
			<-done
		}
	}
}
