// Package billing определяет контракт коммерческого провайдера: коды
// результатов, слушатель обновлений покупок и интерфейс Provider,
// который реализуют и адаптер реального провайдера, и мок-провайдер.
package billing

import (
	"github.com/andrmlkv/entitlement-engine/internal/models"
)

// ResultCode код результата операции провайдера.
type ResultCode int

const (
	// ResultOK операция выполнена успешно.
	ResultOK ResultCode = iota
	// ResultUserCanceled пользователь отменил поток покупки.
	ResultUserCanceled
	// ResultServiceUnavailable провайдер недоступен.
	ResultServiceUnavailable
	// ResultItemAlreadyOwned товар уже куплен; инициирует восстановление покупок.
	ResultItemAlreadyOwned
	// ResultItemUnavailable товар отсутствует в каталоге.
	ResultItemUnavailable
	// ResultError прочая ошибка провайдера.
	ResultError
)

func (c ResultCode) String() string {
	switch c {
	case ResultOK:
		return "OK"
	case ResultUserCanceled:
		return "USER_CANCELED"
	case ResultServiceUnavailable:
		return "SERVICE_UNAVAILABLE"
	case ResultItemAlreadyOwned:
		return "ITEM_ALREADY_OWNED"
	case ResultItemUnavailable:
		return "ITEM_UNAVAILABLE"
	default:
		return "ERROR"
	}
}

// PurchasesUpdatedFunc постоянный слушатель обновлений покупок.
// Провайдер вызывает его асинхронно и для покупок, начатых пользователем,
// и для внеполосных восстановлений.
type PurchasesUpdatedFunc func(code ResultCode, purchases []models.PurchaseRecord)

// Runner выполняет единицу работы, возможно, вне контекста вызывающего.
type Runner func(fn func())

// Go Runner по умолчанию: отдельная горутина на каждую единицу работы.
func Go(fn func()) { go fn() }

// Provider интерфейс коммерческого провайдера.
//
// Connect запускает асинхронное рукопожатие; onResult вызывается ровно один
// раз, onDisconnected — при каждом разрыве уже установленного соединения.
// QueryOwnedPurchases читает локально закешированные покупки и потому
// синхронен; остальные запросы отдают результат через колбэк.
// LaunchPurchaseFlow сообщает итог потока покупки через постоянный
// слушатель обновлений, установленный при создании провайдера.
type Provider interface {
	Connect(onResult func(code ResultCode), onDisconnected func())
	Disconnect()
	QueryProductDescriptors(ids []string, kind models.ProductKind, onResult func(code ResultCode, descriptors []models.ProductDescriptor))
	QueryOwnedPurchases(kind models.ProductKind) []models.PurchaseRecord
	QueryPurchaseHistory(kind models.ProductKind, onResult func(code ResultCode, purchases []models.PurchaseRecord))
	LaunchPurchaseFlow(productID string, kind models.ProductKind)
}

// ProviderFactory создаёт провайдера с установленным постоянным слушателем
// обновлений покупок.
type ProviderFactory func(onPurchasesUpdated PurchasesUpdatedFunc) Provider
