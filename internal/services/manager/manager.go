// Package manager владеет единственным логическим соединением с
// коммерческим провайдером: склеивает параллельные попытки подключения,
// держит FIFO-очередь отложенных операций и связывает поток обновлений
// покупок с проходами разрешения права доступа.
package manager

import (
	"log/slog"
	"sync"

	"github.com/andrmlkv/entitlement-engine/internal/billing"
	"github.com/andrmlkv/entitlement-engine/internal/models"
	"github.com/andrmlkv/entitlement-engine/internal/services/entitlement"
)

// State состояние соединения с провайдером.
type State int

const (
	// StateDisconnected соединения нет; следующая операция начнет рукопожатие.
	StateDisconnected State = iota
	// StateConnecting рукопожатие запущено, операции копятся в очереди.
	StateConnecting
	// StateConnected операции выполняются немедленно.
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Config параметры менеджера: действительные идентификаторы подписочных
// товаров и разового товара передаются явно, чтобы ядро не зависело от
// конкретного каталога.
type Config struct {
	SubscriptionProductIDs []string
	OneTimeProductID       string
}

// Manager менеджер жизненного цикла соединения.
type Manager struct {
	mu         sync.Mutex
	state      State
	pending    []func(ok bool)
	connectGen int

	provider     billing.Provider
	entitlements *entitlement.Service
	cfg          Config
	run          billing.Runner
	log          *slog.Logger
}

// New создает менеджер. Провайдер строится фабрикой, чтобы постоянный
// слушатель обновлений покупок был установлен в момент создания.
func New(factory billing.ProviderFactory, cfg Config, run billing.Runner, log *slog.Logger) *Manager {
	m := &Manager{
		cfg: cfg,
		run: run,
		log: log,
	}
	m.provider = factory(m.onPurchasesUpdated)
	return m
}

// BindEntitlements привязывает сервис разрешения права доступа.
// Вызывается один раз при сборке приложения, до Start.
func (m *Manager) BindEntitlements(entitlements *entitlement.Service) {
	m.entitlements = entitlements
}

// QueryProductDescriptors запрашивает метаданные товаров при живом
// соединении. Менеджер выступает поставщиком метаданных для разрешения
// права доступа, гарантируя, что запрос не уйдет без рукопожатия.
// Если рукопожатие сорвалось, onResult получает SERVICE_UNAVAILABLE:
// колбэк вызывается ровно один раз в любом исходе.
func (m *Manager) QueryProductDescriptors(ids []string, kind models.ProductKind, onResult func(code billing.ResultCode, descriptors []models.ProductDescriptor)) {
	m.runWhenConnected(func(ok bool) {
		if !ok {
			onResult(billing.ResultServiceUnavailable, nil)
			return
		}
		m.provider.QueryProductDescriptors(ids, kind, onResult)
	})
}

// State возвращает текущее состояние соединения.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// RunWhenConnected выполняет op при живом соединении: немедленно, если
// соединение установлено; иначе op встает в FIFO-очередь и выполнится
// после успешного рукопожатия. При сорвавшемся рукопожатии op
// отбрасывается: повтор — забота вызывающего. Из op можно повторно
// звать RunWhenConnected — очередь разгружается вне блокировки.
func (m *Manager) RunWhenConnected(op func()) {
	m.runWhenConnected(func(ok bool) {
		if ok {
			op()
		}
	})
}

// runWhenConnected то же, что RunWhenConnected, но op узнает исход
// рукопожатия: ok=false означает, что операция отброшена и соединения
// не будет.
func (m *Manager) runWhenConnected(op func(ok bool)) {
	m.mu.Lock()
	switch m.state {
	case StateConnected:
		m.mu.Unlock()
		op(true)
	case StateConnecting:
		m.pending = append(m.pending, op)
		m.mu.Unlock()
	default:
		m.state = StateConnecting
		m.pending = append(m.pending, op)
		m.connectGen++
		gen := m.connectGen
		m.mu.Unlock()
		m.provider.Connect(func(code billing.ResultCode) {
			m.onConnectResult(gen, code)
		}, m.onDisconnected)
	}
}

// Start подключается и сажает начальное состояние права доступа на
// локально закешированные покупки; если среди них нет ни одной по
// действительному подписочному товару, запускается восстановление
// истории покупок.
func (m *Manager) Start() {
	m.RunWhenConnected(func() {
		m.run(func() {
			purchases := m.provider.QueryOwnedPurchases(models.KindSubscription)
			if !m.containsValidProduct(purchases) {
				m.RestorePurchases()
				return
			}
			m.entitlements.Submit(purchases)
		})
	})
}

func (m *Manager) containsValidProduct(purchases []models.PurchaseRecord) bool {
	for _, p := range purchases {
		for _, id := range m.cfg.SubscriptionProductIDs {
			if p.ProductID == id {
				return true
			}
		}
	}
	return false
}

// RestorePurchases запрашивает историю покупок у провайдера и запускает
// проход разрешения. Сбой запроса тихий: право доступа не меняется.
func (m *Manager) RestorePurchases() {
	m.RunWhenConnected(func() {
		m.provider.QueryPurchaseHistory(models.KindSubscription,
			func(code billing.ResultCode, purchases []models.PurchaseRecord) {
				if code != billing.ResultOK {
					m.log.Error("purchase history query failed", slog.String("code", code.String()))
					return
				}
				m.entitlements.Submit(purchases)
			})
	})
}

// InitiatePurchase запускает поток покупки. Разовый товар из конфига
// покупается как inapp, все остальные идентификаторы — как подписки.
// Итог придет через постоянный слушатель обновлений покупок.
func (m *Manager) InitiatePurchase(productID string) {
	kind := models.KindSubscription
	if productID != "" && productID == m.cfg.OneTimeProductID {
		kind = models.KindInApp
	}
	m.RunWhenConnected(func() {
		m.provider.LaunchPurchaseFlow(productID, kind)
	})
}

// Shutdown разрывает соединение; повторный вызов безопасен. Вызов во
// время рукопожатия отбрасывает очередь и обесценивает его итог: даже
// успешный ответ провайдера уже не переведет менеджер в Connected.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	switch m.state {
	case StateDisconnected:
		m.mu.Unlock()
		return
	case StateConnecting:
		m.connectGen++
		queued := m.pending
		m.pending = nil
		m.state = StateDisconnected
		m.mu.Unlock()
		m.provider.Disconnect()
		m.log.Info("shutdown during handshake", slog.Int("dropped_ops", len(queued)))
		for _, op := range queued {
			op(false)
		}
		return
	default:
		m.state = StateDisconnected
		m.mu.Unlock()
		m.provider.Disconnect()
	}
}

// onConnectResult завершает рукопожатие. При успехе очередь атомарно
// подменяется пустой и выполняется в порядке постановки уже вне
// блокировки. При неудаче очередь разгружается с ok=false, чтобы
// каждая отложенная операция могла сообщить вызывающему о сбое.
// Итог рукопожатия, обесцененного Shutdown, игнорируется.
func (m *Manager) onConnectResult(gen int, code billing.ResultCode) {
	m.mu.Lock()
	if gen != m.connectGen {
		m.mu.Unlock()
		m.log.Warn("stale handshake result ignored", slog.String("code", code.String()))
		return
	}
	ok := code == billing.ResultOK
	if ok {
		m.state = StateConnected
	} else {
		m.state = StateDisconnected
	}
	queued := m.pending
	m.pending = nil
	m.mu.Unlock()

	if !ok {
		m.log.Error("connect handshake failed",
			slog.String("code", code.String()), slog.Int("dropped_ops", len(queued)))
		for _, op := range queued {
			op(false)
		}
		return
	}

	m.log.Info("provider connected", slog.Int("queued_ops", len(queued)))
	for _, op := range queued {
		op(true)
	}
}

// onDisconnected обрабатывает разрыв со стороны провайдера. Повторное
// подключение не запускается: оно произойдет лениво при следующей операции.
func (m *Manager) onDisconnected() {
	m.mu.Lock()
	if m.state == StateConnected {
		m.state = StateDisconnected
	}
	m.mu.Unlock()
	m.log.Warn("provider disconnected")
}

// onPurchasesUpdated постоянный слушатель обновлений покупок: покрывает
// и покупки, начатые пользователем, и внеполосные восстановления.
func (m *Manager) onPurchasesUpdated(code billing.ResultCode, purchases []models.PurchaseRecord) {
	switch code {
	case billing.ResultOK:
		if len(purchases) == 0 {
			return
		}
		m.entitlements.Submit(purchases)
	case billing.ResultItemAlreadyOwned:
		m.log.Info("item already owned, restoring purchases")
		m.RestorePurchases()
	case billing.ResultUserCanceled:
		m.log.Info("purchase flow canceled by user")
	default:
		m.log.Error("purchase update failed", slog.String("code", code.String()))
	}
}
