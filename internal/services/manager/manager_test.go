package manager

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andrmlkv/entitlement-engine/internal/billing"
	"github.com/andrmlkv/entitlement-engine/internal/models"
	"github.com/andrmlkv/entitlement-engine/internal/services/entitlement"
)

// providerStub управляемый провайдер: рукопожатие завершается вручную
// вызовом completeConnect.
type providerStub struct {
	connectCalls    int
	connectStarted  chan struct{}
	onResult        func(code billing.ResultCode)
	onDisconnected  func()
	disconnectCalls int

	owned        []models.PurchaseRecord
	historyCalls int
	history      []models.PurchaseRecord
	historyCode  billing.ResultCode

	descriptors   []models.ProductDescriptor
	launched      []string
	launchedKinds []models.ProductKind
}

func (p *providerStub) Connect(onResult func(code billing.ResultCode), onDisconnected func()) {
	p.connectCalls++
	p.onResult = onResult
	p.onDisconnected = onDisconnected
	if p.connectStarted != nil {
		p.connectStarted <- struct{}{}
	}
}

func (p *providerStub) completeConnect(code billing.ResultCode) {
	p.onResult(code)
}

func (p *providerStub) Disconnect() { p.disconnectCalls++ }

func (p *providerStub) QueryProductDescriptors(_ []string, _ models.ProductKind, onResult func(code billing.ResultCode, descriptors []models.ProductDescriptor)) {
	onResult(billing.ResultOK, p.descriptors)
}

func (p *providerStub) QueryOwnedPurchases(models.ProductKind) []models.PurchaseRecord {
	return p.owned
}

func (p *providerStub) QueryPurchaseHistory(_ models.ProductKind, onResult func(code billing.ResultCode, purchases []models.PurchaseRecord)) {
	p.historyCalls++
	onResult(p.historyCode, p.history)
}

func (p *providerStub) LaunchPurchaseFlow(productID string, kind models.ProductKind) {
	p.launched = append(p.launched, productID)
	p.launchedKinds = append(p.launchedKinds, kind)
}

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

func syncRunner(fn func()) { fn() }

func newTestManager(t *testing.T) (*Manager, *providerStub) {
	t.Helper()
	stub := &providerStub{}
	m := New(func(billing.PurchasesUpdatedFunc) billing.Provider { return stub },
		Config{SubscriptionProductIDs: []string{"sub1"}, OneTimeProductID: "p1"}, syncRunner, newNoopLogger())
	return m, stub
}

func TestManager_CoalescesConnectAttempts(t *testing.T) {
	m, stub := newTestManager(t)

	var order []int
	for i := 1; i <= 3; i++ {
		n := i
		m.RunWhenConnected(func() { order = append(order, n) })
	}

	// три запроса — одно рукопожатие, операции ждут в очереди
	assert.Equal(t, 1, stub.connectCalls)
	assert.Empty(t, order)
	assert.Equal(t, StateConnecting, m.State())

	stub.completeConnect(billing.ResultOK)

	assert.Equal(t, StateConnected, m.State())
	assert.Equal(t, []int{1, 2, 3}, order)

	// после подключения операции выполняются немедленно
	m.RunWhenConnected(func() { order = append(order, 4) })
	assert.Equal(t, []int{1, 2, 3, 4}, order)
	assert.Equal(t, 1, stub.connectCalls)
}

func TestManager_FailedHandshakeDropsQueue(t *testing.T) {
	m, stub := newTestManager(t)

	invoked := 0
	m.RunWhenConnected(func() { invoked++ })
	m.RunWhenConnected(func() { invoked++ })

	stub.completeConnect(billing.ResultServiceUnavailable)

	// очередь отброшена, состояние вернулось в "отключено"
	assert.Zero(t, invoked)
	assert.Equal(t, StateDisconnected, m.State())

	// следующая операция начинает новое рукопожатие
	m.RunWhenConnected(func() { invoked++ })
	assert.Equal(t, 2, stub.connectCalls)
	stub.completeConnect(billing.ResultOK)
	assert.Equal(t, 1, invoked)
}

func TestManager_ReentrantRunWhenConnected(t *testing.T) {
	m, stub := newTestManager(t)

	var order []string
	m.RunWhenConnected(func() {
		order = append(order, "outer")
		m.RunWhenConnected(func() { order = append(order, "inner") })
	})

	stub.completeConnect(billing.ResultOK)
	assert.Equal(t, []string{"outer", "inner"}, order)
}

func TestManager_ProviderDisconnectIsLazy(t *testing.T) {
	m, stub := newTestManager(t)

	m.RunWhenConnected(func() {})
	stub.completeConnect(billing.ResultOK)
	require.Equal(t, StateConnected, m.State())

	stub.onDisconnected()
	assert.Equal(t, StateDisconnected, m.State())
	// повторное подключение не запускается само
	assert.Equal(t, 1, stub.connectCalls)

	m.RunWhenConnected(func() {})
	assert.Equal(t, 2, stub.connectCalls)
}

func TestManager_DroppedMetadataQueryReportsUnavailable(t *testing.T) {
	m, stub := newTestManager(t)

	gotCode := billing.ResultOK
	m.QueryProductDescriptors([]string{"sub1"}, models.KindSubscription,
		func(code billing.ResultCode, descriptors []models.ProductDescriptor) {
			gotCode = code
			assert.Nil(t, descriptors)
		})

	// сорвавшееся рукопожатие не глотает колбэк, а сообщает об отказе
	stub.completeConnect(billing.ResultServiceUnavailable)
	assert.Equal(t, billing.ResultServiceUnavailable, gotCode)
}

func TestManager_ShutdownDuringHandshake(t *testing.T) {
	m, stub := newTestManager(t)

	invoked := 0
	m.RunWhenConnected(func() { invoked++ })
	require.Equal(t, StateConnecting, m.State())

	m.Shutdown()
	assert.Equal(t, StateDisconnected, m.State())
	assert.Equal(t, 1, stub.disconnectCalls)

	// запоздавший успех обесцененного рукопожатия игнорируется
	stub.completeConnect(billing.ResultOK)
	assert.Equal(t, StateDisconnected, m.State())
	assert.Zero(t, invoked)

	// следующая операция начинает новое рукопожатие
	m.RunWhenConnected(func() { invoked++ })
	assert.Equal(t, 2, stub.connectCalls)
	stub.completeConnect(billing.ResultOK)
	assert.Equal(t, 1, invoked)
}

func TestManager_ShutdownIdempotent(t *testing.T) {
	m, stub := newTestManager(t)

	m.Shutdown()
	assert.Zero(t, stub.disconnectCalls)

	m.RunWhenConnected(func() {})
	stub.completeConnect(billing.ResultOK)

	m.Shutdown()
	m.Shutdown()
	assert.Equal(t, 1, stub.disconnectCalls)
	assert.Equal(t, StateDisconnected, m.State())
}

func newBoundManager(t *testing.T, stub *providerStub) (*Manager, chan bool) {
	t.Helper()
	m := New(func(billing.PurchasesUpdatedFunc) billing.Provider { return stub },
		Config{SubscriptionProductIDs: []string{"sub1"}}, syncRunner, newNoopLogger())

	resolver := entitlement.NewResolver(m, []string{"sub1"}, newNoopLogger())
	sink := &sinkStub{ch: make(chan bool, 4)}
	svc := entitlement.NewService(resolver, sink, newNoopLogger())
	m.BindEntitlements(svc)

	ctx := t.Context()
	go func() { _ = svc.Run(ctx) }()
	return m, sink.ch
}

type sinkStub struct{ ch chan bool }

func (s *sinkStub) SetSubscribed(v bool) { s.ch <- v }

func TestManager_StartSeedsFromCachedPurchases(t *testing.T) {
	stub := &providerStub{
		owned: []models.PurchaseRecord{{
			ProductID:      "sub1",
			PurchaseTime:   time.Now(),
			Token:          "t1",
			IsAutoRenewing: true,
			Signature:      "debug-signature-sub1-subs",
		}},
	}
	m, signal := newBoundManager(t, stub)

	m.Start()
	stub.completeConnect(billing.ResultOK)

	select {
	case got := <-signal:
		assert.True(t, got)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for entitlement signal")
	}
	assert.Zero(t, stub.historyCalls)
}

func TestManager_StartRestoresWhenCacheEmpty(t *testing.T) {
	stub := &providerStub{historyCode: billing.ResultOK}
	m, signal := newBoundManager(t, stub)

	m.Start()
	stub.completeConnect(billing.ResultOK)

	assert.Equal(t, 1, stub.historyCalls)

	select {
	case got := <-signal:
		// пустая история — права доступа нет
		assert.False(t, got)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for entitlement signal")
	}
}

func TestManager_AlreadyOwnedTriggersSingleRestore(t *testing.T) {
	stub := &providerStub{historyCode: billing.ResultOK}
	m, _ := newBoundManager(t, stub)

	m.RunWhenConnected(func() {})
	stub.completeConnect(billing.ResultOK)

	m.onPurchasesUpdated(billing.ResultItemAlreadyOwned, nil)
	assert.Equal(t, 1, stub.historyCalls)
}

func TestManager_QueryFailuresLeaveEntitlementUnchanged(t *testing.T) {
	stub := &providerStub{historyCode: billing.ResultError}
	m, signal := newBoundManager(t, stub)

	m.RunWhenConnected(func() {})
	stub.completeConnect(billing.ResultOK)

	// сбойное восстановление не публикует решение
	m.RestorePurchases()
	// отмена пользователем не трогает состояние
	m.onPurchasesUpdated(billing.ResultUserCanceled, nil)

	// успешное обновление публикует
	m.onPurchasesUpdated(billing.ResultOK, []models.PurchaseRecord{{
		ProductID:      "sub1",
		PurchaseTime:   time.Now(),
		Token:          "t2",
		IsAutoRenewing: true,
		Signature:      "debug-signature-sub1-subs",
	}})

	select {
	case got := <-signal:
		assert.True(t, got)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for entitlement signal")
	}
}

func TestManager_ResolutionSurvivesFailedHandshake(t *testing.T) {
	stub := &providerStub{connectStarted: make(chan struct{}, 2)}
	m, signal := newBoundManager(t, stub)

	// проход, которому нужны метаданные, встает в очередь за рукопожатием
	m.onPurchasesUpdated(billing.ResultOK, []models.PurchaseRecord{{
		ProductID:    "sub1",
		PurchaseTime: time.Now(),
		Token:        "t1",
		Signature:    "debug-signature-sub1-subs",
	}})
	select {
	case <-stub.connectStarted:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for handshake")
	}
	stub.completeConnect(billing.ResultServiceUnavailable)

	// сорвавшееся рукопожатие не вешает воркер: свежая покупка на новом
	// соединении публикуется
	m.RunWhenConnected(func() {})
	select {
	case <-stub.connectStarted:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for second handshake")
	}
	stub.completeConnect(billing.ResultOK)

	m.onPurchasesUpdated(billing.ResultOK, []models.PurchaseRecord{{
		ProductID:      "sub1",
		PurchaseTime:   time.Now(),
		Token:          "t2",
		IsAutoRenewing: true,
		Signature:      "debug-signature-sub1-subs",
	}})

	select {
	case got := <-signal:
		assert.True(t, got)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for entitlement signal")
	}
}

func TestManager_InitiatePurchaseWaitsForConnection(t *testing.T) {
	m, stub := newTestManager(t)

	m.InitiatePurchase("sub1")
	assert.Empty(t, stub.launched)

	stub.completeConnect(billing.ResultOK)
	assert.Equal(t, []string{"sub1"}, stub.launched)
}

func TestManager_InitiatePurchaseOneTimeProductKind(t *testing.T) {
	m, stub := newTestManager(t)

	m.InitiatePurchase("sub1")
	m.InitiatePurchase("p1")
	stub.completeConnect(billing.ResultOK)

	assert.Equal(t, []string{"sub1", "p1"}, stub.launched)
	assert.Equal(t, []models.ProductKind{models.KindSubscription, models.KindInApp}, stub.launchedKinds)
}
