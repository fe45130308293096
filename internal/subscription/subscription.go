// Package subscription хранит наблюдаемый булев сигнал "подписан / не
// подписан" — итог каждого прохода разрешения права доступа.
package subscription

import "sync"

// Repository потокобезопасный держатель сигнала подписки. Реализует
// приемник, который обновляет менеджер после каждого прохода разрешения.
type Repository struct {
	mu         sync.RWMutex
	subscribed bool
	watchers   []chan bool
}

// NewRepository создает репозиторий с начальным состоянием "не подписан".
func NewRepository() *Repository {
	return &Repository{}
}

// SetSubscribed публикует новое состояние подписки и уведомляет
// наблюдателей. Уведомление не блокирует: отставший наблюдатель
// пропускает промежуточные значения.
func (r *Repository) SetSubscribed(subscribed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subscribed = subscribed
	for _, w := range r.watchers {
		select {
		case w <- subscribed:
		default:
		}
	}
}

// IsSubscribed возвращает текущее состояние подписки.
func (r *Repository) IsSubscribed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.subscribed
}

// Watch возвращает канал, в который публикуются изменения состояния.
func (r *Repository) Watch() <-chan bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	w := make(chan bool, 1)
	r.watchers = append(r.watchers, w)
	return w
}
