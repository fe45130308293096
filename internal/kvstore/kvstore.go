// Package kvstore предоставляет строковое key-value хранилище для
// персистентных коллекций мок-провайдера. Контракт минимальный:
// последняя запись побеждает, транзакций нет.
package kvstore

import (
	"context"
	"sync"
)

// Store контракт key-value хранилища.
type Store interface {
	// Get возвращает значение по ключу и признак его наличия.
	Get(ctx context.Context, key string) (string, bool, error)
	// Put сохраняет значение по ключу, перезаписывая существующее.
	Put(ctx context.Context, key, value string) error
	// Remove удаляет ключ; отсутствие ключа не является ошибкой.
	Remove(ctx context.Context, key string) error
}

// Memory хранилище в памяти процесса. Используется по умолчанию
// в разработке и тестах.
type Memory struct {
	mu   sync.RWMutex
	data map[string]string
}

// NewMemory создает пустое хранилище в памяти.
func NewMemory() *Memory {
	return &Memory{data: make(map[string]string)}
}

// Get возвращает значение по ключу и признак его наличия.
func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok, nil
}

// Put сохраняет значение по ключу.
func (m *Memory) Put(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

// Remove удаляет ключ.
func (m *Memory) Remove(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}
