package store

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// MemoryStore 进程内实现, 用于测试以及未配置 StorePath 的情况
type MemoryStore struct {
	mu   sync.Mutex
	data map[string]Balance
	now  func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: make(map[string]Balance),
		now:  time.Now,
	}
}

func (m *MemoryStore) Load(ctx context.Context, key string) (Balance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	bal, ok := m.data[key]
	if !ok {
		return Balance{}, ErrNotFound
	}
	return bal, nil
}

func (m *MemoryStore) Save(ctx context.Context, key string, amount decimal.Decimal, expectedVersion int64) (Balance, error) {
	if err := ctx.Err(); err != nil {
		return Balance{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	current := m.data[key] // 不存在时 Version 为 0
	if current.Version != expectedVersion {
		return Balance{}, ErrVersionConflict
	}

	next := Balance{
		Amount:    amount,
		Version:   expectedVersion + 1,
		UpdatedAt: m.now(),
	}
	m.data[key] = next
	return next, nil
}

func (m *MemoryStore) Close() error {
	return nil
}
