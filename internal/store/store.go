package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound 键不存在
	ErrNotFound = errors.New("key not found")

	// ErrVersionConflict 写入时版本号与存储中的不一致 (其他进程先写了)
	ErrVersionConflict = errors.New("version conflict")
)

// Balance 保证金存储中的一条记录
type Balance struct {
	Amount    decimal.Decimal
	Version   int64 // 每次写入加 1, 0 表示尚未写入
	UpdatedAt time.Time
}

// CollateralStore 带版本号的键值存储, 多个进程通过它共享保证金
type CollateralStore interface {
	// Load 读取当前值, 键不存在时返回 ErrNotFound
	Load(ctx context.Context, key string) (Balance, error)

	// Save 比较并交换: 只有当前版本等于 expectedVersion 时才写入, 否则返回 ErrVersionConflict.
	// expectedVersion 为 0 表示键必须不存在.
	Save(ctx context.Context, key string, amount decimal.Decimal, expectedVersion int64) (Balance, error)

	Close() error
}

// ParseAmount 兼容仪表盘写入的浮点字符串, 如 "49926000" 或 "4.9926e+07"
func ParseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid collateral value %q: %w", s, err)
	}
	return d, nil
}

// LoadOrInit 读取保证金, 不存在时以 initial 初始化
func LoadOrInit(ctx context.Context, s CollateralStore, key string, initial decimal.Decimal) (Balance, error) {
	bal, err := s.Load(ctx, key)
	if err == nil {
		return bal, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Balance{}, err
	}

	bal, err = s.Save(ctx, key, initial, 0)
	if errors.Is(err, ErrVersionConflict) {
		// 另一个进程刚刚完成初始化
		return s.Load(ctx, key)
	}
	return bal, err
}
