package broker

import (
	"time"

	"github.com/shopspring/decimal"

	"nepse-mock-trader/internal/model"
	"nepse-mock-trader/internal/store"
)

// 事件主题 (发布时会加上配置的前缀)
const (
	SubjectOrderPlaced       = "order.placed"
	SubjectOrderCancelled    = "order.cancelled"
	SubjectCollateralUpdated = "collateral.updated"
)

// OrderEvent 下单或撤单事件
type OrderEvent struct {
	Order  model.Order `json:"order"`
	Origin string      `json:"origin"`
	At     time.Time   `json:"at"`
}

// CollateralEvent 保证金变更事件, 接收方按 Version 判断新旧
type CollateralEvent struct {
	Amount    decimal.Decimal `json:"amount"`
	Version   int64           `json:"version"`
	UpdatedAt time.Time       `json:"updatedAt"`
	Origin    string          `json:"origin"`
}

// NewCollateralEvent 由存储记录构造事件
func NewCollateralEvent(bal store.Balance, origin string) CollateralEvent {
	return CollateralEvent{
		Amount:    bal.Amount,
		Version:   bal.Version,
		UpdatedAt: bal.UpdatedAt,
		Origin:    origin,
	}
}

// Balance 转换回存储记录
func (e CollateralEvent) Balance() store.Balance {
	return store.Balance{
		Amount:    e.Amount,
		Version:   e.Version,
		UpdatedAt: e.UpdatedAt,
	}
}

// Publisher 跨进程事件总线
type Publisher interface {
	PublishOrder(subject string, evt OrderEvent) error
	PublishCollateral(evt CollateralEvent) error

	// SubscribeCollateral 订阅其他进程发布的保证金变更 (自己发布的会被过滤)
	SubscribeCollateral(fn func(CollateralEvent)) (cancel func(), err error)

	Close() error
}

// NoopPublisher 在未启用 NATS 时使用
type NoopPublisher struct{}

func (NoopPublisher) PublishOrder(string, OrderEvent) error { return nil }

func (NoopPublisher) PublishCollateral(CollateralEvent) error { return nil }

func (NoopPublisher) SubscribeCollateral(func(CollateralEvent)) (func(), error) {
	return func() {}, nil
}

func (NoopPublisher) Close() error { return nil }
