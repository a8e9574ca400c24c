package executor

import (
	"context"

	"github.com/shopspring/decimal"

	"nepse-mock-trader/internal/model"
	"nepse-mock-trader/internal/store"
)

// Executor 是下单执行器的通用接口
type Executor interface {
	// 校验并登记一笔委托, 买单会冻结保证金
	SubmitOrder(ctx context.Context, req model.OrderRequest) (*model.Order, error)

	// 撤单, 买单退回冻结的保证金
	CancelOrder(ctx context.Context, orderID string) (*model.Order, error)

	// 更新用于价格区间校验的最新行情
	UpdateQuote(q model.Quote)

	// 查询可用保证金
	GetCollateral(ctx context.Context) (decimal.Decimal, error)

	// 带版本号的保证金记录, 用于发布变更事件
	Collateral() store.Balance

	// 最近委托, 最新的在前
	GetRecentOrders() []*model.Order

	// 接收其他进程写入的保证金 (版本号更大时生效)
	SyncCollateral(bal store.Balance) bool
}
