package executor

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"nepse-mock-trader/internal/model"
	"nepse-mock-trader/internal/monitoring"
	"nepse-mock-trader/internal/service"
	"nepse-mock-trader/internal/store"
)

// SimulatorConfig 模拟下单配置
type SimulatorConfig struct {
	LotSize           int64   // 最小交易单位
	PriceBandPercent  float64 // 价格区间 (例如 0.02)
	CollateralKey     string  // 存储中的保证金键
	InitialCollateral decimal.Decimal
	MaxRetries        int // 版本冲突时的最大重试次数
}

// DefaultSimulatorConfig 返回默认配置
func DefaultSimulatorConfig() *SimulatorConfig {
	return &SimulatorConfig{
		LotSize:           model.LotSize,
		PriceBandPercent:  model.PriceBandPercent,
		CollateralKey:     model.CollateralKey,
		InitialCollateral: decimal.NewFromFloat(model.DefaultCollateral),
		MaxRetries:        3,
	}
}

// SimulatorExecutor 实现了 Executor 接口: 校验委托, 维护保证金账本和最近委托列表
type SimulatorExecutor struct {
	cfg    *SimulatorConfig
	store  store.CollateralStore
	logger *zap.Logger

	mu sync.RWMutex // 保护账本状态

	collateral store.Balance          // 内存账本, 存储不可用时以此为准
	pending    decimal.Decimal        // 存储不可用期间只记在内存里的变动
	quotes     map[string]model.Quote // 每个品种的最新行情 (价格区间校验依赖它)
	orders     []*model.Order         // 最近委托, 最新的在前

	newID func() string
	now   func() time.Time
}

// NewSimulatorExecutor 构造函数, 从存储中读取 (或初始化) 保证金
func NewSimulatorExecutor(
	ctx context.Context,
	cfg *SimulatorConfig,
	collateralStore store.CollateralStore,
	logger *zap.Logger,
) *SimulatorExecutor {
	if cfg == nil {
		cfg = DefaultSimulatorConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if collateralStore == nil {
		collateralStore = store.NewMemoryStore()
	}

	e := &SimulatorExecutor{
		cfg:    cfg,
		store:  collateralStore,
		logger: logger.With(zap.String("Component", "executor")),
		quotes: make(map[string]model.Quote),
		newID:  uuid.NewString,
		now:    time.Now,
	}

	bal, err := store.LoadOrInit(ctx, collateralStore, cfg.CollateralKey, cfg.InitialCollateral)
	if err != nil {
		// 存储不可用时使用初始值, 版本为 0
		e.logger.Warn("Failed to load collateral, using initial value",
			zap.String("Key", cfg.CollateralKey), zap.Error(err))
		monitoring.RecordStoreError("load")
		bal = store.Balance{Amount: cfg.InitialCollateral}
	}
	e.collateral = bal
	monitoring.SetCollateral(bal.Amount.InexactFloat64())

	e.logger.Info("Collateral loaded",
		zap.String("Amount", bal.Amount.StringFixed(2)),
		zap.Int64("Version", bal.Version))

	return e
}

// SubmitOrder 按顺序校验: 数量 -> 价格 -> 行情 -> 价格区间 -> 保证金
func (e *SimulatorExecutor) SubmitOrder(ctx context.Context, req model.OrderRequest) (*model.Order, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.validateLocked(req); err != nil {
		e.reject(req, err)
		return nil, err
	}

	total := model.OrderTotal(req.Qty, req.Price)

	// 买单冻结保证金, 卖单不涉及保证金
	if req.Side == model.SideBuy {
		if err := e.adjustLocked(ctx, total.Neg()); err != nil {
			e.reject(req, err)
			return nil, err
		}
	}

	order := &model.Order{
		ID:       e.newID(),
		Symbol:   req.Symbol,
		Side:     req.Side,
		Qty:      req.Qty,
		Price:    req.Price,
		Total:    total,
		PlacedAt: e.now(),
		Status:   model.StatusOpen,
	}
	e.orders = append([]*model.Order{order}, e.orders...)

	monitoring.RecordOrderPlaced(order.Symbol, order.Side.String(), total.InexactFloat64())
	e.logger.Info("Order placed",
		zap.String("OrderID", order.ID),
		zap.String("Symbol", order.Symbol),
		zap.String("Side", order.Side.Label()),
		zap.Int64("Qty", order.Qty),
		zap.Float64("Price", order.Price),
		zap.String("Total", total.StringFixed(2)),
		zap.String("Collateral", e.collateral.Amount.StringFixed(2)))

	placed := *order
	return &placed, nil
}

func (e *SimulatorExecutor) validateLocked(req model.OrderRequest) error {
	// 1. 方向
	if req.Side != model.SideBuy && req.Side != model.SideSell {
		return newOrderError(ReasonInvalidSide, ErrInvalidSide, "Error: Invalid Side")
	}

	// 2. 数量必须是整手
	if req.Qty <= 0 || req.Qty%e.cfg.LotSize != 0 {
		return newOrderError(ReasonInvalidQuantity, ErrInvalidQuantity,
			"Error: Quantity must be a multiple of %d", e.cfg.LotSize)
	}

	// 3. 价格
	if math.IsNaN(req.Price) || math.IsInf(req.Price, 0) || req.Price <= 0 {
		return newOrderError(ReasonInvalidPrice, ErrInvalidPrice, "Error: Invalid Price")
	}

	// 4. 价格区间以最新 LTP 为准
	quote, ok := e.quotes[req.Symbol]
	if !ok || quote.LTP <= 0 {
		return newOrderError(ReasonNoQuote, ErrNoQuote, "Error: No price available for %s", req.Symbol)
	}
	band := model.NewPriceBand(quote.LTP, e.cfg.PriceBandPercent)
	if !band.Contains(req.Price) {
		return newOrderError(ReasonPriceOutOfBand, ErrPriceOutOfBand,
			"Error: Price out of band (%s)", band.String())
	}

	return nil
}

func (e *SimulatorExecutor) reject(req model.OrderRequest, err error) {
	reason, _ := ReasonOf(err)
	monitoring.RecordOrderRejected(string(reason))
	e.logger.Info("Order rejected",
		zap.String("Symbol", req.Symbol),
		zap.String("Side", req.Side.Label()),
		zap.Int64("Qty", req.Qty),
		zap.Float64("Price", req.Price),
		zap.String("Reason", string(reason)))
}

// adjustLocked 以 CAS 方式修改保证金. delta 为负时检查余额是否足够.
// 版本冲突时重新读取最新值并重试, 重试用完则拒绝且不改动账本.
// 存储不可用时只更新内存账本, 未落盘的变动记在 pending 中, 下次读到存储时叠加上去.
func (e *SimulatorExecutor) adjustLocked(ctx context.Context, delta decimal.Decimal) error {
	for attempt := 0; ; attempt++ {
		next := e.collateral.Amount.Add(delta)
		if next.IsNegative() {
			return newOrderError(ReasonInsufficientCollateral, ErrInsufficientCollateral,
				"Error: Insufficient Collateral (Req: %s)", service.FormatGrouped(delta.Neg().InexactFloat64()))
		}

		bal, err := e.store.Save(ctx, e.cfg.CollateralKey, next, e.collateral.Version)
		if err == nil {
			e.collateral = bal
			e.pending = decimal.Zero
			monitoring.SetCollateral(bal.Amount.InexactFloat64())
			return nil
		}

		if errors.Is(err, store.ErrVersionConflict) {
			if attempt >= e.cfg.MaxRetries {
				monitoring.RecordStoreError("conflict")
				e.logger.Warn("Collateral kept changing, giving up",
					zap.Int("Attempts", attempt+1),
					zap.String("Delta", delta.StringFixed(2)))
				return newOrderError(ReasonVersionConflict, ErrVersionConflict,
					"Error: Collateral changed elsewhere, please retry")
			}

			latest, loadErr := e.store.Load(ctx, e.cfg.CollateralKey)
			if loadErr == nil {
				e.logger.Warn("Collateral changed by another writer, retrying",
					zap.Int("Attempt", attempt+1),
					zap.Int64("LocalVersion", e.collateral.Version),
					zap.Int64("StoreVersion", latest.Version),
					zap.String("StoreAmount", latest.Amount.StringFixed(2)),
					zap.String("Pending", e.pending.StringFixed(2)))
				e.rebaseLocked(latest)
				continue
			}
			err = loadErr
		}

		// 存储失败: 内存账本继续生效
		monitoring.RecordStoreError("save")
		e.logger.Warn("Failed to persist collateral, keeping in-memory value",
			zap.String("Amount", next.StringFixed(2)), zap.Error(err))
		e.collateral.Amount = next
		e.pending = e.pending.Add(delta)
		monitoring.SetCollateral(next.InexactFloat64())
		return nil
	}
}

// rebaseLocked 采用存储中的记录, 并叠加尚未落盘的本地变动
func (e *SimulatorExecutor) rebaseLocked(latest store.Balance) {
	e.collateral = latest
	e.collateral.Amount = latest.Amount.Add(e.pending)
}

// CancelOrder 撤单; 买单按下单时记录的金额退回保证金
func (e *SimulatorExecutor) CancelOrder(ctx context.Context, orderID string) (*model.Order, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	idx := -1
	for i, o := range e.orders {
		if o.ID == orderID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, newOrderError(ReasonOrderNotFound, ErrOrderNotFound, "Error: Order %s not found", orderID)
	}

	order := e.orders[idx]

	// 退款写不进去时委托保留, 可以再次撤单
	if order.Side == model.SideBuy {
		if err := e.adjustLocked(ctx, order.Total); err != nil {
			return nil, err
		}
	}
	e.orders = append(e.orders[:idx:idx], e.orders[idx+1:]...)

	monitoring.RecordOrderCancelled(order.Side.String())
	e.logger.Info("Order cancelled",
		zap.String("OrderID", order.ID),
		zap.String("Side", order.Side.Label()),
		zap.String("Refund", refundOf(order).StringFixed(2)),
		zap.String("Collateral", e.collateral.Amount.StringFixed(2)))

	cancelled := *order
	return &cancelled, nil
}

func refundOf(o *model.Order) decimal.Decimal {
	if o.Side == model.SideBuy {
		return o.Total
	}
	return decimal.Zero
}

// UpdateQuote 维护最新行情供价格区间校验使用
func (e *SimulatorExecutor) UpdateQuote(q model.Quote) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.quotes[q.Symbol] = q
}

// GetCollateral 返回内存账本中的可用保证金
func (e *SimulatorExecutor) GetCollateral(ctx context.Context) (decimal.Decimal, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.collateral.Amount, nil
}

// Collateral 返回带版本号的保证金记录
func (e *SimulatorExecutor) Collateral() store.Balance {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.collateral
}

// SyncCollateral 采用其他进程写入的新值; 版本号不大于本地时忽略
func (e *SimulatorExecutor) SyncCollateral(bal store.Balance) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if bal.Version <= e.collateral.Version {
		return false
	}

	e.logger.Info("Collateral synced from another writer",
		zap.String("Amount", bal.Amount.StringFixed(2)),
		zap.Int64("Version", bal.Version),
		zap.String("Pending", e.pending.StringFixed(2)))
	e.rebaseLocked(bal)
	monitoring.SetCollateral(e.collateral.Amount.InexactFloat64())
	return true
}

// GetRecentOrders 返回最近委托的副本, 防止外部修改
func (e *SimulatorExecutor) GetRecentOrders() []*model.Order {
	e.mu.RLock()
	defer e.mu.RUnlock()

	orders := make([]*model.Order, len(e.orders))
	for i, o := range e.orders {
		c := *o
		orders[i] = &c
	}
	return orders
}
