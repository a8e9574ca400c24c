package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	// 最小交易单位 (股)
	LotSize int64 = 10

	// 新订单价格必须落在 LTP 的 ±2% 之内
	PriceBandPercent = 0.02

	// 与仪表盘共享的保证金存储键
	CollateralKey = "userCollateral"

	// 初始保证金 NPR 5 Crore
	DefaultCollateral = 50000000.00

	// 卖出快捷比例使用的模拟持仓
	MockHolding int64 = 1000
)

// Side 买卖方向
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

func (s Side) String() string {
	return string(s)
}

// Label 用于界面显示的大写方向, 如 "BUY"
func (s Side) Label() string {
	return strings.ToUpper(string(s))
}

// ParseSide 解析买卖方向 (大小写不敏感)
func ParseSide(s string) (Side, error) {
	switch Side(strings.ToLower(strings.TrimSpace(s))) {
	case SideBuy:
		return SideBuy, nil
	case SideSell:
		return SideSell, nil
	}
	return "", fmt.Errorf("unknown side: %q", s)
}

// TradeMode 只决定哪些下单面板可见
type TradeMode string

const (
	ModeBuy  TradeMode = "buy"
	ModeSell TradeMode = "sell"
	ModeDual TradeMode = "dual"
)

// ParseTradeMode 解析交易模式
func ParseTradeMode(s string) (TradeMode, error) {
	switch TradeMode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeBuy:
		return ModeBuy, nil
	case ModeSell:
		return ModeSell, nil
	case ModeDual:
		return ModeDual, nil
	}
	return "", fmt.Errorf("unknown trade mode: %q", s)
}

// Shows 判断该模式下某一方向的面板是否可见
func (m TradeMode) Shows(side Side) bool {
	switch m {
	case ModeDual:
		return true
	case ModeBuy:
		return side == SideBuy
	case ModeSell:
		return side == SideSell
	}
	return false
}

// OrderStatus 订单状态 (模拟盘中订单不会成交, 始终为 OPEN)
type OrderStatus string

const (
	StatusOpen OrderStatus = "OPEN"
)

// OrderRequest 下单请求
type OrderRequest struct {
	Symbol string
	Side   Side
	Qty    int64
	Price  float64
}

// Order 最近委托列表中的一条记录
type Order struct {
	ID       string          `json:"id"`
	Symbol   string          `json:"symbol"`
	Side     Side            `json:"side"`
	Qty      int64           `json:"qty"`
	Price    float64         `json:"price"`
	Total    decimal.Decimal `json:"total"` // qty * price, 撤单时按此金额退回
	PlacedAt time.Time       `json:"placedAt"`
	Status   OrderStatus     `json:"status"`
}

func (o Order) String() string {
	return fmt.Sprintf("%s %d %s %s %s",
		o.Side.Label(), o.Qty, decimal.NewFromFloat(o.Price).String(), o.Total.StringFixed(2), o.Status)
}

// OrderTotal 计算 qty * price 的精确金额
func OrderTotal(qty int64, price float64) decimal.Decimal {
	return decimal.NewFromInt(qty).Mul(decimal.NewFromFloat(price))
}

// PriceBand 价格限制区间
type PriceBand struct {
	Lower float64
	Upper float64

	// 比较用精确边界, 740*0.98 在浮点下不等于 725.2
	lower decimal.Decimal
	upper decimal.Decimal
}

// NewPriceBand 以 ltp 为中心计算 ±pct 的价格区间
func NewPriceBand(ltp, pct float64) PriceBand {
	center := decimal.NewFromFloat(ltp)
	width := decimal.NewFromFloat(pct)
	lower := center.Mul(decimal.NewFromInt(1).Sub(width))
	upper := center.Mul(decimal.NewFromInt(1).Add(width))

	return PriceBand{
		Lower: lower.InexactFloat64(),
		Upper: upper.InexactFloat64(),
		lower: lower,
		upper: upper,
	}
}

// Contains 区间两端都是闭区间, 按十进制精确比较
func (b PriceBand) Contains(price float64) bool {
	p := decimal.NewFromFloat(price)
	return p.GreaterThanOrEqual(b.lower) && p.LessThanOrEqual(b.upper)
}

func (b PriceBand) String() string {
	return fmt.Sprintf("%.1f - %.1f", b.Lower, b.Upper)
}
