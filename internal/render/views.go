package render

import (
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"

	"nepse-mock-trader/internal/model"
	"nepse-mock-trader/internal/service"
	"nepse-mock-trader/pkg/fees"
	"nepse-mock-trader/pkg/ta"
)

const placeholder = "--"

// TickerView 行情头部
type TickerView struct {
	Symbol    string `json:"symbol"`
	LTP       string `json:"ltp"`
	Change    string `json:"change"`
	Direction string `json:"direction"` // up / down / flat
	Open      string `json:"open"`
	HighLow   string `json:"highLow"`
	PrevClose string `json:"prevClose"`
	AvgPrice  string `json:"avgPrice"`
	Volume    string `json:"volume"`
	Turnover  string `json:"turnover"`
	SMA       string `json:"sma"`
	RSI       string `json:"rsi"`
}

// DepthRow 盘口中的一档
type DepthRow struct {
	Price      string `json:"price"`
	Volume     int64  `json:"volume"`
	Orders     int    `json:"orders"`
	Cumulative int64  `json:"cumulative"` // 累计量, 用于深度图
}

type DepthView struct {
	Symbol string     `json:"symbol"`
	Bids   []DepthRow `json:"bids"`
	Asks   []DepthRow `json:"asks"`
}

type BandView struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
	Text  string  `json:"text"`
}

type CollateralView struct {
	Amount string `json:"amount"`
	Text   string `json:"text"`
}

type OrderRow struct {
	ID     string `json:"id"`
	Time   string `json:"time"`
	Symbol string `json:"symbol"`
	Side   string `json:"side"`
	Qty    int64  `json:"qty"`
	Price  string `json:"price"`
	Total  string `json:"total"`
	Status string `json:"status"`
	Text   string `json:"text"`
}

type OrdersView struct {
	Rows  []OrderRow `json:"rows"`
	Empty string     `json:"empty,omitempty"`
}

type ModeView struct {
	Mode     string `json:"mode"`
	ShowBuy  bool   `json:"showBuy"`
	ShowSell bool   `json:"showSell"`
}

// ChargesView 下单面板上的费用预估
type ChargesView struct {
	Commission string `json:"commission"`
	SebonFee   string `json:"sebonFee"`
	DPCharge   string `json:"dpCharge"`
	Net        string `json:"net"` // 买入为应付, 卖出为应收
	WACC       string `json:"wacc"`
}

type RiskRewardView struct {
	TargetPct   float64 `json:"targetPct"`
	StopPct     float64 `json:"stopPct"`
	TargetPrice string  `json:"targetPrice"`
	StopPrice   string  `json:"stopPrice"`
	Ratio       string  `json:"ratio"`
	LossWidth   float64 `json:"lossWidth"`
	ProfitWidth float64 `json:"profitWidth"`
	Disabled    bool    `json:"disabled"`
}

type TicketView struct {
	Side       string          `json:"side"`
	Visible    bool            `json:"visible"`
	Qty        int64           `json:"qty"`
	Price      float64         `json:"price"`
	Total      string          `json:"total"`
	Charges    *ChargesView    `json:"charges,omitempty"`
	RiskReward *RiskRewardView `json:"riskReward,omitempty"`
}

type ToastKind string

const (
	ToastSuccess ToastKind = "success"
	ToastError   ToastKind = "error"
)

type Toast struct {
	ID      uint64    `json:"id"`
	Message string    `json:"message"`
	Kind    ToastKind `json:"kind"`
	Visible bool      `json:"visible"`
}

// FormatNumber 与页面一致: 不补零, 742.5 -> "742.5", 752 -> "752"
func FormatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// FormatChange 如 "+8.0 (1.09%)"
func FormatChange(q model.Quote) string {
	change := q.Change()
	sign := ""
	if change > 0 {
		sign = "+"
	}
	return fmt.Sprintf("%s%.1f (%.2f%%)", sign, change, q.ChangePercent())
}

// FormatLakhs 成交额以 "L" (十万) 为单位
func FormatLakhs(v float64) string {
	return fmt.Sprintf("%.2fL", v/100000)
}

// FormatNPR 如 "NPR 4,99,26,000.00"
func FormatNPR(amount decimal.Decimal) string {
	return "NPR " + service.FormatIndian(amount.InexactFloat64())
}

func NewTickerView(q model.Quote, ind *ta.Indicators) TickerView {
	v := TickerView{
		Symbol:    q.Symbol,
		LTP:       fmt.Sprintf("%.1f", q.LTP),
		Change:    FormatChange(q),
		Direction: "flat",
		Open:      FormatNumber(q.Open),
		HighLow:   FormatNumber(q.High) + " / " + FormatNumber(q.Low),
		PrevClose: FormatNumber(q.PreviousClose),
		AvgPrice:  FormatNumber(q.AvgPrice),
		Volume:    service.FormatGrouped(float64(q.Volume)),
		Turnover:  FormatLakhs(q.Turnover),
		SMA:       placeholder,
		RSI:       placeholder,
	}
	switch {
	case q.Change() > 0:
		v.Direction = "up"
	case q.Change() < 0:
		v.Direction = "down"
	}
	if ind != nil && ind.Ready {
		v.SMA = fmt.Sprintf("%.2f", ind.SMA)
		v.RSI = fmt.Sprintf("%.2f", ind.RSI)
	}
	return v
}

func depthRows(levels []model.DepthLevel) []DepthRow {
	rows := make([]DepthRow, len(levels))
	var cum int64
	for i, l := range levels {
		cum += l.Volume
		rows[i] = DepthRow{
			Price:      FormatNumber(l.Price),
			Volume:     l.Volume,
			Orders:     l.Orders,
			Cumulative: cum,
		}
	}
	return rows
}

func NewDepthView(d model.Depth) DepthView {
	return DepthView{
		Symbol: d.Symbol,
		Bids:   depthRows(d.Bids),
		Asks:   depthRows(d.Asks),
	}
}

func NewBandView(b model.PriceBand) BandView {
	return BandView{
		Lower: b.Lower,
		Upper: b.Upper,
		Text:  "Range: " + b.String(),
	}
}

func NewCollateralView(amount decimal.Decimal) CollateralView {
	return CollateralView{
		Amount: amount.StringFixed(2),
		Text:   FormatNPR(amount),
	}
}

func NewOrdersView(orders []*model.Order) OrdersView {
	if len(orders) == 0 {
		return OrdersView{Rows: []OrderRow{}, Empty: "No orders"}
	}

	rows := make([]OrderRow, len(orders))
	for i, o := range orders {
		rows[i] = OrderRow{
			ID:     o.ID,
			Time:   o.PlacedAt.Format("15:04:05"),
			Symbol: o.Symbol,
			Side:   o.Side.Label(),
			Qty:    o.Qty,
			Price:  FormatNumber(o.Price),
			Total:  o.Total.StringFixed(2),
			Status: string(o.Status),
			Text:   o.String(),
		}
	}
	return OrdersView{Rows: rows}
}

func NewModeView(mode model.TradeMode) ModeView {
	return ModeView{
		Mode:     string(mode),
		ShowBuy:  mode.Shows(model.SideBuy),
		ShowSell: mode.Shows(model.SideSell),
	}
}

// NewTicketView 构造下单面板; 数量和价格有效时附带费用预估
func NewTicketView(side model.Side, visible bool, qty int64, price float64, rr *ta.RiskReward) TicketView {
	v := TicketView{
		Side:    side.String(),
		Visible: visible,
		Qty:     qty,
		Price:   price,
		Total:   "0.00",
	}
	if qty > 0 && price > 0 {
		v.Total = service.FormatIndian(float64(qty) * price)
		v.Charges = newChargesView(side, qty, price)
	}
	if rr != nil {
		v.RiskReward = newRiskRewardView(*rr)
	}
	return v
}

func newChargesView(side model.Side, qty int64, price float64) *ChargesView {
	if side == model.SideBuy {
		est, err := fees.Buy(qty, price)
		if err != nil {
			return nil
		}
		return &ChargesView{
			Commission: service.FormatIndian(est.Commission),
			SebonFee:   service.FormatIndian(est.SebonFee),
			DPCharge:   service.FormatIndian(est.DPCharge),
			Net:        service.FormatIndian(est.Payable),
			WACC:       service.FormatIndian(est.WACC),
		}
	}

	// 应收金额与买入成本无关, 这里以卖价作为成本
	est, err := fees.Sell(qty, price, price, fees.ShortTerm)
	if err != nil {
		return nil
	}
	return &ChargesView{
		Commission: service.FormatIndian(est.Commission),
		SebonFee:   service.FormatIndian(est.SebonFee),
		DPCharge:   service.FormatIndian(est.DPCharge),
		Net:        service.FormatIndian(est.Receivable),
		WACC:       service.FormatIndian(est.WACC),
	}
}

func newRiskRewardView(rr ta.RiskReward) *RiskRewardView {
	v := &RiskRewardView{
		TargetPct:   rr.TargetPct,
		StopPct:     rr.StopPct,
		TargetPrice: placeholder,
		StopPrice:   placeholder,
		Ratio:       rr.RatioLabel(),
		LossWidth:   rr.LossWidth,
		ProfitWidth: rr.ProfitWidth,
		Disabled:    rr.Disabled,
	}
	if !rr.Disabled {
		v.TargetPrice = fmt.Sprintf("%.2f", rr.TargetPrice)
		v.StopPrice = fmt.Sprintf("%.2f", rr.StopPrice)
	}
	return v
}
