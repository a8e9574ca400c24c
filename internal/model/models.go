package model

import "time"

// Quote 代表一只股票的实时行情快照
type Quote struct {
	Symbol        string    `json:"symbol"`
	LTP           float64   `json:"ltp"` // 最新成交价
	Open          float64   `json:"open"`
	High          float64   `json:"high"`
	Low           float64   `json:"low"`
	PreviousClose float64   `json:"previousClose"`
	Volume        int64     `json:"volume"`   // 当日累计成交量
	Turnover      float64   `json:"turnover"` // 当日累计成交额
	AvgPrice      float64   `json:"avgPrice"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Change 相对昨收的涨跌额
func (q Quote) Change() float64 {
	return q.LTP - q.PreviousClose
}

// ChangePercent 相对昨收的涨跌幅 (百分比), 昨收为 0 时返回 0
func (q Quote) ChangePercent() float64 {
	if q.PreviousClose == 0 {
		return 0
	}
	return q.Change() / q.PreviousClose * 100
}

// DepthLevel 盘口的一档
type DepthLevel struct {
	Price  float64 `json:"price"`
	Volume int64   `json:"volume"`
	Orders int     `json:"orders"` // 挂单笔数
}

// Depth 五档买卖盘 (模拟数据, 每次刷新整体重建)
type Depth struct {
	Symbol string       `json:"symbol"`
	Bids   []DepthLevel `json:"bids"`
	Asks   []DepthLevel `json:"asks"`
}

// Candle 代表聚合后的 K 线数据
type Candle struct {
	Symbol    string
	Interval  string // 周期，例如 "1m", "5m", "1h"
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    int64
	StartTime time.Time
	EndTime   time.Time
}
