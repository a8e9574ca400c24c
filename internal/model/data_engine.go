package model

import (
	"fmt"
	"math"
	"sync"
	"time"

	"nepse-mock-trader/internal/service"
)

// 最多保留的已完成 K 线数量
const maxCandleHistory = 240

// CandleAggregator 根据行情快照聚合特定周期的 K 线
type CandleAggregator struct {
	mu       sync.Mutex
	Symbol   string        // 所属股票
	Interval string        // 聚合周期，如 "1m"
	duration time.Duration // Interval 对应的时长
	Current  Candle        // 正在构建的当前 K 线
	history  []Candle      // 已完成的 K 线

	lastVolume int64 // 上一个快照的累计成交量, 用于计算增量
}

// NewCandleAggregator 创建一个新的聚合器
func NewCandleAggregator(symbol, intervalStr string) (*CandleAggregator, error) {
	d, err := service.ParseIntervalDuration(intervalStr)
	if err != nil {
		return nil, fmt.Errorf("candle aggregator: %w", err)
	}
	return &CandleAggregator{
		Symbol:   symbol,
		Interval: intervalStr,
		duration: d,
		Current: Candle{
			Symbol:   symbol,
			Interval: intervalStr,
		},
	}, nil
}

// Reset 切换股票时清空所有状态
func (agg *CandleAggregator) Reset(symbol string) {
	agg.mu.Lock()
	defer agg.mu.Unlock()

	agg.Symbol = symbol
	agg.Current = Candle{Symbol: symbol, Interval: agg.Interval}
	agg.history = nil
	agg.lastVolume = 0
}

// ProcessQuote 将快照聚合到当前 K 线, 若上一根 K 线已完成则返回它
func (agg *CandleAggregator) ProcessQuote(q Quote) (Candle, bool) {
	if q.Symbol != agg.Symbol || q.LTP <= 0 {
		return Candle{}, false
	}

	agg.mu.Lock()
	defer agg.mu.Unlock()

	// 1. 计算快照属于哪个 K 线周期
	ts := q.UpdatedAt
	if ts.IsZero() {
		ts = time.Now()
	}
	start := ts.Truncate(agg.duration)

	// 累计成交量转换为增量
	var volDelta int64
	if agg.lastVolume > 0 && q.Volume > agg.lastVolume {
		volDelta = q.Volume - agg.lastVolume
	}
	agg.lastVolume = q.Volume

	var completed Candle
	done := false

	// 2. 检查 K 线是否完成
	if !agg.Current.StartTime.IsZero() && start.After(agg.Current.StartTime) {
		completed = agg.Current
		done = true

		agg.history = append(agg.history, completed)
		if len(agg.history) > maxCandleHistory {
			agg.history = agg.history[len(agg.history)-maxCandleHistory:]
		}

		// 新 K 线的开盘价取上一根 K 线的收盘价
		agg.Current = Candle{
			Symbol:    agg.Symbol,
			Interval:  agg.Interval,
			Open:      completed.Close,
			High:      math.Max(completed.Close, q.LTP),
			Low:       math.Min(completed.Close, q.LTP),
			StartTime: start,
			EndTime:   start.Add(agg.duration).Add(-time.Millisecond),
		}
	}

	// 3. 初始化当前 K 线
	if agg.Current.StartTime.IsZero() {
		agg.Current = Candle{
			Symbol:    agg.Symbol,
			Interval:  agg.Interval,
			Open:      q.LTP,
			High:      q.LTP,
			Low:       q.LTP,
			StartTime: start,
			EndTime:   start.Add(agg.duration).Add(-time.Millisecond),
		}
	}

	// 更新 OHLCV
	agg.Current.Close = q.LTP
	agg.Current.High = math.Max(agg.Current.High, q.LTP)
	agg.Current.Low = math.Min(agg.Current.Low, q.LTP)
	agg.Current.Volume += volDelta

	return completed, done
}

// History 返回已完成 K 线的副本
func (agg *CandleAggregator) History() []Candle {
	agg.mu.Lock()
	defer agg.mu.Unlock()

	out := make([]Candle, len(agg.history))
	copy(out, agg.history)
	return out
}
