package ta

import (
	"fmt"
	"sync"

	"github.com/markcheno/go-talib"
	"go.uber.org/zap"

	"nepse-mock-trader/internal/model"
)

// Indicators 某个品种最新计算出的指标
type Indicators struct {
	Symbol   string
	Interval string
	SMA      float64
	RSI      float64
	Bars     int  // 已收集的 K 线数量
	Ready    bool // 历史足够长时才为 true
}

// Calculator 基于已完成的 K 线计算 SMA/RSI
type Calculator struct {
	mu     sync.RWMutex
	closes map[string][]float64 // Key: 股票代码
	latest map[string]Indicators

	SMAPeriod  int
	RSIPeriod  int
	MaxHistory int
	Logger     *zap.Logger
}

// NewCalculator 初始化技术指标计算器 (SMA 20, RSI 14)
func NewCalculator(logger *zap.Logger) *Calculator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Calculator{
		closes:     make(map[string][]float64),
		latest:     make(map[string]Indicators),
		SMAPeriod:  20,
		RSIPeriod:  14,
		MaxHistory: 100,
		Logger:     logger,
	}
}

// minHistory talib.Rsi 需要比周期多一根 K 线
func (c *Calculator) minHistory() int {
	if c.RSIPeriod+1 > c.SMAPeriod {
		return c.RSIPeriod + 1
	}
	return c.SMAPeriod
}

// Update 追加一根已完成的 K 线并重新计算指标
func (c *Calculator) Update(candle model.Candle) Indicators {
	c.mu.Lock()
	defer c.mu.Unlock()

	// 1. 更新收盘价序列, 保留最近 MaxHistory 根
	closes := append(c.closes[candle.Symbol], candle.Close)
	if len(closes) > c.MaxHistory {
		closes = closes[len(closes)-c.MaxHistory:]
	}
	c.closes[candle.Symbol] = closes

	ind := Indicators{
		Symbol:   candle.Symbol,
		Interval: candle.Interval,
		Bars:     len(closes),
	}

	// 2. 历史不足时只记录条数
	if len(closes) < c.minHistory() {
		c.Logger.Debug("Not enough history for calculation",
			zap.String("Symbol", candle.Symbol), zap.Int("Bars", len(closes)))
		c.latest[candle.Symbol] = ind
		return ind
	}

	// 3. 计算指标, 取最新值
	sma := talib.Sma(closes, c.SMAPeriod)
	rsi := talib.Rsi(closes, c.RSIPeriod)
	ind.SMA = sma[len(sma)-1]
	ind.RSI = rsi[len(rsi)-1]
	ind.Ready = true

	c.latest[candle.Symbol] = ind
	return ind
}

// Get 查询最新指标
func (c *Calculator) Get(symbol string) (Indicators, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ind, ok := c.latest[symbol]
	if !ok || !ind.Ready {
		return ind, fmt.Errorf("indicators not available or history too short for %s", symbol)
	}
	return ind, nil
}

// Reset 切换股票时清空历史
func (c *Calculator) Reset(symbol string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.closes, symbol)
	delete(c.latest, symbol)
}
