package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuoteChange(t *testing.T) {
	q := Quote{LTP: 740, PreviousClose: 732}
	assert.InDelta(t, 8.0, q.Change(), 1e-9)
	assert.InDelta(t, 1.0929, q.ChangePercent(), 1e-4)

	assert.Equal(t, 0.0, Quote{LTP: 10}.ChangePercent())
}

func TestPriceBand(t *testing.T) {
	ltp := 740.0
	band := NewPriceBand(ltp, PriceBandPercent)

	assert.True(t, band.Contains(ltp))
	assert.True(t, band.Contains(725.2), "lower edge is inclusive")
	assert.True(t, band.Contains(754.8), "upper edge is inclusive")
	assert.False(t, band.Contains(725.19))
	assert.False(t, band.Contains(754.81))

	// 边界外极小的偏差也不接受
	assert.False(t, band.Contains(725.2-5e-10))
	assert.False(t, band.Contains(754.8+5e-10))
	assert.Equal(t, "725.2 - 754.8", band.String())

	// 游走后的 LTP 同样得到精确边界: 741.3 -> 726.474 - 756.126
	walked := NewPriceBand(741.3, PriceBandPercent)
	assert.True(t, walked.Contains(726.474))
	assert.False(t, walked.Contains(726.4739999))
	assert.True(t, walked.Contains(756.126))
	assert.False(t, walked.Contains(756.1260001))
}

func TestOrderString(t *testing.T) {
	o := Order{Side: SideBuy, Qty: 100, Price: 740, Total: OrderTotal(100, 740), Status: StatusOpen}
	assert.Equal(t, "BUY 100 740 74000.00 OPEN", o.String())

	o = Order{Side: SideSell, Qty: 10, Price: 740.3, Total: OrderTotal(10, 740.3), Status: StatusOpen}
	assert.Equal(t, "SELL 10 740.3 7403.00 OPEN", o.String())
}

func TestOrderTotalIsExact(t *testing.T) {
	// 浮点乘法 0.1*3 会产生误差, decimal 不会
	assert.Equal(t, "0.3", OrderTotal(3, 0.1).String())
	assert.Equal(t, "74030", OrderTotal(100, 740.3).String())
}

func TestParseSideAndMode(t *testing.T) {
	s, err := ParseSide(" BUY ")
	require.NoError(t, err)
	assert.Equal(t, SideBuy, s)
	_, err = ParseSide("short")
	assert.Error(t, err)

	m, err := ParseTradeMode("Dual")
	require.NoError(t, err)
	assert.Equal(t, ModeDual, m)
	_, err = ParseTradeMode("")
	assert.Error(t, err)

	assert.True(t, ModeBuy.Shows(SideBuy))
	assert.False(t, ModeBuy.Shows(SideSell))
	assert.True(t, ModeSell.Shows(SideSell))
	assert.True(t, ModeDual.Shows(SideBuy))
	assert.True(t, ModeDual.Shows(SideSell))
}

func TestCandleAggregator(t *testing.T) {
	agg, err := NewCandleAggregator("NICA", "1m")
	require.NoError(t, err)

	base := time.Date(2026, 10, 19, 11, 0, 0, 0, time.UTC)
	quote := func(offset time.Duration, ltp float64, vol int64) Quote {
		return Quote{Symbol: "NICA", LTP: ltp, Volume: vol, UpdatedAt: base.Add(offset)}
	}

	_, done := agg.ProcessQuote(quote(0, 740, 1000))
	assert.False(t, done)
	_, done = agg.ProcessQuote(quote(20*time.Second, 742.5, 1100))
	assert.False(t, done)
	_, done = agg.ProcessQuote(quote(40*time.Second, 738, 1150))
	assert.False(t, done)

	c, done := agg.ProcessQuote(quote(61*time.Second, 739, 1200))
	require.True(t, done)
	assert.Equal(t, 740.0, c.Open)
	assert.Equal(t, 742.5, c.High)
	assert.Equal(t, 738.0, c.Low)
	assert.Equal(t, 738.0, c.Close)
	assert.Equal(t, int64(150), c.Volume)
	assert.Equal(t, base, c.StartTime)

	assert.Equal(t, 738.0, agg.Current.Open)
	assert.Equal(t, int64(50), agg.Current.Volume)
	assert.Len(t, agg.History(), 1)

	// 其他股票的行情被忽略
	_, done = agg.ProcessQuote(Quote{Symbol: "NABIL", LTP: 500, UpdatedAt: base.Add(5 * time.Minute)})
	assert.False(t, done)

	agg.Reset("NABIL")
	assert.Empty(t, agg.History())
	assert.Equal(t, "NABIL", agg.Symbol)
}

func TestCandleAggregatorRejectsBadInterval(t *testing.T) {
	_, err := NewCandleAggregator("NICA", "1w")
	assert.Error(t, err)
}
