package ta

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nepse-mock-trader/internal/model"
)

func candle(close float64) model.Candle {
	return model.Candle{Symbol: "NICA", Interval: "1m", Close: close}
}

func TestCalculatorNeedsHistory(t *testing.T) {
	c := NewCalculator(nil)

	for i := 0; i < 19; i++ {
		ind := c.Update(candle(740))
		assert.False(t, ind.Ready)
	}
	_, err := c.Get("NICA")
	assert.Error(t, err)

	ind := c.Update(candle(740))
	assert.True(t, ind.Ready)
	assert.Equal(t, 20, ind.Bars)
	assert.InDelta(t, 740, ind.SMA, 1e-9)
}

func TestCalculatorRisingSeries(t *testing.T) {
	c := NewCalculator(nil)

	var ind Indicators
	for i := 0; i < 40; i++ {
		ind = c.Update(candle(700 + float64(i)))
	}

	require.True(t, ind.Ready)
	// 最近 20 根的均值: 720..739
	assert.InDelta(t, 729.5, ind.SMA, 1e-9)
	// 只涨不跌时 RSI 为 100
	assert.InDelta(t, 100, ind.RSI, 1e-9)

	got, err := c.Get("NICA")
	require.NoError(t, err)
	assert.Equal(t, ind, got)
}

func TestCalculatorHistoryIsCapped(t *testing.T) {
	c := NewCalculator(nil)
	for i := 0; i < 150; i++ {
		c.Update(candle(740))
	}
	got, err := c.Get("NICA")
	require.NoError(t, err)
	assert.Equal(t, 100, got.Bars)

	c.Reset("NICA")
	_, err = c.Get("NICA")
	assert.Error(t, err)
}

func TestRiskReward(t *testing.T) {
	rr, err := CalculateRiskReward(740, 10, 5)
	require.NoError(t, err)

	assert.InDelta(t, 814, rr.TargetPrice, 1e-9)
	assert.InDelta(t, 703, rr.StopPrice, 1e-9)
	assert.InDelta(t, 2, rr.Ratio, 1e-9)
	assert.Equal(t, "R:R 1:2.0", rr.RatioLabel())
	assert.InDelta(t, 100.0/3, rr.LossWidth, 1e-9)
	assert.InDelta(t, 200.0/3, rr.ProfitWidth, 1e-9)
}

func TestRiskRewardEdges(t *testing.T) {
	rr, err := CalculateRiskReward(0, 10, 5)
	require.NoError(t, err)
	assert.True(t, rr.Disabled)
	assert.Equal(t, "R:R --", rr.RatioLabel())

	_, err = CalculateRiskReward(740, 10, 0)
	assert.ErrorIs(t, err, ErrInvalidStop)

	_, err = CalculateRiskReward(740, -1, 5)
	assert.Error(t, err)
}
