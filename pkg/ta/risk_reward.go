package ta

import (
	"errors"
	"fmt"
)

var ErrInvalidStop = errors.New("stop percent must be positive")

// RiskReward 买入方向的止盈止损预览 (不支持卖空)
type RiskReward struct {
	Entry       float64
	TargetPct   float64
	StopPct     float64
	TargetPrice float64
	StopPrice   float64
	Ratio       float64 // target/stop
	LossWidth   float64 // 亏损区占比 (0-100)
	ProfitWidth float64 // 盈利区占比 (0-100)
	Disabled    bool    // entry <= 0 时不显示
}

// CalculateRiskReward 以 entry 为基准计算止盈价和止损价
func CalculateRiskReward(entry, targetPct, stopPct float64) (RiskReward, error) {
	rr := RiskReward{Entry: entry, TargetPct: targetPct, StopPct: stopPct}
	if entry <= 0 {
		rr.Disabled = true
		return rr, nil
	}
	if stopPct <= 0 {
		return rr, ErrInvalidStop
	}
	if targetPct < 0 {
		return rr, fmt.Errorf("target percent must not be negative: %v", targetPct)
	}

	rr.TargetPrice = entry * (1 + targetPct/100)
	rr.StopPrice = entry * (1 - stopPct/100)
	rr.Ratio = targetPct / stopPct

	total := targetPct + stopPct
	rr.LossWidth = stopPct / total * 100
	rr.ProfitWidth = targetPct / total * 100
	return rr, nil
}

// RatioLabel 如 "R:R 1:2.0"
func (rr RiskReward) RatioLabel() string {
	if rr.Disabled {
		return "R:R --"
	}
	return fmt.Sprintf("R:R 1:%.1f", rr.Ratio)
}
