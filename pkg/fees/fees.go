// Package fees 估算 NEPSE 股票交易的费用: 佣金, SEBON 费, DP 费和资本利得税
package fees

import (
	"errors"
	"fmt"
	"strings"
)

const (
	SebonRate    = 0.00015 // 0.015%
	DPCharge     = 25.0
	MinBrokerage = 10.0

	ShortTermCGT = 0.075
	LongTermCGT  = 0.05

	// 红股和现金股息的税率
	DividendTaxRate = 0.05
)

var ErrInvalidInput = errors.New("quantity and price must be positive")

// commissionTier 金额低于 Below 时适用 Rate
type commissionTier struct {
	Below float64
	Rate  float64
}

var commissionTiers = []commissionTier{
	{Below: 50001, Rate: 0.0036},
	{Below: 500001, Rate: 0.0033},
	{Below: 2000001, Rate: 0.0031},
	{Below: 10000001, Rate: 0.0027},
}

const topTierRate = 0.0024

// minCommissionBelow 低于该金额时收取固定佣金
const minCommissionBelow = 2777

// HoldingType 持有期, 决定资本利得税率
type HoldingType string

const (
	ShortTerm HoldingType = "short_term"
	LongTerm  HoldingType = "long_term"
)

func ParseHoldingType(s string) (HoldingType, error) {
	switch HoldingType(strings.ToLower(strings.TrimSpace(s))) {
	case ShortTerm:
		return ShortTerm, nil
	case LongTerm:
		return LongTerm, nil
	}
	return "", fmt.Errorf("unknown holding type: %q", s)
}

// Commission 按金额分档计算经纪佣金
func Commission(amount float64) float64 {
	if amount < minCommissionBelow {
		return MinBrokerage
	}
	for _, tier := range commissionTiers {
		if amount < tier.Below {
			return amount * tier.Rate
		}
	}
	return amount * topTierRate
}

// BuyEstimate 买入费用明细
type BuyEstimate struct {
	Amount     float64
	Commission float64
	SebonFee   float64
	DPCharge   float64
	Payable    float64
	WACC       float64 // 含费用的每股成本
}

// Buy 计算买入 qty 股、价格 price 时需要支付的金额
func Buy(qty int64, price float64) (BuyEstimate, error) {
	if qty <= 0 || price <= 0 {
		return BuyEstimate{}, ErrInvalidInput
	}

	amount := float64(qty) * price
	est := BuyEstimate{
		Amount:     amount,
		Commission: Commission(amount),
		SebonFee:   amount * SebonRate,
		DPCharge:   DPCharge,
	}
	est.Payable = amount + est.Commission + est.SebonFee + est.DPCharge
	est.WACC = est.Payable / float64(qty)
	return est, nil
}

// SellEstimate 卖出费用及盈亏明细
type SellEstimate struct {
	Amount          float64
	Commission      float64
	SebonFee        float64
	DPCharge        float64
	TotalCharges    float64
	ProfitBeforeTax float64
	CGT             float64
	NetProfitLoss   float64
	NetPLPercent    float64
	Receivable      float64
	WACC            float64 // 扣除费用后的每股所得
}

// Sell 计算以 price 卖出 qty 股 (买入成本为 buyWACC) 的到手金额和盈亏
func Sell(qty int64, price, buyWACC float64, holding HoldingType) (SellEstimate, error) {
	if qty <= 0 || price <= 0 || buyWACC <= 0 {
		return SellEstimate{}, ErrInvalidInput
	}

	amount := float64(qty) * price
	investment := float64(qty) * buyWACC

	est := SellEstimate{
		Amount:     amount,
		Commission: Commission(amount),
		SebonFee:   amount * SebonRate,
		DPCharge:   DPCharge,
	}
	est.TotalCharges = est.Commission + est.SebonFee + est.DPCharge
	est.ProfitBeforeTax = amount - investment - est.TotalCharges

	// 只对盈利部分征税
	if est.ProfitBeforeTax > 0 {
		switch holding {
		case ShortTerm:
			est.CGT = est.ProfitBeforeTax * ShortTermCGT
		case LongTerm:
			est.CGT = est.ProfitBeforeTax * LongTermCGT
		}
	}

	est.NetProfitLoss = est.ProfitBeforeTax - est.CGT
	est.NetPLPercent = est.NetProfitLoss / investment * 100
	est.Receivable = amount - est.TotalCharges
	est.WACC = est.Receivable / float64(qty)
	return est, nil
}

// DividendEstimate 股息及税额
type DividendEstimate struct {
	BonusShares   float64
	CashDividend  float64
	BonusShareTax float64
	CashTax       float64
	TotalTax      float64
}

// Dividend 按红股比例和现金股息比例 (百分比) 计算
func Dividend(qty int64, bonusPct, cashPct, paidUp float64) (DividendEstimate, error) {
	if qty <= 0 || paidUp <= 0 {
		return DividendEstimate{}, ErrInvalidInput
	}

	q := float64(qty)
	est := DividendEstimate{
		BonusShares:  q * bonusPct / 100,
		CashDividend: q * paidUp * cashPct / 100,
	}
	est.BonusShareTax = est.BonusShares * paidUp * DividendTaxRate
	est.CashTax = est.CashDividend * DividendTaxRate
	est.TotalTax = est.BonusShareTax + est.CashTax
	return est, nil
}
