package service

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// Round1 保留一位小数 (与盘口显示精度一致)
func Round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// 将 K 线周期字符串解析为 time.Duration
// 例如 "1m" -> 1*time.Minute
func ParseIntervalDuration(s string) (time.Duration, error) {
	if len(s) < 2 {
		return 0, fmt.Errorf("invalid interval format: %s", s)
	}

	unit := s[len(s)-1:]
	valueStr := s[:len(s)-1]

	var unitDuration time.Duration
	switch unit {
	case "s":
		unitDuration = time.Second
	case "m":
		unitDuration = time.Minute
	case "h":
		unitDuration = time.Hour
	case "d":
		unitDuration = 24 * time.Hour
	default:
		return 0, fmt.Errorf("unsupported interval unit: %s", unit)
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil || value <= 0 {
		return 0, fmt.Errorf("invalid interval value: %s", valueStr)
	}

	return time.Duration(value) * unitDuration, nil
}

// NPR 金额按 en-IN 分组 (4,99,26,000.00), 其余数字按 en 千位分组
var (
	indianPrinter  = message.NewPrinter(language.MustParse("en-IN"))
	groupedPrinter = message.NewPrinter(language.English)
)

// FormatIndian 固定两位小数, 例如 49926000 -> "4,99,26,000.00"
func FormatIndian(v float64) string {
	return indianPrinter.Sprintf("%.2f", v)
}

// FormatGrouped 最多保留三位小数且去掉末尾的 0
// 例如 74000 -> "74,000", 1234.5 -> "1,234.5"
func FormatGrouped(v float64) string {
	return groupedPrinter.Sprint(number.Decimal(v, number.MaxFractionDigits(3)))
}
