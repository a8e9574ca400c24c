package report

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"nepse-mock-trader/internal/model"
	"nepse-mock-trader/pkg/fees"
)

const (
	ordersSheet  = "Orders"
	summarySheet = "Summary"
)

// Exporter 导出最近委托
type Exporter interface {
	ExportOrders(path string, orders []*model.Order, collateral decimal.Decimal) error
}

// ExcelExporter 将委托写入 xlsx 工作簿
type ExcelExporter struct{}

func NewExcelExporter() *ExcelExporter {
	return &ExcelExporter{}
}

// ExportOrders 写两个工作表: Orders (每笔委托及费用预估) 和 Summary
func (ExcelExporter) ExportOrders(path string, orders []*model.Order, collateral decimal.Decimal) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create report directory %s: %w", dir, err)
		}
	}

	fx := excelize.NewFile()
	defer fx.Close()

	fx.SetSheetName(fx.GetSheetName(0), ordersSheet)
	if _, err := fx.NewSheet(summarySheet); err != nil {
		return fmt.Errorf("failed to create summary sheet: %w", err)
	}

	headStyle, err := fx.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}

	headers := []string{"Order ID", "Time", "Symbol", "Side", "Qty", "Price", "Total (NPR)", "Status", "Charges (NPR)", "Net (NPR)"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		fx.SetCellValue(ordersSheet, cell, h)
		fx.SetCellStyle(ordersSheet, cell, cell, headStyle)
	}

	var buyTotal, sellTotal decimal.Decimal
	row := 2
	for _, o := range orders {
		charges, net := estimate(o)
		if o.Side == model.SideBuy {
			buyTotal = buyTotal.Add(o.Total)
		} else {
			sellTotal = sellTotal.Add(o.Total)
		}

		values := []interface{}{
			o.ID,
			o.PlacedAt.Format("2006-01-02 15:04:05"),
			o.Symbol,
			o.Side.Label(),
			o.Qty,
			o.Price,
			o.Total.StringFixed(2),
			string(o.Status),
			fmt.Sprintf("%.2f", charges),
			fmt.Sprintf("%.2f", net),
		}
		for i, v := range values {
			cell, _ := excelize.CoordinatesToCellName(i+1, row)
			fx.SetCellValue(ordersSheet, cell, v)
		}
		row++
	}

	summary := [][]interface{}{
		{"Open orders", len(orders)},
		{"Buy total (NPR)", buyTotal.StringFixed(2)},
		{"Sell total (NPR)", sellTotal.StringFixed(2)},
		{"Available collateral (NPR)", collateral.StringFixed(2)},
	}
	for r, values := range summary {
		for i, v := range values {
			cell, _ := excelize.CoordinatesToCellName(i+1, r+1)
			fx.SetCellValue(summarySheet, cell, v)
		}
		label, _ := excelize.CoordinatesToCellName(1, r+1)
		fx.SetCellStyle(summarySheet, label, label, headStyle)
	}

	if err := fx.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save report %s: %w", path, err)
	}
	return nil
}

// estimate 返回费用合计和含费用的净额 (买入为应付, 卖出为应收)
func estimate(o *model.Order) (charges, net float64) {
	if o.Side == model.SideBuy {
		est, err := fees.Buy(o.Qty, o.Price)
		if err != nil {
			return 0, 0
		}
		return est.Commission + est.SebonFee + est.DPCharge, est.Payable
	}

	est, err := fees.Sell(o.Qty, o.Price, o.Price, fees.ShortTerm)
	if err != nil {
		return 0, 0
	}
	return est.TotalCharges, est.Receivable
}
