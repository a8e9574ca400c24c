package render

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// Console 在终端中打印盘口
type Console struct {
	mu  sync.Mutex
	out io.Writer
}

func NewConsole(out io.Writer) *Console {
	return &Console{out: out}
}

func (c *Console) printf(format string, args ...interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}

func (c *Console) RenderTicker(v TickerView) {
	c.printf("%s  LTP %s  %s  O %s  H/L %s  PC %s  Avg %s  Vol %s  T/O %s  SMA %s  RSI %s\n",
		v.Symbol, v.LTP, v.Change, v.Open, v.HighLow, v.PrevClose, v.AvgPrice, v.Volume, v.Turnover, v.SMA, v.RSI)
}

func (c *Console) RenderDepth(v DepthView) {
	t := table.NewWriter()
	t.SetTitle("MARKET DEPTH " + v.Symbol)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Orders", "Qty", "Bid", "Ask", "Qty", "Orders"})

	n := len(v.Bids)
	if len(v.Asks) > n {
		n = len(v.Asks)
	}
	for i := 0; i < n; i++ {
		row := table.Row{"", "", "", "", "", ""}
		if i < len(v.Bids) {
			b := v.Bids[i]
			row[0], row[1], row[2] = b.Orders, b.Volume, b.Price
		}
		if i < len(v.Asks) {
			a := v.Asks[i]
			row[3], row[4], row[5] = a.Price, a.Volume, a.Orders
		}
		t.AppendRow(row)
	}

	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignRight},
		{Number: 2, Align: text.AlignRight},
		{Number: 3, Align: text.AlignRight, Colors: text.Colors{text.FgGreen}},
		{Number: 4, Align: text.AlignLeft, Colors: text.Colors{text.FgRed}},
		{Number: 5, Align: text.AlignLeft},
		{Number: 6, Align: text.AlignLeft},
	})

	c.printf("%s\n", t.Render())
}

func (c *Console) RenderBand(v BandView) {
	c.printf("%s\n", v.Text)
}

func (c *Console) RenderCollateral(v CollateralView) {
	c.printf("Collateral: %s\n", v.Text)
}

func (c *Console) RenderOrders(v OrdersView) {
	t := table.NewWriter()
	t.SetTitle("RECENT ORDERS")
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Time", "Symbol", "Side", "Qty", "Price", "Total", "Status", "ID"})

	if len(v.Rows) == 0 {
		t.AppendRow(table.Row{v.Empty})
	}
	for _, r := range v.Rows {
		t.AppendRow(table.Row{r.Time, r.Symbol, r.Side, r.Qty, r.Price, r.Total, r.Status, r.ID})
	}

	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 4, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
		{Number: 6, Align: text.AlignRight},
	})

	c.printf("%s\n", t.Render())
}

func (c *Console) RenderMode(v ModeView) {
	c.printf("Mode: %s\n", strings.ToUpper(v.Mode))
}

func (c *Console) RenderTicket(v TicketView) {
	if !v.Visible {
		return
	}

	line := fmt.Sprintf("%s ticket: qty %d @ %s  total %s",
		strings.ToUpper(v.Side), v.Qty, FormatNumber(v.Price), v.Total)
	if v.Charges != nil {
		line += fmt.Sprintf("  (comm %s, sebon %s, dp %s, net %s, wacc %s)",
			v.Charges.Commission, v.Charges.SebonFee, v.Charges.DPCharge, v.Charges.Net, v.Charges.WACC)
	}
	if rr := v.RiskReward; rr != nil && !rr.Disabled {
		line += fmt.Sprintf("  target %s stop %s %s", rr.TargetPrice, rr.StopPrice, rr.Ratio)
	}
	c.printf("%s\n", line)
}

func (c *Console) RenderToast(v Toast) {
	if !v.Visible {
		return
	}

	color := text.FgGreen
	if v.Kind == ToastError {
		color = text.FgRed
	}
	c.printf("%s\n", color.Sprint(v.Message))
}
