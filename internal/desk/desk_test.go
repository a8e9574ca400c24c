package desk

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nepse-mock-trader/internal/broker"
	"nepse-mock-trader/internal/executor"
	"nepse-mock-trader/internal/market"
	"nepse-mock-trader/internal/model"
	"nepse-mock-trader/internal/render"
	"nepse-mock-trader/internal/store"
)

// recorder 记录最近一次渲染的各个视图
type recorder struct {
	mu         sync.Mutex
	ticker     []render.TickerView
	depth      render.DepthView
	band       render.BandView
	collateral render.CollateralView
	orders     render.OrdersView
	mode       render.ModeView
	tickets    map[string]render.TicketView
	toasts     []render.Toast
}

func newRecorder() *recorder {
	return &recorder{tickets: make(map[string]render.TicketView)}
}

func (r *recorder) RenderTicker(v render.TickerView) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ticker = append(r.ticker, v)
}

func (r *recorder) RenderDepth(v render.DepthView) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.depth = v
}

func (r *recorder) RenderBand(v render.BandView) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.band = v
}

func (r *recorder) RenderCollateral(v render.CollateralView) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.collateral = v
}

func (r *recorder) RenderOrders(v render.OrdersView) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders = v
}

func (r *recorder) RenderMode(v render.ModeView) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mode = v
}

func (r *recorder) RenderTicket(v render.TicketView) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tickets[v.Side] = v
}

func (r *recorder) RenderToast(v render.Toast) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.toasts = append(r.toasts, v)
}

func (r *recorder) lastToast() render.Toast {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.toasts) == 0 {
		return render.Toast{}
	}
	return r.toasts[len(r.toasts)-1]
}

func (r *recorder) tickerCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ticker)
}

type recordingPublisher struct {
	broker.NoopPublisher
	mu         sync.Mutex
	subjects   []string
	collateral []broker.CollateralEvent
}

func (p *recordingPublisher) PublishOrder(subject string, evt broker.OrderEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subjects = append(p.subjects, subject)
	return nil
}

func (p *recordingPublisher) PublishCollateral(evt broker.CollateralEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.collateral = append(p.collateral, evt)
	return nil
}

type fakeExporter struct {
	path       string
	orders     int
	collateral decimal.Decimal
}

func (f *fakeExporter) ExportOrders(path string, orders []*model.Order, collateral decimal.Decimal) error {
	f.path, f.orders, f.collateral = path, len(orders), collateral
	return nil
}

type fixture struct {
	desk *Desk
	sim  *market.Simulator
	rec  *recorder
	pub  *recordingPublisher
	exp  *fakeExporter
	exec *executor.SimulatorExecutor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	sim := market.NewSimulator(nil, time.Second, market.NewRand(7), nil)
	exec := executor.NewSimulatorExecutor(ctx, executor.DefaultSimulatorConfig(), store.NewMemoryStore(), nil)
	rec := newRecorder()
	pub := &recordingPublisher{}
	exp := &fakeExporter{}

	cfg := DefaultConfig()
	cfg.ReportPath = "out/orders.xlsx"

	d, err := New(cfg, Deps{
		Source:    sim,
		Executor:  exec,
		Depth:     market.NewDepthSynthesizer(market.NewRand(7)),
		Renderer:  rec,
		Toaster:   render.NewToaster(rec, time.Hour),
		Publisher: pub,
		Exporter:  exp,
	})
	require.NoError(t, err)
	require.NoError(t, d.Start(ctx))

	return &fixture{desk: d, sim: sim, rec: rec, pub: pub, exp: exp, exec: exec}
}

func TestStartRendersPage(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, "NICA", f.desk.Symbol())
	require.Equal(t, 1, f.rec.tickerCount())
	assert.Equal(t, "740.0", f.rec.ticker[0].LTP)
	assert.Equal(t, "Range: 725.2 - 754.8", f.rec.band.Text)
	assert.Equal(t, "NPR 5,00,00,000.00", f.rec.collateral.Text)
	assert.Equal(t, "No orders", f.rec.orders.Empty)
	assert.Equal(t, "buy", f.rec.mode.Mode)
	assert.True(t, f.rec.tickets["buy"].Visible)
	assert.False(t, f.rec.tickets["sell"].Visible)
	assert.Len(t, f.rec.depth.Bids, 5)

	// 初始加载不显示提示
	assert.Empty(t, f.rec.toasts)
}

func TestChangeSymbol(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.desk.ChangeSymbol(ctx, "ni")
	assert.ErrorIs(t, err, ErrSymbolTooShort)
	assert.Equal(t, "NICA", f.desk.Symbol())

	require.NoError(t, f.desk.ChangeSymbol(ctx, "  nabil "))
	assert.Equal(t, "NABIL", f.desk.Symbol())
	assert.Equal(t, "Switched to NABIL", f.rec.lastToast().Message)
	assert.Equal(t, render.ToastSuccess, f.rec.lastToast().Kind)

	q, ok := f.desk.Quote()
	require.True(t, ok)
	assert.Equal(t, "NABIL", q.Symbol)
	assert.Equal(t, "NABIL", f.desk.Depth().Symbol)
}

func TestChangeSymbolReseedsQuote(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.desk.ChangeSymbol(ctx, "XYZ"))
	first, ok := f.desk.Quote()
	require.True(t, ok)

	require.NoError(t, f.desk.ChangeSymbol(ctx, "NABIL"))
	require.NoError(t, f.desk.ChangeSymbol(ctx, "XYZ"))
	revisit, ok := f.desk.Quote()
	require.True(t, ok)
	assert.NotEqual(t, first.PreviousClose, revisit.PreviousClose)

	// 回到初始品种也重新生成, 不再是目录里的 740 / 732
	require.NoError(t, f.desk.ChangeSymbol(ctx, "NICA"))
	nica, _ := f.desk.Quote()
	assert.NotEqual(t, 732.0, nica.PreviousClose)

	sim, err := f.sim.GetQuote("NICA")
	require.NoError(t, err)
	assert.Equal(t, nica.LTP, sim.LTP)
}

func TestOnQuoteIgnoresOtherSymbols(t *testing.T) {
	f := newFixture(t)
	before := f.rec.tickerCount()

	f.desk.OnQuote(model.Quote{Symbol: "NABIL", LTP: 500})
	assert.Equal(t, before, f.rec.tickerCount())

	f.desk.OnQuote(model.Quote{Symbol: "NICA", LTP: 741.3, PreviousClose: 732})
	assert.Equal(t, before+1, f.rec.tickerCount())
	assert.Equal(t, "Range: 726.5 - 756.1", f.rec.band.Text)

	depth := f.desk.Depth()
	require.Len(t, depth.Bids, 5)
	for i := range depth.Bids {
		assert.Less(t, depth.Bids[i].Price, 741.3)
		assert.Greater(t, depth.Asks[i].Price, 741.3)
	}
}

func TestAddQty(t *testing.T) {
	f := newFixture(t)

	qty, err := f.desk.AddQty(model.SideBuy, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(10), qty)

	// 不少于一手
	qty, err = f.desk.AddQty(model.SideBuy, -10)
	require.NoError(t, err)
	assert.Equal(t, int64(10), qty)

	require.NoError(t, f.desk.SetQty(model.SideSell, 37))
	qty, err = f.desk.AddQty(model.SideSell, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(40), qty)

	_, err = f.desk.AddQty(model.Side("hold"), 10)
	assert.ErrorIs(t, err, ErrUnknownSide)
}

func TestSetPct(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// 未填价格时使用 LTP: 50,000,000 / 740 * 0.25 = 16891.9 -> 16890
	qty, err := f.desk.SetPct(ctx, model.SideBuy, 0.25)
	require.NoError(t, err)
	assert.Equal(t, int64(16890), qty)

	require.NoError(t, f.desk.SetPrice(model.SideBuy, 750))
	qty, err = f.desk.SetPct(ctx, model.SideBuy, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(66660), qty)

	qty, err = f.desk.SetPct(ctx, model.SideSell, 0.5)
	require.NoError(t, err)
	assert.Equal(t, int64(500), qty)

	got, _ := f.desk.Ticket(model.SideSell)
	assert.Equal(t, int64(500), got)
}

func TestSubmitBuy(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.desk.SetQty(model.SideBuy, 100))
	require.NoError(t, f.desk.SetPrice(model.SideBuy, 740))

	order, err := f.desk.Submit(ctx, model.SideBuy)
	require.NoError(t, err)
	assert.Equal(t, "BUY 100 740 74000.00 OPEN", order.String())

	toast := f.rec.lastToast()
	assert.Equal(t, "BUY Order Placed: 100 @ 740", toast.Message)
	assert.Equal(t, render.ToastSuccess, toast.Kind)

	// 数量清空, 价格保留
	qty, price := f.desk.Ticket(model.SideBuy)
	assert.Equal(t, int64(0), qty)
	assert.Equal(t, 740.0, price)
	assert.Equal(t, "0.00", f.rec.tickets["buy"].Total)

	assert.Equal(t, "49926000.00", f.rec.collateral.Amount)
	require.Len(t, f.rec.orders.Rows, 1)
	assert.Equal(t, order.ID, f.rec.orders.Rows[0].ID)

	assert.Equal(t, []string{broker.SubjectOrderPlaced}, f.pub.subjects)
	require.Len(t, f.pub.collateral, 1)
	assert.Equal(t, "49926000", f.pub.collateral[0].Amount.String())
}

func TestSubmitRejected(t *testing.T) {
	f := newFixture(t)

	order, err := f.desk.PlaceOrder(context.Background(), model.SideBuy, 100, 760)
	require.Error(t, err)
	assert.Nil(t, order)
	reason, ok := executor.ReasonOf(err)
	require.True(t, ok)
	assert.Equal(t, executor.ReasonPriceOutOfBand, reason)

	toast := f.rec.lastToast()
	assert.Equal(t, "Error: Price out of band (725.2 - 754.8)", toast.Message)
	assert.Equal(t, render.ToastError, toast.Kind)
	assert.Empty(t, f.pub.subjects)
	assert.Equal(t, "50000000.00", f.rec.collateral.Amount)
}

func TestSellDoesNotPublishCollateral(t *testing.T) {
	f := newFixture(t)

	_, err := f.desk.PlaceOrder(context.Background(), model.SideSell, 50, 745)
	require.NoError(t, err)
	assert.Equal(t, "SELL Order Placed: 50 @ 745", f.rec.lastToast().Message)
	assert.Empty(t, f.pub.collateral)
}

func TestCancel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	buy, err := f.desk.PlaceOrder(ctx, model.SideBuy, 100, 740)
	require.NoError(t, err)
	sell, err := f.desk.PlaceOrder(ctx, model.SideSell, 10, 745.5)
	require.NoError(t, err)

	_, err = f.desk.Cancel(ctx, buy.ID)
	require.NoError(t, err)
	toast := f.rec.lastToast()
	assert.Equal(t, "Order Cancelled. Refunded NPR 74000.00", toast.Message)
	assert.Equal(t, render.ToastSuccess, toast.Kind)
	assert.Equal(t, "50000000.00", f.rec.collateral.Amount)

	_, err = f.desk.Cancel(ctx, sell.ID)
	require.NoError(t, err)
	toast = f.rec.lastToast()
	assert.Equal(t, "Order Cancelled", toast.Message)
	assert.Equal(t, render.ToastError, toast.Kind)
	assert.Equal(t, "No orders", f.rec.orders.Empty)

	_, err = f.desk.Cancel(ctx, buy.ID)
	assert.ErrorIs(t, err, executor.ErrOrderNotFound)

	assert.Equal(t, []string{
		broker.SubjectOrderPlaced,
		broker.SubjectOrderPlaced,
		broker.SubjectOrderCancelled,
		broker.SubjectOrderCancelled,
	}, f.pub.subjects)
}

func TestFillPriceFollowsMode(t *testing.T) {
	f := newFixture(t)

	f.desk.FillPrice(739.3)
	_, buyPrice := f.desk.Ticket(model.SideBuy)
	_, sellPrice := f.desk.Ticket(model.SideSell)
	assert.Equal(t, 739.3, buyPrice)
	assert.Zero(t, sellPrice)

	require.NoError(t, f.desk.SetTradeMode("dual"))
	f.desk.FillPrice(741)
	_, buyPrice = f.desk.Ticket(model.SideBuy)
	_, sellPrice = f.desk.Ticket(model.SideSell)
	assert.Equal(t, 741.0, buyPrice)
	assert.Equal(t, 741.0, sellPrice)
}

func TestSetTradeMode(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.desk.SetTradeMode("SELL"))
	assert.Equal(t, model.ModeSell, f.desk.Mode())
	assert.False(t, f.rec.tickets["buy"].Visible)
	assert.True(t, f.rec.tickets["sell"].Visible)

	assert.Error(t, f.desk.SetTradeMode("short"))
	assert.Equal(t, model.ModeSell, f.desk.Mode())
}

func TestShortcuts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.desk.Shortcut(ctx, "Shift+S", ""))
	assert.Equal(t, model.ModeSell, f.desk.Mode())
	assert.Equal(t, "Switched to SELL Mode", f.rec.lastToast().Message)

	require.NoError(t, f.desk.Shortcut(ctx, "ArrowUp", model.SideSell))
	require.NoError(t, f.desk.Shortcut(ctx, "ArrowUp", model.SideSell))
	qty, _ := f.desk.Ticket(model.SideSell)
	assert.Equal(t, int64(20), qty)

	require.NoError(t, f.desk.Shortcut(ctx, "ArrowDown", model.SideSell))
	qty, _ = f.desk.Ticket(model.SideSell)
	assert.Equal(t, int64(10), qty)

	// 卖出模式下 Ctrl+Enter 提交卖单
	require.NoError(t, f.desk.SetPrice(model.SideSell, 740))
	require.NoError(t, f.desk.Shortcut(ctx, "Ctrl+Enter", model.SideBuy))
	assert.Equal(t, "SELL Order Placed: 10 @ 740", f.rec.lastToast().Message)

	// 双向模式下未指定方向时提交买单
	require.NoError(t, f.desk.Shortcut(ctx, "shift+d", ""))
	require.NoError(t, f.desk.SetQty(model.SideBuy, 10))
	require.NoError(t, f.desk.SetPrice(model.SideBuy, 740))
	require.NoError(t, f.desk.Shortcut(ctx, "ctrl+enter", ""))
	assert.Equal(t, "BUY Order Placed: 10 @ 740", f.rec.lastToast().Message)

	assert.Error(t, f.desk.Shortcut(ctx, "F5", ""))
}

func TestRiskReward(t *testing.T) {
	f := newFixture(t)

	rr, err := f.desk.RiskReward(10, 5)
	require.NoError(t, err)
	assert.True(t, rr.Disabled)
	assert.Equal(t, "R:R --", f.rec.tickets["buy"].RiskReward.Ratio)

	require.NoError(t, f.desk.SetPrice(model.SideBuy, 740))
	rr, err = f.desk.RiskReward(10, 5)
	require.NoError(t, err)
	assert.InDelta(t, 814, rr.TargetPrice, 1e-9)
	assert.InDelta(t, 703, rr.StopPrice, 1e-9)

	view := f.rec.tickets["buy"].RiskReward
	require.NotNil(t, view)
	assert.Equal(t, "814.00", view.TargetPrice)
	assert.Equal(t, "R:R 1:2.0", view.Ratio)

	// 卖出面板没有止盈止损预览
	assert.Nil(t, f.rec.tickets["sell"].RiskReward)

	_, err = f.desk.RiskReward(10, 0)
	assert.Error(t, err)
}

func TestExport(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.desk.PlaceOrder(ctx, model.SideBuy, 100, 740)
	require.NoError(t, err)

	path, err := f.desk.Export(ctx)
	require.NoError(t, err)
	assert.Equal(t, "out/orders.xlsx", path)
	assert.Equal(t, "out/orders.xlsx", f.exp.path)
	assert.Equal(t, 1, f.exp.orders)
	assert.Equal(t, "49926000", f.exp.collateral.String())
}

func TestOnCollateralEvent(t *testing.T) {
	f := newFixture(t)

	f.desk.OnCollateralEvent(broker.CollateralEvent{Amount: decimal.NewFromInt(42000000), Version: 99, Origin: "cli"})
	assert.Equal(t, "42000000.00", f.rec.collateral.Amount)

	// 旧版本被忽略
	f.desk.OnCollateralEvent(broker.CollateralEvent{Amount: decimal.NewFromInt(1), Version: 2, Origin: "cli"})
	assert.Equal(t, "42000000.00", f.rec.collateral.Amount)
}

func TestRunConsumesSubscribedQuotes(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		f.desk.Run(ctx)
		close(done)
	}()

	before := f.rec.tickerCount()
	f.sim.Tick()

	assert.Eventually(t, func() bool { return f.rec.tickerCount() > before }, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("desk did not stop")
	}
}

func TestNewRequiresSourceAndExecutor(t *testing.T) {
	_, err := New(DefaultConfig(), Deps{})
	assert.Error(t, err)
}
