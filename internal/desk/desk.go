package desk

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"nepse-mock-trader/internal/broker"
	"nepse-mock-trader/internal/executor"
	"nepse-mock-trader/internal/market"
	"nepse-mock-trader/internal/model"
	"nepse-mock-trader/internal/monitoring"
	"nepse-mock-trader/internal/render"
	"nepse-mock-trader/internal/report"
	"nepse-mock-trader/pkg/ta"
)

var (
	ErrSymbolTooShort = errors.New("symbol must have at least 3 characters")
	ErrUnknownSide    = errors.New("unknown side")
)

// 最少 3 个字符才会触发切换, 与搜索框一致
const minSymbolLen = 3

// Config 交易台配置
type Config struct {
	Symbol           string
	LotSize          int64
	PriceBandPercent float64
	MockHolding      int64
	Mode             model.TradeMode
	CandleInterval   string
	ReportPath       string
	Origin           string // 发布事件时使用的来源标识
	UpdateBuffer     int
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Symbol:           "NICA",
		LotSize:          model.LotSize,
		PriceBandPercent: model.PriceBandPercent,
		MockHolding:      model.MockHolding,
		Mode:             model.ModeBuy,
		CandleInterval:   "1m",
		ReportPath:       "reports/orders.xlsx",
		Origin:           "desk",
		UpdateBuffer:     64,
	}
}

// Deps 交易台依赖的组件
type Deps struct {
	Source    market.QuoteSource
	Executor  executor.Executor
	Depth     *market.DepthSynthesizer
	Renderer  render.Renderer
	Toaster   *render.Toaster
	Publisher broker.Publisher
	Exporter  report.Exporter
	TA        *ta.Calculator
	Logger    *zap.Logger
}

type ticket struct {
	qty   int64
	price float64
}

// Desk 是页面状态的唯一持有者: 股票, 行情, 盘口, 交易模式和买卖两个下单面板
type Desk struct {
	cfg Config

	source    market.QuoteSource
	exec      executor.Executor
	depthGen  *market.DepthSynthesizer
	renderer  render.Renderer
	toaster   *render.Toaster
	publisher broker.Publisher
	exporter  report.Exporter
	ta        *ta.Calculator
	logger    *zap.Logger

	mu          sync.Mutex
	symbol      string
	quote       model.Quote
	hasQuote    bool
	depth       model.Depth
	mode        model.TradeMode
	tickets     map[model.Side]*ticket
	targetPct   float64
	stopPct     float64
	candles     *model.CandleAggregator
	unsubscribe func()

	updates chan model.Quote
}

// New 构造交易台; Source 和 Executor 必须提供, 其余组件缺省时使用空实现
func New(cfg Config, deps Deps) (*Desk, error) {
	if deps.Source == nil || deps.Executor == nil {
		return nil, errors.New("desk: quote source and executor are required")
	}
	if cfg.LotSize <= 0 {
		cfg.LotSize = model.LotSize
	}
	if cfg.PriceBandPercent <= 0 {
		cfg.PriceBandPercent = model.PriceBandPercent
	}
	if cfg.Mode == "" {
		cfg.Mode = model.ModeBuy
	}
	if cfg.MockHolding <= 0 {
		cfg.MockHolding = model.MockHolding
	}
	if cfg.UpdateBuffer <= 0 {
		cfg.UpdateBuffer = 64
	}
	if cfg.CandleInterval == "" {
		cfg.CandleInterval = "1m"
	}

	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Renderer == nil {
		deps.Renderer = render.Nop{}
	}
	if deps.Toaster == nil {
		deps.Toaster = render.NewToaster(deps.Renderer, 3*time.Second)
	}
	if deps.Depth == nil {
		deps.Depth = market.NewDepthSynthesizer(market.NewRand(0))
	}
	if deps.Publisher == nil {
		deps.Publisher = broker.NoopPublisher{}
	}
	if deps.Exporter == nil {
		deps.Exporter = report.NewExcelExporter()
	}
	if deps.TA == nil {
		deps.TA = ta.NewCalculator(deps.Logger)
	}

	candles, err := model.NewCandleAggregator(cfg.Symbol, cfg.CandleInterval)
	if err != nil {
		return nil, err
	}

	return &Desk{
		cfg:       cfg,
		source:    deps.Source,
		exec:      deps.Executor,
		depthGen:  deps.Depth,
		renderer:  deps.Renderer,
		toaster:   deps.Toaster,
		publisher: deps.Publisher,
		exporter:  deps.Exporter,
		ta:        deps.TA,
		logger:    deps.Logger.With(zap.String("Component", "desk")),
		mode:      cfg.Mode,
		tickets: map[model.Side]*ticket{
			model.SideBuy:  {},
			model.SideSell: {},
		},
		targetPct: 10,
		stopPct:   5,
		candles:   candles,
		updates:   make(chan model.Quote, cfg.UpdateBuffer),
	}, nil
}

// Start 加载初始股票并渲染整页, 不显示提示
func (d *Desk) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	sym := normalizeSymbol(d.cfg.Symbol)
	if len(sym) < minSymbolLen {
		return ErrSymbolTooShort
	}
	d.switchSymbolLocked(sym, false)
	d.renderAllLocked()
	return nil
}

// Run 消费行情更新直到 ctx 取消
func (d *Desk) Run(ctx context.Context) {
	d.logger.Info("Desk refresh loop started", zap.String("Symbol", d.Symbol()))
	for {
		select {
		case <-ctx.Done():
			d.mu.Lock()
			if d.unsubscribe != nil {
				d.unsubscribe()
				d.unsubscribe = nil
			}
			d.mu.Unlock()
			d.logger.Info("Desk refresh loop stopped")
			return
		case q := <-d.updates:
			d.OnQuote(q)
		}
	}
}

// enqueue 是行情源的回调; 队列满时丢弃, 下一次更新会覆盖
func (d *Desk) enqueue(q model.Quote) {
	select {
	case d.updates <- q:
	default:
		d.logger.Warn("Update channel full, dropping quote", zap.String("Symbol", q.Symbol))
	}
}

// OnQuote 一次刷新: 更新行情, 重新生成盘口, 重算价格区间和指标, 然后渲染
func (d *Desk) OnQuote(q model.Quote) {
	d.mu.Lock()
	defer d.mu.Unlock()

	// 切换股票后旧订阅残留的更新直接忽略
	if q.Symbol != d.symbol {
		return
	}

	d.applyQuoteLocked(q)

	if candle, closed := d.candles.ProcessQuote(q); closed {
		d.ta.Update(candle)
	}

	d.renderer.RenderTicker(d.tickerViewLocked())
	d.renderer.RenderDepth(render.NewDepthView(d.depth))
	d.renderer.RenderBand(render.NewBandView(d.bandLocked()))
}

func (d *Desk) applyQuoteLocked(q model.Quote) {
	d.quote = q
	d.hasQuote = true
	d.exec.UpdateQuote(q)
	d.depth = d.depthGen.Generate(q.Symbol, q.LTP)
	monitoring.SetLTP(q.Symbol, q.LTP)
}

// ChangeSymbol 切换股票: 重新订阅, 重置行情和盘口, 渲染并提示
func (d *Desk) ChangeSymbol(ctx context.Context, symbol string) error {
	sym := normalizeSymbol(symbol)
	if len(sym) < minSymbolLen {
		return ErrSymbolTooShort
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.switchSymbolLocked(sym, true)
	d.renderAllLocked()
	d.toaster.Show(fmt.Sprintf("Switched to %s", sym), render.ToastSuccess)
	return nil
}

// switchSymbolLocked 切换品种; reseed 为 true 时模拟行情重新随机生成基准
func (d *Desk) switchSymbolLocked(sym string, reseed bool) {
	if d.unsubscribe != nil {
		d.unsubscribe()
		d.unsubscribe = nil
	}
	if d.symbol != "" {
		d.ta.Reset(d.symbol)
	}

	d.symbol = sym
	d.candles.Reset(sym)

	var q model.Quote
	var err error
	if r, ok := d.source.(market.Reseeder); ok && reseed {
		q, err = r.Reseed(sym)
	} else {
		q, err = d.source.GetQuote(sym)
	}
	if err != nil {
		// 远程行情在第一条推送到达前没有快照
		d.logger.Warn("No quote yet for symbol", zap.String("Symbol", sym), zap.Error(err))
		d.quote = model.Quote{Symbol: sym}
		d.hasQuote = false
		d.depth = model.Depth{Symbol: sym}
	} else {
		d.applyQuoteLocked(q)
	}

	d.unsubscribe = d.source.Subscribe(sym, d.enqueue)
	d.logger.Info("Symbol changed", zap.String("Symbol", sym), zap.Float64("LTP", d.quote.LTP))
}

// SetTradeMode 切换买/卖/双向模式, 只影响面板可见性
func (d *Desk) SetTradeMode(mode string) error {
	m, err := model.ParseTradeMode(mode)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.mode = m
	d.renderer.RenderMode(render.NewModeView(m))
	d.renderTicketsLocked()
	return nil
}

func (d *Desk) SetQty(side model.Side, qty int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	t, ok := d.tickets[side]
	if !ok {
		return ErrUnknownSide
	}
	t.qty = qty
	d.renderTicketLocked(side)
	return nil
}

func (d *Desk) SetPrice(side model.Side, price float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	t, ok := d.tickets[side]
	if !ok {
		return ErrUnknownSide
	}
	t.price = price
	d.renderTicketLocked(side)
	return nil
}

// FillPrice 点击盘口价格时写入当前可见的面板
func (d *Desk) FillPrice(price float64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, side := range []model.Side{model.SideBuy, model.SideSell} {
		if d.mode.Shows(side) {
			d.tickets[side].price = price
			d.renderTicketLocked(side)
		}
	}
}

// AddQty 按手数增减, 结果向下取整到整手且不少于一手
func (d *Desk) AddQty(side model.Side, delta int64) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	t, ok := d.tickets[side]
	if !ok {
		return 0, ErrUnknownSide
	}

	lot := d.cfg.LotSize
	qty := floorDiv(t.qty+delta, lot) * lot
	if qty < lot {
		qty = lot
	}
	t.qty = qty
	d.renderTicketLocked(side)
	return qty, nil
}

// SetPct 快捷比例: 买入按可用保证金计算, 卖出按模拟持仓计算
func (d *Desk) SetPct(ctx context.Context, side model.Side, pct float64) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	t, ok := d.tickets[side]
	if !ok {
		return 0, ErrUnknownSide
	}

	lot := d.cfg.LotSize
	var qty int64
	if side == model.SideBuy {
		price := t.price
		if price <= 0 {
			price = d.quote.LTP
		}
		if price <= 0 {
			return 0, fmt.Errorf("no price available for %s", d.symbol)
		}

		collateral, err := d.exec.GetCollateral(ctx)
		if err != nil {
			return 0, err
		}
		maxQty := collateral.InexactFloat64() / price * pct
		qty = int64(math.Floor(maxQty/float64(lot))) * lot
		if qty < lot {
			qty = 0
		}
	} else {
		qty = int64(math.Floor(float64(d.cfg.MockHolding)*pct/float64(lot))) * lot
	}

	t.qty = qty
	d.renderTicketLocked(side)
	return qty, nil
}

// Submit 以面板上的数量和价格下单
func (d *Desk) Submit(ctx context.Context, side model.Side) (*model.Order, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	t, ok := d.tickets[side]
	if !ok {
		return nil, ErrUnknownSide
	}
	return d.placeLocked(ctx, side, t.qty, t.price)
}

// PlaceOrder 直接以给定数量和价格下单
func (d *Desk) PlaceOrder(ctx context.Context, side model.Side, qty int64, price float64) (*model.Order, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.placeLocked(ctx, side, qty, price)
}

func (d *Desk) placeLocked(ctx context.Context, side model.Side, qty int64, price float64) (*model.Order, error) {
	order, err := d.exec.SubmitOrder(ctx, model.OrderRequest{
		Symbol: d.symbol,
		Side:   side,
		Qty:    qty,
		Price:  price,
	})
	if err != nil {
		d.toaster.Show(err.Error(), render.ToastError)
		return nil, err
	}

	d.toaster.Show(fmt.Sprintf("%s Order Placed: %d @ %s", side.Label(), qty, render.FormatNumber(price)), render.ToastSuccess)

	// 清空该方向的数量, 价格保留
	if t, ok := d.tickets[side]; ok {
		t.qty = 0
	}
	d.renderTicketLocked(side)
	d.renderOrdersLocked()
	d.renderCollateralLocked()

	d.publishOrder(broker.SubjectOrderPlaced, order)
	if side == model.SideBuy {
		d.publishCollateral()
	}
	return order, nil
}

// Cancel 撤单, 买单退回保证金
func (d *Desk) Cancel(ctx context.Context, orderID string) (*model.Order, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	order, err := d.exec.CancelOrder(ctx, orderID)
	if err != nil {
		d.toaster.Show(err.Error(), render.ToastError)
		return nil, err
	}

	if order.Side == model.SideBuy {
		d.toaster.Show(fmt.Sprintf("Order Cancelled. Refunded NPR %s", order.Total.StringFixed(2)), render.ToastSuccess)
	} else {
		d.toaster.Show("Order Cancelled", render.ToastError)
	}

	d.renderOrdersLocked()
	d.renderCollateralLocked()

	d.publishOrder(broker.SubjectOrderCancelled, order)
	if order.Side == model.SideBuy {
		d.publishCollateral()
	}
	return order, nil
}

// RiskReward 更新买入面板的止盈止损预览
func (d *Desk) RiskReward(targetPct, stopPct float64) (ta.RiskReward, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	rr, err := ta.CalculateRiskReward(d.tickets[model.SideBuy].price, targetPct, stopPct)
	if err != nil {
		return rr, err
	}
	d.targetPct, d.stopPct = targetPct, stopPct
	d.renderTicketLocked(model.SideBuy)
	return rr, nil
}

// Export 将最近委托导出到 Excel
func (d *Desk) Export(ctx context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	orders := d.exec.GetRecentOrders()
	collateral, err := d.exec.GetCollateral(ctx)
	if err != nil {
		return "", err
	}

	if err := d.exporter.ExportOrders(d.cfg.ReportPath, orders, collateral); err != nil {
		d.logger.Error("Failed to export orders", zap.String("Path", d.cfg.ReportPath), zap.Error(err))
		d.toaster.Show("Error: Export failed", render.ToastError)
		return "", err
	}

	d.logger.Info("Orders exported", zap.String("Path", d.cfg.ReportPath), zap.Int("Orders", len(orders)))
	d.toaster.Show(fmt.Sprintf("Exported %d orders to %s", len(orders), d.cfg.ReportPath), render.ToastSuccess)
	return d.cfg.ReportPath, nil
}

// OnCollateralEvent 接收其他进程写入的保证金
func (d *Desk) OnCollateralEvent(evt broker.CollateralEvent) {
	if !d.exec.SyncCollateral(evt.Balance()) {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.renderCollateralLocked()
}

var modeShortcuts = map[string]model.TradeMode{
	"shift+b": model.ModeBuy,
	"shift+s": model.ModeSell,
	"shift+d": model.ModeDual,
}

// Shortcut 键盘快捷键: Shift+B/S/D 切换模式, Ctrl+Enter 下单, ArrowUp/ArrowDown 增减一手
func (d *Desk) Shortcut(ctx context.Context, key string, side model.Side) error {
	key = strings.ToLower(strings.TrimSpace(key))
	if mode, ok := modeShortcuts[key]; ok {
		if err := d.SetTradeMode(string(mode)); err != nil {
			return err
		}
		d.toaster.Show(fmt.Sprintf("Switched to %s Mode", strings.ToUpper(string(mode))), render.ToastSuccess)
		return nil
	}

	switch key {
	case "ctrl+enter":
		d.mu.Lock()
		mode := d.mode
		d.mu.Unlock()
		// 双向模式下提交当前聚焦的面板, 默认买入
		if mode != model.ModeDual {
			side = model.Side(mode)
		} else if side != model.SideSell {
			side = model.SideBuy
		}
		_, err := d.Submit(ctx, side)
		return err
	case "arrowup":
		_, err := d.AddQty(side, d.cfg.LotSize)
		return err
	case "arrowdown":
		_, err := d.AddQty(side, -d.cfg.LotSize)
		return err
	}
	return fmt.Errorf("unknown shortcut: %q", key)
}

// Symbol 当前股票
func (d *Desk) Symbol() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.symbol
}

// Quote 当前行情
func (d *Desk) Quote() (model.Quote, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.quote, d.hasQuote
}

// Depth 当前盘口
func (d *Desk) Depth() model.Depth {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.depth
}

// Ticket 返回某一方向面板上的数量和价格
func (d *Desk) Ticket(side model.Side) (int64, float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if t, ok := d.tickets[side]; ok {
		return t.qty, t.price
	}
	return 0, 0
}

func (d *Desk) Mode() model.TradeMode {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mode
}

// RenderAll 重新渲染整页
func (d *Desk) RenderAll() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.renderAllLocked()
}

func (d *Desk) bandLocked() model.PriceBand {
	return model.NewPriceBand(d.quote.LTP, d.cfg.PriceBandPercent)
}

func (d *Desk) tickerViewLocked() render.TickerView {
	var ind *ta.Indicators
	if got, err := d.ta.Get(d.symbol); err == nil {
		ind = &got
	}
	return render.NewTickerView(d.quote, ind)
}

func (d *Desk) renderAllLocked() {
	d.renderer.RenderMode(render.NewModeView(d.mode))
	d.renderer.RenderTicker(d.tickerViewLocked())
	d.renderer.RenderDepth(render.NewDepthView(d.depth))
	d.renderer.RenderBand(render.NewBandView(d.bandLocked()))
	d.renderCollateralLocked()
	d.renderOrdersLocked()
	d.renderTicketsLocked()
}

func (d *Desk) renderTicketsLocked() {
	d.renderTicketLocked(model.SideBuy)
	d.renderTicketLocked(model.SideSell)
}

func (d *Desk) renderTicketLocked(side model.Side) {
	t := d.tickets[side]

	// 止盈止损预览只在买入方向显示 (不支持卖空)
	var rr *ta.RiskReward
	if side == model.SideBuy {
		if got, err := ta.CalculateRiskReward(t.price, d.targetPct, d.stopPct); err == nil {
			rr = &got
		}
	}
	d.renderer.RenderTicket(render.NewTicketView(side, d.mode.Shows(side), t.qty, t.price, rr))
}

func (d *Desk) renderOrdersLocked() {
	d.renderer.RenderOrders(render.NewOrdersView(d.exec.GetRecentOrders()))
}

func (d *Desk) renderCollateralLocked() {
	d.renderer.RenderCollateral(render.NewCollateralView(d.exec.Collateral().Amount))
}

func (d *Desk) publishOrder(subject string, order *model.Order) {
	evt := broker.OrderEvent{Order: *order, Origin: d.cfg.Origin, At: time.Now()}
	if err := d.publisher.PublishOrder(subject, evt); err != nil {
		d.logger.Debug("Failed to publish order event", zap.String("Subject", subject), zap.Error(err))
	}
}

func (d *Desk) publishCollateral() {
	evt := broker.NewCollateralEvent(d.exec.Collateral(), d.cfg.Origin)
	if err := d.publisher.PublishCollateral(evt); err != nil {
		d.logger.Debug("Failed to publish collateral event", zap.Error(err))
	}
}

func normalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// floorDiv 向负无穷取整的整数除法
func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
