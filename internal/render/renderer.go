package render

// Renderer 接收视图模型; 实现必须是并发安全的 (提示框的隐藏来自定时器 goroutine)
type Renderer interface {
	RenderTicker(v TickerView)
	RenderDepth(v DepthView)
	RenderBand(v BandView)
	RenderCollateral(v CollateralView)
	RenderOrders(v OrdersView)
	RenderMode(v ModeView)
	RenderTicket(v TicketView)
	RenderToast(v Toast)
}

// Multi 将视图分发给多个 Renderer
type Multi []Renderer

func (m Multi) RenderTicker(v TickerView) {
	for _, r := range m {
		r.RenderTicker(v)
	}
}

func (m Multi) RenderDepth(v DepthView) {
	for _, r := range m {
		r.RenderDepth(v)
	}
}

func (m Multi) RenderBand(v BandView) {
	for _, r := range m {
		r.RenderBand(v)
	}
}

func (m Multi) RenderCollateral(v CollateralView) {
	for _, r := range m {
		r.RenderCollateral(v)
	}
}

func (m Multi) RenderOrders(v OrdersView) {
	for _, r := range m {
		r.RenderOrders(v)
	}
}

func (m Multi) RenderMode(v ModeView) {
	for _, r := range m {
		r.RenderMode(v)
	}
}

func (m Multi) RenderTicket(v TicketView) {
	for _, r := range m {
		r.RenderTicket(v)
	}
}

func (m Multi) RenderToast(v Toast) {
	for _, r := range m {
		r.RenderToast(v)
	}
}

// Nop 丢弃所有视图
type Nop struct{}

func (Nop) RenderTicker(TickerView)         {}
func (Nop) RenderDepth(DepthView)           {}
func (Nop) RenderBand(BandView)             {}
func (Nop) RenderCollateral(CollateralView) {}
func (Nop) RenderOrders(OrdersView)         {}
func (Nop) RenderMode(ModeView)             {}
func (Nop) RenderTicket(TicketView)         {}
func (Nop) RenderToast(Toast)               {}
