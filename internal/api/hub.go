package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"nepse-mock-trader/internal/model"
	"nepse-mock-trader/internal/render"
	"nepse-mock-trader/pkg/ta"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 64
)

// 新客户端连接时按此顺序回放快照
var snapshotOrder = []string{
	"mode", "ticker", "depth", "band", "collateral", "orders", "ticket.buy", "ticket.sell", "toast",
}

// Controller 交易台上可以通过 WebSocket 触发的操作
type Controller interface {
	ChangeSymbol(ctx context.Context, symbol string) error
	SetTradeMode(mode string) error
	SetQty(side model.Side, qty int64) error
	SetPrice(side model.Side, price float64) error
	FillPrice(price float64)
	AddQty(side model.Side, delta int64) (int64, error)
	SetPct(ctx context.Context, side model.Side, pct float64) (int64, error)
	Submit(ctx context.Context, side model.Side) (*model.Order, error)
	PlaceOrder(ctx context.Context, side model.Side, qty int64, price float64) (*model.Order, error)
	Cancel(ctx context.Context, orderID string) (*model.Order, error)
	RiskReward(targetPct, stopPct float64) (ta.RiskReward, error)
	Export(ctx context.Context) (string, error)
	Shortcut(ctx context.Context, key string, side model.Side) error
}

// Envelope 推送给客户端的消息
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Command 客户端发来的操作
type Command struct {
	Type      string  `json:"type"`
	Symbol    string  `json:"symbol,omitempty"`
	Mode      string  `json:"mode,omitempty"`
	Side      string  `json:"side,omitempty"`
	Qty       int64   `json:"qty,omitempty"`
	Price     float64 `json:"price,omitempty"`
	Delta     int64   `json:"delta,omitempty"`
	Pct       float64 `json:"pct,omitempty"`
	OrderID   string  `json:"orderId,omitempty"`
	TargetPct float64 `json:"targetPct,omitempty"`
	StopPct   float64 `json:"stopPct,omitempty"`
	Key       string  `json:"key,omitempty"`
}

var ErrNoController = errors.New("no controller attached")

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub 实现 render.Renderer: 广播视图给所有 WebSocket 客户端, 并缓存每类视图的最新一份
type Hub struct {
	logger   *zap.Logger
	upgrader websocket.Upgrader

	mu       sync.RWMutex
	clients  map[*client]struct{}
	snapshot map[string][]byte
	ctrl     Controller
}

func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		logger: logger.With(zap.String("Component", "hub")),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients:  make(map[*client]struct{}),
		snapshot: make(map[string][]byte),
	}
}

// SetController 绑定交易台. Hub 先于交易台创建, 因为交易台需要它作为 Renderer
func (h *Hub) SetController(c Controller) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ctrl = c
}

func (h *Hub) controller() Controller {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.ctrl
}

// Clients 当前连接数
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) RenderTicker(v render.TickerView)         { h.broadcast("ticker", "ticker", v) }
func (h *Hub) RenderDepth(v render.DepthView)           { h.broadcast("depth", "depth", v) }
func (h *Hub) RenderBand(v render.BandView)             { h.broadcast("band", "band", v) }
func (h *Hub) RenderCollateral(v render.CollateralView) { h.broadcast("collateral", "collateral", v) }
func (h *Hub) RenderOrders(v render.OrdersView)         { h.broadcast("orders", "orders", v) }
func (h *Hub) RenderMode(v render.ModeView)             { h.broadcast("mode", "mode", v) }
func (h *Hub) RenderToast(v render.Toast)               { h.broadcast("toast", "toast", v) }

func (h *Hub) RenderTicket(v render.TicketView) {
	h.broadcast("ticket", "ticket."+v.Side, v)
}

func (h *Hub) broadcast(typ, key string, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		h.logger.Error("Failed to marshal view", zap.String("Type", typ), zap.Error(err))
		return
	}
	msg, err := json.Marshal(Envelope{Type: typ, Data: data})
	if err != nil {
		h.logger.Error("Failed to marshal envelope", zap.String("Type", typ), zap.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.snapshot[key] = msg
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			// 慢客户端丢弃本条, 下一次渲染会带上最新状态
			h.logger.Debug("Client send buffer full, dropping message", zap.String("Type", typ))
		}
	}
}

// ServeHTTP 升级为 WebSocket 连接, 回放快照后开始收发
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}

	c := &client{conn: conn, send: make(chan []byte, sendBuffer+len(snapshotOrder))}

	h.mu.Lock()
	for _, key := range snapshotOrder {
		if msg, ok := h.snapshot[key]; ok {
			c.send <- msg
		}
	}
	h.clients[c] = struct{}{}
	total := len(h.clients)
	h.mu.Unlock()

	h.logger.Info("Client connected", zap.String("Remote", r.RemoteAddr), zap.Int("Clients", total))

	go h.writePump(c)
	h.readPump(r.Context(), c)
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	total := len(h.clients)
	h.mu.Unlock()

	c.conn.Close()
	h.logger.Info("Client disconnected", zap.Int("Clients", total))
}

func (h *Hub) readPump(ctx context.Context, c *client) {
	defer h.remove(c)

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("Unexpected client close", zap.Error(err))
			}
			return
		}

		var cmd Command
		if err := json.Unmarshal(data, &cmd); err != nil {
			h.reply(c, "error", map[string]string{"message": "malformed command"})
			continue
		}

		// 业务错误已经通过提示框渲染, 这里只回复给发起的客户端
		if err := h.Dispatch(ctx, cmd); err != nil {
			h.logger.Debug("Command failed", zap.String("Type", cmd.Type), zap.Error(err))
			h.reply(c, "error", map[string]string{"command": cmd.Type, "message": err.Error()})
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) reply(c *client, typ string, v interface{}) {
	data, _ := json.Marshal(v)
	msg, _ := json.Marshal(Envelope{Type: typ, Data: data})

	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}

// 需要指定买卖方向的命令
var sideCommands = map[string]bool{
	"qty": true, "price": true, "add_qty": true, "pct": true, "submit": true, "place": true,
}

// Dispatch 将命令转发给交易台
func (h *Hub) Dispatch(ctx context.Context, cmd Command) error {
	ctrl := h.controller()
	if ctrl == nil {
		return ErrNoController
	}

	switch cmd.Type {
	case "symbol":
		return ctrl.ChangeSymbol(ctx, cmd.Symbol)
	case "mode":
		return ctrl.SetTradeMode(cmd.Mode)
	case "fill":
		ctrl.FillPrice(cmd.Price)
		return nil
	case "cancel":
		_, err := ctrl.Cancel(ctx, cmd.OrderID)
		return err
	case "risk_reward":
		_, err := ctrl.RiskReward(cmd.TargetPct, cmd.StopPct)
		return err
	case "export":
		_, err := ctrl.Export(ctx)
		return err
	case "key":
		// 快捷键的方向可以省略
		s, _ := model.ParseSide(cmd.Side)
		return ctrl.Shortcut(ctx, cmd.Key, s)
	}

	if !sideCommands[cmd.Type] {
		return fmt.Errorf("unknown command type: %q", cmd.Type)
	}
	s, err := model.ParseSide(cmd.Side)
	if err != nil {
		return err
	}

	switch cmd.Type {
	case "qty":
		return ctrl.SetQty(s, cmd.Qty)
	case "price":
		return ctrl.SetPrice(s, cmd.Price)
	case "add_qty":
		_, err = ctrl.AddQty(s, cmd.Delta)
	case "pct":
		_, err = ctrl.SetPct(ctx, s, cmd.Pct)
	case "submit":
		_, err = ctrl.Submit(ctx, s)
	case "place":
		_, err = ctrl.PlaceOrder(ctx, s, cmd.Qty, cmd.Price)
	}
	return err
}

// Close 断开所有客户端
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}
