package api

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"nepse-mock-trader/internal/market"
	"nepse-mock-trader/internal/model"
)

const (
	baseDelay = 1 * time.Second
	maxDelay  = 60 * time.Second
)

// CalculateBackoff 重连等待时间: baseDelay * 2^retryCount, 最多 maxDelay
func CalculateBackoff(retryCount int) time.Duration {
	if retryCount < 0 {
		return baseDelay
	}
	if retryCount > 30 {
		return maxDelay
	}

	backoff := baseDelay * time.Duration(1<<retryCount)
	if backoff > maxDelay {
		return maxDelay
	}
	return backoff
}

// FeedMessage 行情推送格式
type FeedMessage struct {
	Event    string  `json:"event,omitempty"` // 订阅确认等控制消息
	Symbol   string  `json:"symbol"`
	LTP      float64 `json:"ltp"`
	Open     float64 `json:"open"`
	High     float64 `json:"high"`
	Low      float64 `json:"low"`
	Close    float64 `json:"close"` // 昨收
	Volume   int64   `json:"volume"`
	Turnover float64 `json:"turnover"`
	Avg      float64 `json:"avg"`
	Ts       int64   `json:"ts"` // 毫秒
}

func (m FeedMessage) Quote() model.Quote {
	q := model.Quote{
		Symbol:        strings.ToUpper(m.Symbol),
		LTP:           m.LTP,
		Open:          m.Open,
		High:          m.High,
		Low:           m.Low,
		PreviousClose: m.Close,
		Volume:        m.Volume,
		Turnover:      m.Turnover,
		AvgPrice:      m.Avg,
	}
	if m.Ts > 0 {
		q.UpdatedAt = time.UnixMilli(m.Ts)
	} else {
		q.UpdatedAt = time.Now()
	}
	return q
}

type subscribeMsg struct {
	Op   string   `json:"op"`
	Args []string `json:"args"`
}

// Connector 远程 WebSocket 行情源, 实现 market.QuoteSource
type Connector struct {
	wsURL  string
	dialer *websocket.Dialer
	logger *zap.Logger

	mu      sync.RWMutex
	quotes  map[string]model.Quote
	subs    map[string]map[int]func(model.Quote)
	nextSub int

	writeMu sync.Mutex // gorilla 只允许一个并发写
	conn    *websocket.Conn

	backoff func(int) time.Duration
}

func NewConnector(wsURL string, logger *zap.Logger) *Connector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Connector{
		wsURL:   wsURL,
		dialer:  &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		logger:  logger.With(zap.String("Component", "connector")),
		quotes:  make(map[string]model.Quote),
		subs:    make(map[string]map[int]func(model.Quote)),
		backoff: CalculateBackoff,
	}
}

// GetQuote 返回最近一次收到的行情
func (c *Connector) GetQuote(symbol string) (model.Quote, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))

	c.mu.RLock()
	defer c.mu.RUnlock()

	q, ok := c.quotes[symbol]
	if !ok {
		return model.Quote{}, market.ErrUnknownSymbol
	}
	return q, nil
}

// Subscribe 注册回调; 已连接时立即发送订阅消息, 重连后会自动重新订阅
func (c *Connector) Subscribe(symbol string, fn func(model.Quote)) func() {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))

	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	first := len(c.subs[symbol]) == 0
	if first {
		c.subs[symbol] = make(map[int]func(model.Quote))
	}
	c.subs[symbol][id] = fn
	c.mu.Unlock()

	if first {
		c.send(subscribeMsg{Op: "subscribe", Args: []string{symbol}})
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs[symbol], id)
			last := len(c.subs[symbol]) == 0
			if last {
				delete(c.subs, symbol)
			}
			c.mu.Unlock()

			if last {
				c.send(subscribeMsg{Op: "unsubscribe", Args: []string{symbol}})
			}
		})
	}
}

func (c *Connector) send(msg subscribeMsg) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.conn == nil {
		return
	}
	if err := c.conn.WriteJSON(msg); err != nil {
		c.logger.Warn("Failed to send feed request", zap.String("Op", msg.Op), zap.Error(err))
	}
}

// Run 连接并读取行情, 断线后按指数退避重连, 直到 ctx 取消
func (c *Connector) Run(ctx context.Context) {
	retry := 0
	for {
		if ctx.Err() != nil {
			return
		}

		conn, _, err := c.dialer.DialContext(ctx, c.wsURL, nil)
		if err != nil {
			delay := c.backoff(retry)
			c.logger.Warn("Failed to connect to feed, retrying",
				zap.String("URL", c.wsURL), zap.Int("Retry", retry), zap.Duration("Delay", delay), zap.Error(err))
			retry++

			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			continue
		}

		retry = 0
		c.logger.Info("Connected to feed", zap.String("URL", c.wsURL))
		c.readLoop(ctx, conn)
	}
}

func (c *Connector) readLoop(ctx context.Context, conn *websocket.Conn) {
	c.writeMu.Lock()
	c.conn = conn
	c.writeMu.Unlock()

	// 重新订阅所有品种
	c.mu.RLock()
	symbols := make([]string, 0, len(c.subs))
	for s := range c.subs {
		symbols = append(symbols, s)
	}
	c.mu.RUnlock()
	if len(symbols) > 0 {
		c.send(subscribeMsg{Op: "subscribe", Args: symbols})
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	defer func() {
		c.writeMu.Lock()
		c.conn = nil
		c.writeMu.Unlock()
		conn.Close()
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				c.logger.Error("Error reading feed message, reconnecting", zap.Error(err))
			}
			return
		}
		c.handleMessage(message)
	}
}

// handleMessage 解码行情并通知订阅者 (回调在锁外执行)
func (c *Connector) handleMessage(data []byte) {
	var msg FeedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.logger.Debug("Dropping malformed feed message", zap.Error(err))
		return
	}
	if msg.Event != "" || msg.Symbol == "" || msg.LTP <= 0 {
		return
	}

	q := msg.Quote()

	c.mu.Lock()
	c.quotes[q.Symbol] = q
	fns := make([]func(model.Quote), 0, len(c.subs[q.Symbol]))
	for _, fn := range c.subs[q.Symbol] {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn(q)
	}
}
