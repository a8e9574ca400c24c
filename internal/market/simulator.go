package market

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"nepse-mock-trader/internal/model"
	"nepse-mock-trader/internal/service"
)

// 价格不能走到 0 以下
const minPrice = 0.1

// Simulator 本地随机游走行情, 实现 QuoteSource
type Simulator struct {
	mu       sync.Mutex
	rng      *rand.Rand
	catalog  Catalog
	quotes   map[string]*model.Quote
	subs     map[string]map[int]func(model.Quote)
	nextSub  int
	interval time.Duration
	logger   *zap.Logger

	now func() time.Time
}

// NewSimulator 创建模拟行情, interval 为刷新周期
func NewSimulator(catalog Catalog, interval time.Duration, rng *rand.Rand, logger *zap.Logger) *Simulator {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Simulator{
		rng:      rng,
		catalog:  catalog,
		quotes:   make(map[string]*model.Quote),
		subs:     make(map[string]map[int]func(model.Quote)),
		interval: interval,
		logger:   logger.With(zap.String("source", "simulator")),
		now:      time.Now,
	}
}

// GetQuote 返回最新快照; 第一次请求时从目录初始化, 目录中没有则随机生成.
// 已有快照会一直保留, 需要新基准时调用 Reseed
func (s *Simulator) GetQuote(symbol string) (model.Quote, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return model.Quote{}, fmt.Errorf("%w: empty symbol", ErrUnknownSymbol)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return *s.quoteLocked(symbol), nil
}

func (s *Simulator) quoteLocked(symbol string) *model.Quote {
	if q, ok := s.quotes[symbol]; ok {
		return q
	}

	var q model.Quote
	if seed, ok := s.catalog[symbol]; ok {
		q = seed
		q.UpdatedAt = s.now()
	} else {
		q = s.randomQuoteLocked(symbol)
	}
	s.quotes[symbol] = &q

	s.logger.Debug("Seeded quote", zap.String("Symbol", symbol), zap.Float64("LTP", q.LTP))
	return &q
}

// Reseed 丢弃已有行情并随机生成新的基准, 目录只在首次读取时使用
func (s *Simulator) Reseed(symbol string) (model.Quote, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return model.Quote{}, fmt.Errorf("%w: empty symbol", ErrUnknownSymbol)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	q := s.randomQuoteLocked(symbol)
	s.quotes[symbol] = &q

	s.logger.Debug("Reseeded quote", zap.String("Symbol", symbol), zap.Float64("LTP", q.LTP))
	return q, nil
}

// randomQuoteLocked 随机基准: LTP 在 100-2100 之间, 昨收在 LTP ±5 之内
func (s *Simulator) randomQuoteLocked(symbol string) model.Quote {
	ltp := float64(s.rng.IntN(2000) + 100)
	prevClose := ltp - (s.rng.Float64()*10 - 5)

	return model.Quote{
		Symbol:        symbol,
		LTP:           ltp,
		Open:          prevClose,
		High:          ltp + 5,
		Low:           ltp - 5,
		PreviousClose: prevClose,
		Volume:        int64(s.rng.IntN(100000)),
		AvgPrice:      ltp,
		UpdatedAt:     s.now(),
	}
}

// Step 对 LTP 做一次 U(-1,1) 的随机游走, 保留一位小数
func (s *Simulator) Step(symbol string) model.Quote {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))

	s.mu.Lock()
	defer s.mu.Unlock()

	q := s.quoteLocked(symbol)

	move := (s.rng.Float64() - 0.5) * 2
	q.LTP = math.Max(minPrice, service.Round1(q.LTP+move))
	q.High = math.Max(q.High, q.LTP)
	q.Low = math.Min(q.Low, q.LTP)
	q.UpdatedAt = s.now()

	return *q
}

// Subscribe 实现 QuoteSource
func (s *Simulator) Subscribe(symbol string, fn func(model.Quote)) func() {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))

	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSub
	s.nextSub++
	if s.subs[symbol] == nil {
		s.subs[symbol] = make(map[int]func(model.Quote))
	}
	s.subs[symbol][id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.subs[symbol], id)
			if len(s.subs[symbol]) == 0 {
				delete(s.subs, symbol)
			}
		})
	}
}

// Tick 推进所有被订阅的股票一步并通知订阅者
func (s *Simulator) Tick() {
	s.mu.Lock()
	symbols := make([]string, 0, len(s.subs))
	for sym := range s.subs {
		symbols = append(symbols, sym)
	}
	s.mu.Unlock()

	for _, sym := range symbols {
		q := s.Step(sym)

		// 回调在锁外执行, 避免回调里再次调用 GetQuote 死锁
		s.mu.Lock()
		fns := make([]func(model.Quote), 0, len(s.subs[sym]))
		for _, fn := range s.subs[sym] {
			fns = append(fns, fn)
		}
		s.mu.Unlock()

		for _, fn := range fns {
			fn(q)
		}
	}
}

// Run 固定周期刷新行情, 直到 ctx 被取消
func (s *Simulator) Run(ctx context.Context) {
	s.logger.Info("Quote simulator started", zap.Duration("Interval", s.interval))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Quote simulator stopped")
			return
		case <-ticker.C:
			s.Tick()
		}
	}
}
