package market

import (
	"math/rand/v2"
	"sync"

	"nepse-mock-trader/internal/model"
	"nepse-mock-trader/internal/service"
)

const (
	depthLevels = 5
	depthStep   = 0.5 // 相邻档位的价差
)

// DepthSynthesizer 围绕 LTP 生成五档模拟盘口, 与真实成交无关
type DepthSynthesizer struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func NewDepthSynthesizer(rng *rand.Rand) *DepthSynthesizer {
	return &DepthSynthesizer{rng: rng}
}

// Generate 第 i 档买价 = ltp - i*0.5 - U[0,1), 卖价 = ltp + i*0.5 + U[0,1)
func (s *DepthSynthesizer) Generate(symbol string, ltp float64) model.Depth {
	s.mu.Lock()
	defer s.mu.Unlock()

	depth := model.Depth{
		Symbol: symbol,
		Bids:   make([]model.DepthLevel, 0, depthLevels),
		Asks:   make([]model.DepthLevel, 0, depthLevels),
	}

	for i := 1; i <= depthLevels; i++ {
		offset := float64(i) * depthStep

		bid := model.DepthLevel{
			Price:  service.Round1(ltp - offset - s.rng.Float64()),
			Volume: int64(s.rng.IntN(500)) + 10,
			Orders: s.rng.IntN(20) + 1,
		}
		ask := model.DepthLevel{
			Price:  service.Round1(ltp + offset + s.rng.Float64()),
			Volume: int64(s.rng.IntN(500)) + 10,
			Orders: s.rng.IntN(20) + 1,
		}

		depth.Bids = append(depth.Bids, bid)
		depth.Asks = append(depth.Asks, ask)
	}

	return depth
}
