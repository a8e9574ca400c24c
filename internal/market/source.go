package market

import (
	"errors"
	"math/rand/v2"
	"time"

	"nepse-mock-trader/internal/model"
)

var ErrUnknownSymbol = errors.New("unknown symbol")

// QuoteSource 行情来源. 模拟器和远程行情都实现这个接口, 渲染层不关心具体来源
type QuoteSource interface {
	// GetQuote 返回最新快照
	GetQuote(symbol string) (model.Quote, error)

	// Subscribe 注册回调, 返回取消订阅函数. 回调不能阻塞
	Subscribe(symbol string, fn func(model.Quote)) (cancel func())
}

// Reseeder 切换品种时重新生成基准行情. 远程行情不实现
type Reseeder interface {
	Reseed(symbol string) (model.Quote, error)
}

// NewRand 创建随机源, seed 为 0 时使用当前时间
func NewRand(seed uint64) *rand.Rand {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}
