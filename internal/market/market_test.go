package market

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"nepse-mock-trader/internal/model"
)

func TestDepthSynthesizerBounds(t *testing.T) {
	synth := NewDepthSynthesizer(NewRand(42))
	ltp := 740.0

	for run := 0; run < 200; run++ {
		depth := synth.Generate("NICA", ltp)
		require.Len(t, depth.Bids, 5)
		require.Len(t, depth.Asks, 5)
		assert.Equal(t, "NICA", depth.Symbol)

		for i := 0; i < 5; i++ {
			offset := float64(i+1) * 0.5
			bid, ask := depth.Bids[i], depth.Asks[i]

			// 四舍五入到 0.1 后仍在 [ltp-offset-1, ltp-offset] 之内
			assert.GreaterOrEqual(t, bid.Price, ltp-offset-1-1e-9)
			assert.LessOrEqual(t, bid.Price, ltp-offset+1e-9)
			assert.GreaterOrEqual(t, ask.Price, ltp+offset-1e-9)
			assert.LessOrEqual(t, ask.Price, ltp+offset+1+1e-9)

			for _, lvl := range []model.DepthLevel{bid, ask} {
				assert.GreaterOrEqual(t, lvl.Volume, int64(10))
				assert.LessOrEqual(t, lvl.Volume, int64(509))
				assert.GreaterOrEqual(t, lvl.Orders, 1)
				assert.LessOrEqual(t, lvl.Orders, 20)
			}
		}
	}
}

func TestDepthSynthesizerDeterministic(t *testing.T) {
	a := NewDepthSynthesizer(NewRand(7)).Generate("NICA", 500)
	b := NewDepthSynthesizer(NewRand(7)).Generate("NICA", 500)
	assert.Equal(t, a, b)
}

func TestSimulatorSeedsFromCatalog(t *testing.T) {
	sim := NewSimulator(nil, time.Second, NewRand(1), zap.NewNop())

	q, err := sim.GetQuote("nica")
	require.NoError(t, err)
	assert.Equal(t, "NICA", q.Symbol)
	assert.Equal(t, 740.0, q.LTP)
	assert.Equal(t, 732.0, q.PreviousClose)
	assert.Equal(t, int64(45020), q.Volume)

	_, err = sim.GetQuote("  ")
	assert.ErrorIs(t, err, ErrUnknownSymbol)
}

func TestSimulatorRandomSeedForUnknownSymbol(t *testing.T) {
	sim := NewSimulator(nil, time.Second, NewRand(3), zap.NewNop())

	q, err := sim.GetQuote("ZZZ")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, q.LTP, 100.0)
	assert.Less(t, q.LTP, 2100.0)
	assert.InDelta(t, q.LTP, q.PreviousClose, 5)
	assert.Equal(t, q.PreviousClose, q.Open)
	assert.Equal(t, q.LTP+5, q.High)
	assert.Equal(t, q.LTP-5, q.Low)

	// 第二次读取返回同一份行情
	again, err := sim.GetQuote("ZZZ")
	require.NoError(t, err)
	assert.Equal(t, q.LTP, again.LTP)
}

func TestSimulatorReseed(t *testing.T) {
	sim := NewSimulator(nil, time.Second, NewRand(13), zap.NewNop())

	first, err := sim.Reseed("xyz")
	require.NoError(t, err)
	assert.Equal(t, "XYZ", first.Symbol)
	assert.GreaterOrEqual(t, first.LTP, 100.0)
	assert.Less(t, first.LTP, 2100.0)

	// 快照保存下来, GetQuote 返回同一份
	got, err := sim.GetQuote("XYZ")
	require.NoError(t, err)
	assert.Equal(t, first, got)

	second, err := sim.Reseed("XYZ")
	require.NoError(t, err)
	assert.NotEqual(t, first.PreviousClose, second.PreviousClose)

	// 目录中的品种也不再回到目录值
	nica, err := sim.Reseed("NICA")
	require.NoError(t, err)
	assert.NotEqual(t, 732.0, nica.PreviousClose)
	assert.InDelta(t, nica.LTP, nica.PreviousClose, 5)

	_, err = sim.Reseed(" ")
	assert.ErrorIs(t, err, ErrUnknownSymbol)
}

func TestSimulatorStepIsBoundedWalk(t *testing.T) {
	sim := NewSimulator(nil, time.Second, NewRand(9), zap.NewNop())
	prev, err := sim.GetQuote("NICA")
	require.NoError(t, err)

	for i := 0; i < 500; i++ {
		q := sim.Step("NICA")
		// 一次移动不超过 1 (加上四舍五入的 0.05)
		assert.LessOrEqual(t, q.LTP-prev.LTP, 1.05)
		assert.GreaterOrEqual(t, q.LTP-prev.LTP, -1.05)
		assert.GreaterOrEqual(t, q.High, q.LTP)
		assert.LessOrEqual(t, q.Low, q.LTP)
		assert.InDelta(t, q.LTP*10, float64(int64(q.LTP*10+0.5)), 1e-6, "one decimal place")
		prev = q
	}
}

func TestSimulatorSubscribeAndTick(t *testing.T) {
	sim := NewSimulator(nil, 10*time.Millisecond, NewRand(5), zap.NewNop())

	var mu sync.Mutex
	var got []model.Quote
	cancel := sim.Subscribe("NICA", func(q model.Quote) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, q)
	})

	sim.Tick()
	sim.Tick()

	mu.Lock()
	assert.Len(t, got, 2)
	mu.Unlock()

	cancel()
	cancel() // 重复取消是安全的
	sim.Tick()

	mu.Lock()
	assert.Len(t, got, 2)
	mu.Unlock()
}

func TestSimulatorRunStopsOnCancel(t *testing.T) {
	sim := NewSimulator(nil, 5*time.Millisecond, NewRand(11), zap.NewNop())

	ticks := make(chan model.Quote, 100)
	sim.Subscribe("NICA", func(q model.Quote) {
		select {
		case ticks <- q:
		default:
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sim.Run(ctx)
		close(done)
	}()

	select {
	case q := <-ticks:
		assert.Equal(t, "NICA", q.Symbol)
	case <-time.After(time.Second):
		t.Fatal("no tick received")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}
}

func TestLoadCatalog(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "instruments.yaml")
	body := `
instruments:
  - symbol: nabil
    ltp: 512.5
    previous_close: 505
    volume: 1200
  - symbol: UPPER
    ltp: 300
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	catalog, err := LoadCatalog(path)
	require.NoError(t, err)

	assert.Contains(t, catalog, "NICA", "built-in entry is kept")
	nabil := catalog["NABIL"]
	assert.Equal(t, 512.5, nabil.LTP)
	assert.Equal(t, 505.0, nabil.Open)
	assert.Equal(t, 512.5, nabil.High)
	assert.Equal(t, 512.5, nabil.Low)
	assert.Equal(t, 512.5, nabil.AvgPrice)
	assert.Equal(t, 300.0, catalog["UPPER"].PreviousClose)

	empty, err := LoadCatalog("")
	require.NoError(t, err)
	assert.Len(t, empty, 1)
}

func TestLoadCatalogErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadCatalog(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("instruments:\n  - symbol: X\n    ltp: 0\n"), 0o644))
	_, err = LoadCatalog(bad)
	assert.Error(t, err)

	noSym := filepath.Join(dir, "nosym.yaml")
	require.NoError(t, os.WriteFile(noSym, []byte("instruments:\n  - ltp: 10\n"), 0o644))
	_, err = LoadCatalog(noSym)
	assert.Error(t, err)
}
