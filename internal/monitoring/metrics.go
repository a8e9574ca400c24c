package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// 下单指标
	ordersPlaced = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nepse_mock_orders_placed_total",
			Help: "Total number of mock orders accepted",
		},
		[]string{"symbol", "side"},
	)

	ordersRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nepse_mock_orders_rejected_total",
			Help: "Total number of mock orders rejected by validation",
		},
		[]string{"reason"},
	)

	ordersCancelled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nepse_mock_orders_cancelled_total",
			Help: "Total number of mock orders cancelled",
		},
		[]string{"side"},
	)

	orderAmount = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nepse_mock_order_amount_npr",
			Help:    "Distribution of accepted order amounts (qty * price)",
			Buckets: prometheus.ExponentialBuckets(1000, 4, 10),
		},
		[]string{"side"},
	)

	// 账户与行情
	collateral = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "nepse_mock_collateral_npr",
			Help: "Available collateral balance",
		},
	)

	lastTradedPrice = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "nepse_mock_ltp",
			Help: "Last traded price of the active instrument",
		},
		[]string{"symbol"},
	)

	storeErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nepse_mock_store_errors_total",
			Help: "Collateral store failures by operation",
		},
		[]string{"op"},
	)
)

func init() {
	prometheus.MustRegister(ordersPlaced)
	prometheus.MustRegister(ordersRejected)
	prometheus.MustRegister(ordersCancelled)
	prometheus.MustRegister(orderAmount)
	prometheus.MustRegister(collateral)
	prometheus.MustRegister(lastTradedPrice)
	prometheus.MustRegister(storeErrors)
}

// Handler 返回 /metrics 的处理器
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordOrderPlaced 记录一笔被接受的订单
func RecordOrderPlaced(symbol, side string, amount float64) {
	ordersPlaced.WithLabelValues(symbol, side).Inc()
	orderAmount.WithLabelValues(side).Observe(amount)
}

// RecordOrderRejected 按拒绝原因计数
func RecordOrderRejected(reason string) {
	ordersRejected.WithLabelValues(reason).Inc()
}

func RecordOrderCancelled(side string) {
	ordersCancelled.WithLabelValues(side).Inc()
}

func SetCollateral(amount float64) {
	collateral.Set(amount)
}

func SetLTP(symbol string, ltp float64) {
	lastTradedPrice.WithLabelValues(symbol).Set(ltp)
}

func RecordStoreError(op string) {
	storeErrors.WithLabelValues(op).Inc()
}
