package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ticksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trading_engine_ticks_total",
			Help: "Total number of ticks consumed from the price stream",
		},
		[]string{"result"},
	)

	candlesUpserted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trading_engine_candles_upserted_total",
			Help: "Total number of candles written to storage",
		},
		[]string{"granularity"},
	)

	messagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trading_engine_messages_total",
			Help: "Total number of bus messages by topic and outcome",
		},
		[]string{"topic", "result"},
	)

	messageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "trading_engine_message_duration_seconds",
			Help:    "Message handling duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 2.0, 5.0},
		},
		[]string{"topic"},
	)

	orderEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trading_engine_order_events_total",
			Help: "Total number of order-result events by status and outcome",
		},
		[]string{"status", "result"},
	)

	balanceSyncTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trading_engine_balance_sync_total",
			Help: "Total number of external balance queries",
		},
		[]string{"account_type", "result"},
	)

	tickCacheStocks = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "trading_engine_tick_cache_stocks",
			Help: "Number of stocks in the current tick cache bucket",
		},
	)
)

// RecordTick counts one consumed tick.
func RecordTick(result string) {
	ticksTotal.WithLabelValues(result).Inc()
}

// RecordCandles counts candles written to storage.
func RecordCandles(granularity string, n int) {
	candlesUpserted.WithLabelValues(granularity).Add(float64(n))
}

// RecordMessage counts one bus message and its handling time.
func RecordMessage(topic, result string, elapsed time.Duration) {
	messagesTotal.WithLabelValues(topic, result).Inc()
	messageDuration.WithLabelValues(topic).Observe(elapsed.Seconds())
}

// RecordOrderEvent counts one order-result event.
func RecordOrderEvent(status, result string) {
	orderEventsTotal.WithLabelValues(status, result).Inc()
}

// RecordBalanceSync counts one external balance query.
func RecordBalanceSync(accountType, result string) {
	balanceSyncTotal.WithLabelValues(accountType, result).Inc()
}

// SetTickCacheStocks reports the current tick cache width.
func SetTickCacheStocks(n int) {
	tickCacheStocks.Set(float64(n))
}
