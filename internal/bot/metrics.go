package bot

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ============================================================
// Prometheus метрики торгового ядра
// ============================================================

// ============ Стаканы ============

// BooksUpdated - принятые обновления стаканов
var BooksUpdated = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "spotperp",
		Subsystem: "books",
		Name:      "updates_total",
		Help:      "Accepted order book snapshots",
	},
	[]string{"venue", "symbol"},
)

// BooksRejected - отброшенные невалидные снимки
var BooksRejected = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "spotperp",
		Subsystem: "books",
		Name:      "rejected_total",
		Help:      "Order book snapshots rejected by validation",
	},
	[]string{"venue", "symbol"},
)

// ============ Детектор ============

// EdgeObserved - наблюдаемый чистый эдж по маршрутам
var EdgeObserved = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "spotperp",
		Subsystem: "detector",
		Name:      "net_edge_bps",
		Help:      "Observed net edge in basis points",
		Buckets:   []float64{-20, -10, -5, 0, 5, 10, 20, 30, 50, 100},
	},
	[]string{"route"},
)

// OpportunitiesDetected - обнаруженные возможности
var OpportunitiesDetected = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "spotperp",
		Subsystem: "detector",
		Name:      "opportunities_total",
		Help:      "Opportunities that crossed the edge threshold",
	},
	[]string{"route", "direction"},
)

// ============ Исполнение ============

// TradesSettled - завершённые сделки по результату
var TradesSettled = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "spotperp",
		Subsystem: "execution",
		Name:      "trades_total",
		Help:      "Settled trades by result",
	},
	[]string{"route", "result"}, // result: both_filled, unwound, unwind_failed, noop
)

// PnlRealized - суммарный реализованный PnL в USD
var PnlRealized = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "spotperp",
		Subsystem: "execution",
		Name:      "pnl_usd_total",
		Help:      "Cumulative realized PnL in USD (positive and negative parts)",
	},
	[]string{"route", "sign"}, // sign: gain, loss
)

// LegLatency - время от отправки ноги до терминального результата
var LegLatency = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "spotperp",
		Subsystem: "execution",
		Name:      "leg_latency_ms",
		Help:      "Leg dispatch-to-outcome latency in milliseconds",
		Buckets:   []float64{10, 25, 50, 100, 250, 500, 1000, 1500, 3000},
	},
	[]string{"venue", "side"},
)

// UnwindAttempts - попытки выравнивания дисбаланса
var UnwindAttempts = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "spotperp",
		Subsystem: "execution",
		Name:      "unwind_attempts_total",
		Help:      "Unwind order attempts by outcome",
	},
	[]string{"route", "outcome"}, // outcome: filled, partial, failed
)

// ============ Риск-гавернор ============

// DailyNotionalUsed - использованный дневной нотионал
var DailyNotionalUsed = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "spotperp",
		Subsystem: "risk",
		Name:      "daily_notional_usd",
		Help:      "Executed notional counted against the daily cap",
	},
)

// NotionalReserved - нотионал удержанный активными резервациями
var NotionalReserved = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "spotperp",
		Subsystem: "risk",
		Name:      "reserved_notional_usd",
		Help:      "Notional held by in-flight reservations",
	},
)

// ConsecutiveLosses - текущая серия убыточных сделок
var ConsecutiveLosses = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "spotperp",
		Subsystem: "risk",
		Name:      "consecutive_losses",
		Help:      "Current losing streak length",
	},
)

// TradingPaused - флаг паузы (1 = пауза)
var TradingPaused = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "spotperp",
		Subsystem: "risk",
		Name:      "paused",
		Help:      "Whether new entries are paused (1 = paused)",
	},
)

// RiskRejections - отказы гавернора по причинам
var RiskRejections = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "spotperp",
		Subsystem: "risk",
		Name:      "rejections_total",
		Help:      "Reservation requests rejected by the governor",
	},
	[]string{"reason"}, // paused, daily_cap, in_flight, session_ended
)

// ============ Буферы ============

// BufferOverflows - переполнения буферов каналов
var BufferOverflows = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "spotperp",
		Subsystem: "runtime",
		Name:      "buffer_overflows_total",
		Help:      "Channel buffer overflows (events dropped)",
	},
	[]string{"buffer"}, // notification, journal, ws_broadcast
)

// RecordTradeSettled записывает завершённую сделку
func RecordTradeSettled(route, result string, pnl float64) {
	TradesSettled.WithLabelValues(route, result).Inc()
	if pnl > 0 {
		PnlRealized.WithLabelValues(route, "gain").Add(pnl)
	} else if pnl < 0 {
		PnlRealized.WithLabelValues(route, "loss").Add(-pnl)
	}
}

// RecordBufferOverflow записывает переполнение буфера
func RecordBufferOverflow(bufferName string) {
	BufferOverflows.WithLabelValues(bufferName).Inc()
}
