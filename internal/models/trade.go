package models

import "time"

// Стороны ордера
const (
	SideBuy  = "buy"
	SideSell = "sell"
)

// Типы ордеров
const (
	OrderTypeIOC    = "IOC"    // immediate-or-cancel с лимитной ценой
	OrderTypeMarket = "market" // рыночный (только для unwind)
)

// FillStatus - статус исполнения ноги
type FillStatus string

// Статусы исполнения
const (
	FillStatusFilled   FillStatus = "filled"
	FillStatusPartial  FillStatus = "partial"
	FillStatusUnfilled FillStatus = "unfilled"
	FillStatusRejected FillStatus = "rejected"
	FillStatusTimedOut FillStatus = "timed_out"
)

// LegOrder - одна нога двуногой сделки.
// Лимитная цена = цена касания с guard-смещением: IOC ордер исполнится
// даже при небольшом неблагоприятном движении стакана, но проскальзывание
// ограничено сверху.
type LegOrder struct {
	Venue      string  `json:"venue"`
	Symbol     string  `json:"symbol"`
	Side       string  `json:"side"`
	Type       string  `json:"type"`
	LimitPrice float64 `json:"limit_price"` // 0 для market
	Quantity   float64 `json:"quantity"`
}

// LegOutcome - результат исполнения одной ноги
type LegOutcome struct {
	Order        LegOrder   `json:"order"`
	Status       FillStatus `json:"status"`
	FilledQty    float64    `json:"filled_qty"`
	AvgFillPrice float64    `json:"avg_fill_price"`
	Fee          float64    `json:"fee"` // в валюте котировки
	CompletedAt  time.Time  `json:"completed_at"`
}

// Filled возвращает true если нога исполнилась хотя бы частично
func (lo *LegOutcome) Filled() bool {
	return lo.FilledQty > 0
}

// ExecutionPlan - план двуногой сделки.
// Неизменяем после построения, потребляется координатором ровно один раз.
type ExecutionPlan struct {
	CorrelationID string    `json:"correlation_id"`
	Route         string    `json:"route"`
	Direction     Direction `json:"direction"`
	BuyLeg        LegOrder  `json:"buy_leg"`
	SellLeg       LegOrder  `json:"sell_leg"`
	Notional      float64   `json:"notional"` // зарезервированный нотионал
	CreatedAt     time.Time `json:"created_at"`
	ExpiresAt     time.Time `json:"expires_at"` // created + max_leg_latency
}

// Expired возвращает true если срок плана истёк
func (p *ExecutionPlan) Expired(now time.Time) bool {
	return now.After(p.ExpiresAt)
}

// UnwindAction - одна попытка выравнивания дисбаланса
type UnwindAction struct {
	Venue        string     `json:"venue"`
	Side         string     `json:"side"`
	Quantity     float64    `json:"quantity"`
	Status       FillStatus `json:"status"`
	FilledQty    float64    `json:"filled_qty"`
	AvgFillPrice float64    `json:"avg_fill_price"`
	Fee          float64    `json:"fee"`
	Attempt      int        `json:"attempt"`
}

// TradeOutcome - терминальная запись по сделке.
// После финализации не изменяется; передаётся риск-гавернору и в журнал.
type TradeOutcome struct {
	CorrelationID string         `json:"correlation_id"`
	Route         string         `json:"route"`
	Direction     Direction      `json:"direction"`
	BuyOutcome    LegOutcome     `json:"buy_outcome"`
	SellOutcome   LegOutcome     `json:"sell_outcome"`
	RealizedPnl   float64        `json:"realized_pnl"` // включая комиссии и стоимость unwind
	Imbalanced    bool           `json:"imbalanced"`   // остался ли неразрешённый дисбаланс
	Unwinds       []UnwindAction `json:"unwinds,omitempty"`
	SettledAt     time.Time      `json:"settled_at"`
}

// ExecutedNotional возвращает фактически исполненный нотионал
// (большая из двух ног - консервативная оценка потраченного бюджета)
func (t *TradeOutcome) ExecutedNotional() float64 {
	buy := t.BuyOutcome.FilledQty * t.BuyOutcome.AvgFillPrice
	sell := t.SellOutcome.FilledQty * t.SellOutcome.AvgFillPrice
	if buy > sell {
		return buy
	}
	return sell
}

// RiskState - снимок состояния риск-гавернора для журнала и API
type RiskState struct {
	DailyNotional     float64   `json:"daily_notional"`
	Reserved          float64   `json:"reserved"`
	ConsecutiveLosses int       `json:"consecutive_losses"`
	Paused            bool      `json:"paused"`
	PauseReason       string    `json:"pause_reason,omitempty"`
	SessionStart      time.Time `json:"session_start"`
	SessionEnd        time.Time `json:"session_end"`
	InFlightRoutes    []string  `json:"in_flight_routes,omitempty"`
	CapturedAt        time.Time `json:"captured_at"`
}
