package websocket

import "time"

// Типы broadcast сообщений
const (
	// MessageTypeTradeOutcome - терминальная запись по сделке
	MessageTypeTradeOutcome = "trade_outcome"

	// MessageTypeNotification - операторское уведомление
	MessageTypeNotification = "notification"

	// MessageTypeRiskState - снимок риск-гавернора
	MessageTypeRiskState = "risk_state"

	// MessageTypeRouteStatus - наблюдаемое состояние маршрута
	MessageTypeRouteStatus = "route_status"
)

// Envelope - общий конверт всех broadcast сообщений
type Envelope struct {
	Type      string      `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}
