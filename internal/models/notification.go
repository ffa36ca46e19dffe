package models

import "time"

// Notification представляет уведомление о событии
type Notification struct {
	Timestamp time.Time              `json:"timestamp"`
	Type      string                 `json:"type"`
	Severity  string                 `json:"severity"` // info, warn, error
	Route     string                 `json:"route,omitempty"`
	Message   string                 `json:"message"`
	Meta      map[string]interface{} `json:"meta,omitempty"`
}

// Типы уведомлений
const (
	NotificationTypeTrade        = "TRADE"         // сделка рассчитана
	NotificationTypeUnwind       = "UNWIND"        // выполнен unwind дисбаланса
	NotificationTypeUnwindFailed = "UNWIND_FAILED" // дисбаланс не выровнен - фатально
	NotificationTypeRiskPause    = "RISK_PAUSE"    // гавернор остановил торговлю
	NotificationTypeFeed         = "FEED"          // проблемы рыночных данных
	NotificationTypeError        = "ERROR"         // прочие ошибки
)

// Уровни важности
const (
	SeverityInfo  = "info"
	SeverityWarn  = "warn"
	SeverityError = "error"
)
