package bot

import "spotperp/internal/models"

// tryEnqueueNotification отправляет уведомление в канал без блокировки.
// Переполненный буфер роняет уведомление с метрикой: горячий путь
// сделки никогда не ждёт потребителя уведомлений.
func tryEnqueueNotification(ch chan *models.Notification, notif *models.Notification) bool {
	if ch == nil || notif == nil {
		return false
	}

	select {
	case ch <- notif:
		return true
	default:
		RecordBufferOverflow("notification")
		return false
	}
}
