package websocket

import (
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Hub управляет всеми активными WebSocket соединениями операторского UI.
//
// Функции:
//   - регистрация и снятие клиентов
//   - broadcast событий пайплайна (сделки, уведомления, риск)
//   - вытеснение медленных клиентов: переполненный буфер отправки
//     означает отключение, hub никого не ждёт
type Hub struct {
	clients map[*Client]bool

	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client

	logger *zap.Logger

	mu      sync.RWMutex
	dropped int64
}

// NewHub создаёт hub
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		logger:     logger.Named("ws_hub"),
	}
}

// Run запускает главный цикл. Запускать в отдельной goroutine.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			count := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("ws client connected", zap.Int("total", count))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			count := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("ws client disconnected", zap.Int("total", count))

		case message := <-h.broadcast:
			// список клиентов копируется под коротким RLock,
			// отправка идёт без блокировки
			h.mu.RLock()
			clients := make([]*Client, 0, len(h.clients))
			for client := range h.clients {
				clients = append(clients, client)
			}
			h.mu.RUnlock()

			var toRemove []*Client
			for _, client := range clients {
				select {
				case client.send <- message:
				default:
					toRemove = append(toRemove, client)
				}
			}

			if len(toRemove) > 0 {
				h.mu.Lock()
				for _, client := range toRemove {
					if _, ok := h.clients[client]; ok {
						delete(h.clients, client)
						close(client.send)
					}
				}
				h.mu.Unlock()
				h.logger.Warn("removed slow ws clients", zap.Int("removed", len(toRemove)))
			}
		}
	}
}

// Broadcast сериализует событие и рассылает его всем клиентам.
// Переполненный канал рассылки роняет событие: UI переживёт пропуск,
// торговый путь ждать не должен.
func (h *Hub) Broadcast(messageType string, payload interface{}) {
	msg := Envelope{
		Type:      messageType,
		Timestamp: time.Now(),
		Data:      payload,
	}

	data, err := json.Marshal(&msg)
	if err != nil {
		h.logger.Error("failed to marshal broadcast message", zap.Error(err))
		return
	}

	select {
	case h.broadcast <- data:
	default:
		h.mu.Lock()
		h.dropped++
		h.mu.Unlock()
	}
}

// ClientCount возвращает количество подключенных клиентов
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// DroppedMessages возвращает количество потерянных broadcast сообщений
func (h *Hub) DroppedMessages() int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.dropped
}
