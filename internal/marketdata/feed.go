package marketdata

import (
	"context"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"spotperp/internal/models"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Handler принимает разобранный снимок стакана
type Handler func(snapshot *models.BookSnapshot)

// bookFrame - кадр фида: уровни приходят массивами [цена, объём]
type bookFrame struct {
	Type   string       `json:"type"`
	Venue  string       `json:"venue"`
	Symbol string       `json:"symbol"`
	Bids   [][2]float64 `json:"bids"`
	Asks   [][2]float64 `json:"asks"`
	Ts     int64        `json:"ts"` // unix millis момента среза на площадке
}

// Feed - websocket-подписка на стаканы одной площадки.
//
// Переподключается сам с экспоненциальной задержкой; разрыв фида не
// требует действий от движка - протухшие снимки и так отфильтрует
// проверка свежести.
type Feed struct {
	url       string
	venueName string
	handler   Handler
	logger    *zap.Logger

	dialer       *websocket.Dialer
	pingInterval time.Duration
	readTimeout  time.Duration
}

// NewFeed создаёт фид площадки
func NewFeed(url, venueName string, handler Handler, logger *zap.Logger) *Feed {
	return &Feed{
		url:       url,
		venueName: venueName,
		handler:   handler,
		logger:    logger.Named("feed").With(zap.String("venue", venueName)),
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
		},
		pingInterval: 15 * time.Second,
		readTimeout:  30 * time.Second,
	}
}

// Run держит подписку до отмены контекста
func (f *Feed) Run(ctx context.Context) error {
	backoff := time.Second

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := f.connectAndRead(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		f.logger.Warn("feed disconnected, reconnecting",
			zap.Error(err),
			zap.Duration("backoff", backoff),
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > 30*time.Second {
			backoff = 30 * time.Second
		}
	}
}

// connectAndRead - одна сессия подключения: dial, ping-цикл, чтение
func (f *Feed) connectAndRead(ctx context.Context) error {
	conn, _, err := f.dialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", f.url, err)
	}
	defer conn.Close()

	f.logger.Info("feed connected", zap.String("url", f.url))

	// разрыв контекста закрывает соединение и будит ReadMessage
	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(f.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				conn.Close()
				return
			case <-done:
				return
			case <-ticker.C:
				deadline := time.Now().Add(5 * time.Second)
				if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
					conn.Close()
					return
				}
			}
		}
	}()

	conn.SetReadDeadline(time.Now().Add(f.readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(f.readTimeout))
	})

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		conn.SetReadDeadline(time.Now().Add(f.readTimeout))

		if err := f.handleFrame(payload); err != nil {
			// битый кадр не рвёт сессию
			f.logger.Warn("bad feed frame", zap.Error(err))
		}
	}
}

// handleFrame разбирает кадр и передаёт снимок обработчику
func (f *Feed) handleFrame(payload []byte) error {
	var frame bookFrame
	if err := json.Unmarshal(payload, &frame); err != nil {
		return fmt.Errorf("unmarshal frame: %w", err)
	}
	if frame.Type != "book" {
		return nil
	}

	snapshot, err := frameToSnapshot(&frame, f.venueName)
	if err != nil {
		return err
	}

	f.handler(snapshot)
	return nil
}

// frameToSnapshot переводит кадр в снимок стакана.
// Venue кадра игнорируется: доверяем тому, куда подключились.
func frameToSnapshot(frame *bookFrame, venueName string) (*models.BookSnapshot, error) {
	if frame.Symbol == "" {
		return nil, fmt.Errorf("frame without symbol")
	}

	capturedAt := time.Now()
	if frame.Ts > 0 {
		capturedAt = time.UnixMilli(frame.Ts)
	}

	snapshot := &models.BookSnapshot{
		Venue:      venueName,
		Symbol:     frame.Symbol,
		Bids:       toLevels(frame.Bids),
		Asks:       toLevels(frame.Asks),
		CapturedAt: capturedAt,
	}
	return snapshot, nil
}

func toLevels(raw [][2]float64) []models.PriceLevel {
	levels := make([]models.PriceLevel, 0, len(raw))
	for _, pair := range raw {
		levels = append(levels, models.PriceLevel{Price: pair[0], Size: pair[1]})
	}
	return levels
}
