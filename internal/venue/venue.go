package venue

import (
	"context"
	"fmt"

	"spotperp/internal/models"
)

// Venue - единый интерфейс торговой площадки.
// Координатор работает только через этот интерфейс и ничего не знает
// о конкретной реализации (бумажная площадка, реальный коннектор).
type Venue interface {
	// Name возвращает идентификатор площадки
	Name() string

	// SubmitOrder отправляет ордер и блокируется до терминального
	// результата ноги либо отмены контекста. При отмене контекста
	// возвращает ошибку: вызывающий обязан трактовать ногу как
	// "возможно исполнена".
	SubmitOrder(ctx context.Context, order models.LegOrder) (models.LegOutcome, error)

	// CancelAll отменяет все активные ордера по символу.
	// Вызывается в рамках пессимистичной обработки таймаута ноги.
	CancelAll(ctx context.Context, symbol string) error

	// Balance возвращает доступный баланс котируемой валюты в USD
	Balance(ctx context.Context) (float64, error)

	// Limits возвращает торговые ограничения площадки по символу
	Limits(symbol string) Limits

	// Close освобождает ресурсы площадки
	Close() error
}

// Limits - торговые ограничения символа на площадке
type Limits struct {
	// SizeStep - шаг размера: количество усекается вниз до кратного
	SizeStep float64

	// MinQty - минимальный размер ордера в базовой валюте
	MinQty float64

	// MinNotional - минимальный нотионал ордера в USD
	MinNotional float64
}

// Error - ошибка площадки с признаком детерминированного отказа.
// Отказ (Rejected=true) означает что ордер точно не был размещён,
// в отличие от таймаута, где исполнение неизвестно.
type Error struct {
	Venue    string
	Op       string
	Rejected bool
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("venue %s: %s: %v", e.Venue, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
