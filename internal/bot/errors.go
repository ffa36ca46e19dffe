package bot

import (
	"errors"
	"fmt"
	"time"
)

// Ошибки пайплайна
var (
	// ErrNoOpportunity - эдж ниже порога или стакан непригоден.
	// Нормальный результат тика, не логируется как проблема.
	ErrNoOpportunity = errors.New("no opportunity")

	// ErrStaleOpportunity - возможность устарела между детекцией
	// и планированием
	ErrStaleOpportunity = errors.New("opportunity is stale")

	// ErrSessionEnded - торговая сессия завершена, новые резервации
	// не выдаются
	ErrSessionEnded = errors.New("trading session has ended")
)

// StaleBookError - снимок стакана старше допустимого возраста
type StaleBookError struct {
	Venue  string
	Symbol string
	Age    time.Duration
	MaxAge time.Duration
}

func (e *StaleBookError) Error() string {
	return fmt.Sprintf("stale book %s/%s: age %v exceeds %v", e.Venue, e.Symbol, e.Age, e.MaxAge)
}

// RiskRejectedError - риск-гавернор отказал в резервации
type RiskRejectedError struct {
	Route  string
	Reason string
}

func (e *RiskRejectedError) Error() string {
	return fmt.Sprintf("risk rejected for route %s: %s", e.Route, e.Reason)
}

// SizeTooSmallError - размер после усечения не проходит минимумы площадки
type SizeTooSmallError struct {
	Route    string
	Quantity float64
	Reason   string
}

func (e *SizeTooSmallError) Error() string {
	return fmt.Sprintf("size too small for route %s: qty=%v (%s)", e.Route, e.Quantity, e.Reason)
}

// UnwindFailedError - все попытки выравнивания исчерпаны,
// дисбаланс остался. Маршрут ставится на паузу, требуется оператор.
type UnwindFailedError struct {
	CorrelationID string
	Route         string
	Venue         string
	Remaining     float64
	Attempts      int
}

func (e *UnwindFailedError) Error() string {
	return fmt.Sprintf("unwind failed for trade %s (route %s): %v left on %s after %d attempts",
		e.CorrelationID, e.Route, e.Remaining, e.Venue, e.Attempts)
}
