package venue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"spotperp/internal/models"
	"spotperp/pkg/ratelimit"
)

// PaperConfig - параметры бумажной площадки
type PaperConfig struct {
	Name        string
	TakerFeeBps float64
	// Latency - искусственная задержка исполнения ордера
	Latency time.Duration
	// FillRatio - доля запрошенного размера, которую площадка
	// согласна исполнить (1.0 = полное исполнение, 0.5 = половина).
	// Используется для моделирования частичных исполнений.
	FillRatio float64
	// BalanceUSD - стартовый баланс котируемой валюты
	BalanceUSD float64
	// RequestsPerSecond, Burst - ограничение частоты запросов
	RequestsPerSecond float64
	Burst             int
}

// PaperVenue - бумажная площадка: исполняет IOC лимитки против
// локальной копии стакана без выхода в сеть. Служит для прогонов
// пайплайна целиком и для тестов координатора.
type PaperVenue struct {
	name        string
	takerFeeBps float64
	latency     time.Duration
	limiter     *ratelimit.RateLimiter

	mu        sync.RWMutex
	books     map[string]*models.BookSnapshot
	limits    map[string]Limits
	balance   float64
	fillRatio float64
	closed    bool
}

// NewPaperVenue создаёт бумажную площадку
func NewPaperVenue(cfg PaperConfig) *PaperVenue {
	fillRatio := cfg.FillRatio
	if fillRatio <= 0 || fillRatio > 1 {
		fillRatio = 1
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 20
	}
	burst := cfg.Burst
	if burst < 2 {
		// минимум две отправки подряд: обе ноги уходят одновременно
		burst = 2
	}

	return &PaperVenue{
		name:        cfg.Name,
		takerFeeBps: cfg.TakerFeeBps,
		latency:     cfg.Latency,
		limiter:     ratelimit.NewRateLimiter(rps, float64(burst)),
		books:       make(map[string]*models.BookSnapshot),
		limits:      make(map[string]Limits),
		balance:     cfg.BalanceUSD,
		fillRatio:   fillRatio,
	}
}

// Name возвращает идентификатор площадки
func (p *PaperVenue) Name() string {
	return p.name
}

// SetBook обновляет локальный стакан, против которого исполняются ордера
func (p *PaperVenue) SetBook(snapshot *models.BookSnapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.books[snapshot.Symbol] = snapshot
}

// SetLimits задаёт торговые ограничения символа
func (p *PaperVenue) SetLimits(symbol string, limits Limits) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.limits[symbol] = limits
}

// SetFillRatio меняет долю исполнения на лету (для тестов)
func (p *PaperVenue) SetFillRatio(ratio float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fillRatio = ratio
}

// SubmitOrder исполняет IOC лимитку против текущего стакана.
// Уровни хуже лимитной цены не трогаются: что не исполнилось
// немедленно, то отменено.
func (p *PaperVenue) SubmitOrder(ctx context.Context, order models.LegOrder) (models.LegOutcome, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return models.LegOutcome{}, err
	}

	if p.latency > 0 {
		timer := time.NewTimer(p.latency)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return models.LegOutcome{}, ctx.Err()
		case <-timer.C:
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return models.LegOutcome{}, &Error{Venue: p.name, Op: "submit", Rejected: true, Err: fmt.Errorf("venue is closed")}
	}

	if order.Quantity <= 0 {
		return models.LegOutcome{}, &Error{Venue: p.name, Op: "submit", Rejected: true, Err: fmt.Errorf("quantity must be positive")}
	}
	if lim, ok := p.limits[order.Symbol]; ok {
		if order.Quantity < lim.MinQty {
			return models.LegOutcome{}, &Error{Venue: p.name, Op: "submit", Rejected: true,
				Err: fmt.Errorf("quantity %v below minimum %v", order.Quantity, lim.MinQty)}
		}
	}

	book, ok := p.books[order.Symbol]
	if !ok {
		return models.LegOutcome{}, &Error{Venue: p.name, Op: "submit", Rejected: true,
			Err: fmt.Errorf("no book for symbol %s", order.Symbol)}
	}

	available := order.Quantity * p.fillRatio
	filled, cost := p.match(book, order, available)

	outcome := models.LegOutcome{
		Order:       order,
		FilledQty:   filled,
		CompletedAt: time.Now(),
	}
	switch {
	case filled <= 0:
		outcome.Status = models.FillStatusUnfilled
	case filled < order.Quantity:
		outcome.Status = models.FillStatusPartial
	default:
		outcome.Status = models.FillStatusFilled
	}
	if filled > 0 {
		outcome.AvgFillPrice = cost / filled
		outcome.Fee = cost * p.takerFeeBps / 10000
		if order.Side == models.SideBuy {
			total := cost + outcome.Fee
			if total > p.balance {
				// баланс не уходит в минус: покупка не по средствам
				// отклоняется целиком
				return models.LegOutcome{}, &Error{Venue: p.name, Op: "submit", Rejected: true,
					Err: fmt.Errorf("insufficient balance: need %.2f, have %.2f", total, p.balance)}
			}
			p.balance -= total
		} else {
			p.balance += cost - outcome.Fee
		}
	}

	return outcome, nil
}

// match обходит противоположную сторону стакана и набирает объём
// в пределах лимитной цены. Возвращает исполненный размер и кэш-флоу.
func (p *PaperVenue) match(book *models.BookSnapshot, order models.LegOrder, available float64) (filled, cost float64) {
	var levels []models.PriceLevel
	if order.Side == models.SideBuy {
		levels = book.Asks
	} else {
		levels = book.Bids
	}

	remaining := available
	for _, level := range levels {
		if remaining <= 0 {
			break
		}
		if order.Type == models.OrderTypeIOC {
			if order.Side == models.SideBuy && level.Price > order.LimitPrice {
				break
			}
			if order.Side == models.SideSell && level.Price < order.LimitPrice {
				break
			}
		}
		take := level.Size
		if take > remaining {
			take = remaining
		}
		filled += take
		cost += take * level.Price
		remaining -= take
	}
	return filled, cost
}

// CancelAll на бумажной площадке тривиален: IOC ордера не оставляют
// активных заявок. Метод существует ради контракта интерфейса.
func (p *PaperVenue) CancelAll(ctx context.Context, symbol string) error {
	if err := p.limiter.Wait(ctx); err != nil {
		return err
	}
	return nil
}

// Balance возвращает текущий баланс котируемой валюты
func (p *PaperVenue) Balance(ctx context.Context) (float64, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return 0, &Error{Venue: p.name, Op: "balance", Err: fmt.Errorf("venue is closed")}
	}
	return p.balance, nil
}

// Limits возвращает торговые ограничения символа
func (p *PaperVenue) Limits(symbol string) Limits {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if lim, ok := p.limits[symbol]; ok {
		return lim
	}
	// шаг по умолчанию достаточно мелкий чтобы не мешать тестам
	return Limits{SizeStep: 0.0001, MinQty: 0.0001, MinNotional: 1}
}

// Close помечает площадку закрытой
func (p *PaperVenue) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}
