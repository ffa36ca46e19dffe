package venue

import (
	"context"
	"errors"
	"testing"
	"time"

	"spotperp/internal/models"
)

func testBook(symbol string) *models.BookSnapshot {
	return &models.BookSnapshot{
		Venue:  "paper",
		Symbol: symbol,
		Bids: []models.PriceLevel{
			{Price: 1999, Size: 2},
			{Price: 1998, Size: 3},
		},
		Asks: []models.PriceLevel{
			{Price: 2001, Size: 2},
			{Price: 2002, Size: 3},
		},
		CapturedAt: time.Now(),
	}
}

func TestPaperVenueFullFill(t *testing.T) {
	v := NewPaperVenue(PaperConfig{Name: "paper", TakerFeeBps: 10, BalanceUSD: 100000})
	v.SetBook(testBook("ETH-USD"))

	outcome, err := v.SubmitOrder(context.Background(), models.LegOrder{
		Venue:      "paper",
		Symbol:     "ETH-USD",
		Side:       models.SideBuy,
		Type:       models.OrderTypeIOC,
		LimitPrice: 2001.5,
		Quantity:   1.5,
	})
	if err != nil {
		t.Fatalf("SubmitOrder() error: %v", err)
	}
	if outcome.Status != models.FillStatusFilled {
		t.Errorf("status = %s, want filled", outcome.Status)
	}
	if outcome.FilledQty != 1.5 {
		t.Errorf("filled = %v, want 1.5", outcome.FilledQty)
	}
	if outcome.AvgFillPrice != 2001 {
		t.Errorf("avg price = %v, want 2001", outcome.AvgFillPrice)
	}
	wantFee := 1.5 * 2001 * 10 / 10000
	if diff := outcome.Fee - wantFee; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("fee = %v, want %v", outcome.Fee, wantFee)
	}
}

func TestPaperVenueLimitPriceStopsWalk(t *testing.T) {
	v := NewPaperVenue(PaperConfig{Name: "paper", BalanceUSD: 100000})
	v.SetBook(testBook("ETH-USD"))

	// лимит пускает только первый уровень asks (2001), запрошено больше
	outcome, err := v.SubmitOrder(context.Background(), models.LegOrder{
		Symbol:     "ETH-USD",
		Side:       models.SideBuy,
		Type:       models.OrderTypeIOC,
		LimitPrice: 2001,
		Quantity:   4,
	})
	if err != nil {
		t.Fatalf("SubmitOrder() error: %v", err)
	}
	if outcome.Status != models.FillStatusPartial {
		t.Errorf("status = %s, want partial", outcome.Status)
	}
	if outcome.FilledQty != 2 {
		t.Errorf("filled = %v, want 2 (first level only)", outcome.FilledQty)
	}
}

func TestPaperVenueUnfilledBeyondLimit(t *testing.T) {
	v := NewPaperVenue(PaperConfig{Name: "paper", BalanceUSD: 100000})
	v.SetBook(testBook("ETH-USD"))

	outcome, err := v.SubmitOrder(context.Background(), models.LegOrder{
		Symbol:     "ETH-USD",
		Side:       models.SideSell,
		Type:       models.OrderTypeIOC,
		LimitPrice: 2000, // выше лучшего бида 1999
		Quantity:   1,
	})
	if err != nil {
		t.Fatalf("SubmitOrder() error: %v", err)
	}
	if outcome.Status != models.FillStatusUnfilled {
		t.Errorf("status = %s, want unfilled", outcome.Status)
	}
	if outcome.FilledQty != 0 {
		t.Errorf("filled = %v, want 0", outcome.FilledQty)
	}
}

func TestPaperVenueFillRatio(t *testing.T) {
	v := NewPaperVenue(PaperConfig{Name: "paper", FillRatio: 0.5, BalanceUSD: 100000})
	v.SetBook(testBook("ETH-USD"))

	outcome, err := v.SubmitOrder(context.Background(), models.LegOrder{
		Symbol:     "ETH-USD",
		Side:       models.SideBuy,
		Type:       models.OrderTypeIOC,
		LimitPrice: 2005,
		Quantity:   2,
	})
	if err != nil {
		t.Fatalf("SubmitOrder() error: %v", err)
	}
	if outcome.Status != models.FillStatusPartial {
		t.Errorf("status = %s, want partial", outcome.Status)
	}
	if outcome.FilledQty != 1 {
		t.Errorf("filled = %v, want 1 (half of requested)", outcome.FilledQty)
	}
}

func TestPaperVenueRejectsUnknownSymbol(t *testing.T) {
	v := NewPaperVenue(PaperConfig{Name: "paper"})

	_, err := v.SubmitOrder(context.Background(), models.LegOrder{
		Symbol:   "XXX-USD",
		Side:     models.SideBuy,
		Type:     models.OrderTypeIOC,
		Quantity: 1,
	})
	if err == nil {
		t.Fatal("expected rejection for unknown symbol")
	}
	var verr *Error
	if !errors.As(err, &verr) || !verr.Rejected {
		t.Errorf("expected deterministic rejection, got %v", err)
	}
}

func TestPaperVenueRespectsContext(t *testing.T) {
	v := NewPaperVenue(PaperConfig{Name: "paper", Latency: time.Second})
	v.SetBook(testBook("ETH-USD"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := v.SubmitOrder(ctx, models.LegOrder{
		Symbol:     "ETH-USD",
		Side:       models.SideBuy,
		Type:       models.OrderTypeIOC,
		LimitPrice: 2005,
		Quantity:   1,
	})
	if err == nil {
		t.Fatal("expected context deadline error")
	}
}

func TestPaperVenueRejectsBuyBeyondBalance(t *testing.T) {
	v := NewPaperVenue(PaperConfig{Name: "paper", TakerFeeBps: 10, BalanceUSD: 1000})
	v.SetBook(testBook("ETH-USD"))

	// покупка стоит ~2001 + комиссия при балансе 1000
	_, err := v.SubmitOrder(context.Background(), models.LegOrder{
		Symbol:     "ETH-USD",
		Side:       models.SideBuy,
		Type:       models.OrderTypeIOC,
		LimitPrice: 2005,
		Quantity:   1,
	})
	var verr *Error
	if !errors.As(err, &verr) || !verr.Rejected {
		t.Fatalf("expected deterministic rejection, got %v", err)
	}

	// баланс не тронут и не ушёл в минус
	balance, err := v.Balance(context.Background())
	if err != nil {
		t.Fatalf("Balance() error: %v", err)
	}
	if balance != 1000 {
		t.Errorf("balance = %v, want untouched 1000", balance)
	}
}

func TestPaperVenueBalanceTracking(t *testing.T) {
	v := NewPaperVenue(PaperConfig{Name: "paper", BalanceUSD: 10000})
	v.SetBook(testBook("ETH-USD"))

	_, err := v.SubmitOrder(context.Background(), models.LegOrder{
		Symbol:     "ETH-USD",
		Side:       models.SideBuy,
		Type:       models.OrderTypeIOC,
		LimitPrice: 2005,
		Quantity:   1,
	})
	if err != nil {
		t.Fatalf("SubmitOrder() error: %v", err)
	}

	balance, err := v.Balance(context.Background())
	if err != nil {
		t.Fatalf("Balance() error: %v", err)
	}
	if balance >= 10000 {
		t.Errorf("balance = %v, want below 10000 after buy", balance)
	}
}
