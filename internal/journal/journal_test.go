package journal

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"go.uber.org/zap"

	"spotperp/internal/models"
)

func testOutcome() *models.TradeOutcome {
	return &models.TradeOutcome{
		CorrelationID: "t-123",
		Route:         "eth-spot-perp",
		Direction:     models.DirectionLongSpotShortPerp,
		BuyOutcome: models.LegOutcome{
			Order:        models.LegOrder{Venue: "spotx", Symbol: "ETH-USD", Side: models.SideBuy},
			Status:       models.FillStatusFilled,
			FilledQty:    1,
			AvgFillPrice: 2000.50,
			Fee:          1.0,
		},
		SellOutcome: models.LegOutcome{
			Order:        models.LegOrder{Venue: "perpx", Symbol: "ETH-USD", Side: models.SideSell},
			Status:       models.FillStatusFilled,
			FilledQty:    1,
			AvgFillPrice: 2006.00,
			Fee:          1.0,
		},
		RealizedPnl: 3.50,
		SettledAt:   time.Now(),
	}
}

func TestWriteOutcome(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	j := &Journal{db: db, logger: zap.NewNop()}

	mock.ExpectExec("INSERT INTO trade_outcomes").
		WithArgs(
			"t-123", "eth-spot-perp", "long_spot_short_perp",
			"spotx", 1.0, 2000.50,
			"perpx", 1.0, 2006.00,
			2.0, 3.50, false, nil, sqlmock.AnyArg(),
		).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := j.writeOutcome(testOutcome()); err != nil {
		t.Fatalf("writeOutcome() error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestWriteOutcomeWithUnwinds(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	j := &Journal{db: db, logger: zap.NewNop()}

	outcome := testOutcome()
	outcome.SellOutcome.FilledQty = 0
	outcome.SellOutcome.AvgFillPrice = 0
	outcome.SellOutcome.Fee = 0
	outcome.Unwinds = []models.UnwindAction{{
		Venue:        "spotx",
		Side:         models.SideSell,
		Quantity:     1,
		Status:       models.FillStatusFilled,
		FilledQty:    1,
		AvgFillPrice: 1995.00,
		Fee:          0.5,
		Attempt:      1,
	}}

	// комиссии включают unwind, unwinds сериализуются в JSON
	mock.ExpectExec("INSERT INTO trade_outcomes").
		WithArgs(
			"t-123", "eth-spot-perp", "long_spot_short_perp",
			"spotx", 1.0, 2000.50,
			"perpx", 0.0, 0.0,
			1.5, 3.50, false, sqlmock.AnyArg(), sqlmock.AnyArg(),
		).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := j.writeOutcome(outcome); err != nil {
		t.Fatalf("writeOutcome() error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestWriteRiskState(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	j := &Journal{db: db, logger: zap.NewNop()}

	now := time.Now()
	state := &models.RiskState{
		DailyNotional:     1200,
		Reserved:          300,
		ConsecutiveLosses: 1,
		Paused:            false,
		SessionStart:      now.Add(-time.Hour),
		SessionEnd:        now.Add(7 * time.Hour),
		CapturedAt:        now,
	}

	mock.ExpectExec("INSERT INTO risk_states").
		WithArgs(1200.0, 300.0, 1, false, "", state.SessionStart, state.SessionEnd, state.CapturedAt).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := j.writeRiskState(state); err != nil {
		t.Fatalf("writeRiskState() error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

// RecordOutcome не блокируется, Close дописывает очередь
func TestRecordOutcomeFlushesOnClose(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	mock.ExpectExec("INSERT INTO trade_outcomes").
		WillReturnResult(sqlmock.NewResult(1, 1))

	j := New(db, zap.NewNop())
	j.RecordOutcome(testOutcome())
	j.Close()

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestEnsureSchema(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS trade_outcomes").
		WillReturnResult(sqlmock.NewResult(0, 0))

	j := &Journal{db: db, logger: zap.NewNop()}
	if err := j.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema() error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}
