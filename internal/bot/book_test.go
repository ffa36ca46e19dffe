package bot

import (
	"errors"
	"testing"
	"time"
)

func TestBooksUpdateAndCurrent(t *testing.T) {
	books := NewBooks(4, 500*time.Millisecond)

	snap := snapshotAt("spotx", "ETH-USD", 1999.50, 2000.00, 2, time.Now())
	if err := books.Update(snap); err != nil {
		t.Fatalf("Update() error: %v", err)
	}

	got, err := books.Current("spotx", "ETH-USD")
	if err != nil {
		t.Fatalf("Current() error: %v", err)
	}
	if got.BestBid() != 1999.50 || got.BestAsk() != 2000.00 {
		t.Errorf("bbo = %v/%v, want 1999.50/2000.00", got.BestBid(), got.BestAsk())
	}
}

func TestBooksCurrentReturnsCopy(t *testing.T) {
	books := NewBooks(4, 500*time.Millisecond)
	books.Update(snapshotAt("spotx", "ETH-USD", 1999.50, 2000.00, 2, time.Now()))

	first, err := books.Current("spotx", "ETH-USD")
	if err != nil {
		t.Fatal(err)
	}
	first.Bids[0].Price = 1 // порча копии не должна видеться другим читателям

	second, err := books.Current("spotx", "ETH-USD")
	if err != nil {
		t.Fatal(err)
	}
	if second.BestBid() != 1999.50 {
		t.Errorf("stored book mutated through returned copy: bid = %v", second.BestBid())
	}
}

func TestBooksRejectsCrossedBook(t *testing.T) {
	books := NewBooks(4, 500*time.Millisecond)

	// валидный снимок, затем пересечённый: старый должен остаться
	books.Update(snapshotAt("spotx", "ETH-USD", 1999.50, 2000.00, 2, time.Now()))

	crossed := snapshotAt("spotx", "ETH-USD", 2001.00, 2000.00, 2, time.Now())
	if err := books.Update(crossed); err == nil {
		t.Fatal("Update() should reject crossed book")
	}

	got, err := books.Current("spotx", "ETH-USD")
	if err != nil {
		t.Fatalf("previous snapshot should survive: %v", err)
	}
	if got.BestAsk() != 2000.00 {
		t.Errorf("ask = %v, want 2000.00 from previous snapshot", got.BestAsk())
	}
}

func TestBooksStaleness(t *testing.T) {
	books := NewBooks(4, 100*time.Millisecond)
	books.Update(snapshotAt("spotx", "ETH-USD", 1999.50, 2000.00, 2, time.Now().Add(-time.Second)))

	_, err := books.Current("spotx", "ETH-USD")
	var stale *StaleBookError
	if !errors.As(err, &stale) {
		t.Fatalf("err = %v, want StaleBookError", err)
	}
}

func TestBooksMissingSnapshot(t *testing.T) {
	books := NewBooks(4, 100*time.Millisecond)

	_, err := books.Current("spotx", "ETH-USD")
	var stale *StaleBookError
	if !errors.As(err, &stale) {
		t.Fatalf("err = %v, want StaleBookError for missing book", err)
	}
}

func TestBooksVenuesIndependent(t *testing.T) {
	books := NewBooks(4, 500*time.Millisecond)
	books.Update(snapshotAt("spotx", "ETH-USD", 1999.50, 2000.00, 2, time.Now()))
	books.Update(snapshotAt("perpx", "ETH-USD", 2006.50, 2007.00, 3, time.Now()))

	spot, err := books.Current("spotx", "ETH-USD")
	if err != nil {
		t.Fatal(err)
	}
	perp, err := books.Current("perpx", "ETH-USD")
	if err != nil {
		t.Fatal(err)
	}
	if spot.BestAsk() == perp.BestAsk() {
		t.Error("venues should hold independent snapshots")
	}
}
