package bot

import (
	"testing"

	"spotperp/internal/models"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to string
		want     bool
	}{
		{models.StatePlanned, models.StateDispatched, true},
		{models.StateDispatched, models.StateReconciling, true},
		{models.StateReconciling, models.StateSettled, true},
		{models.StateReconciling, models.StateUnwinding, true},
		{models.StateUnwinding, models.StateSettled, true},

		{models.StatePlanned, models.StateSettled, false},
		{models.StateDispatched, models.StateUnwinding, false},
		{models.StateUnwinding, models.StateReconciling, false},
		{models.StateSettled, models.StatePlanned, false},
		{models.StateSettled, models.StateUnwinding, false},
	}

	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestIsTerminal(t *testing.T) {
	if !IsTerminal(models.StateSettled) {
		t.Error("SETTLED must be terminal")
	}
	for _, state := range []string{models.StatePlanned, models.StateDispatched, models.StateReconciling, models.StateUnwinding} {
		if IsTerminal(state) {
			t.Errorf("%s must not be terminal", state)
		}
	}
}
