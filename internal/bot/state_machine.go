package bot

import "spotperp/internal/models"

// ============================================================
// State machine жизненного цикла сделки
// ============================================================
//
// PLANNED → DISPATCHED → RECONCILING → SETTLED
//                              ↓           ↑
//                          UNWINDING ──────┘
//
// SETTLED терминален. Незаконный переход - баг координатора,
// а не ситуация которую надо обрабатывать.

// ValidTransitions - разрешённые переходы между состояниями сделки
var ValidTransitions = map[string][]string{
	models.StatePlanned:     {models.StateDispatched},
	models.StateDispatched:  {models.StateReconciling},
	models.StateReconciling: {models.StateSettled, models.StateUnwinding},
	models.StateUnwinding:   {models.StateSettled},
	models.StateSettled:     {},
}

// CanTransition проверяет допустимость перехода
func CanTransition(from, to string) bool {
	for _, allowed := range ValidTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// IsTerminal возвращает true для терминального состояния
func IsTerminal(state string) bool {
	return state == models.StateSettled
}
