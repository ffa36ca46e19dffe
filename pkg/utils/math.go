package utils

import (
	"math"
	"math/big"

	"github.com/shopspring/decimal"

	"spotperp/internal/models"
)

// math.go - математика ценообразования и размеров ордеров.
// Все функции чистые, без побочных эффектов.

// TruncateToStep усекает значение ВНИЗ до ближайшего кратного step.
//
// Используется для приведения объёма/цены к шагу биржи. Усечение всегда
// вниз: округление вверх могло бы превысить разрешённый нотионал.
// Расчёт через decimal - float64 деление на мелкие шаги (0.001 и меньше)
// даёт артефакты вида 0.30000000000000004.
func TruncateToStep(value, step float64) float64 {
	if step <= 0 {
		return value
	}
	v := decimal.NewFromFloat(value)
	s := decimal.NewFromFloat(step)
	q := v.Div(s).Floor()
	out, _ := q.Mul(s).Float64()
	return out
}

// CommonStep возвращает наименьший шаг, кратный обоим шагам площадок
// (НОК). Количество, усечённое до общего шага, остаётся кратным
// каждому из исходных - последовательное усечение до несоизмеримых
// шагов (0.3 и 0.2) этого не гарантирует.
func CommonStep(a, b float64) float64 {
	if a <= 0 {
		return b
	}
	if b <= 0 {
		return a
	}

	da := decimal.NewFromFloat(a)
	db := decimal.NewFromFloat(b)

	// Приведение обоих шагов к целым на общей экспоненте
	exp := da.Exponent()
	if db.Exponent() < exp {
		exp = db.Exponent()
	}
	scale := decimal.New(1, -exp)
	ia := da.Mul(scale).BigInt()
	ib := db.Mul(scale).BigInt()

	gcd := new(big.Int).GCD(nil, nil, ia, ib)
	lcm := new(big.Int).Div(new(big.Int).Mul(ia, ib), gcd)

	out, _ := decimal.NewFromBigInt(lcm, exp).Float64()
	return out
}

// EdgeBps возвращает разрыв между ценой продажи и покупки
// в базисных пунктах от mid
func EdgeBps(sellPrice, buyPrice, mid float64) float64 {
	if mid <= 0 {
		return 0
	}
	return (sellPrice - buyPrice) / mid * 10000
}

// WalkBook моделирует исполнение объёма targetSize по уровням стакана.
//
// Уровни должны идти от лучшей цены к худшей (asks по возрастанию для
// покупки, bids по убыванию для продажи).
//
// Возвращает:
//   - vwap: средневзвешенная цена исполнения
//   - filled: реально доступный объём (может быть < targetSize)
func WalkBook(levels []models.PriceLevel, targetSize float64) (vwap, filled float64) {
	if len(levels) == 0 || targetSize <= 0 {
		return 0, 0
	}

	var cost float64
	remaining := targetSize

	for _, lvl := range levels {
		if lvl.Price <= 0 || lvl.Size <= 0 {
			continue
		}
		take := math.Min(remaining, lvl.Size)
		cost += lvl.Price * take
		filled += take
		remaining -= take
		if remaining <= 0 {
			break
		}
	}

	if filled == 0 {
		return 0, 0
	}
	return cost / filled, filled
}

// DepthSize возвращает суммарный объём первых maxLevels уровней
func DepthSize(levels []models.PriceLevel, maxLevels int) float64 {
	var total float64
	for i, lvl := range levels {
		if maxLevels > 0 && i >= maxLevels {
			break
		}
		if lvl.Size > 0 {
			total += lvl.Size
		}
	}
	return total
}

// SizeSteps возвращает отсортированные кандидатные размеры для поиска
// максимального объёма: накопительные суммы уровней обеих сторон,
// обрезанные по меньшей из двух глубин.
func SizeSteps(buySide, sellSide []models.PriceLevel, maxLevels int) []float64 {
	capSize := math.Min(DepthSize(buySide, maxLevels), DepthSize(sellSide, maxLevels))
	if capSize <= 0 {
		return nil
	}

	var steps []float64
	appendCum := func(levels []models.PriceLevel) {
		var cum float64
		for i, lvl := range levels {
			if maxLevels > 0 && i >= maxLevels {
				break
			}
			if lvl.Size <= 0 {
				continue
			}
			cum += lvl.Size
			if cum >= capSize {
				steps = append(steps, capSize)
				return
			}
			steps = append(steps, cum)
		}
	}
	appendCum(buySide)
	appendCum(sellSide)

	// Сортировка вставками - уровней максимум 20
	for i := 1; i < len(steps); i++ {
		for j := i; j > 0 && steps[j] < steps[j-1]; j-- {
			steps[j], steps[j-1] = steps[j-1], steps[j]
		}
	}

	// Дедупликация близких размеров
	out := steps[:0]
	for _, s := range steps {
		if len(out) == 0 || s-out[len(out)-1] > 1e-12 {
			out = append(out, s)
		}
	}
	return out
}

// Abs возвращает абсолютное значение числа
func Abs(x float64) float64 {
	return math.Abs(x)
}

// Min возвращает минимум из набора чисел
func Min(first float64, rest ...float64) float64 {
	m := first
	for _, v := range rest {
		if v < m {
			m = v
		}
	}
	return m
}
