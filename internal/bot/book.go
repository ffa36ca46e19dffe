package bot

import (
	"fmt"
	"sync"
	"time"

	"spotperp/internal/models"
)

// Константы FNV-1a для 32-битного хэша
const (
	fnvOffset32 = uint32(2166136261)
	fnvPrime32  = uint32(16777619)
)

// fnvHash вычисляет FNV-1a hash строки без аллокаций.
// Горячий путь: вызывается на каждом обновлении стакана.
func fnvHash(s string) uint32 {
	h := fnvOffset32
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= fnvPrime32
	}
	return h
}

// BookKey - составной ключ стакана без конкатенации строк
type BookKey struct {
	Venue  string
	Symbol string
}

// bookShard - один шард с собственным мьютексом
type bookShard struct {
	books map[BookKey]*models.BookSnapshot
	mu    sync.RWMutex
}

// Books - шардированное хранилище снимков стаканов.
// Разные символы попадают в разные шарды и не блокируют друг друга;
// писатель (фид площадки) и читатель (детектор) конкурируют только
// в пределах одного шарда.
//
// Инварианты:
//   - хранится только последний снимок на пару (площадка, символ);
//     обновления не упорядочиваются между площадками
//   - наружу отдаётся глубокая копия: план не инвалидируется
//     последующими обновлениями фида
type Books struct {
	shards    []*bookShard
	numShards uint32

	// maxAge - порог свежести для Current
	maxAge time.Duration
}

// NewBooks создаёт хранилище стаканов
func NewBooks(numShards int, maxAge time.Duration) *Books {
	if numShards <= 0 {
		numShards = 16
	}

	b := &Books{
		shards:    make([]*bookShard, numShards),
		numShards: uint32(numShards),
		maxAge:    maxAge,
	}
	for i := 0; i < numShards; i++ {
		b.shards[i] = &bookShard{books: make(map[BookKey]*models.BookSnapshot)}
	}
	return b
}

func (b *Books) getShard(symbol string) *bookShard {
	return b.shards[fnvHash(symbol)%b.numShards]
}

// Update валидирует и сохраняет снимок стакана.
// Невалидные снимки (пересечённый стакан, нарушенная сортировка уровней)
// отбрасываются с ошибкой, предыдущий снимок остаётся в силе.
func (b *Books) Update(snapshot *models.BookSnapshot) error {
	if err := snapshot.Validate(); err != nil {
		BooksRejected.WithLabelValues(snapshot.Venue, snapshot.Symbol).Inc()
		return fmt.Errorf("invalid book %s/%s: %w", snapshot.Venue, snapshot.Symbol, err)
	}

	shard := b.getShard(snapshot.Symbol)
	shard.mu.Lock()
	shard.books[BookKey{Venue: snapshot.Venue, Symbol: snapshot.Symbol}] = snapshot
	shard.mu.Unlock()

	BooksUpdated.WithLabelValues(snapshot.Venue, snapshot.Symbol).Inc()
	return nil
}

// Current возвращает глубокую копию последнего снимка, если он свежее
// maxAge. Устаревший или отсутствующий снимок - StaleBookError:
// детектор на таком тике молчит.
func (b *Books) Current(venue, symbol string) (*models.BookSnapshot, error) {
	shard := b.getShard(symbol)
	shard.mu.RLock()
	snapshot := shard.books[BookKey{Venue: venue, Symbol: symbol}]
	shard.mu.RUnlock()

	if snapshot == nil {
		return nil, &StaleBookError{Venue: venue, Symbol: symbol, Age: -1, MaxAge: b.maxAge}
	}

	age := snapshot.Age(time.Now())
	if age > b.maxAge {
		return nil, &StaleBookError{Venue: venue, Symbol: symbol, Age: age, MaxAge: b.maxAge}
	}

	cp := snapshot.Clone()
	return &cp, nil
}
