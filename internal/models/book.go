package models

import (
	"fmt"
	"time"
)

// PriceLevel представляет один уровень стакана (цена, объём)
type PriceLevel struct {
	Price float64 `json:"price"`
	Size  float64 `json:"size"`
}

// BookSnapshot - неизменяемый снимок стакана одной площадки.
//
// Инвариант: Bids строго убывают по цене, Asks строго возрастают,
// best bid < best ask. Снимок заменяется целиком при каждом обновлении -
// потребители никогда не видят частичных мутаций.
type BookSnapshot struct {
	Venue      string       `json:"venue"`
	Symbol     string       `json:"symbol"`
	Bids       []PriceLevel `json:"bids"` // по убыванию цены
	Asks       []PriceLevel `json:"asks"` // по возрастанию цены
	CapturedAt time.Time    `json:"captured_at"`
}

// Validate проверяет инварианты снимка.
// Пересечённый стакан (bid >= ask) - это сбой данных, а не сигнал
// бесконечного эджа, поэтому такой снимок отбрасывается целиком.
func (b *BookSnapshot) Validate() error {
	if len(b.Bids) == 0 || len(b.Asks) == 0 {
		return fmt.Errorf("empty book %s/%s", b.Venue, b.Symbol)
	}

	for i := 1; i < len(b.Bids); i++ {
		if b.Bids[i].Price >= b.Bids[i-1].Price {
			return fmt.Errorf("bids not strictly decreasing at level %d for %s/%s", i, b.Venue, b.Symbol)
		}
	}
	for i := 1; i < len(b.Asks); i++ {
		if b.Asks[i].Price <= b.Asks[i-1].Price {
			return fmt.Errorf("asks not strictly increasing at level %d for %s/%s", i, b.Venue, b.Symbol)
		}
	}

	for _, lvl := range b.Bids {
		if lvl.Price <= 0 || lvl.Size <= 0 {
			return fmt.Errorf("non-positive bid level for %s/%s", b.Venue, b.Symbol)
		}
	}
	for _, lvl := range b.Asks {
		if lvl.Price <= 0 || lvl.Size <= 0 {
			return fmt.Errorf("non-positive ask level for %s/%s", b.Venue, b.Symbol)
		}
	}

	if b.Bids[0].Price >= b.Asks[0].Price {
		return fmt.Errorf("crossed book for %s/%s: bid %.8f >= ask %.8f",
			b.Venue, b.Symbol, b.Bids[0].Price, b.Asks[0].Price)
	}

	return nil
}

// BestBid возвращает лучшую цену покупки
func (b *BookSnapshot) BestBid() float64 {
	if len(b.Bids) == 0 {
		return 0
	}
	return b.Bids[0].Price
}

// BestAsk возвращает лучшую цену продажи
func (b *BookSnapshot) BestAsk() float64 {
	if len(b.Asks) == 0 {
		return 0
	}
	return b.Asks[0].Price
}

// Mid возвращает середину между лучшим бидом и аском
func (b *BookSnapshot) Mid() float64 {
	bid, ask := b.BestBid(), b.BestAsk()
	if bid <= 0 || ask <= 0 {
		return 0
	}
	return (bid + ask) / 2
}

// SpreadBps возвращает спред стакана в базисных пунктах от mid
func (b *BookSnapshot) SpreadBps() float64 {
	mid := b.Mid()
	if mid <= 0 {
		return 0
	}
	return (b.BestAsk() - b.BestBid()) / mid * 10000
}

// Age возвращает возраст снимка относительно now
func (b *BookSnapshot) Age(now time.Time) time.Duration {
	return now.Sub(b.CapturedAt)
}

// Clone возвращает глубокую копию снимка.
// Агрегатор отдаёт наружу только копии, чтобы последующие обновления
// не могли молча инвалидировать уже построенный план.
func (b *BookSnapshot) Clone() BookSnapshot {
	cp := *b
	cp.Bids = make([]PriceLevel, len(b.Bids))
	copy(cp.Bids, b.Bids)
	cp.Asks = make([]PriceLevel, len(b.Asks))
	copy(cp.Asks, b.Asks)
	return cp
}
