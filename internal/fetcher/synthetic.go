package fetcher

import (
	"math/rand"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

type basePrice struct {
	center float64
	spread float64
}

// Reference prices for well-known tickers; everything else lands in 100..300.
var syntheticBases = map[string]basePrice{
	"AAPL":  {center: 175.50, spread: 10},
	"GOOGL": {center: 142.30, spread: 20},
	"TSLA":  {center: 248.75, spread: 30},
	"MSFT":  {center: 378.85, spread: 15},
}

// Synthetic generates plausible prices without any network access.
type Synthetic struct {
	mu  sync.Mutex
	rng *rand.Rand
	now func() time.Time
}

// NewSynthetic builds a generator; seed 0 uses the current time.
func NewSynthetic(seed int64) *Synthetic {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Synthetic{rng: rand.New(rand.NewSource(seed)), now: time.Now}
}

// Sample returns a synthetic sample rounded to cents.
func (s *Synthetic) Sample(symbol string) PriceSample {
	s.mu.Lock()
	r := s.rng.Float64()
	s.mu.Unlock()

	var price float64
	if base, ok := syntheticBases[symbol]; ok {
		price = base.center + (r-0.5)*base.spread
	} else {
		price = 100 + r*200
	}

	return PriceSample{
		Symbol:    symbol,
		Price:     decimal.NewFromFloat(price).Round(2).InexactFloat64(),
		Timestamp: s.now().UTC(),
		Origin:    OriginSynthetic,
	}
}

