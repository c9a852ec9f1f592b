package fetcher

import (
	"context"
	"time"
)

// Origin tags where a sample's price came from.
type Origin string

const (
	OriginLive      Origin = "live"
	OriginSynthetic Origin = "synthetic"
)

// PriceSample is one fresh observation for a symbol.
type PriceSample struct {
	Symbol    string
	Price     float64
	Timestamp time.Time
	Origin    Origin
}

// Synthetic reports whether the sample is fallback data.
func (s PriceSample) Synthetic() bool {
	return s.Origin == OriginSynthetic
}

// PriceProvider fetches the current price for a symbol.
type PriceProvider interface {
	GetPrice(ctx context.Context, symbol string) (PriceSample, error)
}

// StaticProvider serves fixed prices; unknown symbols return an error.
type StaticProvider struct {
	Prices map[string]float64
	Now    func() time.Time
}

// GetPrice implements PriceProvider.
func (p StaticProvider) GetPrice(_ context.Context, symbol string) (PriceSample, error) {
	price, ok := p.Prices[symbol]
	if !ok {
		return PriceSample{}, &SymbolError{Symbol: symbol}
	}
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	return PriceSample{Symbol: symbol, Price: price, Timestamp: now().UTC(), Origin: OriginLive}, nil
}

// SymbolError reports a symbol the provider cannot price.
type SymbolError struct {
	Symbol string
}

func (e *SymbolError) Error() string {
	if e.Symbol == "" {
		return "invalid stock symbol provided"
	}
	return "no price available for " + e.Symbol
}

var _ PriceProvider = StaticProvider{}
