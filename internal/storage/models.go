package storage

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Kind is the crossing direction of an alert.
type Kind string

const (
	KindAbove Kind = "above"
	KindBelow Kind = "below"
)

// ParseKind accepts "above"/"below" in any case.
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case KindAbove:
		return KindAbove, nil
	case KindBelow:
		return KindBelow, nil
	default:
		return "", fmt.Errorf("unknown alert kind %q", s)
	}
}

// Valid reports whether k is one of the supported directions.
func (k Kind) Valid() bool {
	return k == KindAbove || k == KindBelow
}

// Alert is a persisted threshold rule.
type Alert struct {
	ID        string    `json:"id"`
	Symbol    string    `json:"symbol"`
	Threshold float64   `json:"threshold"`
	Kind      Kind      `json:"kind"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"createdAt"`
}

// String renders the rule as "AAPL above $100.00".
func (a Alert) String() string {
	return fmt.Sprintf("%s %s $%s", a.Symbol, a.Kind, decimal.NewFromFloat(a.Threshold).StringFixed(2))
}

// AlertSpec is the caller-supplied input to AlertStore.Add. Threshold is a
// pointer so a missing value can be told apart from zero.
type AlertSpec struct {
	Symbol    string
	Threshold *float64
	Kind      string
}

// PriceRecord is a retained history sample.
type PriceRecord struct {
	Price     float64   `json:"price"`
	Timestamp time.Time `json:"timestamp"`
}

// PriceChange compares the latest record with an older one.
type PriceChange struct {
	Current       float64
	Previous      float64
	Change        float64
	ChangePercent float64
	PreviousAt    time.Time
	CurrentAt     time.Time
}

// PriceStats summarises every retained record of a symbol.
type PriceStats struct {
	Count   int
	Min     float64
	Max     float64
	Average float64
	Latest  float64
}

// NormalizeSymbol trims and upper-cases a ticker.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
