package alerting

import (
	"time"

	"stock-price-alerts/internal/fetcher"
	"stock-price-alerts/internal/storage"
)

// TriggeredAlert is an alert whose threshold was crossed by a sample.
type TriggeredAlert struct {
	storage.Alert
	CurrentPrice float64
	TriggeredAt  time.Time
	Origin       fetcher.Origin
}

// Evaluate returns the active alerts for sample.Symbol whose threshold the
// sample crosses. Both comparisons include the boundary. Input order is kept.
func Evaluate(alerts []storage.Alert, sample fetcher.PriceSample, now time.Time) []TriggeredAlert {
	var triggered []TriggeredAlert
	for _, a := range alerts {
		if !a.Active || a.Symbol != sample.Symbol {
			continue
		}
		if !crossed(a, sample.Price) {
			continue
		}
		triggered = append(triggered, TriggeredAlert{
			Alert:        a,
			CurrentPrice: sample.Price,
			TriggeredAt:  now,
			Origin:       sample.Origin,
		})
	}
	return triggered
}

func crossed(a storage.Alert, price float64) bool {
	switch a.Kind {
	case storage.KindAbove:
		return price >= a.Threshold
	case storage.KindBelow:
		return price <= a.Threshold
	default:
		return false
	}
}
