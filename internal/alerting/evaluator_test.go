package alerting

import (
	"testing"
	"time"

	"stock-price-alerts/internal/fetcher"
	"stock-price-alerts/internal/storage"
)

func alert(id, symbol string, kind storage.Kind, threshold float64, active bool) storage.Alert {
	return storage.Alert{ID: id, Symbol: symbol, Kind: kind, Threshold: threshold, Active: active}
}

func TestEvaluateAboveThreshold(t *testing.T) {
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	alerts := []storage.Alert{alert("1", "AAPL", storage.KindAbove, 100, true)}

	got := Evaluate(alerts, fetcher.PriceSample{Symbol: "AAPL", Price: 101}, now)
	if len(got) != 1 {
		t.Fatalf("price 101 should trigger above 100, got %d", len(got))
	}
	if got[0].CurrentPrice != 101 || !got[0].TriggeredAt.Equal(now) {
		t.Fatalf("unexpected triggered alert %+v", got[0])
	}

	if got := Evaluate(alerts, fetcher.PriceSample{Symbol: "AAPL", Price: 99}, now); len(got) != 0 {
		t.Fatalf("price 99 should not trigger above 100, got %+v", got)
	}
}

func TestEvaluateBoundariesInclusive(t *testing.T) {
	now := time.Now()
	cases := []struct {
		name  string
		kind  storage.Kind
		price float64
		want  bool
	}{
		{"below at threshold", storage.KindBelow, 50, true},
		{"below under threshold", storage.KindBelow, 49.99, true},
		{"below over threshold", storage.KindBelow, 50.01, false},
		{"above at threshold", storage.KindAbove, 50, true},
		{"above under threshold", storage.KindAbove, 49.99, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			alerts := []storage.Alert{alert("x", "MSFT", tc.kind, 50, true)}
			got := Evaluate(alerts, fetcher.PriceSample{Symbol: "MSFT", Price: tc.price}, now)
			if (len(got) == 1) != tc.want {
				t.Fatalf("triggered = %v, want %v", len(got) == 1, tc.want)
			}
		})
	}
}

func TestEvaluateSkipsInactiveAndOtherSymbols(t *testing.T) {
	alerts := []storage.Alert{
		alert("1", "AAPL", storage.KindAbove, 100, false),
		alert("2", "GOOGL", storage.KindAbove, 100, true),
		alert("3", "AAPL", storage.KindBelow, 200, true),
		alert("4", "AAPL", storage.KindAbove, 150, true),
	}
	got := Evaluate(alerts, fetcher.PriceSample{Symbol: "AAPL", Price: 160, Origin: fetcher.OriginSynthetic}, time.Now())
	if len(got) != 2 {
		t.Fatalf("expected 2 triggered alerts, got %d", len(got))
	}
	if got[0].ID != "3" || got[1].ID != "4" {
		t.Fatalf("input order not preserved: %s, %s", got[0].ID, got[1].ID)
	}
	if got[0].Origin != fetcher.OriginSynthetic {
		t.Fatalf("origin should be carried, got %q", got[0].Origin)
	}
}
