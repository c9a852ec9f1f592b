package storage

import (
	"math"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

var t0 = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

func openHistory(t *testing.T, fs afero.Fs, capacity int, now time.Time) *PriceHistoryStore {
	t.Helper()
	s := OpenPriceHistoryStore(fs, "data/price_history.json", capacity, zerolog.Nop(),
		WithHistoryClock(func() time.Time { return now }))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestPropertyHistoryCapacity(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("series never exceeds capacity and keeps the newest records", prop.ForAll(
		func(capacity int, prices []float64) bool {
			s := OpenPriceHistoryStore(afero.NewMemMapFs(), "h.json", capacity, zerolog.Nop())
			defer s.Close()

			for i, p := range prices {
				s.AddPrice("AAPL", p, t0.Add(time.Duration(i)*time.Minute))
				if len(s.GetHistory("AAPL", capacity+10)) > capacity {
					return false
				}
			}

			got := s.GetHistory("AAPL", capacity+10)
			start := 0
			if len(prices) > capacity {
				start = len(prices) - capacity
			}
			want := prices[start:]
			if len(got) != len(want) {
				return false
			}
			for i := range want {
				if got[i].Price != want[i] {
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 25),
		gen.SliceOf(gen.Float64Range(0.01, 5000)),
	))

	properties.TestingRun(t)
}

func TestAddPriceIgnoresInvalidInput(t *testing.T) {
	s := openHistory(t, afero.NewMemMapFs(), 10, t0)
	s.AddPrice("", 10, t0)
	s.AddPrice("AAPL", math.NaN(), t0)
	s.AddPrice("AAPL", math.Inf(1), t0)
	if len(s.Symbols()) != 0 {
		t.Fatalf("invalid input should be ignored, got symbols %v", s.Symbols())
	}
}

func TestGetHistoryLimitAndOrder(t *testing.T) {
	s := openHistory(t, afero.NewMemMapFs(), 1000, t0)
	for i := 0; i < 150; i++ {
		s.AddPrice("MSFT", float64(i), t0.Add(time.Duration(i)*time.Minute))
	}

	def := s.GetHistory("MSFT", 0)
	if len(def) != DefaultHistoryLimit {
		t.Fatalf("default limit = %d, want %d", len(def), DefaultHistoryLimit)
	}
	if def[0].Price != 50 || def[len(def)-1].Price != 149 {
		t.Fatalf("expected newest 100 in chronological order, got %v..%v", def[0].Price, def[len(def)-1].Price)
	}

	if got := s.GetHistory("MSFT", 5); len(got) != 5 || got[4].Price != 149 {
		t.Fatalf("limit 5 returned %+v", got)
	}
	if got := s.GetHistory("UNKNOWN", 5); len(got) != 0 {
		t.Fatalf("unknown symbol should be empty, got %+v", got)
	}
}

func TestGetLatest(t *testing.T) {
	s := openHistory(t, afero.NewMemMapFs(), 10, t0)
	if _, ok := s.GetLatest("AAPL"); ok {
		t.Fatal("empty series has no latest record")
	}
	s.AddPrice("AAPL", 1, t0)
	s.AddPrice("AAPL", 2, t0.Add(time.Minute))
	if latest, ok := s.GetLatest("AAPL"); !ok || latest.Price != 2 {
		t.Fatalf("latest = %+v %v", latest, ok)
	}
}

func TestGetPriceChange(t *testing.T) {
	now := t0.Add(48 * time.Hour)
	s := openHistory(t, afero.NewMemMapFs(), 100, now)

	s.AddPrice("AAPL", 100, t0)
	if _, ok := s.GetPriceChange("AAPL", 24*time.Hour); ok {
		t.Fatal("a single record has no change")
	}

	s.AddPrice("AAPL", 110, t0.Add(12*time.Hour))
	s.AddPrice("AAPL", 120, now)

	change, ok := s.GetPriceChange("AAPL", 24*time.Hour)
	if !ok {
		t.Fatal("expected a change value")
	}
	// The first stored record at or before the cut-off is used.
	if change.Previous != 100 || change.Current != 120 {
		t.Fatalf("previous/current = %v/%v", change.Previous, change.Current)
	}
	if change.Change != 20 || change.ChangePercent != 20 {
		t.Fatalf("change = %v (%v%%)", change.Change, change.ChangePercent)
	}
}

func TestGetPriceChangeNoOldRecord(t *testing.T) {
	now := t0.Add(time.Hour)
	s := openHistory(t, afero.NewMemMapFs(), 100, now)
	s.AddPrice("TSLA", 200, t0)
	s.AddPrice("TSLA", 210, now)

	if _, ok := s.GetPriceChange("TSLA", 24*time.Hour); ok {
		t.Fatal("no record is old enough for a 24h window")
	}
	if _, ok := s.GetPriceChange("TSLA", time.Hour); !ok {
		t.Fatal("record exactly at the cut-off qualifies")
	}
}

func TestGetPriceChangeZeroPrevious(t *testing.T) {
	now := t0.Add(48 * time.Hour)
	s := openHistory(t, afero.NewMemMapFs(), 100, now)
	s.AddPrice("ZERO", 0, t0)
	s.AddPrice("ZERO", 5, now)

	change, ok := s.GetPriceChange("ZERO", 24*time.Hour)
	if !ok {
		t.Fatal("expected a change value")
	}
	if change.Change != 5 || !math.IsNaN(change.ChangePercent) {
		t.Fatalf("change = %v, percent = %v; want 5 and NaN", change.Change, change.ChangePercent)
	}
}

func TestGetStats(t *testing.T) {
	s := openHistory(t, afero.NewMemMapFs(), 100, t0)
	if _, ok := s.GetStats("AAPL"); ok {
		t.Fatal("no stats for unknown symbol")
	}
	for i, p := range []float64{10, 30, 20} {
		s.AddPrice("AAPL", p, t0.Add(time.Duration(i)*time.Minute))
	}
	stats, ok := s.GetStats("AAPL")
	if !ok {
		t.Fatal("expected stats")
	}
	if stats.Count != 3 || stats.Min != 10 || stats.Max != 30 || stats.Average != 20 || stats.Latest != 20 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestHistoryRoundTripAndCapacityOnLoad(t *testing.T) {
	fs := afero.NewMemMapFs()
	s := OpenPriceHistoryStore(fs, "data/price_history.json", 10, zerolog.Nop())
	for i := 0; i < 10; i++ {
		s.AddPrice("GOOGL", float64(100+i), t0.Add(time.Duration(i)*time.Minute))
	}
	s.AddPrice("AAPL", 175.5, t0)
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	reopened := OpenPriceHistoryStore(fs, "data/price_history.json", 4, zerolog.Nop())
	defer reopened.Close()

	if syms := reopened.Symbols(); len(syms) != 2 || syms[0] != "AAPL" || syms[1] != "GOOGL" {
		t.Fatalf("symbols = %v", syms)
	}
	got := reopened.GetHistory("GOOGL", 100)
	if len(got) != 4 || got[0].Price != 106 || !got[3].Timestamp.Equal(t0.Add(9*time.Minute)) {
		t.Fatalf("reloaded series should be trimmed to the newest 4: %+v", got)
	}
}

func TestHistoryCorruptFileStartsEmpty(t *testing.T) {
	fs := afero.NewMemMapFs()
	_ = afero.WriteFile(fs, "data/price_history.json", []byte("[1,2"), 0o644)
	s := openHistory(t, fs, 10, t0)
	if len(s.Symbols()) != 0 {
		t.Fatal("corrupt history should load as empty")
	}
}
