package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/spf13/afero"

	"stock-price-alerts/internal/alerting"
	"stock-price-alerts/internal/config"
	"stock-price-alerts/internal/fetcher"
	"stock-price-alerts/internal/storage"
)

type staticAlerts []storage.Alert

func (s staticAlerts) List() []storage.Alert {
	return append([]storage.Alert(nil), s...)
}

type scriptedProvider struct {
	mu     sync.Mutex
	calls  []string
	prices map[string]float64
	fail   map[string]error
	panics map[string]bool
}

func (p *scriptedProvider) GetPrice(_ context.Context, symbol string) (fetcher.PriceSample, error) {
	p.mu.Lock()
	p.calls = append(p.calls, symbol)
	p.mu.Unlock()
	if p.panics[symbol] {
		panic("provider exploded")
	}
	if err, ok := p.fail[symbol]; ok {
		return fetcher.PriceSample{}, err
	}
	return fetcher.PriceSample{Symbol: symbol, Price: p.prices[symbol], Timestamp: time.Now().UTC(), Origin: fetcher.OriginLive}, nil
}

type recordingNotifier struct {
	mu    sync.Mutex
	alert []alerting.TriggeredAlert
}

func (n *recordingNotifier) Notify(_ context.Context, a alerting.TriggeredAlert) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alert = append(n.alert, a)
	return nil
}

type memoryAudit struct {
	records []storage.TriggerRecord
}

func (m *memoryAudit) InsertTrigger(_ context.Context, rec storage.TriggerRecord) (storage.TriggerRecord, error) {
	rec.ID = int64(len(m.records) + 1)
	m.records = append(m.records, rec)
	return rec, nil
}

func (m *memoryAudit) ListRecentTriggers(context.Context, int) ([]storage.TriggerRecord, error) {
	return m.records, nil
}

func (m *memoryAudit) DeleteTriggersBefore(context.Context, time.Time) (int64, error) {
	return 0, nil
}

type fakeLocker struct {
	acquired bool
	unlocked bool
}

func (l *fakeLocker) TryAdvisoryLock(context.Context, int64) (func(), bool, error) {
	if !l.acquired {
		return nil, false, nil
	}
	return func() { l.unlocked = true }, true, nil
}

func newHistory(t *testing.T) *storage.PriceHistoryStore {
	t.Helper()
	h := storage.OpenPriceHistoryStore(afero.NewMemMapFs(), "data/history.json", 10, zerolog.Nop())
	t.Cleanup(func() { _ = h.Close() })
	return h
}

func newService(deps Deps) *Service {
	svc := New(config.MonitorConfig{SymbolDelay: time.Second}, deps, zerolog.Nop())
	svc.sleep = func(ctx context.Context, d time.Duration) bool { return ctx.Err() == nil }
	return svc
}

func TestDistinctSymbolsFirstSeenOrder(t *testing.T) {
	alerts := []storage.Alert{{Symbol: "AAPL"}, {Symbol: "AAPL"}, {Symbol: "GOOGL"}, {Symbol: "AAPL"}, {Symbol: "MSFT"}}
	got := DistinctSymbols(alerts)
	want := []string{"AAPL", "GOOGL", "MSFT"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestRunTickProcessesEachSymbolOnce(t *testing.T) {
	alerts := staticAlerts{
		{ID: "1", Symbol: "AAPL", Kind: storage.KindAbove, Threshold: 100, Active: true},
		{ID: "2", Symbol: "AAPL", Kind: storage.KindBelow, Threshold: 50, Active: true},
		{ID: "3", Symbol: "GOOGL", Kind: storage.KindAbove, Threshold: 500, Active: true},
	}
	provider := &scriptedProvider{prices: map[string]float64{"AAPL": 120, "GOOGL": 140}}
	notifier := &recordingNotifier{}
	history := newHistory(t)

	svc := newService(Deps{
		Alerts:     alerts,
		History:    history,
		Provider:   provider,
		Dispatcher: alerting.NewDispatcher(notifier, zerolog.Nop()),
	})

	var delays []time.Duration
	svc.sleep = func(_ context.Context, d time.Duration) bool {
		delays = append(delays, d)
		return true
	}

	report, err := svc.RunTick(context.Background())
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if len(provider.calls) != 2 || provider.calls[0] != "AAPL" || provider.calls[1] != "GOOGL" {
		t.Fatalf("provider calls = %v, want [AAPL GOOGL]", provider.calls)
	}
	if len(delays) != 1 || delays[0] != time.Second {
		t.Fatalf("expected one 1s pause between symbols, got %v", delays)
	}
	if report.Triggered != 1 || report.Sent != 1 {
		t.Fatalf("unexpected report %+v", report)
	}
	if len(notifier.alert) != 1 || notifier.alert[0].ID != "1" || notifier.alert[0].CurrentPrice != 120 {
		t.Fatalf("unexpected notifications %+v", notifier.alert)
	}
	if latest, ok := history.GetLatest("GOOGL"); !ok || latest.Price != 140 {
		t.Fatalf("history not recorded: %+v %v", latest, ok)
	}
}

func TestRunTickContinuesAfterProviderFailure(t *testing.T) {
	alerts := staticAlerts{
		{ID: "a", Symbol: "FAIL", Kind: storage.KindAbove, Threshold: 1, Active: true},
		{ID: "b", Symbol: "BOOM", Kind: storage.KindAbove, Threshold: 1, Active: true},
		{ID: "c", Symbol: "GOOD", Kind: storage.KindAbove, Threshold: 1, Active: true},
	}
	provider := &scriptedProvider{
		prices: map[string]float64{"GOOD": 10},
		fail:   map[string]error{"FAIL": errors.New("upstream 500")},
		panics: map[string]bool{"BOOM": true},
	}
	notifier := &recordingNotifier{}

	svc := newService(Deps{
		Alerts:     alerts,
		History:    newHistory(t),
		Provider:   provider,
		Dispatcher: alerting.NewDispatcher(notifier, zerolog.Nop()),
	})

	report, err := svc.RunTick(context.Background())
	if err != nil {
		t.Fatalf("tick should not fail: %v", err)
	}
	if len(report.Failed) != 2 {
		t.Fatalf("failed symbols = %v", report.Failed)
	}
	if len(notifier.alert) != 1 || notifier.alert[0].ID != "c" {
		t.Fatalf("GOOD alert should still notify, got %+v", notifier.alert)
	}
}

func TestRunTickWithoutHistory(t *testing.T) {
	alerts := staticAlerts{{ID: "1", Symbol: "TSLA", Kind: storage.KindBelow, Threshold: 300, Active: true}}
	notifier := &recordingNotifier{}
	svc := newService(Deps{
		Alerts:     alerts,
		Provider:   fetcher.StaticProvider{Prices: map[string]float64{"TSLA": 250}},
		Dispatcher: alerting.NewDispatcher(notifier, zerolog.Nop()),
	})

	if _, err := svc.RunTick(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(notifier.alert) != 1 {
		t.Fatalf("expected one notification, got %d", len(notifier.alert))
	}
}

func TestRunTickAuditsTriggers(t *testing.T) {
	alerts := staticAlerts{{ID: "1", Symbol: "AAPL", Kind: storage.KindAbove, Threshold: 100, Active: true}}
	audit := &memoryAudit{}
	svc := newService(Deps{
		Alerts:     alerts,
		Provider:   fetcher.StaticProvider{Prices: map[string]float64{"AAPL": 150.25}},
		Dispatcher: alerting.NewDispatcher(&recordingNotifier{}, zerolog.Nop()),
		Audit:      audit,
	})

	if _, err := svc.RunTick(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(audit.records) != 1 {
		t.Fatalf("expected one audit row, got %d", len(audit.records))
	}
	rec := audit.records[0]
	if rec.AlertID != "1" || !rec.Delivered || !rec.CurrentPrice.Equal(decimal.RequireFromString("150.25")) {
		t.Fatalf("unexpected audit record %+v", rec)
	}
}

func TestRunTickHonoursAdvisoryLock(t *testing.T) {
	alerts := staticAlerts{{ID: "1", Symbol: "AAPL", Kind: storage.KindAbove, Threshold: 1, Active: true}}
	provider := &scriptedProvider{prices: map[string]float64{"AAPL": 2}}
	locker := &fakeLocker{}

	svc := New(config.MonitorConfig{AdvisoryLockKey: 42}, Deps{
		Alerts:     alerts,
		Provider:   provider,
		Dispatcher: alerting.NewDispatcher(&recordingNotifier{}, zerolog.Nop()),
		Locker:     locker,
	}, zerolog.Nop())

	report, err := svc.RunTick(context.Background())
	if err != nil || !report.Skipped {
		t.Fatalf("tick should be skipped when lock is held elsewhere: %+v %v", report, err)
	}
	if len(provider.calls) != 0 {
		t.Fatal("no symbol should be fetched without the lock")
	}

	locker.acquired = true
	if _, err := svc.RunTick(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !locker.unlocked {
		t.Fatal("lock should be released after the tick")
	}
}

func TestRunTickStopsWhenContextCancelledDuringPacing(t *testing.T) {
	alerts := staticAlerts{{Symbol: "A"}, {Symbol: "B"}}
	provider := &scriptedProvider{prices: map[string]float64{"A": 1, "B": 1}}
	svc := newService(Deps{
		Alerts:     alerts,
		Provider:   provider,
		Dispatcher: alerting.NewDispatcher(&recordingNotifier{}, zerolog.Nop()),
	})

	ctx, cancel := context.WithCancel(context.Background())
	svc.sleep = func(context.Context, time.Duration) bool {
		cancel()
		return false
	}
	if _, err := svc.RunTick(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(provider.calls) != 1 {
		t.Fatalf("calls = %v", provider.calls)
	}
}

func TestRunTickKeepsHistoryWrittenByAnotherProcess(t *testing.T) {
	fs := afero.NewMemMapFs()
	const path = "data/history.json"

	history := storage.OpenPriceHistoryStore(fs, path, 10, zerolog.Nop())
	defer history.Close()

	other := storage.OpenPriceHistoryStore(fs, path, 10, zerolog.Nop())
	other.AddPrice("MSFT", 390, time.Now().UTC().Add(-time.Hour))
	if err := other.Close(); err != nil {
		t.Fatal(err)
	}

	svc := newService(Deps{
		Alerts:     staticAlerts{{ID: "1", Symbol: "AAPL", Kind: storage.KindAbove, Threshold: 1000, Active: true}},
		History:    history,
		Provider:   fetcher.StaticProvider{Prices: map[string]float64{"AAPL": 210}},
		Dispatcher: alerting.NewDispatcher(&recordingNotifier{}, zerolog.Nop()),
	})
	if _, err := svc.RunTick(context.Background()); err != nil {
		t.Fatal(err)
	}

	onDisk := storage.OpenPriceHistoryStore(fs, path, 10, zerolog.Nop())
	defer onDisk.Close()
	if _, ok := onDisk.GetLatest("MSFT"); !ok {
		t.Fatal("record written by the other process was lost")
	}
	if latest, ok := onDisk.GetLatest("AAPL"); !ok || latest.Price != 210 {
		t.Fatalf("tick record not flushed: %+v %v", latest, ok)
	}
}
