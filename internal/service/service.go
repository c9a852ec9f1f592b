package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"stock-price-alerts/internal/alerting"
	"stock-price-alerts/internal/config"
	"stock-price-alerts/internal/fetcher"
	"stock-price-alerts/internal/storage"
)

// AlertSource supplies the current alert definitions.
type AlertSource interface {
	List() []storage.Alert
}

// PriceRecorder keeps the price history. It may be nil, e.g. for dry runs.
type PriceRecorder interface {
	AddPrice(symbol string, price float64, ts time.Time)
	GetPriceChange(symbol string, window time.Duration) (storage.PriceChange, bool)
}

// SharedStore is a store other processes may write as well. The service
// re-reads it when a tick starts and writes it back before the tick ends.
type SharedStore interface {
	Reload() error
	Flush() error
}

// Deps are the collaborators of a monitoring pass. Audit and Locker are optional.
type Deps struct {
	Alerts     AlertSource
	History    PriceRecorder
	Provider   fetcher.PriceProvider
	Dispatcher *alerting.Dispatcher
	Audit      storage.TriggerAuditStore
	Locker     storage.AdvisoryLocker
}

// TickReport summarises one pass over all monitored symbols.
type TickReport struct {
	Symbols    []string
	Failed     []string
	Triggered  int
	Sent       int
	Suppressed int
	Skipped    bool
}

// Service runs the per-tick monitoring pipeline.
type Service struct {
	deps   Deps
	logger zerolog.Logger

	symbolDelay  time.Duration
	changeWindow time.Duration
	lockKey      int64

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) bool
}

// New constructs the monitoring service.
func New(cfg config.MonitorConfig, deps Deps, logger zerolog.Logger) *Service {
	window := cfg.ChangeWindow
	if window <= 0 {
		window = storage.DefaultChangeWindow
	}
	return &Service{
		deps:         deps,
		logger:       logger.With().Str("component", "service").Logger(),
		symbolDelay:  cfg.SymbolDelay,
		changeWindow: window,
		lockKey:      cfg.AdvisoryLockKey,
		now:          time.Now,
		sleep:        sleepContext,
	}
}

// Tick adapts RunTick to the scheduler callback.
func (s *Service) Tick(ctx context.Context) error {
	_, err := s.RunTick(ctx)
	return err
}

// RunTick processes every distinct symbol once, in first-seen order, pausing
// between symbols. A failing symbol is logged and skipped.
func (s *Service) RunTick(ctx context.Context) (TickReport, error) {
	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return TickReport{}, err
	}
	if !proceed {
		s.logger.Debug().Msg("skip tick because advisory lock held elsewhere")
		return TickReport{Skipped: true}, nil
	}
	if unlock != nil {
		defer unlock()
	}
	if shared, ok := s.deps.History.(SharedStore); ok {
		if err := shared.Reload(); err != nil {
			s.logger.Warn().Err(err).Msg("price history reload failed; using in-memory records")
		}
		defer func() {
			if err := shared.Flush(); err != nil {
				s.logger.Error().Err(err).Msg("failed to persist price history")
			}
		}()
	}

	alerts := s.deps.Alerts.List()
	symbols := DistinctSymbols(alerts)
	report := TickReport{Symbols: symbols}

	s.logger.Info().Int("alerts", len(alerts)).Int("symbols", len(symbols)).Msg("checking stock prices")

	for i, symbol := range symbols {
		if i > 0 && !s.sleep(ctx, s.symbolDelay) {
			return report, ctx.Err()
		}

		res, err := s.CheckSymbol(ctx, symbol, alerts)
		if err != nil {
			report.Failed = append(report.Failed, symbol)
			s.logger.Error().Err(err).Str("symbol", symbol).Msg("error checking stock")
			continue
		}
		report.Triggered += res.Triggered
		report.Sent += res.Sent
		report.Suppressed += res.Suppressed
	}

	s.logger.Info().
		Int("symbols", len(symbols)).
		Int("failed", len(report.Failed)).
		Int("triggered", report.Triggered).
		Int("sent", report.Sent).
		Msg("tick complete")
	return report, nil
}

// SymbolResult is the outcome of checking one symbol.
type SymbolResult struct {
	Sample     fetcher.PriceSample
	Triggered  int
	Sent       int
	Suppressed int
}

// CheckSymbol fetches, records, evaluates, and notifies for one symbol.
// Panics raised by collaborators are returned as errors.
func (s *Service) CheckSymbol(ctx context.Context, symbol string, alerts []storage.Alert) (res SymbolResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while checking %s: %v", symbol, r)
		}
	}()

	sample, err := s.deps.Provider.GetPrice(ctx, symbol)
	if err != nil {
		return res, fmt.Errorf("fetch price: %w", err)
	}
	if sample.Symbol == "" {
		sample.Symbol = symbol
	}
	if sample.Timestamp.IsZero() {
		sample.Timestamp = s.now().UTC()
	}
	res.Sample = sample

	if s.deps.History != nil {
		s.deps.History.AddPrice(symbol, sample.Price, sample.Timestamp)
		s.logChange(symbol, sample)
	}

	triggered := alerting.Evaluate(alerts, sample, s.now().UTC())
	res.Triggered = len(triggered)
	if len(triggered) == 0 {
		return res, nil
	}

	s.logger.Warn().
		Str("symbol", symbol).
		Float64("price", sample.Price).
		Str("origin", string(sample.Origin)).
		Int("count", len(triggered)).
		Msg("alerts triggered")

	dispatch := s.deps.Dispatcher.Send(ctx, triggered)
	res.Sent = dispatch.Sent
	res.Suppressed = dispatch.Suppressed

	s.audit(ctx, triggered, dispatch.Delivered)
	return res, nil
}

func (s *Service) logChange(symbol string, sample fetcher.PriceSample) {
	event := s.logger.Info().
		Str("symbol", symbol).
		Float64("price", sample.Price).
		Str("origin", string(sample.Origin))

	if change, ok := s.deps.History.GetPriceChange(symbol, s.changeWindow); ok {
		event = event.Float64("change", round2(change.Change))
		if !math.IsNaN(change.ChangePercent) {
			event = event.Float64("change_pct", round2(change.ChangePercent))
		}
	}
	event.Msg("price recorded")
}

func (s *Service) audit(ctx context.Context, triggered []alerting.TriggeredAlert, delivered []bool) {
	if s.deps.Audit == nil {
		return
	}
	for i, t := range triggered {
		rec := storage.TriggerRecord{
			AlertID:      t.ID,
			Symbol:       t.Symbol,
			Kind:         t.Kind,
			Threshold:    decimal.NewFromFloat(t.Threshold),
			CurrentPrice: decimal.NewFromFloat(t.CurrentPrice),
			Origin:       string(t.Origin),
			TriggeredAt:  t.TriggeredAt,
			Delivered:    i < len(delivered) && delivered[i],
		}
		if _, err := s.deps.Audit.InsertTrigger(ctx, rec); err != nil {
			s.logger.Error().Err(err).Str("alert_id", t.ID).Msg("failed to persist trigger record")
		}
	}
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.lockKey == 0 || s.deps.Locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.deps.Locker.TryAdvisoryLock(ctx, s.lockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}

// DistinctSymbols lists each alert symbol once, in first-seen order.
func DistinctSymbols(alerts []storage.Alert) []string {
	seen := make(map[string]struct{}, len(alerts))
	symbols := make([]string, 0, len(alerts))
	for _, a := range alerts {
		if _, ok := seen[a.Symbol]; ok {
			continue
		}
		seen[a.Symbol] = struct{}{}
		symbols = append(symbols, a.Symbol)
	}
	return symbols
}

func round2(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

func sleepContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
