package storage

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

const (
	// DefaultHistoryCapacity bounds each symbol's series.
	DefaultHistoryCapacity = 1000
	// DefaultHistoryLimit is used by GetHistory when limit <= 0.
	DefaultHistoryLimit = 100
	// DefaultChangeWindow is the look-back of GetPriceChange.
	DefaultChangeWindow = 24 * time.Hour
)

// PriceHistoryStore keeps a bounded, append-only series per symbol.
type PriceHistoryStore struct {
	mu       sync.RWMutex
	series   map[string][]PriceRecord
	capacity int
	file     *snapshotFile
	now      func() time.Time
	logger   zerolog.Logger
}

// HistoryOption customises a PriceHistoryStore.
type HistoryOption func(*PriceHistoryStore)

// WithHistoryClock overrides the clock used for window cut-offs.
func WithHistoryClock(now func() time.Time) HistoryOption {
	return func(s *PriceHistoryStore) { s.now = now }
}

// OpenPriceHistoryStore loads path from fs with the given per-symbol capacity
// (DefaultHistoryCapacity when <= 0). Load failures degrade to an empty map.
func OpenPriceHistoryStore(fs afero.Fs, path string, capacity int, logger zerolog.Logger, opts ...HistoryOption) *PriceHistoryStore {
	if capacity <= 0 {
		capacity = DefaultHistoryCapacity
	}
	s := &PriceHistoryStore{
		series:   make(map[string][]PriceRecord),
		capacity: capacity,
		now:      time.Now,
		logger:   logger.With().Str("component", "price_history").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.file = newSnapshotFile(fs, path, s.snapshot, s.logger)

	loaded, found, err := s.read()
	switch {
	case err != nil:
		s.logger.Error().Err(err).Str("path", path).Msg("price history unreadable; starting empty")
	case !found:
		s.logger.Info().Str("path", path).Msg("no price history file; starting empty")
	default:
		s.series = loaded
		s.logger.Info().Int("symbols", len(s.series)).Msg("price history loaded")
	}
	return s
}

// read decodes the file, trimming every series to capacity.
func (s *PriceHistoryStore) read() (map[string][]PriceRecord, bool, error) {
	var loaded map[string][]PriceRecord
	found, err := s.file.load(&loaded)
	if err != nil || !found {
		return nil, found, err
	}
	series := make(map[string][]PriceRecord, len(loaded))
	for symbol, records := range loaded {
		if len(records) > s.capacity {
			records = records[len(records)-s.capacity:]
		}
		series[symbol] = records
	}
	return series, true, nil
}

// Reload replaces the in-memory series with the file contents, picking up
// records written by another process. A missing file empties the store; an
// unreadable one keeps the current state.
func (s *PriceHistoryStore) Reload() error {
	loaded, found, err := s.read()
	if err != nil {
		s.logger.Error().Err(err).Msg("price history reload failed; keeping current records")
		return err
	}
	if !found {
		loaded = make(map[string][]PriceRecord)
	}
	s.mu.Lock()
	s.series = loaded
	s.mu.Unlock()
	return nil
}

// Capacity returns the per-symbol retention bound.
func (s *PriceHistoryStore) Capacity() int {
	return s.capacity
}

// AddPrice appends a record. Empty symbols and non-finite prices are ignored.
func (s *PriceHistoryStore) AddPrice(symbol string, price float64, ts time.Time) {
	if symbol == "" || math.IsNaN(price) || math.IsInf(price, 0) {
		return
	}

	s.mu.Lock()
	series := append(s.series[symbol], PriceRecord{Price: price, Timestamp: ts})
	if len(series) > s.capacity {
		trimmed := make([]PriceRecord, s.capacity)
		copy(trimmed, series[len(series)-s.capacity:])
		series = trimmed
	}
	s.series[symbol] = series
	s.mu.Unlock()

	s.file.Schedule()
}

// GetHistory returns up to limit of the newest records, oldest first.
func (s *PriceHistoryStore) GetHistory(symbol string, limit int) []PriceRecord {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	series := s.series[symbol]
	if len(series) > limit {
		series = series[len(series)-limit:]
	}
	out := make([]PriceRecord, len(series))
	copy(out, series)
	return out
}

// GetLatest returns the newest record.
func (s *PriceHistoryStore) GetLatest(symbol string) (PriceRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	series := s.series[symbol]
	if len(series) == 0 {
		return PriceRecord{}, false
	}
	return series[len(series)-1], true
}

// GetPriceChange compares the newest record with the first stored record at or
// before now-window. It reports false with fewer than two records or when no
// record is old enough. ChangePercent is NaN when the previous price is zero.
func (s *PriceHistoryStore) GetPriceChange(symbol string, window time.Duration) (PriceChange, bool) {
	if window <= 0 {
		window = DefaultChangeWindow
	}
	cutoff := s.now().Add(-window)

	s.mu.RLock()
	defer s.mu.RUnlock()

	series := s.series[symbol]
	if len(series) < 2 {
		return PriceChange{}, false
	}

	prevIdx := -1
	for i, rec := range series {
		if !rec.Timestamp.After(cutoff) {
			prevIdx = i
			break
		}
	}
	if prevIdx < 0 {
		return PriceChange{}, false
	}

	previous := series[prevIdx]
	current := series[len(series)-1]
	change := PriceChange{
		Current:    current.Price,
		Previous:   previous.Price,
		Change:     current.Price - previous.Price,
		PreviousAt: previous.Timestamp,
		CurrentAt:  current.Timestamp,
	}
	if previous.Price == 0 {
		change.ChangePercent = math.NaN()
	} else {
		change.ChangePercent = change.Change / previous.Price * 100
	}
	return change, true
}

// GetStats summarises all retained records.
func (s *PriceHistoryStore) GetStats(symbol string) (PriceStats, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	series := s.series[symbol]
	if len(series) == 0 {
		return PriceStats{}, false
	}

	stats := PriceStats{
		Count:  len(series),
		Min:    series[0].Price,
		Max:    series[0].Price,
		Latest: series[len(series)-1].Price,
	}
	var sum float64
	for _, rec := range series {
		sum += rec.Price
		stats.Min = math.Min(stats.Min, rec.Price)
		stats.Max = math.Max(stats.Max, rec.Price)
	}
	stats.Average = sum / float64(len(series))
	return stats, true
}

// Symbols lists every symbol with history, sorted.
func (s *PriceHistoryStore) Symbols() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.series))
	for symbol := range s.series {
		out = append(out, symbol)
	}
	sort.Strings(out)
	return out
}

// Flush writes the current map synchronously.
func (s *PriceHistoryStore) Flush() error {
	return s.file.Flush()
}

// Close stops background persistence after a final write.
func (s *PriceHistoryStore) Close() error {
	return s.file.Close()
}

func (s *PriceHistoryStore) snapshot() any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string][]PriceRecord, len(s.series))
	for symbol, series := range s.series {
		cp := make([]PriceRecord, len(series))
		copy(cp, series)
		out[symbol] = cp
	}
	return out
}
