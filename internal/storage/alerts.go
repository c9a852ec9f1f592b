package storage

import (
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

// AlertStore owns the alert collection and its JSON file.
type AlertStore struct {
	mu     sync.RWMutex
	alerts []Alert
	file   *snapshotFile
	now    func() time.Time
	newID  func() string
	logger zerolog.Logger
}

// AlertStoreOption customises an AlertStore.
type AlertStoreOption func(*AlertStore)

// WithAlertClock overrides the clock used for CreatedAt.
func WithAlertClock(now func() time.Time) AlertStoreOption {
	return func(s *AlertStore) { s.now = now }
}

// WithAlertIDs overrides id generation.
func WithAlertIDs(newID func() string) AlertStoreOption {
	return func(s *AlertStore) { s.newID = newID }
}

// OpenAlertStore loads path from fs. A missing or corrupt file yields an empty
// store; the error is logged, never returned.
func OpenAlertStore(fs afero.Fs, path string, logger zerolog.Logger, opts ...AlertStoreOption) *AlertStore {
	s := &AlertStore{
		alerts: make([]Alert, 0),
		now:    func() time.Time { return time.Now().UTC() },
		newID:  uuid.NewString,
		logger: logger.With().Str("component", "alert_store").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.file = newSnapshotFile(fs, path, s.snapshot, s.logger)

	var loaded []Alert
	found, err := s.file.load(&loaded)
	switch {
	case err != nil:
		s.logger.Error().Err(err).Str("path", path).Msg("alerts file unreadable; starting empty")
	case !found:
		s.logger.Info().Str("path", path).Msg("no alerts file; starting empty")
	default:
		if loaded != nil {
			s.alerts = loaded
		}
		s.logger.Info().Int("count", len(s.alerts)).Msg("alerts loaded")
	}
	return s
}

// Add validates the request and stores a new active alert.
func (s *AlertStore) Add(req AlertSpec) (Alert, error) {
	symbol := NormalizeSymbol(req.Symbol)
	if symbol == "" {
		return Alert{}, invalid("symbol", "is required")
	}
	if req.Threshold == nil {
		return Alert{}, invalid("threshold", "is required")
	}
	threshold := *req.Threshold
	if math.IsNaN(threshold) || math.IsInf(threshold, 0) || threshold <= 0 {
		return Alert{}, invalid("threshold", "must be a positive number")
	}
	if strings.TrimSpace(req.Kind) == "" {
		return Alert{}, invalid("kind", "is required")
	}
	kind, err := ParseKind(req.Kind)
	if err != nil {
		return Alert{}, invalid("kind", `must be "above" or "below"`)
	}

	alert := Alert{
		ID:        s.newID(),
		Symbol:    symbol,
		Threshold: threshold,
		Kind:      kind,
		Active:    true,
		CreatedAt: s.now(),
	}

	s.mu.Lock()
	s.alerts = append(s.alerts, alert)
	s.mu.Unlock()

	s.file.Schedule()
	s.logger.Info().Str("alert_id", alert.ID).Str("alert", alert.String()).Msg("alert added")
	return alert, nil
}

// Remove deletes id. Unknown ids are ignored.
func (s *AlertStore) Remove(id string) {
	s.mu.Lock()
	kept := s.alerts[:0:0]
	for _, a := range s.alerts {
		if a.ID != id {
			kept = append(kept, a)
		}
	}
	removed := len(kept) != len(s.alerts)
	s.alerts = kept
	s.mu.Unlock()

	s.file.Schedule()
	if removed {
		s.logger.Info().Str("alert_id", id).Msg("alert removed")
	}
}

// SetActive toggles an alert on or off.
func (s *AlertStore) SetActive(id string, active bool) (Alert, error) {
	s.mu.Lock()
	idx := s.indexOf(id)
	if idx < 0 {
		s.mu.Unlock()
		return Alert{}, ErrAlertNotFound
	}
	s.alerts[idx].Active = active
	alert := s.alerts[idx]
	s.mu.Unlock()

	s.file.Schedule()
	s.logger.Info().Str("alert_id", id).Bool("active", active).Msg("alert updated")
	return alert, nil
}

// Get returns a single alert.
func (s *AlertStore) Get(id string) (Alert, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx := s.indexOf(id)
	if idx < 0 {
		return Alert{}, false
	}
	return s.alerts[idx], true
}

// List returns a copy of every alert in insertion order.
func (s *AlertStore) List() []Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Alert, len(s.alerts))
	copy(out, s.alerts)
	return out
}

// Reload replaces the in-memory collection with the file contents, picking up
// changes written by another process. A missing file empties the store; an
// unreadable one keeps the current state.
func (s *AlertStore) Reload() error {
	var loaded []Alert
	found, err := s.file.load(&loaded)
	if err != nil {
		s.logger.Error().Err(err).Msg("alerts reload failed; keeping current alerts")
		return err
	}
	if loaded == nil || !found {
		loaded = make([]Alert, 0)
	}
	s.mu.Lock()
	s.alerts = loaded
	s.mu.Unlock()
	return nil
}

// Flush writes the current collection synchronously.
func (s *AlertStore) Flush() error {
	return s.file.Flush()
}

// Close stops background persistence after a final write.
func (s *AlertStore) Close() error {
	return s.file.Close()
}

func (s *AlertStore) indexOf(id string) int {
	for i, a := range s.alerts {
		if a.ID == id {
			return i
		}
	}
	return -1
}

func (s *AlertStore) snapshot() any {
	return s.List()
}
