package app

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"stock-price-alerts/internal/alerting"
	"stock-price-alerts/internal/config"
	"stock-price-alerts/internal/fetcher"
	"stock-price-alerts/internal/scheduler"
	"stock-price-alerts/internal/service"
	"stock-price-alerts/internal/storage"
	"stock-price-alerts/internal/version"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
	Out    io.Writer

	fs       afero.Fs
	provider fetcher.PriceProvider
	audit    storage.TriggerAuditStore
}

// Option customises an App.
type Option func(*App)

// WithFs replaces the filesystem holding the JSON state files.
func WithFs(fs afero.Fs) Option {
	return func(a *App) { a.fs = fs }
}

// WithOutput redirects command output.
func WithOutput(w io.Writer) Option {
	return func(a *App) { a.Out = w }
}

// WithProvider replaces the configured price provider.
func WithProvider(p fetcher.PriceProvider) Option {
	return func(a *App) { a.provider = p }
}

// WithAudit replaces the database-backed trigger audit.
func WithAudit(audit storage.TriggerAuditStore) Option {
	return func(a *App) { a.audit = audit }
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger, opts ...Option) *App {
	a := &App{
		Config: cfg,
		Logger: logger.With().Str("component", "app").Logger(),
		Out:    os.Stdout,
		fs:     afero.NewOsFs(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *App) openAlerts() *storage.AlertStore {
	return storage.OpenAlertStore(a.fs, a.Config.Storage.AlertsFile, a.Logger)
}

func (a *App) openHistory() *storage.PriceHistoryStore {
	return storage.OpenPriceHistoryStore(a.fs, a.Config.Storage.HistoryFile, a.Config.Storage.MaxHistoryRecords, a.Logger)
}

func (a *App) closeStore(name string, c interface{ Close() error }) {
	if err := c.Close(); err != nil {
		a.Logger.Error().Err(err).Str("store", name).Msg("failed to persist store on close")
	}
}

func (a *App) newProvider() fetcher.PriceProvider {
	if a.provider != nil {
		return a.provider
	}
	p := a.Config.Provider
	return fetcher.NewPolygon(fetcher.PolygonOptions{
		BaseURL:       p.BaseURL,
		APIKey:        p.APIKey,
		Timeout:       p.Timeout,
		RetryAttempts: p.RetryAttempts,
		RetryDelay:    p.RetryDelay,
		UserAgent:     p.UserAgent,
	}, a.Logger)
}

// newNotifier assembles every enabled channel. With none enabled alerts are
// only logged. The returned func releases channel resources.
func (a *App) newNotifier() (alerting.Notifier, func()) {
	cfg := a.Config.Alerting
	var channels alerting.MultiNotifier
	closers := make([]func(), 0, 1)

	if cfg.Telegram.Enabled {
		channels = append(channels, alerting.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Telegram.APIBase, 10*time.Second, a.Logger))
	}
	if cfg.Email.Enabled {
		channels = append(channels, alerting.NewEmailNotifier(alerting.EmailOptions{
			Host:     cfg.Email.Host,
			Port:     cfg.Email.Port,
			Username: cfg.Email.Username,
			Password: cfg.Email.Password,
			From:     cfg.Email.From,
			To:       cfg.Email.Recipient(),
		}, a.Logger))
	}
	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		closers = append(closers, func() { _ = rdb.Close() })
		channels = append(channels, alerting.NewRedisNotifier(rdb, alerting.RedisOptions{
			ChannelPrefix: cfg.Redis.ChannelPrefix,
			HistoryKey:    cfg.Redis.HistoryKey,
			HistorySize:   cfg.Redis.HistorySize,
		}, a.Logger))
	}

	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}
	switch len(channels) {
	case 0:
		return alerting.NewLogNotifier(a.Logger), closeAll
	case 1:
		return channels[0], closeAll
	default:
		return channels, closeAll
	}
}

func (a *App) newDispatcher(notifier alerting.Notifier) *alerting.Dispatcher {
	return alerting.NewDispatcher(notifier, a.Logger, alerting.WithCooldown(a.Config.Alerting.Cooldown))
}

// openAudit returns nil when no database is configured.
func (a *App) openAudit(ctx context.Context) (*storage.AuditStore, error) {
	audit, err := storage.OpenAuditStore(ctx, a.Config.Database)
	if errors.Is(err, storage.ErrNotConfigured) {
		return nil, nil
	}
	return audit, err
}

// triggerAudit returns the injected audit or dials the configured database.
func (a *App) triggerAudit(ctx context.Context) (storage.TriggerAuditStore, func(), error) {
	if a.audit != nil {
		return a.audit, func() {}, nil
	}
	audit, err := a.openAudit(ctx)
	if err != nil {
		return nil, nil, err
	}
	if audit == nil {
		return nil, nil, errors.New("database not configured; cannot access triggers")
	}
	return audit, audit.Close, nil
}

// reloadingAlerts re-reads the alerts file before every tick so edits made
// through the CLI reach a running monitor. Alerts that were re-enabled or
// removed since the previous tick get their cooldown latch cleared.
type reloadingAlerts struct {
	store  *storage.AlertStore
	reset  func(id string)
	active map[string]bool
}

func newReloadingAlerts(store *storage.AlertStore, reset func(id string)) *reloadingAlerts {
	return &reloadingAlerts{store: store, reset: reset}
}

func (r *reloadingAlerts) List() []storage.Alert {
	_ = r.store.Reload()
	alerts := r.store.List()

	seen := make(map[string]bool, len(alerts))
	for _, a := range alerts {
		if was, known := r.active[a.ID]; known && !was && a.Active {
			r.reset(a.ID)
		}
		seen[a.ID] = a.Active
	}
	for id := range r.active {
		if _, ok := seen[id]; !ok {
			r.reset(id)
		}
	}
	r.active = seen
	return alerts
}

// monitor bundles everything a tick needs; close releases it in reverse order.
type monitor struct {
	svc     *service.Service
	alerts  *storage.AlertStore
	history *storage.PriceHistoryStore
	close   func()
}

func (a *App) newMonitor(ctx context.Context) (*monitor, error) {
	audit, err := a.openAudit(ctx)
	if err != nil {
		return nil, err
	}

	alerts := a.openAlerts()
	history := a.openHistory()
	notifier, closeNotifier := a.newNotifier()
	dispatcher := a.newDispatcher(notifier)

	deps := service.Deps{
		Alerts:     newReloadingAlerts(alerts, dispatcher.Reset),
		History:    history,
		Provider:   a.newProvider(),
		Dispatcher: dispatcher,
	}
	if audit != nil {
		deps.Audit = audit
		deps.Locker = audit
	} else if a.Config.Monitor.AdvisoryLockKey != 0 {
		a.Logger.Warn().Msg("monitor.advisory_lock_key set but database.dsn missing; lock disabled")
	}

	return &monitor{
		svc:     service.New(a.Config.Monitor, deps, a.Logger),
		alerts:  alerts,
		history: history,
		close: func() {
			closeNotifier()
			a.closeStore("alerts", alerts)
			a.closeStore("history", history)
			audit.Close()
		},
	}, nil
}

// Run executes the long-running monitoring service until SIGINT/SIGTERM.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	for _, w := range a.Config.Warnings() {
		a.Logger.Warn().Msg(w)
	}

	m, err := a.newMonitor(ctx)
	if err != nil {
		return err
	}
	defer m.close()

	sched := scheduler.New(scheduler.Options{
		Interval:   a.Config.Monitor.Interval(),
		RunOnStart: a.Config.Monitor.RunOnStart,
	}, a.Logger)

	// Ticks must outlive the signal so Stop can let an in-flight tick finish.
	if err := sched.Start(context.WithoutCancel(ctx), m.svc.Tick); err != nil {
		return err
	}
	a.Logger.Info().
		Str("version", version.Version).
		Dur("interval", sched.Interval()).
		Int("alerts", len(m.alerts.List())).
		Msg("stock price monitor running")

	<-ctx.Done()
	sched.Stop()
	sched.Wait()

	ticks, skipped := sched.Stats()
	a.Logger.Info().Int64("ticks", ticks).Int64("skipped", skipped).Msg("monitoring service stopped")
	return nil
}

// ExportOptions hold parameters for exporting price history.
type ExportOptions struct {
	Symbols   []string
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// HistoryOptions configure the history command.
type HistoryOptions struct {
	Symbol      string
	Limit       int
	Stats       bool
	ChangeHours int
}

// TriggersOptions configure the triggers command.
type TriggersOptions struct {
	Limit          int
	PruneOlderThan time.Duration
}

// AddAlertOptions are the flags of "alerts add".
type AddAlertOptions struct {
	Symbol    string
	Threshold *float64
	Kind      string
}
