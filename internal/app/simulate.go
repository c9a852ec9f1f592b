package app

import (
	"context"
	"errors"
	"fmt"
	"math"

	"stock-price-alerts/internal/config"
	"stock-price-alerts/internal/fetcher"
	"stock-price-alerts/internal/service"
	"stock-price-alerts/internal/storage"
)

// SimulateAlert evaluates the stored alerts for symbol against a made-up price
// and delivers whatever triggers through the configured channels. Price
// history and the trigger audit are left untouched.
func (a *App) SimulateAlert(ctx context.Context, symbol string, price float64) error {
	symbol = storage.NormalizeSymbol(symbol)
	if symbol == "" {
		return errors.New("symbol is required")
	}
	if math.IsNaN(price) || math.IsInf(price, 0) || price <= 0 {
		return errors.New("price must be a positive number")
	}

	alerts := a.openAlerts()
	defer a.closeStore("alerts", alerts)

	notifier, closeNotifier := a.newNotifier()
	defer closeNotifier()

	svc := service.New(config.MonitorConfig{}, service.Deps{
		Alerts:     alerts,
		Provider:   fetcher.StaticProvider{Prices: map[string]float64{symbol: price}},
		Dispatcher: a.newDispatcher(notifier),
	}, a.Logger)

	res, err := svc.CheckSymbol(ctx, symbol, alerts.List())
	if err != nil {
		return err
	}
	fmt.Fprintf(a.Out, "%s at %s: triggered %d, notified %d\n", symbol, formatPrice(price), res.Triggered, res.Sent)
	if res.Triggered > res.Sent+res.Suppressed {
		return errors.New("some notifications failed, check the logs")
	}
	return nil
}
