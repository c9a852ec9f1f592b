package app

import (
	"fmt"
	"text/tabwriter"

	"stock-price-alerts/internal/storage"
)

// AddAlert validates and stores a new alert.
func (a *App) AddAlert(opts AddAlertOptions) (storage.Alert, error) {
	store := a.openAlerts()
	defer a.closeStore("alerts", store)

	alert, err := store.Add(storage.AlertSpec{Symbol: opts.Symbol, Threshold: opts.Threshold, Kind: opts.Kind})
	if err != nil {
		return storage.Alert{}, err
	}
	fmt.Fprintf(a.Out, "created alert %s: %s\n", alert.ID, alert)
	return alert, nil
}

// ListAlerts prints every alert in insertion order.
func (a *App) ListAlerts() error {
	store := a.openAlerts()
	defer a.closeStore("alerts", store)

	alerts := store.List()
	if len(alerts) == 0 {
		fmt.Fprintln(a.Out, "no alerts configured")
		return nil
	}

	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "ID\tSymbol\tKind\tThreshold\tActive\tCreated (UTC)")
	for _, alert := range alerts {
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%t\t%s\n",
			alert.ID,
			alert.Symbol,
			alert.Kind,
			formatPrice(alert.Threshold),
			alert.Active,
			alert.CreatedAt.UTC().Format(timeLayout),
		)
	}
	return writer.Flush()
}

// RemoveAlert deletes an alert. Unknown ids are not an error.
func (a *App) RemoveAlert(id string) error {
	store := a.openAlerts()
	defer a.closeStore("alerts", store)

	_, existed := store.Get(id)
	store.Remove(id)
	if existed {
		fmt.Fprintf(a.Out, "removed alert %s\n", id)
	} else {
		fmt.Fprintf(a.Out, "alert %s not found; nothing removed\n", id)
	}
	return nil
}

// SetAlertActive enables or disables an alert.
func (a *App) SetAlertActive(id string, active bool) error {
	store := a.openAlerts()
	defer a.closeStore("alerts", store)

	alert, err := store.SetActive(id, active)
	if err != nil {
		return fmt.Errorf("alert %s: %w", id, err)
	}
	state := "disabled"
	if alert.Active {
		state = "enabled"
	}
	fmt.Fprintf(a.Out, "%s alert %s: %s\n", state, alert.ID, alert)
	return nil
}
