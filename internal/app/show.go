package app

import (
	"context"
	"errors"
	"fmt"
	"math"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"

	"stock-price-alerts/internal/storage"
)

const timeLayout = time.RFC3339

// History prints recent price records for a symbol and, optionally, its
// statistics and windowed change.
func (a *App) History(opts HistoryOptions) error {
	symbol := storage.NormalizeSymbol(opts.Symbol)
	if symbol == "" {
		return errors.New("symbol is required")
	}

	store := a.openHistory()
	defer a.closeStore("history", store)

	records := store.GetHistory(symbol, opts.Limit)
	if len(records) == 0 {
		fmt.Fprintf(a.Out, "no price history for %s\n", symbol)
		return nil
	}

	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tPrice")
	for _, rec := range records {
		fmt.Fprintf(writer, "%s\t%s\n", rec.Timestamp.UTC().Format(timeLayout), formatPrice(rec.Price))
	}
	if err := writer.Flush(); err != nil {
		return err
	}

	if opts.Stats {
		if stats, ok := store.GetStats(symbol); ok {
			fmt.Fprintf(a.Out, "\ncount %d  min %s  max %s  avg %s  latest %s\n",
				stats.Count, formatPrice(stats.Min), formatPrice(stats.Max), formatPrice(stats.Average), formatPrice(stats.Latest))
		}
	}

	if opts.ChangeHours > 0 {
		window := time.Duration(opts.ChangeHours) * time.Hour
		change, ok := store.GetPriceChange(symbol, window)
		if !ok {
			fmt.Fprintf(a.Out, "%dh change: not enough history\n", opts.ChangeHours)
		} else {
			fmt.Fprintf(a.Out, "%dh change: %s (%s) from %s at %s\n",
				opts.ChangeHours,
				formatSigned(change.Change),
				formatPercent(change.ChangePercent),
				formatPrice(change.Previous),
				change.PreviousAt.UTC().Format(timeLayout))
		}
	}
	return nil
}

// Quote fetches the current price for a symbol without recording it.
func (a *App) Quote(ctx context.Context, symbol string) error {
	symbol = storage.NormalizeSymbol(symbol)
	if symbol == "" {
		return errors.New("symbol is required")
	}

	sample, err := a.newProvider().GetPrice(ctx, symbol)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.Out, "%s %s (%s, %s)\n", sample.Symbol, formatPrice(sample.Price), sample.Origin, sample.Timestamp.UTC().Format(timeLayout))
	if sample.Synthetic() {
		fmt.Fprintln(a.Out, "warning: live quote unavailable, price is synthetic")
	}
	return nil
}

// Triggers lists recent audited alert firings, pruning old rows first when
// PruneOlderThan is set.
func (a *App) Triggers(ctx context.Context, opts TriggersOptions) error {
	audit, release, err := a.triggerAudit(ctx)
	if err != nil {
		return err
	}
	defer release()

	if opts.PruneOlderThan > 0 {
		cutoff := time.Now().UTC().Add(-opts.PruneOlderThan)
		removed, err := audit.DeleteTriggersBefore(ctx, cutoff)
		if err != nil {
			return err
		}
		a.Logger.Info().Int64("removed", removed).Time("cutoff", cutoff).Msg("pruned trigger audit")
		fmt.Fprintf(a.Out, "pruned %d trigger(s) recorded before %s\n", removed, cutoff.Format(timeLayout))
	}

	records, err := audit.ListRecentTriggers(ctx, opts.Limit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintln(a.Out, "no triggers recorded")
		return nil
	}

	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tAlert\tSymbol\tKind\tThreshold\tPrice\tOrigin\tDelivered")
	for _, rec := range records {
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%t\n",
			rec.TriggeredAt.UTC().Format(timeLayout),
			rec.AlertID,
			rec.Symbol,
			rec.Kind,
			rec.Threshold.StringFixed(2),
			rec.CurrentPrice.StringFixed(2),
			rec.Origin,
			rec.Delivered,
		)
	}
	return writer.Flush()
}

func formatPrice(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2)
}

func formatSigned(v float64) string {
	d := decimal.NewFromFloat(v)
	if d.IsPositive() {
		return "+" + d.StringFixed(2)
	}
	return d.StringFixed(2)
}

func formatPercent(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "n/a"
	}
	return formatSigned(v) + "%"
}
