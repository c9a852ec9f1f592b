package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Check runs a single monitoring pass immediately, like one scheduled tick.
func (a *App) Check(ctx context.Context) error {
	m, err := a.newMonitor(ctx)
	if err != nil {
		return err
	}
	defer m.close()

	report, err := m.svc.RunTick(ctx)
	if err != nil {
		return err
	}
	if report.Skipped {
		fmt.Fprintln(a.Out, "tick skipped: advisory lock held by another instance")
		return nil
	}
	if len(report.Symbols) == 0 {
		fmt.Fprintln(a.Out, "no alerts configured")
		return nil
	}

	fmt.Fprintf(a.Out, "checked %d symbol(s): %s\n", len(report.Symbols), strings.Join(report.Symbols, ", "))
	fmt.Fprintf(a.Out, "triggered %d, notified %d, suppressed %d\n", report.Triggered, report.Sent, report.Suppressed)
	if len(report.Failed) > 0 {
		return fmt.Errorf("%w: %s", errSymbolsFailed, strings.Join(report.Failed, ", "))
	}
	return nil
}

var errSymbolsFailed = errors.New("price check failed for")
