package app

import (
	"encoding/csv"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"stock-price-alerts/internal/storage"
)

type exportSeries struct {
	Symbol  string
	Records []storage.PriceRecord
}

// Export renders retained price history as CSV and/or PNG.
func (a *App) Export(opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}
	if opts.From != nil && opts.To != nil && !opts.From.Before(*opts.To) {
		return errors.New("from must be before to")
	}

	maxPoints := a.Config.ResolveMaxPoints(opts.MaxPoints)

	store := a.openHistory()
	defer a.closeStore("history", store)

	symbols := make([]string, 0, len(opts.Symbols))
	for _, s := range opts.Symbols {
		if n := storage.NormalizeSymbol(s); n != "" {
			symbols = append(symbols, n)
		}
	}
	if len(symbols) == 0 {
		symbols = store.Symbols()
	}

	var series []exportSeries
	total := 0
	for _, symbol := range symbols {
		records := filterWindow(store.GetHistory(symbol, store.Capacity()), opts.From, opts.To)
		if len(records) == 0 {
			continue
		}
		total += len(records)
		series = append(series, exportSeries{Symbol: symbol, Records: downsample(records, maxPoints)})
	}
	if len(series) == 0 {
		a.Logger.Info().Msg("no price history found for export window")
		return nil
	}
	a.Logger.Info().Int("symbols", len(series)).Int("total", total).Msg("exporting price history")

	if opts.CSVPath != "" {
		if err := a.writeCSV(opts.CSVPath, series); err != nil {
			return err
		}
	}
	if opts.PNGPath != "" {
		if err := a.writePNG(opts.PNGPath, series); err != nil {
			return err
		}
	}
	return nil
}

func filterWindow(records []storage.PriceRecord, from, to *time.Time) []storage.PriceRecord {
	if from == nil && to == nil {
		return records
	}
	out := records[:0:0]
	for _, rec := range records {
		if from != nil && rec.Timestamp.Before(*from) {
			continue
		}
		if to != nil && rec.Timestamp.After(*to) {
			continue
		}
		out = append(out, rec)
	}
	return out
}

func downsample(records []storage.PriceRecord, max int) []storage.PriceRecord {
	if max <= 0 || len(records) <= max {
		return records
	}
	if max == 1 {
		return records[len(records)-1:]
	}

	result := make([]storage.PriceRecord, 0, max)
	step := float64(len(records)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(records) {
			idx = len(records) - 1
		}
		result = append(result, records[idx])
	}
	return result
}

func (a *App) writeCSV(path string, series []exportSeries) error {
	if err := a.ensureDir(path); err != nil {
		return err
	}

	file, err := a.fs.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write([]string{"symbol", "timestamp", "price"}); err != nil {
		return err
	}
	for _, s := range series {
		for _, rec := range s.Records {
			if err := writer.Write([]string{s.Symbol, rec.Timestamp.UTC().Format(timeLayout), formatPrice(rec.Price)}); err != nil {
				return err
			}
		}
	}
	writer.Flush()
	return writer.Error()
}

func (a *App) writePNG(path string, series []exportSeries) error {
	var plotted []chart.Series
	for _, s := range series {
		// go-chart cannot draw a series with a single point.
		if len(s.Records) < 2 {
			continue
		}
		x := make([]time.Time, len(s.Records))
		y := make([]float64, len(s.Records))
		for i, rec := range s.Records {
			x[i] = rec.Timestamp
			y[i] = rec.Price
		}
		plotted = append(plotted, chart.TimeSeries{Name: s.Symbol, XValues: x, YValues: y})
	}
	if len(plotted) == 0 {
		return fmt.Errorf("not enough data points to render %s", path)
	}

	if err := a.ensureDir(path); err != nil {
		return err
	}

	priceFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.2f")
	}
	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Price (USD)",
			ValueFormatter: priceFormatter,
		},
		Series: plotted,
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := a.fs.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func (a *App) ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return a.fs.MkdirAll(dir, 0o755)
}
