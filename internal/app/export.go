package app

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"github.com/FuelLabs/fuel-canary-watchtower/internal/storage"
)

// Export renders alert history as CSV and/or a PNG activity chart.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}
	if opts.Window <= 0 {
		opts.Window = 7 * 24 * time.Hour
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot export")
	}
	if closeStore != nil {
		defer closeStore()
	}

	to := time.Now().UTC()
	if opts.To != nil {
		to = opts.To.UTC()
	}
	from := to.Add(-opts.Window)
	if opts.From != nil {
		from = opts.From.UTC()
	}
	if !from.Before(to) {
		return errors.New("from must be before to")
	}

	alerts, err := store.ListAlertsBetween(ctx, from, to)
	if err != nil {
		return err
	}
	if len(alerts) == 0 {
		a.Logger.Info().Msg("no alerts found for export window")
		return nil
	}

	a.Logger.Info().Int("alerts", len(alerts)).Msg("exporting alert history")

	if opts.CSVPath != "" {
		if err := writeAlertsCSV(opts.CSVPath, alerts); err != nil {
			return err
		}
	}
	if opts.PNGPath != "" {
		if err := writeAlertsPNG(opts.PNGPath, alerts); err != nil {
			return err
		}
	}
	return nil
}

func writeAlertsCSV(path string, alerts []storage.AlertRecord) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"created_at", "level", "category", "paged", "summary"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, alert := range alerts {
		paged := "false"
		if alert.Paged {
			paged = "true"
		}
		record := []string{
			alert.CreatedAt.UTC().Format(time.RFC3339),
			alert.Level,
			alert.Category,
			paged,
			alert.Summary,
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	return writer.Error()
}

// writeAlertsPNG charts hourly alert activity: all alerts against those
// that resulted in a page.
func writeAlertsPNG(path string, alerts []storage.AlertRecord) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	totals := make(map[time.Time]float64)
	paged := make(map[time.Time]float64)
	for _, alert := range alerts {
		bucket := alert.CreatedAt.UTC().Truncate(time.Hour)
		totals[bucket]++
		if alert.Paged {
			paged[bucket]++
		}
	}

	buckets := make([]time.Time, 0, len(totals))
	for bucket := range totals {
		buckets = append(buckets, bucket)
	}
	sort.Slice(buckets, func(i, j int) bool { return buckets[i].Before(buckets[j]) })

	if len(buckets) < 2 {
		return errors.New("not enough distinct hours of alert history to chart")
	}

	x := make([]time.Time, len(buckets))
	totalSeries := make([]float64, len(buckets))
	pagedSeries := make([]float64, len(buckets))
	for i, bucket := range buckets {
		x[i] = bucket
		totalSeries[i] = totals[bucket]
		pagedSeries[i] = paged[bucket]
	}

	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name: "Alerts per hour",
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "All alerts",
				XValues: x,
				YValues: totalSeries,
			},
			chart.TimeSeries{
				Name:    "Paged",
				XValues: x,
				YValues: pagedSeries,
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
