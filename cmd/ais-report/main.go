// Command ais-report generates an offline HTML/PNG report of recent alert
// activity for one vessel: an ECharts timeline of alert severities, a
// gonum/plot PNG trend of severity over time, and summary statistics
// (mean/median/p95 severity) computed with gonum/stat.
//
// Usage:
//
//	go run ./cmd/ais-report -db ais.db -mmsi 123456789 -out report
//
// Flags:
//
//	-db    Path to the SQLite database file (default: ais.db)
//	-mmsi  MMSI to report on (required)
//	-limit Maximum number of alerts to include, most recent first (default 500)
//	-out   Output directory for the generated report files (default: .)
//	-tz    IANA timezone name used to format alert timestamps (default: UTC)
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/aegisais/detector/internal/ais/model"
	"github.com/aegisais/detector/internal/aisdb"
	"github.com/aegisais/detector/internal/units"
)

func main() {
	dbPath := flag.String("db", "ais.db", "Path to the SQLite database file")
	mmsi := flag.String("mmsi", "", "MMSI to report on (required)")
	limit := flag.Int("limit", 500, "Maximum number of alerts to include")
	outDir := flag.String("out", ".", "Output directory for the generated report files")
	tzName := flag.String("tz", "UTC", "IANA timezone name for displayed timestamps")
	flag.Parse()

	if *mmsi == "" {
		log.Fatal("-mmsi is required")
	}

	if !units.IsTimezoneValid(*tzName) {
		log.Fatalf("invalid timezone %q; common options: %s", *tzName, units.GetValidTimezonesString())
	}

	db, err := aisdb.Open(*dbPath)
	if err != nil {
		log.Fatalf("open database %s: %v", *dbPath, err)
	}
	defer db.Close()

	alerts, err := db.ListAlerts(context.Background(), *mmsi, *limit)
	if err != nil {
		log.Fatalf("list alerts for %s: %v", *mmsi, err)
	}
	if len(alerts) == 0 {
		log.Fatalf("no alerts found for MMSI %s", *mmsi)
	}

	// ListAlerts orders most-recent-first; the timeline and trend charts
	// read more naturally oldest-first.
	sort.Slice(alerts, func(i, j int) bool { return alerts[i].Timestamp.Before(alerts[j].Timestamp) })

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		log.Fatalf("create output dir %s: %v", *outDir, err)
	}

	summary := summarize(alerts)
	log.Printf("MMSI %s: %d alerts, mean severity %.1f, median %.1f, p95 %.1f",
		*mmsi, len(alerts), summary.mean, summary.median, summary.p95)

	timelinePath := filepath.Join(*outDir, fmt.Sprintf("%s_timeline.html", *mmsi))
	if err := renderTimeline(alerts, *mmsi, *tzName, timelinePath); err != nil {
		log.Fatalf("render timeline: %v", err)
	}
	log.Printf("wrote %s", timelinePath)

	trendPath := filepath.Join(*outDir, fmt.Sprintf("%s_severity_trend.png", *mmsi))
	if err := renderSeverityTrend(alerts, *mmsi, trendPath); err != nil {
		log.Fatalf("render severity trend: %v", err)
	}
	log.Printf("wrote %s", trendPath)
}

type severitySummary struct {
	mean   float64
	median float64
	p95    float64
}

// summarize computes mean/median/p95 severity, reducing the sorted severity
// sample to a few representative quantiles.
func summarize(alerts []*model.Alert) severitySummary {
	sevs := make([]float64, len(alerts))
	for i, a := range alerts {
		sevs[i] = float64(a.Severity)
	}
	sort.Float64s(sevs)

	return severitySummary{
		mean:   stat.Mean(sevs, nil),
		median: stat.Quantile(0.5, stat.Empirical, sevs, nil),
		p95:    stat.Quantile(0.95, stat.Empirical, sevs, nil),
	}
}

func renderTimeline(alerts []*model.Alert, mmsi string, tzName string, outPath string) error {
	data := make([]opts.ScatterData, 0, len(alerts))
	for _, a := range alerts {
		t, err := units.ConvertTime(a.Timestamp, tzName)
		if err != nil {
			return fmt.Errorf("convert timestamp to %s: %w", tzName, err)
		}
		data = append(data, opts.ScatterData{
			Value: []interface{}{t.Format(time.RFC3339), a.Severity},
			Name:  fmt.Sprintf("%s: %s", a.Type, a.Summary),
		})
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Alert Timeline", Theme: "dark", Width: "1100px", Height: "500px"}),
		charts.WithTitleOpts(opts.Title{Title: "Alert Severity Timeline", Subtitle: fmt.Sprintf("mmsi=%s alerts=%d", mmsi, len(alerts))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Type: "category", Name: "Time"}),
		charts.WithYAxisOpts(opts.YAxis{Min: 0, Max: 100, Name: "Severity"}),
	)
	scatter.AddSeries("alerts", data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 8}))

	f, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("create %s: %w", outPath, err)
	}
	defer f.Close()
	return scatter.Render(f)
}

func renderSeverityTrend(alerts []*model.Alert, mmsi string, outPath string) error {
	pts := make(plotter.XYs, len(alerts))
	t0 := alerts[0].Timestamp
	for i, a := range alerts {
		pts[i].X = a.Timestamp.Sub(t0).Hours()
		pts[i].Y = float64(a.Severity)
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Alert Severity Trend (mmsi=%s)", mmsi)
	p.X.Label.Text = "Hours since first alert"
	p.Y.Label.Text = "Severity"

	line, err := plotter.NewLine(pts)
	if err != nil {
		return fmt.Errorf("build severity line: %w", err)
	}
	p.Add(line)
	p.Legend.Add("severity", line)

	if err := p.Save(10*vg.Inch, 5*vg.Inch, outPath); err != nil {
		return fmt.Errorf("save plot %s: %w", outPath, err)
	}
	return nil
}
