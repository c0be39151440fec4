package report

import (
	"fmt"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/speedcam/internal/storage"
)

// RenderChartsHTML writes an HTML page with the speed histogram and the
// cumulative share of vehicles per speed bucket, and returns the file
// path.
func (e *Exporter) RenderChartsHTML(session storage.SessionSummary, dist []storage.DistributionRow) (string, error) {
	path := e.path("charts", session.SessionID, "html")
	f, err := e.fs.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	labels := make([]string, 0, len(dist))
	barData := make([]opts.BarData, 0, len(dist))
	lineData := make([]opts.LineData, 0, len(dist))
	var cumulative float64
	for _, r := range dist {
		labels = append(labels, fmt.Sprintf("%.0f-%.0f", r.LowKMH, r.HighKMH))
		barData = append(barData, opts.BarData{Value: r.Count})
		cumulative += r.Percent
		lineData = append(lineData, opts.LineData{Value: cumulative})
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    "Speed distribution",
			Subtitle: fmt.Sprintf("session %s: %d vehicles, p85 %.1f km/h", session.SessionID, session.VehicleCount, session.P85SpeedKMH),
		}),
		charts.WithXAxisOpts(opts.XAxis{Name: "km/h"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "vehicles"}),
	)
	bar.SetXAxis(labels).AddSeries("vehicles", barData)

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Cumulative share"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "km/h"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "% of vehicles"}),
	)
	line.SetXAxis(labels).AddSeries("cumulative %", lineData)

	if err := bar.Render(f); err != nil {
		return "", fmt.Errorf("failed to render histogram chart: %w", err)
	}
	if err := line.Render(f); err != nil {
		return "", fmt.Errorf("failed to render cumulative chart: %w", err)
	}

	return path, nil
}
