package report

import (
	"fmt"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/speedcam/internal/storage"
)

// SavePNGHistogram renders the speed histogram to a PNG and returns the
// file path. Empty distributions produce no file.
func (e *Exporter) SavePNGHistogram(sessionID string, dist []storage.DistributionRow) (string, error) {
	if len(dist) == 0 {
		return "", nil
	}

	p := plot.New()
	p.Title.Text = "Speed distribution"
	p.X.Label.Text = "km/h"
	p.Y.Label.Text = "vehicles"

	values := make(plotter.Values, len(dist))
	labels := make([]string, len(dist))
	for i, r := range dist {
		values[i] = float64(r.Count)
		labels[i] = fmt.Sprintf("%.0f-%.0f", r.LowKMH, r.HighKMH)
	}

	bars, err := plotter.NewBarChart(values, vg.Points(24))
	if err != nil {
		return "", fmt.Errorf("failed to build bar chart: %w", err)
	}
	p.Add(bars)
	p.NominalX(labels...)

	path := e.path("speed_histogram", sessionID, "png")
	f, err := e.fs.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	wt, err := p.WriterTo(6*vg.Inch, 4*vg.Inch, "png")
	if err != nil {
		return "", fmt.Errorf("failed to render histogram: %w", err)
	}
	if _, err := wt.WriteTo(f); err != nil {
		return "", fmt.Errorf("failed to write histogram: %w", err)
	}

	return path, nil
}
