// Package export renders distributions as parallel-coordinate charts.
package export

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"

	chart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"spectral-distview/internal/distribution"
	"spectral-distview/internal/models"
)

// Options controls chart rendering
type Options struct {
	Title      string
	Width      int
	Height     int
	MaxSeries  int      // heaviest cells drawn, 0 = 2000
	BandLabels []string // x axis labels, band index when empty
}

type cell struct {
	set    *distribution.BinSet
	bin    *distribution.Bin
	weight float64
}

// BandLabels names bands by centre wavelength where known
func BandLabels(meta []models.BandMeta) []string {
	labels := make([]string, len(meta))
	for i, m := range meta {
		if m.Center > 0 {
			labels[i] = strconv.FormatFloat(m.Center, 'f', -1, 64)
		} else {
			labels[i] = strconv.Itoa(i)
		}
	}
	return labels
}

// Render draws every cell polyline of coll as PNG, heavier cells more opaque
func Render(w io.Writer, coll *distribution.Collection, opts Options) error {
	if coll == nil {
		return fmt.Errorf("no distribution to render")
	}
	limit := opts.MaxSeries
	if limit <= 0 {
		limit = 2000
	}

	var cells []cell
	dims := 0
	maxY := 1.0
	for i := range coll.Sets {
		set := &coll.Sets[i]
		for _, bin := range set.Bins {
			cells = append(cells, cell{set: set, bin: bin, weight: bin.Weight})
			if len(bin.Points) > dims {
				dims = len(bin.Points)
			}
			for _, p := range bin.Points {
				if p.Y > maxY {
					maxY = p.Y
				}
			}
		}
	}
	if len(cells) == 0 {
		return fmt.Errorf("distribution is empty")
	}

	sort.Slice(cells, func(i, j int) bool { return cells[i].weight > cells[j].weight })
	if len(cells) > limit {
		cells = cells[:limit]
	}
	heaviest := cells[0].weight

	series := make([]chart.Series, 0, len(cells))
	// draw light cells first so heavy ones stay on top
	for i := len(cells) - 1; i >= 0; i-- {
		c := cells[i]
		xs, ys := polyline(c.bin.Points)
		col := c.set.Color
		series = append(series, chart.ContinuousSeries{
			XValues: xs,
			YValues: ys,
			Style: chart.Style{
				StrokeWidth: 1,
				StrokeColor: drawing.Color{R: col.R, G: col.G, B: col.B, A: opacity(c.weight, heaviest)},
			},
		})
	}

	xMax := float64(dims - 1)
	if dims < 2 {
		xMax = 1
	}
	ch := chart.Chart{
		Title:      opts.Title,
		Width:      opts.Width,
		Height:     opts.Height,
		Background: chart.Style{Padding: chart.Box{Top: 14, Left: 16, Right: 12, Bottom: 24}},
		XAxis: chart.XAxis{
			Name:  "band",
			Range: &chart.ContinuousRange{Min: 0, Max: xMax},
			Ticks: ticks(dims, opts.BandLabels),
		},
		YAxis: chart.YAxis{
			Name:  "bin",
			Range: &chart.ContinuousRange{Min: 0, Max: maxY},
		},
		Series: series,
	}

	if err := ch.Render(chart.PNG, w); err != nil {
		return fmt.Errorf("chart render failed: %w", err)
	}
	return nil
}

// WritePNG renders coll into the file at path
func WritePNG(path string, coll *distribution.Collection, opts Options) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := Render(file, coll, opts); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// polyline returns chart coordinates; single-band cells become a flat segment
func polyline(points []distribution.Point) ([]float64, []float64) {
	if len(points) == 1 {
		return []float64{0, 1}, []float64{points[0].Y, points[0].Y}
	}
	xs := make([]float64, len(points))
	ys := make([]float64, len(points))
	for i, p := range points {
		xs[i], ys[i] = p.X, p.Y
	}
	return xs, ys
}

func opacity(weight, heaviest float64) uint8 {
	if heaviest <= 0 {
		return 255
	}
	return uint8(40 + 215*weight/heaviest)
}

func ticks(dims int, labels []string) []chart.Tick {
	if dims < 2 {
		return nil
	}
	step := 1
	if dims > 16 {
		step = (dims + 15) / 16
	}
	var out []chart.Tick
	for d := 0; d < dims; d += step {
		label := strconv.Itoa(d)
		if d < len(labels) && labels[d] != "" {
			label = labels[d]
		}
		out = append(out, chart.Tick{Value: float64(d), Label: label})
	}
	return out
}
