package export

import (
	"fmt"
	"io"
	"slices"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/san-kum/memdyn/internal/dynamo"
)

// Format selects the go-chart renderer.
type Format int

const (
	PNG Format = iota
	SVG
)

func (f Format) provider() chart.RendererProvider {
	if f == SVG {
		return chart.SVG
	}
	return chart.PNG
}

var (
	totalColor   = drawing.Color{R: 0, G: 150, B: 255, A: 255}
	kineticColor = drawing.Color{R: 255, G: 165, B: 0, A: 255}
)

// EnergyChart plots the total, kinetic and every non-zero energy term of a
// run against time.
func EnergyChart(w io.Writer, title string, samples []dynamo.Sample, format Format) error {
	if len(samples) < 2 || samples[0].Time == samples[len(samples)-1].Time {
		return fmt.Errorf("energy chart needs at least two samples at distinct times, got %d", len(samples))
	}

	times := make([]float64, len(samples))
	column := func(get func(dynamo.Sample) float64) []float64 {
		out := make([]float64, len(samples))
		for i, s := range samples {
			out[i] = get(s)
		}
		return out
	}
	for i, s := range samples {
		times[i] = s.Time
	}

	series := []chart.Series{
		chart.ContinuousSeries{
			Name:    "total",
			XValues: times,
			YValues: column(func(s dynamo.Sample) float64 { return s.Total }),
			Style:   chart.Style{StrokeColor: totalColor, StrokeWidth: 3},
		},
	}
	if kin := column(func(s dynamo.Sample) float64 { return s.Kinetic }); slices.ContainsFunc(kin, func(v float64) bool { return v != 0 }) {
		series = append(series, chart.ContinuousSeries{
			Name:    "kinetic",
			XValues: times,
			YValues: kin,
			Style:   chart.Style{StrokeColor: kineticColor, StrokeWidth: 2},
		})
	}

	var names []string
	for _, s := range samples {
		for name, v := range s.Terms {
			if v != 0 && !slices.Contains(names, name) {
				names = append(names, name)
			}
		}
	}
	slices.Sort(names)
	for i, name := range names {
		series = append(series, chart.ContinuousSeries{
			Name:    name,
			XValues: times,
			YValues: column(func(s dynamo.Sample) float64 { return s.Terms[name] }),
			Style:   chart.Style{StrokeColor: chart.GetDefaultColor(i + 2), StrokeWidth: 1.5},
		})
	}

	graph := chart.Chart{
		Title:  title,
		Width:  1024,
		Height: 600,
		Background: chart.Style{
			Padding: chart.NewBox(40, 20, 20, 20),
		},
		XAxis:  chart.XAxis{Name: "time", ValueFormatter: shortFloat},
		YAxis:  chart.YAxis{Name: "energy", ValueFormatter: shortFloat},
		Series: series,
	}
	graph.Elements = []chart.Renderable{chart.LegendLeft(&graph)}
	return graph.Render(format.provider(), w)
}

func shortFloat(v interface{}) string {
	if f, ok := v.(float64); ok {
		return fmt.Sprintf("%.3g", f)
	}
	return fmt.Sprint(v)
}
