package viz

import (
	"fmt"
	"slices"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"

	"github.com/san-kum/memdyn/internal/dynamo"
	"github.com/san-kum/memdyn/internal/storage"
)

func parseStatus(s string) dynamo.Status {
	for _, st := range []dynamo.Status{dynamo.Running, dynamo.Converged, dynamo.TimedOut, dynamo.Failed} {
		if st.String() == s {
			return st
		}
	}
	return dynamo.Running
}

// Summary renders a stored run: its metadata, the total energy trace and
// the final value of every energy term.
func Summary(meta storage.RunMetadata, samples []dynamo.Sample, width int) string {
	var b strings.Builder
	b.WriteString(Title(meta.ID) + "\n")
	b.WriteString(StatusBadge(parseStatus(meta.State)))
	if meta.Failed() {
		b.WriteString(errorStyle.Render("  marked failed"))
	}
	b.WriteString("\n\n")

	info := []string{
		Field("scheme", meta.Scheme),
		Fieldf("seed", "%d", meta.Seed),
		Fieldf("dt", "%g", meta.Dt),
		Fieldf("time", "%.6g / %g", meta.Time, meta.TotalTime),
		Fieldf("steps", "%d", meta.Steps),
		Fieldf("frames", "%d", meta.Frames),
		Fieldf("mesh", "%dv %df", meta.Vertices, meta.Faces),
	}
	if meta.Error != "" {
		info = append(info, errorStyle.Render(meta.Error))
	}

	var terms []string
	if n := len(samples); n > 0 {
		last := samples[n-1]
		names := make([]string, 0, len(last.Terms))
		for name, v := range last.Terms {
			if v != 0 {
				names = append(names, name)
			}
		}
		slices.Sort(names)
		terms = append(terms, Fieldf("total", "%.6g", last.Total), Fieldf("kinetic", "%.6g", last.Kinetic))
		for _, name := range names {
			terms = append(terms, Fieldf(name, "%.6g", last.Terms[name]))
		}
	}
	if len(meta.Metrics) > 0 {
		keys := make([]string, 0, len(meta.Metrics))
		for k := range meta.Metrics {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		for _, k := range keys {
			terms = append(terms, Fieldf(k, "%.4g", meta.Metrics[k]))
		}
	}

	panels := []string{Panel(strings.Join(info, "\n"))}
	if len(terms) > 0 {
		panels = append(panels, " ", Panel(strings.Join(terms, "\n")))
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, panels...) + "\n\n")

	if len(samples) > 1 {
		energy := make([]float64, len(samples))
		for i, s := range samples {
			energy[i] = s.Total
		}
		b.WriteString(graphStyle.Render(asciigraph.Plot(energy,
			asciigraph.Height(10),
			asciigraph.Width(max(width-12, 20)),
			asciigraph.Caption(fmt.Sprintf("total energy, %d frames", len(samples))))) + "\n")
	}
	return b.String()
}
