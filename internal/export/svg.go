package export

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"slices"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/san-kum/memdyn/internal/viz"
)

// MeshSVG writes an orthographic projection of a triangle mesh. Faces are
// painted back to front and shaded by their normal. When values holds one
// entry per vertex the faces are colored by its face average on a blue to
// red ramp.
func MeshSVG(w io.Writer, triangles [][3]int, positions []r3.Vec, values []float64, view viz.View, size int) error {
	if len(triangles) == 0 || len(positions) == 0 {
		return fmt.Errorf("mesh svg: empty mesh")
	}
	if values != nil && len(values) != len(positions) {
		return fmt.Errorf("mesh svg: %d values for %d vertices", len(values), len(positions))
	}

	rot := make([]r3.Vec, len(positions))
	xs := make([]float64, len(positions))
	zs := make([]float64, len(positions))
	for i, p := range positions {
		rot[i] = view.Rotate(p)
		xs[i], zs[i] = rot[i].X, rot[i].Z
	}
	lo := r3.Vec{X: floats.Min(xs), Z: floats.Min(zs)}
	span := math.Max(floats.Max(xs)-lo.X, floats.Max(zs)-lo.Z)
	if span == 0 {
		span = 1
	}
	margin := 0.05 * float64(size)
	scale := (float64(size) - 2*margin) / span
	project := func(q r3.Vec) (float64, float64) {
		return margin + scale*(q.X-lo.X), float64(size) - margin - scale*(q.Z-lo.Z)
	}

	vmin, vmax := 0.0, 1.0
	if values != nil {
		vmin, vmax = floats.Min(values), floats.Max(values)
	}

	order := make([]int, len(triangles))
	depth := make([]float64, len(triangles))
	for f, t := range triangles {
		order[f] = f
		depth[f] = (rot[t[0]].Y + rot[t[1]].Y + rot[t[2]].Y) / 3
	}
	slices.SortFunc(order, func(a, b int) int {
		switch {
		case depth[a] > depth[b]:
			return -1
		case depth[a] < depth[b]:
			return 1
		}
		return a - b
	})

	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, `<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">
<rect width="100%%" height="100%%" fill="#0a0a0a"/>
<g stroke="#222233" stroke-width="0.3" stroke-linejoin="round">
`, size, size, size, size)

	for _, f := range order {
		t := triangles[f]
		a, b, c := rot[t[0]], rot[t[1]], rot[t[2]]
		n := r3.Cross(r3.Sub(b, a), r3.Sub(c, a))
		shade := 0.25
		if l := r3.Norm(n); l > 0 {
			shade += 0.75 * math.Abs(n.Y/l)
		}
		frac := 0.5
		if values != nil && vmax > vmin {
			frac = ((values[t[0]]+values[t[1]]+values[t[2]])/3 - vmin) / (vmax - vmin)
		}
		r, g, bl := ramp(frac)
		x0, y0 := project(a)
		x1, y1 := project(b)
		x2, y2 := project(c)
		fmt.Fprintf(bw, `<polygon points="%.2f,%.2f %.2f,%.2f %.2f,%.2f" fill="rgb(%d,%d,%d)"/>
`, x0, y0, x1, y1, x2, y2, int(shade*r), int(shade*g), int(shade*bl))
	}
	bw.WriteString("</g>\n</svg>\n")
	return bw.Flush()
}

// ramp maps [0, 1] onto a blue to red gradient.
func ramp(t float64) (r, g, b float64) {
	t = math.Min(math.Max(t, 0), 1)
	return 255 * t, 80 + 100*(1-math.Abs(2*t-1)), 255 * (1 - t)
}
