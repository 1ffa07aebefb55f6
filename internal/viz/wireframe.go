package viz

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// View orients the mesh before it is projected onto the screen. The
// screen shows the rotated x axis to the right and z upwards.
type View struct {
	Yaw   float64
	Pitch float64
}

// DefaultView looks at the mesh from slightly above the equator.
var DefaultView = View{Yaw: math.Pi / 6, Pitch: -math.Pi / 12}

// Rotate applies the yaw about z and then the pitch about x.
func (v View) Rotate(p r3.Vec) r3.Vec {
	p = r3.NewRotation(v.Yaw, r3.Vec{Z: 1}).Rotate(p)
	return r3.NewRotation(v.Pitch, r3.Vec{X: 1}).Rotate(p)
}

// RenderMesh draws every mesh edge as an orthographic wireframe on a
// cols×rows braille canvas.
func RenderMesh(triangles [][3]int, positions []r3.Vec, cols, rows int, view View) string {
	c := NewCanvas(cols, rows)
	if len(positions) == 0 {
		return c.String()
	}

	rot := make([]r3.Vec, len(positions))
	lo := r3.Vec{X: math.Inf(1), Z: math.Inf(1)}
	hi := r3.Vec{X: math.Inf(-1), Z: math.Inf(-1)}
	for i, p := range positions {
		q := view.Rotate(p)
		rot[i] = q
		lo.X, lo.Z = math.Min(lo.X, q.X), math.Min(lo.Z, q.Z)
		hi.X, hi.Z = math.Max(hi.X, q.X), math.Max(hi.Z, q.Z)
	}

	w, h := c.Dots()
	span := math.Max(hi.X-lo.X, hi.Z-lo.Z)
	if span == 0 {
		span = 1
	}
	scale := float64(min(w, h)-1) / span
	ox := (float64(w-1) - scale*(hi.X-lo.X)) / 2
	oz := (float64(h-1) - scale*(hi.Z-lo.Z)) / 2
	project := func(q r3.Vec) (int, int) {
		x := ox + scale*(q.X-lo.X)
		y := float64(h-1) - (oz + scale*(q.Z-lo.Z))
		return int(math.Round(x)), int(math.Round(y))
	}

	seen := make(map[[2]int]bool, 3*len(triangles)/2)
	for _, t := range triangles {
		for k := 0; k < 3; k++ {
			a, b := t[k], t[(k+1)%3]
			key := [2]int{min(a, b), max(a, b)}
			if seen[key] {
				continue
			}
			seen[key] = true
			x0, y0 := project(rot[a])
			x1, y1 := project(rot[b])
			c.Line(x0, y0, x1, y1)
		}
	}
	return c.String()
}
