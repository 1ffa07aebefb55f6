package geometry

import (
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/san-kum/memdyn/internal/mesh"
)

type LaplacianEntry struct {
	Col    int
	Weight float64
}

// Laplacian is the positive semidefinite cotan Laplacian
// (L·u)_i = Σ_j w_ij (u_i − u_j), stored as per-row adjacency lists.
type Laplacian struct {
	rows [][]LaplacianEntry
}

func newLaplacian(m *mesh.Mesh, weights []float64) *Laplacian {
	l := &Laplacian{rows: make([][]LaplacianEntry, m.VertexSlots())}
	for e, w := range weights {
		if !m.EdgeAlive(e) {
			continue
		}
		i, j := m.EdgeVertices(e)
		l.rows[i] = append(l.rows[i], LaplacianEntry{Col: j, Weight: w})
		l.rows[j] = append(l.rows[j], LaplacianEntry{Col: i, Weight: w})
	}
	return l
}

func (l *Laplacian) Dim() int { return len(l.rows) }

// Row returns the off-diagonal entries of row i.
func (l *Laplacian) Row(i int) []LaplacianEntry { return l.rows[i] }

func (l *Laplacian) Apply(u []float64) []float64 {
	out := make([]float64, len(l.rows))
	for i, row := range l.rows {
		for _, en := range row {
			out[i] += en.Weight * (u[i] - u[en.Col])
		}
	}
	return out
}

func (l *Laplacian) ApplyVec(x []r3.Vec) []r3.Vec {
	out := make([]r3.Vec, len(l.rows))
	for i, row := range l.rows {
		for _, en := range row {
			out[i] = r3.Add(out[i], r3.Scale(en.Weight, r3.Sub(x[i], x[en.Col])))
		}
	}
	return out
}

// Quad returns uᵀ·L·u = Σ_edges w_ij (u_i − u_j)².
func (l *Laplacian) Quad(u []float64) float64 {
	sum := 0.0
	for i, row := range l.rows {
		for _, en := range row {
			if en.Col > i {
				d := u[i] - u[en.Col]
				sum += en.Weight * d * d
			}
		}
	}
	return sum
}
