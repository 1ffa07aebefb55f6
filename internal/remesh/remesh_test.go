package remesh

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/san-kum/memdyn/internal/geometry"
	"github.com/san-kum/memdyn/internal/mesh"
)

func icosphere(t *testing.T, sub int) *geometry.Geometry {
	t.Helper()
	m, pos, err := mesh.Icosphere(sub, 1)
	require.NoError(t, err)
	g, err := geometry.New(m, pos)
	require.NoError(t, err)
	return g
}

func hexagon(t *testing.T) *geometry.Geometry {
	t.Helper()
	m, pos, err := mesh.Hexagon(1, 3)
	require.NoError(t, err)
	g, err := geometry.New(m, pos)
	require.NoError(t, err)
	return g
}

func kite(t *testing.T) *geometry.Geometry {
	t.Helper()
	m, err := mesh.FromFaces(4, [][3]int{{0, 1, 2}, {0, 2, 3}})
	require.NoError(t, err)
	g, err := geometry.New(m, []r3.Vec{{X: -2}, {Y: -0.5}, {X: 2}, {Y: 0.5}})
	require.NoError(t, err)
	return g
}

func TestIfFlipDetectsNonDelaunayEdge(t *testing.T) {
	g := kite(t)
	mu := DefaultMutator()
	mu.FlipNonDelaunay = true
	e := g.Mesh().EdgeBetween(0, 2)
	require.GreaterOrEqual(t, e, 0)
	assert.True(t, mu.IfFlip(g, e))
	assert.False(t, mu.IfFlip(g, g.Mesh().EdgeBetween(0, 1)), "boundary edge")

	mu.IsFlipEdge = true
	st := mu.Mutate(g, nil, nil, nil, nil)
	assert.Equal(t, 1, st.Flips)
	assert.GreaterOrEqual(t, g.Mesh().EdgeBetween(1, 3), 0)
	assert.Equal(t, -1, g.Mesh().EdgeBetween(0, 2))
	assert.False(t, mu.IfFlip(g, g.Mesh().EdgeBetween(1, 3)))
}

func TestFlipDisabledLeavesMesh(t *testing.T) {
	g := kite(t)
	mu := DefaultMutator()
	mu.IsFlipEdge = true
	st := mu.Mutate(g, nil, nil, nil, nil)
	assert.False(t, st.Changed())
}

func TestSplitKeepsFieldsInStep(t *testing.T) {
	g := icosphere(t, 1)
	n0 := g.Mesh().NumVertices()
	e0 := g.Mesh().NumEdges()

	phi := make([]float64, n0)
	vel := make([]r3.Vec, n0)
	mask := make([]bool, n0)
	for i := range phi {
		phi[i] = float64(i)
		vel[i] = r3.Vec{X: 1}
		mask[i] = true
	}
	var f Fields
	f.Scalar(&phi)
	f.Vector(&vel)
	f.Flag(&mask)

	mu := DefaultMutator()
	mu.IsSplitEdge = true
	mu.SplitLong = true
	mu.TargetEdgeLength = 0.1
	st := mu.Mutate(g, phi, nil, &f, nil)

	assert.Equal(t, e0, st.Splits)
	n := g.Mesh().NumVertices()
	assert.Equal(t, n0+e0, n)
	assert.Len(t, phi, n)
	assert.Len(t, vel, n)
	assert.Len(t, mask, n)
	assert.Len(t, st.Marker, n)
	require.NoError(t, g.Mesh().Validate())

	for v := n0; v < n; v++ {
		assert.Equal(t, r3.Vec{X: 1}, vel[v])
		assert.True(t, mask[v])
		assert.Greater(t, phi[v], 0.0)
	}
}

func TestSplitThenCollapseKeepsFieldsInStep(t *testing.T) {
	g := icosphere(t, 1)
	n0 := g.Mesh().NumVertices()
	e0 := g.Mesh().NumEdges()

	phi := make([]float64, n0)
	vel := make([]r3.Vec, n0)
	for i := range phi {
		phi[i] = float64(i)
		vel[i] = r3.Vec{Z: float64(i)}
	}
	var f Fields
	f.Scalar(&phi)
	f.Vector(&vel)

	mu := DefaultMutator()
	mu.IsSplitEdge = true
	mu.SplitLong = true
	mu.TargetEdgeLength = 0.1
	mu.IsCollapseEdge = true
	mu.CollapseSmall = true
	// splitting every edge leaves face pairs of 0.070 to 0.083
	mu.TargetFaceArea = 0.073
	st := mu.Mutate(g, phi, nil, &f, nil)

	assert.Equal(t, e0, st.Splits)
	assert.Positive(t, st.Collapses)
	msh := g.Mesh()
	require.NoError(t, msh.Validate())
	assert.True(t, msh.Compacted())
	assert.Equal(t, 2, msh.EulerCharacteristic())

	n := msh.NumVertices()
	assert.Equal(t, n0+st.Splits-st.Collapses, n)
	assert.Len(t, phi, n)
	assert.Len(t, vel, n)
	assert.Len(t, st.Marker, n)
	assert.Len(t, g.Positions(), n)
	assert.Len(t, st.Remap.Vertex, n0+st.Splits)

	kept := 0
	for v := 0; v < n0; v++ {
		nv := st.Remap.Vertex[v]
		if nv < 0 {
			continue
		}
		kept++
		assert.Equal(t, float64(v), phi[nv], "vertex %d", v)
		assert.Equal(t, float64(v), vel[nv].Z, "vertex %d", v)
	}
	assert.Less(t, kept, n0)
	for _, p := range g.Positions() {
		assert.False(t, math.IsNaN(p.X) || math.IsNaN(p.Y) || math.IsNaN(p.Z))
	}
}

func TestPredicatesRejectMissingEdges(t *testing.T) {
	g := icosphere(t, 1)
	mu := DefaultMutator()
	mu.FlipNonDelaunay = true
	mu.SplitLong = true
	mu.TargetEdgeLength = 0.1
	mu.CollapseSmall = true
	mu.TargetFaceArea = 10

	for _, e := range []int{-1, g.Mesh().EdgeSlots()} {
		assert.False(t, mu.IfFlip(g, e), "edge %d", e)
		assert.False(t, mu.IfSplit(g, e, nil), "edge %d", e)
		assert.False(t, mu.IfCollapse(g, e), "edge %d", e)
	}

	e := 7
	require.True(t, mu.IfCollapse(g, e))
	_, _, ok := g.CollapseEdge(e)
	require.True(t, ok)
	assert.False(t, mu.IfCollapse(g, e))
	assert.False(t, mu.IfSplit(g, e, nil))
	assert.False(t, mu.IfFlip(g, e))
}

func TestSplitRespectsMinimumLength(t *testing.T) {
	g := icosphere(t, 1)
	mu := DefaultMutator()
	mu.SplitLong = true
	mu.TargetEdgeLength = 0.1
	mu.MinimumEdgeLength = 1
	assert.False(t, mu.IfSplit(g, 0, nil))
}

func TestSplitSharpUsesProteinJump(t *testing.T) {
	g := icosphere(t, 1)
	mu := DefaultMutator()
	mu.SplitSharp = true
	phi := make([]float64, g.Mesh().NumVertices())
	i, _ := g.Mesh().EdgeVertices(0)
	assert.False(t, mu.IfSplit(g, 0, phi))
	phi[i] = 0.5
	assert.True(t, mu.IfSplit(g, 0, phi))
}

func TestCollapseKeepsSphereManifold(t *testing.T) {
	g := icosphere(t, 2)
	phi := make([]float64, g.Mesh().NumVertices())
	var f Fields
	f.Scalar(&phi)

	mu := DefaultMutator()
	mu.IsCollapseEdge = true
	mu.CollapseSmall = true
	mu.TargetFaceArea = 0.1
	st := mu.Mutate(g, phi, nil, &f, nil)

	assert.Positive(t, st.Collapses)
	require.NoError(t, g.Mesh().Validate())
	assert.True(t, g.Mesh().Compacted())
	assert.Equal(t, 2, g.Mesh().EulerCharacteristic())
	assert.Len(t, phi, g.Mesh().NumVertices())
	for _, p := range g.Positions() {
		assert.False(t, math.IsNaN(p.X) || math.IsNaN(p.Y) || math.IsNaN(p.Z))
	}
}

func TestCollapseSkipsLockedVertices(t *testing.T) {
	g := icosphere(t, 2)
	n := g.Mesh().NumVertices()
	locked := make([]bool, n)
	for i := range locked {
		locked[i] = true
	}
	mu := DefaultMutator()
	mu.IsCollapseEdge = true
	mu.CollapseSmall = true
	mu.TargetFaceArea = 1
	st := mu.Mutate(g, nil, locked, nil, nil)
	assert.Zero(t, st.Collapses)
	assert.Equal(t, n, g.Mesh().NumVertices())
}

func TestCollapseFlatRequiresLowDihedral(t *testing.T) {
	g := icosphere(t, 0)
	mu := DefaultMutator()
	mu.CollapseSmall = true
	mu.TargetFaceArea = 10
	assert.True(t, mu.IfCollapse(g, 0))
	mu.CollapseFlat = true
	assert.False(t, mu.IfCollapse(g, 0))
}

func TestMarkVertices(t *testing.T) {
	g := hexagon(t)
	center := g.NearestVertex(r3.Vec{})
	marker := make([]bool, g.Mesh().NumVertices())
	MarkVertices(g.Mesh(), marker, center, 1)
	count := 0
	for _, b := range marker {
		if b {
			count++
		}
	}
	assert.Equal(t, 7, count)

	MarkVertices(g.Mesh(), marker, center, 3)
	for v, b := range marker {
		assert.True(t, b, "vertex %d", v)
	}
}

func TestVertexShiftOnRegularPatchIsStill(t *testing.T) {
	g := hexagon(t)
	before := append([]r3.Vec(nil), g.Positions()...)
	moved := VertexShift(g, nil)
	assert.Positive(t, moved)
	for v, p := range g.Positions() {
		assert.InDelta(t, 0, r3.Norm(r3.Sub(p, before[v])), 1e-12)
	}
}

func TestVertexShiftPullsTowardBarycenter(t *testing.T) {
	g := hexagon(t)
	center := g.NearestVertex(r3.Vec{})
	g.SetPosition(center, r3.Vec{X: 0.1})
	VertexShift(g, nil)
	assert.InDelta(t, 0, r3.Norm(g.Position(center)), 1e-12)

	g.SetPosition(center, r3.Vec{X: 0.1})
	locked := make([]bool, g.Mesh().NumVertices())
	locked[center] = true
	VertexShift(g, locked)
	assert.InDelta(t, 0.1, g.Position(center).X, 0)
}

func TestSmootherConverges(t *testing.T) {
	g := icosphere(t, 1)
	s := Smoother{Step: 0.5, Tol: 1e-3, MaxIter: 100}
	it := s.Smooth(g, nil, func() []r3.Vec {
		out := make([]r3.Vec, len(g.Positions()))
		for v, p := range g.Positions() {
			out[v] = r3.Scale(-1, p)
		}
		return out
	})
	assert.Less(t, it, 100)
	for _, p := range g.Positions() {
		assert.Less(t, r3.Norm(p), 1e-3)
	}
}
