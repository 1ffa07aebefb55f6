package membrane

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/san-kum/memdyn/internal/dynamo"
	"github.com/san-kum/memdyn/internal/geometry"
	"github.com/san-kum/memdyn/internal/mesh"
	"github.com/san-kum/memdyn/internal/remesh"
)

func sphereGeometry(t testing.TB, sub int, stretch float64) *geometry.Geometry {
	t.Helper()
	m, pos, err := mesh.Icosphere(sub, 1)
	require.NoError(t, err)
	for i := range pos {
		pos[i].Z *= stretch
	}
	g, err := geometry.New(m, pos)
	require.NoError(t, err)
	return g
}

func patchGeometry(t testing.TB) *geometry.Geometry {
	t.Helper()
	m, pos, err := mesh.Hexagon(1, 4)
	require.NoError(t, err)
	for i := range pos {
		pos[i].Z = 0.05 * (1 - pos[i].X*pos[i].X - pos[i].Y*pos[i].Y)
	}
	g, err := geometry.New(m, pos)
	require.NoError(t, err)
	return g
}

func newSystem(t testing.TB, g *geometry.Geometry, p Parameters, o Options) *System {
	t.Helper()
	s, err := NewSystem(g, p, o, remesh.DefaultMutator(), 7, nil)
	require.NoError(t, err)
	return s
}

func bendingOnly() Parameters {
	p := DefaultParameters()
	p.Bending.Kb = 1
	return p
}

func fullParameters() Parameters {
	p := DefaultParameters()
	p.Bending = Bending{Kb: 1, Kbc: 0.5, H0c: 2, Relation: RelationHill}
	p.Deviatoric = Deviatoric{Kd: 0.1, Kdc: 0.05}
	p.AreaDifference = AreaDifference{Kad: 0.2, DA0: 10}
	p.Tension = Tension{Ksg: 0.3}
	p.Osmotic = Osmotic{Kv: 0.5, Vt: 0.9}
	p.Adsorption.Epsilon = -0.2
	p.Aggregation.Chi = 0.1
	p.Entropy.Xi = 0.05
	p.Dirichlet.Eta = 0.01
	p.Kse, p.Ksl, p.Kst = 0.1, 0.1, 0.1
	p.LambdaPhi = 1e-6
	p.Protein0 = []float64{0.4}
	return p
}

func TestNewSystemInitialisesFields(t *testing.T) {
	g := sphereGeometry(t, 2, 1)
	s := newSystem(t, g, bendingOnly(), DefaultOptions())
	n := g.Mesh().NumVertices()
	assert.Len(t, s.ProteinDensity, n)
	assert.Len(t, s.Velocity, n)
	assert.Len(t, s.H0, n)
	assert.Len(t, s.ForceMask, n)
	assert.InDelta(t, g.Area(), s.RefArea, 0)
	assert.InDelta(t, g.Volume(), s.RefVolume, 0)
	for _, phi := range s.ProteinDensity {
		assert.Equal(t, 1.0, phi)
	}
	assert.False(t, s.IsOpen())
}

func TestCheckConfiguration(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(p *Parameters, o *Options)
		patch  bool
		want   error
	}{
		{"exclusive osmotic modes", func(p *Parameters, o *Options) { o.IsConstantOsmoticPressure = true }, false, dynamo.ErrConfiguration},
		{"non-positive vt", func(p *Parameters, o *Options) { p.Osmotic.Vt = 0 }, false, dynamo.ErrConfiguration},
		{"open mesh without boundary condition", func(p *Parameters, o *Options) {}, true, dynamo.ErrConfiguration},
		{"bad protein0 length", func(p *Parameters, o *Options) { p.Protein0 = []float64{0.1, 0.2} }, false, dynamo.ErrConfiguration},
		{"protein0 out of range", func(p *Parameters, o *Options) { p.Protein0 = []float64{1.5} }, false, dynamo.ErrConfiguration},
		{"negative gamma", func(p *Parameters, o *Options) { p.DPD.Gamma = -1 }, false, dynamo.ErrConfiguration},
		{"center out of range", func(p *Parameters, o *Options) { p.Point.Index = 1 << 20 }, false, dynamo.ErrConfiguration},
		{"bad relation", func(p *Parameters, o *Options) { p.Bending.Relation = Relation(9) }, false, dynamo.ErrConfiguration},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, o := bendingOnly(), DefaultOptions()
			tt.mutate(&p, &o)
			var g *geometry.Geometry
			if tt.patch {
				g = patchGeometry(t)
			} else {
				g = sphereGeometry(t, 1, 1)
			}
			_, err := NewSystem(g, p, o, remesh.DefaultMutator(), 1, nil)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestSelfAvoidanceViolationIsConfigurationError(t *testing.T) {
	p := bendingOnly()
	p.SelfAvoidance = SelfAvoidance{Mu: 1, D: 5, Cutoff: 6, Layer: 1}
	_, err := NewSystem(sphereGeometry(t, 1, 1), p, DefaultOptions(), remesh.DefaultMutator(), 1, nil)
	assert.ErrorIs(t, err, dynamo.ErrConfiguration)
}

func TestShapeVariationOffZeroesModuli(t *testing.T) {
	p := bendingOnly()
	p.Tension.Ksg = 1
	p.Osmotic.Kv = 1
	o := DefaultOptions()
	o.IsShapeVariation = false
	o.IsEdgeFlip = true
	s := newSystem(t, sphereGeometry(t, 1, 1), p, o)
	assert.Zero(t, s.Parameters.Tension.Ksg)
	assert.Zero(t, s.Parameters.Osmotic.Kv)
	assert.False(t, s.Options.IsMeshMutate())

	s.ComputeConservativeForcing()
	assert.Zero(t, s.Forces.Mechanical.Norm())
}

func TestForceEvaluationIsIdempotent(t *testing.T) {
	o := DefaultOptions()
	o.IsProteinVariation = true
	s := newSystem(t, sphereGeometry(t, 2, 1.2), fullParameters(), o)

	s.ComputePhysicalForcing(0.1)
	e1 := s.ComputeTotalEnergy()
	f1 := s.Forces.Mechanical.Clone()
	mu1 := s.Forces.ChemicalPotential.Clone()

	s.ComputePhysicalForcing(0.1)
	e2 := s.ComputeTotalEnergy()
	for v := range f1 {
		assert.InDelta(t, 0, r3.Norm(r3.Sub(f1[v], s.Forces.Mechanical[v])), 1e-12)
		assert.InDelta(t, mu1[v], s.Forces.ChemicalPotential[v], 1e-12)
	}
	assert.InDelta(t, e1, e2, 1e-12)
}

func TestForceDecomposition(t *testing.T) {
	o := DefaultOptions()
	o.IsProteinVariation = true
	s := newSystem(t, sphereGeometry(t, 2, 1.2), fullParameters(), o)
	s.ComputeConservativeForcing()

	sum := dynamo.NewVectorField(len(s.Forces.Mechanical))
	for _, c := range s.Forces.Vectors()[1:] {
		sum.Add(c.Field)
	}
	s.applyForceMask(sum)
	for v := range sum {
		assert.InDelta(t, 0, r3.Norm(r3.Sub(sum[v], s.Forces.Mechanical[v])), 1e-12)
	}

	s.ComputeChemicalPotentials()
	total := make(dynamo.Field, len(s.Forces.ChemicalPotential))
	for _, c := range s.Forces.Scalars()[1:] {
		for v := range total {
			total[v] += c.Field[v]
		}
	}
	for v := range total {
		assert.InDelta(t, total[v], s.Forces.ChemicalPotential[v], 1e-12)
	}
}

func TestBendingFlowDecreasesBendingEnergy(t *testing.T) {
	s := newSystem(t, sphereGeometry(t, 2, 1.4), bendingOnly(), DefaultOptions())
	s.ComputeConservativeForcing()
	e0 := s.computeSpontaneousCurvatureEnergy()
	require.Positive(t, s.Forces.SpontaneousCurvature.Norm())

	s.Geometry.Translate(1e-5, s.Forces.SpontaneousCurvature)
	s.UpdateConfigurations()
	e1 := s.computeSpontaneousCurvatureEnergy()
	assert.Less(t, e1, e0)
}

func TestSphereBendingEnergy(t *testing.T) {
	s := newSystem(t, sphereGeometry(t, 3, 1), bendingOnly(), DefaultOptions())
	s.ComputeTotalEnergy()
	// Kb·H²·A over a unit sphere is 4π
	assert.InEpsilon(t, 4*math.Pi, s.Energy.SpontaneousCurvature, 0.15)
}

func TestOsmoticForceIsEnergyGradient(t *testing.T) {
	p := DefaultParameters()
	p.Bending.Kb = 0
	p.Osmotic = Osmotic{Kv: 1, Vt: 0.8}
	s := newSystem(t, sphereGeometry(t, 1, 1), p, DefaultOptions())
	s.ComputeConservativeForcing()
	f := s.Forces.Osmotic.Clone()

	const eps = 1e-6
	for _, v := range []int{0, 9, 30} {
		x := s.Geometry.Position(v)
		s.Geometry.SetPosition(v, r3.Add(x, r3.Vec{X: eps}))
		up := s.ComputePotentialEnergy()
		s.Geometry.SetPosition(v, r3.Sub(x, r3.Vec{X: eps}))
		down := s.ComputePotentialEnergy()
		s.Geometry.SetPosition(v, x)
		assert.InDelta(t, -f[v].X, (up-down)/(2*eps), 1e-6)
	}
}

func TestSelfAvoidanceForceIsEnergyGradient(t *testing.T) {
	p := DefaultParameters()
	p.Bending.Kb = 0
	p.SelfAvoidance = SelfAvoidance{Mu: 0.01, D: 0.05, Cutoff: 1.2, Layer: 1}
	s := newSystem(t, sphereGeometry(t, 1, 1), p, DefaultOptions())
	s.ComputeConservativeForcing()
	f := s.Forces.SelfAvoidance.Clone()
	require.Positive(t, f.Norm())

	const eps = 1e-6
	v := 4
	x := s.Geometry.Position(v)
	s.Geometry.SetPosition(v, r3.Add(x, r3.Vec{Y: eps}))
	up := s.computeSelfAvoidance(nil)
	s.Geometry.SetPosition(v, r3.Sub(x, r3.Vec{Y: eps}))
	down := s.computeSelfAvoidance(nil)
	s.Geometry.SetPosition(v, x)
	assert.InDelta(t, -f[v].Y, (up-down)/(2*eps), 1e-5)
}

func TestChemicalPotentialIsEnergyDerivative(t *testing.T) {
	o := DefaultOptions()
	o.IsProteinVariation = true
	p := fullParameters()
	p.SelfAvoidance = SelfAvoidance{}
	s := newSystem(t, sphereGeometry(t, 2, 1.2), p, o)
	s.ProteinDensity[5] = 0.7
	s.UpdateConfigurations()
	s.ComputeChemicalPotentials()
	mu := s.Forces.ChemicalPotential.Clone()

	const eps = 1e-6
	for _, v := range []int{5, 40} {
		phi := s.ProteinDensity[v]
		s.ProteinDensity[v] = phi + eps
		s.UpdateConfigurations()
		up := s.ComputePotentialEnergy()
		s.ProteinDensity[v] = phi - eps
		s.UpdateConfigurations()
		down := s.ComputePotentialEnergy()
		s.ProteinDensity[v] = phi
		s.UpdateConfigurations()
		assert.InDelta(t, -mu[v], (up-down)/(2*eps), 1e-6, "vertex %d", v)
	}
}

func TestAdsorptionRateOfChange(t *testing.T) {
	o := DefaultOptions()
	o.IsProteinVariation = true
	p := DefaultParameters()
	p.Adsorption.Epsilon = -0.3
	p.Bc = 2
	p.LambdaPhi = 0
	p.Protein0 = []float64{0.5}
	s := newSystem(t, sphereGeometry(t, 1, 1), p, o)
	s.ComputeChemicalPotentials()
	for v, r := range s.ProteinRateOfChange {
		assert.InDelta(t, 0.6, r, 1e-12, "vertex %d", v)
	}
	assert.Positive(t, s.ChemErrorNorm)
}

func TestPinnedBoundaryMasksForce(t *testing.T) {
	p := bendingOnly()
	p.Tension.Ksg = 0.1
	o := DefaultOptions()
	o.ShapeBoundary = ShapeBoundaryPin
	o.ProteinBoundary = ProteinBoundaryPin
	o.IsProteinVariation = true
	p.Adsorption.Epsilon = -1
	p.Protein0 = []float64{0.3}
	s := newSystem(t, patchGeometry(t), p, o)
	s.ComputePhysicalForcing(0.01)

	m := s.Geometry.Mesh()
	interior := 0.0
	for v, f := range s.Forces.Mechanical {
		if m.IsBoundaryVertex(v) {
			assert.Equal(t, r3.Vec{}, f)
			assert.Zero(t, s.Forces.ChemicalPotential[v])
		} else {
			interior += r3.Norm(f)
		}
	}
	assert.Positive(t, interior)
}

func TestRollerBoundaryFreesPlane(t *testing.T) {
	o := DefaultOptions()
	o.ShapeBoundary = ShapeBoundaryRoller
	s := newSystem(t, patchGeometry(t), bendingOnly(), o)
	m := s.Geometry.Mesh()
	for v, mask := range s.ForceMask {
		if m.IsBoundaryVertex(v) {
			assert.Equal(t, r3.Vec{X: 1, Y: 1}, mask)
		} else {
			assert.Equal(t, r3.Vec{X: 1, Y: 1, Z: 1}, mask)
		}
	}
}

func TestFixedBoundaryHoldsOneRing(t *testing.T) {
	o := DefaultOptions()
	o.ShapeBoundary = ShapeBoundaryFixed
	s := newSystem(t, patchGeometry(t), bendingOnly(), o)
	m := s.Geometry.Mesh()
	for v := range s.ForceMask {
		if !m.IsBoundaryVertex(v) {
			continue
		}
		for u := range m.Neighbors(v) {
			assert.Equal(t, r3.Vec{}, s.ForceMask[u])
		}
	}
	center := s.Geometry.NearestVertex(r3.Vec{})
	assert.Equal(t, r3.Vec{X: 1, Y: 1, Z: 1}, s.ForceMask[center])
}

func TestGeodesicRadiusMask(t *testing.T) {
	p := bendingOnly()
	p.Radius = 0.3
	p.Point = Point{Position: []float64{0, 0}}
	o := DefaultOptions()
	o.ShapeBoundary = ShapeBoundaryPin
	s := newSystem(t, patchGeometry(t), p, o)
	for v, d := range s.GeodesicDistance {
		if d > p.Radius {
			assert.Equal(t, r3.Vec{}, s.ForceMask[v])
			assert.Zero(t, s.ProteinMask[v])
		}
	}
	assert.Equal(t, s.Geometry.NearestVertex(r3.Vec{Z: 0.05}), s.CenterVertex)
}

func TestProteinDiskProfile(t *testing.T) {
	p := bendingOnly()
	p.Protein0 = []float64{0.4, 0.9, 0.1}
	p.Sharpness = 50
	p.Point = Point{Position: []float64{0, 0}}
	o := DefaultOptions()
	o.ShapeBoundary = ShapeBoundaryPin
	s := newSystem(t, patchGeometry(t), p, o)
	assert.InDelta(t, 0.9, s.ProteinDensity[s.CenterVertex], 1e-3)
	for v, d := range s.GeodesicDistance {
		if d > 0.6 {
			assert.InDelta(t, 0.1, s.ProteinDensity[v], 1e-3)
		}
	}
	for v := range s.H0 {
		assert.Equal(t, p.Bending.H0c*s.ProteinDensity[v], s.H0[v])
	}
}

func TestHillRelation(t *testing.T) {
	p := bendingOnly()
	p.Bending = Bending{Kb: 1, Kbc: 2, H0c: 3, Relation: RelationHill}
	p.Protein0 = []float64{1}
	s := newSystem(t, sphereGeometry(t, 1, 1), p, DefaultOptions())
	assert.InDelta(t, 1.5, s.H0[0], 1e-12)
	assert.InDelta(t, 2, s.Kb[0], 1e-12)
}

func TestDPDIsSeededAndMomentumConserving(t *testing.T) {
	p := bendingOnly()
	p.Temp = 300
	p.DPD.Gamma = 0.5
	run := func() dynamo.VectorField {
		s := newSystem(t, sphereGeometry(t, 1, 1), p, DefaultOptions())
		for v := range s.Velocity {
			s.Velocity[v] = r3.Vec{X: float64(v % 3), Y: -float64(v % 5)}
		}
		s.ComputePhysicalForcing(1e-3)

		var sum r3.Vec
		for v := range s.Velocity {
			sum = r3.Add(sum, s.Forces.Stochastic[v])
			sum = r3.Add(sum, s.Forces.Damping[v])
		}
		assert.InDelta(t, 0, r3.Norm(sum), 1e-9)
		assert.Positive(t, s.Forces.Stochastic.Norm())
		return s.Forces.Stochastic.Clone()
	}
	a, b := run(), run()
	assert.Equal(t, a, b)
}

func TestDPDWithoutTemperatureDrawsNothing(t *testing.T) {
	p := bendingOnly()
	p.DPD.Gamma = 1
	s := newSystem(t, sphereGeometry(t, 1, 1), p, DefaultOptions())
	s.ComputePhysicalForcing(1e-3)
	assert.Zero(t, s.Forces.Stochastic.Norm())
	assert.Zero(t, s.Forces.Damping.Norm())
}

func TestSnapshotRestore(t *testing.T) {
	s := newSystem(t, sphereGeometry(t, 1, 1), bendingOnly(), DefaultOptions())
	snap := s.Snapshot()
	e0 := s.ComputeTotalEnergy()
	s.Geometry.Translate(0.1, s.Geometry.VertexNormals())
	s.ProteinDensity[0] = 0.3
	s.Time = 4
	s.Restore(snap)
	assert.Equal(t, snap.Positions, s.Geometry.Positions())
	assert.Equal(t, 1.0, s.ProteinDensity[0])
	assert.Zero(t, s.Time)
	assert.InDelta(t, e0, s.ComputeTotalEnergy(), 1e-12)
}

func TestContinueChecksCounts(t *testing.T) {
	s := newSystem(t, sphereGeometry(t, 1, 1), bendingOnly(), DefaultOptions())
	st := s.Snapshot()
	st.Time = 2.5
	st.ProteinDensity[3] = 0.25
	require.NoError(t, s.Continue(st, s.Geometry.Mesh().NumFaces()))
	assert.Equal(t, 2.5, s.Time)
	assert.Equal(t, 0.25, s.ProteinDensity[3])

	err := s.Continue(st, s.Geometry.Mesh().NumFaces()+1)
	assert.ErrorIs(t, err, dynamo.ErrTopology)
	st.Positions = st.Positions[1:]
	assert.ErrorIs(t, s.Continue(st, s.Geometry.Mesh().NumFaces()), dynamo.ErrTopology)
}

func TestFinitenessBacktraceNamesComponent(t *testing.T) {
	s := newSystem(t, sphereGeometry(t, 1, 1), bendingOnly(), DefaultOptions())
	s.ComputePhysicalForcing(0.1)
	s.ComputeTotalEnergy()
	require.True(t, s.CheckFiniteness())
	require.NoError(t, s.FinitenessErrorBacktrace())

	s.Velocity[2].X = math.NaN()
	assert.False(t, s.CheckFiniteness())
	err := s.FinitenessErrorBacktrace()
	assert.ErrorIs(t, err, dynamo.ErrNonFinite)
	assert.Contains(t, err.Error(), "velocity")
}

func TestMutateMeshKeepsFieldsInStep(t *testing.T) {
	o := DefaultOptions()
	o.IsEdgeFlip = true
	o.IsSplitEdge = true
	o.IsCollapseEdge = true
	mu := remesh.DefaultMutator()
	mu.FlipNonDelaunay = true
	mu.SplitLong = true
	mu.CollapseSkinny = true
	mu.IsSmoothenMesh = true

	s, err := NewSystem(sphereGeometry(t, 1, 1.5), bendingOnly(), o, mu, 3, nil)
	require.NoError(t, err)
	s.Mutator.TargetEdgeLength = 0.2
	require.True(t, s.MutateMesh())

	n := s.Geometry.Mesh().NumVertices()
	require.NoError(t, s.Geometry.Mesh().Validate())
	for name, l := range map[string]int{
		"protein": len(s.ProteinDensity), "velocity": len(s.Velocity), "rate": len(s.ProteinRateOfChange),
		"h0": len(s.H0), "kb": len(s.Kb), "kd": len(s.Kd), "force mask": len(s.ForceMask),
		"protein mask": len(s.ProteinMask), "marker": len(s.MutationMarker), "geodesic": len(s.GeodesicDistance),
	} {
		assert.Equal(t, n, l, name)
	}
	assert.Len(t, s.RefEdgeLengths, s.Geometry.Mesh().NumEdges())
	assert.Len(t, s.RefFaceAreas, s.Geometry.Mesh().NumFaces())
	s.ComputePhysicalForcing(0.01)
	s.ComputeTotalEnergy()
	assert.True(t, s.CheckFiniteness())
	assert.True(t, s.ProteinDensity.IsValid())
}

func BenchmarkComputePhysicalForcing(b *testing.B) {
	o := DefaultOptions()
	o.IsProteinVariation = true
	s := newSystem(b, sphereGeometry(b, 3, 1.1), fullParameters(), o)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		s.ComputePhysicalForcing(0.01)
	}
}
