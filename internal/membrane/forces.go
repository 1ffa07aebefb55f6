package membrane

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/san-kum/memdyn/internal/dynamo"
)

// Forces holds every per-vertex force component of the last evaluation.
// Components are unmasked; Mechanical is their masked sum.
type Forces struct {
	Mechanical dynamo.VectorField

	SpontaneousCurvature dynamo.VectorField
	Deviatoric           dynamo.VectorField
	AreaDifference       dynamo.VectorField
	Capillary            dynamo.VectorField
	Osmotic              dynamo.VectorField
	LineCapillary        dynamo.VectorField
	Adsorption           dynamo.VectorField
	Aggregation          dynamo.VectorField
	Entropy              dynamo.VectorField
	SelfAvoidance        dynamo.VectorField
	External             dynamo.VectorField
	Spring               dynamo.VectorField
	Damping              dynamo.VectorField
	Stochastic           dynamo.VectorField

	ChemicalPotential dynamo.Field

	SpontaneousCurvaturePotential dynamo.Field
	AdsorptionPotential           dynamo.Field
	AggregationPotential          dynamo.Field
	EntropyPotential              dynamo.Field
	DeviatoricPotential           dynamo.Field
	DirichletPotential            dynamo.Field
	InteriorPenaltyPotential      dynamo.Field
}

func newForces(n int) Forces {
	var f Forces
	for _, c := range f.vectorSlots() {
		*c.field = dynamo.NewVectorField(n)
	}
	for _, c := range f.scalarSlots() {
		*c.field = make(dynamo.Field, n)
	}
	return f
}

type vectorSlot struct {
	name  string
	field *dynamo.VectorField
}

type scalarSlot struct {
	name  string
	field *dynamo.Field
}

func (f *Forces) vectorSlots() []vectorSlot {
	return []vectorSlot{
		{"mechanical_force", &f.Mechanical},
		{"spontaneous_curvature_force", &f.SpontaneousCurvature},
		{"deviatoric_force", &f.Deviatoric},
		{"area_difference_force", &f.AreaDifference},
		{"capillary_force", &f.Capillary},
		{"osmotic_force", &f.Osmotic},
		{"line_capillary_force", &f.LineCapillary},
		{"adsorption_force", &f.Adsorption},
		{"aggregation_force", &f.Aggregation},
		{"entropy_force", &f.Entropy},
		{"self_avoidance_force", &f.SelfAvoidance},
		{"external_force", &f.External},
		{"spring_force", &f.Spring},
		{"damping_force", &f.Damping},
		{"stochastic_force", &f.Stochastic},
	}
}

func (f *Forces) scalarSlots() []scalarSlot {
	return []scalarSlot{
		{"chemical_potential", &f.ChemicalPotential},
		{"spontaneous_curvature_potential", &f.SpontaneousCurvaturePotential},
		{"adsorption_potential", &f.AdsorptionPotential},
		{"aggregation_potential", &f.AggregationPotential},
		{"entropy_potential", &f.EntropyPotential},
		{"deviatoric_potential", &f.DeviatoricPotential},
		{"dirichlet_potential", &f.DirichletPotential},
		{"interior_penalty_potential", &f.InteriorPenaltyPotential},
	}
}

// NamedVectorField pairs a vector field with its property name.
type NamedVectorField struct {
	Name  string
	Field dynamo.VectorField
}

type NamedField struct {
	Name  string
	Field dynamo.Field
}

// Vectors lists every force component by name, the mechanical sum first.
func (f *Forces) Vectors() []NamedVectorField {
	slots := f.vectorSlots()
	out := make([]NamedVectorField, len(slots))
	for i, c := range slots {
		out[i] = NamedVectorField{Name: c.name, Field: *c.field}
	}
	return out
}

// Scalars lists every chemical potential component by name, the sum first.
func (f *Forces) Scalars() []NamedField {
	slots := f.scalarSlots()
	out := make([]NamedField, len(slots))
	for i, c := range slots {
		out[i] = NamedField{Name: c.name, Field: *c.field}
	}
	return out
}

// components are the conservative terms summed into Mechanical.
func (f *Forces) components() []dynamo.VectorField {
	return []dynamo.VectorField{
		f.SpontaneousCurvature, f.Deviatoric, f.AreaDifference, f.Capillary,
		f.Osmotic, f.LineCapillary, f.Adsorption, f.Aggregation, f.Entropy,
		f.SelfAvoidance, f.External, f.Spring,
	}
}

func (f *Forces) resize(n int) {
	if len(f.Mechanical) == n {
		return
	}
	*f = newForces(n)
}

// ComputeConservativeForcing evaluates every active energy-gradient force
// and stores their masked sum in Forces.Mechanical. Terms with a zero
// coefficient are skipped and left at zero.
func (s *System) ComputeConservativeForcing() {
	n := s.Geometry.Mesh().NumVertices()
	s.Forces.resize(n)
	for _, c := range s.Forces.components() {
		c.Fill(r3.Vec{})
	}
	s.Forces.Mechanical.Fill(r3.Vec{})
	s.InterfacialArea = 0
	s.Area = s.Geometry.Area()
	s.Volume = s.Geometry.Volume()

	if s.Options.IsShapeVariation {
		p := s.Parameters
		s.OsmoticPressure = s.osmoticPressure()
		s.SurfaceTension = s.surfaceTension()

		if p.Bending.Kb != 0 || p.Bending.Kbc != 0 {
			s.computeBendingForce(s.Kb, s.H0, s.Forces.SpontaneousCurvature)
		}
		if p.Deviatoric.Kd != 0 || p.Deviatoric.Kdc != 0 {
			s.computeBendingForce(s.Kd, nil, s.Forces.Deviatoric)
		}
		if p.AreaDifference.Kad != 0 {
			s.computeAreaDifferenceForce()
		}
		if s.SurfaceTension != 0 {
			s.computeAreaExpansionForce(func(int) float64 { return s.SurfaceTension }, s.Forces.Capillary)
		}
		if s.OsmoticPressure != 0 {
			grad := s.Geometry.VolumeGradient()
			for v := range s.Forces.Osmotic {
				s.Forces.Osmotic[v] = r3.Scale(s.OsmoticPressure, grad[v])
			}
		}
		if p.Dirichlet.Eta != 0 {
			s.computeLineCapillaryForce()
		}
		if p.Adsorption.Epsilon != 0 {
			s.computeAreaExpansionForce(func(v int) float64 {
				return p.Adsorption.Epsilon * s.ProteinDensity[v]
			}, s.Forces.Adsorption)
		}
		if p.Aggregation.Chi != 0 {
			s.computeAreaExpansionForce(func(v int) float64 {
				return p.Aggregation.Chi * aggregationDensity(s.ProteinDensity[v])
			}, s.Forces.Aggregation)
		}
		if p.Entropy.Xi != 0 {
			s.computeAreaExpansionForce(func(v int) float64 {
				return p.Entropy.Xi * entropyDensity(s.ProteinDensity[v])
			}, s.Forces.Entropy)
		}
		if p.SelfAvoidance.Mu != 0 {
			s.computeSelfAvoidance(s.Forces.SelfAvoidance)
		}
		if p.External.Kf != 0 {
			s.computeExternalForce()
		}
		if p.Kse != 0 || p.Ksl != 0 || p.Kst != 0 {
			s.computeSpringForce()
		}

		for _, c := range s.Forces.components() {
			s.Forces.Mechanical.Add(c)
		}
		s.applyForceMask(s.Forces.Mechanical)
	}
	s.MechErrorNorm = s.Forces.Mechanical.Norm()
}

// AddNonconservativeForcing adds DPD damping and thermal noise to the
// mechanical force and updates MechErrorNorm from the conservative and
// damping parts.
func (s *System) AddNonconservativeForcing(dt float64) {
	s.Forces.Damping.Fill(r3.Vec{})
	s.Forces.Stochastic.Fill(r3.Vec{})
	if !s.Options.IsShapeVariation {
		return
	}
	if s.Parameters.DPD.Gamma != 0 || s.Parameters.Temp != 0 {
		s.computeDPDForces(dt)
	}
	damping := s.Forces.Damping.Clone()
	s.applyForceMask(damping)
	stochastic := s.Forces.Stochastic.Clone()
	s.applyForceMask(stochastic)

	s.Forces.Mechanical.Add(damping)
	errForce := s.Forces.Mechanical.Clone()
	s.Forces.Mechanical.Add(stochastic)
	s.MechErrorNorm = errForce.Norm()
}

// ComputePhysicalForcing runs the conservative, nonconservative and
// chemical evaluations in that order.
func (s *System) ComputePhysicalForcing(dt float64) {
	s.ComputeConservativeForcing()
	s.AddNonconservativeForcing(dt)
	s.ComputeChemicalPotentials()
}

func (s *System) applyForceMask(f dynamo.VectorField) {
	for v := range f {
		m := s.ForceMask[v]
		f[v] = r3.Vec{X: f[v].X * m.X, Y: f[v].Y * m.Y, Z: f[v].Z * m.Z}
	}
}

// bendingDiff returns H − H0 with boundary vertices of an open mesh
// zeroed. h0 may be nil.
func (s *System) bendingDiff(h0 dynamo.Field) []float64 {
	g := s.Geometry
	h := g.VertexMeanCurvatures()
	out := make([]float64, len(h))
	for v := range out {
		if s.isOpen && g.Mesh().IsBoundaryVertex(v) {
			continue
		}
		out[v] = h[v]
		if h0 != nil {
			out[v] -= h0[v]
		}
	}
	return out
}

// computeBendingForce writes the first variation of Σ k(H−H0)²A. With
// h0 nil it gives the deviatoric form with k = Kd.
func (s *System) computeBendingForce(k, h0 dynamo.Field, out dynamo.VectorField) {
	g := s.Geometry
	h := g.VertexMeanCurvatures()
	kInt := g.VertexGaussianCurvatures()
	area := g.VertexDualAreas()
	normals := g.VertexNormals()
	diff := s.bendingDiff(h0)

	weighted := make([]float64, len(diff))
	for v := range diff {
		weighted[v] = k[v] * diff[v]
	}
	lap := g.CotanLaplacian().Apply(weighted)

	for v := range out {
		if area[v] == 0 {
			continue
		}
		var hv0 float64
		if h0 != nil {
			hv0 = h0[v]
		}
		gauss := kInt[v] / area[v]
		mag := -lap[v] + 2*k[v]*diff[v]*(h[v]*h[v]+h[v]*hv0-gauss)*area[v]
		out[v] = r3.Scale(mag, normals[v])
	}
}

func (s *System) computeAreaDifferenceForce() {
	g := s.Geometry
	ad := s.Parameters.AreaDifference
	kInt := g.VertexGaussianCurvatures()
	normals := g.VertexNormals()
	c := -ad.Kad * math.Pi / s.Area * (s.integratedMeanCurvature() - ad.DA0)
	for v := range s.Forces.AreaDifference {
		s.Forces.AreaDifference[v] = r3.Scale(c*kInt[v], normals[v])
	}
}

func (s *System) integratedMeanCurvature() float64 {
	h := s.Geometry.VertexMeanCurvatures()
	area := s.Geometry.VertexDualAreas()
	m := 0.0
	for v := range h {
		m += h[v] * area[v]
	}
	return m
}

// computeAreaExpansionForce writes −w·2H·A·n, the force of an energy
// density w integrated over area.
func (s *System) computeAreaExpansionForce(w func(v int) float64, out dynamo.VectorField) {
	g := s.Geometry
	h := g.VertexMeanCurvatures()
	area := g.VertexDualAreas()
	normals := g.VertexNormals()
	for v := range out {
		out[v] = r3.Scale(-2*w(v)*h[v]*area[v], normals[v])
	}
}

func (s *System) osmoticPressure() float64 {
	o, p := s.Options, s.Parameters.Osmotic
	switch {
	case o.IsConstantOsmoticPressure:
		return p.Kv
	case o.IsPreferredVolume:
		if s.isOpen {
			return p.Kv
		}
		vt := s.targetVolume()
		return -(p.Kv*(s.Volume-vt)/(vt*vt) + s.Parameters.LambdaV)
	}
	if p.Kv == 0 {
		return 0
	}
	return VantHoff * GasConstant * s.Parameters.Temp * (p.N/s.Volume - p.Cam)
}

func (s *System) surfaceTension() float64 {
	t := s.Parameters.Tension
	if s.Options.IsConstantSurfaceTension || s.isOpen {
		return t.Ksg
	}
	if t.Ksg == 0 && s.Parameters.LambdaSG == 0 {
		return 0
	}
	at := s.targetArea()
	return t.Ksg*(s.Area-at)/at + s.Parameters.LambdaSG
}

// computeLineCapillaryForce acts on the band where H0 lies strictly between
// 10% and 90% of its maximum magnitude.
func (s *System) computeLineCapillaryForce() {
	g := s.Geometry
	m := g.Mesh()
	h := g.VertexMeanCurvatures()
	area := g.VertexDualAreas()
	normals := g.VertexNormals()
	dihedral := g.DihedralAngles()
	lengths := g.EdgeLengths()
	grad := g.VertexGradient(s.ProteinDensity)
	eta := s.Parameters.Dirichlet.Eta

	h0max := 0.0
	for _, x := range s.H0 {
		h0max = math.Max(h0max, math.Abs(x))
	}
	if h0max == 0 {
		return
	}
	for v := range s.Forces.LineCapillary {
		a := math.Abs(s.H0[v])
		if a <= 0.1*h0max || a >= 0.9*h0max || h[v] == 0 || area[v] == 0 {
			continue
		}
		s.InterfacialArea += area[v]
		t := r3.Cross(grad[v], normals[v])
		tn := r3.Norm(t)
		if tn == 0 {
			continue
		}
		t = r3.Scale(1/tn, t)
		kn := 0.0
		for he := range m.Outgoing(v) {
			e := m.Edge(he)
			dir := r3.Unit(r3.Sub(g.Position(m.Tip(he)), g.Position(v)))
			c := r3.Dot(t, dir)
			kn += dihedral[e] * lengths[e] * (1 - c*c)
		}
		kn /= 2 * area[v]
		s.Forces.LineCapillary[v] = r3.Scale(-eta*kn*r3.Norm(grad[v])*area[v], normals[v])
	}
}

// computeExternalForce pulls vertices toward the target height with a
// Gaussian weight in geodesic distance from the center.
func (s *System) computeExternalForce() {
	ext := s.Parameters.External
	zc := s.Geometry.Position(s.CenterVertex).Z
	for v := range s.Forces.External {
		w := 1.0
		if ext.Conc > 0 {
			d := s.GeodesicDistance[v]
			w = math.Exp(-d * d / (2 * ext.Conc * ext.Conc))
		}
		s.Forces.External[v] = r3.Vec{Z: ext.Kf * w * (ext.Height - zc)}
	}
}

// AccumulateExternalWork subtracts the power of the external force over dt.
func (s *System) AccumulateExternalWork(dt float64) {
	if s.Parameters.External.Kf == 0 {
		return
	}
	s.ExternalWork -= s.Forces.External.Dot(s.Velocity) * dt
}

func (s *System) computeSpringForce() {
	g := s.Geometry
	m := g.Mesh()
	p := s.Parameters
	pos := g.Positions()
	out := s.Forces.Spring

	edgePull := func(e int, c float64) {
		i, j := m.EdgeVertices(e)
		d := r3.Sub(pos[i], pos[j])
		l := r3.Norm(d)
		if l == 0 {
			return
		}
		// c is dE/dl
		f := r3.Scale(c/l, d)
		out[i] = r3.Sub(out[i], f)
		out[j] = r3.Add(out[j], f)
	}

	if p.Kse != 0 {
		lengths := g.EdgeLengths()
		for e, l0 := range s.RefEdgeLengths {
			if l0 == 0 {
				continue
			}
			edgePull(e, p.Kse*(lengths[e]-l0)/l0)
		}
	}

	if p.Ksl != 0 {
		areas := g.FaceAreas()
		normals := g.FaceNormals()
		for f, a0 := range s.RefFaceAreas {
			if a0 == 0 {
				continue
			}
			c := p.Ksl * (areas[f] - a0) / a0
			vs := m.FaceVertices(f)
			for k := 0; k < 3; k++ {
				i, j, l := vs[k], vs[(k+1)%3], vs[(k+2)%3]
				grad := r3.Scale(0.5, r3.Cross(normals[f], r3.Sub(pos[l], pos[j])))
				out[i] = r3.Sub(out[i], r3.Scale(c, grad))
			}
		}
	}

	if p.Kst != 0 {
		lcr := g.LengthCrossRatios()
		lengths := g.EdgeLengths()
		for e, r0 := range s.RefLCR {
			if r0 == 0 || lcr[e] == 0 {
				continue
			}
			c := p.Kst * (lcr[e] - r0) / r0
			h := m.EdgeHalfedge(e)
			t := m.Twin(h)
			jk, ki := m.Edge(m.Next(h)), m.Edge(m.Next(m.Next(h)))
			il, lj := m.Edge(m.Next(t)), m.Edge(m.Next(m.Next(t)))
			edgePull(il, c*lcr[e]/lengths[il])
			edgePull(jk, c*lcr[e]/lengths[jk])
			edgePull(ki, -c*lcr[e]/lengths[ki])
			edgePull(lj, -c*lcr[e]/lengths[lj])
		}
	}

	normals := g.VertexNormals()
	for v := range out {
		out[v] = r3.Sub(out[v], r3.Scale(r3.Dot(out[v], normals[v]), normals[v]))
	}
}

// computeDPDForces visits edges in index order and draws one normal
// variate per edge when the temperature is positive.
func (s *System) computeDPDForces(dt float64) {
	g := s.Geometry
	m := g.Mesh()
	gamma := s.Parameters.DPD.Gamma
	sigma := 0.0
	if s.Parameters.Temp > 0 && dt > 0 {
		sigma = math.Sqrt(2 * KBoltzmann * s.Parameters.Temp / dt)
	}
	for e := 0; e < m.EdgeSlots(); e++ {
		if !m.EdgeAlive(e) {
			continue
		}
		i, j := m.EdgeVertices(e)
		d := r3.Sub(g.Position(i), g.Position(j))
		l := r3.Norm(d)
		if l == 0 {
			continue
		}
		dir := r3.Scale(1/l, d)
		if gamma != 0 {
			rel := r3.Dot(r3.Sub(s.Velocity[i], s.Velocity[j]), dir)
			f := r3.Scale(-gamma*rel, dir)
			s.Forces.Damping[i] = r3.Add(s.Forces.Damping[i], f)
			s.Forces.Damping[j] = r3.Sub(s.Forces.Damping[j], f)
		}
		if sigma != 0 {
			f := r3.Scale(sigma*s.noise.Rand(), dir)
			s.Forces.Stochastic[i] = r3.Add(s.Forces.Stochastic[i], f)
			s.Forces.Stochastic[j] = r3.Sub(s.Forces.Stochastic[j], f)
		}
	}
}

func aggregationDensity(phi float64) float64 {
	x := 2*phi - 1
	y := x*x - 1
	return y * y
}

func aggregationDerivative(phi float64) float64 {
	x := 2*phi - 1
	return 8 * x * (x*x - 1)
}

func entropyDensity(phi float64) float64 {
	return xlogx(phi) + xlogx(1-phi)
}

func xlogx(x float64) float64 {
	if x == 0 {
		return 0
	}
	return x * math.Log(x)
}
