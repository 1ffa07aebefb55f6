package membrane

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/san-kum/memdyn/internal/dynamo"
)

// Energy is the free energy decomposition of the last evaluation.
type Energy struct {
	Time      float64
	Total     float64
	Kinetic   float64
	Potential float64

	SpontaneousCurvature float64
	Deviatoric           float64
	AreaDifference       float64
	Surface              float64
	Pressure             float64
	Adsorption           float64
	Aggregation          float64
	Entropy              float64
	Dirichlet            float64
	ExternalWork         float64
	InteriorPenalty      float64
	SelfAvoidance        float64
	EdgeSpring           float64
	FaceSpring           float64
	LCRSpring            float64
}

// Terms returns the potential subterms by name.
func (e Energy) Terms() map[string]float64 {
	return map[string]float64{
		"spontaneous_curvature": e.SpontaneousCurvature,
		"deviatoric":            e.Deviatoric,
		"area_difference":       e.AreaDifference,
		"surface":               e.Surface,
		"pressure":              e.Pressure,
		"adsorption":            e.Adsorption,
		"aggregation":           e.Aggregation,
		"entropy":               e.Entropy,
		"dirichlet":             e.Dirichlet,
		"external_work":         e.ExternalWork,
		"interior_penalty":      e.InteriorPenalty,
		"self_avoidance":        e.SelfAvoidance,
		"edge_spring":           e.EdgeSpring,
		"face_spring":           e.FaceSpring,
		"lcr_spring":            e.LCRSpring,
	}
}

// TermNames lists the keys of Terms in a stable order.
var TermNames = []string{
	"spontaneous_curvature", "deviatoric", "area_difference", "surface",
	"pressure", "adsorption", "aggregation", "entropy", "dirichlet",
	"external_work", "interior_penalty", "self_avoidance", "edge_spring",
	"face_spring", "lcr_spring",
}

func (s *System) computeSpontaneousCurvatureEnergy() float64 {
	diff := s.bendingDiff(s.H0)
	area := s.Geometry.VertexDualAreas()
	e := 0.0
	for v := range diff {
		e += s.Kb[v] * diff[v] * diff[v] * area[v]
	}
	return e
}

func (s *System) computeDeviatoricCurvatureEnergy() float64 {
	g := s.Geometry
	h := g.VertexMeanCurvatures()
	kInt := g.VertexGaussianCurvatures()
	area := g.VertexDualAreas()
	e := 0.0
	for v := range h {
		if s.isOpen && g.Mesh().IsBoundaryVertex(v) {
			continue
		}
		e += s.Kd[v] * (h[v]*h[v]*area[v] - kInt[v])
	}
	return e
}

func (s *System) computeAreaDifferenceEnergy() float64 {
	ad := s.Parameters.AreaDifference
	d := s.integratedMeanCurvature() - ad.DA0
	return ad.Kad * math.Pi / (2 * s.Area) * d * d
}

// computeSurfaceEnergy is linear in the area deviation on open meshes and
// quadratic on closed ones.
func (s *System) computeSurfaceEnergy() float64 {
	t := s.Parameters.Tension
	if s.Options.IsConstantSurfaceTension {
		return t.Ksg * s.Area
	}
	at := s.targetArea()
	d := s.Area - at
	if s.isOpen {
		return t.Ksg * d
	}
	return t.Ksg*d*d/(2*at) + s.Parameters.LambdaSG*d
}

// computePressureEnergy follows the same open and closed split as the
// surface energy.
func (s *System) computePressureEnergy() float64 {
	o, p := s.Options, s.Parameters.Osmotic
	switch {
	case o.IsConstantOsmoticPressure:
		return -p.Kv * s.Volume
	case o.IsPreferredVolume:
		vt := s.targetVolume()
		d := s.Volume - vt
		if s.isOpen {
			return -p.Kv * d
		}
		return p.Kv*d*d/(2*vt*vt) + s.Parameters.LambdaV*d
	}
	if p.Kv == 0 {
		return 0
	}
	return -VantHoff * GasConstant * s.Parameters.Temp * (p.N*math.Log(s.Volume) - p.Cam*s.Volume)
}

func (s *System) computeProteinEnergies() (adsorption, aggregation, entropy float64) {
	p := s.Parameters
	area := s.Geometry.VertexDualAreas()
	for v, phi := range s.ProteinDensity {
		adsorption += p.Adsorption.Epsilon * phi * area[v]
		if p.Aggregation.Chi != 0 {
			aggregation += p.Aggregation.Chi * aggregationDensity(phi) * area[v]
		}
		if p.Entropy.Xi != 0 {
			entropy += p.Entropy.Xi * entropyDensity(phi) * area[v]
		}
	}
	return adsorption, aggregation, entropy
}

func (s *System) computeDirichletEnergy() float64 {
	if s.Parameters.Dirichlet.Eta == 0 {
		return 0
	}
	return 0.5 * s.Parameters.Dirichlet.Eta * s.Geometry.CotanLaplacian().Quad(s.ProteinDensity)
}

func (s *System) computeInteriorPenalty() float64 {
	if s.Parameters.LambdaPhi == 0 || !s.Options.IsProteinVariation {
		return 0
	}
	e := 0.0
	for _, phi := range s.ProteinDensity {
		e += math.Log(phi) + math.Log(1-phi)
	}
	return -s.Parameters.LambdaPhi * e
}

func (s *System) computeSpringEnergies() (edge, face, lcr float64) {
	g := s.Geometry
	p := s.Parameters
	if p.Kse != 0 {
		for e, l := range g.EdgeLengths() {
			if l0 := s.RefEdgeLengths[e]; l0 != 0 {
				edge += (l - l0) * (l - l0) / l0
			}
		}
		edge *= p.Kse / 2
	}
	if p.Ksl != 0 {
		for f, a := range g.FaceAreas() {
			if a0 := s.RefFaceAreas[f]; a0 != 0 {
				face += (a - a0) * (a - a0) / a0
			}
		}
		face *= p.Ksl / 2
	}
	if p.Kst != 0 {
		for e, r := range g.LengthCrossRatios() {
			if r0 := s.RefLCR[e]; r0 != 0 && r != 0 {
				lcr += (r - r0) * (r - r0) / r0
			}
		}
		lcr *= p.Kst / 2
	}
	return edge, face, lcr
}

// ComputeKineticEnergy uses unit vertex mass.
func (s *System) ComputeKineticEnergy() float64 {
	return 0.5 * s.Velocity.Dot(s.Velocity)
}

// ComputePotentialEnergy refreshes every potential subterm of Energy and
// returns their sum. It is the objective of the line search.
func (s *System) ComputePotentialEnergy() float64 {
	p := s.Parameters
	e := &s.Energy
	s.Area = s.Geometry.Area()
	s.Volume = s.Geometry.Volume()

	*e = Energy{Time: s.Time, Kinetic: e.Kinetic, Total: e.Total}
	if p.Bending.Kb != 0 || p.Bending.Kbc != 0 {
		e.SpontaneousCurvature = s.computeSpontaneousCurvatureEnergy()
	}
	if p.Deviatoric.Kd != 0 || p.Deviatoric.Kdc != 0 {
		e.Deviatoric = s.computeDeviatoricCurvatureEnergy()
	}
	if p.AreaDifference.Kad != 0 {
		e.AreaDifference = s.computeAreaDifferenceEnergy()
	}
	if p.Tension.Ksg != 0 || p.LambdaSG != 0 {
		e.Surface = s.computeSurfaceEnergy()
	}
	if p.Osmotic.Kv != 0 || p.LambdaV != 0 {
		e.Pressure = s.computePressureEnergy()
	}
	e.Adsorption, e.Aggregation, e.Entropy = s.computeProteinEnergies()
	e.Dirichlet = s.computeDirichletEnergy()
	e.InteriorPenalty = s.computeInteriorPenalty()
	if p.SelfAvoidance.Mu != 0 {
		e.SelfAvoidance = s.computeSelfAvoidance(nil)
	}
	e.EdgeSpring, e.FaceSpring, e.LCRSpring = s.computeSpringEnergies()
	e.ExternalWork = s.ExternalWork

	terms := e.Terms()
	vals := make([]float64, 0, len(terms))
	for _, name := range TermNames {
		vals = append(vals, terms[name])
	}
	e.Potential = floats.Sum(vals)
	return e.Potential
}

// ComputeTotalEnergy refreshes the full decomposition and returns kinetic
// plus potential energy.
func (s *System) ComputeTotalEnergy() float64 {
	s.Energy.Kinetic = s.ComputeKineticEnergy()
	s.ComputePotentialEnergy()
	s.Energy.Total = s.Energy.Kinetic + s.Energy.Potential
	return s.Energy.Total
}

// computeSelfAvoidance visits vertex pairs closer than the cutoff that are
// more than Layer rings apart. It accumulates −∇E into out when out is
// non-nil and returns E. A pair at or inside D yields NaN.
func (s *System) computeSelfAvoidance(out dynamo.VectorField) float64 {
	g := s.Geometry
	m := g.Mesh()
	sa := s.Parameters.SelfAvoidance
	n := m.NumVertices()
	stamp := make([]int, n)
	for v := range stamp {
		stamp[v] = -1
	}
	ref := math.Log(sa.Cutoff - sa.D)
	energy := 0.0
	for i := 0; i < n; i++ {
		s.stampRing(stamp, i, sa.Layer)
		xi := g.Position(i)
		for _, j := range g.Within(xi, sa.Cutoff) {
			if j <= i || stamp[j] == i {
				continue
			}
			d := r3.Sub(xi, g.Position(j))
			r := r3.Norm(d)
			energy -= sa.Mu * (math.Log(r-sa.D) - ref)
			if out != nil {
				f := r3.Scale(sa.Mu/((r-sa.D)*r), d)
				out[i] = r3.Add(out[i], f)
				out[j] = r3.Sub(out[j], f)
			}
		}
	}
	return energy
}

// stampRing writes id into stamp for every vertex within layer rings of v.
func (s *System) stampRing(stamp []int, v, layer int) {
	m := s.Geometry.Mesh()
	id := v
	stamp[v] = id
	frontier := []int{v}
	for ; layer > 0 && len(frontier) > 0; layer-- {
		var next []int
		for _, u := range frontier {
			for w := range m.Neighbors(u) {
				if stamp[w] != id {
					stamp[w] = id
					next = append(next, w)
				}
			}
		}
		frontier = next
	}
}

func (s *System) checkSelfAvoidance() error {
	if s.Parameters.SelfAvoidance.Mu == 0 {
		return nil
	}
	if e := s.computeSelfAvoidance(nil); math.IsNaN(e) || math.IsInf(e, 0) {
		return dynamo.Configurationf("input mesh violates self avoidance distance %g", s.Parameters.SelfAvoidance.D)
	}
	return nil
}
