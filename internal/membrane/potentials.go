package membrane

import (
	"math"
)

// ComputeChemicalPotentials evaluates μ = −∂E/∂φ for every active term,
// sums them under the protein mask and sets ProteinRateOfChange = Bc·μ/A.
func (s *System) ComputeChemicalPotentials() {
	n := s.Geometry.Mesh().NumVertices()
	s.Forces.resize(n)
	for _, c := range s.Forces.Scalars() {
		clear(c.Field)
	}
	s.ProteinRateOfChange = resize(s.ProteinRateOfChange, n)
	clear(s.ProteinRateOfChange)
	if !s.Options.IsProteinVariation {
		s.ChemErrorNorm = 0
		return
	}

	g := s.Geometry
	p := s.Parameters
	f := &s.Forces
	area := g.VertexDualAreas()
	phi := s.ProteinDensity

	if p.Bending.Kbc != 0 || p.Bending.H0c != 0 {
		diff := s.bendingDiff(s.H0)
		for v := range phi {
			ds := p.Bending.Relation.shapeDerivative(phi[v])
			dKb := p.Bending.Kbc * ds
			dH0 := p.Bending.H0c * ds
			f.SpontaneousCurvaturePotential[v] = -area[v] * (dKb*diff[v]*diff[v] - 2*s.Kb[v]*diff[v]*dH0)
		}
	}
	if p.Adsorption.Epsilon != 0 {
		for v := range phi {
			f.AdsorptionPotential[v] = -p.Adsorption.Epsilon * area[v]
		}
	}
	if p.Aggregation.Chi != 0 {
		for v := range phi {
			f.AggregationPotential[v] = -p.Aggregation.Chi * area[v] * aggregationDerivative(phi[v])
		}
	}
	if p.Entropy.Xi != 0 {
		for v := range phi {
			f.EntropyPotential[v] = -p.Entropy.Xi * area[v] * math.Log(phi[v]/(1-phi[v]))
		}
	}
	if p.Deviatoric.Kdc != 0 {
		h := g.VertexMeanCurvatures()
		kInt := g.VertexGaussianCurvatures()
		for v := range phi {
			if s.isOpen && g.Mesh().IsBoundaryVertex(v) {
				continue
			}
			f.DeviatoricPotential[v] = -p.Deviatoric.Kdc * (h[v]*h[v]*area[v] - kInt[v])
		}
	}
	if p.Dirichlet.Eta != 0 {
		lphi := g.CotanLaplacian().Apply(phi)
		for v := range phi {
			f.DirichletPotential[v] = -p.Dirichlet.Eta * lphi[v]
		}
	}
	if p.LambdaPhi != 0 {
		for v := range phi {
			f.InteriorPenaltyPotential[v] = p.LambdaPhi * (1/phi[v] - 1/(1-phi[v]))
		}
	}

	for _, c := range f.Scalars()[1:] {
		for v := range f.ChemicalPotential {
			f.ChemicalPotential[v] += c.Field[v]
		}
	}
	for v := range f.ChemicalPotential {
		f.ChemicalPotential[v] *= s.ProteinMask[v]
		if area[v] > 0 {
			s.ProteinRateOfChange[v] = p.Bc * f.ChemicalPotential[v] / area[v]
		}
	}
	s.ChemErrorNorm = f.ChemicalPotential.Norm()
}
