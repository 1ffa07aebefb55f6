package config

import (
	"slices"

	"github.com/san-kum/memdyn/internal/integrators"
	"github.com/san-kum/memdyn/internal/membrane"
)

// Presets build ready-to-run configurations. Each call returns a fresh
// Config.
var Presets = map[string]func() *Config{
	"sphere-relax":      sphereRelax,
	"osmotic-deflation": osmoticDeflation,
	"protein-bud":       proteinBud,
	"patch-tube":        patchTube,
	"thermal-vesicle":   thermalVesicle,
}

func withScheme(c *Config, s integrators.Scheme) {
	c.Integrator.Scheme = s
	c.Integrator.Options = integrators.DefaultOptions(s)
}

// sphereRelax relaxes a prolate ellipsoid under bending and a surface
// tension penalty.
func sphereRelax() *Config {
	c := DefaultConfig()
	c.Output.Name = "sphere-relax"
	c.Mesh.Scale = [3]float64{1, 1, 1.3}
	c.Parameters.Tension.Ksg = 0.05
	c.Parameters.Osmotic = membrane.Osmotic{Kv: 0.05, Vt: 1}
	withScheme(c, integrators.ConjugateGradient)
	c.Integrator.TimeStep = 1
	c.Integrator.TotalTime = 10000
	c.Integrator.SavePeriod = 500
	return c
}

func osmoticDeflation() *Config {
	c := DefaultConfig()
	c.Output.Name = "osmotic-deflation"
	c.Parameters.Tension.Ksg = 0.05
	c.Parameters.Osmotic = membrane.Osmotic{Kv: 0.5, Vt: 0.7}
	c.Options.IsEdgeFlip = true
	c.Options.IsVertexShift = true
	withScheme(c, integrators.Euler)
	c.Integrator.TimeStep = 2
	c.Integrator.TotalTime = 50000
	c.Integrator.SavePeriod = 1000
	c.Integrator.ProcessMeshPeriod = 100
	return c
}

// proteinBud grows a bud from a tanh disk of curvature-inducing protein.
func proteinBud() *Config {
	c := DefaultConfig()
	c.Output.Name = "protein-bud"
	c.Mesh.Subdivisions = 4
	p := &c.Parameters
	p.Bending = membrane.Bending{Kb: 8.22e-5, Kbc: 3 * 8.22e-5, H0c: -6, Relation: membrane.RelationHill}
	p.Tension.Ksg = 0.05
	p.Osmotic = membrane.Osmotic{Kv: 0.05, Vt: 1}
	p.Adsorption.Epsilon = -1e-3
	p.Dirichlet.Eta = 5e-4
	p.Bc = 1
	p.Protein0 = []float64{0.5, 0.8, 0.1}
	c.Options.IsProteinVariation = true
	c.Options.IsEdgeFlip = true
	withScheme(c, integrators.Euler)
	c.Integrator.TimeStep = 1
	c.Integrator.TotalTime = 20000
	c.Integrator.SavePeriod = 500
	c.Integrator.ProcessMeshPeriod = 50
	c.Integrator.UpdateGeodesicsPeriod = 50
	c.Output.PLY = true
	return c
}

// patchTube pulls a tube out of a pinned hexagonal patch with a localized
// external force.
func patchTube() *Config {
	c := DefaultConfig()
	c.Output.Name = "patch-tube"
	c.Mesh = MeshConfig{Generator: "hexagon", Radius: 1, Rings: 8, Scale: [3]float64{1, 1, 1}, Dome: 0.02}
	p := &c.Parameters
	p.Tension.Ksg = 0.01
	p.Osmotic = membrane.Osmotic{}
	p.External = membrane.External{Kf: 0.01, Conc: 25, Height: 2}
	p.Point = membrane.Point{Position: []float64{0, 0}, IsFloatVertex: true}
	p.Radius = 0.8
	c.Options.IsPreferredVolume = false
	c.Options.IsConstantOsmoticPressure = true
	c.Options.IsConstantSurfaceTension = true
	c.Options.ShapeBoundary = membrane.ShapeBoundaryPin
	c.Options.IsEdgeFlip = true
	c.Options.IsSplitEdge = true
	withScheme(c, integrators.Euler)
	c.Integrator.TimeStep = 1
	c.Integrator.TotalTime = 20000
	c.Integrator.SavePeriod = 500
	c.Integrator.ProcessMeshPeriod = 50
	c.Integrator.UpdateGeodesicsPeriod = 50
	c.Integrator.IsAdaptiveStep = true
	c.Mutator.SplitLong = true
	c.Mutator.FlipNonDelaunay = true
	return c
}

// thermalVesicle runs DPD-thermostatted dynamics of a small vesicle.
func thermalVesicle() *Config {
	c := DefaultConfig()
	c.Output.Name = "thermal-vesicle"
	c.Mesh.Subdivisions = 2
	p := &c.Parameters
	p.Tension.Ksg = 0.1
	p.Osmotic = membrane.Osmotic{Kv: 0.1, Vt: 1}
	p.DPD.Gamma = 1
	p.Temp = 300
	withScheme(c, integrators.VelocityVerlet)
	c.Integrator.TimeStep = 1e-3
	c.Integrator.TotalTime = 5
	c.Integrator.SavePeriod = 0.1
	return c
}

// GetPreset returns a fresh copy of the named preset, or nil.
func GetPreset(name string) *Config {
	build, ok := Presets[name]
	if !ok {
		return nil
	}
	return build()
}

func ListPresets() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
