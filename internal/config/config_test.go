package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/san-kum/memdyn/internal/dynamo"
	"github.com/san-kum/memdyn/internal/integrators"
	"github.com/san-kum/memdyn/internal/membrane"
	"github.com/san-kum/memdyn/internal/storage"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "icosphere", cfg.Mesh.Generator)
	assert.Equal(t, integrators.Euler, cfg.Integrator.Scheme)
	assert.True(t, cfg.Integrator.IsBacktrack)
	assert.Equal(t, DefaultDataDir, cfg.Output.Dir)
}

func TestParseOverridesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
seed: 9
mesh:
  subdivisions: 2
parameters:
  bending:
    kb: 0.5
    relation: hill
  protein0: [0.3]
integrator:
  scheme: cg
  dt: 0.05
options:
  shape_boundary: roller
`))
	require.NoError(t, err)
	assert.Equal(t, uint64(9), cfg.Seed)
	assert.Equal(t, 2, cfg.Mesh.Subdivisions)
	assert.Equal(t, 1.0, cfg.Mesh.Radius)
	assert.Equal(t, 0.5, cfg.Parameters.Bending.Kb)
	assert.Equal(t, membrane.RelationHill, cfg.Parameters.Bending.Relation)
	assert.Equal(t, []float64{0.3}, cfg.Parameters.Protein0)
	assert.Equal(t, integrators.ConjugateGradient, cfg.Integrator.Scheme)
	assert.Equal(t, 0.05, cfg.Integrator.TimeStep)
	assert.Equal(t, 1000.0, cfg.Integrator.TotalTime)
	assert.Equal(t, membrane.ShapeBoundaryRoller, cfg.Options.ShapeBoundary)
}

func TestParseEmpty(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestParseRejectsUnknownFields(t *testing.T) {
	_, err := Parse([]byte("parameters:\n  bendng:\n    kb: 1\n"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, dynamo.ErrConfiguration))

	_, err = Parse([]byte("integrator:\n  scheme: rk4\n"))
	assert.True(t, errors.Is(err, dynamo.ErrConfiguration))
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	cfg := GetPreset("protein-bud")
	require.NoError(t, Save(path, cfg))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, got)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"generator", func(c *Config) { c.Mesh.Generator = "torus" }},
		{"subdivisions", func(c *Config) { c.Mesh.Subdivisions = 9 }},
		{"radius", func(c *Config) { c.Mesh.Radius = 0 }},
		{"scale", func(c *Config) { c.Mesh.Scale[2] = -1 }},
		{"rings", func(c *Config) { c.Mesh.Generator = "hexagon"; c.Mesh.Rings = 0 }},
		{"cylinder", func(c *Config) { c.Mesh.Generator = "cylinder" }},
		{"ply file", func(c *Config) { c.Mesh.Generator = "ply" }},
		{"kb", func(c *Config) { c.Parameters.Bending.Kb = -1 }},
		{"ksg", func(c *Config) { c.Parameters.Tension.Ksg = -1 }},
		{"kst", func(c *Config) { c.Parameters.Kst = -1 }},
		{"relation", func(c *Config) { c.Parameters.Bending.Relation = 7 }},
		{"scheme", func(c *Config) { c.Integrator.Scheme = 7 }},
		{"dt", func(c *Config) { c.Integrator.TimeStep = 0 }},
		{"rho", func(c *Config) { c.Integrator.Rho = 1 }},
		{"mutator", func(c *Config) { c.Mutator.CurvTol = -1 }},
		{"smoothing", func(c *Config) { c.Mutator.IsSmoothenMesh = true; c.Mutator.SmoothingMaxIter = 0 }},
		{"output dir", func(c *Config) { c.Output.Dir = "" }},
		{"output name", func(c *Config) { c.Output.Name = "a/b" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, dynamo.ErrConfiguration))
		})
	}
}

func TestPresets(t *testing.T) {
	names := ListPresets()
	assert.Equal(t, []string{"osmotic-deflation", "patch-tube", "protein-bud", "sphere-relax", "thermal-vesicle"}, names)

	for _, name := range names {
		t.Run(name, func(t *testing.T) {
			cfg := GetPreset(name)
			require.NotNil(t, cfg)
			require.NoError(t, cfg.Validate())
			assert.Equal(t, name, cfg.Output.Name)

			in, err := cfg.Build(nil)
			require.NoError(t, err)
			assert.Equal(t, cfg.Integrator.Scheme, in.Scheme)
			assert.Greater(t, in.System.Geometry.Mesh().NumVertices(), 0)
		})
	}

	assert.Nil(t, GetPreset("nonexistent"))
}

func TestGetPresetReturnsCopies(t *testing.T) {
	a := GetPreset("protein-bud")
	a.Parameters.Protein0[0] = 0.9
	a.Integrator.TimeStep = 7

	b := GetPreset("protein-bud")
	assert.Equal(t, 0.5, b.Parameters.Protein0[0])
	assert.Equal(t, 1.0, b.Integrator.TimeStep)
}

func TestClone(t *testing.T) {
	a := GetPreset("patch-tube")
	b := a.Clone()
	assert.Equal(t, a, b)
	b.Parameters.External.Kf = 3
	assert.NotEqual(t, a.Parameters.External.Kf, b.Parameters.External.Kf)
}

func TestGeometryGenerators(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Mesh.Subdivisions = 1
	unit, err := cfg.Geometry()
	require.NoError(t, err)
	cfg.Mesh.Scale = [3]float64{1, 1, 2}
	g, err := cfg.Geometry()
	require.NoError(t, err)
	assert.Equal(t, 42, g.Mesh().NumVertices())
	for v, p := range g.Positions() {
		assert.Equal(t, unit.Position(v).X, p.X)
		assert.Equal(t, 2*unit.Position(v).Z, p.Z)
	}

	cfg.Mesh = MeshConfig{Generator: "cylinder", Radius: 1, Height: 2, NTheta: 12, NZ: 4, Scale: [3]float64{1, 1, 1}}
	g, err = cfg.Geometry()
	require.NoError(t, err)
	assert.True(t, g.Mesh().HasBoundary())

	cfg.Mesh = MeshConfig{Generator: "hexagon", Radius: 1, Rings: 3, Scale: [3]float64{1, 1, 1}, Dome: 0.1}
	g, err = cfg.Geometry()
	require.NoError(t, err)
	top := 0.0
	for _, p := range g.Positions() {
		top = max(top, p.Z)
	}
	assert.InDelta(t, 0.1, top, 1e-12)
}

func TestGeometryFromPLY(t *testing.T) {
	src := DefaultConfig()
	src.Mesh.Subdivisions = 1
	g, err := src.Geometry()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "in.ply")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, storage.WritePLY(f, g.Mesh().Triangles(), g.Positions(), nil))
	require.NoError(t, f.Close())

	cfg := DefaultConfig()
	cfg.Mesh = MeshConfig{Generator: "ply", File: path, Scale: [3]float64{1, 1, 1}}
	require.NoError(t, cfg.Validate())
	got, err := cfg.Geometry()
	require.NoError(t, err)
	assert.Equal(t, g.Positions(), got.Positions())
	assert.InDelta(t, g.Volume(), got.Volume(), 1e-12)
}

func TestRecorderOptions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Output.PLY = true
	assert.Equal(t, storage.RecorderOptions{Trajectory: true, PLY: true}, cfg.RecorderOptions())
}

func TestJSONParsesBack(t *testing.T) {
	a := GetPreset("protein-bud")
	raw, err := a.JSON()
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"scheme":"euler"`)

	b, err := Parse(raw)
	require.NoError(t, err)
	want, err := yaml.Marshal(a)
	require.NoError(t, err)
	got, err := yaml.Marshal(b)
	require.NoError(t, err)
	assert.Equal(t, string(want), string(got))
}

func TestBuildSystemOn(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Mesh.Subdivisions = 1
	g, err := cfg.Geometry()
	require.NoError(t, err)

	cfg.Mesh.Subdivisions = 5
	sys, err := cfg.BuildSystemOn(g, nil)
	require.NoError(t, err)
	assert.Equal(t, 42, sys.Geometry.Mesh().NumVertices())

	cfg.Parameters.Bending.Kb = -1
	_, err = cfg.BuildSystemOn(g, nil)
	assert.True(t, errors.Is(err, dynamo.ErrConfiguration))
}

func TestWith(t *testing.T) {
	base := DefaultConfig()
	c, err := base.With("parameters.osmotic.vt", 0.75)
	require.NoError(t, err)
	assert.Equal(t, 0.75, c.Parameters.Osmotic.Vt)
	assert.Equal(t, 1.0, base.Parameters.Osmotic.Vt)

	c, err = c.With("mesh.subdivisions", 2)
	require.NoError(t, err)
	assert.Equal(t, 2, c.Mesh.Subdivisions)
	assert.Equal(t, 0.75, c.Parameters.Osmotic.Vt)

	c, err = c.With("integrator.dt", 1e-5)
	require.NoError(t, err)
	assert.Equal(t, 1e-5, c.Integrator.TimeStep)

	_, err = base.With("parameters.osmotic.nope", 1)
	assert.True(t, errors.Is(err, dynamo.ErrConfiguration))
	_, err = base.With("parameters.osmotic", 1)
	assert.True(t, errors.Is(err, dynamo.ErrConfiguration))
}
