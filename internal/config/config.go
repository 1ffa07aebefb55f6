package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"gonum.org/v1/gonum/spatial/r3"
	"gopkg.in/yaml.v3"

	"github.com/san-kum/memdyn/internal/dynamo"
	"github.com/san-kum/memdyn/internal/geometry"
	"github.com/san-kum/memdyn/internal/integrators"
	"github.com/san-kum/memdyn/internal/membrane"
	"github.com/san-kum/memdyn/internal/mesh"
	"github.com/san-kum/memdyn/internal/remesh"
	"github.com/san-kum/memdyn/internal/storage"
)

const (
	DefaultDataDir      = ".memdyn"
	DefaultSubdivisions = 3
	DefaultRadius       = 1.0
	maxSubdivisions     = 7
)

var generators = []string{"icosphere", "hexagon", "cylinder", "tetrahedron", "ply"}

type MeshConfig struct {
	Generator    string     `yaml:"generator"`
	File         string     `yaml:"file,omitempty"`
	Subdivisions int        `yaml:"subdivisions"`
	Radius       float64    `yaml:"radius"`
	Rings        int        `yaml:"rings,omitempty"`
	Height       float64    `yaml:"height,omitempty"`
	NTheta       int        `yaml:"n_theta,omitempty"`
	NZ           int        `yaml:"n_z,omitempty"`
	Scale        [3]float64 `yaml:"scale"`
	// Dome lifts a flat patch into a paraboloid of this apex height.
	Dome float64 `yaml:"dome,omitempty"`
}

type IntegratorConfig struct {
	Scheme              integrators.Scheme `yaml:"scheme"`
	integrators.Options `yaml:",inline"`
}

type OutputConfig struct {
	Dir        string `yaml:"dir"`
	Name       string `yaml:"name"`
	PLY        bool   `yaml:"ply"`
	Trajectory bool   `yaml:"trajectory"`
}

type Config struct {
	Seed       uint64              `yaml:"seed"`
	Mesh       MeshConfig          `yaml:"mesh"`
	Parameters membrane.Parameters `yaml:"parameters"`
	Options    membrane.Options    `yaml:"options"`
	Integrator IntegratorConfig    `yaml:"integrator"`
	Mutator    remesh.Mutator      `yaml:"mutator"`
	Output     OutputConfig        `yaml:"output"`
}

func DefaultConfig() *Config {
	return &Config{
		Seed: 1,
		Mesh: MeshConfig{
			Generator:    "icosphere",
			Subdivisions: DefaultSubdivisions,
			Radius:       DefaultRadius,
			Scale:        [3]float64{1, 1, 1},
		},
		Parameters: membrane.DefaultParameters(),
		Options:    membrane.DefaultOptions(),
		Integrator: IntegratorConfig{
			Scheme:  integrators.Euler,
			Options: integrators.DefaultOptions(integrators.Euler),
		},
		Mutator: remesh.DefaultMutator(),
		Output: OutputConfig{
			Dir:        DefaultDataDir,
			Name:       "run",
			Trajectory: true,
		},
	}
}

// Load reads a YAML config over the defaults. Unknown keys are rejected.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %w", dynamo.ErrConfiguration, err)
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// JSON renders the config with its YAML keys so that Parse accepts the
// result. Run metadata embeds it.
func (c *Config) JSON() (json.RawMessage, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, err
	}
	var tree any
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return nil, err
	}
	return json.Marshal(tree)
}

// With returns a copy of the config with the numeric value at a dotted
// YAML path replaced, e.g. "parameters.osmotic.vt".
func (c *Config) With(path string, value float64) (*Config, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, err
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	node := doc.Content[0]
	for _, key := range strings.Split(path, ".") {
		next := lookup(node, key)
		if next == nil {
			return nil, dynamo.Configurationf("unknown config path %q", path)
		}
		node = next
	}
	if node.Kind != yaml.ScalarNode {
		return nil, dynamo.Configurationf("config path %q is not a scalar", path)
	}
	node.Tag = ""
	node.Value = strconv.FormatFloat(value, 'g', -1, 64)
	if data, err = yaml.Marshal(&doc); err != nil {
		return nil, err
	}
	return Parse(data)
}

func lookup(m *yaml.Node, key string) *yaml.Node {
	if m.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return m.Content[i+1]
		}
	}
	return nil
}

// Clone returns a deep copy through the YAML representation.
func (c *Config) Clone() *Config {
	data, err := yaml.Marshal(c)
	if err != nil {
		panic(err)
	}
	out, err := Parse(data)
	if err != nil {
		panic(err)
	}
	return out
}

func (c *Config) Validate() error {
	m := c.Mesh
	switch m.Generator {
	case "icosphere":
		if m.Subdivisions < 0 || m.Subdivisions > maxSubdivisions {
			return dynamo.Configurationf("mesh subdivisions must lie in [0, %d], got %d", maxSubdivisions, m.Subdivisions)
		}
	case "hexagon":
		if m.Rings < 1 {
			return dynamo.Configurationf("hexagon needs at least one ring, got %d", m.Rings)
		}
	case "cylinder":
		if !(m.Height > 0) || m.NTheta < 3 || m.NZ < 1 {
			return dynamo.Configurationf("cylinder needs height > 0, n_theta >= 3 and n_z >= 1")
		}
	case "tetrahedron":
	case "ply":
		if m.File == "" {
			return dynamo.Configurationf("ply mesh generator requires a file")
		}
	default:
		return dynamo.Configurationf("unknown mesh generator %q (want %s)", m.Generator, strings.Join(generators, ", "))
	}
	if m.Generator != "ply" && m.Generator != "tetrahedron" && !(m.Radius > 0) {
		return dynamo.Configurationf("mesh radius must be positive, got %g", m.Radius)
	}
	for _, s := range m.Scale {
		if !(s > 0) {
			return dynamo.Configurationf("mesh scale must be positive, got %v", m.Scale)
		}
	}

	p := c.Parameters
	if p.Bending.Kb < 0 || p.Bending.Kbc < 0 {
		return dynamo.Configurationf("bending rigidity must be non-negative")
	}
	if p.Tension.Ksg < 0 || p.Osmotic.Kv < 0 || p.AreaDifference.Kad < 0 {
		return dynamo.Configurationf("penalty moduli must be non-negative")
	}
	if p.Kst < 0 || p.Ksl < 0 || p.Kse < 0 {
		return dynamo.Configurationf("regularization moduli must be non-negative")
	}
	if !p.Bending.Relation.Valid() {
		return dynamo.Configurationf("unknown bending relation %d", int(p.Bending.Relation))
	}

	if !c.Integrator.Scheme.Valid() {
		return dynamo.Configurationf("unknown scheme %d", int(c.Integrator.Scheme))
	}
	if err := c.Integrator.Options.Validate(); err != nil {
		return err
	}

	mu := c.Mutator
	if mu.MinimumEdgeLength < 0 || mu.TargetFaceArea < 0 || mu.CurvTol < 0 || mu.FlatTolerance < 0 {
		return dynamo.Configurationf("mutator thresholds must be non-negative")
	}
	if mu.IsSmoothenMesh && (!(mu.SmoothingStep > 0) || mu.SmoothingMaxIter < 1) {
		return dynamo.Configurationf("mesh smoothing requires smoothing_step > 0 and smoothing_max_iter >= 1")
	}

	if c.Output.Dir == "" {
		return dynamo.Configurationf("output dir must not be empty")
	}
	if strings.ContainsAny(c.Output.Name, `/\`) {
		return dynamo.Configurationf("output name %q must not contain path separators", c.Output.Name)
	}
	return nil
}

// Geometry builds the initial mesh and embedding.
func (c *Config) Geometry() (*geometry.Geometry, error) {
	m := c.Mesh
	var (
		hm  *mesh.Mesh
		pos []r3.Vec
		err error
	)
	switch m.Generator {
	case "icosphere":
		hm, pos, err = mesh.Icosphere(m.Subdivisions, m.Radius)
	case "hexagon":
		hm, pos, err = mesh.Hexagon(m.Radius, m.Rings)
		if err == nil && m.Dome != 0 {
			for i := range pos {
				r2 := (pos[i].X*pos[i].X + pos[i].Y*pos[i].Y) / (m.Radius * m.Radius)
				pos[i].Z = m.Dome * (1 - r2)
			}
		}
	case "cylinder":
		hm, pos, err = mesh.Cylinder(m.Radius, m.Height, m.NTheta, m.NZ)
	case "tetrahedron":
		hm, pos, err = mesh.Tetrahedron()
	case "ply":
		f, ferr := os.Open(m.File)
		if ferr != nil {
			return nil, ferr
		}
		defer f.Close()
		ply, perr := storage.ReadPLY(f)
		if perr != nil {
			return nil, perr
		}
		hm, err = mesh.FromFaces(len(ply.Positions), ply.Faces)
		pos = ply.Positions
	default:
		return nil, dynamo.Configurationf("unknown mesh generator %q", m.Generator)
	}
	if err != nil {
		return nil, err
	}
	for i := range pos {
		pos[i] = r3.Vec{X: pos[i].X * m.Scale[0], Y: pos[i].Y * m.Scale[1], Z: pos[i].Z * m.Scale[2]}
	}
	return geometry.New(hm, pos)
}

// BuildSystem validates the config and constructs the membrane.
func (c *Config) BuildSystem(logger *log.Logger) (*membrane.System, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	g, err := c.Geometry()
	if err != nil {
		return nil, err
	}
	return c.buildSystem(g, logger)
}

// BuildSystemOn constructs the membrane on an existing geometry, such as
// a stored frame being continued. The mesh section is not used.
func (c *Config) BuildSystemOn(g *geometry.Geometry, logger *log.Logger) (*membrane.System, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c.buildSystem(g, logger)
}

func (c *Config) buildSystem(g *geometry.Geometry, logger *log.Logger) (*membrane.System, error) {
	p := c.Parameters
	p.Protein0 = append([]float64(nil), p.Protein0...)
	p.Point.Position = append([]float64(nil), p.Point.Position...)
	if len(p.Point.Position) == 0 {
		p.Point.Position = nil
	}
	return membrane.NewSystem(g, p, c.Options, c.Mutator, c.Seed, logger)
}

// Build constructs the membrane and an integrator for it.
func (c *Config) Build(logger *log.Logger) (*integrators.Integrator, error) {
	sys, err := c.BuildSystem(logger)
	if err != nil {
		return nil, err
	}
	return c.BuildIntegrator(sys)
}

func (c *Config) BuildIntegrator(sys *membrane.System) (*integrators.Integrator, error) {
	return integrators.New(sys, c.Integrator.Scheme, c.Integrator.Options)
}

// RecorderOptions maps the output section onto the run recorder.
func (c *Config) RecorderOptions() storage.RecorderOptions {
	return storage.RecorderOptions{
		Trajectory: c.Output.Trajectory,
		PLY:        c.Output.PLY,
	}
}
