package membrane

import (
	"fmt"
	"strings"
)

// Relation maps protein density to spontaneous curvature and rigidity.
type Relation int

const (
	RelationLinear Relation = iota
	RelationHill
)

func (r Relation) String() string {
	switch r {
	case RelationLinear:
		return "linear"
	case RelationHill:
		return "hill"
	}
	return fmt.Sprintf("Relation(%d)", int(r))
}

func (r Relation) Valid() bool { return r == RelationLinear || r == RelationHill }

func (r Relation) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("invalid relation %d", int(r))
	}
	return []byte(r.String()), nil
}

func (r *Relation) UnmarshalText(b []byte) error {
	switch strings.ToLower(string(b)) {
	case "linear":
		*r = RelationLinear
	case "hill":
		*r = RelationHill
	default:
		return fmt.Errorf("unknown relation %q (want linear or hill)", b)
	}
	return nil
}

// ShapeBoundary selects how boundary vertices of an open mesh may move.
type ShapeBoundary int

const (
	ShapeBoundaryNone ShapeBoundary = iota
	// ShapeBoundaryRoller lets boundary vertices slide in the xy plane.
	ShapeBoundaryRoller
	// ShapeBoundaryPin holds boundary vertices in place.
	ShapeBoundaryPin
	// ShapeBoundaryFixed holds boundary vertices and their one-ring in place.
	ShapeBoundaryFixed
)

var shapeBoundaryNames = [...]string{"none", "roller", "pin", "fixed"}

func (b ShapeBoundary) String() string {
	if b < 0 || int(b) >= len(shapeBoundaryNames) {
		return fmt.Sprintf("ShapeBoundary(%d)", int(b))
	}
	return shapeBoundaryNames[b]
}

func (b ShapeBoundary) MarshalText() ([]byte, error) { return []byte(b.String()), nil }

func (b *ShapeBoundary) UnmarshalText(text []byte) error {
	for i, n := range shapeBoundaryNames {
		if strings.EqualFold(n, string(text)) {
			*b = ShapeBoundary(i)
			return nil
		}
	}
	return fmt.Errorf("unknown shape boundary condition %q (want none, roller, pin or fixed)", text)
}

// ProteinBoundary selects whether boundary protein density is held fixed.
type ProteinBoundary int

const (
	ProteinBoundaryNone ProteinBoundary = iota
	ProteinBoundaryPin
)

func (b ProteinBoundary) String() string {
	switch b {
	case ProteinBoundaryNone:
		return "none"
	case ProteinBoundaryPin:
		return "pin"
	}
	return fmt.Sprintf("ProteinBoundary(%d)", int(b))
}

func (b ProteinBoundary) MarshalText() ([]byte, error) { return []byte(b.String()), nil }

func (b *ProteinBoundary) UnmarshalText(text []byte) error {
	switch strings.ToLower(string(text)) {
	case "none":
		*b = ProteinBoundaryNone
	case "pin":
		*b = ProteinBoundaryPin
	default:
		return fmt.Errorf("unknown protein boundary condition %q (want none or pin)", text)
	}
	return nil
}

type Bending struct {
	Kb       float64  `yaml:"kb"`
	Kbc      float64  `yaml:"kbc"`
	H0c      float64  `yaml:"h0c"`
	Relation Relation `yaml:"relation"`
}

type Deviatoric struct {
	Kd  float64 `yaml:"kd"`
	Kdc float64 `yaml:"kdc"`
}

type Tension struct {
	Ksg  float64 `yaml:"ksg"`
	ARes float64 `yaml:"a_res"`
}

type Osmotic struct {
	Kv   float64 `yaml:"kv"`
	Vt   float64 `yaml:"vt"`
	Cam  float64 `yaml:"cam"`
	VRes float64 `yaml:"v_res"`
	N    float64 `yaml:"n"`
}

// AreaDifference penalises the integrated mean curvature M = Σ H·A away
// from DA0.
type AreaDifference struct {
	Kad float64 `yaml:"kad"`
	DA0 float64 `yaml:"da0"`
}

type Adsorption struct {
	Epsilon float64 `yaml:"epsilon"`
}

type Aggregation struct {
	Chi float64 `yaml:"chi"`
}

type Entropy struct {
	Xi float64 `yaml:"xi"`
}

type Dirichlet struct {
	Eta float64 `yaml:"eta"`
}

// SelfAvoidance repels vertex pairs closer than Cutoff that are more than
// Layer rings apart.
type SelfAvoidance struct {
	Mu     float64 `yaml:"mu"`
	D      float64 `yaml:"d"`
	Cutoff float64 `yaml:"cutoff"`
	Layer  int     `yaml:"layer"`
}

type External struct {
	Kf     float64 `yaml:"kf"`
	Conc   float64 `yaml:"conc"`
	Height float64 `yaml:"height"`
}

type DPD struct {
	Gamma float64 `yaml:"gamma"`
}

// Point locates the distinguished center. Position, when given, holds xy
// or xyz coordinates and overrides Index.
type Point struct {
	Index         int       `yaml:"index"`
	Position      []float64 `yaml:"position,omitempty"`
	IsFloatVertex bool      `yaml:"float_vertex"`
}

// Parameters is the physical coefficient set of a run.
type Parameters struct {
	Bending        Bending        `yaml:"bending"`
	Deviatoric     Deviatoric     `yaml:"deviatoric"`
	Tension        Tension        `yaml:"tension"`
	Osmotic        Osmotic        `yaml:"osmotic"`
	AreaDifference AreaDifference `yaml:"area_difference"`
	Adsorption     Adsorption     `yaml:"adsorption"`
	Aggregation    Aggregation    `yaml:"aggregation"`
	Entropy        Entropy        `yaml:"entropy"`
	Dirichlet      Dirichlet      `yaml:"dirichlet"`
	SelfAvoidance  SelfAvoidance  `yaml:"self_avoidance"`
	External       External       `yaml:"external"`
	DPD            DPD            `yaml:"dpd"`
	Point          Point          `yaml:"point"`

	Kst float64 `yaml:"kst"`
	Ksl float64 `yaml:"ksl"`
	Kse float64 `yaml:"kse"`
	Bc  float64 `yaml:"bc"`

	Temp      float64 `yaml:"temp"`
	Radius    float64 `yaml:"radius"`
	LambdaSG  float64 `yaml:"lambda_sg"`
	LambdaV   float64 `yaml:"lambda_v"`
	LambdaPhi float64 `yaml:"lambda_phi"`
	Sharpness float64 `yaml:"sharpness"`

	// Protein0 is the initial protein density: one uniform value, a
	// [radius, inside, outside] geodesic disk, or one value per vertex.
	Protein0 []float64 `yaml:"protein0"`
}

func DefaultParameters() Parameters {
	return Parameters{
		Bending:       Bending{Kb: 8.22e-5, Relation: RelationLinear},
		Osmotic:       Osmotic{Vt: 1},
		SelfAvoidance: SelfAvoidance{Layer: 2},
		Bc:            1,
		Radius:        -1,
		LambdaPhi:     1e-9,
		Sharpness:     20,
		Protein0:      []float64{1},
	}
}

type Options struct {
	IsProteinVariation        bool `yaml:"protein_variation"`
	IsShapeVariation          bool `yaml:"shape_variation"`
	IsPreferredVolume         bool `yaml:"preferred_volume"`
	IsConstantOsmoticPressure bool `yaml:"constant_osmotic_pressure"`
	IsConstantSurfaceTension  bool `yaml:"constant_surface_tension"`
	IsVertexShift             bool `yaml:"vertex_shift"`
	IsEdgeFlip                bool `yaml:"edge_flip"`
	IsSplitEdge               bool `yaml:"split_edge"`
	IsCollapseEdge            bool `yaml:"collapse_edge"`

	ShapeBoundary   ShapeBoundary   `yaml:"shape_boundary"`
	ProteinBoundary ProteinBoundary `yaml:"protein_boundary"`
}

func DefaultOptions() Options {
	return Options{IsShapeVariation: true, IsPreferredVolume: true}
}

// IsMeshMutate reports whether any connectivity change is enabled.
func (o Options) IsMeshMutate() bool {
	return o.IsEdgeFlip || o.IsSplitEdge || o.IsCollapseEdge
}
