package dynamo

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/spatial/r3"
)

// Field is a per-vertex scalar quantity.
type Field []float64

func (f Field) Clone() Field {
	c := make(Field, len(f))
	copy(c, f)
	return c
}

func (f Field) IsValid() bool {
	return !floats.HasNaN(f) && !hasInf(f)
}

func (f Field) Norm() float64 {
	if len(f) == 0 {
		return 0
	}
	return floats.Norm(f, 2)
}

func (f Field) MaxAbs() float64 {
	m := 0.0
	for _, v := range f {
		m = math.Max(m, math.Abs(v))
	}
	return m
}

// Resize returns f grown or truncated to n entries, padding with fill.
func (f Field) Resize(n int, fill float64) Field {
	out := make(Field, n)
	copy(out, f)
	for i := len(f); i < n; i++ {
		out[i] = fill
	}
	return out
}

// VectorField is a per-vertex vector quantity.
type VectorField []r3.Vec

func NewVectorField(n int) VectorField {
	return make(VectorField, n)
}

func (f VectorField) Clone() VectorField {
	c := make(VectorField, len(f))
	copy(c, f)
	return c
}

func (f VectorField) IsValid() bool {
	for _, v := range f {
		if !finite(v.X) || !finite(v.Y) || !finite(v.Z) {
			return false
		}
	}
	return true
}

// Norm is the L2 norm over all components.
func (f VectorField) Norm() float64 {
	return math.Sqrt(f.Dot(f))
}

func (f VectorField) Dot(other VectorField) float64 {
	sum := 0.0
	for i := range f {
		sum += r3.Dot(f[i], other[i])
	}
	return sum
}

// MaxAbs returns the largest absolute component.
func (f VectorField) MaxAbs() float64 {
	m := 0.0
	for _, v := range f {
		m = math.Max(m, math.Max(math.Abs(v.X), math.Max(math.Abs(v.Y), math.Abs(v.Z))))
	}
	return m
}

// AddScaled sets f[i] += alpha*other[i].
func (f VectorField) AddScaled(alpha float64, other VectorField) {
	for i := range f {
		f[i] = r3.Add(f[i], r3.Scale(alpha, other[i]))
	}
}

// Fill sets every entry to v.
func (f VectorField) Fill(v r3.Vec) {
	for i := range f {
		f[i] = v
	}
}

func (f VectorField) Add(other VectorField) {
	for i := range f {
		f[i] = r3.Add(f[i], other[i])
	}
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func hasInf(s []float64) bool {
	for _, v := range s {
		if math.IsInf(v, 0) {
			return true
		}
	}
	return false
}

// Status is the state of an integration run.
type Status int

const (
	Running Status = iota
	Converged
	TimedOut
	Failed
)

func (s Status) String() string {
	switch s {
	case Running:
		return "running"
	case Converged:
		return "converged"
	case TimedOut:
		return "timed_out"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s != Running
}

// Sample is a snapshot of the scalar diagnostics of a run.
type Sample struct {
	Time          float64
	Step          int
	Total         float64
	Kinetic       float64
	Potential     float64
	Terms         map[string]float64
	MechErrorNorm float64
	ChemErrorNorm float64
	Area          float64
	Volume        float64
	Vertices      int
}

type Metric interface {
	Name() string
	Observe(s Sample)
	Value() float64
	Reset()
}

type Observer interface {
	OnSample(s Sample)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(Sample)

func (f ObserverFunc) OnSample(s Sample) { f(s) }

// Result summarises a finished run.
type Result struct {
	Status  Status
	Success bool
	Time    float64
	Steps   int
	Final   Sample
	Metrics map[string]float64
	Err     error
}
