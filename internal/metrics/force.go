package metrics

import (
	"math"

	"github.com/san-kum/memdyn/internal/dynamo"
)

// ForceNorm reports the most recent mechanical error norm relative to the
// first one observed.
type ForceNorm struct {
	name    string
	initial float64
	current float64
	samples int
}

func NewForceNorm() *ForceNorm {
	return &ForceNorm{name: "force_norm_ratio"}
}

func (f *ForceNorm) Name() string { return f.name }

func (f *ForceNorm) Observe(s dynamo.Sample) {
	if f.samples == 0 {
		f.initial = s.MechErrorNorm
	}
	f.current = s.MechErrorNorm
	f.samples++
}

func (f *ForceNorm) Value() float64 {
	if f.initial == 0 {
		return 0
	}
	return f.current / f.initial
}

func (f *ForceNorm) Reset() {
	f.initial = 0
	f.current = 0
	f.samples = 0
}

// ConstraintError is the larger of the last relative area and volume
// deviations from their targets. A non-positive target is ignored.
type ConstraintError struct {
	name         string
	targetArea   float64
	targetVolume float64
	value        float64
}

func NewConstraintError(targetArea, targetVolume float64) *ConstraintError {
	return &ConstraintError{
		name:         "constraint_error",
		targetArea:   targetArea,
		targetVolume: targetVolume,
	}
}

func (c *ConstraintError) Name() string { return c.name }

func (c *ConstraintError) Observe(s dynamo.Sample) {
	c.value = 0
	if c.targetArea > 0 {
		c.value = math.Abs(s.Area/c.targetArea - 1)
	}
	if c.targetVolume > 0 {
		c.value = math.Max(c.value, math.Abs(s.Volume/c.targetVolume-1))
	}
}

func (c *ConstraintError) Value() float64 { return c.value }

func (c *ConstraintError) Reset() { c.value = 0 }
