package metrics

import (
	"math"

	"github.com/san-kum/memdyn/internal/dynamo"
)

// EnergyDrift is the largest relative deviation of the total energy from
// its first observed value.
type EnergyDrift struct {
	name          string
	initialEnergy float64
	maxDrift      float64
	samples       int
}

func NewEnergyDrift() *EnergyDrift {
	return &EnergyDrift{name: "energy_drift"}
}

func (e *EnergyDrift) Name() string { return e.name }

func (e *EnergyDrift) Observe(s dynamo.Sample) {
	if e.samples == 0 {
		e.initialEnergy = s.Total
	}
	e.samples++

	if e.initialEnergy != 0 {
		drift := math.Abs(s.Total-e.initialEnergy) / math.Abs(e.initialEnergy)
		e.maxDrift = math.Max(e.maxDrift, drift)
	}
}

func (e *EnergyDrift) Value() float64 { return e.maxDrift }

func (e *EnergyDrift) Reset() {
	e.initialEnergy = 0
	e.maxDrift = 0
	e.samples = 0
}

// MeanKinetic averages the kinetic energy per vertex, a temperature proxy
// for thermal runs.
type MeanKinetic struct {
	name    string
	sum     float64
	samples int
}

func NewMeanKinetic() *MeanKinetic {
	return &MeanKinetic{name: "mean_kinetic"}
}

func (m *MeanKinetic) Name() string { return m.name }

func (m *MeanKinetic) Observe(s dynamo.Sample) {
	if s.Vertices == 0 {
		return
	}
	m.sum += s.Kinetic / float64(s.Vertices)
	m.samples++
}

func (m *MeanKinetic) Value() float64 {
	if m.samples == 0 {
		return 0
	}
	return m.sum / float64(m.samples)
}

func (m *MeanKinetic) Reset() {
	m.sum = 0
	m.samples = 0
}

// Descent is the fraction of steps that did not raise the potential energy.
type Descent struct {
	name      string
	last      float64
	steps     int
	ascending int
}

func NewDescent() *Descent {
	return &Descent{name: "descent"}
}

func (d *Descent) Name() string { return d.name }

func (d *Descent) Observe(s dynamo.Sample) {
	if d.steps > 0 && s.Potential > d.last {
		d.ascending++
	}
	d.last = s.Potential
	d.steps++
}

func (d *Descent) Value() float64 {
	if d.steps <= 1 {
		return 1
	}
	return 1 - float64(d.ascending)/float64(d.steps-1)
}

func (d *Descent) Reset() {
	d.last = 0
	d.steps = 0
	d.ascending = 0
}
