package integrators

import (
	"github.com/san-kum/memdyn/internal/geometry"
	"github.com/san-kum/memdyn/internal/membrane"
	"github.com/san-kum/memdyn/internal/mesh"
	"github.com/san-kum/memdyn/internal/remesh"
)

func sphereSystem(sub int, stretch float64, p membrane.Parameters, o membrane.Options, seed uint64) (*membrane.System, error) {
	m, pos, err := mesh.Icosphere(sub, 1)
	if err != nil {
		return nil, err
	}
	for i := range pos {
		pos[i].Z *= stretch
	}
	g, err := geometry.New(m, pos)
	if err != nil {
		return nil, err
	}
	return membrane.NewSystem(g, p, o, remesh.DefaultMutator(), seed, nil)
}

func patchSystem(p membrane.Parameters, o membrane.Options) (*membrane.System, error) {
	m, pos, err := mesh.Hexagon(1, 4)
	if err != nil {
		return nil, err
	}
	for i := range pos {
		pos[i].Z = 0.05 * (1 - pos[i].X*pos[i].X - pos[i].Y*pos[i].Y)
	}
	g, err := geometry.New(m, pos)
	if err != nil {
		return nil, err
	}
	return membrane.NewSystem(g, p, o, remesh.DefaultMutator(), 1, nil)
}

func bending(kb float64) membrane.Parameters {
	p := membrane.DefaultParameters()
	p.Bending.Kb = kb
	return p
}

// osmoticOnly has the preferred volume penalty as its only energy.
func osmoticOnly(vt float64) membrane.Parameters {
	p := membrane.DefaultParameters()
	p.Bending.Kb = 0
	p.Osmotic = membrane.Osmotic{Kv: 1, Vt: vt}
	return p
}

func stepOptions(scheme Scheme, dt float64) Options {
	o := DefaultOptions(scheme)
	o.TimeStep = dt
	o.TotalTime = 1e6
	o.SavePeriod = 1e6
	o.Tolerance = 0
	return o
}

type memRecorder struct {
	frames []int
	times  []float64
	failed bool
}

func (r *memRecorder) Save(s *membrane.System, frame int) error {
	r.frames = append(r.frames, frame)
	r.times = append(r.times, s.Time)
	return nil
}

func (r *memRecorder) MarkFailed() error {
	r.failed = true
	return nil
}
