package integrators

import (
	"context"
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/san-kum/memdyn/internal/dynamo"
	"github.com/san-kum/memdyn/internal/membrane"
)

var _ = Describe("sphere relaxation", func() {
	DescribeTable("monotonically lowers the bending energy of an ellipsoid",
		func(scheme Scheme, dt float64) {
			s, err := sphereSystem(2, 1.3, bending(1), membrane.DefaultOptions(), 1)
			Expect(err).NotTo(HaveOccurred())
			in, err := New(s, scheme, stepOptions(scheme, dt))
			Expect(err).NotTo(HaveOccurred())

			last := s.ComputePotentialEnergy()
			start := last
			for i := 0; i < 25; i++ {
				Expect(in.Step(1)).NotTo(Equal(dynamo.Failed), "step %d: %v", i, in.Err())
				e := s.ComputePotentialEnergy()
				Expect(e).To(BeNumerically("<=", last))
				last = e
			}
			Expect(last).To(BeNumerically("<", start))
			Expect(in.Steps()).To(Equal(25))
			Expect(s.Time).To(BeNumerically(">", 0))
		},
		Entry("euler with backtracking", Euler, 0.01),
		Entry("conjugate gradient", ConjugateGradient, 0.01),
	)
})

var _ = Describe("sphere equilibrium", func() {
	It("keeps a round vesicle in place under bending alone", func() {
		s, err := sphereSystem(2, 1, bending(1), membrane.DefaultOptions(), 1)
		Expect(err).NotTo(HaveOccurred())
		o := stepOptions(Euler, 1e-3)
		o.IsBacktrack = false
		in, err := New(s, Euler, o)
		Expect(err).NotTo(HaveOccurred())

		before := append([]r3.Vec(nil), s.Geometry.Positions()...)
		e0 := s.ComputePotentialEnergy()
		h := s.Geometry.MeanEdgeLength()
		Expect(in.Step(10)).To(Equal(dynamo.Running))

		// Valence-5 vertices carry a residual force of the discretization,
		// so the drift is bounded by the mesh resolution rather than zero.
		moved := 0.0
		for v, p := range s.Geometry.Positions() {
			moved = math.Max(moved, r3.Norm(r3.Sub(p, before[v])))
			Expect(r3.Norm(p)).To(BeNumerically("~", 1, 0.01))
		}
		Expect(moved).To(BeNumerically("<", 0.02*h))
		Expect(s.ComputePotentialEnergy()).To(BeNumerically("<=", e0))
	})
})

var _ = Describe("osmotic deflation", func() {
	It("shrinks a vesicle towards its preferred volume", func() {
		p := bending(0.01)
		p.Osmotic = membrane.Osmotic{Kv: 1, Vt: 0.7}
		s, err := sphereSystem(2, 1, p, membrane.DefaultOptions(), 1)
		Expect(err).NotTo(HaveOccurred())
		in, err := New(s, Euler, stepOptions(Euler, 0.1))
		Expect(err).NotTo(HaveOccurred())

		v0 := s.Volume
		target := s.TargetVolume()
		Expect(target).To(BeNumerically("~", 0.7*v0, 1e-12))

		last := v0
		for i := 0; i < 60; i++ {
			Expect(in.Step(1)).NotTo(Equal(dynamo.Failed))
			Expect(s.Volume).To(BeNumerically("<", last))
			last = s.Volume
		}
		Expect(s.Volume).To(BeNumerically(">", target))
		Expect(s.Volume).To(BeNumerically("<", 0.98*v0))
	})
})

var _ = Describe("velocity verlet", func() {
	It("conserves total energy under the preferred volume penalty", func() {
		s, err := sphereSystem(2, 1, osmoticOnly(0.9), membrane.DefaultOptions(), 1)
		Expect(err).NotTo(HaveOccurred())
		in, err := New(s, VelocityVerlet, stepOptions(VelocityVerlet, 0.005))
		Expect(err).NotTo(HaveOccurred())

		e0 := s.ComputeTotalEnergy()
		Expect(e0).To(BeNumerically(">", 0))
		for i := 0; i < 600; i++ {
			Expect(in.Step(1)).To(Equal(dynamo.Running))
		}
		e := s.ComputeTotalEnergy()
		Expect(s.Energy.Kinetic).To(BeNumerically(">", 0))
		Expect(math.Abs(e-e0) / e0).To(BeNumerically("<", 1e-3))
		Expect(s.Time).To(BeNumerically("~", 3, 1e-9))
	})

	It("reports reaching the end time as success", func() {
		s, err := sphereSystem(1, 1, bending(0.1), membrane.DefaultOptions(), 1)
		Expect(err).NotTo(HaveOccurred())
		o := stepOptions(VelocityVerlet, 0.01)
		o.TotalTime = 0.05
		in, err := New(s, VelocityVerlet, o)
		Expect(err).NotTo(HaveOccurred())
		rec := &memRecorder{}
		in.Recorder = rec

		res := in.Run(context.Background())
		Expect(res.Status).To(Equal(dynamo.TimedOut))
		Expect(res.Success).To(BeTrue())
		Expect(rec.failed).To(BeFalse())
	})
})

var _ = Describe("force mask", func() {
	DescribeTable("keeps pinned boundary vertices in place",
		func(scheme Scheme, dt float64) {
			o := membrane.DefaultOptions()
			o.ShapeBoundary = membrane.ShapeBoundaryPin
			s, err := patchSystem(bending(1), o)
			Expect(err).NotTo(HaveOccurred())
			m := s.Geometry.Mesh()
			before := append([]r3.Vec(nil), s.Geometry.Positions()...)

			in, err := New(s, scheme, stepOptions(scheme, dt))
			Expect(err).NotTo(HaveOccurred())
			Expect(in.Step(10)).NotTo(Equal(dynamo.Failed))

			moved := 0.0
			for v, p := range s.Geometry.Positions() {
				if m.IsBoundaryVertex(v) {
					Expect(p).To(Equal(before[v]))
				} else {
					moved += r3.Norm(r3.Sub(p, before[v]))
				}
			}
			Expect(moved).To(BeNumerically(">", 0))
		},
		Entry("euler", Euler, 1e-3),
		Entry("velocity verlet", VelocityVerlet, 1e-3),
		Entry("conjugate gradient", ConjugateGradient, 1e-3),
	)
})
