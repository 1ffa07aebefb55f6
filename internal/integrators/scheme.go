package integrators

import (
	"fmt"
	"strings"
)

// Scheme selects the time stepping rule of an Integrator.
type Scheme int

const (
	// Euler is forward Euler gradient flow with optional backtracking.
	Euler Scheme = iota
	// VelocityVerlet integrates Newtonian dynamics with unit vertex mass.
	VelocityVerlet
	// ConjugateGradient minimizes the potential energy with Polak-Ribière+
	// directions and a backtracking line search.
	ConjugateGradient
)

var schemeNames = [...]string{"euler", "velocity_verlet", "conjugate_gradient"}

func (s Scheme) String() string {
	if s < 0 || int(s) >= len(schemeNames) {
		return fmt.Sprintf("Scheme(%d)", int(s))
	}
	return schemeNames[s]
}

func (s Scheme) Valid() bool { return s >= Euler && s <= ConjugateGradient }

// Dynamic reports whether the scheme follows physical time rather than
// descending the energy, so that reaching the end time is a success.
func (s Scheme) Dynamic() bool { return s == VelocityVerlet }

func (s Scheme) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid scheme %d", int(s))
	}
	return []byte(s.String()), nil
}

func (s *Scheme) UnmarshalText(text []byte) error {
	p, err := ParseScheme(string(text))
	if err != nil {
		return err
	}
	*s = p
	return nil
}

// ParseScheme accepts the canonical names plus the short aliases euler,
// verlet, vv, cg.
func ParseScheme(name string) (Scheme, error) {
	switch strings.ToLower(strings.ReplaceAll(name, "-", "_")) {
	case "euler":
		return Euler, nil
	case "velocity_verlet", "verlet", "vv":
		return VelocityVerlet, nil
	case "conjugate_gradient", "cg":
		return ConjugateGradient, nil
	}
	return 0, fmt.Errorf("unknown scheme %q (want euler, velocity_verlet or conjugate_gradient)", name)
}

// Schemes lists every scheme in declaration order.
func Schemes() []Scheme {
	return []Scheme{Euler, VelocityVerlet, ConjugateGradient}
}
