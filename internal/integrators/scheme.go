package integrators

import (
	"fmt"

	"github.com/jori-v/fieldlab/internal/ad"
	"github.com/jori-v/fieldlab/internal/dynamo"
)

// Scheme identifies one of the supported explicit fixed-step schemes.
type Scheme int

const (
	SchemeEuler Scheme = iota
	SchemeRK4
)

func (s Scheme) String() string {
	switch s {
	case SchemeEuler:
		return "euler"
	case SchemeRK4:
		return "rk4"
	default:
		return "unknown"
	}
}

func ParseScheme(name string) (Scheme, error) {
	switch name {
	case "euler":
		return SchemeEuler, nil
	case "rk4":
		return SchemeRK4, nil
	default:
		return 0, fmt.Errorf("unknown integrator scheme: %s", name)
	}
}

// Config is an immutable (scheme, dt) pair. It is passed by value into
// every step and rollout call; nothing stores integrator state on the
// model, so the same model can be evaluated under different configs.
type Config struct {
	Scheme Scheme
	Dt     float64
}

func (c Config) Validate() error {
	if c.Dt <= 0 {
		return fmt.Errorf("dt must be positive, got %f", c.Dt)
	}
	return nil
}

// Integrator advances a state by one fixed time increment using
// vector-field evaluations.
type Integrator interface {
	Step(f dynamo.VectorField, x dynamo.State, dt float64) dynamo.State
}

// New returns a fresh integrator instance for the config's scheme.
func (c Config) New() Integrator {
	if c.Scheme == SchemeEuler {
		return NewEuler()
	}
	return NewRK4()
}

// StepNode advances a batch node (rows are states) one step in graph
// space, so gradients flow through every field evaluation of the scheme.
// f must reuse the same parameter leaves across its invocations.
func (c Config) StepNode(f func(*ad.Node) *ad.Node, x *ad.Node) *ad.Node {
	if c.Scheme == SchemeEuler {
		return ad.Add(x, ad.Scale(c.Dt, f(x)))
	}
	k1 := f(x)
	k2 := f(ad.Add(x, ad.Scale(c.Dt/2, k1)))
	k3 := f(ad.Add(x, ad.Scale(c.Dt/2, k2)))
	k4 := f(ad.Add(x, ad.Scale(c.Dt, k3)))
	incr := ad.Add(
		ad.Add(ad.Scale(1.0/6.0, k1), ad.Scale(1.0/3.0, k2)),
		ad.Add(ad.Scale(1.0/3.0, k3), ad.Scale(1.0/6.0, k4)),
	)
	return ad.Add(x, ad.Scale(c.Dt, incr))
}

// Rollout advances x0 through the given number of fixed steps, returning
// the trajectory including x0. A non-finite state aborts the rollout with
// a DivergenceError.
func (c Config) Rollout(f dynamo.VectorField, x0 dynamo.State, steps int) (*dynamo.Trajectory, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	integ := c.New()
	tr := &dynamo.Trajectory{
		States: make([]dynamo.State, 0, steps+1),
		Dt:     c.Dt,
	}
	x := x0.Clone()
	tr.States = append(tr.States, x.Clone())

	for i := 0; i < steps; i++ {
		x = integ.Step(f, x, c.Dt)
		if !x.IsValid() {
			return tr, &dynamo.DivergenceError{Where: "rollout", Time: float64(i+1) * c.Dt}
		}
		tr.States = append(tr.States, x.Clone())
	}
	return tr, nil
}
