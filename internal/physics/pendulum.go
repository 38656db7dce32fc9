package physics

import (
	"fmt"
	"math"

	"github.com/jori-v/fieldlab/internal/dynamo"
)

// Pendulum is the undamped planar pendulum theta'' = -(g/L) sin(theta),
// with state (theta, omega). It is both the training-data source (via the
// closed-form Solve) and the ground-truth field for integrator tests.
type Pendulum struct {
	Length  float64
	Gravity float64
}

func NewPendulum() *Pendulum {
	return &Pendulum{
		Length:  1.0,
		Gravity: 9.81,
	}
}

func (p *Pendulum) Dim() int { return 2 }

// Omega0 is the natural frequency sqrt(g/L).
func (p *Pendulum) Omega0() float64 {
	return math.Sqrt(p.Gravity / p.Length)
}

func (p *Pendulum) Derive(x dynamo.State) dynamo.State {
	theta := x[0]
	omega := x[1]
	alpha := -(p.Gravity / p.Length) * math.Sin(theta)
	return dynamo.State{omega, alpha}
}

// Energy per unit mass: KE = 0.5 (L omega)^2, PE = g L (1 - cos theta).
func (p *Pendulum) Energy(x dynamo.State) float64 {
	v := p.Length * x[1]
	ke := 0.5 * v * v
	pe := p.Gravity * p.Length * (1.0 - math.Cos(x[0]))
	return ke + pe
}

// Solve samples the exact libration solution released from rest at angle
// theta0 in (-pi, pi), at uniform spacing dt up to tmax:
//
//	theta(t) = 2 asin(k sn(K(m) - w0 t | m)),  k = sin(theta0/2), m = k^2
//	omega(t) = -2 k w0 cn(K(m) - w0 t | m)
//
// Deterministic given its arguments.
func (p *Pendulum) Solve(tmax, dt, theta0 float64) (*dynamo.Trajectory, error) {
	if dt <= 0 || tmax <= 0 {
		return nil, fmt.Errorf("tmax and dt must be positive, got tmax=%f dt=%f", tmax, dt)
	}
	if math.Abs(theta0) >= math.Pi {
		return nil, fmt.Errorf("theta0 must lie in (-pi, pi) for libration, got %f", theta0)
	}

	sign := 1.0
	if theta0 < 0 {
		sign = -1.0
		theta0 = -theta0
	}

	w0 := p.Omega0()
	k := math.Sin(theta0 / 2)
	m := k * k
	quarterK := completeK(m)

	steps := int(math.Floor(tmax/dt + 1e-9))
	tr := &dynamo.Trajectory{
		States: make([]dynamo.State, 0, steps+1),
		Dt:     dt,
	}
	for i := 0; i <= steps; i++ {
		t := float64(i) * dt
		sn, cn, _ := jacobiSNCN(quarterK-w0*t, m)
		theta := sign * 2 * math.Asin(k*sn)
		omega := sign * -2 * k * w0 * cn
		tr.States = append(tr.States, dynamo.State{theta, omega})
	}
	return tr, nil
}
