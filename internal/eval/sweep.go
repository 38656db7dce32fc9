package eval

import (
	"errors"
	"fmt"
	"math"

	"github.com/jori-v/fieldlab/internal/dynamo"
	"github.com/jori-v/fieldlab/internal/integrators"
	"github.com/jori-v/fieldlab/internal/physics"
)

// Point is one entry of a consistency curve: the mean squared Euclidean
// error between a model rollout and the reference trajectory at a given
// step size. Diverged marks runs where the rollout left float range; the
// error value is +Inf in that case.
type Point struct {
	Dt       float64
	Error    float64
	Drift    float64 // max energy drift of the rollout
	Diverged bool
}

// SweepConfig describes a consistency sweep against the pendulum
// reference solution.
type SweepConfig struct {
	Scheme integrators.Scheme
	Dts    []float64
	TMax   float64
	Theta0 float64
}

func (c SweepConfig) validate() error {
	if len(c.Dts) == 0 {
		return fmt.Errorf("sweep: no step sizes given")
	}
	for _, dt := range c.Dts {
		if dt <= 0 {
			return fmt.Errorf("sweep: dt must be positive, got %g", dt)
		}
	}
	if c.TMax <= 0 {
		return fmt.Errorf("sweep: tmax must be positive, got %g", c.TMax)
	}
	return nil
}

// Consistency rolls the learned field out over each step size and scores
// it against a fresh reference trajectory sampled on the same grid. One
// point per dt; a diverged rollout is reported in its point rather than
// aborting the rest of the sweep.
func Consistency(f dynamo.VectorField, p *physics.Pendulum, cfg SweepConfig) ([]Point, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	points := make([]Point, 0, len(cfg.Dts))
	for _, dt := range cfg.Dts {
		ref, err := p.Solve(cfg.TMax, dt, cfg.Theta0)
		if err != nil {
			return nil, fmt.Errorf("sweep: reference at dt=%g: %w", dt, err)
		}

		ic := integrators.Config{Scheme: cfg.Scheme, Dt: dt}
		roll, err := ic.Rollout(f, ref.States[0], len(ref.States)-1)
		if err != nil {
			if errors.Is(err, dynamo.ErrDiverged) {
				points = append(points, Point{Dt: dt, Error: math.Inf(1), Drift: math.Inf(1), Diverged: true})
				continue
			}
			return nil, fmt.Errorf("sweep: rollout at dt=%g: %w", dt, err)
		}

		points = append(points, Point{
			Dt:    dt,
			Error: meanSquaredError(roll, ref),
			Drift: EnergyDrift(roll, p),
		})
	}
	return points, nil
}

func meanSquaredError(got, want *dynamo.Trajectory) float64 {
	n := len(got.States)
	if len(want.States) < n {
		n = len(want.States)
	}
	sum := 0.0
	for i := 0; i < n; i++ {
		d := got.States[i].Sub(want.States[i])
		for _, v := range d {
			sum += v * v
		}
	}
	return sum / float64(n)
}
