package eval

import (
	"math"

	"github.com/jori-v/fieldlab/internal/dynamo"
)

// EnergyDrift measures how far a rollout strays from the conserved
// energy of its initial state: max over the trajectory of
// |E(x_t) - E(x_0)|. The exact pendulum flow keeps this at zero, so
// drift is attributable to the learned field and the integrator.
func EnergyDrift(tr *dynamo.Trajectory, h dynamo.Hamiltonian) float64 {
	if len(tr.States) == 0 {
		return 0
	}
	e0 := h.Energy(tr.States[0])
	drift := 0.0
	for _, x := range tr.States[1:] {
		if !x.IsValid() {
			return math.Inf(1)
		}
		d := math.Abs(h.Energy(x) - e0)
		if d > drift {
			drift = d
		}
	}
	return drift
}
