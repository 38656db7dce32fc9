package dynamo

import "math"

type State []float64

func (s State) Clone() State {
	c := make(State, len(s))
	copy(c, s)
	return c
}

func (s State) IsValid() bool {
	for _, v := range s {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func (s State) Norm() float64 {
	sum := 0.0
	for _, v := range s {
		sum += v * v
	}
	return math.Sqrt(sum)
}

func (s State) Sub(other State) State {
	result := make(State, len(s))
	for i := range s {
		if i < len(other) {
			result[i] = s[i] - other[i]
		} else {
			result[i] = s[i]
		}
	}
	return result
}

func (s State) Scale(factor float64) State {
	result := make(State, len(s))
	for i := range s {
		result[i] = s[i] * factor
	}
	return result
}

// VectorField estimates the time derivative of a state. Both analytic
// systems and learned models implement it.
type VectorField interface {
	Derive(x State) State
	Dim() int
}

// Hamiltonian is implemented by systems with a conserved energy.
type Hamiltonian interface {
	Energy(x State) float64
}

// Trajectory is an ordered sequence of states sampled at a uniform timestep.
type Trajectory struct {
	States []State
	Dt     float64
}

func (tr *Trajectory) Len() int { return len(tr.States) }
