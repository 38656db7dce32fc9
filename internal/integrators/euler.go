package integrators

import "github.com/jori-v/fieldlab/internal/dynamo"

type Euler struct{}

func NewEuler() *Euler {
	return &Euler{}
}

func (e *Euler) Step(f dynamo.VectorField, x dynamo.State, dt float64) dynamo.State {
	dx := f.Derive(x)
	result := make(dynamo.State, len(x))
	for i := range x {
		result[i] = x[i] + dt*dx[i]
	}
	return result
}
