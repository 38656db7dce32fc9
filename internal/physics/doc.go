// Package physics provides the pendulum reference system.
//
// [Pendulum] implements [dynamo.VectorField] for integrator tests and
// exposes the exact elliptic-function libration solution via
// [Pendulum.Solve], the deterministic trajectory source the learning
// pipeline trains against.
package physics
