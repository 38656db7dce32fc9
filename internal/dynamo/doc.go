// Package dynamo provides the core primitives shared by the training and
// curvature-analysis pipelines:
//
//   - [State]: vector representing system state
//   - [VectorField]: interface for dX/dt = f(X), analytic or learned
//   - [Trajectory]: uniformly sampled state sequence
//   - domain errors (shape mismatch, divergence, convergence failure)
//
// The error values are sentinels; callers distinguish failure kinds with
// errors.Is rather than string matching.
package dynamo
