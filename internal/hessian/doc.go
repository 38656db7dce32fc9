// Package hessian analyzes the curvature of the training loss around a
// trained field net.
//
// [Oracle] exposes the loss Hessian as an implicit operator through
// double backprop Hessian-vector products over a frozen data subset.
// [EigenSolver] extracts its largest-magnitude eigenpairs by Lanczos
// iteration, querying the oracle one Apply at a time. Neither ever
// materializes the num_params x num_params matrix.
package hessian
