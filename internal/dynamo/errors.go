package dynamo

import (
	"errors"
	"fmt"
)

// Domain errors shared across training and curvature analysis.
var (
	// ErrShapeMismatch indicates a vector whose length disagrees with the
	// flattened parameter count.
	ErrShapeMismatch = errors.New("fieldlab: vector length does not match parameter count")

	// ErrDiverged indicates a non-finite state, loss, or parameter value.
	ErrDiverged = errors.New("fieldlab: numerical divergence (NaN or Inf detected)")

	// ErrNotConverged indicates the eigensolver exhausted its iteration
	// budget before reaching the requested tolerance.
	ErrNotConverged = errors.New("fieldlab: eigensolver did not converge within iteration budget")

	// ErrDataExhausted indicates a batch source yielded fewer batches than
	// a frozen subset requested.
	ErrDataExhausted = errors.New("fieldlab: batch source exhausted before requested subset was collected")
)

// DivergenceError wraps ErrDiverged with the location of the blow-up.
type DivergenceError struct {
	Epoch int
	Batch int
	Time  float64
	Where string
}

func (e *DivergenceError) Error() string {
	if e.Where == "rollout" {
		return fmt.Sprintf("rollout diverged at t=%.4f: %v", e.Time, ErrDiverged)
	}
	return fmt.Sprintf("%s diverged at epoch %d batch %d: %v", e.Where, e.Epoch, e.Batch, ErrDiverged)
}

func (e *DivergenceError) Unwrap() error { return ErrDiverged }

// ConvergenceError wraps ErrNotConverged with solver progress.
type ConvergenceError struct {
	Converged int
	Requested int
	Restarts  int
	Residual  float64
}

func (e *ConvergenceError) Error() string {
	return fmt.Sprintf("converged %d of %d eigenpairs after %d restarts (last residual %.3e): %v",
		e.Converged, e.Requested, e.Restarts, e.Residual, ErrNotConverged)
}

func (e *ConvergenceError) Unwrap() error { return ErrNotConverged }
