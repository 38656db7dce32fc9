package hessian

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/jori-v/fieldlab/internal/dynamo"
)

// EigenSolver extracts the k largest-magnitude eigenpairs of a symmetric
// implicit operator by Lanczos iteration with full reorthogonalization,
// deflation of converged pairs, and restarts.
type EigenSolver struct {
	// Tol is the relative residual tolerance ||Av - lambda v|| <= Tol*|lambda|.
	Tol float64
	// MaxRestarts bounds the Lanczos sweeps; exhausting it is a
	// convergence failure, never a silent partial result.
	MaxRestarts int
	// SubspaceDim is the Krylov basis size per sweep; 0 picks a default
	// from k and the operator dimension.
	SubspaceDim int

	rng *rand.Rand
}

// NewEigenSolver returns a solver with the default tolerance (1e-3) and
// restart budget, drawing start vectors from rng.
func NewEigenSolver(rng *rand.Rand) *EigenSolver {
	return &EigenSolver{
		Tol:         1e-3,
		MaxRestarts: 100,
		rng:         rng,
	}
}

// Solve returns k eigenvalues sorted ascending and the matching
// eigenvectors as rows of a k x n matrix. Every pair satisfies the
// residual tolerance; anything less within the restart budget surfaces
// as a ConvergenceError.
func (s *EigenSolver) Solve(op Operator, k int) ([]float64, *mat.Dense, error) {
	n := op.Dim()
	if k <= 0 || k > n {
		return nil, nil, fmt.Errorf("k must lie in [1,%d], got %d", n, k)
	}

	m := s.SubspaceDim
	if m <= 0 {
		m = 2*k + 8
		if m < 20 {
			m = 20
		}
	}
	if m > n {
		m = n
	}

	var (
		values   []float64
		vectors  [][]float64
		start    = s.randomUnit(n)
		lastRes  float64
		restarts int
	)

	for restarts = 0; restarts < s.MaxRestarts && len(values) < k; restarts++ {
		s.deflate(start, vectors)
		if floats.Norm(start, 2) < 1e-12 {
			start = s.randomUnit(n)
			s.deflate(start, vectors)
		}
		normalize(start)

		basis, alphas, betas, err := s.sweep(op, start, m, vectors)
		if err != nil {
			return nil, nil, err
		}
		steps := len(alphas)
		if steps == 0 {
			start = s.randomUnit(n)
			continue
		}

		// Ritz pairs of the tridiagonal projection.
		t := mat.NewSymDense(steps, nil)
		for i := 0; i < steps; i++ {
			t.SetSym(i, i, alphas[i])
			if i+1 < steps {
				t.SetSym(i, i+1, betas[i])
			}
		}
		var es mat.EigenSym
		if !es.Factorize(t, true) {
			return nil, nil, fmt.Errorf("tridiagonal eigendecomposition failed at restart %d", restarts)
		}
		ritz := es.Values(nil)
		var y mat.Dense
		es.VectorsTo(&y)

		// Walk candidates from largest magnitude down, accepting pairs
		// that pass the exact residual test.
		order := make([]int, steps)
		for i := range order {
			order[i] = i
		}
		sort.Slice(order, func(a, b int) bool {
			return math.Abs(ritz[order[a]]) > math.Abs(ritz[order[b]])
		})

		var nextStart []float64
		for _, ci := range order {
			if len(values) >= k {
				break
			}
			z := ritzVector(basis, &y, ci)
			s.deflate(z, vectors)
			if floats.Norm(z, 2) < 1e-12 {
				continue
			}
			normalize(z)

			az, err := op.Apply(z)
			if err != nil {
				return nil, nil, err
			}
			lambda := floats.Dot(z, az)
			floats.AddScaled(az, -lambda, z)
			res := floats.Norm(az, 2)
			lastRes = res

			if res <= s.Tol*math.Max(math.Abs(lambda), 1e-12) {
				values = append(values, lambda)
				vectors = append(vectors, z)
			} else if nextStart == nil {
				nextStart = z
			}
		}

		if nextStart != nil {
			start = nextStart
		} else {
			start = s.randomUnit(n)
		}
	}

	if len(values) < k {
		return nil, nil, &dynamo.ConvergenceError{
			Converged: len(values),
			Requested: k,
			Restarts:  restarts,
			Residual:  lastRes,
		}
	}

	// Sort ascending, one eigenvector per row.
	idx := make([]int, k)
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool { return values[idx[a]] < values[idx[b]] })

	sorted := make([]float64, k)
	rows := mat.NewDense(k, n, nil)
	for r, i := range idx {
		sorted[r] = values[i]
		rows.SetRow(r, vectors[i])
	}
	return sorted, rows, nil
}

// sweep runs up to m Lanczos steps from the unit start vector, deflating
// against converged eigenvectors and fully reorthogonalizing the basis.
// It returns the basis vectors and the tridiagonal coefficients; betas[i]
// couples steps i and i+1.
func (s *EigenSolver) sweep(op Operator, start []float64, m int, deflated [][]float64) (basis [][]float64, alphas, betas []float64, err error) {
	n := len(start)
	v := make([]float64, n)
	copy(v, start)
	basis = append(basis, v)

	for j := 0; j < m; j++ {
		w, err := op.Apply(basis[j])
		if err != nil {
			return nil, nil, nil, err
		}
		s.deflate(w, deflated)

		alpha := floats.Dot(basis[j], w)
		alphas = append(alphas, alpha)

		floats.AddScaled(w, -alpha, basis[j])
		if j > 0 {
			floats.AddScaled(w, -betas[j-1], basis[j-1])
		}
		// Full reorthogonalization keeps the basis numerically orthogonal
		// even after many steps.
		for _, b := range basis {
			floats.AddScaled(w, -floats.Dot(b, w), b)
		}

		beta := floats.Norm(w, 2)
		if beta < 1e-12 || j == m-1 {
			break
		}
		betas = append(betas, beta)
		floats.Scale(1/beta, w)
		basis = append(basis, w)
	}
	return basis, alphas, betas, nil
}

func (s *EigenSolver) deflate(v []float64, vectors [][]float64) {
	for _, u := range vectors {
		floats.AddScaled(v, -floats.Dot(u, v), u)
	}
}

func (s *EigenSolver) randomUnit(n int) []float64 {
	v := make([]float64, n)
	for i := range v {
		v[i] = s.rng.NormFloat64()
	}
	normalize(v)
	return v
}

func ritzVector(basis [][]float64, y *mat.Dense, col int) []float64 {
	n := len(basis[0])
	z := make([]float64, n)
	for j, b := range basis {
		floats.AddScaled(z, y.At(j, col), b)
	}
	return z
}

func normalize(v []float64) {
	if n := floats.Norm(v, 2); n > 0 {
		floats.Scale(1/n, v)
	}
}
