package hessian

import (
	"errors"
	"math/rand"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/jori-v/fieldlab/internal/dynamo"
)

// matrixOperator materializes Operator for an explicit symmetric matrix.
type matrixOperator struct {
	m *mat.SymDense
}

func (o *matrixOperator) Dim() int { return o.m.SymmetricDim() }

func (o *matrixOperator) Apply(v []float64) ([]float64, error) {
	n := o.Dim()
	if len(v) != n {
		return nil, dynamo.ErrShapeMismatch
	}
	out := make([]float64, n)
	var dst mat.VecDense
	dst.MulVec(o.m, mat.NewVecDense(n, v))
	for i := 0; i < n; i++ {
		out[i] = dst.AtVec(i)
	}
	return out, nil
}

func diagOperator(diag ...float64) *matrixOperator {
	n := len(diag)
	m := mat.NewSymDense(n, nil)
	for i, d := range diag {
		m.SetSym(i, i, d)
	}
	return &matrixOperator{m: m}
}

func randomSymOperator(n int, rng *rand.Rand) *matrixOperator {
	m := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			m.SetSym(i, j, rng.NormFloat64())
		}
	}
	return &matrixOperator{m: m}
}

var _ = Describe("EigenSolver", func() {
	var solver *EigenSolver

	BeforeEach(func() {
		solver = NewEigenSolver(rand.New(rand.NewSource(42)))
	})

	It("recovers the extreme spectrum of a diagonal operator", func() {
		op := diagOperator(5, -3, 2, 1, 0.5, -0.2, 0.1, 0.05)

		values, vectors, err := solver.Solve(op, 3)
		Expect(err).NotTo(HaveOccurred())

		// Largest magnitudes are 5, -3, 2; returned ascending.
		Expect(values).To(HaveLen(3))
		Expect(values[0]).To(BeNumerically("~", -3, 1e-4))
		Expect(values[1]).To(BeNumerically("~", 2, 1e-4))
		Expect(values[2]).To(BeNumerically("~", 5, 1e-4))

		r, c := vectors.Dims()
		Expect(r).To(Equal(3))
		Expect(c).To(Equal(op.Dim()))
	})

	It("returns eigenpairs satisfying Av = lambda v within tolerance", func() {
		rng := rand.New(rand.NewSource(7))
		op := randomSymOperator(30, rng)

		values, vectors, err := solver.Solve(op, 4)
		Expect(err).NotTo(HaveOccurred())

		for i := 0; i < len(values); i++ {
			v := make([]float64, op.Dim())
			mat.Row(v, i, vectors)
			Expect(floats.Norm(v, 2)).To(BeNumerically("~", 1.0, 1e-8))

			av, err := op.Apply(v)
			Expect(err).NotTo(HaveOccurred())
			floats.AddScaled(av, -values[i], v)
			scale := values[i]
			if scale < 0 {
				scale = -scale
			}
			Expect(floats.Norm(av, 2)).To(BeNumerically("<=", solver.Tol*scale+1e-12))
		}

		// Non-decreasing eigenvalue order.
		for i := 1; i < len(values); i++ {
			Expect(values[i]).To(BeNumerically(">=", values[i-1]))
		}
	})

	It("handles k equal to the full dimension", func() {
		op := diagOperator(4, 3, 2, 1)
		values, _, err := solver.Solve(op, 4)
		Expect(err).NotTo(HaveOccurred())
		Expect(values).To(HaveLen(4))
		for i, want := range []float64{1, 2, 3, 4} {
			Expect(values[i]).To(BeNumerically("~", want, 1e-8))
		}
	})

	It("fails loudly when the restart budget is exhausted", func() {
		solver.MaxRestarts = 0
		op := diagOperator(3, 2, 1)

		_, _, err := solver.Solve(op, 2)
		Expect(err).To(MatchError(dynamo.ErrNotConverged))

		var ce *dynamo.ConvergenceError
		Expect(errors.As(err, &ce)).To(BeTrue())
		Expect(ce.Requested).To(Equal(2))
		Expect(ce.Converged).To(BeZero())
	})

	It("rejects out-of-range k", func() {
		op := diagOperator(1, 2)
		_, _, err := solver.Solve(op, 0)
		Expect(err).To(HaveOccurred())
		_, _, err = solver.Solve(op, 3)
		Expect(err).To(HaveOccurred())
	})
})
