package hessian

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/jori-v/fieldlab/internal/data"
	"github.com/jori-v/fieldlab/internal/dynamo"
	"github.com/jori-v/fieldlab/internal/integrators"
	"github.com/jori-v/fieldlab/internal/model"
	"github.com/jori-v/fieldlab/internal/physics"
)

func testOracle(t *testing.T, names ...string) (*Oracle, *rand.Rand) {
	t.Helper()
	rng := rand.New(rand.NewSource(17))

	p := physics.NewPendulum()
	tr, err := p.Solve(2.0, 0.05, 0.9)
	require.NoError(t, err)

	src, err := data.NewHeldOut(tr, 8)
	require.NoError(t, err)

	net := model.New(2, 4, model.Tanh, rng)
	cfg := integrators.Config{Scheme: integrators.SchemeRK4, Dt: 0.05}

	o, err := NewOracle(net, cfg, src, 3, names...)
	require.NoError(t, err)
	return o, rng
}

func randomVec(n int, rng *rand.Rand) []float64 {
	v := make([]float64, n)
	for i := range v {
		v[i] = rng.NormFloat64()
	}
	return v
}

func TestOracleSubsetSize(t *testing.T) {
	o, _ := testOracle(t)
	// 3 batches of 8 pairs each.
	assert.Equal(t, 24, o.SubsetSize())
	// w1(2x4) + b1(4) + w2(4x2) + b2(2)
	assert.Equal(t, 22, o.Dim())
}

func TestApplyIsDeterministic(t *testing.T) {
	o, rng := testOracle(t)
	v := randomVec(o.Dim(), rng)

	hv1, err := o.Apply(v)
	require.NoError(t, err)
	hv2, err := o.Apply(v)
	require.NoError(t, err)
	assert.Equal(t, hv1, hv2)
	assert.Len(t, hv1, o.Dim())
}

func TestApplyLinearity(t *testing.T) {
	o, rng := testOracle(t)
	v1 := randomVec(o.Dim(), rng)
	v2 := randomVec(o.Dim(), rng)

	sum := make([]float64, o.Dim())
	floats.AddTo(sum, v1, v2)

	hv1, err := o.Apply(v1)
	require.NoError(t, err)
	hv2, err := o.Apply(v2)
	require.NoError(t, err)
	hvSum, err := o.Apply(sum)
	require.NoError(t, err)

	for i := range hvSum {
		assert.InDelta(t, hv1[i]+hv2[i], hvSum[i], 1e-9)
	}
}

func TestApplySymmetry(t *testing.T) {
	o, rng := testOracle(t)
	v1 := randomVec(o.Dim(), rng)
	v2 := randomVec(o.Dim(), rng)

	hv1, err := o.Apply(v1)
	require.NoError(t, err)
	hv2, err := o.Apply(v2)
	require.NoError(t, err)

	assert.InDelta(t, floats.Dot(v1, hv2), floats.Dot(v2, hv1), 1e-9,
		"v1.Hv2 must equal v2.Hv1 for a Hessian")
}

func TestApplyShapeMismatch(t *testing.T) {
	o, _ := testOracle(t)
	_, err := o.Apply(make([]float64, o.Dim()+1))
	require.Error(t, err)
	assert.ErrorIs(t, err, dynamo.ErrShapeMismatch)
}

func TestParameterSubsetSelection(t *testing.T) {
	o, rng := testOracle(t, "w2", "b2")
	assert.Equal(t, 4*2+2, o.Dim())

	v := randomVec(o.Dim(), rng)
	hv, err := o.Apply(v)
	require.NoError(t, err)
	assert.Len(t, hv, o.Dim())
}

func TestUnknownParameterName(t *testing.T) {
	rng := rand.New(rand.NewSource(17))
	p := physics.NewPendulum()
	tr, err := p.Solve(2.0, 0.05, 0.9)
	require.NoError(t, err)
	src, err := data.NewHeldOut(tr, 8)
	require.NoError(t, err)
	net := model.New(2, 4, model.Tanh, rng)
	cfg := integrators.Config{Scheme: integrators.SchemeEuler, Dt: 0.05}

	_, err = NewOracle(net, cfg, src, 1, "w3")
	assert.Error(t, err)
}

func TestSubsetExhaustionIsExplicit(t *testing.T) {
	rng := rand.New(rand.NewSource(17))
	p := physics.NewPendulum()
	tr, err := p.Solve(1.0, 0.1, 0.9)
	require.NoError(t, err)

	// 10 pairs in batches of 8 -> only 2 batches available.
	src, err := data.NewHeldOut(tr, 8)
	require.NoError(t, err)
	net := model.New(2, 4, model.Tanh, rng)
	cfg := integrators.Config{Scheme: integrators.SchemeEuler, Dt: 0.1}

	_, err = NewOracle(net, cfg, src, 5)
	require.Error(t, err)
	assert.ErrorIs(t, err, dynamo.ErrDataExhausted)
}

func TestLanczosAgainstDenseEigen(t *testing.T) {
	o, _ := testOracle(t)
	n := o.Dim()

	// Materialize the Hessian column by column.
	h := mat.NewSymDense(n, nil)
	for j := 0; j < n; j++ {
		e := make([]float64, n)
		e[j] = 1
		col, err := o.Apply(e)
		require.NoError(t, err)
		for i := j; i < n; i++ {
			h.SetSym(i, j, col[i])
		}
	}

	var es mat.EigenSym
	require.True(t, es.Factorize(h, false))
	dense := es.Values(nil)

	solver := NewEigenSolver(rand.New(rand.NewSource(23)))
	values, _, err := solver.Solve(o, 3)
	require.NoError(t, err)

	// The three largest-magnitude dense eigenvalues, ascending.
	want := largestMagnitude(dense, 3)
	scale := math.Max(math.Abs(want[len(want)-1]), math.Abs(want[0]))
	for i := range values {
		assert.InDelta(t, want[i], values[i], 5e-3*scale)
	}
}

func largestMagnitude(values []float64, k int) []float64 {
	picked := make([]float64, len(values))
	copy(picked, values)
	// Select k by |.| then sort ascending.
	for i := 0; i < len(picked); i++ {
		for j := i + 1; j < len(picked); j++ {
			if math.Abs(picked[j]) > math.Abs(picked[i]) {
				picked[i], picked[j] = picked[j], picked[i]
			}
		}
	}
	top := picked[:k]
	for i := 0; i < len(top); i++ {
		for j := i + 1; j < len(top); j++ {
			if top[j] < top[i] {
				top[i], top[j] = top[j], top[i]
			}
		}
	}
	return top
}
