package model

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/jori-v/fieldlab/internal/ad"
	"github.com/jori-v/fieldlab/internal/dynamo"
)

// Activation selects the hidden-layer nonlinearity. The set is closed:
// field nets are constructed with one of these three kinds.
type Activation int

const (
	Identity Activation = iota
	Tanh
	ReLU
)

func (a Activation) String() string {
	switch a {
	case Identity:
		return "identity"
	case Tanh:
		return "tanh"
	case ReLU:
		return "relu"
	default:
		return "unknown"
	}
}

func ParseActivation(name string) (Activation, error) {
	switch name {
	case "identity", "linear":
		return Identity, nil
	case "tanh":
		return Tanh, nil
	case "relu":
		return ReLU, nil
	default:
		return 0, fmt.Errorf("unknown activation: %s", name)
	}
}

// Param is a named view into the flat parameter vector. Data shares
// backing storage with the vector, so optimizer updates to the flat
// vector are visible through every view.
type Param struct {
	Name       string
	Rows, Cols int
	Data       *mat.Dense
}

// FieldNet is a one-hidden-layer feed-forward vector field estimator:
//
//	f(x) = act(x W1 + b1) W2 + b2
//
// with x a row vector (or a batch of row vectors) of dimension dim.
// Parameters live in a single flat []float64 in a fixed order
// (w1, b1, w2, b2, row-major), the same order used to flatten gradients
// and to un-flatten Hessian-vector products.
type FieldNet struct {
	dim    int
	hidden int
	act    Activation
	vec    []float64
	params []Param
}

// New constructs a field net with Xavier-uniform weight initialization
// drawn from rng and zero biases.
func New(dim, hidden int, act Activation, rng *rand.Rand) *FieldNet {
	n := &FieldNet{dim: dim, hidden: hidden, act: act}
	n.vec = make([]float64, n.sizeOf())
	n.buildViews()

	xavier := func(p Param, fanIn, fanOut int) {
		limit := math.Sqrt(6.0 / float64(fanIn+fanOut))
		for i := 0; i < p.Rows; i++ {
			for j := 0; j < p.Cols; j++ {
				p.Data.Set(i, j, (2*rng.Float64()-1)*limit)
			}
		}
	}
	xavier(n.params[0], dim, hidden)
	xavier(n.params[2], hidden, dim)
	return n
}

// Load reconstructs a field net from a previously saved flat parameter
// vector.
func Load(dim, hidden int, act Activation, vec []float64) (*FieldNet, error) {
	if dim < 1 || hidden < 1 {
		return nil, fmt.Errorf("model: dim and hidden must be positive, got %d, %d", dim, hidden)
	}
	n := &FieldNet{dim: dim, hidden: hidden, act: act}
	if len(vec) != n.sizeOf() {
		return nil, fmt.Errorf("%w: got %d params, want %d", dynamo.ErrShapeMismatch, len(vec), n.sizeOf())
	}
	n.vec = make([]float64, len(vec))
	copy(n.vec, vec)
	n.buildViews()
	return n, nil
}

func (n *FieldNet) sizeOf() int {
	return n.dim*n.hidden + n.hidden + n.hidden*n.dim + n.dim
}

func (n *FieldNet) buildViews() {
	d, h := n.dim, n.hidden
	off := 0
	view := func(name string, r, c int) Param {
		p := Param{Name: name, Rows: r, Cols: c, Data: mat.NewDense(r, c, n.vec[off:off+r*c])}
		off += r * c
		return p
	}
	n.params = []Param{
		view("w1", d, h),
		view("b1", 1, h),
		view("w2", h, d),
		view("b2", 1, d),
	}
}

func (n *FieldNet) Dim() int        { return n.dim }
func (n *FieldNet) Hidden() int     { return n.hidden }
func (n *FieldNet) Act() Activation { return n.act }
func (n *FieldNet) NumParams() int  { return len(n.vec) }

// Params returns the named parameter views in flatten order.
func (n *FieldNet) Params() []Param { return n.params }

// Raw returns the live flat parameter vector. Mutations are immediately
// visible to every evaluation path; it is the slice handed to the
// optimizer.
func (n *FieldNet) Raw() []float64 { return n.vec }

// Vector returns an independent copy of the flat parameter vector.
func (n *FieldNet) Vector() []float64 {
	c := make([]float64, len(n.vec))
	copy(c, n.vec)
	return c
}

// SetVector overwrites the parameters from a flat vector in the stable
// flatten order.
func (n *FieldNet) SetVector(v []float64) error {
	if len(v) != len(n.vec) {
		return fmt.Errorf("%w: got %d, want %d", dynamo.ErrShapeMismatch, len(v), len(n.vec))
	}
	copy(n.vec, v)
	return nil
}

// Clone returns an independently owned deep copy. Mutating the live net
// afterwards does not affect the clone.
func (n *FieldNet) Clone() *FieldNet {
	c := &FieldNet{dim: n.dim, hidden: n.hidden, act: n.act}
	c.vec = make([]float64, len(n.vec))
	copy(c.vec, n.vec)
	c.buildViews()
	return c
}

// Leaves wraps the parameter views as differentiable graph leaves, one
// per parameter, aligned with Params order. The same leaves must be
// reused for every model evaluation inside one graph so gradients from
// repeated evaluations (for example the four RK4 stages) accumulate.
func (n *FieldNet) Leaves() []*ad.Node {
	leaves := make([]*ad.Node, len(n.params))
	for i, p := range n.params {
		leaves[i] = ad.Var(p.Data)
	}
	return leaves
}

// ForwardWith evaluates the net on a batch node (rows are states) using
// previously created parameter leaves.
func (n *FieldNet) ForwardWith(leaves []*ad.Node, x *ad.Node) *ad.Node {
	w1, b1, w2, b2 := leaves[0], leaves[1], leaves[2], leaves[3]
	h := ad.AddRow(ad.MatMul(x, w1), b1)
	switch n.act {
	case Tanh:
		h = ad.Tanh(h)
	case ReLU:
		h = ad.ReLU(h)
	}
	return ad.AddRow(ad.MatMul(h, w2), b2)
}

// Derive evaluates the net on a single state without building a graph.
// It implements dynamo.VectorField for rollouts.
func (n *FieldNet) Derive(x dynamo.State) dynamo.State {
	d, hd := n.dim, n.hidden
	w1, b1, w2, b2 := n.params[0].Data, n.params[1].Data, n.params[2].Data, n.params[3].Data

	h := make([]float64, hd)
	for j := 0; j < hd; j++ {
		sum := b1.At(0, j)
		for i := 0; i < d; i++ {
			sum += x[i] * w1.At(i, j)
		}
		switch n.act {
		case Tanh:
			sum = math.Tanh(sum)
		case ReLU:
			if sum < 0 {
				sum = 0
			}
		}
		h[j] = sum
	}

	out := make(dynamo.State, d)
	for j := 0; j < d; j++ {
		sum := b2.At(0, j)
		for i := 0; i < hd; i++ {
			sum += h[i] * w2.At(i, j)
		}
		out[j] = sum
	}
	return out
}

// Flatten copies gradient matrices (aligned with Params order) into one
// flat vector using the stable parameter order.
func (n *FieldNet) Flatten(grads []*ad.Node) []float64 {
	flat := make([]float64, 0, len(n.vec))
	for i := range n.params {
		g := grads[i].Value()
		r, c := g.Dims()
		for a := 0; a < r; a++ {
			for b := 0; b < c; b++ {
				flat = append(flat, g.At(a, b))
			}
		}
	}
	return flat
}
