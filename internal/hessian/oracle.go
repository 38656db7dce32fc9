package hessian

import (
	"fmt"
	"sync"

	"gonum.org/v1/gonum/mat"

	"github.com/jori-v/fieldlab/internal/ad"
	"github.com/jori-v/fieldlab/internal/data"
	"github.com/jori-v/fieldlab/internal/dynamo"
	"github.com/jori-v/fieldlab/internal/integrators"
	"github.com/jori-v/fieldlab/internal/model"
)

// Operator is an implicit square linear operator defined only through its
// action on vectors.
type Operator interface {
	Apply(v []float64) ([]float64, error)
	Dim() int
}

// Oracle computes Hessian-vector products of the one-step training loss
// with respect to a selected parameter subset, over a data subset frozen
// at construction. Each Apply performs two sequential reverse-mode
// passes: the loss gradient with its graph retained, then the gradient of
// g.v. The resulting operator is symmetric up to floating-point error.
//
// Apply builds a fresh graph per call, so no gradient state survives
// between calls; the mutex serializes callers because the underlying
// parameter views are shared with the live model.
type Oracle struct {
	mu      sync.Mutex
	net     *model.FieldNet
	cfg     integrators.Config
	inputs  *mat.Dense
	targets *mat.Dense
	sel     []int // indices into net.Params(), flatten order
	dim     int
}

// NewOracle freezes nbatches batches drawn once from src. A source with
// fewer batches than requested is an explicit ErrDataExhausted, never a
// silently smaller subset. names restricts the parameter subset; empty
// means all parameters.
func NewOracle(net *model.FieldNet, cfg integrators.Config, src *data.Source, nbatches int, names ...string) (*Oracle, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if nbatches <= 0 {
		return nil, fmt.Errorf("subset needs at least one batch, got %d", nbatches)
	}

	batches := src.Batches()
	if len(batches) < nbatches {
		return nil, fmt.Errorf("%w: requested %d batches, source yields %d",
			dynamo.ErrDataExhausted, nbatches, len(batches))
	}
	batches = batches[:nbatches]

	rows := 0
	for _, b := range batches {
		rows += b.Len()
	}
	d := net.Dim()
	inputs := mat.NewDense(rows, d, nil)
	targets := mat.NewDense(rows, d, nil)
	row := 0
	for _, b := range batches {
		for r := 0; r < b.Len(); r++ {
			for j := 0; j < d; j++ {
				inputs.Set(row, j, b.Inputs.At(r, j))
				targets.Set(row, j, b.Targets.At(r, j))
			}
			row++
		}
	}

	o := &Oracle{net: net, cfg: cfg, inputs: inputs, targets: targets}
	if err := o.selectParams(names); err != nil {
		return nil, err
	}
	return o, nil
}

func (o *Oracle) selectParams(names []string) error {
	params := o.net.Params()
	if len(names) == 0 {
		for i, p := range params {
			o.sel = append(o.sel, i)
			o.dim += p.Rows * p.Cols
		}
		return nil
	}
	for _, name := range names {
		found := false
		for i, p := range params {
			if p.Name == name {
				o.sel = append(o.sel, i)
				o.dim += p.Rows * p.Cols
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("unknown parameter: %s", name)
		}
	}
	return nil
}

// Dim is the flattened length of the selected parameter subset.
func (o *Oracle) Dim() int { return o.dim }

// SubsetSize is the number of frozen sample pairs.
func (o *Oracle) SubsetSize() int {
	r, _ := o.inputs.Dims()
	return r
}

// Loss evaluates the training loss on the frozen subset.
func (o *Oracle) Loss() float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.loss().Scalar()
}

func (o *Oracle) lossWithLeaves() (*ad.Node, []*ad.Node) {
	leaves := o.net.Leaves()
	f := func(x *ad.Node) *ad.Node { return o.net.ForwardWith(leaves, x) }
	pred := o.cfg.StepNode(f, ad.Const(o.inputs))
	return ad.MSE(pred, ad.Const(o.targets)), leaves
}

func (o *Oracle) loss() *ad.Node {
	l, _ := o.lossWithLeaves()
	return l
}

// Apply returns the Hessian-vector product H v. Deterministic for a fixed
// subset and v; len(v) must equal Dim.
func (o *Oracle) Apply(v []float64) ([]float64, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if len(v) != o.dim {
		return nil, fmt.Errorf("%w: got %d, want %d", dynamo.ErrShapeMismatch, len(v), o.dim)
	}

	loss, leaves := o.lossWithLeaves()
	grads := ad.Backward(loss, leaves)

	// s = g . v over the selected subset, in stable flatten order.
	params := o.net.Params()
	var s *ad.Node
	off := 0
	for _, i := range o.sel {
		p := params[i]
		seg := mat.NewDense(p.Rows, p.Cols, v[off:off+p.Rows*p.Cols])
		term := ad.Dot(grads[i], ad.Const(seg))
		if s == nil {
			s = term
		} else {
			s = ad.Add(s, term)
		}
		off += p.Rows * p.Cols
	}

	hvNodes := ad.Backward(s, leaves)

	hv := make([]float64, 0, o.dim)
	for _, i := range o.sel {
		p := params[i]
		g := hvNodes[i].Value()
		for a := 0; a < p.Rows; a++ {
			for b := 0; b < p.Cols; b++ {
				hv = append(hv, g.At(a, b))
			}
		}
	}
	return hv, nil
}
