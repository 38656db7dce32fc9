package ad

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Node is one value in a reverse-mode differentiation graph. Every
// operation records its parents and a backward rule; the rule itself is
// expressed through graph operations, so the gradient of a gradient is a
// second honest reverse-mode pass over the extended graph.
type Node struct {
	value    *mat.Dense
	parents  []*Node
	backward func(grad *Node) []*Node
	constant bool
}

// Var wraps a matrix as a differentiable leaf. The node aliases m; callers
// that mutate the backing data between graph constructions get the updated
// values on the next forward pass.
func Var(m *mat.Dense) *Node {
	return &Node{value: m}
}

// Const wraps a matrix as a non-differentiable leaf. Gradients are never
// propagated into constants.
func Const(m *mat.Dense) *Node {
	return &Node{value: m, constant: true}
}

// ConstScalar returns a 1x1 constant node.
func ConstScalar(v float64) *Node {
	return Const(mat.NewDense(1, 1, []float64{v}))
}

func (n *Node) Value() *mat.Dense { return n.value }

func (n *Node) Dims() (r, c int) { return n.value.Dims() }

// Scalar returns the value of a 1x1 node.
func (n *Node) Scalar() float64 {
	r, c := n.Dims()
	if r != 1 || c != 1 {
		panic(fmt.Sprintf("ad: Scalar on %dx%d node", r, c))
	}
	return n.value.At(0, 0)
}

func zeros(r, c int) *mat.Dense { return mat.NewDense(r, c, nil) }

func onesLike(n *Node) *Node {
	r, c := n.Dims()
	m := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			m.Set(i, j, 1)
		}
	}
	return Const(m)
}

// Add returns a + b (element-wise, same shape).
func Add(a, b *Node) *Node {
	out := zeros(a.Dims())
	out.Add(a.value, b.value)
	return &Node{
		value:   out,
		parents: []*Node{a, b},
		backward: func(g *Node) []*Node {
			return []*Node{g, g}
		},
	}
}

// Sub returns a - b (element-wise, same shape).
func Sub(a, b *Node) *Node {
	out := zeros(a.Dims())
	out.Sub(a.value, b.value)
	return &Node{
		value:   out,
		parents: []*Node{a, b},
		backward: func(g *Node) []*Node {
			return []*Node{g, Scale(-1, g)}
		},
	}
}

// Mul returns a * b element-wise (same shape).
func Mul(a, b *Node) *Node {
	out := zeros(a.Dims())
	out.MulElem(a.value, b.value)
	return &Node{
		value:   out,
		parents: []*Node{a, b},
		backward: func(g *Node) []*Node {
			return []*Node{Mul(g, b), Mul(g, a)}
		},
	}
}

// Scale returns c * a for a fixed scalar c.
func Scale(c float64, a *Node) *Node {
	out := zeros(a.Dims())
	out.Scale(c, a.value)
	return &Node{
		value:   out,
		parents: []*Node{a},
		backward: func(g *Node) []*Node {
			return []*Node{Scale(c, g)}
		},
	}
}

// MatMul returns the matrix product a x b.
func MatMul(a, b *Node) *Node {
	ar, _ := a.Dims()
	_, bc := b.Dims()
	out := zeros(ar, bc)
	out.Mul(a.value, b.value)
	return &Node{
		value:   out,
		parents: []*Node{a, b},
		backward: func(g *Node) []*Node {
			return []*Node{MatMul(g, Transpose(b)), MatMul(Transpose(a), g)}
		},
	}
}

// Transpose returns the matrix transpose.
func Transpose(a *Node) *Node {
	r, c := a.Dims()
	out := zeros(c, r)
	out.Copy(a.value.T())
	return &Node{
		value:   out,
		parents: []*Node{a},
		backward: func(g *Node) []*Node {
			return []*Node{Transpose(g)}
		},
	}
}

// AddRow adds a 1xc row vector to every row of an rxc matrix.
func AddRow(a, row *Node) *Node {
	r, c := a.Dims()
	out := zeros(r, c)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			out.Set(i, j, a.value.At(i, j)+row.value.At(0, j))
		}
	}
	return &Node{
		value:   out,
		parents: []*Node{a, row},
		backward: func(g *Node) []*Node {
			return []*Node{g, SumRows(g)}
		},
	}
}

// SumRows collapses an rxc matrix to a 1xc row of column sums.
func SumRows(a *Node) *Node {
	r, c := a.Dims()
	out := zeros(1, c)
	for j := 0; j < c; j++ {
		sum := 0.0
		for i := 0; i < r; i++ {
			sum += a.value.At(i, j)
		}
		out.Set(0, j, sum)
	}
	return &Node{
		value:   out,
		parents: []*Node{a},
		backward: func(g *Node) []*Node {
			return []*Node{RepeatRows(g, r)}
		},
	}
}

// RepeatRows tiles a 1xc row vector into an rxc matrix.
func RepeatRows(a *Node, r int) *Node {
	_, c := a.Dims()
	out := zeros(r, c)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			out.Set(i, j, a.value.At(0, j))
		}
	}
	return &Node{
		value:   out,
		parents: []*Node{a},
		backward: func(g *Node) []*Node {
			return []*Node{SumRows(g)}
		},
	}
}

// Sum reduces a matrix to the 1x1 sum of its elements.
func Sum(a *Node) *Node {
	r, c := a.Dims()
	out := zeros(1, 1)
	out.Set(0, 0, mat.Sum(a.value))
	return &Node{
		value:   out,
		parents: []*Node{a},
		backward: func(g *Node) []*Node {
			return []*Node{Spread(g, r, c)}
		},
	}
}

// Spread tiles a 1x1 scalar into an rxc matrix.
func Spread(a *Node, r, c int) *Node {
	v := a.value.At(0, 0)
	out := zeros(r, c)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			out.Set(i, j, v)
		}
	}
	return &Node{
		value:   out,
		parents: []*Node{a},
		backward: func(g *Node) []*Node {
			return []*Node{Sum(g)}
		},
	}
}

// Dot returns the 1x1 sum of the element-wise product of two equally
// shaped matrices.
func Dot(a, b *Node) *Node {
	return Sum(Mul(a, b))
}

// Tanh applies the pointwise hyperbolic tangent.
func Tanh(a *Node) *Node {
	r, c := a.Dims()
	out := zeros(r, c)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			out.Set(i, j, math.Tanh(a.value.At(i, j)))
		}
	}
	n := &Node{value: out, parents: []*Node{a}}
	n.backward = func(g *Node) []*Node {
		// d tanh = 1 - tanh^2; the rule references the output node so a
		// second differentiation sees the full dependency.
		return []*Node{Mul(g, Sub(onesLike(n), Mul(n, n)))}
	}
	return n
}

// ReLU applies the pointwise rectifier max(0, x).
func ReLU(a *Node) *Node {
	r, c := a.Dims()
	out := zeros(r, c)
	mask := zeros(r, c)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if v := a.value.At(i, j); v > 0 {
				out.Set(i, j, v)
				mask.Set(i, j, 1)
			}
		}
	}
	maskNode := Const(mask)
	return &Node{
		value:   out,
		parents: []*Node{a},
		backward: func(g *Node) []*Node {
			return []*Node{Mul(g, maskNode)}
		},
	}
}

// MSE returns the mean squared error between two equally shaped matrices,
// averaged over every element.
func MSE(pred, target *Node) *Node {
	r, c := pred.Dims()
	d := Sub(pred, target)
	return Scale(1/float64(r*c), Sum(Mul(d, d)))
}

// Backward differentiates a 1x1 output with respect to the given leaves.
// The returned gradients are themselves graph nodes: calling Backward on a
// function of them performs a second reverse-mode pass (double backprop).
// Leaves that do not influence out get zero gradients.
func Backward(out *Node, wrt []*Node) []*Node {
	if r, c := out.Dims(); r != 1 || c != 1 {
		panic(fmt.Sprintf("ad: Backward on non-scalar %dx%d node", r, c))
	}

	order := topoSort(out)
	grads := make(map[*Node]*Node, len(order))
	grads[out] = Const(mat.NewDense(1, 1, []float64{1}))

	for i := len(order) - 1; i >= 0; i-- {
		n := order[i]
		g, ok := grads[n]
		if !ok || n.backward == nil {
			continue
		}
		pgs := n.backward(g)
		for j, p := range n.parents {
			if p.constant || pgs[j] == nil {
				continue
			}
			if acc, ok := grads[p]; ok {
				grads[p] = Add(acc, pgs[j])
			} else {
				grads[p] = pgs[j]
			}
		}
	}

	result := make([]*Node, len(wrt))
	for i, w := range wrt {
		if g, ok := grads[w]; ok {
			result[i] = g
		} else {
			r, c := w.Dims()
			result[i] = Const(zeros(r, c))
		}
	}
	return result
}

func topoSort(root *Node) []*Node {
	var order []*Node
	visited := make(map[*Node]bool)
	var visit func(n *Node)
	visit = func(n *Node) {
		if visited[n] || n.constant {
			return
		}
		visited[n] = true
		for _, p := range n.parents {
			visit(p)
		}
		order = append(order, n)
	}
	visit(root)
	return order
}
