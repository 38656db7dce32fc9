// Package ad implements a small reverse-mode differentiation graph over
// gonum dense matrices.
//
// Each operation records its parents and a backward rule. Backward rules
// construct graph nodes rather than raw matrices, so the output of
// [Backward] can be fed into further graph operations and differentiated
// again. That second pass is what the Hessian-vector oracle relies on:
//
//	loss := ...                         // scalar node
//	grads := ad.Backward(loss, params)  // gradient nodes, graph retained
//	s := ad.Dot(grads[0], ad.Const(v))  // g . v
//	hv := ad.Backward(s, params)        // Hessian-vector product
//
// The op set is deliberately closed: dense affine maps, pointwise
// nonlinearities, and sum reductions are all a one-hidden-layer field
// model needs.
package ad
