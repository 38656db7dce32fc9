package physics

import (
	"math"

	"gonum.org/v1/gonum/mathext"
)

// completeK is the complete elliptic integral of the first kind K(m),
// with m = k^2 the parameter.
func completeK(m float64) float64 {
	return mathext.CompleteK(m)
}

// jacobiSNCN evaluates the Jacobi elliptic functions sn(u|m), cn(u|m) and
// dn(u|m) by the arithmetic-geometric mean with the descending Landen
// transformation (Abramowitz & Stegun 16.4).
func jacobiSNCN(u, m float64) (sn, cn, dn float64) {
	const tol = 1e-15

	if m < tol {
		return math.Sin(u), math.Cos(u), 1
	}
	if m > 1-tol {
		sech := 1 / math.Cosh(u)
		return math.Tanh(u), sech, sech
	}

	const maxIter = 32
	a := make([]float64, 0, maxIter)
	c := make([]float64, 0, maxIter)

	an, bn, cn0 := 1.0, math.Sqrt(1-m), math.Sqrt(m)
	a = append(a, an)
	c = append(c, cn0)
	for cn0 > tol && len(a) < maxIter {
		an, bn = (an+bn)/2, math.Sqrt(an*bn)
		// c_{n+1} = (a_n - b_n)/2 = a_n - a_{n+1}.
		cn0 = a[len(a)-1] - an
		a = append(a, an)
		c = append(c, cn0)
	}

	n := len(a) - 1
	phi := make([]float64, n+1)
	phi[n] = math.Exp2(float64(n)) * a[n] * u
	for i := n; i > 0; i-- {
		s := c[i] / a[i] * math.Sin(phi[i])
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		phi[i-1] = (phi[i] + math.Asin(s)) / 2
	}

	sn = math.Sin(phi[0])
	cn = math.Cos(phi[0])
	if n >= 1 {
		dn = cn / math.Cos(phi[1]-phi[0])
	} else {
		dn = math.Sqrt(1 - m*sn*sn)
	}
	return sn, cn, dn
}
