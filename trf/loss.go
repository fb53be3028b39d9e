// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package trf

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// evalLoss computes the robust loss terms ρ(z), ρ′(z), ρ″(z) at z = (f/C)²
// where C is the inlier margin of the loss. The total cost ½C²Σρ(z) is
// returned. Unless costOnly, rho receives the three m-rows with ρ premultiplied
// by C² and ρ″ divided by C², ready for the scaling step.
func evalLoss(spec *trfSpec, f []float64, rho []float64, costOnly bool) float64 {

	m, c := spec.m, spec.fscale
	cc := c * c

	if !costOnly && (len(f) != m || len(rho) != 3*m) {
		panic("bound check error")
	}

	var sum float64
	for i, v := range f {
		z := (v / c) * (v / c)
		var r0, r1, r2 float64
		switch spec.loss {
		case LossHuber:
			if z <= 1 {
				r0, r1, r2 = z, 1, 0
			} else {
				sz := math.Sqrt(z)
				r0, r1, r2 = 2*sz-1, 1/sz, -0.5/(z*sz)
			}
		case LossSoftL1:
			t := 1 + z
			st := math.Sqrt(t)
			r0, r1, r2 = 2*(st-1), 1/st, -0.5/(t*st)
		case LossCauchy:
			t := 1 + z
			r0, r1, r2 = math.Log1p(z), 1/t, -1/(t*t)
		case LossArctan:
			t := 1 + z*z
			r0, r1, r2 = math.Atan(z), 1/t, -2*z/(t*t)
		}
		sum += r0
		if !costOnly {
			rho[i] = r0 * cc
			rho[m+i] = r1
			rho[2*m+i] = r2 / cc
		}
	}
	return 0.5 * cc * sum
}

// scaleForRobust transforms the residual and the Jacobian so that the plain
// squared norm of the scaled residual matches the robust cost up to second
// order, reducing the robust problem to an ordinary least-squares iteration.
// The scale of row i is √(ρ′ + 2ρ″fᵢ²), floored at machine precision to keep
// non-convex losses from zeroing a row.
func scaleForRobust(spec *trfSpec, ctx *trfCtx, f []float64) {

	n, m := spec.n, spec.m
	rho, scale := ctx.rho, ctx.jscale
	if len(f) != m || len(scale) != m {
		panic("bound check error")
	}

	for i := 0; i < m; i++ {
		js := rho[m+i] + 2*rho[2*m+i]*f[i]*f[i]
		if js < eps {
			js = eps
		}
		scale[i] = math.Sqrt(js)
		f[i] *= rho[m+i] / scale[i]
	}
	for i := 0; i < m; i++ {
		floats.Scale(scale[i], ctx.jac[i*n:(i+1)*n])
	}
}
