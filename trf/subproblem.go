// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package trf

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

const (
	// relative accuracy and iteration cap of the secular equation root finding
	solveRTol    = 0.01
	solveMaxIter = 10
)

// phiAndDerivative evaluates the secular function
//
//	φ(α) = ‖p(α)‖ - Δ   with   p(α) = -𝐕·(σ∘𝐔ᵀf/(σ²+α))
//
// together with its derivative. φ is monotonically decreasing and concave in
// α, which makes Newton iteration from the left converge without overshoot.
func phiAndDerivative(alpha, delta float64, suf, s []float64) (phi, phiPrime float64) {
	if len(suf) != len(s) {
		panic("bound check error")
	}
	var pp, qq float64
	for i, v := range suf {
		d := s[i]*s[i] + alpha
		r := v / d
		pp += r * r
		qq += r * r / d
	}
	pNorm := math.Sqrt(pp)
	phi = pNorm - delta
	phiPrime = -qq / pNorm
	return
}

// solveTrustRegion solves the least-squares subproblem
//
//	𝚖𝚒𝚗 ‖𝐉߮p + f‖²   𝚜.𝚝. ‖p‖ ≤ Δ
//
// exactly through the SVD 𝐉߮ = 𝐔𝚍𝚒𝚊𝚐(σ)𝐕ᵀ held in the context.
// When the Gauss-Newton step of a full-rank Jacobian lies inside the region
// it is taken directly, otherwise the Levenberg-Marquardt parameter α of the
// boundary solution is located with the Newton scheme of MINPACK (More, 1978).
// The step is stored in the context together with the updated α, which seeds
// the next call.
func solveTrustRegion(spec *trfSpec, ctx *trfCtx) {

	n, m, k := spec.n, spec.m, spec.k
	s, uf, suf, pk := ctx.s, ctx.uf, ctx.suf, ctx.pk
	floats.MulTo(suf, s, uf)

	// Try the Gauss-Newton step p = -𝐕·(𝐔ᵀf/σ) when 𝐉߮ has full rank.
	fullRank := false
	if m >= n {
		fullRank = s[k-1] > eps*float64(m)*s[0]
	}

	p := mat.NewVecDense(n, ctx.stepH)
	if fullRank {
		for i := range pk {
			pk[i] = -uf[i] / s[i]
		}
		p.MulVec(&ctx.v, mat.NewVecDense(k, pk))
		if floats.Norm(ctx.stepH, 2) <= ctx.delta {
			ctx.alpha = 0
			return
		}
	}

	alphaUpper := floats.Norm(suf, 2) / ctx.delta
	var alphaLower float64
	if fullRank {
		phi, phiPrime := phiAndDerivative(0, ctx.delta, suf, s)
		alphaLower = -phi / phiPrime
	}

	alpha := ctx.alpha
	if !fullRank && alpha == 0 {
		alpha = math.Max(0.001*alphaUpper, math.Sqrt(alphaLower*alphaUpper))
	}

	for it := 0; it < solveMaxIter; it++ {
		if alpha < alphaLower || alpha > alphaUpper {
			alpha = math.Max(0.001*alphaUpper, math.Sqrt(alphaLower*alphaUpper))
		}

		phi, phiPrime := phiAndDerivative(alpha, ctx.delta, suf, s)
		if phi < 0 {
			alphaUpper = alpha
		}

		ratio := phi / phiPrime
		alphaLower = math.Max(alphaLower, alpha-ratio)
		alpha -= (phi + ctx.delta) * ratio / ctx.delta

		if math.Abs(phi) < solveRTol*ctx.delta {
			break
		}
	}

	for i := range pk {
		pk[i] = -suf[i] / (s[i]*s[i] + alpha)
	}
	p.MulVec(&ctx.v, mat.NewVecDense(k, pk))

	// Rescale p onto the boundary so rounding cannot push it outside the region.
	floats.Scale(ctx.delta/floats.Norm(ctx.stepH, 2), ctx.stepH)
	ctx.alpha = alpha
}

// evaluateQuadratic computes the value of the quadratic model
//
//	q(p) = ½‖𝐉߮p‖² + g߮ᵀp
//
// of the scaled cost along the step held in the context.
func evaluateQuadratic(spec *trfSpec, ctx *trfCtx) float64 {
	js := mat.NewVecDense(spec.m, ctx.js)
	js.MulVec(mat.NewDense(spec.m, spec.n, ctx.jacH), mat.NewVecDense(spec.n, ctx.stepH))
	return 0.5*floats.Dot(ctx.js, ctx.js) + floats.Dot(ctx.stepH, ctx.gh)
}

// updateRadius adapts the trust-region radius to the agreement between the
// actual cost reduction and the one predicted by the quadratic model.
func updateRadius(ctx *trfCtx, predicted, stepHNorm float64) (deltaNew float64) {
	switch {
	case predicted > 0:
		ctx.ratio = ctx.actualRed / predicted
	case predicted == 0 && ctx.actualRed == 0:
		ctx.ratio = 1
	default:
		ctx.ratio = 0
	}

	deltaNew = ctx.delta
	if ctx.ratio < 0.25 {
		deltaNew = 0.25 * stepHNorm
	} else if ctx.ratio > 0.75 && stepHNorm > 0.95*ctx.delta {
		deltaNew = 2 * ctx.delta
	}
	return
}

// checkTermination tests the relative reduction of the cost against ftol and
// the relative step size against xtol. A tolerance of zero never triggers.
func checkTermination(spec *trfSpec, ctx *trfCtx, loc *trfLoc) Status {
	ftolOK := ctx.actualRed < spec.ftol*loc.cost && ctx.ratio > 0.25
	xtolOK := ctx.stepNorm < spec.xtol*(spec.xtol+floats.Norm(loc.x, 2))
	switch {
	case ftolOK && xtolOK:
		return StatusFXTol
	case ftolOK:
		return StatusFTol
	case xtolOK:
		return StatusXTol
	}
	return statusNone
}

// computeGrad computes the gradient g = 𝐉ᵀf of the half squared residual norm.
func computeGrad(spec *trfSpec, ctx *trfCtx, loc *trfLoc) {
	g := mat.NewVecDense(spec.n, loc.g)
	g.MulVec(mat.NewDense(spec.m, spec.n, ctx.jac).T(), mat.NewVecDense(spec.m, loc.f))
}

// computeJacScale derives the variable scale from the column norms of the
// Jacobian. The accumulated norms never shrink, which keeps the trust region
// comparable between iterations even when a column collapses.
func computeJacScale(spec *trfSpec, ctx *trfCtx, first bool) {
	n, m := spec.n, spec.m
	for j := 0; j < n; j++ {
		var ssq float64
		for i := 0; i < m; i++ {
			v := ctx.jac[i*n+j]
			ssq += v * v
		}
		norm := math.Sqrt(ssq)
		if first {
			if norm == 0 {
				norm = one
			}
		} else {
			norm = math.Max(norm, ctx.dinv[j])
		}
		ctx.dinv[j] = norm
		ctx.d[j] = one / norm
	}
}
