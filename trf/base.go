// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package trf

import (
	"gonum.org/v1/gonum/mat"

	"github.com/curioloop/varprodmd/numdiff"
)

const (
	zero = 0.0
	one  = 1.0
	eps  = float64(7)/3 - float64(4)/3 - 1.
)

// Status reports how a least-squares run terminated.
type Status int

const (
	// StatusAborted a residual or Jacobian evaluation panicked, or a factorization failed.
	StatusAborted Status = iota - 1
	// StatusMaxEval the evaluation budget was exhausted before convergence.
	StatusMaxEval
	// StatusGTol the gradient norm dropped below GTol.
	StatusGTol
	// StatusFTol the relative cost reduction dropped below FTol.
	StatusFTol
	// StatusXTol the step norm dropped below XTol·(XTol+‖x‖).
	StatusXTol
	// StatusFXTol both the FTol and XTol conditions hold.
	StatusFXTol
)

// statusNone marks an iteration that has not terminated.
const statusNone Status = -9

// Method selects the minimization algorithm.
type Method int

// MethodTRF the trust-region reflective algorithm, here in its
// unconstrained form.
const MethodTRF Method = iota

// TRSolver selects how the trust-region subproblem is solved.
type TRSolver int

// TRExact solve the subproblem exactly from a dense SVD of the Jacobian.
const TRExact TRSolver = iota

// Loss selects the residual robustification ρ applied to the squared
// residuals: cost = 0.5·Σ ρ(fᵢ²).
type Loss int

const (
	// LossLinear ρ(z) = z, the ordinary sum of squares.
	LossLinear Loss = iota
	// LossHuber ρ(z) = z if z ≤ 1 else 2√z - 1.
	LossHuber
	// LossSoftL1 ρ(z) = 2(√(1+z) - 1).
	LossSoftL1
	// LossCauchy ρ(z) = ln(1+z).
	LossCauchy
	// LossArctan ρ(z) = arctan(z).
	LossArctan
)

// Scale selects the variable scaling applied inside the trust region.
type Scale int

const (
	// ScaleUnit leave the variables unscaled.
	ScaleUnit Scale = iota
	// ScaleJac scale each variable by the inverse norm of its Jacobian
	// column, kept non-decreasing across iterations.
	ScaleJac
)

const defaultTol = 1e-8

type trfSpec struct {
	// the number of variables and residuals
	n, m int
	// the number of singular values 𝚖𝚒𝚗(m,n)
	k int
	eval Residual
	jac  Jacobian
	diff numdiff.Method
	loss Loss
	// robust loss margin
	fscale float64
	// scale variables by Jacobian column norms
	jacScale bool
	// tolerances after default/disable resolution
	ftol, xtol, gtol float64
	maxIter, maxEval int
	logger           Logger
}

type trfLoc struct {
	cost float64
	x    []float64 // n
	f    []float64 // m, residual at x (robust-scaled when a loss is active)
	g    []float64 // n, gradient 𝐉ᵀ𝐟
}

type trfCtx struct {
	iter, numEval, numJac int

	gnorm, delta, alpha float64
	ratio, stepNorm     float64
	actualRed, costNew  float64

	// m-vectors
	fNew, fTrue, js []float64
	// n-vectors
	xNew, step, stepH, gh, d, dinv []float64
	// row-major m×n Jacobian and its column-scaled copy
	jac, jacH []float64
	// k-vectors for the subproblem
	s, uf, suf, pk []float64
	// robust loss values ρ₀,ρ₁,ρ₂ and the Jacobian row scales
	rho, jscale []float64

	svd  mat.SVD
	u, v mat.Dense
	diff numdiff.Spec
}

func (ctx *trfCtx) init(spec *trfSpec) {
	n, m, k := spec.n, spec.m, spec.k
	ctx.fNew = make([]float64, m)
	ctx.fTrue = make([]float64, m)
	ctx.js = make([]float64, m)
	ctx.xNew = make([]float64, n)
	ctx.step = make([]float64, n)
	ctx.stepH = make([]float64, n)
	ctx.gh = make([]float64, n)
	ctx.d = make([]float64, n)
	ctx.dinv = make([]float64, n)
	ctx.jac = make([]float64, m*n)
	ctx.jacH = make([]float64, m*n)
	ctx.s = make([]float64, k)
	ctx.uf = make([]float64, k)
	ctx.suf = make([]float64, k)
	ctx.pk = make([]float64, k)
	if spec.loss != LossLinear {
		ctx.rho = make([]float64, 3*m)
		ctx.jscale = make([]float64, m)
	}
	if spec.jac == nil {
		ctx.diff = numdiff.Spec{N: n, M: m, Eval: spec.eval, Method: spec.diff}
	}
}

func (ctx *trfCtx) clear() {
	ctx.iter, ctx.numEval, ctx.numJac = 0, 0, 0
	ctx.gnorm, ctx.delta, ctx.alpha = 0, 0, 0
	ctx.ratio, ctx.stepNorm = 0, 0
	ctx.actualRed, ctx.costNew = 0, 0
}
