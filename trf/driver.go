// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package trf

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// trfDriver is the main driver for iterations in an optimization process,
// responsible for managing the flow of the optimization.
type trfDriver struct {
	optimizer *Optimizer
	workspace *Workspace
	location  *trfLoc
}

// evalResidual computes the residual vector f(x) and recovers from any panic
// raised by the user callback.
func (d *trfDriver) evalResidual(x, f []float64) (ok bool) {
	o, w := d.optimizer, d.workspace
	defer func() {
		if r := recover(); r != nil {
			if log := o.logger; log.enable(LogLast) {
				log.log("Halting due to residual evaluation panic: %v\n", r)
			}
			ok = false
		}
	}()
	o.eval(x, f)
	w.numEval++
	return true
}

// evalJacobian computes the m×n derivative matrix at x, either through the
// analytic callback or by finite differences over the residual function.
// The point x is always the one of the latest residual evaluation.
func (d *trfDriver) evalJacobian(x []float64) (ok bool) {
	o, w := d.optimizer, d.workspace
	defer func() {
		if r := recover(); r != nil {
			if log := o.logger; log.enable(LogLast) {
				log.log("Halting due to Jacobian evaluation panic: %v\n", r)
			}
			ok = false
		}
	}()
	if o.jac != nil {
		o.jac(x, w.jac)
	} else if err := w.diff.Jacobian(x, w.jac); err != nil {
		if log := o.logger; log.enable(LogLast) {
			log.log("Halting due to difference failure: %v\n", err)
		}
		return false
	}
	w.numJac++
	return true
}

// prepare evaluates the residual and Jacobian at the starting point and
// initializes the cost, gradient, variable scale and trust-region radius.
func (d *trfDriver) prepare() Status {

	loc := d.location
	spec := &d.optimizer.trfSpec
	ctx := &d.workspace.trfCtx

	if !d.evalResidual(loc.x, loc.f) {
		return StatusAborted
	}
	for _, f := range loc.f {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			if log := spec.logger; log.enable(LogLast) {
				log.log("Residuals are not finite in the initial point.\n")
			}
			return StatusAborted
		}
	}
	copy(ctx.fTrue, loc.f)

	if !d.evalJacobian(loc.x) {
		return StatusAborted
	}

	if spec.loss != LossLinear {
		loc.cost = evalLoss(spec, loc.f, ctx.rho, false)
		scaleForRobust(spec, ctx, loc.f)
	} else {
		loc.cost = 0.5 * floats.Dot(loc.f, loc.f)
	}

	computeGrad(spec, ctx, loc)

	if spec.jacScale {
		computeJacScale(spec, ctx, true)
	} else {
		for j := range ctx.d {
			ctx.d[j], ctx.dinv[j] = one, one
		}
	}

	// Δ₀ = ‖D⁻¹x₀‖
	floats.MulTo(ctx.xNew, ctx.dinv, loc.x)
	if ctx.delta = floats.Norm(ctx.xNew, 2); ctx.delta == 0 {
		ctx.delta = one
	}
	return statusNone
}

// factorize builds the quantities of the scaled problem for the current
// iterate: the gradient 𝐃g, the Jacobian 𝐉𝐃 and its thin SVD, and the
// projection 𝐔ᵀf of the residual.
func (d *trfDriver) factorize() (ok bool) {

	loc := d.location
	spec := &d.optimizer.trfSpec
	ctx := &d.workspace.trfCtx

	n, m, k := spec.n, spec.m, spec.k
	floats.MulTo(ctx.gh, ctx.d, loc.g)
	for i := 0; i < m; i++ {
		row, scaled := ctx.jac[i*n:(i+1)*n], ctx.jacH[i*n:(i+1)*n]
		floats.MulTo(scaled, ctx.d, row)
	}

	if !ctx.svd.Factorize(mat.NewDense(m, n, ctx.jacH), mat.SVDThin) {
		if log := spec.logger; log.enable(LogLast) {
			log.log("SVD of the scaled Jacobian failed to converge.\n")
		}
		return false
	}
	ctx.svd.UTo(&ctx.u)
	ctx.svd.VTo(&ctx.v)
	ctx.svd.Values(ctx.s)

	uf := mat.NewVecDense(k, ctx.uf)
	uf.MulVec(ctx.u.T(), mat.NewVecDense(m, loc.f))
	return true
}

// findStep searches a trial step inside the trust region until the cost is
// reduced or the evaluation budget runs out. The radius is shrunk after each
// failed trial and the termination criteria are checked on every accepted one.
func (d *trfDriver) findStep() (status Status) {

	loc := d.location
	spec := &d.optimizer.trfSpec
	ctx := &d.workspace.trfCtx

	status = statusNone
	ctx.actualRed = -1
	for ctx.actualRed <= 0 && ctx.numEval < spec.maxEval {

		solveTrustRegion(spec, ctx)
		predicted := -evaluateQuadratic(spec, ctx)

		floats.MulTo(ctx.step, ctx.d, ctx.stepH)
		floats.AddTo(ctx.xNew, loc.x, ctx.step)
		if !d.evalResidual(ctx.xNew, ctx.fNew) {
			return StatusAborted
		}
		stepHNorm := floats.Norm(ctx.stepH, 2)

		finite := true
		for _, f := range ctx.fNew {
			if math.IsNaN(f) || math.IsInf(f, 0) {
				finite = false
				break
			}
		}
		if !finite {
			ctx.delta = 0.25 * stepHNorm
			continue
		}

		if spec.loss != LossLinear {
			ctx.costNew = evalLoss(spec, ctx.fNew, nil, true)
		} else {
			ctx.costNew = 0.5 * floats.Dot(ctx.fNew, ctx.fNew)
		}
		ctx.actualRed = loc.cost - ctx.costNew

		deltaNew := updateRadius(ctx, predicted, stepHNorm)
		ctx.stepNorm = floats.Norm(ctx.step, 2)

		if status = checkTermination(spec, ctx, loc); status != statusNone {
			return
		}

		ctx.alpha *= ctx.delta / deltaNew
		ctx.delta = deltaNew
	}
	return
}

// acceptStep moves the iterate to the trial point and refreshes the Jacobian,
// the gradient and the variable scale there.
func (d *trfDriver) acceptStep() (ok bool) {

	loc := d.location
	spec := &d.optimizer.trfSpec
	ctx := &d.workspace.trfCtx

	copy(loc.x, ctx.xNew)
	copy(loc.f, ctx.fNew)
	copy(ctx.fTrue, ctx.fNew)
	loc.cost = ctx.costNew

	if !d.evalJacobian(loc.x) {
		return false
	}

	if spec.loss != LossLinear {
		evalLoss(spec, loc.f, ctx.rho, false)
		scaleForRobust(spec, ctx, loc.f)
	}

	computeGrad(spec, ctx, loc)

	if spec.jacScale {
		computeJacScale(spec, ctx, false)
	}
	return true
}

// mainLoop is the main execution loop of the iteration process, repeatedly
// solving the trust-region subproblem on the SVD of the scaled Jacobian and
// adapting the radius to the agreement between model and cost.
func (d *trfDriver) mainLoop() (status Status) {

	loc := d.location
	spec := &d.optimizer.trfSpec
	ctx := &d.workspace.trfCtx

	log := spec.logger

	ctx.clear()
	d.printInit()

	if status = d.prepare(); status != statusNone {
		d.printExit(status, loc.cost)
		return
	}
	cost0 := loc.cost

	for {
		ctx.gnorm = floats.Norm(loc.g, math.Inf(1))
		if ctx.gnorm < spec.gtol {
			status = StatusGTol
		}

		d.printIter()

		if status == statusNone && (ctx.numEval >= spec.maxEval || ctx.iter >= spec.maxIter) {
			status = StatusMaxEval
		}
		if status != statusNone {
			break
		}

		if log.enable(LogTrace) {
			log.log("\n\nITERATION %5d\n", ctx.iter+1)
		}

		if !d.factorize() {
			status = StatusAborted
			break
		}

		if status = d.findStep(); status == StatusAborted {
			break
		}

		if ctx.actualRed > 0 {
			if !d.acceptStep() {
				status = StatusAborted
				break
			}
		} else {
			ctx.stepNorm, ctx.actualRed = 0, 0
		}
		ctx.iter++
	}

	d.printExit(status, cost0)
	return
}

// printInit logs the setup of the least-squares process, including machine
// precision and problem dimensions.
func (d *trfDriver) printInit() {

	spec := &d.optimizer.trfSpec

	log := spec.logger
	if log.enable(LogLast) {
		log.log("Solving the nonlinear least squares with the TRF method.\n")
		log.log("Machine precision = %10.3e\n", eps)
		log.log("N = %d    M = %d\n", spec.n, spec.m)

		if log.enable(LogEval) {
			log.out("Solving the nonlinear least squares with the TRF method.\n\n")
			log.out("Machine precision = %10.3e\n", eps)
			log.out("N = %d    M = %d\n", spec.n, spec.m)
			log.out("\n iter    nfev          cost     reduction     step norm    optimality\n")
		}
	}
}

// printIter logs the current iteration details, including the cost, the cost
// reduction, the step norm and the gradient norm.
func (d *trfDriver) printIter() {

	loc := d.location
	spec := &d.optimizer.trfSpec
	ctx := &d.workspace.trfCtx

	log := spec.logger

	if log.enable(LogTrace) {
		log.log("At iterate %5d    cost= %12.5e    |g|= %12.5e\n", ctx.iter, loc.cost, ctx.gnorm)
	} else if log.enable(LogEval) {
		if ctx.iter%int(log.Level) == 0 {
			log.log("At iterate %5d    cost= %12.5e    |g|= %12.5e\n", ctx.iter, loc.cost, ctx.gnorm)
		}
	}

	if log.enable(LogEval) {
		if ctx.iter == 0 {
			log.out("%5d %7d %13.4e %13s %13s %13.2e\n",
				ctx.iter, ctx.numEval, loc.cost, "-", "-", ctx.gnorm)
		} else {
			log.out("%5d %7d %13.4e %13.2e %13.2e %13.2e\n",
				ctx.iter, ctx.numEval, loc.cost, ctx.actualRed, ctx.stepNorm, ctx.gnorm)
		}
	}
}

// printExit logs the final statistics and exit conditions of the optimization process.
func (d *trfDriver) printExit(status Status, cost0 float64) {

	loc := d.location
	spec := &d.optimizer.trfSpec
	ctx := &d.workspace.trfCtx

	log := spec.logger
	if !log.enable(LogLast) {
		return
	}

	var msg string
	switch status {
	case StatusAborted:
		msg = "The optimization process was aborted."
	case StatusMaxEval:
		msg = "The maximum number of function evaluations is exceeded."
	case StatusGTol:
		msg = "`gtol` termination condition is satisfied."
	case StatusFTol:
		msg = "`ftol` termination condition is satisfied."
	case StatusXTol:
		msg = "`xtol` termination condition is satisfied."
	case StatusFXTol:
		msg = "Both `ftol` and `xtol` termination conditions are satisfied."
	default:
		msg = "Unknown termination status."
	}
	log.log("%s\n", msg)
	log.log("Function evaluations %d, initial cost %.4e, final cost %.4e, first-order optimality %.2e.\n",
		ctx.numEval, cost0, loc.cost, ctx.gnorm)
}
