// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package trf

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/curioloop/varprodmd/numdiff"
)

// LogLevel controls the frequency and type of logger output
type LogLevel int

const (
	// LogNoop no output is generated (level < 0)
	LogNoop LogLevel = -1
	// LogLast print only the termination report
	LogLast LogLevel = 0
	// LogEval print also cost and optimality every `level` iterations for any (0 < level < 99)
	LogEval LogLevel = 1
	// LogTrace print details of every iteration
	LogTrace LogLevel = 99
)

// Logger handles logging output for the optimizer.
// Note the writers must be thread-safe.
type Logger struct {
	Level LogLevel
	Msg   io.Writer // Writer to output log messages.
	Out   io.Writer // Writer for the iteration table.
}

func (l *Logger) enable(level LogLevel) bool {
	return l.Level >= level
}

func (l *Logger) log(format string, a ...any) {
	if len(a) > 0 {
		_, _ = fmt.Fprintf(l.Msg, format, a...)
	} else {
		_, _ = fmt.Fprint(l.Msg, format)
	}
}

func (l *Logger) out(format string, a ...any) {
	if len(a) > 0 {
		_, _ = fmt.Fprintf(l.Out, format, a...)
	} else {
		_, _ = fmt.Fprint(l.Out, format)
	}
}

// Residual evaluates the m-vector of residuals f(x) into f.
type Residual func(x, f []float64)

// Jacobian evaluates the row-major m×n derivative matrix ∂fᵢ/∂xⱼ into jac.
// It is only ever invoked at the point of the immediately preceding
// residual evaluation, so implementations may reuse cached factors.
type Jacobian func(x, jac []float64)

// Config specifies the algorithmic options of a least-squares run.
// The zero value selects the trust-region reflective method with an
// exact subproblem solver, ordinary squared loss and unit scaling.
type Config struct {
	Method   Method
	TRSolver TRSolver
	Loss     Loss
	// FScale sets the margin between inlier and outlier residuals for
	// robust losses. Zero means 1.
	FScale float64
	Scale  Scale
	// Tolerances for the cost, step and gradient termination tests.
	// Zero means the 1e-8 default, negative disables the test.
	FTol, XTol, GTol float64
	// The iteration stops when the number of iterations exceeds the limit (0 = unlimited).
	MaxIterations int
	// The iteration stops when the number of residual evaluations exceeds the limit (0 = 100·n).
	MaxEvaluations int
}

// Problem specifies a nonlinear least-squares problem
//
//	minimize  0.5·Σᵢ ρ(fᵢ(x)²)
//
// over m residuals in n variables.
type Problem struct {
	N, M int      // The number of variables and residuals
	Eval Residual // Residual function
	// Optional analytic Jacobian. When nil the derivatives are
	// estimated by finite differences using the Diff method.
	Jac    Jacobian
	Diff   numdiff.Method
	Config Config
}

// New validates the problem and creates an optimizer for it.
func (p *Problem) New(logger *Logger) (optimizer *Optimizer, err error) {

	if logger == nil {
		logger = new(Logger)
		logger.Level = LogNoop
	}
	if logger.Msg == nil {
		logger.Msg = os.Stdout
	}
	if logger.Out == nil {
		logger.Out = os.Stderr
	}

	n, m := p.N, p.M
	cfg := p.Config

	resolve := func(tol float64) float64 {
		switch {
		case tol < 0:
			return 0
		case tol == 0:
			return defaultTol
		}
		return tol
	}
	ftol := resolve(cfg.FTol)
	xtol := resolve(cfg.XTol)
	gtol := resolve(cfg.GTol)

	fscale := cfg.FScale
	if fscale == 0 {
		fscale = one
	}

	maxEval := cfg.MaxEvaluations
	if maxEval == 0 && n > 0 {
		maxEval = 100 * n
	}

	switch {
	case n <= 0 || m <= 0:
		err = errors.New("problem dimensions must be greater than 0")
	case p.Eval == nil:
		err = errors.New("residual function is required")
	case cfg.Method != MethodTRF:
		err = errors.New("unknown method")
	case cfg.TRSolver != TRExact:
		err = errors.New("unknown trust-region solver")
	case cfg.Loss < LossLinear || cfg.Loss > LossArctan:
		err = errors.New("unknown loss")
	case cfg.FScale < 0:
		err = errors.New("loss scale must be greater than 0")
	case cfg.Scale != ScaleUnit && cfg.Scale != ScaleJac:
		err = errors.New("unknown variable scale")
	case p.Jac == nil && p.Diff != numdiff.Forward && p.Diff != numdiff.Central:
		err = errors.New("unknown finite difference method")
	case cfg.MaxIterations < 0 || cfg.MaxEvaluations < 0:
		err = errors.New("iteration limits must not be negative")
	case ftol <= 0 && xtol <= 0 && gtol <= 0:
		err = errors.New("at least one of ftol, xtol or gtol must be enabled")
	}
	if err != nil {
		return
	}

	maxIter := cfg.MaxIterations
	if maxIter == 0 {
		maxIter = int(^uint(0) >> 1)
	}

	optimizer = &Optimizer{
		trfSpec{
			n: n, m: m, k: min(m, n),
			eval:     p.Eval,
			jac:      p.Jac,
			diff:     p.Diff,
			loss:     cfg.Loss,
			fscale:   fscale,
			jacScale: cfg.Scale == ScaleJac,
			ftol:     ftol, xtol: xtol, gtol: gtol,
			maxIter: maxIter, maxEval: maxEval,
			logger: *logger,
		},
	}
	return
}

// Optimizer implemented using the trust-region reflective algorithm
// for unconstrained problems, following the structure of the MINPACK
// Levenberg-Marquardt family: an exactly solved trust-region subproblem
// based on the singular value decomposition of the Jacobian.
type Optimizer struct {
	trfSpec
}

// Workspace contains the state and context of the optimization process.
// Given m residuals over n variables, the work space holds the two
// m×n Jacobian buffers plus a handful of m- and n-vectors.
type Workspace struct {
	n, m int
	trfCtx
}

// Result contains the final result of the optimization process.
type Result struct {
	OK         bool      // Whether the optimization converged.
	X          []float64 // Final solution.
	F          []float64 // Residuals at the solution, without robust scaling.
	G          []float64 // Gradient at the solution.
	Jac        []float64 // Jacobian at the solution, robust-scaled when a loss is active.
	Cost       float64   // Final cost 0.5·Σρ(fᵢ²).
	Optimality float64   // Infinity norm of the gradient.
	Summary              // Optimization summary.
}

// Summary contains a summary of the optimization process.
type Summary struct {
	Status  Status // Final status after optimization.
	NumIter int    // Number of iterations performed.
	NumEval int    // Number of residual evaluations performed.
	NumJac  int    // Number of Jacobian evaluations performed.
}

// Init allocates the workspace for the optimizer.
// To avoid race conditions, separate workspaces need to be created for each goroutine.
// But multiple workspaces could share one optimizer.
func (o *Optimizer) Init() *Workspace {
	w := new(Workspace)
	w.n, w.m = o.n, o.m
	w.init(&o.trfSpec)
	return w
}

// Fit runs the optimization process using the initial guess x and workspace w.
func (o *Optimizer) Fit(x []float64, w *Workspace) *Result {

	if len(x) != o.n {
		panic("initial x dimension not match spec")
	}

	if w.n != o.n || w.m != o.m {
		panic("workspace dimension not match spec")
	}

	loc := trfLoc{
		x: slices.Clone(x),
		f: make([]float64, o.m),
		g: make([]float64, o.n),
	}

	driver := trfDriver{
		optimizer: o,
		workspace: w,
		location:  &loc,
	}

	status := driver.mainLoop()
	return &Result{
		OK: status > StatusMaxEval,
		X:  loc.x, G: loc.g,
		F:          slices.Clone(w.fTrue),
		Jac:        slices.Clone(w.jac),
		Cost:       loc.cost,
		Optimality: w.gnorm,
		Summary: Summary{
			Status:  status,
			NumIter: w.iter,
			NumEval: w.numEval,
			NumJac:  w.numJac,
		},
	}
}
