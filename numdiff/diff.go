package numdiff

import (
	"errors"
	"math"
)

var sqrtEps = math.Sqrt(math.Nextafter(1, 2) - 1)
var cubeEps = math.Pow(math.Nextafter(1, 2)-1, float64(1)/3)

type Method int

const (
	// Forward use the first order accuracy forward difference.
	Forward Method = iota
	// Central use the second order accuracy central difference.
	Central
)

// Spec represents a numerical differentiation algorithm to estimate the Jacobian
// of an unconstrained vector function by finite differences.
//
// # Reference:
//
//   - https://en.wikipedia.org/wiki/Finite_difference
//   - https://github.com/scipy/scipy/blob/main/scipy/optimize/_numdiff.py
//
// # License
//
//   - https://github.com/scipy/scipy/blob/main/LICENSE.txt
type Spec struct {
	N, M int
	// Function of which to estimate the derivatives.
	// The argument x passed to this function is an n-vector.
	// The result is stored in an m-vector y.
	Eval func(x, y []float64)
	// Finite difference method to use.
	Method Method
	// Relative step size used to compute the absolute step size as
	// h = RelStep * sign(x0) * abs(x0).
	RelStep float64
	// Absolute step size to use. Takes precedence over RelStep.
	// For the Central method the sign of the step is ignored.
	// When neither AbsStep nor RelStep is provided the step defaults to
	// h = sign(x0) * eps^(1/2 or 1/3) * max(1, abs(x0)).
	AbsStep float64
	diffCtx
}

type diffCtx struct {
	f0, fx []float64
	step   []float64
}

// check validates the parameters and sizes the scratch buffers.
func (s *Spec) check(x0, jac []float64) (err error) {
	switch {
	case s.N <= 0 || s.M <= 0:
		err = errors.New("negative dimensions")
	case s.Method != Forward && s.Method != Central:
		err = errors.New("unknown method")
	case s.Eval == nil:
		err = errors.New("eval function is required")
	case s.N != len(x0):
		err = errors.New("invalid x0 dimensions")
	case s.N*s.M > len(jac):
		err = errors.New("invalid jacobian dimensions")
	}
	if err != nil {
		return err
	}
	if len(s.f0) != s.M {
		s.f0 = make([]float64, s.M)
		s.fx = make([]float64, 2*s.M)
	}
	if len(s.step) != s.N {
		s.step = make([]float64, s.N)
	}
	return nil
}

// stepSize fills the per-variable finite difference steps.
// A step is widened whenever x0+h is not representable apart from x0.
func (s *Spec) stepSize(x0 []float64) {
	h := s.step
	if len(h) != len(x0) {
		panic("bound check error")
	}
	eps := sqrtEps
	if s.Method == Central {
		eps = cubeEps
	}
	abs, rel := s.AbsStep, s.RelStep
	if abs == 0 && rel == 0 {
		for i, v := range x0 {
			h[i] = math.Copysign(eps, v) * math.Max(1.0, math.Abs(v))
		}
	} else {
		for i, v := range x0 {
			d := abs
			if d == 0 {
				d = math.Copysign(rel, v) * math.Abs(v)
			}
			if (v+d)-v == 0 {
				d = math.Copysign(eps, v) * math.Max(1.0, math.Abs(v))
			}
			h[i] = d
		}
	}
	if s.Method == Central {
		for i, v := range h {
			h[i] = math.Abs(v)
		}
	}
}

// Jacobian estimates the derivatives of Eval at x0 and stores them in
// jac as a row-major M×N matrix: jac[i+j*N] holds ∂fⱼ/∂xᵢ.
// The entries of x0 are perturbed in place and restored before return.
func (s *Spec) Jacobian(x0, jac []float64) error {
	if err := s.check(x0, jac); err != nil {
		return err
	}
	s.stepSize(x0)
	if s.Method == Central {
		s.central(x0, jac)
	} else {
		s.forward(x0, jac)
	}
	return nil
}

func (s *Spec) forward(x0, df []float64) {
	f0, fx, h, n := s.f0, s.fx[:s.M], s.step, s.N
	if len(h) != len(x0) || len(f0) != len(fx) {
		panic("bound check error")
	}
	fun := s.Eval
	fun(x0, f0)
	for i, d := range h {
		t := x0[i]
		x0[i] = t + d
		fun(x0, fx)
		r := 1.0 / d
		for j := range f0 {
			df[i+j*n] = (fx[j] - f0[j]) * r
		}
		x0[i] = t
	}
}

func (s *Spec) central(x0, df []float64) {
	h, n, m := s.step, s.N, s.M
	f1, f2 := s.fx[:m], s.fx[m:]
	if len(h) != len(x0) || len(f1) != len(f2) {
		panic("bound check error")
	}
	fun := s.Eval
	for i, d := range h {
		x := x0[i]
		r := 1.0 / (2 * d)
		x0[i] = x - d
		fun(x0, f1)
		x0[i] = x + d
		fun(x0, f2)
		for j := range f1 {
			df[i+j*n] = (f2[j] - f1[j]) * r
		}
		x0[i] = x
	}
}

// NumEval reports the number of function evaluations one Jacobian
// estimate costs: N+1 for Forward, 2N for Central.
func (s *Spec) NumEval() int {
	if s.Method == Central {
		return 2 * s.N
	}
	return s.N + 1
}
