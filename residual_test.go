// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package varprodmd

import (
	"math"
	"math/cmplx"
	"testing"

	"github.com/curioloop/varprodmd/numdiff"
)

func TestPackOmegaRoundTrip(t *testing.T) {
	omega := []complex128{-0.1 + 2i, 3.5 - 0.25i, 0, 1e-9 + 42i}
	alpha := make([]float64, 2*len(omega))
	packOmega(omega, alpha)

	// split layout keeps the real parts ahead of the imaginary parts
	if alpha[0] != -0.1 || alpha[len(omega)] != 2 {
		t.Fatal("TestPackOmegaRoundTrip: unexpected packing", alpha)
	}

	back := make([]complex128, len(omega))
	unpackOmega(alpha, back)
	for i := range omega {
		if back[i] != omega[i] {
			t.Fatalf("TestPackOmegaRoundTrip: %v != %v", back[i], omega[i])
		}
	}
}

// expData samples the superposition Σⱼ bⱼ𝚌·𝚎𝚡𝚙(ωⱼtᵢ) of l exponential
// signals with coefficients b (l×n) on the grid tm, sample-major.
func expData(tm []float64, omega, b []complex128, n int) []complex128 {
	m, l := len(tm), len(omega)
	if len(b) < l*n {
		panic("bound check error")
	}
	data := make([]complex128, m*n)
	for i, ti := range tm {
		for j, w := range omega {
			e := cmplx.Exp(complex(ti, 0) * w)
			for c := 0; c < n; c++ {
				data[i*n+c] += e * b[j*n+c]
			}
		}
	}
	return data
}

func TestResidualAtTrueEigenvalues(t *testing.T) {
	omega := []complex128{-0.3 + 2i, -0.05 - 1i}
	b := []complex128{1 + 1i, 2, -0.5, 0.25 - 1i, 1i, 3}
	l, m, n := 2, 30, 3
	tm := make([]float64, m)
	for i := range tm {
		tm[i] = 2 * float64(i) / float64(m-1)
	}
	data := expData(tm, omega, b, n)

	eng := newEngine(l, m, n, tm, data)
	alpha := make([]float64, 2*l)
	packOmega(omega, alpha)
	dst := make([]float64, 2*m*n)
	ctx := eng.Residual(alpha, dst)

	// data drawn from the basis itself projects to a vanishing residual
	var rr, dd float64
	for _, r := range dst {
		rr += r * r
	}
	for _, v := range data {
		dd += real(v)*real(v) + imag(v)*imag(v)
	}
	if math.Sqrt(rr) > 1e-10*math.Sqrt(dd) {
		t.Fatal("TestResidualAtTrueEigenvalues: residual not negligible", math.Sqrt(rr))
	}

	// the projected coefficients reproduce the generating amplitudes
	for i, want := range b {
		if cmplx.Abs(ctx.b[i]-want) > 1e-8 {
			t.Fatalf("TestResidualAtTrueEigenvalues: coefficient %d: got %v want %v", i, ctx.b[i], want)
		}
	}
}

func TestResidualMismatchedEigenvalues(t *testing.T) {
	omega := []complex128{-0.3 + 2i, -0.05 - 1i}
	b := []complex128{1, 2, -0.5, 1i}
	l, m, n := 2, 25, 2
	tm := make([]float64, m)
	for i := range tm {
		tm[i] = 2 * float64(i) / float64(m-1)
	}
	data := expData(tm, omega, b, n)

	eng := newEngine(l, m, n, tm, data)
	alpha := []float64{-0.8, 0.3, 0.7, -1.9}
	dst := make([]float64, 2*m*n)
	eng.Residual(alpha, dst)

	var rr float64
	for _, r := range dst {
		rr += r * r
	}
	if math.Sqrt(rr) < 1e-3 {
		t.Fatal("TestResidualMismatchedEigenvalues: residual vanished off the model", math.Sqrt(rr))
	}
}

func TestJacobianMatchesFiniteDifference(t *testing.T) {
	omega := []complex128{-0.2 + 1.5i, 0.1 - 0.75i}
	b := []complex128{1, -0.5 + 0.5i, 0.25i, 2}
	l, m, n := 2, 50, 2
	tm := make([]float64, m)
	for i := range tm {
		tm[i] = 3 * float64(i) / float64(m-1)
	}
	data := expData(tm, omega, b, n)

	eng := newEngine(l, m, n, tm, data)
	// a trial point away from the optimum keeps both projector terms alive
	alpha := []float64{-0.35, 0.22, 1.31, -0.6}
	rows, cols := 2*m*n, 2*l

	dst := make([]float64, rows)
	ctx := eng.Residual(alpha, dst)
	jac := make([]float64, rows*cols)
	eng.Jacobian(alpha, ctx, jac)

	diff := numdiff.Spec{
		N: cols, M: rows,
		Method: numdiff.Central,
		Eval:   func(x, y []float64) { eng.Residual(x, y) },
	}
	fd := make([]float64, rows*cols)
	if err := diff.Jacobian(alpha, fd); err != nil {
		t.Fatal("TestJacobianMatchesFiniteDifference:", err)
	}

	worst := 0.0
	for i := range jac {
		dev := math.Abs(jac[i]-fd[i]) / math.Max(1, math.Abs(fd[i]))
		if dev > worst {
			worst = dev
		}
	}
	if worst > 1e-6 {
		t.Fatal("TestJacobianMatchesFiniteDifference: worst deviation", worst)
	}
}

func TestJacobianSplitStructure(t *testing.T) {
	omega := []complex128{-0.2 + 1.5i}
	b := []complex128{1, 2i}
	l, m, n := 1, 12, 2
	tm := make([]float64, m)
	for i := range tm {
		tm[i] = float64(i) * 0.2
	}
	data := expData(tm, omega, b, n)

	eng := newEngine(l, m, n, tm, data)
	alpha := []float64{-0.4, 1.1}
	dst := make([]float64, 2*m*n)
	ctx := eng.Residual(alpha, dst)
	jac := make([]float64, 2*m*n*2*l)
	eng.Jacobian(alpha, ctx, jac)

	// the imaginary direction is the real one rotated by 𝑖:
	// ∂/∂𝙸𝚖 = [-𝙸𝚖 ∂/∂𝚁𝚎 ; 𝚁𝚎 ∂/∂𝚁𝚎]
	mn := m * n
	cols := 2 * l
	for idx := 0; idx < mn; idx++ {
		re := jac[idx*cols]
		im := jac[(mn+idx)*cols]
		if jac[idx*cols+1] != -im || jac[(mn+idx)*cols+1] != re {
			t.Fatal("TestJacobianSplitStructure: split columns disagree at", idx)
		}
	}
}
