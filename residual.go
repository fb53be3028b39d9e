// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package varprodmd

import (
	"math/cmplx"

	"github.com/curioloop/varprodmd/zmat"
)

// packOmega splits the complex eigenvalues into the real vector
// [𝚁𝚎 ω ; 𝙸𝚖 ω] the solver iterates on.
func packOmega(omega []complex128, dst []float64) {
	l := len(omega)
	if len(dst) < 2*l {
		panic("bound check error")
	}
	for i, w := range omega {
		dst[i] = real(w)
		dst[l+i] = imag(w)
	}
}

// unpackOmega rebuilds the complex eigenvalues from their split form.
func unpackOmega(alpha []float64, dst []complex128) {
	l := len(dst)
	if len(alpha) < 2*l {
		panic("bound check error")
	}
	for i := range dst {
		dst[i] = complex(alpha[i], alpha[l+i])
	}
}

// engine evaluates the variable projection residual and Jacobian over a
// fixed sample set: data holds the m measurements of dimension n in
// sample-major order and the free parameters are the l complex
// eigenvalues in split packing. Scratch is sized once per fit.
type engine struct {
	l, m, n int
	t       []float64
	data    []complex128 // m×n

	omega []complex128 // l
	phi   []complex128 // m×l exponential basis
	sinv  []float64    // k reciprocal singular values
	vs    []complex128 // l×k scaled right singular vectors
	b     []complex128 // l×n coefficients
	rho   []complex128 // m×n projected residual
	q     []complex128 // k×n projection scratch
	uq    []complex128 // m×n back projection scratch
	dphi  []complex128 // m basis derivative column
	outer []complex128 // m×n rank-one scratch
	w     []complex128 // n residual correlation scratch
	vg    []complex128 // k×n scaled rank-one scratch
	g     []complex128 // m×n pseudo-inverse derivative term
}

// evalContext carries the factors of one residual evaluation to the
// Jacobian evaluation at the same point.
type evalContext struct {
	k    int
	phi  []complex128 // m×l exponential basis
	u    []complex128 // m×k left singular vectors of Φ
	sinv []float64    // k reciprocals, zero where σ = 0
	v    []complex128 // l×k right singular vectors of Φ
	b    []complex128 // l×n coefficients (𝐕Σ⁻¹𝐔ᴴ)𝐘
	rho  []complex128 // m×n projected residual 𝐘 - 𝐔𝐔ᴴ𝐘
}

// newEngine sizes the evaluation scratch for l eigenvalues over m
// samples of dimension n.
func newEngine(l, m, n int, t []float64, data []complex128) *engine {
	if l < 1 || m < 1 || n < 1 || len(t) < m || len(data) < m*n {
		panic("bound check error")
	}
	k := min(m, l)
	return &engine{
		l: l, m: m, n: n,
		t: t, data: data,
		omega: make([]complex128, l),
		phi:   make([]complex128, m*l),
		sinv:  make([]float64, k),
		vs:    make([]complex128, l*k),
		b:     make([]complex128, l*n),
		rho:   make([]complex128, m*n),
		q:     make([]complex128, k*n),
		uq:    make([]complex128, m*n),
		dphi:  make([]complex128, m),
		outer: make([]complex128, m*n),
		w:     make([]complex128, n),
		vg:    make([]complex128, k*n),
		g:     make([]complex128, m*n),
	}
}

// Residual evaluates the projected residual ρ = 𝐘 - 𝐔𝐔ᴴ𝐘 of the
// exponential basis Φᵢⱼ = 𝚎𝚡𝚙(tᵢωⱼ) at the packed eigenvalues alpha
// and writes its split form [𝚁𝚎 ρ ; 𝙸𝚖 ρ] into dst. The returned
// context feeds the Jacobian evaluation at the same point.
func (e *engine) Residual(alpha, dst []float64) *evalContext {
	l, m, n := e.l, e.m, e.n
	if len(alpha) < 2*l || len(dst) < 2*m*n {
		panic("bound check error")
	}
	unpackOmega(alpha, e.omega)
	for i := 0; i < m; i++ {
		t := complex(e.t[i], 0)
		row := e.phi[i*l : (i+1)*l]
		for j, w := range e.omega {
			row[j] = cmplx.Exp(t * w)
		}
	}

	u, s, v := zmat.SVD(m, l, e.phi)
	k := len(s)
	sinv := e.sinv[:k]
	for j, sv := range s {
		if sv != 0 {
			sinv[j] = 1 / sv
		} else {
			sinv[j] = 0
		}
	}

	cmulH(m, k, n, u, e.data, e.q)
	cmul(m, k, n, u, e.q, e.uq)
	for i, d := range e.data[:m*n] {
		e.rho[i] = d - e.uq[i]
	}

	// 𝐁 = (𝐕Σ⁻¹)𝐔ᴴ𝐘 is the linear coefficient matrix of the projection.
	vs := e.vs[:l*k]
	for i := 0; i < l; i++ {
		for j := 0; j < k; j++ {
			vs[i*k+j] = v[i*k+j] * complex(sinv[j], 0)
		}
	}
	cmul(l, k, n, vs, e.q, e.b)

	mn := m * n
	for i, r := range e.rho[:mn] {
		dst[i] = real(r)
		dst[mn+i] = imag(r)
	}
	return &evalContext{k: k, phi: e.phi, u: u, sinv: sinv, v: v, b: e.b, rho: e.rho}
}

// Jacobian fills the row-major 2mn×2l split derivative of the residual
// with respect to the packed eigenvalues, reusing the factors of the
// residual evaluation at the same point (Golub & Pereyra variable
// projection derivative, both projector terms).
func (e *engine) Jacobian(alpha []float64, ctx *evalContext, dst []float64) {
	l, m, n := e.l, e.m, e.n
	k := ctx.k
	mn := m * n
	cols := 2 * l
	if len(alpha) < cols || len(dst) < 2*mn*cols {
		panic("bound check error")
	}
	for j := 0; j < l; j++ {
		// ∂Φ/∂ωⱼ only touches column j: dΦ = t∘Φ[:,j]
		for i := 0; i < m; i++ {
			e.dphi[i] = complex(e.t[i], 0) * ctx.phi[i*l+j]
		}

		// 𝐀 = (𝐈-𝐔𝐔ᴴ)(dΦ⊗𝐁ⱼ)
		bj := ctx.b[j*n : (j+1)*n]
		for i := 0; i < m; i++ {
			d := e.dphi[i]
			row := e.outer[i*n : (i+1)*n]
			for c, bc := range bj {
				row[c] = d * bc
			}
		}
		cmulH(m, k, n, ctx.u, e.outer, e.q)
		cmul(m, k, n, ctx.u, e.q, e.uq)

		// 𝐆 = 𝐔Σ⁻¹(𝐕ⱼᴴ⊗(dΦᴴρ))
		for c := range e.w {
			e.w[c] = 0
		}
		for i := 0; i < m; i++ {
			s := cmplx.Conj(e.dphi[i])
			if s == 0 {
				continue
			}
			row := ctx.rho[i*n : (i+1)*n]
			for c, rc := range row {
				e.w[c] += s * rc
			}
		}
		for a := 0; a < k; a++ {
			s := cmplx.Conj(ctx.v[j*k+a]) * complex(ctx.sinv[a], 0)
			row := e.vg[a*n : (a+1)*n]
			for c, wc := range e.w {
				row[c] = s * wc
			}
		}
		cmul(m, k, n, ctx.u, e.vg, e.g)

		// column j holds [𝚁𝚎 -𝐀-𝐆 ; 𝙸𝚖 -𝐀-𝐆], column l+j its rotation by 𝑖
		for idx := 0; idx < mn; idx++ {
			jc := e.uq[idx] - e.outer[idx] - e.g[idx]
			re, im := real(jc), imag(jc)
			dst[idx*cols+j] = re
			dst[(mn+idx)*cols+j] = im
			dst[idx*cols+l+j] = -im
			dst[(mn+idx)*cols+l+j] = re
		}
	}
}
