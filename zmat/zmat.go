// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zmat

import (
	"math"
	"math/cmplx"
)

const (
	zero = 0.0
	one  = 1.0
	eps  = float64(7)/3 - float64(4)/3 - 1.
)

// cabs1 computes |𝚁𝚎 z| + |𝙸𝚖 z|, a cheap magnitude estimate.
func cabs1(z complex128) float64 {
	return math.Abs(real(z)) + math.Abs(imag(z))
}

// zdotc computes the conjugated dot product Σ x̄ᵢyᵢ.
func zdotc(x, y []complex128) (dot complex128) {
	n := uint(len(x))
	if n > uint(len(y)) {
		panic("bound check error")
	}
	for i := uint(0); i < n; i++ {
		dot += cmplx.Conj(x[i]) * y[i]
	}
	return dot
}

// znrm2 computes the Euclidean norm of x, guarding against overflow.
func znrm2(x []complex128) float64 {
	scale, ssq := zero, one
	if len(x) == 0 {
		return zero
	}
	for _, z := range x {
		for _, v := range [2]float64{real(z), imag(z)} {
			if v == 0 {
				continue
			}
			if a := math.Abs(v); scale < a {
				sa := scale / a
				ssq = 1 + ssq*sa*sa
				scale = a
			} else {
				sa := a / scale
				ssq += sa * sa
			}
		}
	}
	return scale * math.Sqrt(ssq)
}

// zaxpy performs a constant times a vector plus a vector: y += αx.
func zaxpy(alpha complex128, x, y []complex128) {
	n := uint(len(x))
	if alpha == 0 {
		return
	}
	if n > uint(len(y)) {
		panic("bound check error")
	}
	for i := uint(0); i < n; i++ {
		y[i] += alpha * x[i]
	}
}

// zscal scales a vector by a constant.
func zscal(alpha complex128, x []complex128) {
	for i := range x {
		x[i] *= alpha
	}
}

// zswap exchanges two vectors.
func zswap(x, y []complex128) {
	n := uint(len(x))
	if n > uint(len(y)) {
		panic("bound check error")
	}
	for i := uint(0); i < n; i++ {
		x[i], y[i] = y[i], x[i]
	}
}

// zrot applies the unitary plane rotation
//
//	⎡x'⎤   ⎡  c   -s̄ ⎤⎡x⎤
//	⎣y'⎦ = ⎣  s    c ⎦⎣y⎦
//
// elementwise to the vector pair, with real c and complex s, c²+|s|² = 1.
func zrot(x, y []complex128, c float64, s complex128) {
	n := uint(len(x))
	if n > uint(len(y)) {
		panic("bound check error")
	}
	cs := cmplx.Conj(s)
	for i := uint(0); i < n; i++ {
		xi, yi := x[i], y[i]
		x[i] = complex(c, 0)*xi - cs*yi
		y[i] = s*xi + complex(c, 0)*yi
	}
}

// house builds a Hermitian elementary reflector 𝐏 = 𝐈 - β𝐮𝐮ᴴ with
// 𝐏x = αe₁ and real β, writing 𝐮 over x. The target α = -e^{iθ}‖x‖
// keeps the leading update free of cancellation (Golub & Van Loan,
// "Matrix Computations", algorithm 5.1.1 extended to ℂ).
func house(x []complex128) (alpha complex128, beta float64) {
	nrm := znrm2(x)
	if nrm == 0 {
		return 0, 0
	}
	phase := complex(-1, 0)
	if x[0] != 0 {
		phase = -x[0] / complex(cmplx.Abs(x[0]), 0)
	}
	alpha = phase * complex(nrm, 0)
	x[0] -= alpha
	uu := real(zdotc(x, x))
	if uu == 0 {
		return alpha, 0
	}
	return alpha, 2 / uu
}
