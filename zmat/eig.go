// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zmat

import (
	"math"
	"math/cmplx"
)

const eigMaxIter = 30

// Eigvals computes the eigenvalues of a dense n×n complex matrix stored
// in row-major order. The matrix is reduced to upper Hessenberg form by
// Hermitian reflectors and deflated by the single-shift QR iteration
// with Wilkinson shifts (Golub & Van Loan, "Matrix Computations", §7.5).
// Schur vectors are not accumulated. The eigenvalues are returned in no
// particular order and the input slice is not modified.
func Eigvals(n int, a []complex128) []complex128 {
	if n <= 0 || len(a) < n*n {
		panic("bound check error")
	}
	h := make([]complex128, n*n)
	copy(h, a[:n*n])
	if n == 1 {
		return h
	}
	hessenberg(n, h)
	return hqr(n, h)
}

// hessenberg reduces h in place to upper Hessenberg form 𝐇 = 𝐏ᴴ𝐀𝐏 by a
// sequence of Hermitian reflectors 𝐏ₖ = 𝐈 - β𝐮𝐮ᴴ.
func hessenberg(n int, h []complex128) {
	u := make([]complex128, n)
	for k := 0; k < n-2; k++ {
		uk := u[: n-k-1 : n-k-1]
		low := zero
		for i := range uk {
			uk[i] = h[(k+1+i)*n+k]
			if i > 0 {
				low += cabs1(uk[i])
			}
		}
		if low == 0 {
			continue
		}
		alpha, beta := house(uk)
		if beta == 0 {
			continue
		}
		h[(k+1)*n+k] = alpha
		for i := k + 2; i < n; i++ {
			h[i*n+k] = 0
		}
		// 𝐇 ← 𝐏𝐇 on rows k+1..n-1, columns k+1..n-1
		for j := k + 1; j < n; j++ {
			var s complex128
			for i := range uk {
				s += cmplx.Conj(uk[i]) * h[(k+1+i)*n+j]
			}
			s *= complex(beta, 0)
			for i := range uk {
				h[(k+1+i)*n+j] -= s * uk[i]
			}
		}
		// 𝐇 ← 𝐇𝐏 on all rows, columns k+1..n-1
		for i := 0; i < n; i++ {
			var s complex128
			for j := range uk {
				s += h[i*n+k+1+j] * uk[j]
			}
			s *= complex(beta, 0)
			for j := range uk {
				h[i*n+k+1+j] -= s * cmplx.Conj(uk[j])
			}
		}
	}
}

// hqr drives the shifted QR iteration on an upper Hessenberg matrix and
// returns its eigenvalues. Converged eigenvalues deflate off the bottom
// of the active block; a stalled block receives exceptional shifts and,
// past the iteration cap, its trailing diagonal entry is accepted as is
// so that the sweep always terminates.
func hqr(n int, h []complex128) []complex128 {
	w := make([]complex128, n)
	cs := make([]float64, n)
	sn := make([]complex128, n)

	hnrm := zero
	for i := 0; i < n; i++ {
		sum := zero
		for j := 0; j < n; j++ {
			sum += cabs1(h[i*n+j])
		}
		hnrm = math.Max(hnrm, sum)
	}
	if hnrm == 0 {
		return w
	}

	hi, its := n-1, 0
	for hi >= 0 {
		if hi == 0 {
			w[0] = h[0]
			break
		}

		lo := 0
		for i := hi - 1; i >= 0; i-- {
			tst := cabs1(h[i*n+i]) + cabs1(h[(i+1)*n+i+1])
			if tst == 0 {
				tst = hnrm
			}
			if cabs1(h[(i+1)*n+i]) <= eps*tst {
				h[(i+1)*n+i] = 0
				lo = i + 1
				break
			}
		}

		switch {
		case lo == hi:
			w[hi] = h[hi*n+hi]
			hi, its = hi-1, 0
			continue
		case lo == hi-1:
			l1, l2 := eig2(h[lo*n+lo], h[lo*n+hi], h[hi*n+lo], h[hi*n+hi])
			w[lo], w[hi] = l1, l2
			hi, its = hi-2, 0
			continue
		}

		its++
		if its > eigMaxIter {
			w[hi] = h[hi*n+hi]
			hi, its = hi-1, 0
			continue
		}

		var mu complex128
		if its%10 == 0 {
			mu = h[hi*n+hi] + complex(cabs1(h[hi*n+hi-1]), 0)
		} else {
			// Wilkinson shift: the eigenvalue of the trailing 2×2 block
			// closest to h[hi,hi].
			aa, bb := h[(hi-1)*n+hi-1], h[(hi-1)*n+hi]
			cc, dd := h[hi*n+hi-1], h[hi*n+hi]
			p := (aa - dd) / 2
			q := cmplx.Sqrt(p*p + bb*cc)
			den := p + q
			if cabs1(p-q) > cabs1(den) {
				den = p - q
			}
			mu = dd
			if den != 0 {
				mu = dd - bb*cc/den
			}
		}

		// One explicit QR step 𝐇-μ𝐈 = 𝐐𝐑, 𝐇 ← 𝐑𝐐+μ𝐈 confined to the
		// active block; entries outside it do not feed the spectrum of
		// the blocks that remain.
		for i := lo; i <= hi; i++ {
			h[i*n+i] -= mu
		}
		for i := lo; i < hi; i++ {
			c, s := givens(h[i*n+i], h[(i+1)*n+i])
			cs[i], sn[i] = c, s
			for j := i; j <= hi; j++ {
				a1, a2 := h[i*n+j], h[(i+1)*n+j]
				h[i*n+j] = complex(c, 0)*a1 + s*a2
				h[(i+1)*n+j] = complex(c, 0)*a2 - cmplx.Conj(s)*a1
			}
		}
		for i := lo; i < hi; i++ {
			c, s := cs[i], sn[i]
			for r := lo; r <= i+1; r++ {
				a1, a2 := h[r*n+i], h[r*n+i+1]
				h[r*n+i] = complex(c, 0)*a1 + cmplx.Conj(s)*a2
				h[r*n+i+1] = complex(c, 0)*a2 - s*a1
			}
		}
		for i := lo; i <= hi; i++ {
			h[i*n+i] += mu
		}
	}
	return w
}

// eig2 returns the two eigenvalues of the 2×2 matrix [[a, b], [c, d]].
func eig2(a, b, c, d complex128) (complex128, complex128) {
	half := (a + d) / 2
	q := cmplx.Sqrt((a-d)*(a-d)/4 + b*c)
	return half + q, half - q
}

// givens builds the unitary plane rotation [[c, s], [-s̄, c]] with real
// c annihilating g against f: it maps (f, g) to (r, 0) with |r| = √(|f|²+|g|²).
func givens(f, g complex128) (c float64, s complex128) {
	if g == 0 {
		return one, 0
	}
	if f == 0 {
		return zero, cmplx.Conj(g) / complex(cmplx.Abs(g), 0)
	}
	fa, ga := cmplx.Abs(f), cmplx.Abs(g)
	r := math.Hypot(fa, ga)
	c = fa / r
	s = f / complex(fa, 0) * cmplx.Conj(g) / complex(r, 0)
	return c, s
}
