// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zmat

import (
	"math"
	"math/cmplx"
)

const svdMaxSweep = 30

// SVD computes the economy singular value decomposition 𝐀 = 𝐔Σ𝐕ᴴ of a
// dense m×n complex matrix stored in row-major order.
//
// With k = 𝚖𝚒𝚗(m,n), 𝐔 is returned as the row-major m×k matrix of left
// singular vectors, Σ as the k singular values in descending order and
// 𝐕 as the row-major n×k matrix of right singular vectors. Columns of
// 𝐔 or 𝐕 associated with an exactly zero singular value are left zero
// rather than padded with an arbitrary completion of the basis, so
// 𝐔𝐔ᴴ always projects onto 𝚛𝚊𝚗𝚐𝚎(𝐀).
//
// The factorisation uses the one-sided Jacobi method of Hestenes:
// complex plane rotations are applied on the right until the columns of
// the working matrix are mutually orthogonal, at which point their
// norms are the singular values. The input slice is not modified.
func SVD(m, n int, a []complex128) (u []complex128, s []float64, v []complex128) {
	if m <= 0 || n <= 0 || len(a) < m*n {
		panic("bound check error")
	}
	if m < n {
		// Factorise 𝐀ᴴ instead: 𝐀 = (𝐔'Σ𝐕'ᴴ)ᴴ swaps the roles of 𝐔 and 𝐕.
		b := make([]complex128, n*m)
		for i := 0; i < m; i++ {
			for j := 0; j < n; j++ {
				b[j*m+i] = cmplx.Conj(a[i*n+j])
			}
		}
		ub, sb, vb := SVD(n, m, b)
		return vb, sb, ub
	}

	// Column-major working copies keep every rotation on contiguous memory.
	w := make([]complex128, m*n)
	for i := 0; i < m; i++ {
		for j := 0; j < n; j++ {
			w[j*m+i] = a[i*n+j]
		}
	}
	vw := make([]complex128, n*n)
	for j := 0; j < n; j++ {
		vw[j*n+j] = 1
	}

	tol := float64(m) * eps
	for sweep := 0; sweep < svdMaxSweep; sweep++ {
		rotated := false
		for p := 0; p < n-1; p++ {
			wp := w[p*m : (p+1)*m]
			for q := p + 1; q < n; q++ {
				wq := w[q*m : (q+1)*m]
				g := zdotc(wp, wq)
				ga := cmplx.Abs(g)
				if ga == 0 {
					continue
				}
				pp := real(zdotc(wp, wp))
				qq := real(zdotc(wq, wq))
				if ga <= tol*math.Sqrt(pp*qq) {
					continue
				}
				// Annihilate wₚᴴw_q with the rotation of Rutishauser:
				// cot(2φ) = (‖w_q‖²-‖wₚ‖²) / 2|γ|, phased by γ = |γ|e^{iθ}.
				tau := (qq - pp) / (2 * ga)
				t := one
				if tau != 0 {
					t = math.Copysign(1/(math.Abs(tau)+math.Sqrt(1+tau*tau)), tau)
				}
				c := 1 / math.Sqrt(1+t*t)
				sn := complex(t*c, 0) * (g / complex(ga, 0))
				zrot(wp, wq, c, sn)
				zrot(vw[p*n:(p+1)*n], vw[q*n:(q+1)*n], c, sn)
				rotated = true
			}
		}
		if !rotated {
			break
		}
	}

	s = make([]float64, n)
	for j := 0; j < n; j++ {
		s[j] = znrm2(w[j*m : (j+1)*m])
	}
	for i := 0; i < n-1; i++ {
		jmax := i
		for j := i + 1; j < n; j++ {
			if s[j] > s[jmax] {
				jmax = j
			}
		}
		if jmax != i {
			s[i], s[jmax] = s[jmax], s[i]
			zswap(w[i*m:(i+1)*m], w[jmax*m:(jmax+1)*m])
			zswap(vw[i*n:(i+1)*n], vw[jmax*n:(jmax+1)*n])
		}
	}

	u = make([]complex128, m*n)
	for j := 0; j < n; j++ {
		if s[j] == 0 {
			continue
		}
		r := complex(1/s[j], 0)
		for i := 0; i < m; i++ {
			u[i*n+j] = r * w[j*m+i]
		}
	}
	v = make([]complex128, n*n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			v[i*n+j] = vw[j*n+i]
		}
	}
	return u, s, v
}
