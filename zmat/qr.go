// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zmat

// PivotedQR computes the column ordering of a Householder QR
// factorisation with greedy column pivoting (Businger & Golub) of a
// dense m×n complex matrix stored in row-major order.
//
// The returned permutation holds at position k the index of the
// original column moved there by the pivoting: position 0 is the column
// of largest norm, position 1 the column with the largest residual once
// the first is projected out, and so on for 𝚖𝚒𝚗(m,n) factorisation
// steps; any remaining positions keep the order the swaps left behind.
// Neither 𝐐 nor 𝐑 is formed and the input slice is not modified.
func PivotedQR(m, n int, a []complex128) []int {
	if m <= 0 || n <= 0 || len(a) < m*n {
		panic("bound check error")
	}
	w := make([]complex128, m*n)
	for i := 0; i < m; i++ {
		for j := 0; j < n; j++ {
			w[j*m+i] = a[i*n+j]
		}
	}
	perm := make([]int, n)
	for j := range perm {
		perm[j] = j
	}
	u := make([]complex128, m)
	for k := 0; k < min(m, n); k++ {
		// Partial column norms are recomputed every step: the classical
		// running downdate loses accuracy to cancellation.
		jmax, nmax := k, -one
		for j := k; j < n; j++ {
			if nr := znrm2(w[j*m+k : (j+1)*m]); nr > nmax {
				jmax, nmax = j, nr
			}
		}
		if jmax != k {
			zswap(w[k*m:(k+1)*m], w[jmax*m:(jmax+1)*m])
			perm[k], perm[jmax] = perm[jmax], perm[k]
		}
		if nmax == 0 {
			break
		}
		uk := u[: m-k : m-k]
		copy(uk, w[k*m+k:(k+1)*m])
		_, beta := house(uk)
		if beta == 0 {
			continue
		}
		for j := k + 1; j < n; j++ {
			col := w[j*m+k : (j+1)*m]
			s := zdotc(uk, col)
			zaxpy(-complex(beta, 0)*s, uk, col)
		}
	}
	return perm
}
