// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package varprodmd

import (
	"errors"

	"gonum.org/v1/gonum/mat"

	"github.com/curioloop/varprodmd/zmat"
)

var errSVD = errors.New("varprodmd: factorization failed to converge")

// midpointsC builds the trapezoidal linearisation of the snapshot flow:
// column k of y holds the interval midpoint (dₖ+dₖ₊₁)/2 and column k of
// z the finite difference (dₖ₊₁-dₖ)/(tₖ₊₁-tₖ).
func midpointsC(rows, cols int, d []complex128, t []float64) (y, z []complex128) {
	if cols < 2 || len(d) < rows*cols || len(t) < cols {
		panic("bound check error")
	}
	w := cols - 1
	y = make([]complex128, rows*w)
	z = make([]complex128, rows*w)
	for i := 0; i < rows; i++ {
		di := d[i*cols : (i+1)*cols]
		yi := y[i*w : (i+1)*w]
		zi := z[i*w : (i+1)*w]
		for k := 0; k < w; k++ {
			lo, hi := di[k], di[k+1]
			yi[k] = (lo + hi) / 2
			zi[k] = (hi - lo) / complex(t[k+1]-t[k], 0)
		}
	}
	return
}

// midpointsR is the real twin of midpointsC.
func midpointsR(rows, cols int, d, t []float64) (y, z []float64) {
	if cols < 2 || len(d) < rows*cols || len(t) < cols {
		panic("bound check error")
	}
	w := cols - 1
	y = make([]float64, rows*w)
	z = make([]float64, rows*w)
	for i := 0; i < rows; i++ {
		di := d[i*cols : (i+1)*cols]
		yi := y[i*w : (i+1)*w]
		zi := z[i*w : (i+1)*w]
		for k := 0; k < w; k++ {
			lo, hi := di[k], di[k+1]
			yi[k] = (lo + hi) / 2
			zi[k] = (hi - lo) / (t[k+1] - t[k])
		}
	}
	return
}

// seedEigsC estimates the continuous spectrum of the flow from the
// linear system 𝐙 ≈ 𝐀𝐘: with the economy SVD 𝐘 = 𝐔Σ𝐕ᴴ truncated to
// rank r, the eigenvalues of the reduced operator 𝐔ᴴ𝐙𝐕Σ⁻¹ seed the
// nonlinear iteration.
func seedEigsC(rows, cols int, y, z []complex128, rank int) []complex128 {
	u, s, v := zmat.SVD(rows, cols, y)
	k := len(s)
	r := min(rank, k)

	ur := make([]complex128, rows*r)
	for i := 0; i < rows; i++ {
		copy(ur[i*r:(i+1)*r], u[i*k:i*k+r])
	}
	vs := make([]complex128, cols*r)
	for j := 0; j < r; j++ {
		si := complex(1/s[j], 0)
		for i := 0; i < cols; i++ {
			vs[i*r+j] = v[i*k+j] * si
		}
	}

	uz := make([]complex128, r*cols)
	at := make([]complex128, r*r)
	cmulH(rows, r, cols, ur, z, uz)
	cmul(r, cols, r, uz, vs, at)
	return zmat.Eigvals(r, at)
}

// seedEigsR is the real fast path of seedEigsC built on the dense real
// factorisations of gonum.
func seedEigsR(rows, cols int, y, z []float64, rank int) ([]complex128, error) {
	var svd mat.SVD
	if !svd.Factorize(mat.NewDense(rows, cols, y), mat.SVDThin) {
		return nil, errSVD
	}
	s := svd.Values(nil)
	r := min(rank, len(s))

	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)
	vs := mat.NewDense(cols, r, nil)
	for i := 0; i < cols; i++ {
		for j := 0; j < r; j++ {
			vs.Set(i, j, v.At(i, j)/s[j])
		}
	}

	var uz, at mat.Dense
	uz.Mul(u.Slice(0, rows, 0, r).T(), mat.NewDense(rows, cols, z))
	at.Mul(&uz, vs)

	var eig mat.Eigen
	if !eig.Factorize(&at, mat.EigenNone) {
		return nil, errSVD
	}
	return eig.Values(nil), nil
}
