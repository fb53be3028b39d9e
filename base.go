// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package varprodmd

import (
	"math/cmplx"

	"gonum.org/v1/gonum/mat"
)

const (
	zero = 0.0
	one  = 1.0
)

// cmul computes the dense product 𝐂 = 𝐀𝐁 of row-major matrices with
// 𝐀 m×k, 𝐁 k×n and 𝐂 m×n. 𝐂 is overwritten.
func cmul(m, k, n int, a, b, c []complex128) {
	if len(a) < m*k || len(b) < k*n || len(c) < m*n {
		panic("bound check error")
	}
	for i := 0; i < m; i++ {
		ci := c[i*n : (i+1)*n]
		for j := range ci {
			ci[j] = 0
		}
		ai := a[i*k : (i+1)*k]
		for p, aip := range ai {
			if aip == 0 {
				continue
			}
			bp := b[p*n : (p+1)*n]
			for j, bpj := range bp {
				ci[j] += aip * bpj
			}
		}
	}
}

// cmulH computes 𝐂 = 𝐀ᴴ𝐁 with 𝐀 m×k, 𝐁 m×n and 𝐂 k×n, all row-major.
func cmulH(m, k, n int, a, b, c []complex128) {
	if len(a) < m*k || len(b) < m*n || len(c) < k*n {
		panic("bound check error")
	}
	for i := range c[:k*n] {
		c[i] = 0
	}
	for p := 0; p < m; p++ {
		ap := a[p*k : (p+1)*k]
		bp := b[p*n : (p+1)*n]
		for i, api := range ap {
			if api == 0 {
				continue
			}
			s := cmplx.Conj(api)
			ci := c[i*n : (i+1)*n]
			for j, bpj := range bp {
				ci[j] += s * bpj
			}
		}
	}
}

// flattenC copies a complex matrix into a dense row-major slice.
func flattenC(a mat.CMatrix) (rows, cols int, d []complex128) {
	rows, cols = a.Dims()
	if rows < 1 || cols < 1 {
		return rows, cols, nil
	}
	d = make([]complex128, rows*cols)
	if cd, ok := a.(*mat.CDense); ok {
		raw := cd.RawCMatrix()
		for i := 0; i < rows; i++ {
			copy(d[i*cols:(i+1)*cols], raw.Data[i*raw.Stride:i*raw.Stride+cols])
		}
		return
	}
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			d[i*cols+j] = a.At(i, j)
		}
	}
	return
}

// flattenR copies a real matrix into a dense row-major slice.
func flattenR(a mat.Matrix) (rows, cols int, d []float64) {
	rows, cols = a.Dims()
	if rows < 1 || cols < 1 {
		return rows, cols, nil
	}
	d = make([]float64, rows*cols)
	if rd, ok := a.(*mat.Dense); ok {
		raw := rd.RawMatrix()
		for i := 0; i < rows; i++ {
			copy(d[i*cols:(i+1)*cols], raw.Data[i*raw.Stride:i*raw.Stride+cols])
		}
		return
	}
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			d[i*cols+j] = a.At(i, j)
		}
	}
	return
}

// toComplex widens a real slice into the complex field.
func toComplex(d []float64) []complex128 {
	c := make([]complex128, len(d))
	for i, v := range d {
		c[i] = complex(v, 0)
	}
	return c
}
