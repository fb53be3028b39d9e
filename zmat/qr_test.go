// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zmat

import "testing"

func TestPivotedQRPermutation(t *testing.T) {
	gen := cgen{state: 17}
	m, n := 7, 5
	perm := PivotedQR(m, n, gen.matrix(m, n))
	if len(perm) != n {
		t.Fatalf("TestPivotedQRPermutation: want %d entries, got %d", n, len(perm))
	}
	seen := make([]bool, n)
	for _, p := range perm {
		if p < 0 || p >= n || seen[p] {
			t.Fatalf("TestPivotedQRPermutation: not a permutation: %v", perm)
		}
		seen[p] = true
	}
}

func TestPivotedQROrthogonalColumns(t *testing.T) {
	// orthogonal columns pivot in pure norm order
	m, n := 6, 4
	scales := []float64{1, 10, 5, 2}
	a := make([]complex128, m*n)
	for j, s := range scales {
		a[j*n+j] = complex(s, 0)
	}
	perm := PivotedQR(m, n, a)
	want := []int{1, 2, 3, 0}
	for k := range want {
		if perm[k] != want[k] {
			t.Fatalf("TestPivotedQROrthogonalColumns: want %v, got %v", want, perm)
		}
	}
}

func TestPivotedQRDependentColumns(t *testing.T) {
	// column 2 is parallel to column 0, so once it is chosen the
	// residual of column 0 vanishes and column 1 must come second
	m, n := 5, 3
	a := make([]complex128, m*n)
	for i := 0; i < m; i++ {
		base := complex(float64(i+1), float64(m-i))
		a[i*n+0] = base
		a[i*n+1] = complex(0.1, 0) * complex(float64(i*i%3+1), -1)
		a[i*n+2] = complex(2, 0) * base
	}
	perm := PivotedQR(m, n, a)
	want := []int{2, 1, 0}
	for k := range want {
		if perm[k] != want[k] {
			t.Fatalf("TestPivotedQRDependentColumns: want %v, got %v", want, perm)
		}
	}
}
