// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package varprodmd

import (
	"fmt"
	"slices"

	"gonum.org/v1/gonum/lapack/gonum"
	"gonum.org/v1/gonum/mat"

	"github.com/curioloop/varprodmd/zmat"
)

// SelectBestSamples ranks the m measurement columns of data by a column
// pivoted QR factorisation and returns the indices of the best
// conditioned ⌊(1-comp)·m⌋ of them, in pivot order.
func SelectBestSamples(data mat.CMatrix, comp float64) ([]int, error) {
	rows, cols, d := flattenC(data)
	return selectSamplesC(rows, cols, d, comp)
}

func selectSamplesC(rows, cols int, d []complex128, comp float64) ([]int, error) {
	if err := checkSelect(rows, cols, comp); err != nil {
		return nil, err
	}
	keep := int(float64(cols) * (1 - comp))
	return zmat.PivotedQR(rows, cols, d)[:keep], nil
}

// selectSamplesR is the real fast path of SelectBestSamples, pivoting
// through the LAPACK Dgeqp3 factorisation.
func selectSamplesR(rows, cols int, d []float64, comp float64) ([]int, error) {
	if err := checkSelect(rows, cols, comp); err != nil {
		return nil, err
	}
	keep := int(float64(cols) * (1 - comp))

	a := slices.Clone(d[:rows*cols])
	jpvt := make([]int, cols)
	for j := range jpvt {
		jpvt[j] = -1
	}
	tau := make([]float64, min(rows, cols))

	var impl gonum.Implementation
	work := make([]float64, 1)
	impl.Dgeqp3(rows, cols, a, cols, jpvt, tau, work, -1)
	work = make([]float64, int(work[0]))
	impl.Dgeqp3(rows, cols, a, cols, jpvt, tau, work, len(work))
	return jpvt[:keep], nil
}

func checkSelect(rows, cols int, comp float64) error {
	switch {
	case rows < 1 || cols < 1:
		return fmt.Errorf("%d×%d data: %w", rows, cols, ErrBadShape)
	case comp <= 0 || comp >= 1:
		return fmt.Errorf("compression %v outside (0,1): %w", comp, ErrInvalidCompression)
	}
	return nil
}
