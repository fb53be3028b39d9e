// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package varprodmd

import (
	"fmt"
	"math"
	"math/cmplx"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// SortPolicy selects the descending ordering applied to the eigenvalue,
// mode and amplitude triples of a decomposition.
type SortPolicy int

const (
	// SortNone keeps the order the optimizer produced.
	SortNone SortPolicy = iota
	// SortAuto sorts by whichever of |𝚁𝚎 ω|, |𝙸𝚖 ω| or |ω| has the
	// largest variance across the spectrum.
	SortAuto
	// SortByReal sorts by |𝚁𝚎 ω|.
	SortByReal
	// SortByImag sorts by |𝙸𝚖 ω|.
	SortByImag
	// SortByAbs sorts by |ω|.
	SortByAbs
)

// ParseSortPolicy maps the textual policy names "auto", "real", "imag"
// and "abs" onto a SortPolicy.
func ParseSortPolicy(s string) (SortPolicy, error) {
	switch s {
	case "auto":
		return SortAuto, nil
	case "real":
		return SortByReal, nil
	case "imag":
		return SortByImag, nil
	case "abs":
		return SortByAbs, nil
	}
	return SortNone, fmt.Errorf("%q: %w", s, ErrBadSortPolicy)
}

// sortKey materialises the magnitude array the policy sorts on.
func sortKey(policy SortPolicy, omega []complex128) []float64 {
	key := make([]float64, len(omega))
	switch policy {
	case SortByReal:
		for i, w := range omega {
			key[i] = math.Abs(real(w))
		}
	case SortByImag:
		for i, w := range omega {
			key[i] = math.Abs(imag(w))
		}
	case SortByAbs:
		for i, w := range omega {
			key[i] = cmplx.Abs(w)
		}
	default: // SortAuto
		im := make([]float64, len(omega))
		ab := make([]float64, len(omega))
		for i, w := range omega {
			key[i] = math.Abs(real(w))
			im[i] = math.Abs(imag(w))
			ab[i] = cmplx.Abs(w)
		}
		best := stat.Variance(key, nil)
		if v := stat.Variance(im, nil); v > best {
			key, best = im, v
		}
		if v := stat.Variance(ab, nil); v > best {
			key = ab
		}
	}
	return key
}

// sortSpectrum permutes the (ω, mode column, amplitude) triples into
// descending key order. modes is row-major rows×len(ω).
func sortSpectrum(policy SortPolicy, omega []complex128, amps []float64, rows int, modes []complex128) {
	l := len(omega)
	if policy == SortNone || l < 2 {
		return
	}
	key := sortKey(policy, omega)
	idx := make([]int, l)
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return key[idx[a]] > key[idx[b]] })

	permC := make([]complex128, l)
	permF := make([]float64, l)
	for j, p := range idx {
		permC[j] = omega[p]
		permF[j] = amps[p]
	}
	copy(omega, permC)
	copy(amps, permF)
	for i := 0; i < rows; i++ {
		row := modes[i*l : (i+1)*l]
		for j, p := range idx {
			permC[j] = row[p]
		}
		copy(row, permC)
	}
}
