// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package varprodmd

import (
	"fmt"
	"math"
)

type rankKind int

const (
	autoRank rankKind = iota
	fixedRank
	energyRank
	noiseRank
)

// Rank selects how many singular values of the snapshot matrix are
// retained. The zero value picks the truncation automatically with the
// optimal hard threshold for unknown noise.
type Rank struct {
	kind  rankKind
	rank  int
	frac  float64
	noise float64
}

// FixedRank retains exactly r singular values, capped at the length of
// the spectrum.
func FixedRank(r int) Rank { return Rank{kind: fixedRank, rank: r} }

// EnergyRank retains the smallest leading set of singular values whose
// cumulative squared energy reaches the fraction frac ∈ (0,1).
func EnergyRank(frac float64) Rank { return Rank{kind: energyRank, frac: frac} }

// AutoRank estimates the truncation with the optimal hard threshold for
// a matrix corrupted by white noise of unknown level.
func AutoRank() Rank { return Rank{kind: autoRank} }

// AutoRankNoise estimates the truncation with the optimal hard
// threshold when the noise level sigma is known.
func AutoRankNoise(sigma float64) Rank { return Rank{kind: noiseRank, noise: sigma} }

// check reports whether the specifier parameters lie in their domain.
func (r Rank) check() error {
	switch {
	case r.kind == fixedRank && r.rank < 1:
		return fmt.Errorf("fixed rank %d: %w", r.rank, ErrInvalidRank)
	case r.kind == energyRank && (r.frac <= 0 || r.frac >= 1):
		return fmt.Errorf("energy fraction %v: %w", r.frac, ErrInvalidRank)
	case r.kind == noiseRank && r.noise <= 0:
		return fmt.Errorf("noise level %v: %w", r.noise, ErrInvalidRank)
	}
	return nil
}

// estimateRank maps the rank specifier onto a concrete truncation of
// the singular value spectrum sigma of a rows×cols matrix. The result
// always lies in [1, len(sigma)].
func estimateRank(sigma []float64, rows, cols int, r Rank) (int, error) {
	if err := r.check(); err != nil {
		return 0, err
	}
	if len(sigma) == 0 || rows < 1 || cols < 1 {
		return 0, fmt.Errorf("empty spectrum: %w", ErrInvalidRank)
	}
	rank := len(sigma)
	switch r.kind {
	case fixedRank:
		rank = r.rank
	case energyRank:
		total := zero
		for _, s := range sigma {
			total += s * s
		}
		cum := zero
		for i, s := range sigma {
			cum += s * s
			if cum >= r.frac*total {
				rank = i + 1
				break
			}
		}
	default:
		tau := svht(sigma, rows, cols, r.noise)
		count := 0
		for _, s := range sigma {
			if s >= tau {
				count++
			}
		}
		if count > 0 {
			rank = count
		}
	}
	return max(min(rank, len(sigma)), 1), nil
}

// svht computes the optimal hard threshold τ⋆ for singular value
// truncation (Gavish & Donoho, "The optimal hard threshold for singular
// values is 4/√3", https://arxiv.org/abs/1305.5870). A known noise
// level selects the closed form λ(β); otherwise the median singular
// value is scaled by the cubic approximation ω(β).
func svht(sigma []float64, rows, cols int, noise float64) float64 {
	lo, hi := float64(rows), float64(cols)
	if lo > hi {
		lo, hi = hi, lo
	}
	beta := lo / hi
	if noise > 0 {
		lambda := math.Sqrt(2*(beta+1) + 8*beta/(beta+1+math.Sqrt(beta*beta+14*beta+1)))
		return lambda * noise * math.Sqrt(hi)
	}
	omega := 0.56*beta*beta*beta - 0.95*beta*beta + 1.82*beta + 1.43
	return median(sigma) * omega
}

// median of a descending spectrum.
func median(sigma []float64) float64 {
	n := len(sigma)
	if n%2 == 1 {
		return sigma[n/2]
	}
	return (sigma[n/2-1] + sigma[n/2]) / 2
}
