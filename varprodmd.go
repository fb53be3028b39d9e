// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package varprodmd computes dynamic mode decompositions through
// variable projection (Askham & Kutz, SIAM J. Appl. Dyn. Syst. 17(1),
// 2018), fitting continuous-time exponentials to possibly unevenly
// sampled snapshot data.
package varprodmd

import (
	"fmt"
	"io"
	"math"
	"math/cmplx"
	"slices"

	"gonum.org/v1/gonum/cmplxs"
	"gonum.org/v1/gonum/mat"

	"github.com/curioloop/varprodmd/trf"
)

// Problem specifies a variable projection decomposition.
type Problem struct {
	// Rank bounds the spatial dimension of the fit. The zero value
	// estimates the truncation with the optimal hard threshold.
	Rank Rank
	// Exact fits the measurement space directly instead of the
	// rank-reduced representation ΣᵣVᵣᴴ.
	Exact bool
	// Sort orders the recovered spectrum. The zero value keeps the
	// order returned by the solver.
	Sort SortPolicy
	// Compression is the fraction of snapshots discarded by pivoted QR
	// sample selection before the nonlinear stage. Zero keeps every
	// snapshot.
	Compression float64
	// Opt configures the trust-region least-squares solver. The zero
	// value selects the solver defaults, DefaultConfig additionally
	// scales the variables by the Jacobian columns.
	Opt trf.Config
	// Log receives solver reports and numerical warnings. When nil,
	// reports are suppressed and warnings go to standard error.
	Log io.Writer
}

// DefaultConfig returns the customary solver configuration for
// variable projection: trust-region reflective iterations with the
// exact subproblem solver, ordinary squared loss, Jacobian column
// scaling and all tolerances at 1e-8.
func DefaultConfig() trf.Config {
	return trf.Config{
		Method:   trf.MethodTRF,
		TRSolver: trf.TRExact,
		Loss:     trf.LossLinear,
		Scale:    trf.ScaleJac,
		FTol:     1e-8,
		XTol:     1e-8,
		GTol:     1e-8,
	}
}

// VarProDMD holds a variable projection model. Obtain one from
// Problem.New and call Fit or FitReal before querying the
// decomposition.
type VarProDMD struct {
	spec Problem
	dec  *Decomposition
	time []float64
}

// New validates the problem and creates an unfitted model for it.
func (p *Problem) New() (model *VarProDMD, err error) {

	switch {
	case p.Compression < 0 || p.Compression >= 1:
		err = fmt.Errorf("compression %v outside [0,1): %w", p.Compression, ErrInvalidCompression)
	case p.Sort < SortNone || p.Sort > SortByAbs:
		err = fmt.Errorf("sort policy %d: %w", int(p.Sort), ErrBadSortPolicy)
	default:
		err = p.Rank.check()
	}
	if err != nil {
		return
	}

	// Surface solver misconfiguration before any data is seen.
	probe := trf.Problem{N: 1, M: 1, Eval: func(x, f []float64) {}, Config: p.Opt}
	if _, err = probe.New(nil); err != nil {
		err = fmt.Errorf("%w: %v", ErrBadConfig, err)
		return
	}

	model = &VarProDMD{spec: *p}
	return
}

// Fit decomposes complex snapshots sampled at strictly increasing
// timestamps, one snapshot per column of data. A failed fit leaves any
// previous decomposition in place.
func (v *VarProDMD) Fit(data mat.CMatrix, time []float64) error {
	rows, cols, d := flattenC(data)
	if err := checkShapes(rows, cols, time); err != nil {
		return err
	}
	ws, err := prepareC(rows, cols, d, time, &v.spec)
	if err != nil {
		return err
	}
	dec, err := decompose(ws, time, &v.spec)
	if err != nil {
		return err
	}
	v.dec, v.time = dec, slices.Clone(time)
	return nil
}

// FitReal decomposes real snapshots. The recovered spectrum still
// lives in the complex plane, typically in conjugate pairs.
func (v *VarProDMD) FitReal(data mat.Matrix, time []float64) error {
	rows, cols, d := flattenR(data)
	if err := checkShapes(rows, cols, time); err != nil {
		return err
	}
	ws, err := prepareR(rows, cols, d, time, &v.spec)
	if err != nil {
		return err
	}
	dec, err := decompose(ws, time, &v.spec)
	if err != nil {
		return err
	}
	v.dec, v.time = dec, slices.Clone(time)
	return nil
}

// Fitted reports whether the model holds a decomposition.
func (v *VarProDMD) Fitted() bool { return v.dec != nil }

// Eigenvalues returns the continuous-time eigenvalues ω of the fit.
func (v *VarProDMD) Eigenvalues() ([]complex128, error) {
	if v.dec == nil {
		return nil, ErrNotFitted
	}
	return slices.Clone(v.dec.Eigenvalues), nil
}

// Modes returns the unit norm dynamic modes, one column per
// eigenvalue.
func (v *VarProDMD) Modes() (*mat.CDense, error) {
	if v.dec == nil {
		return nil, ErrNotFitted
	}
	rows, cols, d := flattenC(v.dec.Modes)
	return mat.NewCDense(rows, cols, d), nil
}

// Amplitudes returns the modal amplitudes of the fit.
func (v *VarProDMD) Amplitudes() ([]float64, error) {
	if v.dec == nil {
		return nil, ErrNotFitted
	}
	return slices.Clone(v.dec.Amplitudes), nil
}

// Frequencies returns the oscillation frequencies 𝙸𝚖 ω/2π of the
// recovered spectrum.
func (v *VarProDMD) Frequencies() ([]float64, error) {
	if v.dec == nil {
		return nil, ErrNotFitted
	}
	f := make([]float64, len(v.dec.Eigenvalues))
	for i, w := range v.dec.Eigenvalues {
		f[i] = imag(w) / (2 * math.Pi)
	}
	return f, nil
}

// GrowthRates returns the exponential growth rates 𝚁𝚎 ω of the
// recovered spectrum.
func (v *VarProDMD) GrowthRates() ([]float64, error) {
	if v.dec == nil {
		return nil, ErrNotFitted
	}
	g := make([]float64, len(v.dec.Eigenvalues))
	for i, w := range v.dec.Eigenvalues {
		g[i] = real(w)
	}
	return g, nil
}

// Dynamics returns the temporal evolution bⱼ𝚎𝚡𝚙(ωⱼtᵢ) of each mode
// over the fitted timestamps, one mode per row.
func (v *VarProDMD) Dynamics() (*mat.CDense, error) {
	if v.dec == nil {
		return nil, ErrNotFitted
	}
	l, m := len(v.dec.Eigenvalues), len(v.time)
	dyn := make([]complex128, l*m)
	for j, w := range v.dec.Eigenvalues {
		row := dyn[j*m : (j+1)*m]
		for i, ti := range v.time {
			row[i] = cmplx.Exp(w * complex(ti, 0))
		}
		cmplxs.Scale(complex(v.dec.Amplitudes[j], 0), row)
	}
	return mat.NewCDense(l, m, dyn), nil
}

// SSR returns the residual standard error of the fit.
func (v *VarProDMD) SSR() (float64, error) {
	if v.dec == nil {
		return 0, ErrNotFitted
	}
	return v.dec.SSR, nil
}

// SelectedSamples returns the snapshot columns the optimization ran
// on, in selection order.
func (v *VarProDMD) SelectedSamples() ([]int, error) {
	if v.dec == nil {
		return nil, ErrNotFitted
	}
	return slices.Clone(v.dec.Indices), nil
}

// OptStats returns the outcome of the nonlinear solver run.
func (v *VarProDMD) OptStats() (*trf.Result, error) {
	if v.dec == nil {
		return nil, ErrNotFitted
	}
	return v.dec.Opt, nil
}

// Forecast evaluates the fitted model at arbitrary timestamps.
func (v *VarProDMD) Forecast(time []float64) (*mat.CDense, error) {
	if v.dec == nil {
		return nil, ErrNotFitted
	}
	return Predict(v.dec.Modes, v.dec.Eigenvalues, v.dec.Amplitudes, time)
}

// Predict evaluates a modal model Φ·(𝚎𝚡𝚙(ω ⊗ t) ∘ b) at the given
// timestamps, returning one state per column.
func Predict(modes mat.CMatrix, omega []complex128, amplitudes []float64, time []float64) (*mat.CDense, error) {
	rows, cols, d := flattenC(modes)
	switch {
	case rows < 1 || cols < 1:
		return nil, fmt.Errorf("%d×%d modes: %w", rows, cols, ErrBadShape)
	case len(omega) != cols || len(amplitudes) != cols:
		return nil, fmt.Errorf("%d eigenvalues and %d amplitudes for %d modes: %w",
			len(omega), len(amplitudes), cols, ErrBadShape)
	case len(time) < 1:
		return nil, fmt.Errorf("empty prediction time: %w", ErrBadShape)
	}
	nt := len(time)
	dyn := make([]complex128, cols*nt)
	for j, w := range omega {
		row := dyn[j*nt : (j+1)*nt]
		for i, ti := range time {
			row[i] = cmplx.Exp(w * complex(ti, 0))
		}
		cmplxs.Scale(complex(amplitudes[j], 0), row)
	}
	out := make([]complex128, rows*nt)
	cmul(rows, cols, nt, d, dyn, out)
	return mat.NewCDense(rows, nt, out), nil
}

// Decompose fits complex snapshots in one call. A nil problem selects
// automatic rank truncation with the default solver configuration.
func Decompose(data mat.CMatrix, time []float64, p *Problem) (*Decomposition, error) {
	if p == nil {
		p = &Problem{Opt: DefaultConfig()}
	}
	model, err := p.New()
	if err != nil {
		return nil, err
	}
	if err := model.Fit(data, time); err != nil {
		return nil, err
	}
	return model.dec, nil
}
