// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package varprodmd

import (
	"fmt"
	"io"
	"math"
	"math/cmplx"
	"os"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/curioloop/varprodmd/trf"
	"github.com/curioloop/varprodmd/zmat"
)

// Decomposition is the outcome of a variable projection fit.
type Decomposition struct {
	Eigenvalues []complex128 // continuous-time eigenvalues ω
	Modes       *mat.CDense  // unit norm dynamic modes, one column per eigenvalue
	Amplitudes  []float64    // modal amplitudes
	Indices     []int        // measurements the optimization ran on, in selection order
	SSR         float64      // residual standard error of the fit
	// Underdetermined marks a fit where fewer samples than eigenvalues
	// survived the compression.
	Underdetermined bool
	Opt             *trf.Result // solver outcome
}

// workset is the prepared linear stage of one fit: the possibly
// projected working representation, the projection basis and the
// eigenvalue seed.
type workset struct {
	n, m  int          // snapshot dimensions
	rank  int          // retained singular values
	rows  int          // rows of the working representation
	basis []complex128 // n×rank projection basis, nil on exact runs
	work  []complex128 // rows×m working representation
	workR []float64    // real twin of work, nil on complex runs
	seed  []complex128 // initial eigenvalues
}

// checkShapes validates the snapshot layout before any numerical work.
func checkShapes(rows, cols int, t []float64) error {
	switch {
	case rows < 1 || cols < 2:
		return fmt.Errorf("%d×%d snapshots: %w", rows, cols, ErrBadShape)
	case len(t) != cols:
		return fmt.Errorf("%d timestamps for %d snapshots: %w", len(t), cols, ErrBadShape)
	}
	for i := 1; i < len(t); i++ {
		if t[i] <= t[i-1] {
			return fmt.Errorf("timestamps not strictly increasing: %w", ErrBadShape)
		}
	}
	return nil
}

// prepareC runs the linear stage on complex snapshots: economy SVD,
// rank estimation, working representation and eigenvalue seed.
func prepareC(rows, cols int, data []complex128, t []float64, p *Problem) (*workset, error) {
	u, s, v := zmat.SVD(rows, cols, data)
	rank, err := estimateRank(s, rows, cols, p.Rank)
	if err != nil {
		return nil, err
	}

	ws := &workset{n: rows, m: cols, rank: rank}
	if p.Exact {
		ws.rows = rows
		ws.work = data
	} else {
		// Optimize in the projected representation ΣᵣVᵣᴴ instead of the
		// full measurement space.
		k := len(s)
		ws.rows = rank
		ws.work = make([]complex128, rank*cols)
		for j := 0; j < rank; j++ {
			sj := complex(s[j], 0)
			row := ws.work[j*cols : (j+1)*cols]
			for i := 0; i < cols; i++ {
				row[i] = sj * cmplx.Conj(v[i*k+j])
			}
		}
		ws.basis = make([]complex128, rows*rank)
		for i := 0; i < rows; i++ {
			copy(ws.basis[i*rank:(i+1)*rank], u[i*k:i*k+rank])
		}
	}

	y, z := midpointsC(ws.rows, cols, ws.work, t)
	ws.seed = seedEigsC(ws.rows, cols-1, y, z, rank)
	return ws, nil
}

// prepareR is the real snapshot twin of prepareC built on the dense
// real factorisations of gonum.
func prepareR(rows, cols int, data, t []float64, p *Problem) (*workset, error) {
	var svd mat.SVD
	if !svd.Factorize(mat.NewDense(rows, cols, data), mat.SVDThin) {
		return nil, errSVD
	}
	s := svd.Values(nil)
	rank, err := estimateRank(s, rows, cols, p.Rank)
	if err != nil {
		return nil, err
	}

	ws := &workset{n: rows, m: cols, rank: rank}
	if p.Exact {
		ws.rows = rows
		ws.workR = data
	} else {
		var u, v mat.Dense
		svd.UTo(&u)
		svd.VTo(&v)
		ws.rows = rank
		ws.workR = make([]float64, rank*cols)
		for j := 0; j < rank; j++ {
			row := ws.workR[j*cols : (j+1)*cols]
			for i := 0; i < cols; i++ {
				row[i] = s[j] * v.At(i, j)
			}
		}
		ws.basis = make([]complex128, rows*rank)
		for i := 0; i < rows; i++ {
			for j := 0; j < rank; j++ {
				ws.basis[i*rank+j] = complex(u.At(i, j), 0)
			}
		}
	}

	y, z := midpointsR(ws.rows, cols, ws.workR, t)
	seed, err := seedEigsR(ws.rows, cols-1, y, z, rank)
	if err != nil {
		return nil, err
	}
	ws.seed = seed
	// The nonlinear stage is complex regardless of the input field.
	ws.work = toComplex(ws.workR)
	return ws, nil
}

// decompose runs the nonlinear variable projection stage over a
// prepared working set and recombines eigenvalues, modes and
// amplitudes.
func decompose(ws *workset, t []float64, p *Problem) (*Decomposition, error) {
	nev := len(ws.seed)
	m := ws.m

	indices := make([]int, 0, m)
	if p.Compression > 0 {
		var idx []int
		var err error
		if ws.workR != nil {
			idx, err = selectSamplesR(ws.rows, m, ws.workR, p.Compression)
		} else {
			idx, err = selectSamplesC(ws.rows, m, ws.work, p.Compression)
		}
		if err != nil {
			return nil, err
		}
		// A degenerate selection of at most one sample falls back to
		// the full snapshot sequence.
		if len(idx) > 1 {
			indices = append(indices, idx...)
		}
	}
	if len(indices) == 0 {
		for i := 0; i < m; i++ {
			indices = append(indices, i)
		}
	}

	mp := len(indices)
	timeIn := make([]float64, mp)
	yt := make([]complex128, mp*ws.rows)
	for a, col := range indices {
		timeIn[a] = t[col]
		for j := 0; j < ws.rows; j++ {
			yt[a*ws.rows+j] = ws.work[j*m+col]
		}
	}

	under := mp < nev
	if under {
		warn(p.Log, "varprodmd: attempting to solve an underdetermined system, decrease the desired rank or compression\n")
	}

	eng := newEngine(nev, mp, ws.rows, timeIn, yt)
	var ctx *evalContext
	prob := trf.Problem{
		N: 2 * nev, M: 2 * mp * ws.rows,
		Eval:   func(x, f []float64) { ctx = eng.Residual(x, f) },
		Jac:    func(x, jac []float64) { eng.Jacobian(x, ctx, jac) },
		Config: p.Opt,
	}
	opt, err := prob.New(solverLogger(p.Log))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadConfig, err)
	}

	x0 := make([]float64, 2*nev)
	packOmega(ws.seed, x0)
	res := opt.Fit(x0, opt.Init())

	// The solver may finish on a rejected trial point, so the linear
	// coefficients are refreshed at the final iterate.
	ctx = eng.Residual(res.X, make([]float64, 2*mp*ws.rows))
	omega := make([]complex128, nev)
	unpackOmega(res.X, omega)

	n := ws.n
	xi := make([]complex128, n*nev)
	if ws.basis != nil {
		bt := make([]complex128, ws.rows*nev)
		for j := 0; j < nev; j++ {
			for i := 0; i < ws.rows; i++ {
				bt[i*nev+j] = ctx.b[j*ws.rows+i]
			}
		}
		cmul(n, ws.rows, nev, ws.basis, bt, xi)
	} else {
		for j := 0; j < nev; j++ {
			for i := 0; i < n; i++ {
				xi[i*nev+j] = ctx.b[j*n+i]
			}
		}
	}

	amps := make([]float64, nev)
	for j := 0; j < nev; j++ {
		ss := zero
		for i := 0; i < n; i++ {
			re, im := real(xi[i*nev+j]), imag(xi[i*nev+j])
			ss += re*re + im*im
		}
		amps[j] = math.Sqrt(ss)
		if amps[j] == 0 {
			continue
		}
		si := complex(1/amps[j], 0)
		for i := 0; i < n; i++ {
			xi[i*nev+j] *= si
		}
	}

	sortSpectrum(p.Sort, omega, amps, n, xi)

	ssr := floats.Norm(res.F, 2) / math.Sqrt(math.Max(float64(m-mp*ws.rows-nev), 1))
	return &Decomposition{
		Eigenvalues:     omega,
		Modes:           mat.NewCDense(n, nev, xi),
		Amplitudes:      amps,
		Indices:         indices,
		SSR:             ssr,
		Underdetermined: under,
		Opt:             res,
	}, nil
}

// warn writes non-fatal numerical notices to the configured writer,
// falling back to standard error.
func warn(w io.Writer, msg string) {
	if w == nil {
		w = os.Stderr
	}
	_, _ = fmt.Fprint(w, msg)
}

// solverLogger adapts the fit log writer for the solver: silent without
// a writer, termination reports otherwise.
func solverLogger(w io.Writer) *trf.Logger {
	if w == nil {
		return nil
	}
	return &trf.Logger{Level: trf.LogLast, Msg: w, Out: w}
}
