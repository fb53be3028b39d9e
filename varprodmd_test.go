// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package varprodmd_test

import (
	"bytes"
	"math"
	"math/cmplx"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/curioloop/varprodmd"
	"github.com/curioloop/varprodmd/trf"
)

// twoModeSignal samples the superposition of two spatial profiles
// evolving as aⱼ·𝚎𝚡𝚙(ωⱼt) on a uniform grid, one snapshot per column.
func twoModeSignal(nx, nt int, t0, t1 float64, omega []complex128, amps []float64) (*mat.CDense, []float64) {
	time := make([]float64, nt)
	for k := range time {
		time[k] = t0 + (t1-t0)*float64(k)/float64(nt-1)
	}
	data := mat.NewCDense(nx, nt, nil)
	for i := 0; i < nx; i++ {
		x := -1 + 2*float64(i)/float64(nx-1)
		profiles := []complex128{
			complex(math.Cos(math.Pi*x), 0.2*math.Sin(math.Pi*x)),
			complex(math.Sin(2*math.Pi*x), -0.1*x),
		}
		for k, tk := range time {
			var v complex128
			for j, w := range omega {
				v += complex(amps[j], 0) * profiles[j] * cmplx.Exp(w*complex(tk, 0))
			}
			data.Set(i, k, v)
		}
	}
	return data, time
}

// relErr is the relative Frobenius distance between a prediction and a
// reference snapshot matrix.
func relErr(got, want *mat.CDense) float64 {
	rows, cols := want.Dims()
	var num, den float64
	for i := 0; i < rows; i++ {
		for k := 0; k < cols; k++ {
			d := got.At(i, k) - want.At(i, k)
			v := want.At(i, k)
			num += real(d)*real(d) + imag(d)*imag(d)
			den += real(v)*real(v) + imag(v)*imag(v)
		}
	}
	return math.Sqrt(num / den)
}

// TestFitTwoModeSignal drives the full pipeline over a clean two mode
// signal and checks that spectrum, modes, amplitudes and reconstruction
// all recover the generating model.
func TestFitTwoModeSignal(t *testing.T) {
	omega := []complex128{complex(-0.1, 2*math.Pi), complex(-0.05, -math.Pi)}
	data, time := twoModeSignal(16, 200, 0, 5, omega, []float64{2, 1})

	prob := varprodmd.Problem{
		Rank: varprodmd.FixedRank(2),
		Sort: varprodmd.SortByImag,
		Opt:  varprodmd.DefaultConfig(),
	}
	model, err := prob.New()
	require.NoError(t, err)
	require.False(t, model.Fitted())

	require.NoError(t, model.Fit(data, time))
	require.True(t, model.Fitted())

	eigs, err := model.Eigenvalues()
	require.NoError(t, err)
	require.Len(t, eigs, 2)
	// |𝙸𝚖 ω| ordering puts the 2π mode first
	assert.InDelta(t, real(omega[0]), real(eigs[0]), 1e-2, "growth of mode 0")
	assert.InDelta(t, imag(omega[0]), imag(eigs[0]), 1e-2, "frequency of mode 0")
	assert.InDelta(t, real(omega[1]), real(eigs[1]), 1e-2, "growth of mode 1")
	assert.InDelta(t, imag(omega[1]), imag(eigs[1]), 1e-2, "frequency of mode 1")

	stats, err := model.OptStats()
	require.NoError(t, err)
	assert.True(t, stats.OK, "solver did not converge: %v", stats.Status)

	ssr, err := model.SSR()
	require.NoError(t, err)
	assert.Less(t, ssr, 1e-4)

	idx, err := model.SelectedSamples()
	require.NoError(t, err)
	require.Len(t, idx, 200)
	for i, j := range idx {
		require.Equal(t, i, j, "uncompressed fit must keep every snapshot")
	}

	freqs, err := model.Frequencies()
	require.NoError(t, err)
	assert.InDelta(t, 1, freqs[0], 1e-3)
	assert.InDelta(t, -0.5, freqs[1], 1e-3)

	rates, err := model.GrowthRates()
	require.NoError(t, err)
	assert.InDelta(t, -0.1, rates[0], 1e-3)
	assert.InDelta(t, -0.05, rates[1], 1e-3)

	modes, err := model.Modes()
	require.NoError(t, err)
	mr, mc := modes.Dims()
	require.Equal(t, 16, mr)
	require.Equal(t, 2, mc)
	for j := 0; j < mc; j++ {
		var ss float64
		for i := 0; i < mr; i++ {
			v := modes.At(i, j)
			ss += real(v)*real(v) + imag(v)*imag(v)
		}
		assert.InDelta(t, 1, math.Sqrt(ss), 1e-9, "mode %d is not unit norm", j)
	}

	amps, err := model.Amplitudes()
	require.NoError(t, err)
	require.Len(t, amps, 2)
	assert.Greater(t, amps[0], amps[1], "the doubled mode must dominate")

	dyn, err := model.Dynamics()
	require.NoError(t, err)
	dr, dc := dyn.Dims()
	assert.Equal(t, 2, dr)
	assert.Equal(t, 200, dc)
	// at t₀ = 0 the temporal factor is the amplitude itself
	assert.InDelta(t, amps[0], real(dyn.At(0, 0)), 1e-12)
	assert.InDelta(t, 0, imag(dyn.At(0, 0)), 1e-12)

	// reconstruction over the training window
	rec, err := model.Forecast(time)
	require.NoError(t, err)
	assert.Less(t, relErr(rec, data), 1e-2)

	// extrapolation past the training window follows the analytic model
	future, futureTime := twoModeSignal(16, 20, 5, 6, omega, []float64{2, 1})
	fc, err := model.Forecast(futureTime)
	require.NoError(t, err)
	assert.Less(t, relErr(fc, future), 1e-2)
}

// TestForecastMatchesPredict checks that the model forecast is exactly
// the stand-alone prediction of its own accessors.
func TestForecastMatchesPredict(t *testing.T) {
	omega := []complex128{complex(-0.1, 2*math.Pi), complex(-0.05, -math.Pi)}
	data, time := twoModeSignal(8, 60, 0, 3, omega, []float64{1, 1})

	prob := varprodmd.Problem{Rank: varprodmd.FixedRank(2), Opt: varprodmd.DefaultConfig()}
	model, err := prob.New()
	require.NoError(t, err)
	require.NoError(t, model.Fit(data, time))

	modes, err := model.Modes()
	require.NoError(t, err)
	eigs, err := model.Eigenvalues()
	require.NoError(t, err)
	amps, err := model.Amplitudes()
	require.NoError(t, err)

	want, err := varprodmd.Predict(modes, eigs, amps, time)
	require.NoError(t, err)
	got, err := model.Forecast(time)
	require.NoError(t, err)
	require.Equal(t, want.RawCMatrix().Data, got.RawCMatrix().Data)
}

// TestFitRealConjugatePair fits real measurements and expects the
// spectrum to split into the conjugate pair of the travelling wave.
func TestFitRealConjugatePair(t *testing.T) {
	nx, nt := 12, 120
	time := make([]float64, nt)
	for k := range time {
		time[k] = 4 * float64(k) / float64(nt-1)
	}
	data := mat.NewDense(nx, nt, nil)
	for i := 0; i < nx; i++ {
		x := float64(i) / float64(nx-1)
		for k, tk := range time {
			data.Set(i, k, math.Exp(-0.2*tk)*math.Cos(3*tk+2*x))
		}
	}

	prob := varprodmd.Problem{Rank: varprodmd.FixedRank(2), Opt: varprodmd.DefaultConfig()}
	model, err := prob.New()
	require.NoError(t, err)
	require.NoError(t, model.FitReal(data, time))

	eigs, err := model.Eigenvalues()
	require.NoError(t, err)
	require.Len(t, eigs, 2)
	for i, w := range eigs {
		assert.InDelta(t, -0.2, real(w), 1e-2, "growth of mode %d", i)
		assert.InDelta(t, 3, math.Abs(imag(w)), 1e-2, "frequency of mode %d", i)
	}
	assert.Less(t, imag(eigs[0])*imag(eigs[1]), 0.0, "frequencies must pair up conjugate")

	rec, err := model.Forecast(time)
	require.NoError(t, err)
	var num, den float64
	for i := 0; i < nx; i++ {
		for k := 0; k < nt; k++ {
			d := rec.At(i, k) - complex(data.At(i, k), 0)
			num += real(d)*real(d) + imag(d)*imag(d)
			den += data.At(i, k) * data.At(i, k)
		}
	}
	assert.Less(t, math.Sqrt(num/den), 1e-2)
}

// TestCompressionSelection checks the pivoted QR subset size and that a
// compressed fit still recovers the spectrum of clean data.
func TestCompressionSelection(t *testing.T) {
	omega := []complex128{complex(-0.1, 2*math.Pi), complex(-0.05, -math.Pi)}
	data, time := twoModeSignal(10, 40, 0, 4, omega, []float64{2, 1})

	var log bytes.Buffer
	prob := varprodmd.Problem{
		Rank:        varprodmd.FixedRank(2),
		Compression: 0.5,
		Opt:         varprodmd.DefaultConfig(),
		Log:         &log,
	}
	model, err := prob.New()
	require.NoError(t, err)
	require.NoError(t, model.Fit(data, time))

	idx, err := model.SelectedSamples()
	require.NoError(t, err)
	require.Len(t, idx, 20)
	seen := make(map[int]bool, len(idx))
	for _, j := range idx {
		require.GreaterOrEqual(t, j, 0)
		require.Less(t, j, 40)
		require.False(t, seen[j], "duplicate sample %d", j)
		seen[j] = true
	}
	assert.NotContains(t, log.String(), "underdetermined")

	eigs, err := model.Eigenvalues()
	require.NoError(t, err)
	for _, w := range omega {
		best := math.Inf(1)
		for _, g := range eigs {
			best = math.Min(best, cmplx.Abs(w-g))
		}
		assert.Less(t, best, 2e-2, "eigenvalue %v lost in compression", w)
	}
}

// TestUnderdeterminedFallbacks exercises the two degenerate compression
// regimes: fewer samples than eigenvalues, and a selection so harsh it
// falls back to the full snapshot sequence.
func TestUnderdeterminedFallbacks(t *testing.T) {
	omega := make([]complex128, 6)
	for j := range omega {
		omega[j] = complex(-0.05*float64(j+1), float64(j-3)+0.5)
	}
	nx, nt := 12, 12
	time := make([]float64, nt)
	for k := range time {
		time[k] = float64(k) * 0.3
	}
	// Vandermonde profiles keep the six modes independent
	data := mat.NewCDense(nx, nt, nil)
	for i := 0; i < nx; i++ {
		zn := complex(float64(i)/float64(nx-1), 0.2)
		for k, tk := range time {
			var v complex128
			p := complex(1, 0)
			for _, w := range omega {
				v += p * cmplx.Exp(w*complex(tk, 0))
				p *= zn
			}
			data.Set(i, k, v)
		}
	}

	var log bytes.Buffer
	// keeping ⌊12·0.25⌋ = 3 samples for 6 eigenvalues warns and flags
	dec, err := varprodmd.Decompose(data, time, &varprodmd.Problem{
		Rank:        varprodmd.FixedRank(6),
		Compression: 0.75,
		Opt:         varprodmd.DefaultConfig(),
		Log:         &log,
	})
	require.NoError(t, err)
	assert.True(t, dec.Underdetermined)
	assert.Len(t, dec.Indices, 3)
	assert.Contains(t, log.String(), "underdetermined")
	assert.Len(t, dec.Eigenvalues, 6)
	require.NotNil(t, dec.Opt)

	// a selection collapsing to at most one sample keeps every snapshot
	log.Reset()
	dec, err = varprodmd.Decompose(data, time, &varprodmd.Problem{
		Rank:        varprodmd.FixedRank(2),
		Compression: 0.95,
		Opt:         varprodmd.DefaultConfig(),
		Log:         &log,
	})
	require.NoError(t, err)
	assert.False(t, dec.Underdetermined)
	require.Len(t, dec.Indices, 12)
	for i, j := range dec.Indices {
		assert.Equal(t, i, j)
	}
	assert.NotContains(t, log.String(), "underdetermined")
}

// TestDecomposeDefaults runs the one-call entry point with automatic
// truncation and checks the shape contract of the result.
func TestDecomposeDefaults(t *testing.T) {
	omega := []complex128{complex(-0.1, 2*math.Pi), complex(-0.05, -math.Pi)}
	data, time := twoModeSignal(8, 60, 0, 3, omega, []float64{1, 1})

	dec, err := varprodmd.Decompose(data, time, nil)
	require.NoError(t, err)
	require.NotNil(t, dec)

	l := len(dec.Eigenvalues)
	require.GreaterOrEqual(t, l, 2, "automatic truncation lost the signal directions")
	assert.Len(t, dec.Amplitudes, l)
	mr, mc := dec.Modes.Dims()
	assert.Equal(t, 8, mr)
	assert.Equal(t, l, mc)
	require.Len(t, dec.Indices, 60)
	assert.NotNil(t, dec.Opt)
	assert.False(t, dec.Underdetermined)
}

// TestProblemValidation checks that New rejects every out-of-domain
// problem setting with its sentinel error.
func TestProblemValidation(t *testing.T) {
	cases := []struct {
		name string
		p    varprodmd.Problem
		err  error
	}{
		{"compression low", varprodmd.Problem{Compression: -0.1}, varprodmd.ErrInvalidCompression},
		{"compression high", varprodmd.Problem{Compression: 1}, varprodmd.ErrInvalidCompression},
		{"sort policy", varprodmd.Problem{Sort: varprodmd.SortPolicy(42)}, varprodmd.ErrBadSortPolicy},
		{"fixed rank", varprodmd.Problem{Rank: varprodmd.FixedRank(-2)}, varprodmd.ErrInvalidRank},
		{"energy fraction", varprodmd.Problem{Rank: varprodmd.EnergyRank(1.5)}, varprodmd.ErrInvalidRank},
		{"noise level", varprodmd.Problem{Rank: varprodmd.AutoRankNoise(-1)}, varprodmd.ErrInvalidRank},
		{"solver loss", varprodmd.Problem{Opt: trf.Config{Loss: trf.Loss(9)}}, varprodmd.ErrBadConfig},
		{"solver tolerances", varprodmd.Problem{Opt: trf.Config{FTol: -1, XTol: -1, GTol: -1}}, varprodmd.ErrBadConfig},
	}
	for _, c := range cases {
		model, err := c.p.New()
		assert.ErrorIs(t, err, c.err, c.name)
		assert.Nil(t, model, c.name)
	}
}

// TestFitArgumentValidation checks the snapshot layout guards and that
// a failed fit leaves the previous decomposition untouched.
func TestFitArgumentValidation(t *testing.T) {
	omega := []complex128{complex(-0.1, 2*math.Pi), complex(-0.05, -math.Pi)}
	data, time := twoModeSignal(8, 60, 0, 3, omega, []float64{1, 1})

	prob := varprodmd.Problem{Rank: varprodmd.FixedRank(2), Opt: varprodmd.DefaultConfig()}
	model, err := prob.New()
	require.NoError(t, err)
	require.NoError(t, model.Fit(data, time))
	before, err := model.Eigenvalues()
	require.NoError(t, err)

	// timestamp count mismatch
	err = model.Fit(data, time[:59])
	assert.ErrorIs(t, err, varprodmd.ErrBadShape)
	// non-increasing timestamps
	bad := append([]float64(nil), time...)
	bad[30] = bad[29]
	err = model.Fit(data, bad)
	assert.ErrorIs(t, err, varprodmd.ErrBadShape)
	// single snapshot
	err = model.Fit(mat.NewCDense(3, 1, []complex128{1, 2, 3}), []float64{0})
	assert.ErrorIs(t, err, varprodmd.ErrBadShape)
	// the real path guards the same layout
	err = model.FitReal(mat.NewDense(2, 3, nil), []float64{0, 1})
	assert.ErrorIs(t, err, varprodmd.ErrBadShape)

	require.True(t, model.Fitted(), "failed fits must not clear the model")
	after, err := model.Eigenvalues()
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

// TestAccessorsBeforeFit checks that every accessor refuses to answer
// on an unfitted model.
func TestAccessorsBeforeFit(t *testing.T) {
	model, err := (&varprodmd.Problem{}).New()
	require.NoError(t, err)
	assert.False(t, model.Fitted())

	_, err = model.Eigenvalues()
	assert.ErrorIs(t, err, varprodmd.ErrNotFitted)
	_, err = model.Modes()
	assert.ErrorIs(t, err, varprodmd.ErrNotFitted)
	_, err = model.Amplitudes()
	assert.ErrorIs(t, err, varprodmd.ErrNotFitted)
	_, err = model.Frequencies()
	assert.ErrorIs(t, err, varprodmd.ErrNotFitted)
	_, err = model.GrowthRates()
	assert.ErrorIs(t, err, varprodmd.ErrNotFitted)
	_, err = model.Dynamics()
	assert.ErrorIs(t, err, varprodmd.ErrNotFitted)
	_, err = model.SSR()
	assert.ErrorIs(t, err, varprodmd.ErrNotFitted)
	_, err = model.SelectedSamples()
	assert.ErrorIs(t, err, varprodmd.ErrNotFitted)
	_, err = model.OptStats()
	assert.ErrorIs(t, err, varprodmd.ErrNotFitted)
	_, err = model.Forecast([]float64{0, 1})
	assert.ErrorIs(t, err, varprodmd.ErrNotFitted)
}

// TestPredictStandalone checks the modal evaluation and its shape
// guards without a fitted model.
func TestPredictStandalone(t *testing.T) {
	modes := mat.NewCDense(3, 2, []complex128{
		1, 0,
		0, 1,
		1, 1,
	})
	omega := []complex128{1i, -1i}
	amps := []float64{1, 2}

	out, err := varprodmd.Predict(modes, omega, amps, []float64{0, 0.5})
	require.NoError(t, err)
	r, c := out.Dims()
	require.Equal(t, 3, r)
	require.Equal(t, 2, c)
	// at t = 0 the prediction is the amplitude-weighted mode sum
	assert.Equal(t, complex(1, 0), out.At(0, 0))
	assert.Equal(t, complex(2, 0), out.At(1, 0))
	assert.Equal(t, complex(3, 0), out.At(2, 0))
	// one oscillation step later the phases have rotated
	e1, e2 := cmplx.Exp(0.5i), cmplx.Exp(-0.5i)
	assert.InDelta(t, real(e1+2*e2), real(out.At(2, 1)), 1e-12)
	assert.InDelta(t, imag(e1+2*e2), imag(out.At(2, 1)), 1e-12)

	_, err = varprodmd.Predict(modes, omega[:1], amps, []float64{0})
	assert.ErrorIs(t, err, varprodmd.ErrBadShape)
	_, err = varprodmd.Predict(modes, omega, amps[:1], []float64{0})
	assert.ErrorIs(t, err, varprodmd.ErrBadShape)
	_, err = varprodmd.Predict(modes, omega, amps, nil)
	assert.ErrorIs(t, err, varprodmd.ErrBadShape)
	_, err = varprodmd.Predict(mat.NewCDense(1, 1, nil), nil, nil, []float64{0})
	assert.ErrorIs(t, err, varprodmd.ErrBadShape)
}
