// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package varprodmd

import "errors"

var (
	// ErrBadShape reports data or time arguments that do not form a
	// valid snapshot sequence.
	ErrBadShape = errors.New("varprodmd: invalid data or time shape")
	// ErrInvalidRank reports a rank specifier outside its domain.
	ErrInvalidRank = errors.New("varprodmd: invalid rank specifier")
	// ErrInvalidCompression reports a compression fraction outside its domain.
	ErrInvalidCompression = errors.New("varprodmd: invalid compression fraction")
	// ErrBadSortPolicy reports an unknown eigenvalue sort policy.
	ErrBadSortPolicy = errors.New("varprodmd: unknown sort policy")
	// ErrBadConfig reports an invalid solver configuration.
	ErrBadConfig = errors.New("varprodmd: invalid solver configuration")
	// ErrNotFitted reports access to decomposition results before a
	// successful fit.
	ErrNotFitted = errors.New("varprodmd: model not fitted")
)
