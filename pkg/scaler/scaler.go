// Package scaler provides column-wise feature scalers with exact inverses,
// used to map snapshot predictions back to physical units.
package scaler

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// ErrNotFitted is returned by Transform and Inverse before Fit.
var ErrNotFitted = errors.New("scaler: scaler not fitted")

// Scaler transforms a matrix column-wise and can undo the transform.
type Scaler interface {
	Fit(x mat.Matrix) error
	Transform(x mat.Matrix) (*mat.Dense, error)
	Inverse(x mat.Matrix) (*mat.Dense, error)
}

// MinMax rescales each column to [0, 1] over the range seen during Fit.
// Columns with zero range pass through unchanged.
type MinMax struct {
	mins   []float64
	ranges []float64
}

// NewMinMax returns an unfitted min-max scaler.
func NewMinMax() *MinMax { return &MinMax{} }

func (s *MinMax) Fit(x mat.Matrix) error {
	rows, cols := x.Dims()
	if rows == 0 {
		return fmt.Errorf("scaler: no rows to fit")
	}

	s.mins = make([]float64, cols)
	s.ranges = make([]float64, cols)
	for j := 0; j < cols; j++ {
		lo, hi := x.At(0, j), x.At(0, j)
		for i := 1; i < rows; i++ {
			v := x.At(i, j)
			if v < lo {
				lo = v
			}
			if v > hi {
				hi = v
			}
		}
		s.mins[j] = lo
		if r := hi - lo; r > 0 {
			s.ranges[j] = r
		} else {
			s.ranges[j] = 1
		}
	}
	return nil
}

func (s *MinMax) Transform(x mat.Matrix) (*mat.Dense, error) {
	return s.apply(x, func(v float64, j int) float64 {
		return (v - s.mins[j]) / s.ranges[j]
	})
}

func (s *MinMax) Inverse(x mat.Matrix) (*mat.Dense, error) {
	return s.apply(x, func(v float64, j int) float64 {
		return v*s.ranges[j] + s.mins[j]
	})
}

func (s *MinMax) apply(x mat.Matrix, f func(v float64, col int) float64) (*mat.Dense, error) {
	if s.mins == nil {
		return nil, ErrNotFitted
	}
	return applyColumns(x, len(s.mins), f)
}

// Standard centers each column on its mean and divides by its standard
// deviation. Columns with zero spread are only centered.
type Standard struct {
	means []float64
	stds  []float64
}

// NewStandard returns an unfitted standard scaler.
func NewStandard() *Standard { return &Standard{} }

func (s *Standard) Fit(x mat.Matrix) error {
	rows, cols := x.Dims()
	if rows == 0 {
		return fmt.Errorf("scaler: no rows to fit")
	}

	s.means = make([]float64, cols)
	s.stds = make([]float64, cols)
	col := make([]float64, rows)
	for j := 0; j < cols; j++ {
		mat.Col(col, j, x)
		s.means[j] = stat.Mean(col, nil)
		sd := stat.StdDev(col, nil)
		if sd > 0 {
			s.stds[j] = sd
		} else {
			s.stds[j] = 1
		}
	}
	return nil
}

func (s *Standard) Transform(x mat.Matrix) (*mat.Dense, error) {
	return s.apply(x, func(v float64, j int) float64 {
		return (v - s.means[j]) / s.stds[j]
	})
}

func (s *Standard) Inverse(x mat.Matrix) (*mat.Dense, error) {
	return s.apply(x, func(v float64, j int) float64 {
		return v*s.stds[j] + s.means[j]
	})
}

func (s *Standard) apply(x mat.Matrix, f func(v float64, col int) float64) (*mat.Dense, error) {
	if s.means == nil {
		return nil, ErrNotFitted
	}
	return applyColumns(x, len(s.means), f)
}

// Identity passes data through unchanged. Useful when snapshots are already
// in physical units.
type Identity struct{}

// NewIdentity returns a pass-through scaler.
func NewIdentity() *Identity { return &Identity{} }

func (Identity) Fit(mat.Matrix) error { return nil }

func (Identity) Transform(x mat.Matrix) (*mat.Dense, error) {
	return mat.DenseCopyOf(x), nil
}

func (Identity) Inverse(x mat.Matrix) (*mat.Dense, error) {
	return mat.DenseCopyOf(x), nil
}

func applyColumns(x mat.Matrix, wantCols int, f func(v float64, col int) float64) (*mat.Dense, error) {
	rows, cols := x.Dims()
	if cols != wantCols {
		return nil, fmt.Errorf("scaler: matrix has %d columns, scaler was fitted on %d", cols, wantCols)
	}

	out := mat.NewDense(rows, cols, nil)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			out.Set(i, j, f(x.At(i, j), j))
		}
	}
	return out, nil
}
