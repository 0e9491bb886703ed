package rom

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// LeaveOneOutError estimates the surrogate's accuracy: for each sample a
// fresh model is fitted without it and asked to predict it. Returned is one
// relative L2 error per sample, in physical units. The factories must
// produce unfitted collaborators so folds do not share state.
func LeaveOneOutError(db *Database, newReduction func() Reduction, newApproximation func() Approximation) ([]float64, error) {
	n := db.Len()
	if n < 2 {
		return nil, fmt.Errorf("rom: leave-one-out requires at least 2 samples, have %d", n)
	}

	errs := make([]float64, n)
	for i := 0; i < n; i++ {
		model := New(db.without(i), newReduction(), newApproximation())
		if _, err := model.Fit(); err != nil {
			return nil, fmt.Errorf("rom: fold %d: %w", i, err)
		}

		pred, err := model.Predict(paramRow(db, i))
		if err != nil {
			return nil, fmt.Errorf("rom: fold %d: %w", i, err)
		}
		truth, err := db.physicalSnapshot(i)
		if err != nil {
			return nil, fmt.Errorf("rom: fold %d: %w", i, err)
		}
		errs[i] = relativeError(pred.RawRowView(0), truth)
	}
	return errs, nil
}

// KFoldError splits the database into k contiguous folds, fits on the
// complement of each, and returns the mean relative error per fold.
func KFoldError(db *Database, k int, newReduction func() Reduction, newApproximation func() Approximation) ([]float64, error) {
	n := db.Len()
	if k < 2 || k > n {
		return nil, fmt.Errorf("rom: fold count %d must be in [2, %d]", k, n)
	}

	errs := make([]float64, k)
	for f := 0; f < k; f++ {
		lo := f * n / k
		hi := (f + 1) * n / k

		train := make([]int, 0, n-(hi-lo))
		for i := 0; i < n; i++ {
			if i < lo || i >= hi {
				train = append(train, i)
			}
		}

		model := New(db.subset(train), newReduction(), newApproximation())
		if _, err := model.Fit(); err != nil {
			return nil, fmt.Errorf("rom: fold %d: %w", f, err)
		}

		sum := 0.0
		for i := lo; i < hi; i++ {
			pred, err := model.Predict(paramRow(db, i))
			if err != nil {
				return nil, fmt.Errorf("rom: fold %d: %w", f, err)
			}
			truth, err := db.physicalSnapshot(i)
			if err != nil {
				return nil, fmt.Errorf("rom: fold %d: %w", f, err)
			}
			sum += relativeError(pred.RawRowView(0), truth)
		}
		errs[f] = sum / float64(hi-lo)
	}
	return errs, nil
}

func paramRow(db *Database, i int) *mat.Dense {
	_, pd := db.Parameters.Dims()
	row := mat.NewDense(1, pd, nil)
	row.SetRow(0, db.Parameters.RawRowView(i))
	return row
}

func relativeError(pred, truth []float64) float64 {
	var num, den float64
	for i := range truth {
		diff := pred[i] - truth[i]
		num += diff * diff
		den += truth[i] * truth[i]
	}
	if den == 0 {
		return math.Sqrt(num)
	}
	return math.Sqrt(num / den)
}
