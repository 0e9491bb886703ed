package rom

import (
	"errors"
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/yourusername/snapshot-rom/pkg/interp"
	"github.com/yourusername/snapshot-rom/pkg/reduction"
	"github.com/yourusername/snapshot-rom/pkg/scaler"
)

// callRecorder captures the order of delegated calls across mocks.
type callRecorder struct {
	calls []string
}

func (r *callRecorder) record(name string) { r.calls = append(r.calls, name) }

type mockReduction struct {
	rec        *callRecorder
	gotReduce  *mat.Dense
	latent     *mat.Dense
	gotExpand  *mat.Dense
	expandedTo *mat.Dense
}

func (m *mockReduction) Reduce(x mat.Matrix) (*mat.Dense, error) {
	m.rec.record("reduce")
	m.gotReduce = mat.DenseCopyOf(x)
	return m.latent, nil
}

func (m *mockReduction) Expand(latent mat.Matrix) (*mat.Dense, error) {
	m.rec.record("expand")
	m.gotExpand = mat.DenseCopyOf(latent)
	return m.expandedTo, nil
}

type mockApproximation struct {
	rec       *callRecorder
	gotPoints *mat.Dense
	gotValues *mat.Dense
	predictTo *mat.Dense
	fitted    bool
}

func (m *mockApproximation) Fit(points, values mat.Matrix) error {
	m.rec.record("fit")
	m.gotPoints = mat.DenseCopyOf(points)
	m.gotValues = mat.DenseCopyOf(values)
	m.fitted = true
	return nil
}

func (m *mockApproximation) Predict(points mat.Matrix) (*mat.Dense, error) {
	m.rec.record("predict")
	if !m.fitted {
		return nil, interp.ErrNotFitted
	}
	return m.predictTo, nil
}

type mockScaler struct {
	rec        *callRecorder
	gotInverse *mat.Dense
}

func (m *mockScaler) Fit(mat.Matrix) error { return nil }

func (m *mockScaler) Transform(x mat.Matrix) (*mat.Dense, error) {
	return mat.DenseCopyOf(x), nil
}

func (m *mockScaler) Inverse(x mat.Matrix) (*mat.Dense, error) {
	m.rec.record("inverse")
	m.gotInverse = mat.DenseCopyOf(x)
	return mat.DenseCopyOf(x), nil
}

func TestFitPassesTransposedSnapshots(t *testing.T) {
	params := mat.NewDense(3, 1, []float64{0, 1, 2})
	snaps := mat.NewDense(3, 4, []float64{
		1, 2, 3, 4,
		5, 6, 7, 8,
		9, 10, 11, 12,
	})

	db, err := NewDatabase(params, snaps)
	if err != nil {
		t.Fatalf("building database: %v", err)
	}

	rec := &callRecorder{}
	red := &mockReduction{rec: rec, latent: mat.NewDense(3, 2, nil)}
	approx := &mockApproximation{rec: rec}

	if _, err := New(db, red, approx).Fit(); err != nil {
		t.Fatalf("fit failed: %v", err)
	}

	// The reduction must see snapshots as columns.
	rows, cols := red.gotReduce.Dims()
	if rows != 4 || cols != 3 {
		t.Fatalf("reduce got %dx%d matrix, want 4x3 (transposed)", rows, cols)
	}
	for i := 0; i < 3; i++ {
		for j := 0; j < 4; j++ {
			if red.gotReduce.At(j, i) != snaps.At(i, j) {
				t.Fatalf("reduce input (%d,%d) = %g, not the transpose", j, i, red.gotReduce.At(j, i))
			}
		}
	}

	// The approximation must be fitted on (parameters, latent).
	if !mat.Equal(approx.gotPoints, params) {
		t.Error("approximation was not fitted on the database parameters")
	}
	if !mat.Equal(approx.gotValues, red.latent) {
		t.Error("approximation was not fitted on the reduced coordinates")
	}

	want := []string{"reduce", "fit"}
	for i, name := range want {
		if rec.calls[i] != name {
			t.Fatalf("call order %v, want %v", rec.calls, want)
		}
	}
}

func TestPredictComposesInOrder(t *testing.T) {
	params := mat.NewDense(2, 1, []float64{0, 1})
	snaps := mat.NewDense(2, 3, []float64{1, 2, 3, 4, 5, 6})

	rec := &callRecorder{}
	sc := &mockScaler{rec: rec}
	db, err := NewDatabase(params, snaps, WithSnapshotScaler(sc))
	if err != nil {
		t.Fatalf("building database: %v", err)
	}

	latent := mat.NewDense(1, 2, []float64{0.5, -0.5})
	expanded := mat.NewDense(1, 3, []float64{7, 8, 9})
	red := &mockReduction{rec: rec, latent: mat.NewDense(2, 2, nil), expandedTo: expanded}
	approx := &mockApproximation{rec: rec, predictTo: latent}

	model := New(db, red, approx)
	if _, err := model.Fit(); err != nil {
		t.Fatalf("fit failed: %v", err)
	}

	out, err := model.Predict(mat.NewDense(1, 1, []float64{0.5}))
	if err != nil {
		t.Fatalf("predict failed: %v", err)
	}

	want := []string{"reduce", "fit", "predict", "expand", "inverse"}
	if len(rec.calls) != len(want) {
		t.Fatalf("calls = %v, want %v", rec.calls, want)
	}
	for i := range want {
		if rec.calls[i] != want[i] {
			t.Fatalf("calls = %v, want %v", rec.calls, want)
		}
	}

	if !mat.Equal(red.gotExpand, latent) {
		t.Error("expand did not receive the approximation's latent prediction")
	}
	if !mat.Equal(sc.gotInverse, expanded) {
		t.Error("inverse did not receive the expanded prediction")
	}
	if !mat.Equal(out, expanded) {
		t.Error("predict did not return the inverse-scaled expansion")
	}
}

func TestPredictBeforeFit(t *testing.T) {
	params := mat.NewDense(2, 1, []float64{0, 1})
	snaps := mat.NewDense(2, 2, []float64{1, 2, 3, 4})
	db, err := NewDatabase(params, snaps)
	if err != nil {
		t.Fatalf("building database: %v", err)
	}

	model := New(db, reduction.NewPOD(0), interp.NewRBF())
	_, err = model.Predict(mat.NewDense(1, 1, []float64{0.5}))
	if !errors.Is(err, interp.ErrNotFitted) {
		t.Fatalf("predict error = %v, want interp.ErrNotFitted", err)
	}
}

func TestDatabaseShapeMismatch(t *testing.T) {
	params := mat.NewDense(3, 1, []float64{0, 1, 2})
	snaps := mat.NewDense(2, 2, []float64{1, 2, 3, 4})
	if _, err := NewDatabase(params, snaps); err == nil {
		t.Fatal("expected error for misaligned parameters and snapshots")
	}
}

// syntheticDatabase builds snapshots that depend smoothly on a scalar
// parameter through a low-dimensional basis.
func syntheticDatabase(t *testing.T, sc SnapshotScaler) *Database {
	t.Helper()

	mus := []float64{0, 0.5, 1, 1.5, 2, 2.5}
	basis1 := []float64{1, 0, 2, -1, 0.5, 3}
	basis2 := []float64{0, 1, -1, 2, 1.5, 0}

	params := mat.NewDense(len(mus), 1, nil)
	snaps := mat.NewDense(len(mus), 6, nil)
	for i, mu := range mus {
		params.Set(i, 0, mu)
		a, b := math.Sin(mu)+2, math.Cos(mu)
		for j := 0; j < 6; j++ {
			snaps.Set(i, j, a*basis1[j]+b*basis2[j])
		}
	}

	var opts []DatabaseOption
	if sc != nil {
		opts = append(opts, WithSnapshotScaler(sc))
	}
	db, err := NewDatabase(params, snaps, opts...)
	if err != nil {
		t.Fatalf("building database: %v", err)
	}
	return db
}

func TestRoundTripAtTrainingPoints(t *testing.T) {
	db := syntheticDatabase(t, scaler.NewMinMax())

	// Keep all modes so the expansion is exact and any residual comes from
	// the interpolation, which is itself exact at the nodes.
	model := New(db, reduction.NewPOD(0), interp.NewRBF())
	if _, err := model.Fit(); err != nil {
		t.Fatalf("fit failed: %v", err)
	}

	mus := []float64{0, 0.5, 1, 1.5, 2, 2.5}
	basis1 := []float64{1, 0, 2, -1, 0.5, 3}
	basis2 := []float64{0, 1, -1, 2, 1.5, 0}
	for i, mu := range mus {
		pred, err := model.Predict(mat.NewDense(1, 1, []float64{mu}))
		if err != nil {
			t.Fatalf("predict failed at sample %d: %v", i, err)
		}
		a, b := math.Sin(mu)+2, math.Cos(mu)
		for j := 0; j < 6; j++ {
			want := a*basis1[j] + b*basis2[j]
			if diff := math.Abs(pred.At(0, j) - want); diff > 1e-6 {
				t.Errorf("sample %d component %d off by %g", i, j, diff)
			}
		}
	}
}

func TestLeaveOneOutError(t *testing.T) {
	db := syntheticDatabase(t, nil)

	errs, err := LeaveOneOutError(db,
		func() Reduction { return reduction.NewPOD(0) },
		func() Approximation { return interp.NewRBF() },
	)
	if err != nil {
		t.Fatalf("leave-one-out failed: %v", err)
	}
	if len(errs) != db.Len() {
		t.Fatalf("got %d errors, want %d", len(errs), db.Len())
	}
	for i, e := range errs {
		if math.IsNaN(e) || math.IsInf(e, 0) || e < 0 {
			t.Errorf("fold %d error = %g, want finite non-negative", i, e)
		}
	}
}

func TestKFoldError(t *testing.T) {
	db := syntheticDatabase(t, nil)

	errs, err := KFoldError(db, 3,
		func() Reduction { return reduction.NewPOD(0) },
		func() Approximation { return interp.NewRBF() },
	)
	if err != nil {
		t.Fatalf("k-fold failed: %v", err)
	}
	if len(errs) != 3 {
		t.Fatalf("got %d fold errors, want 3", len(errs))
	}
	for f, e := range errs {
		if math.IsNaN(e) || math.IsInf(e, 0) || e < 0 {
			t.Errorf("fold %d error = %g, want finite non-negative", f, e)
		}
	}
}
