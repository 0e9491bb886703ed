package rom

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// SnapshotScaler scales snapshot matrices and undoes the scaling on
// predictions. pkg/scaler satisfies this.
type SnapshotScaler interface {
	Fit(x mat.Matrix) error
	Transform(x mat.Matrix) (*mat.Dense, error)
	Inverse(x mat.Matrix) (*mat.Dense, error)
}

// Database pairs n parameter vectors with their n snapshots. When a snapshot
// scaler is configured the stored snapshots live in scaled space and
// predictions are inverse-transformed back to physical units.
type Database struct {
	Parameters *mat.Dense // n x paramDim
	Snapshots  *mat.Dense // n x snapshotDim, one snapshot per row
	Scaler     SnapshotScaler
}

// DatabaseOption configures a Database during construction.
type DatabaseOption func(*Database)

// WithSnapshotScaler fits the scaler on the snapshots and stores them in
// scaled space.
func WithSnapshotScaler(s SnapshotScaler) DatabaseOption {
	return func(db *Database) { db.Scaler = s }
}

// NewDatabase validates that parameters and snapshots are row-aligned and,
// if a scaler is given, fits it and scales the snapshots.
func NewDatabase(parameters, snapshots *mat.Dense, opts ...DatabaseOption) (*Database, error) {
	pn, _ := parameters.Dims()
	sn, _ := snapshots.Dims()
	if pn == 0 {
		return nil, fmt.Errorf("rom: database has no parameter vectors")
	}
	if pn != sn {
		return nil, fmt.Errorf("rom: %d parameter vectors but %d snapshots", pn, sn)
	}

	db := &Database{Parameters: parameters, Snapshots: snapshots}
	for _, opt := range opts {
		opt(db)
	}

	if db.Scaler != nil {
		if err := db.Scaler.Fit(snapshots); err != nil {
			return nil, fmt.Errorf("rom: fitting snapshot scaler: %w", err)
		}
		scaled, err := db.Scaler.Transform(snapshots)
		if err != nil {
			return nil, fmt.Errorf("rom: scaling snapshots: %w", err)
		}
		db.Snapshots = scaled
	}
	return db, nil
}

// Len returns the number of parameter/snapshot pairs.
func (db *Database) Len() int {
	n, _ := db.Parameters.Dims()
	return n
}

// without returns a database with row i removed, sharing the already-fitted
// scaler. Used by the cross-validation helpers.
func (db *Database) without(i int) *Database {
	n, pd := db.Parameters.Dims()
	_, sd := db.Snapshots.Dims()

	params := mat.NewDense(n-1, pd, nil)
	snaps := mat.NewDense(n-1, sd, nil)
	row := 0
	for j := 0; j < n; j++ {
		if j == i {
			continue
		}
		params.SetRow(row, db.Parameters.RawRowView(j))
		snaps.SetRow(row, db.Snapshots.RawRowView(j))
		row++
	}
	return &Database{Parameters: params, Snapshots: snaps, Scaler: db.Scaler}
}

// subset returns a database restricted to the given rows, sharing the
// already-fitted scaler.
func (db *Database) subset(rows []int) *Database {
	_, pd := db.Parameters.Dims()
	_, sd := db.Snapshots.Dims()

	params := mat.NewDense(len(rows), pd, nil)
	snaps := mat.NewDense(len(rows), sd, nil)
	for i, j := range rows {
		params.SetRow(i, db.Parameters.RawRowView(j))
		snaps.SetRow(i, db.Snapshots.RawRowView(j))
	}
	return &Database{Parameters: params, Snapshots: snaps, Scaler: db.Scaler}
}

// physicalSnapshot returns row i of the snapshots in physical units.
func (db *Database) physicalSnapshot(i int) ([]float64, error) {
	_, sd := db.Snapshots.Dims()
	row := mat.NewDense(1, sd, nil)
	row.SetRow(0, db.Snapshots.RawRowView(i))

	if db.Scaler == nil {
		return row.RawRowView(0), nil
	}
	phys, err := db.Scaler.Inverse(row)
	if err != nil {
		return nil, err
	}
	return phys.RawRowView(0), nil
}
