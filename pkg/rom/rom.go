// Package rom chains a snapshot reduction, a parameter-to-latent
// approximation, and inverse scaling into a reduced-order surrogate model.
package rom

import (
	"fmt"
	"log"

	"gonum.org/v1/gonum/mat"
)

// Reduction maps a snapshot matrix to latent coordinates and back.
// Reduce consumes snapshots as columns (snapshotDim x n) and returns one
// latent row per snapshot; Expand is its right inverse up to truncation.
type Reduction interface {
	Reduce(x mat.Matrix) (*mat.Dense, error)
	Expand(latent mat.Matrix) (*mat.Dense, error)
}

// Approximation learns a map from parameter vectors to latent coordinates.
// Predict is only valid after a successful Fit.
type Approximation interface {
	Fit(points, values mat.Matrix) error
	Predict(points mat.Matrix) (*mat.Dense, error)
}

// ReducedOrderModel orchestrates database, reduction, and approximation. It
// holds references to its collaborators and never copies them; it owns no
// lifecycle beyond the approximation's fitted state.
//
// The model is not safe for concurrent use. Callers serving predictions
// while refitting must serialize access externally.
type ReducedOrderModel struct {
	Database      *Database
	Reduction     Reduction
	Approximation Approximation

	// LatentLog, when set, logs the latent prediction before expansion.
	// Nil by default.
	LatentLog *log.Logger
}

// New assembles a reduced-order model from its collaborators.
func New(db *Database, reduction Reduction, approximation Approximation) *ReducedOrderModel {
	return &ReducedOrderModel{
		Database:      db,
		Reduction:     reduction,
		Approximation: approximation,
	}
}

// Fit reduces the snapshot matrix (transposed so snapshots are columns) and
// fits the approximation on (parameters, latent coordinates). It returns the
// model itself so construction and fitting chain.
func (r *ReducedOrderModel) Fit() (*ReducedOrderModel, error) {
	latent, err := r.Reduction.Reduce(r.Database.Snapshots.T())
	if err != nil {
		return nil, fmt.Errorf("rom: reducing snapshots: %w", err)
	}
	if err := r.Approximation.Fit(r.Database.Parameters, latent); err != nil {
		return nil, fmt.Errorf("rom: fitting approximation: %w", err)
	}
	return r, nil
}

// Predict maps query parameter vectors (m x paramDim) to full snapshots in
// physical units: approximation, then expansion, then inverse scaling.
// Before Fit it fails with the approximation's not-fitted error.
func (r *ReducedOrderModel) Predict(mu mat.Matrix) (*mat.Dense, error) {
	latent, err := r.Approximation.Predict(mu)
	if err != nil {
		return nil, fmt.Errorf("rom: predicting latent coordinates: %w", err)
	}
	if r.LatentLog != nil {
		r.LatentLog.Printf("latent prediction:\n%v", mat.Formatted(latent))
	}

	expanded, err := r.Reduction.Expand(latent)
	if err != nil {
		return nil, fmt.Errorf("rom: expanding latent coordinates: %w", err)
	}

	if r.Database.Scaler == nil {
		return expanded, nil
	}
	phys, err := r.Database.Scaler.Inverse(expanded)
	if err != nil {
		return nil, fmt.Errorf("rom: inverse scaling prediction: %w", err)
	}
	return phys, nil
}
