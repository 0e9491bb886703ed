// Package reduction provides dimensionality reduction for snapshot matrices.
package reduction

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// ErrNotReduced is returned by Expand before Reduce has computed the modes.
var ErrNotReduced = errors.New("reduction: no modes available, call Reduce first")

// POD computes a proper orthogonal decomposition of a snapshot matrix via a
// thin SVD. Snapshots are columns of the input; the latent coordinates are
// the projections onto the leading left singular vectors.
type POD struct {
	rank   int
	energy float64
	modes  *mat.Dense // snapshotDim x rank
}

// NewPOD returns a POD keeping at most rank modes. rank <= 0 keeps all modes.
func NewPOD(rank int) *POD {
	return &POD{rank: rank}
}

// NewPODEnergy returns a POD keeping the smallest number of modes whose
// cumulative squared singular values reach the given fraction in (0, 1].
func NewPODEnergy(fraction float64) *POD {
	return &POD{energy: fraction}
}

// Rank returns the number of retained modes, or 0 before Reduce.
func (p *POD) Rank() int {
	if p.modes == nil {
		return 0
	}
	_, r := p.modes.Dims()
	return r
}

// Reduce factorizes the snapshot matrix x (snapshotDim x n, one snapshot per
// column) and returns the n x rank latent coordinates. The modes are stored
// for Expand; calling Reduce again refactorizes.
func (p *POD) Reduce(x mat.Matrix) (*mat.Dense, error) {
	rows, cols := x.Dims()
	if rows == 0 || cols == 0 {
		return nil, fmt.Errorf("reduction: empty snapshot matrix %dx%d", rows, cols)
	}

	var svd mat.SVD
	if ok := svd.Factorize(x, mat.SVDThin); !ok {
		return nil, fmt.Errorf("reduction: svd factorization failed for %dx%d matrix", rows, cols)
	}

	values := svd.Values(nil)
	r := p.chooseRank(values)

	var u mat.Dense
	svd.UTo(&u)
	p.modes = mat.DenseCopyOf(u.Slice(0, rows, 0, r))

	var coords mat.Dense
	coords.Mul(x.T(), p.modes)
	return &coords, nil
}

// Expand maps latent coordinates (m x rank, one sample per row) back to the
// full space, returning an m x snapshotDim matrix with one snapshot per row.
func (p *POD) Expand(latent mat.Matrix) (*mat.Dense, error) {
	if p.modes == nil {
		return nil, ErrNotReduced
	}

	_, cols := latent.Dims()
	_, r := p.modes.Dims()
	if cols != r {
		return nil, fmt.Errorf("reduction: latent coordinates have %d columns, decomposition has rank %d", cols, r)
	}

	var out mat.Dense
	out.Mul(latent, p.modes.T())
	return &out, nil
}

func (p *POD) chooseRank(singularValues []float64) int {
	n := len(singularValues)
	if p.energy > 0 && p.energy < 1 {
		total := 0.0
		for _, s := range singularValues {
			total += s * s
		}
		cum := 0.0
		for i, s := range singularValues {
			cum += s * s
			if cum >= p.energy*total {
				return i + 1
			}
		}
		return n
	}
	if p.rank > 0 && p.rank < n {
		return p.rank
	}
	return n
}
