// Package interp provides scattered-data interpolators used to map
// simulation parameters to latent snapshot coordinates.
package interp

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
)

var (
	// ErrNotFitted is returned by Predict when Fit has not been called.
	ErrNotFitted = errors.New("interp: interpolator not fitted")

	// ErrUnknownKernel is returned for kernel names outside the supported set.
	ErrUnknownKernel = errors.New("interp: unknown kernel")

	// ErrDegenerateEpsilon is returned when the shape parameter must be
	// estimated but the fit points have zero extent in every dimension.
	ErrDegenerateEpsilon = errors.New("interp: cannot estimate epsilon, points have zero extent in every dimension")
)

const degreeUnset = math.MinInt32

// RBF interpolates vector-valued samples with radial basis functions plus an
// optional polynomial tail. The zero configuration (thin plate spline,
// exact interpolation, all points as centers) matches the usual ROM setup.
//
// An RBF is not safe for concurrent use; callers that share one across
// goroutines must serialize Fit and Predict themselves.
type RBF struct {
	kernel    string
	smoothing float64
	neighbors int
	epsilon   float64
	degree    int

	fitted  bool
	dims    int
	outDims int
	points  [][]float64
	values  *mat.Dense
	powers  [][]int
	weights *mat.Dense
	poly    *mat.Dense
}

// Option configures an RBF before fitting.
type Option func(*RBF)

// WithKernel selects the radial basis function family.
func WithKernel(name string) Option {
	return func(r *RBF) { r.kernel = name }
}

// WithSmoothing sets the smoothing factor. Zero (the default) requests exact
// interpolation through the data points; larger values relax the fit toward
// least squares.
func WithSmoothing(s float64) Option {
	return func(r *RBF) { r.smoothing = s }
}

// WithNeighbors limits each evaluation to the k nearest fit points. Zero
// (the default) uses all points in one global interpolant.
func WithNeighbors(k int) Option {
	return func(r *RBF) { r.neighbors = k }
}

// WithEpsilon sets the shape parameter. When unset it is estimated from the
// average inter-node distance over the bounding hypercube of the fit points.
func WithEpsilon(eps float64) Option {
	return func(r *RBF) { r.epsilon = eps }
}

// WithDegree sets the degree of the added polynomial. When unset the kernel's
// minimum degree is used, or 0 if the kernel has no minimum.
func WithDegree(d int) Option {
	return func(r *RBF) { r.degree = d }
}

// NewRBF returns an unfitted interpolator with the given options applied.
func NewRBF(opts ...Option) *RBF {
	r := &RBF{
		kernel: KernelThinPlateSpline,
		degree: degreeUnset,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Kernel returns the configured kernel name.
func (r *RBF) Kernel() string { return r.kernel }

// Epsilon returns the shape parameter, including the value estimated during
// Fit when none was configured. Zero before Fit when unset.
func (r *RBF) Epsilon() float64 { return r.epsilon }

// Fitted reports whether Fit has completed successfully.
func (r *RBF) Fitted() bool { return r.fitted }

// Fit builds the interpolant from n points (n x dims) and their target
// values (n x outDims). Refitting with new data is allowed and replaces the
// previous interpolant.
func (r *RBF) Fit(points, values mat.Matrix) error {
	kern, minDeg, err := lookupKernel(r.kernel)
	if err != nil {
		return err
	}

	n, dims := points.Dims()
	vn, outDims := values.Dims()
	if n == 0 {
		return fmt.Errorf("interp: no fit points provided")
	}
	if vn != n {
		return fmt.Errorf("interp: got %d points but %d value rows", n, vn)
	}

	degree := r.degree
	if degree == degreeUnset {
		degree = minDeg
		if degree < 0 {
			degree = 0
		}
	} else if degree < minDeg {
		return fmt.Errorf("interp: degree %d is below the minimum %d for kernel %q", degree, minDeg, r.kernel)
	}

	pts := matrixRows(points)

	if r.epsilon <= 0 {
		eps, err := defaultEpsilon(pts, dims)
		if err != nil {
			return err
		}
		r.epsilon = eps
		if scaleInvariantKernels[r.kernel] {
			r.epsilon = 1
		}
	}

	powers := monomialPowers(dims, degree)
	centers := n
	if r.neighbors > 0 && r.neighbors < n {
		centers = r.neighbors
	}
	if centers < len(powers) {
		return fmt.Errorf("interp: %d interpolation points cannot support a degree %d polynomial (%d terms)", centers, degree, len(powers))
	}

	vals := mat.DenseCopyOf(values)

	if r.neighbors > 0 && r.neighbors < n {
		// Local mode defers the solve to evaluation time; each query is
		// interpolated over its nearest centers.
		r.weights = nil
		r.poly = nil
	} else {
		weights, poly, err := solveInterpolant(kern, pts, vals, powers, r.epsilon, r.smoothing)
		if err != nil {
			return err
		}
		r.weights = weights
		r.poly = poly
	}

	r.points = pts
	r.values = vals
	r.powers = powers
	r.dims = dims
	r.outDims = outDims
	r.fitted = true
	return nil
}

// Predict evaluates the interpolant at m query points (m x dims) and returns
// an m x outDims matrix. It returns ErrNotFitted before a successful Fit and
// never mutates the fitted state.
func (r *RBF) Predict(newPoints mat.Matrix) (*mat.Dense, error) {
	if !r.fitted {
		return nil, ErrNotFitted
	}

	m, dims := newPoints.Dims()
	if dims != r.dims {
		return nil, fmt.Errorf("interp: query points have %d dimensions, fit points have %d", dims, r.dims)
	}

	kern, _, err := lookupKernel(r.kernel)
	if err != nil {
		return nil, err
	}

	queries := matrixRows(newPoints)

	if r.weights == nil {
		return r.predictLocal(kern, queries)
	}

	out := mat.NewDense(m, r.outDims, nil)
	row := make([]float64, r.outDims)
	for i, q := range queries {
		evalAt(kern, q, r.points, r.powers, r.weights, r.poly, r.epsilon, row)
		out.SetRow(i, row)
	}
	return out, nil
}

// predictLocal solves a small interpolation system over the k nearest fit
// points for every query.
func (r *RBF) predictLocal(kern kernelFunc, queries [][]float64) (*mat.Dense, error) {
	k := r.neighbors
	if k > len(r.points) {
		k = len(r.points)
	}

	out := mat.NewDense(len(queries), r.outDims, nil)
	row := make([]float64, r.outDims)
	for i, q := range queries {
		idx := nearestIndices(q, r.points, k)

		pts := make([][]float64, k)
		vals := mat.NewDense(k, r.outDims, nil)
		for j, id := range idx {
			pts[j] = r.points[id]
			vals.SetRow(j, r.values.RawRowView(id))
		}

		weights, poly, err := solveInterpolant(kern, pts, vals, r.powers, r.epsilon, r.smoothing)
		if err != nil {
			return nil, fmt.Errorf("interp: local solve at query %d: %w", i, err)
		}
		evalAt(kern, q, pts, r.powers, weights, poly, r.epsilon, row)
		out.SetRow(i, row)
	}
	return out, nil
}

// defaultEpsilon implements the bounding-hypercube heuristic: the product of
// the nonzero per-dimension ranges divided by the dimension count, taken to
// the 1/nnz power, approximating the average distance between nodes.
func defaultEpsilon(points [][]float64, dims int) (float64, error) {
	prod := 1.0
	nonzero := 0
	for d := 0; d < dims; d++ {
		lo, hi := points[0][d], points[0][d]
		for _, p := range points {
			if p[d] < lo {
				lo = p[d]
			}
			if p[d] > hi {
				hi = p[d]
			}
		}
		if edge := hi - lo; edge > 0 {
			prod *= edge
			nonzero++
		}
	}
	if nonzero == 0 {
		return 0, ErrDegenerateEpsilon
	}
	return math.Pow(prod/float64(dims), 1/float64(nonzero)), nil
}

// solveInterpolant assembles and solves the symmetric saddle system
//
//	| K + smoothing*I  P | |w|   |values|
//	| P^T              0 | |c| = |0     |
//
// where K is the kernel matrix on epsilon-scaled distances and P holds the
// monomial tail. Returns the kernel weights and polynomial coefficients.
func solveInterpolant(kern kernelFunc, pts [][]float64, values *mat.Dense, powers [][]int, epsilon, smoothing float64) (*mat.Dense, *mat.Dense, error) {
	n := len(pts)
	q := len(powers)
	_, outDims := values.Dims()
	size := n + q

	a := mat.NewDense(size, size, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			v := kern(epsilon * euclideanDistance(pts[i], pts[j]))
			if i == j {
				v += smoothing
			}
			a.Set(i, j, v)
			a.Set(j, i, v)
		}
		for k := 0; k < q; k++ {
			v := evalMonomial(pts[i], powers[k])
			a.Set(i, n+k, v)
			a.Set(n+k, i, v)
		}
	}

	b := mat.NewDense(size, outDims, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < outDims; j++ {
			b.Set(i, j, values.At(i, j))
		}
	}

	var coef mat.Dense
	if err := coef.Solve(a, b); err != nil {
		// A Condition error means the system was solved but is
		// ill-conditioned; keep the computed solution and fail only on
		// exact singularity.
		var cond mat.Condition
		if !errors.As(err, &cond) {
			return nil, nil, fmt.Errorf("interp: solving interpolation system: %w", err)
		}
	}

	weights := mat.DenseCopyOf(coef.Slice(0, n, 0, outDims))
	var poly *mat.Dense
	if q > 0 {
		poly = mat.DenseCopyOf(coef.Slice(n, size, 0, outDims))
	}
	return weights, poly, nil
}

// evalAt writes the interpolant value at query point q into out.
func evalAt(kern kernelFunc, q []float64, pts [][]float64, powers [][]int, weights, poly *mat.Dense, epsilon float64, out []float64) {
	for j := range out {
		out[j] = 0
	}
	for i, p := range pts {
		phi := kern(epsilon * euclideanDistance(q, p))
		for j := range out {
			out[j] += phi * weights.At(i, j)
		}
	}
	if poly != nil {
		for k, pw := range powers {
			mono := evalMonomial(q, pw)
			for j := range out {
				out[j] += mono * poly.At(k, j)
			}
		}
	}
}

// nearestIndices returns the indices of the k points closest to q.
func nearestIndices(q []float64, pts [][]float64, k int) []int {
	type cand struct {
		idx  int
		dist float64
	}
	cands := make([]cand, len(pts))
	for i, p := range pts {
		cands[i] = cand{idx: i, dist: euclideanDistance(q, p)}
	}
	sort.Slice(cands, func(i, j int) bool { return cands[i].dist < cands[j].dist })

	idx := make([]int, k)
	for i := 0; i < k; i++ {
		idx[i] = cands[i].idx
	}
	return idx
}

// matrixRows copies a matrix into a row slice for distance computations.
func matrixRows(m mat.Matrix) [][]float64 {
	rows, cols := m.Dims()
	out := make([][]float64, rows)
	for i := 0; i < rows; i++ {
		row := make([]float64, cols)
		for j := 0; j < cols; j++ {
			row[j] = m.At(i, j)
		}
		out[i] = row
	}
	return out
}
