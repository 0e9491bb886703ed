package interp

import (
	"fmt"
	"math"
)

// Supported radial basis function kernel names.
const (
	KernelLinear              = "linear"
	KernelThinPlateSpline     = "thin_plate_spline"
	KernelCubic               = "cubic"
	KernelQuintic             = "quintic"
	KernelMultiquadric        = "multiquadric"
	KernelInverseMultiquadric = "inverse_multiquadric"
	KernelInverseQuadratic    = "inverse_quadratic"
	KernelGaussian            = "gaussian"
)

type kernelFunc func(r float64) float64

var kernelFuncs = map[string]kernelFunc{
	KernelLinear: func(r float64) float64 { return -r },
	KernelThinPlateSpline: func(r float64) float64 {
		if r == 0 {
			return 0
		}
		return r * r * math.Log(r)
	},
	KernelCubic:   func(r float64) float64 { return r * r * r },
	KernelQuintic: func(r float64) float64 { return -r * r * r * r * r },
	KernelMultiquadric: func(r float64) float64 {
		return -math.Sqrt(r*r + 1)
	},
	KernelInverseMultiquadric: func(r float64) float64 {
		return 1 / math.Sqrt(r*r+1)
	},
	KernelInverseQuadratic: func(r float64) float64 {
		return 1 / (r*r + 1)
	},
	KernelGaussian: func(r float64) float64 {
		return math.Exp(-r * r)
	},
}

// Minimum polynomial degree required for each kernel to yield a well-posed
// interpolation problem. -1 means no polynomial tail is required.
var kernelMinDegree = map[string]int{
	KernelLinear:              0,
	KernelThinPlateSpline:     1,
	KernelCubic:               1,
	KernelQuintic:             2,
	KernelMultiquadric:        0,
	KernelInverseMultiquadric: -1,
	KernelInverseQuadratic:    -1,
	KernelGaussian:            -1,
}

// Kernels whose interpolant does not depend on the shape parameter; epsilon
// is pinned to 1 for these when left unset.
var scaleInvariantKernels = map[string]bool{
	KernelThinPlateSpline: true,
	KernelCubic:           true,
	KernelQuintic:         true,
}

func lookupKernel(name string) (kernelFunc, int, error) {
	fn, ok := kernelFuncs[name]
	if !ok {
		return nil, 0, fmt.Errorf("%w: %q", ErrUnknownKernel, name)
	}
	return fn, kernelMinDegree[name], nil
}

// monomialPowers enumerates the exponent vectors of all monomials in dims
// variables with total degree at most degree, e.g. dims=2 degree=1 gives
// {1, x, y}. A negative degree yields no monomials.
func monomialPowers(dims, degree int) [][]int {
	if degree < 0 {
		return nil
	}
	var out [][]int
	cur := make([]int, dims)
	var gen func(dim, budget int)
	gen = func(dim, budget int) {
		if dim == dims {
			out = append(out, append([]int(nil), cur...))
			return
		}
		for p := 0; p <= budget; p++ {
			cur[dim] = p
			gen(dim+1, budget-p)
		}
		cur[dim] = 0
	}
	gen(0, degree)
	return out
}

func evalMonomial(x []float64, powers []int) float64 {
	v := 1.0
	for d, p := range powers {
		for i := 0; i < p; i++ {
			v *= x[d]
		}
	}
	return v
}

func euclideanDistance(a, b []float64) float64 {
	sum := 0.0
	for i := range a {
		diff := a[i] - b[i]
		sum += diff * diff
	}
	return math.Sqrt(sum)
}
