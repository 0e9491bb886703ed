package guardrail

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/yourusername/snapshot-rom/internal/config"
)

// ShapeGuardrail bounds the size of the training data accepted by the
// daemon, protecting the dense solves from unbounded input.
type ShapeGuardrail struct {
	config config.GuardrailConfig
}

func NewShapeGuardrail(cfg config.GuardrailConfig) *ShapeGuardrail {
	return &ShapeGuardrail{
		config: cfg,
	}
}

// Validate checks the training matrices against the configured limits.
// Limits set to 0 are disabled.
func (g *ShapeGuardrail) Validate(parameters, snapshots *mat.Dense) error {
	n, paramDim := parameters.Dims()
	_, snapDim := snapshots.Dims()

	if g.config.MaxSamples > 0 && n > g.config.MaxSamples {
		return fmt.Errorf("training set exceeds maximum sample count: %d > %d", n, g.config.MaxSamples)
	}
	if g.config.MaxParameterDim > 0 && paramDim > g.config.MaxParameterDim {
		return fmt.Errorf("parameter vectors exceed maximum dimension: %d > %d", paramDim, g.config.MaxParameterDim)
	}
	if g.config.MaxSnapshotDim > 0 && snapDim > g.config.MaxSnapshotDim {
		return fmt.Errorf("snapshots exceed maximum dimension: %d > %d", snapDim, g.config.MaxSnapshotDim)
	}
	return nil
}
