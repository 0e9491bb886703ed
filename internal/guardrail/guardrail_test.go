package guardrail

import (
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/yourusername/snapshot-rom/internal/config"
)

func matrices(n, paramDim, snapDim int) (*mat.Dense, *mat.Dense) {
	return mat.NewDense(n, paramDim, nil), mat.NewDense(n, snapDim, nil)
}

func TestDisabledLimitsAcceptEverything(t *testing.T) {
	g := NewShapeGuardrail(config.GuardrailConfig{})
	params, snaps := matrices(1000, 50, 5000)
	if err := g.Validate(params, snaps); err != nil {
		t.Fatalf("validate failed with disabled limits: %v", err)
	}
}

func TestLimitsEnforced(t *testing.T) {
	g := NewShapeGuardrail(config.GuardrailConfig{
		MaxSamples:      10,
		MaxParameterDim: 4,
		MaxSnapshotDim:  100,
	})

	params, snaps := matrices(5, 2, 50)
	if err := g.Validate(params, snaps); err != nil {
		t.Fatalf("validate rejected conforming data: %v", err)
	}

	params, snaps = matrices(11, 2, 50)
	if err := g.Validate(params, snaps); err == nil {
		t.Error("expected error for too many samples")
	}

	params, snaps = matrices(5, 5, 50)
	if err := g.Validate(params, snaps); err == nil {
		t.Error("expected error for parameter dimension")
	}

	params, snaps = matrices(5, 2, 101)
	if err := g.Validate(params, snaps); err == nil {
		t.Error("expected error for snapshot dimension")
	}
}
