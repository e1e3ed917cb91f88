package ml

import (
	"errors"
	"fmt"
	"math"
	"sync/atomic"
	"time"
)

// ArtifactVersion tags artifacts produced by this training pipeline.
const ArtifactVersion = "2.0.0"

// DefaultThreshold is the reconstruction error expected for
// borderline-normal inputs. Hand-tuned against the synthetic corpus;
// treat as configuration, not a proven-correct constant.
const DefaultThreshold = 0.15

// ErrModelNotReady is returned when scoring is requested before a trained
// artifact has been published. Retryable once training or loading completes.
var ErrModelNotReady = errors.New("model not ready")

// Artifact bundles everything scoring needs: the fitted scaler, the trained
// network and the error threshold, under a version tag. Immutable once
// published.
type Artifact struct {
	Version   string       `json:"version"`
	TrainedAt time.Time    `json:"trained_at"`
	Threshold float64      `json:"threshold"`
	Scaler    *Scaler      `json:"scaler"`
	Model     *Autoencoder `json:"model"`

	// backend, when set, serves inference instead of the embedded network.
	// The scaler and threshold still come from the artifact.
	backend Reconstructor
}

// UseBackend routes reconstruction through an external inference backend,
// such as an ONNX session. Call before publishing; artifacts are not
// mutated after publish.
func (a *Artifact) UseBackend(r Reconstructor) {
	a.backend = r
}

// Validate checks a deserialized artifact for structural integrity.
// A malformed persisted artifact is fatal at load time, never deferred
// to request time.
func (a *Artifact) Validate() error {
	if a.Model == nil || a.Scaler == nil {
		return fmt.Errorf("artifact missing model or scaler")
	}
	if a.Threshold <= 0 {
		return fmt.Errorf("artifact threshold must be positive, got %g", a.Threshold)
	}
	if err := a.Model.validate(); err != nil {
		return fmt.Errorf("invalid model: %w", err)
	}
	if len(a.Scaler.Mean) != a.Model.InputWidth() || len(a.Scaler.Std) != len(a.Scaler.Mean) {
		return fmt.Errorf("scaler width %d does not match model width %d",
			len(a.Scaler.Mean), a.Model.InputWidth())
	}
	for i, s := range a.Scaler.Std {
		if s < stdFloor {
			return fmt.Errorf("scaler std[%d] below floor: %g", i, s)
		}
	}
	return nil
}

// ReconstructionError normalizes the raw vector and returns the
// root-mean-squared reconstruction error across its dimensions.
func (a *Artifact) ReconstructionError(raw []float64) (float64, error) {
	normalized, err := a.Scaler.Normalize(raw)
	if err != nil {
		return 0, err
	}
	model := Reconstructor(a.Model)
	if a.backend != nil {
		model = a.backend
	}
	reconstruction, err := model.Reconstruct(normalized)
	if err != nil {
		return 0, err
	}
	var mse float64
	for i := range normalized {
		d := reconstruction[i] - normalized[i]
		mse += d * d
	}
	mse /= float64(len(normalized))
	return math.Sqrt(mse), nil
}

// Published is the atomically swapped handle concurrent scorers read.
// The artifact behind it is never mutated in place; updates publish a
// fresh artifact so readers never observe a half-updated model.
type Published struct {
	current atomic.Pointer[Artifact]
}

// Publish swaps in a new artifact.
func (p *Published) Publish(a *Artifact) {
	p.current.Store(a)
}

// Current returns the live artifact, or ErrModelNotReady before the
// first publish.
func (p *Published) Current() (*Artifact, error) {
	a := p.current.Load()
	if a == nil {
		return nil, ErrModelNotReady
	}
	return a, nil
}

// Ready reports whether an artifact has been published.
func (p *Published) Ready() bool {
	return p.current.Load() != nil
}
