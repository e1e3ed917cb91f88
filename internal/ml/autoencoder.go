package ml

import (
	"fmt"
	"math"
	"math/rand"
)

// Reconstructor maps a normalized feature vector to its reconstruction.
// Inputs the model cannot reproduce are the anomaly signal.
type Reconstructor interface {
	Reconstruct(in []float64) ([]float64, error)
}

// Activation kinds.
const (
	actReLU     = "relu"
	actIdentity = "identity"
)

// layer is a dense layer. Weights are stored row-major: W[out][in].
type layer struct {
	W [][]float64 `json:"w"`
	B []float64   `json:"b"`
	// Act names the activation function.
	Act string `json:"act"`
}

// Autoencoder is a bottlenecked encoder-decoder network. The encoder
// compresses 10 -> 6 -> 3, the decoder expands 3 -> 6 -> 10, forcing a
// compressed representation of normal transactions. The output layer is
// linear so the decoder can reproduce zero-mean/unit-variance targets,
// which span both signs.
type Autoencoder struct {
	Layers []*layer `json:"layers"`
}

// Widths of the network, input to output.
var defaultWidths = []int{10, 6, 3, 6, 10}

// NewAutoencoder builds an untrained network with Glorot-uniform weights.
func NewAutoencoder(rng *rand.Rand) *Autoencoder {
	if rng == nil {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}
	net := &Autoencoder{}
	for i := 1; i < len(defaultWidths); i++ {
		in, out := defaultWidths[i-1], defaultWidths[i]
		l := &layer{
			W:   make([][]float64, out),
			B:   make([]float64, out),
			Act: actReLU,
		}
		if i == len(defaultWidths)-1 {
			l.Act = actIdentity
		}
		limit := math.Sqrt(6 / float64(in+out))
		for j := range l.W {
			l.W[j] = make([]float64, in)
			for k := range l.W[j] {
				l.W[j][k] = (rng.Float64()*2 - 1) * limit
			}
		}
		net.Layers = append(net.Layers, l)
	}
	return net
}

// InputWidth returns the expected input dimensionality.
func (a *Autoencoder) InputWidth() int {
	if len(a.Layers) == 0 {
		return 0
	}
	return len(a.Layers[0].W[0])
}

// Reconstruct runs a pure forward pass.
func (a *Autoencoder) Reconstruct(in []float64) ([]float64, error) {
	if len(in) != a.InputWidth() {
		return nil, fmt.Errorf("input width %d does not match model width %d", len(in), a.InputWidth())
	}
	act := in
	for _, l := range a.Layers {
		act = l.forward(act)
	}
	return act, nil
}

func (l *layer) forward(in []float64) []float64 {
	out := make([]float64, len(l.W))
	for j, row := range l.W {
		s := l.B[j]
		for i, x := range in {
			s += row[i] * x
		}
		out[j] = activate(l.Act, s)
	}
	return out
}

func activate(kind string, x float64) float64 {
	if kind == actReLU && x < 0 {
		return 0
	}
	return x
}

func activateDeriv(kind string, pre float64) float64 {
	if kind == actReLU && pre <= 0 {
		return 0
	}
	return 1
}

// validate checks structural integrity of a deserialized network.
func (a *Autoencoder) validate() error {
	if len(a.Layers) == 0 {
		return fmt.Errorf("model has no layers")
	}
	prev := -1
	for i, l := range a.Layers {
		if len(l.W) == 0 || len(l.B) != len(l.W) {
			return fmt.Errorf("layer %d: malformed weights", i)
		}
		in := len(l.W[0])
		for _, row := range l.W {
			if len(row) != in {
				return fmt.Errorf("layer %d: ragged weight matrix", i)
			}
		}
		if prev >= 0 && in != prev {
			return fmt.Errorf("layer %d: input width %d does not match previous output %d", i, in, prev)
		}
		if l.Act != actReLU && l.Act != actIdentity {
			return fmt.Errorf("layer %d: unknown activation %q", i, l.Act)
		}
		prev = len(l.W)
	}
	return nil
}
