// Package ml implements the reconstruction model used for novelty scoring:
// feature scaling, the autoencoder and its training loop, and persistence
// of the trained artifact.
package ml

import (
	"fmt"
	"math"
)

// stdFloor is added to every per-feature standard deviation so constant
// features never divide by zero during normalization.
const stdFloor = 1e-7

// Scaler holds per-feature mean and standard deviation fitted once from a
// reference corpus. It is immutable for the lifetime of a trained model;
// refitting from live traffic would let hostile traffic poison the normal
// statistics.
type Scaler struct {
	Mean []float64 `json:"mean"`
	Std  []float64 `json:"std"`
}

// FitScaler computes per-feature population statistics across the corpus.
func FitScaler(samples [][]float64) (*Scaler, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("cannot fit scaler on empty corpus")
	}
	dims := len(samples[0])

	mean := make([]float64, dims)
	for _, s := range samples {
		if len(s) != dims {
			return nil, fmt.Errorf("inconsistent sample width: got %d, want %d", len(s), dims)
		}
		for i, v := range s {
			mean[i] += v
		}
	}
	for i := range mean {
		mean[i] /= float64(len(samples))
	}

	std := make([]float64, dims)
	for _, s := range samples {
		for i, v := range s {
			d := v - mean[i]
			std[i] += d * d
		}
	}
	for i := range std {
		std[i] = math.Sqrt(std[i]/float64(len(samples))) + stdFloor
	}

	return &Scaler{Mean: mean, Std: std}, nil
}

// Normalize maps a raw vector to zero-mean/unit-variance space.
func (s *Scaler) Normalize(v []float64) ([]float64, error) {
	if len(v) != len(s.Mean) {
		return nil, fmt.Errorf("vector width %d does not match scaler width %d", len(v), len(s.Mean))
	}
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = (x - s.Mean[i]) / s.Std[i]
	}
	return out, nil
}

// NormalizeAll normalizes a batch of vectors.
func (s *Scaler) NormalizeAll(samples [][]float64) ([][]float64, error) {
	out := make([][]float64, len(samples))
	for i, v := range samples {
		n, err := s.Normalize(v)
		if err != nil {
			return nil, err
		}
		out[i] = n
	}
	return out, nil
}
