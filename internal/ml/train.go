package ml

import (
	"fmt"
	"log/slog"
	"math"
	"math/rand"
)

// TrainConfig drives the one-time offline training step.
type TrainConfig struct {
	Epochs          int     `yaml:"epochs"`
	BatchSize       int     `yaml:"batch_size"`
	LearningRate    float64 `yaml:"learning_rate"`
	ValidationSplit float64 `yaml:"validation_split"`
	Seed            int64   `yaml:"seed"`
	LogEvery        int     `yaml:"log_every"`
}

// DefaultTrainConfig mirrors the reference training regime.
func DefaultTrainConfig() TrainConfig {
	return TrainConfig{
		Epochs:          100,
		BatchSize:       32,
		LearningRate:    0.01,
		ValidationSplit: 0.2,
		Seed:            42,
		LogEvery:        25,
	}
}

// TrainReport summarizes a completed training run.
type TrainReport struct {
	Epochs    int
	TrainLoss float64
	ValLoss   float64
}

// Adam optimizer constants.
const (
	adamBeta1 = 0.9
	adamBeta2 = 0.999
	adamEps   = 1e-8
)

// trainer carries per-parameter Adam state and per-batch caches.
type trainer struct {
	net *Autoencoder
	cfg TrainConfig

	mW, vW [][][]float64
	mB, vB [][]float64
	step   int

	// forward caches, one slot per layer
	pre   [][]float64 // pre-activation
	act   [][]float64 // post-activation
	gradW [][][]float64
	gradB [][]float64
}

// Train fits the network to reconstruct its own inputs, minimizing mean
// squared error over the normalized corpus. The validation split is held
// out purely for monitoring; there is no early stopping.
func (a *Autoencoder) Train(samples [][]float64, cfg TrainConfig, logger *slog.Logger) (TrainReport, error) {
	if len(samples) == 0 {
		return TrainReport{}, fmt.Errorf("cannot train on empty corpus")
	}
	if cfg.BatchSize <= 0 || cfg.Epochs <= 0 {
		return TrainReport{}, fmt.Errorf("invalid training config: epochs=%d batch=%d", cfg.Epochs, cfg.BatchSize)
	}
	if logger == nil {
		logger = slog.Default()
	}

	rng := rand.New(rand.NewSource(cfg.Seed))

	shuffled := make([][]float64, len(samples))
	copy(shuffled, samples)
	rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

	valN := int(float64(len(shuffled)) * cfg.ValidationSplit)
	train := shuffled[:len(shuffled)-valN]
	val := shuffled[len(shuffled)-valN:]

	t := newTrainer(a, cfg)

	report := TrainReport{Epochs: cfg.Epochs}
	for epoch := 1; epoch <= cfg.Epochs; epoch++ {
		rng.Shuffle(len(train), func(i, j int) { train[i], train[j] = train[j], train[i] })

		var epochLoss float64
		var batches int
		for start := 0; start < len(train); start += cfg.BatchSize {
			end := start + cfg.BatchSize
			if end > len(train) {
				end = len(train)
			}
			epochLoss += t.trainBatch(train[start:end])
			batches++
		}
		report.TrainLoss = epochLoss / float64(batches)
		report.ValLoss = a.meanLoss(val)

		if cfg.LogEvery > 0 && epoch%cfg.LogEvery == 0 {
			logger.Info("training progress",
				"epoch", epoch,
				"loss", report.TrainLoss,
				"val_loss", report.ValLoss,
			)
		}
	}

	return report, nil
}

// meanLoss computes mean per-sample MSE.
func (a *Autoencoder) meanLoss(samples [][]float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	var total float64
	for _, s := range samples {
		out, err := a.Reconstruct(s)
		if err != nil {
			return math.NaN()
		}
		var mse float64
		for i := range out {
			d := out[i] - s[i]
			mse += d * d
		}
		total += mse / float64(len(out))
	}
	return total / float64(len(samples))
}

func newTrainer(net *Autoencoder, cfg TrainConfig) *trainer {
	t := &trainer{net: net, cfg: cfg}
	n := len(net.Layers)
	t.mW = make([][][]float64, n)
	t.vW = make([][][]float64, n)
	t.gradW = make([][][]float64, n)
	t.mB = make([][]float64, n)
	t.vB = make([][]float64, n)
	t.gradB = make([][]float64, n)
	t.pre = make([][]float64, n)
	t.act = make([][]float64, n)
	for i, l := range net.Layers {
		out, in := len(l.W), len(l.W[0])
		t.mW[i] = zeros2(out, in)
		t.vW[i] = zeros2(out, in)
		t.gradW[i] = zeros2(out, in)
		t.mB[i] = make([]float64, out)
		t.vB[i] = make([]float64, out)
		t.gradB[i] = make([]float64, out)
	}
	return t
}

func zeros2(rows, cols int) [][]float64 {
	m := make([][]float64, rows)
	for i := range m {
		m[i] = make([]float64, cols)
	}
	return m
}

// trainBatch accumulates gradients over the batch and takes one Adam step.
// Returns the mean per-sample loss before the update.
func (t *trainer) trainBatch(batch [][]float64) float64 {
	for i := range t.gradW {
		for j := range t.gradW[i] {
			for k := range t.gradW[i][j] {
				t.gradW[i][j][k] = 0
			}
			t.gradB[i][j] = 0
		}
	}

	var loss float64
	for _, sample := range batch {
		loss += t.backprop(sample)
	}
	loss /= float64(len(batch))

	t.step++
	scale := 1 / float64(len(batch))
	c1 := 1 - math.Pow(adamBeta1, float64(t.step))
	c2 := 1 - math.Pow(adamBeta2, float64(t.step))

	for i, l := range t.net.Layers {
		for j := range l.W {
			for k := range l.W[j] {
				g := t.gradW[i][j][k] * scale
				t.mW[i][j][k] = adamBeta1*t.mW[i][j][k] + (1-adamBeta1)*g
				t.vW[i][j][k] = adamBeta2*t.vW[i][j][k] + (1-adamBeta2)*g*g
				l.W[j][k] -= t.cfg.LearningRate * (t.mW[i][j][k] / c1) / (math.Sqrt(t.vW[i][j][k]/c2) + adamEps)
			}
			g := t.gradB[i][j] * scale
			t.mB[i][j] = adamBeta1*t.mB[i][j] + (1-adamBeta1)*g
			t.vB[i][j] = adamBeta2*t.vB[i][j] + (1-adamBeta2)*g*g
			l.B[j] -= t.cfg.LearningRate * (t.mB[i][j] / c1) / (math.Sqrt(t.vB[i][j]/c2) + adamEps)
		}
	}

	return loss
}

// backprop runs one forward/backward pass, accumulating gradients.
// The target is the input itself.
func (t *trainer) backprop(sample []float64) float64 {
	// Forward.
	in := sample
	for i, l := range t.net.Layers {
		out := len(l.W)
		pre := make([]float64, out)
		act := make([]float64, out)
		for j, row := range l.W {
			s := l.B[j]
			for k, x := range in {
				s += row[k] * x
			}
			pre[j] = s
			act[j] = activate(l.Act, s)
		}
		t.pre[i] = pre
		t.act[i] = act
		in = act
	}

	last := len(t.net.Layers) - 1
	output := t.act[last]
	width := float64(len(output))

	// Loss and output-layer gradient: L = mean((y - x)^2).
	var loss float64
	delta := make([]float64, len(output))
	for j := range output {
		d := output[j] - sample[j]
		loss += d * d
		delta[j] = 2 * d / width
	}
	loss /= width

	// Backward.
	for i := last; i >= 0; i-- {
		l := t.net.Layers[i]
		for j := range delta {
			delta[j] *= activateDeriv(l.Act, t.pre[i][j])
		}

		prev := sample
		if i > 0 {
			prev = t.act[i-1]
		}
		for j := range l.W {
			dj := delta[j]
			if dj == 0 {
				continue
			}
			for k := range l.W[j] {
				t.gradW[i][j][k] += dj * prev[k]
			}
			t.gradB[i][j] += dj
		}

		if i > 0 {
			next := make([]float64, len(prev))
			for j, row := range l.W {
				dj := delta[j]
				if dj == 0 {
					continue
				}
				for k := range row {
					next[k] += row[k] * dj
				}
			}
			delta = next
		}
	}

	return loss
}
