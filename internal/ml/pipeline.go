package ml

import (
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/zktransfer/risk-engine/internal/features"
)

// TrainArtifact runs the full offline pipeline: generate the synthetic
// corpus, extract features, fit the scaler, train the autoencoder, and
// bundle the result as a publishable artifact. Long-running (seconds);
// callers must not serve scoring requests until the artifact is published.
func TrainArtifact(
	extractor *features.Extractor,
	corpusCfg CorpusConfig,
	trainCfg TrainConfig,
	threshold float64,
	logger *slog.Logger,
) (*Artifact, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if threshold <= 0 {
		threshold = DefaultThreshold
	}

	corpus := GenerateCorpus(corpusCfg)
	logger.Info("training corpus generated",
		"everyday", corpusCfg.Everyday,
		"high_value", corpusCfg.HighValue,
	)

	samples := make([][]float64, 0, len(corpus))
	for _, tx := range corpus {
		vec, err := extractor.Extract(tx, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to extract corpus features: %w", err)
		}
		samples = append(samples, vec)
	}

	scaler, err := FitScaler(samples)
	if err != nil {
		return nil, fmt.Errorf("failed to fit scaler: %w", err)
	}
	normalized, err := scaler.NormalizeAll(samples)
	if err != nil {
		return nil, fmt.Errorf("failed to normalize corpus: %w", err)
	}

	model := NewAutoencoder(rand.New(rand.NewSource(trainCfg.Seed)))
	start := time.Now()
	report, err := model.Train(normalized, trainCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("training failed: %w", err)
	}
	logger.Info("training complete",
		"epochs", report.Epochs,
		"loss", report.TrainLoss,
		"val_loss", report.ValLoss,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return &Artifact{
		Version:   ArtifactVersion,
		TrainedAt: time.Now().UTC(),
		Threshold: threshold,
		Scaler:    scaler,
		Model:     model,
	}, nil
}
