package ml

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zktransfer/risk-engine/internal/features"
)

func trainTestArtifact(t *testing.T) *Artifact {
	t.Helper()
	extractor := features.NewExtractor(features.FixedClock{
		T: time.Date(2024, 3, 5, 10, 30, 0, 0, time.UTC),
	})
	cfg := smallTrainConfig()
	artifact, err := TrainArtifact(extractor, DefaultCorpusConfig(), cfg, DefaultThreshold, discardLogger())
	require.NoError(t, err)
	return artifact
}

func TestTrainArtifact(t *testing.T) {
	artifact := trainTestArtifact(t)

	assert.Equal(t, ArtifactVersion, artifact.Version)
	assert.Equal(t, DefaultThreshold, artifact.Threshold)
	assert.False(t, artifact.TrainedAt.IsZero())
	require.NoError(t, artifact.Validate())

	raw := make([]float64, features.NumFeatures)
	raw[0] = 0.2
	_, err := artifact.ReconstructionError(raw)
	require.NoError(t, err)
}

func TestArtifactValidate(t *testing.T) {
	artifact := trainTestArtifact(t)

	broken := *artifact
	broken.Model = nil
	require.Error(t, broken.Validate())

	broken = *artifact
	broken.Threshold = 0
	require.Error(t, broken.Validate())

	broken = *artifact
	broken.Scaler = &Scaler{Mean: []float64{0}, Std: []float64{1}}
	require.Error(t, broken.Validate(), "scaler width must match the model")
}

func TestFileStoreRoundTrip(t *testing.T) {
	artifact := trainTestArtifact(t)
	path := filepath.Join(t.TempDir(), "models", "risk_model.json")
	store := NewFileStore(path)

	require.NoError(t, store.Save(artifact))

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, artifact.Version, loaded.Version)
	assert.Equal(t, artifact.Threshold, loaded.Threshold)

	// A reloaded artifact must score identically.
	raw := []float64{0.3, 0.6, 10.0 / 24, 2.0 / 7, 0, 1, 0, 0, 0, 0.4}
	want, err := artifact.ReconstructionError(raw)
	require.NoError(t, err)
	got, err := loaded.ReconstructionError(raw)
	require.NoError(t, err)
	assert.InDelta(t, want, got, 1e-9)
}

func TestFileStoreLoadMissing(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "absent.json"))
	_, err := store.Load()
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestFileStoreLoadMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := NewFileStore(path).Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "malformed artifact")
}

func TestFileStoreRejectsInvalidSave(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "model.json"))
	err := store.Save(&Artifact{Version: ArtifactVersion, Threshold: 0.15})
	require.Error(t, err)
}

func TestPublished(t *testing.T) {
	p := &Published{}

	assert.False(t, p.Ready())
	_, err := p.Current()
	require.ErrorIs(t, err, ErrModelNotReady)

	artifact := trainTestArtifact(t)
	p.Publish(artifact)

	assert.True(t, p.Ready())
	got, err := p.Current()
	require.NoError(t, err)
	assert.Same(t, artifact, got)
}
