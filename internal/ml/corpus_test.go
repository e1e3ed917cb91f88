package ml

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateCorpusShape(t *testing.T) {
	cfg := DefaultCorpusConfig()
	corpus := GenerateCorpus(cfg)

	require.Len(t, corpus, cfg.Everyday+cfg.HighValue)

	for i, tx := range corpus[:cfg.Everyday] {
		ratio := tx.TransferAmount / tx.SenderBalance
		assert.GreaterOrEqual(t, tx.SenderBalance, 5000.0, "everyday sample %d", i)
		assert.LessOrEqual(t, tx.SenderBalance, 100000.0, "everyday sample %d", i)
		assert.GreaterOrEqual(t, ratio, 0.05, "everyday sample %d", i)
		assert.LessOrEqual(t, ratio, 0.40, "everyday sample %d", i)
		assert.Greater(t, tx.MaxAmount, tx.TransferAmount, "everyday sample %d", i)
		assert.Equal(t, cfg.AssetID, tx.AssetID)
	}

	for i, tx := range corpus[cfg.Everyday:] {
		ratio := tx.TransferAmount / tx.SenderBalance
		assert.GreaterOrEqual(t, tx.SenderBalance, 10000.0, "high-value sample %d", i)
		assert.LessOrEqual(t, tx.SenderBalance, 50000.0, "high-value sample %d", i)
		assert.GreaterOrEqual(t, ratio, 0.4, "high-value sample %d", i)
		assert.LessOrEqual(t, ratio, 0.6, "high-value sample %d", i)
		assert.InDelta(t, tx.TransferAmount*1.3, tx.MaxAmount, 1e-9, "high-value sample %d", i)
	}
}

func TestGenerateCorpusDeterministic(t *testing.T) {
	cfg := DefaultCorpusConfig()
	a := GenerateCorpus(cfg)
	b := GenerateCorpus(cfg)
	assert.Equal(t, a, b)

	cfg.Seed = 2
	c := GenerateCorpus(cfg)
	assert.NotEqual(t, a, c)
}

func TestGenerateCorpusNeverDrains(t *testing.T) {
	corpus := GenerateCorpus(DefaultCorpusConfig())
	for _, tx := range corpus {
		assert.LessOrEqual(t, tx.TransferAmount/tx.SenderBalance, 0.6,
			"corpus must stay out of the draining regime")
	}
}
