package ml

import (
	"math/rand"

	"github.com/zktransfer/risk-engine/internal/features"
)

// CorpusConfig shapes the synthetic reference population the model is
// trained on. Two behavioral clusters: everyday transfers moving a small
// fraction of the balance, and higher-value but still legitimate transfers.
// Draining and extreme-ratio transfers stay deliberately out-of-distribution.
type CorpusConfig struct {
	Everyday  int   `yaml:"everyday"`
	HighValue int   `yaml:"high_value"`
	AssetID   uint64 `yaml:"asset_id"`
	Seed      int64 `yaml:"seed"`
}

// DefaultCorpusConfig returns the reference population sizes.
func DefaultCorpusConfig() CorpusConfig {
	return CorpusConfig{
		Everyday:  450,
		HighValue: 50,
		AssetID:   2000,
		Seed:      1,
	}
}

// GenerateCorpus produces the synthetic normal-transaction population.
// Deterministic for a fixed seed; no side effects.
func GenerateCorpus(cfg CorpusConfig) []features.Transaction {
	rng := rand.New(rand.NewSource(cfg.Seed))
	txs := make([]features.Transaction, 0, cfg.Everyday+cfg.HighValue)

	// Everyday transfers: 5-40% of a mid-sized balance.
	for i := 0; i < cfg.Everyday; i++ {
		balance := 5000 + rng.Float64()*95000
		ratio := 0.05 + rng.Float64()*0.35
		txs = append(txs, features.Transaction{
			SenderBalance:  balance,
			TransferAmount: balance * ratio,
			MaxAmount:      balance * (ratio + 0.2),
			AssetID:        cfg.AssetID,
		})
	}

	// Higher-value legitimate transfers: 40-60% of the balance.
	for i := 0; i < cfg.HighValue; i++ {
		balance := 10000 + rng.Float64()*40000
		amount := balance * (0.4 + rng.Float64()*0.2)
		txs = append(txs, features.Transaction{
			SenderBalance:  balance,
			TransferAmount: amount,
			MaxAmount:      amount * 1.3,
			AssetID:        cfg.AssetID,
		})
	}

	return txs
}
