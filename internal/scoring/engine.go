// Package scoring turns a raw transaction into a bounded anomaly score,
// a risk tier, an explanation of the top contributing factors and a
// recommendation.
package scoring

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/zktransfer/risk-engine/internal/features"
	"github.com/zktransfer/risk-engine/internal/ml"
)

// RiskTier classifies a score.
type RiskTier string

const (
	LowRisk    RiskTier = "LOW_RISK"
	MediumRisk RiskTier = "MEDIUM_RISK"
	HighRisk   RiskTier = "HIGH_RISK"
)

// Classification cut points. Fixed design constants validated only against
// the synthetic corpus, not learned from real fraud data.
const (
	highRiskCut   = 0.65
	mediumRiskCut = 0.35
)

// Factor severity labels for the explanation layer.
const (
	SeverityHigh   = "HIGH"
	SeverityMedium = "MEDIUM"
	SeverityLow    = "LOW"
)

// Severity cut points over raw (pre-normalization) feature values.
const (
	severityHighCut   = 0.7
	severityMediumCut = 0.4
)

const maxTopFactors = 3

// Factor names a raw feature signal that plausibly explains a flag,
// independent of the model internals.
type Factor struct {
	Name     string  `json:"name"`
	Value    float64 `json:"value"`
	Severity string  `json:"severity"`
}

// Result is the scoring output. Derived per request, never stored.
type Result struct {
	Score          float64                `json:"score"` // [0, 1]
	RiskPercentage string                 `json:"risk_percentage"`
	Tier           RiskTier               `json:"classification"`
	TopFactors     []Factor               `json:"top_factors"`
	Recommendation string                 `json:"recommendation"`
	Features       features.FeatureVector `json:"features"`
	ModelVersion   string                 `json:"model_version"`
}

// Engine scores transactions against the published reconstruction model.
// Scoring is pure: it never mutates history; the caller decides whether
// to record the transaction.
type Engine struct {
	extractor *features.Extractor
	published *ml.Published
}

// NewEngine creates a scoring engine reading the given model handle.
func NewEngine(extractor *features.Extractor, published *ml.Published) *Engine {
	return &Engine{extractor: extractor, published: published}
}

// Ready reports whether a trained model has been published.
func (e *Engine) Ready() bool {
	return e.published.Ready()
}

// Score runs the full pipeline: validate, extract, normalize, reconstruct,
// derive score, tier, factors and recommendation. Idempotent for identical
// inputs at a fixed clock reading.
func (e *Engine) Score(ctx context.Context, tx features.Transaction, history []features.HistoryEntry) (*Result, error) {
	if err := validate(tx); err != nil {
		return nil, err
	}

	artifact, err := e.published.Current()
	if err != nil {
		return nil, err
	}

	vec, err := e.extractor.Extract(tx, history)
	if err != nil {
		return nil, err
	}

	rawError, err := artifact.ReconstructionError(vec)
	if err != nil {
		return nil, fmt.Errorf("reconstruction failed: %w", err)
	}

	score := math.Min(rawError/artifact.Threshold, 1)
	tier := classify(score)

	return &Result{
		Score:          score,
		RiskPercentage: fmt.Sprintf("%.1f%%", score*100),
		Tier:           tier,
		TopFactors:     topFactors(vec),
		Recommendation: recommend(tier, vec[features.IdxBalanceRatio]),
		Features:       vec,
		ModelVersion:   artifact.Version,
	}, nil
}

func validate(tx features.Transaction) error {
	if tx.SenderBalance < 0 {
		return &ValidationError{Field: "sender_balance", Reason: "must not be negative"}
	}
	if tx.TransferAmount < 0 {
		return &ValidationError{Field: "transfer_amount", Reason: "must not be negative"}
	}
	if tx.MaxAmount <= 0 {
		return &ValidationError{Field: "max_amount", Reason: "must be positive"}
	}
	return nil
}

func classify(score float64) RiskTier {
	switch {
	case score > highRiskCut:
		return HighRisk
	case score > mediumRiskCut:
		return MediumRisk
	default:
		return LowRisk
	}
}

// topFactors surfaces the raw signals driving the flag: every non-LOW raw
// feature, sorted by value, capped at three.
func topFactors(vec features.FeatureVector) []Factor {
	factors := make([]Factor, 0, len(vec))
	for i, v := range vec {
		severity := SeverityLow
		switch {
		case v > severityHighCut:
			severity = SeverityHigh
		case v > severityMediumCut:
			severity = SeverityMedium
		}
		if severity == SeverityLow {
			continue
		}
		factors = append(factors, Factor{
			Name:     features.Names[i],
			Value:    v,
			Severity: severity,
		})
	}

	sort.SliceStable(factors, func(i, j int) bool { return factors[i].Value > factors[j].Value })
	if len(factors) > maxTopFactors {
		factors = factors[:maxTopFactors]
	}
	return factors
}

func recommend(tier RiskTier, balanceRatio float64) string {
	switch tier {
	case HighRisk:
		if balanceRatio > 0.9 {
			return "block - account drain pattern, require strong re-authentication"
		}
		return "block - unusual pattern, manual review required"
	case MediumRisk:
		return "flag - require additional verification"
	default:
		return "approve - normal transaction pattern"
	}
}
