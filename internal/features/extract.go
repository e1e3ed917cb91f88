// Package features builds the fixed numeric feature schema consumed by the
// reconstruction model, and tracks per-context transaction history.
package features

import (
	"fmt"
	"math"
	"time"
)

// NumFeatures is the width of the feature vector. The model's input layout
// and the factor labels are positionally bound to this schema.
const NumFeatures = 10

// Feature positions.
const (
	IdxBalanceRatio = iota
	IdxAmountMagnitude
	IdxHourOfDay
	IdxDayOfWeek
	IdxWeekendActivity
	IdxBusinessHours
	IdxStatisticalOutlier
	IdxAccountDraining
	IdxMicroTransaction
	IdxMaxAmountLimit
)

// Names holds the display label for each feature position.
var Names = [NumFeatures]string{
	"Balance Ratio",
	"Amount Magnitude",
	"Time of Day",
	"Day of Week",
	"Weekend Activity",
	"Business Hours",
	"Statistical Outlier",
	"Account Draining",
	"Micro-Transaction",
	"Max Amount Limit",
}

// Fixed scaling constants for raw feature computation.
const (
	logAmountScale   = 5.0      // keeps realistic amounts near [0,1]
	maxAmountCeiling = 100000.0 // normalization ceiling for the transfer cap
	zScoreClamp      = 3.0
	zScoreWindow     = 10 // history entries consulted for the outlier score
	drainingCutoff   = 0.9
	microCutoff      = 100.0
)

// Transaction is a proposed value transfer as presented by the intake layer.
// TransferAmount may exceed SenderBalance; that case is a risk signal here,
// not a precondition failure (the proof pipeline rejects overdrafts itself).
type Transaction struct {
	SenderBalance  float64 `json:"sender_balance"`
	TransferAmount float64 `json:"transfer_amount"`
	MaxAmount      float64 `json:"max_amount"`
	AssetID        uint64  `json:"asset_id"`
}

// FeatureVector is an ordered slice of exactly NumFeatures raw feature values.
type FeatureVector []float64

// NumericDegeneracyError reports a division by a zero-valued denominator.
// It is never silently coerced to 0 or infinity.
type NumericDegeneracyError struct {
	Field  string
	Reason string
}

func (e *NumericDegeneracyError) Error() string {
	return fmt.Sprintf("degenerate input %s: %s", e.Field, e.Reason)
}

// Extractor maps a transaction plus a recent-history window to a feature
// vector. Stateless apart from the injected clock.
type Extractor struct {
	clock Clock
}

// NewExtractor creates an extractor reading the given clock.
func NewExtractor(clock Clock) *Extractor {
	if clock == nil {
		clock = SystemClock
	}
	return &Extractor{clock: clock}
}

// Extract computes the feature vector for tx. Deterministic given tx,
// history and the clock reading.
func (e *Extractor) Extract(tx Transaction, history []HistoryEntry) (FeatureVector, error) {
	if tx.SenderBalance == 0 {
		return nil, &NumericDegeneracyError{
			Field:  "sender_balance",
			Reason: "balance ratio undefined for zero balance",
		}
	}

	balanceRatio := math.Min(tx.TransferAmount/tx.SenderBalance, 1)
	logAmount := math.Log10(tx.TransferAmount+1) / logAmountScale

	now := e.clock.Now()
	hour := now.Hour()
	day := int(now.Weekday())

	var isWeekend, isBusinessHours float64
	if day == int(time.Sunday) || day == int(time.Saturday) {
		isWeekend = 1
	}
	if hour >= 9 && hour <= 17 {
		isBusinessHours = 1
	}

	outlier := outlierScore(tx.TransferAmount, history)

	var isDraining, isMicro float64
	if balanceRatio > drainingCutoff {
		isDraining = 1
	}
	if tx.TransferAmount < microCutoff {
		isMicro = 1
	}
	maxAmountRatio := math.Min(tx.MaxAmount/maxAmountCeiling, 1)

	return FeatureVector{
		balanceRatio,
		logAmount,
		float64(hour) / 24,
		float64(day) / 7,
		isWeekend,
		isBusinessHours,
		outlier,
		isDraining,
		isMicro,
		maxAmountRatio,
	}, nil
}

// outlierScore derives a clamped z-score of the amount against the most
// recent history window. With two or fewer entries there is not enough
// signal and the feature is 0.
func outlierScore(amount float64, history []HistoryEntry) float64 {
	if len(history) <= 2 {
		return 0
	}

	window := history
	if len(window) > zScoreWindow {
		window = window[len(window)-zScoreWindow:]
	}

	var sum float64
	for _, h := range window {
		sum += h.TransferAmount
	}
	mean := sum / float64(len(window))

	var variance float64
	for _, h := range window {
		d := h.TransferAmount - mean
		variance += d * d
	}
	variance /= float64(len(window))
	std := math.Sqrt(variance)
	if std == 0 {
		return 0
	}

	z := math.Abs(amount-mean) / std
	return math.Min(z, zScoreClamp) / zScoreClamp
}
