package features

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Tuesday 2024-03-05 10:30 UTC: a weekday inside business hours.
var weekdayMorning = FixedClock{T: time.Date(2024, 3, 5, 10, 30, 0, 0, time.UTC)}

// Saturday 2024-03-09 23:15 UTC: weekend, outside business hours.
var saturdayNight = FixedClock{T: time.Date(2024, 3, 9, 23, 15, 0, 0, time.UTC)}

func TestExtractSchema(t *testing.T) {
	e := NewExtractor(weekdayMorning)

	vec, err := e.Extract(Transaction{
		SenderBalance:  10000,
		TransferAmount: 2500,
		MaxAmount:      5000,
	}, nil)
	require.NoError(t, err)
	require.Len(t, vec, NumFeatures)

	assert.InDelta(t, 0.25, vec[IdxBalanceRatio], 1e-12)
	assert.InDelta(t, math.Log10(2501)/5, vec[IdxAmountMagnitude], 1e-12)
	assert.InDelta(t, 10.0/24, vec[IdxHourOfDay], 1e-12)
	assert.InDelta(t, 2.0/7, vec[IdxDayOfWeek], 1e-12)
	assert.Equal(t, 0.0, vec[IdxWeekendActivity])
	assert.Equal(t, 1.0, vec[IdxBusinessHours])
	assert.Equal(t, 0.0, vec[IdxStatisticalOutlier])
	assert.Equal(t, 0.0, vec[IdxAccountDraining])
	assert.Equal(t, 0.0, vec[IdxMicroTransaction])
	assert.InDelta(t, 0.05, vec[IdxMaxAmountLimit], 1e-12)
}

func TestExtractTemporalFeatures(t *testing.T) {
	e := NewExtractor(saturdayNight)

	vec, err := e.Extract(Transaction{
		SenderBalance:  10000,
		TransferAmount: 500,
		MaxAmount:      5000,
	}, nil)
	require.NoError(t, err)

	assert.InDelta(t, 23.0/24, vec[IdxHourOfDay], 1e-12)
	assert.InDelta(t, 6.0/7, vec[IdxDayOfWeek], 1e-12)
	assert.Equal(t, 1.0, vec[IdxWeekendActivity])
	assert.Equal(t, 0.0, vec[IdxBusinessHours])
}

func TestExtractBalanceRatioClamped(t *testing.T) {
	e := NewExtractor(weekdayMorning)

	// Transfer exceeding the balance is a signal, not an error.
	vec, err := e.Extract(Transaction{
		SenderBalance:  1000,
		TransferAmount: 5000,
		MaxAmount:      10000,
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, 1.0, vec[IdxBalanceRatio])
	assert.Equal(t, 1.0, vec[IdxAccountDraining])
}

func TestExtractBalanceRatioMonotonic(t *testing.T) {
	e := NewExtractor(weekdayMorning)

	var prev float64 = -1
	for amount := 100.0; amount <= 12000; amount += 100 {
		vec, err := e.Extract(Transaction{
			SenderBalance:  10000,
			TransferAmount: amount,
			MaxAmount:      20000,
		}, nil)
		require.NoError(t, err)

		assert.GreaterOrEqual(t, vec[IdxBalanceRatio], prev,
			"ratio must not decrease as amount grows (amount=%g)", amount)
		if amount >= 10000 {
			assert.Equal(t, 1.0, vec[IdxBalanceRatio], "clamped once amount reaches balance")
		}
		prev = vec[IdxBalanceRatio]
	}
}

func TestExtractDrainPattern(t *testing.T) {
	e := NewExtractor(weekdayMorning)

	vec, err := e.Extract(Transaction{
		SenderBalance:  15000,
		TransferAmount: 14500,
		MaxAmount:      20000,
	}, nil)
	require.NoError(t, err)

	assert.InDelta(t, 14500.0/15000, vec[IdxBalanceRatio], 1e-12)
	assert.Equal(t, 1.0, vec[IdxAccountDraining], "ratio above 0.9 flags draining")
	assert.Equal(t, 0.0, vec[IdxMicroTransaction])
}

func TestExtractDrainingBoundary(t *testing.T) {
	e := NewExtractor(weekdayMorning)

	// Exactly 0.9 is not draining; strictly above is.
	vec, err := e.Extract(Transaction{SenderBalance: 1000, TransferAmount: 900, MaxAmount: 5000}, nil)
	require.NoError(t, err)
	assert.Equal(t, 0.0, vec[IdxAccountDraining])

	vec, err = e.Extract(Transaction{SenderBalance: 1000, TransferAmount: 900.01, MaxAmount: 5000}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1.0, vec[IdxAccountDraining])
}

func TestExtractMicroTransaction(t *testing.T) {
	e := NewExtractor(weekdayMorning)

	vec, err := e.Extract(Transaction{SenderBalance: 100000, TransferAmount: 5, MaxAmount: 10000}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1.0, vec[IdxMicroTransaction])

	// Exactly at the cutoff is not micro.
	vec, err = e.Extract(Transaction{SenderBalance: 100000, TransferAmount: 100, MaxAmount: 10000}, nil)
	require.NoError(t, err)
	assert.Equal(t, 0.0, vec[IdxMicroTransaction])
}

func TestExtractMaxAmountClamped(t *testing.T) {
	e := NewExtractor(weekdayMorning)

	vec, err := e.Extract(Transaction{
		SenderBalance:  500000,
		TransferAmount: 1000,
		MaxAmount:      250000,
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, 1.0, vec[IdxMaxAmountLimit])
}

func TestExtractZeroBalance(t *testing.T) {
	e := NewExtractor(weekdayMorning)

	_, err := e.Extract(Transaction{SenderBalance: 0, TransferAmount: 100, MaxAmount: 1000}, nil)
	require.Error(t, err)

	var degenerate *NumericDegeneracyError
	require.ErrorAs(t, err, &degenerate)
	assert.Equal(t, "sender_balance", degenerate.Field)
}

func historyOf(amounts ...float64) []HistoryEntry {
	entries := make([]HistoryEntry, len(amounts))
	for i, a := range amounts {
		entries[i] = HistoryEntry{Transaction: Transaction{
			SenderBalance:  100000,
			TransferAmount: a,
			MaxAmount:      100000,
		}}
	}
	return entries
}

func TestOutlierScore(t *testing.T) {
	tests := []struct {
		name    string
		amount  float64
		history []HistoryEntry
		want    float64
	}{
		{
			name:    "no history",
			amount:  5000,
			history: nil,
			want:    0,
		},
		{
			name:    "two entries is not enough signal",
			amount:  5000,
			history: historyOf(100, 100),
			want:    0,
		},
		{
			name:    "identical history has zero variance",
			amount:  5000,
			history: historyOf(100, 100, 100),
			want:    0,
		},
		{
			name:   "amount at the mean",
			amount: 200,
			// mean 200, the amount deviates by zero
			history: historyOf(100, 200, 300),
			want:    0,
		},
		{
			name:   "extreme outlier clamps to 1",
			amount: 1_000_000,
			history: historyOf(
				100, 110, 90, 105, 95, 102, 98,
			),
			want: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := outlierScore(tt.amount, tt.history)
			assert.InDelta(t, tt.want, got, 1e-12)
		})
	}
}

func TestOutlierScoreUsesRecentWindow(t *testing.T) {
	// 15 older entries at 100, then 10 recent at 5000. Only the last 10
	// are consulted, so 5000 sits exactly at the window mean.
	history := historyOf(
		100, 100, 100, 100, 100, 100, 100, 100, 100, 100, 100, 100, 100, 100, 100,
	)
	for i := 0; i < 10; i++ {
		history = append(history, historyOf(5000)...)
	}

	got := outlierScore(5000, history)
	assert.Equal(t, 0.0, got)
}

func TestExtractDeterministic(t *testing.T) {
	e := NewExtractor(weekdayMorning)
	tx := Transaction{SenderBalance: 42000, TransferAmount: 3100, MaxAmount: 9000}
	history := historyOf(900, 1100, 1000, 950)

	a, err := e.Extract(tx, history)
	require.NoError(t, err)
	b, err := e.Extract(tx, history)
	require.NoError(t, err)

	assert.Equal(t, a, b)
}
