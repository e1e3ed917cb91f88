// Package gate decides whether a screened transaction proceeds to proof
// generation. Rejected transactions never consume proof resources.
package gate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/zktransfer/risk-engine/internal/audit"
	"github.com/zktransfer/risk-engine/internal/features"
	"github.com/zktransfer/risk-engine/internal/ml"
	"github.com/zktransfer/risk-engine/internal/scoring"
	"github.com/zktransfer/risk-engine/pkg/events"
	"github.com/zktransfer/risk-engine/pkg/metrics"
)

// State of a transaction moving through the gate.
type State string

const (
	StateReceived State = "received"
	StateScreened State = "screened"
	StateAdmitted State = "admitted"
	StateRejected State = "rejected"
)

// Outcome labels for metrics and the audit log.
const (
	OutcomeAdmitted = "admitted"
	OutcomeFlagged  = "flagged"
	OutcomeRejected = "rejected"
)

// Scorer produces a risk assessment for a transaction.
type Scorer interface {
	Score(ctx context.Context, tx features.Transaction, history []features.HistoryEntry) (*scoring.Result, error)
}

// ProofPipeline is the external collaborator that builds the cryptographic
// proof for an admitted transfer. This engine never touches proof material;
// it only hands over the public transfer fields.
type ProofPipeline interface {
	GenerateProof(ctx context.Context, tx features.Transaction) error
}

// NopPipeline is a stand-in when no proof backend is wired.
type NopPipeline struct{}

func (NopPipeline) GenerateProof(context.Context, features.Transaction) error { return nil }

// Decision is the gate's verdict on one transaction.
type Decision struct {
	ID        uuid.UUID       `json:"id"`
	ContextID string          `json:"context_id"`
	State     State           `json:"state"`
	Proceed   bool            `json:"proceed"`
	Flagged   bool            `json:"flagged"`
	Result    *scoring.Result `json:"result"`
	DecidedAt time.Time       `json:"decided_at"`
}

// Gate wires the scorer to history, audit, events and the proof pipeline.
type Gate struct {
	scorer    Scorer
	history   features.HistoryStore
	proofs    ProofPipeline
	sink      audit.Sink
	publisher events.Publisher
	metrics   *metrics.Collector
	logger    *slog.Logger
}

// New creates a gate. sink, publisher and proofs may be the package Nop
// implementations when the corresponding backend is not configured.
func New(
	scorer Scorer,
	history features.HistoryStore,
	proofs ProofPipeline,
	sink audit.Sink,
	publisher events.Publisher,
	collector *metrics.Collector,
	logger *slog.Logger,
) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{
		scorer:    scorer,
		history:   history,
		proofs:    proofs,
		sink:      sink,
		publisher: publisher,
		metrics:   collector,
		logger:    logger,
	}
}

// Process moves a transaction through Received -> Screened ->
// Admitted|Rejected. Only HIGH_RISK rejects; MEDIUM_RISK is admitted but
// flagged for downstream review. Admission appends to the context's history
// and hands off to the proof pipeline; rejection is terminal.
func (g *Gate) Process(ctx context.Context, contextID string, tx features.Transaction) (*Decision, error) {
	start := time.Now()

	decision := &Decision{
		ID:        uuid.New(),
		ContextID: contextID,
		State:     StateReceived,
	}

	history, err := g.history.Recent(ctx, contextID, features.HistoryCapacity)
	if err != nil {
		// Score with an empty window rather than refusing the transaction.
		g.logger.Warn("history unavailable", "context_id", contextID, "error", err)
		history = nil
	}

	result, err := g.scorer.Score(ctx, tx, history)
	if err != nil {
		if g.metrics != nil {
			g.metrics.RecordError(errorKind(err))
		}
		return nil, err
	}
	decision.State = StateScreened
	decision.Result = result
	decision.DecidedAt = time.Now().UTC()

	if g.metrics != nil {
		g.metrics.RecordScore(time.Since(start), result.Score)
	}

	if result.Tier == scoring.HighRisk {
		decision.State = StateRejected
		g.record(ctx, decision, tx, OutcomeRejected)
		g.publish(ctx, events.EventTransferBlocked, decision)
		g.logger.Info("transaction rejected",
			"decision_id", decision.ID,
			"context_id", contextID,
			"score", result.Score,
		)
		return decision, nil
	}

	decision.State = StateAdmitted
	decision.Proceed = true
	outcome := OutcomeAdmitted
	eventType := events.EventTransferAdmitted
	if result.Tier == scoring.MediumRisk {
		decision.Flagged = true
		outcome = OutcomeFlagged
		eventType = events.EventTransferFlagged
	}

	if err := g.history.Append(ctx, contextID, tx); err != nil {
		g.logger.Error("failed to record history", "context_id", contextID, "error", err)
	}

	g.record(ctx, decision, tx, outcome)
	g.publish(ctx, eventType, decision)

	if err := g.proofs.GenerateProof(ctx, tx); err != nil {
		return decision, fmt.Errorf("proof handoff failed: %w", err)
	}

	g.logger.Info("transaction admitted",
		"decision_id", decision.ID,
		"context_id", contextID,
		"score", result.Score,
		"flagged", decision.Flagged,
	)
	return decision, nil
}

func (g *Gate) record(ctx context.Context, d *Decision, tx features.Transaction, outcome string) {
	if g.metrics != nil {
		g.metrics.RecordDecision(outcome)
	}
	if g.sink == nil {
		return
	}
	rec := audit.Record{
		DecisionID:     d.ID.String(),
		ContextID:      d.ContextID,
		AssetID:        tx.AssetID,
		TransferAmount: tx.TransferAmount,
		Score:          d.Result.Score,
		Tier:           string(d.Result.Tier),
		Outcome:        outcome,
		Recommendation: d.Result.Recommendation,
		ModelVersion:   d.Result.ModelVersion,
		DecidedAt:      d.DecidedAt,
	}
	if err := g.sink.Record(ctx, rec); err != nil {
		g.logger.Warn("decision audit failed", "decision_id", d.ID, "error", err)
	}
}

func (g *Gate) publish(ctx context.Context, eventType string, d *Decision) {
	if g.publisher == nil {
		return
	}
	event := events.NewDecisionEvent(
		eventType,
		d.ContextID,
		d.ID.String(),
		d.Result.Score,
		string(d.Result.Tier),
		d.Result.Recommendation,
	)
	if err := g.publisher.Publish(ctx, event); err != nil {
		g.logger.Warn("decision event publish failed", "decision_id", d.ID, "error", err)
	}
}

func errorKind(err error) string {
	var validationErr *scoring.ValidationError
	var degenerateErr *features.NumericDegeneracyError
	switch {
	case errors.Is(err, ml.ErrModelNotReady):
		return "model_not_ready"
	case errors.As(err, &validationErr):
		return "validation"
	case errors.As(err, &degenerateErr):
		return "degenerate_input"
	default:
		return "internal"
	}
}
