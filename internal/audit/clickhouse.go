// Package audit records every gate outcome for offline analysis. No
// transaction is silently dropped: admitted, flagged and rejected outcomes
// all land in the decision log.
package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

// Record is one gate outcome.
type Record struct {
	DecisionID     string
	ContextID      string
	AssetID        uint64
	TransferAmount float64
	Score          float64
	Tier           string
	Outcome        string
	Recommendation string
	ModelVersion   string
	DecidedAt      time.Time
}

// Sink receives decision records.
type Sink interface {
	Record(ctx context.Context, rec Record) error
	Close() error
}

// NopSink discards records; used when no ClickHouse is configured.
type NopSink struct{}

func (NopSink) Record(context.Context, Record) error { return nil }
func (NopSink) Close() error                         { return nil }

// ClickHouseSink writes decisions to ClickHouse using async inserts, so
// scoring latency never waits on the analytics store.
type ClickHouseSink struct {
	conn   driver.Conn
	logger *slog.Logger
}

// Config locates the ClickHouse cluster.
type Config struct {
	Addr     string
	Database string
	Username string
	Password string
}

// NewClickHouseSink connects and ensures the decision table exists.
func NewClickHouseSink(ctx context.Context, cfg Config, logger *slog.Logger) (*ClickHouseSink, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open ClickHouse connection: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	ddl := `
		CREATE TABLE IF NOT EXISTS risk_decisions (
			decision_id     String,
			context_id      String,
			asset_id        UInt64,
			transfer_amount Float64,
			score           Float64,
			tier            LowCardinality(String),
			outcome         LowCardinality(String),
			recommendation  String,
			model_version   LowCardinality(String),
			decided_at      DateTime64(3)
		) ENGINE = MergeTree()
		ORDER BY (context_id, decided_at)
	`
	if err := conn.Exec(ctx, ddl); err != nil {
		return nil, fmt.Errorf("failed to create risk_decisions table: %w", err)
	}

	logger.Info("ClickHouse decision sink ready", "addr", cfg.Addr)

	return &ClickHouseSink{conn: conn, logger: logger}, nil
}

// Record inserts one decision asynchronously.
func (s *ClickHouseSink) Record(ctx context.Context, rec Record) error {
	query := `
		INSERT INTO risk_decisions (
			decision_id, context_id, asset_id, transfer_amount,
			score, tier, outcome, recommendation, model_version, decided_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	err := s.conn.AsyncInsert(ctx, query, false,
		rec.DecisionID,
		rec.ContextID,
		rec.AssetID,
		rec.TransferAmount,
		rec.Score,
		rec.Tier,
		rec.Outcome,
		rec.Recommendation,
		rec.ModelVersion,
		rec.DecidedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record decision: %w", err)
	}
	return nil
}

// Close releases the connection.
func (s *ClickHouseSink) Close() error {
	return s.conn.Close()
}
