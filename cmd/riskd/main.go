// Package main is the entry point for the transaction risk engine.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/zktransfer/risk-engine/internal/audit"
	"github.com/zktransfer/risk-engine/internal/config"
	"github.com/zktransfer/risk-engine/internal/features"
	"github.com/zktransfer/risk-engine/internal/gate"
	"github.com/zktransfer/risk-engine/internal/ml"
	"github.com/zktransfer/risk-engine/internal/scoring"
	"github.com/zktransfer/risk-engine/pkg/events"
	"github.com/zktransfer/risk-engine/pkg/metrics"
	"github.com/zktransfer/risk-engine/pkg/money"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "invalid configuration:", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg.LogLevel)
	logger.Info("starting risk engine",
		"grpc_port", cfg.GRPCPort,
		"http_port", cfg.HTTPPort,
		"history_backend", cfg.HistoryBackend,
	)

	collector := metrics.NewCollector()

	// History store
	var historyStore features.HistoryStore
	var redisClient *redis.Client
	if cfg.HistoryBackend == "redis" {
		redisOpts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Error("failed to parse Redis URL", "error", err)
			os.Exit(1)
		}
		redisClient = redis.NewClient(redisOpts)
		defer redisClient.Close()

		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			logger.Error("failed to connect to Redis", "error", err)
			os.Exit(1)
		}
		logger.Info("connected to Redis")
		historyStore = features.NewRedisHistoryStore(redisClient, features.SystemClock)
	} else {
		historyStore = features.NewMemoryHistoryStore(features.SystemClock)
	}

	// Decision audit sink
	var sink audit.Sink = audit.NopSink{}
	if cfg.ClickHouseAddr != "" {
		chSink, err := audit.NewClickHouseSink(context.Background(), audit.Config{
			Addr:     cfg.ClickHouseAddr,
			Database: cfg.ClickHouseDatabase,
			Username: cfg.ClickHouseUser,
			Password: cfg.ClickHousePassword,
		}, logger)
		if err != nil {
			logger.Error("failed to connect to ClickHouse", "error", err)
			os.Exit(1)
		}
		defer chSink.Close()
		sink = chSink
	}

	// Decision events
	var publisher events.Publisher = events.NopPublisher{}
	if cfg.RabbitMQURL != "" {
		rmq, err := events.NewRabbitMQPublisher(events.DefaultPublisherConfig(cfg.RabbitMQURL), logger)
		if err != nil {
			logger.Error("failed to connect to RabbitMQ", "error", err)
			os.Exit(1)
		}
		defer rmq.Close()
		publisher = rmq
	}

	// Model registry (optional)
	var registry *ml.PostgresStore
	if cfg.DatabaseURL != "" {
		db, err := sqlx.Connect("postgres", cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to connect to Postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		registry = ml.NewPostgresStore(db)
		if err := registry.EnsureSchema(context.Background()); err != nil {
			logger.Error("failed to prepare model registry", "error", err)
			os.Exit(1)
		}
	}

	// The model must be published before any scoring request is served.
	extractor := features.NewExtractor(features.SystemClock)
	published := &ml.Published{}
	artifact, err := prepareModel(cfg, extractor, registry, collector, logger)
	if err != nil {
		logger.Error("failed to prepare model", "error", err)
		os.Exit(1)
	}
	if cfg.ONNXModelPath != "" {
		onnx, err := ml.NewONNXReconstructor(ml.DefaultONNXConfig(cfg.ONNXModelPath), logger)
		if err != nil {
			logger.Error("failed to load ONNX model", "error", err)
			os.Exit(1)
		}
		defer onnx.Close()
		artifact.UseBackend(onnx)
	}
	published.Publish(artifact)
	collector.SetModelReady(true)
	logger.Info("model published",
		"version", artifact.Version,
		"threshold", artifact.Threshold,
		"trained_at", artifact.TrainedAt,
	)

	engine := scoring.NewEngine(extractor, published)
	decisionGate := gate.New(engine, historyStore, gate.NopPipeline{}, sink, publisher, collector, logger)

	// gRPC server with health and reflection
	grpcServer := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			loggingInterceptor(logger),
			recoveryInterceptor(logger),
		),
	)
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("risk.v1.RiskEngine", healthpb.HealthCheckResponse_SERVING)
	reflection.Register(grpcServer)

	grpcListener, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		logger.Error("failed to listen", "error", err)
		os.Exit(1)
	}
	go func() {
		logger.Info("gRPC server listening", "port", cfg.GRPCPort)
		if err := grpcServer.Serve(grpcListener); err != nil {
			logger.Error("gRPC server error", "error", err)
		}
	}()

	// HTTP server
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy","service":"risk-engine"}`))
	})

	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if !published.Ready() {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"not ready","error":"model"}`))
			return
		}
		if redisClient != nil {
			if err := redisClient.Ping(r.Context()).Err(); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				w.Write([]byte(`{"status":"not ready","error":"redis"}`))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ready"}`))
	})

	mux.HandleFunc("/v1/decisions", decisionHandler(decisionGate, logger))

	mux.HandleFunc("/debug/model", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"version":%q,"threshold":%g,"trained_at":%q}`,
			artifact.Version, artifact.Threshold, artifact.TrainedAt.Format(time.RFC3339))
	})

	httpServer := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("HTTP server listening", "port", cfg.HTTPPort)
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("HTTP server error", "error", err)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	healthServer.SetServingStatus("risk.v1.RiskEngine", healthpb.HealthCheckResponse_NOT_SERVING)

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP shutdown error", "error", err)
	}
	grpcServer.GracefulStop()

	logger.Info("risk engine stopped")
}

// prepareModel loads a persisted artifact or trains a fresh one. Training
// completes before the process serves any scoring request.
func prepareModel(
	cfg config.Config,
	extractor *features.Extractor,
	registry *ml.PostgresStore,
	collector *metrics.Collector,
	logger *slog.Logger,
) (*ml.Artifact, error) {
	store := ml.NewFileStore(cfg.ModelPath)

	if !cfg.ForceRetrain {
		artifact, err := store.Load()
		if err == nil {
			logger.Info("loaded persisted model", "path", cfg.ModelPath, "version", artifact.Version)
			return artifact, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			// A malformed persisted model is fatal at startup.
			return nil, err
		}
		logger.Info("no persisted model, training", "path", cfg.ModelPath)
	}

	start := time.Now()
	artifact, err := ml.TrainArtifact(extractor, cfg.Corpus, cfg.Train, cfg.Threshold, logger)
	if err != nil {
		return nil, err
	}
	collector.SetTrainingDuration(time.Since(start))

	if err := store.Save(artifact); err != nil {
		logger.Warn("failed to persist model", "error", err)
	}
	if registry != nil {
		if err := registry.Save(context.Background(), artifact); err != nil {
			logger.Warn("failed to register model", "error", err)
		}
	}
	return artifact, nil
}

// decisionRequest is the intake record for one proposed transfer.
// Amounts arrive as decimal strings and are validated before entering
// float feature space.
type decisionRequest struct {
	ContextID      string       `json:"context_id"`
	SenderBalance  money.Amount `json:"sender_balance"`
	TransferAmount money.Amount `json:"transfer_amount"`
	MaxAmount      money.Amount `json:"max_amount"`
	AssetID        uint64       `json:"asset_id"`
}

func decisionHandler(g *gate.Gate, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, `{"error":"method not allowed"}`, http.StatusMethodNotAllowed)
			return
		}

		var req decisionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if req.ContextID == "" {
			writeError(w, http.StatusBadRequest, fmt.Errorf("context_id is required"))
			return
		}
		if err := req.SenderBalance.RequirePositive(); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("sender_balance: %w", err))
			return
		}
		if err := req.MaxAmount.RequirePositive(); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("max_amount: %w", err))
			return
		}

		tx := features.Transaction{
			SenderBalance:  req.SenderBalance.Float64(),
			TransferAmount: req.TransferAmount.Float64(),
			MaxAmount:      req.MaxAmount.Float64(),
			AssetID:        req.AssetID,
		}

		decision, err := g.Process(r.Context(), req.ContextID, tx)
		if err != nil {
			status := http.StatusInternalServerError
			var validationErr *scoring.ValidationError
			var degenerateErr *features.NumericDegeneracyError
			switch {
			case errors.As(err, &validationErr), errors.As(err, &degenerateErr):
				status = http.StatusBadRequest
			case errors.Is(err, ml.ErrModelNotReady):
				status = http.StatusServiceUnavailable
			}
			if decision == nil {
				writeError(w, status, err)
				return
			}
			// Proof handoff failed after admission; report both.
			logger.Error("decision completed with error", "decision_id", decision.ID, "error", err)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(decision)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     logLevel,
		AddSource: level == "debug",
	}
	handler := slog.NewJSONHandler(os.Stdout, opts)
	return slog.New(handler)
}

// gRPC Interceptors

func loggingInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()

		resp, err := handler(ctx, req)

		duration := time.Since(start)
		if err != nil {
			logger.Info("grpc request",
				"method", info.FullMethod,
				"duration_ms", duration.Milliseconds(),
				"error", err.Error(),
			)
		} else {
			logger.Debug("grpc request",
				"method", info.FullMethod,
				"duration_ms", duration.Milliseconds(),
			)
		}

		return resp, err
	}
}

func recoveryInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp interface{}, err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("panic recovered",
					"method", info.FullMethod,
					"panic", r,
				)
				err = fmt.Errorf("internal server error")
			}
		}()
		return handler(ctx, req)
	}
}
