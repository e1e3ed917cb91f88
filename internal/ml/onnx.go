package ml

import (
	"fmt"
	"log/slog"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// ONNXReconstructor serves an externally trained autoencoder exported to
// ONNX. The in-process network remains the default and the only backend
// that can be trained here; this backend exists for deployments that train
// offline and ship a model file.
type ONNXReconstructor struct {
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
	width   int
	logger  *slog.Logger

	// the session's bound tensors are shared across calls
	mu sync.Mutex
}

// ONNXConfig locates the exported model.
type ONNXConfig struct {
	ModelPath  string
	InputName  string
	OutputName string
	Width      int
}

// DefaultONNXConfig matches the export layout of the training pipeline.
func DefaultONNXConfig(modelPath string) ONNXConfig {
	return ONNXConfig{
		ModelPath:  modelPath,
		InputName:  "input",
		OutputName: "output",
		Width:      10,
	}
}

var ortInit sync.Once

// NewONNXReconstructor loads the model and binds reusable I/O tensors.
func NewONNXReconstructor(cfg ONNXConfig, logger *slog.Logger) (*ONNXReconstructor, error) {
	var initErr error
	ortInit.Do(func() {
		initErr = ort.InitializeEnvironment()
	})
	if initErr != nil {
		return nil, fmt.Errorf("failed to initialize ONNX runtime: %w", initErr)
	}

	shape := ort.NewShape(1, int64(cfg.Width))
	input, err := ort.NewEmptyTensor[float32](shape)
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	output, err := ort.NewEmptyTensor[float32](shape)
	if err != nil {
		input.Destroy()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(
		cfg.ModelPath,
		[]string{cfg.InputName},
		[]string{cfg.OutputName},
		[]ort.ArbitraryTensor{input},
		[]ort.ArbitraryTensor{output},
		nil,
	)
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	logger.Info("ONNX model loaded", "path", cfg.ModelPath)

	return &ONNXReconstructor{
		session: session,
		input:   input,
		output:  output,
		width:   cfg.Width,
		logger:  logger,
	}, nil
}

// Reconstruct runs one inference pass.
func (m *ONNXReconstructor) Reconstruct(in []float64) ([]float64, error) {
	if len(in) != m.width {
		return nil, fmt.Errorf("input width %d does not match model width %d", len(in), m.width)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	data := m.input.GetData()
	for i, v := range in {
		data[i] = float32(v)
	}

	if err := m.session.Run(); err != nil {
		return nil, fmt.Errorf("failed to run inference: %w", err)
	}

	raw := m.output.GetData()
	out := make([]float64, m.width)
	for i := range out {
		out[i] = float64(raw[i])
	}
	return out, nil
}

// Close releases session resources. The first destroy failure is
// returned; the remaining resources are still released.
func (m *ONNXReconstructor) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var firstErr error
	if m.session != nil {
		if err := m.session.Destroy(); err != nil {
			firstErr = fmt.Errorf("failed to destroy session: %w", err)
		}
		m.session = nil
	}
	if m.input != nil {
		if err := m.input.Destroy(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to destroy input tensor: %w", err)
		}
		m.input = nil
	}
	if m.output != nil {
		if err := m.output.Destroy(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to destroy output tensor: %w", err)
		}
		m.output = nil
	}
	return firstErr
}
