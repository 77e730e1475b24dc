// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package inference

import (
	"fmt"
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// ONNXConfig locates the model and the onnxruntime shared library.
type ONNXConfig struct {
	ModelPath   string
	LibraryPath string
	Width       int
	Height      int
}

var (
	envOnce sync.Once
	envErr  error
)

// initEnvironment initializes the onnxruntime environment once per process.
func initEnvironment(libraryPath string) error {
	envOnce.Do(func() {
		if libraryPath != "" {
			ort.SetSharedLibraryPath(libraryPath)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			envErr = fmt.Errorf("%w: onnxruntime shared library could not be loaded (%v); "+
				"install onnxruntime or set model.library to its path, then rebuild with cgo enabled",
				ErrModelUnavailable, err)
		}
	})
	return envErr
}

// onnxBackend runs an NHWC float32 classifier through a session bound to
// preallocated input and output tensors.
type onnxBackend struct {
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
	classes int
}

// ONNXLoader returns a Loader for an ONNX classifier with input shape
// [1, H, W, 3] and output shape [1, classes].
func ONNXLoader(cfg ONNXConfig) Loader {
	return func() (Backend, error) {
		return newONNXBackend(cfg)
	}
}

func newONNXBackend(cfg ONNXConfig) (*onnxBackend, error) {
	if cfg.ModelPath == "" {
		return nil, fmt.Errorf("%w: no model path configured", ErrModelUnavailable)
	}
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrModelUnavailable, err)
	}
	width, height := cfg.Width, cfg.Height
	if width <= 0 {
		width = DefaultInputSize
	}
	if height <= 0 {
		height = DefaultInputSize
	}

	if err := initEnvironment(cfg.LibraryPath); err != nil {
		return nil, err
	}

	inputs, outputs, err := ort.GetInputOutputInfo(cfg.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("reading model io info: %w", err)
	}
	if len(inputs) != 1 || len(outputs) != 1 {
		return nil, fmt.Errorf("unexpected model io (in:%d out:%d)", len(inputs), len(outputs))
	}
	outDims := outputs[0].Dimensions
	if len(outDims) == 0 || outDims[len(outDims)-1] <= 0 {
		return nil, fmt.Errorf("unexpected output shape %v", outDims)
	}
	classes := int(outDims[len(outDims)-1])

	input, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(height), int64(width), 3))
	if err != nil {
		return nil, fmt.Errorf("creating input tensor: %w", err)
	}
	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(classes)))
	if err != nil {
		input.Destroy()
		return nil, fmt.Errorf("creating output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(cfg.ModelPath,
		[]string{inputs[0].Name}, []string{outputs[0].Name},
		[]ort.ArbitraryTensor{input}, []ort.ArbitraryTensor{output},
		nil)
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, fmt.Errorf("creating ONNX session: %w", err)
	}

	return &onnxBackend{
		session: session,
		input:   input,
		output:  output,
		classes: classes,
	}, nil
}

func (b *onnxBackend) OutputSize() int { return b.classes }

func (b *onnxBackend) Run(data []float32) ([]float32, error) {
	dst := b.input.GetData()
	if len(data) != len(dst) {
		return nil, fmt.Errorf("input has %d values, session expects %d", len(data), len(dst))
	}
	copy(dst, data)

	if err := b.session.Run(); err != nil {
		return nil, err
	}

	out := make([]float32, b.classes)
	copy(out, b.output.GetData())
	return out, nil
}

func (b *onnxBackend) Close() error {
	var firstErr error
	if b.session != nil {
		firstErr = b.session.Destroy()
		b.session = nil
	}
	if b.input != nil {
		if err := b.input.Destroy(); err != nil && firstErr == nil {
			firstErr = err
		}
		b.input = nil
	}
	if b.output != nil {
		if err := b.output.Destroy(); err != nil && firstErr == nil {
			firstErr = err
		}
		b.output = nil
	}
	return firstErr
}
