// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package inference runs the disease classifier over preprocessed image
// tensors and maps the top score to its class label.
//
// The model is loaded at most once per Engine. Loading is lazy and
// memoized, so concurrent first predictions share one load. After the
// load, forward passes are serialized because the runtime does not
// document concurrent Run calls on one session as safe.
package inference

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/pdiddy/leafscan/pkg/types"
)

var (
	// ErrModelUnavailable reports that the model or the native inference
	// runtime cannot be loaded in this build.
	ErrModelUnavailable = errors.New("model unavailable")

	// ErrInference reports a failure during a forward pass.
	ErrInference = errors.New("inference failed")

	// ErrInvalidTensor reports a tensor whose length does not match the
	// model input shape.
	ErrInvalidTensor = errors.New("invalid input tensor")

	// ErrLabelMismatch reports a label table whose length differs from the
	// model output width. It is a configuration error detected at load time.
	ErrLabelMismatch = errors.New("label table does not match model output")
)

// Backend is a loaded classifier.
type Backend interface {
	// Run performs one forward pass and returns the dense score vector.
	Run(input []float32) ([]float32, error)

	// OutputSize returns the length of the score vector.
	OutputSize() int

	// Close releases native resources.
	Close() error
}

// Loader creates a Backend. It is called at most once per Engine.
type Loader func() (Backend, error)

// Engine owns the classifier and its label table.
type Engine struct {
	labels []string
	width  int
	height int
	log    logrus.FieldLogger

	load func() (Backend, error)

	// runMu serializes forward passes and guards loaded.
	runMu  sync.Mutex
	loaded Backend
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(e *Engine) { e.log = l }
}

// WithInputSize sets the expected tensor dimensions (default 224x224).
func WithInputSize(width, height int) Option {
	return func(e *Engine) {
		if width > 0 {
			e.width = width
		}
		if height > 0 {
			e.height = height
		}
	}
}

// NewEngine returns an Engine that loads its backend on first use.
func NewEngine(loader Loader, labels []string, opts ...Option) *Engine {
	e := &Engine{
		labels: labels,
		width:  DefaultInputSize,
		height: DefaultInputSize,
		log:    discardLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}

	e.load = sync.OnceValues(func() (Backend, error) {
		return e.loadBackend(loader)
	})
	return e
}

func (e *Engine) loadBackend(loader Loader) (Backend, error) {
	if loader == nil {
		return nil, fmt.Errorf("%w: no model loader configured", ErrModelUnavailable)
	}
	if len(e.labels) == 0 {
		return nil, fmt.Errorf("%w: empty label table", ErrLabelMismatch)
	}

	e.log.Info("loading classifier")
	b, err := loader()
	if err != nil {
		if errors.Is(err, ErrModelUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrModelUnavailable, err)
	}

	if n := b.OutputSize(); n != len(e.labels) {
		b.Close()
		return nil, fmt.Errorf("%w: model has %d outputs, label table has %d entries", ErrLabelMismatch, n, len(e.labels))
	}

	e.runMu.Lock()
	e.loaded = b
	e.runMu.Unlock()

	e.log.WithField("classes", len(e.labels)).Info("classifier loaded")
	return b, nil
}

// Load loads the model if it is not loaded yet. The outcome of the first
// load, success or failure, is returned to every caller.
func (e *Engine) Load() error {
	_, err := e.load()
	return err
}

// InputSize returns the tensor dimensions the engine expects.
func (e *Engine) InputSize() (width, height int) {
	return e.width, e.height
}

// Labels returns the ordered label table.
func (e *Engine) Labels() []string {
	return e.labels
}

// Predict runs one forward pass and returns the highest-scoring class.
// It does not interrupt a pass that has already started; ctx is checked
// before the model is touched.
func (e *Engine) Predict(ctx context.Context, tensor types.ImageTensor) (types.ClassificationResult, error) {
	if tensor.Width != e.width || tensor.Height != e.height {
		return types.ClassificationResult{}, fmt.Errorf("%w: got %dx%d, model expects %dx%d",
			ErrInvalidTensor, tensor.Width, tensor.Height, e.width, e.height)
	}
	if err := tensor.Validate(); err != nil {
		return types.ClassificationResult{}, fmt.Errorf("%w: %w", ErrInvalidTensor, err)
	}

	if _, err := e.load(); err != nil {
		return types.ClassificationResult{}, err
	}

	if err := ctx.Err(); err != nil {
		return types.ClassificationResult{}, err
	}

	e.runMu.Lock()
	if e.loaded == nil {
		e.runMu.Unlock()
		return types.ClassificationResult{}, fmt.Errorf("%w: engine closed", ErrModelUnavailable)
	}
	scores, err := e.loaded.Run(tensor.Data)
	e.runMu.Unlock()
	if err != nil {
		return types.ClassificationResult{}, fmt.Errorf("%w: %w", ErrInference, err)
	}
	if len(scores) != len(e.labels) {
		return types.ClassificationResult{}, fmt.Errorf("%w: got %d scores, want %d", ErrInference, len(scores), len(e.labels))
	}

	idx := Argmax(scores)
	result := types.ClassificationResult{
		Index:      idx,
		RawLabel:   e.labels[idx],
		Confidence: clampUnit(float64(scores[idx])),
	}
	e.log.WithFields(logrus.Fields{
		"label":      result.RawLabel,
		"confidence": result.Confidence,
	}).Debug("prediction")
	return result, nil
}

// Close releases the backend if it was loaded. It does not trigger a load.
func (e *Engine) Close() error {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	if e.loaded == nil {
		return nil
	}
	err := e.loaded.Close()
	e.loaded = nil
	return err
}

// Argmax returns the index of the largest score. Ties resolve to the
// lowest index; NaN scores never win.
func Argmax(scores []float32) int {
	best := -1
	for i, s := range scores {
		if math.IsNaN(float64(s)) {
			continue
		}
		if best < 0 || s > scores[best] {
			best = i
		}
	}
	if best < 0 {
		return 0
	}
	return best
}

func clampUnit(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

func discardLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
