// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package scan runs one photo through preprocessing, classification, label
// canonicalization and guide resolution, and records the outcome in the
// local history ledger.
//
// Preprocessing and inference errors stop the scan. A label with no
// catalog entry degrades to a generic guide. A failed history write is
// logged and the result is still returned.
package scan

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/pdiddy/leafscan/internal/catalog"
	"github.com/pdiddy/leafscan/internal/labels"
	"github.com/pdiddy/leafscan/internal/preprocess"
	"github.com/pdiddy/leafscan/internal/store"
	"github.com/pdiddy/leafscan/pkg/types"
)

// highSeverityConfidence is the confidence above which a disease is
// graded high severity.
const highSeverityConfidence = 0.7

// Classifier predicts the top class of a preprocessed image.
type Classifier interface {
	InputSize() (width, height int)
	Predict(ctx context.Context, tensor types.ImageTensor) (types.ClassificationResult, error)
}

// Resolver maps a label to its guide.
type Resolver interface {
	Resolve(label string) (types.DiseaseGuide, error)
}

// Result is a completed scan.
type Result struct {
	Classification types.ClassificationResult `json:"classification" yaml:"classification"`
	CanonicalLabel string                     `json:"canonical_label" yaml:"canonical_label"`
	DisplayLabel   string                     `json:"display_label" yaml:"display_label"`
	Guide          types.DiseaseGuide         `json:"guide" yaml:"guide"`

	// Fallback is true when no catalog entry matched and Guide is generic.
	Fallback bool `json:"fallback" yaml:"fallback"`

	Record types.ScanRecord `json:"record" yaml:"record"`

	// Persisted is false when the history write failed.
	Persisted bool `json:"persisted" yaml:"persisted"`
}

// Pipeline runs scans. It is safe for concurrent use when its Classifier
// is.
type Pipeline struct {
	classifier    Classifier
	resolver      Resolver
	store         store.Store
	log           logrus.FieldLogger
	minConfidence float64
	now           func() time.Time
	newID         func() string

	mu     sync.RWMutex
	userID string
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the pipeline logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(p *Pipeline) { p.log = l }
}

// WithMinConfidence marks results scoring below min as uncertain.
func WithMinConfidence(min float64) Option {
	return func(p *Pipeline) { p.minConfidence = min }
}

// WithUserID attributes new records to userID.
func WithUserID(userID string) Option {
	return func(p *Pipeline) { p.userID = userID }
}

// WithClock replaces the record timestamp source.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// New returns a Pipeline. A nil store disables history recording.
func New(c Classifier, r Resolver, s store.Store, opts ...Option) *Pipeline {
	p := &Pipeline{
		classifier: c,
		resolver:   r,
		store:      s,
		now:        time.Now,
		newID:      uuid.NewString,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		p.log = l
	}
	return p
}

// SetUserID changes the owner of subsequent records. Empty records
// anonymous scans.
func (p *Pipeline) SetUserID(userID string) {
	p.mu.Lock()
	p.userID = userID
	p.mu.Unlock()
}

// Scan classifies the photo at path.
func (p *Pipeline) Scan(ctx context.Context, path string) (Result, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	w, h := p.classifier.InputSize()
	tensor, err := preprocess.File(abs, w, h)
	if err != nil {
		return Result{}, err
	}
	return p.run(ctx, tensor, "file://"+filepath.ToSlash(abs))
}

// ScanReader classifies the photo read from r. uri is recorded as the
// image location.
func (p *Pipeline) ScanReader(ctx context.Context, r io.Reader, uri string) (Result, error) {
	w, h := p.classifier.InputSize()
	tensor, err := preprocess.Reader(r, w, h)
	if err != nil {
		return Result{}, err
	}
	return p.run(ctx, tensor, uri)
}

func (p *Pipeline) run(ctx context.Context, tensor types.ImageTensor, uri string) (Result, error) {
	cls, err := p.classifier.Predict(ctx, tensor)
	if err != nil {
		return Result{}, err
	}

	res := Result{
		Classification: cls,
		CanonicalLabel: labels.Canonicalize(cls.RawLabel),
		DisplayLabel:   labels.Display(cls.RawLabel),
	}
	log := p.log.WithFields(logrus.Fields{"label": res.CanonicalLabel, "confidence": cls.Confidence})

	res.Guide, res.Fallback = p.resolve(res.CanonicalLabel, cls.RawLabel)
	if res.Fallback {
		log.Debug("no catalog entry, using generic guide")
	}

	severity, health := p.grade(res)
	p.mu.RLock()
	userID := p.userID
	p.mu.RUnlock()

	crop := res.Guide.Crop
	if crop == "" {
		crop, _, _ = labels.Parts(res.CanonicalLabel)
	}
	res.Record = types.ScanRecord{
		ID:              p.newID(),
		UserID:          userID,
		CreatedAt:       p.now().UTC(),
		ImageURI:        uri,
		CropType:        crop,
		DiseaseName:     res.Guide.Name,
		ConfidenceScore: cls.Confidence,
		Severity:        severity,
		Health:          health,
	}

	res.Persisted = p.persist(ctx, res.Record)
	log.WithFields(logrus.Fields{"scan": res.Record.ID, "health": health}).Info("scan complete")
	return res, nil
}

func (p *Pipeline) resolve(canonical, raw string) (types.DiseaseGuide, bool) {
	if p.resolver != nil {
		g, err := p.resolver.Resolve(canonical)
		if err == nil {
			return g, false
		}
		if canonical != raw {
			if g, err2 := p.resolver.Resolve(raw); err2 == nil {
				return g, false
			}
		}
		if !errors.Is(err, catalog.ErrNotFound) {
			p.log.WithError(err).Warn("resolving guide failed")
		}
	}
	return catalog.FallbackGuide(canonical), true
}

// grade derives severity and health from the guide and confidence.
func (p *Pipeline) grade(res Result) (types.Severity, types.Health) {
	healthy := res.Guide.Type == types.GuideHealthy || labels.IsHealthy(res.CanonicalLabel)

	var severity types.Severity
	var health types.Health
	switch {
	case healthy:
		severity, health = types.SeverityNone, types.HealthHealthy
	case res.Fallback:
		severity, health = types.SeverityMedium, types.HealthDiseased
	case res.Guide.Type == types.GuideOther:
		severity, health = types.SeverityMedium, types.HealthUncertain
	case res.Classification.Confidence > highSeverityConfidence:
		severity, health = types.SeverityHigh, types.HealthDiseased
	default:
		severity, health = types.SeverityMedium, types.HealthDiseased
	}

	if p.minConfidence > 0 && res.Classification.Confidence < p.minConfidence {
		health = types.HealthUncertain
	}
	return severity, health
}

// persist writes rec and reports whether it landed. The write is not
// abandoned when ctx is canceled.
func (p *Pipeline) persist(ctx context.Context, rec types.ScanRecord) bool {
	if p.store == nil {
		return false
	}
	if err := p.store.InsertScan(context.WithoutCancel(ctx), rec); err != nil {
		p.log.WithError(fmt.Errorf("recording scan %s: %w", rec.ID, err)).Warn("scan not recorded")
		return false
	}
	return true
}
