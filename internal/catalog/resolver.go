// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package catalog resolves classifier labels and display names to
// localized disease guides.
package catalog

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/sahilm/fuzzy"
	"github.com/sirupsen/logrus"

	"github.com/pdiddy/leafscan/internal/labels"
	"github.com/pdiddy/leafscan/pkg/types"
)

// ErrNotFound is returned when no catalog entry matches a label.
var ErrNotFound = errors.New("no catalog entry matches")

// Resolver looks up disease guides in the catalog of the preferred
// language. Entries missing from a localized catalog are looked up in the
// default-language catalog.
type Resolver struct {
	src Source
	log logrus.FieldLogger

	mu       sync.RWMutex
	lang     string
	guides   []types.DiseaseGuide
	fallback []types.DiseaseGuide
}

// NewResolver loads the default-language catalog and then switches to
// lang. It fails only when the default catalog cannot be loaded.
func NewResolver(src Source, lang string, log logrus.FieldLogger) (*Resolver, error) {
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	if src.log == nil {
		src.log = log
	}
	base, err := src.Load(DefaultLanguage)
	if err != nil {
		return nil, fmt.Errorf("loading %s catalog: %w", DefaultLanguage, err)
	}
	r := &Resolver{
		src:      src,
		log:      log,
		lang:     DefaultLanguage,
		guides:   base,
		fallback: base,
	}
	r.SetLanguage(lang)
	return r, nil
}

// SetLanguage switches the active catalog and returns the language
// actually in use. A localized catalog that cannot be loaded leaves the
// default-language catalog active.
func (r *Resolver) SetLanguage(lang string) string {
	name := NormalizeLanguage(lang)
	guides := r.fallback
	if name != DefaultLanguage {
		loaded, err := r.src.Load(name)
		if err != nil {
			r.log.WithError(err).WithField("language", name).Debug("localized catalog unavailable, using default")
			name = DefaultLanguage
		} else {
			guides = loaded
		}
	}

	r.mu.Lock()
	r.lang = name
	r.guides = guides
	r.mu.Unlock()
	return name
}

// Language returns the active catalog language.
func (r *Resolver) Language() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lang
}

// Guides returns the entries of the active catalog.
func (r *Resolver) Guides() []types.DiseaseGuide {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]types.DiseaseGuide, len(r.guides))
	copy(out, r.guides)
	return out
}

// Resolve returns the guide for a label, id or display name. Strategies
// are tried in order and the first hit wins:
//
//  1. exact id
//  2. normalized display name (or alias) equality
//  3. normalized name containing the normalized input
//  4. crop and disease decomposition, matched against crop plus name,
//     then crop plus id
func (r *Resolver) Resolve(label string) (types.DiseaseGuide, error) {
	r.mu.RLock()
	guides, lang := r.guides, r.lang
	r.mu.RUnlock()

	if g, ok := match(guides, label); ok {
		return g, nil
	}
	if lang != DefaultLanguage {
		if g, ok := match(r.fallback, label); ok {
			r.log.WithFields(logrus.Fields{"label": label, "language": lang}).Debug("resolved from default catalog")
			return g, nil
		}
	}
	return types.DiseaseGuide{}, fmt.Errorf("%w: %q", ErrNotFound, label)
}

// Suggest returns up to n entries of the active catalog whose
// "Crop : Name" form fuzzy-matches query, best match first.
func (r *Resolver) Suggest(query string, n int) []types.DiseaseGuide {
	guides := r.Guides()
	names := make([]string, len(guides))
	for i, g := range guides {
		names[i] = displayName(g)
	}

	var out []types.DiseaseGuide
	for _, m := range fuzzy.Find(strings.TrimSpace(query), names) {
		if n > 0 && len(out) >= n {
			break
		}
		out = append(out, guides[m.Index])
	}
	return out
}

// FallbackGuide returns a generic guide for a label that matched nothing.
func FallbackGuide(label string) types.DiseaseGuide {
	crop, disease, ok := labels.Parts(label)
	name := disease
	if !ok {
		name = labels.Display(label)
	}
	if name == "" {
		name = "Unknown"
	}
	return types.DiseaseGuide{
		ID:           labels.Canonicalize(label),
		Name:         name,
		Crop:         crop,
		Type:         types.GuideOther,
		Introduction: "No guide is available for this result yet.",
		Symptoms:     []string{},
		ImmediateActions: []string{
			"Isolate affected plants where practical",
			"Retake the photo with a single leaf filling the frame",
			"Consult a local agricultural extension officer",
		},
		NaturalControl:  []string{},
		ChemicalControl: []string{},
		Prevention:      []string{"Keep a record of symptoms and recent weather"},
		Supplements:     []types.Supplement{},
		Aliases:         []string{},
	}
}

func displayName(g types.DiseaseGuide) string {
	if g.Crop == "" {
		return g.Name
	}
	return g.Crop + " : " + g.Name
}

func match(guides []types.DiseaseGuide, input string) (types.DiseaseGuide, bool) {
	q := strings.TrimSpace(input)
	if q == "" {
		return types.DiseaseGuide{}, false
	}

	for _, g := range guides {
		if g.ID == q {
			return g, true
		}
	}

	n := labels.Normalize(labels.Display(q))
	if n != "" {
		for _, g := range guides {
			if labels.Normalize(g.Name) == n {
				return g, true
			}
			for _, a := range g.Aliases {
				if labels.Normalize(a) == n {
					return g, true
				}
			}
		}
		for _, g := range guides {
			if strings.Contains(labels.Normalize(g.Name), n) {
				return g, true
			}
		}
	}

	crop, disease, ok := labels.Parts(q)
	if !ok {
		return types.DiseaseGuide{}, false
	}
	cn, dn := labels.Normalize(crop), labels.Normalize(disease)
	if cn == "" || dn == "" {
		return types.DiseaseGuide{}, false
	}
	for _, g := range guides {
		if !cropMatches(g, cn) {
			continue
		}
		if strings.Contains(labels.Normalize(g.Name), dn) {
			return g, true
		}
		for _, a := range g.Aliases {
			if strings.Contains(labels.Normalize(a), dn) {
				return g, true
			}
		}
	}
	for _, g := range guides {
		if cropMatches(g, cn) && strings.Contains(labels.Normalize(strings.ReplaceAll(g.ID, labels.Separator, " ")), dn) {
			return g, true
		}
	}
	return types.DiseaseGuide{}, false
}

// cropMatches compares against the crop field and, for localized entries
// whose crop is translated, the crop part of a canonical id.
func cropMatches(g types.DiseaseGuide, cropNorm string) bool {
	if labels.Normalize(g.Crop) == cropNorm {
		return true
	}
	if idCrop, _, ok := strings.Cut(g.ID, labels.Separator); ok {
		return labels.Normalize(idCrop) == cropNorm
	}
	return false
}
