// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package catalog

import (
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/leafscan/internal/inference"
	"github.com/pdiddy/leafscan/internal/labels"
	"github.com/pdiddy/leafscan/pkg/types"
)

// --- test helpers ---

func mapSource(files map[string]string) Source {
	fsys := fstest.MapFS{}
	for name, body := range files {
		fsys[name] = &fstest.MapFile{Data: []byte(body)}
	}
	return SourceFS(fsys)
}

func newTestResolver(t *testing.T, src Source, lang string) *Resolver {
	t.Helper()
	r, err := NewResolver(src, lang, nil)
	require.NoError(t, err)
	return r
}

const smallCatalog = `{
  "diseases": [
    {"id": "a1", "name": "Early blight", "crop": "Tomato"},
    {"id": "b2", "name": "Black rot", "crop": "Apple"},
    {"id": "Grape___Black_rot", "name": "Grape black rot", "crop": "Grape"},
    {"id": "Potato___Late_blight", "name": "Blight (late)", "crop": "Potato"}
  ]
}`

// --- tests ---

func TestResolve_Strategies(t *testing.T) {
	r := newTestResolver(t, mapSource(map[string]string{"en.json": smallCatalog}), "en")

	tests := []struct {
		name   string
		input  string
		wantID string
	}{
		{"exact id", "b2", "b2"},
		{"exact display name", "Early blight", "a1"},
		{"name ignores case and spacing", "  early   BLIGHT ", "a1"},
		{"name containment", "grape black", "Grape___Black_rot"},
		{"parenthesized crop and name", "Black rot (Apple)", "b2"},
		{"parenthesized other crop", "Black rot (Grape)", "Grape___Black_rot"},
		{"canonical crop and name", "Tomato___Early_blight", "a1"},
		{"crop and id", "Late blight (Potato)", "Potato___Late_blight"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := r.Resolve(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, g.ID)
		})
	}
}

func TestResolve_NotFound(t *testing.T) {
	r := newTestResolver(t, mapSource(map[string]string{"en.json": smallCatalog}), "en")

	for _, in := range []string{"Completely Unknown Xyz", "", "   ", "Black rot (Pear)", "Mildew (Apple)"} {
		_, err := r.Resolve(in)
		assert.ErrorIs(t, err, ErrNotFound, "input %q", in)
	}
}

func TestResolve_EmbeddedCatalog(t *testing.T) {
	r := newTestResolver(t, Embedded(), "en")

	tests := []struct {
		input    string
		wantID   string
		wantCrop string
	}{
		{"Tomato___Early_blight", "Tomato___Early_blight", "Tomato"},
		{"Early blight (Tomato)", "Tomato___Early_blight", "Tomato"},
		{"Early blight (Potato)", "Potato___Early_blight", "Potato"},
		{"Black rot (Apple)", "Apple___Black_rot", "Apple"},
		{"Black rot (Grape)", "Grape___Black_rot", "Grape"},
		{"Common rust (Corn (maize))", "Corn_maize___Common_rust", "Corn (maize)"},
		{"BrownSpot (Rice)", "Rice___BrownSpot", "Rice"},
		{"healthy (Tomato)", "Tomato___healthy", "Tomato"},
		{"Unknown Disease", "Unknown_Disease", ""},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			g, err := r.Resolve(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, g.ID)
			assert.Equal(t, tt.wantCrop, g.Crop)
		})
	}
}

func TestEmbeddedCatalog_CoversCanonicalIDs(t *testing.T) {
	guides, err := Embedded().Load("en")
	require.NoError(t, err)
	require.NotEmpty(t, guides)

	known := map[string]bool{}
	for _, l := range inference.DefaultLabels() {
		known[labels.Canonicalize(l)] = true
	}
	for _, g := range guides {
		if g.ID == "Unknown_Disease" {
			continue
		}
		assert.True(t, known[g.ID], "catalog id %q has no label", g.ID)
	}
}

func TestLoad_Defaults(t *testing.T) {
	src := mapSource(map[string]string{"en.json": `{
	  "version": 1,
	  "diseases": [
	    {"name": "  Leaf curl  "},
	    {"id": "only-id"},
	    {"crop": "Orphan"},
	    {"id": "x", "name": "Mixed", "type": "healthy",
	     "supplements": ["Neem oil", {"name": "Copper", "buyLink": "https://shop/cu"}, {"imageUrl": "https://img/p.png"}, ""]}
	  ]
	}`})

	guides, err := src.Load("en")
	require.NoError(t, err)
	require.Len(t, guides, 3)

	assert.Equal(t, "Leaf curl", guides[0].Name)
	assert.Equal(t, "Leaf curl", guides[0].ID)
	assert.Equal(t, types.GuideDisease, guides[0].Type)
	assert.NotNil(t, guides[0].Symptoms)
	assert.NotNil(t, guides[0].Supplements)
	assert.NotNil(t, guides[0].Aliases)

	assert.Equal(t, "Unknown", guides[1].Name)
	assert.Equal(t, "only-id", guides[1].ID)

	assert.Equal(t, types.GuideHealthy, guides[2].Type)
	assert.Equal(t, []types.Supplement{
		{Name: "Neem oil"},
		{Name: "Copper", BuyLink: "https://shop/cu"},
		{Name: "Product", ImageURL: "https://img/p.png"},
		{Name: "Product"},
	}, guides[2].Supplements)
}

func TestLoad_YAML(t *testing.T) {
	src := mapSource(map[string]string{"en.yaml": `
version: 2
diseases:
  - id: Tomato___Leaf_Mold
    name: Leaf Mold
    crop: Tomato
    immediateActions:
      - Ventilate
    supplements:
      - Chlorothalonil
      - name: Copper
        buyLink: https://shop/cu
`})
	guides, err := src.Load("en")
	require.NoError(t, err)
	require.Len(t, guides, 1)
	assert.Equal(t, []string{"Ventilate"}, guides[0].ImmediateActions)
	assert.Equal(t, []types.Supplement{{Name: "Chlorothalonil"}, {Name: "Copper", BuyLink: "https://shop/cu"}}, guides[0].Supplements)
}

func TestLoad_Errors(t *testing.T) {
	src := mapSource(map[string]string{"en.json": `{"diseases": [`})
	_, err := src.Load("en")
	assert.Error(t, err)

	_, err = src.Load("hi")
	assert.Error(t, err)
}

func TestNewSource_DirOverridesEmbedded(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "en.json"), []byte(smallCatalog), 0o644))

	r := newTestResolver(t, NewSource(dir), "en")
	g, err := r.Resolve("Early blight")
	require.NoError(t, err)
	assert.Equal(t, "a1", g.ID)

	// Languages absent from the directory come from the embedded catalogs.
	assert.Equal(t, "hi", r.SetLanguage("hi"))
}

func TestNewSource_BrokenOverrideFallsBackToEmbedded(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "en.json"), []byte("{not json"), 0o644))
	logger, hook := logtest.NewNullLogger()

	r, err := NewResolver(NewSource(dir), "en", logger)
	require.NoError(t, err)
	assert.Equal(t, "en", r.Language())

	g, err := r.Resolve("Tomato___Early_blight")
	require.NoError(t, err)
	assert.Equal(t, "Tomato___Early_blight", g.ID)
	assert.Equal(t, "Early blight", g.Name)

	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
	assert.Equal(t, "en", hook.LastEntry().Data["language"])
}

func TestLoad_BrokenLastLayerErrors(t *testing.T) {
	broken := fstest.MapFS{"en.json": &fstest.MapFile{Data: []byte("{not json")}}
	src := Source{layers: []fs.FS{fstest.MapFS{}, broken}}
	_, err := src.Load("en")
	require.Error(t, err)
	assert.NotErrorIs(t, err, fs.ErrNotExist)
}

func TestNewResolver_MissingDefault(t *testing.T) {
	_, err := NewResolver(mapSource(map[string]string{"hi.json": smallCatalog}), "hi", nil)
	assert.Error(t, err)
}

func TestNormalizeLanguage(t *testing.T) {
	tests := map[string]string{
		"en":    "en",
		"hi":    "hi",
		"HI-IN": "hi",
		"mr":    "mr",
		"ma":    "mr",
		"fr":    "en",
		"":      "en",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeLanguage(in), "input %q", in)
	}
}

func TestSetLanguage_Localized(t *testing.T) {
	r := newTestResolver(t, Embedded(), "hi")
	assert.Equal(t, "hi", r.Language())

	g, err := r.Resolve("Tomato___Early_blight")
	require.NoError(t, err)
	assert.Equal(t, "अगेती झुलसा", g.Name)
	assert.Equal(t, "टमाटर", g.Crop)

	// Devanagari names match through normalization.
	g, err = r.Resolve("अगेती  झुलसा")
	require.NoError(t, err)
	assert.Equal(t, "Tomato___Early_blight", g.ID)

	// Parenthesized English labels match the localized entry by id crop.
	g, err = r.Resolve("Early blight (Tomato)")
	require.NoError(t, err)
	assert.Equal(t, "अगेती झुलसा", g.Name)

	// Entries missing from the localized catalog come from English.
	g, err = r.Resolve("Potato___Late_blight")
	require.NoError(t, err)
	assert.Equal(t, "Late blight", g.Name)

	assert.Equal(t, "mr", r.SetLanguage("ma"))
	g, err = r.Resolve("Tomato___Early_blight")
	require.NoError(t, err)
	assert.Equal(t, "लवकर करपा", g.Name)
}

func TestSetLanguage_BrokenCatalogFallsBack(t *testing.T) {
	src := mapSource(map[string]string{
		"en.json": smallCatalog,
		"hi.json": `not json`,
	})
	r := newTestResolver(t, src, "hi")
	assert.Equal(t, "en", r.Language())

	g, err := r.Resolve("Early blight")
	require.NoError(t, err)
	assert.Equal(t, "a1", g.ID)

	assert.Equal(t, "en", r.SetLanguage("de"))
}

func TestSuggest(t *testing.T) {
	r := newTestResolver(t, Embedded(), "en")

	got := r.Suggest("tomblight", 3)
	require.NotEmpty(t, got)
	assert.LessOrEqual(t, len(got), 3)
	for _, g := range got {
		assert.Equal(t, "Tomato", g.Crop)
	}

	assert.Empty(t, r.Suggest("zzzzqqqq", 5))
}

func TestFallbackGuide(t *testing.T) {
	g := FallbackGuide("Healthy (Cauliflower)")
	assert.Equal(t, "Healthy", g.Name)
	assert.Equal(t, "Cauliflower", g.Crop)
	assert.Equal(t, "Cauliflower___Healthy", g.ID)
	assert.Equal(t, types.GuideOther, g.Type)
	assert.NotEmpty(t, g.ImmediateActions)
	assert.NotNil(t, g.Supplements)

	g = FallbackGuide("mystery")
	assert.Equal(t, "mystery", g.Name)
	assert.Empty(t, g.Crop)

	assert.Equal(t, "Unknown", FallbackGuide("").Name)
}
