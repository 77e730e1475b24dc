// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package scan

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/leafscan/internal/catalog"
	"github.com/pdiddy/leafscan/internal/connectivity"
	"github.com/pdiddy/leafscan/internal/inference"
	"github.com/pdiddy/leafscan/internal/preprocess"
	"github.com/pdiddy/leafscan/internal/reconcile"
	"github.com/pdiddy/leafscan/internal/remote"
	"github.com/pdiddy/leafscan/internal/store"
	"github.com/pdiddy/leafscan/pkg/types"
)

// --- test helpers ---

var testLabels = []string{
	"Apple___Apple_scab",
	"Apple___Black_rot",
	"Apple___healthy",
	"Corn_(maize)___Common_rust_",
	"Grape___Black_rot",
	"Potato___Late_blight",
	"Tomato___healthy",
	"Early blight (Tomato)",
	"Dragonfruit___Stem_canker",
	"Unknown_Disease",
}

type fakeBackend struct {
	mu      sync.Mutex
	scores  []float32
	err     error
	lastLen int
}

func (f *fakeBackend) Run(input []float32) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastLen = len(input)
	if f.err != nil {
		return nil, f.err
	}
	return f.scores, nil
}

func (f *fakeBackend) OutputSize() int { return len(testLabels) }
func (f *fakeBackend) Close() error    { return nil }

func peak(idx int, score float32) []float32 {
	s := make([]float32, len(testLabels))
	rest := (1 - score) / float32(len(testLabels)-1)
	for i := range s {
		s[i] = rest
	}
	s[idx] = score
	return s
}

func newEngine(b *fakeBackend) *inference.Engine {
	return inference.NewEngine(func() (inference.Backend, error) { return b, nil }, testLabels)
}

func newResolver(t *testing.T) *catalog.Resolver {
	t.Helper()
	r, err := catalog.NewResolver(catalog.Embedded(), "en", nil)
	require.NoError(t, err)
	return r
}

func leafPNG(t *testing.T) string {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 320, 240))
	for y := 0; y < 240; y++ {
		for x := 0; x < 320; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x), G: 140, B: uint8(y), A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	path := filepath.Join(t.TempDir(), "leaf.png")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

var t0 = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return t0 }

type failingStore struct {
	store.Store
}

func (failingStore) InsertScan(context.Context, types.ScanRecord) error {
	return store.ErrPersistence
}

// --- tests ---

func TestScan_EndToEnd(t *testing.T) {
	ctx := context.Background()
	backend := &fakeBackend{scores: peak(7, 0.83)}

	db, err := store.OpenSQLite(ctx, filepath.Join(t.TempDir(), "leafscan.db"))
	require.NoError(t, err)
	defer db.Close()

	p := New(newEngine(backend), newResolver(t), db, WithClock(fixedClock))
	res, err := p.Scan(ctx, leafPNG(t))
	require.NoError(t, err)

	assert.Equal(t, 224*224*3, backend.lastLen)
	assert.Equal(t, 7, res.Classification.Index)
	assert.InDelta(t, 0.83, res.Classification.Confidence, 1e-6)
	assert.Equal(t, "Tomato___Early_blight", res.CanonicalLabel)
	assert.Equal(t, "Early blight", res.Guide.Name)
	assert.Equal(t, "Tomato", res.Guide.Crop)
	assert.False(t, res.Fallback)
	assert.True(t, res.Persisted)

	rec := res.Record
	assert.NotEmpty(t, rec.ID)
	assert.True(t, rec.Anonymous())
	assert.False(t, rec.Synced)
	assert.Equal(t, types.SeverityHigh, rec.Severity)
	assert.Equal(t, types.HealthDiseased, rec.Health)
	assert.True(t, strings.HasPrefix(rec.ImageURI, "file://"))
	assert.Equal(t, t0, rec.CreatedAt)

	stored, err := db.ListScans(ctx, 0)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, rec.ID, stored[0].ID)
	assert.False(t, stored[0].Synced)

	// Coming online with a signed-in user claims and pushes the scan.
	var pushed atomic.Value
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		pushed.Store(body)
		w.WriteHeader(http.StatusCreated)
	}))
	defer api.Close()

	client := remote.New(types.SyncConfig{BaseURL: api.URL}, remote.WithToken("tok"))
	ctrl := reconcile.New(db, client, "farmer-1", nil)
	report := ctrl.HandleConnectivity(ctx, connectivity.Online)
	require.NoError(t, report.Err)
	assert.Equal(t, int64(1), report.Claimed)
	assert.Equal(t, 1, report.Synced)

	body, ok := pushed.Load().(map[string]any)
	require.True(t, ok)
	assert.Equal(t, rec.ID, body["client_id"])
	assert.Equal(t, "farmer-1", body["user_id"])

	stored, err = db.ListScans(ctx, 0)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.True(t, stored[0].Synced)
	assert.Equal(t, "farmer-1", stored[0].UserID)
}

func TestScan_Grading(t *testing.T) {
	tests := []struct {
		name          string
		idx           int
		score         float32
		minConfidence float64
		wantSeverity  types.Severity
		wantHealth    types.Health
		wantFallback  bool
		wantName      string
	}{
		{"high confidence disease", 1, 0.9, 0, types.SeverityHigh, types.HealthDiseased, false, "Black rot"},
		{"moderate confidence disease", 1, 0.6, 0, types.SeverityMedium, types.HealthDiseased, false, "Black rot"},
		{"exactly at threshold", 1, 0.7, 0, types.SeverityMedium, types.HealthDiseased, false, "Black rot"},
		{"healthy", 6, 0.95, 0, types.SeverityNone, types.HealthHealthy, false, "Healthy"},
		{"no catalog entry", 8, 0.9, 0, types.SeverityMedium, types.HealthDiseased, true, "Stem canker"},
		{"other type entry", 9, 0.9, 0, types.SeverityMedium, types.HealthUncertain, false, "Unknown Disease"},
		{"below confidence floor", 1, 0.5, 0.6, types.SeverityMedium, types.HealthUncertain, false, "Black rot"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := &fakeBackend{scores: peak(tt.idx, tt.score)}
			p := New(newEngine(backend), newResolver(t), store.NewMemory(), WithMinConfidence(tt.minConfidence))

			res, err := p.Scan(context.Background(), leafPNG(t))
			require.NoError(t, err)
			assert.Equal(t, tt.wantSeverity, res.Record.Severity)
			assert.Equal(t, tt.wantHealth, res.Record.Health)
			assert.Equal(t, tt.wantFallback, res.Fallback)
			assert.Equal(t, tt.wantName, res.Guide.Name)
		})
	}
}

func TestScan_FallbackCrop(t *testing.T) {
	backend := &fakeBackend{scores: peak(8, 0.9)}
	p := New(newEngine(backend), newResolver(t), nil)

	res, err := p.Scan(context.Background(), leafPNG(t))
	require.NoError(t, err)
	assert.Equal(t, "Dragonfruit", res.Record.CropType)
	assert.Equal(t, types.GuideOther, res.Guide.Type)
	assert.False(t, res.Persisted)
}

func TestScan_WithoutResolverUsesFallbackGuide(t *testing.T) {
	backend := &fakeBackend{scores: peak(7, 0.83)}
	p := New(newEngine(backend), nil, nil)

	res, err := p.Scan(context.Background(), leafPNG(t))
	require.NoError(t, err)
	assert.True(t, res.Fallback)
	assert.Equal(t, res.CanonicalLabel, res.Guide.ID)
	assert.NotEmpty(t, res.Record.DiseaseName)
}

func TestScan_ErrorsBlockResult(t *testing.T) {
	ctx := context.Background()

	t.Run("decode", func(t *testing.T) {
		s := store.NewMemory()
		p := New(newEngine(&fakeBackend{scores: peak(1, 0.9)}), newResolver(t), s)
		_, err := p.ScanReader(ctx, strings.NewReader("not an image"), "upload://1")
		assert.ErrorIs(t, err, preprocess.ErrDecode)
		recs, _ := s.ListScans(ctx, 0)
		assert.Empty(t, recs)
	})

	t.Run("missing file", func(t *testing.T) {
		p := New(newEngine(&fakeBackend{scores: peak(1, 0.9)}), newResolver(t), nil)
		_, err := p.Scan(ctx, filepath.Join(t.TempDir(), "missing.jpg"))
		assert.ErrorIs(t, err, preprocess.ErrDecode)
	})

	t.Run("inference", func(t *testing.T) {
		s := store.NewMemory()
		backend := &fakeBackend{err: errors.New("delegate crashed")}
		p := New(newEngine(backend), newResolver(t), s)
		_, err := p.Scan(ctx, leafPNG(t))
		assert.ErrorIs(t, err, inference.ErrInference)
		recs, _ := s.ListScans(ctx, 0)
		assert.Empty(t, recs)
	})

	t.Run("model unavailable", func(t *testing.T) {
		engine := inference.NewEngine(func() (inference.Backend, error) {
			return nil, errors.New("libonnxruntime.so: cannot open shared object file")
		}, testLabels)
		p := New(engine, newResolver(t), nil)
		_, err := p.Scan(ctx, leafPNG(t))
		assert.ErrorIs(t, err, inference.ErrModelUnavailable)
	})
}

func TestScan_PersistenceFailureKeepsResult(t *testing.T) {
	p := New(newEngine(&fakeBackend{scores: peak(1, 0.9)}), newResolver(t), failingStore{store.NewMemory()})

	res, err := p.Scan(context.Background(), leafPNG(t))
	require.NoError(t, err)
	assert.False(t, res.Persisted)
	assert.Equal(t, "Black rot", res.Guide.Name)
}

func TestScan_CanceledBeforePredict(t *testing.T) {
	s := store.NewMemory()
	p := New(newEngine(&fakeBackend{scores: peak(1, 0.9)}), newResolver(t), s)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Scan(ctx, leafPNG(t))
	assert.ErrorIs(t, err, context.Canceled)

	recs, err := s.ListScans(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestSetUserID(t *testing.T) {
	s := store.NewMemory()
	p := New(newEngine(&fakeBackend{scores: peak(1, 0.9)}), newResolver(t), s, WithUserID("farmer-1"))

	res, err := p.Scan(context.Background(), leafPNG(t))
	require.NoError(t, err)
	assert.Equal(t, "farmer-1", res.Record.UserID)

	p.SetUserID("")
	res, err = p.Scan(context.Background(), leafPNG(t))
	require.NoError(t, err)
	assert.True(t, res.Record.Anonymous())
}
