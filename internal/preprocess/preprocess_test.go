// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package preprocess

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- test helpers ---

func solid(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

func writePNG(t *testing.T, img image.Image) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	path := filepath.Join(t.TempDir(), "leaf.png")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

// --- tests ---

func TestImage_TensorLength(t *testing.T) {
	tests := []struct {
		name          string
		srcW, srcH    int
		width, height int
	}{
		{"square downscale", 640, 640, 224, 224},
		{"landscape hard resize", 800, 300, 224, 224},
		{"upscale", 10, 10, 32, 32},
		{"non-square target", 100, 100, 64, 48},
		{"same size", 16, 16, 16, 16},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := solid(tt.srcW, tt.srcH, color.NRGBA{R: 40, G: 120, B: 60, A: 255})
			tensor, err := Image(src, tt.width, tt.height)
			require.NoError(t, err)
			assert.Len(t, tensor.Data, tt.width*tt.height*3)
			assert.Equal(t, tt.width, tensor.Width)
			assert.Equal(t, tt.height, tensor.Height)
			assert.NoError(t, tensor.Validate())
		})
	}
}

func TestImage_NoNormalization(t *testing.T) {
	white, err := Image(solid(300, 300, color.NRGBA{255, 255, 255, 255}), 224, 224)
	require.NoError(t, err)
	for i, v := range white.Data {
		if v != 255.0 {
			t.Fatalf("white tensor[%d] = %v, want 255", i, v)
		}
	}

	black, err := Image(solid(300, 300, color.NRGBA{0, 0, 0, 255}), 224, 224)
	require.NoError(t, err)
	for i, v := range black.Data {
		if v != 0.0 {
			t.Fatalf("black tensor[%d] = %v, want 0", i, v)
		}
	}
}

func TestImage_ValuesInByteRange(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 97, 61))
	for y := 0; y < 61; y++ {
		for x := 0; x < 97; x++ {
			src.SetNRGBA(x, y, color.NRGBA{uint8(x * 2), uint8(y * 4), uint8((x + y) % 256), 255})
		}
	}
	tensor, err := Image(src, 32, 32)
	require.NoError(t, err)
	for i, v := range tensor.Data {
		if v < 0 || v > 255 {
			t.Fatalf("tensor[%d] = %v out of [0, 255]", i, v)
		}
	}
}

func TestImage_InterleavedRowMajorLayout(t *testing.T) {
	// Same-size input skips resampling so every value is exact.
	src := image.NewNRGBA(image.Rect(0, 0, 3, 2))
	src.SetNRGBA(0, 0, color.NRGBA{1, 2, 3, 255})
	src.SetNRGBA(1, 0, color.NRGBA{4, 5, 6, 255})
	src.SetNRGBA(2, 0, color.NRGBA{7, 8, 9, 255})
	src.SetNRGBA(0, 1, color.NRGBA{10, 11, 12, 255})
	src.SetNRGBA(1, 1, color.NRGBA{13, 14, 15, 255})
	src.SetNRGBA(2, 1, color.NRGBA{16, 17, 18, 255})

	tensor, err := Image(src, 3, 2)
	require.NoError(t, err)

	want := make([]float32, 18)
	for i := range want {
		want[i] = float32(i + 1)
	}
	assert.Equal(t, want, tensor.Data)
}

func TestImage_DropsAlpha(t *testing.T) {
	src := solid(4, 4, color.NRGBA{R: 10, G: 20, B: 30, A: 128})
	tensor, err := Image(src, 4, 4)
	require.NoError(t, err)
	assert.Len(t, tensor.Data, 48)
	assert.Equal(t, []float32{10, 20, 30}, tensor.Data[:3])
}

func TestImage_InvalidTarget(t *testing.T) {
	_, err := Image(solid(4, 4, color.NRGBA{A: 255}), 0, 224)
	assert.ErrorIs(t, err, ErrEncoding)

	_, err = Image(solid(4, 4, color.NRGBA{A: 255}), 224, -1)
	assert.ErrorIs(t, err, ErrEncoding)
}

func TestImage_EmptySource(t *testing.T) {
	_, err := Image(image.NewNRGBA(image.Rect(0, 0, 0, 0)), 224, 224)
	assert.ErrorIs(t, err, ErrDecode)
}

func TestFile(t *testing.T) {
	path := writePNG(t, solid(50, 50, color.NRGBA{255, 255, 255, 255}))

	tensor, err := File(path, 224, 224)
	require.NoError(t, err)
	assert.Len(t, tensor.Data, 224*224*3)
	assert.Equal(t, float32(255), tensor.Data[0])
}

func TestFile_Missing(t *testing.T) {
	_, err := File(filepath.Join(t.TempDir(), "nope.jpg"), 224, 224)
	assert.ErrorIs(t, err, ErrDecode)
}

func TestReader_Garbage(t *testing.T) {
	_, err := Reader(strings.NewReader("definitely not an image"), 224, 224)
	assert.ErrorIs(t, err, ErrDecode)
}
