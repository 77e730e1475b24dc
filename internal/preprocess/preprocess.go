// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package preprocess turns a photo into the tensor layout the disease
// classifier was trained on: a hard resize to the model input size, RGB
// channels interleaved row-major, and raw 0-255 values cast to float32.
//
// Values are NOT scaled to 0-1. The classifier was trained on unscaled
// pixels and dividing by 255 silently degrades every prediction.
//
// The resize ignores aspect ratio; callers capture square photos.
package preprocess

import (
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"

	"github.com/disintegration/imaging"

	"github.com/pdiddy/leafscan/pkg/types"
)

var (
	// ErrDecode reports a photo that cannot be read or decoded.
	ErrDecode = errors.New("decoding image")

	// ErrEncoding reports a resize that did not yield usable pixel data.
	ErrEncoding = errors.New("resizing image")
)

const channels = 3

// File decodes the image at path and converts it to a width x height tensor.
func File(path string, width, height int) (types.ImageTensor, error) {
	f, err := os.Open(path)
	if err != nil {
		return types.ImageTensor{}, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	defer f.Close()
	return Reader(f, width, height)
}

// Reader decodes a JPEG, PNG, or GIF stream and converts it to a tensor.
func Reader(r io.Reader, width, height int) (types.ImageTensor, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return types.ImageTensor{}, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	return Image(img, width, height)
}

// Image resizes img to exactly width x height and returns its RGB values
// as an interleaved float32 tensor. Alpha is dropped.
func Image(img image.Image, width, height int) (types.ImageTensor, error) {
	if width <= 0 || height <= 0 {
		return types.ImageTensor{}, fmt.Errorf("%w: target size %dx%d must be positive", ErrEncoding, width, height)
	}
	if img == nil || img.Bounds().Empty() {
		return types.ImageTensor{}, fmt.Errorf("%w: empty image", ErrDecode)
	}

	// imaging.Resize always returns non-premultiplied RGBA, so the colour
	// channels of translucent pixels are kept as stored.
	resized := imaging.Resize(img, width, height, imaging.Linear)

	return fromNRGBA(resized, width, height)
}

func fromNRGBA(img *image.NRGBA, width, height int) (types.ImageTensor, error) {
	if img == nil {
		return types.ImageTensor{}, fmt.Errorf("%w: no pixel data", ErrEncoding)
	}
	b := img.Bounds()
	if b.Dx() != width || b.Dy() != height {
		return types.ImageTensor{}, fmt.Errorf("%w: got %dx%d, want %dx%d", ErrEncoding, b.Dx(), b.Dy(), width, height)
	}
	if len(img.Pix) < (height-1)*img.Stride+width*4 {
		return types.ImageTensor{}, fmt.Errorf("%w: pixel buffer too short", ErrEncoding)
	}

	data := make([]float32, width*height*channels)
	j := 0
	for y := 0; y < height; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+width*4]
		for i := 0; i < len(row); i += 4 {
			data[j] = float32(row[i])
			data[j+1] = float32(row[i+1])
			data[j+2] = float32(row[i+2])
			j += channels
		}
	}

	return types.ImageTensor{Width: width, Height: height, Data: data}, nil
}
