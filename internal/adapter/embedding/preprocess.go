package embedding

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"math"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"inu/internal/domain"
)

const (
	InputSize  = 224
	ResizeSize = 256
	Channels   = 3
)

var (
	imagenetMean = [Channels]float32{0.485, 0.456, 0.406}
	imagenetStd  = [Channels]float32{0.229, 0.224, 0.225}
)

// DecodeImage decodes JPEG, PNG, GIF or WebP bytes.
func DecodeImage(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, domain.ErrEmptyInput
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidImage, err)
	}
	return img, nil
}

// Preprocess resizes img so its short edge is ResizeSize, center-crops an
// InputSize square, and packs it as a normalised planar RGB tensor of shape
// [Channels, InputSize, InputSize].
func Preprocess(img image.Image) ([]float32, error) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("%w: empty bounds %dx%d", domain.ErrInvalidImage, w, h)
	}

	scale := float64(ResizeSize) / float64(min(w, h))
	rw := max(InputSize, int(math.Round(float64(w)*scale)))
	rh := max(InputSize, int(math.Round(float64(h)*scale)))

	// Flattening onto opaque black drops any alpha channel.
	resized := image.NewRGBA(image.Rect(0, 0, rw, rh))
	draw.Draw(resized, resized.Bounds(), image.Black, image.Point{}, draw.Src)
	draw.BiLinear.Scale(resized, resized.Bounds(), img, b, draw.Over, nil)

	x0 := (rw - InputSize) / 2
	y0 := (rh - InputSize) / 2

	plane := InputSize * InputSize
	tensor := make([]float32, Channels*plane)
	for y := 0; y < InputSize; y++ {
		for x := 0; x < InputSize; x++ {
			off := resized.PixOffset(x0+x, y0+y)
			px := resized.Pix[off : off+Channels]
			for c := 0; c < Channels; c++ {
				v := float32(px[c]) / 255
				tensor[c*plane+y*InputSize+x] = (v - imagenetMean[c]) / imagenetStd[c]
			}
		}
	}
	return tensor, nil
}

// L2Normalize returns a unit-length copy of v. A zero vector is returned
// unchanged.
func L2Normalize(v []float32) domain.Vector {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := math.Sqrt(sum)
	if norm < 1e-12 {
		norm = 1
	}

	out := make(domain.Vector, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}
