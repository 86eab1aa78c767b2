package embedding

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"math"
	"testing"

	"inu/internal/domain"
)

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func solidImage(w, h int, c color.Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestPreprocess_Shape(t *testing.T) {
	sizes := []struct{ w, h int }{
		{224, 224}, {640, 480}, {100, 300}, {10, 10}, {1, 1000},
	}
	for _, s := range sizes {
		tensor, err := Preprocess(solidImage(s.w, s.h, color.RGBA{10, 20, 30, 255}))
		if err != nil {
			t.Fatalf("%dx%d: %v", s.w, s.h, err)
		}
		if len(tensor) != Channels*InputSize*InputSize {
			t.Errorf("%dx%d: tensor length = %d", s.w, s.h, len(tensor))
		}
	}
}

func TestPreprocess_Normalisation(t *testing.T) {
	tensor, err := Preprocess(solidImage(300, 300, color.RGBA{255, 0, 128, 255}))
	if err != nil {
		t.Fatal(err)
	}

	plane := InputSize * InputSize
	center := (InputSize/2)*InputSize + InputSize/2
	want := []float32{
		(1 - 0.485) / 0.229,
		(0 - 0.456) / 0.224,
		(128.0/255 - 0.406) / 0.225,
	}
	for c := 0; c < Channels; c++ {
		got := tensor[c*plane+center]
		if math.Abs(float64(got-want[c])) > 0.02 {
			t.Errorf("channel %d = %v, want %v", c, got, want[c])
		}
	}
}

func TestPreprocess_GrayscaleBecomesRGB(t *testing.T) {
	gray := image.NewGray(image.Rect(0, 0, 50, 50))
	for i := range gray.Pix {
		gray.Pix[i] = 200
	}
	tensor, err := Preprocess(gray)
	if err != nil {
		t.Fatal(err)
	}
	plane := InputSize * InputSize
	v := float32(200) / 255
	for c := 0; c < Channels; c++ {
		want := (v - imagenetMean[c]) / imagenetStd[c]
		if math.Abs(float64(tensor[c*plane]-want)) > 0.02 {
			t.Errorf("channel %d = %v, want %v", c, tensor[c*plane], want)
		}
	}
}

func TestPreprocess_CenterCrop(t *testing.T) {
	// left third red, middle green, right third blue; the crop keeps green
	img := image.NewRGBA(image.Rect(0, 0, 768, 256))
	for y := 0; y < 256; y++ {
		for x := 0; x < 768; x++ {
			switch {
			case x < 256:
				img.Set(x, y, color.RGBA{255, 0, 0, 255})
			case x < 512:
				img.Set(x, y, color.RGBA{0, 255, 0, 255})
			default:
				img.Set(x, y, color.RGBA{0, 0, 255, 255})
			}
		}
	}
	tensor, err := Preprocess(img)
	if err != nil {
		t.Fatal(err)
	}
	plane := InputSize * InputSize
	greenMax := (1 - imagenetMean[1]) / imagenetStd[1]
	for _, x := range []int{0, InputSize / 2, InputSize - 1} {
		if g := tensor[plane+x]; math.Abs(float64(g-greenMax)) > 0.05 {
			t.Errorf("column %d green = %v, want %v", x, g, greenMax)
		}
	}
}

func TestDecodeImage(t *testing.T) {
	data := encodePNG(t, solidImage(8, 8, color.White))
	img, err := DecodeImage(data)
	if err != nil {
		t.Fatal(err)
	}
	if img.Bounds().Dx() != 8 {
		t.Errorf("width = %d, want 8", img.Bounds().Dx())
	}

	if _, err := DecodeImage([]byte("garbage")); !errors.Is(err, domain.ErrInvalidImage) {
		t.Errorf("expected ErrInvalidImage, got %v", err)
	}
	if _, err := DecodeImage(nil); !errors.Is(err, domain.ErrEmptyInput) {
		t.Errorf("expected ErrEmptyInput, got %v", err)
	}
}

func TestL2Normalize(t *testing.T) {
	v := L2Normalize([]float32{3, 4})
	if math.Abs(float64(v[0])-0.6) > 1e-6 || math.Abs(float64(v[1])-0.8) > 1e-6 {
		t.Errorf("L2Normalize([3 4]) = %v", v)
	}

	zero := L2Normalize([]float32{0, 0, 0})
	for _, x := range zero {
		if x != 0 || math.IsNaN(float64(x)) {
			t.Errorf("zero vector normalised to %v", zero)
		}
	}
}
