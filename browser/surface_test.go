package browser

import (
	"image"
	"image/color"
	"testing"
)

func gradientRGBA(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{R: byte(y), A: 0xff})
		}
	}
	return img
}

func TestCropTop_NoClamp(t *testing.T) {
	raw, err := cropTop(gradientRGBA(4, 10), 0)
	if err != nil {
		t.Fatal(err)
	}
	if raw.Width != 4 || raw.Height != 10 {
		t.Fatalf("tile: %dx%d", raw.Width, raw.Height)
	}
	if raw.Pix[0] != 0 {
		t.Fatalf("first row: %d", raw.Pix[0])
	}
}

func TestCropTop_ClampedScroll(t *testing.T) {
	// Requested offset sat 3 rows below the clamped position: the top 3
	// viewport rows belong to the previous tile.
	raw, err := cropTop(gradientRGBA(4, 10), 3)
	if err != nil {
		t.Fatal(err)
	}
	if raw.Height != 7 {
		t.Fatalf("height: %d, want 7", raw.Height)
	}
	if raw.Pix[0] != 3 {
		t.Fatalf("first row after crop: %d, want 3", raw.Pix[0])
	}
}

func TestCropTop_DriftBeyondTile(t *testing.T) {
	if _, err := cropTop(gradientRGBA(4, 10), 10); err == nil {
		t.Fatal("expected error when drift swallows the whole tile")
	}
}

func TestToRGBA_PassThrough(t *testing.T) {
	src := gradientRGBA(4, 4)
	if got := toRGBA(src); got != src {
		t.Fatal("RGBA input should pass through without copying")
	}
}

func TestToRGBA_ConvertsNRGBA(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 3, 2))
	src.SetNRGBA(2, 1, color.NRGBA{R: 0x12, G: 0x34, B: 0x56, A: 0xff})

	got := toRGBA(src)
	if got.Rect.Dx() != 3 || got.Rect.Dy() != 2 {
		t.Fatalf("bounds: %v", got.Rect)
	}
	c := got.RGBAAt(2, 1)
	if c.R != 0x12 || c.G != 0x34 || c.B != 0x56 {
		t.Fatalf("pixel: %+v", c)
	}
}
