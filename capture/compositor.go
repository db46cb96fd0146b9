package capture

import "image"

// CompositeImage is the single buffer formed by vertically
// concatenating tiles in scroll order: tightly packed RGBA, Width
// columns by Height rows. Ownership transfers to the caller; the
// compositor keeps no reference after returning it.
type CompositeImage struct {
	Width  int
	Height int
	Pix    []byte
}

// RGBA wraps the composite in an image.RGBA without copying pixels.
func (c *CompositeImage) RGBA() *image.RGBA {
	return &image.RGBA{
		Pix:    c.Pix,
		Stride: c.Width * 4,
		Rect:   image.Rect(0, 0, c.Width, c.Height),
	}
}

// Compose copies each tile into its vertical slot of a single
// zero-initialized destination buffer of width x totalHeight.
//
// The destination row for a tile is the cumulative height of the tiles
// before it, not the planned scroll offset: under reflow or clamped
// scrolling the two can diverge, and only cumulative rows can never
// overlap a prior tile or leave a gap. Tiles whose shape cannot fit the
// remaining destination rows fail with GeometryError; a width mismatch
// fails with WidthError rather than rescaling.
func Compose(tiles []CapturedTile, width, totalHeight int) (*CompositeImage, error) {
	dst := &CompositeImage{
		Width:  width,
		Height: totalHeight,
		Pix:    make([]byte, width*totalHeight*4),
	}

	stride := width * 4
	row := 0
	for _, t := range tiles {
		if t.Image.Width != width {
			return nil, &WidthError{Index: t.Index, WantWidth: width, GotWidth: t.Image.Width}
		}
		if rest := totalHeight - row; t.Image.Height > rest {
			return nil, &GeometryError{Index: t.Index, WantHeight: rest, GotHeight: t.Image.Height}
		}
		// Tile and destination share the stride, so a tile's rows form
		// one contiguous span of the destination buffer.
		copy(dst.Pix[row*stride:], t.Image.Pix)
		row += t.Image.Height
	}

	return dst, nil
}
