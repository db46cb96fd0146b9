package capture

// TileSpec is one planned capture step: scroll to ScrollOffset, then
// capture CaptureHeight pixel rows.
type TileSpec struct {
	ScrollOffset  int
	CaptureHeight int
}

// Plan computes the ordered tile sequence covering contentHeight in
// viewport-sized steps. Offsets advance by exactly vp.Height; only the
// final tile may be shorter, never taller. The capture heights sum to
// contentHeight with no gap and no overlap.
//
// The general formula already covers the degenerate case of content
// shorter than the viewport (a single tile of the content's height),
// and a content height of 0 yields an empty plan.
func Plan(contentHeight int, vp Viewport) []TileSpec {
	if contentHeight <= 0 || !vp.valid() {
		return nil
	}
	count := (contentHeight + vp.Height - 1) / vp.Height
	tiles := make([]TileSpec, 0, count)
	for i := 0; i < count; i++ {
		offset := i * vp.Height
		h := vp.Height
		if rest := contentHeight - offset; rest < h {
			h = rest
		}
		tiles = append(tiles, TileSpec{ScrollOffset: offset, CaptureHeight: h})
	}
	return tiles
}
