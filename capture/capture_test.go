package capture

import (
	"context"
	"errors"
)

// fakeSurface is an in-memory render surface. Tile identity is derived
// from the current scroll offset; each tile is filled with a solid
// color byte so composites can be checked row by row.
type fakeSurface struct {
	width         int
	contentHeight int
	vpH           int

	measured any   // Evaluate result override; nil = contentHeight
	evalErr  error // Evaluate error override

	failLeft    map[int]int // tile index -> remaining injected failures
	wrongHeight map[int]int // tile index -> forced bogus height
	onCaptured  func(index int)

	scrollY     int
	navigations int
	scrolls     []int
	captures    map[int]int // tile index -> capture attempts
}

func newFakeSurface(width, contentHeight, vpH int) *fakeSurface {
	return &fakeSurface{
		width:         width,
		contentHeight: contentHeight,
		vpH:           vpH,
		failLeft:      map[int]int{},
		wrongHeight:   map[int]int{},
		captures:      map[int]int{},
	}
}

func (f *fakeSurface) Navigate(ctx context.Context, url string) error {
	f.navigations++
	return nil
}

func (f *fakeSurface) WaitLoad(ctx context.Context) error { return nil }

func (f *fakeSurface) SetViewport(ctx context.Context, w, h int) error {
	f.width = w
	f.vpH = h
	return nil
}

func (f *fakeSurface) ScrollTo(ctx context.Context, y int) error {
	f.scrollY = y
	f.scrolls = append(f.scrolls, y)
	return nil
}

func (f *fakeSurface) Evaluate(ctx context.Context, script string) (any, error) {
	if f.evalErr != nil {
		return nil, f.evalErr
	}
	if f.measured != nil {
		return f.measured, nil
	}
	return float64(f.contentHeight), nil
}

func (f *fakeSurface) CaptureTile(ctx context.Context) (*RawImage, error) {
	idx := f.scrollY / f.vpH
	f.captures[idx]++
	if n := f.failLeft[idx]; n > 0 {
		f.failLeft[idx] = n - 1
		return nil, errors.New("surface: transport timeout")
	}

	h := f.vpH
	if rest := f.contentHeight - f.scrollY; rest < h {
		h = rest
	}
	if wh, ok := f.wrongHeight[idx]; ok {
		h = wh
	}

	img := solidTile(f.width, h, byte(idx+1))
	if f.onCaptured != nil {
		f.onCaptured(idx)
	}
	return img, nil
}

func (f *fakeSurface) totalCaptures() int {
	n := 0
	for _, c := range f.captures {
		n += c
	}
	return n
}

// confirmingSurface adds ScrollPosition, exercising the confirm path
// instead of the settle delay.
type confirmingSurface struct {
	*fakeSurface
	confirms int
}

func (c *confirmingSurface) ScrollPosition(ctx context.Context) (int, error) {
	c.confirms++
	return c.scrollY, nil
}

func solidTile(width, height int, c byte) *RawImage {
	pix := make([]byte, width*height*4)
	for i := 0; i < len(pix); i += 4 {
		pix[i] = c
		pix[i+1] = c
		pix[i+2] = c
		pix[i+3] = 0xff
	}
	return &RawImage{Width: width, Height: height, Pix: pix}
}

func testSequencer() *Sequencer {
	return NewSequencer(SequencerConfig{
		Retry: RetryPolicy{
			Retries:   3,
			BaseDelay: 1, // nanoseconds; tests should not sleep
		},
		SettleDelay: 1,
	})
}
