package browser

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/pagecap/capture"
)

// Surface adapts one Rod page to capture.RenderSurface. It is stateful
// and non-reentrant: a mutex serializes every remote call, so at most
// one operation is in flight against the tab at any time.
type Surface struct {
	page       *rod.Page
	navTimeout time.Duration
	logger     *slog.Logger

	mu         sync.Mutex
	lastScroll int // last requested offset, for partial-tile cropping
}

// Navigate loads the URL in the tab.
func (s *Surface) Navigate(ctx context.Context, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	navCtx, cancel := context.WithTimeout(ctx, s.navTimeout)
	defer cancel()

	if err := s.page.Context(navCtx).Navigate(url); err != nil {
		return fmt.Errorf("browser: navigate %s: %w", url, err)
	}
	return nil
}

// WaitLoad blocks until the page's load event fires.
func (s *Surface) WaitLoad(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	waitCtx, cancel := context.WithTimeout(ctx, s.navTimeout)
	defer cancel()

	if err := s.page.Context(waitCtx).WaitLoad(); err != nil {
		return fmt.Errorf("browser: wait load: %w", err)
	}
	return nil
}

// SetViewport overrides the device metrics. Scale factor is pinned to 1
// so captured pixel dimensions equal CSS pixels.
func (s *Surface) SetViewport(ctx context.Context, width, height int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.page.Context(ctx).SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             width,
		Height:            height,
		DeviceScaleFactor: 1,
		Mobile:            false,
	})
	if err != nil {
		return fmt.Errorf("browser: set viewport %dx%d: %w", width, height, err)
	}
	return nil
}

// ScrollTo scrolls the window to vertical offset y. The browser may
// clamp the effective position near the document end; CaptureTile
// compensates.
func (s *Surface) ScrollTo(ctx context.Context, y int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.page.Context(ctx).Eval(`(y) => window.scrollTo(0, y)`, y); err != nil {
		return fmt.Errorf("browser: scroll to %d: %w", y, err)
	}
	s.lastScroll = y
	return nil
}

// ScrollPosition reports the current vertical scroll offset. It makes
// the surface a capture.ScrollConfirmer, so the sequencer re-reads the
// position instead of sleeping a settle delay.
func (s *Surface) ScrollPosition(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scrollPosition(ctx)
}

func (s *Surface) scrollPosition(ctx context.Context) (int, error) {
	res, err := s.page.Context(ctx).Eval(`() => Math.round(window.scrollY)`)
	if err != nil {
		return 0, fmt.Errorf("browser: read scroll position: %w", err)
	}
	return res.Value.Int(), nil
}

// Evaluate runs an expression on the page and returns its value.
func (s *Surface) Evaluate(ctx context.Context, script string) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.page.Context(ctx).Eval("() => " + script)
	if err != nil {
		return nil, fmt.Errorf("browser: evaluate: %w", err)
	}
	return res.Value.Val(), nil
}

// CaptureTile screenshots the current viewport and returns tightly
// packed RGBA pixels whose top row corresponds to the last requested
// scroll offset.
//
// Near the document end the browser clamps the scroll position, so the
// viewport top can sit above the requested offset. The rows above the
// requested offset were already captured by earlier tiles; they are
// dropped here, which leaves exactly the final partial tile. The
// sequencer still verifies the resulting height against the plan.
func (s *Surface) CaptureTile(ctx context.Context) (*capture.RawImage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	actual, err := s.scrollPosition(ctx)
	if err != nil {
		return nil, err
	}

	data, err := s.page.Context(ctx).Screenshot(false, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	if err != nil {
		return nil, fmt.Errorf("browser: capture: %w", err)
	}

	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("browser: decode capture: %w", err)
	}
	rgba := toRGBA(img)

	skip := s.lastScroll - actual
	if skip > 0 {
		s.logger.Debug("browser: clamped scroll, cropping tile",
			"requested", s.lastScroll, "actual", actual, "rows", skip)
	}
	return cropTop(rgba, skip)
}

// Close closes the tab.
func (s *Surface) Close() error {
	if s.page != nil {
		return s.page.Close()
	}
	return nil
}

// cropTop drops skip rows from the top of the tile. The dropped rows
// were already captured by earlier tiles when the browser clamped the
// scroll position near the document end.
func cropTop(rgba *image.RGBA, skip int) (*capture.RawImage, error) {
	w := rgba.Rect.Dx()
	h := rgba.Rect.Dy()
	pix := rgba.Pix
	if skip > 0 {
		if skip >= h {
			return nil, fmt.Errorf("browser: scroll drift %d exceeds tile height %d", skip, h)
		}
		pix = pix[skip*rgba.Stride:]
		h -= skip
	}
	return &capture.RawImage{Width: w, Height: h, Pix: pix}, nil
}

func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}
	dst := image.NewRGBA(image.Rect(0, 0, img.Bounds().Dx(), img.Bounds().Dy()))
	draw.Draw(dst, dst.Rect, img, img.Bounds().Min, draw.Src)
	return dst
}

var _ capture.RenderSurface = (*Surface)(nil)
var _ capture.ScrollConfirmer = (*Surface)(nil)
