// Package capture implements the full-page capture pipeline: it plans
// viewport-sized tiles over a page's content height, drives a render
// surface through the scroll-and-capture sequence, and composes the
// resulting tiles into one seamless image.
//
// The package owns no browser or file I/O. It consumes a RenderSurface
// (a remote, stateful rendering context such as a browser tab) and
// returns a CompositeImage; encoding and storage belong to the caller.
package capture

import "context"

// Viewport is the fixed capture window. Both dimensions must be
// positive. A viewport is immutable for the duration of one capture
// session; changing it requires starting a new session.
type Viewport struct {
	Width  int
	Height int
}

func (v Viewport) valid() bool { return v.Width > 0 && v.Height > 0 }

// RawImage is one captured tile's pixel data: tightly packed RGBA,
// len(Pix) == Width*Height*4.
type RawImage struct {
	Width  int
	Height int
	Pix    []byte
}

// RenderSurface is a remote, stateful rendering context controllable
// through navigate/scroll/evaluate/capture primitives.
//
// A surface is non-reentrant: at most one operation may be in flight.
// None of the calls can be aborted mid-flight; cancelling the context
// takes effect once the current call resolves.
type RenderSurface interface {
	Navigate(ctx context.Context, url string) error
	WaitLoad(ctx context.Context) error
	SetViewport(ctx context.Context, width, height int) error
	ScrollTo(ctx context.Context, y int) error

	// Evaluate runs a script on the surface and returns its value. The
	// engine uses it only for the content height measurement expression.
	Evaluate(ctx context.Context, script string) (any, error)

	CaptureTile(ctx context.Context) (*RawImage, error)
}

// ScrollConfirmer is an optional RenderSurface extension for surfaces
// that cannot guarantee synchronous scroll completion but can report
// their position. When implemented, the sequencer confirms the scroll
// landed by re-reading the position instead of sleeping a fixed settle
// delay before each capture.
type ScrollConfirmer interface {
	ScrollPosition(ctx context.Context) (int, error)
}
