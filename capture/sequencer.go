package capture

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"
)

// RetryPolicy bounds per-tile capture retries with exponential backoff.
// Only CaptureTile is retried: transport errors and timeouts there are
// usually transient, while navigation and measurement failures are not.
type RetryPolicy struct {
	Retries   int           // attempts after the first, default 3
	BaseDelay time.Duration // delay before the first retry, default 200ms
	Factor    float64       // backoff multiplier, default 2
	Jitter    float64       // random spread as a fraction of the delay, default 0.2
}

func (p *RetryPolicy) defaults() {
	if p.Retries <= 0 {
		p.Retries = 3
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = 200 * time.Millisecond
	}
	if p.Factor < 1 {
		p.Factor = 2
	}
	if p.Jitter <= 0 || p.Jitter >= 1 {
		p.Jitter = 0.2
	}
}

// SequencerConfig configures the capture sequencer.
type SequencerConfig struct {
	Retry RetryPolicy

	// SettleDelay is the post-scroll wait before capture when the
	// surface cannot confirm its scroll position, letting layout and
	// scroll-triggered lazy loading stabilise. Default: 50ms.
	SettleDelay time.Duration

	Logger *slog.Logger
}

func (c *SequencerConfig) defaults() {
	c.Retry.defaults()
	if c.SettleDelay <= 0 {
		c.SettleDelay = 50 * time.Millisecond
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// CapturedTile pairs a plan entry with its pixels. It is never mutated
// after capture and is handed to the compositor in index order.
type CapturedTile struct {
	Index int
	Spec  TileSpec
	Image *RawImage
}

// Sequencer drives a render surface through a tile plan, strictly in
// plan order. The surface is a single shared stateful resource, so
// tiles are never captured in parallel or reordered: correctness
// depends on the surface being at a known scroll position at the moment
// of each capture.
type Sequencer struct {
	cfg SequencerConfig

	// rnd feeds backoff jitter. Sessions on independent surfaces may
	// run Capture concurrently on one Sequencer, so access is locked.
	mu  sync.Mutex
	rnd *rand.Rand
}

// NewSequencer creates a Sequencer, applying defaults to the config.
func NewSequencer(cfg SequencerConfig) *Sequencer {
	cfg.defaults()
	return &Sequencer{
		cfg: cfg,
		rnd: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Capture executes the plan against an already-navigated surface and
// returns the tiles in plan order. Any failure discards partial
// progress and aborts the whole sequence.
//
// Cancellation is cooperative: the surface has no way to abort an
// in-flight call, so a cancelled context is honoured at tile
// boundaries and between retry attempts, after the current remote call
// resolves.
func (s *Sequencer) Capture(ctx context.Context, surface RenderSurface, plan []TileSpec) ([]CapturedTile, error) {
	if len(plan) == 0 {
		return nil, nil
	}

	confirmer, canConfirm := surface.(ScrollConfirmer)
	tiles := make([]CapturedTile, 0, len(plan))

	for i, spec := range plan {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w after tile %d of %d", ErrCancelled, i, len(plan))
		}

		if err := surface.ScrollTo(ctx, spec.ScrollOffset); err != nil {
			return nil, &TileError{Index: i, Cause: fmt.Errorf("scroll to %d: %w", spec.ScrollOffset, err)}
		}

		if canConfirm {
			if err := s.confirmScroll(ctx, confirmer, spec.ScrollOffset); err != nil {
				return nil, &TileError{Index: i, Cause: fmt.Errorf("confirm scroll: %w", err)}
			}
		} else if err := sleep(ctx, s.cfg.SettleDelay); err != nil {
			return nil, fmt.Errorf("%w after tile %d of %d", ErrCancelled, i, len(plan))
		}

		img, err := s.captureWithRetry(ctx, surface, i)
		if err != nil {
			return nil, err
		}

		if img.Height != spec.CaptureHeight {
			return nil, &GeometryError{Index: i, WantHeight: spec.CaptureHeight, GotHeight: img.Height}
		}

		s.cfg.Logger.Debug("capture: tile captured",
			"tile", i, "of", len(plan), "offset", spec.ScrollOffset, "height", img.Height)

		tiles = append(tiles, CapturedTile{Index: i, Spec: spec, Image: img})
	}

	return tiles, nil
}

// confirmScroll re-reads the scroll position until it is stable across
// two consecutive reads or matches the request. The browser clamps
// offsets near the document end, so equality with the request is not
// required; stability is.
func (s *Sequencer) confirmScroll(ctx context.Context, c ScrollConfirmer, want int) error {
	const polls = 5
	prev := -1
	for i := 0; i < polls; i++ {
		pos, err := c.ScrollPosition(ctx)
		if err != nil {
			return err
		}
		if pos == want || pos == prev {
			return nil
		}
		prev = pos
		if err := sleep(ctx, 10*time.Millisecond); err != nil {
			return err
		}
	}
	return nil
}

func (s *Sequencer) captureWithRetry(ctx context.Context, surface RenderSurface, index int) (*RawImage, error) {
	var lastErr error
	for attempt := 0; attempt <= s.cfg.Retry.Retries; attempt++ {
		if attempt > 0 {
			delay := s.backoff(attempt)
			s.cfg.Logger.Debug("capture: retrying tile",
				"tile", index, "attempt", attempt, "delay", delay, "error", lastErr)
			if err := sleep(ctx, delay); err != nil {
				return nil, fmt.Errorf("%w during tile %d retry", ErrCancelled, index)
			}
		}
		img, err := surface.CaptureTile(ctx)
		if err == nil {
			return img, nil
		}
		lastErr = err
	}
	return nil, &TileError{Index: index, Cause: lastErr}
}

// backoff computes the delay before the given retry attempt (1-based):
// BaseDelay * Factor^(attempt-1), jittered by ±Jitter.
func (s *Sequencer) backoff(attempt int) time.Duration {
	p := s.cfg.Retry
	d := float64(p.BaseDelay)
	for i := 1; i < attempt; i++ {
		d *= p.Factor
	}
	s.mu.Lock()
	f := s.rnd.Float64()
	s.mu.Unlock()
	d *= 1 - p.Jitter + 2*p.Jitter*f
	return time.Duration(d)
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
