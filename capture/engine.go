package capture

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"
)

// heightScript is the measurement expression evaluated on the surface.
const heightScript = "document.body.scrollHeight"

// State is the capture session lifecycle. A session moves strictly
// forward; Done and Failed are terminal, and a caller must start a new
// session (a new CaptureFullPage call) to capture again.
type State int

const (
	StateIdle State = iota
	StateNavigating
	StateMeasuring
	StateCapturing
	StateComposing
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateNavigating:
		return "navigating"
	case StateMeasuring:
		return "measuring"
	case StateCapturing:
		return "capturing"
	case StateComposing:
		return "composing"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Config configures the capture engine.
type Config struct {
	Retry       RetryPolicy
	SettleDelay time.Duration
	Logger      *slog.Logger
}

// Engine composes the tile planner, the capture sequencer and the
// compositor into the single entry point CaptureFullPage. An Engine is
// stateless across sessions and safe for concurrent use as long as each
// session gets its own surface.
type Engine struct {
	seq    *Sequencer
	logger *slog.Logger
}

// New creates an Engine, applying defaults to the config.
func New(cfg Config) *Engine {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Engine{
		seq: NewSequencer(SequencerConfig{
			Retry:       cfg.Retry,
			SettleDelay: cfg.SettleDelay,
			Logger:      cfg.Logger,
		}),
		logger: cfg.Logger,
	}
}

// CaptureFullPage drives one capture session end to end: navigate the
// surface to url, wait for load, set the viewport, measure the content
// height, plan the tiles, sequence the captures, compose. The returned
// composite is exclusively owned by the caller.
//
// The surface must not be shared with another in-flight session; the
// whole pipeline is strictly sequential against it. On any error the
// session is abandoned and partial buffers are discarded: resuming
// mid-plan risks capturing a page whose content shifted in between.
func (e *Engine) CaptureFullPage(ctx context.Context, surface RenderSurface, url string, vp Viewport) (*CompositeImage, error) {
	if !vp.valid() {
		return nil, fmt.Errorf("capture: invalid viewport %dx%d", vp.Width, vp.Height)
	}

	s := &session{url: url, logger: e.logger}

	img, err := s.run(ctx, e.seq, surface, vp)
	if err != nil {
		s.to(StateFailed)
		return nil, err
	}
	s.to(StateDone)
	return img, nil
}

// session tracks one CaptureFullPage call through the state machine. It
// exists only for the duration of the call; no tile or plan data
// outlives it.
type session struct {
	url    string
	state  State
	logger *slog.Logger
}

func (s *session) to(next State) {
	s.state = next
	s.logger.Debug("capture: state", "url", s.url, "state", next.String())
}

func (s *session) run(ctx context.Context, seq *Sequencer, surface RenderSurface, vp Viewport) (*CompositeImage, error) {
	s.to(StateNavigating)
	if err := surface.Navigate(ctx, s.url); err != nil {
		return nil, fmt.Errorf("capture: navigate %s: %w", s.url, err)
	}
	if err := surface.WaitLoad(ctx); err != nil {
		return nil, fmt.Errorf("capture: wait for load: %w", err)
	}
	if err := surface.SetViewport(ctx, vp.Width, vp.Height); err != nil {
		return nil, fmt.Errorf("capture: set viewport: %w", err)
	}

	s.to(StateMeasuring)
	raw, err := surface.Evaluate(ctx, heightScript)
	if err != nil {
		return nil, &MeasurementError{Cause: err}
	}
	contentHeight, ok := asNonNegativeInt(raw)
	if !ok {
		return nil, &MeasurementError{Raw: raw}
	}

	plan := Plan(contentHeight, vp)
	if len(plan) == 0 {
		// Zero content height: short-circuit to an empty composite.
		return &CompositeImage{Width: vp.Width, Height: 0, Pix: []byte{}}, nil
	}
	s.logger.Debug("capture: planned",
		"url", s.url, "content_height", contentHeight, "tiles", len(plan))

	s.to(StateCapturing)
	tiles, err := seq.Capture(ctx, surface, plan)
	if err != nil {
		return nil, err
	}

	s.to(StateComposing)
	return Compose(tiles, vp.Width, contentHeight)
}

// asNonNegativeInt accepts the numeric shapes a surface's evaluate may
// produce. Fractional, negative or non-numeric values are rejected.
func asNonNegativeInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, n >= 0
	case int64:
		return int(n), n >= 0
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) || n < 0 || n != math.Trunc(n) {
			return 0, false
		}
		return int(n), true
	}
	return 0, false
}
