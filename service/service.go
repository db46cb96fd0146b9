// Package service composes the capture engine, the browser-backed
// render surfaces, the persistence sink and the history store behind
// one Capture operation, exposed over HTTP and MCP.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hazyhaar/pagecap/capture"
	"github.com/hazyhaar/pagecap/kit"
	"github.com/hazyhaar/pagecap/persist"
	"github.com/hazyhaar/pagecap/store"
)

// ErrDisabled is returned when capture is switched off in the
// configuration. The check happens once here, at session creation; no
// deeper layer re-checks an enabled flag.
var ErrDisabled = errors.New("service: capture is disabled")

// SurfaceOpener provides a fresh render surface per capture session.
// Sessions on independent surfaces may run fully in parallel; one
// surface never serves two sessions at once.
type SurfaceOpener interface {
	OpenSurface(ctx context.Context) (capture.RenderSurface, error)
}

// OpenerFunc adapts a function to SurfaceOpener.
type OpenerFunc func(ctx context.Context) (capture.RenderSurface, error)

func (f OpenerFunc) OpenSurface(ctx context.Context) (capture.RenderSurface, error) {
	return f(ctx)
}

// Config configures the service.
type Config struct {
	Disabled bool
	Viewport capture.Viewport // default viewport when a request omits one
	Format   persist.Format   // default output format
	AuthHash string           // bcrypt hash for HTTP Basic Auth, empty = open
}

// Service is the application-level capture service.
type Service struct {
	cfg    Config
	engine *capture.Engine
	opener SurfaceOpener
	sink   *persist.Sink
	hist   *store.Store
	logger *slog.Logger

	// Chained endpoints shared by the HTTP and MCP transports. Both
	// boundaries decode into the same request types and funnel here,
	// so cross-cutting middleware is applied exactly once.
	captureEP kit.Endpoint
	historyEP kit.Endpoint
}

// New assembles a Service. All collaborators are required except the
// logger.
func New(cfg Config, engine *capture.Engine, opener SurfaceOpener, sink *persist.Sink, hist *store.Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		cfg:    cfg,
		engine: engine,
		opener: opener,
		sink:   sink,
		hist:   hist,
		logger: logger,
	}

	s.captureEP = kit.Chain(kit.Logging("capture", logger))(func(ctx context.Context, req any) (any, error) {
		r := req.(*CaptureRequest)
		return s.Capture(ctx, *r)
	})
	s.historyEP = kit.Chain(kit.Logging("history", logger))(func(ctx context.Context, req any) (any, error) {
		r := req.(*HistoryRequest)
		return s.History(ctx, r.Limit)
	})
	return s
}

// newRequestID mints a correlation ID for one transport request.
func newRequestID() string {
	return "req_" + uuid.Must(uuid.NewV7()).String()
}

// CaptureRequest is one capture order. Width/Height/Format fall back to
// the configured defaults when zero-valued.
type CaptureRequest struct {
	URL    string `json:"url"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
	Format string `json:"format,omitempty"`
}

// HistoryRequest asks for recent capture records.
type HistoryRequest struct {
	Limit int `json:"limit"`
}

// CaptureResult describes a completed capture.
type CaptureResult struct {
	ID            int64  `json:"id"`
	URL           string `json:"url"`
	Width         int    `json:"width"`
	ContentHeight int    `json:"content_height"`
	TileCount     int    `json:"tile_count"`
	Format        string `json:"format"`
	Path          string `json:"path"`
	DurationMs    int64  `json:"duration_ms"`
}

// Capture runs one full-page capture session: open a fresh surface,
// drive the engine, persist the composite, record the outcome. The
// failed outcome is recorded too, then the capture error is returned
// unchanged so callers can match the engine's taxonomy.
func (s *Service) Capture(ctx context.Context, req CaptureRequest) (*CaptureResult, error) {
	if s.cfg.Disabled {
		return nil, ErrDisabled
	}
	if req.URL == "" {
		return nil, fmt.Errorf("service: url is required")
	}

	vp := s.cfg.Viewport
	if req.Width > 0 {
		vp.Width = req.Width
	}
	if req.Height > 0 {
		vp.Height = req.Height
	}

	format := s.cfg.Format
	if req.Format != "" {
		f, err := persist.ParseFormat(req.Format)
		if err != nil {
			return nil, err
		}
		format = f
	}

	surface, err := s.opener.OpenSurface(ctx)
	if err != nil {
		return nil, fmt.Errorf("service: open surface: %w", err)
	}
	if closer, ok := surface.(io.Closer); ok {
		defer closer.Close()
	}

	started := time.Now()
	rec := &store.Capture{
		URL:       req.URL,
		Width:     vp.Width,
		Height:    vp.Height,
		Format:    string(format),
		StartedAt: started.Unix(),
	}

	img, err := s.engine.CaptureFullPage(ctx, surface, req.URL, vp)
	if err != nil {
		rec.Status = "failed"
		rec.Error = err.Error()
		rec.DurationMs = time.Since(started).Milliseconds()
		if _, recErr := s.hist.Record(ctx, rec); recErr != nil {
			s.logger.Warn("service: record failed capture", "error", recErr)
		}
		return nil, err
	}

	path, err := s.sink.Write(img, req.URL, format, vp.Height)
	if err != nil {
		rec.Status = "failed"
		rec.Error = err.Error()
		rec.DurationMs = time.Since(started).Milliseconds()
		if _, recErr := s.hist.Record(ctx, rec); recErr != nil {
			s.logger.Warn("service: record failed capture", "error", recErr)
		}
		return nil, err
	}

	rec.Status = "ok"
	rec.ContentHeight = img.Height
	rec.TileCount = tileCount(img.Height, vp.Height)
	rec.OutputPath = path
	rec.DurationMs = time.Since(started).Milliseconds()
	if _, err := s.hist.Record(ctx, rec); err != nil {
		s.logger.Warn("service: record capture", "error", err)
	}

	s.logger.Info("service: captured",
		"url", req.URL, "content_height", img.Height,
		"tiles", rec.TileCount, "path", path, "duration_ms", rec.DurationMs)

	return &CaptureResult{
		ID:            rec.ID,
		URL:           req.URL,
		Width:         img.Width,
		ContentHeight: img.Height,
		TileCount:     rec.TileCount,
		Format:        string(format),
		Path:          path,
		DurationMs:    rec.DurationMs,
	}, nil
}

// History returns the most recent capture records, newest first.
func (s *Service) History(ctx context.Context, limit int) ([]store.Capture, error) {
	return s.hist.List(ctx, limit)
}

// Get returns one capture record by ID.
func (s *Service) Get(ctx context.Context, id int64) (*store.Capture, error) {
	return s.hist.Get(ctx, id)
}

func tileCount(contentHeight, viewportHeight int) int {
	if contentHeight <= 0 || viewportHeight <= 0 {
		return 0
	}
	return (contentHeight + viewportHeight - 1) / viewportHeight
}
