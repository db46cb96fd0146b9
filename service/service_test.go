package service

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hazyhaar/pagecap/capture"
	"github.com/hazyhaar/pagecap/persist"
	"github.com/hazyhaar/pagecap/store"
)

// stubSurface renders a fixed-height page of solid gray tiles.
type stubSurface struct {
	contentHeight int
	width, vpH    int
	scrollY       int
	failCaptures  int // first N captures fail
	closed        bool
}

func (s *stubSurface) Navigate(ctx context.Context, url string) error { return nil }
func (s *stubSurface) WaitLoad(ctx context.Context) error             { return nil }

func (s *stubSurface) SetViewport(ctx context.Context, w, h int) error {
	s.width, s.vpH = w, h
	return nil
}

func (s *stubSurface) ScrollTo(ctx context.Context, y int) error {
	s.scrollY = y
	return nil
}

func (s *stubSurface) Evaluate(ctx context.Context, script string) (any, error) {
	return float64(s.contentHeight), nil
}

func (s *stubSurface) CaptureTile(ctx context.Context) (*capture.RawImage, error) {
	if s.failCaptures > 0 {
		s.failCaptures--
		return nil, errors.New("stub: capture failed")
	}
	h := s.vpH
	if rest := s.contentHeight - s.scrollY; rest < h {
		h = rest
	}
	pix := make([]byte, s.width*h*4)
	for i := range pix {
		pix[i] = 0x80
	}
	return &capture.RawImage{Width: s.width, Height: h, Pix: pix}, nil
}

func (s *stubSurface) Close() error {
	s.closed = true
	return nil
}

func testService(t *testing.T, cfg Config) (*Service, *stubSurface) {
	t.Helper()

	surface := &stubSurface{contentHeight: 2500}
	opener := OpenerFunc(func(ctx context.Context) (capture.RenderSurface, error) {
		return surface, nil
	})

	sink, err := persist.NewSink(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	hist, err := store.Open(filepath.Join(t.TempDir(), "captures.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { hist.Close() })

	engine := capture.New(capture.Config{
		Retry:       capture.RetryPolicy{Retries: 3, BaseDelay: time.Nanosecond},
		SettleDelay: time.Nanosecond,
		Logger:      slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError})),
	})

	if cfg.Viewport == (capture.Viewport{}) {
		cfg.Viewport = capture.Viewport{Width: 16, Height: 1000}
	}
	if cfg.Format == "" {
		cfg.Format = persist.FormatPNG
	}

	return New(cfg, engine, opener, sink, hist, nil), surface
}

func TestService_Capture(t *testing.T) {
	svc, surface := testService(t, Config{})

	result, err := svc.Capture(context.Background(), CaptureRequest{URL: "https://example.com"})
	if err != nil {
		t.Fatal(err)
	}
	if result.ContentHeight != 2500 {
		t.Fatalf("content height: %d", result.ContentHeight)
	}
	if result.TileCount != 3 {
		t.Fatalf("tile count: %d", result.TileCount)
	}
	if _, err := os.Stat(result.Path); err != nil {
		t.Fatalf("output file: %v", err)
	}
	if !surface.closed {
		t.Fatal("surface not closed after session")
	}

	// The session is recorded.
	rec, err := svc.Get(context.Background(), result.ID)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Status != "ok" || rec.OutputPath != result.Path {
		t.Fatalf("record: %+v", rec)
	}
}

func TestService_CaptureRetriesThenSucceeds(t *testing.T) {
	svc, surface := testService(t, Config{})
	surface.failCaptures = 2

	result, err := svc.Capture(context.Background(), CaptureRequest{URL: "https://example.com"})
	if err != nil {
		t.Fatal(err)
	}
	if result.ContentHeight != 2500 {
		t.Fatalf("content height: %d", result.ContentHeight)
	}
}

func TestService_CaptureFailureRecorded(t *testing.T) {
	svc, surface := testService(t, Config{})
	surface.failCaptures = 1 << 30

	_, err := svc.Capture(context.Background(), CaptureRequest{URL: "https://example.com"})
	var tileErr *capture.TileError
	if !errors.As(err, &tileErr) {
		t.Fatalf("error: got %v, want TileError", err)
	}

	records, err := svc.History(context.Background(), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 || records[0].Status != "failed" {
		t.Fatalf("records: %+v", records)
	}
}

func TestService_Disabled(t *testing.T) {
	svc, _ := testService(t, Config{Disabled: true})

	_, err := svc.Capture(context.Background(), CaptureRequest{URL: "https://example.com"})
	if !errors.Is(err, ErrDisabled) {
		t.Fatalf("error: got %v, want ErrDisabled", err)
	}
}

func TestService_RequiresURL(t *testing.T) {
	svc, _ := testService(t, Config{})
	if _, err := svc.Capture(context.Background(), CaptureRequest{}); err == nil {
		t.Fatal("expected error for empty url")
	}
}

func TestService_RejectsUnknownFormat(t *testing.T) {
	svc, _ := testService(t, Config{})
	_, err := svc.Capture(context.Background(), CaptureRequest{URL: "https://example.com", Format: "webp"})
	if err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestService_ViewportOverride(t *testing.T) {
	svc, surface := testService(t, Config{})

	_, err := svc.Capture(context.Background(), CaptureRequest{
		URL: "https://example.com", Width: 32, Height: 500,
	})
	if err != nil {
		t.Fatal(err)
	}
	if surface.width != 32 || surface.vpH != 500 {
		t.Fatalf("surface viewport: %dx%d", surface.width, surface.vpH)
	}
}
