package capture

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func testEngine() *Engine {
	return New(Config{
		Retry:       RetryPolicy{Retries: 3, BaseDelay: time.Nanosecond},
		SettleDelay: time.Nanosecond,
	})
}

func TestEngine_FullPage(t *testing.T) {
	f := newFakeSurface(0, 2500, 0)
	vp := Viewport{Width: 8, Height: 1000}

	img, err := testEngine().CaptureFullPage(context.Background(), f, "https://example.com", vp)
	if err != nil {
		t.Fatal(err)
	}
	if f.navigations != 1 {
		t.Fatalf("navigations: got %d, want 1", f.navigations)
	}
	if img.Width != 8 || img.Height != 2500 {
		t.Fatalf("composite: %dx%d", img.Width, img.Height)
	}

	stride := img.Width * 4
	for row := 0; row < img.Height; row++ {
		want := byte(row/1000 + 1)
		if got := img.Pix[row*stride]; got != want {
			t.Fatalf("row %d: color %d, want %d", row, got, want)
		}
	}
}

func TestEngine_SingleTileWhenContentFits(t *testing.T) {
	f := newFakeSurface(0, 400, 0)
	vp := Viewport{Width: 8, Height: 1080}

	img, err := testEngine().CaptureFullPage(context.Background(), f, "https://example.com", vp)
	if err != nil {
		t.Fatal(err)
	}
	if img.Height != 400 {
		t.Fatalf("composite height: got %d, want 400", img.Height)
	}
	if f.totalCaptures() != 1 {
		t.Fatalf("captures: got %d, want 1", f.totalCaptures())
	}
}

func TestEngine_ZeroContentShortCircuits(t *testing.T) {
	f := newFakeSurface(0, 0, 0)
	vp := Viewport{Width: 8, Height: 1080}

	img, err := testEngine().CaptureFullPage(context.Background(), f, "https://example.com", vp)
	if err != nil {
		t.Fatal(err)
	}
	if img.Height != 0 || len(img.Pix) != 0 {
		t.Fatalf("composite: %dx%d", img.Width, img.Height)
	}
	if f.totalCaptures() != 0 || len(f.scrolls) != 0 {
		t.Fatal("remote capture calls for zero content")
	}
}

func TestEngine_MeasurementFailed_NonNumeric(t *testing.T) {
	f := newFakeSurface(0, 0, 0)
	f.measured = "tall"

	_, err := testEngine().CaptureFullPage(context.Background(), f, "https://example.com", Viewport{Width: 8, Height: 100})

	var mErr *MeasurementError
	if !errors.As(err, &mErr) {
		t.Fatalf("error: got %v, want MeasurementError", err)
	}
}

func TestEngine_MeasurementFailed_Fractional(t *testing.T) {
	f := newFakeSurface(0, 0, 0)
	f.measured = 123.5

	_, err := testEngine().CaptureFullPage(context.Background(), f, "https://example.com", Viewport{Width: 8, Height: 100})

	var mErr *MeasurementError
	if !errors.As(err, &mErr) {
		t.Fatalf("error: got %v, want MeasurementError", err)
	}
}

func TestEngine_MeasurementFailed_SurfaceError(t *testing.T) {
	f := newFakeSurface(0, 0, 0)
	f.evalErr = errors.New("execution context destroyed")

	_, err := testEngine().CaptureFullPage(context.Background(), f, "https://example.com", Viewport{Width: 8, Height: 100})

	var mErr *MeasurementError
	if !errors.As(err, &mErr) {
		t.Fatalf("error: got %v, want MeasurementError", err)
	}
	if !errors.Is(err, f.evalErr) {
		t.Fatalf("cause not wrapped: %v", err)
	}
}

func TestEngine_InvalidViewport(t *testing.T) {
	f := newFakeSurface(0, 100, 0)
	if _, err := testEngine().CaptureFullPage(context.Background(), f, "https://example.com", Viewport{}); err == nil {
		t.Fatal("expected error for zero viewport")
	}
}

// A run with two transient failures on one tile must produce a
// composite identical to a run with no failures at all.
func TestEngine_RetriedRunMatchesCleanRun(t *testing.T) {
	vp := Viewport{Width: 8, Height: 1000}

	clean := newFakeSurface(0, 5000, 0)
	want, err := testEngine().CaptureFullPage(context.Background(), clean, "https://example.com", vp)
	if err != nil {
		t.Fatal(err)
	}

	flaky := newFakeSurface(0, 5000, 0)
	flaky.failLeft[2] = 2
	got, err := testEngine().CaptureFullPage(context.Background(), flaky, "https://example.com", vp)
	if err != nil {
		t.Fatal(err)
	}

	if !bytes.Equal(want.Pix, got.Pix) {
		t.Fatal("retried composite differs from clean composite")
	}
}

// One Engine serving concurrent sessions, each on its own surface and
// each hitting the retry backoff. Run under the race detector this
// covers the shared jitter source.
func TestEngine_ConcurrentRetryingSessions(t *testing.T) {
	e := testEngine()
	vp := Viewport{Width: 8, Height: 1000}

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			f := newFakeSurface(0, 3000, 0)
			f.failLeft[0] = 2
			f.failLeft[2] = 2
			_, errs[i] = e.CaptureFullPage(context.Background(), f, "https://example.com", vp)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("session %d: %v", i, err)
		}
	}
}

func TestEngine_TileFailurePropagates(t *testing.T) {
	f := newFakeSurface(0, 5000, 0)
	f.failLeft[1] = 1 << 30

	img, err := testEngine().CaptureFullPage(context.Background(), f, "https://example.com", Viewport{Width: 8, Height: 1000})
	if img != nil {
		t.Fatal("composite returned after tile failure")
	}

	var tileErr *TileError
	if !errors.As(err, &tileErr) {
		t.Fatalf("error: got %v, want TileError", err)
	}
	if tileErr.Index != 1 {
		t.Fatalf("failing index: got %d, want 1", tileErr.Index)
	}
}

func TestState_String(t *testing.T) {
	states := map[State]string{
		StateIdle:       "idle",
		StateNavigating: "navigating",
		StateMeasuring:  "measuring",
		StateCapturing:  "capturing",
		StateComposing:  "composing",
		StateDone:       "done",
		StateFailed:     "failed",
	}
	for s, want := range states {
		if s.String() != want {
			t.Fatalf("state %d: got %q, want %q", s, s.String(), want)
		}
	}
}

func TestAsNonNegativeInt(t *testing.T) {
	cases := []struct {
		in   any
		want int
		ok   bool
	}{
		{float64(0), 0, true},
		{float64(2500), 2500, true},
		{int(17), 17, true},
		{int64(9), 9, true},
		{float64(-1), 0, false},
		{123.5, 0, false},
		{"2500", 0, false},
		{nil, 0, false},
	}
	for _, c := range cases {
		got, ok := asNonNegativeInt(c.in)
		if ok != c.ok || (ok && got != c.want) {
			t.Fatalf("asNonNegativeInt(%v): got %d,%v want %d,%v", c.in, got, ok, c.want, c.ok)
		}
	}
}
