package capture

import (
	"errors"
	"fmt"
)

// ErrCancelled reports a cooperative abort: the caller's context was
// cancelled and the sequencer stopped issuing remote calls at the next
// tile boundary.
var ErrCancelled = errors.New("capture: cancelled")

// MeasurementError reports an unusable content height measurement.
// Fatal and never retried: the page itself is unusable.
type MeasurementError struct {
	Raw   any   // value the surface returned; nil when the call failed
	Cause error // underlying surface error; nil when the value was bad
}

func (e *MeasurementError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("capture: measure content height: %v", e.Cause)
	}
	return fmt.Sprintf("capture: content height is not a non-negative integer: %v", e.Raw)
}

func (e *MeasurementError) Unwrap() error { return e.Cause }

// TileError reports a tile whose scroll or capture failed, for captures
// after exhausting the retry budget. The whole session fails and any
// partial progress is discarded: a missing tile would corrupt the
// composite's geometry.
type TileError struct {
	Index int
	Cause error
}

func (e *TileError) Error() string {
	return fmt.Sprintf("capture: tile %d: %v", e.Index, e.Cause)
}

func (e *TileError) Unwrap() error { return e.Cause }

// GeometryError reports a tile whose returned shape disagrees with the
// plan. Fatal: it signals the surface drifted (content reflowed during
// capture) and is never papered over by padding or cropping.
type GeometryError struct {
	Index      int
	WantHeight int
	GotHeight  int
}

func (e *GeometryError) Error() string {
	return fmt.Sprintf("capture: tile %d: geometry mismatch: want height %d, got %d",
		e.Index, e.WantHeight, e.GotHeight)
}

// WidthError reports a tile whose width disagrees with the composite
// destination. Fatal: rescaling would introduce different artifacts per
// row.
type WidthError struct {
	Index     int
	WantWidth int
	GotWidth  int
}

func (e *WidthError) Error() string {
	return fmt.Sprintf("capture: tile %d: width mismatch: want %d, got %d",
		e.Index, e.WantWidth, e.GotWidth)
}
