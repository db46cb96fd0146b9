// Package persist is the persistence collaborator for composite
// images: raster encoding (PNG, TIFF, BMP), paginated PDF output, and a
// directory sink with collision-free file names.
package persist

import (
	"fmt"
	"image/png"
	"io"
	"strings"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"

	"github.com/hazyhaar/pagecap/capture"
)

// Format is an output file format.
type Format string

const (
	FormatPNG  Format = "png"
	FormatTIFF Format = "tiff"
	FormatBMP  Format = "bmp"
	FormatPDF  Format = "pdf"
)

// ParseFormat normalises a user-supplied format name.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "png":
		return FormatPNG, nil
	case "tiff", "tif":
		return FormatTIFF, nil
	case "bmp":
		return FormatBMP, nil
	case "pdf":
		return FormatPDF, nil
	}
	return "", fmt.Errorf("persist: unsupported format %q", s)
}

// Ext returns the file extension for the format, without the dot.
func (f Format) Ext() string {
	if f == FormatTIFF {
		return "tiff"
	}
	return string(f)
}

// Encode writes the composite as a single raster image. PDF output is
// paginated and goes through WritePDF instead.
func Encode(w io.Writer, img *capture.CompositeImage, f Format) error {
	switch f {
	case FormatPNG:
		if err := png.Encode(w, img.RGBA()); err != nil {
			return fmt.Errorf("persist: encode png: %w", err)
		}
	case FormatTIFF:
		if err := tiff.Encode(w, img.RGBA(), &tiff.Options{Compression: tiff.Deflate}); err != nil {
			return fmt.Errorf("persist: encode tiff: %w", err)
		}
	case FormatBMP:
		if err := bmp.Encode(w, img.RGBA()); err != nil {
			return fmt.Errorf("persist: encode bmp: %w", err)
		}
	default:
		return fmt.Errorf("persist: cannot encode %q as a raster image", f)
	}
	return nil
}
