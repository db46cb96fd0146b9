package persist

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"io"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"

	"github.com/hazyhaar/pagecap/capture"
)

// WritePDF writes the composite as a paginated PDF, one page per
// pageHeight rows. The final page may be shorter; rows are never padded
// or stretched. pageHeight <= 0 produces a single page.
func WritePDF(w io.Writer, img *capture.CompositeImage, pageHeight int) error {
	if img.Height == 0 {
		return fmt.Errorf("persist: empty composite")
	}
	if pageHeight <= 0 {
		pageHeight = img.Height
	}

	pages := splitPages(img, pageHeight)
	readers := make([]io.Reader, 0, len(pages))
	for i, p := range pages {
		var buf bytes.Buffer
		if err := png.Encode(&buf, p); err != nil {
			return fmt.Errorf("persist: encode page %d: %w", i, err)
		}
		readers = append(readers, &buf)
	}

	imp := pdfcpu.DefaultImportConfig()
	if err := api.ImportImages(nil, w, readers, imp, nil); err != nil {
		return fmt.Errorf("persist: import pages: %w", err)
	}
	return nil
}

// splitPages slices the composite into page-height horizontal bands
// without copying pixels: each band aliases the composite's buffer.
func splitPages(img *capture.CompositeImage, pageHeight int) []*image.RGBA {
	stride := img.Width * 4
	var pages []*image.RGBA
	for top := 0; top < img.Height; top += pageHeight {
		h := pageHeight
		if rest := img.Height - top; rest < h {
			h = rest
		}
		pages = append(pages, &image.RGBA{
			Pix:    img.Pix[top*stride : (top+h)*stride],
			Stride: stride,
			Rect:   image.Rect(0, 0, img.Width, h),
		})
	}
	return pages
}
