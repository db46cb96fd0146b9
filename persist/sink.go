package persist

import (
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hazyhaar/pagecap/capture"
)

// Sink writes encoded captures into an output directory with names
// derived from the page URL and the capture time.
type Sink struct {
	dir string
}

// NewSink creates the output directory if needed.
func NewSink(dir string) (*Sink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("persist: create output dir: %w", err)
	}
	return &Sink{dir: dir}, nil
}

// Write encodes the composite in the given format and writes it to a
// fresh file, returning its path. pageHeight controls PDF pagination
// and is ignored for raster formats.
func (s *Sink) Write(img *capture.CompositeImage, pageURL string, format Format, pageHeight int) (string, error) {
	path := filepath.Join(s.dir, fileName(pageURL, format, time.Now()))

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("persist: create %s: %w", path, err)
	}
	defer f.Close()

	if format == FormatPDF {
		err = WritePDF(f, img, pageHeight)
	} else {
		err = Encode(f, img, format)
	}
	if err != nil {
		os.Remove(path)
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("persist: close %s: %w", path, err)
	}
	return path, nil
}

func fileName(pageURL string, format Format, at time.Time) string {
	sum := sha256.Sum256([]byte(pageURL))
	return fmt.Sprintf("page_%d_%x.%s", at.Unix(), sum[:8], format.Ext())
}
