// Package imaging probes uploaded raster maps for their metadata. Only
// dimensions and format are extracted; decoding for display is the
// presentation layer's job and the pixel data is discarded after the
// probe.
package imaging

import (
	"errors"
	"fmt"
	"io"

	"github.com/h2non/bimg"
)

// Probe errors.
var (
	// ErrEmptyImage is returned for a zero-length upload.
	ErrEmptyImage = errors.New("empty image upload")

	// ErrUnsupportedImage is returned when the bytes are not a raster
	// format libvips can read.
	ErrUnsupportedImage = errors.New("unsupported or corrupt image")
)

// Meta is the probed description of an uploaded raster map.
type Meta struct {
	Width  int
	Height int
	Format string
}

// Prober extracts raster metadata from uploaded bytes.
type Prober interface {
	Probe(r io.Reader) (Meta, error)
}

// VipsProber probes images through libvips (bimg). The zero value is
// ready to use.
type VipsProber struct{}

// Probe reads the upload and returns its dimensions and format. The
// caller is expected to have bounded the reader already (http.MaxBytesReader
// or similar); Probe itself reads to EOF.
func (VipsProber) Probe(r io.Reader) (Meta, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Meta{}, fmt.Errorf("reading image upload: %w", err)
	}
	if len(data) == 0 {
		return Meta{}, ErrEmptyImage
	}

	img := bimg.NewImage(data)
	size, err := img.Size()
	if err != nil {
		return Meta{}, fmt.Errorf("%w: %v", ErrUnsupportedImage, err)
	}
	if size.Width <= 0 || size.Height <= 0 {
		return Meta{}, ErrUnsupportedImage
	}

	return Meta{
		Width:  size.Width,
		Height: size.Height,
		Format: img.Type(),
	}, nil
}
