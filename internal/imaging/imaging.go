// Package imaging inspects fetched image payloads and performs the final
// convert and resize of a selected logo. Vector images are never rasterized.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // register GIF for DecodeConfig
	_ "image/jpeg" // register JPEG for DecodeConfig
	_ "image/png"  // register PNG for DecodeConfig

	_ "golang.org/x/image/bmp"  // register BMP for DecodeConfig
	_ "golang.org/x/image/webp" // register WEBP for DecodeConfig

	"github.com/JakeFAU/logohunter/internal/candidate"
)

var (
	// ErrEmpty is returned for a zero-length payload.
	ErrEmpty = errors.New("empty image payload")
	// ErrUnrecognized is returned when the payload is not a supported image.
	ErrUnrecognized = errors.New("unrecognized image payload")
	// ErrUnsupportedOutput is returned when Process cannot encode the
	// requested format.
	ErrUnsupportedOutput = errors.New("unsupported output format")
)

// Metadata describes a decoded payload. Width and Height are zero for vector
// images that declare neither dimensions nor a viewBox.
type Metadata struct {
	Format candidate.Format `json:"format"`
	Width  int              `json:"width,omitempty"`
	Height int              `json:"height,omitempty"`
	Vector bool             `json:"vector,omitempty"`
	Bytes  int              `json:"bytes"`
	// Colors lists the distinct normalized paint colors of an SVG.
	Colors []string `json:"colors,omitempty"`
}

// Size returns the pixel dimensions as a candidate size.
func (m Metadata) Size() candidate.Size {
	return candidate.Size{W: m.Width, H: m.Height}
}

// HasDimensions reports whether both dimensions are known.
func (m Metadata) HasDimensions() bool {
	return m.Width > 0 && m.Height > 0
}

var rasterFormats = map[string]candidate.Format{
	"png":  candidate.FormatPNG,
	"jpeg": candidate.FormatJPEG,
	"gif":  candidate.FormatGIF,
	"webp": candidate.FormatWEBP,
	// BMP has no candidate format; it decodes but scores on the declared hint.
	"bmp": candidate.FormatUnknown,
}

// Inspect determines the real format and dimensions of data. The content
// type is only a hint; the payload is sniffed.
func Inspect(data []byte, contentType string) (Metadata, error) {
	if len(data) == 0 {
		return Metadata{}, ErrEmpty
	}
	if entries, ok := icoDirectory(data); ok {
		best := largestEntry(entries)
		return Metadata{
			Format: candidate.FormatICO,
			Width:  best.width,
			Height: best.height,
			Bytes:  len(data),
		}, nil
	}
	if looksLikeMarkup(data) {
		meta, err := inspectSVG(data)
		if err != nil {
			return Metadata{}, fmt.Errorf("%w: %s: %w", ErrUnrecognized, contentType, err)
		}
		return meta, nil
	}

	cfg, name, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Metadata{}, fmt.Errorf("%w: decode config: %w", ErrUnrecognized, err)
	}
	return Metadata{
		Format: rasterFormats[name],
		Width:  cfg.Width,
		Height: cfg.Height,
		Bytes:  len(data),
	}, nil
}

// looksLikeMarkup reports whether data starts like an XML or HTML document.
func looksLikeMarkup(data []byte) bool {
	trimmed := bytes.TrimLeft(bytes.TrimPrefix(data, []byte("\xef\xbb\xbf")), " \t\r\n")
	return len(trimmed) > 0 && trimmed[0] == '<'
}
