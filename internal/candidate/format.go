package candidate

import (
	"fmt"
	"mime"
	"net/url"
	"path"
	"strings"
)

// Format is the image encoding of a candidate.
type Format string

// Known formats.
const (
	FormatUnknown Format = "UNKNOWN"
	FormatSVG     Format = "SVG"
	FormatPNG     Format = "PNG"
	FormatWEBP    Format = "WEBP"
	FormatICO     Format = "ICO"
	FormatJPEG    Format = "JPEG"
	FormatGIF     Format = "GIF"
)

// mergePrecedence orders formats when merged members disagree.
var mergePrecedence = []Format{FormatSVG, FormatPNG, FormatWEBP, FormatICO, FormatJPEG, FormatGIF}

var extensionFormats = map[string]Format{
	".svg":  FormatSVG,
	".png":  FormatPNG,
	".webp": FormatWEBP,
	".ico":  FormatICO,
	".jpg":  FormatJPEG,
	".jpeg": FormatJPEG,
	".gif":  FormatGIF,
}

var mimeFormats = map[string]Format{
	"image/svg+xml":            FormatSVG,
	"image/png":                FormatPNG,
	"image/webp":               FormatWEBP,
	"image/x-icon":             FormatICO,
	"image/vnd.microsoft.icon": FormatICO,
	"image/ico":                FormatICO,
	"image/jpeg":               FormatJPEG,
	"image/jpg":                FormatJPEG,
	"image/gif":                FormatGIF,
}

// String implements fmt.Stringer.
func (f Format) String() string {
	if f == "" {
		return string(FormatUnknown)
	}
	return string(f)
}

// Known reports whether f is a concrete format.
func (f Format) Known() bool {
	return f != "" && f != FormatUnknown
}

// IsVector reports whether the format is never rasterized.
func (f Format) IsVector() bool {
	return f == FormatSVG
}

// Extension returns the file extension used when saving a logo.
func (f Format) Extension() string {
	switch f {
	case FormatSVG:
		return "svg"
	case FormatPNG:
		return "png"
	case FormatWEBP:
		return "webp"
	case FormatICO:
		return "ico"
	case FormatJPEG:
		return "jpg"
	case FormatGIF:
		return "gif"
	default:
		return "bin"
	}
}

// ContentType returns the MIME type for the format.
func (f Format) ContentType() string {
	switch f {
	case FormatSVG:
		return "image/svg+xml"
	case FormatPNG:
		return "image/png"
	case FormatWEBP:
		return "image/webp"
	case FormatICO:
		return "image/x-icon"
	case FormatJPEG:
		return "image/jpeg"
	case FormatGIF:
		return "image/gif"
	default:
		return "application/octet-stream"
	}
}

// ParseFormat reads a user supplied format token such as "png" or "JPG".
func ParseFormat(s string) (Format, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "SVG":
		return FormatSVG, nil
	case "PNG":
		return FormatPNG, nil
	case "WEBP":
		return FormatWEBP, nil
	case "ICO":
		return FormatICO, nil
	case "JPG", "JPEG":
		return FormatJPEG, nil
	case "GIF":
		return FormatGIF, nil
	default:
		return FormatUnknown, fmt.Errorf("unknown image format %q", s)
	}
}

// FormatFromExtension infers the format from the URL path extension.
func FormatFromExtension(rawURL string) Format {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		p = u.Path
	}
	if f, ok := extensionFormats[strings.ToLower(path.Ext(p))]; ok {
		return f
	}
	return FormatUnknown
}

// FormatFromMIME infers the format from a type attribute or Content-Type header.
func FormatFromMIME(contentType string) Format {
	if contentType == "" {
		return FormatUnknown
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0])
	}
	if f, ok := mimeFormats[strings.ToLower(mediaType)]; ok {
		return f
	}
	return FormatUnknown
}

// InferFormat combines the MIME hint, the extension and, as a last resort,
// a format name embedded in the path (e.g. /render/png/logo).
func InferFormat(rawURL, contentType string) Format {
	if f := FormatFromMIME(contentType); f.Known() {
		return f
	}
	if f := FormatFromExtension(rawURL); f.Known() {
		return f
	}
	lower := strings.ToLower(rawURL)
	if u, err := url.Parse(rawURL); err == nil {
		lower = strings.ToLower(u.Path)
	}
	switch {
	case strings.Contains(lower, "svg"):
		return FormatSVG
	case strings.Contains(lower, "png"):
		return FormatPNG
	case strings.Contains(lower, "webp"):
		return FormatWEBP
	case strings.Contains(lower, "jpeg"), strings.Contains(lower, "jpg"):
		return FormatJPEG
	}
	return FormatUnknown
}
