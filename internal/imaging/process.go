package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/gif"
	"image/jpeg"
	"image/png"

	"github.com/HugoSmits86/nativewebp"
	"github.com/nfnt/resize"

	"github.com/JakeFAU/logohunter/internal/candidate"
)

const jpegQuality = 90

// Options controls Process. A zero Format means PNG. When only one of Width
// and Height is set the aspect ratio is kept.
type Options struct {
	Format candidate.Format
	Width  int
	Height int
}

// Output is a processed logo.
type Output struct {
	Data   []byte
	Format candidate.Format
	Width  int
	Height int
}

// ContentType returns the MIME type of the output.
func (o Output) ContentType() string {
	return o.Format.ContentType()
}

// Process converts and resizes a validated payload. Vector payloads pass
// through unchanged whatever the options say.
func Process(data []byte, meta Metadata, opts Options) (Output, error) {
	if meta.Vector {
		return Output{Data: data, Format: candidate.FormatSVG, Width: meta.Width, Height: meta.Height}, nil
	}
	target := opts.Format
	if !target.Known() {
		target = candidate.FormatPNG
	}
	switch target {
	case candidate.FormatPNG, candidate.FormatJPEG, candidate.FormatGIF, candidate.FormatWEBP:
	default:
		return Output{}, fmt.Errorf("%w: %s", ErrUnsupportedOutput, target)
	}

	img, err := decode(data, meta)
	if err != nil {
		return Output{}, err
	}
	if opts.Width > 0 || opts.Height > 0 {
		img = resize.Resize(uint(max(opts.Width, 0)), uint(max(opts.Height, 0)), img, resize.Lanczos3)
	}

	var buf bytes.Buffer
	switch target {
	case candidate.FormatJPEG:
		err = jpeg.Encode(&buf, flatten(img), &jpeg.Options{Quality: jpegQuality})
	case candidate.FormatGIF:
		err = gif.Encode(&buf, img, nil)
	case candidate.FormatWEBP:
		// Lossless VP8L keeps alpha and sharp logo edges.
		err = nativewebp.Encode(&buf, img, nil)
	default:
		err = png.Encode(&buf, img)
	}
	if err != nil {
		return Output{}, fmt.Errorf("encode %s: %w", target, err)
	}
	b := img.Bounds()
	return Output{Data: buf.Bytes(), Format: target, Width: b.Dx(), Height: b.Dy()}, nil
}

func decode(data []byte, meta Metadata) (image.Image, error) {
	if meta.Format == candidate.FormatICO {
		img, err := decodeICO(data)
		if err != nil {
			return nil, fmt.Errorf("decode icon: %w", err)
		}
		return img, nil
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: decode: %w", ErrUnrecognized, err)
	}
	return img, nil
}

// flatten composites img over white, since JPEG has no alpha channel.
func flatten(img image.Image) image.Image {
	b := img.Bounds()
	dst := image.NewRGBA(b)
	draw.Draw(dst, b, &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	draw.Draw(dst, b, img, b.Min, draw.Over)
	return dst
}
