package hunter

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/JakeFAU/logohunter/internal/candidate"
)

// ErrInvalidOptions is returned for unparseable format or size arguments.
var ErrInvalidOptions = errors.New("invalid output options")

// ParseOptions reads a format name (PNG, JPG, ...) and a size of the form
// "WxH" or "N" (a square). Empty strings keep the defaults.
func ParseOptions(format, size string) (Options, error) {
	var opts Options
	if strings.TrimSpace(format) != "" {
		f, err := candidate.ParseFormat(format)
		if err != nil {
			return Options{}, fmt.Errorf("%w: %w", ErrInvalidOptions, err)
		}
		opts.Format = f
	}
	size = strings.TrimSpace(size)
	if size == "" {
		return opts, nil
	}
	if s, ok := candidate.ParseSize(size); ok {
		opts.Width, opts.Height = s.W, s.H
		return opts, nil
	}
	n, err := strconv.Atoi(size)
	if err != nil || n <= 0 {
		return Options{}, fmt.Errorf("%w: size %q", ErrInvalidOptions, size)
	}
	opts.Width, opts.Height = n, n
	return opts, nil
}
