package hunter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/logohunter/internal/candidate"
)

func TestParseOptions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		format string
		size   string
		want   Options
		err    bool
	}{
		{name: "defaults", want: Options{}},
		{name: "png box", format: "png", size: "128x64", want: Options{Format: candidate.FormatPNG, Width: 128, Height: 64}},
		{name: "jpg alias square", format: "JPG", size: "256", want: Options{Format: candidate.FormatJPEG, Width: 256, Height: 256}},
		{name: "size only", size: "32X32", want: Options{Width: 32, Height: 32}},
		{name: "bad format", format: "tiff", err: true},
		{name: "bad size", size: "big", err: true},
		{name: "zero size", size: "0", err: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ParseOptions(tt.format, tt.size)
			if tt.err {
				require.ErrorIs(t, err, ErrInvalidOptions)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
