package imaging

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"image"
	"image/png"

	"golang.org/x/image/bmp"
)

type icoEntry struct {
	width, height int
	size, offset  uint32
}

var pngSignature = []byte("\x89PNG\r\n\x1a\n")

// icoDirectory parses the ICONDIR header and entries.
func icoDirectory(data []byte) ([]icoEntry, bool) {
	if len(data) < 6 || data[0] != 0 || data[1] != 0 || binary.LittleEndian.Uint16(data[2:4]) != 1 {
		return nil, false
	}
	count := int(binary.LittleEndian.Uint16(data[4:6]))
	if count == 0 || len(data) < 6+16*count {
		return nil, false
	}
	entries := make([]icoEntry, 0, count)
	for i := range count {
		e := data[6+16*i : 6+16*(i+1)]
		w, h := int(e[0]), int(e[1])
		// Zero encodes 256.
		if w == 0 {
			w = 256
		}
		if h == 0 {
			h = 256
		}
		entries = append(entries, icoEntry{
			width:  w,
			height: h,
			size:   binary.LittleEndian.Uint32(e[8:12]),
			offset: binary.LittleEndian.Uint32(e[12:16]),
		})
	}
	return entries, true
}

func largestEntry(entries []icoEntry) icoEntry {
	best := entries[0]
	for _, e := range entries[1:] {
		if e.width*e.height > best.width*best.height {
			best = e
		}
	}
	return best
}

// decodeICO decodes the largest image of an icon file. Entries are either
// embedded PNGs or headerless BMPs whose height covers the AND mask too.
func decodeICO(data []byte) (image.Image, error) {
	entries, ok := icoDirectory(data)
	if !ok {
		return nil, ErrUnrecognized
	}
	best := largestEntry(entries)
	end := uint64(best.offset) + uint64(best.size)
	if end > uint64(len(data)) {
		return nil, fmt.Errorf("%w: icon entry out of range", ErrUnrecognized)
	}
	payload := data[best.offset:end]
	if bytes.HasPrefix(payload, pngSignature) {
		return png.Decode(bytes.NewReader(payload))
	}
	file, err := dibToBMP(payload)
	if err != nil {
		return nil, err
	}
	return bmp.Decode(bytes.NewReader(file))
}

func dibToBMP(dib []byte) ([]byte, error) {
	if len(dib) < 40 {
		return nil, fmt.Errorf("%w: short icon bitmap", ErrUnrecognized)
	}
	header := make([]byte, len(dib))
	copy(header, dib)
	infoLen := binary.LittleEndian.Uint32(header[0:4])
	height := int32(binary.LittleEndian.Uint32(header[8:12]))
	binary.LittleEndian.PutUint32(header[8:12], uint32(height/2))

	bpp := binary.LittleEndian.Uint16(header[14:16])
	palette := uint32(0)
	if bpp <= 8 {
		palette = binary.LittleEndian.Uint32(header[32:36])
		if palette == 0 {
			palette = 1 << bpp
		}
	}
	const fileHeaderLen = 14
	out := make([]byte, fileHeaderLen, fileHeaderLen+len(header))
	out[0], out[1] = 'B', 'M'
	binary.LittleEndian.PutUint32(out[2:6], uint32(fileHeaderLen+len(header)))
	binary.LittleEndian.PutUint32(out[10:14], fileHeaderLen+infoLen+palette*4)
	return append(out, header...), nil
}
