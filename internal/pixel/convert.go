package pixel

import (
	"encoding/binary"
	"fmt"
)

const (
	shift10High = 20
	shift10Mid  = 10
)

// Convert rewrites data in place from format to RGBA8, one 4-byte unit at a
// time. It never allocates and never changes len(data); a trailing partial
// unit is left alone. Unsupported formats leave data untouched.
func Convert(format FrameFormat, data []byte) (ColorType, error) {
	switch format {
	case FormatXbgr8888, FormatAbgr8888:
		// Already R, G, B, A in memory.
	case FormatXrgb8888, FormatArgb8888:
		swapRB(data)
	case FormatXbgr2101010, FormatAbgr2101010:
		unpack10(data)
	default:
		return ColorUnknown, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
	return RGBA8, nil
}

// swapRB exchanges bytes 0 and 2 of each pixel. Alpha in byte 3 is kept.
func swapRB(data []byte) {
	n := len(data) &^ 3
	for i := 0; i < n; i += 4 {
		data[i], data[i+2] = data[i+2], data[i]
	}
}

// unpack10 reduces 2:10:10:10 words to 8 bits per channel by keeping the top
// eight bits of each channel. This truncates rather than rounds. The two
// alpha bits are dropped and alpha is forced opaque.
func unpack10(data []byte) {
	n := len(data) &^ 3
	for i := 0; i < n; i += 4 {
		px := binary.LittleEndian.Uint32(data[i : i+4])
		data[i] = to8(px)
		data[i+1] = to8(px >> shift10Mid)
		data[i+2] = to8(px >> shift10High)
		data[i+3] = 0xff
	}
}

func to8(c uint32) byte {
	return byte((c >> 2) & 0xff)
}
