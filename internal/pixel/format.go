// Package pixel normalizes compositor-native shm buffer layouts to RGBA8.
package pixel

import (
	"errors"
	"fmt"
)

// ErrUnsupportedFormat is returned for buffer formats no converter exists for.
var ErrUnsupportedFormat = errors.New("unsupported pixel format")

// FrameFormat is a wl_shm format code as advertised by the compositor.
// Codes other than argb8888 and xrgb8888 are DRM fourcc values.
type FrameFormat uint32

const (
	FormatArgb8888    FrameFormat = 0
	FormatXrgb8888    FrameFormat = 1
	FormatXbgr8888    FrameFormat = 0x34324258 // 'XB24'
	FormatAbgr8888    FrameFormat = 0x34324241 // 'AB24'
	FormatXbgr2101010 FrameFormat = 0x30334258 // 'XB30'
	FormatAbgr2101010 FrameFormat = 0x30334241 // 'AB30'
)

// ColorType tags the layout of a converted buffer.
type ColorType int

const (
	ColorUnknown ColorType = iota
	// RGBA8 is four bytes per pixel in R, G, B, A order.
	RGBA8
)

func (c ColorType) String() string {
	if c == RGBA8 {
		return "rgba8"
	}
	return "unknown"
}

// Supported reports whether Convert can handle the format.
func (f FrameFormat) Supported() bool {
	switch f {
	case FormatArgb8888, FormatXrgb8888,
		FormatXbgr8888, FormatAbgr8888,
		FormatXbgr2101010, FormatAbgr2101010:
		return true
	}
	return false
}

// HasAlpha reports whether the fourth byte of a converted pixel carries
// meaningful alpha. For X formats its value is undefined.
func (f FrameFormat) HasAlpha() bool {
	switch f {
	case FormatArgb8888, FormatAbgr8888, FormatAbgr2101010:
		return true
	}
	return false
}

// BytesPerPixel returns the size of one pixel unit, or 0 for unsupported formats.
func (f FrameFormat) BytesPerPixel() int {
	if f.Supported() {
		return 4
	}
	return 0
}

func (f FrameFormat) String() string {
	switch f {
	case FormatArgb8888:
		return "argb8888"
	case FormatXrgb8888:
		return "xrgb8888"
	case FormatXbgr8888:
		return "xbgr8888"
	case FormatAbgr8888:
		return "abgr8888"
	case FormatXbgr2101010:
		return "xbgr2101010"
	case FormatAbgr2101010:
		return "abgr2101010"
	}
	if f > 0xff {
		return fmt.Sprintf("fourcc(%c%c%c%c)", byte(f), byte(f>>8), byte(f>>16), byte(f>>24))
	}
	return fmt.Sprintf("format(%d)", uint32(f))
}
