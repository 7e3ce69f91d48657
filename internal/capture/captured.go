package capture

import (
	"image"
	"sync"
	"time"

	"github.com/bryanchriswhite/waycap/internal/geometry"
	"github.com/bryanchriswhite/waycap/internal/pixel"
	"github.com/bryanchriswhite/waycap/internal/shm"
)

// CapturedFrame is a converted frame backed by the shared memory the
// compositor copied into. It owns that memory until Close.
type CapturedFrame struct {
	Descriptor FrameDescriptor
	Color      pixel.ColorType
	Flags      uint32
	Timestamp  time.Time
	Output     geometry.Output

	region *shm.Region
	data   []byte
	once   sync.Once
	err    error
}

// Width returns the frame width in buffer pixels.
func (f *CapturedFrame) Width() int { return int(f.Descriptor.Width) }

// Height returns the frame height in buffer pixels.
func (f *CapturedFrame) Height() int { return int(f.Descriptor.Height) }

// Pix returns the RGBA8 bytes, stride × height long, including any row
// padding. It is nil after Close.
func (f *CapturedFrame) Pix() []byte {
	return f.data
}

// YInverted reports whether rows are stored bottom-up.
func (f *CapturedFrame) YInverted() bool {
	return f.Flags&FlagYInvert != 0
}

// Image returns a zero-copy view of the frame. The view is only valid until
// Close and is not corrected for YInverted.
func (f *CapturedFrame) Image() *image.RGBA {
	if f.data == nil {
		return nil
	}
	return &image.RGBA{
		Pix:    f.data,
		Stride: int(f.Descriptor.Stride),
		Rect:   image.Rect(0, 0, f.Width(), f.Height()),
	}
}

// Clone copies the frame into a tightly packed, top-down image that outlives
// the frame. Frames captured in a format without alpha come out opaque.
func (f *CapturedFrame) Clone() *image.RGBA {
	src := f.Image()
	if src == nil {
		return nil
	}
	dst := image.NewRGBA(src.Rect)
	rowLen := f.Width() * 4
	h := f.Height()
	for y := 0; y < h; y++ {
		sy := y
		if f.YInverted() {
			sy = h - 1 - y
		}
		copy(dst.Pix[y*dst.Stride:y*dst.Stride+rowLen], src.Pix[sy*src.Stride:sy*src.Stride+rowLen])
	}
	if !f.Descriptor.Format.HasAlpha() {
		for i := 3; i < len(dst.Pix); i += 4 {
			dst.Pix[i] = 0xff
		}
	}
	return dst
}

// Close releases the shared memory. It is safe to call more than once.
func (f *CapturedFrame) Close() error {
	f.once.Do(func() {
		f.data = nil
		if f.region != nil {
			f.err = f.region.Close()
			f.region = nil
		}
	})
	return f.err
}
