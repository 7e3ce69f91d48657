package capture

import (
	"fmt"
	"time"

	"github.com/bryanchriswhite/waycap/internal/geometry"
	"github.com/bryanchriswhite/waycap/internal/pixel"
)

// FlagYInvert is set in a flags event when the frame is stored bottom-up.
const FlagYInvert uint32 = 1

// EventKind identifies a screencopy frame event.
type EventKind int

const (
	EventBuffer EventKind = iota
	EventFlags
	EventDamage
	EventLinuxDmabuf
	EventBufferDone
	EventReady
	EventFailed
)

var eventNames = map[EventKind]string{
	EventBuffer:      "buffer",
	EventFlags:       "flags",
	EventDamage:      "damage",
	EventLinuxDmabuf: "linux_dmabuf",
	EventBufferDone:  "buffer_done",
	EventReady:       "ready",
	EventFailed:      "failed",
}

func (k EventKind) String() string {
	if name, ok := eventNames[k]; ok {
		return name
	}
	return fmt.Sprintf("event(%d)", int(k))
}

// FrameDescriptor is one buffer layout the compositor offers for a frame.
type FrameDescriptor struct {
	Format pixel.FrameFormat `json:"format"`
	Width  uint32            `json:"width"`
	Height uint32            `json:"height"`
	Stride uint32            `json:"stride"`
}

// Size is the number of bytes a buffer with this layout occupies.
func (d FrameDescriptor) Size() int {
	return int(uint64(d.Stride) * uint64(d.Height))
}

// Usable reports whether the layout can be allocated and converted.
func (d FrameDescriptor) Usable() bool {
	bpp := uint64(d.Format.BytesPerPixel())
	if bpp == 0 {
		return false
	}
	return uint64(d.Stride) >= uint64(d.Width)*bpp && uint64(d.Stride)*uint64(d.Height) > 0
}

func (d FrameDescriptor) String() string {
	return fmt.Sprintf("%s %dx%d stride %d", d.Format, d.Width, d.Height, d.Stride)
}

// Event is a decoded frame event. Only the fields relevant to Kind are set.
type Event struct {
	Kind       EventKind
	Descriptor FrameDescriptor
	Flags      uint32
	Damage     geometry.Region
	Timestamp  time.Time
}
