package capture

import (
	"errors"
	"fmt"
	"testing"

	"golang.org/x/sys/unix"

	"github.com/bryanchriswhite/waycap/internal/geometry"
	"github.com/bryanchriswhite/waycap/internal/pixel"
	"github.com/bryanchriswhite/waycap/internal/shm"
)

// fakeTx replays scripted events. fill, when set, writes into the shared
// memory on Copy the way a compositor would.
type fakeTx struct {
	events  []Event
	fill    []byte
	copyErr error

	copied  []FrameDescriptor
	closed  int
	nextErr error
}

func (t *fakeTx) NextEvent() (Event, error) {
	if len(t.events) == 0 {
		if t.nextErr != nil {
			return Event{}, t.nextErr
		}
		return Event{}, errors.New("connection closed")
	}
	ev := t.events[0]
	t.events = t.events[1:]
	return ev, nil
}

func (t *fakeTx) Copy(desc FrameDescriptor, fd int, size int) error {
	t.copied = append(t.copied, desc)
	if desc.Size() != size {
		return errors.New("size mismatch")
	}
	if t.fill != nil {
		if _, err := unix.Pwrite(fd, t.fill, 0); err != nil {
			return err
		}
	}
	return t.copyErr
}

func (t *fakeTx) Close() error {
	t.closed++
	return nil
}

type fakeCompositor struct {
	outputs []geometry.Output
	tx      *fakeTx
	// newTx, when set, builds a fresh transaction for every capture.
	newTx func() *fakeTx
	err   error

	gotOutput geometry.Output
	gotCursor bool
	gotRegion *geometry.Region
	calls     int
}

func (c *fakeCompositor) Outputs() []geometry.Output { return c.outputs }

func (c *fakeCompositor) Capture(output geometry.Output, cursor bool, region *geometry.Region) (Transaction, error) {
	c.calls++
	c.gotOutput = output
	c.gotCursor = cursor
	c.gotRegion = region
	if c.err != nil {
		return nil, c.err
	}
	if c.newTx != nil {
		return c.newTx(), nil
	}
	return c.tx, nil
}

// trackingAlloc records every region it hands out.
type trackingAlloc struct {
	regions []*shm.Region
}

func (a *trackingAlloc) alloc(size int) (*shm.Region, error) {
	r, err := shm.Allocate(size)
	if err == nil {
		a.regions = append(a.regions, r)
	}
	return r, err
}

var testOutputs = []geometry.Output{
	{Name: "DP-1", X: 0, Y: 0, Width: 1920, Height: 1080, Scale: 1},
	{Name: "eDP-1", X: 1920, Y: 0, Width: 1920, Height: 1080, Scale: 1},
	{Name: "HDMI-1", X: 3840, Y: 0, Width: 2560, Height: 1440, Scale: 1},
}

func handshake(descs ...FrameDescriptor) []Event {
	var events []Event
	for _, d := range descs {
		events = append(events, Event{Kind: EventBuffer, Descriptor: d})
	}
	return append(events,
		Event{Kind: EventFlags},
		Event{Kind: EventBufferDone},
		Event{Kind: EventReady},
	)
}

func TestCaptureFullOutputXrgb(t *testing.T) {
	desc := FrameDescriptor{Format: pixel.FormatXrgb8888, Width: 1920, Height: 1080, Stride: 7680}
	tx := &fakeTx{
		events: handshake(desc),
		// B, G, R, X for the first pixel.
		fill: []byte{0x11, 0x22, 0x33, 0x44},
	}
	comp := &fakeCompositor{outputs: testOutputs, tx: tx}
	c := New(comp)

	frame, err := c.Capture(Request{Output: "DP-1"})
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	defer frame.Close()

	if frame.Color != pixel.RGBA8 {
		t.Fatalf("expected RGBA8, got %s", frame.Color)
	}
	if len(frame.Pix()) != 7680*1080 {
		t.Fatalf("expected %d bytes, got %d", 7680*1080, len(frame.Pix()))
	}
	if frame.Width() != 1920 || frame.Height() != 1080 {
		t.Fatalf("unexpected dimensions %dx%d", frame.Width(), frame.Height())
	}
	got := frame.Pix()[:4]
	want := []byte{0x33, 0x22, 0x11, 0x44}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("pixel byte %d: expected %#x, got %#x", i, want[i], got[i])
		}
	}
	if frame.Output.Name != "DP-1" {
		t.Fatalf("frame output = %q", frame.Output.Name)
	}
	if comp.gotRegion != nil {
		t.Fatalf("full-output capture sent a region: %v", comp.gotRegion)
	}
	if tx.closed != 1 {
		t.Fatalf("expected transaction closed once, got %d", tx.closed)
	}
}

func TestCaptureImageHonoursStride(t *testing.T) {
	desc := FrameDescriptor{Format: pixel.FormatXbgr8888, Width: 10, Height: 2, Stride: 48}
	fill := make([]byte, 48*2)
	// Pixel (9, 1).
	copy(fill[48+9*4:], []byte{1, 2, 3, 4})
	tx := &fakeTx{events: handshake(desc), fill: fill}
	c := New(&fakeCompositor{outputs: testOutputs, tx: tx})

	frame, err := c.Capture(Request{})
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	defer frame.Close()

	px := frame.Image().RGBAAt(9, 1)
	if px.R != 1 || px.G != 2 || px.B != 3 || px.A != 4 {
		t.Fatalf("unexpected pixel %+v", px)
	}

	clone := frame.Clone()
	if clone.Stride != 40 {
		t.Fatalf("clone should be tightly packed, stride %d", clone.Stride)
	}
	// xbgr8888 has no alpha channel, so the clone is opaque.
	want := px
	want.A = 0xff
	if clone.RGBAAt(9, 1) != want {
		t.Fatalf("clone pixel %+v, want %+v", clone.RGBAAt(9, 1), want)
	}
}

func TestCloneFlipsYInverted(t *testing.T) {
	desc := FrameDescriptor{Format: pixel.FormatAbgr8888, Width: 1, Height: 2, Stride: 4}
	tx := &fakeTx{
		events: []Event{
			{Kind: EventBuffer, Descriptor: desc},
			{Kind: EventFlags, Flags: FlagYInvert},
			{Kind: EventBufferDone},
			{Kind: EventReady},
		},
		fill: []byte{1, 1, 1, 1, 2, 2, 2, 2},
	}
	frame, err := New(&fakeCompositor{outputs: testOutputs, tx: tx}).Capture(Request{})
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	defer frame.Close()

	if !frame.YInverted() {
		t.Fatal("expected y-inverted frame")
	}
	img := frame.Clone()
	if img.Pix[0] != 2 || img.Pix[4] != 1 {
		t.Fatalf("rows not flipped: %v", img.Pix)
	}
}

func TestSelectsFirstUsableDescriptor(t *testing.T) {
	tests := []struct {
		name    string
		offered []FrameDescriptor
		want    FrameDescriptor
		wantOK  bool
	}{
		{
			name: "skips unsupported format",
			offered: []FrameDescriptor{
				{Format: pixel.FrameFormat(0x36314752), Width: 4, Height: 4, Stride: 8},
				{Format: pixel.FormatXbgr8888, Width: 4, Height: 4, Stride: 16},
			},
			want:   FrameDescriptor{Format: pixel.FormatXbgr8888, Width: 4, Height: 4, Stride: 16},
			wantOK: true,
		},
		{
			name: "skips short stride",
			offered: []FrameDescriptor{
				{Format: pixel.FormatXrgb8888, Width: 4, Height: 4, Stride: 12},
				{Format: pixel.FormatArgb8888, Width: 4, Height: 4, Stride: 16},
			},
			want:   FrameDescriptor{Format: pixel.FormatArgb8888, Width: 4, Height: 4, Stride: 16},
			wantOK: true,
		},
		{
			name: "keeps advertisement order",
			offered: []FrameDescriptor{
				{Format: pixel.FormatXbgr2101010, Width: 4, Height: 4, Stride: 16},
				{Format: pixel.FormatXrgb8888, Width: 4, Height: 4, Stride: 16},
			},
			want:   FrameDescriptor{Format: pixel.FormatXbgr2101010, Width: 4, Height: 4, Stride: 16},
			wantOK: true,
		},
		{
			name:    "zero height",
			offered: []FrameDescriptor{{Format: pixel.FormatXrgb8888, Width: 4, Height: 0, Stride: 16}},
		},
		{
			name: "nothing offered",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := selectDescriptor(tt.offered)
			if ok != tt.wantOK || got != tt.want {
				t.Fatalf("selectDescriptor = %v, %v; want %v, %v", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestCaptureUnsupportedFormat(t *testing.T) {
	alloc := &trackingAlloc{}
	tx := &fakeTx{events: handshake(FrameDescriptor{Format: pixel.FrameFormat(0x36314752), Width: 4, Height: 4, Stride: 8})}
	c := New(&fakeCompositor{outputs: testOutputs, tx: tx}, WithAllocator(alloc.alloc))

	_, err := c.Capture(Request{})
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
	if len(alloc.regions) != 0 {
		t.Fatal("no memory should be allocated without a usable format")
	}
	if len(tx.copied) != 0 {
		t.Fatal("copy must not be requested")
	}
	if tx.closed != 1 {
		t.Fatalf("expected transaction closed once, got %d", tx.closed)
	}
}

func TestCaptureFailedReleasesMemory(t *testing.T) {
	desc := FrameDescriptor{Format: pixel.FormatXrgb8888, Width: 16, Height: 16, Stride: 64}
	alloc := &trackingAlloc{}
	tx := &fakeTx{events: []Event{
		{Kind: EventBuffer, Descriptor: desc},
		{Kind: EventBufferDone},
		{Kind: EventFailed},
		{Kind: EventReady},
	}}
	c := New(&fakeCompositor{outputs: testOutputs, tx: tx}, WithAllocator(alloc.alloc))

	frame, err := c.Capture(Request{})
	if !errors.Is(err, ErrCaptureFailed) {
		t.Fatalf("expected ErrCaptureFailed, got %v", err)
	}
	if frame != nil {
		t.Fatal("expected no frame on failure")
	}
	if len(alloc.regions) != 1 {
		t.Fatalf("expected one allocation, got %d", len(alloc.regions))
	}
	if alloc.regions[0].Fd() != -1 {
		t.Fatal("shared memory was not released")
	}
	if tx.closed != 1 {
		t.Fatalf("expected transaction closed once, got %d", tx.closed)
	}
	if len(tx.events) != 1 {
		t.Fatal("events after the terminal state must not be consumed")
	}
}

func TestCaptureFailedBeforeBufferDone(t *testing.T) {
	tx := &fakeTx{events: []Event{{Kind: EventFailed}}}
	_, err := New(&fakeCompositor{outputs: testOutputs, tx: tx}).Capture(Request{})
	if !errors.Is(err, ErrCaptureFailed) {
		t.Fatalf("expected ErrCaptureFailed, got %v", err)
	}
	if len(tx.copied) != 0 {
		t.Fatal("copy must not be requested")
	}
}

func TestReadyBeforeCopyIsProtocolError(t *testing.T) {
	desc := FrameDescriptor{Format: pixel.FormatXrgb8888, Width: 2, Height: 2, Stride: 8}
	tx := &fakeTx{events: []Event{
		{Kind: EventBuffer, Descriptor: desc},
		{Kind: EventReady},
	}}
	_, err := New(&fakeCompositor{outputs: testOutputs, tx: tx}).Capture(Request{})
	if !errors.Is(err, ErrProtocol) {
		t.Fatalf("expected ErrProtocol, got %v", err)
	}
}

func TestAllocationFailure(t *testing.T) {
	desc := FrameDescriptor{Format: pixel.FormatXrgb8888, Width: 2, Height: 2, Stride: 8}
	tx := &fakeTx{events: handshake(desc)}
	failing := func(int) (*shm.Region, error) { return nil, errors.New("out of memory") }

	_, err := New(&fakeCompositor{outputs: testOutputs, tx: tx}, WithAllocator(failing)).Capture(Request{})
	if !errors.Is(err, ErrAllocation) {
		t.Fatalf("expected ErrAllocation, got %v", err)
	}
	if tx.closed != 1 {
		t.Fatalf("expected transaction closed once, got %d", tx.closed)
	}
}

func TestCopyErrorReleasesMemory(t *testing.T) {
	desc := FrameDescriptor{Format: pixel.FormatXrgb8888, Width: 2, Height: 2, Stride: 8}
	alloc := &trackingAlloc{}
	copyErr := errors.New("broken pipe")
	tx := &fakeTx{events: handshake(desc), copyErr: copyErr}

	_, err := New(&fakeCompositor{outputs: testOutputs, tx: tx}, WithAllocator(alloc.alloc)).Capture(Request{})
	if !errors.Is(err, copyErr) {
		t.Fatalf("expected copy error, got %v", err)
	}
	if !errors.Is(err, ErrConnection) {
		t.Fatalf("copy write failure should be a connection error, got %v", err)
	}
	if alloc.regions[0].Fd() != -1 {
		t.Fatal("shared memory was not released")
	}
}

func TestCopyErrorKeepsCaptureFailed(t *testing.T) {
	desc := FrameDescriptor{Format: pixel.FormatXrgb8888, Width: 2, Height: 2, Stride: 8}
	tx := &fakeTx{events: handshake(desc), copyErr: fmt.Errorf("%w: short image", ErrCaptureFailed)}

	_, err := New(&fakeCompositor{outputs: testOutputs, tx: tx}).Capture(Request{})
	if !errors.Is(err, ErrCaptureFailed) {
		t.Fatalf("expected ErrCaptureFailed, got %v", err)
	}
	if errors.Is(err, ErrConnection) {
		t.Fatalf("capture failure must not become a connection error: %v", err)
	}
}

func TestCaptureTwiceIsStable(t *testing.T) {
	desc := FrameDescriptor{Format: pixel.FormatArgb8888, Width: 8, Height: 4, Stride: 32}
	comp := &fakeCompositor{
		outputs: testOutputs,
		newTx: func() *fakeTx {
			return &fakeTx{events: handshake(desc), fill: []byte{1, 2, 3, 4}}
		},
	}
	c := New(comp)

	first, err := c.Capture(Request{Output: "eDP-1"})
	if err != nil {
		t.Fatalf("first Capture: %v", err)
	}
	defer first.Close()
	second, err := c.Capture(Request{Output: "eDP-1"})
	if err != nil {
		t.Fatalf("second Capture: %v", err)
	}
	defer second.Close()

	if comp.calls != 2 {
		t.Fatalf("expected two transactions, got %d", comp.calls)
	}
	if first.Descriptor != second.Descriptor {
		t.Fatalf("descriptors differ: %v vs %v", first.Descriptor, second.Descriptor)
	}
	if first.Color != second.Color {
		t.Fatalf("color types differ: %s vs %s", first.Color, second.Color)
	}
	if first.Width() != 8 || first.Height() != 4 {
		t.Fatalf("unexpected dimensions %dx%d", first.Width(), first.Height())
	}
}

func TestConnectionLostMidFrame(t *testing.T) {
	tx := &fakeTx{events: []Event{{Kind: EventBuffer}}}
	_, err := New(&fakeCompositor{outputs: testOutputs, tx: tx}).Capture(Request{})
	if !errors.Is(err, ErrConnection) {
		t.Fatalf("expected ErrConnection, got %v", err)
	}
}

func TestEventsAfterTerminalAreIgnored(t *testing.T) {
	f := newFrame(&fakeTx{}, shm.Allocate)
	f.handle(Event{Kind: EventFailed})
	if f.state != StateFailed {
		t.Fatalf("expected failed state, got %s", f.state)
	}
	first := f.err

	for _, kind := range []EventKind{EventReady, EventBuffer, EventBufferDone, EventFailed} {
		f.handle(Event{Kind: kind})
	}
	if f.state != StateFailed || f.err != first {
		t.Fatalf("terminal outcome changed: state %s err %v", f.state, f.err)
	}
}

func TestResolveOutput(t *testing.T) {
	tests := []struct {
		name    string
		outputs []geometry.Output
		query   string
		want    string
		wantErr error
	}{
		{"exact match", testOutputs, "eDP-1", "eDP-1", nil},
		{"empty picks first", testOutputs, "", "DP-1", nil},
		{"unknown name", testOutputs, "VGA-1", "", ErrNotFound},
		{"prefix is not a match", testOutputs, "DP", "", ErrNotFound},
		{"no outputs", nil, "", "", ErrNotFound},
		{"absent from two outputs", testOutputs[:2], "HDMI-1", "", ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, err := ResolveOutput(tt.outputs, tt.query)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ResolveOutput: %v", err)
			}
			if o.Name != tt.want {
				t.Fatalf("expected %s, got %s", tt.want, o.Name)
			}
			// Resolution is a pure function of its inputs.
			again, _ := ResolveOutput(tt.outputs, tt.query)
			if again != o {
				t.Fatal("resolution is not stable")
			}
		})
	}
}

func TestCaptureNamedOutput(t *testing.T) {
	desc := FrameDescriptor{Format: pixel.FormatXrgb8888, Width: 4, Height: 4, Stride: 16}
	comp := &fakeCompositor{outputs: testOutputs, tx: &fakeTx{events: handshake(desc)}}

	frame, err := New(comp).Capture(Request{Output: "HDMI-1", OverlayCursor: true})
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	defer frame.Close()

	if comp.gotOutput.Name != "HDMI-1" {
		t.Fatalf("captured %s, want HDMI-1", comp.gotOutput.Name)
	}
	if !comp.gotCursor {
		t.Fatal("cursor flag was not passed through")
	}
}

func TestCaptureRegionValidation(t *testing.T) {
	tests := []struct {
		name   string
		region geometry.Region
	}{
		{"exceeds output", geometry.Region{X: 1900, Y: 1060, Width: 50, Height: 50}},
		{"negative origin", geometry.Region{X: -1, Y: 0, Width: 10, Height: 10}},
		{"zero width", geometry.Region{X: 10, Y: 10, Width: 0, Height: 10}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			comp := &fakeCompositor{outputs: testOutputs, tx: &fakeTx{}}
			region := tt.region
			_, err := New(comp).Capture(Request{Output: "DP-1", Region: &region})
			if !errors.Is(err, ErrInvalidRegion) {
				t.Fatalf("expected ErrInvalidRegion, got %v", err)
			}
			if comp.calls != 0 {
				t.Fatal("invalid region must not reach the compositor")
			}
		})
	}
}

func TestCaptureRegionTranslatesToOutputLocal(t *testing.T) {
	desc := FrameDescriptor{Format: pixel.FormatXrgb8888, Width: 200, Height: 100, Stride: 800}
	comp := &fakeCompositor{outputs: testOutputs, tx: &fakeTx{events: handshake(desc)}}

	frame, err := New(comp).CaptureRegion(geometry.Region{X: 2000, Y: 50, Width: 200, Height: 100}, false)
	if err != nil {
		t.Fatalf("CaptureRegion: %v", err)
	}
	defer frame.Close()

	if comp.gotOutput.Name != "eDP-1" {
		t.Fatalf("expected eDP-1, got %s", comp.gotOutput.Name)
	}
	want := geometry.Region{X: 80, Y: 50, Width: 200, Height: 100}
	if comp.gotRegion == nil || *comp.gotRegion != want {
		t.Fatalf("expected local region %v, got %v", want, comp.gotRegion)
	}
}

func TestCaptureRegionSpanningOutputs(t *testing.T) {
	comp := &fakeCompositor{outputs: testOutputs, tx: &fakeTx{}}
	_, err := New(comp).CaptureRegion(geometry.Region{X: 1800, Y: 0, Width: 400, Height: 100}, false)
	if !errors.Is(err, ErrInvalidRegion) {
		t.Fatalf("expected ErrInvalidRegion, got %v", err)
	}
}

func TestCapturedFrameCloseOnce(t *testing.T) {
	desc := FrameDescriptor{Format: pixel.FormatXrgb8888, Width: 2, Height: 2, Stride: 8}
	frame, err := New(&fakeCompositor{outputs: testOutputs, tx: &fakeTx{events: handshake(desc)}}).Capture(Request{})
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if err := frame.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := frame.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if frame.Pix() != nil || frame.Image() != nil {
		t.Fatal("frame data still reachable after Close")
	}
}
