package overlay

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"strings"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Anchor is the corner a label is attached to.
type Anchor string

const (
	TopLeft     Anchor = "top-left"
	TopRight    Anchor = "top-right"
	BottomLeft  Anchor = "bottom-left"
	BottomRight Anchor = "bottom-right"
)

// ParseAnchor accepts the four corner names. Empty means bottom-right.
func ParseAnchor(s string) (Anchor, error) {
	switch a := Anchor(strings.ToLower(strings.TrimSpace(s))); a {
	case "":
		return BottomRight, nil
	case TopLeft, TopRight, BottomLeft, BottomRight:
		return a, nil
	}
	return "", fmt.Errorf("unknown label position %q", s)
}

// Label draws a line of text in a corner of the screenshot. The text may
// contain {time} and {output}, which are replaced when the label is
// rendered.
type Label struct {
	Text       string
	Anchor     Anchor
	Color      color.RGBA
	Background *color.RGBA
	Padding    int
	Margin     int
	Opacity    float64

	// Output and Time fill the placeholders.
	Output string
	Time   time.Time
}

// NewLabel returns a white-on-translucent-black label in the bottom-right
// corner.
func NewLabel(text string) *Label {
	return &Label{
		Text:       text,
		Anchor:     BottomRight,
		Color:      color.RGBA{255, 255, 255, 255},
		Background: &color.RGBA{0, 0, 0, 160},
		Padding:    5,
		Margin:     10,
		Opacity:    1.0,
	}
}

// Expand substitutes the placeholders.
func (l *Label) Expand() string {
	ts := l.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	r := strings.NewReplacer(
		"{time}", ts.Format("2006-01-02 15:04:05"),
		"{output}", l.Output,
	)
	return r.Replace(l.Text)
}

// Bounds returns the rectangle the label occupies inside an image of the
// given bounds.
func (l *Label) Bounds(img image.Rectangle) image.Rectangle {
	face := basicfont.Face7x13
	textWidth := font.MeasureString(face, l.Expand()).Ceil()
	w := textWidth + l.Padding*2
	h := face.Height + l.Padding*2

	x := img.Min.X + l.Margin
	y := img.Min.Y + l.Margin
	switch l.Anchor {
	case TopRight:
		x = img.Max.X - l.Margin - w
	case BottomLeft:
		y = img.Max.Y - l.Margin - h
	case BottomRight, "":
		x = img.Max.X - l.Margin - w
		y = img.Max.Y - l.Margin - h
	}
	return image.Rect(x, y, x+w, y+h)
}

// Render draws the label
func (l *Label) Render(img *image.RGBA) error {
	text := l.Expand()
	if text == "" {
		return nil
	}

	face := basicfont.Face7x13
	box := l.Bounds(img.Bounds())

	if l.Background != nil {
		bg := image.NewRGBA(image.Rect(0, 0, box.Dx(), box.Dy()))
		draw.Draw(bg, bg.Bounds(), &image.Uniform{*l.Background}, image.Point{}, draw.Src)
		BlendImage(img, bg, box.Min.X, box.Min.Y, l.Opacity)
	}

	// Draw into a scratch image so the text blends with the same opacity.
	textImg := image.NewRGBA(image.Rect(0, 0, box.Dx()-l.Padding*2, face.Height))
	d := &font.Drawer{
		Dst:  textImg,
		Src:  image.NewUniform(l.Color),
		Face: face,
		Dot:  fixed.Point26_6{X: 0, Y: fixed.I(face.Ascent)},
	}
	d.DrawString(text)

	BlendImage(img, textImg, box.Min.X+l.Padding, box.Min.Y+l.Padding, l.Opacity)
	return nil
}
