// Package overlay stamps annotations onto captured frames before encoding.
package overlay

import (
	"image"
	"image/color"
)

// Widget is something that can be drawn onto a screenshot
type Widget interface {
	// Render draws the widget onto img
	Render(img *image.RGBA) error
}

// Apply renders widgets in order. The first error stops rendering.
func Apply(img *image.RGBA, widgets ...Widget) error {
	for _, w := range widgets {
		if w == nil {
			continue
		}
		if err := w.Render(img); err != nil {
			return err
		}
	}
	return nil
}

// BlendImage blends a source image onto a destination image at the given
// position with the specified opacity. Pixels outside dst are clipped.
func BlendImage(dst *image.RGBA, src image.Image, x, y int, opacity float64) {
	srcBounds := src.Bounds()
	dstBounds := dst.Bounds()

	for sy := srcBounds.Min.Y; sy < srcBounds.Max.Y; sy++ {
		dy := y + (sy - srcBounds.Min.Y)
		if dy < dstBounds.Min.Y || dy >= dstBounds.Max.Y {
			continue
		}

		for sx := srcBounds.Min.X; sx < srcBounds.Max.X; sx++ {
			dx := x + (sx - srcBounds.Min.X)
			if dx < dstBounds.Min.X || dx >= dstBounds.Max.X {
				continue
			}

			sr, sg, sb, sa := src.At(sx, sy).RGBA()
			alpha := float64(sa) * opacity / 0xffff
			if alpha <= 0 {
				continue
			}

			// Source over destination, both alpha-premultiplied.
			d := dst.RGBAAt(dx, dy)
			over := func(s uint32, dc uint8) uint8 {
				v := float64(s)/0xffff*opacity + float64(dc)/0xff*(1-alpha)
				return uint8(clamp01(v)*0xff + 0.5)
			}
			dst.SetRGBA(dx, dy, color.RGBA{
				R: over(sr, d.R),
				G: over(sg, d.G),
				B: over(sb, d.B),
				A: over(sa, d.A),
			})
		}
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
