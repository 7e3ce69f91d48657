package encode

import (
	"bufio"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

// DefaultQuality is the JPEG quality used when none is configured.
const DefaultQuality = 90

// ErrIO wraps failures writing the encoded image.
var ErrIO = errors.New("failed to write image")

// Options tunes lossy encoders.
type Options struct {
	// Quality is the JPEG quality, 1-100. Zero selects DefaultQuality.
	Quality int
}

func (o Options) quality() int {
	switch {
	case o.Quality <= 0:
		return DefaultQuality
	case o.Quality > 100:
		return 100
	}
	return o.Quality
}

// Encode writes img to w in format f.
func Encode(w io.Writer, img image.Image, f Format, opts Options) error {
	var err error
	switch f {
	case PNG:
		err = png.Encode(w, img)
	case JPEG:
		err = jpeg.Encode(w, img, &jpeg.Options{Quality: opts.quality()})
	case PPM:
		err = writePPM(w, img)
	case BMP:
		err = bmp.Encode(w, img)
	case TIFF:
		err = tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate, Predictor: true})
	default:
		return fmt.Errorf("unknown encoding %q", f)
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrIO, f, err)
	}
	return nil
}

// writePPM writes a binary P6 pixmap. Alpha is dropped.
func writePPM(w io.Writer, img image.Image) error {
	b := img.Bounds()
	bw := bufio.NewWriter(w)
	if _, err := fmt.Fprintf(bw, "P6\n%d %d\n255\n", b.Dx(), b.Dy()); err != nil {
		return err
	}

	row := make([]byte, b.Dx()*3)
	rgba, fast := img.(*image.RGBA)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		if fast {
			src := rgba.Pix[rgba.PixOffset(b.Min.X, y):]
			for x := 0; x < b.Dx(); x++ {
				copy(row[x*3:x*3+3], src[x*4:x*4+3])
			}
		} else {
			for x := 0; x < b.Dx(); x++ {
				r, g, bl, _ := img.At(b.Min.X+x, y).RGBA()
				row[x*3], row[x*3+1], row[x*3+2] = byte(r>>8), byte(g>>8), byte(bl>>8)
			}
		}
		if _, err := bw.Write(row); err != nil {
			return err
		}
	}
	return bw.Flush()
}
