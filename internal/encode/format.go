// Package encode writes captured frames as image files.
package encode

import (
	"fmt"
	"strings"
)

// Format is an output image encoding.
type Format string

const (
	PNG  Format = "png"
	JPEG Format = "jpg"
	PPM  Format = "ppm"
	BMP  Format = "bmp"
	TIFF Format = "tiff"
)

// Formats lists every supported encoding.
var Formats = []Format{PNG, JPEG, PPM, BMP, TIFF}

// ParseFormat maps a user-supplied encoding name to a Format. An empty name
// means PNG; unknown names are an error.
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "png":
		return PNG, nil
	case "jpg", "jpeg":
		return JPEG, nil
	case "ppm":
		return PPM, nil
	case "bmp":
		return BMP, nil
	case "tif", "tiff":
		return TIFF, nil
	}
	return "", fmt.Errorf("unknown encoding %q (supported: %s)", name, formatList())
}

func formatList() string {
	names := make([]string, len(Formats))
	for i, f := range Formats {
		names[i] = string(f)
	}
	return strings.Join(names, ", ")
}

// Extension returns the file extension including the dot.
func (f Format) Extension() string {
	return "." + string(f)
}

// ContentType returns the MIME type served for the format.
func (f Format) ContentType() string {
	switch f {
	case JPEG:
		return "image/jpeg"
	case PPM:
		return "image/x-portable-pixmap"
	case BMP:
		return "image/bmp"
	case TIFF:
		return "image/tiff"
	}
	return "image/png"
}
