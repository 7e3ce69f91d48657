// Package geometry holds output and region value types in compositor-global
// logical coordinates.
package geometry

import (
	"fmt"
	"strconv"
	"strings"
)

// Region is an axis-aligned rectangle.
type Region struct {
	X      int32 `json:"x" yaml:"x"`
	Y      int32 `json:"y" yaml:"y"`
	Width  int32 `json:"width" yaml:"width"`
	Height int32 `json:"height" yaml:"height"`
}

// Output is one logical display as discovered from the compositor.
type Output struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	X           int32  `json:"x"`
	Y           int32  `json:"y"`
	Width       int32  `json:"width"`
	Height      int32  `json:"height"`
	Scale       int32  `json:"scale"`
}

// Bounds returns the output's rectangle in global coordinates.
func (o Output) Bounds() Region {
	return Region{X: o.X, Y: o.Y, Width: o.Width, Height: o.Height}
}

func (o Output) String() string {
	return fmt.Sprintf("%s %s", o.Name, o.Bounds())
}

// Empty reports whether the region has no area.
func (r Region) Empty() bool {
	return r.Width <= 0 || r.Height <= 0
}

// Contains reports whether all four corners of o lie within r, edges
// included. A region always contains itself.
func (r Region) Contains(o Region) bool {
	right, bottom := int64(r.X)+int64(r.Width), int64(r.Y)+int64(r.Height)
	oRight, oBottom := int64(o.X)+int64(o.Width), int64(o.Y)+int64(o.Height)
	return r.containsPoint(int64(o.X), int64(o.Y), right, bottom) &&
		r.containsPoint(oRight, int64(o.Y), right, bottom) &&
		r.containsPoint(int64(o.X), oBottom, right, bottom) &&
		r.containsPoint(oRight, oBottom, right, bottom)
}

func (r Region) containsPoint(x, y, right, bottom int64) bool {
	return x >= int64(r.X) && x <= right && y >= int64(r.Y) && y <= bottom
}

// Translate returns r shifted by (dx, dy).
func (r Region) Translate(dx, dy int32) Region {
	r.X += dx
	r.Y += dy
	return r
}

// Local converts r from global coordinates to coordinates relative to o.
func (r Region) Local(o Output) Region {
	return r.Translate(-o.X, -o.Y)
}

// String formats the region the way slurp prints it.
func (r Region) String() string {
	return fmt.Sprintf("%d,%d %dx%d", r.X, r.Y, r.Width, r.Height)
}

// ParseRegion accepts "X,Y WxH" and "X,Y,W,H".
func ParseRegion(s string) (Region, error) {
	s = strings.TrimSpace(s)
	var parts []string
	if pos, size, ok := strings.Cut(s, " "); ok {
		xy := strings.Split(pos, ",")
		wh := strings.Split(strings.TrimSpace(size), "x")
		if len(xy) != 2 || len(wh) != 2 {
			return Region{}, fmt.Errorf("invalid region %q: expected \"X,Y WxH\"", s)
		}
		parts = append(xy, wh...)
	} else {
		parts = strings.Split(s, ",")
		if len(parts) != 4 {
			return Region{}, fmt.Errorf("invalid region %q: expected \"X,Y,W,H\"", s)
		}
	}

	var vals [4]int32
	for i, p := range parts {
		v, err := strconv.ParseInt(strings.TrimSpace(p), 10, 32)
		if err != nil {
			return Region{}, fmt.Errorf("invalid region %q: %w", s, err)
		}
		vals[i] = int32(v)
	}
	return Region{X: vals[0], Y: vals[1], Width: vals[2], Height: vals[3]}, nil
}

// OutputContaining returns the first output, in discovery order, whose bounds
// fully contain r. Regions spanning several outputs match none.
func OutputContaining(outputs []Output, r Region) (Output, bool) {
	for _, o := range outputs {
		if o.Bounds().Contains(r) {
			return o, true
		}
	}
	return Output{}, false
}
