package epd

import (
	"fmt"
	"image"
)

// Geometry is the logical (landscape) size of the panel in pixels.
//
// The UC8151 scans Width gate lines of Height source pixels each. Panel RAM
// is stored one gate line after another, so a logical column x occupies the
// Height/8 bytes starting at x*Height/8, most significant bit on top.
type Geometry struct {
	Width  int
	Height int
}

// Resolutions supported by the PSR resolution bits.
var (
	Geometry230x96  = Geometry{Width: 230, Height: 96}
	Geometry252x96  = Geometry{Width: 252, Height: 96}
	Geometry296x128 = Geometry{Width: 296, Height: 128}
	Geometry296x160 = Geometry{Width: 296, Height: 160}
)

// DefaultGeometry matches the 2.9" badger panel.
var DefaultGeometry = Geometry296x128

func (g Geometry) resolutionBits() (byte, bool) {
	switch g {
	case Geometry230x96:
		return psrRes96x230, true
	case Geometry252x96:
		return psrRes96x252, true
	case Geometry296x128:
		return psrRes128x296, true
	case Geometry296x160:
		return psrRes160x296, true
	}
	return 0, false
}

// Validate reports whether the controller can drive a panel of this size.
func (g Geometry) Validate() error {
	if _, ok := g.resolutionBits(); !ok {
		return fmt.Errorf("epd: unsupported geometry %dx%d", g.Width, g.Height)
	}
	return nil
}

// Bounds returns the addressable rectangle [0, Width) x [0, Height).
func (g Geometry) Bounds() image.Rectangle {
	return image.Rect(0, 0, g.Width, g.Height)
}

// LineBytes is the number of bytes in one gate line of panel RAM.
func (g Geometry) LineBytes() int {
	return g.Height / 8
}

// BufferSize is the size of a full frame in bytes.
func (g Geometry) BufferSize() int {
	return g.Width * g.LineBytes()
}

func (g Geometry) String() string {
	return fmt.Sprintf("%dx%d", g.Width, g.Height)
}

// Region is the rectangle pushed by a partial update.
type Region struct {
	X, Y          int
	Width, Height int
}

// RegionFromRect converts an image rectangle to a Region.
func RegionFromRect(r image.Rectangle) Region {
	return Region{X: r.Min.X, Y: r.Min.Y, Width: r.Dx(), Height: r.Dy()}
}

// Rect returns r as an image rectangle.
func (r Region) Rect() image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.Width, r.Y+r.Height)
}

func (r Region) String() string {
	return fmt.Sprintf("(%d,%d)+%dx%d", r.X, r.Y, r.Width, r.Height)
}

// CheckRegion validates r against g. The source axis (Y) is addressed in
// whole bytes, so Y and Height must be multiples of 8.
func (g Geometry) CheckRegion(r Region) error {
	switch {
	case r.Width <= 0 || r.Height <= 0:
		return fmt.Errorf("%w: %s is empty", ErrInvalidRegion, r)
	case r.X < 0 || r.Y < 0:
		return fmt.Errorf("%w: %s outside %s", ErrInvalidRegion, r, g)
	case r.X > g.Width || r.Width > g.Width-r.X || r.Y > g.Height || r.Height > g.Height-r.Y:
		return fmt.Errorf("%w: %s outside %s", ErrInvalidRegion, r, g)
	case r.Y%8 != 0 || r.Height%8 != 0:
		return fmt.Errorf("%w: %s not aligned to 8 rows", ErrInvalidRegion, r)
	}
	return nil
}

// window encodes r as PTL parameters: source start/end, then the 9-bit gate
// start/end split into high and low bytes.
func (r Region) window() []byte {
	xEnd := r.X + r.Width - 1
	return []byte{
		byte(r.Y),
		byte(r.Y + r.Height - 1),
		byte(r.X >> 8), byte(r.X),
		byte(xEnd >> 8), byte(xEnd),
		partialScanOut,
	}
}
