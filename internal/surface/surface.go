// Package surface is a 1 bit per pixel framebuffer laid out the way UC8151
// panel RAM expects it.
//
// Panel RAM holds one gate line after another and a gate line is one logical
// column, so pixel (x, y) lives at byte x*(height/8) + y/8 under mask
// 0x80>>(y%8). A set bit is ink (black).
//
// Surface implements draw.Image for the standard library and
// drivers.Displayer for tinyfont. Every drawing call clips silently.
package surface

import (
	"fmt"
	"image"
	"image/color"

	"tinygo.org/x/drivers"
	"tinygo.org/x/tinyfont"
)

// Color is a surface pixel. On is ink.
type Color bool

const (
	Off Color = false
	On  Color = true
)

func (c Color) RGBA() (r, g, b, a uint32) {
	if c {
		return 0, 0, 0, 0xffff
	}
	return 0xffff, 0xffff, 0xffff, 0xffff
}

func (c Color) String() string {
	if c {
		return "On"
	}
	return "Off"
}

func (c Color) rgba() color.RGBA {
	if c {
		return color.RGBA{A: 0xff}
	}
	return color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
}

// Model converts any color to On when its luma is below half scale.
var Model = color.ModelFunc(convert)

func convert(c color.Color) color.Color {
	if v, ok := c.(Color); ok {
		return v
	}
	return toColor(c)
}

func toColor(c color.Color) Color {
	r, g, b, a := c.RGBA()
	if a < 0x8000 {
		return Off
	}
	y := (299*r + 587*g + 114*b) / 1000
	return Color(y < 0x8000)
}

// Style describes a rectangle. The stroke is drawn inside the bounds.
type Style struct {
	Fill        Color
	NoFill      bool
	Stroke      Color
	StrokeWidth int
}

// TextStyle describes a line of text. A nil Font uses TomThumb, a 3x5
// monospace face that fits an 8 pixel band.
type TextStyle struct {
	Font  tinyfont.Fonter
	Color Color
}

// DefaultFont is the face used when TextStyle.Font is nil.
var DefaultFont tinyfont.Fonter = &tinyfont.TomThumb

// Surface is a fixed size monochrome bitmap. The backing buffer is allocated
// once.
type Surface struct {
	w, h      int
	lineBytes int
	buf       []byte
}

// New allocates a blank (Off) surface. height must be a multiple of 8.
func New(width, height int) (*Surface, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("surface: invalid size %dx%d", width, height)
	}
	if height%8 != 0 {
		return nil, fmt.Errorf("surface: height %d is not a multiple of 8", height)
	}
	return &Surface{
		w:         width,
		h:         height,
		lineBytes: height / 8,
		buf:       make([]byte, width*height/8),
	}, nil
}

// Bytes returns the backing buffer. Callers must not modify it.
func (s *Surface) Bytes() []byte {
	return s.buf
}

// Snapshot returns a copy that does not share the buffer.
func (s *Surface) Snapshot() *Surface {
	c := *s
	c.buf = append([]byte(nil), s.buf...)
	return &c
}

func (s *Surface) Bounds() image.Rectangle {
	return image.Rect(0, 0, s.w, s.h)
}

func (s *Surface) ColorModel() color.Model {
	return Model
}

func (s *Surface) At(x, y int) color.Color {
	return s.Bit(x, y)
}

// Bit returns the pixel at (x, y). Pixels outside the surface are Off.
func (s *Surface) Bit(x, y int) Color {
	if !s.inside(x, y) {
		return Off
	}
	i, mask := s.offset(x, y)
	return s.buf[i]&mask != 0
}

func (s *Surface) Set(x, y int, c color.Color) {
	s.SetBit(x, y, toColor(c))
}

// SetBit sets one pixel. Pixels outside the surface are ignored.
func (s *Surface) SetBit(x, y int, c Color) {
	if !s.inside(x, y) {
		return
	}
	i, mask := s.offset(x, y)
	if c {
		s.buf[i] |= mask
	} else {
		s.buf[i] &^= mask
	}
}

// Clear paints the whole surface.
func (s *Surface) Clear(c Color) {
	var v byte
	if c {
		v = 0xff
	}
	for i := range s.buf {
		s.buf[i] = v
	}
}

// DrawRectangle fills the interior of r and strokes its inner border.
func (s *Surface) DrawRectangle(r image.Rectangle, st Style) {
	r = r.Canon()
	inner := r
	if st.StrokeWidth > 0 {
		inner = r.Inset(st.StrokeWidth)
		if inner.Dx() <= 0 || inner.Dy() <= 0 {
			inner = image.Rectangle{}
		}
	}
	clip := r.Intersect(s.Bounds())
	for x := clip.Min.X; x < clip.Max.X; x++ {
		for y := clip.Min.Y; y < clip.Max.Y; y++ {
			if image.Pt(x, y).In(inner) {
				if !st.NoFill {
					s.SetBit(x, y, st.Fill)
				}
				continue
			}
			s.SetBit(x, y, st.Stroke)
		}
	}
}

// DrawText renders text with its baseline starting at pos.
func (s *Surface) DrawText(pos image.Point, text string, st TextStyle) {
	const lim = 1 << 15
	if pos.X <= -lim || pos.X >= lim || pos.Y <= -lim || pos.Y >= lim {
		return
	}
	font := st.Font
	if font == nil {
		font = DefaultFont
	}
	tinyfont.WriteLine(s, font, int16(pos.X), int16(pos.Y), text, st.Color.rgba())
}

// Size, SetPixel and Display implement drivers.Displayer.
func (s *Surface) Size() (x, y int16) {
	return int16(s.w), int16(s.h)
}

func (s *Surface) SetPixel(x, y int16, c color.RGBA) {
	s.SetBit(int(x), int(y), toColor(c))
}

func (s *Surface) Display() error {
	return nil
}

func (s *Surface) String() string {
	return fmt.Sprintf("surface.Surface{%dx%d}", s.w, s.h)
}

func (s *Surface) inside(x, y int) bool {
	return x >= 0 && y >= 0 && x < s.w && y < s.h
}

func (s *Surface) offset(x, y int) (int, byte) {
	return x*s.lineBytes + y/8, 0x80 >> uint(y%8)
}

var _ drivers.Displayer = (*Surface)(nil)
