// Package raster turns dropped image files into fixed-size RGBA buffers.
package raster

import (
	"image"
	"image/color"
	"image/draw"
)

// Image is a decoded raster: non-premultiplied RGBA, row-major, four bytes
// per pixel, no padding between rows. Width and Height are at least 1.
//
// An Image is never modified after it is returned from this package; code
// that derives a new buffer must allocate its own.
type Image struct {
	Width  int
	Height int
	Pix    []uint8
}

// New returns a zeroed (transparent black) image, flooring both dimensions to 1.
func New(width, height int) *Image {
	width, height = max(width, 1), max(height, 1)
	return &Image{Width: width, Height: height, Pix: make([]uint8, width*height*4)}
}

// Offset is the index of the pixel at (x, y) in Pix.
func (m *Image) Offset(x, y int) int {
	return (y*m.Width + x) * 4
}

// RGBA returns the pixel at (x, y).
func (m *Image) RGBA(x, y int) color.NRGBA {
	i := m.Offset(x, y)
	return color.NRGBA{R: m.Pix[i], G: m.Pix[i+1], B: m.Pix[i+2], A: m.Pix[i+3]}
}

// NRGBA exposes the buffer as an *image.NRGBA without copying.
func (m *Image) NRGBA() *image.NRGBA {
	return &image.NRGBA{Pix: m.Pix, Stride: m.Width * 4, Rect: image.Rect(0, 0, m.Width, m.Height)}
}

// Clone returns a deep copy.
func (m *Image) Clone() *Image {
	return &Image{Width: m.Width, Height: m.Height, Pix: append([]uint8(nil), m.Pix...)}
}

// Uniform returns a width×height image filled with c.
func Uniform(width, height int, c color.NRGBA) *Image {
	m := New(width, height)
	for i := 0; i < len(m.Pix); i += 4 {
		m.Pix[i], m.Pix[i+1], m.Pix[i+2], m.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	return m
}

// FromImage copies any bitmap into an Image, translating its bounds to the
// origin. Empty bounds give a 1×1 transparent image.
func FromImage(src image.Image) *Image {
	b := src.Bounds()
	m := New(b.Dx(), b.Dy())
	if b.Empty() {
		return m
	}
	if n, ok := src.(*image.NRGBA); ok {
		for y := 0; y < m.Height; y++ {
			row := n.PixOffset(b.Min.X, b.Min.Y+y)
			copy(m.Pix[m.Offset(0, y):m.Offset(0, y+1)], n.Pix[row:row+m.Width*4])
		}
		return m
	}
	draw.Draw(m.NRGBA(), image.Rect(0, 0, m.Width, m.Height), src, b.Min, draw.Src)
	return m
}
