// Package pixelate implements the block-pixelation transform and the PNG
// encoding of its result.
//
// The transform partitions the image into BlockSize×BlockSize squares starting
// at (0,0) and fills each square with one representative color. Blocks on the
// right and bottom edges are clipped to the image. All arithmetic is on
// integer channel values, so identical input and config always produce
// identical output.
package pixelate

import (
	"errors"
	"fmt"
	"image/color"
	"strings"

	"pixelate.dev/pixelate/raster"
)

// DefaultBlockSize is the block edge, in pixels, used unless configured.
const DefaultBlockSize = 5

// Sampling selects the representative color of a block.
type Sampling uint8

const (
	// SampleOrigin uses the block's top-left pixel.
	SampleOrigin Sampling = iota
	// SampleAverage uses the per-channel rounded mean of the block. This is a
	// smoother alternative; it is never selected implicitly.
	SampleAverage
)

func (s Sampling) String() string {
	switch s {
	case SampleOrigin:
		return "origin"
	case SampleAverage:
		return "average"
	default:
		return fmt.Sprintf("Sampling(%d)", uint8(s))
	}
}

// ParseSampling accepts "origin" (or "") and "average".
func ParseSampling(s string) (Sampling, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "origin":
		return SampleOrigin, nil
	case "average":
		return SampleAverage, nil
	default:
		return 0, fmt.Errorf("pixelate: unknown sampling %q", s)
	}
}

// Config is the transform configuration.
type Config struct {
	BlockSize int
	Sampling  Sampling
	// Background is what translucent pixels are flattened against when
	// encoding. Its alpha is ignored.
	Background color.NRGBA
}

// DefaultConfig samples the block origin with a 5 pixel block and flattens
// against opaque black, like a canvas without an alpha channel.
func DefaultConfig() Config {
	return Config{
		BlockSize:  DefaultBlockSize,
		Sampling:   SampleOrigin,
		Background: color.NRGBA{A: 0xff},
	}
}

var ErrInvalidBlockSize = errors.New("pixelate: block size must be at least 1")

func (c Config) Validate() error {
	if c.BlockSize < 1 {
		return ErrInvalidBlockSize
	}
	if c.Sampling != SampleOrigin && c.Sampling != SampleAverage {
		return fmt.Errorf("pixelate: unknown sampling %d", c.Sampling)
	}
	return nil
}

// Image is a pixelated image. Pix has the transform's output before alpha
// flattening; Bytes is the PNG that gets uploaded. Neither is modified after
// creation.
type Image struct {
	*raster.Image
	Config Config
	Bytes  []byte
}

// Pixelate transforms src and encodes the result.
func Pixelate(src *raster.Image, cfg Config) (*Image, error) {
	out, err := Transform(src, cfg)
	if err != nil {
		return nil, err
	}
	b, err := Encode(out, cfg.Background)
	if err != nil {
		return nil, err
	}
	return &Image{Image: out, Config: cfg, Bytes: b}, nil
}

// Transform returns a new pixelated buffer with src's dimensions. src is not
// modified. BlockSize 1 returns an identical copy.
func Transform(src *raster.Image, cfg Config) (*raster.Image, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if src == nil || src.Width < 1 || src.Height < 1 || len(src.Pix) != src.Width*src.Height*4 {
		return nil, errors.New("pixelate: malformed source image")
	}

	out := &raster.Image{Width: src.Width, Height: src.Height, Pix: make([]uint8, len(src.Pix))}
	n := cfg.BlockSize
	for by := 0; by < src.Height; by += n {
		yEnd := min(by+n, src.Height)
		for bx := 0; bx < src.Width; bx += n {
			xEnd := min(bx+n, src.Width)

			var c [4]uint8
			if cfg.Sampling == SampleAverage {
				c = average(src, bx, by, xEnd, yEnd)
			} else {
				i := src.Offset(bx, by)
				copy(c[:], src.Pix[i:i+4])
			}
			fill(out, bx, by, xEnd, yEnd, c)
		}
	}
	return out, nil
}

func fill(m *raster.Image, x0, y0, x1, y1 int, c [4]uint8) {
	for y := y0; y < y1; y++ {
		row := m.Pix[m.Offset(x0, y):m.Offset(x1, y)]
		for i := 0; i < len(row); i += 4 {
			row[i], row[i+1], row[i+2], row[i+3] = c[0], c[1], c[2], c[3]
		}
	}
}

func average(m *raster.Image, x0, y0, x1, y1 int) [4]uint8 {
	var sum [4]uint64
	for y := y0; y < y1; y++ {
		row := m.Pix[m.Offset(x0, y):m.Offset(x1, y)]
		for i := 0; i < len(row); i += 4 {
			sum[0] += uint64(row[i])
			sum[1] += uint64(row[i+1])
			sum[2] += uint64(row[i+2])
			sum[3] += uint64(row[i+3])
		}
	}
	count := uint64((x1 - x0) * (y1 - y0))
	var c [4]uint8
	for k := range c {
		c[k] = uint8((sum[k] + count/2) / count)
	}
	return c
}
