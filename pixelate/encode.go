package pixelate

import (
	"bytes"
	"image/color"
	"image/png"

	"github.com/disintegration/imaging"

	"pixelate.dev/pixelate/raster"
)

// Flatten composites m over an opaque background and returns a new, fully
// opaque image: c' = (c*a + bg*(255-a) + 127) / 255 per channel.
func Flatten(m *raster.Image, bg color.NRGBA) *raster.Image {
	out := &raster.Image{Width: m.Width, Height: m.Height, Pix: make([]uint8, len(m.Pix))}
	back := [3]uint32{uint32(bg.R), uint32(bg.G), uint32(bg.B)}
	for i := 0; i < len(m.Pix); i += 4 {
		a := uint32(m.Pix[i+3])
		for k := 0; k < 3; k++ {
			out.Pix[i+k] = uint8((uint32(m.Pix[i+k])*a + back[k]*(255-a) + 127) / 255)
		}
		out.Pix[i+3] = 0xff
	}
	return out
}

// Encode flattens m against bg and encodes it as PNG. PNG is lossless, so
// Decode(Encode(m, bg)) equals Flatten(m, bg) exactly.
func Encode(m *raster.Image, bg color.NRGBA) ([]byte, error) {
	var buf bytes.Buffer
	err := imaging.Encode(&buf, Flatten(m, bg).NRGBA(), imaging.PNG,
		imaging.PNGCompressionLevel(png.DefaultCompression))
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode reads encoded image bytes back into a raster.
func Decode(b []byte) (*raster.Image, error) {
	img, err := imaging.Decode(bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	return raster.FromImage(img), nil
}
