package pixelate

import (
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pixelate.dev/pixelate/raster"
)

func TestEncode_LosslessRoundTripOpaque(t *testing.T) {
	src := noise(37, 21, 1, true)
	img, err := Pixelate(src, cfg(4))
	require.NoError(t, err)

	back, err := Decode(img.Bytes)
	require.NoError(t, err)
	assert.Equal(t, img.Width, back.Width)
	assert.Equal(t, img.Height, back.Height)
	assert.Equal(t, img.Pix, back.Pix)
}

func TestEncode_RoundTripFlattensAlpha(t *testing.T) {
	src := noise(12, 12, 2, false)
	c := cfg(3)
	c.Background = color.NRGBA{R: 255, G: 255, B: 255, A: 255}
	img, err := Pixelate(src, c)
	require.NoError(t, err)

	back, err := Decode(img.Bytes)
	require.NoError(t, err)
	assert.Equal(t, Flatten(img.Image, c.Background).Pix, back.Pix)
}

func TestFlatten(t *testing.T) {
	m := raster.New(3, 1)
	copy(m.Pix, []uint8{
		200, 100, 50, 255, // opaque stays
		200, 100, 50, 0, // transparent becomes background
		255, 0, 0, 128, // half red over blue
	})
	out := Flatten(m, color.NRGBA{B: 255, A: 255})
	assert.Equal(t, []uint8{
		200, 100, 50, 255,
		0, 0, 255, 255,
		128, 0, 127, 255,
	}, out.Pix)
}

func TestEncode_BlockSizeOneOpaqueMatchesSource(t *testing.T) {
	src := noise(9, 9, 3, true)
	img, err := Pixelate(src, cfg(1))
	require.NoError(t, err)
	back, err := Decode(img.Bytes)
	require.NoError(t, err)
	assert.Equal(t, src.Pix, back.Pix)
}
