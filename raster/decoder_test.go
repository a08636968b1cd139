package raster

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func gradient(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x * 10), G: uint8(y * 10), B: uint8(x + y), A: 255})
		}
	}
	return img
}

func TestDecode_PNG(t *testing.T) {
	src := gradient(7, 3)
	d := NewDecoder(DefaultOptions(), zerolog.Nop())

	img, err := d.Decode(File{Name: "g.png", MIMEType: "image/png", Bytes: encodePNG(t, src)})
	require.NoError(t, err)
	assert.Equal(t, 7, img.Width)
	assert.Equal(t, 3, img.Height)
	assert.Len(t, img.Pix, 7*3*4)
	assert.Equal(t, src.NRGBAAt(4, 2), img.RGBA(4, 2))
}

func TestDecode_JPEG(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, gradient(16, 8), &jpeg.Options{Quality: 90}))

	d := NewDecoder(DefaultOptions(), zerolog.Nop())
	img, err := d.Decode(File{Name: "g.jpg", MIMEType: "image/jpeg", Bytes: buf.Bytes()})
	require.NoError(t, err)
	assert.Equal(t, 16, img.Width)
	assert.Equal(t, 8, img.Height)
	for i := 3; i < len(img.Pix); i += 4 {
		require.Equal(t, uint8(255), img.Pix[i], "jpeg is opaque")
	}
}

func TestDecode_Rejections(t *testing.T) {
	good := encodePNG(t, gradient(2, 2))

	cases := []struct {
		name string
		opts Options
		file File
		kind Kind
	}{
		{
			name: "reported size over limit",
			opts: Options{Allowed: []string{"image/png"}, MaxBytes: 10},
			file: File{Name: "a.png", MIMEType: "image/png", Size: 11, Bytes: good[:5]},
			kind: KindTooLarge,
		},
		{
			name: "actual bytes over limit",
			opts: Options{Allowed: []string{"image/png"}, MaxBytes: 10},
			file: File{Name: "a.png", MIMEType: "image/png", Size: 1, Bytes: good},
			kind: KindTooLarge,
		},
		{
			name: "type not allowed",
			opts: Options{Allowed: []string{"image/png"}},
			file: File{Name: "a.gif", MIMEType: "image/gif", Bytes: good},
			kind: KindWrongType,
		},
		{
			name: "sniffed text",
			opts: DefaultOptions(),
			file: File{Name: "notes", Bytes: []byte("just some text")},
			kind: KindWrongType,
		},
		{
			name: "garbage with image type",
			opts: DefaultOptions(),
			file: File{Name: "broken.png", MIMEType: "image/png", Bytes: []byte("\x89PNG\r\n\x1a\nnope")},
			kind: KindUnreadable,
		},
		{
			name: "empty",
			opts: DefaultOptions(),
			file: File{Name: "empty.png", MIMEType: "image/png"},
			kind: KindUnreadable,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewDecoder(tc.opts, zerolog.Nop()).Decode(tc.file)
			require.Error(t, err)
			assert.True(t, IsKind(err, tc.kind), "got %v", err)
		})
	}
}

// withDimensions rewrites the IHDR of a PNG to claim w x h pixels, keeping
// the chunk checksum valid. The pixel data is left as it was.
func withDimensions(t *testing.T, b []byte, w, h uint32) []byte {
	t.Helper()
	require.Equal(t, "IHDR", string(b[12:16]))
	out := append([]byte(nil), b...)
	binary.BigEndian.PutUint32(out[16:20], w)
	binary.BigEndian.PutUint32(out[20:24], h)
	binary.BigEndian.PutUint32(out[29:33], crc32.ChecksumIEEE(out[12:29]))
	return out
}

func TestDecode_DeclaredDimensionsOverLimit(t *testing.T) {
	huge := withDimensions(t, encodePNG(t, gradient(2, 2)), 30000, 30000)
	require.Less(t, int64(len(huge)), DefaultMaxBytes)

	_, err := NewDecoder(DefaultOptions(), zerolog.Nop()).Decode(File{Name: "huge.png", MIMEType: "image/png", Bytes: huge})
	require.Error(t, err)
	assert.True(t, IsKind(err, KindTooLarge), "got %v", err)
	assert.Contains(t, err.Error(), "30000x30000")

	opts := DefaultOptions()
	opts.MaxPixels = 12
	d := NewDecoder(opts, zerolog.Nop())
	_, err = d.Decode(File{Name: "g.png", MIMEType: "image/png", Bytes: encodePNG(t, gradient(4, 3))})
	require.NoError(t, err)
	_, err = d.Decode(File{Name: "g.png", MIMEType: "image/png", Bytes: encodePNG(t, gradient(5, 3))})
	assert.True(t, IsKind(err, KindTooLarge), "got %v", err)
}

func TestDecode_AllowListForms(t *testing.T) {
	good := encodePNG(t, gradient(2, 2))

	byWildcard := NewDecoder(Options{Allowed: []string{"image/*"}}, zerolog.Nop())
	_, err := byWildcard.Decode(File{Name: "x", MIMEType: "image/png; charset=binary", Bytes: good})
	require.NoError(t, err)

	byExt := NewDecoder(Options{Allowed: []string{".PNG"}}, zerolog.Nop())
	_, err = byExt.Decode(File{Name: "x.png", MIMEType: "application/octet-stream", Bytes: good})
	require.NoError(t, err)

	sniffed := NewDecoder(Options{Allowed: []string{"image/png"}}, zerolog.Nop())
	_, err = sniffed.Decode(File{Name: "x", Bytes: good})
	require.NoError(t, err)
}

func TestFromImage_TranslatesBounds(t *testing.T) {
	src := image.NewRGBA(image.Rect(5, 5, 8, 7))
	src.Set(5, 5, color.RGBA{R: 1, G: 2, B: 3, A: 255})
	img := FromImage(src)
	assert.Equal(t, 3, img.Width)
	assert.Equal(t, 2, img.Height)
	assert.Equal(t, color.NRGBA{R: 1, G: 2, B: 3, A: 255}, img.RGBA(0, 0))

	empty := FromImage(image.NewNRGBA(image.Rect(0, 0, 0, 0)))
	assert.Equal(t, 1, empty.Width)
	assert.Equal(t, 1, empty.Height)
}
