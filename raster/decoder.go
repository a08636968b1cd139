package raster

import (
	"bytes"
	"fmt"
	"image"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/rs/zerolog"

	_ "golang.org/x/image/webp"
)

const (
	// DefaultMaxBytes is the largest file accepted by default.
	DefaultMaxBytes int64 = 5245880
	// DefaultMaxPixels bounds the decoded buffer to 160 MiB.
	DefaultMaxPixels int64 = 40_000_000
)

// File is a dropped file as handed over by the UI layer.
type File struct {
	Name     string
	MIMEType string
	// Size is the size the UI reported. The decoder also checks len(Bytes).
	Size  int64
	Bytes []byte
}

// Options configures which files the decoder accepts.
type Options struct {
	// Allowed entries are exact MIME types ("image/png"), MIME wildcards
	// ("image/*") or file extensions (".png"). Empty allows nothing.
	Allowed []string
	// MaxBytes is the size ceiling. Zero or negative disables the check.
	MaxBytes int64
	// MaxPixels caps width*height as declared in the file header, checked
	// before any pixel data is decoded. Zero or negative disables the check.
	MaxPixels int64
}

func DefaultOptions() Options {
	return Options{
		Allowed:  []string{"image/png", "image/jpeg", "image/gif", "image/webp", "image/bmp"},
		MaxBytes:  DefaultMaxBytes,
		MaxPixels: DefaultMaxPixels,
	}
}

// Decoder validates and decodes dropped files.
type Decoder struct {
	opts Options
	log  zerolog.Logger
}

func NewDecoder(opts Options, log zerolog.Logger) *Decoder {
	return &Decoder{opts: opts, log: log.With().Str("component", "raster").Logger()}
}

// Decode checks size, then type, then the declared dimensions, then decodes. Rejections are *Error values.
func (d *Decoder) Decode(f File) (*Image, error) {
	size := max(f.Size, int64(len(f.Bytes)))
	if d.opts.MaxBytes > 0 && size > d.opts.MaxBytes {
		return nil, reject(KindTooLarge,
			fmt.Sprintf("%s is %d bytes; the limit is %d", displayName(f), size, d.opts.MaxBytes), nil)
	}

	mimeType := normalizeMIME(f.MIMEType)
	if mimeType == "" && len(f.Bytes) > 0 {
		mimeType = normalizeMIME(http.DetectContentType(f.Bytes))
	}
	if !d.allowed(mimeType, f.Name) {
		return nil, reject(KindWrongType,
			fmt.Sprintf("%s has type %q, which is not accepted", displayName(f), mimeType), nil)
	}

	if len(f.Bytes) == 0 {
		return nil, reject(KindUnreadable, fmt.Sprintf("%s is empty", displayName(f)), nil)
	}
	hdr, _, err := image.DecodeConfig(bytes.NewReader(f.Bytes))
	if err != nil {
		return nil, reject(KindUnreadable, fmt.Sprintf("%s could not be decoded", displayName(f)), err)
	}
	if pixels := int64(hdr.Width) * int64(hdr.Height); d.opts.MaxPixels > 0 && pixels > d.opts.MaxPixels {
		return nil, reject(KindTooLarge,
			fmt.Sprintf("%s is %dx%d pixels; the limit is %d pixels", displayName(f), hdr.Width, hdr.Height, d.opts.MaxPixels), nil)
	}
	src, err := imaging.Decode(bytes.NewReader(f.Bytes), imaging.AutoOrientation(true))
	if err != nil {
		return nil, reject(KindUnreadable, fmt.Sprintf("%s could not be decoded", displayName(f)), err)
	}

	img := FromImage(src)
	d.log.Debug().
		Str("file", f.Name).
		Str("mime", mimeType).
		Int("width", img.Width).
		Int("height", img.Height).
		Msg("decoded image")
	return img, nil
}

func (d *Decoder) allowed(mimeType, name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, a := range d.opts.Allowed {
		a = strings.ToLower(strings.TrimSpace(a))
		switch {
		case a == "":
			continue
		case strings.HasPrefix(a, "."):
			if ext != "" && a == ext {
				return true
			}
		case strings.HasSuffix(a, "/*"):
			if mimeType != "" && strings.HasPrefix(mimeType, strings.TrimSuffix(a, "*")) {
				return true
			}
		case a == mimeType:
			return true
		}
	}
	return false
}

func normalizeMIME(s string) string {
	if s == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(s)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(s))
	}
	return mt
}

func displayName(f File) string {
	if f.Name == "" {
		return "file"
	}
	return f.Name
}
