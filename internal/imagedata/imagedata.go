// Package imagedata decodes images uploaded as base64 data URIs and bounds
// their size before they reach a vision model.
package imagedata

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/abhisek/vizlearn/internal/content"
)

const (
	// DefaultMaxBytes bounds the decoded image size.
	DefaultMaxBytes = 5 << 20

	// DefaultMaxDimension bounds the longer image side. Larger images are
	// scaled down.
	DefaultMaxDimension = 2048

	// DefaultMaxPixels bounds width×height so a small, highly compressed
	// file cannot expand into a huge bitmap on decode.
	DefaultMaxPixels = 40_000_000

	jpegQuality = 85
)

// Accepted lists the image types vision backends take.
var Accepted = []string{"image/jpeg", "image/png", "image/webp", "image/gif"}

// Options bounds decoded images. Zero fields fall back to the defaults.
type Options struct {
	MaxBytes     int
	MaxDimension int
	MaxPixels    int
}

func (o Options) withDefaults() Options {
	if o.MaxBytes <= 0 {
		o.MaxBytes = DefaultMaxBytes
	}
	if o.MaxDimension <= 0 {
		o.MaxDimension = DefaultMaxDimension
	}
	if o.MaxPixels <= 0 {
		o.MaxPixels = DefaultMaxPixels
	}
	return o
}

// Decode parses a "data:<type>;base64,<payload>" URI or a bare base64
// string. The declared type is ignored; the content is sniffed instead.
func Decode(input string, opts Options) (*content.Image, error) {
	opts = opts.withDefaults()

	payload, err := stripDataURI(strings.TrimSpace(input))
	if err != nil {
		return nil, invalid(err.Error())
	}
	if payload == "" {
		return nil, invalid("image must not be empty")
	}
	if base64.StdEncoding.DecodedLen(len(payload)) > opts.MaxBytes+3 {
		return nil, invalid(fmt.Sprintf("image exceeds %d bytes", opts.MaxBytes))
	}

	data, err := decodeBase64(payload)
	if err != nil {
		return nil, invalid("image is not valid base64")
	}
	if len(data) > opts.MaxBytes {
		return nil, invalid(fmt.Sprintf("image exceeds %d bytes", opts.MaxBytes))
	}

	mimeType := mimetype.Detect(data).String()
	if !mimetype.EqualsAny(mimeType, Accepted...) {
		return nil, invalid(fmt.Sprintf("unsupported image type %s", mimeType))
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, invalid("image cannot be decoded")
	}
	if int64(cfg.Width)*int64(cfg.Height) > int64(opts.MaxPixels) {
		return nil, invalid(fmt.Sprintf("image is %dx%d, more than %d pixels", cfg.Width, cfg.Height, opts.MaxPixels))
	}

	img := &content.Image{MIMEType: mimeType, Data: data, Width: cfg.Width, Height: cfg.Height}
	if cfg.Width <= opts.MaxDimension && cfg.Height <= opts.MaxDimension {
		return img, nil
	}
	return downscale(img, opts.MaxDimension)
}

func stripDataURI(s string) (string, error) {
	if !strings.HasPrefix(s, "data:") {
		return s, nil
	}
	header, payload, ok := strings.Cut(s, ",")
	if !ok {
		return "", fmt.Errorf("malformed data URI")
	}
	if !strings.HasSuffix(header, ";base64") {
		return "", fmt.Errorf("data URI must be base64 encoded")
	}
	return payload, nil
}

func decodeBase64(s string) ([]byte, error) {
	s = strings.Map(func(r rune) rune {
		switch r {
		case '\n', '\r', ' ', '\t':
			return -1
		}
		return r
	}, s)
	if data, err := base64.StdEncoding.DecodeString(s); err == nil {
		return data, nil
	}
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
}

// downscale fits img inside a limit×limit box. PNG stays PNG; every other type
// is re-encoded as JPEG.
func downscale(img *content.Image, limit int) (*content.Image, error) {
	src, _, err := image.Decode(bytes.NewReader(img.Data))
	if err != nil {
		return nil, invalid("image cannot be decoded")
	}

	w, h := fit(img.Width, img.Height, limit)
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)

	var buf bytes.Buffer
	out := &content.Image{Width: w, Height: h}
	if img.MIMEType == "image/png" {
		err = png.Encode(&buf, dst)
		out.MIMEType = "image/png"
	} else {
		err = jpeg.Encode(&buf, dst, &jpeg.Options{Quality: jpegQuality})
		out.MIMEType = "image/jpeg"
	}
	if err != nil {
		return nil, fmt.Errorf("re-encode image: %w", err)
	}
	out.Data = buf.Bytes()
	return out, nil
}

func fit(w, h, limit int) (int, int) {
	if w >= h {
		return limit, max(1, h*limit/w)
	}
	return max(1, w*limit/h), limit
}

func invalid(msg string) error {
	return &content.InvalidInputError{Field: "file", Message: msg}
}
