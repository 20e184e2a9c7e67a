// Package imaging prepares photos for the vision model: decode, flatten,
// shrink and re-encode as a compact JPEG.
package imaging

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"io"
	"os"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const (
	MaxWidth    = 1200
	MaxHeight   = 900
	JPEGQuality = 75
)

// EncodedImage is a JPEG ready to be attached to a request or inlined in a page.
type EncodedImage struct {
	Data   []byte
	Base64 string
	Width  int
	Height int
	// Resized is set when the source exceeded MaxWidth x MaxHeight.
	Resized bool
}

// MediaType is always image/jpeg since every input is re-encoded.
func (e *EncodedImage) MediaType() string { return "image/jpeg" }

// DataURL returns the image as a data: URL usable as an <img> or Image() src.
func (e *EncodedImage) DataURL() string {
	return "data:image/jpeg;base64," + e.Base64
}

// EncodeFile reads and encodes the photo at path.
func EncodeFile(path string) (*EncodedImage, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Encode(f)
}

// Encode decodes any supported format (JPEG, PNG, GIF, WebP), composites
// transparency onto white, fits the result within MaxWidth x MaxHeight and
// re-encodes it as JPEG.
func Encode(r io.Reader) (*EncodedImage, error) {
	src, _, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	b := src.Bounds()
	w, h := Fit(b.Dx(), b.Dy(), MaxWidth, MaxHeight)
	resized := w != b.Dx() || h != b.Dy()

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	if resized {
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
	} else {
		draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Over)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: JPEGQuality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}

	return &EncodedImage{
		Data:    buf.Bytes(),
		Base64:  base64.StdEncoding.EncodeToString(buf.Bytes()),
		Width:   w,
		Height:  h,
		Resized: resized,
	}, nil
}

// Fit scales w x h down to fit inside maxW x maxH keeping the aspect ratio.
// Images that already fit are returned unchanged.
func Fit(w, h, maxW, maxH int) (int, int) {
	if w <= maxW && h <= maxH {
		return w, h
	}
	scale := min(float64(maxW)/float64(w), float64(maxH)/float64(h))
	nw := max(1, int(float64(w)*scale))
	nh := max(1, int(float64(h)*scale))
	return nw, nh
}
