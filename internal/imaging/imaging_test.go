package imaging

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pngOf(t *testing.T, w, h int, c color.Color) *bytes.Buffer {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return &buf
}

func TestFit(t *testing.T) {
	tests := []struct {
		w, h         int
		wantW, wantH int
	}{
		{800, 600, 800, 600},
		{1200, 900, 1200, 900},
		{2400, 1800, 1200, 900},
		{3000, 900, 1200, 360},
		{900, 1800, 450, 900},
	}
	for _, tt := range tests {
		w, h := Fit(tt.w, tt.h, MaxWidth, MaxHeight)
		assert.Equal(t, tt.wantW, w, "width for %dx%d", tt.w, tt.h)
		assert.Equal(t, tt.wantH, h, "height for %dx%d", tt.w, tt.h)
	}
}

func TestEncodeSmallImageKeepsSize(t *testing.T) {
	enc, err := Encode(pngOf(t, 40, 30, color.NRGBA{R: 255, A: 255}))
	require.NoError(t, err)

	assert.Equal(t, 40, enc.Width)
	assert.Equal(t, 30, enc.Height)
	assert.False(t, enc.Resized)

	decoded, err := jpeg.Decode(bytes.NewReader(enc.Data))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 40, 30), decoded.Bounds())

	raw, err := base64.StdEncoding.DecodeString(enc.Base64)
	require.NoError(t, err)
	assert.Equal(t, enc.Data, raw)
}

func TestEncodeShrinksLargeImage(t *testing.T) {
	enc, err := Encode(pngOf(t, 2400, 1200, color.NRGBA{G: 255, A: 255}))
	require.NoError(t, err)

	assert.True(t, enc.Resized)
	assert.Equal(t, 1200, enc.Width)
	assert.Equal(t, 600, enc.Height)
}

func TestEncodeFlattensTransparency(t *testing.T) {
	enc, err := Encode(pngOf(t, 8, 8, color.NRGBA{}))
	require.NoError(t, err)

	decoded, err := jpeg.Decode(bytes.NewReader(enc.Data))
	require.NoError(t, err)
	r, g, b, _ := decoded.At(4, 4).RGBA()
	assert.Greater(t, r>>8, uint32(240))
	assert.Greater(t, g>>8, uint32(240))
	assert.Greater(t, b>>8, uint32(240))
}

func TestEncodeRejectsGarbage(t *testing.T) {
	_, err := Encode(strings.NewReader("not an image"))
	assert.Error(t, err)
}

func TestDataURL(t *testing.T) {
	enc := &EncodedImage{Base64: "QUJD"}
	assert.Equal(t, "data:image/jpeg;base64,QUJD", enc.DataURL())
	assert.Equal(t, "image/jpeg", enc.MediaType())
}
