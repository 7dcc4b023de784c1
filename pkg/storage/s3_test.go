package storage

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func alphaPNG(t *testing.T, w, h int) []byte {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.NRGBA{R: 10, G: 20, B: 30, A: 128})
	return encodePNG(t, img)
}

func opaquePNG(t *testing.T, w, h int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 40, G: 40, B: 40, A: 255})
		}
	}
	return encodePNG(t, img)
}

func jpegBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, image.NewYCbCr(image.Rect(0, 0, w, h), image.YCbCrSubsampleRatio420), nil))
	return buf.Bytes()
}

func TestValidateLogoPNG(t *testing.T) {
	v, err := ValidateLogo("image/png", alphaPNG(t, 200, 200))
	require.NoError(t, err)
	require.Equal(t, ".png", v.Ext)
	require.Empty(t, v.Warning)
}

func TestValidateLogoPNGWithoutAlphaWarns(t *testing.T) {
	v, err := ValidateLogo("image/png", opaquePNG(t, 256, 256))
	require.NoError(t, err)
	require.Contains(t, v.Warning, "alpha channel")
}

func TestValidateLogoJPEG(t *testing.T) {
	v, err := ValidateLogo("image/jpeg; charset=binary", jpegBytes(t, 300, 200))
	require.NoError(t, err)
	require.Equal(t, "image/jpeg", v.ContentType)
	require.Equal(t, ".jpg", v.Ext)
}

func TestValidateLogoSVGSkipsDimensions(t *testing.T) {
	v, err := ValidateLogo("image/svg+xml", []byte(`<svg xmlns="http://www.w3.org/2000/svg"/>`))
	require.NoError(t, err)
	require.Equal(t, ".svg", v.Ext)
}

func TestValidateLogoRejectsUnsupportedType(t *testing.T) {
	_, err := ValidateLogo("image/gif", []byte("GIF89a"))
	require.ErrorContains(t, err, "unsupported logo type")
}

func TestValidateLogoRejectsOversize(t *testing.T) {
	_, err := ValidateLogo("image/svg+xml", make([]byte, MaxLogoSize+1))
	require.ErrorContains(t, err, "2MB limit")
}

func TestValidateLogoRejectsSmallRaster(t *testing.T) {
	_, err := ValidateLogo("image/png", alphaPNG(t, 199, 400))
	require.ErrorContains(t, err, "at least 200x200")

	_, err = ValidateLogo("image/jpeg", jpegBytes(t, 400, 100))
	require.ErrorContains(t, err, "at least 200x200")
}

func TestValidateLogoRejectsCorruptData(t *testing.T) {
	_, err := ValidateLogo("image/png", []byte("not a png"))
	require.ErrorContains(t, err, "invalid PNG")
}

func TestLogoKey(t *testing.T) {
	key := LogoKey("0f0e9a68-1111-4222-8333-444455556666", ".png")
	require.True(t, strings.HasPrefix(key, "0f0e9a68-1111-4222-8333-444455556666/logo-"))
	require.True(t, strings.HasSuffix(key, ".png"))
}
