package ocr

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestGrayscaleProducesNeutralPixels(t *testing.T) {
	t.Parallel()

	src := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for x := range 4 {
		for y := range 4 {
			src.Set(x, y, color.RGBA{R: 200, G: 30, B: 90, A: 255})
		}
	}

	out, err := Grayscale(encodePNG(t, src))
	require.NoError(t, err)

	decoded, err := png.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, src.Bounds(), decoded.Bounds())
	r, g, b, _ := decoded.At(1, 1).RGBA()
	assert.Equal(t, r, g)
	assert.Equal(t, g, b)
}

func TestGrayscaleRejectsGarbage(t *testing.T) {
	t.Parallel()

	_, err := Grayscale([]byte("<html>not an image</html>"))
	require.ErrorIs(t, err, ErrDecode)
}

func TestNewTesseractDefaultsLanguage(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "eng", NewTesseract("").language)
	assert.Equal(t, "deu", NewTesseract("deu").language)
}
