// Package ocr prepares panel images and reads their text with Tesseract.
package ocr

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/disintegration/imaging"
	"github.com/otiai10/gosseract/v2"

	// Panels are occasionally served as WebP.
	_ "golang.org/x/image/webp"
)

// ErrDecode marks bytes that are not a supported image.
var ErrDecode = errors.New("decode image")

// Engine extracts the raw text of an image.
type Engine interface {
	Text(ctx context.Context, image []byte) (string, error)
}

// Grayscale decodes data, converts it to grayscale and re-encodes it as PNG.
func Grayscale(data []byte) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, imaging.Grayscale(img), imaging.PNG); err != nil {
		return nil, fmt.Errorf("encode grayscale: %w", err)
	}
	return buf.Bytes(), nil
}

// Tesseract runs OCR through gosseract. A client is created per call because
// gosseract clients are not safe for concurrent use.
type Tesseract struct {
	language string
}

var _ Engine = (*Tesseract)(nil)

// NewTesseract builds an engine for the given Tesseract language code.
func NewTesseract(language string) *Tesseract {
	if language == "" {
		language = "eng"
	}
	return &Tesseract{language: language}
}

// Text recognizes the text of an encoded image.
func (t *Tesseract) Text(ctx context.Context, image []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("ocr canceled: %w", err)
	}
	client := gosseract.NewClient()
	defer func() { _ = client.Close() }()

	if err := client.SetLanguage(t.language); err != nil {
		return "", fmt.Errorf("set ocr language: %w", err)
	}
	if err := client.SetImageFromBytes(image); err != nil {
		return "", fmt.Errorf("load ocr image: %w", err)
	}
	text, err := client.Text()
	if err != nil {
		return "", fmt.Errorf("recognize text: %w", err)
	}
	return text, nil
}
