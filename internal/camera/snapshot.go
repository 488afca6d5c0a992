package camera

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"

	"golang.org/x/image/draw"
)

// ErrEmptyFrame is returned when encoding produced no bytes.
var ErrEmptyFrame = errors.New("captured image is empty")

// DefaultJPEGQuality is used when a non-positive quality is requested.
const DefaultJPEGQuality = 85

// Snapshot renders the stream's current frame into an offscreen bitmap of
// the stream's native size and encodes it as JPEG.
func Snapshot(s Stream, quality int) ([]byte, error) {
	if s == nil {
		return nil, ErrNotReady
	}
	width, height := s.Size()
	if width <= 0 || height <= 0 {
		return nil, ErrNotReady
	}

	frame, err := s.Frame()
	if err != nil {
		return nil, err
	}

	canvas := image.NewRGBA(image.Rect(0, 0, width, height))
	src := frame.Bounds()
	if src.Dx() == width && src.Dy() == height {
		draw.Draw(canvas, canvas.Bounds(), frame, src.Min, draw.Src)
	} else {
		// frame changed size between Size and Frame; fit it to the reported size
		draw.ApproxBiLinear.Scale(canvas, canvas.Bounds(), frame, src, draw.Src, nil)
	}

	return EncodeJPEG(canvas, quality)
}

// EncodeJPEG encodes img, failing on an empty result.
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	if quality <= 0 || quality > 100 {
		quality = DefaultJPEGQuality
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	if buf.Len() == 0 {
		return nil, ErrEmptyFrame
	}
	return buf.Bytes(), nil
}
