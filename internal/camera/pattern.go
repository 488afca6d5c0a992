package camera

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"sync"
)

// Color bars: White, Yellow, Cyan, Green, Magenta, Red, Blue, Black
var testCardColors = []color.RGBA{
	{R: 255, G: 255, B: 255, A: 255},
	{R: 255, G: 255, B: 0, A: 255},
	{R: 0, G: 255, B: 255, A: 255},
	{R: 0, G: 255, B: 0, A: 255},
	{R: 255, G: 0, B: 255, A: 255},
	{R: 255, G: 0, B: 0, A: 255},
	{R: 0, G: 0, B: 255, A: 255},
	{R: 0, G: 0, B: 0, A: 255},
}

// TestCard renders color bars at the given size.
func TestCard(width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))

	barWidth := max(width/len(testCardColors), 1)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			barIndex := min(x/barWidth, len(testCardColors)-1)
			img.SetRGBA(x, y, testCardColors[barIndex])
		}
	}
	return img
}

// BlankJPEG is the 640x480 test card used when no camera frame is available.
func BlankJPEG() ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, TestCard(640, 480), &jpeg.Options{Quality: 75}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// PatternSource is a synthetic camera producing color bars.
type PatternSource struct {
	Width  int
	Height int
}

// NewPatternSource returns a synthetic camera; non-positive sizes default to 640x480.
func NewPatternSource(width, height int) *PatternSource {
	if width <= 0 || height <= 0 {
		width, height = 640, 480
	}
	return &PatternSource{Width: width, Height: height}
}

// Open grants a new pattern stream.
func (s *PatternSource) Open(ctx context.Context) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	st := &patternStream{
		frame: TestCard(s.Width, s.Height),
		done:  make(chan struct{}),
	}
	st.track = newVideoTrack("pattern", st.end)
	return st, nil
}

type patternStream struct {
	frame *image.RGBA
	track *videoTrack

	endOnce sync.Once
	done    chan struct{}
}

func (s *patternStream) Tracks() []Track { return []Track{s.track} }

func (s *patternStream) Size() (int, int) {
	if s.track.Stopped() {
		return 0, 0
	}
	b := s.frame.Bounds()
	return b.Dx(), b.Dy()
}

func (s *patternStream) Frame() (image.Image, error) {
	if s.track.Stopped() {
		return nil, ErrStreamEnded
	}
	return s.frame, nil
}

func (s *patternStream) Done() <-chan struct{} { return s.done }

func (s *patternStream) end() {
	s.endOnce.Do(func() { close(s.done) })
}
