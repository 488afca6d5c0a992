package camera

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"

	"github.com/traffix-ai/traffix-dashboard/internal/logger"
)

// MJPEGSource reads a multipart/x-mixed-replace JPEG stream from a network camera.
type MJPEGSource struct {
	URL    string
	client *http.Client
}

// NewMJPEGSource returns a source for the given stream URL.
func NewMJPEGSource(url string, client *http.Client) *MJPEGSource {
	if client == nil {
		client = &http.Client{}
	}
	return &MJPEGSource{URL: url, client: client}
}

// Open connects to the camera. The returned stream outlives ctx; stop its
// track to disconnect.
func (s *MJPEGSource) Open(ctx context.Context) (Stream, error) {
	if strings.TrimSpace(s.URL) == "" {
		return nil, fmt.Errorf("%w: no stream url configured", ErrUnavailable)
	}

	streamCtx, cancel := context.WithCancel(context.Background())
	stopOnOpenCancel := context.AfterFunc(ctx, cancel)

	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, s.URL, nil)
	if err != nil {
		stopOnOpenCancel()
		cancel()
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	resp, err := s.client.Do(req)
	stopOnOpenCancel()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("%w: HTTP %d from %s", ErrUnavailable, resp.StatusCode, s.URL)
	}

	mediaType, params, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil || !strings.HasPrefix(mediaType, "multipart/") || params["boundary"] == "" {
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("%w: %s is not an MJPEG stream", ErrUnavailable, s.URL)
	}

	st := &mjpegStream{
		done: make(chan struct{}),
	}
	st.track = newVideoTrack("mjpeg", cancel)

	go st.read(resp.Body, params["boundary"])

	logger.Info("Camera", "Connected to MJPEG stream %s", s.URL)
	return st, nil
}

type mjpegStream struct {
	track *videoTrack
	done  chan struct{}

	mu     sync.RWMutex
	latest image.Image
	frames uint64
}

func (s *mjpegStream) read(body io.ReadCloser, boundary string) {
	defer close(s.done)
	defer body.Close()
	defer s.track.Stop()

	reader := multipart.NewReader(body, boundary)
	for {
		part, err := reader.NextPart()
		if err != nil {
			if !errors.Is(err, io.EOF) && !s.track.Stopped() {
				logger.Warn("Camera", "MJPEG stream ended: %v", err)
			}
			return
		}

		img, err := jpeg.Decode(part)
		part.Close()
		if err != nil {
			logger.Debug("Camera", "Skipping undecodable MJPEG part: %v", err)
			continue
		}

		s.mu.Lock()
		s.latest = img
		s.frames++
		s.mu.Unlock()
	}
}

func (s *mjpegStream) Tracks() []Track { return []Track{s.track} }

func (s *mjpegStream) Size() (int, int) {
	if s.track.Stopped() {
		return 0, 0
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.latest == nil {
		return 0, 0
	}
	b := s.latest.Bounds()
	return b.Dx(), b.Dy()
}

func (s *mjpegStream) Frame() (image.Image, error) {
	if s.track.Stopped() {
		return nil, ErrStreamEnded
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.latest == nil {
		return nil, ErrNotReady
	}
	return s.latest, nil
}

func (s *mjpegStream) Done() <-chan struct{} { return s.done }
