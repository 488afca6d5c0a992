// Package camera abstracts the host capture device: a Source grants a
// Stream made of Tracks, and a Stream can be snapshotted into a JPEG.
package camera

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"sync/atomic"
)

var (
	// ErrUnavailable is returned by a Source that cannot grant a stream.
	ErrUnavailable = errors.New("camera unavailable")
	// ErrNotReady means the stream has not produced a frame yet.
	ErrNotReady = errors.New("camera not ready")
	// ErrStreamEnded is returned when reading from a stopped or revoked stream.
	ErrStreamEnded = errors.New("camera stream ended")
)

// Source grants exclusive video capture streams.
type Source interface {
	Open(ctx context.Context) (Stream, error)
}

// Track is one constituent of a stream. Stop is idempotent.
type Track interface {
	ID() string
	Kind() string
	Stop()
	Stopped() bool
}

// Stream is a live capture handle.
type Stream interface {
	Tracks() []Track
	// Size reports the native frame size; zero until the first frame arrives.
	Size() (width, height int)
	// Frame returns the most recent frame.
	Frame() (image.Image, error)
	// Done is closed when the stream ends, including revocation by the source.
	Done() <-chan struct{}
}

// StopAll stops every track of s. A nil stream is ignored.
func StopAll(s Stream) {
	if s == nil {
		return
	}
	for _, track := range s.Tracks() {
		track.Stop()
	}
}

var trackSeq atomic.Uint64

// videoTrack is the single video track our sources hand out.
type videoTrack struct {
	id      string
	once    sync.Once
	stopped atomic.Bool
	onStop  func()
}

func newVideoTrack(label string, onStop func()) *videoTrack {
	return &videoTrack{
		id:     fmt.Sprintf("%s-video-%d", label, trackSeq.Add(1)),
		onStop: onStop,
	}
}

func (t *videoTrack) ID() string    { return t.id }
func (t *videoTrack) Kind() string  { return "video" }
func (t *videoTrack) Stopped() bool { return t.stopped.Load() }

func (t *videoTrack) Stop() {
	t.once.Do(func() {
		t.stopped.Store(true)
		if t.onStop != nil {
			t.onStop()
		}
	})
}
