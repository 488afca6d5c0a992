// Package archive keeps captured camera frames and their analysis results.
package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/traffix-ai/traffix-dashboard/internal/api"
	"github.com/traffix-ai/traffix-dashboard/internal/logger"
	"github.com/traffix-ai/traffix-dashboard/internal/metrics"
)

const DefaultQueueSize = 16

// Record is the JSON document stored next to each frame.
type Record struct {
	ID         string             `json:"id"`
	CapturedAt time.Time          `json:"captured_at"`
	FrameKey   string             `json:"frame_key"`
	FrameBytes int                `json:"frame_bytes"`
	Result     api.AnalysisResult `json:"result"`
}

type capture struct {
	frame  []byte
	result api.AnalysisResult
	at     time.Time
}

// Recorder writes captured frames to a Sink from a background goroutine.
type Recorder struct {
	mu        sync.RWMutex
	sink      Sink
	prefix    string
	recording bool
	metrics   *metrics.Metrics
	queue     chan capture
	wg        sync.WaitGroup

	now func() time.Time
}

// NewRecorder creates a recorder. A nil metrics set gets a private one.
func NewRecorder(sink Sink, prefix string, queueSize int, m *metrics.Metrics) *Recorder {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if m == nil {
		m = metrics.New()
	}
	return &Recorder{
		sink:    sink,
		prefix:  strings.Trim(prefix, "/"),
		metrics: m,
		queue:   make(chan capture, queueSize),
		now:     time.Now,
	}
}

// Start launches the writer goroutine.
func (r *Recorder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.recording {
		return fmt.Errorf("already recording")
	}
	r.recording = true

	r.wg.Add(1)
	go r.writeLoop()

	logger.Info("Archive", "Archive recorder started (prefix=%q, queue=%d)", r.prefix, cap(r.queue))
	return nil
}

// Stop flushes queued captures and waits for the writer to exit.
func (r *Recorder) Stop() error {
	r.mu.Lock()
	if !r.recording {
		r.mu.Unlock()
		return fmt.Errorf("not recording")
	}
	r.recording = false
	close(r.queue)
	r.mu.Unlock()

	r.wg.Wait()
	logger.Info("Archive", "Archive recorder stopped")
	return nil
}

// Submit queues a frame without blocking. It returns false when the
// recorder is stopped or the queue is full.
func (r *Recorder) Submit(frame []byte, result api.AnalysisResult) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.recording {
		return false
	}

	c := capture{
		frame:  append([]byte(nil), frame...),
		result: result,
		at:     r.now(),
	}
	select {
	case r.queue <- c:
		return true
	default:
		r.metrics.ArchiveDropped.Add(1)
		return false
	}
}

func (r *Recorder) writeLoop() {
	defer r.wg.Done()

	for c := range r.queue {
		if err := r.write(context.Background(), c); err != nil {
			r.metrics.ArchiveErrors.Add(1)
			logger.Error("Archive", "Failed to archive frame: %v", err)
			continue
		}
		r.metrics.ArchivedFrames.Add(1)
	}
}

func (r *Recorder) write(ctx context.Context, c capture) error {
	id := uuid.NewString()
	dir := path.Join(r.prefix, c.at.UTC().Format("2006-01-02"))
	frameKey := path.Join(dir, id+".jpg")

	if err := r.sink.Put(ctx, frameKey, "image/jpeg", c.frame); err != nil {
		return err
	}

	doc, err := json.Marshal(Record{
		ID:         id,
		CapturedAt: c.at,
		FrameKey:   frameKey,
		FrameBytes: len(c.frame),
		Result:     c.result,
	})
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}
	return r.sink.Put(ctx, path.Join(dir, id+".json"), "application/json", doc)
}
