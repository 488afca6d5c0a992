package dashboard

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/traffix-ai/traffix-dashboard/internal/api"
	"github.com/traffix-ai/traffix-dashboard/internal/camera"
	"github.com/traffix-ai/traffix-dashboard/internal/logger"
	"github.com/traffix-ai/traffix-dashboard/internal/metrics"
)

// API is the remote traffic analysis / toll service.
type API interface {
	Status(ctx context.Context) (api.StatusSnapshot, error)
	TollHistory(ctx context.Context) ([]api.TollHistoryEntry, error)
	Analyze(ctx context.Context, kind api.MediaKind, filename string, body io.Reader) (api.AnalysisResult, error)
	SubmitToll(ctx context.Context, plate string) (api.TollResult, error)
}

// FrameArchiver stores captured frames alongside their analysis.
type FrameArchiver interface {
	Submit(frame []byte, result api.AnalysisResult) bool
}

// Options configures a Controller.
type Options struct {
	PollInterval        time.Duration
	RefreshAfterAnalyze bool
	Camera              camera.Source
	JPEGQuality         int
	Archive             FrameArchiver
	Notifier            Notifier
	Metrics             *metrics.Metrics
}

// DefaultOptions matches the most recent dashboard revision.
func DefaultOptions() Options {
	return Options{
		PollInterval:        10 * time.Second,
		RefreshAfterAnalyze: true,
		JPEGQuality:         camera.DefaultJPEGQuality,
	}
}

// Media is a file submitted for analysis.
type Media struct {
	Kind     api.MediaKind
	Filename string
	Body     io.Reader
}

// State is a point-in-time copy of everything the dashboard displays.
type State struct {
	Status         api.StatusSnapshot     `json:"status"`
	History        []api.TollHistoryEntry `json:"history"`
	Analysis       *api.AnalysisResult    `json:"analysis"`
	Uploading      bool                   `json:"uploading"`
	SubmittingToll bool                   `json:"submitting_toll"`
	CameraOn       bool                   `json:"camera_on"`
	StatusUpdated  time.Time              `json:"status_updated,omitzero"`
	HistoryUpdated time.Time              `json:"history_updated,omitzero"`
	LastPoll       time.Time              `json:"last_poll,omitzero"`
}

// Controller owns the dashboard state. Each slice has one writer: the poll
// writes status and history, uploads write analysis and the upload flag,
// camera operations write the stream handle.
type Controller struct {
	api     API
	opts    Options
	metrics *metrics.Metrics
	notices *NoticeLog

	statusMu      sync.RWMutex
	status        api.StatusSnapshot
	statusUpdated time.Time

	historyMu      sync.RWMutex
	history        []api.TollHistoryEntry
	historyUpdated time.Time

	lastPoll atomic.Int64

	analysisMu sync.RWMutex
	analysis   *api.AnalysisResult

	uploading      atomic.Bool
	submittingToll atomic.Bool

	cameraMu      sync.Mutex
	stream        camera.Stream
	cameraOpening bool

	loopMu sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
	done   chan struct{}
	closed atomic.Bool
}

// New creates a controller. Call Start to begin polling.
func New(client API, opts Options) *Controller {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultOptions().PollInterval
	}
	if opts.JPEGQuality <= 0 {
		opts.JPEGQuality = DefaultOptions().JPEGQuality
	}
	m := opts.Metrics
	if m == nil {
		m = metrics.New()
	}

	return &Controller{
		api:     client,
		opts:    opts,
		metrics: m,
		notices: &NoticeLog{},
		status: api.StatusSnapshot{
			TrafficStatus: "Loading...",
			LastPlate:     "—",
			TollStatus:    "—",
		},
		history: []api.TollHistoryEntry{},
		done:    make(chan struct{}),
	}
}

// Start refreshes once immediately and then every PollInterval until Close
// or ctx is cancelled. Calling Start again is a no-op.
func (c *Controller) Start(ctx context.Context) {
	c.loopMu.Lock()
	defer c.loopMu.Unlock()

	if c.cancel != nil || c.closed.Load() {
		return
	}

	loopCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.wg.Add(1)
	go c.pollLoop(loopCtx)

	logger.Info("Dashboard", "Polling every %s", c.opts.PollInterval)
}

func (c *Controller) pollLoop(ctx context.Context) {
	defer c.wg.Done()

	c.Refresh(ctx)

	ticker := time.NewTicker(c.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Refresh(ctx)
		}
	}
}

// Close stops polling and releases any held camera stream. Results of
// calls still in flight are discarded.
func (c *Controller) Close() {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	close(c.done)

	c.loopMu.Lock()
	cancel := c.cancel
	c.loopMu.Unlock()
	if cancel != nil {
		cancel()
	}

	c.StopCamera()
	c.wg.Wait()

	logger.Info("Dashboard", "Controller closed")
}

// Refresh fetches status and toll history independently. A failed fetch
// leaves its slice untouched and is only logged.
func (c *Controller) Refresh(ctx context.Context) {
	started := time.Now()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		c.refreshStatus(ctx)
	}()
	go func() {
		defer wg.Done()
		c.refreshHistory(ctx)
	}()
	wg.Wait()

	c.lastPoll.Store(started.UnixNano())
	c.metrics.ObservePoll(started)
}

func (c *Controller) refreshStatus(ctx context.Context) {
	status, err := c.api.Status(ctx)
	if err != nil {
		c.metrics.StatusFetchErrors.Add(1)
		pollLog := logger.Module("Poll")
		pollLog.Warn().Err(err).Str("endpoint", "/status").Msg("status fetch failed")
		return
	}
	if c.closed.Load() {
		return
	}

	c.statusMu.Lock()
	c.status = status
	c.statusUpdated = time.Now()
	c.statusMu.Unlock()
}

func (c *Controller) refreshHistory(ctx context.Context) {
	history, err := c.api.TollHistory(ctx)
	if err != nil {
		c.metrics.HistoryFetchErrors.Add(1)
		pollLog := logger.Module("Poll")
		pollLog.Warn().Err(err).Str("endpoint", "/toll-history").Msg("history fetch failed")
		return
	}
	if c.closed.Load() {
		return
	}

	// most recent first
	reversed := slices.Clone(history)
	slices.Reverse(reversed)
	if reversed == nil {
		reversed = []api.TollHistoryEntry{}
	}

	c.historyMu.Lock()
	c.history = reversed
	c.historyUpdated = time.Now()
	c.historyMu.Unlock()

	c.metrics.HistoryEntries.Store(uint64(len(reversed)))
}

// AnalyzeMedia uploads an image or video for analysis. While another upload
// is in flight it returns ErrUploadInFlight without touching any state.
func (c *Controller) AnalyzeMedia(ctx context.Context, media Media) (api.AnalysisResult, error) {
	if media.Body == nil {
		return api.AnalysisResult{}, ErrNoMedia
	}
	if media.Kind == "" {
		media.Kind = api.MediaImage
	}

	result, err := c.analyzeGuarded(ctx, media)
	if err != nil {
		return api.AnalysisResult{}, err
	}

	if c.opts.RefreshAfterAnalyze && media.Kind == api.MediaImage {
		c.Refresh(ctx)
	}
	return result, nil
}

func (c *Controller) analyzeGuarded(ctx context.Context, media Media) (api.AnalysisResult, error) {
	if !c.uploading.CompareAndSwap(false, true) {
		c.metrics.AnalyzeRejected.Add(1)
		return api.AnalysisResult{}, ErrUploadInFlight
	}
	metrics.SetFlag(&c.metrics.UploadInFlight, true)
	defer func() {
		c.uploading.Store(false)
		metrics.SetFlag(&c.metrics.UploadInFlight, false)
	}()

	c.metrics.AnalyzeRequests.Add(1)
	started := time.Now()
	result, err := c.api.Analyze(ctx, media.Kind, media.Filename, media.Body)
	c.metrics.ObserveAnalyze(time.Since(started))

	if err != nil {
		c.metrics.AnalyzeErrors.Add(1)
		logger.Error("Analyze", "%s upload %q failed: %v", media.Kind, media.Filename, err)
		if media.Kind == api.MediaVideo {
			c.notify(NoticeError, "Video upload failed: %v", err)
		} else {
			c.notify(NoticeError, "Upload failed: %v", err)
		}
		return api.AnalysisResult{}, fmt.Errorf("analyze %s: %w", media.Kind, err)
	}
	if c.closed.Load() {
		return result, nil
	}

	c.analysisMu.Lock()
	stored := result
	c.analysis = &stored
	c.analysisMu.Unlock()

	logger.Info("Analyze", "%s %q: %d vehicles, %s", media.Kind, media.Filename, result.TotalVehicles, result.TrafficStatus)
	return result, nil
}

// StartCamera acquires a capture stream from the configured source. Only
// one stream is held at a time; calling it while the camera is on is a no-op.
func (c *Controller) StartCamera(ctx context.Context) error {
	if c.opts.Camera == nil {
		c.notify(NoticeError, "Camera unavailable: no camera source configured")
		return fmt.Errorf("%w: no camera source configured", ErrCameraUnavailable)
	}

	c.cameraMu.Lock()
	if c.stream != nil || c.cameraOpening {
		c.cameraMu.Unlock()
		return nil
	}
	c.cameraOpening = true
	c.cameraMu.Unlock()

	st, err := c.opts.Camera.Open(ctx)

	c.cameraMu.Lock()
	c.cameraOpening = false
	if err != nil {
		c.cameraMu.Unlock()
		logger.Warn("Camera", "Camera start failed: %v", err)
		c.notify(NoticeError, "Camera unavailable: %v", err)
		return fmt.Errorf("%w: %v", ErrCameraUnavailable, err)
	}
	if c.closed.Load() {
		c.cameraMu.Unlock()
		camera.StopAll(st)
		return ErrClosed
	}
	c.stream = st
	// Registered under cameraMu so Close cannot reach wg.Wait first.
	c.wg.Add(1)
	c.cameraMu.Unlock()

	metrics.SetFlag(&c.metrics.CameraActive, true)
	logger.Info("Camera", "Camera started (%d tracks)", len(st.Tracks()))

	go c.watchStream(st)
	return nil
}

// watchStream turns the camera off when the source ends the stream.
func (c *Controller) watchStream(st camera.Stream) {
	defer c.wg.Done()

	select {
	case <-st.Done():
	case <-c.done:
		return
	}

	c.cameraMu.Lock()
	revoked := c.stream == st
	if revoked {
		c.stream = nil
	}
	c.cameraMu.Unlock()

	if revoked {
		camera.StopAll(st)
		metrics.SetFlag(&c.metrics.CameraActive, false)
		logger.Warn("Camera", "Camera stream ended by source")
		c.notify(NoticeError, "Camera stream ended")
	}
}

// StopCamera stops every track of the held stream. Safe to call when no
// stream is held.
func (c *Controller) StopCamera() {
	c.cameraMu.Lock()
	st := c.stream
	c.stream = nil
	c.cameraMu.Unlock()

	if st == nil {
		return
	}
	camera.StopAll(st)
	metrics.SetFlag(&c.metrics.CameraActive, false)
	logger.Info("Camera", "Camera stopped")
}

// CaptureFrame snapshots the live camera and submits it as an image.
func (c *Controller) CaptureFrame(ctx context.Context) (api.AnalysisResult, error) {
	if c.uploading.Load() {
		c.metrics.AnalyzeRejected.Add(1)
		return api.AnalysisResult{}, ErrUploadInFlight
	}

	c.cameraMu.Lock()
	st := c.stream
	c.cameraMu.Unlock()

	if st == nil {
		c.metrics.CaptureErrors.Add(1)
		c.notify(NoticeError, "Camera not ready.")
		return api.AnalysisResult{}, fmt.Errorf("%w: camera is off", ErrCameraNotReady)
	}
	if w, h := st.Size(); w == 0 || h == 0 {
		c.metrics.CaptureErrors.Add(1)
		c.notify(NoticeError, "Camera not ready.")
		return api.AnalysisResult{}, fmt.Errorf("%w: no frames yet", ErrCameraNotReady)
	}

	frame, err := camera.Snapshot(st, c.opts.JPEGQuality)
	switch {
	case errors.Is(err, camera.ErrNotReady), errors.Is(err, camera.ErrStreamEnded):
		c.metrics.CaptureErrors.Add(1)
		c.notify(NoticeError, "Camera not ready.")
		return api.AnalysisResult{}, fmt.Errorf("%w: %v", ErrCameraNotReady, err)
	case err != nil, len(frame) == 0:
		c.metrics.CaptureErrors.Add(1)
		c.notify(NoticeError, "Invalid captured image.")
		return api.AnalysisResult{}, fmt.Errorf("%w: %v", ErrEmptyCapture, err)
	}
	c.metrics.FramesCaptured.Add(1)

	result, err := c.AnalyzeMedia(ctx, Media{
		Kind:     api.MediaImage,
		Filename: "frame.jpg",
		Body:     bytes.NewReader(frame),
	})
	if err != nil {
		return api.AnalysisResult{}, err
	}

	if c.opts.Archive != nil && !c.opts.Archive.Submit(frame, result) {
		logger.Debug("Camera", "Archive queue full, frame not archived")
	}
	return result, nil
}

// NormalizePlate trims and upper-cases a plate number.
func NormalizePlate(plate string) string {
	return strings.ToUpper(strings.TrimSpace(plate))
}

// SubmitToll posts a plate to the toll endpoint. The server decides whether
// this is an entry or an exit. State is refreshed whether or not it succeeds.
func (c *Controller) SubmitToll(ctx context.Context, plate string) (api.TollResult, error) {
	normalized := NormalizePlate(plate)
	if normalized == "" {
		c.metrics.TollRejected.Add(1)
		c.notify(NoticeError, "Enter a vehicle plate.")
		return api.TollResult{}, ErrInvalidPlate
	}

	if !c.submittingToll.CompareAndSwap(false, true) {
		c.metrics.TollRejected.Add(1)
		return api.TollResult{}, ErrTollInFlight
	}
	defer c.submittingToll.Store(false)

	c.metrics.TollRequests.Add(1)
	result, err := c.api.SubmitToll(ctx, normalized)

	c.Refresh(ctx)

	if err != nil {
		c.metrics.TollErrors.Add(1)
		logger.Error("Toll", "Toll submission for %s failed: %v", normalized, err)
		c.notify(NoticeError, "Toll submission failed: %v", err)
		return api.TollResult{}, fmt.Errorf("submit toll: %w", err)
	}

	logger.Info("Toll", "Toll submitted for %s (%s)", normalized, result.Status)
	c.notify(NoticeInfo, "%s", result.Summary(normalized))
	return result, nil
}

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() State {
	var s State

	c.statusMu.RLock()
	s.Status = c.status
	s.StatusUpdated = c.statusUpdated
	c.statusMu.RUnlock()

	c.historyMu.RLock()
	s.History = slices.Clone(c.history)
	s.HistoryUpdated = c.historyUpdated
	c.historyMu.RUnlock()
	if s.History == nil {
		s.History = []api.TollHistoryEntry{}
	}

	c.analysisMu.RLock()
	if c.analysis != nil {
		a := *c.analysis
		s.Analysis = &a
	}
	c.analysisMu.RUnlock()

	c.cameraMu.Lock()
	s.CameraOn = c.stream != nil
	c.cameraMu.Unlock()

	s.Uploading = c.uploading.Load()
	s.SubmittingToll = c.submittingToll.Load()
	if ns := c.lastPoll.Load(); ns != 0 {
		s.LastPoll = time.Unix(0, ns)
	}
	return s
}

// Notices returns recent user-facing notices, newest first.
func (c *Controller) Notices() []Notice {
	return c.notices.List()
}

// Stream returns the held camera stream, or nil when the camera is off.
func (c *Controller) Stream() camera.Stream {
	c.cameraMu.Lock()
	defer c.cameraMu.Unlock()
	return c.stream
}
