package webui

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/traffix-ai/traffix-dashboard/internal/api"
	"github.com/traffix-ai/traffix-dashboard/internal/camera"
	"github.com/traffix-ai/traffix-dashboard/internal/dashboard"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

type fakeController struct {
	mu sync.Mutex

	state   dashboard.State
	notices []dashboard.Notice
	stream  camera.Stream

	analyzeErr error
	cameraErr  error
	captureErr error
	tollErr    error

	analysis   api.AnalysisResult
	toll       api.TollResult
	lastMedia  dashboard.Media
	lastBody   string
	lastPlate  string
	stopCalled bool
}

func (f *fakeController) Snapshot() dashboard.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeController) Notices() []dashboard.Notice { return f.notices }

func (f *fakeController) AnalyzeMedia(ctx context.Context, media dashboard.Media) (api.AnalysisResult, error) {
	data, _ := io.ReadAll(media.Body)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastMedia = media
	f.lastBody = string(data)
	return f.analysis, f.analyzeErr
}

func (f *fakeController) StartCamera(ctx context.Context) error { return f.cameraErr }

func (f *fakeController) StopCamera() { f.stopCalled = true }

func (f *fakeController) CaptureFrame(ctx context.Context) (api.AnalysisResult, error) {
	return f.analysis, f.captureErr
}

func (f *fakeController) SubmitToll(ctx context.Context, plate string) (api.TollResult, error) {
	f.lastPlate = plate
	return f.toll, f.tollErr
}

func (f *fakeController) Stream() camera.Stream { return f.stream }

func newTestServer(ctrl Controller) *Server {
	cfg := DefaultConfig()
	cfg.StatusInterval = 10 * time.Millisecond
	cfg.MJPEGInterval = 10 * time.Millisecond
	return NewServer(cfg, ctrl)
}

func sampleState() dashboard.State {
	exit := "10:30"
	amount := 45.5
	return dashboard.State{
		Status: api.StatusSnapshot{VehicleCount: 5, TrafficStatus: "Heavy", LastPlate: "DL01AB1234", TollStatus: "Paid"},
		History: []api.TollHistoryEntry{
			{VehicleNumber: "B", EntryTime: "11:00", Status: "Entered"},
			{VehicleNumber: "A", EntryTime: "10:00", ExitTime: &exit, Status: "Paid", TollAmount: &amount},
		},
	}
}

func TestIndexRendersState(t *testing.T) {
	srv := newTestServer(&fakeController{state: sampleState()})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{"DL01AB1234", "Heavy", "45.50", "<td>—</td>"} {
		if !strings.Contains(body, want) {
			t.Errorf("page missing %q", want)
		}
	}
}

func TestStateAndHealth(t *testing.T) {
	srv := newTestServer(&fakeController{state: sampleState()})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/state", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var state dashboard.State
	if err := json.Unmarshal(rec.Body.Bytes(), &state); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if state.Status.VehicleCount != 5 || len(state.History) != 2 || state.History[0].VehicleNumber != "B" {
		t.Fatalf("state = %+v", state)
	}

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Fatalf("healthz = %d %s", rec.Code, rec.Body.String())
	}
}

func multipartRequest(t *testing.T, url, filename, content string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if filename != "" {
		part, err := mw.CreateFormFile("file", filename)
		if err != nil {
			t.Fatalf("CreateFormFile: %v", err)
		}
		_, _ = part.Write([]byte(content))
	}
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, url, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestAnalyzeUpload(t *testing.T) {
	ctrl := &fakeController{analysis: api.AnalysisResult{TotalVehicles: 12, Cars: 8, Bikes: 3, Buses: 1, TrafficStatus: "Moderate"}}
	srv := newTestServer(ctrl)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, multipartRequest(t, "/api/analyze?kind=video", "clip.mp4", "video-bytes"))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	if ctrl.lastMedia.Kind != api.MediaVideo || ctrl.lastMedia.Filename != "clip.mp4" || ctrl.lastBody != "video-bytes" {
		t.Fatalf("media = %+v body=%q", ctrl.lastMedia, ctrl.lastBody)
	}
	var resp struct {
		Data api.AnalysisResult `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Data.TotalVehicles != 12 {
		t.Fatalf("data = %+v", resp.Data)
	}
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"in flight", dashboard.ErrUploadInFlight, http.StatusConflict},
		{"toll in flight", dashboard.ErrTollInFlight, http.StatusConflict},
		{"validation", dashboard.ErrCameraNotReady, http.StatusBadRequest},
		{"camera unavailable", dashboard.ErrCameraUnavailable, http.StatusServiceUnavailable},
		{"api failure", &api.StatusError{Endpoint: "/analyze", StatusCode: 500}, http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(&fakeController{captureErr: tt.err})
			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/camera/capture", nil))
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestTollInFlightIsConflict(t *testing.T) {
	srv := newTestServer(&fakeController{tollErr: dashboard.ErrTollInFlight})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/toll", strings.NewReader(`{"plate":"DL01AB1234"}`))
	req.Header.Set("Content-Type", "application/json")
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusConflict, rec.Body.String())
	}
}

func TestAnalyzeRequestValidation(t *testing.T) {
	srv := newTestServer(&fakeController{})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, multipartRequest(t, "/api/analyze", "", ""))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing file status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, multipartRequest(t, "/api/analyze?kind=audio", "a.wav", "x"))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad kind status = %d", rec.Code)
	}
}

func TestTollEndpoint(t *testing.T) {
	ctrl := &fakeController{toll: api.TollResult{Status: "entry_recorded"}}
	srv := newTestServer(ctrl)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/toll", strings.NewReader(`{"plate":" dl01ab1234 "}`))
	req.Header.Set("Content-Type", "application/json")
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	if ctrl.lastPlate != " dl01ab1234 " {
		t.Fatalf("plate = %q", ctrl.lastPlate)
	}
	if !strings.Contains(rec.Body.String(), "DL01AB1234") {
		t.Fatalf("body = %s", rec.Body.String())
	}

	ctrl.tollErr = dashboard.ErrInvalidPlate
	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/toll", strings.NewReader(`{"plate":""}`))
	req.Header.Set("Content-Type", "application/json")
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("empty plate status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/toll", strings.NewReader(`not json`))
	req.Header.Set("Content-Type", "application/json")
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad json status = %d", rec.Code)
	}
}

func TestCameraEndpoints(t *testing.T) {
	ctrl := &fakeController{}
	srv := newTestServer(ctrl)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/camera/start", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("start status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/camera/stop", nil))
	if rec.Code != http.StatusOK || !ctrl.stopCalled {
		t.Fatalf("stop status = %d called=%v", rec.Code, ctrl.stopCalled)
	}

	ctrl.cameraErr = errors.Join(dashboard.ErrCameraUnavailable, camera.ErrUnavailable)
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/camera/start", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("denied start status = %d", rec.Code)
	}
}

func readFirstEvent(t *testing.T, srv *httptest.Server, accept string) (string, string) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/state/stream", nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	resp, err := http.DefaultClient.Do(req.WithContext(ctx))
	if err != nil {
		t.Fatalf("GET stream: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Fatalf("content type = %q", ct)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Text()
		if data, ok := strings.CutPrefix(line, "data: "); ok {
			return resp.Header.Get("X-Content-Format"), data
		}
	}
	t.Fatalf("no event received: %v", scanner.Err())
	return "", ""
}

func TestStateStreamJSON(t *testing.T) {
	ts := httptest.NewServer(newTestServer(&fakeController{state: sampleState()}).Handler())
	defer ts.Close()

	format, data := readFirstEvent(t, ts, "")
	if format != formatJSON {
		t.Fatalf("format = %q", format)
	}
	var state dashboard.State
	if err := json.Unmarshal([]byte(data), &state); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if state.Status.TrafficStatus != "Heavy" {
		t.Fatalf("state = %+v", state)
	}
}

func TestStateStreamProtobuf(t *testing.T) {
	ts := httptest.NewServer(newTestServer(&fakeController{state: sampleState()}).Handler())
	defer ts.Close()

	format, data := readFirstEvent(t, ts, "application/protobuf")
	if format != formatProtobuf {
		t.Fatalf("format = %q", format)
	}
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		t.Fatalf("base64: %v", err)
	}
	var msg structpb.Struct
	if err := proto.Unmarshal(raw, &msg); err != nil {
		t.Fatalf("proto: %v", err)
	}
	status := msg.GetFields()["status"].GetStructValue()
	if status.GetFields()["last_plate"].GetStringValue() != "DL01AB1234" {
		t.Fatalf("status = %v", status)
	}
	if status.GetFields()["vehicle_count"].GetNumberValue() != 5 {
		t.Fatalf("vehicle_count = %v", status.GetFields()["vehicle_count"])
	}
}

func TestCameraStreamServesFrames(t *testing.T) {
	st, err := camera.NewPatternSource(64, 48).Open(context.Background())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer camera.StopAll(st)

	ts := httptest.NewServer(newTestServer(&fakeController{stream: st}).Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/camera/stream", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "multipart/x-mixed-replace") {
		t.Fatalf("content type = %q", ct)
	}
	buf := make([]byte, 64)
	if _, err := io.ReadFull(resp.Body, buf); err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.HasPrefix(buf, []byte("--frame\r\nContent-Type: image/jpeg")) {
		t.Fatalf("unexpected frame header %q", buf)
	}
}

func TestCORSPreflight(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CORSOrigins = []string{"http://localhost:3000"}
	srv := NewServer(cfg, &fakeController{})

	req := httptest.NewRequest(http.MethodOptions, "/api/toll", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Fatalf("allow origin = %q", got)
	}
}
