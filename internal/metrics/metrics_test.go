package metrics

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestHandlerExposesDashboardMetrics(t *testing.T) {
	m := New()
	m.StatusFetchErrors.Add(2)
	SetFlag(&m.CameraActive, true)
	m.ObservePoll(time.Now())

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET metrics: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read metrics: %v", err)
	}
	text := string(body)

	mustContain := []string{
		"traffix_status_fetch_errors_total 2",
		"traffix_camera_active 1",
		"traffix_polls_total 1",
		"traffix_upload_in_flight 0",
	}
	for _, needle := range mustContain {
		if !strings.Contains(text, needle) {
			t.Fatalf("metrics output missing %q", needle)
		}
	}
}

func TestSetFlag(t *testing.T) {
	m := New()
	SetFlag(&m.UploadInFlight, true)
	if m.UploadInFlight.Load() != 1 {
		t.Fatalf("expected flag set")
	}
	SetFlag(&m.UploadInFlight, false)
	if m.UploadInFlight.Load() != 0 {
		t.Fatalf("expected flag cleared")
	}
}

func TestServerServesMetricsAndShutsDown(t *testing.T) {
	m := New()
	srv := m.NewServer("127.0.0.1:0")

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	served := make(chan error, 1)
	go func() { served <- srv.Serve(ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "traffix_polls_total") {
		t.Fatalf("status = %d body = %q", resp.StatusCode, body)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	select {
	case err := <-served:
		if !errors.Is(err, http.ErrServerClosed) {
			t.Fatalf("Serve returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Serve did not return after Shutdown")
	}
}
