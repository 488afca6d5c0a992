package apicompat

import (
	"encoding/json"
	"io"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/traffix-ai/traffix-dashboard/internal/api"
)

const defaultRequestTimeout = 30 * time.Second

// contractClient talks to a live traffic API named by TRAFFIX_API_URL.
type contractClient struct {
	baseURL string
	client  *http.Client
	api     *api.Client
}

func newContractClient(t *testing.T) *contractClient {
	t.Helper()
	baseURL := strings.TrimRight(os.Getenv("TRAFFIX_API_URL"), "/")
	if baseURL == "" {
		t.Skip("TRAFFIX_API_URL not set; skipping live API contract tests")
	}
	client := &http.Client{Timeout: defaultRequestTimeout}

	if !isReachable(client, baseURL+"/status") {
		t.Skipf("traffic API not reachable at %s", baseURL)
	}

	apiClient, err := api.NewClient(baseURL, defaultRequestTimeout)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return &contractClient{
		baseURL: baseURL,
		client:  client,
		api:     apiClient,
	}
}

// requireWrites skips tests that change server-side toll state.
func requireWrites(t *testing.T) {
	t.Helper()
	if os.Getenv("TRAFFIX_API_ALLOW_WRITES") != "1" {
		t.Skip("TRAFFIX_API_ALLOW_WRITES=1 not set; skipping mutating contract test")
	}
}

func isReachable(client *http.Client, url string) bool {
	resp, err := client.Get(url)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 500
}

func (c *contractClient) get(t *testing.T, path string) (*http.Response, []byte) {
	t.Helper()
	resp, err := c.client.Get(c.baseURL + path)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	_ = resp.Body.Close()
	return resp, body
}

func decodeJSON[T any](t *testing.T, body []byte) T {
	t.Helper()
	var payload T
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("decode json: %v\nbody=%s", err, string(body))
	}
	return payload
}

func requireString(t *testing.T, value any, field string) string {
	t.Helper()
	str, ok := value.(string)
	if !ok {
		t.Fatalf("expected %s to be string, got %T", field, value)
	}
	return str
}

func requireNumber(t *testing.T, value any, field string) float64 {
	t.Helper()
	num, ok := value.(float64)
	if !ok {
		t.Fatalf("expected %s to be number, got %T", field, value)
	}
	return num
}

func requireOptional(t *testing.T, payload map[string]any, field string, check func(any)) {
	t.Helper()
	if v, ok := payload[field]; ok && v != nil {
		check(v)
	}
}

func requireMap(t *testing.T, value any, field string) map[string]any {
	t.Helper()
	m, ok := value.(map[string]any)
	if !ok {
		t.Fatalf("expected %s to be object, got %T", field, value)
	}
	return m
}

func assertStatusPayload(t *testing.T, payload map[string]any) {
	t.Helper()
	if n := requireNumber(t, payload["vehicle_count"], "vehicle_count"); n < 0 {
		t.Fatalf("vehicle_count is negative: %v", n)
	}
	requireString(t, payload["traffic_status"], "traffic_status")
	requireString(t, payload["last_plate"], "last_plate")
	requireString(t, payload["toll_status"], "toll_status")
}

func assertHistoryEntry(t *testing.T, payload map[string]any, field string) {
	t.Helper()
	requireString(t, payload["vehicle_number"], field+".vehicle_number")
	requireString(t, payload["entry_time"], field+".entry_time")
	requireString(t, payload["status"], field+".status")
	requireOptional(t, payload, "exit_time", func(v any) { requireString(t, v, field+".exit_time") })
	requireOptional(t, payload, "toll_amount", func(v any) { requireNumber(t, v, field+".toll_amount") })
}

func assertAnalysisPayload(t *testing.T, payload map[string]any) {
	t.Helper()
	for _, field := range []string{"total_vehicles", "cars", "bikes", "buses", "trucks"} {
		if n := requireNumber(t, payload[field], field); n < 0 {
			t.Fatalf("%s is negative: %v", field, n)
		}
	}
	requireString(t, payload["traffic_status"], "traffic_status")
}
