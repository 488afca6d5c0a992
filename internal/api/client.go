package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"path/filepath"
	"strings"
	"time"
)

var (
	// ErrMalformedResponse is returned when a response body does not match the endpoint's shape.
	ErrMalformedResponse = errors.New("malformed response")
)

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Endpoint   string
	StatusCode int
	Detail     string
}

func (e *StatusError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: HTTP %d: %s", e.Endpoint, e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("%s: HTTP %d", e.Endpoint, e.StatusCode)
}

// Client talks to the traffic analysis / toll API.
type Client struct {
	baseURL *url.URL
	http    *http.Client
}

// NewClient returns a client for the API rooted at baseURL. A zero timeout
// leaves requests bounded only by the caller's context and the transport.
func NewClient(baseURL string, timeout time.Duration) (*Client, error) {
	parsed, err := ParseBaseURL(baseURL)
	if err != nil {
		return nil, err
	}
	return &Client{
		baseURL: parsed,
		http:    &http.Client{Timeout: timeout},
	}, nil
}

// WithHTTPClient swaps the underlying HTTP client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.http = hc
	return c
}

// BaseURL returns the normalized API root.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// ParseBaseURL validates and normalizes an API root URL.
func ParseBaseURL(raw string) (*url.URL, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, errors.New("api base url cannot be empty")
	}
	parsed, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("invalid api base url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, errors.New("api base url must use http or https")
	}
	if parsed.Host == "" {
		return nil, errors.New("api base url must include a host")
	}
	parsed.Path = strings.TrimRight(parsed.Path, "/")
	parsed.RawQuery = ""
	parsed.Fragment = ""
	return parsed, nil
}

// Status fetches GET /status.
func (c *Client) Status(ctx context.Context) (StatusSnapshot, error) {
	var status StatusSnapshot
	if err := c.getJSON(ctx, "/status", &status, false); err != nil {
		return StatusSnapshot{}, err
	}
	if err := status.validate(); err != nil {
		return StatusSnapshot{}, fmt.Errorf("/status: %w", err)
	}
	return status, nil
}

// TollHistory fetches GET /toll-history in server order (oldest first).
func (c *Client) TollHistory(ctx context.Context) ([]TollHistoryEntry, error) {
	var history []TollHistoryEntry
	if err := c.getJSON(ctx, "/toll-history", &history, true); err != nil {
		return nil, err
	}
	if history == nil {
		history = []TollHistoryEntry{}
	}
	return history, nil
}

// Analyze uploads a file to /analyze or /analyze-video as multipart field "file".
func (c *Client) Analyze(ctx context.Context, kind MediaKind, filename string, body io.Reader) (AnalysisResult, error) {
	endpoint := kind.endpoint()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreatePart(filePartHeader(filename))
	if err != nil {
		return AnalysisResult{}, fmt.Errorf("%s: build form: %w", endpoint, err)
	}
	if _, err := io.Copy(part, body); err != nil {
		return AnalysisResult{}, fmt.Errorf("%s: read upload: %w", endpoint, err)
	}
	if err := mw.Close(); err != nil {
		return AnalysisResult{}, fmt.Errorf("%s: build form: %w", endpoint, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpointURL(endpoint), &buf)
	if err != nil {
		return AnalysisResult{}, fmt.Errorf("%s: build request: %w", endpoint, err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	var result AnalysisResult
	if err := c.do(req, endpoint, &result, false); err != nil {
		return AnalysisResult{}, err
	}
	if err := result.validate(); err != nil {
		return AnalysisResult{}, fmt.Errorf("%s: %w", endpoint, err)
	}
	return result, nil
}

// SubmitToll posts {"plate": plate} to /ai/toll.
func (c *Client) SubmitToll(ctx context.Context, plate string) (TollResult, error) {
	const endpoint = "/ai/toll"

	data, err := json.Marshal(map[string]string{"plate": plate})
	if err != nil {
		return TollResult{}, fmt.Errorf("%s: encode: %w", endpoint, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpointURL(endpoint), bytes.NewReader(data))
	if err != nil {
		return TollResult{}, fmt.Errorf("%s: build request: %w", endpoint, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	var result TollResult
	if err := c.do(req, endpoint, &result, true); err != nil {
		return TollResult{}, err
	}
	return result, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, out any, allowEmpty bool) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpointURL(endpoint), nil)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", endpoint, err)
	}
	req.Header.Set("Accept", "application/json")
	return c.do(req, endpoint, out, allowEmpty)
}

// do sends req and decodes a 2xx JSON body into out. An empty body is an
// error unless allowEmpty is set, in which case out is left untouched.
func (c *Client) do(req *http.Request, endpoint string, out any, allowEmpty bool) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: read response: %w", endpoint, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			Detail:     errorDetail(body),
		}
	}

	if len(bytes.TrimSpace(body)) == 0 {
		if allowEmpty {
			return nil
		}
		return fmt.Errorf("%s: %w: empty body", endpoint, ErrMalformedResponse)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%s: %w: %v", endpoint, ErrMalformedResponse, err)
	}
	return nil
}

func (c *Client) endpointURL(endpoint string) string {
	target := *c.baseURL
	target.Path = c.baseURL.Path + endpoint
	return target.String()
}

// errorDetail extracts FastAPI-style {"detail": ...} or {"error": ...} messages.
func errorDetail(body []byte) string {
	var payload struct {
		Detail any    `json:"detail"`
		Error  string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		switch d := payload.Detail.(type) {
		case string:
			return d
		case nil:
		default:
			if encoded, err := json.Marshal(d); err == nil {
				return string(encoded)
			}
		}
		if payload.Error != "" {
			return payload.Error
		}
	}
	text := strings.TrimSpace(string(body))
	if len(text) > 200 {
		text = text[:200]
	}
	return text
}

func filePartHeader(filename string) textproto.MIMEHeader {
	if filename == "" {
		filename = "upload"
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, escapeQuotes(filepath.Base(filename))))
	h.Set("Content-Type", contentTypeFor(filename))
	return h
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}

func contentTypeFor(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	case ".mp4":
		return "video/mp4"
	case ".webm":
		return "video/webm"
	case ".mov":
		return "video/quicktime"
	default:
		return "application/octet-stream"
	}
}
