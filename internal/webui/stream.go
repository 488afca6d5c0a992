package webui

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/traffix-ai/traffix-dashboard/internal/camera"
	"github.com/traffix-ai/traffix-dashboard/internal/logger"
)

const (
	formatJSON     = "application/json"
	formatProtobuf = "application/protobuf"
)

// wantsProtobuf reports whether the client prefers protobuf frames.
func wantsProtobuf(accept string) bool {
	return strings.Contains(accept, "application/protobuf") ||
		strings.Contains(accept, "application/x-protobuf")
}

// encodeEvent serializes payload for one SSE data line. Protobuf frames are
// a google.protobuf.Struct, base64 encoded for SSE transport.
func encodeEvent(payload any, useProtobuf bool) ([]byte, error) {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	if !useProtobuf {
		return jsonData, nil
	}

	var fields map[string]any
	if err := json.Unmarshal(jsonData, &fields); err != nil {
		return nil, fmt.Errorf("payload is not an object: %w", err)
	}
	msg, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, err
	}
	pbData, err := proto.Marshal(msg)
	if err != nil {
		return nil, err
	}
	return []byte(base64.StdEncoding.EncodeToString(pbData)), nil
}

func writeSSE(w http.ResponseWriter, data []byte) error {
	_, err := fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}

func (s *Server) handleStateStream(c *gin.Context) {
	w := c.Writer
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	useProtobuf := wantsProtobuf(c.GetHeader("Accept"))

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	if useProtobuf {
		w.Header().Set("X-Content-Format", formatProtobuf)
	} else {
		w.Header().Set("X-Content-Format", formatJSON)
	}
	w.WriteHeader(http.StatusOK)

	ticker := time.NewTicker(s.cfg.StatusInterval)
	defer ticker.Stop()

	ctx := c.Request.Context()
	for {
		data, err := encodeEvent(s.ctrl.Snapshot(), useProtobuf)
		if err != nil {
			logger.Error("SSE", "State encode error: %v", err)
			return
		}
		if err := writeSSE(w, data); err != nil {
			logger.Debug("SSE", "Client disconnected during state write: %v", err)
			return
		}
		flusher.Flush()

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

type jpegProvider func() ([]byte, bool)

// liveFrame snapshots the held camera stream, if any.
func (s *Server) liveFrame() ([]byte, bool) {
	st := s.ctrl.Stream()
	if st == nil {
		return nil, false
	}
	data, err := camera.Snapshot(st, s.cfg.JPEGQuality)
	if err != nil {
		return nil, false
	}
	return data, true
}

func (s *Server) handleCameraStream(c *gin.Context) {
	streamMJPEG(c, s.cfg.MJPEGInterval, s.liveFrame)
}

// streamMJPEG writes frames from provider until the client goes away,
// falling back to a test card when no frame is available.
func streamMJPEG(c *gin.Context, interval time.Duration, provider jpegProvider) {
	w := c.Writer
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	blank, err := camera.BlankJPEG()
	if err != nil {
		http.Error(w, "Failed to render frame", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	ctx := c.Request.Context()
	for {
		jpegData := blank
		if provider != nil {
			if data, ok := provider(); ok {
				jpegData = data
			}
		}

		if _, err := w.Write([]byte("--frame\r\nContent-Type: image/jpeg\r\n\r\n")); err != nil {
			logger.Debug("MJPEG", "Client disconnected during write: %v", err)
			return
		}
		if _, err := w.Write(jpegData); err != nil {
			logger.Debug("MJPEG", "Client disconnected during frame write: %v", err)
			return
		}
		if _, err := w.Write([]byte("\r\n")); err != nil {
			return
		}
		flusher.Flush()

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
