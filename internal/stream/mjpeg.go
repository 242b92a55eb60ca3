// Package stream serves the latest frame of each session over HTTP, either
// as a multipart MJPEG feed or as a single JPEG snapshot.
package stream

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"crosswatch/internal/logging"
	"crosswatch/internal/session"
)

// DefaultMaxFPS caps how often a feed client is sent a frame
const DefaultMaxFPS = 30

const boundary = "frame"

// Lookup resolves a source ID to its snapshot publisher
type Lookup func(sourceID string) (*session.Publisher, bool)

// FeedHandler streams a source's published frames as multipart/x-mixed-replace
type FeedHandler struct {
	lookup      Lookup
	minInterval time.Duration
	logger      logging.Logger
}

// NewFeedHandler creates a feed handler. maxFPS <= 0 uses DefaultMaxFPS.
func NewFeedHandler(lookup Lookup, maxFPS int, logger logging.Logger) *FeedHandler {
	if maxFPS <= 0 {
		maxFPS = DefaultMaxFPS
	}
	return &FeedHandler{
		lookup:      lookup,
		minInterval: time.Second / time.Duration(maxFPS),
		logger:      logger.Named("mjpeg"),
	}
}

// ServeHTTP serves the MJPEG stream until the client goes away or the
// source stops
func (h *FeedHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sourceID := sourceIDFromRequest(r, "/feed")
	pub, ok := h.lookup(sourceID)
	if sourceID == "" || !ok {
		http.Error(w, fmt.Sprintf("source %q not found", sourceID), http.StatusNotFound)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary="+boundary)
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	h.logger.Debugw("client connected", "source", sourceID, "remote", r.RemoteAddr)
	defer h.logger.Debugw("client disconnected", "source", sourceID, "remote", r.RemoteAddr)

	var (
		lastIndex uint64
		sent      bool
		lastSent  time.Time
	)
	for {
		changed := pub.Changed()
		snap := pub.Latest()

		if len(snap.Frame) > 0 && (!sent || snap.FrameIndex != lastIndex) {
			if wait := h.minInterval - time.Since(lastSent); sent && wait > 0 {
				select {
				case <-r.Context().Done():
					return
				case <-time.After(wait):
				}
				continue
			}
			if err := writePart(w, snap.Frame); err != nil {
				return
			}
			flusher.Flush()
			sent, lastIndex, lastSent = true, snap.FrameIndex, time.Now()
		}

		if snap.Status == session.StatusStopped {
			return
		}

		select {
		case <-r.Context().Done():
			return
		case <-changed:
		}
	}
}

func writePart(w http.ResponseWriter, frame []byte) error {
	if _, err := fmt.Fprintf(w, "--%s\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", boundary, len(frame)); err != nil {
		return err
	}
	if _, err := w.Write(frame); err != nil {
		return err
	}
	_, err := w.Write([]byte("\r\n"))
	return err
}

// SnapshotHandler serves the most recent frame of a source as one JPEG
type SnapshotHandler struct {
	lookup Lookup
}

// NewSnapshotHandler creates a new snapshot handler
func NewSnapshotHandler(lookup Lookup) *SnapshotHandler {
	return &SnapshotHandler{lookup: lookup}
}

func (h *SnapshotHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sourceID := sourceIDFromRequest(r, "/snapshot")
	pub, ok := h.lookup(sourceID)
	if sourceID == "" || !ok {
		http.Error(w, fmt.Sprintf("source %q not found", sourceID), http.StatusNotFound)
		return
	}

	frame := pub.Latest().Frame
	if len(frame) == 0 {
		http.Error(w, "no frame available", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Content-Length", strconv.Itoa(len(frame)))
	w.Header().Set("Cache-Control", "no-cache")
	_, _ = w.Write(frame)
}

// sourceIDFromRequest reads the {id} path value, falling back to the segment
// before suffix for muxers that do not set path values
func sourceIDFromRequest(r *http.Request, suffix string) string {
	if id := r.PathValue("id"); id != "" {
		return id
	}
	p := strings.TrimSuffix(strings.TrimSuffix(r.URL.Path, "/"), suffix)
	if i := strings.LastIndex(p, "/"); i >= 0 {
		return p[i+1:]
	}
	return ""
}
