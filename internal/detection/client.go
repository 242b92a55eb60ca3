// Package detection holds HTTP clients for the external object detection
// and face recognition services.
package detection

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"
	"time"

	"crosswatch/internal/timeutil"
)

var (
	// ErrServiceUnavailable is returned when a service fails its health check
	ErrServiceUnavailable = errors.New("detection service unavailable")
	// ErrMalformedResponse is returned when a service replies 200 with a body
	// that cannot be decoded
	ErrMalformedResponse = errors.New("malformed service response")
)

// healthTTL is how long a successful health check is trusted
const healthTTL = 30 * time.Second

// serviceClient is the transport shared by the detection clients: multipart
// JPEG upload and a cached /health probe
type serviceClient struct {
	name        string
	endpoint    string
	client      *http.Client
	clock       timeutil.Clock
	healthy     bool
	healthCheck time.Time
	mu          sync.RWMutex
}

func newServiceClient(name, endpoint string, timeout time.Duration, clock timeutil.Clock) *serviceClient {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &serviceClient{
		name:     name,
		endpoint: strings.TrimRight(endpoint, "/"),
		client:   &http.Client{Timeout: timeout},
		clock:    clock,
	}
}

// isHealthy probes /health unless a recent probe succeeded. ready inspects
// the decoded body.
func (c *serviceClient) isHealthy(ctx context.Context, body any, ready func() bool) bool {
	c.mu.RLock()
	if c.healthy && c.clock.Since(c.healthCheck) < healthTTL {
		c.mu.RUnlock()
		return true
	}
	c.mu.RUnlock()

	ok := c.probe(ctx, body, ready)

	c.mu.Lock()
	c.healthy = ok
	c.healthCheck = c.clock.Now()
	c.mu.Unlock()
	return ok
}

func (c *serviceClient) probe(ctx context.Context, body any, ready func() bool) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false
	}
	if err := json.NewDecoder(resp.Body).Decode(body); err != nil {
		return false
	}
	return ready()
}

// invalidate forces the next health check to hit the service
func (c *serviceClient) invalidate() {
	c.mu.Lock()
	c.healthy = false
	c.mu.Unlock()
}

// postImage uploads imageData as the "file" form field plus extra fields
// and decodes the JSON response into out
func (c *serviceClient) postImage(ctx context.Context, path string, imageData []byte, fields map[string]string, out any) error {
	var b bytes.Buffer
	w := multipart.NewWriter(&b)

	fw, err := w.CreateFormFile("file", "frame.jpg")
	if err != nil {
		return err
	}
	if _, err := fw.Write(imageData); err != nil {
		return err
	}
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return err
		}
	}
	if err := w.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, &b)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		c.invalidate()
		return fmt.Errorf("%s request failed: %w", c.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%s %s returned %d: %s", c.name, path, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: %w: %v", c.name, ErrMalformedResponse, err)
	}
	return nil
}
