package pipeline

import (
	"bufio"
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"crosswatch/internal/logging"
)

// SourceKind classifies a device string
type SourceKind string

const (
	SourceRTSP       SourceKind = "rtsp"
	SourceHTTPImage  SourceKind = "http_image"
	SourceHTTPStream SourceKind = "http_stream"
	SourceFile       SourceKind = "file"
	SourceV4L2       SourceKind = "v4l2"
)

// ClassifyDevice decides how a device string is captured. A bare integer is
// a local camera index.
func ClassifyDevice(device string) SourceKind {
	switch {
	case strings.HasPrefix(device, "rtsp://"):
		return SourceRTSP
	case strings.HasPrefix(device, "http://") || strings.HasPrefix(device, "https://"):
		if strings.Contains(device, ".jpg") || strings.Contains(device, ".jpeg") || strings.Contains(device, "image") {
			return SourceHTTPImage
		}
		return SourceHTTPStream
	case strings.HasPrefix(device, "/dev/video"):
		return SourceV4L2
	}
	if _, err := strconv.Atoi(device); err == nil {
		return SourceV4L2
	}
	return SourceFile
}

// FFmpegFrameProvider captures frames from video sources using FFmpeg
// and broadcasts to multiple subscribers
type FFmpegFrameProvider struct {
	sources map[string]*sourceCapture
	logger  logging.Logger
	binary  string
	mu      sync.RWMutex
}

// sourceCapture handles frame capture for a single source
type sourceCapture struct {
	sourceID    string
	device      string
	binary      string
	fps         int
	width       int
	height      int
	logger      logging.Logger
	running     atomic.Bool
	stopCh      chan struct{}
	stopOnce    sync.Once
	cmd         *exec.Cmd
	cmdMu       sync.Mutex
	subscribers map[*FrameSubscription]bool
	subMu       sync.RWMutex
	frameSeq    atomic.Uint64
	stats       *CaptureStats
	statsMu     sync.RWMutex
}

// NewFFmpegFrameProvider creates a new FFmpeg-based frame provider
func NewFFmpegFrameProvider(logger logging.Logger) *FFmpegFrameProvider {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &FFmpegFrameProvider{
		sources: make(map[string]*sourceCapture),
		logger:  logger.Named("frame_provider"),
		binary:  "ffmpeg",
	}
}

func (p *FFmpegFrameProvider) Start(sourceID string, device string, fps int, width int, height int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.sources[sourceID]; exists {
		return fmt.Errorf("source %s already started", sourceID)
	}
	if fps <= 0 {
		fps = 15
	}

	capture := &sourceCapture{
		sourceID:    sourceID,
		device:      device,
		binary:      p.binary,
		fps:         fps,
		width:       width,
		height:      height,
		logger:      p.logger.With("source", sourceID),
		stopCh:      make(chan struct{}),
		subscribers: make(map[*FrameSubscription]bool),
		stats: &CaptureStats{
			SourceID: sourceID,
		},
	}

	p.sources[sourceID] = capture

	go capture.run()

	p.logger.Infow("started capture", "source", sourceID, "device", device, "kind", ClassifyDevice(device), "fps", fps)
	return nil
}

func (p *FFmpegFrameProvider) Stop(sourceID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	capture, exists := p.sources[sourceID]
	if !exists {
		return fmt.Errorf("source %s not found", sourceID)
	}

	capture.stop()
	delete(p.sources, sourceID)

	p.logger.Infow("stopped capture", "source", sourceID)
	return nil
}

func (p *FFmpegFrameProvider) Subscribe(sourceID string, bufferSize int) (*FrameSubscription, error) {
	p.mu.RLock()
	capture, exists := p.sources[sourceID]
	p.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("source %s not found", sourceID)
	}

	if bufferSize <= 0 {
		bufferSize = 5
	}

	sub := &FrameSubscription{
		SourceID: sourceID,
		Channel:  make(chan *FrameData, bufferSize),
		Done:     make(chan struct{}),
	}

	capture.subMu.Lock()
	capture.subscribers[sub] = true
	total := len(capture.subscribers)
	capture.subMu.Unlock()

	p.logger.Debugw("new subscriber", "source", sourceID, "total", total)
	return sub, nil
}

func (p *FFmpegFrameProvider) Unsubscribe(sub *FrameSubscription) {
	if sub == nil {
		return
	}

	p.mu.RLock()
	capture, exists := p.sources[sub.SourceID]
	p.mu.RUnlock()

	if !exists {
		return
	}

	capture.subMu.Lock()
	if _, ok := capture.subscribers[sub]; ok {
		delete(capture.subscribers, sub)
		close(sub.Done)
	}
	remaining := len(capture.subscribers)
	capture.subMu.Unlock()

	p.logger.Debugw("unsubscribed", "source", sub.SourceID, "remaining", remaining)
}

func (p *FFmpegFrameProvider) IsRunning(sourceID string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	capture, exists := p.sources[sourceID]
	if !exists {
		return false
	}
	return capture.running.Load()
}

func (p *FFmpegFrameProvider) GetStats(sourceID string) *CaptureStats {
	p.mu.RLock()
	capture, exists := p.sources[sourceID]
	p.mu.RUnlock()

	if !exists {
		return nil
	}

	capture.statsMu.RLock()
	defer capture.statsMu.RUnlock()

	// Return a copy
	stats := *capture.stats
	return &stats
}

// run starts the frame capture loop. When the input ends every subscriber
// is released through its Done channel.
func (c *sourceCapture) run() {
	c.running.Store(true)
	defer c.running.Store(false)
	defer c.finish()

	c.logger.Debugw("capture loop starting", "device", c.device)

	if ClassifyDevice(c.device) == SourceHTTPImage {
		c.captureHTTPImages()
		return
	}

	c.captureFFmpeg()
}

func (c *sourceCapture) stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })

	c.cmdMu.Lock()
	if c.cmd != nil && c.cmd.Process != nil {
		_ = c.cmd.Process.Kill()
	}
	c.cmdMu.Unlock()

	c.releaseSubscribers()
}

func (c *sourceCapture) finish() {
	select {
	case <-c.stopCh:
		return
	default:
	}

	c.statsMu.Lock()
	c.stats.Finished = true
	c.statsMu.Unlock()

	c.logger.Infow("input ended", "frames", c.frameSeq.Load())
	c.releaseSubscribers()
}

func (c *sourceCapture) releaseSubscribers() {
	c.subMu.Lock()
	for sub := range c.subscribers {
		close(sub.Done)
		delete(c.subscribers, sub)
	}
	c.subMu.Unlock()
}

func (c *sourceCapture) captureHTTPImages() {
	client := &http.Client{Timeout: 10 * time.Second}
	interval := time.Second / time.Duration(c.fps)
	if interval < 100*time.Millisecond {
		interval = 100 * time.Millisecond
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			resp, err := client.Get(c.device)
			if err != nil {
				c.logger.Warnw("error fetching frame", "device", c.device, "error", err)
				continue
			}

			frame, err := io.ReadAll(resp.Body)
			resp.Body.Close()
			if err != nil {
				c.logger.Warnw("error reading frame", "error", err)
				continue
			}
			if resp.StatusCode != http.StatusOK {
				c.logger.Warnw("unexpected status fetching frame", "status", resp.StatusCode)
				continue
			}

			c.broadcastFrame(frame)
		}
	}
}

// ffmpegArgs builds the image2pipe command line for a device
func ffmpegArgs(device string, fps, width, height int) []string {
	var args []string
	scale := width > 0 && height > 0

	switch ClassifyDevice(device) {
	case SourceRTSP:
		args = []string{"-rtsp_transport", "tcp", "-i", device}
	case SourceV4L2:
		if _, err := strconv.Atoi(device); err == nil {
			device = "/dev/video" + device
		}
		args = []string{"-f", "v4l2"}
		if scale {
			args = append(args, "-video_size", fmt.Sprintf("%dx%d", width, height))
		}
		args = append(args, "-framerate", strconv.Itoa(fps), "-i", device)
		scale = false
	case SourceFile:
		// Read at native rate so a file replays like a live camera
		args = []string{"-re", "-i", filepath.Clean(device)}
	default:
		args = []string{"-i", device}
	}

	if scale {
		args = append(args, "-vf", fmt.Sprintf("scale=%d:%d", width, height))
	}
	return append(args,
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"-r", strconv.Itoa(fps),
		"-q:v", "5",
		"-",
	)
}

func (c *sourceCapture) captureFFmpeg() {
	if ClassifyDevice(c.device) == SourceFile {
		if _, err := os.Stat(c.device); err != nil {
			c.logger.Errorw("video file not accessible", "device", c.device, "error", err)
			return
		}
	}

	cmd := exec.Command(c.binary, ffmpegArgs(c.device, c.fps, c.width, c.height)...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		c.logger.Errorw("error creating stdout pipe", "error", err)
		return
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		c.logger.Errorw("error creating stderr pipe", "error", err)
		return
	}

	if err := cmd.Start(); err != nil {
		c.logger.Errorw("error starting ffmpeg", "error", err)
		return
	}
	c.cmdMu.Lock()
	c.cmd = cmd
	c.cmdMu.Unlock()
	defer func() { _ = cmd.Wait() }()

	go func() {
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			c.logger.Debugw("ffmpeg", "line", scanner.Text())
		}
	}()

	// Read frames
	frameBuffer := make([]byte, 0, 1024*1024)
	chunk := make([]byte, 8192)

	for {
		select {
		case <-c.stopCh:
			return
		default:
			n, err := stdout.Read(chunk)
			if n > 0 {
				frameBuffer = append(frameBuffer, chunk[:n]...)

				// Extract complete JPEG frames
				for {
					frame := extractJPEGFrame(&frameBuffer)
					if frame == nil {
						break
					}
					c.broadcastFrame(frame)
				}
			}
			if err != nil {
				if err != io.EOF {
					c.logger.Warnw("error reading frame", "error", err)
				}
				return
			}
		}
	}
}

// frameSize reads the dimensions from the JPEG header. The configured size is
// used only when the header cannot be decoded.
func frameSize(data []byte, width, height int) (int, int) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil || cfg.Width <= 0 || cfg.Height <= 0 {
		return width, height
	}
	return cfg.Width, cfg.Height
}

func (c *sourceCapture) broadcastFrame(data []byte) {
	seq := c.frameSeq.Add(1)
	now := time.Now()

	width, height := frameSize(data, c.width, c.height)
	frame := &FrameData{
		SourceID:  c.sourceID,
		Data:      data,
		Seq:       seq,
		Timestamp: now,
		Width:     width,
		Height:    height,
	}

	c.statsMu.Lock()
	c.stats.FramesCaptured++
	c.stats.LastFrameTime = now.Unix()
	c.statsMu.Unlock()

	// Broadcast to all subscribers
	c.subMu.RLock()
	for sub := range c.subscribers {
		select {
		case sub.Channel <- frame:
		default:
			// Subscriber is slow, drop frame
			c.statsMu.Lock()
			c.stats.FramesDropped++
			c.statsMu.Unlock()
		}
	}
	subCount := len(c.subscribers)
	c.subMu.RUnlock()

	if seq%100 == 0 {
		c.logger.Debugw("capture progress", "frame", seq, "subscribers", subCount)
	}
}

// extractJPEGFrame extracts a complete JPEG frame from buffer
func extractJPEGFrame(buffer *[]byte) []byte {
	if len(*buffer) < 4 {
		return nil
	}

	// Find JPEG start marker (FFD8)
	startIdx := -1
	for i := 0; i < len(*buffer)-1; i++ {
		if (*buffer)[i] == 0xFF && (*buffer)[i+1] == 0xD8 {
			startIdx = i
			break
		}
	}
	if startIdx == -1 {
		return nil
	}

	// Find JPEG end marker (FFD9)
	endIdx := -1
	for i := startIdx + 2; i < len(*buffer)-1; i++ {
		if (*buffer)[i] == 0xFF && (*buffer)[i+1] == 0xD9 {
			endIdx = i + 2
			break
		}
	}
	if endIdx == -1 {
		return nil
	}

	frame := make([]byte, endIdx-startIdx)
	copy(frame, (*buffer)[startIdx:endIdx])
	*buffer = (*buffer)[endIdx:]

	return frame
}

// Ensure FFmpegFrameProvider implements FrameProvider
var _ FrameProvider = (*FFmpegFrameProvider)(nil)
