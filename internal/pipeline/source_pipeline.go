package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"crosswatch/internal/logging"
	"crosswatch/internal/session"
	"crosswatch/internal/timeutil"
)

var (
	ErrSourceExists   = errors.New("source already exists")
	ErrSourceNotFound = errors.New("source not found")

	// ErrMalformedDetections marks a detector reply that arrived but could
	// not be read. The frame is processed as having no detections.
	ErrMalformedDetections = errors.New("malformed detection list")
)

// fpsWindow is the number of frames the processing rate is averaged over
const fpsWindow = 30

// SourcePipeline runs capture -> detect -> recognize -> session for one source
type SourcePipeline struct {
	sourceID      string
	config        *EffectiveConfig
	strategy      FaceStrategy
	detector      Detector
	recognizer    FaceRecognizer
	frameProvider FrameProvider
	eventBus      *EventBus
	logger        logging.Logger

	// sessMu serializes frame processing against session resets
	sessMu  sync.Mutex
	session *session.Session

	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once

	stats   *PipelineStats
	statsMu sync.RWMutex
	window  []time.Time
}

// SourcePipelineManager manages pipelines for all sources
type SourcePipelineManager struct {
	pipelines       map[string]*SourcePipeline
	frameProvider   FrameProvider
	detector        Detector
	recognizer      FaceRecognizer
	eventBus        *EventBus
	strategyFactory func(*EffectiveConfig) (FaceStrategy, error)
	clock           timeutil.Clock
	logger          logging.Logger
	mu              sync.RWMutex
	globalConfig    *GlobalConfig
}

// ManagerDeps are the collaborators shared by every source pipeline.
// Detector and Recognizer may be nil: without a detector every frame has no
// detections, without a recognizer faces are never looked up.
type ManagerDeps struct {
	FrameProvider   FrameProvider
	Detector        Detector
	Recognizer      FaceRecognizer
	EventBus        *EventBus
	StrategyFactory func(*EffectiveConfig) (FaceStrategy, error)
	Clock           timeutil.Clock
	Logger          logging.Logger
}

// NewSourcePipelineManager creates a new pipeline manager
func NewSourcePipelineManager(deps ManagerDeps, global *GlobalConfig) *SourcePipelineManager {
	if deps.EventBus == nil {
		deps.EventBus = NewEventBus()
	}
	if deps.Clock == nil {
		deps.Clock = timeutil.RealClock{}
	}
	if deps.Logger == nil {
		deps.Logger = logging.NewNop()
	}
	if global == nil {
		global = DefaultGlobalConfig()
	}
	return &SourcePipelineManager{
		pipelines:       make(map[string]*SourcePipeline),
		frameProvider:   deps.FrameProvider,
		detector:        deps.Detector,
		recognizer:      deps.Recognizer,
		eventBus:        deps.EventBus,
		strategyFactory: deps.StrategyFactory,
		clock:           deps.Clock,
		logger:          deps.Logger.Named("pipeline"),
		globalConfig:    global,
	}
}

// SetGlobalConfig updates the defaults used by sources started afterwards
func (m *SourcePipelineManager) SetGlobalConfig(config *GlobalConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.globalConfig = config
}

// GetGlobalConfig returns a copy of the current global configuration
func (m *SourcePipelineManager) GetGlobalConfig() *GlobalConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cfg := *m.globalConfig
	return &cfg
}

// EventBus returns the bus reports are published on
func (m *SourcePipelineManager) EventBus() *EventBus {
	return m.eventBus
}

// StartSource starts capture and processing for a source
func (m *SourcePipelineManager) StartSource(sourceID string, device string, opts *SourceOptions) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.pipelines[sourceID]; exists {
		return fmt.Errorf("%w: %s", ErrSourceExists, sourceID)
	}

	effectiveConfig, err := opts.MergeWithGlobal(sourceID, device, m.globalConfig)
	if err != nil {
		return fmt.Errorf("source %s: %w", sourceID, err)
	}

	var strategy FaceStrategy
	if m.strategyFactory != nil {
		strategy, err = m.strategyFactory(effectiveConfig)
		if err != nil {
			return fmt.Errorf("failed to create face strategy: %w", err)
		}
	}

	logger := m.logger.With("source", sourceID)
	sess, err := session.New(effectiveConfig.Session, m.clock, logger.Named("session"))
	if err != nil {
		return fmt.Errorf("source %s: %w", sourceID, err)
	}

	if m.detector == nil {
		logger.Warnw("no object detector configured, frames will carry no detections")
	} else if !m.detector.IsHealthy() {
		logger.Warnw("object detector is not healthy", "detector", m.detector.Name())
	}

	if err := m.frameProvider.Start(sourceID, device, effectiveConfig.FPS, effectiveConfig.Width, effectiveConfig.Height); err != nil {
		return fmt.Errorf("failed to start capture: %w", err)
	}
	// Subscribe before the loop starts so no early frame is lost
	sub, err := m.frameProvider.Subscribe(sourceID, 5)
	if err != nil {
		_ = m.frameProvider.Stop(sourceID)
		return fmt.Errorf("failed to subscribe to frames: %w", err)
	}

	strategyName := ""
	if strategy != nil {
		strategyName = strategy.Name()
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &SourcePipeline{
		sourceID:      sourceID,
		config:        effectiveConfig,
		strategy:      strategy,
		detector:      m.detector,
		recognizer:    m.recognizer,
		frameProvider: m.frameProvider,
		eventBus:      m.eventBus,
		logger:        logger,
		session:       sess,
		cancel:        cancel,
		done:          make(chan struct{}),
		stats: &PipelineStats{
			SourceID:     sourceID,
			Device:       device,
			SessionID:    sess.ID(),
			Status:       session.StatusRunning,
			FaceStrategy: strategyName,
			StartedAt:    m.clock.Now(),
		},
	}
	sess.Publisher().SetStatus(session.StatusRunning)

	m.pipelines[sourceID] = p

	go p.run(ctx, sub)

	logger.Infow("started source pipeline", "device", device, "face_strategy", strategyName,
		"boundary", sess.Boundary().String())
	return nil
}

// StopSource stops processing and capture for a source
func (m *SourcePipelineManager) StopSource(sourceID string) error {
	m.mu.Lock()
	p, exists := m.pipelines[sourceID]
	if !exists {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrSourceNotFound, sourceID)
	}
	delete(m.pipelines, sourceID)
	m.mu.Unlock()

	p.stop()
	m.logger.Infow("stopped source pipeline", "source", sourceID)
	return nil
}

// ResetSession starts a new counting session on a running source
func (m *SourcePipelineManager) ResetSession(sourceID string) error {
	m.mu.RLock()
	p, exists := m.pipelines[sourceID]
	m.mu.RUnlock()
	if !exists {
		return fmt.Errorf("%w: %s", ErrSourceNotFound, sourceID)
	}

	p.sessMu.Lock()
	p.session.Reset()
	id := p.session.ID()
	p.sessMu.Unlock()

	if p.strategy != nil {
		p.strategy.Reset()
	}

	p.statsMu.Lock()
	p.stats.SessionID = id
	p.stats.In, p.stats.Out, p.stats.ActiveTracks = 0, 0, 0
	p.statsMu.Unlock()
	return nil
}

// Session returns the live session of a source. While the source runs only
// its Publisher may be used from other goroutines.
func (m *SourcePipelineManager) Session(sourceID string) (*session.Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.pipelines[sourceID]
	if !ok {
		return nil, false
	}
	return p.session, true
}

// Publisher returns the snapshot publisher of a source
func (m *SourcePipelineManager) Publisher(sourceID string) (*session.Publisher, bool) {
	sess, ok := m.Session(sourceID)
	if !ok {
		return nil, false
	}
	return sess.Publisher(), true
}

// Sources lists the IDs of every managed source, sorted
func (m *SourcePipelineManager) Sources() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.pipelines))
	for id := range m.pipelines {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// GetStats returns pipeline statistics for a source
func (m *SourcePipelineManager) GetStats(sourceID string) *PipelineStats {
	m.mu.RLock()
	p, exists := m.pipelines[sourceID]
	m.mu.RUnlock()

	if !exists {
		return nil
	}

	p.statsMu.RLock()
	stats := *p.stats
	p.statsMu.RUnlock()

	stats.CaptureStats = m.frameProvider.GetStats(sourceID)
	return &stats
}

// GetEffectiveConfig returns the merged configuration of a source
func (m *SourcePipelineManager) GetEffectiveConfig(sourceID string) *EffectiveConfig {
	m.mu.RLock()
	p, exists := m.pipelines[sourceID]
	m.mu.RUnlock()

	if !exists {
		return nil
	}
	config := *p.config
	return &config
}

// SubscribeReports registers a handler for per-frame reports
func (m *SourcePipelineManager) SubscribeReports(handler ReportHandler) func() {
	return m.eventBus.Subscribe(handler)
}

// Close shuts down all pipelines
func (m *SourcePipelineManager) Close() error {
	m.mu.Lock()
	pipelines := m.pipelines
	m.pipelines = make(map[string]*SourcePipeline)
	m.mu.Unlock()

	for _, p := range pipelines {
		p.stop()
	}

	m.logger.Infow("closed all source pipelines", "count", len(pipelines))
	return nil
}

// run is the main processing loop for a single source
func (p *SourcePipeline) run(ctx context.Context, sub *FrameSubscription) {
	defer close(p.done)
	defer p.frameProvider.Unsubscribe(sub)

	p.logger.Debugw("processing loop started")

	for {
		select {
		case <-ctx.Done():
			return
		case <-sub.Done:
			p.finish()
			p.logger.Infow("source finished")
			return
		case frame := <-sub.Channel:
			if frame == nil {
				continue
			}
			p.processFrame(ctx, frame)
		}
	}
}

func (p *SourcePipeline) stop() {
	p.cancel()

	select {
	case <-p.done:
	case <-time.After(5 * time.Second):
		p.logger.Warnw("processing loop did not exit in time")
	}

	if err := p.frameProvider.Stop(p.sourceID); err != nil {
		p.logger.Debugw("capture already stopped", "error", err)
	}
	p.finish()
}

// finish marks the source stopped and notifies stop handlers once
func (p *SourcePipeline) finish() {
	p.stopOnce.Do(func() {
		p.setStatus(session.StatusStopped)
		p.eventBus.PublishStopped(p.sourceID)
	})
}

func (p *SourcePipeline) setStatus(status session.Status) {
	p.session.Publisher().SetStatus(status)
	p.statsMu.Lock()
	p.stats.Status = status
	p.statsMu.Unlock()
}

func (p *SourcePipeline) processFrame(ctx context.Context, frame *FrameData) {
	var inferenceMs float32

	var detections []session.Detection
	if p.detector != nil {
		result, err := p.detector.Detect(ctx, frame)
		switch {
		case errors.Is(err, ErrMalformedDetections):
			// An unreadable list is an empty one, so tracks still age
			p.logger.Warnw("malformed detections, processing frame as empty", "seq", frame.Seq, "error", err)
			p.statsMu.Lock()
			p.stats.DetectionErrors++
			p.statsMu.Unlock()
		case err != nil:
			// Without a reply nothing is known about the frame; it is skipped
			p.logger.Warnw("detection failed, skipping frame", "seq", frame.Seq, "error", err)
			p.statsMu.Lock()
			p.stats.DetectionErrors++
			p.stats.FramesSkipped++
			p.statsMu.Unlock()
			return
		default:
			detections = result.Detections
			inferenceMs += result.InferenceMs
		}
	}

	var faces []session.Face
	recognized := false
	if p.recognizer != nil && p.strategy != nil && p.strategy.ShouldRecognize(frame) {
		result, err := p.recognizer.Recognize(ctx, frame)
		if err != nil {
			p.logger.Warnw("face recognition failed", "seq", frame.Seq, "error", err)
		} else {
			faces = result.Faces
			inferenceMs += result.InferenceMs
			recognized = true
		}
		p.strategy.OnRecognitionComplete(result)
	}

	p.sessMu.Lock()
	report := p.session.ProcessFrame(session.FrameInput{
		Time:       frame.Timestamp,
		Detections: detections,
		Faces:      faces,
		Frame:      frame.Data,
		Width:      frame.Width,
		Height:     frame.Height,
	})
	active := len(report.Tracks)
	publisher := p.session.Publisher()
	p.sessMu.Unlock()

	fps := p.updateStats(frame, report, active, inferenceMs, recognized)
	publisher.SetFPS(float64(fps))

	p.eventBus.Publish(p.sourceID, &report)
}

func (p *SourcePipeline) updateStats(frame *FrameData, report session.Report, active int, inferenceMs float32, recognized bool) float32 {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()

	p.stats.FramesProcessed++
	p.stats.LastFrameTime = frame.Timestamp.Unix()
	p.stats.In = report.In
	p.stats.Out = report.Out
	p.stats.ActiveTracks = active
	if recognized {
		p.stats.Recognitions++
	}
	if p.stats.AvgInferenceMs == 0 {
		p.stats.AvgInferenceMs = inferenceMs
	} else {
		p.stats.AvgInferenceMs = (p.stats.AvgInferenceMs + inferenceMs) / 2
	}

	p.window = append(p.window, frame.Timestamp)
	if len(p.window) > fpsWindow {
		p.window = p.window[len(p.window)-fpsWindow:]
	}
	if n := len(p.window); n > 1 {
		if span := p.window[n-1].Sub(p.window[0]).Seconds(); span > 0 {
			p.stats.ProcessingFPS = float32(float64(n-1) / span)
		}
	}
	return p.stats.ProcessingFPS
}

// Ensure SourcePipelineManager implements SourceManager
var _ SourceManager = (*SourcePipelineManager)(nil)
