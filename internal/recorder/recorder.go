// Package recorder is the side-effect consumer of session reports: it
// persists events, saves the frames that triggered them and sends
// notifications.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"crosswatch/internal/alert"
	"crosswatch/internal/database"
	"crosswatch/internal/logging"
	"crosswatch/internal/pipeline"
	"crosswatch/internal/session"
	"crosswatch/internal/timeutil"
)

const (
	ViolationsDir = "violations"
	FacesDir      = "face_detections"

	// timestampLayout names saved frames, e.g. mobile_violation_20260101_093000.jpg
	timestampLayout = "20060102_150405"
)

// Store is the persistence the recorder writes to
type Store interface {
	SaveSession(s *database.SessionRecord) error
	UpdateSessionTotals(id string, in, out int, frames uint64) error
	EndSession(id string, at time.Time) error
	SaveCrossing(c *database.CrossingRecord) error
	SaveAlert(a *database.AlertRecord) error
	SaveRecognition(r *database.RecognitionRecord) error
}

// Notifier delivers alerts and recognitions to people
type Notifier interface {
	SendViolationAlert(ctx context.Context, sourceName string, ev alert.Event, frame []byte) error
	SendRecognition(ctx context.Context, sourceName string, rec session.Recognition, frame []byte) error
}

// Config controls what the recorder writes
type Config struct {
	// SnapshotDir is where violations/ and face_detections/ are created.
	// Empty disables frame saving.
	SnapshotDir string
	// TotalsEvery is how many frames pass between session total updates
	TotalsEvery uint64
	// NotifyTimeout bounds each notification
	NotifyTimeout time.Duration
}

// Recorder implements pipeline.ReportHandler. Store and Notifier may be nil.
type Recorder struct {
	cfg      Config
	store    Store
	notifier Notifier
	clock    timeutil.Clock
	logger   logging.Logger

	mu       sync.Mutex
	sessions map[string]string // source ID -> current session ID

	wg sync.WaitGroup
}

// New creates a recorder
func New(cfg Config, store Store, notifier Notifier, clock timeutil.Clock, logger logging.Logger) *Recorder {
	if cfg.TotalsEvery == 0 {
		cfg.TotalsEvery = 30
	}
	if cfg.NotifyTimeout <= 0 {
		cfg.NotifyTimeout = 30 * time.Second
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Recorder{
		cfg:      cfg,
		store:    store,
		notifier: notifier,
		clock:    clock,
		logger:   logger.Named("recorder"),
		sessions: make(map[string]string),
	}
}

// OnReport records everything noteworthy in one frame's report. Persistence
// happens inline; notifications run in the background.
func (r *Recorder) OnReport(sourceID string, report *session.Report) {
	newSession := r.trackSession(sourceID, report)

	for _, c := range report.Crossings {
		r.save("crossing", func() error {
			return r.store.SaveCrossing(&database.CrossingRecord{
				SessionID:  report.SessionID,
				SourceID:   sourceID,
				TrackID:    c.TrackID,
				Direction:  string(c.Direction),
				FrameIndex: report.FrameIndex,
				Timestamp:  report.Time,
				X:          c.Centroid.X,
				Y:          c.Centroid.Y,
			})
		})
	}

	if report.Alert != nil {
		r.recordAlert(sourceID, report)
	}

	for _, rec := range report.Recognitions {
		r.recordRecognition(sourceID, report, rec)
	}

	if newSession || len(report.Crossings) > 0 || (report.FrameIndex+1)%r.cfg.TotalsEvery == 0 {
		r.save("session totals", func() error {
			return r.store.UpdateSessionTotals(report.SessionID, report.In, report.Out, report.FrameIndex+1)
		})
	}
}

// EndSource closes the open session of a source
func (r *Recorder) EndSource(sourceID string) {
	r.mu.Lock()
	id, ok := r.sessions[sourceID]
	delete(r.sessions, sourceID)
	r.mu.Unlock()

	if ok {
		now := r.clock.Now()
		r.save("session end", func() error { return r.store.EndSession(id, now) })
	}
}

// OnSourceStopped ends the session of a source that stopped
func (r *Recorder) OnSourceStopped(sourceID string) {
	r.EndSource(sourceID)
}

// Close ends every open session and waits for pending notifications
func (r *Recorder) Close() error {
	r.mu.Lock()
	sources := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		sources = append(sources, id)
	}
	r.mu.Unlock()

	for _, id := range sources {
		r.EndSource(id)
	}
	r.wg.Wait()
	return nil
}

// trackSession registers the report's session the first time it is seen,
// ending the previous session of the source. It reports whether the session
// is new.
func (r *Recorder) trackSession(sourceID string, report *session.Report) bool {
	r.mu.Lock()
	prev, ok := r.sessions[sourceID]
	if ok && prev == report.SessionID {
		r.mu.Unlock()
		return false
	}
	r.sessions[sourceID] = report.SessionID
	r.mu.Unlock()

	if ok {
		r.save("session end", func() error { return r.store.EndSession(prev, report.Time) })
	}
	r.save("session", func() error {
		return r.store.SaveSession(&database.SessionRecord{
			ID:        report.SessionID,
			SourceID:  sourceID,
			StartedAt: report.Time,
		})
	})
	r.logger.Infow("recording session", "source", sourceID, "session", report.SessionID)
	return true
}

func (r *Recorder) recordAlert(sourceID string, report *session.Report) {
	ev := *report.Alert
	name := fmt.Sprintf("mobile_violation_%s.jpg", ev.Time.Format(timestampLayout))
	path := r.saveFrame(ViolationsDir, name, report.Frame)

	rec := &database.AlertRecord{
		SessionID:   report.SessionID,
		SourceID:    sourceID,
		FrameIndex:  ev.FrameIndex,
		Timestamp:   ev.Time,
		Consecutive: ev.Consecutive,
		FramePath:   path,
	}
	r.save("alert", func() error { return r.store.SaveAlert(rec) })

	if r.notifier == nil {
		return
	}
	frame := append([]byte(nil), report.Frame...)
	r.notify(func(ctx context.Context) error {
		if err := r.notifier.SendViolationAlert(ctx, sourceID, ev, frame); err != nil {
			return err
		}
		rec.NotificationSent = true
		r.save("alert", func() error { return r.store.SaveAlert(rec) })
		return nil
	})
}

func (r *Recorder) recordRecognition(sourceID string, report *session.Report, recog session.Recognition) {
	name := fmt.Sprintf("face_%s_%s.jpg", fileSafeName(recog.Name), recog.Time.Format(timestampLayout))
	path := r.saveFrame(FacesDir, name, report.Frame)

	rec := &database.RecognitionRecord{
		SessionID:  report.SessionID,
		SourceID:   sourceID,
		Name:       recog.Name,
		Confidence: recog.Confidence,
		Box:        recog.Box,
		FrameIndex: recog.FrameIndex,
		Timestamp:  recog.Time,
		FramePath:  path,
	}
	r.save("recognition", func() error { return r.store.SaveRecognition(rec) })

	if r.notifier == nil {
		return
	}
	frame := append([]byte(nil), report.Frame...)
	r.notify(func(ctx context.Context) error {
		if err := r.notifier.SendRecognition(ctx, sourceID, recog, frame); err != nil {
			return err
		}
		rec.NotificationSent = true
		r.save("recognition", func() error { return r.store.SaveRecognition(rec) })
		return nil
	})
}

func (r *Recorder) save(what string, fn func() error) {
	if r.store == nil {
		return
	}
	if err := fn(); err != nil {
		r.logger.Errorw("failed to persist "+what, "error", err)
	}
}

func (r *Recorder) notify(fn func(ctx context.Context) error) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), r.cfg.NotifyTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			r.logger.Warnw("notification failed", "error", err)
		}
	}()
}

// fileSafeName reduces a recognizer-supplied name to [A-Za-z0-9_-], with
// spaces as underscores
func fileSafeName(name string) string {
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			return r
		case r == ' ':
			return '_'
		default:
			return -1
		}
	}, strings.TrimSpace(name))
	if safe == "" {
		return "unnamed"
	}
	return safe
}

// saveFrame writes frame under SnapshotDir/dir and returns its path, or ""
// when nothing was written. An existing file is never overwritten.
func (r *Recorder) saveFrame(dir, name string, frame []byte) string {
	if r.cfg.SnapshotDir == "" || len(frame) == 0 {
		return ""
	}

	if name != filepath.Base(name) || name == "." || name == ".." {
		r.logger.Errorw("refusing to save frame outside snapshot directory", "name", name)
		return ""
	}

	target := filepath.Join(r.cfg.SnapshotDir, dir)
	if err := os.MkdirAll(target, 0o755); err != nil {
		r.logger.Errorw("failed to create snapshot directory", "dir", target, "error", err)
		return ""
	}

	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for i := 1; i <= 100; i++ {
		path := filepath.Join(target, name)
		if i > 1 {
			path = filepath.Join(target, fmt.Sprintf("%s_%d%s", stem, i, ext))
		}

		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			r.logger.Errorw("failed to save frame", "path", path, "error", err)
			return ""
		}
		_, werr := f.Write(frame)
		cerr := f.Close()
		if err := errors.Join(werr, cerr); err != nil {
			r.logger.Errorw("failed to save frame", "path", path, "error", err)
			return ""
		}
		return path
	}

	r.logger.Errorw("too many frames with the same name", "name", name)
	return ""
}

// Ensure Recorder implements ReportHandler
var (
	_ pipeline.ReportHandler     = (*Recorder)(nil)
	_ pipeline.SourceStopHandler = (*Recorder)(nil)
)
