package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"crosswatch/internal/alert"
	"crosswatch/internal/counting"
	"crosswatch/internal/logging"
	"crosswatch/internal/session"
	"crosswatch/internal/timeutil"
)

const maxLineSize = 4 * 1024 * 1024

// frameLine is one line of the detections file
type frameLine struct {
	Time       time.Time           `json:"time"`
	Width      int                 `json:"width"`
	Height     int                 `json:"height"`
	Detections []session.Detection `json:"detections"`
	Faces      []session.Face      `json:"faces"`
}

// Summary is what a replay prints
type Summary struct {
	SessionID    string                `json:"session_id"`
	Frames       uint64                `json:"frames"`
	In           int                   `json:"in"`
	Out          int                   `json:"out"`
	Boundary     string                `json:"boundary"`
	Crossings    []counting.Crossing   `json:"crossings"`
	Alerts       []alert.Event         `json:"alerts"`
	Recognitions []session.Recognition `json:"recognitions"`
}

// replay feeds every line of r through a fresh session. Lines without a
// timestamp are spaced 1/fps after the previous frame.
func replay(r io.Reader, cfg session.Config, fps int, logger logging.Logger) (*Summary, error) {
	if fps < 1 {
		fps = 1
	}
	step := time.Second / time.Duration(fps)

	clock := timeutil.NewMockClock(time.Unix(0, 0).UTC())
	sess, err := session.New(cfg, clock, logger.Named("session"))
	if err != nil {
		return nil, err
	}

	summary := &Summary{
		Crossings:    []counting.Crossing{},
		Alerts:       []alert.Event{},
		Recognitions: []session.Recognition{},
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	lineNo := 0
	first := true
	for scanner.Scan() {
		lineNo++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		var line frameLine
		if err := json.Unmarshal([]byte(text), &line); err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}

		switch {
		case !line.Time.IsZero():
			clock.Set(line.Time)
		case !first:
			clock.Advance(step)
		}
		first = false

		report := sess.ProcessFrame(session.FrameInput{
			Time:       clock.Now(),
			Detections: line.Detections,
			Faces:      line.Faces,
			Width:      line.Width,
			Height:     line.Height,
		})
		summary.Crossings = append(summary.Crossings, report.Crossings...)
		if report.Alert != nil {
			summary.Alerts = append(summary.Alerts, *report.Alert)
		}
		summary.Recognitions = append(summary.Recognitions, report.Recognitions...)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("line %d: %w", lineNo+1, err)
	}

	summary.SessionID = sess.ID()
	summary.Frames = sess.Frames()
	summary.In, summary.Out = sess.Counts()
	summary.Boundary = sess.Boundary().String()
	return summary, nil
}
