// Command crosswatch-replay runs recorded detections through a counting
// session offline and prints the totals and events as JSON.
//
// Input is JSON lines, one frame per line:
//
//	{"time":"2026-01-02T10:00:00Z","width":640,"height":480,"detections":[{"class":"OUT","confidence":0.9,"bbox":{"x1":10,"y1":20,"x2":60,"y2":120}}]}
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"crosswatch/internal/config"
	"crosswatch/internal/logging"
)

func main() {
	var (
		envF      = flag.String("env", ".env", "Environment file with session settings")
		inF       = flag.String("in", "-", "Detections file, - for stdin")
		boundaryF = flag.String("boundary", "", "Boundary JSON file (overrides BOUNDARY_PATH)")
		fpsF      = flag.Int("fps", 0, "Frame rate used to time lines without a timestamp (overrides FRAME_RATE)")
		logLevelF = flag.String("log-level", "warn", "Log level written to stderr")
	)
	flag.Parse()

	cfg, err := config.Load(*envF)
	if err != nil {
		fail(err)
	}
	if *boundaryF != "" {
		cfg.BoundaryPath = *boundaryF
	}
	if *fpsF > 0 {
		cfg.FrameRate = *fpsF
	}
	if err := cfg.Validate(); err != nil {
		fail(err)
	}

	logger, err := logging.New("replay", *logLevelF)
	if err != nil {
		fail(err)
	}
	defer func() { _ = logger.Sync() }()

	sessionCfg := cfg.SessionConfig()
	sessionCfg.Boundary, err = config.LoadBoundary(cfg.BoundaryPath, 0)
	if err != nil {
		fail(err)
	}

	var in io.Reader = os.Stdin
	if *inF != "-" {
		f, err := os.Open(*inF)
		if err != nil {
			fail(err)
		}
		defer f.Close()
		in = f
	}

	summary, err := replay(in, sessionCfg, cfg.FrameRate, logger)
	if err != nil {
		fail(err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		fail(err)
	}
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "crosswatch-replay: %v\n", err)
	os.Exit(1)
}
