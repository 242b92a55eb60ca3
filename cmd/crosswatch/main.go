package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"crosswatch/internal/api"
	"crosswatch/internal/auth"
	"crosswatch/internal/config"
	"crosswatch/internal/database"
	"crosswatch/internal/detection"
	"crosswatch/internal/health"
	"crosswatch/internal/logging"
	"crosswatch/internal/pipeline"
	"crosswatch/internal/pipeline/detectors"
	"crosswatch/internal/pipeline/strategies"
	"crosswatch/internal/recorder"
	"crosswatch/internal/services"
	"crosswatch/internal/session"
	"crosswatch/internal/stream"
	"crosswatch/internal/telegram"
	"crosswatch/internal/timeutil"
	"crosswatch/internal/ws"
)

func main() {
	var (
		envF      = flag.String("env", ".env", "Environment file loaded before the process environment")
		httpAddrF = flag.String("http-addr", "", "HTTP listen address (overrides HTTP_ADDR)")
		grpcAddrF = flag.String("grpc-addr", "", "gRPC health listen address (overrides GRPC_ADDR)")
		logLevelF = flag.String("log-level", "", "Log level: debug, info, warn, error (overrides LOG_LEVEL)")
		sourceF   = flag.String("source", "", "Source started at boot: file, rtsp/http URL or device (overrides SOURCE)")
	)
	flag.Parse()

	cfg, err := config.Load(*envF)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *httpAddrF != "" {
		cfg.HTTPAddr = *httpAddrF
	}
	if *grpcAddrF != "" {
		cfg.GRPCAddr = *grpcAddrF
	}
	if *logLevelF != "" {
		cfg.LogLevel = *logLevelF
	}
	if *sourceF != "" {
		cfg.Source = *sourceF
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New("crosswatch", cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Errorw("exiting", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger logging.Logger) error {
	clock := timeutil.RealClock{}

	db, err := database.New(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	boundary, err := config.LoadBoundary(cfg.BoundaryPath, 0)
	if err != nil {
		return err
	}

	global := pipeline.DefaultGlobalConfig()
	global.FPS = cfg.FrameRate
	global.FaceMode = pipeline.FaceMode(cfg.FaceStrategy)
	global.FaceEveryN = cfg.FaceEveryN
	global.FaceInterval = cfg.FaceInterval
	global.Session = cfg.SessionConfig()
	global.Boundary = boundary

	// Detector collaborators
	objectClient := detection.NewObjectDetector(detection.ObjectDetectorConfig{
		ServiceEndpoint: cfg.DetectorURL,
		Clock:           clock,
	})
	deps := pipeline.ManagerDeps{
		FrameProvider: pipeline.NewFFmpegFrameProvider(logger),
		Detector:      detectors.NewYOLOAdapter(objectClient),
		Clock:         clock,
		Logger:        logger,
	}
	var faceClient *detection.FaceRecognizer
	if cfg.FaceRecognizerURL != "" {
		faceClient = detection.NewFaceRecognizer(detection.FaceRecognizerConfig{
			ServiceEndpoint: cfg.FaceRecognizerURL,
			Clock:           clock,
		})
		deps.Recognizer = detectors.NewFaceAdapter(faceClient)
	} else {
		global.FaceMode = pipeline.FaceModeDisabled
	}
	deps.StrategyFactory = strategies.NewStrategyFactory(clock).Create

	manager := pipeline.NewSourcePipelineManager(deps, global)

	// Notifier
	var (
		bot      *telegram.TelegramBot
		notifier recorder.Notifier
	)
	if cfg.Telegram.BotToken != "" {
		bot = telegram.NewTelegramBot(telegram.Config{
			BotToken: cfg.Telegram.BotToken,
			ChatID:   cfg.Telegram.ChatID,
			Enabled:  cfg.Telegram.Enabled,
		}, logger)
		notifier = bot
	}

	rec := recorder.New(recorder.Config{SnapshotDir: cfg.SnapshotDir}, db, notifier, clock, logger)
	hub := ws.NewTelemetryHub(logger)
	manager.SubscribeReports(rec)
	manager.SubscribeReports(hub)

	authenticator, err := auth.NewAuthenticator(cfg.Auth, clock)
	if err != nil {
		return err
	}

	// Services
	var configNotifier services.Notifier
	if bot != nil {
		configNotifier = bot
	}
	sources := services.NewSourceService(manager)
	checks := []services.ReadinessCheck{
		{Name: "database", Check: db.Ping},
		{Name: "detector", Check: healthCheck(objectClient.IsHealthy)},
	}
	if faceClient != nil {
		checks = append(checks, services.ReadinessCheck{Name: "face_recognizer", Check: healthCheck(faceClient.IsHealthy)})
	}
	svc := api.Services{
		Health:  services.NewHealthService(checks...),
		Sources: sources,
		System:  services.NewSystemService(sources, authenticator, configNotifier, clock),
		Auth:    services.NewAuthService(authenticator),
		Events:  services.NewEventService(db),
		Config:  services.NewConfigService(cfg.Telegram, configNotifier, manager),
	}
	exists := func(id string) bool {
		_, ok := manager.Publisher(id)
		return ok
	}
	streams := api.Streams{
		Feed:      stream.NewFeedHandler(manager.Publisher, stream.DefaultMaxFPS, logger),
		Snapshot:  stream.NewSnapshotHandler(manager.Publisher),
		Telemetry: ws.NewHandler(hub, exists),
	}
	server := api.New(svc, streams, authenticator, logger)
	for _, m := range server.Mounts() {
		logger.Debugw("HTTP route mounted", "route", m)
	}

	// Create channel used by both the signal handler and server goroutines
	// to notify the main goroutine when to stop the server.
	errc := make(chan error)

	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
		errc <- fmt.Errorf("%s", <-c)
	}()

	var wg sync.WaitGroup
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	grpcServer := health.NewServer(logger)
	if err := grpcServer.Start(cfg.GRPCAddr); err != nil {
		return err
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		grpcServer.Watch(ctx, health.DefaultPollInterval, sourceStatuses(manager))
	}()

	if bot != nil {
		commands := telegram.NewCommandHandler(bot, manager, db, clock)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := commands.StartPolling(ctx); err != nil {
				logger.Warnw("telegram command polling stopped", "error", err)
			}
		}()
	}

	handleHTTPServer(ctx, cfg.HTTPAddr, server.Handler(), &wg, errc, logger)

	if cfg.Source != "" {
		if err := manager.StartSource(cfg.SourceName, cfg.Source, nil); err != nil {
			logger.Errorw("failed to start boot source", "source", cfg.SourceName, "device", cfg.Source, "error", err)
		}
	}

	// Wait for signal.
	logger.Infow("exiting", "reason", <-errc)

	// Send cancellation signal to the goroutines.
	cancel()
	wg.Wait()

	if err := manager.Close(); err != nil {
		logger.Warnw("closing pipelines", "error", err)
	}
	if err := rec.Close(); err != nil {
		logger.Warnw("closing recorder", "error", err)
	}
	hub.Close()
	grpcServer.Stop()
	logger.Infow("exited")
	return nil
}

// healthCheck adapts a detector health probe to a readiness check
func healthCheck(isHealthy func(ctx context.Context) bool) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if !isHealthy(ctx) {
			return detection.ErrServiceUnavailable
		}
		return nil
	}
}

func sourceStatuses(manager *pipeline.SourcePipelineManager) health.StatusFunc {
	return func() map[string]session.Status {
		ids := manager.Sources()
		out := make(map[string]session.Status, len(ids))
		for _, id := range ids {
			if pub, ok := manager.Publisher(id); ok {
				out[id], _ = pub.Status()
			}
		}
		return out
	}
}
