// focusd - Webcam focus monitoring daemon
//
// focusd samples frames pushed by a connected browser page, classifies each
// frame with a vision model, debounces the raw results into a stable status,
// ducks background audio while the user is distracted or absent, and records
// per-session focus statistics.
//
//	focusd                      Run with the default config file
//	focusd -config path.toml    Run with an explicit config file
//	focusd -listen 0.0.0.0:8750 Override the listen address
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"focusd/internal/audio"
	"focusd/internal/classify"
	"focusd/internal/config"
	"focusd/internal/health"
	"focusd/internal/logging"
	"focusd/internal/metrics"
	"focusd/internal/monitor"
	"focusd/internal/notify"
	"focusd/internal/sampler"
	"focusd/internal/server"
	"focusd/internal/session"
	"focusd/internal/store"
)

var version = "dev"

func main() {
	var (
		configPath  = flag.String("config", "", "path to config file (default: "+config.ConfigPath()+")")
		listenAddr  = flag.String("listen", "", "listen address override")
		logLevel    = flag.String("log-level", "", "log level override (debug, info, warn, error)")
		showVersion = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("focusd %s\n", version)
		return
	}

	if err := run(*configPath, *listenAddr, *logLevel); err != nil {
		fmt.Fprintf(os.Stderr, "focusd: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, listenAddr, logLevel string) error {
	// A .env next to the working directory may carry OPENAI_API_KEY.
	if err := config.LoadDotEnv(); err != nil {
		return fmt.Errorf("load .env: %w", err)
	}

	if configPath == "" {
		configPath = config.ConfigPath()
	}

	loader := config.NewLoader(configPath)
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	defer loader.Close()

	if listenAddr != "" {
		cfg.Server.ListenAddr = listenAddr
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("create directories: %w", err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	defer logger.Close()
	log := logger.Logger

	log.Info("starting focusd",
		slog.String("version", version),
		slog.String("config", configPath))

	// Session persistence.
	st, err := store.Open(cfg.Storage.Type, cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	// Vision classifier.
	classifier, err := classify.New(classify.Config{
		APIKey:          cfg.Classifier.APIKey,
		BaseURL:         cfg.Classifier.BaseURL,
		Model:           cfg.Classifier.Model,
		MaxOutputTokens: int64(cfg.Classifier.MaxOutputTokens),
		MaxAttempts:     cfg.Classifier.MaxAttempts,
		BackoffBase:     time.Duration(cfg.Classifier.RetryBackoffMs) * time.Millisecond,
	})
	if err != nil {
		return fmt.Errorf("create classifier: %w", err)
	}

	// Desktop notifications; a missing session bus degrades to a no-op.
	var sender notify.Sender
	if cfg.Notify.Enabled {
		dbusSender, err := notify.NewDBusSender()
		if err != nil {
			log.Warn("desktop notifications unavailable", slog.String("error", err.Error()))
		} else {
			sender = dbusSender
			defer dbusSender.Close()
		}
	}
	notifier := notify.New(notify.Config{
		OnDistraction: cfg.Notify.Enabled && cfg.Notify.OnDistraction,
		OnSessionEnd:  cfg.Notify.Enabled && cfg.Notify.OnSessionEnd,
	}, sender, log.With(slog.String("component", "notify")))

	// Background audio, rendered by connected browser pages.
	audioCtl := audio.NewController(nil, nil)
	audioCtl.SetBaseVolume(cfg.Audio.BaseVolume)
	audioCtl.SetRampDuration(time.Duration(cfg.Audio.RampMs) * time.Millisecond)

	met := metrics.NewFocusdMetrics()
	recorder := session.NewRecorder()

	mon := monitor.New(monitor.Config{
		Sensitivity: cfg.Monitor.Sensitivity,
		Sampler:     samplerConfig(cfg),
	}, classifier, recorder, audioCtl, met, log.With(slog.String("component", "monitor")))

	checker := health.NewChecker()
	srv := server.New(server.Config{
		ListenAddr:      cfg.Server.ListenAddr,
		AllowedOrigins:  cfg.Server.AllowedOrigins,
		ReadTimeout:     time.Duration(cfg.Server.ReadTimeoutSec) * time.Second,
		WriteTimeout:    time.Duration(cfg.Server.WriteTimeoutSec) * time.Second,
		ShutdownTimeout: time.Duration(cfg.Server.ShutdownTimeoutSec) * time.Second,
		HistoryLimit:    cfg.Storage.HistoryLimit,
	}, server.Deps{
		Monitor: mon,
		Audio:   audioCtl,
		Store:   st,
		Health:  checker,
		Metrics: met,
		Log:     log.With(slog.String("component", "server")),
	})

	// The browser page renders the audio the daemon controls.
	audioCtl.SetBackend(srv.Hub())

	// Fan out classifier backoff notices and finished sessions.
	classifier.SetBusyNotifier(func(r classify.Result) {
		met.ClassifyRetries.Inc()
		srv.BroadcastBusy(r)
	})
	recorder.AddSink(func(done session.StudySession) {
		if err := st.SaveSession(done); err != nil {
			log.Error("save session failed",
				slog.String("session_id", done.ID),
				slog.String("error", err.Error()))
		}
		notifier.SessionEnded(done)
	})
	mon.OnStatusChange(notifier.StatusChanged)

	checker.Register(&health.Component{
		Name:     "store",
		Critical: true,
		Check:    health.DatabaseCheck(st.Ping),
	})
	checker.RegisterFunc("classifier", true, health.ClassifierCheck(func() bool {
		return cfg.Classifier.APIKey != "" || os.Getenv("OPENAI_API_KEY") != ""
	}))
	checker.RegisterFunc("frame_feed", false, health.FrameFeedCheck(srv.Hub().Ready))
	checker.SetReady(true)

	// Hot reload for the settings that are safe to change mid-run.
	loader.OnChange(func(next *config.Config) {
		mon.SetSensitivity(next.Monitor.Sensitivity)
		audioCtl.SetBaseVolume(next.Audio.BaseVolume)
		audioCtl.SetRampDuration(time.Duration(next.Audio.RampMs) * time.Millisecond)
		log.Info("config reloaded",
			slog.Int("sensitivity", next.Monitor.Sensitivity),
			slog.Float64("base_volume", next.Audio.BaseVolume))
	})
	if err := loader.Watch(); err != nil {
		log.Warn("config watch unavailable", slog.String("error", err.Error()))
	}
	go func() {
		for err := range loader.Errors() {
			log.Warn("config reload rejected", slog.String("error", err.Error()))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	}

	// Finalize any active session before dropping the clients.
	if mon.Running() {
		if done, err := mon.Stop(); err == nil {
			log.Info("session finalized on shutdown", slog.String("session_id", done.ID))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeoutSec)*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("shutdown incomplete", slog.String("error", err.Error()))
	}

	log.Info("focusd stopped")
	return nil
}

func newLogger(cfg *config.Config) (*logging.Logger, error) {
	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	return logging.New(&logging.Config{
		Level:      level,
		Format:     logging.ParseFormat(cfg.Logging.Format),
		Output:     cfg.Logging.Output,
		FilePath:   cfg.Logging.FilePath,
		MaxSizeMB:  int64(cfg.Logging.MaxSizeMB),
		MaxBackups: cfg.Logging.MaxBackups,
		Component:  "focusd",
	})
}

func samplerConfig(cfg *config.Config) sampler.Config {
	return sampler.Config{
		Interval: time.Duration(cfg.Monitor.SampleIntervalMs) * time.Millisecond,
		Warmup:   time.Duration(cfg.Monitor.WarmupMs) * time.Millisecond,
	}
}
