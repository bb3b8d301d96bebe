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

	"github.com/qkdxorjs1002/recorder-service/internal/capture"
	"github.com/qkdxorjs1002/recorder-service/internal/config"
	"github.com/qkdxorjs1002/recorder-service/internal/metrics"
	"github.com/qkdxorjs1002/recorder-service/internal/recorder"
	"github.com/qkdxorjs1002/recorder-service/internal/server"
)

const (
	serviceName    = "recorder-service"
	serviceVersion = "1.0.0"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "", "Path to configuration file (defaults apply when empty)")
	inputPath := flag.String("input", "", "Capture float32-LE PCM from a file instead of an audio device")
	listenPCM := flag.String("listen-pcm", "", "Capture float32-LE PCM from UDP datagrams on this address")
	duration := flag.Duration("duration", 0, "Stop recording automatically after this duration (0 = run until signal)")
	flag.Parse()

	// Load configuration
	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	// Initialize logger based on configuration
	logger := initLogger(cfg.Logging)

	// Log service startup
	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", *configPath),
	)

	// Log configuration summary
	logger.Info("Configuration loaded",
		slog.Int("target_sample_rate", cfg.Recorder.TargetSampleRate),
		slog.Int("capture_sample_rate", cfg.Recorder.CaptureSampleRate),
		slog.Int("channels", cfg.Recorder.Channels),
		slog.Int("window_size", cfg.Recorder.WindowSize()),
		slog.Bool("broadcast_windows", cfg.Recorder.BroadcastWindows),
		slog.Bool("produce_artifact", cfg.Recorder.ProduceArtifact),
		slog.Bool("use_encode_task", cfg.Recorder.UseEncodeTask),
		slog.String("log_level", cfg.Logging.Level),
	)

	// Create cancellable context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize Prometheus metrics
	appMetrics := metrics.NewMetrics()
	logger.Info("Prometheus metrics initialized")

	// Build the capture provider chain for the selected source
	provider, cleanup, err := buildProvider(*inputPath, *listenPCM, logger)
	if err != nil {
		logger.Error("Failed to build capture provider", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if cleanup != nil {
		defer cleanup()
	}

	// Initialize recorder
	rec, err := recorder.New(&cfg.Recorder, provider, logger, appMetrics)
	if err != nil {
		logger.Error("Failed to create recorder", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("Recorder initialized")

	// Track the finished recording so shutdown can wait for the artifact
	recorded := make(chan recorder.Recording, 1)
	rec.OnRecorded(func(recording recorder.Recording) {
		select {
		case recorded <- recording:
		default:
		}
	})
	rec.OnError(func(err error) {
		logger.Warn("Recorder error", slog.String("error", err.Error()))
	})

	// Initialize HTTP monitor server (if enabled)
	var monitor *server.Monitor
	if cfg.Monitor.Enabled {
		monitor = server.NewMonitor(logger, cfg, rec, appMetrics)
		if err := monitor.Start(); err != nil {
			logger.Error("Failed to start monitor server", slog.String("error", err.Error()))
			os.Exit(1)
		}
		logger.Info("Monitor server started", slog.String("address", cfg.Monitor.ListenAddr()))
	}

	// Start recording
	if err := rec.Start(ctx); err != nil {
		logger.Error("Failed to start recording", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	var autoStop <-chan time.Time
	if *duration > 0 {
		autoStop = time.After(*duration)
	}

	logger.Info("Recording, waiting for signals...")

	// Wait for shutdown signal or the auto-stop timer
	select {
	case sig := <-sigChan:
		logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
	case <-autoStop:
		logger.Info("Recording duration elapsed", slog.Duration("duration", *duration))
	case <-ctx.Done():
		logger.Info("Context cancelled, shutting down")
	}

	logger.Info("Starting graceful shutdown...")

	// Stop recording; this requests the artifact dump when one is configured
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := rec.Stop(stopCtx); err != nil {
		logger.Error("Error stopping recording", slog.String("error", err.Error()))
	}
	stopCancel()

	// Wait for the finished recording before tearing the pipeline down
	if cfg.Recorder.ProduceArtifact {
		select {
		case recording := <-recorded:
			logger.Info("Final recording produced",
				slog.String("recording_id", recording.ID.String()),
				slog.Int("size_bytes", recording.Size),
				slog.String("mime_type", recording.MIMEType),
			)
		case <-time.After(10 * time.Second):
			logger.Warn("Timed out waiting for the final recording")
		}
	}

	// Release the capture stream and the encoder
	rec.Release()

	// Stop monitor server last so the final recording stays downloadable
	// until shutdown
	if monitor != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := monitor.Stop(shutdownCtx); err != nil {
			logger.Error("Error stopping monitor server", slog.String("error", err.Error()))
		}
		shutdownCancel()
	}

	// Get final statistics
	stats := rec.Stats()
	logger.Info("Final recorder statistics",
		slog.Uint64("samples_pushed", stats.Accumulator.SamplesPushed),
		slog.Uint64("windows_emitted", stats.Accumulator.WindowsEmitted),
		slog.Uint64("samples_discarded", stats.Accumulator.SamplesDiscarded),
		slog.Uint64("windows_broadcast", stats.WindowsBroadcast),
		slog.Uint64("artifacts_produced", stats.ArtifactsProduced),
	)

	logger.Info("Service stopped")
}

// buildProvider selects the capture source: a UDP PCM listener, a paced PCM
// file reader, or the default audio device chain. The returned cleanup
// closes the input file, if one was opened.
func buildProvider(inputPath, listenPCM string, logger *slog.Logger) (capture.Provider, func(), error) {
	switch {
	case listenPCM != "":
		return capture.NewChain(logger, capture.NewUDPProvider(listenPCM, logger)), nil, nil

	case inputPath != "":
		file, err := os.Open(inputPath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open input file %s: %w", inputPath, err)
		}
		cleanup := func() { file.Close() }
		return capture.NewChain(logger, capture.NewReaderProvider(file, logger)), cleanup, nil

	default:
		return capture.NewChain(logger, capture.NewDeviceProvider(logger)), nil, nil
	}
}

// initLogger creates and configures the structured logger based on configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	// Parse log level
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo // default fallback
	}

	// Configure handler options
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug, // Add source info for debug level
	}

	// Determine output destination
	var output *os.File
	switch cfg.Output {
	case "stderr":
		output = os.Stderr
	case "stdout", "":
		output = os.Stdout
	default:
		// Assume it's a file path
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stdout\n", cfg.Output, err)
			output = os.Stdout
		} else {
			output = file
		}
	}

	// Create handler based on format
	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	case "text", "":
		handler = slog.NewTextHandler(output, opts)
	default:
		// Default to text format
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}
