package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/qkdxorjs1002/recorder-service/internal/audio"
	"github.com/qkdxorjs1002/recorder-service/internal/config"
	"github.com/qkdxorjs1002/recorder-service/internal/metrics"
	"github.com/qkdxorjs1002/recorder-service/internal/recorder"
)

// maxStoredArtifacts bounds the in-memory recording store; the oldest
// recording is evicted first.
const maxStoredArtifacts = 32

// Monitor provides the HTTP monitoring surface for a recorder: health and
// status endpoints, recording listing and download, Prometheus metrics and
// a websocket event feed.
type Monitor struct {
	server   *http.Server
	logger   *slog.Logger
	config   *config.Config
	recorder *recorder.Recorder
	metrics  *metrics.Metrics
	hub      *Hub

	// Recording store, fed by the recorded observer
	artifacts map[uuid.UUID]recorder.Recording
	order     []uuid.UUID

	startTime time.Time
	mu        sync.RWMutex
}

// windowSummary is the feed projection of a window event; sample payloads
// stay out of the frames.
type windowSummary struct {
	Sequence      uint64    `json:"sequence"`
	RawSampleRate int       `json:"raw_sample_rate"`
	SampleRate    int       `json:"sample_rate"`
	RawSamples    int       `json:"raw_samples"`
	Samples       int       `json:"samples"`
	Timestamp     time.Time `json:"timestamp"`
}

// recordedSummary is the feed projection of a finished recording; the
// artifact bytes are fetched through the download endpoint instead.
type recordedSummary struct {
	ID        uuid.UUID `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	MIMEType  string    `json:"mime_type"`
	Size      int       `json:"size_bytes"`
	Duration  float64   `json:"duration_seconds"`
}

// artifactSummary is one entry in the /artifacts listing.
type artifactSummary struct {
	ID         uuid.UUID `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	MIMEType   string    `json:"mime_type"`
	Size       int       `json:"size_bytes"`
	Duration   float64   `json:"duration_seconds,omitempty"`
	SampleRate uint32    `json:"sample_rate,omitempty"`
	Channels   uint16    `json:"channels,omitempty"`
}

type errorEvent struct {
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// NewMonitor creates the monitoring server and subscribes it to the
// recorder's events.
func NewMonitor(logger *slog.Logger, cfg *config.Config, rec *recorder.Recorder, m *metrics.Metrics) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}

	mon := &Monitor{
		logger:    logger,
		config:    cfg,
		recorder:  rec,
		metrics:   m,
		hub:       NewHub(logger),
		artifacts: make(map[uuid.UUID]recorder.Recording),
		startTime: time.Now(),
	}

	mux := http.NewServeMux()
	mon.setupRoutes(mux)

	mon.server = &http.Server{
		Addr:         cfg.Monitor.ListenAddr(),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	mon.observe(rec)

	return mon
}

// setupRoutes configures the monitoring routes
func (mon *Monitor) setupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", mon.withMetrics("/health", mon.handleHealth))
	mux.HandleFunc("/status", mon.withMetrics("/status", mon.handleStatus))
	mux.HandleFunc("/config", mon.withMetrics("/config", mon.handleConfig))

	// Recording store endpoints
	mux.HandleFunc("/artifacts", mon.withMetrics("/artifacts", mon.handleArtifacts))
	mux.HandleFunc("/artifacts/", mon.withMetrics("/artifacts/{id}", mon.handleArtifactDownload))

	// Prometheus metrics endpoint
	mux.Handle("/metrics", promhttp.Handler())

	// Websocket event feed
	mux.HandleFunc("/events", mon.hub.HandleUpgrade)

	// Root endpoint with API documentation
	mux.HandleFunc("/", mon.withMetrics("/", mon.handleRoot))
}

// observe wires the recorder's events into the store and the feed.
func (mon *Monitor) observe(rec *recorder.Recorder) {
	rec.OnStateChange(func(change recorder.StateChange) {
		mon.hub.Broadcast("state", change)
	})

	rec.OnStream(func(info recorder.StreamInfo) {
		mon.hub.Broadcast("stream", info)
	})

	rec.OnBufferReady(func(ev recorder.WindowEvent) {
		mon.hub.Broadcast("window", windowSummary{
			Sequence:      ev.Sequence,
			RawSampleRate: ev.RawSampleRate,
			SampleRate:    ev.SampleRate,
			RawSamples:    len(ev.Raw),
			Samples:       len(ev.Samples),
			Timestamp:     ev.Timestamp,
		})
	})

	rec.OnRecorded(func(recording recorder.Recording) {
		mon.store(recording)

		summary := recordedSummary{
			ID:        recording.ID,
			Timestamp: recording.Timestamp,
			MIMEType:  recording.MIMEType,
			Size:      recording.Size,
		}
		if duration, err := audio.GetWAVDuration(recording.Data); err == nil {
			summary.Duration = duration
		}
		mon.hub.Broadcast("recorded", summary)
	})

	rec.OnError(func(err error) {
		mon.hub.Broadcast("error", errorEvent{
			Message:   err.Error(),
			Timestamp: time.Now().UTC(),
		})
	})
}

// store keeps a recording for listing and download, evicting the oldest
// past the store bound.
func (mon *Monitor) store(recording recorder.Recording) {
	var evicted []uuid.UUID

	mon.mu.Lock()
	mon.artifacts[recording.ID] = recording
	mon.order = append(mon.order, recording.ID)
	for len(mon.order) > maxStoredArtifacts {
		oldest := mon.order[0]
		mon.order = mon.order[1:]
		delete(mon.artifacts, oldest)
		evicted = append(evicted, oldest)
	}
	mon.mu.Unlock()

	for _, id := range evicted {
		mon.logger.Debug("Evicted oldest stored recording", slog.String("recording_id", id.String()))
	}
}

// withMetrics wraps an HTTP handler with request metrics collection
func (mon *Monitor) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		ww := &responseWriter{ResponseWriter: w, statusCode: 200}

		handler(ww, r)

		if mon.metrics == nil {
			return
		}

		duration := time.Since(startTime).Seconds()
		statusCode := fmt.Sprintf("%d", ww.statusCode)

		mon.metrics.RecordHTTPRequest(r.Method, endpoint, statusCode, duration)

		if ww.statusCode >= 400 {
			errorType := "client_error"
			if ww.statusCode >= 500 {
				errorType = "server_error"
			}
			mon.metrics.RecordHTTPError(r.Method, endpoint, errorType)
		}
	}
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Start starts the monitoring server
func (mon *Monitor) Start() error {
	mon.logger.Info("Starting monitor server",
		slog.String("address", mon.server.Addr),
	)

	go func() {
		if err := mon.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			mon.logger.Error("Monitor server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Stop closes the event feed and gracefully stops the monitoring server
func (mon *Monitor) Stop(ctx context.Context) error {
	mon.logger.Info("Stopping monitor server...")

	mon.hub.Close()
	return mon.server.Shutdown(ctx)
}

// handleHealth implements the /health endpoint
func (mon *Monitor) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	stats := mon.recorder.Stats()

	mon.mu.RLock()
	stored := len(mon.artifacts)
	mon.mu.RUnlock()

	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(mon.startTime).String(),
		"service": map[string]interface{}{
			"name":    "recorder-service",
			"version": "1.0.0",
		},
		"components": map[string]interface{}{
			"recorder": map[string]interface{}{
				"state":              stats.State,
				"windows_broadcast":  stats.WindowsBroadcast,
				"artifacts_produced": stats.ArtifactsProduced,
			},
			"accumulator": map[string]interface{}{
				"remainder_samples": stats.Accumulator.Remainder,
				"windows_emitted":   stats.Accumulator.WindowsEmitted,
				"samples_discarded": stats.Accumulator.SamplesDiscarded,
			},
			"event_feed": map[string]interface{}{
				"clients": mon.hub.ClientCount(),
			},
			"artifact_store": map[string]interface{}{
				"stored": stored,
			},
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(health)
}

// handleStatus implements the /status endpoint
func (mon *Monitor) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	status := map[string]interface{}{
		"uptime":    time.Since(mon.startTime).String(),
		"timestamp": time.Now().UTC(),
		"recorder":  mon.recorder.Stats(),
		"event_feed": map[string]interface{}{
			"clients": mon.hub.ClientCount(),
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(status)
}

// handleConfig implements the /config endpoint
func (mon *Monitor) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sanitized := map[string]interface{}{
		"recorder": map[string]interface{}{
			"target_sample_rate":   mon.config.Recorder.TargetSampleRate,
			"capture_sample_rate":  mon.config.Recorder.CaptureSampleRate,
			"channels":             mon.config.Recorder.Channels,
			"window_size":          mon.config.Recorder.WindowSize(),
			"window_duration":      mon.config.Recorder.WindowDuration().String(),
			"mic_gain":             mon.config.Recorder.MicGain,
			"output_gain":          mon.config.Recorder.OutputGain,
			"latency_hint":         mon.config.Recorder.LatencyHint,
			"broadcast_windows":    mon.config.Recorder.BroadcastWindows,
			"produce_artifact":     mon.config.Recorder.ProduceArtifact,
			"use_encode_task":      mon.config.Recorder.UseEncodeTask,
			"encode_queue_depth":   mon.config.Recorder.EncodeQueueDepth,
			"max_buffered_seconds": mon.config.Recorder.MaxBufferedSeconds,
		},
		"monitor": map[string]interface{}{
			"address": mon.config.Monitor.Address,
			"port":    mon.config.Monitor.Port,
		},
		"logging": map[string]interface{}{
			"level":  mon.config.Logging.Level,
			"format": mon.config.Logging.Format,
			"output": mon.config.Logging.Output,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(sanitized)
}

// handleArtifacts implements the /artifacts endpoint
func (mon *Monitor) handleArtifacts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	mon.mu.RLock()
	recordings := make([]artifactSummary, 0, len(mon.order))
	for _, id := range mon.order {
		recording := mon.artifacts[id]
		entry := artifactSummary{
			ID:        recording.ID,
			Timestamp: recording.Timestamp,
			MIMEType:  recording.MIMEType,
			Size:      recording.Size,
		}
		if info, err := audio.GetWAVInfo(recording.Data); err == nil {
			entry.Duration = info.Duration
			entry.SampleRate = info.SampleRate
			entry.Channels = info.Channels
		}
		recordings = append(recordings, entry)
	}
	mon.mu.RUnlock()

	response := map[string]interface{}{
		"total":      len(recordings),
		"timestamp":  time.Now().UTC(),
		"recordings": recordings,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// handleArtifactDownload implements the /artifacts/{id} endpoint
func (mon *Monitor) handleArtifactDownload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	idStr := r.URL.Path[len("/artifacts/"):]
	if idStr == "" {
		http.Error(w, "Recording ID required", http.StatusBadRequest)
		return
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		http.Error(w, "Invalid recording ID", http.StatusBadRequest)
		return
	}

	mon.mu.RLock()
	recording, exists := mon.artifacts[id]
	mon.mu.RUnlock()
	if !exists {
		http.Error(w, "Recording not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", recording.MIMEType)
	w.Header().Set("Content-Length", strconv.Itoa(recording.Size))
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", recording.ID.String()+".wav"))
	w.Write(recording.Data)
}

// handleRoot implements the / endpoint with API documentation
func (mon *Monitor) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	apiDoc := map[string]interface{}{
		"service": "Recorder Service",
		"version": "1.0.0",
		"endpoints": map[string]interface{}{
			"GET /":               "API documentation",
			"GET /health":         "Service health check",
			"GET /status":         "Recorder state and pipeline statistics",
			"GET /config":         "Service configuration",
			"GET /artifacts":      "List finished recordings",
			"GET /artifacts/{id}": "Download a recording as WAV",
			"GET /metrics":        "Prometheus metrics",
			"GET /events":         "Websocket event feed",
		},
		"timestamp": time.Now().UTC(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(apiDoc)
}
