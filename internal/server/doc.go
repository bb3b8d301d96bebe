// Package server implements the HTTP monitoring surface for the recorder:
// health, status and configuration endpoints, the in-memory recording store
// with WAV download, Prometheus metrics, and a websocket event feed.
package server
