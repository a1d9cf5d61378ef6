// Package server implements the HTTP API: the OpenAI-compatible audio
// transcriptions endpoint plus monitoring/management endpoints with
// Prometheus metrics instrumentation.
package server
