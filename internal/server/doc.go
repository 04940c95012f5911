// Package server implements the HTTP control API of a headless recorder.
// Commands are issued with POST requests, the observable state and the last
// recording are read with GET requests, and Prometheus metrics are exposed
// next to them.
package server
