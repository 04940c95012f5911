// Package metrics defines the Prometheus metrics of the recorder service.
// Metrics live in their own registry so several instances can coexist; every
// Record method is safe to call on a nil *Metrics.
package metrics
