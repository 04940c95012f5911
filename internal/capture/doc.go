// Package capture wraps the recorder bound to a live stream. The Session type
// queries the recorder's own state before every transition because the
// recorder refuses some of them (it cannot start from paused, for example).
package capture
