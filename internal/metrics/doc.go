// Package metrics provides Prometheus metrics for the event stream client.
//
// Key metrics:
//   - Connection status and reconnects by cause
//   - Frame receive and drop counts
//   - Handler dispatches and recovered panics
//   - Live subscription count
//
// All methods are safe to call on a nil *Metrics.
package metrics
