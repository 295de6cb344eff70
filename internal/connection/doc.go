// Package connection implements the Connection Manager component.
//
// The Connection Manager:
//   - Owns the single WebSocket carrying the event feed
//   - Resolves the feed URL through a Provider before every dial
//   - Reconnects after drops using a jittered Fibonacci backoff
//   - Force-refreshes stale or aged connections
//   - Hands every inbound frame and every up/down transition to a Sink
package connection
