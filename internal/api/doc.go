// Package api resolves stream connection info over HTTP.
//
// The host exposes GET {base}/connection-info returning
//
//	{"connectionId": "...", "url": "wss://..."}
//
// Client implements connection.Provider on top of that endpoint, retrying
// 5xx and 429 responses and coalescing concurrent lookups.
package api
