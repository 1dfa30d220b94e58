// Package timeouts defines shared timeout constants used across the sync
// client, the relay, and their entrypoints.
package timeouts

import "time"

// HTTPRequest caps a single REST call to a campaign, donation, or escrow
// service.
const HTTPRequest = 10 * time.Second

// RealtimeDial caps the wait time when opening the realtime WebSocket.
const RealtimeDial = 5 * time.Second

// RealtimeRetry is the delay between realtime reconnect attempts.
const RealtimeRetry = time.Second

// ReadHeader limits how long an HTTP server waits for request headers.
const ReadHeader = 5 * time.Second

// Shutdown limits how long an HTTP server waits for in-flight requests
// during graceful shutdown.
const Shutdown = 5 * time.Second
