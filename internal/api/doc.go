// Package api implements the HTTP REST API and WebSocket server for the
// switch service.
//
// This package provides:
//   - REST endpoints to list switches, read their state and send on/off commands
//   - State history queries backed by SQLite
//   - A listen-only WebSocket pushing switch.state_changed to every client
//   - Prometheus metrics on /metrics and a JSON system summary
//   - Middleware stack (request ID, logging, recovery, CORS)
//
// # Commands
//
// POST /api/v1/switches/{id}/on and /off publish the command and answer
// 202 Accepted with the switch's current state. A switch with a state topic
// does not change until the device reports back; the new state then arrives
// on the WebSocket.
//
// # Graceful Degradation
//
// The server runs without MQTT. Reads and WebSocket connections work; commands
// fail with 502 until the broker is reachable.
package api
