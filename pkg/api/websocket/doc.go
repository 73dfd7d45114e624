// Package websocket provides real-time event streaming via WebSocket.
//
// Clients can connect to /api/v1/missions/:id/ws to receive the state
// transitions and phase events of one mission as they happen.
package websocket
