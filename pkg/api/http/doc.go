// Package http provides the HTTP REST API implementation.
//
// The HTTP server exposes endpoints for:
//   - Roadmap inspection and route planning
//   - Mission submission, synchronous execution and reports
//   - Health checks
//   - Prometheus metrics
package http
