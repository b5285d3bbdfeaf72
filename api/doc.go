// Package api holds the request and response types of the csescout HTTP API.
//
// # API Overview
//
// csescout exposes a small JSON API:
//   - POST /api/v1/query runs one research query and returns the final answer
//   - GET  /api/v1/query/stream runs a query over a WebSocket and streams the trace live
//   - GET  /api/v1/runs and /api/v1/runs/{id} read the persisted run records
//   - GET  /api/v1/workers lists the registered workers and their tools
//   - /health, /healthz, /ready and /version for probes
//
// # Authentication
//
// When auth.enabled is set, /api/* requires a bearer token:
//
//	Authorization: Bearer <jwt>
//
// # Base URL
//
// The default base URL for the API is:
//
//	http://localhost:8080
package api
