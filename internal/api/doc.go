// Package api hosts the Resolution API HTTP server and its middleware.
// Routes:
//   - GET /archive?url=... resolves a URL to an archive snapshot or submission link.
//   - GET /healthz and /readyz for liveness and readiness probes.
//   - GET /metrics for Prometheus scraping.
package api
