// Package api serves the read-only HTTP surface over stored comics. Routes:
//   - GET /api/comics/searchable returns every comic with its concatenated panel text.
//   - GET /api/health, /healthz and /readyz for probes. readyz pings the store.
//   - GET /metrics for Prometheus scraping.
package api
