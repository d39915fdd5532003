// Package api hosts the status HTTP server of a crawl. Routes:
//   - GET /healthz and /readyz for probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/progress for the live run snapshot.
//   - GET /v1/status for committed key and stored record counts.
//   - GET /v1/records?limit=&offset= for a page of stored records.
package api
