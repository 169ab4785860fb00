// Package api hosts the HTTP server, middleware, and REST handlers for the
// logo service. Notable routes:
//   - GET /healthz and /readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/logos/{domain} returns the logo image, optionally converted
//     with ?format= and ?size=.
//   - GET /v1/logos/{domain}/info returns the selection and every attempt.
//   - GET /v1/logos/{domain}/candidates returns the ranked candidate list.
package api
