// Package api hosts the HTTP server, middleware, and handlers. Routes:
//   - POST /render renders html, a template, or a URL to an image.
//   - POST /render-html returns the resolved markup without the browser.
//   - GET /presets returns the preset table.
//   - GET /healthz for liveness probes; it never touches the browser.
//   - GET /metrics for Prometheus scraping.
package api
