// Package server serves the exposition over HTTP.
//
// Routes:
//   - <metrics path> (default /metrics): promhttp handler over the registry.
//     Each request triggers one synchronous collection. Collection errors are
//     logged and the remaining families are still served.
//   - /healthz: liveness, JSON {"status":"ok"}. Never calls the upstream.
//   - /: landing page linking to the metrics path.
package server
