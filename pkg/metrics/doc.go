/*
Package metrics provides Prometheus metrics for radgate.

The collectors here mirror the server's RADIUS-native counter store (see
pkg/counter) so operators can scrape the same numbers the stats interface
reports: request and reply totals by command, duplicate detections,
retransmissions, discards by reason, handler failures and latency, remote
dispatch activity, and node advertisement gauges.

# Exposition

Serve exposes /metrics (Prometheus), /health, /ready and /livez on one
HTTP listener:

	go metrics.Serve(":9812")

# Health checks

Components register themselves at startup and flip their health flag as
conditions change:

	metrics.RegisterComponent("listener", true, "")
	metrics.UpdateComponent("nodebus", false, "nats connection lost")

Readiness requires the listener and, when clustering is enabled, the node
bus to be healthy.
*/
package metrics
