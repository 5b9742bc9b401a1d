/*
Package counter implements the per-server statistics store.

Each server instance owns one Store tagged with its listen endpoint. The
store keeps two counter families: server-level counters (invalid requests,
discards with no available handler) and per-NAS counters (requests, replies
by command, duplicates, malformed packets, drops, handler failures).

Counters are monotonic between resets. Pull returns the current snapshot
and zeroes the store in one atomic step; Read returns the snapshot without
mutation; Reset zeroes without returning values. Increments are mirrored
into the Prometheus collectors in pkg/metrics so both the RADIUS-native
stats interface and the exposition endpoint stay consistent.
*/
package counter
