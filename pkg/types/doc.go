/*
Package types defines the core data structures used throughout radgate.

This package contains the fundamental types that represent radgate's domain
model: worker node identities, NAS (Network Access Server) client properties,
and the discard taxonomy used when a request cannot be answered. These types
are used by all other packages for dispatch decisions, accounting, and
request handling.

# NAS Properties

Every RADIUS request is attributed to a NAS, the RADIUS client that sent it.
NasProperties carries everything the server needs to process requests from
one NAS: the shared secret for packet authentication, the endpoint the NAS
talks to, the trace flag, and the set of worker nodes its handler is allowed
to execute on (nil pins execution to the listening node).

# Discard Reasons

When a request is dropped instead of answered, the reason is recorded as a
DiscardReason. The reason is the label of the discards metric and appears
in trace output for trace-flagged NASes. The native counters are coarser:
no_nodes and no_nodes_local, for example, both count as discardNoHandler.
*/
package types
