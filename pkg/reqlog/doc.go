/*
Package reqlog records per-request log lines for the radgate server.

Every accepted request and every reply is written through a Writer keyed
by the NAS source tuple (IP, port, request id). The default writer emits
structured zerolog lines; NASes whose registration carries the trace flag
additionally get human-readable trace lines covering every step their
requests take through the server, including discards.
*/
package reqlog
