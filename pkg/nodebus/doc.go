/*
Package nodebus connects radgate nodes over NATS for handler-pool
clustering.

Two concerns live here. Membership: every node periodically publishes the
handler modules it can execute; the bus folds those heartbeats into a
liveness-windowed view answering NodesFor(module). Remote dispatch: a
request whose NAS allows execution on another node is sent to that node
with NATS request-reply and a hard 15 second timeout; the remote node
decodes, runs the handler, encodes the reply bytes and sends them back in
an envelope the local worker transmits verbatim.

Single-node deployments use the Static implementation instead, which
advertises only the local registry and never dials out. The server core
depends on the Monitor and Invoker interfaces, so both wirings look the
same to it.
*/
package nodebus
