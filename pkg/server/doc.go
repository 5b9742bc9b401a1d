/*
Package server implements the radgate RADIUS server core: the UDP
listener, the duplicate-detection transaction table, and the per-request
handler workers.

# Ownership model

One Server owns one bound UDP endpoint. All socket reads, all transaction
table mutations and all internal signals are processed by a single
listener goroutine, so the table needs no locking from workers. Workers
are short-lived goroutines, one per accepted request; they send replies
directly on the shared socket (datagram writes are atomic) and talk back
to the listener over a signal channel.

# Request lifecycle

An incoming datagram is minimally parsed for its request identifier,
attributed to a NAS via the registry, and checked against the transaction
table keyed (source IP, source port, request id):

  - empty slot: a worker is spawned and the entry set to handling
  - handling: the duplicate is swallowed
  - replied: the worker is signalled to retransmit its cached reply

A worker asks the admission queue for a token, selects the executing node
via the dispatcher, runs the handler (locally or over the node bus with a
15 s timeout), transmits the reply, and then retains the encoded bytes for
the resend window, serving up to three retransmissions before telling the
listener to drop the entry. The handler runs exactly once per request key;
retransmissions are byte-identical to the first reply.

# Failure isolation

Handler callbacks run under recover; a panic is logged with its stack,
counted as a handler failure, and turns into a silent discard. If a worker
goroutine itself dies abnormally, the listener purges every table entry
referencing it, so a crash can never leave the table pointing at a dead
worker or disturb the socket.
*/
package server
