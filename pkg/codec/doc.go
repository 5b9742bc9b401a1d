/*
Package codec decodes and encodes RADIUS packets for the radgate server.

This package wraps layeh.com/radius behind the narrow interface the server
core needs: a minimal two-byte peek to extract the request identifier, a
full decode against the NAS shared secret, and reply encoding that preserves
the request identifier and authenticator linkage per RFC 2865.

# Message-Authenticator

On encode, the Message-Authenticator attribute (RFC 2869 §5.14) is added
when the request carried one, when the handler asked for one, or when the
reply relates to a non-empty EAP-Message payload. The HMAC-MD5 is computed
over the reply with the request authenticator in place and the attribute
zeroed, before the response authenticator is finalized.

# Commands

Command enumerates the packet kinds the server routes: the four request
kinds (Access-Request, Accounting-Request, CoA-Request, Disconnect-Request)
and their reply kinds. The statistics package maps each command onto its
counter.
*/
package codec
