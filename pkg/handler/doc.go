/*
Package handler defines the user-supplied request callbacks and the
process-local registry the server and node bus resolve them from.

A Handler couples a module name with the callback that consumes decoded
requests, an opaque configuration value passed through to every call, and
the module-level Message-Authenticator preference. The same registry backs
local execution on the listening node and remote execution when another
node invokes this process over the node bus.
*/
package handler
