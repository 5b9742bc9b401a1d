/*
Package admission provides the rate-limiting queue that sits in front of
handler execution.

Each server instance owns one named Queue. Before a handler worker starts
real work it asks the queue for a token; a refusal means the request is
dropped and counted against the NAS. Tokens are returned when the handler
finishes so the in-flight cap tracks actual concurrency.

The queue combines a token-bucket rate limit (requests per second with a
burst allowance) and a maximum number of in-flight handlers. Either limit
being exhausted refuses admission; admission never blocks the caller.
*/
package admission
