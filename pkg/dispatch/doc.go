/*
Package dispatch selects the worker node that executes a handler.

Selection is a pure function over the set of nodes currently advertising
the handler module and the NAS's node preference. A NAS with no explicit
preference is pinned to the listening node; otherwise the candidate set is
the intersection of advertising and preferred nodes, and when more than one
candidate remains one is picked uniformly at random so load spreads across
the pool per request instead of pinning to a single worker.
*/
package dispatch
