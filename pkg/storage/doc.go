/*
Package storage persists NAS client registrations.

The Store interface is implemented by a BoltDB-backed store so a radgate
deployment can manage its NAS table at runtime and survive restarts
without re-reading configuration. Records are stored as JSON keyed by
server endpoint and NAS source address.

The transaction table is deliberately not persisted; reply retention is
bounded in seconds and does not outlive the process.
*/
package storage
