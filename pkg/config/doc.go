/*
Package config loads the radgate YAML configuration file.

One file describes the whole process: logging, the node identity, the
optional NATS bus URL, the metrics endpoint, the server endpoints with
their admission limits, and the NAS client table. Defaults are filled in
on load so a minimal file only needs the servers and NAS clients.
*/
package config
