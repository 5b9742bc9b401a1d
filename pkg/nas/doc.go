/*
Package nas implements the registry that maps an incoming source address
to its NAS client registration.

Every datagram a server receives is attributed by looking up the triple
(listen IP, listen port, source IP). A hit yields the handler module to
invoke and the NasProperties the request carries for its lifetime; a miss
means the sender is unknown and the packet is dropped.

Registrations come from the YAML configuration, from the persistent store,
or from direct Register calls, and can change at runtime without
disturbing in-flight transactions (each transaction holds its own copy of
the properties).
*/
package nas
