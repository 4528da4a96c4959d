// Package broadcast implements the fan-out of one payload to every live connection.
//
// The Engine stamps a payload once, marshals the envelope once and enqueues the same bytes on each
// connection of a registry snapshot. Enqueueing never blocks: per-connection writer goroutines own the
// sockets, and connections whose buffer is full are evicted as slow clients.
package broadcast
