// Package registry tracks the live subscriber connections of this instance.
//
// The Registry is the only shared mutable state of the relay. Membership is a map guarded by a
// sync.RWMutex; enumeration always works on a copy taken under the read lock so a broadcast never
// observes a half-applied register or deregister. Each Connection owns a writer goroutine that is
// the only writer on its socket, so slow subscribers never block the caller of Send.
package registry
