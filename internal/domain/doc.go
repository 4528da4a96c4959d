// Package domain defines the relay's shared types and contracts: envelopes,
// timestamps, status snapshots, sentinel errors, and the interfaces the
// adapters are written against. It imports nothing from the rest of the
// module.
package domain
