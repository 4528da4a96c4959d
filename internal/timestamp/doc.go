// Package timestamp produces time snapshots for envelopes and status reports.
//
// All reads of "now" go through a clockwork.Clock so tests can pin time. Zone
// resolution never fails: unknown labels fall back to UTC and are flagged on the
// returned snapshot.
package timestamp
