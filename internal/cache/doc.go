// Package cache provides a bounded, TTL-based in-process cache of SPC
// analysis results keyed by a BLAKE2b digest of the measurement table.
package cache
