// Package storage holds what the transcript store backends share: sentinel
// errors and the tenant context helpers. The store contract itself is
// transport.TranscriptStore; the memory and postgres subpackages
// implement it.
package storage
