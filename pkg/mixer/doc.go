// ABOUTME: Multi-stream PCM mixer
// ABOUTME: Per-category volume, bounded concurrency and saturating summation
// Package mixer combines the active stream sessions into one canonical buffer.
//
// Sessions are grouped by audio.Category. Each category has a volume level
// in [0, 1] and a stream budget; the mixer also enforces a global limit.
// ProduceOutputChunk reads every unpaused session in parallel, scales each
// contribution by its category level in 16.16 fixed point, sums in 64 bits
// and saturates to int16. Finished sessions are dropped after each chunk.
//
// Lock order is mixer before stream: the mixer may inspect a session while
// holding its list lock, and sessions never call back into the mixer.
package mixer
