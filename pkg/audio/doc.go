// ABOUTME: Audio fundamentals package providing core types and utilities
// ABOUTME: Defines Format, Category, SampleBuffer, Chunk and the error taxonomy
// Package audio provides the fundamental types of the mixing pipeline.
//
// This package defines core types used throughout resonate-mixer:
//   - Format: describes a PCM format; Canonical is the 44.1kHz stereo 16-bit device format
//   - Category: closed enumeration (Effect, Music) keying volume levels and stream budgets
//   - SampleBuffer: one byte buffer with aliased int16/float32 views
//   - Chunk: an immutable, timestamped block of canonical audio
//
// Example:
//
//	buf := audio.NewSampleBuffer(audio.Canonical.BytesFor(10))
//	samples, _ := buf.Int16s()
//	samples[0] = 1000 // visible through buf.Bytes()
package audio
