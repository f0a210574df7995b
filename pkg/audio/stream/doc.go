// ABOUTME: In-memory PCM stream sessions
// ABOUTME: Tracks position, pause and one-shot repeat for one playing sound
// Package stream wraps a decoded canonical-format buffer as a playable session.
//
// A Reader is safe for concurrent use: the mixer reads chunks from the audio
// goroutine while control calls pause, resume or rewind it.
package stream
