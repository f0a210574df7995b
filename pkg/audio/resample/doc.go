// ABOUTME: Audio resampling package for the fixed device format
// ABOUTME: Upsamples 11025/22050/44100 Hz 16-bit PCM to 44.1 kHz stereo
// Package resample converts loaded assets to the canonical device format.
//
// Only power-of-two rate steps are supported: 22050 Hz is upsampled once,
// 11025 Hz twice, and 44100 Hz passes through. Each 2x step keeps every
// source frame and inserts the rounded average of it and its successor.
// Mono input is duplicated into both channels.
//
// Example:
//
//	stereo, err := resample.Resample(pcm, 22050, 1)
package resample
