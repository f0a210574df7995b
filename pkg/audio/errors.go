// ABOUTME: Error taxonomy for the audio pipeline
// ABOUTME: Sentinels matched with errors.Is by loaders, mixer callers and the engine
package audio

import "errors"

var (
	// ErrFormat reports a malformed or missing RIFF, WAVE, fmt or data chunk
	ErrFormat = errors.New("malformed audio container")
	// ErrUnsupportedFormat reports a source rate, channel count or bit depth the resampler cannot handle
	ErrUnsupportedFormat = errors.New("unsupported audio format")
	// ErrCapacityExceeded reports that the mixer already holds its maximum number of streams
	ErrCapacityExceeded = errors.New("maximum concurrent streams reached")
	// ErrInvalidCategory reports an unknown category identifier
	ErrInvalidCategory = errors.New("invalid category")
	// ErrDeviceUnavailable reports that the native audio backend could not be opened
	ErrDeviceUnavailable = errors.New("audio device unavailable")
	// ErrMisaligned reports a byte length that is not a multiple of the viewed element size
	ErrMisaligned = errors.New("buffer length is not a multiple of the element size")
)
