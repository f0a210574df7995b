// ABOUTME: Audio type definitions
// ABOUTME: Defines the canonical PCM format, sample categories and sample conversions
package audio

import (
	"fmt"
	"math"
)

const (
	// 24-bit audio range constants
	Max24Bit = 8388607  // 2^23 - 1
	Min24Bit = -8388608 // -2^23

	// CanonicalSampleRate is the device rate every mixed buffer is rendered at
	CanonicalSampleRate = 44100
	// CanonicalChannels is the device channel count
	CanonicalChannels = 2
	// CanonicalBitDepth is the device sample width
	CanonicalBitDepth = 16
)

// Format describes a PCM stream format
type Format struct {
	SampleRate int
	Channels   int
	BitDepth   int
}

// Canonical is the single process-wide format handed to the mixer and the playback engine
var Canonical = Format{
	SampleRate: CanonicalSampleRate,
	Channels:   CanonicalChannels,
	BitDepth:   CanonicalBitDepth,
}

// BlockAlign returns the size of one frame in bytes
func (f Format) BlockAlign() int {
	return f.Channels * f.BitDepth / 8
}

// AverageBytesPerSecond returns the byte rate of the format
func (f Format) AverageBytesPerSecond() int {
	return f.SampleRate * f.BlockAlign()
}

// Duration returns how many seconds byteCount bytes last in this format
func (f Format) Duration(byteCount int) float64 {
	rate := f.AverageBytesPerSecond()
	if rate == 0 {
		return 0
	}
	return float64(byteCount) / float64(rate)
}

// BytesFor returns the block-aligned byte count covering ms milliseconds, rounded up
func (f Format) BytesFor(ms int) int {
	frames := (f.SampleRate*ms + 999) / 1000
	return frames * f.BlockAlign()
}

// IsCanonical reports whether f matches Canonical
func (f Format) IsCanonical() bool {
	return f == Canonical
}

func (f Format) String() string {
	return fmt.Sprintf("%dHz/%dch/%dbit", f.SampleRate, f.Channels, f.BitDepth)
}

// ClampInt16 saturates v to the signed 16-bit range
func ClampInt16(v int64) int16 {
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}

// SampleToInt16 converts a 24-bit sample held in an int32 to int16
func SampleToInt16(sample int32) int16 {
	// Right-shift to convert 24-bit to 16-bit range
	return int16(sample >> 8)
}

// SampleFrom24Bit converts 24-bit packed bytes to int32 (little-endian)
func SampleFrom24Bit(b [3]byte) int32 {
	// Reconstruct 24-bit value and sign-extend to 32-bit
	val := int32(b[0]) | int32(b[1])<<8 | int32(b[2])<<16
	if val&0x800000 != 0 {
		val |= ^0xFFFFFF // Set upper 8 bits to 1 for negative values
	}
	return val
}
