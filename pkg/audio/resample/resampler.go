// ABOUTME: Fixed-ratio averaging upsampler
// ABOUTME: Converts 16-bit PCM to 44.1 kHz stereo by repeated 2x interpolation
package resample

import (
	"encoding/binary"
	"fmt"

	"github.com/Resonate-Protocol/resonate-mixer/pkg/audio"
)

const maxInterpolated = 32767

// UnsupportedFormatError reports a source the resampler cannot convert.
// It unwraps to audio.ErrUnsupportedFormat.
type UnsupportedFormatError struct {
	SampleRate int
	Channels   int
	BitDepth   int
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("resample: unsupported source %dHz/%dch/%dbit", e.SampleRate, e.Channels, e.BitDepth)
}

// Unwrap returns audio.ErrUnsupportedFormat
func (e *UnsupportedFormatError) Unwrap() error {
	return audio.ErrUnsupportedFormat
}

// Passes returns how many 2x steps bring rate up to the canonical rate
func Passes(rate int) (int, bool) {
	switch rate {
	case audio.CanonicalSampleRate:
		return 0, true
	case audio.CanonicalSampleRate / 2:
		return 1, true
	case audio.CanonicalSampleRate / 4:
		return 2, true
	default:
		return 0, false
	}
}

// OutputLength returns the size in bytes Resample produces for n input bytes
func OutputLength(n, rate, channels int) int {
	passes, ok := Passes(rate)
	if !ok || channels < 1 || channels > 2 {
		return 0
	}
	return (n << passes) * audio.CanonicalChannels / channels
}

// Resample converts 16-bit little-endian PCM at rate/channels into canonical
// 44.1 kHz stereo. The input is never modified; a 44.1 kHz stereo source is copied.
func Resample(pcm []byte, rate, channels int) ([]byte, error) {
	passes, ok := Passes(rate)
	if !ok || channels < 1 || channels > 2 {
		return nil, &UnsupportedFormatError{SampleRate: rate, Channels: channels, BitDepth: 16}
	}
	if len(pcm)%(2*channels) != 0 {
		return nil, fmt.Errorf("resample: %w: %d bytes is not a whole number of %d-channel frames",
			audio.ErrMisaligned, len(pcm), channels)
	}

	if passes == 0 && channels == audio.CanonicalChannels {
		out := make([]byte, len(pcm))
		copy(out, pcm)
		return out, nil
	}

	samples := decode(pcm)
	for range passes {
		samples = Upsample2x(samples, channels)
	}
	if channels == 1 {
		samples = MonoToStereo(samples)
	}
	return encode(samples), nil
}

// ToCanonical resamples pcm described by format. Only 16-bit sources are accepted.
func ToCanonical(pcm []byte, format audio.Format) ([]byte, error) {
	if format.BitDepth != 16 {
		return nil, &UnsupportedFormatError{
			SampleRate: format.SampleRate,
			Channels:   format.Channels,
			BitDepth:   format.BitDepth,
		}
	}
	return Resample(pcm, format.SampleRate, format.Channels)
}

// Upsample2x doubles the frame count of interleaved samples. Each source
// frame is kept and followed by the rounded average of it and the next frame,
// per channel. The last frame is averaged with itself.
func Upsample2x(in []int16, channels int) []int16 {
	frames := len(in) / channels
	out := make([]int16, 0, frames*2*channels)

	for f := 0; f < frames; f++ {
		cur := in[f*channels : (f+1)*channels]
		next := cur
		if f+1 < frames {
			next = in[(f+1)*channels : (f+2)*channels]
		}
		out = append(out, cur...)
		for ch := range channels {
			out = append(out, average(cur[ch], next[ch]))
		}
	}
	return out
}

// MonoToStereo duplicates each sample into a left/right pair
func MonoToStereo(in []int16) []int16 {
	out := make([]int16, len(in)*2)
	for i, s := range in {
		out[i*2] = s
		out[i*2+1] = s
	}
	return out
}

// average rounds half away from zero and clamps to ±32767
func average(a, b int16) int16 {
	sum := int32(a) + int32(b)
	var avg int32
	if sum >= 0 {
		avg = (sum + 1) / 2
	} else {
		avg = (sum - 1) / 2
	}
	if avg > maxInterpolated {
		avg = maxInterpolated
	} else if avg < -maxInterpolated {
		avg = -maxInterpolated
	}
	return int16(avg)
}

func decode(pcm []byte) []int16 {
	out := make([]int16, len(pcm)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	return out
}

func encode(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}
