// ABOUTME: Sample width conversion to 16-bit signed PCM
// ABOUTME: 8-bit unsigned, 24-bit packed, 32-bit integer and 32-bit float sources
package wav

import (
	"encoding/binary"
	"math"

	"github.com/Resonate-Protocol/resonate-mixer/pkg/audio"
)

// converter writes len(src)/srcWidth 16-bit samples into dst
type converter func(dst, src []byte)

// Convert8To16 maps an unsigned 8-bit sample onto the signed 16-bit range
func Convert8To16(v uint8) int16 {
	return int16(int32(v)*257 - 32768)
}

// Convert24To16 keeps the high 16 bits of a packed little-endian 24-bit sample
func Convert24To16(b [3]byte) int16 {
	return audio.SampleToInt16(audio.SampleFrom24Bit(b))
}

// Convert32To16 keeps the high 16 bits of a 32-bit integer sample
func Convert32To16(v int32) int16 {
	return audio.ClampInt16(int64(v >> 16))
}

// ConvertFloatTo16 scales an IEEE float sample by 32767 and saturates it.
// NaN becomes silence.
func ConvertFloatTo16(f float32) int16 {
	if math.IsNaN(float64(f)) {
		return 0
	}
	v := float64(f) * 32767
	if v >= math.MaxInt16 {
		return math.MaxInt16
	}
	if v <= math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}

func convert8(dst, src []byte) {
	for i, v := range src {
		binary.LittleEndian.PutUint16(dst[i*2:], uint16(Convert8To16(v)))
	}
}

func convert24(dst, src []byte) {
	for i := 0; i+2 < len(src); i += 3 {
		s := Convert24To16([3]byte{src[i], src[i+1], src[i+2]})
		binary.LittleEndian.PutUint16(dst[i/3*2:], uint16(s))
	}
}

func convert32(dst, src []byte) {
	for i := 0; i+3 < len(src); i += 4 {
		s := Convert32To16(int32(binary.LittleEndian.Uint32(src[i:])))
		binary.LittleEndian.PutUint16(dst[i/2:], uint16(s))
	}
}

func convertFloat(dst, src []byte) {
	for i := 0; i+3 < len(src); i += 4 {
		s := ConvertFloatTo16(math.Float32frombits(binary.LittleEndian.Uint32(src[i:])))
		binary.LittleEndian.PutUint16(dst[i/2:], uint16(s))
	}
}
