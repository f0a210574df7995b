// ABOUTME: Aliased sample buffer views
// ABOUTME: One owned byte slice reinterpreted as int16 or float32 samples without copying
package audio

import (
	"encoding/binary"
	"errors"
	"math"
	"unsafe"
)

// ErrNotLittleEndian is returned by the typed views on big-endian hosts, where
// a reinterpretation of little-endian PCM would yield byte-swapped samples.
var ErrNotLittleEndian = errors.New("typed sample views require a little-endian host")

var littleEndianHost = func() bool {
	x := uint16(1)
	return *(*byte)(unsafe.Pointer(&x)) == 1
}()

// SampleBuffer owns a byte buffer of little-endian PCM. Int16s and Float32s
// return slices over the same memory, so writes through any view are visible
// through the others.
type SampleBuffer struct {
	data []byte
}

// NewSampleBuffer allocates a zeroed buffer of size bytes
func NewSampleBuffer(size int) *SampleBuffer {
	return &SampleBuffer{data: make([]byte, size)}
}

// WrapSampleBuffer takes ownership of data without copying it
func WrapSampleBuffer(data []byte) *SampleBuffer {
	return &SampleBuffer{data: data}
}

// Len returns the buffer size in bytes
func (b *SampleBuffer) Len() int {
	if b == nil {
		return 0
	}
	return len(b.data)
}

// Bytes returns the underlying storage
func (b *SampleBuffer) Bytes() []byte {
	if b == nil {
		return nil
	}
	return b.data
}

// Int16s returns the buffer viewed as signed 16-bit samples
func (b *SampleBuffer) Int16s() ([]int16, error) {
	if b.Len() == 0 {
		return nil, nil
	}
	if len(b.data)%2 != 0 {
		return nil, ErrMisaligned
	}
	if !littleEndianHost {
		return nil, ErrNotLittleEndian
	}
	return unsafe.Slice((*int16)(unsafe.Pointer(&b.data[0])), len(b.data)/2), nil
}

// Float32s returns the buffer viewed as 32-bit IEEE floats
func (b *SampleBuffer) Float32s() ([]float32, error) {
	if b.Len() == 0 {
		return nil, nil
	}
	if len(b.data)%4 != 0 {
		return nil, ErrMisaligned
	}
	if !littleEndianHost {
		return nil, ErrNotLittleEndian
	}
	return unsafe.Slice((*float32)(unsafe.Pointer(&b.data[0])), len(b.data)/4), nil
}

// Int16At decodes the i-th 16-bit sample. It works on any host.
func (b *SampleBuffer) Int16At(i int) int16 {
	return int16(binary.LittleEndian.Uint16(b.data[i*2:]))
}

// SetInt16 encodes v as the i-th 16-bit sample
func (b *SampleBuffer) SetInt16(i int, v int16) {
	binary.LittleEndian.PutUint16(b.data[i*2:], uint16(v))
}

// Float32At decodes the i-th float sample
func (b *SampleBuffer) Float32At(i int) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(b.data[i*4:]))
}

// SetFloat32 encodes v as the i-th float sample
func (b *SampleBuffer) SetFloat32(i int, v float32) {
	binary.LittleEndian.PutUint32(b.data[i*4:], math.Float32bits(v))
}

// Clear zero-fills the buffer
func (b *SampleBuffer) Clear() {
	clear(b.data)
}
