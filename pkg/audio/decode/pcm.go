// ABOUTME: Headerless PCM decoder
// ABOUTME: Reads raw 8, 16 or 24-bit PCM of a declared format and normalizes it to 16-bit
package decode

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/Resonate-Protocol/resonate-mixer/pkg/audio"
	"github.com/Resonate-Protocol/resonate-mixer/pkg/audio/wav"
)

// PCM decodes raw little-endian samples whose format is known in advance
type PCM struct {
	Format audio.Format
}

// Decode reads r to the end. A trailing partial frame is dropped.
func (d PCM) Decode(r io.Reader) ([]byte, audio.Format, error) {
	block := d.Format.BlockAlign()
	if block == 0 {
		return nil, audio.Format{}, fmt.Errorf("%w: raw pcm %v", audio.ErrUnsupportedFormat, d.Format)
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, audio.Format{}, fmt.Errorf("failed to read pcm: %w", err)
	}
	data = data[:len(data)/block*block]

	out := d.Format
	out.BitDepth = 16
	width := d.Format.BitDepth / 8

	switch d.Format.BitDepth {
	case 16:
		return data, out, nil
	case 8:
		pcm := make([]byte, len(data)*2)
		for i, v := range data {
			binary.LittleEndian.PutUint16(pcm[i*2:], uint16(wav.Convert8To16(v)))
		}
		return pcm, out, nil
	case 24:
		numSamples := len(data) / width
		pcm := make([]byte, numSamples*2)
		for i := 0; i < numSamples; i++ {
			b := [3]byte{data[i*3], data[i*3+1], data[i*3+2]}
			binary.LittleEndian.PutUint16(pcm[i*2:], uint16(wav.Convert24To16(b)))
		}
		return pcm, out, nil
	default:
		return nil, audio.Format{}, fmt.Errorf("%w: raw pcm bit depth %d (supported: 8, 16, 24)",
			audio.ErrUnsupportedFormat, d.Format.BitDepth)
	}
}
