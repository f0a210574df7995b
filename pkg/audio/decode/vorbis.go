// ABOUTME: Ogg Vorbis asset decoder
// ABOUTME: Decodes Vorbis to float samples with jfreymuth/oggvorbis and quantizes to 16-bit
package decode

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/Resonate-Protocol/resonate-mixer/pkg/audio"
	"github.com/Resonate-Protocol/resonate-mixer/pkg/audio/wav"
	"github.com/jfreymuth/oggvorbis"
)

// Vorbis decodes Ogg Vorbis streams
type Vorbis struct{}

// Decode reads the whole stream
func (Vorbis) Decode(r io.Reader) ([]byte, audio.Format, error) {
	samples, info, err := oggvorbis.ReadAll(r)
	if err != nil {
		return nil, audio.Format{}, fmt.Errorf("failed to decode vorbis: %w", err)
	}
	if info.Channels < 1 || info.Channels > 2 {
		return nil, audio.Format{}, fmt.Errorf("%w: %d-channel vorbis", audio.ErrUnsupportedFormat, info.Channels)
	}

	pcm := FloatsToPCM16(samples)
	format := audio.Format{SampleRate: info.SampleRate, Channels: info.Channels, BitDepth: 16}
	return pcm, format, nil
}

// FloatsToPCM16 quantizes [-1, 1] float samples to 16-bit little-endian PCM
func FloatsToPCM16(samples []float32) []byte {
	pcm := make([]byte, len(samples)*2)
	for i, f := range samples {
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(wav.ConvertFloatTo16(f)))
	}
	return pcm
}
