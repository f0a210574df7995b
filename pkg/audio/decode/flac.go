// ABOUTME: FLAC asset decoder
// ABOUTME: Decodes FLAC frames to 16-bit PCM with mewkiz/flac
package decode

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/Resonate-Protocol/resonate-mixer/pkg/audio"
	"github.com/mewkiz/flac"
)

// FLAC decodes native FLAC streams
type FLAC struct{}

// Decode parses every frame and rescales samples to 16 bits
func (FLAC) Decode(r io.Reader) ([]byte, audio.Format, error) {
	stream, err := flac.New(r)
	if err != nil {
		return nil, audio.Format{}, fmt.Errorf("failed to decode FLAC: %w", err)
	}
	defer stream.Close()

	info := stream.Info
	channels := int(info.NChannels)
	bitDepth := int(info.BitsPerSample)
	if channels < 1 || channels > 2 {
		return nil, audio.Format{}, fmt.Errorf("%w: %d-channel flac", audio.ErrUnsupportedFormat, channels)
	}

	var pcm []byte
	if info.NSamples > 0 {
		pcm = make([]byte, 0, int(info.NSamples)*channels*2)
	}

	for {
		frame, err := stream.ParseNext()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, audio.Format{}, fmt.Errorf("flac frame error: %w", err)
		}

		for i := 0; i < int(frame.BlockSize); i++ {
			for ch := 0; ch < channels; ch++ {
				s := scaleTo16(frame.Subframes[ch].Samples[i], bitDepth)
				pcm = binary.LittleEndian.AppendUint16(pcm, uint16(s))
			}
		}
	}

	format := audio.Format{SampleRate: int(info.SampleRate), Channels: channels, BitDepth: 16}
	return pcm, format, nil
}

// scaleTo16 shifts a sample of the given width into the 16-bit range
func scaleTo16(sample int32, bitDepth int) int16 {
	shift := bitDepth - 16
	if shift > 0 {
		return audio.ClampInt16(int64(sample >> shift))
	}
	return audio.ClampInt16(int64(sample) << -shift)
}
