// ABOUTME: MP3 asset decoder
// ABOUTME: Decodes MP3 to 16-bit stereo PCM with go-mp3
package decode

import (
	"fmt"
	"io"

	"github.com/Resonate-Protocol/resonate-mixer/pkg/audio"
	"github.com/hajimehoshi/go-mp3"
)

// MP3 decodes MPEG-1/2 layer III streams
type MP3 struct{}

// Decode reads the whole stream. go-mp3 always produces 16-bit stereo.
func (MP3) Decode(r io.Reader) ([]byte, audio.Format, error) {
	decoder, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, audio.Format{}, fmt.Errorf("failed to create mp3 decoder: %w", err)
	}

	pcm, err := io.ReadAll(decoder)
	if err != nil {
		return nil, audio.Format{}, fmt.Errorf("mp3 decode error: %w", err)
	}

	format := audio.Format{SampleRate: decoder.SampleRate(), Channels: 2, BitDepth: 16}
	pcm = pcm[:len(pcm)/format.BlockAlign()*format.BlockAlign()]
	return pcm, format, nil
}
