// ABOUTME: Decoder interface definition
// ABOUTME: Common interface for all asset decoders plus extension-based selection
package decode

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/Resonate-Protocol/resonate-mixer/pkg/audio"
	"github.com/Resonate-Protocol/resonate-mixer/pkg/audio/wav"
)

// Decoder decodes a complete asset to 16-bit PCM
type Decoder interface {
	// Decode reads r to the end and returns interleaved 16-bit little-endian samples
	Decode(r io.Reader) ([]byte, audio.Format, error)
}

// Extensions lists the file extensions ForPath recognizes
var Extensions = []string{".wav", ".wave", ".mp3", ".flac", ".ogg", ".oga", ".pcm", ".raw"}

// ForPath selects a decoder from the file extension
func ForPath(path string, opts wav.Options) (Decoder, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav", ".wave":
		return WAV{Options: opts}, nil
	case ".mp3":
		return MP3{}, nil
	case ".flac":
		return FLAC{}, nil
	case ".ogg", ".oga":
		return Vorbis{}, nil
	case ".pcm", ".raw":
		return PCM{Format: audio.Canonical}, nil
	default:
		return nil, fmt.Errorf("%w: no decoder for %q", audio.ErrUnsupportedFormat, filepath.Ext(path))
	}
}

// Supported reports whether ForPath has a decoder for path
func Supported(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range Extensions {
		if e == ext {
			return true
		}
	}
	return false
}

// File opens and decodes the asset at path
func File(path string, opts wav.Options) ([]byte, audio.Format, error) {
	dec, err := ForPath(path, opts)
	if err != nil {
		return nil, audio.Format{}, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, audio.Format{}, fmt.Errorf("failed to open asset: %w", err)
	}
	defer f.Close()

	pcm, format, err := dec.Decode(f)
	if err != nil {
		return nil, audio.Format{}, fmt.Errorf("failed to decode %s: %w", filepath.Base(path), err)
	}
	return pcm, format, nil
}

// WAV decodes RIFF/WAVE containers
type WAV struct {
	Options wav.Options
}

// Decode parses the container and normalizes sample width per Options
func (d WAV) Decode(r io.Reader) ([]byte, audio.Format, error) {
	pcm, format, err := wav.Decode(r, d.Options)
	if err != nil {
		return nil, audio.Format{}, err
	}
	if format.BitDepth != 16 {
		return nil, audio.Format{}, fmt.Errorf("%w: %d-bit wav without conversion", audio.ErrUnsupportedFormat, format.BitDepth)
	}
	return pcm, format, nil
}
