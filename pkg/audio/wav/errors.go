// ABOUTME: WAV reader errors
// ABOUTME: FormatError carries the failing parse step and matches audio.ErrFormat
package wav

import (
	"errors"
	"fmt"

	"github.com/Resonate-Protocol/resonate-mixer/pkg/audio"
)

// ErrChunkNotFound is returned by ReadChunk for an identifier the container does not hold
var ErrChunkNotFound = errors.New("wav: chunk not found")

// FormatError reports a malformed container. It unwraps to audio.ErrFormat.
type FormatError struct {
	Op     string
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("wav: %s: %s", e.Op, e.Reason)
}

// Unwrap returns audio.ErrFormat
func (e *FormatError) Unwrap() error {
	return audio.ErrFormat
}

func formatErr(op, format string, args ...any) error {
	return &FormatError{Op: op, Reason: fmt.Sprintf(format, args...)}
}
