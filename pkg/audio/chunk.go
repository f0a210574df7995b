// ABOUTME: Timestamped audio chunk
// ABOUTME: Immutable unit of canonical audio passed from streams to the mixer and the engine
package audio

// Chunk is a block of canonical-format audio produced for one refill cycle
type Chunk struct {
	buffer    *SampleBuffer
	byteCount int
	position  float64
	duration  float64
	category  Category
}

// NewChunk builds a chunk. byteCount is the number of meaningful bytes in buf
// and position is the originating stream position in seconds.
func NewChunk(buf *SampleBuffer, byteCount int, position float64, category Category) Chunk {
	if byteCount > buf.Len() {
		byteCount = buf.Len()
	}
	if byteCount < 0 {
		byteCount = 0
	}
	return Chunk{
		buffer:    buf,
		byteCount: byteCount,
		position:  position,
		duration:  Canonical.Duration(byteCount),
		category:  category,
	}
}

// Buffer returns the sample storage. Its length may exceed ByteCount; the tail is silence.
func (c Chunk) Buffer() *SampleBuffer { return c.buffer }

// ByteCount returns the number of bytes actually produced
func (c Chunk) ByteCount() int { return c.byteCount }

// Position returns the stream position, in seconds, at read time
func (c Chunk) Position() float64 { return c.position }

// Duration returns ByteCount expressed in seconds of canonical audio
func (c Chunk) Duration() float64 { return c.duration }

// Category returns the category tag of the producing stream
func (c Chunk) Category() Category { return c.category }

// Empty reports whether the chunk carries no audio
func (c Chunk) Empty() bool { return c.byteCount == 0 }
