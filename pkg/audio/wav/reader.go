// ABOUTME: WAV container parser and data cursor
// ABOUTME: Walks the RIFF chunk table and reads whole blocks from the data region
package wav

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/Resonate-Protocol/resonate-mixer/pkg/audio"
)

// Format tags found in the fmt chunk
const (
	FormatPCM        uint16 = 0x0001
	FormatIEEEFloat  uint16 = 0x0003
	FormatExtensible uint16 = 0xFFFE
)

const (
	riffHeaderSize = 12
	chunkHeaderLen = 8
	minFmtSize     = 16
	// cbSize + validBits + channelMask + sub-format GUID
	extensibleSize = 2 + 22
)

// Options selects which source widths are normalized to 16-bit signed PCM
type Options struct {
	Convert8  bool
	Convert24 bool
	Convert32 bool
}

// DefaultOptions converts every supported width to 16-bit
func DefaultOptions() Options {
	return Options{Convert8: true, Convert24: true, Convert32: true}
}

// ChunkInfo locates one top-level chunk. Offset is the position of the chunk
// body relative to the start of the container.
type ChunkInfo struct {
	ID     string
	Length uint32
	Offset int64
}

type chunkHeader struct {
	ID   [4]byte
	Size uint32
}

type fmtChunk struct {
	FormatTag     uint16
	Channels      uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
}

// Reader serves the sample data of a parsed WAV container.
// Length, Position and BlockAlign are expressed in the output format.
type Reader struct {
	r    io.ReadSeeker
	base int64

	formatTag uint16
	source    audio.Format
	output    audio.Format
	srcBlock  int
	outBlock  int
	convert   converter

	dataOffset int64
	dataLength int64
	chunks     []ChunkInfo

	srcPos  int64
	scratch []byte
}

// NewReader parses the container starting at the current position of r
func NewReader(r io.ReadSeeker, opts Options) (*Reader, error) {
	base, err := r.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, fmt.Errorf("wav: locate container start: %w", err)
	}
	end, err := r.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, fmt.Errorf("wav: measure stream: %w", err)
	}
	if _, err := r.Seek(base, io.SeekStart); err != nil {
		return nil, fmt.Errorf("wav: rewind: %w", err)
	}

	wr := &Reader{r: r, base: base, dataOffset: -1}
	if err := wr.parse(end - base); err != nil {
		return nil, err
	}
	if err := wr.selectConversion(opts); err != nil {
		return nil, err
	}
	if _, err := r.Seek(base+wr.dataOffset, io.SeekStart); err != nil {
		return nil, fmt.Errorf("wav: seek to data: %w", err)
	}
	return wr, nil
}

func (wr *Reader) parse(physical int64) error {
	var riff [riffHeaderSize]byte
	if _, err := io.ReadFull(wr.r, riff[:]); err != nil {
		return formatErr("riff", "short header: %v", err)
	}
	if string(riff[0:4]) != "RIFF" {
		return formatErr("riff", "missing RIFF tag")
	}
	if string(riff[8:12]) != "WAVE" {
		return formatErr("wave", "missing WAVE tag")
	}

	limit := int64(binary.LittleEndian.Uint32(riff[4:8])) + 8
	if limit > physical || limit < riffHeaderSize {
		limit = physical
	}

	pos := int64(riffHeaderSize)
	hdr, err := wr.readHeader()
	if err != nil {
		return formatErr("fmt", "missing format chunk")
	}
	for string(hdr.ID[:]) == "bext" || string(hdr.ID[:]) == "JUNK" {
		wr.record(hdr, pos)
		pos += chunkHeaderLen + padded(hdr.Size)
		if _, err := wr.r.Seek(wr.base+pos, io.SeekStart); err != nil {
			return fmt.Errorf("wav: skip %s: %w", hdr.ID[:], err)
		}
		if hdr, err = wr.readHeader(); err != nil {
			return formatErr("fmt", "missing format chunk")
		}
	}
	if string(hdr.ID[:]) != "fmt " {
		return formatErr("fmt", "expected format chunk, found %q", hdr.ID[:])
	}
	if err := wr.parseFormat(hdr.Size); err != nil {
		return err
	}
	pos += chunkHeaderLen + padded(hdr.Size)

	for pos+chunkHeaderLen <= limit {
		if _, err := wr.r.Seek(wr.base+pos, io.SeekStart); err != nil {
			return fmt.Errorf("wav: seek chunk: %w", err)
		}
		hdr, err := wr.readHeader()
		if err != nil {
			break
		}
		body := pos + chunkHeaderLen
		if string(hdr.ID[:]) == "data" {
			if wr.dataOffset < 0 {
				wr.dataOffset = body
				wr.dataLength = min(int64(hdr.Size), physical-body)
			}
		} else {
			wr.record(hdr, pos)
		}
		pos = body + padded(hdr.Size)
	}

	if wr.dataOffset < 0 {
		return formatErr("data", "missing data chunk")
	}
	return nil
}

func (wr *Reader) parseFormat(size uint32) error {
	if size < minFmtSize {
		return formatErr("fmt", "chunk is %d bytes, need at least %d", size, minFmtSize)
	}
	var f fmtChunk
	if err := binary.Read(wr.r, binary.LittleEndian, &f); err != nil {
		return formatErr("fmt", "short format chunk: %v", err)
	}

	tag := f.FormatTag
	if size > minFmtSize {
		ext := make([]byte, size-minFmtSize)
		if _, err := io.ReadFull(wr.r, ext); err != nil {
			return formatErr("fmt", "short format extension: %v", err)
		}
		if tag == FormatExtensible {
			if len(ext) < extensibleSize {
				return formatErr("fmt", "extensible format without sub-format")
			}
			// first two bytes of the sub-format GUID carry the base tag
			tag = binary.LittleEndian.Uint16(ext[8:10])
		}
	}

	switch {
	case tag != FormatPCM && tag != FormatIEEEFloat:
		return formatErr("fmt", "unsupported format tag %#04x", tag)
	case f.Channels == 0:
		return formatErr("fmt", "zero channels")
	case tag == FormatIEEEFloat && f.BitsPerSample != 32:
		return formatErr("fmt", "unsupported float width %d", f.BitsPerSample)
	}
	switch f.BitsPerSample {
	case 8, 16, 24, 32:
	default:
		return formatErr("fmt", "unsupported bit depth %d", f.BitsPerSample)
	}

	wr.formatTag = tag
	wr.source = audio.Format{
		SampleRate: int(f.SampleRate),
		Channels:   int(f.Channels),
		BitDepth:   int(f.BitsPerSample),
	}
	wr.srcBlock = wr.source.BlockAlign()
	return nil
}

func (wr *Reader) selectConversion(opts Options) error {
	wr.output = wr.source
	switch {
	case wr.source.BitDepth == 8 && opts.Convert8:
		wr.convert = convert8
	case wr.source.BitDepth == 24 && opts.Convert24:
		wr.convert = convert24
	case wr.source.BitDepth == 32 && opts.Convert32 && wr.formatTag == FormatIEEEFloat:
		wr.convert = convertFloat
	case wr.source.BitDepth == 32 && opts.Convert32:
		wr.convert = convert32
	}
	if wr.convert != nil {
		wr.output.BitDepth = 16
	}
	wr.outBlock = wr.output.BlockAlign()
	if wr.srcBlock == 0 || wr.outBlock == 0 {
		return formatErr("fmt", "zero block alignment")
	}
	return nil
}

func (wr *Reader) readHeader() (chunkHeader, error) {
	var hdr chunkHeader
	err := binary.Read(wr.r, binary.LittleEndian, &hdr)
	return hdr, err
}

func (wr *Reader) record(hdr chunkHeader, pos int64) {
	wr.chunks = append(wr.chunks, ChunkInfo{
		ID:     string(hdr.ID[:]),
		Length: hdr.Size,
		Offset: pos + chunkHeaderLen,
	})
}

// padded returns the on-disk size of a chunk body, including the RIFF pad byte
func padded(size uint32) int64 {
	return int64(size) + int64(size&1)
}

// SourceFormat returns the format stored in the container
func (wr *Reader) SourceFormat() audio.Format { return wr.source }

// Format returns the format produced by Read
func (wr *Reader) Format() audio.Format { return wr.output }

// FormatTag returns the resolved fmt tag (FormatPCM or FormatIEEEFloat)
func (wr *Reader) FormatTag() uint16 { return wr.formatTag }

// BlockAlign returns the size of one output frame
func (wr *Reader) BlockAlign() int { return wr.outBlock }

// Length returns the size of the data region in output bytes
func (wr *Reader) Length() int64 {
	return wr.toOutput(wr.dataLength)
}

// Position returns the cursor in output bytes
func (wr *Reader) Position() int64 {
	return wr.toOutput(wr.srcPos)
}

// Duration returns the playing time of the data region in seconds
func (wr *Reader) Duration() float64 {
	return wr.output.Duration(int(wr.Length()))
}

func (wr *Reader) toOutput(src int64) int64 {
	return src / int64(wr.srcBlock) * int64(wr.outBlock)
}

// Chunks returns every recorded non-data chunk in file order
func (wr *Reader) Chunks() []ChunkInfo {
	out := make([]ChunkInfo, len(wr.chunks))
	copy(out, wr.chunks)
	return out
}

// Chunk looks up the first chunk with the given four-character identifier
func (wr *Reader) Chunk(id string) (ChunkInfo, bool) {
	for _, c := range wr.chunks {
		if c.ID == id {
			return c, true
		}
	}
	return ChunkInfo{}, false
}

// ReadChunk returns the body of the first chunk named id. The data cursor is preserved.
func (wr *Reader) ReadChunk(id string) ([]byte, error) {
	c, ok := wr.Chunk(id)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrChunkNotFound, id)
	}
	return wr.readAt(c)
}

func (wr *Reader) readAt(c ChunkInfo) ([]byte, error) {
	defer wr.r.Seek(wr.base+wr.dataOffset+wr.srcPos, io.SeekStart)

	if _, err := wr.r.Seek(wr.base+c.Offset, io.SeekStart); err != nil {
		return nil, fmt.Errorf("wav: seek chunk %q: %w", c.ID, err)
	}
	body := make([]byte, c.Length)
	n, err := io.ReadFull(wr.r, body)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, fmt.Errorf("wav: read chunk %q: %w", c.ID, err)
	}
	return body[:n], nil
}

// Seek moves the cursor, in output bytes. The target is rounded down to a
// whole source block and clamped to the data region.
func (wr *Reader) Seek(offset int64, whence int) (int64, error) {
	var target int64
	switch whence {
	case io.SeekStart:
		target = offset
	case io.SeekCurrent:
		target = wr.Position() + offset
	case io.SeekEnd:
		target = wr.Length() + offset
	default:
		return wr.Position(), fmt.Errorf("wav: invalid whence %d", whence)
	}
	if target < 0 {
		return wr.Position(), fmt.Errorf("wav: negative position %d", target)
	}

	src := target / int64(wr.outBlock) * int64(wr.srcBlock)
	src = min(src, wr.dataLength/int64(wr.srcBlock)*int64(wr.srcBlock))
	if _, err := wr.r.Seek(wr.base+wr.dataOffset+src, io.SeekStart); err != nil {
		return wr.Position(), fmt.Errorf("wav: seek: %w", err)
	}
	wr.srcPos = src
	return wr.Position(), nil
}

// Read fills p with whole output blocks. It returns io.ErrShortBuffer when p
// cannot hold one block and io.EOF once the data region is exhausted.
func (wr *Reader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	blocks := int64(len(p) / wr.outBlock)
	if blocks == 0 {
		return 0, io.ErrShortBuffer
	}
	remaining := (wr.dataLength - wr.srcPos) / int64(wr.srcBlock)
	if remaining <= 0 {
		return 0, io.EOF
	}
	blocks = min(blocks, remaining)

	srcBytes := int(blocks) * wr.srcBlock
	var src []byte
	if wr.convert == nil {
		src = p[:srcBytes]
	} else {
		if cap(wr.scratch) < srcBytes {
			wr.scratch = make([]byte, srcBytes)
		}
		src = wr.scratch[:srcBytes]
	}

	n, err := io.ReadFull(wr.r, src)
	n -= n % wr.srcBlock
	wr.srcPos += int64(n)
	if wr.convert != nil {
		wr.convert(p, src[:n])
	}
	out := n / wr.srcBlock * wr.outBlock

	if err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			// the stream ended inside the declared region
			wr.dataLength = wr.srcPos
			if out > 0 {
				return out, nil
			}
			return 0, io.EOF
		}
		return out, fmt.Errorf("wav: read data: %w", err)
	}
	return out, nil
}

// ReadAll reads the remaining data region into memory
func (wr *Reader) ReadAll() ([]byte, error) {
	buf := make([]byte, wr.Length()-wr.Position())
	total := 0
	for total < len(buf) {
		n, err := wr.Read(buf[total:])
		total += n
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
	}
	return buf[:total], nil
}

// Decode parses a whole container and returns its samples and output format.
// Non-seekable readers are buffered in memory first.
func Decode(r io.Reader, opts Options) ([]byte, audio.Format, error) {
	rs, ok := r.(io.ReadSeeker)
	if !ok {
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, audio.Format{}, fmt.Errorf("wav: buffer input: %w", err)
		}
		rs = bytes.NewReader(data)
	}

	wr, err := NewReader(rs, opts)
	if err != nil {
		return nil, audio.Format{}, err
	}
	pcm, err := wr.ReadAll()
	if err != nil {
		return nil, audio.Format{}, err
	}
	return pcm, wr.Format(), nil
}
