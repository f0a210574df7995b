// ABOUTME: Tests for the WAV container reader
// ABOUTME: Builds synthetic containers in memory and checks parsing, seeking and conversion
package wav

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"

	"github.com/Resonate-Protocol/resonate-mixer/pkg/audio"
)

type testChunk struct {
	id   string
	body []byte
}

type wavSpec struct {
	tag      uint16
	channels uint16
	rate     uint32
	bits     uint16
	fmtExt   []byte
	before   []testChunk // between RIFF header and fmt
	after    []testChunk // between fmt and data
	trailing []testChunk // after data
	data     []byte
	noData   bool
	riffSize *uint32
}

func writeChunk(buf *bytes.Buffer, id string, body []byte) {
	buf.WriteString(id)
	binary.Write(buf, binary.LittleEndian, uint32(len(body)))
	buf.Write(body)
	if len(body)%2 == 1 {
		buf.WriteByte(0)
	}
}

func buildWAV(s wavSpec) []byte {
	var body bytes.Buffer
	body.WriteString("WAVE")
	for _, c := range s.before {
		writeChunk(&body, c.id, c.body)
	}

	var f bytes.Buffer
	block := s.channels * s.bits / 8
	binary.Write(&f, binary.LittleEndian, s.tag)
	binary.Write(&f, binary.LittleEndian, s.channels)
	binary.Write(&f, binary.LittleEndian, s.rate)
	binary.Write(&f, binary.LittleEndian, s.rate*uint32(block))
	binary.Write(&f, binary.LittleEndian, block)
	binary.Write(&f, binary.LittleEndian, s.bits)
	f.Write(s.fmtExt)
	writeChunk(&body, "fmt ", f.Bytes())

	for _, c := range s.after {
		writeChunk(&body, c.id, c.body)
	}
	if !s.noData {
		writeChunk(&body, "data", s.data)
	}
	for _, c := range s.trailing {
		writeChunk(&body, c.id, c.body)
	}

	var out bytes.Buffer
	out.WriteString("RIFF")
	size := uint32(body.Len())
	if s.riffSize != nil {
		size = *s.riffSize
	}
	binary.Write(&out, binary.LittleEndian, size)
	out.Write(body.Bytes())
	return out.Bytes()
}

func pcm16Spec(data []byte) wavSpec {
	return wavSpec{tag: FormatPCM, channels: 2, rate: 44100, bits: 16, data: data}
}

func rampBytes(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i)
	}
	return data
}

func TestMinimalRoundTrip(t *testing.T) {
	data := rampBytes(1000)
	raw := buildWAV(pcm16Spec(data))
	if len(raw) != 44+len(data) {
		t.Fatalf("expected 44-byte header, got %d", len(raw)-len(data))
	}

	r, err := NewReader(bytes.NewReader(raw), DefaultOptions())
	if err != nil {
		t.Fatalf("failed to parse: %v", err)
	}
	if r.Length() != int64(len(data)) {
		t.Fatalf("expected length %d, got %d", len(data), r.Length())
	}
	if !r.Format().IsCanonical() {
		t.Errorf("expected canonical format, got %v", r.Format())
	}

	var got []byte
	for _, size := range []int{4, 100, 396, 500} {
		buf := make([]byte, size)
		n, err := r.Read(buf)
		if err != nil {
			t.Fatalf("read %d failed: %v", size, err)
		}
		got = append(got, buf[:n]...)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("expected %d data bytes back, got %d", len(data), len(got))
	}
	if r.Position() != r.Length() {
		t.Errorf("expected position at end, got %d", r.Position())
	}
	if _, err := r.Read(make([]byte, 4)); !errors.Is(err, io.EOF) {
		t.Errorf("expected io.EOF at end, got %v", err)
	}
}

func TestReadShortBuffer(t *testing.T) {
	r, err := NewReader(bytes.NewReader(buildWAV(pcm16Spec(rampBytes(8)))), DefaultOptions())
	if err != nil {
		t.Fatalf("failed to parse: %v", err)
	}
	if _, err := r.Read(make([]byte, 3)); !errors.Is(err, io.ErrShortBuffer) {
		t.Errorf("expected io.ErrShortBuffer, got %v", err)
	}
	n, err := r.Read(make([]byte, 7))
	if err != nil || n != 4 {
		t.Errorf("expected one whole block, got %d, %v", n, err)
	}
}

func TestFormatErrors(t *testing.T) {
	valid := buildWAV(pcm16Spec(rampBytes(8)))

	badRIFF := append([]byte{}, valid...)
	copy(badRIFF, "RIFX")
	badWAVE := append([]byte{}, valid...)
	copy(badWAVE[8:], "AVI ")

	shortFmt := []byte("RIFF\x14\x00\x00\x00WAVEfmt \x08\x00\x00\x00\x01\x00\x02\x00\x44\xac\x00\x00")

	tests := []struct {
		name string
		raw  []byte
		op   string
	}{
		{"empty", nil, "riff"},
		{"bad riff tag", badRIFF, "riff"},
		{"bad wave tag", badWAVE, "wave"},
		{"short fmt", shortFmt, "fmt"},
		{"fmt missing", buildWAV(wavSpec{tag: FormatPCM, channels: 2, rate: 44100, bits: 16,
			before: []testChunk{{"LIST", []byte("INFO")}}, data: rampBytes(4)}), "fmt"},
		{"no data", buildWAV(wavSpec{tag: FormatPCM, channels: 2, rate: 44100, bits: 16, noData: true}), "data"},
		{"unknown tag", buildWAV(wavSpec{tag: 0x0055, channels: 2, rate: 44100, bits: 16, data: rampBytes(4)}), "fmt"},
		{"odd depth", buildWAV(wavSpec{tag: FormatPCM, channels: 1, rate: 44100, bits: 12, data: rampBytes(4)}), "fmt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewReader(bytes.NewReader(tt.raw), DefaultOptions())
			if !errors.Is(err, audio.ErrFormat) {
				t.Fatalf("expected ErrFormat, got %v", err)
			}
			var fe *FormatError
			if !errors.As(err, &fe) {
				t.Fatalf("expected *FormatError, got %T", err)
			}
			if fe.Op != tt.op {
				t.Errorf("expected op %q, got %q", tt.op, fe.Op)
			}
		})
	}
}

func TestChunkTable(t *testing.T) {
	list := append([]byte("INFO"), []byte("INAM\x05\x00\x00\x00hello\x00")...)
	raw := buildWAV(wavSpec{
		tag: FormatPCM, channels: 2, rate: 44100, bits: 16,
		before:   []testChunk{{"bext", make([]byte, 10)}},
		after:    []testChunk{{"fact", []byte{1, 0, 0, 0}}, {"odd ", []byte{7, 8, 9}}},
		data:     rampBytes(8),
		trailing: []testChunk{{"LIST", list}},
	})

	r, err := NewReader(bytes.NewReader(raw), DefaultOptions())
	if err != nil {
		t.Fatalf("failed to parse: %v", err)
	}

	chunks := r.Chunks()
	ids := []string{"bext", "fact", "odd ", "LIST"}
	if len(chunks) != len(ids) {
		t.Fatalf("expected %d chunks, got %d: %+v", len(ids), len(chunks), chunks)
	}
	for i, id := range ids {
		if chunks[i].ID != id {
			t.Errorf("expected chunk %d to be %q, got %q", i, id, chunks[i].ID)
		}
	}
	if chunks[0].Offset != 20 {
		t.Errorf("expected bext body at offset 20, got %d", chunks[0].Offset)
	}

	odd, err := r.ReadChunk("odd ")
	if err != nil {
		t.Fatalf("failed to read chunk: %v", err)
	}
	if !bytes.Equal(odd, []byte{7, 8, 9}) {
		t.Errorf("expected odd chunk body 07 08 09, got % x", odd)
	}

	// the pad byte after "odd " must not shift the data chunk
	buf := make([]byte, 8)
	if _, err := io.ReadFull(r, buf); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if !bytes.Equal(buf, rampBytes(8)) {
		t.Errorf("expected ramp data after ReadChunk, got % x", buf)
	}

	if _, err := r.ReadChunk("cue "); !errors.Is(err, ErrChunkNotFound) {
		t.Errorf("expected ErrChunkNotFound, got %v", err)
	}
	if _, ok := r.Chunk("data"); ok {
		t.Error("expected data chunk to be excluded from the table")
	}
}

func TestTruncatedDataIsClamped(t *testing.T) {
	raw := buildWAV(pcm16Spec(rampBytes(400)))
	raw = raw[:len(raw)-100]

	r, err := NewReader(bytes.NewReader(raw), DefaultOptions())
	if err != nil {
		t.Fatalf("failed to parse: %v", err)
	}
	if r.Length() != 300 {
		t.Errorf("expected clamped length 300, got %d", r.Length())
	}
	pcm, err := r.ReadAll()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if len(pcm) != 300 {
		t.Errorf("expected 300 bytes, got %d", len(pcm))
	}
}

func TestBogusRIFFSizeFallsBackToStream(t *testing.T) {
	zero := uint32(0)
	spec := pcm16Spec(rampBytes(16))
	spec.riffSize = &zero

	r, err := NewReader(bytes.NewReader(buildWAV(spec)), DefaultOptions())
	if err != nil {
		t.Fatalf("failed to parse: %v", err)
	}
	if r.Length() != 16 {
		t.Errorf("expected length 16, got %d", r.Length())
	}
}

func TestSeekRoundsToSourceBlock(t *testing.T) {
	// 24-bit stereo: 6-byte source blocks, 4-byte output blocks
	spec := wavSpec{tag: FormatPCM, channels: 2, rate: 22050, bits: 24, data: make([]byte, 60)}
	r, err := NewReader(bytes.NewReader(buildWAV(spec)), DefaultOptions())
	if err != nil {
		t.Fatalf("failed to parse: %v", err)
	}

	if r.BlockAlign() != 4 {
		t.Fatalf("expected output block 4, got %d", r.BlockAlign())
	}
	if r.Length() != 40 {
		t.Fatalf("expected output length 40, got %d", r.Length())
	}

	tests := []struct {
		offset   int64
		whence   int
		expected int64
	}{
		{0, io.SeekStart, 0},
		{7, io.SeekStart, 4},
		{8, io.SeekStart, 8},
		{3, io.SeekCurrent, 8},
		{-4, io.SeekEnd, 36},
		{1000, io.SeekStart, 40},
	}

	for _, tt := range tests {
		pos, err := r.Seek(tt.offset, tt.whence)
		if err != nil {
			t.Fatalf("seek(%d, %d) failed: %v", tt.offset, tt.whence, err)
		}
		if pos != tt.expected {
			t.Errorf("seek(%d, %d): expected %d, got %d", tt.offset, tt.whence, tt.expected, pos)
		}
	}

	if _, err := r.Seek(-1, io.SeekStart); err == nil {
		t.Error("expected error for negative seek")
	}
}

func TestConversionOnRead(t *testing.T) {
	float := func(vals ...float32) []byte {
		var b bytes.Buffer
		binary.Write(&b, binary.LittleEndian, vals)
		return b.Bytes()
	}
	int32s := func(vals ...int32) []byte {
		var b bytes.Buffer
		binary.Write(&b, binary.LittleEndian, vals)
		return b.Bytes()
	}

	tests := []struct {
		name     string
		spec     wavSpec
		expected []int16
	}{
		{
			"8-bit",
			wavSpec{tag: FormatPCM, channels: 1, rate: 11025, bits: 8, data: []byte{0, 128, 255}},
			[]int16{-32768, 128, 32767},
		},
		{
			"24-bit",
			wavSpec{tag: FormatPCM, channels: 1, rate: 44100, bits: 24,
				data: []byte{0x56, 0x34, 0x12, 0x00, 0xFF, 0xFF}},
			[]int16{0x1234, -1},
		},
		{
			"32-bit int",
			wavSpec{tag: FormatPCM, channels: 1, rate: 44100, bits: 32,
				data: int32s(0x7FFFFFFF, -0x80000000, 0x00010000)},
			[]int16{32767, -32768, 1},
		},
		{
			"32-bit float",
			wavSpec{tag: FormatIEEEFloat, channels: 1, rate: 44100, bits: 32,
				data: float(1.0, -1.0, 0.5, 2.0, -2.0)},
			[]int16{32767, -32767, 16383, 32767, -32768},
		},
		{
			"extensible float",
			wavSpec{tag: FormatExtensible, channels: 1, rate: 44100, bits: 32,
				fmtExt: extensibleExt(FormatIEEEFloat), data: float(0.25)},
			[]int16{8191},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pcm, format, err := Decode(bytes.NewReader(buildWAV(tt.spec)), DefaultOptions())
			if err != nil {
				t.Fatalf("decode failed: %v", err)
			}
			if format.BitDepth != 16 {
				t.Fatalf("expected 16-bit output, got %d", format.BitDepth)
			}
			if len(pcm) != len(tt.expected)*2 {
				t.Fatalf("expected %d bytes, got %d", len(tt.expected)*2, len(pcm))
			}
			for i, want := range tt.expected {
				got := int16(binary.LittleEndian.Uint16(pcm[i*2:]))
				if got != want {
					t.Errorf("sample %d: expected %d, got %d", i, want, got)
				}
			}
		})
	}
}

func TestConversionDisabledKeepsSourceWidth(t *testing.T) {
	spec := wavSpec{tag: FormatPCM, channels: 2, rate: 44100, bits: 24, data: make([]byte, 12)}
	r, err := NewReader(bytes.NewReader(buildWAV(spec)), Options{})
	if err != nil {
		t.Fatalf("failed to parse: %v", err)
	}
	if r.Format().BitDepth != 24 || r.BlockAlign() != 6 || r.Length() != 12 {
		t.Errorf("expected raw 24-bit output, got %v block %d length %d", r.Format(), r.BlockAlign(), r.Length())
	}
}

func TestDecodeNonSeekable(t *testing.T) {
	data := rampBytes(64)
	pcm, format, err := Decode(io.MultiReader(bytes.NewReader(buildWAV(pcm16Spec(data)))), DefaultOptions())
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if !format.IsCanonical() {
		t.Errorf("expected canonical format, got %v", format)
	}
	if !bytes.Equal(pcm, data) {
		t.Error("expected decoded data to match")
	}
}

func extensibleExt(sub uint16) []byte {
	ext := make([]byte, 24)
	binary.LittleEndian.PutUint16(ext[0:], 22)
	binary.LittleEndian.PutUint16(ext[2:], 32)
	binary.LittleEndian.PutUint16(ext[8:], sub)
	copy(ext[10:], []byte{0x00, 0x00, 0x00, 0x00, 0x10, 0x00, 0x80, 0x00, 0x00, 0xAA, 0x00, 0x38, 0x9B, 0x71})
	return ext
}
