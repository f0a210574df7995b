// ABOUTME: RIFF/WAVE container reader
// ABOUTME: Parses the chunk table and exposes a block-aligned, optionally converting read cursor
// Package wav reads RIFF/WAVE containers.
//
// A Reader parses the container header once, records every chunk other than
// the sample data, and then serves the data region through a seekable cursor.
// 8, 24 and 32-bit sources can be normalized to 16-bit signed PCM on the fly;
// lengths and positions are always reported in the output format.
//
// Example:
//
//	r, err := wav.NewReader(f, wav.DefaultOptions())
//	pcm := make([]byte, r.Length())
//	_, err = io.ReadFull(r, pcm)
package wav
