// ABOUTME: Asset decoder package for loading sounds from disk
// ABOUTME: Provides Decoder interface and implementations for WAV, MP3, FLAC, Ogg Vorbis and raw PCM
// Package decode turns stored audio assets into 16-bit PCM.
//
// Supports: WAV (8/16/24/32-bit and float), MP3, FLAC, Ogg Vorbis and
// headerless PCM.
//
// Every decoder returns interleaved 16-bit little-endian samples together
// with their format, ready for resample.ToCanonical. Decoding happens once at
// load time; nothing here runs on the playback path.
//
// Example:
//
//	pcm, format, err := decode.File("sounds/laser.wav", wav.DefaultOptions())
//	stereo, err := resample.ToCanonical(pcm, format)
package decode
