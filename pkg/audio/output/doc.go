// ABOUTME: Audio output package for native playback devices
// ABOUTME: Provides the Voice interface and oto, malgo, null and WAV-recording backends
// Package output implements the device side of the playback engine.
//
// A Voice accepts fixed-size PCM buffers tagged with an integer slot id and
// reports each one back through the onBufferEnd callback once the device has
// consumed it. The callback runs on the backend's audio goroutine.
//
// Backends:
//   - oto: ebitengine/oto player pulling from the slot queue
//   - malgo: miniaudio playback device with a data callback
//   - null: a paced sink that discards audio
//   - wav:<path>: a paced sink that records audio to a WAV file
//
// Example:
//
//	v, err := output.New("oto")
//	err = v.Open(audio.Canonical, func(tag int) { ... })
//	err = v.Submit(buf, 0)
//	err = v.Start()
package output
