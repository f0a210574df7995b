// ABOUTME: Streaming playback engine
// ABOUTME: Keeps N ring buffers queued on a device voice and refills them as they drain
// Package playback drives a Voice from a Source such as the mixer.
//
// The engine owns N equally sized buffers, each latencyMs of canonical
// audio. Start fills all of them before the voice starts, then a dedicated
// goroutine, locked to its OS thread, waits on a condition variable. Each
// buffer-end notification from the voice clears that slot's in-flight bit and
// wakes the goroutine, which pulls a fresh chunk from the source and
// resubmits the slot with the same tag.
//
//	eng := playback.New(mix, voice, playback.DefaultConfig())
//	if err := eng.Start(); err != nil { ... }
//	defer eng.Dispose()
package playback
