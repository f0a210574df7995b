// ABOUTME: Sound asset bank and playback control
// ABOUTME: Loads assets once in canonical format and plays them through the mixer
// Package sound is the surface the host application talks to.
//
// A Bank holds decoded, canonical-format assets addressable by name or by a
// sequential numeric ID. A System ties a Bank to a mixer and a playback
// engine and exposes PlaySound, PlayMusic, Stop, StopAll and the category
// levels. Every call returns immediately; audio is produced on the engine's
// refill goroutine.
package sound
