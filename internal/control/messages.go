// ABOUTME: Control protocol message definitions
// ABOUTME: JSON envelopes exchanged over the control websocket
package control

import "encoding/json"

// ProtocolVersion is sent in server/hello
const ProtocolVersion = 1

// Message types
const (
	TypeServerHello  = "server/hello"
	TypeServerError  = "server/error"
	TypePlay         = "mixer/play"
	TypePlaying      = "mixer/playing"
	TypeStop         = "mixer/stop"
	TypeStopAll      = "mixer/stop_all"
	TypeStopCategory = "mixer/stop_category"
	TypePause        = "mixer/pause"
	TypeResume       = "mixer/resume"
	TypeLevel        = "mixer/level"
	TypeMaster       = "mixer/master"
	TypePitch        = "mixer/pitch"
	TypeState        = "mixer/state"
)

// Error codes carried in server/error
const (
	ErrCodeBadRequest      = "bad_request"
	ErrCodeUnknownType     = "unknown_type"
	ErrCodeUnknownSound    = "unknown_sound"
	ErrCodeUnknownSession  = "unknown_session"
	ErrCodeCapacity        = "capacity_exceeded"
	ErrCodeInvalidCategory = "invalid_category"
)

// Message is the top-level wrapper for outgoing messages
type Message struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// inbound is a message whose payload is decoded per type
type inbound struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// ServerHello is sent when a client connects
type ServerHello struct {
	Name     string      `json:"name"`
	Version  int         `json:"version"`
	Software string      `json:"software"`
	Sounds   []SoundInfo `json:"sounds"`
}

// SoundInfo describes a playable asset
type SoundInfo struct {
	ID         int    `json:"id"`
	Name       string `json:"name"`
	Category   string `json:"category"`
	DurationMs int    `json:"duration_ms"`
}

// PlayRequest starts a sound by name or ID. Music plays through PlayMusic.
type PlayRequest struct {
	Name    string `json:"name,omitempty"`
	ID      *int   `json:"id,omitempty"`
	Reuse   bool   `json:"reuse,omitempty"`
	Music   bool   `json:"music,omitempty"`
	Restart bool   `json:"restart,omitempty"`
}

// Playing answers a PlayRequest
type Playing struct {
	Session  string `json:"session"`
	Name     string `json:"name"`
	Category string `json:"category"`
}

// SessionRequest addresses one session
type SessionRequest struct {
	Session string `json:"session"`
}

// CategoryRequest addresses one category
type CategoryRequest struct {
	Category string `json:"category"`
}

// LevelRequest sets a category level
type LevelRequest struct {
	Category string  `json:"category"`
	Level    float64 `json:"level"`
}

// MasterRequest sets the master volume
type MasterRequest struct {
	Volume float64 `json:"volume"`
}

// PitchRequest sets the playback frequency ratio
type PitchRequest struct {
	Ratio float64 `json:"ratio"`
}

// State is the mixer snapshot returned after every command
type State struct {
	Levels   map[string]float64 `json:"levels"`
	Master   float64            `json:"master"`
	Pitch    float64            `json:"pitch"`
	Sessions []SessionInfo      `json:"sessions"`
	Engine   EngineInfo         `json:"engine"`
}

// SessionInfo describes an active session
type SessionInfo struct {
	Session    string `json:"session"`
	Name       string `json:"name"`
	Category   string `json:"category"`
	State      string `json:"state"`
	Position   int    `json:"position"`
	Length     int    `json:"length"`
	RepeatOnce bool   `json:"repeat_once,omitempty"`
}

// EngineInfo carries the playback engine counters
type EngineInfo struct {
	State          string `json:"state"`
	Refills        uint64 `json:"refills"`
	Underruns      uint64 `json:"underruns"`
	SubmitFailures uint64 `json:"submit_failures"`
}

// ErrorPayload is the body of server/error
type ErrorPayload struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
