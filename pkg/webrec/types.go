package webrec

import "time"

// SessionStatus enum
type SessionStatus string

const (
	StatusIdle       SessionStatus = "idle"
	StatusRequesting SessionStatus = "requesting"
	StatusCapturing  SessionStatus = "capturing"
	StatusEncoding   SessionStatus = "encoding"
	StatusComplete   SessionStatus = "complete"
	StatusFailed     SessionStatus = "failed"
)

// Active reports whether a session in this status still owns the
// microphone or the encoder.
func (s SessionStatus) Active() bool {
	return s == StatusRequesting || s == StatusCapturing || s == StatusEncoding
}

// Terminal reports whether a new session may be started from this status.
func (s SessionStatus) Terminal() bool {
	return s == StatusIdle || s == StatusComplete || s == StatusFailed
}

// Constraints mirrors the media-capture request: audio only in this program.
type Constraints struct {
	Audio bool `json:"audio"`
	Video bool `json:"video"`
}

// StreamFormat describes the PCM layout a capture stream delivers.
type StreamFormat struct {
	SampleRate int `json:"sample_rate"`
	Channels   int `json:"channels"`
}

// Samples per second across all channels.
func (f StreamFormat) samplesPerSecond() int {
	return f.SampleRate * f.Channels
}

// Blob is an encoded recording held in memory.
type Blob struct {
	Data []byte
	Type string
}

// Size returns the blob length in bytes
func (b *Blob) Size() int {
	if b == nil {
		return 0
	}
	return len(b.Data)
}

// ControlState is the pair of gated UI controls.
type ControlState struct {
	RecordDisabled bool `json:"record_disabled"`
	StopDisabled   bool `json:"stop_disabled"`
}

// StateSnapshot is what the controller reports to observers.
type StateSnapshot struct {
	SessionID string        `json:"session_id,omitempty"`
	Status    SessionStatus `json:"status"`
	Encoding  string        `json:"encoding"`
	Controls  ControlState  `json:"controls"`
	LastError string        `json:"last_error,omitempty"`
	Elapsed   time.Duration `json:"elapsed"`
}

// Handler types
type AudioFrameHandler func([]int16)
type StateHandler func(StateSnapshot)
type RecordingHandler func(*RecordingEntry)
type ErrorHandler func(*RecorderError)
