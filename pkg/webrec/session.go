package webrec

import (
	"time"

	"github.com/google/uuid"
)

// Session is one attempt at capturing and encoding audio. It owns the
// capture stream and the encoder handle; the controller guards it.
type Session struct {
	ID       string
	Encoding string

	status    SessionStatus
	stream    Stream
	input     *SourceNode
	encoder   *Recorder
	cancelled bool
	startedAt time.Time
	lastError string
}

func newSession(encoding string, now time.Time) *Session {
	return &Session{
		ID:        uuid.NewString(),
		Encoding:  encoding,
		status:    StatusIdle,
		startedAt: now,
	}
}

func (s *Session) Status() SessionStatus {
	return s.status
}

// release halts the first audio track and closes the stream. Safe to call
// more than once.
func (s *Session) release() error {
	if s.input != nil {
		s.input.Disconnect()
		s.input = nil
	}
	if s.stream == nil {
		return nil
	}
	stream := s.stream
	s.stream = nil

	if tracks := stream.AudioTracks(); len(tracks) > 0 {
		if err := tracks[0].Stop(); err != nil {
			stream.Close()
			return err
		}
	}
	return stream.Close()
}
