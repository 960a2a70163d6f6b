package webrec

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/gordonklaus/portaudio"
)

// paNoDevice is what Pa_GetDefaultInputDevice yields when nothing is plugged in.
const paNoDevice = portaudio.Error(-1)

// PortAudioCapturer captures the host microphone through PortAudio.
type PortAudioCapturer struct {
	sampleRate int
	channels   int
	bufferSize int
	deviceID   *int
	gate       PermissionGate
	logger     *RecorderLogger
}

// NewPortAudioCapturer builds a capturer from config. prompter is only
// consulted when the permission policy is "prompt".
func NewPortAudioCapturer(config *RecorderConfig, prompter Prompter) *PortAudioCapturer {
	return &PortAudioCapturer{
		sampleRate: config.SampleRate,
		channels:   config.Channels,
		bufferSize: config.BufferSize,
		deviceID:   config.AudioDeviceID,
		gate: PermissionGate{
			Policy:   PermissionPolicy(config.MicPermission),
			Prompter: prompter,
		},
		logger: GetGlobalLogger().WithComponent("PortAudioCapturer"),
	}
}

func (c *PortAudioCapturer) GetUserMedia(ctx context.Context, constraints Constraints) (Stream, error) {
	if !constraints.Audio && !constraints.Video {
		return nil, &CaptureError{Message: "At least one of audio and video must be requested"}
	}
	if constraints.Video {
		return nil, &CaptureError{Message: "Video capture is not supported"}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := c.gate.Check(ctx, constraints); err != nil {
		return nil, err
	}

	if err := portaudio.Initialize(); err != nil {
		return nil, mapPortAudioError(err)
	}

	dev, err := c.inputDevice()
	if err != nil {
		portaudio.Terminate()
		return nil, err
	}
	if dev.MaxInputChannels < c.channels {
		portaudio.Terminate()
		return nil, &CaptureError{
			Code:    CodeDeviceUnavailable,
			Message: fmt.Sprintf("device '%s' supports max %d input channels, requested %d", dev.Name, dev.MaxInputChannels, c.channels),
		}
	}

	params := portaudio.LowLatencyParameters(dev, nil)
	params.Input.Channels = c.channels
	params.SampleRate = float64(c.sampleRate)
	params.FramesPerBuffer = c.bufferSize

	s := &portAudioStream{
		id:     uuid.NewString(),
		format: StreamFormat{SampleRate: c.sampleRate, Channels: c.channels},
		logger: c.logger,
	}
	s.track = &portAudioTrack{stream: s, label: dev.Name, live: true}

	pa, err := portaudio.OpenStream(params, s.process)
	if err != nil {
		portaudio.Terminate()
		return nil, mapPortAudioError(err)
	}
	s.pa = pa

	if err := pa.Start(); err != nil {
		pa.Close()
		portaudio.Terminate()
		return nil, mapPortAudioError(err)
	}

	c.logger.WithFields(map[string]interface{}{
		"stream_id":   s.id,
		"device":      dev.Name,
		"sample_rate": c.sampleRate,
		"channels":    c.channels,
	}).Info("Microphone stream opened")
	return s, nil
}

func (c *PortAudioCapturer) inputDevice() (*portaudio.DeviceInfo, error) {
	if c.deviceID == nil {
		dev, err := portaudio.DefaultInputDevice()
		if err != nil {
			return nil, mapPortAudioError(err)
		}
		return dev, nil
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, mapPortAudioError(err)
	}
	id := *c.deviceID
	if id < 0 || id >= len(devices) || devices[id].MaxInputChannels == 0 {
		return nil, &CaptureError{Code: CodeDeviceUnavailable, Message: fmt.Sprintf("input device %d not found", id)}
	}
	return devices[id], nil
}

// mapPortAudioError turns PortAudio failures into capture errors.
// Device problems become CodeDeviceUnavailable; everything else keeps the
// PortAudio error number as its code.
func mapPortAudioError(err error) error {
	var paErr portaudio.Error
	if !errors.As(err, &paErr) {
		return &CaptureError{Message: err.Error()}
	}
	switch paErr {
	case portaudio.DeviceUnavailable, portaudio.InvalidDevice, paNoDevice:
		return &CaptureError{Code: CodeDeviceUnavailable, Message: paErr.Error()}
	}
	return &CaptureError{Code: int(paErr), Message: paErr.Error()}
}

type portAudioStream struct {
	id     string
	format StreamFormat
	pa     *portaudio.Stream
	track  *portAudioTrack
	logger *RecorderLogger

	mu      sync.RWMutex
	handler AudioFrameHandler
}

func (s *portAudioStream) ID() string {
	return s.id
}

func (s *portAudioStream) Format() StreamFormat {
	return s.format
}

func (s *portAudioStream) AudioTracks() []Track {
	return []Track{s.track}
}

func (s *portAudioStream) SetFrameHandler(fn AudioFrameHandler) {
	s.mu.Lock()
	s.handler = fn
	s.mu.Unlock()
}

func (s *portAudioStream) Close() error {
	return s.track.Stop()
}

// process runs on the PortAudio callback thread.
func (s *portAudioStream) process(in []int16) {
	s.mu.RLock()
	h := s.handler
	s.mu.RUnlock()
	if h != nil {
		h(in)
	}
}

type portAudioTrack struct {
	stream *portAudioStream
	label  string

	once sync.Once
	mu   sync.Mutex
	live bool
	err  error
}

func (t *portAudioTrack) Kind() string {
	return "audio"
}

func (t *portAudioTrack) Label() string {
	return t.label
}

func (t *portAudioTrack) Live() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.live
}

func (t *portAudioTrack) Stop() error {
	t.once.Do(func() {
		t.mu.Lock()
		t.live = false
		t.mu.Unlock()

		s := t.stream
		s.SetFrameHandler(nil)
		if err := s.pa.Stop(); err != nil {
			s.logger.WithError(err).Warn("Failed to stop microphone stream")
			t.err = err
		}
		if err := s.pa.Close(); err != nil {
			s.logger.WithError(err).Warn("Failed to close microphone stream")
			if t.err == nil {
				t.err = err
			}
		}
		portaudio.Terminate()
		s.logger.WithField("stream_id", s.id).Info("Microphone stream closed")
	})
	return t.err
}
