package webrec

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
)

type fakeTrack struct {
	stopped atomic.Bool
}

func (t *fakeTrack) Kind() string  { return "audio" }
func (t *fakeTrack) Label() string { return "fake microphone" }
func (t *fakeTrack) Live() bool    { return !t.stopped.Load() }
func (t *fakeTrack) Stop() error {
	t.stopped.Store(true)
	return nil
}

type fakeStream struct {
	format StreamFormat
	track  *fakeTrack

	mu      sync.Mutex
	handler AudioFrameHandler
	closed  bool
}

func newFakeStream() *fakeStream {
	return &fakeStream{
		format: StreamFormat{SampleRate: 8000, Channels: 1},
		track:  &fakeTrack{},
	}
}

func (s *fakeStream) ID() string           { return "fake-stream" }
func (s *fakeStream) Format() StreamFormat { return s.format }
func (s *fakeStream) AudioTracks() []Track { return []Track{s.track} }

func (s *fakeStream) SetFrameHandler(fn AudioFrameHandler) {
	s.mu.Lock()
	s.handler = fn
	s.mu.Unlock()
}

func (s *fakeStream) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *fakeStream) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// push delivers a frame the way a capture callback would.
func (s *fakeStream) push(frame []int16) {
	s.mu.Lock()
	fn := s.handler
	closed := s.closed
	s.mu.Unlock()
	if fn != nil && !closed {
		fn(frame)
	}
}

type captureResult struct {
	stream Stream
	err    error
}

// fakeCapturer blocks every request until the test answers it.
type fakeCapturer struct {
	results chan captureResult

	mu          sync.Mutex
	calls       int
	constraints Constraints
}

func newFakeCapturer() *fakeCapturer {
	return &fakeCapturer{results: make(chan captureResult)}
}

func (f *fakeCapturer) GetUserMedia(ctx context.Context, c Constraints) (Stream, error) {
	f.mu.Lock()
	f.calls++
	f.constraints = c
	f.mu.Unlock()

	select {
	case r := <-f.results:
		return r.stream, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *fakeCapturer) grant(s Stream) {
	f.results <- captureResult{stream: s}
}

func (f *fakeCapturer) deny(err error) {
	f.results <- captureResult{err: err}
}

func (f *fakeCapturer) lastConstraints() Constraints {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.constraints
}

// fakeCodec encodes to raw little-endian PCM.
type fakeCodec struct {
	name      string
	loadErr   error
	finishErr error
	// gate, when set, holds every Encode call until it is closed.
	gate    chan struct{}
	entered chan struct{}

	mu       sync.Mutex
	created  int
	params   EncoderParams
	encoders []*fakeEncoder
}

func (c *fakeCodec) Name() string      { return c.name }
func (c *fakeCodec) MIMEType() string  { return "audio/x-fake" }
func (c *fakeCodec) Load(string) error { return c.loadErr }

func (c *fakeCodec) NewEncoder(p EncoderParams) (FrameEncoder, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.created++
	c.params = p
	enc := &fakeEncoder{finishErr: c.finishErr, gate: c.gate, entered: c.entered}
	c.encoders = append(c.encoders, enc)
	return enc, nil
}

// gated makes every encoder c creates block in Encode until release is called.
func (c *fakeCodec) gated() (release func()) {
	c.gate = make(chan struct{})
	c.entered = make(chan struct{}, 1)
	var once sync.Once
	return func() { once.Do(func() { close(c.gate) }) }
}

func (c *fakeCodec) createdCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.created
}

type fakeEncoder struct {
	finishErr error
	gate      chan struct{}
	entered   chan struct{}

	mu        sync.Mutex
	samples   []int16
	cancelled bool
}

func (e *fakeEncoder) Encode(samples []int16) error {
	if e.gate != nil {
		select {
		case e.entered <- struct{}{}:
		default:
		}
		<-e.gate
	}
	e.mu.Lock()
	e.samples = append(e.samples, samples...)
	e.mu.Unlock()
	return nil
}

func (e *fakeEncoder) Finish() ([]byte, error) {
	if e.finishErr != nil {
		return nil, e.finishErr
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return Int16ToBytes(e.samples), nil
}

func (e *fakeEncoder) Cancel() {
	e.mu.Lock()
	e.cancelled = true
	e.mu.Unlock()
}

func (e *fakeEncoder) isCancelled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cancelled
}

func (e *fakeEncoder) sampleCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.samples)
}

// registerFakeCodec registers c for the duration of the test, restoring
// whatever was registered under the same name before.
func registerFakeCodec(t *testing.T, c *fakeCodec) {
	t.Helper()
	prev, hadPrev := LookupCodec(c.name)
	RegisterCodec(c)
	t.Cleanup(func() {
		codecsMu.Lock()
		defer codecsMu.Unlock()
		if hadPrev {
			codecs[c.name] = prev
		} else {
			delete(codecs, c.name)
		}
	})
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

// messages returns the "message" field of every JSON log line.
func (b *lockedBuffer) messages() []string {
	b.mu.Lock()
	data := append([]byte(nil), b.buf.Bytes()...)
	b.mu.Unlock()

	var out []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		var line struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(sc.Bytes(), &line) == nil {
			out = append(out, line.Message)
		}
	}
	return out
}

func newCapturingLogger() (*RecorderLogger, *lockedBuffer) {
	buf := &lockedBuffer{}
	return NewRecorderLogger(&LogConfig{Level: DebugLevel, Output: buf}), buf
}

func testConfig(t *testing.T, encoding string) *RecorderConfig {
	t.Helper()
	c := NewRecorderConfig()
	c.DefaultEncoding = encoding
	c.TimeLimit = 120
	c.EncodeAfterRecord = true
	c.SaveRecordings = false
	c.OutputDir = t.TempDir()
	c.MaxRecordings = 10
	return c
}

var errBoom = errors.New("boom")
