package webrec

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Controller owns the recording session lifecycle: it requests the
// microphone, binds an encoder to the stream, gates the record and stop
// controls and publishes finished recordings.
type Controller struct {
	capturer Capturer
	config   *RecorderConfig
	logger   *RecorderLogger
	clock    func() time.Time
	results  *ResultsList
	urls     *ObjectURLStore
	levelFn  func(avg, peak float32)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	encoding string
	session  *Session
	controls ControlState
	closed   bool

	handlersMu        sync.RWMutex
	nextHandlerID     int
	stateHandlers     map[int]StateHandler
	recordingHandlers map[int]RecordingHandler
	errorHandlers     map[int]ErrorHandler
	removalHandlers   map[int]RecordingHandler

	queueMu    sync.Mutex
	queue      []controllerEvent
	wake       chan struct{}
	dispatched chan struct{}
}

// controllerEvent is queued under the controller lock and delivered to
// handlers in order by the dispatcher goroutine.
type controllerEvent struct {
	state     *StateSnapshot
	recording *RecordingEntry
	removed   *RecordingEntry
	err       *RecorderError
}

type ControllerOption func(*Controller)

func WithLogger(logger *RecorderLogger) ControllerOption {
	return func(c *Controller) {
		c.logger = logger
	}
}

// WithClock replaces time.Now for recording timestamps.
func WithClock(clock func() time.Time) ControllerOption {
	return func(c *Controller) {
		c.clock = clock
	}
}

// WithLevelMonitor reports input levels while capturing, at most every
// 100ms.
func WithLevelMonitor(fn func(avg, peak float32)) ControllerOption {
	return func(c *Controller) {
		c.levelFn = fn
	}
}

func NewController(capturer Capturer, config *RecorderConfig, opts ...ControllerOption) *Controller {
	if config == nil {
		config = NewRecorderConfig()
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		capturer:          capturer,
		config:            config,
		clock:             time.Now,
		ctx:               ctx,
		cancel:            cancel,
		encoding:          strings.ToLower(config.DefaultEncoding),
		controls:          ControlState{RecordDisabled: false, StopDisabled: true},
		stateHandlers:     make(map[int]StateHandler),
		recordingHandlers: make(map[int]RecordingHandler),
		errorHandlers:     make(map[int]ErrorHandler),
		removalHandlers:   make(map[int]RecordingHandler),
		wake:              make(chan struct{}, 1),
		dispatched:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = GetGlobalLogger()
	}
	c.logger = c.logger.WithComponent("Controller")
	c.results = NewResultsList(config.OutputDir, config.SaveRecordings, config.MaxRecordings)
	c.urls = NewObjectURLStore(config.ObjectURLTTL)
	c.results.SetRemoveFunc(func(e *RecordingEntry) {
		c.urls.RevokeObjectURL(e.URL)
		c.emitLocked(controllerEvent{removed: e})
	})

	go c.dispatch()
	return c
}

// Start begins a new session. Controls flip before the microphone request
// resolves; the outcome arrives through the state and error handlers.
// ErrSessionActive is the only error returned.
func (c *Controller) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrRecorderFinished
	}
	if c.session != nil && c.session.status.Active() {
		c.logger.WithFields(map[string]interface{}{
			"session_id": c.session.ID,
			"status":     string(c.session.status),
		}).Warn("startRecording() ignored: a session is already active")
		return ErrSessionActive
	}

	c.logger.Info("startRecording() called")
	s := newSession(c.encoding, c.clock())
	s.status = StatusRequesting
	c.session = s
	c.controls = ControlState{RecordDisabled: true, StopDisabled: false}
	c.logger.LogSessionEvent("requesting", s.status, map[string]interface{}{
		"session_id": s.ID,
		"encoding":   s.Encoding,
	})
	c.emitStateLocked()

	c.wg.Add(1)
	go c.acquire(s)
	return nil
}

// Stop ends capture and lets the encoder finish in the background. It is
// a no-op apart from the controls when nothing is capturing.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.logger.Info("stopRecording() called")
	c.controls = ControlState{RecordDisabled: false, StopDisabled: true}

	s := c.session
	if s != nil {
		switch s.status {
		case StatusRequesting:
			s.cancelled = true
			s.status = StatusIdle
			c.logger.LogSessionEvent("cancelled", s.status, map[string]interface{}{"session_id": s.ID})
		case StatusCapturing:
			c.stopCapturingLocked(s)
		}
	}
	c.emitStateLocked()
}

// SetEncoding selects the encoding used by the next Start.
func (c *Controller) SetEncoding(name string) error {
	codec, err := mustCodec(name)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.encoding = codec.Name()
	c.emitStateLocked()
	return nil
}

func (c *Controller) Encoding() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.encoding
}

func (c *Controller) Status() SessionStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusLocked()
}

func (c *Controller) Controls() ControlState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.controls
}

func (c *Controller) Snapshot() StateSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Session returns the current or most recent session, nil before the first Start.
func (c *Controller) Session() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// SessionOptions returns the encoder options of the current session.
func (c *Controller) SessionOptions() (Options, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil || c.session.encoder == nil {
		return Options{}, false
	}
	return c.session.encoder.Options(), true
}

func (c *Controller) Results() *ResultsList {
	return c.results
}

func (c *Controller) ObjectURLs() *ObjectURLStore {
	return c.urls
}

// RemoveRecording drops a finished recording and revokes its URL.
func (c *Controller) RemoveRecording(id string) bool {
	_, ok := c.results.Remove(id)
	return ok
}

func (c *Controller) AddStateHandler(handler StateHandler) func() {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	id := c.nextHandlerID
	c.nextHandlerID++
	c.stateHandlers[id] = handler
	return func() {
		c.handlersMu.Lock()
		delete(c.stateHandlers, id)
		c.handlersMu.Unlock()
	}
}

func (c *Controller) AddRecordingHandler(handler RecordingHandler) func() {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	id := c.nextHandlerID
	c.nextHandlerID++
	c.recordingHandlers[id] = handler
	return func() {
		c.handlersMu.Lock()
		delete(c.recordingHandlers, id)
		c.handlersMu.Unlock()
	}
}

func (c *Controller) AddErrorHandler(handler ErrorHandler) func() {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	id := c.nextHandlerID
	c.nextHandlerID++
	c.errorHandlers[id] = handler
	return func() {
		c.handlersMu.Lock()
		delete(c.errorHandlers, id)
		c.handlersMu.Unlock()
	}
}

// AddRemovalHandler is called for every recording leaving the results
// list, whether removed explicitly or pushed out by MaxRecordings.
func (c *Controller) AddRemovalHandler(handler RecordingHandler) func() {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	id := c.nextHandlerID
	c.nextHandlerID++
	c.removalHandlers[id] = handler
	return func() {
		c.handlersMu.Lock()
		delete(c.removalHandlers, id)
		c.handlersMu.Unlock()
	}
}

// Close cancels a pending microphone request, discards an active capture
// and stops event delivery.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	if s := c.session; s != nil {
		switch s.status {
		case StatusRequesting:
			s.cancelled = true
			s.status = StatusIdle
			c.logger.LogSessionEvent("cancelled", s.status, map[string]interface{}{"session_id": s.ID})
		case StatusCapturing:
			if s.encoder != nil {
				s.encoder.CancelRecording()
			}
			if err := s.release(); err != nil {
				c.logger.WithError(err).Warn("Failed to release capture stream")
			}
			s.status = StatusIdle
		}
	}
	c.controls = ControlState{RecordDisabled: false, StopDisabled: true}
	// Queued before cancel so the dispatcher delivers it on its way out.
	c.emitStateLocked()
	c.cancel()
	c.mu.Unlock()

	c.wg.Wait()
	<-c.dispatched
	c.logger.Info("Controller closed")
}

func (c *Controller) acquire(s *Session) {
	defer c.wg.Done()

	stream, err := c.capturer.GetUserMedia(c.ctx, Constraints{Audio: true, Video: false})

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.session != s || s.cancelled {
		if err == nil {
			c.logger.WithField("session_id", s.ID).Debug("Microphone granted after stop, releasing stream")
			s.stream = stream
			if relErr := s.release(); relErr != nil {
				c.logger.WithError(relErr).Warn("Failed to release capture stream")
			}
		}
		return
	}
	if err != nil {
		c.failCaptureLocked(s, err)
		return
	}

	s.stream = stream
	s.input = NewSourceNode(stream)
	if c.levelFn != nil {
		s.input.Connect(CreateThrottledLevelMonitor(100*time.Millisecond, c.levelFn))
	}
	if c.config.SilenceStop > 0 {
		// The detector runs on the capture thread; stopping detaches the
		// source node, so it has to happen elsewhere.
		s.input.Connect(CreateAudioSilenceDetector(float32(c.config.SilenceThreshold), c.config.SilenceStop, func() {
			go c.autoStop(s, "Silence detected, stopping recording")
		}))
	}

	rec, err := NewRecorder(s.input, EncoderConfig{
		WorkerDir: c.config.WorkerDir,
		Encoding:  s.Encoding,
		OnEncoderLoading: func(_ *Recorder, encoding string) {
			c.logger.Infof("Loading %s encoder...", encoding)
		},
		OnEncoderLoaded: func(_ *Recorder, encoding string) {
			c.logger.Infof("%s encoder loaded", encoding)
		},
	})
	if err != nil {
		c.failEncoderLocked(s, err)
		return
	}

	if err := rec.SetOptions(c.config.EncoderOptions()); err != nil {
		c.failEncoderLocked(s, err)
		return
	}
	rec.OnComplete = func(r *Recorder, blob *Blob) {
		c.complete(s, r, blob)
	}
	rec.OnError = func(_ *Recorder, err error) {
		c.encoderFailed(s, err)
	}
	rec.OnTimeout = func(*Recorder) {
		c.timeout(s)
	}
	s.encoder = rec

	if err := rec.StartRecording(); err != nil {
		c.failEncoderLocked(s, err)
		return
	}

	s.status = StatusCapturing
	format := stream.Format()
	c.logger.WithFields(map[string]interface{}{
		"session_id":  s.ID,
		"encoding":    s.Encoding,
		"sample_rate": format.SampleRate,
		"channels":    format.Channels,
	}).Info("Recording started")
	c.emitStateLocked()
}

// stopCapturingLocked halts the stream and asks the encoder to finish.
func (c *Controller) stopCapturingLocked(s *Session) {
	if err := s.release(); err != nil {
		c.logger.WithError(err).Warn("Failed to release capture stream")
	}
	s.status = StatusEncoding
	if s.encoder != nil {
		s.encoder.FinishRecording()
	}
	c.logger.WithField("session_id", s.ID).Info("Recording stopped")
}

func (c *Controller) timeout(s *Session) {
	c.autoStop(s, "Recording time limit reached")
}

// autoStop ends capture without a Stop call, as the time limit and the
// silence detector do.
func (c *Controller) autoStop(s *Session, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != s || s.status != StatusCapturing {
		return
	}
	c.logger.WithField("session_id", s.ID).Info(reason)
	c.controls = ControlState{RecordDisabled: false, StopDisabled: true}
	c.stopCapturingLocked(s)
	c.emitStateLocked()
}

func (c *Controller) complete(s *Session, r *Recorder, blob *Blob) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || s.status != StatusEncoding {
		c.logger.WithFields(map[string]interface{}{
			"session_id": s.ID,
			"status":     string(s.status),
		}).Debug("Ignoring encoder result for inactive session")
		return
	}

	url, err := c.urls.CreateObjectURL(blob)
	if err != nil {
		c.failLocked(s, WrapError(err, ErrCodeURLInvalid))
		return
	}

	now := c.clock()
	entry := &RecordingEntry{
		ID:        uuid.NewString(),
		SessionID: s.ID,
		Encoding:  r.Encoding(),
		MIMEType:  blob.Type,
		Filename:  RecordingFilename(now, r.Encoding()),
		URL:       url,
		Size:      blob.Size(),
		Duration:  r.RecordingTime().Seconds(),
		Dropped:   r.Dropped(),
		CreatedAt: now,
		Blob:      blob,
	}
	s.status = StatusComplete

	if err := c.results.Append(entry); err != nil {
		rErr := WrapError(err, ErrCodeStorage)
		c.logger.LogError(rErr)
		c.emitLocked(controllerEvent{err: rErr})
	}

	c.logger.WithFields(map[string]interface{}{
		"session_id": s.ID,
		"filename":   entry.Filename,
		"size":       entry.Size,
		"dropped":    entry.Dropped,
	}).Info("Encoding complete")
	c.emitLocked(controllerEvent{recording: entry})
	c.emitStateLocked()
}

func (c *Controller) encoderFailed(s *Session, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != s || !s.status.Active() {
		return
	}
	c.failLocked(s, WrapError(err, ErrCodeEncoding))
}

// failCaptureLocked maps a microphone failure to its user-facing message.
func (c *Controller) failCaptureLocked(s *Session, err error) {
	kind := ClassifyCaptureError(err)
	msg := DescribeCaptureError(err)

	rErr := NewRecorderError(msg, captureErrorCode(kind))
	rErr.err = err
	rErr.AddDetail("kind", string(kind))
	var cErr *CaptureError
	if errors.As(err, &cErr) && cErr.Code != 0 {
		rErr.AddDetail("capture_code", cErr.Code)
	}

	c.logger.WithFields(map[string]interface{}{
		"session_id": s.ID,
		"kind":       string(kind),
	}).Error(msg)
	c.applyFailureLocked(s, rErr)
}

func (c *Controller) failEncoderLocked(s *Session, err error) {
	rErr := WrapError(err, ErrCodeEncoderLoad)
	c.failLocked(s, rErr)
}

func (c *Controller) failLocked(s *Session, rErr *RecorderError) {
	c.logger.WithField("session_id", s.ID).LogError(rErr)
	c.applyFailureLocked(s, rErr)
}

func (c *Controller) applyFailureLocked(s *Session, rErr *RecorderError) {
	if s.encoder != nil {
		s.encoder.CancelRecording()
	}
	if err := s.release(); err != nil {
		c.logger.WithError(err).Warn("Failed to release capture stream")
	}
	s.status = StatusFailed
	s.lastError = rErr.Message
	c.controls = ControlState{RecordDisabled: false, StopDisabled: true}
	c.emitLocked(controllerEvent{err: rErr})
	c.emitStateLocked()
}

func (c *Controller) statusLocked() SessionStatus {
	if c.session == nil {
		return StatusIdle
	}
	return c.session.status
}

func (c *Controller) snapshotLocked() StateSnapshot {
	snap := StateSnapshot{
		Status:   c.statusLocked(),
		Encoding: c.encoding,
		Controls: c.controls,
	}
	if s := c.session; s != nil {
		snap.SessionID = s.ID
		snap.LastError = s.lastError
		if s.encoder != nil {
			snap.Elapsed = s.encoder.RecordingTime()
		}
	}
	return snap
}

func (c *Controller) emitStateLocked() {
	snap := c.snapshotLocked()
	c.emitLocked(controllerEvent{state: &snap})
}

func (c *Controller) emitLocked(ev controllerEvent) {
	c.queueMu.Lock()
	c.queue = append(c.queue, ev)
	c.queueMu.Unlock()
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// dispatch delivers queued events to handlers outside the controller lock,
// so handlers may call back into the controller.
func (c *Controller) dispatch() {
	defer close(c.dispatched)
	for {
		select {
		case <-c.wake:
			c.drain()
		case <-c.ctx.Done():
			c.drain()
			return
		}
	}
}

func (c *Controller) drain() {
	c.queueMu.Lock()
	batch := c.queue
	c.queue = nil
	c.queueMu.Unlock()

	for _, ev := range batch {
		c.handlersMu.RLock()
		var calls []func()
		switch {
		case ev.state != nil:
			for _, h := range c.stateHandlers {
				calls = append(calls, func() { h(*ev.state) })
			}
		case ev.recording != nil:
			for _, h := range c.recordingHandlers {
				calls = append(calls, func() { h(ev.recording) })
			}
		case ev.removed != nil:
			for _, h := range c.removalHandlers {
				calls = append(calls, func() { h(ev.removed) })
			}
		case ev.err != nil:
			for _, h := range c.errorHandlers {
				calls = append(calls, func() { h(ev.err) })
			}
		}
		c.handlersMu.RUnlock()

		for _, call := range calls {
			call()
		}
	}
}
