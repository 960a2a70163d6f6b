package webrec

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

const frameQueueSize = 512

// EncoderConfig binds a Recorder to an encoding.
type EncoderConfig struct {
	// WorkerDir is the base path for external encoder programs.
	WorkerDir string
	Encoding  string
	// OnEncoderLoading and OnEncoderLoaded bracket codec loading.
	OnEncoderLoading func(r *Recorder, encoding string)
	OnEncoderLoaded  func(r *Recorder, encoding string)
}

type recorderState int

const (
	recorderReady recorderState = iota
	recorderRecording
	recorderFinishing
	recorderDone
	recorderCancelled
)

// Recorder is the encoder handle for one session. It taps a SourceNode,
// queues frames to a worker goroutine and reports the encoded blob through
// OnComplete. Set the callbacks before StartRecording.
type Recorder struct {
	OnComplete func(r *Recorder, blob *Blob)
	OnError    func(r *Recorder, err error)
	OnTimeout  func(r *Recorder)

	source    *SourceNode
	codec     Codec
	encoding  string
	workerDir string
	format    StreamFormat
	logger    *RecorderLogger

	mu         sync.Mutex
	state      recorderState
	options    Options
	startedAt  time.Time
	disconnect func()

	frames   chan []int16
	finish   chan struct{}
	cancel   chan struct{}
	done     chan struct{}
	captured atomic.Int64
	dropped  atomic.Int64
}

// NewRecorder loads the codec for cfg.Encoding and binds it to source.
func NewRecorder(source *SourceNode, cfg EncoderConfig) (*Recorder, error) {
	codec, err := mustCodec(cfg.Encoding)
	if err != nil {
		return nil, NewEncoderLoadError(cfg.Encoding, err)
	}

	r := &Recorder{
		source:    source,
		codec:     codec,
		encoding:  codec.Name(),
		workerDir: cfg.WorkerDir,
		format:    source.Format(),
		options:   DefaultOptions(),
		logger:    GetGlobalLogger().WithComponent("Recorder").WithField("encoding", codec.Name()),
		done:      make(chan struct{}),
	}

	if cfg.OnEncoderLoading != nil {
		cfg.OnEncoderLoading(r, r.encoding)
	}
	if err := codec.Load(cfg.WorkerDir); err != nil {
		return nil, NewEncoderLoadError(r.encoding, err)
	}
	// Catch an unusable stream now rather than after the whole take.
	if fc, ok := codec.(FormatChecker); ok {
		if err := fc.CheckFormat(r.format); err != nil {
			return nil, NewEncoderLoadError(r.encoding, err)
		}
	}
	if cfg.OnEncoderLoaded != nil {
		cfg.OnEncoderLoaded(r, r.encoding)
	}
	return r, nil
}

func (r *Recorder) Encoding() string {
	return r.encoding
}

func (r *Recorder) MIMEType() string {
	return r.codec.MIMEType()
}

// SetOptions replaces the encoder settings. Only allowed before recording starts.
func (r *Recorder) SetOptions(opts Options) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != recorderReady {
		return errors.New("cannot set options while recording")
	}
	r.options = opts
	return nil
}

func (r *Recorder) Options() Options {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.options
}

func (r *Recorder) StartRecording() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch r.state {
	case recorderRecording:
		return errors.New("already recording")
	case recorderReady:
	default:
		return ErrRecorderFinished
	}

	var enc FrameEncoder
	if !r.options.EncodeAfterRecord {
		var err error
		enc, err = r.newEncoder(r.options)
		if err != nil {
			return err
		}
	}

	r.frames = make(chan []int16, frameQueueSize)
	r.finish = make(chan struct{})
	r.cancel = make(chan struct{})
	r.startedAt = time.Now()
	r.state = recorderRecording

	var once sync.Once
	detach := r.source.Connect(r.onFrame)
	r.disconnect = func() { once.Do(detach) }

	go r.worker(enc, r.options)

	r.logger.LogAudioEvent("recording_started", map[string]interface{}{
		"time_limit":          r.options.TimeLimit,
		"encode_after_record": r.options.EncodeAfterRecord,
	})
	return nil
}

// FinishRecording stops accepting frames and lets the worker encode.
// Completion is reported through OnComplete or OnError.
func (r *Recorder) FinishRecording() {
	r.mu.Lock()
	if r.state != recorderRecording {
		r.mu.Unlock()
		return
	}
	r.state = recorderFinishing
	r.mu.Unlock()

	r.disconnect()
	close(r.finish)
}

// CancelRecording drops everything captured so far. No callback fires.
func (r *Recorder) CancelRecording() {
	r.mu.Lock()
	if r.state != recorderRecording {
		r.mu.Unlock()
		return
	}
	r.state = recorderCancelled
	r.mu.Unlock()

	r.disconnect()
	close(r.cancel)
}

func (r *Recorder) IsRecording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state == recorderRecording
}

// RecordingTime is the duration of audio accepted so far.
func (r *Recorder) RecordingTime() time.Duration {
	secs := SamplesDuration(int(r.captured.Load()), r.format)
	return time.Duration(secs * float64(time.Second))
}

// Dropped reports frames lost because the worker fell behind.
func (r *Recorder) Dropped() int64 {
	return r.dropped.Load()
}

// Done is closed once the worker has exited.
func (r *Recorder) Done() <-chan struct{} {
	return r.done
}

func (r *Recorder) newEncoder(opts Options) (FrameEncoder, error) {
	enc, err := r.codec.NewEncoder(EncoderParams{
		Format:    r.format,
		Options:   opts,
		WorkerDir: r.workerDir,
	})
	if err != nil {
		return nil, NewEncoderLoadError(r.encoding, err)
	}
	return enc, nil
}

// onFrame runs on the capture thread and must not block.
func (r *Recorder) onFrame(frame []int16) {
	r.mu.Lock()
	recording := r.state == recorderRecording
	r.mu.Unlock()
	if !recording || len(frame) == 0 {
		return
	}

	buf := make([]int16, len(frame))
	copy(buf, frame)
	select {
	case r.frames <- buf:
	default:
		if r.dropped.Add(1) == 1 {
			r.logger.Warn("Encoder worker is behind, dropping audio frames")
		}
	}
}

func (r *Recorder) worker(enc FrameEncoder, opts Options) {
	defer close(r.done)

	var limit int64
	if opts.TimeLimit > 0 {
		limit = int64(opts.TimeLimit) * int64(r.format.samplesPerSecond())
	}
	var buffered [][]int16
	var encErr error

	// accept takes one frame and reports whether the time limit was hit.
	accept := func(frame []int16) bool {
		hit := false
		if n := r.captured.Load(); limit > 0 && n+int64(len(frame)) >= limit {
			frame = frame[:limit-n]
			hit = true
		}
		r.captured.Add(int64(len(frame)))
		if encErr != nil {
			return hit
		}
		if enc == nil {
			buffered = append(buffered, frame)
		} else {
			encErr = enc.Encode(frame)
		}
		return hit
	}

	timedOut := false
loop:
	for {
		select {
		case frame := <-r.frames:
			if accept(frame) {
				timedOut = true
				break loop
			}
		case <-r.finish:
			for {
				select {
				case frame := <-r.frames:
					if accept(frame) {
						break loop
					}
				default:
					break loop
				}
			}
		case <-r.cancel:
			if enc != nil {
				enc.Cancel()
			}
			r.logger.LogAudioEvent("recording_cancelled", nil)
			return
		}
	}

	if timedOut {
		r.mu.Lock()
		cancelled := r.state == recorderCancelled
		stillRecording := r.state == recorderRecording
		if stillRecording {
			r.state = recorderFinishing
		}
		r.mu.Unlock()
		if cancelled {
			if enc != nil {
				enc.Cancel()
			}
			r.logger.LogAudioEvent("recording_cancelled", nil)
			return
		}
		r.disconnect()
		if stillRecording {
			r.logger.WithField("time_limit", opts.TimeLimit).Info("Recording time limit reached")
			if r.OnTimeout != nil {
				r.OnTimeout(r)
			}
		}
	}

	data, err := r.encode(enc, buffered, encErr, opts)

	r.mu.Lock()
	r.state = recorderDone
	r.mu.Unlock()

	if err != nil {
		r.logger.WithError(err).Error("Encoding failed")
		if r.OnError != nil {
			r.OnError(r, err)
		}
		return
	}
	r.logger.LogAudioEvent("encoding_complete", map[string]interface{}{
		"bytes":    len(data),
		"duration": r.RecordingTime().Seconds(),
		"dropped":  r.dropped.Load(),
	})
	if r.OnComplete != nil {
		r.OnComplete(r, &Blob{Data: data, Type: r.codec.MIMEType()})
	}
}

func (r *Recorder) encode(enc FrameEncoder, buffered [][]int16, encErr error, opts Options) ([]byte, error) {
	if encErr != nil {
		enc.Cancel()
		return nil, NewEncodingError(r.encoding, encErr)
	}
	if enc == nil {
		var err error
		if enc, err = r.newEncoder(opts); err != nil {
			return nil, err
		}
		for _, frame := range buffered {
			if err := enc.Encode(frame); err != nil {
				enc.Cancel()
				return nil, NewEncodingError(r.encoding, err)
			}
		}
	}
	data, err := enc.Finish()
	if err != nil {
		return nil, NewEncodingError(r.encoding, err)
	}
	return data, nil
}
