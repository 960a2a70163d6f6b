package webrec

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorderFixture struct {
	rec      *Recorder
	stream   *fakeStream
	codec    *fakeCodec
	complete chan *Blob
	errs     chan error
	timeouts chan struct{}
}

func newRecorderFixture(t *testing.T, codec *fakeCodec, opts Options) *recorderFixture {
	t.Helper()
	registerFakeCodec(t, codec)

	stream := newFakeStream()
	rec, err := NewRecorder(NewSourceNode(stream), EncoderConfig{Encoding: codec.name})
	require.NoError(t, err)
	require.NoError(t, rec.SetOptions(opts))

	f := &recorderFixture{
		rec:      rec,
		stream:   stream,
		codec:    codec,
		complete: make(chan *Blob, 1),
		errs:     make(chan error, 1),
		timeouts: make(chan struct{}, 1),
	}
	rec.OnComplete = func(_ *Recorder, b *Blob) { f.complete <- b }
	rec.OnError = func(_ *Recorder, err error) { f.errs <- err }
	rec.OnTimeout = func(*Recorder) { f.timeouts <- struct{}{} }
	t.Cleanup(rec.CancelRecording)
	return f
}

func (f *recorderFixture) waitBlob(t *testing.T) *Blob {
	t.Helper()
	select {
	case b := <-f.complete:
		return b
	case err := <-f.errs:
		t.Fatalf("encoding failed: %v", err)
	case <-time.After(waitFor):
		t.Fatal("OnComplete not called")
	}
	return nil
}

func TestNewRecorderLoadCallbacks(t *testing.T) {
	registerFakeCodec(t, &fakeCodec{name: "fake"})

	var events []string
	rec, err := NewRecorder(NewSourceNode(newFakeStream()), EncoderConfig{
		Encoding: "FAKE",
		OnEncoderLoading: func(_ *Recorder, encoding string) {
			events = append(events, "loading "+encoding)
		},
		OnEncoderLoaded: func(_ *Recorder, encoding string) {
			events = append(events, "loaded "+encoding)
		},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"loading fake", "loaded fake"}, events)
	assert.Equal(t, "fake", rec.Encoding())
	assert.Equal(t, "audio/x-fake", rec.MIMEType())
	assert.Equal(t, DefaultOptions(), rec.Options())
}

func TestNewRecorderErrors(t *testing.T) {
	_, err := NewRecorder(NewSourceNode(newFakeStream()), EncoderConfig{Encoding: "flac"})
	assert.True(t, IsErrorCode(err, ErrCodeEncoderLoad))
	assert.ErrorIs(t, err, ErrUnsupportedEncoding)

	registerFakeCodec(t, &fakeCodec{name: "broken", loadErr: errBoom})
	loaded := false
	_, err = NewRecorder(NewSourceNode(newFakeStream()), EncoderConfig{
		Encoding:        "broken",
		OnEncoderLoaded: func(*Recorder, string) { loaded = true },
	})
	assert.ErrorIs(t, err, errBoom)
	assert.False(t, loaded)
}

func TestNewRecorderRejectsUnsupportedFormat(t *testing.T) {
	stream := newFakeStream()
	stream.format = StreamFormat{SampleRate: 44100, Channels: 1}

	_, err := NewRecorder(NewSourceNode(stream), EncoderConfig{Encoding: "opus"})
	require.Error(t, err)
	assert.True(t, IsErrorCode(err, ErrCodeEncoderLoad))
	assert.Contains(t, err.Error(), "44100")

	stream.format = StreamFormat{SampleRate: 48000, Channels: 1}
	_, err = NewRecorder(NewSourceNode(stream), EncoderConfig{Encoding: "opus"})
	assert.NoError(t, err)
}

func TestRecorderEncodeAfterRecord(t *testing.T) {
	opts := DefaultOptions()
	opts.EncodeAfterRecord = true
	f := newRecorderFixture(t, &fakeCodec{name: "fake"}, opts)

	require.NoError(t, f.rec.StartRecording())
	assert.True(t, f.rec.IsRecording())

	f.stream.push([]int16{1, 2, 3})
	f.stream.push([]int16{4, 5})
	require.Eventually(t, func() bool { return f.rec.captured.Load() == 5 }, waitFor, tick)
	assert.Equal(t, 0, f.codec.createdCount(), "encoder must not start before capture ends")

	f.rec.FinishRecording()
	assert.False(t, f.rec.IsRecording())

	blob := f.waitBlob(t)
	assert.Equal(t, Int16ToBytes([]int16{1, 2, 3, 4, 5}), blob.Data)
	assert.Equal(t, "audio/x-fake", blob.Type)
	assert.Equal(t, 1, f.codec.createdCount())
	assert.True(t, f.codec.params.Options.EncodeAfterRecord)
	assert.Equal(t, f.stream.format, f.codec.params.Format)
}

func TestRecorderStreamingEncode(t *testing.T) {
	opts := DefaultOptions()
	opts.EncodeAfterRecord = false
	f := newRecorderFixture(t, &fakeCodec{name: "fake"}, opts)

	require.NoError(t, f.rec.StartRecording())
	require.Equal(t, 1, f.codec.createdCount())
	enc := f.codec.encoders[0]

	f.stream.push([]int16{7, 8, 9})
	require.Eventually(t, func() bool { return enc.sampleCount() == 3 }, waitFor, tick)

	f.rec.FinishRecording()
	blob := f.waitBlob(t)
	assert.Equal(t, Int16ToBytes([]int16{7, 8, 9}), blob.Data)
}

func TestRecorderTimeLimit(t *testing.T) {
	opts := DefaultOptions()
	opts.TimeLimit = 1
	opts.EncodeAfterRecord = true
	f := newRecorderFixture(t, &fakeCodec{name: "fake"}, opts)

	require.NoError(t, f.rec.StartRecording())
	f.stream.push(make([]int16, 5000))
	f.stream.push(make([]int16, 5000))

	select {
	case <-f.timeouts:
	case <-time.After(waitFor):
		t.Fatal("OnTimeout not called")
	}
	blob := f.waitBlob(t)
	assert.Len(t, blob.Data, 8000*2)
	assert.Equal(t, time.Second, f.rec.RecordingTime())

	// Already finished by the time limit.
	f.rec.FinishRecording()
	assert.ErrorIs(t, f.rec.StartRecording(), ErrRecorderFinished)
}

func TestRecorderFinishDoesNotFireTimeout(t *testing.T) {
	f := newRecorderFixture(t, &fakeCodec{name: "fake"}, DefaultOptions())

	require.NoError(t, f.rec.StartRecording())
	f.rec.FinishRecording()
	f.waitBlob(t)

	select {
	case <-f.timeouts:
		t.Fatal("OnTimeout fired without reaching the limit")
	default:
	}
}

func TestRecorderCancel(t *testing.T) {
	opts := DefaultOptions()
	opts.EncodeAfterRecord = false
	f := newRecorderFixture(t, &fakeCodec{name: "fake"}, opts)

	require.NoError(t, f.rec.StartRecording())
	f.stream.push([]int16{1, 2})
	f.rec.CancelRecording()

	select {
	case <-f.rec.Done():
	case <-time.After(waitFor):
		t.Fatal("worker did not exit")
	}
	assert.Empty(t, f.complete)
	assert.Empty(t, f.errs)
	assert.True(t, f.codec.encoders[0].cancelled)
	assert.ErrorIs(t, f.rec.StartRecording(), ErrRecorderFinished)
}

func TestRecorderCancelBeatsTimeLimit(t *testing.T) {
	codec := &fakeCodec{name: "fake"}
	release := codec.gated()
	opts := DefaultOptions()
	opts.TimeLimit = 1
	opts.EncodeAfterRecord = false
	f := newRecorderFixture(t, codec, opts)
	t.Cleanup(release)

	require.NoError(t, f.rec.StartRecording())
	// The frame that reaches the limit is held inside Encode.
	f.stream.push(make([]int16, 8000))
	select {
	case <-codec.entered:
	case <-time.After(waitFor):
		t.Fatal("encoder never received the frame")
	}

	f.rec.CancelRecording()
	release()

	select {
	case <-f.rec.Done():
	case <-time.After(waitFor):
		t.Fatal("worker did not exit")
	}
	assert.Empty(t, f.complete)
	assert.Empty(t, f.errs)
	assert.Empty(t, f.timeouts)
	assert.True(t, codec.encoders[0].isCancelled())
	assert.ErrorIs(t, f.rec.StartRecording(), ErrRecorderFinished)
}

func TestRecorderCountsDroppedFrames(t *testing.T) {
	codec := &fakeCodec{name: "fake"}
	release := codec.gated()
	opts := DefaultOptions()
	opts.EncodeAfterRecord = false
	f := newRecorderFixture(t, codec, opts)
	t.Cleanup(release)

	require.NoError(t, f.rec.StartRecording())
	f.stream.push([]int16{1})
	select {
	case <-codec.entered:
	case <-time.After(waitFor):
		t.Fatal("encoder never received the frame")
	}

	// The worker is stuck, so only the queue's capacity is kept.
	for i := 0; i < frameQueueSize+3; i++ {
		f.stream.push([]int16{1})
	}
	assert.Equal(t, int64(3), f.rec.Dropped())

	release()
	f.rec.FinishRecording()
	blob := f.waitBlob(t)
	assert.Len(t, blob.Data, (frameQueueSize+1)*2)
}

func TestRecorderStateGuards(t *testing.T) {
	f := newRecorderFixture(t, &fakeCodec{name: "fake"}, DefaultOptions())

	// Finish before start is a no-op.
	f.rec.FinishRecording()
	assert.False(t, f.rec.IsRecording())

	require.NoError(t, f.rec.StartRecording())
	assert.Error(t, f.rec.StartRecording())
	assert.Error(t, f.rec.SetOptions(DefaultOptions()))

	f.rec.FinishRecording()
	f.rec.FinishRecording()
	f.waitBlob(t)
}

func TestRecorderEncodingError(t *testing.T) {
	f := newRecorderFixture(t, &fakeCodec{name: "fake", finishErr: errBoom}, DefaultOptions())

	require.NoError(t, f.rec.StartRecording())
	f.rec.FinishRecording()

	select {
	case err := <-f.errs:
		assert.True(t, IsErrorCode(err, ErrCodeEncoding))
		assert.ErrorIs(t, err, errBoom)
	case <-time.After(waitFor):
		t.Fatal("OnError not called")
	}
	assert.Empty(t, f.complete)
}
