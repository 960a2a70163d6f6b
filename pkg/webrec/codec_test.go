package webrec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuiltinCodecs(t *testing.T) {
	assert.Equal(t, []string{"mp3", "ogg", "opus", "wav"}, Codecs())

	c, ok := LookupCodec("WAV")
	require.True(t, ok)
	assert.Equal(t, "wav", c.Name())

	_, err := mustCodec("aac")
	assert.ErrorIs(t, err, ErrUnsupportedEncoding)
	assert.ErrorContains(t, err, "aac")
}

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()
	assert.Equal(t, 300, opts.TimeLimit)
	assert.False(t, opts.EncodeAfterRecord)
	assert.Equal(t, 0.5, opts.Ogg.Quality)
	assert.Equal(t, 160, opts.MP3.BitRate)
}

func TestPCMHelpers(t *testing.T) {
	samples := []int16{0, 1, -1, 32767, -32768}
	data := Int16ToBytes(samples)
	assert.Equal(t, []byte{0, 0, 1, 0, 0xff, 0xff, 0xff, 0x7f, 0x00, 0x80}, data)
	assert.Equal(t, samples, BytesToInt16(append(data, 0x01)))
	assert.Equal(t, []int{0, 1, -1, 32767, -32768}, Int16ToInt(samples))

	assert.Equal(t, float32(0), CalculateRMS(nil))
	assert.InDelta(t, 0.5, CalculateRMS([]int16{16384, -16384}), 1e-6)

	stereo := StreamFormat{SampleRate: 8000, Channels: 2}
	assert.Equal(t, 0.5, SamplesDuration(8000, stereo))
	assert.Equal(t, 0.0, SamplesDuration(100, StreamFormat{}))
}

func TestAudioLevelMonitor(t *testing.T) {
	var avg, peak float32
	monitor := CreateAudioLevelMonitor(func(a, p float32) { avg, peak = a, p })

	monitor([]int16{16384, -8192, 0, 0})
	assert.InDelta(t, 0.1875, avg, 1e-6)
	assert.InDelta(t, 0.5, peak, 1e-6)

	avg, peak = -1, -1
	monitor(nil)
	assert.Equal(t, float32(-1), avg)
}

func TestChainHandlers(t *testing.T) {
	var got []string
	state := ChainStateHandlers(
		func(s StateSnapshot) { got = append(got, "a:"+string(s.Status)) },
		nil,
		func(s StateSnapshot) { got = append(got, "b:"+string(s.Status)) },
	)
	state(StateSnapshot{Status: StatusCapturing})
	assert.Equal(t, []string{"a:capturing", "b:capturing"}, got)

	var ids []string
	rec := ChainRecordingHandlers(func(e *RecordingEntry) { ids = append(ids, e.ID) }, nil)
	rec(&RecordingEntry{ID: "x"})
	assert.Equal(t, []string{"x"}, ids)
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, DebugLevel, ParseLogLevel("debug"))
	assert.Equal(t, WarnLevel, ParseLogLevel("WARNING"))
	assert.Equal(t, ErrorLevel, ParseLogLevel("ERROR"))
	assert.Equal(t, InfoLevel, ParseLogLevel("nonsense"))
}
