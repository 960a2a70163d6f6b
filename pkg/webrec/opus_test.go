package webrec

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpusEncodesOggStream(t *testing.T) {
	codec, ok := LookupCodec("opus")
	require.True(t, ok)
	assert.Equal(t, "audio/ogg", codec.MIMEType())
	require.NoError(t, codec.Load(""))

	format := StreamFormat{SampleRate: 48000, Channels: 1}
	enc, err := codec.NewEncoder(EncoderParams{Format: format, Options: DefaultOptions()})
	require.NoError(t, err)

	// Two full 20ms frames plus a partial one that Finish pads.
	samples := make([]int16, 960*2+100)
	for i := range samples {
		samples[i] = int16((i % 64) * 256)
	}
	require.NoError(t, enc.Encode(samples[:500]))
	require.NoError(t, enc.Encode(samples[500:]))

	data, err := enc.Finish()
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("OggS")))
	assert.True(t, bytes.Contains(data, []byte("OpusHead")))
	assert.Greater(t, bytes.Count(data, []byte("OggS")), 2)
}

func TestOpusRejectsUnsupportedFormats(t *testing.T) {
	codec := &opusCodec{}

	_, err := codec.NewEncoder(EncoderParams{Format: StreamFormat{SampleRate: 44100, Channels: 1}})
	assert.ErrorContains(t, err, "unsupported sample rate 44100")

	_, err = codec.NewEncoder(EncoderParams{Format: StreamFormat{SampleRate: 48000, Channels: 3}})
	assert.ErrorContains(t, err, "unsupported channel count 3")
}
