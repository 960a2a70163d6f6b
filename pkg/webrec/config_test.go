package webrec

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRecorderConfigDefaults(t *testing.T) {
	c := NewRecorderConfig()

	assert.Equal(t, "wav", c.DefaultEncoding)
	assert.Equal(t, 120, c.TimeLimit)
	assert.True(t, c.EncodeAfterRecord)
	assert.Equal(t, 0.5, c.OggQuality)
	assert.Equal(t, 160, c.MP3BitRate)
	assert.Equal(t, "granted", c.MicPermission)
	assert.Equal(t, time.Duration(0), c.ObjectURLTTL)
	assert.Equal(t, time.Duration(0), c.SilenceStop)
	assert.Equal(t, 0.01, c.SilenceThreshold)
	assert.Nil(t, c.AudioDeviceID)
	assert.Empty(t, c.Validate())
}

func TestRecorderConfigFromEnv(t *testing.T) {
	t.Setenv("WEBREC_DEFAULT_ENCODING", "MP3")
	t.Setenv("WEBREC_TIME_LIMIT", "30")
	t.Setenv("WEBREC_ENCODE_AFTER_RECORD", "false")
	t.Setenv("WEBREC_OGG_QUALITY", "0.8")
	t.Setenv("WEBREC_AUDIO_DEVICE_ID", "3")
	t.Setenv("WEBREC_MIC_PERMISSION", "Prompt")
	t.Setenv("WEBREC_SAVE_RECORDINGS", "true")
	t.Setenv("WEBREC_ALLOWED_ORIGINS", "http://a.test, ,http://b.test")
	t.Setenv("WEBREC_OBJECT_URL_TTL", "5m")
	t.Setenv("WEBREC_SILENCE_STOP", "3s")
	t.Setenv("WEBREC_SILENCE_THRESHOLD", "0.05")
	t.Setenv("WEBREC_DEBUG_LEVEL", "debug")
	t.Setenv("WEBREC_SAMPLE_RATE", "not-a-number")

	c := NewRecorderConfig()
	assert.Equal(t, "mp3", c.DefaultEncoding)
	assert.Equal(t, 30, c.TimeLimit)
	assert.False(t, c.EncodeAfterRecord)
	assert.Equal(t, 0.8, c.OggQuality)
	require.NotNil(t, c.AudioDeviceID)
	assert.Equal(t, 3, *c.AudioDeviceID)
	assert.Equal(t, "prompt", c.MicPermission)
	assert.True(t, c.SaveRecordings)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, c.AllowedOrigins)
	assert.Equal(t, 5*time.Minute, c.ObjectURLTTL)
	assert.Equal(t, 3*time.Second, c.SilenceStop)
	assert.Equal(t, 0.05, c.SilenceThreshold)
	assert.Equal(t, "DEBUG", c.DebugLevel)
	assert.Equal(t, 48000, c.SampleRate)
}

func TestRecorderConfigValidate(t *testing.T) {
	c := NewRecorderConfig()
	c.DefaultEncoding = "flac"
	c.TimeLimit = 0
	c.OggQuality = 2
	c.MP3BitRate = 100
	c.MicPermission = "maybe"
	c.SaveRecordings = true
	c.OutputDir = ""

	issues := c.Validate()
	joined := strings.Join(issues, "\n")
	assert.Contains(t, joined, "TimeLimit: failed min=1")
	assert.Contains(t, joined, "OggQuality: failed lte=1")
	assert.Contains(t, joined, "MP3BitRate: failed oneof")
	assert.Contains(t, joined, "MicPermission: failed oneof")
	assert.Contains(t, joined, "Unknown default encoding: flac")
	assert.Contains(t, joined, "Output directory required when saving recordings")
}

func TestRecorderConfigValidateDurations(t *testing.T) {
	c := NewRecorderConfig()
	c.ObjectURLTTL = 0
	c.SilenceStop = 0
	assert.Empty(t, c.Validate())

	c.ObjectURLTTL = -time.Second
	c.SilenceStop = -time.Second
	c.SilenceThreshold = 2
	joined := strings.Join(c.Validate(), "\n")
	assert.Contains(t, joined, "ObjectURLTTL: failed gte=0")
	assert.Contains(t, joined, "SilenceStop: failed gte=0")
	assert.Contains(t, joined, "SilenceThreshold: failed lte=1")
}

func TestRecorderConfigValidateStreamFormat(t *testing.T) {
	c := NewRecorderConfig()
	c.DefaultEncoding = "opus"
	c.SampleRate = 44100

	joined := strings.Join(c.Validate(), "\n")
	assert.Contains(t, joined, "Default encoding cannot record this stream")
	assert.Contains(t, joined, "44100")

	c.SampleRate = 48000
	assert.Empty(t, c.Validate())

	c.DefaultEncoding = "wav"
	c.SampleRate = 44100
	assert.Empty(t, c.Validate())
}

func TestEncoderOptionsFromConfig(t *testing.T) {
	c := NewRecorderConfig()
	c.TimeLimit = 45
	c.EncodeAfterRecord = false
	c.OggQuality = 0.1
	c.MP3BitRate = 320
	c.OpusBitRate = 96

	opts := c.EncoderOptions()
	assert.Equal(t, Options{
		TimeLimit:         45,
		EncodeAfterRecord: false,
		Ogg:               OggOptions{Quality: 0.1},
		MP3:               MP3Options{BitRate: 320},
		Opus:              OpusOptions{BitRate: 96},
	}, opts)
}
