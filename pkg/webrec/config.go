package webrec

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type RecorderConfig struct {
	WorkerDir         string        `json:"worker_dir,omitempty"`
	DefaultEncoding   string        `json:"default_encoding" validate:"required"`
	TimeLimit         int           `json:"time_limit" validate:"min=1"`
	EncodeAfterRecord bool          `json:"encode_after_record"`
	OggQuality        float64       `json:"ogg_quality" validate:"gte=-0.1,lte=1"`
	MP3BitRate        int           `json:"mp3_bit_rate" validate:"oneof=64 80 96 112 128 160 192 224 256 320"`
	OpusBitRate       int           `json:"opus_bit_rate" validate:"min=6,max=510"`
	SampleRate        int           `json:"sample_rate" validate:"oneof=8000 12000 16000 22050 24000 44100 48000"`
	Channels          int           `json:"channels" validate:"min=1,max=2"`
	BufferSize        int           `json:"buffer_size" validate:"min=64"`
	AudioDeviceID     *int          `json:"audio_device_id,omitempty"`
	MicPermission     string        `json:"mic_permission" validate:"oneof=granted denied prompt"`
	OutputDir         string        `json:"output_dir,omitempty"`
	SaveRecordings    bool          `json:"save_recordings"`
	MaxRecordings     int           `json:"max_recordings" validate:"min=0"`
	ListenAddr        string        `json:"listen_addr" validate:"required"`
	AllowedOrigins    []string      `json:"allowed_origins,omitempty"`
	// ObjectURLTTL of zero keeps object URLs alive until revoked.
	ObjectURLTTL      time.Duration `json:"object_url_ttl" validate:"gte=0"`
	DebugLevel        string        `json:"debug_level" validate:"oneof=DEBUG INFO WARNING ERROR"`
	DebugAudio        bool          `json:"debug_audio"`
	// SilenceStop ends capture after this much continuous silence. Zero disables it.
	SilenceStop       time.Duration `json:"silence_stop" validate:"gte=0"`
	SilenceThreshold  float64       `json:"silence_threshold" validate:"gte=0,lte=1"`
}

func NewRecorderConfig() *RecorderConfig {
	c := &RecorderConfig{
		DefaultEncoding:   "wav",
		TimeLimit:         120,
		EncodeAfterRecord: true,
		OggQuality:        0.5,
		MP3BitRate:        160,
		OpusBitRate:       64,
		SampleRate:        48000,
		Channels:          1,
		BufferSize:        1024,
		MicPermission:     "granted",
		OutputDir:         "recordings",
		MaxRecordings:     50,
		ListenAddr:        "127.0.0.1:8080",
		DebugLevel:        "INFO",
		SilenceThreshold:  0.01,
	}

	c.loadFromEnv()

	return c
}

func (c *RecorderConfig) loadFromEnv() {
	// Load .env if exists
	_ = godotenv.Load()

	if dir := os.Getenv("WEBREC_WORKER_DIR"); dir != "" {
		c.WorkerDir = dir
	}
	if enc := os.Getenv("WEBREC_DEFAULT_ENCODING"); enc != "" {
		c.DefaultEncoding = strings.ToLower(enc)
	}
	envInt("WEBREC_TIME_LIMIT", &c.TimeLimit)
	if v := os.Getenv("WEBREC_ENCODE_AFTER_RECORD"); v != "" {
		c.EncodeAfterRecord = v != "false"
	}
	if v := os.Getenv("WEBREC_OGG_QUALITY"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.OggQuality = f
		}
	}
	envInt("WEBREC_MP3_BIT_RATE", &c.MP3BitRate)
	envInt("WEBREC_OPUS_BIT_RATE", &c.OpusBitRate)
	envInt("WEBREC_SAMPLE_RATE", &c.SampleRate)
	envInt("WEBREC_CHANNELS", &c.Channels)
	envInt("WEBREC_BUFFER_SIZE", &c.BufferSize)

	if v := os.Getenv("WEBREC_AUDIO_DEVICE_ID"); v != "" {
		if id, err := strconv.Atoi(v); err == nil {
			c.AudioDeviceID = &id
		}
	}
	if v := os.Getenv("WEBREC_MIC_PERMISSION"); v != "" {
		c.MicPermission = strings.ToLower(v)
	}
	if v := os.Getenv("WEBREC_OUTPUT_DIR"); v != "" {
		c.OutputDir = v
	}
	c.SaveRecordings = os.Getenv("WEBREC_SAVE_RECORDINGS") == "true"
	envInt("WEBREC_MAX_RECORDINGS", &c.MaxRecordings)

	if v := os.Getenv("WEBREC_LISTEN_ADDR"); v != "" {
		c.ListenAddr = v
	}
	if v := os.Getenv("WEBREC_ALLOWED_ORIGINS"); v != "" {
		c.AllowedOrigins = nil
		for _, origin := range strings.Split(v, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				c.AllowedOrigins = append(c.AllowedOrigins, origin)
			}
		}
	}
	if v := os.Getenv("WEBREC_OBJECT_URL_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.ObjectURLTTL = d
		}
	}
	if level := os.Getenv("WEBREC_DEBUG_LEVEL"); level != "" {
		c.DebugLevel = strings.ToUpper(level)
	}
	c.DebugAudio = os.Getenv("WEBREC_DEBUG_AUDIO") == "true"

	if v := os.Getenv("WEBREC_SILENCE_STOP"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.SilenceStop = d
		}
	}
	if v := os.Getenv("WEBREC_SILENCE_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.SilenceThreshold = f
		}
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

var configValidator = validator.New()

// Validate returns list of issues
func (c *RecorderConfig) Validate() []string {
	issues := []string{}

	if err := configValidator.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				if fe.Param() != "" {
					issues = append(issues, fmt.Sprintf("%s: failed %s=%s (got %v)", fe.Field(), fe.Tag(), fe.Param(), fe.Value()))
				} else {
					issues = append(issues, fmt.Sprintf("%s: failed %s (got %v)", fe.Field(), fe.Tag(), fe.Value()))
				}
			}
		} else {
			issues = append(issues, err.Error())
		}
	}

	if codec, ok := LookupCodec(c.DefaultEncoding); !ok {
		issues = append(issues, fmt.Sprintf("Unknown default encoding: %s", c.DefaultEncoding))
	} else if fc, ok := codec.(FormatChecker); ok {
		if err := fc.CheckFormat(StreamFormat{SampleRate: c.SampleRate, Channels: c.Channels}); err != nil {
			issues = append(issues, fmt.Sprintf("Default encoding cannot record this stream: %v", err))
		}
	}
	if c.SaveRecordings && c.OutputDir == "" {
		issues = append(issues, "Output directory required when saving recordings")
	}

	return issues
}

// EncoderOptions derives the encoder settings applied to every session.
func (c *RecorderConfig) EncoderOptions() Options {
	opts := DefaultOptions()
	opts.TimeLimit = c.TimeLimit
	opts.EncodeAfterRecord = c.EncodeAfterRecord
	opts.Ogg.Quality = c.OggQuality
	opts.MP3.BitRate = c.MP3BitRate
	opts.Opus.BitRate = c.OpusBitRate
	return opts
}

func (c *RecorderConfig) PrintConfig() {
	fmt.Println("🎙  webrec configuration")
	fmt.Println("==================================================")
	fmt.Printf("Listen Address: %s\n", c.ListenAddr)
	fmt.Printf("Default Encoding: %s\n", c.DefaultEncoding)
	fmt.Printf("Time Limit: %ds\n", c.TimeLimit)
	fmt.Printf("Encode After Record: %t\n", c.EncodeAfterRecord)
	fmt.Printf("Ogg Quality: %.2f\n", c.OggQuality)
	fmt.Printf("MP3 Bit Rate: %d kbps\n", c.MP3BitRate)
	fmt.Printf("Opus Bit Rate: %d kbps\n", c.OpusBitRate)
	fmt.Printf("Sample Rate: %d Hz\n", c.SampleRate)
	fmt.Printf("Channels: %d\n", c.Channels)
	fmt.Printf("Buffer Size: %d frames\n", c.BufferSize)
	if c.AudioDeviceID != nil {
		fmt.Printf("Audio Device ID: %d\n", *c.AudioDeviceID)
	} else {
		fmt.Println("Audio Device: Default")
	}
	fmt.Printf("Mic Permission: %s\n", c.MicPermission)
	if c.WorkerDir != "" {
		fmt.Printf("Worker Dir: %s\n", c.WorkerDir)
	} else {
		fmt.Println("Worker Dir: $PATH")
	}
	fmt.Printf("Save Recordings: %t (%s)\n", c.SaveRecordings, c.OutputDir)
	fmt.Printf("Max Recordings: %d\n", c.MaxRecordings)
	if c.ObjectURLTTL > 0 {
		fmt.Printf("Object URL TTL: %s\n", c.ObjectURLTTL)
	} else {
		fmt.Println("Object URL TTL: until revoked")
	}
	fmt.Printf("Debug Level: %s\n", c.DebugLevel)
	fmt.Printf("Debug Audio: %t\n", c.DebugAudio)
	if c.SilenceStop > 0 {
		fmt.Printf("Silence Stop: %s (threshold %.3f)\n", c.SilenceStop, c.SilenceThreshold)
	}
}
