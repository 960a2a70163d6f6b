package webrec

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// FrameEncoder turns PCM frames into one encoded file.
type FrameEncoder interface {
	// Encode consumes interleaved s16 samples. The slice is not retained.
	Encode(samples []int16) error
	// Finish flushes the encoder and returns the encoded bytes.
	Finish() ([]byte, error)
	// Cancel discards everything and releases resources.
	Cancel()
}

// Codec is one selectable encoding.
type Codec interface {
	// Name is the encoding identifier and the file extension.
	Name() string
	MIMEType() string
	// Load resolves whatever the codec needs at runtime. workerDir is the
	// base path for external encoder programs; empty means $PATH.
	Load(workerDir string) error
	NewEncoder(params EncoderParams) (FrameEncoder, error)
}

// FormatChecker is implemented by codecs that only accept some stream
// formats. NewRecorder consults it before any audio is captured.
type FormatChecker interface {
	CheckFormat(format StreamFormat) error
}

// EncoderParams is everything a codec needs to start one encode.
type EncoderParams struct {
	Format    StreamFormat
	Options   Options
	WorkerDir string
}

// OggOptions configure the Vorbis encoder.
type OggOptions struct {
	// Quality in [-0.1, 1.0].
	Quality float64 `json:"quality"`
}

// MP3Options configure the MP3 encoder.
type MP3Options struct {
	// BitRate in kbps.
	BitRate int `json:"bitRate"`
}

// OpusOptions configure the Opus encoder.
type OpusOptions struct {
	// BitRate in kbps.
	BitRate int `json:"bitRate"`
}

// Options is the encoder settings object.
type Options struct {
	// TimeLimit is the maximum capture duration in seconds.
	TimeLimit int `json:"timeLimit"`
	// EncodeAfterRecord buffers PCM and encodes once capture stops.
	// When false frames are encoded as they arrive.
	EncodeAfterRecord bool        `json:"encodeAfterRecord"`
	Ogg               OggOptions  `json:"ogg"`
	MP3               MP3Options  `json:"mp3"`
	Opus              OpusOptions `json:"opus"`
}

func DefaultOptions() Options {
	return Options{
		TimeLimit:         300,
		EncodeAfterRecord: false,
		Ogg:               OggOptions{Quality: 0.5},
		MP3:               MP3Options{BitRate: 160},
		Opus:              OpusOptions{BitRate: 64},
	}
}

var (
	codecsMu sync.RWMutex
	codecs   = map[string]Codec{}
)

// RegisterCodec makes a codec selectable by name. Registering a name twice
// replaces the earlier codec.
func RegisterCodec(c Codec) {
	codecsMu.Lock()
	defer codecsMu.Unlock()
	codecs[strings.ToLower(c.Name())] = c
}

func LookupCodec(name string) (Codec, bool) {
	codecsMu.RLock()
	defer codecsMu.RUnlock()
	c, ok := codecs[strings.ToLower(name)]
	return c, ok
}

// Codecs returns the registered encoding names, sorted.
func Codecs() []string {
	codecsMu.RLock()
	defer codecsMu.RUnlock()
	names := make([]string, 0, len(codecs))
	for name := range codecs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func mustCodec(name string) (Codec, error) {
	c, ok := LookupCodec(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedEncoding, name)
	}
	return c, nil
}

func init() {
	RegisterCodec(wavCodec{})
	RegisterCodec(&opusCodec{})
	RegisterCodec(newFFmpegCodec("ogg", "audio/ogg", vorbisArgs))
	RegisterCodec(newFFmpegCodec("mp3", "audio/mpeg", mp3Args))
}
