package webrec

import (
	"fmt"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/google/uuid"
)

const wavBitDepth = 16

// wavCodec writes 16-bit PCM WAV. go-audio's encoder needs to seek back and
// patch the header, so each encode goes through a temp file.
type wavCodec struct{}

func (wavCodec) Name() string {
	return "wav"
}

func (wavCodec) MIMEType() string {
	return "audio/wav"
}

func (wavCodec) Load(string) error {
	return nil
}

func (wavCodec) CheckFormat(format StreamFormat) error {
	if format.SampleRate <= 0 || format.Channels <= 0 {
		return fmt.Errorf("wav: invalid stream format %+v", format)
	}
	return nil
}

func (c wavCodec) NewEncoder(p EncoderParams) (FrameEncoder, error) {
	if err := c.CheckFormat(p.Format); err != nil {
		return nil, err
	}
	f, err := os.CreateTemp("", "webrec-"+uuid.NewString()+"-*.wav")
	if err != nil {
		return nil, fmt.Errorf("wav: create temp file: %w", err)
	}
	return &wavEncoder{
		file:   f,
		enc:    wav.NewEncoder(f, p.Format.SampleRate, wavBitDepth, p.Format.Channels, 1),
		format: &audio.Format{NumChannels: p.Format.Channels, SampleRate: p.Format.SampleRate},
	}, nil
}

type wavEncoder struct {
	file   *os.File
	enc    *wav.Encoder
	format *audio.Format
	wrote  bool
}

func (e *wavEncoder) Encode(samples []int16) error {
	if len(samples) == 0 {
		return nil
	}
	e.wrote = true
	buf := &audio.IntBuffer{
		Format:         e.format,
		Data:           Int16ToInt(samples),
		SourceBitDepth: wavBitDepth,
	}
	if err := e.enc.Write(buf); err != nil {
		return fmt.Errorf("wav: write: %w", err)
	}
	return nil
}

func (e *wavEncoder) Finish() ([]byte, error) {
	defer e.remove()

	// An empty recording still needs the RIFF and data headers.
	if !e.wrote {
		empty := &audio.IntBuffer{Format: e.format, SourceBitDepth: wavBitDepth}
		if err := e.enc.Write(empty); err != nil {
			return nil, fmt.Errorf("wav: write header: %w", err)
		}
	}
	if err := e.enc.Close(); err != nil {
		return nil, fmt.Errorf("wav: finalize: %w", err)
	}
	if err := e.file.Close(); err != nil {
		return nil, fmt.Errorf("wav: close: %w", err)
	}
	data, err := os.ReadFile(e.file.Name())
	if err != nil {
		return nil, fmt.Errorf("wav: read back: %w", err)
	}
	return data, nil
}

func (e *wavEncoder) Cancel() {
	e.file.Close()
	e.remove()
}

func (e *wavEncoder) remove() {
	os.Remove(e.file.Name())
}
