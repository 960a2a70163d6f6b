package webrec

import (
	"bytes"
	"fmt"
	"math/rand/v2"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4/pkg/media/oggwriter"
	"layeh.com/gopus"
)

const (
	opusFrameMs = 20
	// RTP clock for Opus is always 48 kHz whatever the input rate.
	opusRTPClock       = 48000
	opusPayloadType    = 111
	opusMaxPacketBytes = 4000
)

// opusCodec encodes with libopus and muxes the packets into an Ogg stream.
type opusCodec struct{}

func (*opusCodec) Name() string {
	return "opus"
}

func (*opusCodec) MIMEType() string {
	return "audio/ogg"
}

func (*opusCodec) Load(string) error {
	return nil
}

// CheckFormat accepts the rates and channel counts libopus encodes natively.
func (*opusCodec) CheckFormat(format StreamFormat) error {
	switch format.SampleRate {
	case 8000, 12000, 16000, 24000, 48000:
	default:
		return fmt.Errorf("opus: unsupported sample rate %d", format.SampleRate)
	}
	if format.Channels < 1 || format.Channels > 2 {
		return fmt.Errorf("opus: unsupported channel count %d", format.Channels)
	}
	return nil
}

func (c *opusCodec) NewEncoder(p EncoderParams) (FrameEncoder, error) {
	if err := c.CheckFormat(p.Format); err != nil {
		return nil, err
	}

	enc, err := gopus.NewEncoder(p.Format.SampleRate, p.Format.Channels, gopus.Audio)
	if err != nil {
		return nil, fmt.Errorf("opus: create encoder: %w", err)
	}
	if p.Options.Opus.BitRate > 0 {
		enc.SetBitrate(p.Options.Opus.BitRate * 1000)
	}

	out := &bytes.Buffer{}
	ogg, err := oggwriter.NewWith(out, uint32(p.Format.SampleRate), uint16(p.Format.Channels))
	if err != nil {
		return nil, fmt.Errorf("opus: create ogg writer: %w", err)
	}

	frameSize := p.Format.SampleRate * opusFrameMs / 1000
	return &opusEncoder{
		enc:       enc,
		ogg:       ogg,
		out:       out,
		frameSize: frameSize,
		channels:  p.Format.Channels,
		pending:   make([]int16, 0, frameSize*p.Format.Channels),
		ssrc:      rand.Uint32(),
		seq:       uint16(rand.Uint32()),
	}, nil
}

type opusEncoder struct {
	enc       *gopus.Encoder
	ogg       *oggwriter.OggWriter
	out       *bytes.Buffer
	frameSize int
	channels  int
	pending   []int16

	ssrc      uint32
	seq       uint16
	timestamp uint32
}

func (e *opusEncoder) Encode(samples []int16) error {
	e.pending = append(e.pending, samples...)
	chunk := e.frameSize * e.channels
	for len(e.pending) >= chunk {
		if err := e.writeFrame(e.pending[:chunk]); err != nil {
			return err
		}
		e.pending = e.pending[chunk:]
	}
	// Keep the backing array from growing without bound.
	if cap(e.pending) > 4*chunk {
		e.pending = append(make([]int16, 0, chunk), e.pending...)
	}
	return nil
}

func (e *opusEncoder) writeFrame(pcm []int16) error {
	packet, err := e.enc.Encode(pcm, e.frameSize, opusMaxPacketBytes)
	if err != nil {
		return fmt.Errorf("opus: encode: %w", err)
	}
	err = e.ogg.WriteRTP(&rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			PayloadType:    opusPayloadType,
			SequenceNumber: e.seq,
			Timestamp:      e.timestamp,
			SSRC:           e.ssrc,
		},
		Payload: packet,
	})
	if err != nil {
		return fmt.Errorf("opus: write ogg page: %w", err)
	}
	e.seq++
	e.timestamp += opusRTPClock * opusFrameMs / 1000
	return nil
}

// Finish pads the last partial frame with silence.
func (e *opusEncoder) Finish() ([]byte, error) {
	if len(e.pending) > 0 {
		frame := make([]int16, e.frameSize*e.channels)
		copy(frame, e.pending)
		e.pending = e.pending[:0]
		if err := e.writeFrame(frame); err != nil {
			return nil, err
		}
	}
	if err := e.ogg.Close(); err != nil {
		return nil, fmt.Errorf("opus: close ogg writer: %w", err)
	}
	return e.out.Bytes(), nil
}

func (e *opusEncoder) Cancel() {
	e.ogg.Close()
	e.out.Reset()
}
