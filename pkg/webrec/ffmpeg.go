package webrec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

const ffmpegBinary = "ffmpeg"

// argsFunc builds the output half of an ffmpeg command line.
type argsFunc func(opts Options) []string

// ffmpegCodec runs an ffmpeg worker process per recording: PCM goes in on
// stdin, the encoded container comes out on stdout.
type ffmpegCodec struct {
	name       string
	mimeType   string
	outputArgs argsFunc
}

func newFFmpegCodec(name, mimeType string, outputArgs argsFunc) *ffmpegCodec {
	return &ffmpegCodec{name: name, mimeType: mimeType, outputArgs: outputArgs}
}

func (c *ffmpegCodec) Name() string {
	return c.name
}

func (c *ffmpegCodec) MIMEType() string {
	return c.mimeType
}

func (c *ffmpegCodec) Load(workerDir string) error {
	_, err := resolveFFmpeg(workerDir)
	return err
}

// resolveFFmpeg looks for the ffmpeg worker in workerDir, falling back to $PATH.
func resolveFFmpeg(workerDir string) (string, error) {
	if workerDir != "" {
		candidate := filepath.Join(workerDir, ffmpegBinary)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
		return "", fmt.Errorf("%s not found in worker dir %s", ffmpegBinary, workerDir)
	}
	path, err := exec.LookPath(ffmpegBinary)
	if err != nil {
		return "", fmt.Errorf("%s not found: %w", ffmpegBinary, err)
	}
	return path, nil
}

// ffmpegArgs is the full argument list for one encode.
func ffmpegArgs(format StreamFormat, output []string) []string {
	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-f", "s16le",
		"-ar", strconv.Itoa(format.SampleRate),
		"-ac", strconv.Itoa(format.Channels),
		"-i", "pipe:0",
	}
	args = append(args, output...)
	return append(args, "pipe:1")
}

// vorbisArgs maps quality [-0.1, 1.0] onto libvorbis -q:a [-1, 10].
func vorbisArgs(opts Options) []string {
	q := opts.Ogg.Quality
	if q < -0.1 {
		q = -0.1
	}
	if q > 1 {
		q = 1
	}
	return []string{"-c:a", "libvorbis", "-q:a", strconv.FormatFloat(q*10, 'f', 1, 64), "-f", "ogg"}
}

func mp3Args(opts Options) []string {
	rate := opts.MP3.BitRate
	if rate <= 0 {
		rate = DefaultOptions().MP3.BitRate
	}
	return []string{"-c:a", "libmp3lame", "-b:a", strconv.Itoa(rate) + "k", "-f", "mp3"}
}

func (c *ffmpegCodec) NewEncoder(p EncoderParams) (FrameEncoder, error) {
	bin, err := resolveFFmpeg(p.WorkerDir)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(ctx, bin, ffmpegArgs(p.Format, c.outputArgs(p.Options))...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%s: stdin pipe: %w", c.name, err)
	}
	e := &ffmpegEncoder{
		name:   c.name,
		cmd:    cmd,
		stdin:  stdin,
		cancel: cancel,
	}
	cmd.Stdout = &e.stdout
	cmd.Stderr = &e.stderr

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("%s: start %s: %w", c.name, bin, err)
	}
	return e, nil
}

type ffmpegEncoder struct {
	name   string
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout bytes.Buffer
	stderr bytes.Buffer
	cancel context.CancelFunc
}

func (e *ffmpegEncoder) Encode(samples []int16) error {
	if _, err := e.stdin.Write(Int16ToBytes(samples)); err != nil {
		return fmt.Errorf("%s: write to encoder: %w", e.name, err)
	}
	return nil
}

func (e *ffmpegEncoder) Finish() ([]byte, error) {
	defer e.cancel()

	if err := e.stdin.Close(); err != nil {
		return nil, fmt.Errorf("%s: close encoder input: %w", e.name, err)
	}
	if err := e.cmd.Wait(); err != nil {
		return nil, fmt.Errorf("%s: encoder exited: %w", e.name, e.failure(err))
	}
	return e.stdout.Bytes(), nil
}

func (e *ffmpegEncoder) Cancel() {
	e.cancel()
	e.stdin.Close()
	e.cmd.Wait()
}

// failure attaches ffmpeg's stderr to err. Only valid after Wait.
func (e *ffmpegEncoder) failure(err error) error {
	msg := strings.TrimSpace(e.stderr.String())
	if msg == "" {
		return err
	}
	return errors.Join(err, errors.New(msg))
}
