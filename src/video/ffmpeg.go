package video

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"

	"video2anime/src/frame"
)

// FFmpeg decodes and encodes through ffmpeg subprocesses exchanging packed bgr24 frames over
// pipes.
type FFmpeg struct {
	Binary      string
	ProbeBinary string
}

func NewFFmpeg() *FFmpeg {
	return &FFmpeg{Binary: "ffmpeg", ProbeBinary: "ffprobe"}
}

// tail keeps the last bytes ffmpeg wrote to stderr for error reports.
type tail struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

const tailSize = 4096

func (t *tail) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.buf.Write(p)
	if t.buf.Len() > tailSize {
		t.buf.Next(t.buf.Len() - tailSize)
	}

	return len(p), nil
}

func (t *tail) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	return strings.TrimSpace(t.buf.String())
}

func commandError(name string, err error, stderr *tail) error {
	if msg := stderr.String(); "" != msg {
		return fmt.Errorf("%s: %w: %s", name, err, msg)
	}

	return fmt.Errorf("%s: %w", name, err)
}

func captureArgs(source Source) []string {
	args := []string{"-v", "error", "-nostdin"}
	if "" != source.Format {
		args = append(args, "-f", source.Format)
	}

	return append(args,
		"-i", source.Path,
		"-map", "0:v:0",
		"-f", "rawvideo",
		"-pix_fmt", "bgr24",
		"-vcodec", "rawvideo",
		"-",
	)
}

type ffmpegCapture struct {
	ctx    context.Context
	binary string
	source Source
	meta   Metadata

	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr *tail

	replay
	waitErr error
}

func (f *FFmpeg) Open(ctx context.Context, value string) (Capture, error) {
	source := ParseSource(value)

	meta, err := readMetadata(f.prober(ctx, source))
	if nil != err {
		return nil, fmt.Errorf("probe %s: %w", source.Path, err)
	}

	c := &ffmpegCapture{ctx: ctx, binary: f.Binary, source: source, meta: meta, replay: replay{live: source.Live}}
	if err := c.start(); nil != err {
		return nil, err
	}

	return c, nil
}

func (c *ffmpegCapture) start() error {
	c.stderr = &tail{}
	c.cmd = exec.CommandContext(c.ctx, c.binary, captureArgs(c.source)...)
	c.cmd.Stderr = c.stderr

	stdout, err := c.cmd.StdoutPipe()
	if nil != err {
		return err
	}

	if err := c.cmd.Start(); nil != err {
		return fmt.Errorf("start ffmpeg decoder: %w", err)
	}

	c.stdout = stdout
	c.waitErr = nil

	return nil
}

// stop terminates a decoder that is still running, its exit status is irrelevant then.
func (c *ffmpegCapture) stop() {
	if nil == c.cmd {
		return
	}

	if nil == c.cmd.ProcessState && nil != c.cmd.Process {
		c.stdout.Close()
		c.cmd.Process.Kill()
		c.cmd.Wait()
	}

	c.cmd = nil
}

func (c *ffmpegCapture) Metadata() Metadata {
	return c.meta
}

func (c *ffmpegCapture) Read() (*frame.Frame, error) {
	if f, ok := c.next(); ok {
		return f, nil
	}

	if nil == c.cmd {
		return nil, io.EOF
	}

	f, err := readFrame(c.stdout, c.meta.Width, c.meta.Height)
	switch {
	case nil == err:
		c.read(f)

		return f, nil
	case errors.Is(err, io.EOF):
		if nil == c.cmd.ProcessState {
			if waitErr := c.cmd.Wait(); nil != waitErr {
				c.waitErr = commandError("ffmpeg decoder", waitErr, c.stderr)
			}
		}

		return nil, io.EOF
	case errors.Is(err, ErrEmptyFrame):
		c.read(nil)

		return nil, err
	}

	return nil, err
}

// readFrame reads one packed bgr24 frame. A truncated frame at the end of the stream is
// reported as ErrEmptyFrame, the next read then returns io.EOF.
func readFrame(r io.Reader, width, height int) (*frame.Frame, error) {
	f := frame.New(width, height)

	read, err := io.ReadFull(r, f.Pix)
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, fmt.Errorf("%w: read %d of %d bytes", ErrEmptyFrame, read, len(f.Pix))
	}

	if nil != err {
		return nil, err
	}

	return f, nil
}

func (c *ffmpegCapture) Rewind() error {
	seek, err := c.rewind(c.source.Path)
	if nil != err || !seek {
		return err
	}

	c.stop()

	return c.start()
}

func (c *ffmpegCapture) Close() error {
	c.stop()

	return c.waitErr
}

func writerArgs(path string, spec WriterSpec) []string {
	args := []string{
		"-v", "error",
		"-y",
		"-f", "rawvideo",
		"-pix_fmt", "bgr24",
		"-video_size", fmt.Sprintf("%dx%d", spec.Width, spec.Height),
		"-framerate", fmt.Sprintf("%.6f", spec.FPS),
		"-i", "-",
		"-c:v", spec.Codec.Encoder,
	}
	args = append(args, spec.Codec.Args...)

	if "" != spec.Codec.PixFmt {
		args = append(args, "-pix_fmt", spec.Codec.PixFmt)
	}

	return append(args, path)
}

type ffmpegWriter struct {
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	stderr  *tail
	spec    WriterSpec
	written int
	closed  bool
}

func (f *FFmpeg) Create(ctx context.Context, path string, spec WriterSpec) (Writer, error) {
	if err := spec.Validate(); nil != err {
		return nil, err
	}

	w := &ffmpegWriter{stderr: &tail{}, spec: spec}
	w.cmd = exec.CommandContext(ctx, f.Binary, writerArgs(path, spec)...)
	w.cmd.Stderr = w.stderr

	stdin, err := w.cmd.StdinPipe()
	if nil != err {
		return nil, err
	}
	w.stdin = stdin

	if err := w.cmd.Start(); nil != err {
		return nil, fmt.Errorf("start ffmpeg encoder: %w", err)
	}

	return w, nil
}

func (w *ffmpegWriter) Write(f *frame.Frame) error {
	if w.closed {
		return fmt.Errorf("write to closed writer")
	}

	if err := f.Validate(); nil != err {
		return err
	}

	if f.Width != w.spec.Width || f.Height != w.spec.Height {
		return fmt.Errorf("frame is %dx%d, writer expects %dx%d", f.Width, f.Height, w.spec.Width, w.spec.Height)
	}

	size := f.Width * f.Height * frame.Channels
	written, err := w.stdin.Write(f.Pix[:size])
	if nil != err {
		return commandError("ffmpeg encoder", err, w.stderr)
	}

	if size != written {
		return fmt.Errorf("failed to write %d bytes, wrote %d instead", size, written)
	}

	w.written++

	return nil
}

func (w *ffmpegWriter) Written() int {
	return w.written
}

func (w *ffmpegWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	closeErr := w.stdin.Close()
	if err := w.cmd.Wait(); nil != err {
		return commandError("ffmpeg encoder", err, w.stderr)
	}

	return closeErr
}
