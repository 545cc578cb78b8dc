package video

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"sort"

	"video2anime/src/frame"
)

// ErrEmptyFrame marks a read that produced no usable frame while the stream goes on.
var ErrEmptyFrame = frame.ErrEmpty

// Capture is an open input stream.
type Capture interface {
	Metadata() Metadata

	// Read returns the next frame, io.EOF once the stream is exhausted, or an error wrapping
	// ErrEmptyFrame for a frame that could not be decoded.
	Read() (*frame.Frame, error)

	// Rewind repositions the stream on its first frame.
	Rewind() error

	Close() error
}

type Writer interface {
	Write(f *frame.Frame) error

	// Written is the number of frames accepted so far.
	Written() int

	Close() error
}

type WriterSpec struct {
	Codec  Codec
	FPS    float64
	Width  int
	Height int
}

func (s WriterSpec) Validate() error {
	if 0 >= s.Width || 0 >= s.Height {
		return fmt.Errorf("invalid output size %dx%d", s.Width, s.Height)
	}

	if 0 >= s.FPS {
		return fmt.Errorf("invalid output frame rate %f", s.FPS)
	}

	if "" == s.Codec.Tag {
		return fmt.Errorf("missing codec")
	}

	return nil
}

// Backend opens captures and creates writers.
type Backend interface {
	Open(ctx context.Context, source string) (Capture, error)
	Create(ctx context.Context, path string, spec WriterSpec) (Writer, error)
}

const (
	BackendFFmpeg = "ffmpeg"
	BackendOpenCV = "opencv"
)

var backends = map[string]func() Backend{
	BackendFFmpeg: func() Backend { return NewFFmpeg() },
}

func Backends() []string {
	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

func NewBackend(name string) (Backend, error) {
	if "" == name {
		name = BackendFFmpeg
	}

	create, ok := backends[name]
	if !ok {
		return nil, fmt.Errorf("unknown video backend %q, expected one of %v", name, Backends())
	}

	return create(), nil
}

// Frames yields the frames of c until the stream is exhausted. Frames that cannot be decoded
// are yielded with an error wrapping ErrEmptyFrame and iteration goes on; any other error is
// yielded once and ends the sequence.
func Frames(c Capture) iter.Seq2[*frame.Frame, error] {
	return func(yield func(*frame.Frame, error) bool) {
		for {
			f, err := c.Read()
			if errors.Is(err, io.EOF) {
				return
			}

			if nil == err {
				if invalid := f.Validate(); nil != invalid {
					f, err = nil, invalid
				}
			}

			if !yield(f, err) {
				return
			}

			if nil != err && !errors.Is(err, ErrEmptyFrame) {
				return
			}
		}
	}
}
