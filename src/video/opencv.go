//go:build gocv

package video

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"

	"gocv.io/x/gocv"

	"video2anime/src/frame"
)

func init() {
	backends[BackendOpenCV] = func() Backend { return OpenCV{} }
}

// OpenCV reads and writes through OpenCV's VideoCapture and VideoWriter. Build with
// -tags gocv.
type OpenCV struct{}

type opencvCapture struct {
	vc   *gocv.VideoCapture
	mat  gocv.Mat
	meta Metadata
	path string
	replay
}

func (OpenCV) Open(_ context.Context, value string) (Capture, error) {
	source := ParseSource(value)

	var device interface{} = value
	if source.Live {
		device = source.Index
	}

	vc, err := gocv.OpenVideoCapture(device)
	if nil != err {
		return nil, err
	}

	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("cannot open %s", value)
	}

	meta := Metadata{
		Width:  int(vc.Get(gocv.VideoCaptureFrameWidth)),
		Height: int(vc.Get(gocv.VideoCaptureFrameHeight)),
		Frames: int(math.Max(0, vc.Get(gocv.VideoCaptureFrameCount))),
		FPS:    vc.Get(gocv.VideoCaptureFPS),
	}

	return &opencvCapture{vc: vc, mat: gocv.NewMat(), meta: meta, path: source.Path, replay: replay{live: source.Live}}, nil
}

func (c *opencvCapture) Metadata() Metadata {
	return c.meta
}

func (c *opencvCapture) Read() (*frame.Frame, error) {
	if f, ok := c.next(); ok {
		return f, nil
	}

	if !c.vc.Read(&c.mat) {
		return nil, io.EOF
	}

	if c.mat.Empty() || gocv.MatTypeCV8UC3 != c.mat.Type() {
		c.read(nil)
		return nil, fmt.Errorf("%w: empty or non BGR mat", ErrEmptyFrame)
	}

	f := &frame.Frame{Width: c.mat.Cols(), Height: c.mat.Rows(), Pix: c.mat.ToBytes()}
	c.read(f)

	return f, nil
}

func (c *opencvCapture) Rewind() error {
	seek, err := c.rewind(c.path)
	if nil != err || !seek {
		return err
	}

	c.vc.Set(gocv.VideoCapturePosFrames, 0)

	return nil
}

func (c *opencvCapture) Close() error {
	return errors.Join(c.mat.Close(), c.vc.Close())
}

type opencvWriter struct {
	vw      *gocv.VideoWriter
	spec    WriterSpec
	written int
}

func (OpenCV) Create(_ context.Context, path string, spec WriterSpec) (Writer, error) {
	if err := spec.Validate(); nil != err {
		return nil, err
	}

	vw, err := gocv.VideoWriterFile(path, spec.Codec.Tag, spec.FPS, spec.Width, spec.Height, true)
	if nil != err {
		return nil, err
	}

	return &opencvWriter{vw: vw, spec: spec}, nil
}

func (w *opencvWriter) Write(f *frame.Frame) error {
	if err := f.Validate(); nil != err {
		return err
	}

	if f.Width != w.spec.Width || f.Height != w.spec.Height {
		return fmt.Errorf("frame is %dx%d, writer expects %dx%d", f.Width, f.Height, w.spec.Width, w.spec.Height)
	}

	mat, err := gocv.NewMatFromBytes(f.Height, f.Width, gocv.MatTypeCV8UC3, f.Pix[:f.Width*f.Height*frame.Channels])
	if nil != err {
		return err
	}
	defer mat.Close()

	if err := w.vw.Write(mat); nil != err {
		return err
	}
	w.written++

	return nil
}

func (w *opencvWriter) Written() int {
	return w.written
}

func (w *opencvWriter) Close() error {
	return w.vw.Close()
}
