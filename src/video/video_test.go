package video

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"video2anime/src/frame"
)

func fakeProbe(values map[string]string) probeFunc {
	return func(entry string) (string, error) {
		return values[entry] + "\n", nil
	}
}

func TestEval(t *testing.T) {
	v, err := eval("30000/1001")
	require.NoError(t, err)
	assert.InDelta(t, 29.97, v, 0.01)

	v, err = eval("-90")
	require.NoError(t, err)
	assert.Equal(t, -90.0, v)

	_, err = eval("0/0")
	assert.Error(t, err)

	_, err = eval("N/A")
	assert.Error(t, err)
}

func TestReadMetadata(t *testing.T) {
	tests := []struct {
		name    string
		values  map[string]string
		want    Metadata
		wantErr bool
	}{
		{
			name: "plain stream",
			values: map[string]string{
				"stream=width": "640", "stream=height": "480",
				"stream=avg_frame_rate": "24/1", "stream=nb_frames": "10",
			},
			want: Metadata{Width: 640, Height: 480, Frames: 10, FPS: 24},
		},
		{
			name: "rotated stream swaps sides",
			values: map[string]string{
				"stream=width": "1920", "stream=height": "1080", "stream_side_data=rotation": "-90",
				"stream=avg_frame_rate": "30000/1001", "stream=nb_frames": "300",
			},
			want: Metadata{Width: 1080, Height: 1920, Frames: 300, FPS: 30000.0 / 1001, Rotation: -90},
		},
		{
			name: "frame count estimated from duration",
			values: map[string]string{
				"stream=width": "320", "stream=height": "240",
				"stream=avg_frame_rate": "0/0", "stream=r_frame_rate": "25/1",
				"stream=nb_frames": "N/A", "format=duration": "2.000000",
			},
			want: Metadata{Width: 320, Height: 240, Frames: 50, FPS: 25},
		},
		{
			name: "unknown rotation",
			values: map[string]string{
				"stream=width": "320", "stream=height": "240", "stream_side_data=rotation": "45",
			},
			wantErr: true,
		},
		{
			name: "no frame rate",
			values: map[string]string{
				"stream=width": "320", "stream=height": "240",
			},
			wantErr: true,
		},
		{
			name:    "no video stream",
			values:  map[string]string{},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			meta, err := readMetadata(fakeProbe(tt.values))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want.Width, meta.Width)
			assert.Equal(t, tt.want.Height, meta.Height)
			assert.Equal(t, tt.want.Frames, meta.Frames)
			assert.Equal(t, tt.want.Rotation, meta.Rotation)
			assert.InDelta(t, tt.want.FPS, meta.FPS, 1e-9)
		})
	}
}

func TestParseCodec(t *testing.T) {
	c, err := ParseCodec("mp4v")
	require.NoError(t, err)
	assert.Equal(t, "MP4V", c.Tag)
	assert.Equal(t, "mpeg4", c.Encoder)

	c, err = ParseCodec("XVID")
	require.NoError(t, err)
	assert.Equal(t, []string{"-vtag", "xvid"}, c.Args)

	_, err = ParseCodec("H26")
	assert.Error(t, err)

	_, err = ParseCodec("ABCD")
	assert.Error(t, err)
}

func TestParseSource(t *testing.T) {
	s := ParseSource("video/input/clip.mp4")
	assert.Equal(t, Source{Path: "video/input/clip.mp4"}, s)

	s = ParseSource("-1")
	assert.False(t, s.Live)

	s = ParseSource("2")
	assert.True(t, s.Live)
	assert.Equal(t, 2, s.Index)
	if "linux" == runtime.GOOS {
		assert.Equal(t, "/dev/video2", s.Path)
		assert.Equal(t, "v4l2", s.Format)
	}
}

func TestCaptureArgs(t *testing.T) {
	args := captureArgs(Source{Path: "/dev/video0", Format: "v4l2"})
	assert.Equal(t, []string{
		"-v", "error", "-nostdin", "-f", "v4l2", "-i", "/dev/video0", "-map", "0:v:0",
		"-f", "rawvideo", "-pix_fmt", "bgr24", "-vcodec", "rawvideo", "-",
	}, args)
}

func TestWriterArgs(t *testing.T) {
	codec, err := ParseCodec("MP4V")
	require.NoError(t, err)

	args := writerArgs("out/clip.mp4", WriterSpec{Codec: codec, FPS: 24, Width: 640, Height: 480})
	assert.Equal(t, []string{
		"-v", "error", "-y", "-f", "rawvideo", "-pix_fmt", "bgr24", "-video_size", "640x480",
		"-framerate", "24.000000", "-i", "-", "-c:v", "mpeg4", "-pix_fmt", "yuv420p", "out/clip.mp4",
	}, args)
}

func TestWriterSpecValidate(t *testing.T) {
	codec, _ := ParseCodec("MJPG")

	assert.NoError(t, WriterSpec{Codec: codec, FPS: 1, Width: 1, Height: 1}.Validate())
	assert.Error(t, WriterSpec{Codec: codec, FPS: 0, Width: 1, Height: 1}.Validate())
	assert.Error(t, WriterSpec{Codec: codec, FPS: 1, Width: 0, Height: 1}.Validate())
	assert.Error(t, WriterSpec{FPS: 1, Width: 1, Height: 1}.Validate())
}

func TestReadFrame(t *testing.T) {
	data := bytes.Repeat([]byte{1, 2, 3}, 4*2)
	data = append(data, 9, 9, 9, 9)
	r := bytes.NewReader(data)

	f, err := readFrame(r, 4, 2)
	require.NoError(t, err)
	assert.Equal(t, 4, f.Width)
	assert.Equal(t, data[:24], f.Pix)

	_, err = readFrame(r, 4, 2)
	assert.ErrorIs(t, err, ErrEmptyFrame)

	_, err = readFrame(r, 4, 2)
	assert.ErrorIs(t, err, io.EOF)
}

type scriptedCapture struct {
	reads []error
	next  int
}

func (s *scriptedCapture) Metadata() Metadata { return Metadata{Width: 2, Height: 2, FPS: 1} }
func (s *scriptedCapture) Rewind() error      { s.next = 0; return nil }
func (s *scriptedCapture) Close() error       { return nil }

func (s *scriptedCapture) Read() (*frame.Frame, error) {
	if s.next >= len(s.reads) {
		return nil, io.EOF
	}

	err := s.reads[s.next]
	s.next++
	if nil != err {
		return nil, err
	}

	return frame.New(2, 2), nil
}

func collect(c Capture) (frames int, skipped int, last error) {
	for f, err := range Frames(c) {
		if errors.Is(err, ErrEmptyFrame) {
			skipped++
			continue
		}
		if nil != err {
			last = err
			continue
		}
		if nil != f {
			frames++
		}
	}

	return frames, skipped, last
}

func TestFramesSkipsEmptyFrames(t *testing.T) {
	empty := fmt.Errorf("%w: corrupt", ErrEmptyFrame)
	c := &scriptedCapture{reads: []error{nil, nil, empty, nil, empty}}

	frames, skipped, last := collect(c)
	assert.Equal(t, 3, frames)
	assert.Equal(t, 2, skipped)
	assert.NoError(t, last)

	require.NoError(t, c.Rewind())
	frames, _, _ = collect(c)
	assert.Equal(t, 3, frames, "sequence restarts after rewind")
}

func TestFramesStopsOnFatalError(t *testing.T) {
	boom := errors.New("pipe broken")
	c := &scriptedCapture{reads: []error{nil, boom, nil}}

	frames, _, last := collect(c)
	assert.Equal(t, 1, frames)
	assert.ErrorIs(t, last, boom)
}

func TestFramesEarlyBreak(t *testing.T) {
	c := &scriptedCapture{reads: []error{nil, nil, nil}}

	for range Frames(c) {
		break
	}
	assert.Equal(t, 1, c.next)
}

func TestNewBackend(t *testing.T) {
	b, err := NewBackend("")
	require.NoError(t, err)
	assert.IsType(t, &FFmpeg{}, b)

	_, err = NewBackend("gstreamer")
	assert.Error(t, err)
}

func TestReplayLiveSourceRepeatsFirstFrame(t *testing.T) {
	r := replay{live: true}
	first := frame.New(2, 2)
	first.SetBGR(0, 0, 1, 2, 3)

	r.read(first)
	seek, err := r.rewind("/dev/video0")
	require.NoError(t, err)
	assert.False(t, seek)

	f, ok := r.next()
	require.True(t, ok)
	assert.Equal(t, first.Pix, f.Pix)
	assert.Equal(t, 1, r.position)

	_, ok = r.next()
	assert.False(t, ok, "the first frame is replayed once")

	r.read(frame.New(2, 2))
	_, err = r.rewind("/dev/video0")
	assert.Error(t, err)
}

func TestReplayLiveSourceBeforeAnyRead(t *testing.T) {
	r := replay{live: true}

	seek, err := r.rewind("/dev/video0")
	require.NoError(t, err)
	assert.False(t, seek)

	_, ok := r.next()
	assert.False(t, ok)
}

func TestReplayLiveSourceEmptyFirstFrame(t *testing.T) {
	r := replay{live: true}
	r.read(nil)

	_, err := r.rewind("/dev/video0")
	assert.Error(t, err)
}

func TestReplayFileSeeks(t *testing.T) {
	r := replay{}
	r.read(frame.New(2, 2))
	r.read(frame.New(2, 2))

	seek, err := r.rewind("clip.mp4")
	require.NoError(t, err)
	assert.True(t, seek)
	assert.Zero(t, r.position)
	assert.Nil(t, r.first)

	_, ok := r.next()
	assert.False(t, ok)
}
