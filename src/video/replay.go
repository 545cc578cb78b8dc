package video

import (
	"fmt"

	"video2anime/src/frame"
)

// replay tracks the read position of a capture. A live source cannot seek, so its first
// frame is kept and handed out again after a rewind.
type replay struct {
	live     bool
	position int
	first    *frame.Frame
	pending  *frame.Frame
}

// next returns the frame queued by a rewind, if any.
func (r *replay) next() (*frame.Frame, bool) {
	if nil == r.pending {
		return nil, false
	}

	f := r.pending
	r.pending = nil
	r.position++

	return f, true
}

// read records a frame decoded from the stream, nil for one that could not be decoded.
func (r *replay) read(f *frame.Frame) {
	if 0 == r.position && r.live && nil != f {
		r.first = f.Clone()
	}
	r.position++
}

// rewind reports whether the stream itself has to seek back to its start.
func (r *replay) rewind(source string) (bool, error) {
	if !r.live {
		r.position = 0
		return true, nil
	}

	if 1 < r.position || (1 == r.position && nil == r.first) {
		return false, fmt.Errorf("cannot rewind live source %s past its first frame", source)
	}

	if 1 == r.position {
		r.pending = r.first
		r.position = 0
	}

	return false, nil
}
