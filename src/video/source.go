package video

import (
	"runtime"
	"strconv"
)

// Source is an input the decoder can open: a file, or a capture device given by its index.
type Source struct {
	Path   string
	Format string
	Live   bool
	Index  int
}

func ParseSource(value string) Source {
	index, err := strconv.Atoi(value)
	if nil != err || 0 > index {
		return Source{Path: value}
	}

	switch runtime.GOOS {
	case "darwin":
		return Source{Path: strconv.Itoa(index), Format: "avfoundation", Live: true, Index: index}
	case "windows":
		return Source{Path: "video=" + strconv.Itoa(index), Format: "dshow", Live: true, Index: index}
	}

	return Source{Path: "/dev/video" + strconv.Itoa(index), Format: "v4l2", Live: true, Index: index}
}
