package video

import (
	"fmt"
	"sort"
	"strings"
)

// Codec maps a four character code onto an ffmpeg encoder.
type Codec struct {
	Tag     string
	Encoder string
	PixFmt  string
	Args    []string

	// Ext is the container used when the output name has no extension.
	Ext string
}

var codecs = map[string]Codec{
	"MP4V": {Encoder: "mpeg4", PixFmt: "yuv420p", Ext: ".mp4"},
	"FMP4": {Encoder: "mpeg4", PixFmt: "yuv420p", Ext: ".mp4"},
	"DIVX": {Encoder: "mpeg4", PixFmt: "yuv420p", Args: []string{"-vtag", "DIVX"}, Ext: ".avi"},
	"XVID": {Encoder: "mpeg4", PixFmt: "yuv420p", Args: []string{"-vtag", "xvid"}, Ext: ".avi"},
	"H264": {Encoder: "libx264", PixFmt: "yuv420p", Ext: ".mp4"},
	"X264": {Encoder: "libx264", PixFmt: "yuv420p", Ext: ".mp4"},
	"AVC1": {Encoder: "libx264", PixFmt: "yuv420p", Ext: ".mp4"},
	"HEVC": {Encoder: "libx265", PixFmt: "yuv420p", Ext: ".mp4"},
	"H265": {Encoder: "libx265", PixFmt: "yuv420p", Ext: ".mp4"},
	"HEV1": {Encoder: "libx265", PixFmt: "yuv420p", Ext: ".mp4"},
	"HVC1": {Encoder: "libx265", PixFmt: "yuv420p", Args: []string{"-tag:v", "hvc1"}, Ext: ".mp4"},
	"MJPG": {Encoder: "mjpeg", PixFmt: "yuvj420p", Ext: ".avi"},
	"VP80": {Encoder: "libvpx", PixFmt: "yuv420p", Ext: ".webm"},
	"VP90": {Encoder: "libvpx-vp9", PixFmt: "yuv420p", Ext: ".webm"},
}

func CodecTags() []string {
	tags := make([]string, 0, len(codecs))
	for tag := range codecs {
		tags = append(tags, tag)
	}
	sort.Strings(tags)

	return tags
}

func ParseCodec(tag string) (Codec, error) {
	if 4 != len(tag) {
		return Codec{}, fmt.Errorf("codec tag %q must be 4 characters", tag)
	}

	tag = strings.ToUpper(tag)
	codec, ok := codecs[tag]
	if !ok {
		return Codec{}, fmt.Errorf("unsupported codec tag %q, expected one of %v", tag, CodecTags())
	}

	codec.Tag = tag

	return codec, nil
}
