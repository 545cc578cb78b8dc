package video

import (
	"context"
	"fmt"
	"math"
	"os/exec"
	"strings"

	"gopkg.in/Knetic/govaluate.v2"
)

// Metadata describes the decoded stream. Frames is what the container declares and is only
// used for progress: the actual number of decodable frames may differ.
type Metadata struct {
	Width    int
	Height   int
	Frames   int
	FPS      float64
	Rotation int
}

type probeFunc func(entry string) (string, error)

// eval evaluates the numeric and rational values ffprobe prints, like "30000/1001".
func eval(value string) (float64, error) {
	expr, err := govaluate.NewEvaluableExpression(value)
	if nil != err {
		return 0, fmt.Errorf("invalid value %q: %w", value, err)
	}

	result, err := expr.Evaluate(map[string]interface{}{})
	if nil != err {
		return 0, fmt.Errorf("invalid value %q: %w", value, err)
	}

	number, ok := result.(float64)
	if !ok || math.IsNaN(number) || math.IsInf(number, 0) {
		return 0, fmt.Errorf("invalid value %q", value)
	}

	return number, nil
}

func firstLine(value string) string {
	line, _, _ := strings.Cut(strings.Trim(value, "\r\n"), "\n")

	return strings.TrimSpace(line)
}

func readMetadata(probe probeFunc) (Metadata, error) {
	meta := Metadata{}

	width, err := probeNumber(probe, "stream=width")
	if nil != err {
		return meta, err
	}

	height, err := probeNumber(probe, "stream=height")
	if nil != err {
		return meta, err
	}

	rotation, err := probe("stream_side_data=rotation")
	if nil != err {
		return meta, err
	}

	switch firstLine(rotation) {
	case "", "0", "-180", "180":
		meta.Width, meta.Height = int(width), int(height)
	case "-90", "90", "-270", "270":
		meta.Width, meta.Height = int(height), int(width)
	default:
		return meta, fmt.Errorf("unknown rotation value: %q", firstLine(rotation))
	}

	if r, err := eval(firstLine(rotation)); nil == err {
		meta.Rotation = int(r)
	}

	if 0 >= meta.Width || 0 >= meta.Height {
		return meta, fmt.Errorf("invalid frame size %dx%d", meta.Width, meta.Height)
	}

	meta.FPS, err = probeNumber(probe, "stream=avg_frame_rate")
	if nil != err || 0 >= meta.FPS {
		meta.FPS, err = probeNumber(probe, "stream=r_frame_rate")
		if nil != err || 0 >= meta.FPS {
			return meta, fmt.Errorf("unknown frame rate")
		}
	}

	if frames, err := probeNumber(probe, "stream=nb_frames"); nil == err && 0 < frames {
		meta.Frames = int(frames)
	} else if duration, err := probeNumber(probe, "format=duration"); nil == err && 0 < duration {
		meta.Frames = int(math.Round(duration * meta.FPS))
	}

	return meta, nil
}

func probeNumber(probe probeFunc, entry string) (float64, error) {
	out, err := probe(entry)
	if nil != err {
		return 0, err
	}

	value := firstLine(out)
	if "" == value || "N/A" == value {
		return 0, fmt.Errorf("%s not available", entry)
	}

	number, err := eval(value)
	if nil != err {
		return 0, fmt.Errorf("%s: %w", entry, err)
	}

	return number, nil
}

func (f *FFmpeg) prober(ctx context.Context, source Source) probeFunc {
	return func(entry string) (string, error) {
		args := []string{"-v", "error", "-select_streams", "v:0"}
		if "" != source.Format {
			args = append(args, "-f", source.Format)
		}
		args = append(args,
			"-of", "default=noprint_wrappers=1:nokey=1",
			"-show_entries", entry,
			source.Path,
		)

		out, err := exec.CommandContext(ctx, f.ProbeBinary, args...).Output()
		if nil != err {
			if exit, ok := err.(*exec.ExitError); ok {
				return "", fmt.Errorf("ffprobe %s: %w: %s", entry, err, strings.TrimSpace(string(exit.Stderr)))
			}
			return "", fmt.Errorf("ffprobe %s: %w", entry, err)
		}

		return string(out), nil
	}
}

// Probe reads the stream metadata of a source without decoding it.
func (f *FFmpeg) Probe(ctx context.Context, source string) (Metadata, error) {
	return readMetadata(f.prober(ctx, ParseSource(source)))
}
