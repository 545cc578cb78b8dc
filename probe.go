package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"video2anime/src/video"
)

type prober interface {
	Probe(ctx context.Context, source string) (video.Metadata, error)
}

func printMetadata(w io.Writer, source string, meta video.Metadata) {
	fmt.Fprintf(w, "video:    %s\n", source)
	fmt.Fprintf(w, "size:     %dx%d\n", meta.Width, meta.Height)
	fmt.Fprintf(w, "rotation: %d\n", meta.Rotation)
	fmt.Fprintf(w, "fps:      %.3f\n", meta.FPS)

	if 0 < meta.Frames {
		fmt.Fprintf(w, "frames:   %d\n", meta.Frames)
	} else {
		fmt.Fprintln(w, "frames:   unknown")
	}
}

func newProbeCommand() *cobra.Command {
	return newProbeCommandWith(video.NewFFmpeg())
}

func newProbeCommandWith(p prober) *cobra.Command {
	return &cobra.Command{
		Use:   "probe <video>",
		Short: "Print the stream metadata of a video without converting it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			meta, err := p.Probe(cmd.Context(), args[0])
			if nil != err {
				return fmt.Errorf("probe %s: %w", args[0], err)
			}

			printMetadata(cmd.OutOrStdout(), args[0], meta)

			return nil
		},
	}
}
