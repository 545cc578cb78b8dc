package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"video2anime/src/config"
	"video2anime/src/frame"
	"video2anime/src/logger"
	"video2anime/src/metrics"
	"video2anime/src/model"
	"video2anime/src/pipeline"
	"video2anime/src/progress"
	"video2anime/src/video"
)

// normalize makes --checkpoint-dir and --checkpoint_dir the same flag.
func normalize(_ *pflag.FlagSet, name string) pflag.NormalizedName {
	return pflag.NormalizedName(strings.ReplaceAll(name, "-", "_"))
}

func bindFlags(fs *pflag.FlagSet, cfg *config.Config) {
	fs.StringVar(&cfg.Video, "video", cfg.Video, "input video file, or a capture device index")
	fs.StringVar(&cfg.CheckpointDir, "checkpoint_dir", cfg.CheckpointDir, "directory holding the generator checkpoint")
	fs.StringVar(&cfg.Output, "output", cfg.Output, "output directory, created if missing")
	fs.StringVar(&cfg.OutputFormat, "output_format", cfg.OutputFormat,
		fmt.Sprintf("4 character codec tag, one of %v", video.CodecTags()))
	fs.BoolVar(&cfg.AdjustBrightness, "if_adjust_brightness", cfg.AdjustBrightness, "match the brightness of the source frames")
	fs.StringVar(&cfg.Backend, "backend", cfg.Backend, fmt.Sprintf("inference backend, one of %v", model.Backends()))
	fs.StringVar(&cfg.OnnxRuntimeLib, "onnxruntime_lib", cfg.OnnxRuntimeLib, "onnxruntime shared library")
	fs.IntVar(&cfg.ImgSize, "img_size", cfg.ImgSize, "model input size")
	fs.StringVar(&cfg.ResizePolicy, "resize_policy", cfg.ResizePolicy, "model input resize policy, square or aligned")
	fs.StringVar(&cfg.VideoBackend, "video_backend", cfg.VideoBackend, fmt.Sprintf("video backend, one of %v", video.Backends()))
	fs.StringVar(&cfg.Log.Level, "log_level", cfg.Log.Level, "log level")
	fs.StringVar(&cfg.Log.Format, "log_format", cfg.Log.Format, "log format, console or json")
	fs.StringVar(&cfg.MetricsAddr, "metrics_addr", cfg.MetricsAddr, "serve /metrics and /healthz on this address")
	fs.BoolVar(&cfg.Quiet, "quiet", cfg.Quiet, "log progress lines instead of drawing a bar")
}

// mergeFlags copies the flags set on the command line from flags onto cfg.
func mergeFlags(fs *pflag.FlagSet, cfg, flags *config.Config) {
	fs.Visit(func(f *pflag.Flag) {
		switch f.Name {
		case "video":
			cfg.Video = flags.Video
		case "checkpoint_dir":
			cfg.CheckpointDir = flags.CheckpointDir
		case "output":
			cfg.Output = flags.Output
		case "output_format":
			cfg.OutputFormat = flags.OutputFormat
		case "if_adjust_brightness":
			cfg.AdjustBrightness = flags.AdjustBrightness
		case "backend":
			cfg.Backend = flags.Backend
		case "onnxruntime_lib":
			cfg.OnnxRuntimeLib = flags.OnnxRuntimeLib
		case "img_size":
			cfg.ImgSize = flags.ImgSize
		case "resize_policy":
			cfg.ResizePolicy = flags.ResizePolicy
		case "video_backend":
			cfg.VideoBackend = flags.VideoBackend
		case "log_level":
			cfg.Log.Level = flags.Log.Level
		case "log_format":
			cfg.Log.Format = flags.Log.Format
		case "metrics_addr":
			cfg.MetricsAddr = flags.MetricsAddr
		case "quiet":
			cfg.Quiet = flags.Quiet
		}
	})
}

func resolve(cmd *cobra.Command, path string, flags *config.Config) (*config.Config, error) {
	cfg, err := config.Load(path)
	if nil != err {
		return nil, err
	}

	mergeFlags(cmd.Flags(), cfg, flags)

	if err := cfg.Validate(); nil != err {
		return nil, err
	}

	return cfg, nil
}

func newRootCommand() *cobra.Command {
	flags := config.Default()
	configPath := ""

	cmd := &cobra.Command{
		Use:           "video2anime",
		Short:         "Convert a video into anime style, frame by frame",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := resolve(cmd, configPath, flags)
			if nil != err {
				return err
			}

			return convert(cmd, cfg)
		},
	}

	cmd.Flags().SetNormalizeFunc(normalize)
	cmd.Flags().StringVar(&configPath, "config", "", "YAML configuration file")
	bindFlags(cmd.Flags(), flags)

	cmd.AddCommand(newProbeCommand())

	return cmd
}

func convert(cmd *cobra.Command, cfg *config.Config) error {
	log, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if nil != err {
		return err
	}
	defer log.Sync()

	codec, err := video.ParseCodec(cfg.OutputFormat)
	if nil != err {
		return err
	}

	policy, err := frame.ParsePolicy(cfg.ResizePolicy)
	if nil != err {
		return err
	}

	videos, err := video.NewBackend(cfg.VideoBackend)
	if nil != err {
		return err
	}

	if err := os.MkdirAll(cfg.Output, os.ModePerm); nil != err {
		return fmt.Errorf("create output directory: %w", err)
	}

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	if "" != cfg.MetricsAddr {
		srv := metrics.StartServer(cfg.MetricsAddr, registry, log)
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			if err := srv.Shutdown(ctx); nil != err {
				log.Warn("metrics server shutdown failed", zap.Error(err))
			}
		}()
	}

	reporter := progress.BarFactory(cmd.ErrOrStderr())
	if cfg.Quiet {
		reporter = progress.MeterFactory(log)
	}

	loader := model.NewLoader(model.Options{
		Backend:        cfg.Backend,
		OnnxRuntimeLib: cfg.OnnxRuntimeLib,
	}, log)

	result, err := pipeline.NewConverter(videos, loader, reporter, m, log).Run(cmd.Context(), pipeline.Options{
		Video:            cfg.Video,
		Output:           cfg.Output,
		CheckpointDir:    cfg.CheckpointDir,
		Codec:            codec,
		AdjustBrightness: cfg.AdjustBrightness,
		ImgSize:          cfg.ImgSize,
		ResizePolicy:     policy,
	})
	if nil != err {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "output video: %s\n", result.Path)

	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := newRootCommand().ExecuteContext(ctx)
	stop()

	if nil != err {
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprintln(os.Stderr, "--- ERROR ---")

		os.Exit(1)
	}
}
