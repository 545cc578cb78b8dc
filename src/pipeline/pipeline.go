package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"video2anime/src/frame"
	"video2anime/src/metrics"
	"video2anime/src/model"
	"video2anime/src/progress"
	"video2anime/src/video"
)

// DefaultFPS is used when the input does not report a frame rate.
const DefaultFPS = 30

var (
	ErrOpenInput  = errors.New("cannot open input video")
	ErrEmptyVideo = errors.New("failed to determine frame size: frame empty")
)

type Options struct {
	Video         string
	Output        string
	CheckpointDir string
	Codec         video.Codec

	AdjustBrightness bool
	ImgSize          int
	ResizePolicy     frame.ResizePolicy
}

type Result struct {
	Path       string
	Checkpoint string
	Frames     int
	Skipped    int
	Width      int
	Height     int
	FPS        float64
	Elapsed    time.Duration
}

// Converter drives a conversion: decode, stylize and encode every frame, one at a time.
type Converter struct {
	videos   video.Backend
	models   model.Loader
	progress progress.Factory
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

func NewConverter(
	videos video.Backend,
	models model.Loader,
	reporter progress.Factory,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Converter {
	if nil == reporter {
		reporter = func(int) progress.Reporter { return nopReporter{} }
	}

	if nil == m {
		m = metrics.New(nil)
	}

	return &Converter{
		videos:   videos,
		models:   models,
		progress: reporter,
		metrics:  m,
		logger:   logger,
	}
}

type nopReporter struct{}

func (nopReporter) Tick()        {}
func (nopReporter) Close() error { return nil }

// OutputPath is where the converted video of source is written inside dir. Sources without
// an extension, like capture devices, get the codec's container.
func OutputPath(dir, source string, codec video.Codec) string {
	name := filepath.Base(source)
	if "" == filepath.Ext(name) && "" != codec.Ext {
		name += codec.Ext
	}

	return filepath.Join(dir, name)
}

func (c *Converter) Run(ctx context.Context, opts Options) (*Result, error) {
	log := c.logger.With(
		zap.String("run_id", uuid.NewString()),
		zap.String("video", opts.Video),
	)

	start := time.Now()
	result, err := c.run(ctx, opts, log)
	if nil != err {
		c.metrics.RunsTotal.WithLabelValues("failed").Inc()
		return nil, err
	}

	result.Elapsed = time.Since(start)
	c.metrics.RunsTotal.WithLabelValues("completed").Inc()

	log.Info("conversion completed",
		zap.String("output", result.Path),
		zap.Int("frames", result.Frames),
		zap.Int("skipped", result.Skipped),
		zap.Duration("elapsed", result.Elapsed),
	)

	return result, nil
}

func (c *Converter) run(ctx context.Context, opts Options, log *zap.Logger) (*Result, error) {
	if 0 >= opts.ImgSize {
		opts.ImgSize = frame.DefaultSize
	}

	if "" == opts.ResizePolicy {
		opts.ResizePolicy = frame.PolicySquare
	}

	capture, err := c.videos.Open(ctx, opts.Video)
	if nil != err {
		log.Error("cannot open input video", zap.Error(err))
		return nil, fmt.Errorf("%w %s: %v", ErrOpenInput, opts.Video, err)
	}
	defer func() {
		if err := capture.Close(); nil != err {
			log.Warn("input close failed", zap.Error(err))
		}
	}()

	meta := capture.Metadata()
	log.Info("input opened",
		zap.Int("frames", meta.Frames),
		zap.Float64("fps", meta.FPS),
		zap.Int("width", meta.Width),
		zap.Int("height", meta.Height),
	)

	session, err := c.models.Load(opts.CheckpointDir)
	if nil != err {
		log.Error("failed to find a checkpoint", zap.String("checkpoint_dir", opts.CheckpointDir), zap.Error(err))
		return nil, err
	}
	defer session.Close()

	first, err := capture.Read()
	if nil == err {
		err = first.Validate()
	}
	if nil != err {
		log.Error("failed to determine frame size: frame empty", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrEmptyVideo, err)
	}

	result := &Result{
		Path:       OutputPath(opts.Output, opts.Video, opts.Codec),
		Checkpoint: session.Name(),
		Width:      first.Width,
		Height:     first.Height,
		FPS:        meta.FPS,
	}

	if 0 >= result.FPS {
		log.Warn("input reports no frame rate, using default", zap.Float64("fps", DefaultFPS))
		result.FPS = DefaultFPS
	}

	writer, err := c.videos.Create(ctx, result.Path, video.WriterSpec{
		Codec:  opts.Codec,
		FPS:    result.FPS,
		Width:  result.Width,
		Height: result.Height,
	})
	if nil != err {
		return nil, fmt.Errorf("create output %s: %w", result.Path, err)
	}

	finalized := false
	defer func() {
		if finalized {
			return
		}
		if err := writer.Close(); nil != err {
			log.Warn("output close failed", zap.Error(err))
		}
	}()

	if err := capture.Rewind(); nil != err {
		return nil, fmt.Errorf("rewind input: %w", err)
	}

	reporter := c.progress(meta.Frames)
	defer reporter.Close()

	position := 0
	decodeStart := time.Now()

	for f, err := range video.Frames(capture) {
		c.metrics.Observe(metrics.StageDecode, decodeStart)
		position++

		if nil != ctx.Err() {
			return nil, ctx.Err()
		}

		if errors.Is(err, video.ErrEmptyFrame) {
			log.Warn("got empty frame, skipping", zap.Int("position", position), zap.Error(err))
			result.Skipped++
			c.metrics.FramesSkipped.Inc()
			decodeStart = time.Now()
			continue
		}

		if nil != err {
			return nil, fmt.Errorf("decode frame %d: %w", position, err)
		}

		out, err := c.convert(session, f, result.Width, result.Height, opts)
		if nil != err {
			return nil, fmt.Errorf("convert frame %d: %w", position, err)
		}

		encodeStart := time.Now()
		if err := writer.Write(out); nil != err {
			return nil, fmt.Errorf("write frame %d: %w", position, err)
		}
		c.metrics.Observe(metrics.StageEncode, encodeStart)

		result.Frames++
		c.metrics.FramesConverted.Inc()
		reporter.Tick()

		decodeStart = time.Now()
	}

	if nil != ctx.Err() {
		return nil, ctx.Err()
	}

	finalized = true
	if err := writer.Close(); nil != err {
		return nil, fmt.Errorf("finalize %s: %w", result.Path, err)
	}

	return result, nil
}

// convert runs one frame through preprocess, inference, postprocess and the optional
// brightness match.
func (c *Converter) convert(session *model.Session, f *frame.Frame, width, height int, opts Options) (*frame.Frame, error) {
	start := time.Now()
	in, err := frame.Preprocess(f, opts.ImgSize, opts.ResizePolicy)
	if nil != err {
		return nil, err
	}
	c.metrics.Observe(metrics.StagePreprocess, start)

	start = time.Now()
	stylized, err := session.Stylize(in)
	if nil != err {
		return nil, err
	}
	c.metrics.Observe(metrics.StageInference, start)

	start = time.Now()
	out, err := frame.Postprocess(stylized, width, height)
	if nil != err {
		return nil, err
	}
	c.metrics.Observe(metrics.StagePostprocess, start)

	if opts.AdjustBrightness {
		start = time.Now()
		out = frame.MatchBrightness(out, f)
		c.metrics.Observe(metrics.StageBrightness, start)
	}

	return out, nil
}
