package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	StageDecode      = "decode"
	StagePreprocess  = "preprocess"
	StageInference   = "inference"
	StagePostprocess = "postprocess"
	StageBrightness  = "brightness"
	StageEncode      = "encode"
)

type Metrics struct {
	FramesConverted prometheus.Counter
	FramesSkipped   prometheus.Counter
	StageDuration   *prometheus.HistogramVec
	RunsTotal       *prometheus.CounterVec
}

// New registers the conversion metrics on reg. A nil reg leaves them unregistered.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		FramesConverted: factory.NewCounter(prometheus.CounterOpts{
			Name: "video2anime_frames_converted_total",
			Help: "Total number of frames stylized and written",
		}),
		FramesSkipped: factory.NewCounter(prometheus.CounterOpts{
			Name: "video2anime_frames_skipped_total",
			Help: "Total number of frames skipped because they could not be decoded",
		}),
		StageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "video2anime_stage_duration_seconds",
			Help:    "Duration of each per-frame stage",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"stage"}),
		RunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "video2anime_runs_total",
			Help: "Total number of conversions, by outcome",
		}, []string{"status"}),
	}
}

func (m *Metrics) Observe(stage string, start time.Time) {
	m.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}
