package config

import (
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"video2anime/src/frame"
	"video2anime/src/model"
	"video2anime/src/video"
)

// EnvPrefix prefixes every environment override, e.g. VIDEO2ANIME_OUTPUT_FORMAT.
const EnvPrefix = "VIDEO2ANIME_"

// Config is resolved in order: Default, YAML file, environment, command line flags.
type Config struct {
	Video            string `yaml:"video"                env:"VIDEO"`
	CheckpointDir    string `yaml:"checkpoint_dir"       env:"CHECKPOINT_DIR"`
	Output           string `yaml:"output"               env:"OUTPUT"`
	OutputFormat     string `yaml:"output_format"        env:"OUTPUT_FORMAT"`
	AdjustBrightness bool   `yaml:"if_adjust_brightness" env:"IF_ADJUST_BRIGHTNESS"`

	Backend        string `yaml:"backend"         env:"BACKEND"`
	OnnxRuntimeLib string `yaml:"onnxruntime_lib" env:"ONNXRUNTIME_LIB"`
	ImgSize        int    `yaml:"img_size"        env:"IMG_SIZE"`
	ResizePolicy   string `yaml:"resize_policy"   env:"RESIZE_POLICY"`
	VideoBackend   string `yaml:"video_backend"   env:"VIDEO_BACKEND"`

	MetricsAddr string `yaml:"metrics_addr" env:"METRICS_ADDR"`
	Quiet       bool   `yaml:"quiet"        env:"QUIET"`

	Log LogConfig `yaml:"log" envPrefix:"LOG_"`
}

type LogConfig struct {
	Level  string `yaml:"level"  env:"LEVEL"`
	Format string `yaml:"format" env:"FORMAT"`
}

func Default() *Config {
	return &Config{
		Video:         "video/input/お花見.mp4",
		CheckpointDir: "../checkpoint/generator_Hayao_weight",
		Output:        "video/output",
		OutputFormat:  "MP4V",
		Backend:       model.DefaultBackend,
		ImgSize:       frame.DefaultSize,
		ResizePolicy:  string(frame.PolicySquare),
		VideoBackend:  video.BackendFFmpeg,
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads the optional YAML file at path over the defaults, then applies environment
// overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if "" != path {
		data, err := os.ReadFile(path)
		if nil != err {
			return nil, fmt.Errorf("read config: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); nil != err {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); nil != err {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if "" == c.Video {
		return fmt.Errorf("video is required")
	}

	if "" == c.Output {
		return fmt.Errorf("output is required")
	}

	if _, err := video.ParseCodec(c.OutputFormat); nil != err {
		return err
	}

	if _, err := frame.ParsePolicy(c.ResizePolicy); nil != err {
		return err
	}

	if 0 >= c.ImgSize {
		return fmt.Errorf("img_size must be positive, got %d", c.ImgSize)
	}

	return nil
}
