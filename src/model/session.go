package model

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"sync"

	"go.uber.org/zap"
	"gorgonia.org/tensor"
)

const (
	BackendGorgonnx    = "gorgonnx"
	BackendOnnxRuntime = "onnxruntime"

	// DefaultBackend runs any generator graph; gorgonnx only covers a subset of operators.
	DefaultBackend = BackendOnnxRuntime
)

// ErrUnsupportedModel is returned when a backend cannot execute the restored graph.
var ErrUnsupportedModel = errors.New("model not supported by backend")

// Backend runs one forward pass of a loaded graph.
type Backend interface {
	Run(input *tensor.Dense) (tensor.Tensor, error)
	Close() error
}

// Opener restores a backend from a model file.
type Opener func(path string, opts Options) (Backend, error)

type Options struct {
	Backend string

	// OnnxRuntimeLib is the onnxruntime shared library, empty for the platform default.
	OnnxRuntimeLib string
}

var openers = map[string]Opener{
	BackendGorgonnx:    openGorgonnx,
	BackendOnnxRuntime: openOnnxRuntime,
}

func Backends() []string {
	names := make([]string, 0, len(openers))
	for name := range openers {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

// Session is the restored model. It is created once per run and shared by every frame;
// forward passes are serialized.
type Session struct {
	name    string
	backend Backend
	mu      sync.Mutex
}

func NewSession(name string, backend Backend) *Session {
	return &Session{name: name, backend: backend}
}

// Name is the checkpoint the session was restored from.
func (s *Session) Name() string {
	return s.name
}

func (s *Session) Stylize(input *tensor.Dense) (tensor.Tensor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out, err := s.backend.Run(input)
	if nil != err {
		return nil, fmt.Errorf("forward pass: %w", err)
	}

	return out, nil
}

func (s *Session) Close() error {
	return s.backend.Close()
}

type Loader interface {
	Load(dir string) (*Session, error)
}

type LoaderFunc func(dir string) (*Session, error)

func (f LoaderFunc) Load(dir string) (*Session, error) {
	return f(dir)
}

// NewLoader returns a loader that finds the checkpoint in a directory and restores it with
// the configured backend.
func NewLoader(opts Options, logger *zap.Logger) Loader {
	return LoaderFunc(func(dir string) (*Session, error) {
		name := opts.Backend
		if "" == name {
			name = DefaultBackend
		}

		open, ok := openers[name]
		if !ok {
			return nil, fmt.Errorf("unknown inference backend %q, expected one of %v", name, Backends())
		}

		path, err := Find(dir)
		if nil != err {
			logger.Error("failed to find a checkpoint", zap.String("dir", dir), zap.Error(err))
			return nil, err
		}

		backend, err := open(path, opts)
		if nil != err {
			return nil, fmt.Errorf("restore %s: %w", path, err)
		}

		logger.Info("checkpoint restored",
			zap.String("checkpoint", filepath.Base(path)),
			zap.String("backend", name),
		)

		return NewSession(filepath.Base(path), backend), nil
	})
}
