package model

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorgonia.org/tensor"
)

func touch(t *testing.T, path string, mod time.Time) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte("onnx"), 0o644))
	require.NoError(t, os.Chtimes(path, mod, mod))
}

func TestFind(t *testing.T) {
	base := time.Now().Add(-time.Hour)

	t.Run("state file names the model", func(t *testing.T) {
		dir := t.TempDir()
		touch(t, filepath.Join(dir, "Hayao.onnx"), base)
		touch(t, filepath.Join(dir, "Paprika.onnx"), base.Add(time.Minute))
		require.NoError(t, os.WriteFile(filepath.Join(dir, StateFile),
			[]byte("model_checkpoint_path: \"/training/run/Hayao\"\nall_model_checkpoint_paths: \"x\"\n"), 0o644))

		path, err := Find(dir)
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, "Hayao.onnx"), path)
	})

	t.Run("newest onnx file without state", func(t *testing.T) {
		dir := t.TempDir()
		touch(t, filepath.Join(dir, "old.onnx"), base)
		touch(t, filepath.Join(dir, "new.ONNX"), base.Add(time.Minute))
		touch(t, filepath.Join(dir, "notes.txt"), base.Add(time.Hour))

		path, err := Find(dir)
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, "new.ONNX"), path)
	})

	t.Run("stale state falls back to scan", func(t *testing.T) {
		dir := t.TempDir()
		touch(t, filepath.Join(dir, "only.onnx"), base)
		require.NoError(t, os.WriteFile(filepath.Join(dir, StateFile),
			[]byte("model_checkpoint_path: \"missing\"\n"), 0o644))

		path, err := Find(dir)
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, "only.onnx"), path)
	})

	t.Run("model file path", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "model.onnx")
		touch(t, file, base)

		path, err := Find(file)
		require.NoError(t, err)
		assert.Equal(t, file, path)
	})

	t.Run("empty directory", func(t *testing.T) {
		_, err := Find(t.TempDir())
		assert.ErrorIs(t, err, ErrNoCheckpoint)
	})

	t.Run("missing directory", func(t *testing.T) {
		_, err := Find(filepath.Join(t.TempDir(), "nope"))
		assert.ErrorIs(t, err, ErrNoCheckpoint)
	})
}

type echoBackend struct {
	runs   int
	closed bool
	err    error
}

func (e *echoBackend) Run(input *tensor.Dense) (tensor.Tensor, error) {
	e.runs++
	if nil != e.err {
		return nil, e.err
	}

	return input.Clone().(*tensor.Dense), nil
}

func (e *echoBackend) Close() error {
	e.closed = true
	return nil
}

func withOpener(t *testing.T, name string, backend Backend) {
	t.Helper()
	openers[name] = func(string, Options) (Backend, error) { return backend, nil }
	t.Cleanup(func() { delete(openers, name) })
}

func TestLoader(t *testing.T) {
	backend := &echoBackend{}
	withOpener(t, "echo", backend)

	dir := t.TempDir()
	touch(t, filepath.Join(dir, "Shinkai.onnx"), time.Now())

	session, err := NewLoader(Options{Backend: "echo"}, zap.NewNop()).Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "Shinkai.onnx", session.Name())

	in := tensor.New(tensor.WithShape(1, 2, 2, 3), tensor.WithBacking(make([]float32, 12)))
	out, err := session.Stylize(in)
	require.NoError(t, err)
	assert.Equal(t, in.Shape(), out.Shape())
	assert.Equal(t, 1, backend.runs)

	require.NoError(t, session.Close())
	assert.True(t, backend.closed)
}

func TestLoaderWithoutCheckpointNeverOpensBackend(t *testing.T) {
	opened := false
	openers["spy"] = func(string, Options) (Backend, error) {
		opened = true
		return &echoBackend{}, nil
	}
	t.Cleanup(func() { delete(openers, "spy") })

	_, err := NewLoader(Options{Backend: "spy"}, zap.NewNop()).Load(t.TempDir())
	assert.ErrorIs(t, err, ErrNoCheckpoint)
	assert.False(t, opened)
}

func TestLoaderUnknownBackend(t *testing.T) {
	_, err := NewLoader(Options{Backend: "tensorflow"}, zap.NewNop()).Load(t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown inference backend")
}

func TestStylizeWrapsBackendError(t *testing.T) {
	boom := errors.New("boom")
	session := NewSession("m", &echoBackend{err: boom})

	_, err := session.Stylize(tensor.New(tensor.WithShape(1), tensor.WithBacking([]float32{0})))
	assert.ErrorIs(t, err, boom)
}

func TestBackends(t *testing.T) {
	assert.Equal(t, []string{BackendGorgonnx, BackendOnnxRuntime}, Backends())
}
