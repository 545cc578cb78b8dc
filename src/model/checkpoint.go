package model

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	// StateFile names the current checkpoint inside a checkpoint directory, one
	// `model_checkpoint_path: "<name>"` line.
	StateFile = "checkpoint"

	Ext = ".onnx"
)

var ErrNoCheckpoint = errors.New("no checkpoint found")

// Find locates the model weights inside dir. The state file wins, otherwise the most
// recently modified *.onnx file is used. A path to a model file is returned as is.
func Find(dir string) (string, error) {
	info, err := os.Stat(dir)
	if nil != err {
		return "", fmt.Errorf("%w in %s: %v", ErrNoCheckpoint, dir, err)
	}

	if !info.IsDir() {
		if Ext == strings.ToLower(filepath.Ext(dir)) {
			return dir, nil
		}

		return "", fmt.Errorf("%w: %s is not a directory", ErrNoCheckpoint, dir)
	}

	if name, ok := readState(filepath.Join(dir, StateFile)); ok {
		for _, candidate := range []string{name, name + Ext} {
			path := filepath.Join(dir, filepath.Base(candidate))
			if isFile(path) {
				return path, nil
			}
		}
	}

	entries, err := os.ReadDir(dir)
	if nil != err {
		return "", fmt.Errorf("%w in %s: %v", ErrNoCheckpoint, dir, err)
	}

	var newest string
	var newestInfo os.FileInfo

	for _, entry := range entries {
		if entry.IsDir() || Ext != strings.ToLower(filepath.Ext(entry.Name())) {
			continue
		}

		info, err := entry.Info()
		if nil != err {
			continue
		}

		if nil == newestInfo || info.ModTime().After(newestInfo.ModTime()) ||
			(info.ModTime().Equal(newestInfo.ModTime()) && entry.Name() > newest) {
			newest, newestInfo = entry.Name(), info
		}
	}

	if "" == newest {
		return "", fmt.Errorf("%w in %s", ErrNoCheckpoint, dir)
	}

	return filepath.Join(dir, newest), nil
}

func readState(path string) (string, bool) {
	handle, err := os.Open(path)
	if nil != err {
		return "", false
	}
	defer handle.Close()

	scanner := bufio.NewScanner(handle)
	for scanner.Scan() {
		key, value, found := strings.Cut(scanner.Text(), ":")
		if !found || "model_checkpoint_path" != strings.TrimSpace(key) {
			continue
		}

		value = strings.TrimSpace(value)
		if unquoted, err := strconv.Unquote(value); nil == err {
			value = unquoted
		}

		if "" != value {
			return value, true
		}
	}

	return "", false
}

func isFile(path string) bool {
	info, err := os.Stat(path)

	return nil == err && info.Mode().IsRegular()
}
