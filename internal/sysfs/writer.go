// Package sysfs reads and writes the small integer control interfaces exposed by kernel
// drivers. It is the only code that touches those files.
package sysfs

import (
	"bufio"
	"bytes"
	"os"
	"strconv"
	"sync"

	"codeberg.org/mutker/perfctl/internal/errors"
	"codeberg.org/mutker/perfctl/internal/logger"
	"github.com/spf13/afero"
)

const defaultFilePerm = 0o644

// Writer serializes access to each control interface path and skips writes that would
// not change the value read back from the device.
type Writer struct {
	fs     afero.Fs
	logger logger.Logger

	mu     sync.Mutex
	locks  map[string]*sync.Mutex
	writes map[string]int
}

func NewWriter(fs afero.Fs, log logger.Logger) *Writer {
	return &Writer{
		fs:     fs,
		logger: log,
		locks:  make(map[string]*sync.Mutex),
		writes: make(map[string]int),
	}
}

func (w *Writer) lock(path string) func() {
	w.mu.Lock()
	l, ok := w.locks[path]
	if !ok {
		l = &sync.Mutex{}
		w.locks[path] = l
	}
	w.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// Read returns the integer currently exposed at path. ok is false when the file is
// missing, unreadable or does not hold an integer.
func (w *Writer) Read(path string) (value int, ok bool) {
	unlock := w.lock(path)
	defer unlock()

	value, err := w.read(path)
	if err != nil {
		w.logger.Debug().Err(err).Str("path", path).Msg("Control interface not readable")
		return 0, false
	}

	return value, true
}

// ReadFlag reads a 0/1 interface. Anything unreadable or zero is reported as disabled.
func (w *Writer) ReadFlag(path string) bool {
	value, ok := w.Read(path)
	return ok && value != 0
}

// WriteIfChanged writes value to path unless the device already reports it.
// An absent or unparsable current value is always overwritten.
func (w *Writer) WriteIfChanged(path string, value int) error {
	errFactory := errors.New()

	if value < 0 {
		return errFactory.WithData(ErrInvalidValue, struct {
			Path  string
			Value int
		}{Path: path, Value: value})
	}

	unlock := w.lock(path)
	defer unlock()

	if current, err := w.read(path); err == nil && current == value {
		w.logger.Debug().Str("path", path).Int("value", value).Msg("Value unchanged, skipping write")
		return nil
	}

	if err := w.write(path, value); err != nil {
		w.logger.Error().Err(err).Str("path", path).Int("value", value).Msg("Failed to write control interface")
		return errFactory.Wrap(ErrWriteFailed, err).WithData(struct {
			Path  string
			Value int
			Error string
		}{Path: path, Value: value, Error: err.Error()})
	}

	w.mu.Lock()
	w.writes[path]++
	w.mu.Unlock()

	w.logger.Debug().Str("path", path).Int("value", value).Msg("Wrote control interface")

	return nil
}

// WriteFlag writes a boolean as 0/1 with the same write-if-changed discipline.
func (w *Writer) WriteFlag(path string, enabled bool) error {
	return w.WriteIfChanged(path, BoolToInt(enabled))
}

// Writes returns how many device writes were performed on path.
func (w *Writer) Writes(path string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.writes[path]
}

func (w *Writer) read(path string) (int, error) {
	errFactory := errors.New()

	data, err := afero.ReadFile(w.fs, path)
	if err != nil {
		return 0, errFactory.Wrap(ErrReadFailed, err)
	}

	line := data
	if scanner := bufio.NewScanner(bytes.NewReader(data)); scanner.Scan() {
		line = scanner.Bytes()
	}

	value, err := strconv.Atoi(string(bytes.TrimSpace(line)))
	if err != nil {
		return 0, errFactory.Wrap(ErrParseFailed, err)
	}

	return value, nil
}

func (w *Writer) write(path string, value int) error {
	f, err := w.fs.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, defaultFilePerm)
	if err != nil {
		return err
	}

	if _, err := f.WriteString(strconv.Itoa(value) + "\n"); err != nil {
		f.Close()
		return err
	}

	return f.Close()
}

// BoolToInt converts a flag to its control interface value.
func BoolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
