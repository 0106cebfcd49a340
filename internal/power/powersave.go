package power

import (
	"bytes"
	"strconv"

	"codeberg.org/mutker/perfctl/internal/errors"
	"codeberg.org/mutker/perfctl/internal/logger"
	"codeberg.org/mutker/perfctl/internal/watch"
	"github.com/spf13/afero"
)

// FlagWriter is the subset of sysfs.Writer used for 0/1 files.
type FlagWriter interface {
	ReadFlag(path string) bool
	WriteFlag(path string, enabled bool) error
}

// FileSignal is a power-save signal backed by a 0/1 file that other agents may rewrite.
type FileSignal struct {
	fs     afero.Fs
	path   string
	writer FlagWriter
	logger logger.Logger
}

var _ PowerSaveSignal = (*FileSignal)(nil)

func NewFileSignal(fs afero.Fs, path string, writer FlagWriter, log logger.Logger) *FileSignal {
	return &FileSignal{
		fs:     fs,
		path:   path,
		writer: writer,
		logger: log,
	}
}

func (s *FileSignal) Enabled() bool {
	return s.writer.ReadFlag(s.path)
}

func (s *FileSignal) Set(enabled bool) error {
	if err := s.writer.WriteFlag(s.path, enabled); err != nil {
		return errors.New().Wrap(ErrSignalFailed, err)
	}
	return nil
}

// Subscribe delivers the parsed value after every write, repeats included. Unparsable
// content is ignored.
func (s *FileSignal) Subscribe(handler func(enabled bool)) (Subscription, error) {
	sub, err := watch.Writes(s.fs, s.path, func(content []byte) {
		value, err := strconv.Atoi(string(bytes.TrimSpace(content)))
		if err != nil {
			s.logger.Debug().Err(err).Str("path", s.path).Msg("Ignoring unparsable power-save value")
			return
		}
		handler(value != 0)
	}, s.logger)
	if err != nil {
		return nil, err
	}

	return sub, nil
}
